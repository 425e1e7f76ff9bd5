package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/tournevent/labeler/internal/server"
	"github.com/tournevent/labeler/internal/store"
	"github.com/tournevent/labeler/internal/tracking"
	"github.com/tournevent/labeler/pkg/carrier"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "labeler",
	Short:   "Multi-carrier shipping label service",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, the tracking worker and the optional scheduler",
	RunE:  runServe,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume tracking jobs",
	RunE:  runWorker,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Enqueue a tracking job for every open shipment",
	RunE:  runSchedule,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var tenantUpsertCmd = &cobra.Command{
	Use:   "upsert",
	Short: "Create a tenant or replace its settings, keyed by shop domain",
	RunE:  runTenantUpsert,
}

var tenantDeleteCmd = &cobra.Command{
	Use:   "delete <tenant-id>",
	Short: "Delete a tenant with its shipments and billing records",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantDelete,
}

var tenantFlags struct {
	domain              string
	sender              carrier.Address
	defaultCarrier      string
	glsCustomerID       string
	glsUser             string
	glsPassword         string
	shipmondoUser       string
	shipmondoKey        string
	freeLabelsLimit     int
	billingActive       bool
	billingCustomer     string
	billingSubscription string
	billingToken        string
}

func init() {
	rootCmd.AddCommand(serveCmd, workerCmd, scheduleCmd, migrateCmd, tenantCmd)
	tenantCmd.AddCommand(tenantUpsertCmd, tenantDeleteCmd)

	f := tenantUpsertCmd.Flags()
	f.StringVar(&tenantFlags.domain, "domain", "", "shop domain (required)")
	f.StringVar(&tenantFlags.sender.Name, "sender-name", "", "sender name")
	f.StringVar(&tenantFlags.sender.Street, "sender-street", "", "sender street")
	f.StringVar(&tenantFlags.sender.Zip, "sender-zip", "", "sender postal code")
	f.StringVar(&tenantFlags.sender.City, "sender-city", "", "sender city")
	f.StringVar(&tenantFlags.sender.Country, "sender-country", "DK", "sender country code")
	f.StringVar(&tenantFlags.sender.Phone, "sender-phone", "", "sender phone")
	f.StringVar(&tenantFlags.sender.Email, "sender-email", "", "sender email")
	f.StringVar(&tenantFlags.defaultCarrier, "carrier", string(carrier.GLS), "default carrier")
	f.StringVar(&tenantFlags.glsCustomerID, "gls-customer-id", "", "GLS customer id")
	f.StringVar(&tenantFlags.glsUser, "gls-user", "", "GLS API user")
	f.StringVar(&tenantFlags.glsPassword, "gls-password", "", "GLS API password")
	f.StringVar(&tenantFlags.shipmondoUser, "shipmondo-user", "", "Shipmondo API user")
	f.StringVar(&tenantFlags.shipmondoKey, "shipmondo-key", "", "Shipmondo API key")
	f.IntVar(&tenantFlags.freeLabelsLimit, "free-labels", 0, "free label allowance (default FREE_LABELS_LIMIT for new tenants)")
	f.BoolVar(&tenantFlags.billingActive, "billing-active", false, "charge labels beyond the free allowance")
	f.StringVar(&tenantFlags.billingCustomer, "billing-customer", "", "billing provider customer reference")
	f.StringVar(&tenantFlags.billingSubscription, "billing-subscription", "", "billing provider subscription reference")
	f.StringVar(&tenantFlags.billingToken, "billing-token", "", "Shopify Admin API access token")
	tenantUpsertCmd.MarkFlagRequired("domain")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	queue, err := initQueue(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer queue.Close()

	router, err := tracking.NewRouter(queue, a.worker(), retryConfig(a.cfg), a.logger)
	if err != nil {
		return err
	}

	a.logger.Info("Starting label service",
		zap.Int("port", a.cfg.Port),
		zap.String("version", a.cfg.Version),
		zap.String("queue", a.cfg.QueueBackend),
		zap.String("billing", a.cfg.BillingProvider),
	)

	srv := server.New(server.Config{Port: a.cfg.Port}, a.shipments(), a.store, a.registry, a.logger, a.metrics)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return router.Run(ctx)
	})
	if a.cfg.TrackingScheduleInterval > 0 {
		scheduler := tracking.NewScheduler(a.store, queue, 0, a.logger)
		g.Go(func() error {
			select {
			case <-router.Running():
			case <-ctx.Done():
				return nil
			}
			return scheduler.Run(ctx, a.cfg.TrackingScheduleInterval)
		})
	}
	return g.Wait()
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	queue, err := initQueue(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer queue.Close()

	router, err := tracking.NewRouter(queue, a.worker(), retryConfig(a.cfg), a.logger)
	if err != nil {
		return err
	}
	return router.Run(ctx)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if a.cfg.QueueBackend == tracking.BackendMemory {
		return errors.New("schedule needs a shared queue; set QUEUE_BACKEND=kafka or run serve with TRACKING_SCHEDULE_INTERVAL")
	}

	queue, err := initQueue(a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer queue.Close()

	n, err := tracking.NewScheduler(a.store, queue, 0, a.logger).RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "enqueued %d tracking jobs\n", n)
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := a.store.Migrate(ctx); err != nil {
		return err
	}
	a.logger.Info("Schema migrated", zap.String("driver", a.cfg.DatabaseDriver))
	return nil
}

func runTenantUpsert(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	code, ok := carrier.ParseCode(tenantFlags.defaultCarrier)
	if !ok {
		return errors.Newf("unknown carrier %q", tenantFlags.defaultCarrier)
	}

	in := store.TenantInput{
		ShopDomain:             tenantFlags.domain,
		Sender:                 tenantFlags.sender,
		Credentials:            map[carrier.Code]carrier.Credentials{},
		DefaultCarrier:         code,
		FreeLabelsLimit:        tenantFlags.freeLabelsLimit,
		BillingActive:          tenantFlags.billingActive,
		BillingCustomerRef:     tenantFlags.billingCustomer,
		BillingSubscriptionRef: tenantFlags.billingSubscription,
		BillingAccessToken:     tenantFlags.billingToken,
	}
	if tenantFlags.glsUser != "" {
		in.Credentials[carrier.GLS] = carrier.Credentials{
			CustomerID: tenantFlags.glsCustomerID,
			APIUser:    tenantFlags.glsUser,
			APIKey:     tenantFlags.glsPassword,
		}
	}
	if tenantFlags.shipmondoUser != "" {
		in.Credentials[carrier.Shipmondo] = carrier.Credentials{
			APIUser: tenantFlags.shipmondoUser,
			APIKey:  tenantFlags.shipmondoKey,
		}
	}

	if in.FreeLabelsLimit == 0 {
		_, err := a.store.GetTenantByDomain(ctx, in.ShopDomain)
		if errors.Is(err, store.ErrNotFound) {
			in.FreeLabelsLimit = a.cfg.FreeLabelsLimit
		} else if err != nil {
			return err
		}
	}

	tenant, err := a.store.UpsertTenant(ctx, in)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"id":              tenant.ID,
		"shopDomain":      tenant.ShopDomain,
		"defaultCarrier":  tenant.DefaultCarrier,
		"senderComplete":  tenant.SenderConfigured(),
		"freeLabelsUsed":  tenant.FreeLabelsUsed,
		"freeLabelsLimit": tenant.FreeLabelsLimit,
		"billingActive":   tenant.BillingActive,
	})
}

func runTenantDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	if err := a.store.DeleteTenant(ctx, args[0]); err != nil {
		return err
	}
	a.logger.Info("Tenant deleted", zap.String("tenant_id", args[0]))
	return nil
}
