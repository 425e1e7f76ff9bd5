package main

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tournevent/labeler/internal/billing"
	"github.com/tournevent/labeler/internal/carriers"
	"github.com/tournevent/labeler/internal/config"
	"github.com/tournevent/labeler/internal/secrets"
	"github.com/tournevent/labeler/internal/shipment"
	"github.com/tournevent/labeler/internal/store"
	"github.com/tournevent/labeler/internal/telemetry"
	"github.com/tournevent/labeler/internal/tracking"
	"github.com/tournevent/labeler/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// app holds the components shared by the commands.
type app struct {
	cfg      *config.Config
	logger   *otelzap.Logger
	tracer   trace.Tracer
	metrics  *telemetry.Metrics
	store    *store.Store
	registry *carrier.Registry
	shutdown func(context.Context) error
}

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(cfg *config.Config) (*otelzap.Logger, error) {
	return telemetry.NewLogger(cfg.LogLevel,
		zap.String("service", cfg.ServiceName),
		zap.String("version", cfg.Version),
	)
}

func initTracer(ctx context.Context, cfg *config.Config) (trace.Tracer, func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return nil, func(context.Context) error { return nil }, nil
	}
	return telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
}

func openStore(ctx context.Context, cfg *config.Config, logger *otelzap.Logger) (*store.Store, error) {
	box, err := secrets.NewBox(cfg.EncryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "ENCRYPTION_KEY")
	}
	return store.Open(ctx, store.Config{
		Driver:         cfg.DatabaseDriver,
		DSN:            cfg.DatabaseURL,
		ConnectTimeout: cfg.DatabaseConnectTimeout,
	}, box, logger)
}

func initRegistry(cfg *config.Config, logger *otelzap.Logger, tracer trace.Tracer) *carrier.Registry {
	return carriers.NewRegistry(carriers.Options{
		Timeout:       cfg.CarrierTimeout,
		UseMock:       cfg.CarrierUseMock,
		PickupCarrier: cfg.PickupCarrier,
	}, logger, tracer)
}

func initBillingBackend(cfg *config.Config, logger *otelzap.Logger) billing.Backend {
	switch cfg.BillingProvider {
	case config.BillingShopify:
		return billing.NewShopifyBackend(billing.ShopifyConfig{
			APIVersion: cfg.ShopifyAPIVersion,
			RetryMax:   2,
		}, logger)
	case config.BillingStripe:
		return billing.NewStripeBackend(billing.NewStripeAPI(cfg.StripeSecretKey), logger)
	default:
		return billing.NoopBackend{}
	}
}

func initQueue(cfg *config.Config, logger *otelzap.Logger) (*tracking.Queue, error) {
	return tracking.NewQueue(tracking.QueueConfig{
		Backend:       cfg.QueueBackend,
		Brokers:       cfg.KafkaBrokers,
		ConsumerGroup: cfg.KafkaConsumerGroup,
		ClientID:      cfg.ServiceName,
	}, logger)
}

func retryConfig(cfg *config.Config) tracking.RetryConfig {
	retry := tracking.DefaultRetryConfig()
	retry.MaxRetries = cfg.TrackingMaxRetries
	retry.InitialInterval = cfg.TrackingInitialInterval
	retry.Multiplier = cfg.TrackingMultiplier
	return retry
}

// newApp loads configuration and opens the store. Callers must call close.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return nil, err
	}

	tracer, shutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
		shutdown = func(context.Context) error { return nil }
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		tracer:   tracer,
		metrics:  telemetry.NewMetrics(prometheus.DefaultRegisterer),
		store:    st,
		registry: initRegistry(cfg, logger, tracer),
		shutdown: shutdown,
	}, nil
}

func (a *app) shipments() *shipment.Service {
	ledger := billing.NewLedger(billing.Config{
		Price:    a.cfg.LabelPrice,
		Currency: a.cfg.LabelCurrency,
	}, a.store, initBillingBackend(a.cfg, a.logger), a.logger, a.metrics)
	return shipment.NewService(a.store, a.registry, ledger, a.logger, a.metrics)
}

func (a *app) worker() *tracking.Worker {
	return tracking.NewWorker(a.store, a.registry, a.logger, a.metrics)
}

func (a *app) close(ctx context.Context) {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close store", zap.Error(err))
	}
	if err := a.shutdown(ctx); err != nil {
		a.logger.Warn("Failed to shut down tracer", zap.Error(err))
	}
	a.logger.Sync()
}
