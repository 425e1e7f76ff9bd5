package billing

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"github.com/tournevent/labeler/internal/store"
	"github.com/tournevent/labeler/internal/telemetry"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// PaidDescription is written on every charged billing record.
const PaidDescription = "Shipping label created"

// Outcome reasons.
const (
	ReasonFree            = "free"
	ReasonBillingInactive = "billing_inactive"
	ReasonNoLineItem      = "no_line_item"
	ReasonUserErrors      = "user_errors"
	ReasonCharged         = "charged"
	ReasonError           = "error"
)

// Outcome is the ledger's decision for one shipment.
type Outcome struct {
	Billed   bool
	Free     bool
	Used     int
	Limit    int
	RecordID string
	Reason   string
}

// Store is the persistence the ledger needs.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetTenant(ctx context.Context, id string) (*store.Tenant, error)
	IncrementFreeLabels(ctx context.Context, tenantID string) (used, limit int, ok bool, err error)
	CreateBillingRecord(ctx context.Context, rec *store.BillingRecord) error
	MarkBilled(ctx context.Context, id string) error
}

// Config holds the per-label price.
type Config struct {
	Price    decimal.Decimal
	Currency string
}

// Ledger decides whether a created label is free or charged and records the result.
//
// The ledger does not deduplicate. Callers invoke Record at most once per shipment,
// right after the shipment reached LABEL_CREATED.
type Ledger struct {
	store   Store
	backend Backend
	cfg     Config
	logger  *otelzap.Logger
	metrics *telemetry.Metrics
}

// NewLedger creates a ledger. A nil backend behaves as NoopBackend.
func NewLedger(cfg Config, st Store, backend Backend, logger *otelzap.Logger, metrics *telemetry.Metrics) *Ledger {
	if backend == nil {
		backend = NoopBackend{}
	}
	if cfg.Currency == "" {
		cfg.Currency = "DKK"
	}
	if cfg.Price.IsZero() {
		cfg.Price = decimal.RequireFromString("2.00")
	}
	return &Ledger{
		store:   st,
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
	}
}

// Record applies the billing rule for a created shipment. It never fails:
// any error is logged and reported as not billed.
func (l *Ledger) Record(ctx context.Context, tenantID, shipmentID string) Outcome {
	out, err := l.record(ctx, tenantID, shipmentID)
	if err != nil {
		l.logger.Ctx(ctx).Error("Failed to record usage charge",
			zap.String("tenant_id", tenantID),
			zap.String("shipment_id", shipmentID),
			zap.String("backend", l.backend.Name()),
			zap.Error(err),
		)
		out = Outcome{Reason: ReasonError}
	}
	l.metrics.RecordBilling(out.Reason)
	return out
}

func (l *Ledger) record(ctx context.Context, tenantID, shipmentID string) (Outcome, error) {
	free, err := l.consumeFreeLabel(ctx, tenantID, shipmentID)
	if err != nil {
		return Outcome{}, err
	}
	if free.Free {
		l.logger.Ctx(ctx).Info("Free label recorded",
			zap.String("tenant_id", tenantID),
			zap.String("shipment_id", shipmentID),
			zap.Int("used", free.Used),
			zap.Int("limit", free.Limit),
		)
		return free, nil
	}

	tenant, err := l.store.GetTenant(ctx, tenantID)
	if err != nil {
		return Outcome{}, err
	}
	if !tenant.BillingActive {
		l.logger.Ctx(ctx).Warn("Billing not active for tenant, label not charged",
			zap.String("tenant_id", tenantID),
			zap.String("shipment_id", shipmentID),
		)
		return Outcome{Reason: ReasonBillingInactive}, nil
	}

	lineItem, err := l.backend.ActiveLineItem(ctx, tenant)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "resolving active line item")
	}
	if lineItem == "" {
		l.logger.Ctx(ctx).Warn("No active usage subscription, label not charged",
			zap.String("tenant_id", tenantID),
			zap.String("backend", l.backend.Name()),
		)
		return Outcome{Reason: ReasonNoLineItem}, nil
	}

	res, err := l.backend.Charge(ctx, tenant, Charge{
		LineItemID:     lineItem,
		Amount:         l.cfg.Price,
		Currency:       l.cfg.Currency,
		Description:    PaidDescription,
		IdempotencyKey: shipmentID,
	})
	if err != nil {
		return Outcome{}, errors.Wrap(err, "submitting usage charge")
	}
	if len(res.UserErrors) > 0 {
		l.logger.Ctx(ctx).Error("Usage charge rejected",
			zap.String("tenant_id", tenantID),
			zap.String("shipment_id", shipmentID),
			zap.String("user_errors", joinUserErrors(res.UserErrors)),
		)
		return Outcome{Reason: ReasonUserErrors}, nil
	}

	rec := &store.BillingRecord{
		TenantID:    tenantID,
		ShipmentID:  shipmentID,
		Amount:      l.cfg.Price,
		Currency:    l.cfg.Currency,
		Description: PaidDescription,
		ExternalID:  res.RecordID,
	}
	err = l.store.WithTx(ctx, func(ctx context.Context) error {
		if err := l.store.CreateBillingRecord(ctx, rec); err != nil {
			return err
		}
		return l.store.MarkBilled(ctx, shipmentID)
	})
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "recording charge %s", res.RecordID)
	}

	l.logger.Ctx(ctx).Info("Label charged",
		zap.String("tenant_id", tenantID),
		zap.String("shipment_id", shipmentID),
		zap.String("usage_record_id", res.RecordID),
		zap.String("amount", l.cfg.Price.StringFixed(2)),
	)
	return Outcome{Billed: true, RecordID: rec.ID, Reason: ReasonCharged}, nil
}

// consumeFreeLabel increments the free counter and writes the zero-amount record in one transaction.
func (l *Ledger) consumeFreeLabel(ctx context.Context, tenantID, shipmentID string) (Outcome, error) {
	var out Outcome
	err := l.store.WithTx(ctx, func(ctx context.Context) error {
		used, limit, ok, err := l.store.IncrementFreeLabels(ctx, tenantID)
		if err != nil || !ok {
			return err
		}

		rec := &store.BillingRecord{
			TenantID:    tenantID,
			ShipmentID:  shipmentID,
			Amount:      decimal.Zero,
			Currency:    l.cfg.Currency,
			Description: fmt.Sprintf("Free label (%d/%d)", used, limit),
		}
		if err := l.store.CreateBillingRecord(ctx, rec); err != nil {
			return err
		}
		out = Outcome{Free: true, Used: used, Limit: limit, RecordID: rec.ID, Reason: ReasonFree}
		return nil
	})
	if err != nil {
		return Outcome{}, errors.Wrap(err, "consuming free label")
	}
	return out, nil
}
