// Package tracking refreshes shipment status from carrier tracking data.
package tracking

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/tournevent/labeler/internal/store"
	"github.com/tournevent/labeler/internal/telemetry"
	"github.com/tournevent/labeler/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Job results reported to metrics.
const (
	ResultSkipped   = "skipped"
	ResultUnchanged = "unchanged"
	ResultUpdated   = "updated"
	ResultError     = "error"
)

// Job asks the worker to refresh one shipment.
type Job struct {
	ShipmentID string `json:"shipmentId"`
}

// Store is the persistence the worker needs.
type Store interface {
	GetShipmentByID(ctx context.Context, id string) (*store.Shipment, error)
	GetTenant(ctx context.Context, id string) (*store.Tenant, error)
	UpdateStatus(ctx context.Context, id string, from []store.Status, to store.Status) error
}

// Resolver turns a carrier code and credentials into an adapter.
type Resolver interface {
	Resolve(code carrier.Code, creds carrier.Credentials) (carrier.Adapter, error)
}

// Worker applies tracking results to shipments.
type Worker struct {
	store    Store
	resolver Resolver
	logger   *otelzap.Logger
	metrics  *telemetry.Metrics
}

// NewWorker creates a tracking worker.
func NewWorker(st Store, resolver Resolver, logger *otelzap.Logger, metrics *telemetry.Metrics) *Worker {
	return &Worker{
		store:    st,
		resolver: resolver,
		logger:   logger,
		metrics:  metrics,
	}
}

// Handle refreshes one shipment. It is safe to run more than once for the same job.
// Carrier errors are returned so the queue can retry; they never change the shipment.
func (w *Worker) Handle(ctx context.Context, job Job) error {
	result, err := w.handle(ctx, job)
	if err != nil {
		result = ResultError
	}
	w.metrics.RecordTrackingJob(result)
	return err
}

func (w *Worker) handle(ctx context.Context, job Job) (string, error) {
	log := w.logger.Ctx(ctx).WithOptions(zap.Fields(zap.String("shipment_id", job.ShipmentID)))

	sh, err := w.store.GetShipmentByID(ctx, job.ShipmentID)
	if errors.Is(err, store.ErrNotFound) {
		log.Info("Skipping tracking: shipment not found")
		return ResultSkipped, nil
	}
	if err != nil {
		return "", err
	}
	if sh.TrackingNumber == "" {
		log.Info("Skipping tracking: no tracking number")
		return ResultSkipped, nil
	}
	if sh.Status.Terminal() {
		log.Info("Skipping tracking", zap.String("status", string(sh.Status)))
		return ResultSkipped, nil
	}

	tenant, err := w.store.GetTenant(ctx, sh.TenantID)
	if err != nil {
		return "", err
	}
	adapter, err := w.resolver.Resolve(sh.Carrier, tenant.Credentials[sh.Carrier])
	if err != nil {
		return "", errors.Wrapf(err, "resolving adapter for shipment %s", sh.ID)
	}

	res, err := adapter.GetTracking(ctx, sh.TrackingNumber)
	if err != nil {
		return "", errors.Wrapf(err, "tracking shipment %s", sh.ID)
	}

	next := DeriveStatus(sh.Status, res)
	if next == sh.Status {
		return ResultUnchanged, nil
	}

	err = w.store.UpdateStatus(ctx, sh.ID, []store.Status{store.StatusLabelCreated, store.StatusInTransit}, next)
	if errors.Is(err, store.ErrStaleTransition) {
		log.Info("Skipping status update: shipment changed meanwhile")
		return ResultUnchanged, nil
	}
	if err != nil {
		return "", err
	}

	log.Info("Updated shipment status",
		zap.String("from", string(sh.Status)),
		zap.String("to", string(next)),
	)
	return ResultUpdated, nil
}
