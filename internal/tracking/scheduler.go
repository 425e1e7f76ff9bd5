package tracking

import (
	"context"
	"time"

	"github.com/tournevent/labeler/internal/store"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// OpenShipmentLister lists shipments whose tracking can still change.
type OpenShipmentLister interface {
	ListOpenShipments(ctx context.Context, limit int) ([]*store.Shipment, error)
}

// Enqueuer publishes tracking jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, shipmentID string) error
}

// Scheduler submits a tracking job for every open shipment.
type Scheduler struct {
	store  OpenShipmentLister
	queue  Enqueuer
	batch  int
	logger *otelzap.Logger
}

// NewScheduler creates a scheduler. A batch of 0 uses the store's default.
func NewScheduler(st OpenShipmentLister, q Enqueuer, batch int, logger *otelzap.Logger) *Scheduler {
	return &Scheduler{store: st, queue: q, batch: batch, logger: logger}
}

// RunOnce enqueues one job per open shipment and returns how many were enqueued.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	shipments, err := s.store.ListOpenShipments(ctx, s.batch)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, sh := range shipments {
		if err := s.queue.Enqueue(ctx, sh.ID); err != nil {
			return n, err
		}
		n++
	}

	s.logger.Ctx(ctx).Info("Scheduled tracking jobs", zap.Int("count", n))
	return n, nil
}

// Run calls RunOnce every interval until ctx is done. Failed rounds are logged.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Ctx(ctx).Error("Scheduling tracking jobs failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
