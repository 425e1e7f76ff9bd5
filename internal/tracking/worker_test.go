package tracking_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/labeler/internal/store"
	"github.com/tournevent/labeler/internal/store/storetest"
	"github.com/tournevent/labeler/internal/tracking"
	"github.com/tournevent/labeler/pkg/carrier"
	"github.com/tournevent/labeler/pkg/carrier/mock"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// countingStore counts status writes.
type countingStore struct {
	*store.Store
	updates int
}

func (s *countingStore) UpdateStatus(ctx context.Context, id string, from []store.Status, to store.Status) error {
	s.updates++
	return s.Store.UpdateStatus(ctx, id, from, to)
}

type fixture struct {
	store  *countingStore
	gls    *mock.Adapter
	worker *tracking.Worker
	tenant *store.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := &countingStore{Store: storetest.Open(t)}
	gls := mock.New(carrier.GLS)

	registry := carrier.NewRegistry()
	registry.Register(carrier.GLS, gls.Constructor())

	return &fixture{
		store:  st,
		gls:    gls,
		worker: tracking.NewWorker(st, registry, otelzap.New(zap.NewNop()), nil),
		tenant: storetest.Tenant(t, st.Store),
	}
}

// shipment creates a shipment in LABEL_CREATED, or PENDING when trackingNumber is empty.
func (f *fixture) shipment(t *testing.T, trackingNumber string) *store.Shipment {
	t.Helper()
	ctx := context.Background()

	sh := &store.Shipment{TenantID: f.tenant.ID, Carrier: carrier.GLS, Product: "PARCEL", WeightKg: 1}
	require.NoError(t, f.store.CreateShipment(ctx, sh))
	if trackingNumber != "" {
		require.NoError(t, f.store.MarkLabelCreated(ctx, sh.ID, store.LabelResult{
			CarrierRef:     "ref-" + trackingNumber,
			TrackingNumber: trackingNumber,
		}))
	}
	return sh
}

func (f *fixture) status(t *testing.T, id string) store.Status {
	t.Helper()
	sh, err := f.store.GetShipmentByID(context.Background(), id)
	require.NoError(t, err)
	return sh.Status
}

func TestHandle_InTransit(t *testing.T) {
	f := newFixture(t)
	sh := f.shipment(t, "TN100")

	require.NoError(t, f.worker.Handle(context.Background(), tracking.Job{ShipmentID: sh.ID}))
	assert.Equal(t, store.StatusInTransit, f.status(t, sh.ID))
	assert.Equal(t, 1, f.store.updates)
}

func TestHandle_Delivered(t *testing.T) {
	f := newFixture(t)
	sh := f.shipment(t, "TN200")

	f.gls.OnGetTracking = func(_ context.Context, tn string) (*carrier.TrackingResult, error) {
		assert.Equal(t, "TN200", tn)
		return &carrier.TrackingResult{TrackingNumber: tn, Delivered: true}, nil
	}

	require.NoError(t, f.worker.Handle(context.Background(), tracking.Job{ShipmentID: sh.ID}))
	assert.Equal(t, store.StatusDelivered, f.status(t, sh.ID))
}

func TestHandle_WritesOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sh := f.shipment(t, "TN300")

	f.gls.OnGetTracking = func(_ context.Context, tn string) (*carrier.TrackingResult, error) {
		return &carrier.TrackingResult{TrackingNumber: tn}, nil
	}
	require.NoError(t, f.worker.Handle(ctx, tracking.Job{ShipmentID: sh.ID}))
	assert.Equal(t, store.StatusLabelCreated, f.status(t, sh.ID))
	assert.Equal(t, 0, f.store.updates)

	f.gls.OnGetTracking = nil
	require.NoError(t, f.worker.Handle(ctx, tracking.Job{ShipmentID: sh.ID}))
	require.NoError(t, f.worker.Handle(ctx, tracking.Job{ShipmentID: sh.ID}))
	assert.Equal(t, store.StatusInTransit, f.status(t, sh.ID))
	assert.Equal(t, 1, f.store.updates)
	assert.Equal(t, 3, f.gls.Calls(mock.OpTracking))
}

func TestHandle_Skips(t *testing.T) {
	ctx := context.Background()

	t.Run("missing shipment", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.worker.Handle(ctx, tracking.Job{ShipmentID: "shp_missing"}))
		assert.Equal(t, 0, f.gls.Calls(mock.OpTracking))
	})

	t.Run("no tracking number", func(t *testing.T) {
		f := newFixture(t)
		sh := f.shipment(t, "")
		require.NoError(t, f.worker.Handle(ctx, tracking.Job{ShipmentID: sh.ID}))
		assert.Equal(t, 0, f.gls.Calls(mock.OpTracking))
		assert.Equal(t, store.StatusPending, f.status(t, sh.ID))
	})

	for _, terminal := range []store.Status{store.StatusDelivered, store.StatusCancelled} {
		t.Run(string(terminal), func(t *testing.T) {
			f := newFixture(t)
			sh := f.shipment(t, "TN400")
			require.NoError(t, f.store.Store.UpdateStatus(ctx, sh.ID, []store.Status{store.StatusLabelCreated}, terminal))

			require.NoError(t, f.worker.Handle(ctx, tracking.Job{ShipmentID: sh.ID}))
			assert.Equal(t, 0, f.gls.Calls(mock.OpTracking))
			assert.Equal(t, 0, f.store.updates)
			assert.Equal(t, terminal, f.status(t, sh.ID))
		})
	}
}

func TestHandle_CarrierErrorReturned(t *testing.T) {
	f := newFixture(t)
	sh := f.shipment(t, "TN500")

	f.gls.OnGetTracking = func(context.Context, string) (*carrier.TrackingResult, error) {
		return nil, carrier.NewError(carrier.GLS, carrier.KindRemoteUnavailable, "gateway timeout")
	}

	err := f.worker.Handle(context.Background(), tracking.Job{ShipmentID: sh.ID})
	require.Error(t, err)
	assert.True(t, carrier.IsRetryable(err))
	assert.Equal(t, store.StatusLabelCreated, f.status(t, sh.ID))
	assert.Equal(t, 0, f.store.updates)
}
