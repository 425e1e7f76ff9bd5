package shipment_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/labeler/internal/billing"
	"github.com/tournevent/labeler/internal/shipment"
	"github.com/tournevent/labeler/internal/store"
	"github.com/tournevent/labeler/internal/store/storetest"
	"github.com/tournevent/labeler/pkg/carrier"
	"github.com/tournevent/labeler/pkg/carrier/mock"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

type countingLedger struct {
	calls int
}

func (l *countingLedger) Record(context.Context, string, string) billing.Outcome {
	l.calls++
	return billing.Outcome{Reason: billing.ReasonFree, Free: true}
}

type chargingBackend struct {
	charges []billing.Charge
}

func (b *chargingBackend) Name() string { return "test" }

func (b *chargingBackend) ActiveLineItem(context.Context, *store.Tenant) (string, error) {
	return "line-item-1", nil
}

func (b *chargingBackend) Charge(_ context.Context, _ *store.Tenant, c billing.Charge) (*billing.ChargeResult, error) {
	b.charges = append(b.charges, c)
	return &billing.ChargeResult{RecordID: "usage-1"}, nil
}

// noFetch hides the mock's LabelFetcher implementation.
type noFetch struct {
	carrier.Adapter
}

type env struct {
	store   *store.Store
	gls     *mock.Adapter
	service *shipment.Service
	tenant  *store.Tenant
}

func newEnv(t *testing.T, ledger shipment.Ledger, opts ...func(*store.TenantInput)) *env {
	t.Helper()
	st := storetest.Open(t)
	gls := mock.New(carrier.GLS)

	registry := carrier.NewRegistry()
	registry.Register(carrier.GLS, gls.Constructor())
	registry.Register(carrier.Shipmondo, func(creds carrier.Credentials) (carrier.Adapter, error) {
		if creds.APIUser == "" {
			return nil, errors.New("api user is required")
		}
		return noFetch{mock.New(carrier.Shipmondo)}, nil
	})
	registry.Register(carrier.PostNord, nil)

	logger := otelzap.New(zap.NewNop())
	if ledger == nil {
		ledger = billing.NewLedger(billing.Config{}, st, nil, logger, nil)
	}

	return &env{
		store:   st,
		gls:     gls,
		service: shipment.NewService(st, registry, ledger, logger, nil),
		tenant:  storetest.Tenant(t, st, opts...),
	}
}

func validInput() shipment.CreateInput {
	return shipment.CreateInput{
		Product: "PARCEL",
		Recipient: shipment.Recipient{
			Name:   "Mette Hansen",
			Street: "Nørrebrogade 45",
			Zip:    "2200",
			City:   "København N",
			Email:  "mette@example.dk",
		},
		WeightKg: 2.5,
	}
}

func TestCreate_LabelCreated(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	sh, err := e.service.Create(ctx, e.tenant.ID, validInput())
	require.NoError(t, err)

	assert.Equal(t, store.StatusLabelCreated, sh.Status)
	assert.Equal(t, carrier.GLS, sh.Carrier)
	assert.Equal(t, "mock-ref-1", sh.CarrierRef)
	assert.NotEmpty(t, sh.TrackingNumber)
	assert.True(t, sh.HasLabel())
	assert.False(t, sh.Billed)

	stored, err := e.store.GetShipment(ctx, e.tenant.ID, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusLabelCreated, stored.Status)
	assert.Equal(t, sh.TrackingNumber, stored.TrackingNumber)

	tenant, err := e.store.GetTenant(ctx, e.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, tenant.FreeLabelsUsed)
}

func TestCreate_AppliesDefaults(t *testing.T) {
	e := newEnv(t, &countingLedger{})

	var got *carrier.ShipmentRequest
	e.gls.OnCreateShipment = func(_ context.Context, req *carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
		got = req
		return &carrier.ShipmentResult{CarrierRef: "ref", TrackingNumber: "TN1"}, nil
	}

	in := validInput()
	in.WeightKg = 0
	sh, err := e.service.Create(context.Background(), e.tenant.ID, in)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "DK", got.Recipient.Country)
	require.Len(t, got.Parcels, 1)
	assert.Equal(t, 1.0, got.Parcels[0].Weight)
	assert.Equal(t, sh.ID, got.Reference)
	assert.Equal(t, storetest.Sender.Name, got.Sender.Name)
}

func TestCreate_CarrierUnavailable(t *testing.T) {
	ctx := context.Background()
	ledger := &countingLedger{}
	e := newEnv(t, ledger)

	e.gls.OnCreateShipment = func(context.Context, *carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
		return nil, carrier.NewError(carrier.GLS, carrier.KindRemoteUnavailable, "upstream timeout")
	}

	sh, err := e.service.Create(ctx, e.tenant.ID, validInput())
	require.Error(t, err)
	assert.True(t, errors.Is(err, shipment.ErrLabelFailed))
	assert.True(t, carrier.IsRetryable(err))

	require.NotNil(t, sh)
	assert.Equal(t, store.StatusFailed, sh.Status)
	assert.Equal(t, 0, ledger.calls)

	stored, err := e.store.GetShipment(ctx, e.tenant.ID, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "upstream timeout")
	assert.Empty(t, stored.CarrierRef)
}

func TestCreate_OutcomeIsLabelCreatedOrFailed(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, &countingLedger{})

	fail := false
	e.gls.OnCreateShipment = func(context.Context, *carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
		fail = !fail
		if fail {
			return nil, carrier.NewError(carrier.GLS, carrier.KindInvalidRequest, "bad zip")
		}
		return &carrier.ShipmentResult{CarrierRef: "ref", TrackingNumber: "TN"}, nil
	}

	for i := 0; i < 4; i++ {
		_, _ = e.service.Create(ctx, e.tenant.ID, validInput())
	}

	list, err := e.service.List(ctx, e.tenant.ID, store.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 4)
	for _, sh := range list {
		assert.Contains(t, []store.Status{store.StatusLabelCreated, store.StatusFailed}, sh.Status)
	}

	failed, err := e.service.List(ctx, e.tenant.ID, store.ListFilter{Status: store.StatusFailed})
	require.NoError(t, err)
	assert.Len(t, failed, 2)
}

func TestCreate_RecordsLabelAfterCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ledger := &countingLedger{}
	e := newEnv(t, ledger)

	e.gls.OnCreateShipment = func(context.Context, *carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
		cancel()
		return &carrier.ShipmentResult{CarrierRef: "ref-1", TrackingNumber: "TN1", Label: []byte("%PDF")}, nil
	}

	sh, err := e.service.Create(ctx, e.tenant.ID, validInput())
	require.NoError(t, err)
	assert.Equal(t, store.StatusLabelCreated, sh.Status)
	assert.Equal(t, 1, ledger.calls)

	stored, err := e.store.GetShipment(context.Background(), e.tenant.ID, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusLabelCreated, stored.Status)
	assert.Equal(t, "ref-1", stored.CarrierRef)
}

func TestCreate_RecordsFailureAfterCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := newEnv(t, &countingLedger{})

	e.gls.OnCreateShipment = func(context.Context, *carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
		cancel()
		return nil, carrier.NewError(carrier.GLS, carrier.KindRemoteUnavailable, "upstream timeout")
	}

	sh, err := e.service.Create(ctx, e.tenant.ID, validInput())
	require.Error(t, err)
	require.NotNil(t, sh)

	stored, err := e.store.GetShipment(context.Background(), e.tenant.ID, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, stored.Status)
}

func TestCreate_ShipmentMovedDuringCarrierCall(t *testing.T) {
	ctx := context.Background()
	ledger := &countingLedger{}
	e := newEnv(t, ledger)

	var moved string
	e.gls.OnCreateShipment = func(ctx context.Context, _ *carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
		pending, err := e.store.ListShipments(ctx, e.tenant.ID, store.ListFilter{Status: store.StatusPending})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		moved = pending[0].ID
		require.NoError(t, e.store.UpdateStatus(ctx, moved, []store.Status{store.StatusPending}, store.StatusCancelled))
		return &carrier.ShipmentResult{CarrierRef: "ref-1", TrackingNumber: "TN1"}, nil
	}

	sh, err := e.service.Create(ctx, e.tenant.ID, validInput())
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrStaleTransition))
	assert.Nil(t, sh)
	assert.Equal(t, 0, ledger.calls)

	stored, err := e.store.GetShipment(ctx, e.tenant.ID, moved)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCancelled, stored.Status)
	assert.Empty(t, stored.CarrierRef)
}

func TestCreate_SenderNotConfigured(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil, func(in *store.TenantInput) {
		in.Sender = carrier.Address{Name: "Nordic Webshop ApS"}
	})

	_, err := e.service.Create(ctx, e.tenant.ID, validInput())
	require.Error(t, err)
	assert.True(t, errors.Is(err, shipment.ErrConfiguration))
	assert.Equal(t, "sender address not configured", err.Error())
	assert.Equal(t, 0, e.gls.Calls(mock.OpCreate))

	list, err := e.service.List(ctx, e.tenant.ID, store.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreate_CarrierErrors(t *testing.T) {
	tests := []struct {
		name    string
		carrier carrier.Code
		check   func(t *testing.T, err error)
	}{
		{
			name:    "missing credentials",
			carrier: carrier.Shipmondo,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, shipment.ErrConfiguration))
				assert.Contains(t, err.Error(), "no credentials configured for carrier SHIPMONDO")
			},
		},
		{
			name:    "not implemented",
			carrier: carrier.PostNord,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, carrier.ErrNotImplemented))
			},
		},
		{
			name:    "unknown",
			carrier: "UPS",
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, carrier.ErrUnknownCarrier))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newEnv(t, nil)

			in := validInput()
			in.Carrier = tt.carrier
			_, err := e.service.Create(ctx, e.tenant.ID, in)
			require.Error(t, err)
			tt.check(t, err)

			list, err := e.service.List(ctx, e.tenant.ID, store.ListFilter{})
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestCreate_Validation(t *testing.T) {
	e := newEnv(t, nil)

	in := validInput()
	in.Product = ""
	in.Recipient.Name = ""
	in.Recipient.Email = "not-an-email"
	in.WeightKg = 90

	_, err := e.service.Create(context.Background(), e.tenant.ID, in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shipment.ErrValidation))
	assert.Contains(t, err.Error(), "product failed required")
	assert.Contains(t, err.Error(), "recipient.name failed required")
	assert.Contains(t, err.Error(), "recipient.email failed email")
	assert.Contains(t, err.Error(), "weightKg failed lte=70")
	assert.Equal(t, 0, e.gls.Calls(mock.OpCreate))
}

func TestCreate_LastFreeLabelThenBillingInactive(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)
	storetest.UseFreeLabels(t, e.store, e.tenant.ID, 9)

	first, err := e.service.Create(ctx, e.tenant.ID, validInput())
	require.NoError(t, err)
	assert.False(t, first.Billed)

	records, err := e.store.ListBillingRecords(ctx, e.tenant.ID, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Free label (10/10)", records[0].Description)
	assert.True(t, records[0].Amount.IsZero())

	second, err := e.service.Create(ctx, e.tenant.ID, validInput())
	require.NoError(t, err)
	assert.Equal(t, store.StatusLabelCreated, second.Status)
	assert.False(t, second.Billed)

	records, err = e.store.ListBillingRecords(ctx, e.tenant.ID, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	tenant, err := e.store.GetTenant(ctx, e.tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, tenant.FreeLabelsUsed)
}

func TestCreate_Charged(t *testing.T) {
	ctx := context.Background()
	st := storetest.Open(t)
	backend := &chargingBackend{}
	logger := otelzap.New(zap.NewNop())

	gls := mock.New(carrier.GLS)
	registry := carrier.NewRegistry()
	registry.Register(carrier.GLS, gls.Constructor())

	tenant := storetest.Tenant(t, st, func(in *store.TenantInput) {
		in.FreeLabelsLimit = 1
		in.BillingActive = true
	})
	storetest.UseFreeLabels(t, st, tenant.ID, 1)

	svc := shipment.NewService(st, registry, billing.NewLedger(billing.Config{}, st, backend, logger, nil), logger, nil)

	sh, err := svc.Create(ctx, tenant.ID, validInput())
	require.NoError(t, err)
	assert.True(t, sh.Billed)

	require.Len(t, backend.charges, 1)
	assert.Equal(t, sh.ID, backend.charges[0].IdempotencyKey)

	stored, err := st.GetShipment(ctx, tenant.ID, sh.ID)
	require.NoError(t, err)
	assert.True(t, stored.Billed)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, &countingLedger{})

	sh, err := e.service.Create(ctx, e.tenant.ID, validInput())
	require.NoError(t, err)

	var cancelledRef string
	e.gls.OnCancelShipment = func(_ context.Context, ref string) error {
		cancelledRef = ref
		return nil
	}

	cancelled, err := e.service.Cancel(ctx, e.tenant.ID, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCancelled, cancelled.Status)
	assert.Equal(t, sh.CarrierRef, cancelledRef)

	again, err := e.service.Cancel(ctx, e.tenant.ID, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCancelled, again.Status)
	assert.Equal(t, 1, e.gls.Calls(mock.OpCancel))
}

func TestCancel_WithoutCarrierRef(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, &countingLedger{})

	e.gls.OnCreateShipment = func(context.Context, *carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
		return nil, carrier.NewError(carrier.GLS, carrier.KindInvalidRequest, "unknown product")
	}
	sh, err := e.service.Create(ctx, e.tenant.ID, validInput())
	require.Error(t, err)

	_, err = e.service.Cancel(ctx, e.tenant.ID, sh.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shipment.ErrInvalidState))
	assert.Equal(t, 0, e.gls.Calls(mock.OpCancel))

	stored, err := e.store.GetShipment(ctx, e.tenant.ID, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, stored.Status)
}

func TestCancel_Delivered(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, &countingLedger{})

	sh, err := e.service.Create(ctx, e.tenant.ID, validInput())
	require.NoError(t, err)
	require.NoError(t, e.store.UpdateStatus(ctx, sh.ID, []store.Status{store.StatusLabelCreated}, store.StatusDelivered))

	_, err = e.service.Cancel(ctx, e.tenant.ID, sh.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shipment.ErrInvalidState))
	assert.Equal(t, 0, e.gls.Calls(mock.OpCancel))
}

func TestCancel_CarrierError(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, &countingLedger{})

	sh, err := e.service.Create(ctx, e.tenant.ID, validInput())
	require.NoError(t, err)

	e.gls.OnCancelShipment = func(context.Context, string) error {
		return carrier.NewError(carrier.GLS, carrier.KindRemoteUnavailable, "down")
	}
	_, err = e.service.Cancel(ctx, e.tenant.ID, sh.ID)
	require.Error(t, err)
	assert.True(t, carrier.IsRetryable(err))

	stored, err := e.store.GetShipment(ctx, e.tenant.ID, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusLabelCreated, stored.Status)
}

func TestGet_OtherTenant(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, &countingLedger{})

	sh, err := e.service.Create(ctx, e.tenant.ID, validInput())
	require.NoError(t, err)

	other := storetest.Tenant(t, e.store, func(in *store.TenantInput) {
		in.ShopDomain = "other-shop.myshopify.com"
	})
	_, err = e.service.Get(ctx, other.ID, sh.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shipment.ErrShipmentNotFound))

	_, err = e.service.Cancel(ctx, other.ID, sh.ID)
	assert.True(t, errors.Is(err, shipment.ErrShipmentNotFound))
}

func TestLabel(t *testing.T) {
	ctx := context.Background()

	t.Run("stored", func(t *testing.T) {
		e := newEnv(t, &countingLedger{})
		sh, err := e.service.Create(ctx, e.tenant.ID, validInput())
		require.NoError(t, err)

		label, err := e.service.Label(ctx, e.tenant.ID, sh.ID, carrier.LabelA4PDF)
		require.NoError(t, err)
		assert.Equal(t, sh.Label, label)
		assert.Equal(t, 0, e.gls.Calls(mock.OpLabel))
	})

	t.Run("refetched once", func(t *testing.T) {
		e := newEnv(t, &countingLedger{})
		e.gls.OnCreateShipment = func(context.Context, *carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
			return &carrier.ShipmentResult{CarrierRef: "ref-9", TrackingNumber: "TN9"}, nil
		}
		sh, err := e.service.Create(ctx, e.tenant.ID, validInput())
		require.NoError(t, err)
		require.False(t, sh.HasLabel())

		label, err := e.service.Label(ctx, e.tenant.ID, sh.ID, carrier.LabelZPL)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4 refetched ref-9 zpl", string(label))

		again, err := e.service.Label(ctx, e.tenant.ID, sh.ID, carrier.LabelZPL)
		require.NoError(t, err)
		assert.Equal(t, label, again)
		assert.Equal(t, 1, e.gls.Calls(mock.OpLabel))
	})

	t.Run("not available", func(t *testing.T) {
		e := newEnv(t, &countingLedger{}, func(in *store.TenantInput) {
			in.DefaultCarrier = carrier.Shipmondo
			in.Credentials[carrier.Shipmondo] = carrier.Credentials{APIUser: "user", APIKey: "key"}
		})
		sh, err := e.service.Create(ctx, e.tenant.ID, validInput())
		require.NoError(t, err)
		require.NoError(t, e.store.StoreLabel(ctx, sh.ID, nil))

		_, err = e.service.Label(ctx, e.tenant.ID, sh.ID, carrier.LabelA4PDF)
		require.Error(t, err)
		assert.True(t, errors.Is(err, shipment.ErrLabelNotAvailable))
	})
}

func TestProducts(t *testing.T) {
	e := newEnv(t, nil)

	products, err := e.service.Products(context.Background(), e.tenant.ID, carrier.GLS)
	require.NoError(t, err)
	p, ok := carrier.FindProduct(products, "PICKUP")
	require.True(t, ok)
	assert.True(t, p.RequiresPickupPoint)

	_, err = e.service.Products(context.Background(), e.tenant.ID, carrier.Shipmondo)
	assert.True(t, errors.Is(err, shipment.ErrConfiguration))
}

func TestPickupPoints_Cached(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, nil)

	points, err := e.service.PickupPoints(ctx, e.tenant.ID, carrier.GLS, "2200", "")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "DK", points[0].Country)

	_, err = e.service.PickupPoints(ctx, e.tenant.ID, carrier.GLS, "2200", "DK")
	require.NoError(t, err)
	assert.Equal(t, 1, e.gls.Calls(mock.OpPickup))

	_, err = e.service.PickupPoints(ctx, e.tenant.ID, carrier.GLS, "8000", "DK")
	require.NoError(t, err)
	assert.Equal(t, 2, e.gls.Calls(mock.OpPickup))

	_, err = e.service.PickupPoints(ctx, e.tenant.ID, carrier.GLS, "", "DK")
	assert.True(t, errors.Is(err, shipment.ErrValidation))
}
