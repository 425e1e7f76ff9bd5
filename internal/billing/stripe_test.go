package billing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/tournevent/labeler/internal/billing"
	"github.com/tournevent/labeler/internal/store"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

type fakeStripe struct {
	sub      *stripe.Subscription
	subErr   error
	itemErr  error
	captured *stripe.InvoiceItemCreateParams
}

func (f *fakeStripe) RetrieveSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	if f.subErr != nil {
		return nil, f.subErr
	}
	return f.sub, nil
}

func (f *fakeStripe) CreateInvoiceItem(_ context.Context, params *stripe.InvoiceItemCreateParams) (*stripe.InvoiceItem, error) {
	f.captured = params
	if f.itemErr != nil {
		return nil, f.itemErr
	}
	return &stripe.InvoiceItem{ID: "ii_123"}, nil
}

var stripeTenant = &store.Tenant{ID: "tnt_1", BillingCustomerRef: "cus_1", BillingSubscriptionRef: "sub_1"}

func TestStripe_ActiveLineItem(t *testing.T) {
	api := &fakeStripe{sub: &stripe.Subscription{ID: "sub_1", Status: stripe.SubscriptionStatusActive}}
	backend := billing.NewStripeBackend(api, otelzap.New(zap.NewNop()))

	id, err := backend.ActiveLineItem(context.Background(), stripeTenant)
	require.NoError(t, err)
	assert.Equal(t, "sub_1", id)

	api.sub.Status = stripe.SubscriptionStatusCanceled
	id, err = backend.ActiveLineItem(context.Background(), stripeTenant)
	require.NoError(t, err)
	assert.Empty(t, id)

	id, err = backend.ActiveLineItem(context.Background(), &store.Tenant{ID: "tnt_2"})
	require.NoError(t, err)
	assert.Empty(t, id)

	api.subErr = errors.New("network down")
	_, err = backend.ActiveLineItem(context.Background(), stripeTenant)
	assert.Error(t, err)
}

func TestStripe_Charge(t *testing.T) {
	api := &fakeStripe{}
	backend := billing.NewStripeBackend(api, otelzap.New(zap.NewNop()))

	res, err := backend.Charge(context.Background(), stripeTenant, billing.Charge{
		LineItemID:     "sub_1",
		Amount:         decimal.RequireFromString("2.00"),
		Currency:       "DKK",
		Description:    billing.PaidDescription,
		IdempotencyKey: "shp_1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ii_123", res.RecordID)

	require.NotNil(t, api.captured)
	assert.Equal(t, int64(200), *api.captured.Amount)
	assert.Equal(t, "dkk", *api.captured.Currency)
	assert.Equal(t, "cus_1", *api.captured.Customer)
	assert.Equal(t, "sub_1", *api.captured.Subscription)
	assert.Equal(t, "shp_1", api.captured.Metadata["shipment_id"])
}

func TestStripe_ChargeInvalidRequest(t *testing.T) {
	api := &fakeStripe{itemErr: &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Msg: "No such customer: 'cus_1'", Param: "customer"}}
	backend := billing.NewStripeBackend(api, otelzap.New(zap.NewNop()))

	res, err := backend.Charge(context.Background(), stripeTenant, billing.Charge{Amount: decimal.RequireFromString("2"), Currency: "DKK", IdempotencyKey: "shp_1"})
	require.NoError(t, err)
	require.Len(t, res.UserErrors, 1)
	assert.Equal(t, []string{"customer"}, res.UserErrors[0].Field)
}

func TestStripe_ChargeAPIError(t *testing.T) {
	api := &fakeStripe{itemErr: &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "internal"}}
	backend := billing.NewStripeBackend(api, otelzap.New(zap.NewNop()))

	_, err := backend.Charge(context.Background(), stripeTenant, billing.Charge{Amount: decimal.RequireFromString("2"), Currency: "DKK"})
	assert.Error(t, err)
}
