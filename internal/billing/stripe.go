package billing

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/stripe/stripe-go/v82"
	"github.com/tournevent/labeler/internal/store"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// StripeAPI is the subset of the Stripe client used for billing.
type StripeAPI interface {
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	CreateInvoiceItem(ctx context.Context, params *stripe.InvoiceItemCreateParams) (*stripe.InvoiceItem, error)
}

type stripeClient struct {
	client *stripe.Client
}

// NewStripeAPI wraps a Stripe client for the secret key.
func NewStripeAPI(secretKey string) StripeAPI {
	return &stripeClient{client: stripe.NewClient(secretKey, nil)}
}

func (c *stripeClient) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	return c.client.V1Subscriptions.Retrieve(ctx, id, &stripe.SubscriptionRetrieveParams{})
}

func (c *stripeClient) CreateInvoiceItem(ctx context.Context, params *stripe.InvoiceItemCreateParams) (*stripe.InvoiceItem, error) {
	return c.client.V1InvoiceItems.Create(ctx, params)
}

// StripeBackend charges usage as invoice items on the tenant's Stripe subscription.
// The tenant's billing subscription ref is the line item.
type StripeBackend struct {
	api    StripeAPI
	logger *otelzap.Logger
}

// NewStripeBackend creates a Stripe billing backend.
func NewStripeBackend(api StripeAPI, logger *otelzap.Logger) *StripeBackend {
	return &StripeBackend{api: api, logger: logger}
}

// Name returns "stripe".
func (b *StripeBackend) Name() string { return "stripe" }

// ActiveLineItem returns the tenant's subscription id when the subscription is active or trialing.
func (b *StripeBackend) ActiveLineItem(ctx context.Context, tenant *store.Tenant) (string, error) {
	if tenant.BillingSubscriptionRef == "" {
		return "", nil
	}

	sub, err := b.api.RetrieveSubscription(ctx, tenant.BillingSubscriptionRef)
	if err != nil {
		return "", errors.Wrapf(err, "retrieving subscription %s", tenant.BillingSubscriptionRef)
	}

	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return sub.ID, nil
	default:
		b.logger.Ctx(ctx).Info("Stripe subscription not billable",
			zap.String("subscription_id", sub.ID),
			zap.String("status", string(sub.Status)),
		)
		return "", nil
	}
}

// Charge creates a pending invoice item. Invalid request errors are reported as user errors.
func (b *StripeBackend) Charge(ctx context.Context, tenant *store.Tenant, charge Charge) (*ChargeResult, error) {
	params := &stripe.InvoiceItemCreateParams{
		Customer:     stripe.String(tenant.BillingCustomerRef),
		Subscription: stripe.String(charge.LineItemID),
		Currency:     stripe.String(strings.ToLower(charge.Currency)),
		Description:  stripe.String(charge.Description),
		Amount:       stripe.Int64(charge.Amount.Shift(2).Round(0).IntPart()),
		Metadata: map[string]string{
			"shipment_id": charge.IdempotencyKey,
			"tenant_id":   tenant.ID,
		},
	}
	params.SetIdempotencyKey("label-" + charge.IdempotencyKey)

	item, err := b.api.CreateInvoiceItem(ctx, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeInvalidRequest {
			return &ChargeResult{UserErrors: []UserError{{
				Field:   []string{stripeErr.Param},
				Message: stripeErr.Msg,
			}}}, nil
		}
		return nil, errors.Wrap(err, "creating invoice item")
	}
	return &ChargeResult{RecordID: item.ID}, nil
}
