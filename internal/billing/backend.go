// Package billing records label usage against the free tier and a metered billing backend.
package billing

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tournevent/labeler/internal/store"
)

// Charge is a metered usage submission.
type Charge struct {
	LineItemID     string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	IdempotencyKey string
}

// UserError is a field level rejection reported by the billing backend.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// ChargeResult is the backend's answer to a charge.
// Either RecordID or UserErrors is set.
type ChargeResult struct {
	RecordID   string
	UserErrors []UserError
}

// Backend submits metered charges to a billing provider.
type Backend interface {
	// Name identifies the provider in logs.
	Name() string

	// ActiveLineItem returns the tenant's metered line item, or "" when none is active.
	// It is queried on every charge.
	ActiveLineItem(ctx context.Context, tenant *store.Tenant) (string, error)

	// Charge submits a usage charge against a line item.
	Charge(ctx context.Context, tenant *store.Tenant, charge Charge) (*ChargeResult, error)
}

// NoopBackend is used when no billing provider is configured. It never has an active line item.
type NoopBackend struct{}

// Name returns "none".
func (NoopBackend) Name() string { return "none" }

// ActiveLineItem reports no line item.
func (NoopBackend) ActiveLineItem(context.Context, *store.Tenant) (string, error) { return "", nil }

// Charge is never reached because there is no line item.
func (NoopBackend) Charge(context.Context, *store.Tenant, Charge) (*ChargeResult, error) {
	return &ChargeResult{UserErrors: []UserError{{Message: "no billing provider configured"}}}, nil
}

func joinUserErrors(errs []UserError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if len(e.Field) > 0 {
			msgs = append(msgs, strings.Join(e.Field, ".")+": "+e.Message)
			continue
		}
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}
