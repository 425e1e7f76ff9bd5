package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type billingRow struct {
	ID          string          `db:"id"`
	TenantID    string          `db:"tenant_id"`
	ShipmentID  string          `db:"shipment_id"`
	Amount      decimal.Decimal `db:"amount"`
	Currency    string          `db:"currency"`
	Description string          `db:"description"`
	ExternalID  string          `db:"external_id"`
	CreatedAt   time.Time       `db:"created_at"`
}

// CreateBillingRecord appends a ledger entry and assigns its id.
func (s *Store) CreateBillingRecord(ctx context.Context, rec *BillingRecord) error {
	rec.ID = newID(PrefixBilling)
	rec.CreatedAt = s.now()

	_, err := s.q(ctx).NamedExecContext(ctx, `INSERT INTO billing_records
		(id, tenant_id, shipment_id, amount, currency, description, external_id, created_at)
		VALUES (:id, :tenant_id, :shipment_id, :amount, :currency, :description, :external_id, :created_at)`,
		billingRow(*rec))
	return errors.Wrap(err, "inserting billing record")
}

// ListBillingRecords returns a tenant's ledger, newest first.
func (s *Store) ListBillingRecords(ctx context.Context, tenantID string, limit int) ([]*BillingRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	q := s.q(ctx)
	var rows []billingRow
	err := q.SelectContext(ctx, &rows, q.Rebind(`SELECT id, tenant_id, shipment_id, amount, currency,
		description, external_id, created_at
		FROM billing_records WHERE tenant_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`), tenantID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing billing records")
	}
	return lo.Map(rows, func(r billingRow, _ int) *BillingRecord {
		rec := BillingRecord(r)
		return &rec
	}), nil
}
