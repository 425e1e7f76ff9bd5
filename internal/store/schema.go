package store

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id                       TEXT PRIMARY KEY,
	shop_domain              TEXT NOT NULL UNIQUE,
	sender_name              TEXT NOT NULL DEFAULT '',
	sender_street            TEXT NOT NULL DEFAULT '',
	sender_zip               TEXT NOT NULL DEFAULT '',
	sender_city              TEXT NOT NULL DEFAULT '',
	sender_country           TEXT NOT NULL DEFAULT '',
	sender_phone             TEXT NOT NULL DEFAULT '',
	sender_email             TEXT NOT NULL DEFAULT '',
	credentials              TEXT NOT NULL DEFAULT '',
	default_carrier          TEXT NOT NULL DEFAULT 'GLS',
	free_labels_used         INTEGER NOT NULL DEFAULT 0,
	free_labels_limit        INTEGER NOT NULL DEFAULT 10,
	billing_active           BOOLEAN NOT NULL DEFAULT FALSE,
	billing_customer_ref     TEXT NOT NULL DEFAULT '',
	billing_subscription_ref TEXT NOT NULL DEFAULT '',
	billing_token            TEXT NOT NULL DEFAULT '',
	created_at               {{timestamp}} NOT NULL,
	updated_at               {{timestamp}} NOT NULL
);

CREATE TABLE IF NOT EXISTS shipments (
	id                TEXT PRIMARY KEY,
	tenant_id         TEXT NOT NULL REFERENCES tenants(id),
	carrier           TEXT NOT NULL,
	product           TEXT NOT NULL,
	recipient_name    TEXT NOT NULL,
	recipient_street  TEXT NOT NULL,
	recipient_zip     TEXT NOT NULL,
	recipient_city    TEXT NOT NULL,
	recipient_country TEXT NOT NULL,
	recipient_phone   TEXT NOT NULL DEFAULT '',
	recipient_email   TEXT NOT NULL DEFAULT '',
	weight_kg         {{float}} NOT NULL,
	length_cm         {{float}} NOT NULL DEFAULT 0,
	width_cm          {{float}} NOT NULL DEFAULT 0,
	height_cm         {{float}} NOT NULL DEFAULT 0,
	pickup_point_id   TEXT NOT NULL DEFAULT '',
	reference         TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL,
	carrier_ref       TEXT NOT NULL DEFAULT '',
	tracking_number   TEXT NOT NULL DEFAULT '',
	tracking_url      TEXT NOT NULL DEFAULT '',
	label             {{blob}},
	error_message     TEXT NOT NULL DEFAULT '',
	billed            BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        {{timestamp}} NOT NULL,
	updated_at        {{timestamp}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_shipments_tenant ON shipments (tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_shipments_status ON shipments (status);

CREATE TABLE IF NOT EXISTS billing_records (
	id          TEXT PRIMARY KEY,
	tenant_id   TEXT NOT NULL REFERENCES tenants(id),
	shipment_id TEXT NOT NULL DEFAULT '',
	amount      NUMERIC(12,2) NOT NULL,
	currency    TEXT NOT NULL,
	description TEXT NOT NULL,
	external_id TEXT NOT NULL DEFAULT '',
	created_at  {{timestamp}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_billing_records_tenant ON billing_records (tenant_id, created_at);
`

func schemaFor(driver string) string {
	r := strings.NewReplacer(
		"{{timestamp}}", "TIMESTAMP",
		"{{float}}", "REAL",
		"{{blob}}", "BLOB",
	)
	if driver == DriverPostgres {
		r = strings.NewReplacer(
			"{{timestamp}}", "TIMESTAMPTZ",
			"{{float}}", "DOUBLE PRECISION",
			"{{blob}}", "BYTEA",
		)
	}
	return r.Replace(schema)
}

// Migrate creates missing tables and indexes. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaFor(s.db.DriverName()), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "applying schema statement %q", firstLine(stmt))
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
