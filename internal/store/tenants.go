package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/tournevent/labeler/pkg/carrier"
)

// DefaultFreeLabelsLimit is the free allowance of a new tenant.
const DefaultFreeLabelsLimit = 10

type tenantRow struct {
	ID                     string    `db:"id"`
	ShopDomain             string    `db:"shop_domain"`
	SenderName             string    `db:"sender_name"`
	SenderStreet           string    `db:"sender_street"`
	SenderZip              string    `db:"sender_zip"`
	SenderCity             string    `db:"sender_city"`
	SenderCountry          string    `db:"sender_country"`
	SenderPhone            string    `db:"sender_phone"`
	SenderEmail            string    `db:"sender_email"`
	Credentials            string    `db:"credentials"`
	DefaultCarrier         string    `db:"default_carrier"`
	FreeLabelsUsed         int       `db:"free_labels_used"`
	FreeLabelsLimit        int       `db:"free_labels_limit"`
	BillingActive          bool      `db:"billing_active"`
	BillingCustomerRef     string    `db:"billing_customer_ref"`
	BillingSubscriptionRef string    `db:"billing_subscription_ref"`
	BillingToken           string    `db:"billing_token"`
	CreatedAt              time.Time `db:"created_at"`
	UpdatedAt              time.Time `db:"updated_at"`
}

// TenantInput holds the settings written by UpsertTenant.
type TenantInput struct {
	ShopDomain             string
	Sender                 carrier.Address
	Credentials            map[carrier.Code]carrier.Credentials
	DefaultCarrier         carrier.Code
	FreeLabelsLimit        int // 0 keeps the current limit, or the default for new tenants
	BillingActive          bool
	BillingCustomerRef     string
	BillingSubscriptionRef string
	BillingAccessToken     string
}

const tenantColumns = `id, shop_domain, sender_name, sender_street, sender_zip, sender_city,
	sender_country, sender_phone, sender_email, credentials, default_carrier,
	free_labels_used, free_labels_limit, billing_active, billing_customer_ref,
	billing_subscription_ref, billing_token, created_at, updated_at`

// UpsertTenant creates the tenant for a shop domain or replaces its settings.
// Free label usage is never reset.
func (s *Store) UpsertTenant(ctx context.Context, in TenantInput) (*Tenant, error) {
	if in.ShopDomain == "" {
		return nil, errors.New("shop domain is required")
	}
	if in.DefaultCarrier == "" {
		in.DefaultCarrier = carrier.GLS
	}

	sealed, err := s.sealCredentials(in.Credentials)
	if err != nil {
		return nil, err
	}
	sealedToken, err := s.seal(in.BillingAccessToken)
	if err != nil {
		return nil, err
	}

	var id string
	err = s.WithTx(ctx, func(ctx context.Context) error {
		q := s.q(ctx)
		now := s.now()

		var existing tenantRow
		err := q.GetContext(ctx, &existing, q.Rebind(`SELECT `+tenantColumns+` FROM tenants WHERE shop_domain = ?`), in.ShopDomain)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			limit := in.FreeLabelsLimit
			if limit == 0 {
				limit = DefaultFreeLabelsLimit
			}
			row := tenantRow{
				ID:              newID(PrefixTenant),
				ShopDomain:      in.ShopDomain,
				FreeLabelsLimit: limit,
				CreatedAt:       now,
			}
			applyTenantInput(&row, in, sealed, sealedToken, now)
			id = row.ID
			_, err = q.NamedExecContext(ctx, `INSERT INTO tenants (`+tenantColumns+`) VALUES (
				:id, :shop_domain, :sender_name, :sender_street, :sender_zip, :sender_city,
				:sender_country, :sender_phone, :sender_email, :credentials, :default_carrier,
				:free_labels_used, :free_labels_limit, :billing_active, :billing_customer_ref,
				:billing_subscription_ref, :billing_token, :created_at, :updated_at)`, row)
			return errors.Wrap(err, "inserting tenant")
		case err != nil:
			return errors.Wrap(err, "loading tenant by domain")
		}

		if in.FreeLabelsLimit > 0 {
			existing.FreeLabelsLimit = in.FreeLabelsLimit
		}
		applyTenantInput(&existing, in, sealed, sealedToken, now)
		id = existing.ID
		_, err = q.NamedExecContext(ctx, `UPDATE tenants SET
			sender_name = :sender_name, sender_street = :sender_street, sender_zip = :sender_zip,
			sender_city = :sender_city, sender_country = :sender_country, sender_phone = :sender_phone,
			sender_email = :sender_email, credentials = :credentials, default_carrier = :default_carrier,
			free_labels_limit = :free_labels_limit, billing_active = :billing_active,
			billing_customer_ref = :billing_customer_ref, billing_subscription_ref = :billing_subscription_ref,
			billing_token = :billing_token, updated_at = :updated_at
			WHERE id = :id`, existing)
		return errors.Wrap(err, "updating tenant")
	})
	if err != nil {
		return nil, err
	}
	return s.GetTenant(ctx, id)
}

func applyTenantInput(row *tenantRow, in TenantInput, sealed, sealedToken string, now time.Time) {
	row.SenderName = in.Sender.Name
	row.SenderStreet = in.Sender.Street
	row.SenderZip = in.Sender.Zip
	row.SenderCity = in.Sender.City
	row.SenderCountry = in.Sender.Country
	row.SenderPhone = in.Sender.Phone
	row.SenderEmail = in.Sender.Email
	row.Credentials = sealed
	row.DefaultCarrier = string(in.DefaultCarrier)
	row.BillingActive = in.BillingActive
	row.BillingCustomerRef = in.BillingCustomerRef
	row.BillingSubscriptionRef = in.BillingSubscriptionRef
	row.BillingToken = sealedToken
	row.UpdatedAt = now
}

// GetTenant loads a tenant and decrypts its carrier credentials.
func (s *Store) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	q := s.q(ctx)
	var row tenantRow
	if err := q.GetContext(ctx, &row, q.Rebind(`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`), id); err != nil {
		return nil, notFound(err, "tenant", id)
	}
	return s.toTenant(row)
}

// GetTenantByDomain loads a tenant by shop domain.
func (s *Store) GetTenantByDomain(ctx context.Context, domain string) (*Tenant, error) {
	q := s.q(ctx)
	var row tenantRow
	if err := q.GetContext(ctx, &row, q.Rebind(`SELECT `+tenantColumns+` FROM tenants WHERE shop_domain = ?`), domain); err != nil {
		return nil, notFound(err, "tenant", domain)
	}
	return s.toTenant(row)
}

// IncrementFreeLabels consumes one free label when the tenant is below its limit.
// It reports the counters after the increment and whether a free label was consumed.
func (s *Store) IncrementFreeLabels(ctx context.Context, tenantID string) (used, limit int, ok bool, err error) {
	q := s.q(ctx)
	res, err := q.ExecContext(ctx, q.Rebind(`UPDATE tenants
		SET free_labels_used = free_labels_used + 1, updated_at = ?
		WHERE id = ? AND free_labels_used < free_labels_limit`), s.now(), tenantID)
	if err != nil {
		return 0, 0, false, errors.Wrap(err, "incrementing free labels")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, 0, false, errors.Wrap(err, "reading affected rows")
	}

	var counters struct {
		Used  int `db:"free_labels_used"`
		Limit int `db:"free_labels_limit"`
	}
	if err := q.GetContext(ctx, &counters, q.Rebind(`SELECT free_labels_used, free_labels_limit FROM tenants WHERE id = ?`), tenantID); err != nil {
		return 0, 0, false, notFound(err, "tenant", tenantID)
	}
	return counters.Used, counters.Limit, n == 1, nil
}

// DeleteTenant removes a tenant with its billing records and shipments.
func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		q := s.q(ctx)
		for _, stmt := range []string{
			`DELETE FROM billing_records WHERE tenant_id = ?`,
			`DELETE FROM shipments WHERE tenant_id = ?`,
		} {
			if _, err := q.ExecContext(ctx, q.Rebind(stmt), id); err != nil {
				return errors.Wrapf(err, "deleting tenant %s data", id)
			}
		}

		res, err := q.ExecContext(ctx, q.Rebind(`DELETE FROM tenants WHERE id = ?`), id)
		if err != nil {
			return errors.Wrapf(err, "deleting tenant %s", id)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.Wrapf(ErrNotFound, "tenant %s", id)
		}
		return nil
	})
}

func (s *Store) sealCredentials(creds map[carrier.Code]carrier.Credentials) (string, error) {
	if len(creds) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(creds)
	if err != nil {
		return "", errors.Wrap(err, "encoding credentials")
	}
	return s.seal(string(raw))
}

func (s *Store) seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	sealed, err := s.box.Encrypt(plaintext)
	if err != nil {
		return "", errors.Wrap(err, "encrypting secret")
	}
	return sealed, nil
}

func (s *Store) toTenant(row tenantRow) (*Tenant, error) {
	creds := map[carrier.Code]carrier.Credentials{}
	if row.Credentials != "" {
		raw, err := s.box.Decrypt(row.Credentials)
		if err != nil {
			return nil, errors.Wrapf(err, "decrypting credentials of tenant %s", row.ID)
		}
		if err := json.Unmarshal([]byte(raw), &creds); err != nil {
			return nil, errors.Wrapf(err, "decoding credentials of tenant %s", row.ID)
		}
	}

	var token string
	if row.BillingToken != "" {
		var err error
		if token, err = s.box.Decrypt(row.BillingToken); err != nil {
			return nil, errors.Wrapf(err, "decrypting billing token of tenant %s", row.ID)
		}
	}

	return &Tenant{
		ID:         row.ID,
		ShopDomain: row.ShopDomain,
		Sender: carrier.Address{
			Name:    row.SenderName,
			Street:  row.SenderStreet,
			Zip:     row.SenderZip,
			City:    row.SenderCity,
			Country: row.SenderCountry,
			Phone:   row.SenderPhone,
			Email:   row.SenderEmail,
		},
		Credentials:            creds,
		DefaultCarrier:         carrier.Code(row.DefaultCarrier),
		FreeLabelsUsed:         row.FreeLabelsUsed,
		FreeLabelsLimit:        row.FreeLabelsLimit,
		BillingActive:          row.BillingActive,
		BillingCustomerRef:     row.BillingCustomerRef,
		BillingSubscriptionRef: row.BillingSubscriptionRef,
		BillingAccessToken:     token,
		CreatedAt:              row.CreatedAt,
		UpdatedAt:              row.UpdatedAt,
	}, nil
}
