package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"github.com/tournevent/labeler/pkg/carrier"
)

// DefaultListLimit bounds ListShipments when no limit is given.
const DefaultListLimit = 50

type shipmentRow struct {
	ID               string    `db:"id"`
	TenantID         string    `db:"tenant_id"`
	Carrier          string    `db:"carrier"`
	Product          string    `db:"product"`
	RecipientName    string    `db:"recipient_name"`
	RecipientStreet  string    `db:"recipient_street"`
	RecipientZip     string    `db:"recipient_zip"`
	RecipientCity    string    `db:"recipient_city"`
	RecipientCountry string    `db:"recipient_country"`
	RecipientPhone   string    `db:"recipient_phone"`
	RecipientEmail   string    `db:"recipient_email"`
	WeightKg         float64   `db:"weight_kg"`
	LengthCm         float64   `db:"length_cm"`
	WidthCm          float64   `db:"width_cm"`
	HeightCm         float64   `db:"height_cm"`
	PickupPointID    string    `db:"pickup_point_id"`
	Reference        string    `db:"reference"`
	Status           string    `db:"status"`
	CarrierRef       string    `db:"carrier_ref"`
	TrackingNumber   string    `db:"tracking_number"`
	TrackingURL      string    `db:"tracking_url"`
	Label            []byte    `db:"label"`
	ErrorMessage     string    `db:"error_message"`
	Billed           bool      `db:"billed"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

const shipmentColumns = `id, tenant_id, carrier, product, recipient_name, recipient_street,
	recipient_zip, recipient_city, recipient_country, recipient_phone, recipient_email,
	weight_kg, length_cm, width_cm, height_cm, pickup_point_id, reference, status,
	carrier_ref, tracking_number, tracking_url, label, error_message, billed,
	created_at, updated_at`

// listColumns omits the label payload.
const listColumns = `id, tenant_id, carrier, product, recipient_name, recipient_street,
	recipient_zip, recipient_city, recipient_country, recipient_phone, recipient_email,
	weight_kg, length_cm, width_cm, height_cm, pickup_point_id, reference, status,
	carrier_ref, tracking_number, tracking_url, error_message, billed,
	created_at, updated_at`

// ListFilter narrows ListShipments.
type ListFilter struct {
	Status Status
	Limit  int
}

// LabelResult holds the fields written when a label is created.
type LabelResult struct {
	CarrierRef     string
	TrackingNumber string
	TrackingURL    string
	Label          []byte
}

// CreateShipment inserts a new PENDING shipment and assigns its id.
func (s *Store) CreateShipment(ctx context.Context, sh *Shipment) error {
	now := s.now()
	sh.ID = newID(PrefixShipment)
	sh.Status = StatusPending
	sh.CreatedAt = now
	sh.UpdatedAt = now

	row := fromShipment(sh)
	_, err := s.q(ctx).NamedExecContext(ctx, `INSERT INTO shipments (`+shipmentColumns+`) VALUES (
		:id, :tenant_id, :carrier, :product, :recipient_name, :recipient_street,
		:recipient_zip, :recipient_city, :recipient_country, :recipient_phone, :recipient_email,
		:weight_kg, :length_cm, :width_cm, :height_cm, :pickup_point_id, :reference, :status,
		:carrier_ref, :tracking_number, :tracking_url, :label, :error_message, :billed,
		:created_at, :updated_at)`, row)
	return errors.Wrap(err, "inserting shipment")
}

// GetShipment loads a shipment owned by the tenant.
func (s *Store) GetShipment(ctx context.Context, tenantID, id string) (*Shipment, error) {
	q := s.q(ctx)
	var row shipmentRow
	err := q.GetContext(ctx, &row, q.Rebind(`SELECT `+shipmentColumns+` FROM shipments WHERE id = ? AND tenant_id = ?`), id, tenantID)
	if err != nil {
		return nil, notFound(err, "shipment", id)
	}
	return row.toShipment(), nil
}

// GetShipmentByID loads a shipment regardless of tenant.
func (s *Store) GetShipmentByID(ctx context.Context, id string) (*Shipment, error) {
	q := s.q(ctx)
	var row shipmentRow
	if err := q.GetContext(ctx, &row, q.Rebind(`SELECT `+shipmentColumns+` FROM shipments WHERE id = ?`), id); err != nil {
		return nil, notFound(err, "shipment", id)
	}
	return row.toShipment(), nil
}

// ListShipments returns a tenant's shipments, newest first, without label bytes.
func (s *Store) ListShipments(ctx context.Context, tenantID string, f ListFilter) ([]*Shipment, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT ` + listColumns + ` FROM shipments WHERE tenant_id = ?`
	args := []interface{}{tenantID}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	q := s.q(ctx)
	var rows []shipmentRow
	if err := q.SelectContext(ctx, &rows, q.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "listing shipments")
	}
	return lo.Map(rows, func(r shipmentRow, _ int) *Shipment { return r.toShipment() }), nil
}

// ListOpenShipments returns shipments whose tracking can still change.
func (s *Store) ListOpenShipments(ctx context.Context, limit int) ([]*Shipment, error) {
	if limit <= 0 {
		limit = 1000
	}

	query, args, err := sqlx.In(`SELECT `+listColumns+` FROM shipments
		WHERE status IN (?) AND tracking_number <> ''
		ORDER BY updated_at ASC LIMIT ?`,
		[]string{string(StatusLabelCreated), string(StatusInTransit)}, limit)
	if err != nil {
		return nil, errors.Wrap(err, "building open shipments query")
	}

	q := s.q(ctx)
	var rows []shipmentRow
	if err := q.SelectContext(ctx, &rows, q.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "listing open shipments")
	}
	return lo.Map(rows, func(r shipmentRow, _ int) *Shipment { return r.toShipment() }), nil
}

// MarkLabelCreated moves a PENDING shipment to LABEL_CREATED with the carrier's result.
func (s *Store) MarkLabelCreated(ctx context.Context, id string, res LabelResult) error {
	return s.transition(ctx, id, []Status{StatusPending},
		`status = ?, carrier_ref = ?, tracking_number = ?, tracking_url = ?, label = ?, error_message = ''`,
		string(StatusLabelCreated), res.CarrierRef, res.TrackingNumber, res.TrackingURL, res.Label)
}

// MarkFailed moves a PENDING shipment to FAILED with the causal message.
func (s *Store) MarkFailed(ctx context.Context, id, message string) error {
	if message == "" {
		message = "unknown error"
	}
	return s.transition(ctx, id, []Status{StatusPending},
		`status = ?, error_message = ?`, string(StatusFailed), message)
}

// UpdateStatus moves a shipment to status when it is currently in one of from.
func (s *Store) UpdateStatus(ctx context.Context, id string, from []Status, to Status) error {
	return s.transition(ctx, id, from, `status = ?`, string(to))
}

// StoreLabel saves label bytes fetched after creation.
func (s *Store) StoreLabel(ctx context.Context, id string, label []byte) error {
	q := s.q(ctx)
	_, err := q.ExecContext(ctx, q.Rebind(`UPDATE shipments SET label = ?, updated_at = ? WHERE id = ?`), label, s.now(), id)
	return errors.Wrapf(err, "storing label of shipment %s", id)
}

// MarkBilled flags a shipment as charged.
func (s *Store) MarkBilled(ctx context.Context, id string) error {
	q := s.q(ctx)
	_, err := q.ExecContext(ctx, q.Rebind(`UPDATE shipments SET billed = ?, updated_at = ? WHERE id = ?`), true, s.now(), id)
	return errors.Wrapf(err, "marking shipment %s billed", id)
}

// transition applies set only when the row is still in one of the expected statuses.
func (s *Store) transition(ctx context.Context, id string, from []Status, set string, args ...interface{}) error {
	expected := lo.Map(from, func(st Status, _ int) string { return string(st) })

	args = append(args, s.now(), id, expected)
	query, args, err := sqlx.In(`UPDATE shipments SET `+set+`, updated_at = ? WHERE id = ? AND status IN (?)`, args...)
	if err != nil {
		return errors.Wrap(err, "building transition")
	}

	q := s.q(ctx)
	res, err := q.ExecContext(ctx, q.Rebind(query), args...)
	if err != nil {
		return errors.Wrapf(err, "updating shipment %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "reading affected rows")
	}
	if n == 0 {
		return errors.Wrapf(ErrStaleTransition, "shipment %s not in %v", id, expected)
	}
	return nil
}

func fromShipment(sh *Shipment) shipmentRow {
	return shipmentRow{
		ID:               sh.ID,
		TenantID:         sh.TenantID,
		Carrier:          string(sh.Carrier),
		Product:          sh.Product,
		RecipientName:    sh.Recipient.Name,
		RecipientStreet:  sh.Recipient.Street,
		RecipientZip:     sh.Recipient.Zip,
		RecipientCity:    sh.Recipient.City,
		RecipientCountry: sh.Recipient.Country,
		RecipientPhone:   sh.Recipient.Phone,
		RecipientEmail:   sh.Recipient.Email,
		WeightKg:         sh.WeightKg,
		LengthCm:         sh.LengthCm,
		WidthCm:          sh.WidthCm,
		HeightCm:         sh.HeightCm,
		PickupPointID:    sh.PickupPointID,
		Reference:        sh.Reference,
		Status:           string(sh.Status),
		CarrierRef:       sh.CarrierRef,
		TrackingNumber:   sh.TrackingNumber,
		TrackingURL:      sh.TrackingURL,
		Label:            sh.Label,
		ErrorMessage:     sh.ErrorMessage,
		Billed:           sh.Billed,
		CreatedAt:        sh.CreatedAt,
		UpdatedAt:        sh.UpdatedAt,
	}
}

func (r shipmentRow) toShipment() *Shipment {
	return &Shipment{
		ID:       r.ID,
		TenantID: r.TenantID,
		Carrier:  carrier.Code(r.Carrier),
		Product:  r.Product,
		Recipient: carrier.Address{
			Name:    r.RecipientName,
			Street:  r.RecipientStreet,
			Zip:     r.RecipientZip,
			City:    r.RecipientCity,
			Country: r.RecipientCountry,
			Phone:   r.RecipientPhone,
			Email:   r.RecipientEmail,
		},
		WeightKg:       r.WeightKg,
		LengthCm:       r.LengthCm,
		WidthCm:        r.WidthCm,
		HeightCm:       r.HeightCm,
		PickupPointID:  r.PickupPointID,
		Reference:      r.Reference,
		Status:         Status(r.Status),
		CarrierRef:     r.CarrierRef,
		TrackingNumber: r.TrackingNumber,
		TrackingURL:    r.TrackingURL,
		Label:          r.Label,
		ErrorMessage:   r.ErrorMessage,
		Billed:         r.Billed,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}
