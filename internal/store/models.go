package store

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/labeler/pkg/carrier"
)

// Status is the lifecycle state of a shipment.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusLabelCreated Status = "LABEL_CREATED"
	StatusInTransit    Status = "IN_TRANSIT"
	StatusDelivered    Status = "DELIVERED"
	StatusCancelled    Status = "CANCELLED"
	StatusFailed       Status = "FAILED"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Tenant is a merchant account.
type Tenant struct {
	ID                     string
	ShopDomain             string
	Sender                 carrier.Address
	Credentials            map[carrier.Code]carrier.Credentials
	DefaultCarrier         carrier.Code
	FreeLabelsUsed         int
	FreeLabelsLimit        int
	BillingActive          bool
	BillingCustomerRef     string
	BillingSubscriptionRef string
	BillingAccessToken     string // Shopify Admin API token, never logged
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// SenderConfigured reports whether the sender address can be printed on a label.
func (t *Tenant) SenderConfigured() bool {
	return t.Sender.Name != "" && t.Sender.Street != "" && t.Sender.Zip != "" && t.Sender.City != ""
}

// Shipment is one label request.
type Shipment struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenantId"`
	Carrier        carrier.Code    `json:"carrier"`
	Product        string          `json:"product"`
	Recipient      carrier.Address `json:"recipient"`
	WeightKg       float64         `json:"weightKg"`
	LengthCm       float64         `json:"lengthCm,omitempty"`
	WidthCm        float64         `json:"widthCm,omitempty"`
	HeightCm       float64         `json:"heightCm,omitempty"`
	PickupPointID  string          `json:"pickupPointId,omitempty"`
	Reference      string          `json:"reference,omitempty"`
	Status         Status          `json:"status"`
	CarrierRef     string          `json:"carrierRef,omitempty"`
	TrackingNumber string          `json:"trackingNumber,omitempty"`
	TrackingURL    string          `json:"trackingUrl,omitempty"`
	Label          []byte          `json:"-"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	Billed         bool            `json:"billed"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// HasLabel reports whether label bytes are stored.
func (s *Shipment) HasLabel() bool {
	return len(s.Label) > 0
}

// BillingRecord is an append-only ledger entry.
type BillingRecord struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId"`
	ShipmentID  string          `json:"shipmentId,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description"`
	ExternalID  string          `json:"externalId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}
