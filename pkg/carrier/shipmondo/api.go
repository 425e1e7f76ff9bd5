package shipmondo

import (
	"context"
)

// APIClient defines the interface for Shipmondo REST API v3 operations.
type APIClient interface {
	// CreateShipment books a shipment through the broker. The response carries the label.
	CreateShipment(ctx context.Context, req *CreateShipmentRequest) (*Shipment, error)

	// CancelShipment deletes a booked shipment.
	CancelShipment(ctx context.Context, shipmentID string) error

	// GetShipmentLabels downloads the label of a shipment in the given format.
	GetShipmentLabels(ctx context.Context, shipmentID string, format string) (*LabelsResponse, error)

	// GetTracking retrieves the event history of a package.
	GetTracking(ctx context.Context, trackingNumber string) (*TrackingResponse, error)

	// GetPickupPoints lists service points of a carrier near a postal code.
	GetPickupPoints(ctx context.Context, query PickupPointQuery) ([]PickupPoint, error)
}

// ============================================================================
// API Request/Response Types (match Shipmondo REST API v3)
// ============================================================================

// Party types.
const (
	PartySender   = "sender"
	PartyReceiver = "receiver"
)

// CreateShipmentRequest represents a Shipmondo create-shipment request.
type CreateShipmentRequest struct {
	OwnAgreement bool          `json:"own_agreement"`
	ProductCode  string        `json:"product_code"`
	ServiceCodes string        `json:"service_codes,omitempty"`
	Parties      []Party       `json:"parties"`
	Parcels      []Parcel      `json:"parcels"`
	ServicePoint *ServicePoint `json:"service_point,omitempty"`
	Reference    string        `json:"reference,omitempty"`
	OrderID      string        `json:"order_id,omitempty"`
	Print        bool          `json:"print"`
}

// Party is a sender or receiver.
type Party struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Attention   string `json:"attention,omitempty"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2,omitempty"`
	PostalCode  string `json:"postal_code"`
	City        string `json:"city"`
	CountryCode string `json:"country_code"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// Parcel represents a parcel in a create request.
type Parcel struct {
	Weight            int     `json:"weight"` // grams
	Length            float64 `json:"length,omitempty"`
	Width             float64 `json:"width,omitempty"`
	Height            float64 `json:"height,omitempty"`
	Quantity          int     `json:"quantity,omitempty"`
	InternalReference string  `json:"internal_reference,omitempty"`
}

// ServicePoint selects the pickup point for service point products.
type ServicePoint struct {
	ID string `json:"id"`
}

// Shipment is a booked shipment as returned by the broker.
type Shipment struct {
	ID            int64            `json:"id"`
	CarrierCode   string           `json:"carrier_code"`
	ProductCode   string           `json:"product_code"`
	ServiceCodes  string           `json:"service_codes,omitempty"`
	Reference     string           `json:"reference,omitempty"`
	OrderID       string           `json:"order_id,omitempty"`
	LabelBase64   string           `json:"label_base64,omitempty"`
	Parcels       []ShipmentParcel `json:"parcels"`
	TrackingCodes []string         `json:"tracking_codes,omitempty"`
	TrackingLinks []string         `json:"tracking_links,omitempty"`
}

// ShipmentParcel is a booked parcel.
type ShipmentParcel struct {
	PkgNo             string `json:"pkg_no"`
	Weight            int    `json:"weight"`
	InternalReference string `json:"internal_reference,omitempty"`
}

// LabelsResponse is a downloaded label.
type LabelsResponse struct {
	Base64     string `json:"base64"`
	FileFormat string `json:"file_format"`
}

// TrackingResponse represents the tracking history of a package.
type TrackingResponse struct {
	TrackingNumber string  `json:"tracking_number"`
	CarrierCode    string  `json:"carrier_code"`
	Events         []Event `json:"events"`
}

// Event is a single tracking event.
type Event struct {
	Timestamp   string `json:"timestamp"` // RFC 3339
	Status      string `json:"status"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`
}

// PickupPointQuery selects pickup points.
type PickupPointQuery struct {
	CarrierCode string
	CountryCode string
	Zipcode     string
}

// PickupPoint is a carrier service point.
type PickupPoint struct {
	Number      string  `json:"number"`
	ID          string  `json:"id"`
	CompanyName string  `json:"company_name"`
	Name        string  `json:"name"`
	Address     string  `json:"address"`
	Address2    string  `json:"address2,omitempty"`
	Zipcode     string  `json:"zipcode"`
	City        string  `json:"city"`
	Country     string  `json:"country"`
	Distance    float64 `json:"distance,omitempty"`
	CarrierCode string  `json:"carrier_code"`
}
