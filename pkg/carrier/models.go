package carrier

import (
	"time"
)

// Code identifies a carrier or broker integration.
type Code string

const (
	GLS       Code = "GLS"
	Shipmondo Code = "SHIPMONDO"
	PostNord  Code = "POSTNORD"
	DAO       Code = "DAO"
	Bring     Code = "BRING"
)

// Codes returns every carrier code known to the system, implemented or not.
func Codes() []Code {
	return []Code{GLS, Shipmondo, PostNord, DAO, Bring}
}

// ParseCode validates a carrier code string.
func ParseCode(s string) (Code, bool) {
	for _, c := range Codes() {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// LabelFormat is the output format requested when re-downloading a label.
type LabelFormat string

const (
	LabelA4PDF    LabelFormat = "a4_pdf"
	Label10x19PDF LabelFormat = "10x19_pdf"
	LabelZPL      LabelFormat = "zpl"
)

// ParseLabelFormat returns the label format for s, defaulting to A4 PDF.
func ParseLabelFormat(s string) (LabelFormat, bool) {
	switch LabelFormat(s) {
	case "":
		return LabelA4PDF, true
	case LabelA4PDF, Label10x19PDF, LabelZPL:
		return LabelFormat(s), true
	default:
		return "", false
	}
}

// Address represents a sender or recipient address.
type Address struct {
	Name    string `json:"name"`
	Street  string `json:"street"`
	Zip     string `json:"zip"`
	City    string `json:"city"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Parcel represents a single physical parcel.
type Parcel struct {
	Weight    float64 `json:"weight"` // kg
	Length    float64 `json:"length,omitempty"`
	Width     float64 `json:"width,omitempty"`
	Height    float64 `json:"height,omitempty"`
	Reference string  `json:"reference,omitempty"`
}

// ShipmentRequest is the carrier-neutral request to book a shipment.
type ShipmentRequest struct {
	Sender        Address
	Recipient     Address
	Parcels       []Parcel
	Product       string
	PickupPointID string
	Reference     string
}

// ShipmentResult is returned by a successful booking.
type ShipmentResult struct {
	CarrierRef     string
	TrackingNumber string
	TrackingURL    string
	Label          []byte
}

// TrackingEvent is a single scan or status update.
type TrackingEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
}

// TrackingResult is the ordered event history of a parcel.
type TrackingResult struct {
	TrackingNumber string
	Delivered      bool
	Events         []TrackingEvent
}

// Product is an entry in a carrier's product catalog.
type Product struct {
	Code                string `json:"code"`
	Name                string `json:"name"`
	Description         string `json:"description"`
	RequiresPickupPoint bool   `json:"requiresPickupPoint"`
}

// PickupPoint is a location where a recipient can collect a parcel.
type PickupPoint struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Street   string `json:"street"`
	Zip      string `json:"zip"`
	City     string `json:"city"`
	Country  string `json:"country"`
	Distance int    `json:"distance,omitempty"` // meters
}

// Credentials is a tenant's secret bundle for one carrier.
type Credentials struct {
	CustomerID string `json:"customerId,omitempty"`
	APIUser    string `json:"apiUser,omitempty"`
	APIKey     string `json:"apiKey,omitempty"`
	BaseURL    string `json:"baseUrl,omitempty"`
}

// String redacts the secret parts so credentials never end up in logs.
func (c Credentials) String() string {
	return "carrier.Credentials{CustomerID:" + c.CustomerID + ", APIUser:" + c.APIUser + ", APIKey:[redacted]}"
}

// FindProduct returns the product with the given code.
func FindProduct(products []Product, code string) (Product, bool) {
	for _, p := range products {
		if p.Code == code {
			return p, true
		}
	}
	return Product{}, false
}
