package gls

import (
	"context"
)

// APIClient defines the interface for GLS ShipIT API operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// CreateShipment books a consignment and returns its parcels and label.
	CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error)

	// CancelShipment deletes a consignment.
	CancelShipment(ctx context.Context, consignmentID string) error

	// GetTracking retrieves the event history of a parcel.
	GetTracking(ctx context.Context, parcelNumber string) (*TrackingResponse, error)

	// FindParcelShops lists parcel shops near a postal code.
	FindParcelShops(ctx context.Context, zip, countryCode string) (*ParcelShopResponse, error)
}

// ============================================================================
// API Request/Response Types (match GLS ShipIT JSON structure)
// ============================================================================

// ShipmentRequest represents a GLS create-shipment request.
type ShipmentRequest struct {
	Customerid   string    `json:"Customerid"`
	Contactid    string    `json:"Contactid,omitempty"`
	Shipmentdate string    `json:"Shipmentdate"` // YYYYMMDD
	Reference    string    `json:"Reference,omitempty"`
	Addresses    Addresses `json:"Addresses"`
	Parcels      []Parcel  `json:"Parcels"`
}

// Addresses groups the parties of a consignment.
type Addresses struct {
	AlternativeShipper *Address `json:"AlternativeShipper,omitempty"`
	Delivery           Address  `json:"Delivery"`
}

// Address represents a GLS address block.
type Address struct {
	Name1        string `json:"Name1"`
	Name2        string `json:"Name2,omitempty"`
	Street1      string `json:"Street1"`
	Street2      string `json:"Street2,omitempty"`
	ZipCode      string `json:"ZipCode"`
	City         string `json:"City"`
	CountryCode  string `json:"CountryCode"`
	ContactPhone string `json:"ContactPhone,omitempty"`
	ContactEmail string `json:"ContactEmail,omitempty"`
}

// Parcel represents a GLS parcel.
type Parcel struct {
	Weight    int       `json:"Weight"` // grams
	Reference string    `json:"Reference,omitempty"`
	Services  []Service `json:"Services,omitempty"`
}

// Service is an add-on service attached to a parcel.
type Service struct {
	ServiceName  string `json:"ServiceName"`
	ParcelShopID string `json:"ParcelShopId,omitempty"`
}

// ShipmentResponse represents a GLS create-shipment response.
type ShipmentResponse struct {
	Parcels       []ParcelInfo `json:"Parcels"`
	ConsignmentID string       `json:"ConsignmentId"`
	PdfData       string       `json:"PdfData"` // base64 encoded PDF
}

// ParcelInfo is the carrier-assigned identity of a parcel.
type ParcelInfo struct {
	ParcelNumber string `json:"ParcelNumber"`
	TrackURL     string `json:"TrackUrl"`
}

// TrackingResponse represents GLS tracking events.
type TrackingResponse struct {
	Events []Event `json:"Events"`
}

// Event is a single GLS tracking event.
type Event struct {
	EventDate        string `json:"EventDate"` // 2006-01-02
	EventTime        string `json:"EventTime"` // 15:04:05
	EventDescription string `json:"EventDescription"`
	EventLocation    string `json:"EventLocation,omitempty"`
	StatusCode       string `json:"StatusCode"`
}

// ParcelShopResponse lists parcel shops.
type ParcelShopResponse struct {
	ParcelShops []ParcelShop `json:"ParcelShops"`
}

// ParcelShop is a GLS pickup location.
type ParcelShop struct {
	ParcelShopID   string `json:"ParcelShopId"`
	CompanyName    string `json:"CompanyName"`
	Streetname     string `json:"Streetname"`
	ZipCode        string `json:"ZipCode"`
	CityName       string `json:"CityName"`
	CountryCode    string `json:"CountryCode"`
	DistanceMeters int    `json:"DistanceMeters,omitempty"`
}
