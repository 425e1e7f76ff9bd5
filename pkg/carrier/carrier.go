// Package carrier provides an abstraction layer over parcel carriers and shipping brokers.
package carrier

import (
	"context"
)

// Adapter defines the capabilities every carrier integration must implement.
type Adapter interface {
	// Code returns the carrier identifier (e.g., GLS, SHIPMONDO).
	Code() Code

	// CreateShipment books a shipment and returns its label and tracking info.
	CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResult, error)

	// CancelShipment cancels a previously created shipment.
	// A shipment the carrier already considers cancelled is not an error.
	CancelShipment(ctx context.Context, carrierRef string) error

	// GetTracking returns the tracking events for a parcel.
	GetTracking(ctx context.Context, trackingNumber string) (*TrackingResult, error)

	// Products returns the static product catalog. It never calls the network.
	Products() []Product

	// FindPickupPoints looks up pickup points near a postal code.
	FindPickupPoints(ctx context.Context, zip, country string) ([]PickupPoint, error)
}

// LabelFetcher is implemented by adapters that can download a label again after creation.
type LabelFetcher interface {
	FetchLabel(ctx context.Context, carrierRef string, format LabelFormat) ([]byte, error)
}
