// Package mock provides a configurable carrier adapter for testing.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tournevent/labeler/pkg/carrier"
)

// Operation names used by Calls.
const (
	OpCreate   = "create"
	OpCancel   = "cancel"
	OpTracking = "tracking"
	OpPickup   = "pickup"
	OpLabel    = "label"
)

// Adapter is a mock carrier adapter. Hooks override the default behavior.
type Adapter struct {
	code carrier.Code

	OnCreateShipment   func(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.ShipmentResult, error)
	OnCancelShipment   func(ctx context.Context, carrierRef string) error
	OnGetTracking      func(ctx context.Context, trackingNumber string) (*carrier.TrackingResult, error)
	OnFindPickupPoints func(ctx context.Context, zip, country string) ([]carrier.PickupPoint, error)
	OnFetchLabel       func(ctx context.Context, carrierRef string, format carrier.LabelFormat) ([]byte, error)

	ProductList []carrier.Product

	mu    sync.Mutex
	calls map[string]int
	seq   int
}

// New creates a new mock adapter for the given code.
func New(code carrier.Code) *Adapter {
	return &Adapter{
		code:  code,
		calls: make(map[string]int),
		ProductList: []carrier.Product{
			{Code: "PARCEL", Name: "Mock Parcel", Description: "Home delivery"},
			{Code: "PICKUP", Name: "Mock Pickup", Description: "Pickup point delivery", RequiresPickupPoint: true},
		},
	}
}

// Constructor returns a registry constructor that always yields this adapter.
func (a *Adapter) Constructor() carrier.Constructor {
	return func(carrier.Credentials) (carrier.Adapter, error) {
		return a, nil
	}
}

// Calls returns how many times an operation was invoked.
func (a *Adapter) Calls(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[op]
}

func (a *Adapter) record(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[op]++
	a.seq++
	return a.seq
}

// Code returns the carrier code.
func (a *Adapter) Code() carrier.Code {
	return a.code
}

// CreateShipment returns a generated booking.
func (a *Adapter) CreateShipment(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
	n := a.record(OpCreate)
	if a.OnCreateShipment != nil {
		return a.OnCreateShipment(ctx, req)
	}

	trackingNumber := fmt.Sprintf("MOCK%010d", n)
	return &carrier.ShipmentResult{
		CarrierRef:     fmt.Sprintf("mock-ref-%d", n),
		TrackingNumber: trackingNumber,
		TrackingURL:    "https://track.mock/" + trackingNumber,
		Label:          []byte("%PDF-1.4 mock label"),
	}, nil
}

// CancelShipment succeeds unless a hook says otherwise.
func (a *Adapter) CancelShipment(ctx context.Context, carrierRef string) error {
	a.record(OpCancel)
	if a.OnCancelShipment != nil {
		return a.OnCancelShipment(ctx, carrierRef)
	}
	return nil
}

// GetTracking returns a single in-transit event.
func (a *Adapter) GetTracking(ctx context.Context, trackingNumber string) (*carrier.TrackingResult, error) {
	a.record(OpTracking)
	if a.OnGetTracking != nil {
		return a.OnGetTracking(ctx, trackingNumber)
	}
	return &carrier.TrackingResult{
		TrackingNumber: trackingNumber,
		Events: []carrier.TrackingEvent{
			{Timestamp: time.Now().UTC(), Status: "IN_TRANSIT", Description: "Parcel is in transit"},
		},
	}, nil
}

// Products returns the configured catalog.
func (a *Adapter) Products() []carrier.Product {
	return a.ProductList
}

// FindPickupPoints returns one pickup point per call.
func (a *Adapter) FindPickupPoints(ctx context.Context, zip, country string) ([]carrier.PickupPoint, error) {
	a.record(OpPickup)
	if a.OnFindPickupPoints != nil {
		return a.OnFindPickupPoints(ctx, zip, country)
	}
	return []carrier.PickupPoint{
		{ID: "mock-shop-1", Name: "Mock Shop", Street: "Mock Street 1", Zip: zip, City: "Mock City", Country: country},
	}, nil
}

// FetchLabel returns a placeholder label.
func (a *Adapter) FetchLabel(ctx context.Context, carrierRef string, format carrier.LabelFormat) ([]byte, error) {
	a.record(OpLabel)
	if a.OnFetchLabel != nil {
		return a.OnFetchLabel(ctx, carrierRef, format)
	}
	return []byte(fmt.Sprintf("%%PDF-1.4 refetched %s %s", carrierRef, format)), nil
}

var (
	_ carrier.Adapter      = (*Adapter)(nil)
	_ carrier.LabelFetcher = (*Adapter)(nil)
)
