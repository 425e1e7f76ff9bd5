package shipmondo

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tournevent/labeler/pkg/carrier"
)

var mockShipmentSeq atomic.Int64

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnCreateShipment    func(ctx context.Context, req *CreateShipmentRequest) (*Shipment, error)
	OnCancelShipment    func(ctx context.Context, shipmentID string) error
	OnGetShipmentLabels func(ctx context.Context, shipmentID string, format string) (*LabelsResponse, error)
	OnGetTracking       func(ctx context.Context, trackingNumber string) (*TrackingResponse, error)
	OnGetPickupPoints   func(ctx context.Context, query PickupPointQuery) ([]PickupPoint, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

func (m *MockAPIClient) simulate() error {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}
	if m.SimulateErrors {
		return carrier.NewError(carrier.Shipmondo, carrier.KindRemoteUnavailable, "simulated API error").WithStatusCode(503)
	}
	return nil
}

// CreateShipment returns a mock booking.
func (m *MockAPIClient) CreateShipment(ctx context.Context, req *CreateShipmentRequest) (*Shipment, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}

	if m.OnCreateShipment != nil {
		return m.OnCreateShipment(ctx, req)
	}

	id := 1000000 + mockShipmentSeq.Add(1)
	parcels := make([]ShipmentParcel, len(req.Parcels))
	for i, p := range req.Parcels {
		parcels[i] = ShipmentParcel{PkgNo: fmt.Sprintf("MOCK%08d%02d", id, i), Weight: p.Weight}
	}

	return &Shipment{
		ID:            id,
		CarrierCode:   "gls",
		ProductCode:   req.ProductCode,
		Reference:     req.Reference,
		LabelBase64:   base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 Shipmondo mock label")),
		Parcels:       parcels,
		TrackingLinks: []string{fmt.Sprintf("https://tracking.shipmondo.com/%d", id)},
	}, nil
}

// CancelShipment succeeds.
func (m *MockAPIClient) CancelShipment(ctx context.Context, shipmentID string) error {
	if err := m.simulate(); err != nil {
		return err
	}

	if m.OnCancelShipment != nil {
		return m.OnCancelShipment(ctx, shipmentID)
	}
	return nil
}

// GetShipmentLabels returns a placeholder label.
func (m *MockAPIClient) GetShipmentLabels(ctx context.Context, shipmentID string, format string) (*LabelsResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}

	if m.OnGetShipmentLabels != nil {
		return m.OnGetShipmentLabels(ctx, shipmentID, format)
	}

	return &LabelsResponse{
		Base64:     base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 label " + shipmentID)),
		FileFormat: format,
	}, nil
}

// GetTracking returns a single in-transit event.
func (m *MockAPIClient) GetTracking(ctx context.Context, trackingNumber string) (*TrackingResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}

	if m.OnGetTracking != nil {
		return m.OnGetTracking(ctx, trackingNumber)
	}

	return &TrackingResponse{
		TrackingNumber: trackingNumber,
		CarrierCode:    "gls",
		Events: []Event{
			{Timestamp: time.Now().Add(-6 * time.Hour).UTC().Format(time.RFC3339), Status: "in_transit", Description: "Parcel sorted at terminal"},
		},
	}, nil
}

// GetPickupPoints returns one service point.
func (m *MockAPIClient) GetPickupPoints(ctx context.Context, query PickupPointQuery) ([]PickupPoint, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}

	if m.OnGetPickupPoints != nil {
		return m.OnGetPickupPoints(ctx, query)
	}

	return []PickupPoint{
		{Number: "95558", ID: "95558", CompanyName: "Pakkeshop Fotex", Address: "Guldsmedgade 3", Zipcode: query.Zipcode, City: "Aarhus C", Country: query.CountryCode, Distance: 410, CarrierCode: query.CarrierCode},
	}, nil
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
