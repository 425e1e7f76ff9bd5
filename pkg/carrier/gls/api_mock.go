package gls

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tournevent/labeler/pkg/carrier"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnCreateShipment  func(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error)
	OnCancelShipment  func(ctx context.Context, consignmentID string) error
	OnGetTracking     func(ctx context.Context, parcelNumber string) (*TrackingResponse, error)
	OnFindParcelShops func(ctx context.Context, zip, countryCode string) (*ParcelShopResponse, error)
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
		return carrier.NewError(carrier.GLS, carrier.KindRemoteUnavailable, "simulated API error").WithStatusCode(503)
	}
	return nil
}

// CreateShipment returns a mock consignment with one parcel per requested parcel.
func (m *MockAPIClient) CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}

	if m.OnCreateShipment != nil {
		return m.OnCreateShipment(ctx, req)
	}

	parcels := make([]ParcelInfo, len(req.Parcels))
	for i := range req.Parcels {
		number := fmt.Sprintf("%011d", time.Now().UnixNano()%100000000000+int64(i))
		parcels[i] = ParcelInfo{
			ParcelNumber: number,
			TrackURL:     "https://gls-group.com/DK/da/find-pakke?match=" + number,
		}
	}

	return &ShipmentResponse{
		Parcels:       parcels,
		ConsignmentID: "gls-cons-" + uuid.New().String()[:8],
		PdfData:       base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 GLS mock label")),
	}, nil
}

// CancelShipment succeeds.
func (m *MockAPIClient) CancelShipment(ctx context.Context, consignmentID string) error {
	if err := m.simulate(); err != nil {
		return err
	}

	if m.OnCancelShipment != nil {
		return m.OnCancelShipment(ctx, consignmentID)
	}
	return nil
}

// GetTracking returns a pre-advice and a hub scan.
func (m *MockAPIClient) GetTracking(ctx context.Context, parcelNumber string) (*TrackingResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}

	if m.OnGetTracking != nil {
		return m.OnGetTracking(ctx, parcelNumber)
	}

	yesterday := time.Now().AddDate(0, 0, -1)
	return &TrackingResponse{
		Events: []Event{
			{
				EventDate:        yesterday.Format("2006-01-02"),
				EventTime:        "08:15:00",
				EventDescription: "The parcel data was entered into the GLS IT system",
				StatusCode:       "PREADVICE",
			},
			{
				EventDate:        yesterday.Format("2006-01-02"),
				EventTime:        "18:42:00",
				EventDescription: "The parcel has reached the parcel center",
				EventLocation:    "Broendby",
				StatusCode:       "INTRANSIT",
			},
		},
	}, nil
}

// FindParcelShops returns two parcel shops.
func (m *MockAPIClient) FindParcelShops(ctx context.Context, zip, countryCode string) (*ParcelShopResponse, error) {
	if err := m.simulate(); err != nil {
		return nil, err
	}

	if m.OnFindParcelShops != nil {
		return m.OnFindParcelShops(ctx, zip, countryCode)
	}

	return &ParcelShopResponse{
		ParcelShops: []ParcelShop{
			{ParcelShopID: "2080", CompanyName: "Kiosk Centrum", Streetname: "Vesterbrogade 1", ZipCode: zip, CityName: "Koebenhavn V", CountryCode: countryCode, DistanceMeters: 350},
			{ParcelShopID: "2081", CompanyName: "Netto Istedgade", Streetname: "Istedgade 50", ZipCode: zip, CityName: "Koebenhavn V", CountryCode: countryCode, DistanceMeters: 900},
		},
	}, nil
}

// Ensure MockAPIClient implements APIClient interface
var _ APIClient = (*MockAPIClient)(nil)
