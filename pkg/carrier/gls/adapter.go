// Package gls provides integration with the GLS ShipIT parcel API.
package gls

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tournevent/labeler/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// DefaultCountry is used for parcel shop lookups when no country is given.
const DefaultCountry = "DK"

var products = []carrier.Product{
	{
		Code:        "PARCEL",
		Name:        "GLS Business Parcel",
		Description: "Standard business parcel delivery",
	},
	{
		Code:                "SHOP_DELIVERY",
		Name:                "GLS Pakkeshop",
		Description:         "Delivery to a GLS parcel shop for pickup",
		RequiresPickupPoint: true,
	},
	{
		Code:        "EXPRESS",
		Name:        "GLS Express",
		Description: "Next-day express delivery",
	},
	{
		Code:        "PRIVATE",
		Name:        "GLS Private Delivery",
		Description: "Delivery to private address with SMS notification",
	},
}

// Config holds GLS configuration.
type Config struct {
	Credentials carrier.Credentials
	Timeout     time.Duration
	UseMock     bool             // When true, uses mock API client
	Now         func() time.Time // Clock for the shipment date, defaults to time.Now
}

// Adapter is the GLS carrier adapter.
// It implements the carrier.Adapter interface and delegates
// API calls to the underlying APIClient (mock or HTTP).
type Adapter struct {
	customerID string
	apiClient  APIClient
	now        func() time.Time
	logger     *otelzap.Logger
	tracer     trace.Tracer
}

// New creates a new GLS adapter. Customer id, API user and password are required.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) (*Adapter, error) {
	if err := validateCredentials(cfg.Credentials); err != nil {
		return nil, err
	}

	var apiClient APIClient
	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL:  cfg.Credentials.BaseURL,
			Username: cfg.Credentials.APIUser,
			Password: cfg.Credentials.APIKey,
			Timeout:  cfg.Timeout,
		})
	}

	return NewWithAPIClient(cfg, apiClient, logger, tracer), nil
}

// NewWithAPIClient creates a new GLS adapter with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Adapter {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("gls")
	}

	return &Adapter{
		customerID: cfg.Credentials.CustomerID,
		apiClient:  apiClient,
		now:        now,
		logger:     logger,
		tracer:     tracer,
	}
}

func validateCredentials(creds carrier.Credentials) error {
	var missing []error
	if creds.CustomerID == "" {
		missing = append(missing, errors.New("customer id is required"))
	}
	if creds.APIUser == "" {
		missing = append(missing, errors.New("api user is required"))
	}
	if creds.APIKey == "" {
		missing = append(missing, errors.New("api password is required"))
	}
	return errors.Join(missing...)
}

// Code returns the carrier code.
func (a *Adapter) Code() carrier.Code {
	return carrier.GLS
}

// CreateShipment books a consignment with GLS.
func (a *Adapter) CreateShipment(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
	ctx, span := a.tracer.Start(ctx, "gls.CreateShipment",
		trace.WithAttributes(attribute.String("carrier.product", req.Product)))
	defer span.End()

	a.logger.Ctx(ctx).Info("Creating GLS shipment",
		zap.String("product", req.Product),
		zap.String("reference", req.Reference),
		zap.Int("parcel_count", len(req.Parcels)),
	)

	if err := validateRequest(req); err != nil {
		return nil, a.fail(ctx, span, err)
	}

	apiResp, err := a.apiClient.CreateShipment(ctx, ToShipmentRequest(a.customerID, req, a.now()))
	if err != nil {
		return nil, a.fail(ctx, span, err)
	}

	result, err := FromShipmentResponse(apiResp)
	if err != nil {
		return nil, a.fail(ctx, span, err)
	}

	span.SetAttributes(attribute.String("carrier.tracking_number", result.TrackingNumber))
	return result, nil
}

func validateRequest(req *carrier.ShipmentRequest) error {
	product, ok := carrier.FindProduct(products, req.Product)
	if !ok {
		return carrier.NewError(carrier.GLS, carrier.KindInvalidRequest, fmt.Sprintf("unknown product %q", req.Product))
	}
	if product.RequiresPickupPoint && req.PickupPointID == "" {
		return carrier.NewError(carrier.GLS, carrier.KindInvalidRequest, fmt.Sprintf("product %s requires a parcel shop", product.Code))
	}
	if len(req.Parcels) == 0 {
		return carrier.NewError(carrier.GLS, carrier.KindInvalidRequest, "at least one parcel is required")
	}
	return nil
}

// CancelShipment deletes a consignment. A consignment GLS no longer knows is treated as cancelled.
func (a *Adapter) CancelShipment(ctx context.Context, carrierRef string) error {
	ctx, span := a.tracer.Start(ctx, "gls.CancelShipment")
	defer span.End()

	a.logger.Ctx(ctx).Info("Cancelling GLS shipment", zap.String("consignment_id", carrierRef))

	if err := a.apiClient.CancelShipment(ctx, carrierRef); err != nil {
		if carrier.IsGone(err) {
			a.logger.Ctx(ctx).Info("GLS shipment already cancelled", zap.String("consignment_id", carrierRef))
			return nil
		}
		return a.fail(ctx, span, err)
	}
	return nil
}

// GetTracking retrieves the parcel's events from GLS.
func (a *Adapter) GetTracking(ctx context.Context, trackingNumber string) (*carrier.TrackingResult, error) {
	ctx, span := a.tracer.Start(ctx, "gls.GetTracking")
	defer span.End()

	a.logger.Ctx(ctx).Info("Getting GLS tracking", zap.String("tracking_number", trackingNumber))

	apiResp, err := a.apiClient.GetTracking(ctx, trackingNumber)
	if err != nil {
		return nil, a.fail(ctx, span, err)
	}
	return FromTrackingResponse(trackingNumber, apiResp), nil
}

// Products returns the GLS product catalog.
func (a *Adapter) Products() []carrier.Product {
	out := make([]carrier.Product, len(products))
	copy(out, products)
	return out
}

// FindPickupPoints lists parcel shops near zip.
func (a *Adapter) FindPickupPoints(ctx context.Context, zip, country string) ([]carrier.PickupPoint, error) {
	ctx, span := a.tracer.Start(ctx, "gls.FindPickupPoints")
	defer span.End()

	if country == "" {
		country = DefaultCountry
	}

	a.logger.Ctx(ctx).Info("Finding GLS parcel shops",
		zap.String("zip", zip),
		zap.String("country", country),
	)

	apiResp, err := a.apiClient.FindParcelShops(ctx, zip, country)
	if err != nil {
		return nil, a.fail(ctx, span, err)
	}
	return FromParcelShopResponse(apiResp), nil
}

func (a *Adapter) fail(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	a.logger.Ctx(ctx).Error("GLS API error", zap.Error(err))
	return err
}

var _ carrier.Adapter = (*Adapter)(nil)
