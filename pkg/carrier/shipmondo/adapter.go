// Package shipmondo provides integration with the Shipmondo shipping broker.
package shipmondo

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

// Defaults for pickup point lookups.
const (
	DefaultCountry       = "DK"
	DefaultPickupCarrier = "gls"
)

// products is the curated set of broker products offered to merchants.
var products = []carrier.Product{
	{Code: "GLS_DK_HD", Name: "GLS Privatlevering", Description: "GLS home delivery"},
	{Code: "GLS_DK_SP", Name: "GLS Pakkeshop", Description: "GLS delivery to a parcel shop", RequiresPickupPoint: true},
	{Code: "PDK_DK_MH", Name: "PostNord MyPack Home", Description: "PostNord home delivery"},
	{Code: "PDK_DK_MC", Name: "PostNord MyPack Collect", Description: "PostNord delivery to a service point", RequiresPickupPoint: true},
	{Code: "DAO_DK_DD", Name: "DAO Direkte", Description: "DAO home delivery"},
	{Code: "DAO_DK_SP", Name: "DAO Pakkeshop", Description: "DAO delivery to a parcel shop", RequiresPickupPoint: true},
}

// Config holds Shipmondo configuration.
type Config struct {
	Credentials   carrier.Credentials
	Timeout       time.Duration
	PickupCarrier string // carrier code used for pickup point lookups, defaults to gls
	UseMock       bool   // When true, uses mock API client
}

// Adapter is the Shipmondo broker adapter.
// It implements carrier.Adapter and carrier.LabelFetcher.
type Adapter struct {
	apiClient     APIClient
	pickupCarrier string
	logger        *otelzap.Logger
	tracer        trace.Tracer
}

// New creates a new Shipmondo adapter. API user and key are required.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) (*Adapter, error) {
	if cfg.Credentials.APIUser == "" || cfg.Credentials.APIKey == "" {
		return nil, errors.New("shipmondo requires api user and api key")
	}

	var apiClient APIClient
	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL: cfg.Credentials.BaseURL,
			APIUser: cfg.Credentials.APIUser,
			APIKey:  cfg.Credentials.APIKey,
			Timeout: cfg.Timeout,
		})
	}

	return NewWithAPIClient(cfg, apiClient, logger, tracer), nil
}

// NewWithAPIClient creates a new Shipmondo adapter with a custom API client.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Adapter {
	pickupCarrier := cfg.PickupCarrier
	if pickupCarrier == "" {
		pickupCarrier = DefaultPickupCarrier
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("shipmondo")
	}

	return &Adapter{
		apiClient:     apiClient,
		pickupCarrier: pickupCarrier,
		logger:        logger,
		tracer:        tracer,
	}
}

// Code returns the carrier code.
func (a *Adapter) Code() carrier.Code {
	return carrier.Shipmondo
}

// CreateShipment books a shipment through the broker.
func (a *Adapter) CreateShipment(ctx context.Context, req *carrier.ShipmentRequest) (*carrier.ShipmentResult, error) {
	ctx, span := a.tracer.Start(ctx, "shipmondo.CreateShipment",
		trace.WithAttributes(attribute.String("carrier.product", req.Product)))
	defer span.End()

	a.logger.Ctx(ctx).Info("Creating Shipmondo shipment",
		zap.String("product", req.Product),
		zap.String("reference", req.Reference),
	)

	product, ok := carrier.FindProduct(products, req.Product)
	if !ok {
		return nil, a.fail(ctx, span, carrier.NewError(carrier.Shipmondo, carrier.KindInvalidRequest, fmt.Sprintf("unknown product %q", req.Product)))
	}
	if product.RequiresPickupPoint && req.PickupPointID == "" {
		return nil, a.fail(ctx, span, carrier.NewError(carrier.Shipmondo, carrier.KindInvalidRequest, fmt.Sprintf("product %s requires a service point", product.Code)))
	}
	if len(req.Parcels) == 0 {
		return nil, a.fail(ctx, span, carrier.NewError(carrier.Shipmondo, carrier.KindInvalidRequest, "at least one parcel is required"))
	}

	apiResp, err := a.apiClient.CreateShipment(ctx, ToCreateShipmentRequest(req))
	if err != nil {
		return nil, a.fail(ctx, span, err)
	}

	result, err := FromShipment(apiResp)
	if err != nil {
		return nil, a.fail(ctx, span, err)
	}

	a.logger.Ctx(ctx).Info("Shipmondo shipment created",
		zap.String("shipmondo_id", result.CarrierRef),
		zap.String("carrier_code", apiResp.CarrierCode),
	)
	return result, nil
}

// CancelShipment deletes a shipment. A shipment the broker reports as gone is treated as cancelled.
func (a *Adapter) CancelShipment(ctx context.Context, carrierRef string) error {
	ctx, span := a.tracer.Start(ctx, "shipmondo.CancelShipment")
	defer span.End()

	a.logger.Ctx(ctx).Info("Cancelling Shipmondo shipment", zap.String("shipmondo_id", carrierRef))

	if err := a.apiClient.CancelShipment(ctx, carrierRef); err != nil {
		if carrier.IsGone(err) {
			a.logger.Ctx(ctx).Info("Shipmondo shipment already cancelled", zap.String("shipmondo_id", carrierRef))
			return nil
		}
		return a.fail(ctx, span, err)
	}
	return nil
}

// GetTracking retrieves tracking events from the broker.
func (a *Adapter) GetTracking(ctx context.Context, trackingNumber string) (*carrier.TrackingResult, error) {
	ctx, span := a.tracer.Start(ctx, "shipmondo.GetTracking")
	defer span.End()

	a.logger.Ctx(ctx).Info("Getting Shipmondo tracking", zap.String("tracking_number", trackingNumber))

	apiResp, err := a.apiClient.GetTracking(ctx, trackingNumber)
	if err != nil {
		return nil, a.fail(ctx, span, err)
	}
	return FromTrackingResponse(trackingNumber, apiResp), nil
}

// Products returns the curated broker catalog.
func (a *Adapter) Products() []carrier.Product {
	out := make([]carrier.Product, len(products))
	copy(out, products)
	return out
}

// FindPickupPoints lists service points of the configured pickup carrier.
func (a *Adapter) FindPickupPoints(ctx context.Context, zip, country string) ([]carrier.PickupPoint, error) {
	ctx, span := a.tracer.Start(ctx, "shipmondo.FindPickupPoints")
	defer span.End()

	if country == "" {
		country = DefaultCountry
	}

	a.logger.Ctx(ctx).Info("Finding Shipmondo pickup points",
		zap.String("carrier_code", a.pickupCarrier),
		zap.String("zip", zip),
		zap.String("country", country),
	)

	points, err := a.apiClient.GetPickupPoints(ctx, PickupPointQuery{
		CarrierCode: a.pickupCarrier,
		CountryCode: country,
		Zipcode:     zip,
	})
	if err != nil {
		return nil, a.fail(ctx, span, err)
	}
	return FromPickupPoints(points), nil
}

// FetchLabel downloads the label of an existing shipment.
func (a *Adapter) FetchLabel(ctx context.Context, carrierRef string, format carrier.LabelFormat) ([]byte, error) {
	ctx, span := a.tracer.Start(ctx, "shipmondo.FetchLabel")
	defer span.End()

	if format == "" {
		format = carrier.LabelA4PDF
	}

	a.logger.Ctx(ctx).Info("Fetching Shipmondo label",
		zap.String("shipmondo_id", carrierRef),
		zap.String("format", string(format)),
	)

	resp, err := a.apiClient.GetShipmentLabels(ctx, carrierRef, string(format))
	if err != nil {
		return nil, a.fail(ctx, span, err)
	}

	label, err := DecodeLabel(resp)
	if err != nil {
		return nil, a.fail(ctx, span, err)
	}
	return label, nil
}

func (a *Adapter) fail(ctx context.Context, span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	a.logger.Ctx(ctx).Error("Shipmondo API error", zap.Error(err))
	return err
}

var (
	_ carrier.Adapter      = (*Adapter)(nil)
	_ carrier.LabelFetcher = (*Adapter)(nil)
)
