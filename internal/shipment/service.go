// Package shipment orchestrates the label lifecycle of a shipment.
package shipment

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/patrickmn/go-cache"
	"github.com/tournevent/labeler/internal/billing"
	"github.com/tournevent/labeler/internal/store"
	"github.com/tournevent/labeler/internal/telemetry"
	"github.com/tournevent/labeler/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// PickupCacheTTL bounds how long pickup point lookups are reused.
const PickupCacheTTL = 10 * time.Minute

// Store is the persistence the service needs.
type Store interface {
	GetTenant(ctx context.Context, id string) (*store.Tenant, error)
	CreateShipment(ctx context.Context, sh *store.Shipment) error
	GetShipment(ctx context.Context, tenantID, id string) (*store.Shipment, error)
	ListShipments(ctx context.Context, tenantID string, f store.ListFilter) ([]*store.Shipment, error)
	MarkLabelCreated(ctx context.Context, id string, res store.LabelResult) error
	MarkFailed(ctx context.Context, id, message string) error
	UpdateStatus(ctx context.Context, id string, from []store.Status, to store.Status) error
	StoreLabel(ctx context.Context, id string, label []byte) error
}

// Resolver turns a carrier code and credentials into an adapter.
type Resolver interface {
	Resolve(code carrier.Code, creds carrier.Credentials) (carrier.Adapter, error)
}

// Ledger records usage for a created label.
type Ledger interface {
	Record(ctx context.Context, tenantID, shipmentID string) billing.Outcome
}

// Service is the shipment orchestrator.
type Service struct {
	store    Store
	resolver Resolver
	ledger   Ledger
	validate *validator.Validate
	pickups  *cache.Cache
	logger   *otelzap.Logger
	metrics  *telemetry.Metrics
}

// NewService creates a shipment service.
func NewService(st Store, resolver Resolver, ledger Ledger, logger *otelzap.Logger, metrics *telemetry.Metrics) *Service {
	return &Service{
		store:    st,
		resolver: resolver,
		ledger:   ledger,
		validate: newValidator(),
		pickups:  cache.New(PickupCacheTTL, 2*PickupCacheTTL),
		logger:   logger,
		metrics:  metrics,
	}
}

// Create books a label for the tenant.
//
// The shipment is stored PENDING before the carrier is called and always ends
// LABEL_CREATED or FAILED. The ledger runs once, after LABEL_CREATED is stored.
// On carrier failure the FAILED shipment is returned together with an error marked ErrLabelFailed.
func (s *Service) Create(ctx context.Context, tenantID string, in CreateInput) (*store.Shipment, error) {
	in.applyDefaults()
	if err := validateInput(s.validate, in); err != nil {
		return nil, err
	}

	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !tenant.SenderConfigured() {
		return nil, configurationError("sender address not configured")
	}

	code := in.Carrier
	if code == "" {
		code = tenant.DefaultCarrier
	}
	if code == "" {
		return nil, configurationError("no carrier given and no default carrier configured")
	}
	adapter, err := s.adapterFor(tenant, code)
	if err != nil {
		return nil, err
	}

	sh := &store.Shipment{
		TenantID:      tenantID,
		Carrier:       code,
		Product:       in.Product,
		Recipient:     in.Recipient.address(),
		WeightKg:      in.WeightKg,
		LengthCm:      in.LengthCm,
		WidthCm:       in.WidthCm,
		HeightCm:      in.HeightCm,
		PickupPointID: in.PickupPointID,
		Reference:     in.Reference,
	}
	if err := s.store.CreateShipment(ctx, sh); err != nil {
		return nil, err
	}

	log := s.logger.Ctx(ctx).WithOptions(zap.Fields(
		zap.String("tenant_id", tenantID),
		zap.String("shipment_id", sh.ID),
		zap.String("carrier", string(code)),
		zap.String("product", in.Product),
	))
	log.Info("Creating label")

	reference := in.Reference
	if reference == "" {
		reference = sh.ID
	}
	sender := tenant.Sender
	if sender.Country == "" {
		sender.Country = DefaultCountry
	}

	start := time.Now()
	result, err := adapter.CreateShipment(ctx, &carrier.ShipmentRequest{
		Sender:    sender,
		Recipient: sh.Recipient,
		Parcels: []carrier.Parcel{{
			Weight:    in.WeightKg,
			Length:    in.LengthCm,
			Width:     in.WidthCm,
			Height:    in.HeightCm,
			Reference: reference,
		}},
		Product:       in.Product,
		PickupPointID: in.PickupPointID,
		Reference:     reference,
	})
	s.observe("create", code, start, err)

	// The outcome must be stored even if the caller has gone away.
	wctx := context.WithoutCancel(ctx)
	if err != nil {
		log.Error("Carrier rejected label", zap.Error(err))
		return s.fail(wctx, sh, err)
	}

	if err := s.store.MarkLabelCreated(wctx, sh.ID, store.LabelResult{
		CarrierRef:     result.CarrierRef,
		TrackingNumber: result.TrackingNumber,
		TrackingURL:    result.TrackingURL,
		Label:          result.Label,
	}); err != nil {
		log.Error("Label created but not recorded",
			zap.String("carrier_ref", result.CarrierRef),
			zap.Error(err),
		)
		if errors.Is(err, store.ErrStaleTransition) {
			return nil, err
		}
		return s.fail(wctx, sh, errors.Wrapf(err, "recording label %s", result.CarrierRef))
	}

	sh.Status = store.StatusLabelCreated
	sh.CarrierRef = result.CarrierRef
	sh.TrackingNumber = result.TrackingNumber
	sh.TrackingURL = result.TrackingURL
	sh.Label = result.Label
	s.metrics.RecordShipment(string(code), "label_created")

	outcome := s.ledger.Record(wctx, tenantID, sh.ID)
	sh.Billed = outcome.Billed

	log.Info("Label created",
		zap.String("tracking_number", sh.TrackingNumber),
		zap.Bool("billed", outcome.Billed),
		zap.String("billing", outcome.Reason),
	)
	return sh, nil
}

// fail stores the causal message on the shipment and returns it with an ErrLabelFailed error.
func (s *Service) fail(ctx context.Context, sh *store.Shipment, cause error) (*store.Shipment, error) {
	s.metrics.RecordShipment(string(sh.Carrier), "failed")

	msg := cause.Error()
	if err := s.store.MarkFailed(ctx, sh.ID, msg); err != nil {
		s.logger.Ctx(ctx).Error("Failed to store shipment failure",
			zap.String("shipment_id", sh.ID),
			zap.Error(err),
		)
		return nil, errors.CombineErrors(errors.Mark(cause, ErrLabelFailed), err)
	}

	sh.Status = store.StatusFailed
	sh.ErrorMessage = msg
	return sh, errors.Mark(errors.Wrapf(cause, "shipment %s", sh.ID), ErrLabelFailed)
}

// Cancel cancels the shipment with the carrier that created it.
func (s *Service) Cancel(ctx context.Context, tenantID, shipmentID string) (*store.Shipment, error) {
	sh, err := s.Get(ctx, tenantID, shipmentID)
	if err != nil {
		return nil, err
	}
	if sh.CarrierRef == "" {
		return nil, invalidState("shipment %s has no carrier reference", sh.ID)
	}
	switch sh.Status {
	case store.StatusCancelled:
		return sh, nil
	case store.StatusDelivered:
		return nil, invalidState("shipment %s is already delivered", sh.ID)
	}

	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapterFor(tenant, sh.Carrier)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = adapter.CancelShipment(ctx, sh.CarrierRef)
	s.observe("cancel", sh.Carrier, start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "cancelling shipment %s", sh.ID)
	}

	if err := s.store.UpdateStatus(ctx, sh.ID, []store.Status{store.StatusLabelCreated, store.StatusInTransit}, store.StatusCancelled); err != nil {
		return nil, err
	}
	sh.Status = store.StatusCancelled

	s.logger.Ctx(ctx).Info("Shipment cancelled",
		zap.String("tenant_id", tenantID),
		zap.String("shipment_id", sh.ID),
		zap.String("carrier_ref", sh.CarrierRef),
	)
	return sh, nil
}

// Label returns the stored label, downloading and storing it when the carrier supports it.
func (s *Service) Label(ctx context.Context, tenantID, shipmentID string, format carrier.LabelFormat) ([]byte, error) {
	sh, err := s.Get(ctx, tenantID, shipmentID)
	if err != nil {
		return nil, err
	}
	if sh.HasLabel() {
		return sh.Label, nil
	}
	if sh.CarrierRef == "" {
		return nil, errors.Wrapf(ErrLabelNotAvailable, "shipment %s has no carrier reference", sh.ID)
	}

	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapterFor(tenant, sh.Carrier)
	if err != nil {
		return nil, err
	}
	fetcher, ok := adapter.(carrier.LabelFetcher)
	if !ok {
		return nil, errors.Wrapf(ErrLabelNotAvailable, "carrier %s cannot download labels", sh.Carrier)
	}

	start := time.Now()
	label, err := fetcher.FetchLabel(ctx, sh.CarrierRef, format)
	s.observe("label", sh.Carrier, start, err)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching label of shipment %s", sh.ID)
	}

	if err := s.store.StoreLabel(ctx, sh.ID, label); err != nil {
		s.logger.Ctx(ctx).Warn("Failed to store downloaded label", zap.String("shipment_id", sh.ID), zap.Error(err))
	}
	return label, nil
}

// Get loads a tenant's shipment.
func (s *Service) Get(ctx context.Context, tenantID, shipmentID string) (*store.Shipment, error) {
	sh, err := s.store.GetShipment(ctx, tenantID, shipmentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errors.Mark(err, ErrShipmentNotFound)
	}
	return sh, err
}

// List returns the tenant's shipments, newest first.
func (s *Service) List(ctx context.Context, tenantID string, f store.ListFilter) ([]*store.Shipment, error) {
	return s.store.ListShipments(ctx, tenantID, f)
}

// Products returns the carrier's catalog for the tenant.
func (s *Service) Products(ctx context.Context, tenantID string, code carrier.Code) ([]carrier.Product, error) {
	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapterFor(tenant, code)
	if err != nil {
		return nil, err
	}
	return adapter.Products(), nil
}

// PickupPoints looks up pickup points near a postal code. Results are cached per tenant.
func (s *Service) PickupPoints(ctx context.Context, tenantID string, code carrier.Code, zip, country string) ([]carrier.PickupPoint, error) {
	if zip == "" {
		return nil, validationError("zip is required")
	}
	if country == "" {
		country = DefaultCountry
	}

	key := fmt.Sprintf("%s|%s|%s|%s", tenantID, code, zip, country)
	if cached, ok := s.pickups.Get(key); ok {
		return cached.([]carrier.PickupPoint), nil
	}

	tenant, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapterFor(tenant, code)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	points, err := adapter.FindPickupPoints(ctx, zip, country)
	s.observe("pickup_points", code, start, err)
	if err != nil {
		return nil, errors.Wrap(err, "finding pickup points")
	}
	if points == nil {
		points = []carrier.PickupPoint{}
	}

	s.pickups.SetDefault(key, points)
	return points, nil
}

// adapterFor resolves the tenant's adapter for a carrier.
// Missing or rejected credentials are configuration errors.
func (s *Service) adapterFor(tenant *store.Tenant, code carrier.Code) (carrier.Adapter, error) {
	creds, hasCreds := tenant.Credentials[code]

	adapter, err := s.resolver.Resolve(code, creds)
	if err != nil {
		if errors.Is(err, carrier.ErrAdapterConstruction) {
			if !hasCreds {
				return nil, configurationError(fmt.Sprintf("no credentials configured for carrier %s", code))
			}
			return nil, errors.Mark(err, ErrConfiguration)
		}
		return nil, err
	}
	return adapter, nil
}

func (s *Service) observe(op string, code carrier.Code, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		kind := "unknown"
		var cerr *carrier.Error
		if errors.As(err, &cerr) {
			kind = string(cerr.Kind)
		}
		s.metrics.RecordError(string(code), kind)
	}
	s.metrics.RecordRequest(op, string(code), status, time.Since(start).Seconds())
}
