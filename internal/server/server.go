// Package server exposes the label service over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tournevent/labeler/internal/shipment"
	"github.com/tournevent/labeler/internal/store"
	"github.com/tournevent/labeler/internal/telemetry"
	"github.com/tournevent/labeler/pkg/carrier"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// TenantHeader carries the tenant id of every /v1 request.
const TenantHeader = "X-Tenant-ID"

// Shipments is the shipment orchestrator.
type Shipments interface {
	Create(ctx context.Context, tenantID string, in shipment.CreateInput) (*store.Shipment, error)
	Get(ctx context.Context, tenantID, shipmentID string) (*store.Shipment, error)
	List(ctx context.Context, tenantID string, f store.ListFilter) ([]*store.Shipment, error)
	Cancel(ctx context.Context, tenantID, shipmentID string) (*store.Shipment, error)
	Label(ctx context.Context, tenantID, shipmentID string, format carrier.LabelFormat) ([]byte, error)
	Products(ctx context.Context, tenantID string, code carrier.Code) ([]carrier.Product, error)
	PickupPoints(ctx context.Context, tenantID string, code carrier.Code, zip, country string) ([]carrier.PickupPoint, error)
}

// Accounts reads tenant counters and billing records.
type Accounts interface {
	GetTenant(ctx context.Context, id string) (*store.Tenant, error)
	ListBillingRecords(ctx context.Context, tenantID string, limit int) ([]*store.BillingRecord, error)
}

// Carriers lists the registered carrier codes.
type Carriers interface {
	Codes() []carrier.Code
	Implemented(code carrier.Code) bool
}

// Config holds server configuration.
type Config struct {
	Port     int
	Gatherer prometheus.Gatherer
}

// Server is the HTTP server for the label service.
type Server struct {
	port      int
	gatherer  prometheus.Gatherer
	shipments Shipments
	accounts  Accounts
	carriers  Carriers
	logger    *otelzap.Logger
	metrics   *telemetry.Metrics
}

// New creates a new server instance.
func New(cfg Config, shipments Shipments, accounts Accounts, carriers Carriers, logger *otelzap.Logger, metrics *telemetry.Metrics) *Server {
	return &Server{
		port:      cfg.Port,
		gatherer:  cfg.Gatherer,
		shipments: shipments,
		accounts:  accounts,
		carriers:  carriers,
		logger:    logger,
		metrics:   metrics,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	mux.HandleFunc("GET /v1/carriers", s.handleCarriers)
	mux.HandleFunc("GET /v1/carriers/{code}/products", s.tenant(s.handleProducts))
	mux.HandleFunc("GET /v1/carriers/{code}/pickup-points", s.tenant(s.handlePickupPoints))
	mux.HandleFunc("POST /v1/shipments", s.tenant(s.handleCreateShipment))
	mux.HandleFunc("GET /v1/shipments", s.tenant(s.handleListShipments))
	mux.HandleFunc("GET /v1/shipments/{id}", s.tenant(s.handleGetShipment))
	mux.HandleFunc("POST /v1/shipments/{id}/cancel", s.tenant(s.handleCancelShipment))
	mux.HandleFunc("GET /v1/shipments/{id}/label", s.tenant(s.handleLabel))
	mux.HandleFunc("GET /v1/billing", s.tenant(s.handleBilling))

	return s.instrument(mux)
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) instrument(next *http.ServeMux) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		_, route := next.Handler(r)
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RecordHTTP(route, fmt.Sprintf("%d", rec.status))
	})
}

// tenant rejects requests without a tenant header.
func (s *Server) tenant(h func(w http.ResponseWriter, r *http.Request, tenantID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.Header.Get(TenantHeader)
		if tenantID == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing " + TenantHeader + " header"})
			return
		}
		h(w, r, tenantID)
	}
}
