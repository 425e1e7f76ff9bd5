package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
// A nil *Metrics records nothing.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	CarrierErrors    *prometheus.CounterVec
	ShipmentsTotal   *prometheus.CounterVec
	BillingOutcomes  *prometheus.CounterVec
	TrackingJobs     *prometheus.CounterVec
	HTTPRequestTotal *prometheus.CounterVec
}

// NewMetrics creates metrics registered with reg.
// Pass prometheus.DefaultRegisterer to expose them on /metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labeler_carrier_requests_total",
				Help: "Total number of carrier requests by operation, carrier, and status",
			},
			[]string{"operation", "carrier", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "labeler_carrier_request_duration_seconds",
				Help:    "Carrier request duration in seconds by operation and carrier",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "carrier"},
		),
		CarrierErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labeler_carrier_errors_total",
				Help: "Total carrier API errors by carrier and error kind",
			},
			[]string{"carrier", "kind"},
		),
		ShipmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labeler_shipments_total",
				Help: "Shipment creations by carrier and outcome",
			},
			[]string{"carrier", "outcome"},
		),
		BillingOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labeler_billing_outcomes_total",
				Help: "Usage ledger decisions by outcome",
			},
			[]string{"outcome"},
		),
		TrackingJobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labeler_tracking_jobs_total",
				Help: "Tracking jobs by result",
			},
			[]string{"result"},
		),
		HTTPRequestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "labeler_http_requests_total",
				Help: "HTTP API requests by route and status code",
			},
			[]string{"route", "code"},
		),
	}
}

// RecordRequest records a carrier request metric.
func (m *Metrics) RecordRequest(operation, carrier, status string, duration float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(operation, carrier, status).Inc()
	m.RequestDuration.WithLabelValues(operation, carrier).Observe(duration)
}

// RecordError records a carrier error metric.
func (m *Metrics) RecordError(carrier, kind string) {
	if m == nil {
		return
	}
	m.CarrierErrors.WithLabelValues(carrier, kind).Inc()
}

// RecordShipment records the outcome of a shipment creation.
func (m *Metrics) RecordShipment(carrier, outcome string) {
	if m == nil {
		return
	}
	m.ShipmentsTotal.WithLabelValues(carrier, outcome).Inc()
}

// RecordBilling records a usage ledger decision.
func (m *Metrics) RecordBilling(outcome string) {
	if m == nil {
		return
	}
	m.BillingOutcomes.WithLabelValues(outcome).Inc()
}

// RecordTrackingJob records the result of a tracking job.
func (m *Metrics) RecordTrackingJob(result string) {
	if m == nil {
		return
	}
	m.TrackingJobs.WithLabelValues(result).Inc()
}

// RecordHTTP records an API request.
func (m *Metrics) RecordHTTP(route, code string) {
	if m == nil {
		return
	}
	m.HTTPRequestTotal.WithLabelValues(route, code).Inc()
}
