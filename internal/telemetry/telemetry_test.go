package telemetry_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/labeler/internal/telemetry"
)

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "error", "bogus"} {
		logger, err := telemetry.NewLogger(level)
		require.NoError(t, err, level)
		assert.NotNil(t, logger)
	}
}

func TestMetrics(t *testing.T) {
	m := telemetry.NewMetrics(prometheus.NewRegistry())

	m.RecordShipment("GLS", "label_created")
	m.RecordShipment("GLS", "label_created")
	m.RecordBilling("free")
	m.RecordTrackingJob("updated")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ShipmentsTotal.WithLabelValues("GLS", "label_created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BillingOutcomes.WithLabelValues("free")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TrackingJobs.WithLabelValues("updated")))
}

func TestMetrics_Nil(t *testing.T) {
	var m *telemetry.Metrics
	assert.NotPanics(t, func() {
		m.RecordShipment("GLS", "failed")
		m.RecordBilling("paid")
		m.RecordRequest("create", "GLS", "ok", 0.1)
	})
}
