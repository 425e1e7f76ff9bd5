package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/labeler/internal/config"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/labeler")
	t.Setenv("ENCRYPTION_KEY", testKey)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "postgres", cfg.DatabaseDriver)
	assert.Equal(t, "memory", cfg.QueueBackend)
	assert.Equal(t, 2, cfg.TrackingMaxRetries)
	assert.Equal(t, 5*time.Second, cfg.TrackingInitialInterval)
	assert.Equal(t, "2", cfg.LabelPrice.String())
	assert.Equal(t, "DKK", cfg.LabelCurrency)
	assert.Equal(t, 10, cfg.FreeLabelsLimit)
	assert.Equal(t, config.BillingNone, cfg.BillingProvider)
	assert.Len(t, cfg.Attributes(), 5)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "file:labeler.db")
	t.Setenv("DATABASE_DRIVER", "sqlite3")
	t.Setenv("ENCRYPTION_KEY", testKey)
	t.Setenv("QUEUE_BACKEND", "kafka")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("LABEL_PRICE", "3.50")
	t.Setenv("TRACKING_SCHEDULE_INTERVAL", "15m")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "3.5", cfg.LabelPrice.String())
	assert.Equal(t, 15*time.Minute, cfg.TrackingScheduleInterval)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing database", map[string]string{"ENCRYPTION_KEY": testKey}, "DATABASE_URL"},
		{"driver", map[string]string{"DATABASE_DRIVER": "mysql"}, "DATABASE_DRIVER"},
		{"kafka without brokers", map[string]string{"QUEUE_BACKEND": "kafka"}, "KAFKA_BROKERS"},
		{"stripe without key", map[string]string{"BILLING_PROVIDER": "stripe"}, "STRIPE_SECRET_KEY"},
		{"billing provider", map[string]string{"BILLING_PROVIDER": "paypal"}, "BILLING_PROVIDER"},
		{"price", map[string]string{"LABEL_PRICE": "0"}, "LABEL_PRICE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := tt.env["ENCRYPTION_KEY"]; !ok {
				t.Setenv("DATABASE_URL", "postgres://localhost/labeler")
				t.Setenv("ENCRYPTION_KEY", testKey)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load()
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
