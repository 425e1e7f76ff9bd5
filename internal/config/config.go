package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Database
	DatabaseDriver         string        `envconfig:"DATABASE_DRIVER" default:"postgres"`
	DatabaseURL            string        `envconfig:"DATABASE_URL" required:"true"`
	DatabaseConnectTimeout time.Duration `envconfig:"DATABASE_CONNECT_TIMEOUT" default:"30s"`
	EncryptionKey          string        `envconfig:"ENCRYPTION_KEY" required:"true"`

	// Tracking queue
	QueueBackend             string        `envconfig:"QUEUE_BACKEND" default:"memory"`
	KafkaBrokers             []string      `envconfig:"KAFKA_BROKERS"`
	KafkaConsumerGroup       string        `envconfig:"KAFKA_CONSUMER_GROUP" default:"labeler-tracking"`
	TrackingMaxRetries       int           `envconfig:"TRACKING_MAX_RETRIES" default:"2"`
	TrackingInitialInterval  time.Duration `envconfig:"TRACKING_INITIAL_INTERVAL" default:"5s"`
	TrackingMultiplier       float64       `envconfig:"TRACKING_MULTIPLIER" default:"2"`
	TrackingScheduleInterval time.Duration `envconfig:"TRACKING_SCHEDULE_INTERVAL" default:"0"`

	// Billing
	BillingProvider   string          `envconfig:"BILLING_PROVIDER" default:"none"`
	ShopifyAPIVersion string          `envconfig:"SHOPIFY_API_VERSION" default:"2025-01"`
	StripeSecretKey   string          `envconfig:"STRIPE_SECRET_KEY"`
	LabelPrice        decimal.Decimal `envconfig:"LABEL_PRICE" default:"2.00"`
	LabelCurrency     string          `envconfig:"LABEL_CURRENCY" default:"DKK"`
	FreeLabelsLimit   int             `envconfig:"FREE_LABELS_LIMIT" default:"10"`

	// Carriers
	CarrierTimeout time.Duration `envconfig:"CARRIER_TIMEOUT" default:"30s"`
	CarrierUseMock bool          `envconfig:"CARRIER_USE_MOCK" default:"false"`
	PickupCarrier  string        `envconfig:"SHIPMONDO_PICKUP_CARRIER" default:"gls"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"labeler"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Billing providers.
const (
	BillingNone    = "none"
	BillingShopify = "shopify"
	BillingStripe  = "stripe"
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite3, got %q", c.DatabaseDriver)
	}
	switch c.QueueBackend {
	case "memory":
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required for the kafka queue")
		}
	default:
		return fmt.Errorf("QUEUE_BACKEND must be memory or kafka, got %q", c.QueueBackend)
	}
	switch c.BillingProvider {
	case BillingNone, BillingShopify:
	case BillingStripe:
		if c.StripeSecretKey == "" {
			return fmt.Errorf("STRIPE_SECRET_KEY is required for stripe billing")
		}
	default:
		return fmt.Errorf("BILLING_PROVIDER must be none, shopify or stripe, got %q", c.BillingProvider)
	}
	if !c.LabelPrice.IsPositive() {
		return fmt.Errorf("LABEL_PRICE must be positive")
	}
	return nil
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.String("database.driver", c.DatabaseDriver),
		attribute.String("queue.backend", c.QueueBackend),
		attribute.String("billing.provider", c.BillingProvider),
	}
}
