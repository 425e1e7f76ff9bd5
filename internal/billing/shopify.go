package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tournevent/labeler/internal/store"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// DefaultShopifyAPIVersion is the Admin API version used when none is configured.
const DefaultShopifyAPIVersion = "2025-01"

const usagePricingType = "AppUsagePricingDetails"

const activeSubscriptionsQuery = `query {
  currentAppInstallation {
    activeSubscriptions {
      id
      lineItems {
        id
        plan { pricingDetails { __typename } }
      }
    }
  }
}`

const usageRecordMutation = `mutation appUsageRecordCreate($subscriptionLineItemId: ID!, $price: MoneyInput!, $description: String!, $idempotencyKey: String) {
  appUsageRecordCreate(
    subscriptionLineItemId: $subscriptionLineItemId
    price: $price
    description: $description
    idempotencyKey: $idempotencyKey
  ) {
    appUsageRecord { id }
    userErrors { field message }
  }
}`

// ShopifyConfig configures the Shopify billing backend.
type ShopifyConfig struct {
	APIVersion string
	BaseURL    string // overrides https://{shop}, used in tests
	Timeout    time.Duration
	RetryMax   int
}

// ShopifyBackend charges usage through Shopify app subscriptions.
type ShopifyBackend struct {
	cfg    ShopifyConfig
	client *retryablehttp.Client
	logger *otelzap.Logger
}

// NewShopifyBackend creates a Shopify billing backend.
func NewShopifyBackend(cfg ShopifyConfig, logger *otelzap.Logger) *ShopifyBackend {
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultShopifyAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.HTTPClient.Timeout = cfg.Timeout
	client.Logger = leveledLogger{logger: logger.Logger}

	return &ShopifyBackend{cfg: cfg, client: client, logger: logger}
}

// Name returns "shopify".
func (b *ShopifyBackend) Name() string { return "shopify" }

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type activeSubscriptionsData struct {
	CurrentAppInstallation struct {
		ActiveSubscriptions []struct {
			ID        string `json:"id"`
			LineItems []struct {
				ID   string `json:"id"`
				Plan struct {
					PricingDetails struct {
						Typename string `json:"__typename"`
					} `json:"pricingDetails"`
				} `json:"plan"`
			} `json:"lineItems"`
		} `json:"activeSubscriptions"`
	} `json:"currentAppInstallation"`
}

type usageRecordData struct {
	AppUsageRecordCreate struct {
		AppUsageRecord *struct {
			ID string `json:"id"`
		} `json:"appUsageRecord"`
		UserErrors []UserError `json:"userErrors"`
	} `json:"appUsageRecordCreate"`
}

// ActiveLineItem returns the first usage-priced line item of the app's active subscriptions.
func (b *ShopifyBackend) ActiveLineItem(ctx context.Context, tenant *store.Tenant) (string, error) {
	var data activeSubscriptionsData
	if err := b.do(ctx, tenant, graphQLRequest{Query: activeSubscriptionsQuery}, &data); err != nil {
		return "", err
	}

	for _, sub := range data.CurrentAppInstallation.ActiveSubscriptions {
		for _, item := range sub.LineItems {
			if item.Plan.PricingDetails.Typename == usagePricingType {
				return item.ID, nil
			}
		}
	}
	return "", nil
}

// Charge creates an app usage record.
func (b *ShopifyBackend) Charge(ctx context.Context, tenant *store.Tenant, charge Charge) (*ChargeResult, error) {
	req := graphQLRequest{
		Query: usageRecordMutation,
		Variables: map[string]interface{}{
			"subscriptionLineItemId": charge.LineItemID,
			"price": map[string]string{
				"amount":       charge.Amount.StringFixed(2),
				"currencyCode": charge.Currency,
			},
			"description":    charge.Description,
			"idempotencyKey": charge.IdempotencyKey,
		},
	}

	var data usageRecordData
	if err := b.do(ctx, tenant, req, &data); err != nil {
		return nil, err
	}

	result := data.AppUsageRecordCreate
	if len(result.UserErrors) > 0 {
		return &ChargeResult{UserErrors: result.UserErrors}, nil
	}
	if result.AppUsageRecord == nil || result.AppUsageRecord.ID == "" {
		return nil, errors.New("usage record response has no id")
	}
	return &ChargeResult{RecordID: result.AppUsageRecord.ID}, nil
}

func (b *ShopifyBackend) endpoint(shop string) string {
	base := "https://" + shop
	if b.cfg.BaseURL != "" {
		base = strings.TrimRight(b.cfg.BaseURL, "/")
	}
	return fmt.Sprintf("%s/admin/api/%s/graphql.json", base, b.cfg.APIVersion)
}

func (b *ShopifyBackend) do(ctx context.Context, tenant *store.Tenant, gql graphQLRequest, out interface{}) error {
	if tenant.BillingAccessToken == "" {
		return errors.Newf("tenant %s has no Shopify access token", tenant.ID)
	}

	body, err := json.Marshal(gql)
	if err != nil {
		return errors.Wrap(err, "encoding graphql request")
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, b.endpoint(tenant.ShopDomain), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "creating graphql request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", tenant.BillingAccessToken)

	resp, err := b.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling Shopify Admin API")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "reading Shopify response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Newf("Shopify Admin API %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphQLError  `json:"errors"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return errors.Wrap(err, "decoding Shopify response")
	}
	if len(envelope.Errors) > 0 {
		return errors.Newf("Shopify graphql error: %s", envelope.Errors[0].Message)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return errors.Wrap(err, "decoding Shopify data")
	}
	return nil
}

// leveledLogger routes retryablehttp logs to zap.
type leveledLogger struct {
	logger *zap.Logger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.logger.Sugar().Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.logger.Sugar().Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.logger.Sugar().Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.logger.Sugar().Warnw(msg, kv...) }

var _ retryablehttp.LeveledLogger = leveledLogger{}
