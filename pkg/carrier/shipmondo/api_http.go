package shipmondo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tournevent/labeler/pkg/carrier"
)

// Shipmondo endpoints.
const (
	DefaultBaseURL = "https://app.shipmondo.com/api/public/v3"
	SandboxBaseURL = "https://sandbox.shipmondo.com/api/public/v3"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP/JSON.
type HTTPAPIClient struct {
	baseURL    string
	apiUser    string
	apiKey     string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL string // "sandbox" selects the sandbox environment
	APIUser string
	APIKey  string
	Timeout time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPAPIClient{
		baseURL: resolveBaseURL(cfg.BaseURL),
		apiUser: cfg.APIUser,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func resolveBaseURL(override string) string {
	switch override {
	case "":
		return DefaultBaseURL
	case "sandbox":
		return SandboxBaseURL
	default:
		return strings.TrimRight(override, "/")
	}
}

// CreateShipment books a shipment. Printing through the broker's print client is always disabled.
// POST /shipments
func (c *HTTPAPIClient) CreateShipment(ctx context.Context, req *CreateShipmentRequest) (*Shipment, error) {
	body := *req
	body.Print = false

	var result Shipment
	if err := c.do(ctx, http.MethodPost, "/shipments", nil, &body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelShipment deletes a shipment.
// DELETE /shipments/{id} (assumed path, unverified against the live API)
func (c *HTTPAPIClient) CancelShipment(ctx context.Context, shipmentID string) error {
	return c.do(ctx, http.MethodDelete, "/shipments/"+url.PathEscape(shipmentID), nil, nil, nil)
}

// GetShipmentLabels downloads a label.
// GET /shipments/{id}/labels?label_format=
func (c *HTTPAPIClient) GetShipmentLabels(ctx context.Context, shipmentID string, format string) (*LabelsResponse, error) {
	params := url.Values{}
	params.Set("label_format", format)

	var result LabelsResponse
	if err := c.do(ctx, http.MethodGet, "/shipments/"+url.PathEscape(shipmentID)+"/labels", params, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTracking retrieves tracking events.
// GET /tracking/{tracking_number} (assumed path, unverified against the live API)
func (c *HTTPAPIClient) GetTracking(ctx context.Context, trackingNumber string) (*TrackingResponse, error) {
	var result TrackingResponse
	if err := c.do(ctx, http.MethodGet, "/tracking/"+url.PathEscape(trackingNumber), nil, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPickupPoints lists service points.
// GET /pickup_points?carrier_code=&country_code=&zipcode=
func (c *HTTPAPIClient) GetPickupPoints(ctx context.Context, query PickupPointQuery) ([]PickupPoint, error) {
	params := url.Values{}
	params.Set("carrier_code", query.CarrierCode)
	params.Set("country_code", query.CountryCode)
	params.Set("zipcode", query.Zipcode)

	var result []PickupPoint
	if err := c.do(ctx, http.MethodGet, "/pickup_points", params, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// do performs a request and decodes a 2xx JSON body into out when out is non-nil.
func (c *HTTPAPIClient) do(ctx context.Context, method, path string, params url.Values, body, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "tournevent-labeler/1.0")
	req.SetBasicAuth(c.apiUser, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return carrier.NewError(carrier.Shipmondo, carrier.KindRemoteUnavailable, "request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.parseError(resp)
	}
	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return carrier.NewError(carrier.Shipmondo, carrier.KindUnexpectedResponse,
			fmt.Sprintf("failed to decode %s %s response", method, path)).WithCause(err)
	}
	return nil
}

// parseError converts a non-2xx response into a carrier error.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	msg := strings.TrimSpace(string(body))
	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil {
		if apiErr.Error != "" {
			msg = apiErr.Error
		} else if apiErr.Message != "" {
			msg = apiErr.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return carrier.NewError(carrier.Shipmondo, carrier.KindFromStatus(resp.StatusCode),
		fmt.Sprintf("Shipmondo API %d: %s", resp.StatusCode, msg)).
		WithStatusCode(resp.StatusCode)
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
