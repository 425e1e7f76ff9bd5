package gls

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

// DefaultBaseURL is the production GLS API endpoint.
const DefaultBaseURL = "https://api.gls.dk"

// HTTPAPIClient is the production implementation of APIClient using HTTP/JSON.
type HTTPAPIClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL  string
	Username string
	Password string // Password for Basic Auth
	Timeout  time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &HTTPAPIClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateShipment books a consignment.
// POST /shipments
func (c *HTTPAPIClient) CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/shipments", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.parseError(resp)
	}

	var result ShipmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, carrier.NewError(carrier.GLS, carrier.KindUnexpectedResponse, "failed to decode shipment response").WithCause(err)
	}
	return &result, nil
}

// CancelShipment deletes a consignment.
// DELETE /shipments/{consignment_id}
func (c *HTTPAPIClient) CancelShipment(ctx context.Context, consignmentID string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/shipments/"+url.PathEscape(consignmentID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.parseError(resp)
	}
	return nil
}

// GetTracking retrieves tracking events.
// GET /tracking/{parcel_number}
func (c *HTTPAPIClient) GetTracking(ctx context.Context, parcelNumber string) (*TrackingResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/tracking/"+url.PathEscape(parcelNumber), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result TrackingResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, carrier.NewError(carrier.GLS, carrier.KindUnexpectedResponse, "failed to decode tracking response").WithCause(err)
	}
	return &result, nil
}

// FindParcelShops lists parcel shops.
// GET /parcelshops?zipcode=&countrycode=
func (c *HTTPAPIClient) FindParcelShops(ctx context.Context, zip, countryCode string) (*ParcelShopResponse, error) {
	params := url.Values{}
	params.Set("zipcode", zip)
	params.Set("countrycode", countryCode)

	resp, err := c.doRequest(ctx, http.MethodGet, "/parcelshops?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result ParcelShopResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, carrier.NewError(carrier.GLS, carrier.KindUnexpectedResponse, "failed to decode parcel shop response").WithCause(err)
	}
	return &result, nil
}

// doRequest performs an HTTP request with JSON headers and basic authentication.
// Transport failures are reported as RemoteUnavailable.
func (c *HTTPAPIClient) doRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "tournevent-labeler/1.0")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, carrier.NewError(carrier.GLS, carrier.KindRemoteUnavailable, "request failed").WithCause(err)
	}
	return resp, nil
}

// parseError converts a non-2xx response into a carrier error.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	msg := strings.TrimSpace(string(body))
	var apiErr struct {
		Message string `json:"Message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil {
		if apiErr.Message != "" {
			msg = apiErr.Message
		} else if apiErr.Error != "" {
			msg = apiErr.Error
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	return carrier.NewError(carrier.GLS, carrier.KindFromStatus(resp.StatusCode),
		fmt.Sprintf("GLS API error %d: %s", resp.StatusCode, msg)).
		WithStatusCode(resp.StatusCode)
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
