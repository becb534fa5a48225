package geotab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/osoriofleet/fleetkm/server/internal/config"
	"github.com/osoriofleet/fleetkm/server/internal/lib/geofence"
)

// HTTPDoer abstracts the HTTP client for testing
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to a MyGeotab-style JSON-RPC telemetry API: authenticate,
// enumerate devices, fetch GPS log records. The analysis core never sees
// this client directly; the batch service adapts its output into coordinate
// sequences.
type Client struct {
	server      string
	username    string
	password    string
	database    string
	deviceGroup string
	baseURL     string
	httpClient  HTTPDoer

	mu          sync.Mutex
	credentials *Credentials
}

// NewClient creates a telemetry client from the service configuration
func NewClient(cfg config.TelemetryConfig) *Client {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		server:      cfg.Server,
		username:    cfg.Username,
		password:    cfg.Password,
		database:    cfg.Database,
		deviceGroup: cfg.DeviceGroup,
		baseURL:     fmt.Sprintf("https://%s/apiv1", cfg.Server),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientWithHTTPDoer creates a client with an injected HTTP implementation
func NewClientWithHTTPDoer(cfg config.TelemetryConfig, baseURL string, doer HTTPDoer) *Client {
	client := NewClient(cfg)
	client.baseURL = baseURL
	client.httpClient = doer
	return client
}

// Authenticate opens a session with the provider. Calls that need a session
// authenticate lazily, so most callers never invoke this directly.
func (c *Client) Authenticate(ctx context.Context) error {
	params := map[string]interface{}{
		"userName": c.username,
		"password": c.password,
		"database": c.database,
	}

	var result authenticateResult
	if err := c.call(ctx, "Authenticate", params, &result); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	c.mu.Lock()
	c.credentials = &result.Credentials
	c.mu.Unlock()
	return nil
}

// ListVehicles returns the devices in the configured device group, or every
// device when no group is configured.
func (c *Client) ListVehicles(ctx context.Context) ([]Device, error) {
	credentials, err := c.sessionCredentials(ctx)
	if err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"typeName":    "Device",
		"credentials": credentials,
	}

	var devices []Device
	if err := c.call(ctx, "Get", params, &devices); err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	if c.deviceGroup == "" {
		return devices, nil
	}

	var filtered []Device
	for _, device := range devices {
		if device.InGroup(c.deviceGroup) {
			filtered = append(filtered, device)
		}
	}
	return filtered, nil
}

// FetchTrace retrieves the GPS samples for one device over a time window,
// in chronological order. Records without a usable fix (0,0) are skipped.
func (c *Client) FetchTrace(ctx context.Context, deviceID string, from, to time.Time) ([]geofence.Coordinate, error) {
	credentials, err := c.sessionCredentials(ctx)
	if err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"typeName": "LogRecord",
		"search": map[string]interface{}{
			"deviceSearch": map[string]string{"id": deviceID},
			"fromDate":     from.UTC().Format(time.RFC3339),
			"toDate":       to.UTC().Format(time.RFC3339),
		},
		"credentials": credentials,
	}

	var records []logRecord
	if err := c.call(ctx, "Get", params, &records); err != nil {
		return nil, fmt.Errorf("failed to fetch trace for device %s: %w", deviceID, err)
	}

	points := make([]geofence.Coordinate, 0, len(records))
	for _, record := range records {
		if record.Latitude == 0 && record.Longitude == 0 {
			continue
		}
		points = append(points, geofence.Coordinate{
			Latitude:  record.Latitude,
			Longitude: record.Longitude,
			Timestamp: record.DateTime,
		})
	}
	return points, nil
}

// sessionCredentials returns the current session, authenticating on first use
func (c *Client) sessionCredentials(ctx context.Context) (*Credentials, error) {
	c.mu.Lock()
	credentials := c.credentials
	c.mu.Unlock()
	if credentials != nil {
		return credentials, nil
	}

	if err := c.Authenticate(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.credentials, nil
}

// call executes one JSON-RPC request against the provider
func (c *Client) call(ctx context.Context, method string, params map[string]interface{}, result interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"method": method,
		"params": params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(respBody))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *apiError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("API error: %s (%s)", envelope.Error.Message, envelope.Error.Name)
	}

	if result != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("failed to decode result: %w", err)
		}
	}
	return nil
}
