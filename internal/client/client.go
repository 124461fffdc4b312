// Package client talks to the upstream booking API: the single-item
// creation endpoint, the bulk reconciliation endpoint, and the health
// endpoint used for connectivity probing.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bookrelay/internal/classify"
	"bookrelay/internal/config"
	"bookrelay/internal/models"
)

type Client struct {
	baseURL    string
	apiKey     string
	apiExtra   string
	httpClient *http.Client
}

// New constructs a client from upstream settings.
func New(cfg config.UpstreamConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(models.DefaultUpstreamTimeoutSeconds) * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		apiExtra:   cfg.APIExtra,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// errorBody is the structured error shape the upstream returns. Kind is
// optional; older deployments only send a message.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// CreateBooking submits one booking payload. The idempotency key is
// sent on every attempt so a retry of the same logical submission can
// never create a second booking upstream.
func (c *Client) CreateBooking(ctx context.Context, payload json.RawMessage, idempotencyKey string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/api/v1/bookings", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.addHeaders(req)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &classify.SubmitError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &classify.SubmitError{Message: err.Error(), Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	return nil, submitError(resp.StatusCode, body)
}

// SyncBookings submits the whole pending set to the bulk reconciliation
// endpoint and returns the upstream's successful/duplicate/failed split.
func (c *Client) SyncBookings(ctx context.Context, items []models.SyncItem) (*models.SyncResult, error) {
	endpoint := fmt.Sprintf("%s/api/v1/bookings/sync", c.baseURL)

	data, err := json.Marshal(map[string]any{"items": items})
	if err != nil {
		return nil, fmt.Errorf("encode sync request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &classify.SubmitError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &classify.SubmitError{Message: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, submitError(resp.StatusCode, body)
	}

	var result models.SyncResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode sync response: %w", err)
	}
	return &result, nil
}

// Ping checks upstream health; used by the connectivity prober.
func (c *Client) Ping(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/healthz", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}
}

func submitError(status int, body []byte) *classify.SubmitError {
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return &classify.SubmitError{StatusCode: status, Kind: parsed.Kind, Message: parsed.Error}
	}
	return &classify.SubmitError{StatusCode: status, Message: string(body)}
}
