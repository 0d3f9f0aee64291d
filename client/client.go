// Package client is the outbound Kiket REST client handed to webhook
// handlers. Each instance is scoped to the runtime token of one verified
// delivery, so handler calls act with exactly the capabilities the platform
// granted for that invocation.
//
// Calls are single-attempt; retry policy is the caller's decision.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kiket-dev/kiket-go/internal/log"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx response from the platform.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kiket api: status %d: %s", e.Status, e.Message)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger replaces the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client calls the platform's REST API with a delivery-scoped bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// New returns a client for the platform at baseURL, authenticating as token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  log.WithComponent("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("api call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var envelope struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&envelope); decodeErr == nil && envelope.Error != "" {
			apiErr.Message = envelope.Error
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

// --- Custom data ---

// GetCustomData fetches one record from a custom data collection.
func (c *Client) GetCustomData(ctx context.Context, collection, key string) (map[string]any, error) {
	var out map[string]any
	err := c.do(ctx, http.MethodGet, customDataPath(collection, key), nil, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetCustomData creates or replaces a record in a custom data collection.
func (c *Client) SetCustomData(ctx context.Context, collection, key string, value any) error {
	return c.do(ctx, http.MethodPut, customDataPath(collection, key), value, nil)
}

// DeleteCustomData removes a record from a custom data collection.
func (c *Client) DeleteCustomData(ctx context.Context, collection, key string) error {
	return c.do(ctx, http.MethodDelete, customDataPath(collection, key), nil, nil)
}

// ListCustomData returns every record in a custom data collection.
func (c *Client) ListCustomData(ctx context.Context, collection string) ([]map[string]any, error) {
	var out struct {
		Items []map[string]any `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/custom_data/"+url.PathEscape(collection), nil, &out)
	if err != nil {
		return nil, err
	}
	return out.Items, nil
}

func customDataPath(collection, key string) string {
	return "/api/v1/custom_data/" + url.PathEscape(collection) + "/" + url.PathEscape(key)
}

// --- SLA events ---

// SLAEvent marks an SLA-relevant moment on a ticket.
type SLAEvent struct {
	Name     string         `json:"name"`
	TicketID string         `json:"ticket_id"`
	At       time.Time      `json:"at"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SendSLAEvent reports an SLA event to the platform.
func (c *Client) SendSLAEvent(ctx context.Context, ev SLAEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	return c.do(ctx, http.MethodPost, "/api/v1/sla/events", ev, nil)
}

// --- Intake forms ---

// IntakeForm is a form submission created on a requester's behalf.
type IntakeForm struct {
	FormID string         `json:"form_id"`
	Fields map[string]any `json:"fields"`
}

// IntakeFormResult is the platform's acknowledgement of a submission.
type IntakeFormResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SubmitIntakeForm submits an intake form.
func (c *Client) SubmitIntakeForm(ctx context.Context, form IntakeForm) (*IntakeFormResult, error) {
	var out IntakeFormResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/intake_forms", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// --- Audit ---

// AuditVerification is the platform's integrity attestation for one record.
type AuditVerification struct {
	RecordID    string `json:"record_id"`
	Verified    bool   `json:"verified"`
	ChainDigest string `json:"chain_digest,omitempty"`
}

// VerifyAuditRecord asks the platform to verify an audit record against its
// integrity chain.
func (c *Client) VerifyAuditRecord(ctx context.Context, recordID string) (*AuditVerification, error) {
	var out AuditVerification
	path := "/api/v1/audit/" + url.PathEscape(recordID) + "/verify"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
