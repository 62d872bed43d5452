// Package crm provides the client for the remote Lead Conversation Management
// API, the durable store for customers, conversation contexts, and message logs.
//
// The agent treats the store as an opaque persistence service: every call is a
// blocking HTTP round-trip with a fixed timeout, and a lookup miss is surfaced
// as ErrNotFound so callers can run the create-then-retry-once flow.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/kalkia/sarah-agent/internal/models"
)

// DefaultTimeout bounds every call to the remote store.
const DefaultTimeout = 10 * time.Second

// ErrNotFound indicates the store has no record for the given identifier.
var ErrNotFound = errors.New("crm: not found")

// LookupBy selects which identifier field get_context resolves against.
type LookupBy string

const (
	LookupByID              LookupBy = "id"
	LookupByEmail           LookupBy = "email"
	LookupByPhone           LookupBy = "phone"
	LookupByPhoneNormalized LookupBy = "phone_normalized"
)

// Store is the slice of the remote API the core depends on. Implemented by
// Client; substituted with fakes in tests.
type Store interface {
	CreateCustomer(ctx context.Context, cust models.Customer) (models.Customer, error)
	ListCustomers(ctx context.Context, limit, offset int) ([]models.Customer, error)
	GetContext(ctx context.Context, identifier string, by LookupBy) (models.Context, error)
	LogMessage(ctx context.Context, entry models.MessageLogEntry) (LogResult, error)
	UpdateConversation(ctx context.Context, contextID string, patch models.ConversationPatch) error
}

// LogResult is the response from a log_message call. The store may allocate a
// context on first contact, so the returned context_id is authoritative.
type LogResult struct {
	LogID     string `json:"log_id"`
	ContextID string `json:"context_id"`
}

// Opts holds configuration for the CRM client.
type Opts struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// Option configures the CRM client.
type Option func(*Opts)

// WithBaseURL sets the API base URL.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithAPIKey sets the x-api-key credential.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the remote conversation store over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a CRM client. The API key is required; a missing key is a
// fatal configuration error reported at startup, not per-request.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("CRM base URL must be provided")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("CRM API key must be provided")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	slog.Debug("crm.NewClient: client configured", "base_url", cfg.BaseURL, "api_key_set", cfg.APIKey != "")
	return &Client{baseURL: cfg.BaseURL, apiKey: cfg.APIKey, http: httpClient}, nil
}

// CreateCustomer creates a new customer record. At least one of email or phone
// is required by the store.
func (c *Client) CreateCustomer(ctx context.Context, cust models.Customer) (models.Customer, error) {
	if cust.Email == "" && cust.Phone == "" {
		return models.Customer{}, fmt.Errorf("at least one of email or phone is required to create a customer")
	}
	var created models.Customer
	if err := c.do(ctx, http.MethodPost, "/customers", cust, &created); err != nil {
		return models.Customer{}, fmt.Errorf("create customer: %w", err)
	}
	slog.Debug("crm.CreateCustomer: customer created", "customer_id", created.CustomerID)
	return created, nil
}

// listCustomersResponse matches the store's paginated envelope.
type listCustomersResponse struct {
	Customers []models.Customer `json:"customers"`
}

// ListCustomers returns one page of customers.
func (c *Client) ListCustomers(ctx context.Context, limit, offset int) ([]models.Customer, error) {
	var resp listCustomersResponse
	path := fmt.Sprintf("/customers?limit=%d&offset=%d", limit, offset)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	return resp.Customers, nil
}

// GetContext fetches a customer's conversation context by the given lookup key.
// Returns ErrNotFound when the store has no matching customer.
func (c *Client) GetContext(ctx context.Context, identifier string, by LookupBy) (models.Context, error) {
	var cc models.Context
	path := fmt.Sprintf("/context/%s?by=%s", url.PathEscape(identifier), by)
	if err := c.do(ctx, http.MethodGet, path, nil, &cc); err != nil {
		return models.Context{}, fmt.Errorf("get context for %s: %w", identifier, err)
	}
	return cc, nil
}

// LogMessage appends a message log entry. The entry is never mutated after
// this call.
func (c *Client) LogMessage(ctx context.Context, entry models.MessageLogEntry) (LogResult, error) {
	var res LogResult
	if err := c.do(ctx, http.MethodPost, "/log", entry, &res); err != nil {
		return LogResult{}, fmt.Errorf("log message: %w", err)
	}
	return res, nil
}

// UpdateConversation patches conversation state. Empty patches are a no-op.
func (c *Client) UpdateConversation(ctx context.Context, contextID string, patch models.ConversationPatch) error {
	if contextID == "" {
		return fmt.Errorf("context ID is required for update")
	}
	if patch.IsEmpty() {
		slog.Debug("crm.UpdateConversation: empty patch, skipping", "context_id", contextID)
		return nil
	}
	path := fmt.Sprintf("/context/%s/update", url.PathEscape(contextID))
	if err := c.do(ctx, http.MethodPost, path, patch, nil); err != nil {
		return fmt.Errorf("update conversation %s: %w", contextID, err)
	}
	return nil
}

// do performs one request against the store and decodes the JSON response
// into out (when non-nil). 404s map to ErrNotFound; every other non-2xx
// status and every transport error is a ServiceUnavailable-class failure.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("store unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("store returned %d: %s", resp.StatusCode, string(payload))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
