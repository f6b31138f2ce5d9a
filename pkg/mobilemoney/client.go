package mobilemoney

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/rentwise-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/rentwise-payments/pkg/errors"
)

const (
	defaultTimeout              = 15 * time.Second
	chargePath                  = "charge"
	statusPath                  = "status"
	responseBodyReadLimit int64 = 1024

	// MetadataIdempotencyKey is forwarded as the Idempotency-Key header.
	MetadataIdempotencyKey = "idempotencyKey"
)

// Client calls the mobile-money provider's charge and status endpoints.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the provider base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout bounds every provider call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds a gateway client. The API key and base URL are required.
func NewClient(apiKey, baseURL string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeFailedPrecondition, "mobile money api key is required")
	}
	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    strings.TrimSpace(baseURL),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.baseURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeFailedPrecondition, "mobile money base url is required")
	}
	return client, nil
}

// ChargeRequest starts a mobile-money debit.
type ChargeRequest struct {
	Amount        decimal.Decimal   `json:"amount"`
	Currency      string            `json:"currency"`
	CustomerName  string            `json:"customerName"`
	CustomerPhone string            `json:"customerPhone"`
	Narration     string            `json:"narration"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Network       enums.Network     `json:"network"`
}

// StatusQuery identifies a payment by provider id, reference, or both.
type StatusQuery struct {
	ID        string `json:"id,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// PaymentResult is the provider's view of one charge.
type PaymentResult struct {
	ID         string
	Reference  string
	Status     enums.PaymentStatus
	CustomerID *string
}

type paymentResponse struct {
	ID         string  `json:"id"`
	Reference  string  `json:"reference"`
	Status     string  `json:"status"`
	CustomerID *string `json:"customerId"`
}

// Charge asks the provider to debit the customer. When it fails the caller must
// assume no reference was allocated.
func (c *Client) Charge(ctx context.Context, req ChargeRequest) (*PaymentResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeFailedPrecondition, "mobile money client not configured")
	}
	headers := map[string]string{}
	if key := strings.TrimSpace(req.Metadata[MetadataIdempotencyKey]); key != "" {
		headers["Idempotency-Key"] = key
	}
	return c.post(ctx, chargePath, req, headers)
}

// QueryStatus fetches the provider's current status for one payment.
func (c *Client) QueryStatus(ctx context.Context, query StatusQuery) (*PaymentResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeFailedPrecondition, "mobile money client not configured")
	}
	query.ID = strings.TrimSpace(query.ID)
	query.Reference = strings.TrimSpace(query.Reference)
	if query.ID == "" && query.Reference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id or reference is required")
	}
	return c.post(ctx, statusPath, query, nil)
}

func (c *Client) post(ctx context.Context, path string, body any, headers map[string]string) (*PaymentResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal "+path+" request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build "+path+" request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute "+path+" request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			path+" request failed").
			WithDetails(map[string]any{"providerStatus": resp.StatusCode})
	}

	var apiResp paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode "+path+" response")
	}
	return toResult(path, apiResp)
}

func toResult(path string, apiResp paymentResponse) (*PaymentResult, error) {
	if strings.TrimSpace(apiResp.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, path+" response missing reference")
	}
	status, err := enums.ParsePaymentStatus(apiResp.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, path+" response has unknown status").
			WithDetails(map[string]any{"reference": apiResp.Reference, "status": apiResp.Status})
	}
	result := &PaymentResult{
		ID:        apiResp.ID,
		Reference: apiResp.Reference,
		Status:    status,
	}
	if apiResp.CustomerID != nil && strings.TrimSpace(*apiResp.CustomerID) != "" {
		customerID := strings.TrimSpace(*apiResp.CustomerID)
		result.CustomerID = &customerID
	}
	return result, nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
