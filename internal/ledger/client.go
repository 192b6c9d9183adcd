// Package ledger talks to the external workspace account service. The
// ledger owns every balance; this client only reads them and requests
// deltas, translating HTTP responses into domain results.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ServiceError is a non-success response from the ledger, carrying the
// upstream status and body for diagnosis. It is never retried here.
type ServiceError struct {
	Status int
	Body   string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("ledger returned %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether the ledger does not know the workspace.
func (e *ServiceError) IsNotFound() bool { return e.Status == http.StatusNotFound }

// Client performs authenticated balance reads and credit writes against
// the ledger. Every call is a single synchronous request with a bounded
// timeout; the caller decides what a failure means.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type balanceBody struct {
	Balance *json.Number `json:"balance"`
}

type creditBody struct {
	Amount json.Number `json:"amount"`
}

func (c *Client) workspacePath(workspace string) string {
	return fmt.Sprintf("%s/api/v1/workspaces/%s/x402", c.baseURL, workspace)
}

// Balance reads the workspace's current credit balance. A successful
// response without a balance field means zero, not an error.
func (c *Client) Balance(ctx context.Context, workspace string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.workspacePath(workspace), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create ledger request: %w", err)
	}
	return c.do(req)
}

// ApplyCredit asks the ledger to increase the workspace balance by
// amount, expressed in the ledger's decimal units. The idempotency key,
// derived from the settlement proof, lets the ledger drop a duplicate
// submission whose first response was lost in transit.
func (c *Client) ApplyCredit(ctx context.Context, workspace string, amount decimal.Decimal, idempotencyKey string) (decimal.Decimal, error) {
	body, err := json.Marshal(creditBody{Amount: json.Number(amount.String())})
	if err != nil {
		return decimal.Zero, fmt.Errorf("marshal credit request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.workspacePath(workspace), bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, fmt.Errorf("create ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (decimal.Decimal, error) {
	req.Header.Set("X-Api-Key", c.apiKey)

	log.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("calling ledger")

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read ledger response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Zero, &ServiceError{Status: resp.StatusCode, Body: string(raw)}
	}

	var body balanceBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return decimal.Zero, fmt.Errorf("decode ledger response: %w", err)
	}
	if body.Balance == nil {
		return decimal.Zero, nil
	}
	bal, err := decimal.NewFromString(body.Balance.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger returned malformed balance %q", body.Balance.String())
	}
	return bal, nil
}
