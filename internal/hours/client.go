package hours

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/peakfit/gymcore/internal/txid"
)

// TokenSource mints the bearer token the client presents downstream. The
// trainer-hours service verifies it with the shared public key.
type TokenSource func(ctx context.Context) (string, error)

// Client is the direct request/response transport to the trainer-hours
// service: the clear-all step that a full resync must confirm, and
// synchronous workload queries.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// ClientOption configures Client behavior.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTokenSource sets the bearer token minting function.
func WithTokenSource(ts TokenSource) ClientOption {
	return func(c *Client) {
		c.tokens = ts
	}
}

// NewClient creates a client for the trainer-hours base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ClearAll asks the downstream to drop its whole read model before a replay.
func (c *Client) ClearAll(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/v1/workload", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("hours: clear all: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("hours: clear all: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// MonthlyHours returns the recorded hours for one trainer in a given month.
func (c *Client) MonthlyHours(ctx context.Context, trainer string, year int, month time.Month) (float64, error) {
	path := "/v1/workload/" + url.PathEscape(strings.TrimSpace(trainer))
	req, err := c.newRequest(ctx, http.MethodGet, path, url.Values{
		"year":  {strconv.Itoa(year)},
		"month": {strconv.Itoa(int(month))},
	})
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("hours: monthly hours: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("hours: monthly hours: unexpected status %d", resp.StatusCode)
	}
	var body struct {
		Hours float64 `json:"hours"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("hours: decode response: %w", err)
	}
	return body.Hours, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("hours: build request: %w", err)
	}
	if id, ok := txid.From(ctx); ok {
		req.Header.Set(txid.Header, id)
	}
	if c.tokens != nil {
		tok, err := c.tokens(ctx)
		if err != nil {
			return nil, fmt.Errorf("hours: mint service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}
