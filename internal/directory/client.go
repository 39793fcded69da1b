package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"contrava/pkg/platform/circuit"
	"contrava/pkg/platform/sentinel"
)

// Client is the HTTP implementation of Directory against the registry
// service's read API. A circuit breaker sheds lookups while the registry is
// down so issuance fails fast instead of stacking timeouts.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *circuit.Breaker

	mu        sync.Mutex
	lastProbe time.Time
}

// probeInterval is how often one request is let through an open circuit to
// test whether the registry recovered.
const probeInterval = 5 * time.Second

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient constructs a directory client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		breaker: circuit.New("directory"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Driver looks up a driver reference.
func (c *Client) Driver(ctx context.Context, ref string) (*Driver, error) {
	var driver Driver
	if err := c.get(ctx, "/drivers/"+url.PathEscape(ref), &driver); err != nil {
		return nil, err
	}
	return &driver, nil
}

// Agent looks up an agent reference.
func (c *Client) Agent(ctx context.Context, ref string) (*Agent, error) {
	var agent Agent
	if err := c.get(ctx, "/agents/"+url.PathEscape(ref), &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.breaker.IsOpen() && !c.allowProbe() {
		return fmt.Errorf("directory %s: circuit open: %w", path, sentinel.ErrUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build directory request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return fmt.Errorf("directory request %s: %w: %v", path, sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		c.breaker.RecordSuccess()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode directory response %s: %w", path, err)
		}
		return nil
	case http.StatusNotFound:
		// The registry answered; an unknown reference is not an outage.
		c.breaker.RecordSuccess()
		return sentinel.ErrNotFound
	default:
		c.breaker.RecordFailure()
		return fmt.Errorf("directory %s returned %d: %w", path, resp.StatusCode, sentinel.ErrUnavailable)
	}
}

func (c *Client) allowProbe() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.lastProbe) < probeInterval {
		return false
	}
	c.lastProbe = time.Now()
	return true
}
