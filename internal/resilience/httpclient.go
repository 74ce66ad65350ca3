package resilience

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	// Name labels the breaker and log lines, e.g. "github".
	Name string

	// Timeout bounds every single attempt. Default: 15s
	Timeout time.Duration

	// Rate is the steady request rate in requests per second. Zero disables
	// the limiter.
	Rate float64

	// Burst is the limiter bucket size. Default: 1
	Burst int

	// MaxRetries is the number of extra attempts for transient failures.
	MaxRetries int

	// RetryWait is the first backoff interval. Default: 500ms
	RetryWait time.Duration

	UserAgent string
}

// HTTPClient issues JSON requests through a rate limiter, a bounded retry
// and a circuit breaker, in that order.
type HTTPClient struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	breaker *Breaker
	retry   RetryConfig
}

// NewHTTPClient creates a client from cfg.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	limiter := rate.NewLimiter(rate.Inf, cfg.Burst)
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Burst)
	}

	retry := DefaultRetryConfig
	retry.MaxRetries = cfg.MaxRetries
	if cfg.RetryWait > 0 {
		retry.InitialWait = cfg.RetryWait
	}

	return &HTTPClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		breaker: NewBreaker(cfg.Name),
		retry:   retry,
	}
}

// Name returns the configured client name.
func (c *HTTPClient) Name() string { return c.cfg.Name }

// Breaker exposes the client's circuit breaker.
func (c *HTTPClient) Breaker() *Breaker { return c.breaker }

// GetJSON fetches url and decodes the JSON body into out.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	return c.doJSON(ctx, http.MethodGet, url, header, nil, out)
}

// PostJSON posts body as JSON and decodes the response into out.
func (c *HTTPClient) PostJSON(ctx context.Context, url string, header http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal request: %w", c.cfg.Name, err)
	}
	return c.doJSON(ctx, http.MethodPost, url, header, payload, out)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, url string, header http.Header, payload []byte, out any) error {
	data, err := RetryDo(ctx, c.retry, func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		res, err := c.breaker.Execute(ctx, func() (interface{}, error) {
			return c.send(ctx, method, url, header, payload)
		})
		if err != nil {
			return nil, err
		}
		return res.([]byte), nil
	})
	if err != nil {
		return fmt.Errorf("%s: %s %s: %w", c.cfg.Name, method, stripQuery(url), err)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", c.cfg.Name, err)
	}
	return nil
}

func (c *HTTPClient) send(ctx context.Context, method, url string, header http.Header, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		var urlErr *neturl.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = stripQuery(urlErr.URL)
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

// stripQuery drops the query string, which may carry API keys, from a URL
// before it is put into an error.
func stripQuery(u string) string {
	if i := strings.IndexByte(u, '?'); i >= 0 {
		return u[:i]
	}
	return u
}
