// Package client fetches pages of DPE records from the ADEME Data Fair API.
//
// A page fetch is a single attempt: every failure is classified and returned
// as a *FetchError, and it is up to the caller to stop.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dpe-analyse/dpe-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the "lines" endpoint of the existing-dwellings DPE dataset.
const DefaultBaseURL = "https://data.ademe.fr/data-fair/api/v1/datasets/dpe03existant/lines"

// MaxPageSize is the largest page size the API accepts.
const MaxPageSize = 10000

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 256 << 20

// Prometheus metrics for DPE client operations.
var (
	dpeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dpe_requests_total",
		Help: "Total DPE API requests by status",
	}, []string{"status"})

	dpeRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dpe_request_duration_seconds",
		Help:    "DPE API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	dpeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dpe_errors_total",
		Help: "Total DPE API errors by class",
	}, []string{"class"})
)

// Client is the DPE API client.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the dataset "lines" endpoint.
	BaseURL string

	// User-Agent header sent with every request.
	UserAgent string

	// PageSize is the number of records requested per page.
	PageSize int

	// Timeout bounds each request, connection through body.
	Timeout time.Duration

	// Redis enables the shared rate limit gate (optional).
	Redis *redis.Client
}

// DefaultConfig returns the configuration used against the public API.
func DefaultConfig(userAgent string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		UserAgent: userAgent,
		PageSize:  1000,
		Timeout:   30 * time.Second,
	}
}

// New creates a new DPE client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.PageSize < 1 || cfg.PageSize > MaxPageSize {
		return nil, fmt.Errorf("page size must be between 1 and %d (got %d)", MaxPageSize, cfg.PageSize)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}

	logger := log.With().Str("component", "dpe-client").Logger()

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logger,
	}
	if cfg.Redis != nil {
		c.rateLimiter = ratelimit.NewTracker(cfg.Redis, logger)
	}

	return c, nil
}

// Endpoint returns the configured dataset endpoint.
func (c *Client) Endpoint() string {
	return c.config.BaseURL
}

// Filter builds a filter on field = value with the configured page size.
func (c *Client) Filter(field, value string) Filter {
	return Filter{Field: field, Value: value, PageSize: c.config.PageSize}
}

// FetchPage performs one GET for req and decodes the page.
// Any failure is returned as a *FetchError; the request is never retried.
func (c *Client) FetchPage(ctx context.Context, req Request) (*Page, error) {
	target, err := req.URL()
	if err != nil {
		return nil, fmt.Errorf("build request url: %w", err)
	}

	if c.rateLimiter != nil {
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			// A broken gate must not stop the fetch.
			c.logger.Warn().Err(err).Msg("Rate limit check failed")
		} else if !allowed {
			dpeErrorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			dpeRequestsTotal.WithLabelValues("rate_limited").Inc()
			return nil, &FetchError{
				Class:   ErrorClassRateLimit,
				Message: "blocked before sending",
				Err:     ErrRequestBlocked,
			}
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("url", target).
		Bool("continuation", req.IsContinuation()).
		Msg("Fetching DPE page")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	dpeRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		class := c.classifyError(nil, err)
		dpeErrorsTotal.WithLabelValues(string(class)).Inc()
		dpeRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, &FetchError{Class: class, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	dpeRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if c.rateLimiter != nil {
		if err := c.rateLimiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
		}
	}

	if resp.StatusCode >= 400 {
		class := c.classifyError(resp, nil)
		dpeErrorsTotal.WithLabelValues(string(class)).Inc()
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, &FetchError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    resp.Status,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		class := c.classifyError(nil, err)
		dpeErrorsTotal.WithLabelValues(string(class)).Inc()
		return nil, &FetchError{
			StatusCode: resp.StatusCode,
			Class:      class,
			Message:    "read response body",
			Err:        err,
		}
	}

	page, err := decodePage(body)
	if err != nil {
		dpeErrorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &FetchError{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassDecode,
			Message:    "decode response body",
			Err:        err,
		}
	}

	return page, nil
}

// classifyError categorizes a failed response or transport error.
func (c *Client) classifyError(resp *http.Response, err error) ErrorClass {
	if err != nil {
		if errors.Is(err, ErrRequestBlocked) {
			return ErrorClassRateLimit
		}
		return ErrorClassNetwork
	}

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return ErrorClassEndOfRange
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return ErrorClassClient
	case resp.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
