// Package client provides the page fetcher for the UCSB curriculum
// class-search API: one GET per (pageNumber, pageSize) pair, decoded into a
// curriculum.APIResponse, with error classification, optional bounded retry
// and an in-flight request limit.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/ucsb-curriculum-client/pkg/curriculum"
	"github.com/Sternrassler/ucsb-curriculum-client/pkg/logging"
	"github.com/Sternrassler/ucsb-curriculum-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for curriculum API requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucsb_requests_total",
		Help: "Total curriculum API requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ucsb_request_duration_seconds",
		Help:    "Curriculum API request duration in seconds, including decode",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucsb_errors_total",
		Help: "Total curriculum API errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the UCSB developer API host.
	DefaultBaseURL = "https://api.ucsb.edu"

	// SearchPath is the class-search endpoint.
	SearchPath = "/academics/curriculums/v1/classes/search"

	// DefaultQuarter is Spring 2020.
	DefaultQuarter = "20202"

	// DefaultAPIVersion is sent as the ucsb-api-version header.
	DefaultAPIVersion = "1.0"

	// MaxPageSize is the server's documented page size ceiling.
	MaxPageSize = 100

	// maxErrorBody bounds how much of an error body ends up in messages.
	maxErrorBody = 512
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the scheme and host of the API, without a trailing path.
	BaseURL string

	// APIKey is sent as the ucsb-api-key header (REQUIRED).
	APIKey string

	// APIVersion is sent as the ucsb-api-version header.
	APIVersion string

	// Quarter is the term code, e.g. "20202" for Spring 2020.
	Quarter string

	// Timeout bounds each HTTP call including reading the body.
	Timeout time.Duration

	// MaxInFlight bounds concurrent HTTP calls made through this client.
	MaxInFlight int

	// Retry controls per-page retry. MaxAttempts 1 disables it.
	Retry RetryConfig
}

// DefaultConfig returns a configuration for the live API.
func DefaultConfig(apiKey string) Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		APIKey:      apiKey,
		APIVersion:  DefaultAPIVersion,
		Quarter:     DefaultQuarter,
		Timeout:     60 * time.Second,
		MaxInFlight: 8,
		Retry:       DefaultRetryConfig(),
	}
}

// Client fetches single pages from the class-search endpoint.
// It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	searchURL  *url.URL
	gate       *ratelimit.Gate
	config     Config
	logger     zerolog.Logger
}

// New creates a new curriculum API client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.Quarter == "" {
		return nil, fmt.Errorf("quarter is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 8
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	logger := logging.NewLogger("curriculum-client")

	gate, err := ratelimit.NewGate(cfg.MaxInFlight, logger)
	if err != nil {
		return nil, fmt.Errorf("create request gate: %w", err)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		searchURL: base.JoinPath(SearchPath),
		gate:      gate,
		config:    cfg,
		logger:    logger,
	}, nil
}

// FetchPage fetches one page of the quarter's classes with sections included.
func (c *Client) FetchPage(ctx context.Context, pageNumber, pageSize int) (*curriculum.APIResponse, error) {
	if pageNumber < 1 {
		return nil, fmt.Errorf("%w: page number %d < 1", ErrInvalidPage, pageNumber)
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return nil, fmt.Errorf("%w: page size %d outside [1, %d]", ErrInvalidPage, pageSize, MaxPageSize)
	}

	pageURL := c.PageURL(pageNumber, pageSize)

	var page *curriculum.APIResponse
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		var fetchErr error
		page, fetchErr = c.fetchOnce(ctx, pageURL, pageSize)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", pageNumber, err)
	}

	c.logger.Debug().
		Int("page", pageNumber).
		Int("classes", len(page.Classes)).
		Uint32("total", page.Total).
		Msg("Fetched page")

	return page, nil
}

// PageURL returns the request URL for a page.
func (c *Client) PageURL(pageNumber, pageSize int) string {
	u := *c.searchURL
	q := url.Values{}
	q.Set("quarter", c.config.Quarter)
	q.Set("pageNumber", strconv.Itoa(pageNumber))
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("includeClassSections", "true")
	u.RawQuery = q.Encode()
	return u.String()
}

// fetchOnce performs a single GET and decode, holding one in-flight slot.
func (c *Client) fetchOnce(ctx context.Context, pageURL string, pageSize int) (*curriculum.APIResponse, error) {
	if err := c.gate.Acquire(ctx); err != nil {
		return nil, &APIError{ErrorClass: ErrorClassNetwork, Message: "wait for request slot", Err: err}
	}
	defer c.gate.Release()

	startTime := time.Now()
	defer func() {
		requestDuration.Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("ucsb-api-version", c.config.APIVersion)
	req.Header.Set("ucsb-api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues("network_error").Inc()
		c.logger.Error().Err(err).Str("url", pageURL).Msg("HTTP request failed")
		return nil, &APIError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errClass := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Str("url", pageURL).
			Msg("Curriculum API request error")

		msg := resp.Status
		if len(body) > 0 {
			msg = fmt.Sprintf("%s: %s", resp.Status, body)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, ErrorClass: errClass, Message: msg}
	}

	var page curriculum.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		// A body cut off by the client timeout surfaces here as well.
		if ctx.Err() == nil && isTimeout(err) {
			return nil, &APIError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassNetwork, Message: "read body", Err: err}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassDecode, Message: "decode response", Err: err}
	}

	if err := page.Validate(pageSize); err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &APIError{StatusCode: resp.StatusCode, ErrorClass: ErrorClassDecode, Message: "validate response", Err: err}
	}

	return &page, nil
}

// isTimeout reports whether err is a net timeout.
func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	t, ok := err.(timeout)
	return ok && t.Timeout()
}

// Config returns the effective client configuration.
func (c *Client) Config() Config {
	return c.config
}

// Gate returns the in-flight request gate (for testing).
func (c *Client) Gate() *ratelimit.Gate {
	return c.gate
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
