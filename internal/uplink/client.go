package uplink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/inetanalyzer/agent/internal/metrics"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "inetanalyzer-go"
	// DefaultUploadScheme prefixes upload endpoints given without a scheme.
	DefaultUploadScheme = "https://"
	maxBodyBytes        = 4 << 20
)

// ErrNoCandidates is returned when FirstSuccess is given no URLs.
var ErrNoCandidates = errors.New("no candidate urls")

// ErrBodyTooLarge is returned when a response body exceeds the read limit.
var ErrBodyTooLarge = errors.New("response body too large")

// FallbackError reports that every candidate failed. URL names the last
// candidate tried and Err its failure.
type FallbackError struct {
	URL string
	Err error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("all candidates failed, last %s: %v", e.URL, e.Err)
}

func (e *FallbackError) Unwrap() error {
	return e.Err
}

// StatusError is the failure of a candidate that answered with a non-2xx status.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.Status)
}

// Result is the outcome of the first candidate that succeeded.
type Result struct {
	URL  string
	Body []byte
}

// Config holds the static configuration for an Uplink client.
type Config struct {
	UserAgent    string
	UploadScheme string
}

// Dependencies allow test overrides for HTTP client, logging and metrics.
type Dependencies struct {
	HTTPClient *http.Client
	Logger     *zerolog.Logger
	Metrics    metrics.RunRecorder
}

// Client retrieves the configuration document and uploads reports, each by
// trying a list of URLs in order until one succeeds.
type Client struct {
	httpClient   *http.Client
	userAgent    string
	uploadScheme string
	logger       zerolog.Logger
	metrics      metrics.RunRecorder
}

// NewClient builds an Uplink client from configuration and dependencies.
func NewClient(cfg Config, deps Dependencies) *Client {
	c := &Client{
		httpClient:   deps.HTTPClient,
		userAgent:    cfg.UserAgent,
		uploadScheme: cfg.UploadScheme,
		logger:       zerolog.Nop(),
		metrics:      deps.Metrics,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.userAgent == "" {
		c.userAgent = defaultUserAgent
	}
	if c.uploadScheme == "" {
		c.uploadScheme = DefaultUploadScheme
	}
	if deps.Logger != nil {
		c.logger = *deps.Logger
	}
	if c.metrics == nil {
		c.metrics = metrics.NoopRunRecorder{}
	}
	return c
}

// FirstSuccess issues GET requests to urls strictly in order and returns the
// first one answering 2xx with a fully read body. Later URLs are not tried.
func (c *Client) FirstSuccess(ctx context.Context, urls []string) (Result, error) {
	if len(urls) == 0 {
		return Result{}, ErrNoCandidates
	}

	var last *FallbackError
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			if last == nil {
				last = &FallbackError{URL: u, Err: err}
			}
			return Result{}, last
		}
		body, err := c.get(ctx, u)
		if err == nil {
			return Result{URL: u, Body: body}, nil
		}
		c.logger.Debug().Err(err).Str("url", u).Msg("candidate failed")
		last = &FallbackError{URL: u, Err: err}
	}
	return Result{}, last
}

// FetchConfiguration retrieves the raw configuration document.
func (c *Client) FetchConfiguration(ctx context.Context, urls []string) (Result, error) {
	res, err := c.FirstSuccess(ctx, urls)
	c.metrics.ObserveConfigFetch(err == nil)
	if err != nil {
		return Result{}, fmt.Errorf("fetch configuration: %w", err)
	}
	c.logger.Debug().Str("url", res.URL).Int("bytes", len(res.Body)).Msg("configuration fetched")
	return res, nil
}

// Upload sends the encoded report query to the first accepting endpoint.
func (c *Client) Upload(ctx context.Context, endpoints []string, query string) (Result, error) {
	res, err := c.FirstSuccess(ctx, UploadURLs(c.uploadScheme, endpoints, query))
	c.metrics.ObserveUpload(err == nil)
	if err != nil {
		return Result{}, fmt.Errorf("upload report: %w", err)
	}
	c.logger.Debug().Str("url", res.URL).Msg("report uploaded")
	return res, nil
}

// UploadURLs appends query to every endpoint. Endpoints without "://" are
// prefixed with scheme.
func UploadURLs(scheme string, endpoints []string, query string) []string {
	out := make([]string, 0, len(endpoints))
	for _, endpoint := range endpoints {
		var b strings.Builder
		if !strings.Contains(endpoint, "://") {
			b.WriteString(scheme)
		}
		b.WriteString(endpoint)
		if strings.Contains(endpoint, "?") {
			b.WriteByte('&')
		} else {
			b.WriteByte('?')
		}
		b.WriteString(query)
		out = append(out, b.String())
	}
	return out
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, maxBodyBytes)
	}
	return body, nil
}
