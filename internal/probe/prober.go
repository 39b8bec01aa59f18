package probe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/inetanalyzer/agent/internal/measure"
	"github.com/inetanalyzer/agent/internal/metrics"
	"github.com/inetanalyzer/agent/internal/report"
	"github.com/inetanalyzer/agent/internal/token"
)

const (
	// DefaultTimeout bounds a single fetch attempt, redirects and body included.
	DefaultTimeout   = 10 * time.Second
	defaultUserAgent = "inetanalyzer-go"
	maxRedirects     = 10
)

// ErrSchemeDowngrade is reported when an https fetch is redirected to plain http.
var ErrSchemeDowngrade = errors.New("redirect from https to http rejected")

// Config holds the static settings of a Prober.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	// TLSConfig overrides the default trust store; nil uses the system roots.
	TLSConfig *tls.Config
}

// Dependencies allow test overrides for randomness, clock, logging and metrics.
type Dependencies struct {
	Tokens  *token.Source
	Now     func() time.Time
	Logger  *zerolog.Logger
	Metrics metrics.FetchRecorder
}

// Prober measures cold and warm fetch latency against one endpoint at a time.
type Prober struct {
	cfg     Config
	tokens  *token.Source
	now     func() time.Time
	logger  zerolog.Logger
	metrics metrics.FetchRecorder
}

// New constructs a Prober.
func New(cfg Config, deps Dependencies) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	p := &Prober{
		cfg:     cfg,
		tokens:  deps.Tokens,
		now:     deps.Now,
		logger:  zerolog.Nop(),
		metrics: deps.Metrics,
	}
	if deps.Logger != nil {
		p.logger = *deps.Logger
	}
	if p.tokens == nil {
		p.tokens = token.NewSource(nil)
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.metrics == nil {
		p.metrics = metrics.NoopFetchRecorder{}
	}
	return p
}

// Measure runs a cold fetch against spec for the given kind and, when it
// succeeds, a warm fetch over the same connection pool. It returns one or
// two items; the error is only set for an unusable target.
func (p *Prober) Measure(ctx context.Context, spec measure.EndpointSpec, kind measure.Kind) ([]report.Item, error) {
	target, err := NewTarget(spec, kind, p.tokens)
	if err != nil {
		return nil, err
	}

	transport := p.newTransport()
	defer transport.CloseIdleConnections()
	client := &http.Client{
		Transport:     transport,
		Timeout:       p.cfg.Timeout,
		CheckRedirect: rejectDowngrade,
	}

	items := make([]report.Item, 0, 2)
	cold := p.attempt(ctx, client, transport, target, spec.ExperimentID, report.Cold)
	items = append(items, cold)
	if !cold.Result.OK() {
		return items, nil
	}
	warm := p.attempt(ctx, client, transport, target, spec.ExperimentID, report.Warm)
	items = append(items, warm)
	return items, nil
}

// newTransport returns a dedicated connection pool so a cold fetch always
// dials and the following warm fetch can reuse that connection.
func (p *Prober) newTransport() *http.Transport {
	var tlsConfig *tls.Config
	if p.cfg.TLSConfig != nil {
		tlsConfig = p.cfg.TLSConfig.Clone()
	}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsConfig,
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: p.cfg.Timeout,
	}
}

func (p *Prober) attempt(ctx context.Context, client *http.Client, transport *http.Transport, target *Target, experimentID string, phase report.Phase) report.FetchItem {
	rawURL := target.NextURL()
	requestID := target.CurrentEndpoint()
	kind := target.Kind()
	logger := p.logger.With().
		Str("component", "probe").
		Str("url", rawURL).
		Str("phase", string(phase)).
		Logger()

	start := p.now()
	result, headers := p.fetch(ctx, client, rawURL, start)
	if phase == report.Warm || !result.OK() {
		transport.CloseIdleConnections()
	}

	elapsed := time.Duration(result.Elapsed()) * time.Millisecond
	p.metrics.ObserveFetch(kind.String(), string(phase), result.OK(), elapsed)
	logger.Debug().Str("result", result.String()).Msg("fetch finished")

	return report.NewFetchItem(requestID, result, int(kind), phase, target.Object(), experimentID, headers)
}

func (p *Prober) fetch(ctx context.Context, client *http.Client, rawURL string, start time.Time) (report.Result, map[string]string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		p.logger.Debug().Err(err).Str("url", rawURL).Msg("build fetch request failed")
		return report.Failure(report.NoStatus), nil
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		// A rejected redirect still hands back the redirect response.
		var headers map[string]string
		if resp != nil {
			headers = captureHeaders(resp)
			resp.Body.Close()
		}
		p.logger.Debug().Err(err).Str("url", rawURL).Msg("fetch failed")
		return report.Failure(report.NoStatus), headers
	}
	defer resp.Body.Close()

	headers := captureHeaders(resp)
	if resp.StatusCode >= http.StatusBadRequest {
		if _, err := io.Copy(io.Discard, resp.Body); err != nil {
			p.logger.Debug().Err(err).Str("url", rawURL).Msg("drain error response failed")
		}
		return report.Failure(resp.StatusCode), headers
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		p.logger.Debug().Err(err).Str("url", rawURL).Msg("drain response failed")
		return report.Failure(report.NoStatus), headers
	}
	return report.Success(p.now().Sub(start).Milliseconds()), headers
}

func rejectDowngrade(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if prev := via[len(via)-1]; prev.URL.Scheme == "https" && req.URL.Scheme != "https" {
		return ErrSchemeDowngrade
	}
	return nil
}
