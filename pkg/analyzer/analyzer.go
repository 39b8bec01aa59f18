// Package analyzer is the entry point for running a network-quality
// measurement: it retrieves the configuration document, measures a weighted
// sample of its endpoints and uploads the report.
package analyzer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/inetanalyzer/agent/internal/agent"
	"github.com/inetanalyzer/agent/internal/logging"
	"github.com/inetanalyzer/agent/internal/measure"
	"github.com/inetanalyzer/agent/internal/metrics"
	"github.com/inetanalyzer/agent/internal/probe"
	"github.com/inetanalyzer/agent/internal/uplink"
	"github.com/inetanalyzer/agent/internal/verify"
)

const (
	ClientName          = agent.DefaultClientName
	DefaultUploadScheme = uplink.DefaultUploadScheme
)

// Version is reported in every upload. It is set at build time.
var Version = agent.DefaultVersion

var (
	// ErrInvalidArgument is returned for an empty monitor id, configuration or upload scheme.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSignature is returned when the configuration document fails signature verification.
	ErrSignature = errors.New("configuration signature rejected")
)

// Recorder receives fetch and run observations.
type Recorder interface {
	metrics.FetchRecorder
	metrics.RunRecorder
}

// Options tune an Analyzer. The zero value is usable.
type Options struct {
	UserAgent     string
	UploadScheme  string
	Timeout       time.Duration
	Workers       int
	RatePerSecond float64
	// Seed fixes endpoint sampling; zero seeds from the clock.
	Seed int64
	// PublicKey enables Minisign verification of fetched configurations.
	PublicKey       string
	SignatureSuffix string
	TLSConfig       *tls.Config
	HTTPClient      *http.Client
	Logger          *zerolog.Logger
	Metrics         Recorder
}

// Result describes a completed run.
type Result struct {
	// URL is the upload URL that accepted the report.
	URL string
	// Body is the collector's response body.
	Body      string
	ConfigURL string
	RunID     string
	StartedAt time.Time
	Sampled   int
	Dropped   int
	Items     int
}

// Analyzer runs measurements. It is safe for concurrent use.
type Analyzer struct {
	opts     Options
	prober   *probe.Prober
	verifier *verify.MinisignVerifier
	logger   zerolog.Logger
	metrics  Recorder

	mu   sync.Mutex
	seed *rand.Rand
}

type noopRecorder struct {
	metrics.NoopFetchRecorder
	metrics.NoopRunRecorder
}

// New builds an Analyzer from opts.
func New(opts Options) (*Analyzer, error) {
	if opts.UploadScheme == "" {
		opts.UploadScheme = DefaultUploadScheme
	}
	if opts.SignatureSuffix == "" {
		opts.SignatureSuffix = verify.DefaultSignatureSuffix
	}
	a := &Analyzer{
		opts:    opts,
		logger:  zerolog.Nop(),
		metrics: opts.Metrics,
	}
	if opts.Logger != nil {
		a.logger = *opts.Logger
	}
	if a.metrics == nil {
		a.metrics = noopRecorder{}
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	a.seed = rand.New(rand.NewSource(seed))

	if strings.TrimSpace(opts.PublicKey) != "" {
		v, err := verify.NewMinisignVerifier(opts.PublicKey)
		if err != nil {
			return nil, err
		}
		a.verifier = v
	}

	a.prober = probe.New(
		probe.Config{Timeout: opts.Timeout, UserAgent: opts.UserAgent, TLSConfig: opts.TLSConfig},
		probe.Dependencies{Logger: logging.Component(a.logger, "probe"), Metrics: a.metrics},
	)
	return a, nil
}

// Execute fetches the configuration from the first reachable configURL,
// measures it and uploads the report with the configured upload scheme.
func (a *Analyzer) Execute(ctx context.Context, monitorID, tag string, configURLs []string) (Result, error) {
	if strings.TrimSpace(monitorID) == "" {
		return Result{}, fmt.Errorf("%w: monitor id is empty", ErrInvalidArgument)
	}
	if len(configURLs) == 0 {
		return Result{}, fmt.Errorf("%w: no configuration urls", ErrInvalidArgument)
	}

	client := a.uplink(a.opts.UploadScheme)
	cfg, err := client.FetchConfiguration(ctx, configURLs)
	if err != nil {
		return Result{}, err
	}
	if err := a.verifyDocument(ctx, client, cfg); err != nil {
		return Result{}, err
	}

	res, err := a.execute(ctx, client, monitorID, tag, string(cfg.Body))
	res.ConfigURL = cfg.URL
	return res, err
}

// ExecuteDocument measures the given configuration document and uploads the
// report, prefixing scheme-less upload endpoints with uploadScheme.
func (a *Analyzer) ExecuteDocument(ctx context.Context, monitorID, tag, document, uploadScheme string) (Result, error) {
	if strings.TrimSpace(monitorID) == "" {
		return Result{}, fmt.Errorf("%w: monitor id is empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(document) == "" {
		return Result{}, fmt.Errorf("%w: configuration is empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(uploadScheme) == "" {
		return Result{}, fmt.Errorf("%w: upload scheme is empty", ErrInvalidArgument)
	}
	return a.execute(ctx, a.uplink(uploadScheme), monitorID, tag, document)
}

func (a *Analyzer) execute(ctx context.Context, client *uplink.Client, monitorID, tag, document string) (Result, error) {
	ag, err := agent.New(
		agent.Config{
			MonitorID:     monitorID,
			Tag:           tag,
			ClientName:    ClientName,
			Version:       Version,
			Workers:       a.opts.Workers,
			RatePerSecond: a.opts.RatePerSecond,
		},
		agent.Dependencies{
			Prober:   a.prober,
			Uploader: client,
			Rand:     a.nextRand(),
			Logger:   logging.Component(a.logger, "agent"),
			Metrics:  a.metrics,
		},
	)
	if err != nil {
		return Result{}, err
	}

	out, err := ag.Execute(ctx, []byte(document))
	res := Result{
		URL:       out.Upload.URL,
		Body:      string(out.Upload.Body),
		RunID:     out.RunID,
		StartedAt: out.StartedAt,
		Sampled:   len(out.Sampled),
		Dropped:   out.Dropped,
		Items:     len(out.Items),
	}
	return res, err
}

func (a *Analyzer) verifyDocument(ctx context.Context, client *uplink.Client, cfg uplink.Result) error {
	if a.verifier == nil {
		return nil
	}
	sigURL := verify.SignatureURL(cfg.URL, a.opts.SignatureSuffix)
	sig, err := client.FirstSuccess(ctx, []string{sigURL})
	if err == nil {
		err = a.verifier.Verify(ctx, cfg.Body, sig.Body)
	}
	if err != nil {
		a.metrics.ObserveSignatureFailure()
		a.logger.Error().Err(err).Str("url", sigURL).Msg("configuration signature rejected")
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}
	return nil
}

func (a *Analyzer) uplink(scheme string) *uplink.Client {
	return uplink.NewClient(
		uplink.Config{UserAgent: a.opts.UserAgent, UploadScheme: scheme},
		uplink.Dependencies{
			HTTPClient: a.opts.HTTPClient,
			Logger:     logging.Component(a.logger, "uplink"),
			Metrics:    a.metrics,
		},
	)
}

// nextRand derives an independent sampling source for one run so a fixed
// seed yields a reproducible sequence of runs.
func (a *Analyzer) nextRand() *rand.Rand {
	a.mu.Lock()
	defer a.mu.Unlock()
	return rand.New(rand.NewSource(a.seed.Int63()))
}

// Sample parses document and returns the endpoints one run would measure,
// without any network activity.
func (a *Analyzer) Sample(document []byte) ([]measure.EndpointSpec, measure.Document, error) {
	doc, err := measure.ParseDocument(document)
	if err != nil {
		return nil, measure.Document{}, err
	}
	sampled, err := measure.NewSampler(a.nextRand()).Sample(measure.NewPool(doc.Endpoints), doc.SampleCount())
	if err != nil {
		return nil, doc, err
	}
	return sampled, doc, nil
}

var (
	defaultOnce     sync.Once
	defaultAnalyzer *Analyzer
)

func defaultInstance() *Analyzer {
	defaultOnce.Do(func() {
		defaultAnalyzer, _ = New(Options{})
	})
	return defaultAnalyzer
}

// Execute runs a measurement with default options. See Analyzer.Execute.
func Execute(ctx context.Context, monitorID, tag string, configURLs []string) (Result, error) {
	return defaultInstance().Execute(ctx, monitorID, tag, configURLs)
}

// ExecuteDocument runs a measurement with default options. See Analyzer.ExecuteDocument.
func ExecuteDocument(ctx context.Context, monitorID, tag, document, uploadScheme string) (Result, error) {
	return defaultInstance().ExecuteDocument(ctx, monitorID, tag, document, uploadScheme)
}
