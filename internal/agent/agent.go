package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/inetanalyzer/agent/internal/measure"
	"github.com/inetanalyzer/agent/internal/metrics"
	"github.com/inetanalyzer/agent/internal/report"
	"github.com/inetanalyzer/agent/internal/token"
	"github.com/inetanalyzer/agent/internal/uplink"
	"github.com/inetanalyzer/agent/internal/worker"
)

const (
	DefaultClientName = "inetanalyzer-go"
	DefaultVersion    = "dev"
)

// ErrMissingMonitorID is returned when a run is attempted without a monitor id.
var ErrMissingMonitorID = errors.New("monitor id is required")

// Uploader delivers a formatted report to the first accepting endpoint.
type Uploader interface {
	Upload(ctx context.Context, endpoints []string, query string) (uplink.Result, error)
}

// Config holds the static settings of an Agent.
type Config struct {
	MonitorID     string
	Tag           string
	ClientName    string
	Version       string
	Workers       int
	RatePerSecond float64
}

// Dependencies supply the prober, uploader and test overrides.
type Dependencies struct {
	Prober   worker.Measurer
	Uploader Uploader
	Rand     *rand.Rand
	Tokens   *token.Source
	Now      func() time.Time
	Logger   *zerolog.Logger
	Metrics  metrics.RunRecorder
}

// Outcome summarizes one completed run.
type Outcome struct {
	RunID     string
	StartedAt time.Time
	Sampled   []measure.EndpointSpec
	Dropped   int
	Items     []report.Item
	Upload    uplink.Result
}

// Agent measures sampled endpoints of a configuration document and uploads
// the resulting report.
type Agent struct {
	cfg      Config
	prober   worker.Measurer
	uploader Uploader
	mu       sync.Mutex
	sampler  *measure.Sampler
	tokens   *token.Source
	now      func() time.Time
	logger   zerolog.Logger
	metrics  metrics.RunRecorder
}

// New constructs an Agent. Prober and Uploader are required.
func New(cfg Config, deps Dependencies) (*Agent, error) {
	if deps.Prober == nil {
		return nil, errors.New("prober is required")
	}
	if deps.Uploader == nil {
		return nil, errors.New("uploader is required")
	}
	if cfg.ClientName == "" {
		cfg.ClientName = DefaultClientName
	}
	if cfg.Version == "" {
		cfg.Version = DefaultVersion
	}
	a := &Agent{
		cfg:      cfg,
		prober:   deps.Prober,
		uploader: deps.Uploader,
		sampler:  measure.NewSampler(deps.Rand),
		tokens:   deps.Tokens,
		now:      deps.Now,
		logger:   zerolog.Nop(),
		metrics:  deps.Metrics,
	}
	if deps.Logger != nil {
		a.logger = *deps.Logger
	}
	if a.tokens == nil {
		a.tokens = token.NewSource(nil)
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.metrics == nil {
		a.metrics = metrics.NoopRunRecorder{}
	}
	return a, nil
}

// Run samples endpoints from doc and measures each of their fetch kinds,
// HTTP before HTTPS. Items are returned in issue order.
func (a *Agent) Run(ctx context.Context, doc measure.Document) ([]report.Item, error) {
	sampled, err := a.sample(doc)
	if err != nil {
		return nil, err
	}
	return a.measure(ctx, sampled)
}

// Execute parses a raw configuration document, measures it and uploads the
// report. Configuration errors abort before any network activity.
func (a *Agent) Execute(ctx context.Context, document []byte) (Outcome, error) {
	if a.cfg.MonitorID == "" {
		return Outcome{}, ErrMissingMonitorID
	}
	doc, err := measure.ParseDocument(document)
	if err != nil {
		return Outcome{}, fmt.Errorf("parse configuration: %w", err)
	}
	return a.ExecuteDocument(ctx, doc)
}

// ExecuteDocument measures an already parsed document and uploads the report.
func (a *Agent) ExecuteDocument(ctx context.Context, doc measure.Document) (Outcome, error) {
	if a.cfg.MonitorID == "" {
		return Outcome{}, ErrMissingMonitorID
	}
	out := Outcome{
		RunID:     a.tokens.Next(),
		StartedAt: a.now(),
		Dropped:   len(doc.Dropped),
	}
	logger := a.logger.With().Str("run_id", out.RunID).Logger()

	err := a.execute(ctx, doc, &out, logger)
	a.metrics.ObserveRun(out.StartedAt, len(out.Items), err)
	if err != nil {
		logger.Error().Err(err).Msg("run failed")
		return out, err
	}
	logger.Info().
		Int("sampled", len(out.Sampled)).
		Int("items", len(out.Items)).
		Str("upload_url", out.Upload.URL).
		Msg("run finished")
	return out, nil
}

func (a *Agent) execute(ctx context.Context, doc measure.Document, out *Outcome, logger zerolog.Logger) error {
	if len(doc.UploadEndpoints) == 0 {
		return &measure.ConfigError{Field: "r", Reason: "no upload endpoints"}
	}

	a.reportDropped(doc, logger)
	sampled, err := a.sample(doc)
	if err != nil {
		return err
	}
	out.Sampled = sampled

	items, err := a.measure(ctx, sampled)
	if err != nil {
		return err
	}
	out.Items = items

	query, err := report.Format(report.Metadata{
		MonitorID:  a.cfg.MonitorID,
		RunID:      out.RunID,
		Tag:        a.cfg.Tag,
		ClientName: a.cfg.ClientName,
		Version:    a.cfg.Version,
	}, items)
	if err != nil {
		return fmt.Errorf("format report: %w", err)
	}

	res, err := a.uploader.Upload(ctx, doc.UploadEndpoints, query)
	if err != nil {
		return err
	}
	out.Upload = res
	return nil
}

func (a *Agent) reportDropped(doc measure.Document, logger zerolog.Logger) {
	if len(doc.Dropped) == 0 {
		return
	}
	for _, spec := range doc.Dropped {
		logger.Warn().
			Str("endpoint", spec.HostPattern).
			Int("kinds", int(spec.Kinds)).
			Msg("skipping endpoint with unsupported measurement kinds")
	}
	a.metrics.ObserveDroppedEndpoints(len(doc.Dropped))
}

func (a *Agent) sample(doc measure.Document) ([]measure.EndpointSpec, error) {
	pool := measure.NewPool(doc.Endpoints)
	a.mu.Lock()
	sampled, err := a.sampler.Sample(pool, doc.SampleCount())
	a.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("sample endpoints: %w", err)
	}
	return sampled, nil
}

func (a *Agent) measure(ctx context.Context, sampled []measure.EndpointSpec) ([]report.Item, error) {
	pool := worker.NewPool(a.prober,
		worker.WithWorkerCount(a.cfg.Workers),
		worker.WithRate(a.cfg.RatePerSecond),
		worker.WithLogger(&a.logger),
	)
	items, err := pool.Run(ctx, worker.Jobs(sampled))
	if err != nil {
		return nil, fmt.Errorf("measure endpoints: %w", err)
	}
	return items, nil
}
