package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/inetanalyzer/agent/internal/measure"
	"github.com/inetanalyzer/agent/internal/report"
)

// Measurer runs the cold and warm fetches of one endpoint and kind.
type Measurer interface {
	Measure(ctx context.Context, spec measure.EndpointSpec, kind measure.Kind) ([]report.Item, error)
}

type Pool struct {
	measurer    Measurer
	workerCount int
	limiter     *rate.Limiter
	logger      zerolog.Logger
}

type PoolOption func(*Pool)

func WithWorkerCount(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workerCount = n
		}
	}
}

// WithRate paces job starts to perSecond; zero or less disables pacing.
func WithRate(perSecond float64) PoolOption {
	return func(p *Pool) {
		if perSecond > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithLogger(logger *zerolog.Logger) PoolOption {
	return func(p *Pool) {
		if logger != nil {
			p.logger = *logger
		}
	}
}

func NewPool(measurer Measurer, opts ...PoolOption) *Pool {
	p := &Pool{
		measurer:    measurer,
		workerCount: 1,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run measures every job and returns the items ordered by job index, so the
// output does not depend on worker count or completion order. With one
// worker jobs run strictly one after another. A job whose measurement fails
// contributes no items and does not stop the others; only cancellation of
// ctx aborts the run.
func (p *Pool) Run(ctx context.Context, jobs []Job) ([]report.Item, error) {
	results := make([][]report.Item, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workerCount)

	var dispatchErr error
	for i, job := range jobs {
		i, job := i, job
		if p.limiter != nil {
			if err := p.limiter.Wait(gctx); err != nil {
				dispatchErr = fmt.Errorf("pace job %d: %w", job.Index, err)
				break
			}
		}
		if err := gctx.Err(); err != nil {
			dispatchErr = err
			break
		}
		g.Go(func() error {
			items, err := p.measurer.Measure(gctx, job.Spec, job.Kind)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.logger.Warn().
					Err(err).
					Int("job", job.Index).
					Str("endpoint", job.Spec.HostPattern).
					Str("kind", job.Kind.String()).
					Msg("job skipped")
				return nil
			}
			p.logger.Debug().
				Int("job", job.Index).
				Str("endpoint", job.Spec.HostPattern).
				Str("kind", job.Kind.String()).
				Int("items", len(items)).
				Msg("job finished")
			results[i] = items
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if dispatchErr != nil {
		return nil, dispatchErr
	}

	var out []report.Item
	for _, items := range results {
		out = append(out, items...)
	}
	return out, nil
}
