package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "inetanalyzer"

// Store holds the agent's Prometheus collectors on a private registry.
type Store struct {
	registry *prometheus.Registry

	fetches           *prometheus.CounterVec
	fetchLatency      *prometheus.HistogramVec
	runs              *prometheus.CounterVec
	runItems          prometheus.Gauge
	lastRun           prometheus.Gauge
	uploads           *prometheus.CounterVec
	configFetches     *prometheus.CounterVec
	droppedEndpoints  prometheus.Counter
	signatureFailures prometheus.Counter
	ready             prometheus.Gauge
	readyCategories   *prometheus.GaugeVec
}

// ReadinessCategory names one failing readiness condition.
type ReadinessCategory struct {
	Name     string
	Severity string
}

// NewStore constructs a Store with all collectors registered.
func NewStore() *Store {
	s := &Store{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Fetch attempts by kind, connection phase and outcome.",
		}, []string{"kind", "phase", "outcome"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of successful fetch attempts.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind", "phase"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Measurement runs by outcome.",
		}, []string{"outcome"}),
		runItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_items",
			Help:      "Number of report items produced by the most recent run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the most recent run.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Report uploads by outcome.",
		}, []string{"outcome"}),
		configFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_fetches_total",
			Help:      "Configuration retrievals by outcome.",
		}, []string{"outcome"}),
		droppedEndpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_endpoints_total",
			Help:      "Configured endpoints skipped because their kinds are not supported.",
		}),
		signatureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_signature_failures_total",
			Help:      "Configuration documents rejected by signature verification.",
		}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready",
			Help:      "Whether the agent considers itself ready (1=ready).",
		}),
		readyCategories: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "not_ready_condition",
			Help:      "Readiness conditions currently failing, by category and severity.",
		}, []string{"category", "severity"}),
	}
	s.registry.MustRegister(
		s.fetches,
		s.fetchLatency,
		s.runs,
		s.runItems,
		s.lastRun,
		s.uploads,
		s.configFetches,
		s.droppedEndpoints,
		s.signatureFailures,
		s.ready,
		s.readyCategories,
	)
	return s
}

// Registry exposes the underlying registry for gathering.
func (s *Store) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Store) ObserveFetch(kind, phase string, ok bool, elapsed time.Duration) {
	s.fetches.WithLabelValues(kind, phase, outcome(ok)).Inc()
	if ok {
		s.fetchLatency.WithLabelValues(kind, phase).Observe(elapsed.Seconds())
	}
}

func (s *Store) ObserveConfigFetch(ok bool) {
	s.configFetches.WithLabelValues(outcome(ok)).Inc()
}

func (s *Store) ObserveDroppedEndpoints(n int) {
	if n > 0 {
		s.droppedEndpoints.Add(float64(n))
	}
}

func (s *Store) ObserveUpload(ok bool) {
	s.uploads.WithLabelValues(outcome(ok)).Inc()
}

func (s *Store) ObserveRun(ts time.Time, items int, err error) {
	s.runs.WithLabelValues(outcome(err == nil)).Inc()
	s.runItems.Set(float64(items))
	s.lastRun.Set(float64(ts.Unix()))
}

func (s *Store) ObserveSignatureFailure() {
	s.signatureFailures.Inc()
}

// ObserveReadiness records the latest readiness evaluation and its failing categories.
func (s *Store) ObserveReadiness(ready bool, categories []ReadinessCategory) {
	s.readyCategories.Reset()
	for _, c := range categories {
		s.readyCategories.WithLabelValues(c.Name, c.Severity).Set(1)
	}
	if ready {
		s.ready.Set(1)
		return
	}
	s.ready.Set(0)
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// NewHTTPHandler returns an http.Handler that serves the store in the
// Prometheus exposition format.
func NewHTTPHandler(store *Store) http.Handler {
	return promhttp.HandlerFor(store.registry, promhttp.HandlerOpts{})
}

var (
	_ FetchRecorder = (*Store)(nil)
	_ RunRecorder   = (*Store)(nil)
)
