package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/inetanalyzer/agent/internal/certs"
	"github.com/inetanalyzer/agent/internal/config"
	"github.com/inetanalyzer/agent/internal/health"
	"github.com/inetanalyzer/agent/internal/metrics"
	"github.com/inetanalyzer/agent/pkg/analyzer"
)

type runOptions struct {
	monitorID    string
	tag          string
	configURLs   []string
	documentPath string
	uploadScheme string
	interval     time.Duration
	deadline     time.Duration
	seed         int64
	workers      int
	metricsAddr  string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Measure and upload one report, or keep doing so on an interval",
		Long: `Retrieve the configuration document, measure a weighted sample of its
endpoints and upload the report.

With --interval the command keeps running, serves /metrics, /healthz and
/readyz, and stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := root.loadConfig(ctx)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			opts.apply(cmd, &cfg)

			var document []byte
			if opts.documentPath != "" {
				document, err = os.ReadFile(opts.documentPath)
				if err != nil {
					return fmt.Errorf("read configuration document: %w", err)
				}
				if strings.TrimSpace(cfg.Client.MonitorID) == "" {
					return fmt.Errorf("%w: client.monitor_id is required", config.ErrInvalidConfig)
				}
			} else if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			return runAgent(ctx, cmd, cfg, document, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.monitorID, "monitor-id", "", "monitor id reported with every upload")
	f.StringVar(&opts.tag, "tag", "", "free-form tag reported with every upload")
	f.StringSliceVar(&opts.configURLs, "config-url", nil, "configuration document URL, tried in order (repeatable)")
	f.StringVar(&opts.documentPath, "document", "", "measure a local configuration document instead of fetching one")
	f.StringVar(&opts.uploadScheme, "upload-scheme", "", "scheme prefixed to upload endpoints without one")
	f.DurationVar(&opts.interval, "interval", 0, "repeat the run on this interval until interrupted")
	f.DurationVar(&opts.deadline, "deadline", 0, "upper bound for a single run")
	f.Int64Var(&opts.seed, "seed", 0, "fixed sampling seed (0 seeds from the clock)")
	f.IntVar(&opts.workers, "workers", 0, "endpoints measured in parallel")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "listen address for metrics and health in interval mode")
	return cmd
}

// apply overlays explicitly set flags on cfg.
func (o *runOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("monitor-id") {
		cfg.Client.MonitorID = o.monitorID
	}
	if f.Changed("tag") {
		cfg.Client.Tag = o.tag
	}
	if f.Changed("config-url") {
		cfg.Client.ConfigURLs = o.configURLs
	}
	if f.Changed("upload-scheme") {
		cfg.Client.UploadScheme = o.uploadScheme
	}
	if f.Changed("interval") {
		cfg.Run.Interval = o.interval
	}
	if f.Changed("deadline") {
		cfg.Run.Deadline = o.deadline
	}
	if f.Changed("seed") {
		cfg.Run.Seed = o.seed
	}
	if f.Changed("workers") {
		cfg.Probe.Workers = o.workers
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}
	if o.documentPath != "" {
		cfg.Client.ConfigURLs = nil
	}
}

func runAgent(ctx context.Context, cmd *cobra.Command, cfg config.Config, document []byte, logger zerolog.Logger) error {
	uplinkTLS, err := certs.LoadUplinkTLSConfig(cfg.Client.CAFile, cfg.Client.CertFile, cfg.Client.KeyFile)
	if err != nil {
		return fmt.Errorf("uplink tls: %w", err)
	}

	store := metrics.NewStore()
	a, err := analyzer.New(analyzer.Options{
		UserAgent:       cfg.Client.UserAgent,
		UploadScheme:    cfg.Client.UploadScheme,
		Timeout:         cfg.Probe.Timeout,
		Workers:         cfg.Probe.Workers,
		RatePerSecond:   cfg.Probe.RatePerSecond,
		Seed:            cfg.Run.Seed,
		PublicKey:       cfg.Verify.PublicKey,
		SignatureSuffix: cfg.Verify.SignatureSuffix,
		HTTPClient:      certs.NewHTTPClient(uplinkTLS, 30*time.Second),
		Logger:          &logger,
		Metrics:         store,
	})
	if err != nil {
		return fmt.Errorf("init analyzer: %w", err)
	}

	r := &runner{cfg: cfg, analyzer: a, document: document, logger: logger}

	if cfg.Run.Interval <= 0 {
		res, err := r.once(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s uploaded %d items to %s\n", res.RunID, res.Items, res.URL)
		return nil
	}

	checker := health.NewChecker(store, 2*cfg.Run.Interval+cfg.Probe.Timeout)
	r.checker = checker

	logger.Info().
		Str("monitor_id", cfg.Client.MonitorID).
		Dur("interval", cfg.Run.Interval).
		Msg("agent starting")

	grp, groupCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		return r.loop(groupCtx)
	})
	grp.Go(func() error {
		return serveMonitoring(groupCtx, cfg.Metrics.Addr, store, checker, logger)
	})

	if err := grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info().Msg("agent stopped")
	return nil
}

type runner struct {
	cfg      config.Config
	analyzer *analyzer.Analyzer
	document []byte
	checker  *health.Checker
	logger   zerolog.Logger
	runs     int
}

func (r *runner) loop(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Run.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.once(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn().Err(err).Msg("run failed, retrying at next interval")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *runner) once(ctx context.Context) (analyzer.Result, error) {
	if r.cfg.Run.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Run.Deadline)
		defer cancel()
	}

	var (
		res analyzer.Result
		err error
	)
	if r.document != nil {
		res, err = r.analyzer.ExecuteDocument(ctx, r.cfg.Client.MonitorID, r.cfg.Client.Tag, string(r.document), r.cfg.Client.UploadScheme)
	} else {
		res, err = r.analyzer.Execute(ctx, r.cfg.Client.MonitorID, r.cfg.Client.Tag, r.cfg.Client.ConfigURLs)
	}
	finished := time.Now().UTC()
	r.runs++

	if r.checker != nil {
		if r.document == nil {
			r.checker.ObserveConfigFetch(configFetchErr(res, err))
		}
		r.checker.ObserveRun(finished, err)
	}
	r.saveState(ctx, res, finished, err)
	return res, err
}

// configFetchErr isolates a failure to retrieve or verify the configuration.
func configFetchErr(res analyzer.Result, err error) error {
	if err == nil || res.ConfigURL != "" {
		return nil
	}
	return err
}

func (r *runner) saveState(ctx context.Context, res analyzer.Result, finished time.Time, runErr error) {
	if r.cfg.Run.StateDir == "" {
		return
	}
	state := config.RunState{
		RunID:      res.RunID,
		StartedAt:  res.StartedAt.UTC(),
		FinishedAt: finished,
		ConfigURL:  res.ConfigURL,
		UploadURL:  res.URL,
		Sampled:    res.Sampled,
		Items:      res.Items,
		Dropped:    res.Dropped,
		Runs:       r.runs,
	}
	if runErr != nil {
		state.LastError = runErr.Error()
	}
	if err := config.SaveState(ctx, r.cfg.Run.StateDir, state); err != nil {
		r.logger.Warn().Err(err).Str("dir", r.cfg.Run.StateDir).Msg("save run state failed")
	}
}

func serveMonitoring(ctx context.Context, addr string, store *metrics.Store, checker *health.Checker, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.NewHTTPHandler(store))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ready, reasons := checker.Ready(time.Now().UTC())
		if !ready {
			http.Error(w, strings.Join(reasons, "; "), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
