package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inetanalyzer/agent/internal/collector"
	"github.com/inetanalyzer/agent/internal/logging"
)

type collectorOptions struct {
	addr          string
	configFile    string
	signatureFile string
	capacity      int
	machineName   string
}

func newCollectorCmd(root *rootOptions) *cobra.Command {
	opts := &collectorOptions{}
	cmd := &cobra.Command{
		Use:   "collector",
		Short: "Run a local configuration and report collection server",
		Long: `Serve a configuration document at /config, answer fetch probes with a
small object and keep the most recent uploaded reports in memory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := root.loadConfig(ctx)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			base, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			logger := logging.Component(base, "collector")

			srv := collector.New(collector.Config{
				Addr:          opts.addr,
				ConfigPath:    opts.configFile,
				SignaturePath: opts.signatureFile,
				Capacity:      opts.capacity,
				MachineName:   opts.machineName,
			}, collector.Dependencies{Logger: logger})

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("collector listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
				logger.Info().Msg("shutdown signal received")
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("collector: %w", err)
				}
				return nil
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("collector shutdown: %w", err)
			}
			stats := srv.Reports().Stats()
			logger.Info().Uint64("received", stats.Received).Uint64("dropped", stats.Dropped).Msg("collector stopped")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.addr, "addr", ":8090", "listen address")
	f.StringVar(&opts.configFile, "config-file", "", "configuration document served at /config")
	f.StringVar(&opts.signatureFile, "signature-file", "", "signature served at /config.minisig")
	f.IntVar(&opts.capacity, "capacity", 100, "number of reports kept in memory")
	f.StringVar(&opts.machineName, "machine-name", "", "value of the X-MachineName response header")
	return cmd
}
