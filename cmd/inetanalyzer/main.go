package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/inetanalyzer/agent/internal/config"
	"github.com/inetanalyzer/agent/internal/logging"
	"github.com/inetanalyzer/agent/pkg/analyzer"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	analyzer.Version = version
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "inetanalyzer",
		Short: "Client-side network quality probe",
		Long: `inetanalyzer measures cold and warm HTTP(S) fetch latency against a
weighted sample of endpoints named by a remote configuration document and
uploads the results to a collector.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to agent configuration file (default $INETANALYZER_CONFIG or "+config.DefaultConfigPath+")")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format override (console or json)")

	cmd.AddCommand(
		newRunCmd(opts),
		newSampleCmd(opts),
		newCollectorCmd(opts),
		newInitCmd(opts),
		newStatusCmd(opts),
	)
	return cmd
}

// loadConfig reads the configuration file. A missing file is only an error
// when its path was given explicitly.
func (o *rootOptions) loadConfig(ctx context.Context) (config.Config, error) {
	path := o.configPath
	explicit := path != ""
	if !explicit {
		path = config.PathFromEnv()
	}

	cfg, err := config.Load(ctx, path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			cfg = config.Default()
		} else {
			return config.Config{}, err
		}
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	return cfg, nil
}

func (o *rootOptions) path() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.PathFromEnv()
}

func newLogger(cmd *cobra.Command, cfg config.Config) (zerolog.Logger, error) {
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Out:    cmd.ErrOrStderr(),
	})
}
