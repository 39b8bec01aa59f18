package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigPath     = "INETANALYZER_CONFIG"
	DefaultConfigPath = "/etc/inetanalyzer/agent.yaml"

	DefaultUploadScheme    = "https://"
	DefaultProbeTimeout    = 10 * time.Second
	DefaultProbeWorkers    = 1
	DefaultSignatureSuffix = ".minisig"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"
	DefaultMetricsAddr     = "127.0.0.1:9320"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Client  ClientConfig  `yaml:"client"`
	Probe   ProbeConfig   `yaml:"probe"`
	Run     RunConfig     `yaml:"run"`
	Verify  VerifyConfig  `yaml:"verify"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ClientConfig struct {
	MonitorID    string   `yaml:"monitor_id"`
	Tag          string   `yaml:"tag"`
	ConfigURLs   []string `yaml:"config_urls"`
	UploadScheme string   `yaml:"upload_scheme"`
	UserAgent    string   `yaml:"user_agent"`
	// CAFile, CertFile and KeyFile secure configuration fetches and
	// uploads only. Measurement endpoints always use the system roots.
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type ProbeConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Workers       int           `yaml:"workers"`
}

type RunConfig struct {
	Interval time.Duration `yaml:"interval"`
	Deadline time.Duration `yaml:"deadline"`
	Seed     int64         `yaml:"seed"`
	StateDir string        `yaml:"state_dir"`
}

type VerifyConfig struct {
	PublicKey       string `yaml:"public_key"`
	SignatureSuffix string `yaml:"signature_suffix"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a configuration with every default applied.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with their default values.
func (c *Config) ApplyDefaults() {
	if c.Client.UploadScheme == "" {
		c.Client.UploadScheme = DefaultUploadScheme
	}
	if c.Probe.Timeout <= 0 {
		c.Probe.Timeout = DefaultProbeTimeout
	}
	if c.Probe.Workers <= 0 {
		c.Probe.Workers = DefaultProbeWorkers
	}
	if c.Verify.SignatureSuffix == "" {
		c.Verify.SignatureSuffix = DefaultSignatureSuffix
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
}

// Validate reports settings a run cannot proceed without.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Client.MonitorID) == "" {
		return fmt.Errorf("%w: client.monitor_id is required", ErrInvalidConfig)
	}
	if len(c.Client.ConfigURLs) == 0 {
		return fmt.Errorf("%w: client.config_urls must list at least one url", ErrInvalidConfig)
	}
	for i, u := range c.Client.ConfigURLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("%w: client.config_urls[%d] is empty", ErrInvalidConfig, i)
		}
	}
	if (c.Client.CertFile == "") != (c.Client.KeyFile == "") {
		return fmt.Errorf("%w: client.cert_file and client.key_file must be set together", ErrInvalidConfig)
	}
	if c.Probe.RatePerSecond < 0 {
		return fmt.Errorf("%w: probe.rate_per_second must not be negative", ErrInvalidConfig)
	}
	if c.Run.Interval < 0 || c.Run.Deadline < 0 {
		return fmt.Errorf("%w: run durations must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Load reads the YAML file at path and applies defaults. It does not validate.
func Load(ctx context.Context, path string) (Config, error) {
	var cfg Config

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg.ApplyDefaults()
	return cfg, nil
}

// PathFromEnv returns the config path named by the environment, or the default.
func PathFromEnv() string {
	if path := os.Getenv(envConfigPath); path != "" {
		return path
	}
	return DefaultConfigPath
}

func LoadFromEnv(ctx context.Context) (Config, error) {
	return Load(ctx, PathFromEnv())
}
