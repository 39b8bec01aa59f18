package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
client:
  monitor_id: mon-42
  tag: lab
  config_urls:
    - https://cfg-a.example.com/config.json
    - https://cfg-b.example.com/config.json
probe:
  timeout: 3s
  rate_per_second: 5
  workers: 4
run:
  interval: 5m
  seed: 99
log:
  level: debug
  format: json
`

func TestLoad(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")

	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(ctx, path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Client.MonitorID != "mon-42" {
		t.Fatalf("unexpected monitor id: %s", cfg.Client.MonitorID)
	}
	if len(cfg.Client.ConfigURLs) != 2 || cfg.Client.ConfigURLs[1] != "https://cfg-b.example.com/config.json" {
		t.Fatalf("unexpected config urls: %#v", cfg.Client.ConfigURLs)
	}
	if cfg.Probe.Timeout != 3*time.Second || cfg.Probe.Workers != 4 || cfg.Probe.RatePerSecond != 5 {
		t.Fatalf("unexpected probe config: %#v", cfg.Probe)
	}
	if cfg.Run.Interval != 5*time.Minute || cfg.Run.Seed != 99 {
		t.Fatalf("unexpected run config: %#v", cfg.Run)
	}
	if cfg.Client.UploadScheme != DefaultUploadScheme {
		t.Fatalf("expected default upload scheme, got %q", cfg.Client.UploadScheme)
	}
	if cfg.Verify.SignatureSuffix != DefaultSignatureSuffix {
		t.Fatalf("expected default signature suffix, got %q", cfg.Verify.SignatureSuffix)
	}
	if cfg.Metrics.Addr != DefaultMetricsAddr {
		t.Fatalf("expected default metrics addr, got %q", cfg.Metrics.Addr)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")

	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv(envConfigPath, path)

	cfg, err := LoadFromEnv(ctx)
	if err != nil {
		t.Fatalf("LoadFromEnv returned error: %v", err)
	}

	if cfg.Log.Format != "json" {
		t.Fatalf("unexpected log format: %s", cfg.Log.Format)
	}
}

func TestPathFromEnvDefault(t *testing.T) {
	t.Setenv(envConfigPath, "")
	if got := PathFromEnv(); got != DefaultConfigPath {
		t.Fatalf("expected %s got %s", DefaultConfigPath, got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Client.MonitorID = "mon"
	valid.Client.ConfigURLs = []string{"https://cfg.example.com"}

	cases := map[string]func(c *Config){
		"missing monitor id": func(c *Config) { c.Client.MonitorID = " " },
		"no config urls":     func(c *Config) { c.Client.ConfigURLs = nil },
		"blank config url":   func(c *Config) { c.Client.ConfigURLs = []string{""} },
		"negative rate":      func(c *Config) { c.Probe.RatePerSecond = -1 },
		"negative interval":  func(c *Config) { c.Run.Interval = -time.Second },
		"cert without key":   func(c *Config) { c.Client.CertFile = "client.pem" },
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	for name, mutate := range cases {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			cfg := valid
			cfg.Client.ConfigURLs = append([]string(nil), valid.Client.ConfigURLs...)
			mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
