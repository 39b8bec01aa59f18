package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "etc", "agent.yaml")

	cfg := Default()
	cfg.Client.MonitorID = "mon-1"
	cfg.Client.ConfigURLs = []string{"https://cfg.example.com/config.json"}

	if err := Write(path, cfg, false); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o640 {
		t.Fatalf("expected perms 0640 got %v", perm)
	}

	loaded, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.Client.MonitorID != "mon-1" || loaded.Probe.Timeout != DefaultProbeTimeout {
		t.Fatalf("unexpected round trip: %#v", loaded)
	}
}

func TestWriteRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(path, []byte("client: {}\n"), 0o600); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	err := Write(path, Default(), false)
	if !errors.Is(err, ErrConfigExists) {
		t.Fatalf("expected ErrConfigExists, got %v", err)
	}

	if err := Write(path, Default(), true); err != nil {
		t.Fatalf("overwrite returned error: %v", err)
	}
}
