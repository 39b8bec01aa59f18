package config

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestSaveAndLoadState(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	state := RunState{
		RunID:      "0123456789abcdef0123456789abcdef",
		StartedAt:  time.Unix(1730000000, 0).UTC(),
		FinishedAt: time.Unix(1730000012, 0).UTC(),
		ConfigURL:  "https://cfg.example.com/config.json",
		UploadURL:  "https://upload.example.com/r",
		Sampled:    3,
		Items:      5,
		Dropped:    1,
		Runs:       7,
	}

	if err := SaveState(ctx, dir, state); err != nil {
		t.Fatalf("SaveState returned error: %v", err)
	}

	info, err := os.Stat(StatePath(dir))
	if err != nil {
		t.Fatalf("stat state: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected perms 0600 got %v", perm)
	}

	loaded, err := LoadState(ctx, dir)
	if err != nil {
		t.Fatalf("LoadState returned error: %v", err)
	}
	if loaded != state {
		t.Fatalf("state mismatch:\nwant %#v\ngot  %#v", state, loaded)
	}
}

func TestSaveStateReplaces(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	if err := SaveState(ctx, dir, RunState{Runs: 1, LastError: "boom"}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := SaveState(ctx, dir, RunState{Runs: 2}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	loaded, err := LoadState(ctx, dir)
	if err != nil {
		t.Fatalf("LoadState returned error: %v", err)
	}
	if loaded.Runs != 2 || loaded.LastError != "" {
		t.Fatalf("unexpected state: %#v", loaded)
	}
}

func TestLoadStateMissing(t *testing.T) {
	if _, err := LoadState(context.Background(), t.TempDir()); err == nil {
		t.Fatalf("expected error for missing state file")
	}
}
