package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const StateFileName = "state.yaml"

// RunState records the outcome of the most recent measurement run.
type RunState struct {
	RunID      string    `yaml:"run_id"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
	ConfigURL  string    `yaml:"config_url"`
	UploadURL  string    `yaml:"upload_url"`
	Sampled    int       `yaml:"sampled"`
	Items      int       `yaml:"items"`
	Dropped    int       `yaml:"dropped"`
	LastError  string    `yaml:"last_error,omitempty"`
	Runs       int       `yaml:"runs"`
}

func StatePath(dir string) string {
	return filepath.Join(dir, StateFileName)
}

func LoadState(ctx context.Context, dir string) (RunState, error) {
	var state RunState
	path := StatePath(dir)

	data, err := os.ReadFile(path)
	if err != nil {
		return state, fmt.Errorf("read state file %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("parse state file %q: %w", path, err)
	}

	return state, nil
}

// SaveState replaces the state file in dir.
func SaveState(ctx context.Context, dir string, state RunState) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("ensure state dir %q: %w", dir, err)
	}

	path := StatePath(dir)
	data, err := yaml.Marshal(&state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp state file %q: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit state file %q: %w", path, err)
	}

	return nil
}
