package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrConfigExists is returned by Write when the target exists and overwrite is off.
var ErrConfigExists = errors.New("config file already exists")

// Write marshals cfg to path through a temp file and rename.
func Write(path string, cfg Config, overwrite bool) error {
	if !overwrite {
		_, err := os.Stat(path)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("check config %q: %w", path, err)
		}
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("ensure config dir %q: %w", dir, err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write temp config %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit config %q: %w", path, err)
	}

	return nil
}
