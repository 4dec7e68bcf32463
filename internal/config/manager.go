package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/depscan/depscan/internal/cmdlogger"
)

// Load reads the config file at path over the defaults. Keys the file sets
// that depscan does not know are an error.
func Load(path string) (Config, error) {
	config := Default()

	m, err := toml.DecodeFile(path, &config)
	if err != nil {
		return Config{}, err
	}

	if unknownKeys := m.Undecoded(); len(unknownKeys) > 0 {
		keys := make([]string, 0, len(unknownKeys))
		for _, key := range unknownKeys {
			keys = append(keys, key.String())
		}

		return Config{}, fmt.Errorf("unknown keys in config file: %s", strings.Join(keys, ", "))
	}

	config.LoadPath = path

	if err := config.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return config, nil
}

// Discover loads the depscan.toml next to target, which may be a file or a
// directory. Without one the defaults are returned.
func Discover(target string) (Config, error) {
	configPath, err := normalizeConfigLoadPath(target)
	if err != nil {
		return Default(), nil //nolint:nilerr // targets that are not on disk have no config
	}

	config, err := Load(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}

	cmdlogger.Infof("Loaded config from: %s", config.LoadPath)

	return config, nil
}

// Finds the containing folder of `target`, then appends ConfigName
func normalizeConfigLoadPath(target string) (string, error) {
	stat, err := os.Stat(target)
	if err != nil {
		return "", fmt.Errorf("failed to stat target: %w", err)
	}

	containingFolder := target
	if !stat.IsDir() {
		containingFolder = filepath.Dir(target)
	}

	return filepath.Join(containingFolder, ConfigName), nil
}
