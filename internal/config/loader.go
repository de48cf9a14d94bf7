package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/the-answerai/mcp-server-salesforce/pkg/logging"
)

const (
	userConfigDir  = ".config/salesforce-mcp"
	configFileName = "config.yaml"
)

// osUserHomeDir is swapped in tests.
var osUserHomeDir = os.UserHomeDir

// DefaultConfigPath returns ~/.config/salesforce-mcp/config.yaml.
func DefaultConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

// LoadConfig loads the configuration file at path, or the default path when
// path is empty, and applies environment overrides. A missing file is not an
// error.
func LoadConfig(path string) (Config, error) {
	config := GetDefaultConfig()

	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return Config{}, err
		}
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
		logging.Debug("ConfigLoader", "No config.yaml found at %s, using defaults", path)
	case err != nil:
		return Config{}, fmt.Errorf("error reading config from %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", path)
	}

	ApplyEnv(&config, os.LookupEnv)
	return config, nil
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		logging.Debug("ConfigLoader", "Loaded environment from %s", path)
	}
	return nil
}

// WriteConfig writes config as YAML to path, creating the directory.
func WriteConfig(path string, config Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(&config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
