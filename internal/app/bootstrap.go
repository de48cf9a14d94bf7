package app

import (
	"context"
	"fmt"
	"os"

	"github.com/the-answerai/mcp-server-salesforce/internal/config"
	"github.com/the-answerai/mcp-server-salesforce/pkg/logging"
)

// Application bootstraps the Salesforce MCP server: it loads configuration,
// initializes logging and composes the credential Service.
//
// Example usage:
//
//	cfg := app.NewConfig(false, "")
//	application, err := app.NewApplication(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	defer application.Close()
type Application struct {
	config  *Config
	service *Service
}

// NewApplication performs the bootstrap sequence:
//
//  1. Loads the optional .env file
//  2. Loads config.yaml and applies environment overrides
//  3. Configures logging from the loaded level or the debug flag
//  4. Validates the configuration
//  5. Builds the Service
func NewApplication(ctx context.Context, cfg *Config, opts ...ServiceOption) (*Application, error) {
	settings, err := LoadSettings(cfg)
	if err != nil {
		return nil, err
	}

	if err := settings.Validate(); err != nil {
		logging.Error("Bootstrap", err, "Invalid configuration")
		return nil, err
	}

	service, err := NewService(ctx, *settings, opts...)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{config: cfg, service: service}, nil
}

// OpenApplication is NewApplication without validation, for commands that
// only inspect or clear stored credentials.
func OpenApplication(ctx context.Context, cfg *Config, opts ...ServiceOption) (*Application, error) {
	settings, err := LoadSettings(cfg)
	if err != nil {
		return nil, err
	}

	service, err := NewService(ctx, *settings, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return &Application{config: cfg, service: service}, nil
}

// LoadSettings loads configuration and initializes logging without
// validating, for commands that only read local state.
func LoadSettings(cfg *Config) (*config.Config, error) {
	output := cfg.LogOutput
	if output == nil {
		output = os.Stderr
	}
	// Early logging so loader messages are visible.
	logging.InitForCLI(levelFor(cfg.Debug, ""), output)

	if cfg.Settings == nil {
		if cfg.EnvFile != "" {
			if err := config.LoadDotEnv(cfg.EnvFile); err != nil {
				return nil, err
			}
		} else if err := config.LoadDotEnv(); err != nil {
			return nil, err
		}

		settings, err := config.LoadConfig(cfg.ConfigPath)
		if err != nil {
			logging.Error("Bootstrap", err, "Failed to load configuration")
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg.Settings = &settings
	}

	logging.InitForCLI(levelFor(cfg.Debug, cfg.Settings.LogLevel), output)
	return cfg.Settings, nil
}

func levelFor(debug bool, configured string) logging.LogLevel {
	if debug {
		return logging.LevelDebug
	}
	return logging.ParseLevel(configured)
}

// Service returns the composed credential service.
func (a *Application) Service() *Service {
	return a.service
}

// Settings returns the effective configuration.
func (a *Application) Settings() config.Config {
	return *a.config.Settings
}

// Close releases the service.
func (a *Application) Close() error {
	return a.service.Close()
}
