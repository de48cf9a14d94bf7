package app

import (
	"io"

	"github.com/the-answerai/mcp-server-salesforce/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of the configured level.
	Debug bool

	// Custom configuration file (optional). Defaults to
	// ~/.config/salesforce-mcp/config.yaml.
	ConfigPath string

	// EnvFile is loaded into the environment before the configuration.
	EnvFile string

	// LogOutput receives log records. Defaults to stderr so stdout stays
	// free for the MCP stdio transport.
	LogOutput io.Writer

	// Settings is loaded during bootstrap when nil.
	Settings *config.Config
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
	}
}
