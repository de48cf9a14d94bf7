package config

import (
	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
	"github.com/the-answerai/mcp-server-salesforce/internal/session"
	pkgoauth "github.com/the-answerai/mcp-server-salesforce/pkg/oauth"
)

const (
	// DefaultServerAddress is where the callback server listens.
	DefaultServerAddress = "localhost:8787"

	// DefaultRedirectURI matches DefaultServerAddress and the callback route.
	DefaultRedirectURI = "http://localhost:8787" + oauth.CallbackPath

	// DefaultOwner is used when a caller does not name an owner.
	DefaultOwner = "default"

	// DefaultSweepSchedule runs the expiry sweeps once a minute.
	DefaultSweepSchedule = "@every 1m"

	DefaultCallbackRate  = 5
	DefaultCallbackBurst = 10
)

// GetDefaultConfig returns the configuration used before file and
// environment overrides are applied.
func GetDefaultConfig() Config {
	return Config{
		Salesforce: SalesforceConfig{
			RedirectURI:  DefaultRedirectURI,
			LoginURL:     pkgoauth.DefaultLoginURL,
			Scope:        oauth.DefaultScope,
			ResponseType: oauth.ResponseTypeCode,
			UsePKCE:      true,
			AuthMode:     string(session.ModeRefreshToken),
			DefaultOwner: DefaultOwner,
		},
		TokenStore: TokenStoreConfig{
			RefreshBuffer: oauth.DefaultRefreshBuffer,
		},
		State: StateConfig{
			Timeout: oauth.DefaultStateTimeout,
		},
		Pool: PoolConfig{
			ProbeInterval: session.DefaultProbeInterval,
			MaxRetries:    session.DefaultMaxRetries,
		},
		Server: ServerConfig{
			Address:       DefaultServerAddress,
			CallbackRate:  DefaultCallbackRate,
			CallbackBurst: DefaultCallbackBurst,
			SweepSchedule: DefaultSweepSchedule,
		},
		LogLevel: "info",
	}
}
