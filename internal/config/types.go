package config

import (
	"time"

	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
)

// Config is the top-level configuration of the Salesforce MCP server.
type Config struct {
	Salesforce SalesforceConfig `yaml:"salesforce"`
	TokenStore TokenStoreConfig `yaml:"tokenStore"`
	State      StateConfig      `yaml:"state"`
	Pool       PoolConfig       `yaml:"pool"`
	Server     ServerConfig     `yaml:"server"`
	LogLevel   string           `yaml:"logLevel,omitempty"`
}

// SalesforceConfig holds the connected app and default credentials.
type SalesforceConfig struct {
	ClientID     string `yaml:"clientId,omitempty"`
	ClientSecret string `yaml:"clientSecret,omitempty"`
	RedirectURI  string `yaml:"redirectUri,omitempty"`
	LoginURL     string `yaml:"loginUrl,omitempty"`
	Scope        string `yaml:"scope,omitempty"`
	ResponseType string `yaml:"responseType,omitempty"` // "code" or "token"
	Prompt       string `yaml:"prompt,omitempty"`
	UsePKCE      bool   `yaml:"usePkce"`

	AuthMode     string `yaml:"authMode,omitempty"`
	DefaultOwner string `yaml:"defaultOwner,omitempty"`

	Username      string `yaml:"username,omitempty"`
	Password      string `yaml:"password,omitempty"`
	SecurityToken string `yaml:"securityToken,omitempty"`
	RefreshToken  string `yaml:"refreshToken,omitempty"`
	AccessToken   string `yaml:"accessToken,omitempty"`
	InstanceURL   string `yaml:"instanceUrl,omitempty"`
	JWTKeyFile    string `yaml:"jwtKeyFile,omitempty"`
}

// TokenStoreConfig configures the durable token store.
type TokenStoreConfig struct {
	Path           string        `yaml:"path,omitempty"`
	EncryptionKey  string        `yaml:"encryptionKey,omitempty"`
	RefreshBuffer  time.Duration `yaml:"refreshBuffer,omitempty"`
	EvictionTimers bool          `yaml:"evictionTimers,omitempty"`
}

// StateConfig configures pending authorization tracking. An empty Redis
// address keeps state in process memory.
type StateConfig struct {
	Timeout time.Duration     `yaml:"timeout,omitempty"`
	Redis   oauth.RedisConfig `yaml:"redis,omitempty"`
}

// PoolConfig configures the session pool.
type PoolConfig struct {
	ProbeInterval time.Duration `yaml:"probeInterval,omitempty"`
	MaxRetries    int           `yaml:"maxRetries,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address       string  `yaml:"address,omitempty"`
	CallbackRate  float64 `yaml:"callbackRate,omitempty"` // requests per second
	CallbackBurst int     `yaml:"callbackBurst,omitempty"`
	SweepSchedule string  `yaml:"sweepSchedule,omitempty"`

	// TrustProxyHeaders keys the callback rate limit on X-Forwarded-For or
	// X-Real-IP. Only enable behind a proxy that overwrites them.
	TrustProxyHeaders bool `yaml:"trustProxyHeaders,omitempty"`
}
