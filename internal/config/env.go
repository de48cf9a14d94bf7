package config

import (
	"strings"

	"github.com/the-answerai/mcp-server-salesforce/pkg/logging"
)

// envBinding maps an environment variable onto a string field.
type envBinding struct {
	name  string
	field func(*Config) *string
}

var envBindings = []envBinding{
	{"SALESFORCE_CLIENT_ID", func(c *Config) *string { return &c.Salesforce.ClientID }},
	{"SALESFORCE_CLIENT_SECRET", func(c *Config) *string { return &c.Salesforce.ClientSecret }},
	{"SALESFORCE_REDIRECT_URI", func(c *Config) *string { return &c.Salesforce.RedirectURI }},
	{"SALESFORCE_LOGIN_URL", func(c *Config) *string { return &c.Salesforce.LoginURL }},
	{"SALESFORCE_SCOPE", func(c *Config) *string { return &c.Salesforce.Scope }},
	{"SALESFORCE_RESPONSE_TYPE", func(c *Config) *string { return &c.Salesforce.ResponseType }},
	{"SALESFORCE_PROMPT", func(c *Config) *string { return &c.Salesforce.Prompt }},
	{"SALESFORCE_AUTH_MODE", func(c *Config) *string { return &c.Salesforce.AuthMode }},
	{"SALESFORCE_DEFAULT_OWNER", func(c *Config) *string { return &c.Salesforce.DefaultOwner }},
	{"SALESFORCE_USERNAME", func(c *Config) *string { return &c.Salesforce.Username }},
	{"SALESFORCE_PASSWORD", func(c *Config) *string { return &c.Salesforce.Password }},
	{"SALESFORCE_SECURITY_TOKEN", func(c *Config) *string { return &c.Salesforce.SecurityToken }},
	{"SALESFORCE_REFRESH_TOKEN", func(c *Config) *string { return &c.Salesforce.RefreshToken }},
	{"SALESFORCE_ACCESS_TOKEN", func(c *Config) *string { return &c.Salesforce.AccessToken }},
	{"SALESFORCE_INSTANCE_URL", func(c *Config) *string { return &c.Salesforce.InstanceURL }},
	{"SALESFORCE_JWT_KEY_FILE", func(c *Config) *string { return &c.Salesforce.JWTKeyFile }},
	{"TOKEN_STORE_PATH", func(c *Config) *string { return &c.TokenStore.Path }},
	{"TOKEN_ENCRYPTION_KEY", func(c *Config) *string { return &c.TokenStore.EncryptionKey }},
	{"REDIS_ADDRESS", func(c *Config) *string { return &c.State.Redis.Address }},
	{"REDIS_PASSWORD", func(c *Config) *string { return &c.State.Redis.Password }},
	{"HTTP_ADDR", func(c *Config) *string { return &c.Server.Address }},
	{"LOG_LEVEL", func(c *Config) *string { return &c.LogLevel }},
}

// EnvNames returns the environment variables ApplyEnv reads.
func EnvNames() []string {
	names := make([]string, len(envBindings))
	for i, b := range envBindings {
		names[i] = b.name
	}
	return names
}

// ApplyEnv overrides config fields with non-empty environment values.
// lookup is usually os.LookupEnv.
func ApplyEnv(config *Config, lookup func(string) (string, bool)) {
	applied := 0
	for _, b := range envBindings {
		value, ok := lookup(b.name)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		*b.field(config) = value
		applied++
	}
	if applied > 0 {
		logging.Debug("ConfigLoader", "Applied %d environment overrides", applied)
	}
}
