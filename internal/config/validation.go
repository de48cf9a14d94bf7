package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
	"github.com/the-answerai/mcp-server-salesforce/internal/session"
)

const (
	ErrorTypeValidation         = "validation"
	ErrorTypeMissingCredentials = "missing_credentials"
)

// Validate checks the configuration and returns a *ConfigurationErrorCollection
// listing every problem, or nil. Missing credentials wrap an oauth error of
// kind MissingCredentials.
func (c Config) Validate() error {
	errs := NewConfigurationErrorCollection()
	sf := c.Salesforce

	invalid := func(field, message string, suggestions ...string) {
		errs.Add(ConfigurationError{
			Source:      "config",
			Field:       field,
			ErrorType:   ErrorTypeValidation,
			Message:     message,
			Suggestions: suggestions,
		})
	}
	missing := func(field, env, mode string) {
		message := fmt.Sprintf("is required for auth mode %s", mode)
		errs.Add(ConfigurationError{
			Source:      "config",
			Field:       field,
			ErrorType:   ErrorTypeMissingCredentials,
			Message:     message,
			Suggestions: []string{fmt.Sprintf("Set %s or %s in config.yaml", env, field)},
			Cause:       oauth.NewError(oauth.KindMissingCredentials, field+" "+message, nil),
		})
	}

	if err := validateURL(sf.LoginURL); err != nil {
		invalid("salesforce.loginUrl", err.Error(), "Use https://login.salesforce.com or https://test.salesforce.com")
	}
	if sf.RedirectURI != "" {
		if err := validateURL(sf.RedirectURI); err != nil {
			invalid("salesforce.redirectUri", err.Error())
		}
	}
	if err := ValidateOneOf("salesforce.responseType", sf.ResponseType, []string{oauth.ResponseTypeCode, oauth.ResponseTypeToken}); err != nil {
		invalid("salesforce.responseType", err.(ValidationError).Message)
	}

	mode, err := session.ParseAuthMode(sf.AuthMode)
	if err != nil {
		invalid("salesforce.authMode", err.Error())
	} else {
		c.validateCredentials(mode, missing)
	}

	if c.TokenStore.RefreshBuffer < 0 {
		invalid("tokenStore.refreshBuffer", "must not be negative")
	}
	if c.State.Timeout < time.Second {
		invalid("state.timeout", "must be at least 1s")
	}
	if c.Pool.ProbeInterval < 0 {
		invalid("pool.probeInterval", "must not be negative")
	}
	if c.Server.CallbackRate < 0 || c.Server.CallbackBurst < 0 {
		invalid("server.callbackRate", "rate and burst must not be negative")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func (c Config) validateCredentials(mode session.AuthMode, missing func(field, env, mode string)) {
	sf := c.Salesforce
	m := string(mode)

	if mode != session.ModeAccessToken && strings.TrimSpace(sf.ClientID) == "" {
		missing("salesforce.clientId", "SALESFORCE_CLIENT_ID", m)
	}

	switch mode {
	case session.ModePassword:
		if sf.ClientSecret == "" {
			missing("salesforce.clientSecret", "SALESFORCE_CLIENT_SECRET", m)
		}
		if sf.Username == "" {
			missing("salesforce.username", "SALESFORCE_USERNAME", m)
		}
		if sf.Password == "" {
			missing("salesforce.password", "SALESFORCE_PASSWORD", m)
		}
	case session.ModeClientCredentials:
		if sf.ClientSecret == "" {
			missing("salesforce.clientSecret", "SALESFORCE_CLIENT_SECRET", m)
		}
	case session.ModeJWTBearer:
		if sf.JWTKeyFile == "" {
			missing("salesforce.jwtKeyFile", "SALESFORCE_JWT_KEY_FILE", m)
		}
	case session.ModeAccessToken:
		if sf.AccessToken == "" {
			missing("salesforce.accessToken", "SALESFORCE_ACCESS_TOKEN", m)
		}
		if sf.InstanceURL == "" {
			missing("salesforce.instanceUrl", "SALESFORCE_INSTANCE_URL", m)
		}
	}
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host")
	}
	return nil
}

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidateOneOf checks if a value is in a list of allowed values
func ValidateOneOf(field, value string, allowed []string) error {
	for _, allowedValue := range allowed {
		if value == allowedValue {
			return nil
		}
	}
	return ValidationError{
		Field:   field,
		Value:   value,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}
