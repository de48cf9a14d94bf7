package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
)

func validConfig() Config {
	config := GetDefaultConfig()
	config.Salesforce.ClientID = "3MVG9"
	config.Salesforce.ClientSecret = "secret"
	return config
}

func TestValidate_DefaultsWithClientID(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_MissingCredentialsPerMode(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		fields []string
	}{
		{
			name:   "refresh token without client id",
			mutate: func(c *Config) { c.Salesforce.ClientID = "" },
			fields: []string{"salesforce.clientId"},
		},
		{
			name: "password",
			mutate: func(c *Config) {
				c.Salesforce.AuthMode = "password"
				c.Salesforce.ClientSecret = ""
			},
			fields: []string{"salesforce.clientSecret", "salesforce.username", "salesforce.password"},
		},
		{
			name: "client credentials",
			mutate: func(c *Config) {
				c.Salesforce.AuthMode = "client_credentials"
				c.Salesforce.ClientSecret = ""
			},
			fields: []string{"salesforce.clientSecret"},
		},
		{
			name:   "jwt bearer",
			mutate: func(c *Config) { c.Salesforce.AuthMode = "jwt_bearer" },
			fields: []string{"salesforce.jwtKeyFile"},
		},
		{
			name: "access token",
			mutate: func(c *Config) {
				c.Salesforce.AuthMode = "access_token"
				c.Salesforce.ClientID = ""
			},
			fields: []string{"salesforce.accessToken", "salesforce.instanceUrl"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()
			require.Error(t, err)

			var collection *ConfigurationErrorCollection
			require.True(t, errors.As(err, &collection))

			var fields []string
			for _, e := range collection.GetErrorsByType(ErrorTypeMissingCredentials) {
				fields = append(fields, e.Field)
			}
			assert.ElementsMatch(t, tt.fields, fields)
			assert.True(t, oauth.IsKind(err, oauth.KindMissingCredentials))
		})
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	config := validConfig()
	config.Salesforce.LoginURL = "ftp://login.salesforce.com"
	config.Salesforce.ResponseType = "id_token"
	config.Salesforce.AuthMode = "kerberos"
	config.State.Timeout = 0

	err := config.Validate()
	require.Error(t, err)

	var collection *ConfigurationErrorCollection
	require.True(t, errors.As(err, &collection))
	assert.Equal(t, 4, collection.Count())
	assert.Empty(t, collection.GetErrorsByType(ErrorTypeMissingCredentials))
	assert.False(t, oauth.IsKind(err, oauth.KindMissingCredentials))
	assert.Contains(t, collection.GetDetailedReport(), "salesforce.responseType")
}

func TestConfigurationErrorCollection_Error(t *testing.T) {
	collection := NewConfigurationErrorCollection()
	assert.Equal(t, "no configuration errors", collection.Error())

	collection.Add(ConfigurationError{Field: "a", Message: "bad"})
	assert.Equal(t, "a: bad", collection.Error())

	collection.Add(ConfigurationError{Field: "b", Message: "worse"})
	assert.Equal(t, "2 configuration errors: a: bad (and 1 more)", collection.Error())
}
