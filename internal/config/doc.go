// Package config loads the server configuration.
//
// Configuration is resolved in three layers, later layers winning:
//
//  1. built-in defaults (GetDefaultConfig)
//  2. ~/.config/salesforce-mcp/config.yaml, or the file named by --config
//  3. environment variables such as SALESFORCE_CLIENT_ID (see EnvNames),
//     optionally seeded from a .env file by LoadDotEnv
//
// Validate reports every problem at once as a *ConfigurationErrorCollection.
// Missing credentials for the selected auth mode unwrap to an oauth error of
// kind MissingCredentials so callers can map them to the right exit code.
//
// Example config.yaml:
//
//	salesforce:
//	  clientId: 3MVG9...
//	  clientSecret: ...
//	  loginUrl: https://login.salesforce.com
//	  authMode: refresh_token
//	tokenStore:
//	  path: /var/lib/salesforce-mcp/tokens.json
//	  refreshBuffer: 5m
//	state:
//	  timeout: 10m
//	  redis:
//	    address: localhost:6379
//	server:
//	  address: localhost:8787
//	  trustProxyHeaders: false
package config
