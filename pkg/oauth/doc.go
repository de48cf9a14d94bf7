// Package oauth provides shared OAuth 2.0 types and helpers for the Salesforce
// authorization server.
//
// This package holds the pieces that both the server-side flow (internal/oauth)
// and the CLI need without depending on either:
//
//   - Endpoints: the Salesforce OAuth endpoints derived from a login URL
//   - Metadata: the RFC 8414 authorization server metadata document
//   - PKCE: Proof Key for Code Exchange generation (RFC 7636)
//
// # Usage
//
//	endpoints := oauth.EndpointsFor("https://login.salesforce.com")
//	challenge, err := oauth.GeneratePKCE()
//	meta := oauth.NewMetadata(endpoints, clientID, []string{"id", "api", "refresh_token"})
package oauth
