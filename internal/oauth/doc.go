// Package oauth implements the Salesforce credential lifecycle: the
// authorization flow, anti-forgery state tracking, token storage and the
// token endpoint client.
//
// # Flow
//
//  1. A caller asks for an authorization URL for an owner (or none)
//  2. StateTracker issues a single-use state bound to that owner hint
//  3. The user signs in to Salesforce and is redirected to the callback
//  4. Flow consumes the state, exchanges the code (or accepts the implicit
//     token), resolves the user identity and stores the TokenRecord under
//     the identity's stable key
//
// # Components
//
//   - StateTracker: issues and consumes state values, backed by memory or Redis
//   - ExchangeClient: code exchange, refresh, revoke and the password,
//     client_credentials and jwt-bearer grants
//   - IdentityResolver: maps an access token to a UserIdentity
//   - TokenStore: per-owner token records with buffered expiry checks and an
//     optional durable TokenFile backend
//   - Flow: orchestrates the above
//   - Handler: HTTP endpoints for the callback, implicit repost and discovery
//
// # Errors
//
// Failures are returned as *Error carrying a Kind. Classify and the Is*
// predicates map any error onto the retry decision used by the session pool.
//
// # Security
//
// Token values are never logged. TokenRecord formats its tokens as
// [REDACTED], and persisted records are written 0600 and can be sealed with
// AES-256-GCM.
package oauth
