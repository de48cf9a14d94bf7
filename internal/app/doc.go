// Package app bootstraps the Salesforce MCP server.
//
// It loads configuration (.env, config.yaml, environment overrides),
// initializes logging and composes the credential Service:
//
//	config ─► TokenStore ─► StateTracker ─► ExchangeClient ─► Flow
//	                                              │
//	                                              └──────────► Pool
//
// # Service
//
// Service is the single entry point used by the CLI, the HTTP server and
// the MCP tools. Collaborators run REST calls through ExecuteWithRetry,
// which obtains a pooled session for the owner in the configured auth
// mode, renews it once when Salesforce reports an expired session and
// annotates unrecoverable failures with re-authentication guidance.
//
// # Execution
//
// Application.Run serves the OAuth endpoints and the sweep scheduler,
// optionally together with the MCP stdio transport, until interrupted.
//
// Logging goes to stderr by default so stdout stays free for stdio.
package app
