// Package server exposes the credential service over HTTP and MCP.
//
// # HTTP
//
// The HTTP server hosts the browser side of the Salesforce authorization
// flow plus operational endpoints:
//
//   - /oauth/callback - redirect URI for the authorization code flow (rate limited per client IP)
//   - /oauth/implicit - posts implicit-flow fragments to the callback
//   - /oauth/authorize - redirects to a freshly issued authorization URL
//   - /.well-known/oauth-authorization-server - discovery document (RFC 8414)
//   - /health - liveness probe
//   - /metrics - Prometheus metrics
//
// # Scheduler
//
// A cron scheduler periodically drops stale authorization attempts and
// expired tokens that cannot be refreshed.
//
// # MCP
//
// The MCP server runs over stdio and offers tools to start and complete an
// authorization, inspect or revoke an owner's credential and send REST
// requests through the session pool. The auth://status resource lists every
// stored credential:
//
//	┌──────────────┐   stdio    ┌──────────────┐   REST   ┌────────────┐
//	│  MCP client  │ ─────────► │  MCPServer   │ ───────► │ Salesforce │
//	└──────────────┘            │   Backend    │          └────────────┘
//	                            └──────────────┘
package server
