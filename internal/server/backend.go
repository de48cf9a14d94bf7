package server

import (
	"context"
	"encoding/json"

	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
)

// Backend is the credential service consumed by the HTTP and MCP servers.
type Backend interface {
	// OAuthHandler returns nil when the authorization flow is not configured.
	OAuthHandler() *oauth.Handler

	AuthorizationURL(ctx context.Context, ownerHint string) (string, error)
	CompleteAuthorization(ctx context.Context, redirectURL string) (*oauth.FlowResult, error)
	Status(ownerID string) oauth.TokenStatus
	Statuses() []oauth.TokenStatus
	Issuer() string
	Revoke(ctx context.Context, ownerID string) error
	Request(ctx context.Context, ownerID, method, path string, body any) (json.RawMessage, error)
}

// Sweeper drops expired state. It is run by the Scheduler.
type Sweeper interface {
	SweepExpired(ctx context.Context) (states, tokens int)
}
