package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
)

// fakeBackend records calls and returns canned results.
type fakeBackend struct {
	mu sync.Mutex

	handler   *oauth.Handler
	authURL   string
	result    *oauth.FlowResult
	status    oauth.TokenStatus
	statuses  []oauth.TokenStatus
	response  json.RawMessage
	err       error
	revokeErr error

	owners  []string
	methods []string
	paths   []string
	bodies  []any
}

func (b *fakeBackend) record(owner string) {
	b.mu.Lock()
	b.owners = append(b.owners, owner)
	b.mu.Unlock()
}

func (b *fakeBackend) OAuthHandler() *oauth.Handler { return b.handler }

func (b *fakeBackend) AuthorizationURL(_ context.Context, ownerHint string) (string, error) {
	b.record(ownerHint)
	return b.authURL, b.err
}

func (b *fakeBackend) CompleteAuthorization(_ context.Context, redirectURL string) (*oauth.FlowResult, error) {
	b.record(redirectURL)
	return b.result, b.err
}

func (b *fakeBackend) Status(ownerID string) oauth.TokenStatus {
	b.record(ownerID)
	status := b.status
	status.OwnerID = ownerID
	return status
}

func (b *fakeBackend) Statuses() []oauth.TokenStatus { return b.statuses }

func (b *fakeBackend) Issuer() string { return "https://login.salesforce.com" }

func (b *fakeBackend) Revoke(_ context.Context, ownerID string) error {
	b.record(ownerID)
	return b.revokeErr
}

func (b *fakeBackend) Request(_ context.Context, ownerID, method, path string, body any) (json.RawMessage, error) {
	b.record(ownerID)
	b.mu.Lock()
	b.methods = append(b.methods, method)
	b.paths = append(b.paths, path)
	b.bodies = append(b.bodies, body)
	b.mu.Unlock()
	return b.response, b.err
}

type nopExchanger struct{}

func (nopExchanger) ExchangeCode(context.Context, string, string) (*oauth.TokenRecord, error) {
	return nil, errors.New("not expected")
}

func (nopExchanger) Revoke(context.Context, string) error { return nil }

type nopIdentity struct{}

func (nopIdentity) Resolve(context.Context, oauth.TokenRecord) (*oauth.UserIdentity, error) {
	return nil, errors.New("not expected")
}

// newTestHandler builds an OAuth handler whose flow never reaches the network.
func newTestHandler(t *testing.T) *oauth.Handler {
	t.Helper()
	tokens, err := oauth.NewTokenStore()
	require.NoError(t, err)
	flow, err := oauth.NewFlow(oauth.FlowConfig{
		ClientID:    "abc",
		RedirectURI: "http://localhost:8787/oauth/callback",
	}, oauth.NewStateTracker(), nopExchanger{}, nopIdentity{}, tokens)
	require.NoError(t, err)
	return oauth.NewHandler(flow)
}
