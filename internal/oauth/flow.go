package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/the-answerai/mcp-server-salesforce/pkg/logging"
	pkgoauth "github.com/the-answerai/mcp-server-salesforce/pkg/oauth"
)

// DefaultScope grants identity lookup, data API access and refresh capability.
const DefaultScope = "id api refresh_token"

// Response types accepted by the authorize endpoint.
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// placeholderOwnerPrefix marks owner hints generated for anonymous flows.
const placeholderOwnerPrefix = "pending-"

// TokenExchanger is the subset of ExchangeClient the flow depends on.
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenRecord, error)
	Revoke(ctx context.Context, token string) error
}

// FlowConfig configures the authorization flow.
type FlowConfig struct {
	ClientID    string
	RedirectURI string
	LoginURL    string

	// Scope defaults to DefaultScope.
	Scope string

	// ResponseType is "code" (default) or "token" for the implicit flow.
	ResponseType string

	// Prompt is passed through as the prompt parameter when set,
	// e.g. "login consent".
	Prompt string

	// UsePKCE adds an S256 code challenge to code flows.
	UsePKCE bool
}

// AuthURLOptions override FlowConfig for a single authorization URL.
type AuthURLOptions struct {
	Scope  string
	Prompt string
}

// Flow drives the authorization code and implicit flows: it issues
// authorization URLs, validates callbacks and stores the resulting tokens
// under the resolved user identity.
type Flow struct {
	config    FlowConfig
	endpoints pkgoauth.Endpoints
	states    *StateTracker
	exchanger TokenExchanger
	identity  IdentityFetcher
	tokens    *TokenStore
	now       func() time.Time

	onComplete func(FlowResult)
}

// NewFlow wires a flow. It fails with KindMissingCredentials when the client
// id or redirect URI is missing.
func NewFlow(config FlowConfig, states *StateTracker, exchanger TokenExchanger, identity IdentityFetcher, tokens *TokenStore) (*Flow, error) {
	if config.ClientID == "" {
		return nil, NewError(KindMissingCredentials, "client id is not configured", nil)
	}
	if config.RedirectURI == "" {
		return nil, NewError(KindMissingCredentials, "redirect URI is not configured", nil)
	}
	if config.Scope == "" {
		config.Scope = DefaultScope
	}
	switch config.ResponseType {
	case "":
		config.ResponseType = ResponseTypeCode
	case ResponseTypeCode, ResponseTypeToken:
	default:
		return nil, fmt.Errorf("unsupported response type %q", config.ResponseType)
	}

	return &Flow{
		config:    config,
		endpoints: pkgoauth.EndpointsFor(config.LoginURL),
		states:    states,
		exchanger: exchanger,
		identity:  identity,
		tokens:    tokens,
		now:       time.Now,
	}, nil
}

// OnComplete registers fn to run after a callback stores a token, e.g. to
// drop cached sessions of the owner. It must be set before serving callbacks.
func (f *Flow) OnComplete(fn func(FlowResult)) {
	f.onComplete = fn
}

// Config returns the effective configuration.
func (f *Flow) Config() FlowConfig {
	return f.config
}

// Metadata returns the discovery document for this deployment.
func (f *Flow) Metadata() *pkgoauth.Metadata {
	return pkgoauth.NewMetadata(f.endpoints, f.config.ClientID, strings.Fields(f.config.Scope))
}

// IsPlaceholderOwner reports whether ownerID was generated for an anonymous flow.
func IsPlaceholderOwner(ownerID string) bool {
	return strings.HasPrefix(ownerID, placeholderOwnerPrefix)
}

// AuthorizationURL issues a state bound to ownerHint and returns the URL the
// user must visit. An empty hint is replaced with a disposable placeholder;
// the token is stored under the resolved identity either way.
//
// Parameters are emitted in a fixed order: response_type, client_id,
// redirect_uri, scope, state, then prompt and the PKCE pair when present.
func (f *Flow) AuthorizationURL(ctx context.Context, ownerHint string, opts AuthURLOptions) (string, string, error) {
	if ownerHint == "" {
		ownerHint = placeholderOwnerPrefix + uuid.NewString()
	}

	scope := firstNonEmpty(opts.Scope, f.config.Scope)
	prompt := firstNonEmpty(opts.Prompt, f.config.Prompt)

	var pkce *pkgoauth.PKCEChallenge
	if f.config.UsePKCE && f.config.ResponseType == ResponseTypeCode {
		var err error
		if pkce, err = pkgoauth.GeneratePKCE(); err != nil {
			return "", "", fmt.Errorf("failed to generate PKCE: %w", err)
		}
	}

	verifier := ""
	if pkce != nil {
		verifier = pkce.CodeVerifier
	}
	state, err := f.states.IssueWithVerifier(ctx, ownerHint, verifier)
	if err != nil {
		return "", "", err
	}

	params := [][2]string{
		{"response_type", f.config.ResponseType},
		{"client_id", f.config.ClientID},
		{"redirect_uri", f.config.RedirectURI},
		{"scope", scope},
		{"state", state},
	}
	if prompt != "" {
		params = append(params, [2]string{"prompt", prompt})
	}
	if pkce != nil {
		params = append(params,
			[2]string{"code_challenge", pkce.CodeChallenge},
			[2]string{"code_challenge_method", pkce.CodeChallengeMethod},
		)
	}

	var query strings.Builder
	for i, p := range params {
		if i > 0 {
			query.WriteByte('&')
		}
		query.WriteString(url.QueryEscape(p[0]))
		query.WriteByte('=')
		query.WriteString(url.QueryEscape(p[1]))
	}

	logging.Debug("OAuth", "Generated auth URL for owner=%s response_type=%s pkce=%t",
		logging.TruncateID(ownerHint), f.config.ResponseType, pkce != nil)

	return f.endpoints.Authorize + "?" + query.String(), state, nil
}

// ParseCallback extracts callback parameters from a full redirect URL, a bare
// query string or a fragment. Fragment values win over query values, since
// implicit tokens arrive in the fragment.
func ParseCallback(raw string) (CallbackParams, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return CallbackParams{}, NewError(KindInvalidState, "empty callback", nil)
	}

	var rawQuery, rawFragment string
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return CallbackParams{}, NewError(KindInvalidState, "malformed callback URL", err)
		}
		rawQuery, rawFragment = u.RawQuery, u.EscapedFragment()
	} else {
		raw = strings.TrimPrefix(raw, "?")
		if before, after, found := strings.Cut(raw, "#"); found {
			rawQuery, rawFragment = before, after
		} else {
			rawQuery = raw
		}
	}

	values := url.Values{}
	for _, part := range []string{rawQuery, rawFragment} {
		if part == "" {
			continue
		}
		parsed, err := url.ParseQuery(part)
		if err != nil {
			return CallbackParams{}, NewError(KindInvalidState, "malformed callback parameters", err)
		}
		for key, vals := range parsed {
			values[key] = vals
		}
	}

	return CallbackParams{
		State:            values.Get("state"),
		Code:             values.Get("code"),
		Error:            values.Get("error"),
		ErrorDescription: values.Get("error_description"),
		AccessToken:      values.Get("access_token"),
		RefreshToken:     values.Get("refresh_token"),
		InstanceURL:      values.Get("instance_url"),
		Scope:            values.Get("scope"),
		TokenType:        values.Get("token_type"),
		IdentityURL:      values.Get("id"),
		IssuedAt:         values.Get("issued_at"),
		ExpiresIn:        values.Get("expires_in"),
	}, nil
}

// HandleCallback completes an authorization attempt.
//
// The state is always consumed before anything else happens, including when
// the provider reports an error, so a callback can never be replayed.
func (f *Flow) HandleCallback(ctx context.Context, params CallbackParams) (*FlowResult, error) {
	if params.Error != "" {
		if params.State != "" {
			_, _ = f.states.Consume(ctx, params.State)
		}
		logging.Warn("OAuth", "Provider returned authorization error: %s", params.Error)
		return nil, &Error{
			Kind:    KindOAuthAuthorizationFailed,
			Code:    params.Error,
			Message: firstNonEmpty(params.ErrorDescription, "authorization was denied or failed"),
		}
	}

	if params.State == "" {
		return nil, NewError(KindInvalidState, "missing state parameter", nil)
	}

	pending, err := f.states.Consume(ctx, params.State)
	switch {
	case errors.Is(err, ErrStateExpired):
		return nil, NewError(KindStateExpired, "authorization attempt expired, start a new one", err)
	case errors.Is(err, ErrStateNotFound):
		return nil, NewError(KindInvalidState, "unknown or already used state parameter", err)
	case err != nil:
		return nil, NewError(KindUnknown, "failed to look up state", err)
	}

	var record *TokenRecord
	switch {
	case params.Code != "":
		record, err = f.exchanger.ExchangeCode(ctx, params.Code, pending.CodeVerifier)
		if err != nil {
			return nil, err
		}
	case params.AccessToken != "":
		record = f.implicitRecord(params)
	default:
		return nil, NewError(KindOAuthAuthorizationFailed, "callback carries neither an authorization code nor an access token", nil)
	}

	identity, err := f.identity.Resolve(ctx, *record)
	if err != nil {
		if !IsKind(err, KindIdentityResolutionFailed) {
			err = NewError(KindIdentityResolutionFailed, "failed to resolve user identity", err)
		}
		return nil, err
	}

	ownerID := identity.StableKey()
	if err := f.tokens.Put(ownerID, *record); err != nil {
		return nil, err
	}
	stored := record.WithOwner(ownerID)

	logging.Audit("OAuth authorization completed",
		"event", "authorization_completed",
		"owner", logging.TruncateID(ownerID),
		"placeholder_owner", IsPlaceholderOwner(pending.OwnerID),
		"implicit", params.IsImplicit(),
	)

	result := &FlowResult{
		OwnerID:        ownerID,
		RequestedOwner: pending.OwnerID,
		Identity:       *identity,
		Token:          stored,
	}
	if f.onComplete != nil {
		f.onComplete(*result)
	}
	return result, nil
}

// CompleteFromURL parses a pasted redirect URL and completes the flow.
func (f *Flow) CompleteFromURL(ctx context.Context, redirectURL string) (*FlowResult, error) {
	params, err := ParseCallback(redirectURL)
	if err != nil {
		return nil, err
	}
	return f.HandleCallback(ctx, params)
}

// Logout revokes the owner's token at the provider and clears it locally.
// The local record is cleared even when revocation fails; the revocation
// error is still returned.
func (f *Flow) Logout(ctx context.Context, ownerID string) error {
	record := f.tokens.Peek(ownerID)

	var revokeErr error
	if record != nil {
		// Revoking the refresh token also invalidates its access tokens.
		token := firstNonEmpty(record.RefreshToken, record.AccessToken)
		if revokeErr = f.exchanger.Revoke(ctx, token); revokeErr != nil {
			logging.Warn("OAuth", "Remote revoke failed for owner=%s, clearing local token anyway: %v",
				logging.TruncateID(ownerID), revokeErr)
		}
	}

	clearErr := f.tokens.Clear(ownerID)
	return errors.Join(revokeErr, clearErr)
}

func (f *Flow) implicitRecord(params CallbackParams) *TokenRecord {
	record := &TokenRecord{
		AccessToken:  params.AccessToken,
		RefreshToken: params.RefreshToken,
		InstanceURL:  params.InstanceURL,
		Scope:        params.Scope,
		TokenType:    firstNonEmpty(params.TokenType, DefaultTokenType),
		IdentityURL:  params.IdentityURL,
		IssuedAt:     parseIssuedAt(params.IssuedAt),
	}
	if secs, err := strconv.Atoi(params.ExpiresIn); err == nil && secs > 0 {
		record.ExpiresAt = f.now().Add(time.Duration(secs) * time.Second)
	}
	return record
}
