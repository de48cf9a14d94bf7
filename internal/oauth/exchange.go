package oauth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/the-answerai/mcp-server-salesforce/pkg/logging"
	pkgoauth "github.com/the-answerai/mcp-server-salesforce/pkg/oauth"
)

const (
	// DefaultHTTPTimeout bounds every token endpoint round trip.
	DefaultHTTPTimeout = 30 * time.Second

	jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	jwtAssertionTTL    = 3 * time.Minute
)

// ExchangeConfig holds the client registration used against the token endpoint.
type ExchangeConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	LoginURL     string
	Scopes       []string

	// JWTKey signs jwt-bearer assertions. Optional.
	JWTKey *rsa.PrivateKey
}

// ExchangeClient talks to the Salesforce token, revoke and userinfo
// endpoints. Every call is a single round trip; retrying is the caller's job.
type ExchangeClient struct {
	config     ExchangeConfig
	endpoints  pkgoauth.Endpoints
	oauth      *oauth2.Config
	httpClient *http.Client
	now        func() time.Time
}

// ExchangeOption configures an ExchangeClient.
type ExchangeOption func(*ExchangeClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ExchangeOption {
	return func(c *ExchangeClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithExchangeClock injects the time source used for assertions.
func WithExchangeClock(now func() time.Time) ExchangeOption {
	return func(c *ExchangeClient) {
		if now != nil {
			c.now = now
		}
	}
}

// NewExchangeClient creates a client for the login host in config.
func NewExchangeClient(config ExchangeConfig, opts ...ExchangeOption) *ExchangeClient {
	endpoints := pkgoauth.EndpointsFor(config.LoginURL)

	c := &ExchangeClient{
		config:    config,
		endpoints: endpoints,
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURI,
			Scopes:       config.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   endpoints.Authorize,
				TokenURL:  endpoints.Token,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoints returns the endpoints derived from the login URL.
func (c *ExchangeClient) Endpoints() pkgoauth.Endpoints {
	return c.endpoints
}

// HTTPClient returns the client used for provider calls.
func (c *ExchangeClient) HTTPClient() *http.Client {
	return c.httpClient
}

// ClientID returns the configured client id.
func (c *ExchangeClient) ClientID() string {
	return c.config.ClientID
}

func (c *ExchangeClient) context(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// ExchangeCode trades an authorization code for tokens. codeVerifier is sent
// when the flow used PKCE.
func (c *ExchangeClient) ExchangeCode(ctx context.Context, code, codeVerifier string) (*TokenRecord, error) {
	if c.config.ClientID == "" {
		return nil, NewError(KindMissingCredentials, "client id is not configured", nil)
	}

	var opts []oauth2.AuthCodeOption
	if codeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(codeVerifier))
	}

	tok, err := c.oauth.Exchange(c.context(ctx), code, opts...)
	if err != nil {
		return nil, classifyTokenError(KindCodeExchangeFailed, "authorization code exchange failed", err)
	}

	logging.Debug("OAuth", "Exchanged authorization code (instance=%s)", extraString(tok, "instance_url"))
	return recordFromToken(tok), nil
}

// Refresh mints a new access token. The original refresh token is kept when
// the provider does not rotate it.
func (c *ExchangeClient) Refresh(ctx context.Context, refreshToken string) (*TokenRecord, error) {
	if refreshToken == "" {
		return nil, NewError(KindMissingCredentials, "no refresh token available", nil)
	}
	if c.config.ClientID == "" {
		return nil, NewError(KindMissingCredentials, "client id is not configured", nil)
	}

	src := c.oauth.TokenSource(c.context(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, classifyTokenError(KindTokenRefreshFailed, "token refresh failed", err)
	}

	record := recordFromToken(tok)
	if record.RefreshToken == "" {
		record.RefreshToken = refreshToken
	}

	logging.Debug("OAuth", "Successfully refreshed token (instance=%s)", record.InstanceURL)
	return record, nil
}

// PasswordLogin runs the username-password grant. password must already
// include the security token suffix when the org requires one.
func (c *ExchangeClient) PasswordLogin(ctx context.Context, username, password string) (*TokenRecord, error) {
	if username == "" || password == "" {
		return nil, NewError(KindMissingCredentials, "username and password are required", nil)
	}

	tok, err := c.oauth.PasswordCredentialsToken(c.context(ctx), username, password)
	if err != nil {
		return nil, classifyTokenError(KindOAuthAuthorizationFailed, "password login failed", err)
	}
	return recordFromToken(tok), nil
}

// ClientCredentials runs the client_credentials grant.
func (c *ExchangeClient) ClientCredentials(ctx context.Context) (*TokenRecord, error) {
	if c.config.ClientID == "" || c.config.ClientSecret == "" {
		return nil, NewError(KindMissingCredentials, "client id and secret are required for client credentials", nil)
	}

	cc := &clientcredentials.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		TokenURL:     c.endpoints.Token,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tok, err := cc.Token(c.context(ctx))
	if err != nil {
		return nil, classifyTokenError(KindOAuthAuthorizationFailed, "client credentials grant failed", err)
	}
	return recordFromToken(tok), nil
}

// JWTBearer exchanges an RS256 assertion for subject (a Salesforce username)
// for an access token.
func (c *ExchangeClient) JWTBearer(ctx context.Context, subject string) (*TokenRecord, error) {
	if c.config.JWTKey == nil || c.config.ClientID == "" || subject == "" {
		return nil, NewError(KindMissingCredentials, "jwt bearer requires client id, signing key and subject", nil)
	}

	now := c.now()
	// Salesforce expects aud as a single string, not an array.
	claims := jwt.MapClaims{
		"iss": c.config.ClientID,
		"sub": subject,
		"aud": c.endpoints.Issuer,
		"exp": now.Add(jwtAssertionTTL).Unix(),
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.config.JWTKey)
	if err != nil {
		return nil, NewError(KindMissingCredentials, "failed to sign jwt assertion", err)
	}

	form := url.Values{}
	form.Set("grant_type", jwtBearerGrantType)
	form.Set("assertion", assertion)

	body, status, err := c.postForm(ctx, c.endpoints.Token, form)
	if err != nil {
		return nil, NewError(KindNetwork, "jwt bearer request failed", err)
	}
	if status < 200 || status > 299 {
		apiErr := NewAPIError(status, body)
		return nil, &Error{
			Kind:       KindOAuthAuthorizationFailed,
			Code:       apiErr.ErrorCode,
			StatusCode: status,
			Message:    "jwt bearer grant failed: " + apiErr.Message,
		}
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewError(KindOAuthAuthorizationFailed, "failed to parse jwt bearer response", err)
	}
	tok := &oauth2.Token{
		AccessToken: stringValue(raw["access_token"]),
		TokenType:   stringValue(raw["token_type"]),
	}
	return recordFromToken(tok.WithExtra(raw)), nil
}

// Revoke asks the provider to invalidate token (RFC 7009). It is best effort:
// callers clear local state whatever the outcome.
func (c *ExchangeClient) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	form := url.Values{}
	form.Set("token", token)

	body, status, err := c.postForm(ctx, c.endpoints.Revoke, form)
	if err != nil {
		return NewError(KindNetwork, "token revocation request failed", err)
	}
	if status < 200 || status > 299 {
		return fmt.Errorf("token revocation failed: %w", NewAPIError(status, body))
	}

	logging.Debug("OAuth", "Token revoked at provider")
	return nil
}

func (c *ExchangeClient) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return body, resp.StatusCode, nil
}

// classifyTokenError converts an x/oauth2 failure into an *Error. Provider
// responses keep kind; transport failures become KindNetwork.
func classifyTokenError(kind Kind, message string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		e := &Error{
			Kind:    kind,
			Code:    re.ErrorCode,
			Message: message,
		}
		if re.Response != nil {
			e.StatusCode = re.Response.StatusCode
		}
		if re.ErrorDescription != "" {
			e.Message = message + ": " + re.ErrorDescription
		}
		logging.Debug("OAuth", "%s: status=%d code=%s", message, e.StatusCode, e.Code)
		return e
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindNetwork, message, err)
	}
	return NewError(kind, message, err)
}

// recordFromToken reads the Salesforce extras from tok.
func recordFromToken(tok *oauth2.Token) *TokenRecord {
	record := &TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
		InstanceURL:  extraString(tok, "instance_url"),
		Scope:        extraString(tok, "scope"),
		IdentityURL:  extraString(tok, "id"),
		IssuedAt:     parseIssuedAt(extraString(tok, "issued_at")),
	}
	if record.TokenType == "" {
		record.TokenType = DefaultTokenType
	}
	return record
}

func extraString(tok *oauth2.Token, key string) string {
	return stringValue(tok.Extra(key))
}

func stringValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

// parseIssuedAt parses Salesforce's issued_at, milliseconds since the epoch.
func parseIssuedAt(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
