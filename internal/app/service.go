package app

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/the-answerai/mcp-server-salesforce/internal/config"
	"github.com/the-answerai/mcp-server-salesforce/internal/crypto"
	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
	"github.com/the-answerai/mcp-server-salesforce/internal/session"
	"github.com/the-answerai/mcp-server-salesforce/pkg/logging"
)

// Service composes the credential lifecycle: token store, state tracker,
// exchange client, authorization flow and session pool. It is the single
// entry point used by the CLI, the HTTP server and the MCP tools.
type Service struct {
	settings config.Config
	mode     session.AuthMode

	tokens   *oauth.TokenStore
	states   *oauth.StateTracker
	exchange *oauth.ExchangeClient
	identity *oauth.IdentityResolver
	flow     *oauth.Flow
	pool     *session.Pool
	registry *prometheus.Registry
}

type serviceOptions struct {
	httpClient *http.Client
	stateStore oauth.StateStore
	registry   *prometheus.Registry
	clock      func() time.Time
}

// ServiceOption configures NewService.
type ServiceOption func(*serviceOptions)

// WithHTTPClient sets the client used for every Salesforce call.
func WithHTTPClient(client *http.Client) ServiceOption {
	return func(o *serviceOptions) { o.httpClient = client }
}

// WithStateStore overrides the state backend selected by configuration.
func WithStateStore(store oauth.StateStore) ServiceOption {
	return func(o *serviceOptions) { o.stateStore = store }
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) ServiceOption {
	return func(o *serviceOptions) { o.registry = reg }
}

// WithClock sets the clock of the token store and state tracker.
func WithClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) { o.clock = now }
}

// NewService builds a Service from validated settings.
func NewService(ctx context.Context, settings config.Config, opts ...ServiceOption) (*Service, error) {
	o := serviceOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: oauth.DefaultHTTPTimeout}
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	sf := settings.Salesforce
	mode, err := session.ParseAuthMode(sf.AuthMode)
	if err != nil {
		return nil, err
	}

	tokens, err := newTokenStore(settings.TokenStore, o.clock)
	if err != nil {
		return nil, err
	}

	stateStore := o.stateStore
	if stateStore == nil {
		if settings.State.Redis.Address != "" {
			redisStore, err := oauth.NewRedisStateStore(ctx, settings.State.Redis)
			if err != nil {
				tokens.Close()
				return nil, err
			}
			logging.Info("Service", "Tracking authorization state in Redis at %s", settings.State.Redis.Address)
			stateStore = redisStore
		} else {
			stateStore = oauth.NewMemoryStateStore()
		}
	}
	states := oauth.NewStateTracker(
		oauth.WithStateStore(stateStore),
		oauth.WithStateTimeout(settings.State.Timeout),
		oauth.WithStateClock(o.clock),
	)

	var jwtKey *rsa.PrivateKey
	if sf.JWTKeyFile != "" {
		if jwtKey, err = LoadJWTKey(sf.JWTKeyFile); err != nil {
			tokens.Close()
			_ = states.Close()
			return nil, err
		}
	}

	exchange := oauth.NewExchangeClient(oauth.ExchangeConfig{
		ClientID:     sf.ClientID,
		ClientSecret: sf.ClientSecret,
		RedirectURI:  sf.RedirectURI,
		LoginURL:     sf.LoginURL,
		Scopes:       strings.Fields(sf.Scope),
		JWTKey:       jwtKey,
	}, oauth.WithHTTPClient(o.httpClient))
	identity := oauth.NewIdentityResolver(o.httpClient)

	metrics, err := session.NewMetrics(o.registry)
	if err != nil {
		tokens.Close()
		_ = states.Close()
		return nil, err
	}

	pool := session.NewPool(session.PoolConfig{
		Grants:        exchange,
		Tokens:        tokens,
		Probe:         identity,
		ProbeInterval: settings.Pool.ProbeInterval,
		MaxRetries:    settings.Pool.MaxRetries,
		Credentials: session.AuthParams{
			Username:      sf.Username,
			Password:      sf.Password,
			SecurityToken: sf.SecurityToken,
			RefreshToken:  sf.RefreshToken,
			AccessToken:   sf.AccessToken,
			InstanceURL:   sf.InstanceURL,
		},
		DefaultOwner: defaultOwner(settings),
		HTTPClient:   o.httpClient,
		Metrics:      metrics,
	})

	flow, err := oauth.NewFlow(oauth.FlowConfig{
		ClientID:     sf.ClientID,
		RedirectURI:  sf.RedirectURI,
		LoginURL:     sf.LoginURL,
		Scope:        sf.Scope,
		ResponseType: sf.ResponseType,
		Prompt:       sf.Prompt,
		UsePKCE:      sf.UsePKCE,
	}, states, exchange, identity, tokens)
	switch {
	case oauth.IsKind(err, oauth.KindMissingCredentials):
		// Pass-through modes can run without a connected app.
		logging.Warn("Service", "Authorization flow disabled: %v", err)
		flow = nil
	case err != nil:
		tokens.Close()
		_ = states.Close()
		return nil, err
	default:
		flow.OnComplete(func(result oauth.FlowResult) {
			pool.Clear(result.OwnerID)
		})
	}

	logging.Info("Service", "Credential service ready (mode=%s, login=%s)", mode, exchange.Endpoints().Issuer)

	return &Service{
		settings: settings,
		mode:     mode,
		tokens:   tokens,
		states:   states,
		exchange: exchange,
		identity: identity,
		flow:     flow,
		pool:     pool,
		registry: o.registry,
	}, nil
}

func newTokenStore(cfg config.TokenStoreConfig, clock func() time.Time) (*oauth.TokenStore, error) {
	var encryptor *crypto.Encryptor
	if cfg.EncryptionKey != "" {
		var err error
		if encryptor, err = crypto.NewEncryptor(cfg.EncryptionKey); err != nil {
			return nil, fmt.Errorf("failed to initialize token encryption: %w", err)
		}
	}

	file, err := oauth.NewTokenFile(cfg.Path, encryptor)
	if err != nil {
		return nil, err
	}

	return oauth.NewTokenStore(
		oauth.WithBackend(file),
		oauth.WithRefreshBuffer(cfg.RefreshBuffer),
		oauth.WithEvictionTimers(cfg.EvictionTimers),
		oauth.WithClock(clock),
	)
}

// LoadJWTKey reads a PEM encoded RSA private key.
func LoadJWTKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWT key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT key %s: %w", path, err)
	}
	return key, nil
}

// Mode returns the configured auth mode.
func (s *Service) Mode() session.AuthMode {
	return s.mode
}

// Owner returns ownerID, or the configured default owner when empty.
func (s *Service) Owner(ownerID string) string {
	if ownerID = strings.TrimSpace(ownerID); ownerID != "" {
		return ownerID
	}
	return defaultOwner(s.settings)
}

func defaultOwner(settings config.Config) string {
	if settings.Salesforce.DefaultOwner != "" {
		return settings.Salesforce.DefaultOwner
	}
	return config.DefaultOwner
}

// Tokens returns the token store.
func (s *Service) Tokens() *oauth.TokenStore {
	return s.tokens
}

// Pool returns the session pool.
func (s *Service) Pool() *session.Pool {
	return s.pool
}

// Gatherer exposes the service metrics.
func (s *Service) Gatherer() prometheus.Gatherer {
	return s.registry
}

// OAuthHandler returns the browser-facing OAuth handler, or nil when the
// authorization flow is not configured.
func (s *Service) OAuthHandler() *oauth.Handler {
	if s.flow == nil {
		return nil
	}
	return oauth.NewHandler(s.flow)
}

func (s *Service) requireFlow() error {
	if s.flow == nil {
		return oauth.NewError(oauth.KindMissingCredentials, "the authorization flow needs a client id and redirect URI", nil)
	}
	return nil
}

// ExecuteWithRetry runs op with a session for ownerID in the configured
// auth mode. An expired session is renewed and op retried once; failures
// that leave the owner without a usable credential carry re-authentication
// guidance.
func (s *Service) ExecuteWithRetry(ctx context.Context, ownerID string, op func(ctx context.Context, h session.Handle) error) error {
	key := session.Key{OwnerID: s.Owner(ownerID), Mode: s.mode}
	return oauth.WithReauthGuidance(s.pool.Execute(ctx, key, op))
}

// Request sends a JSON request to the REST API for ownerID and returns the
// raw response body. path is relative to the data API unless it starts
// with /services/.
func (s *Service) Request(ctx context.Context, ownerID, method, path string, body any) (json.RawMessage, error) {
	var out json.RawMessage
	err := s.ExecuteWithRetry(ctx, ownerID, func(ctx context.Context, h session.Handle) error {
		out = nil
		return session.DoJSON(ctx, h, method, path, body, &out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AuthorizationURL starts an authorization flow for ownerHint.
func (s *Service) AuthorizationURL(ctx context.Context, ownerHint string) (string, error) {
	if err := s.requireFlow(); err != nil {
		return "", err
	}
	authURL, _, err := s.flow.AuthorizationURL(ctx, ownerHint, oauth.AuthURLOptions{})
	return authURL, err
}

// CompleteAuthorization completes a flow from the redirect URL the browser
// landed on.
func (s *Service) CompleteAuthorization(ctx context.Context, redirectURL string) (*oauth.FlowResult, error) {
	if err := s.requireFlow(); err != nil {
		return nil, err
	}
	return s.flow.CompleteFromURL(ctx, redirectURL)
}

// Status reports the stored credential of ownerID.
func (s *Service) Status(ownerID string) oauth.TokenStatus {
	return s.tokens.Status(s.Owner(ownerID))
}

// Issuer returns the Salesforce login host.
func (s *Service) Issuer() string {
	return s.exchange.Endpoints().Issuer
}

// Statuses reports every stored credential.
func (s *Service) Statuses() []oauth.TokenStatus {
	owners := s.tokens.ListOwners()
	statuses := make([]oauth.TokenStatus, 0, len(owners))
	for _, owner := range owners {
		statuses = append(statuses, s.tokens.Status(owner))
	}
	return statuses
}

// Revoke revokes the owner's token at Salesforce and always clears it
// locally, along with any cached sessions. A failed remote revocation is
// returned after the local state is gone.
func (s *Service) Revoke(ctx context.Context, ownerID string) error {
	ownerID = s.Owner(ownerID)
	defer s.pool.Clear(ownerID)

	if s.flow != nil {
		return s.flow.Logout(ctx, ownerID)
	}

	var revokeErr error
	if record := s.tokens.Peek(ownerID); record != nil {
		token := record.RefreshToken
		if token == "" {
			token = record.AccessToken
		}
		revokeErr = s.exchange.Revoke(ctx, token)
	}
	return errors.Join(revokeErr, s.tokens.Clear(ownerID))
}

// SweepExpired drops stale authorization attempts and expired tokens that
// cannot be refreshed.
func (s *Service) SweepExpired(ctx context.Context) (states, tokens int) {
	return s.states.SweepExpired(ctx), s.tokens.SweepExpired()
}

// Close releases timers and the state backend.
func (s *Service) Close() error {
	s.tokens.Close()
	return s.states.Close()
}
