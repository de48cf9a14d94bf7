package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
	"github.com/the-answerai/mcp-server-salesforce/pkg/logging"
)

const (
	// DefaultProbeInterval is how long a cached session is trusted before the
	// next identity probe.
	DefaultProbeInterval = 5 * time.Minute

	// DefaultMaxRetries is the number of retries after an expired session.
	DefaultMaxRetries = 1

	// DefaultBuildTimeout bounds a shared session build once it no longer
	// follows the cancellation of the caller that started it.
	DefaultBuildTimeout = 2 * oauth.DefaultHTTPTimeout
)

// Grants is the subset of oauth.ExchangeClient the pool uses to obtain tokens.
type Grants interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth.TokenRecord, error)
	PasswordLogin(ctx context.Context, username, password string) (*oauth.TokenRecord, error)
	ClientCredentials(ctx context.Context) (*oauth.TokenRecord, error)
	JWTBearer(ctx context.Context, subject string) (*oauth.TokenRecord, error)
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	Grants Grants
	Tokens *oauth.TokenStore

	// Probe checks a cached session is still accepted. Nil disables probing.
	Probe         oauth.IdentityFetcher
	ProbeInterval time.Duration

	// MaxRetries defaults to DefaultMaxRetries. Negative disables retries.
	MaxRetries int

	// Credentials are the defaults merged into every AuthParams.
	Credentials AuthParams

	// DefaultOwner is the only owner a pre-provisioned refresh token may
	// mint a session for. Any other owner needs a stored record of its own.
	DefaultOwner string

	HTTPClient *http.Client
	Metrics    *Metrics
	Clock      func() time.Time
}

type entry struct {
	handle    *RESTHandle
	checkedAt time.Time
}

// Pool owns at most one live session per (owner, mode) and at most one
// in-flight construction per key.
type Pool struct {
	mu      sync.RWMutex
	entries map[Key]*entry
	group   singleflight.Group

	grants        Grants
	tokens        *oauth.TokenStore
	probe         oauth.IdentityFetcher
	probeInterval time.Duration
	maxRetries    int
	credentials   AuthParams
	defaultOwner  string
	httpClient    *http.Client
	metrics       *Metrics
	now           func() time.Time
}

// NewPool creates a pool.
func NewPool(config PoolConfig) *Pool {
	p := &Pool{
		entries:       make(map[Key]*entry),
		grants:        config.Grants,
		tokens:        config.Tokens,
		probe:         config.Probe,
		probeInterval: config.ProbeInterval,
		maxRetries:    config.MaxRetries,
		credentials:   config.Credentials,
		defaultOwner:  config.DefaultOwner,
		httpClient:    config.HTTPClient,
		metrics:       config.Metrics,
		now:           config.Clock,
	}
	if p.probeInterval <= 0 {
		p.probeInterval = DefaultProbeInterval
	}
	switch {
	case p.maxRetries == 0:
		p.maxRetries = DefaultMaxRetries
	case p.maxRetries < 0:
		p.maxRetries = 0
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: oauth.DefaultHTTPTimeout}
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Get returns the cached session for key, probing it when the probe interval
// has elapsed, or builds a new one. Concurrent callers for the same key share
// a single build.
func (p *Pool) Get(ctx context.Context, key Key, params AuthParams) (Handle, error) {
	return p.get(ctx, key, params, nil)
}

// get is Get with an optional stale handle. A caller that saw stale fail
// with an expired session gets a rebuilt session, unless the cache already
// holds a different one. Normal and forced builds share one flight per key.
func (p *Pool) get(ctx context.Context, key Key, params AuthParams, stale Handle) (Handle, error) {
	if h, ok := p.fresh(key); ok && !sameSession(h, stale) {
		return h, nil
	}

	params = p.paramsFor(key, params)
	for {
		ran := false
		ch := p.group.DoChan(key.String(), func() (interface{}, error) {
			ran = true
			buildCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultBuildTimeout)
			defer cancel()

			if stale == nil {
				if h, ok := p.revalidate(buildCtx, key); ok {
					return h, nil
				}
				return p.build(buildCtx, key, params, false)
			}
			if h, ok := p.cached(key); ok && !sameSession(h, stale) {
				return h, nil
			}
			return p.build(buildCtx, key, params, true)
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res = <-ch:
		}
		if res.Err != nil {
			return nil, res.Err
		}
		h := res.Val.(*RESTHandle)
		if ran || !sameSession(h, stale) {
			if res.Shared {
				logging.Debug("SessionPool", "Shared in-flight session build for owner=%s mode=%s",
					logging.TruncateID(key.OwnerID), key.Mode)
			}
			return h, nil
		}
		// Joined a build that reused the stale session; run our own.
	}
}

// paramsFor merges the pool's default credentials into params. The
// pre-provisioned refresh token is withheld from every owner but the default.
func (p *Pool) paramsFor(key Key, params AuthParams) AuthParams {
	merged := params.merge(p.credentials)
	if key.OwnerID != p.defaultOwner {
		merged.RefreshToken = params.RefreshToken
	}
	return merged
}

func sameSession(h, stale Handle) bool {
	return stale != nil && h != nil && h.AccessToken() == stale.AccessToken()
}

// cached returns the cached handle regardless of probe state.
func (p *Pool) cached(key Key) (*RESTHandle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[key]
	if !ok {
		return nil, false
	}
	return e.handle, true
}

// fresh returns the cached handle when no probe is due.
func (p *Pool) fresh(key Key) (*RESTHandle, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	e, ok := p.entries[key]
	if !ok {
		return nil, false
	}
	if p.probe != nil && p.now().Sub(e.checkedAt) >= p.probeInterval {
		return nil, false
	}
	return e.handle, true
}

// revalidate probes a cached handle whose probe is due. A failed probe evicts it.
func (p *Pool) revalidate(ctx context.Context, key Key) (*RESTHandle, bool) {
	if h, ok := p.fresh(key); ok {
		return h, true
	}

	p.mu.RLock()
	e, ok := p.entries[key]
	p.mu.RUnlock()
	if !ok {
		return nil, false
	}

	_, err := p.probe.Resolve(ctx, e.handle.Record())
	p.metrics.recordProbe(key.Mode, err)
	if err != nil {
		logging.Info("SessionPool", "Cached session for owner=%s mode=%s failed probe, rebuilding: %v",
			logging.TruncateID(key.OwnerID), key.Mode, err)
		p.Invalidate(key)
		return nil, false
	}

	p.mu.Lock()
	if current, ok := p.entries[key]; ok && current == e {
		e.checkedAt = p.now()
	}
	p.mu.Unlock()
	return e.handle, true
}

// build constructs and caches a session. force skips a stored token that
// has just been proven stale.
func (p *Pool) build(ctx context.Context, key Key, params AuthParams, force bool) (*RESTHandle, error) {
	record, refresh, err := p.obtain(ctx, key, params, force)
	p.metrics.recordBuild(key.Mode, err)
	if err != nil {
		logging.Warn("SessionPool", "Failed to build session for owner=%s mode=%s: %v",
			logging.TruncateID(key.OwnerID), key.Mode, err)
		return nil, err
	}

	handle := NewRESTHandle(*record, p.httpClient, refresh)

	p.mu.Lock()
	p.entries[key] = &entry{handle: handle, checkedAt: p.now()}
	n := len(p.entries)
	p.mu.Unlock()
	p.metrics.setSessions(n)

	logging.Debug("SessionPool", "Built session for owner=%s mode=%s instance=%s",
		logging.TruncateID(key.OwnerID), key.Mode, handle.Endpoint())
	return handle, nil
}

// obtain returns a token record for key plus the refresh hook for its handle.
func (p *Pool) obtain(ctx context.Context, key Key, params AuthParams, force bool) (*oauth.TokenRecord, RefreshFunc, error) {
	switch key.Mode {
	case ModeAccessToken:
		if params.AccessToken == "" || params.InstanceURL == "" {
			return nil, nil, oauth.NewError(oauth.KindMissingCredentials, "access_token mode requires an access token and instance URL", nil)
		}
		return &oauth.TokenRecord{
			AccessToken: params.AccessToken,
			InstanceURL: params.InstanceURL,
			TokenType:   oauth.DefaultTokenType,
			OwnerID:     key.OwnerID,
		}, nil, nil

	case ModePassword:
		login := func(ctx context.Context) (*oauth.TokenRecord, error) {
			if p.grants == nil {
				return nil, errNoGrants
			}
			return p.grants.PasswordLogin(ctx, params.Username, params.Password+params.SecurityToken)
		}
		record, err := login(ctx)
		return record, login, err

	case ModeClientCredentials:
		grant := func(ctx context.Context) (*oauth.TokenRecord, error) {
			if p.grants == nil {
				return nil, errNoGrants
			}
			return p.grants.ClientCredentials(ctx)
		}
		record, err := grant(ctx)
		return record, grant, err

	case ModeJWTBearer:
		subject := firstNonEmpty(params.Subject, params.Username, key.OwnerID)
		grant := func(ctx context.Context) (*oauth.TokenRecord, error) {
			if p.grants == nil {
				return nil, errNoGrants
			}
			return p.grants.JWTBearer(ctx, subject)
		}
		record, err := grant(ctx)
		return record, grant, err

	case ModeRefreshToken:
		refresh := func(ctx context.Context) (*oauth.TokenRecord, error) {
			return p.refreshStored(ctx, key, params)
		}
		if !force && p.tokens != nil {
			if record := p.tokens.Get(key.OwnerID); record != nil {
				return record, refresh, nil
			}
		}
		record, err := refresh(ctx)
		return record, refresh, err

	default:
		return nil, nil, oauth.NewError(oauth.KindMissingCredentials, "unsupported auth mode "+string(key.Mode), nil)
	}
}

var errNoGrants = oauth.NewError(oauth.KindMissingCredentials, "no OAuth client is configured", nil)

// refreshStored refreshes the owner's token and stores the result. A stored
// record is only ever renewed with its own refresh token; the pre-provisioned
// one applies when the owner has no record. A refresh rejected with
// invalid_grant evicts the stale record.
func (p *Pool) refreshStored(ctx context.Context, key Key, params AuthParams) (*oauth.TokenRecord, error) {
	var previous *oauth.TokenRecord
	if p.tokens != nil {
		previous = p.tokens.Peek(key.OwnerID)
	}

	refreshToken := params.RefreshToken
	if previous != nil {
		if !previous.CanRefresh() {
			return nil, oauth.WithReauthGuidance(oauth.NewError(oauth.KindMissingCredentials,
				"the stored token for "+key.OwnerID+" has no refresh token and cannot be renewed", nil))
		}
		refreshToken = previous.RefreshToken
	}
	if refreshToken == "" {
		return nil, oauth.NewError(oauth.KindMissingCredentials,
			"no valid token or refresh token for "+key.OwnerID+"; complete the authorization flow first", nil)
	}
	if p.grants == nil {
		return nil, errNoGrants
	}

	record, err := p.grants.Refresh(ctx, refreshToken)
	if err != nil {
		var oe *oauth.Error
		code := ""
		if errors.As(err, &oe) {
			code = oe.Code
		}
		p.metrics.recordRefreshFailure(key.Mode, code)

		if code == "invalid_grant" && p.tokens != nil && previous != nil {
			logging.Warn("SessionPool", "Refresh token rejected for owner=%s, evicting stored token",
				logging.TruncateID(key.OwnerID))
			if clearErr := p.tokens.Clear(key.OwnerID); clearErr != nil {
				logging.Error("SessionPool", clearErr, "Failed to evict stale token")
			}
		}
		return nil, err
	}

	if previous != nil {
		if record.InstanceURL == "" {
			record.InstanceURL = previous.InstanceURL
		}
		if record.IdentityURL == "" {
			record.IdentityURL = previous.IdentityURL
		}
	}
	if record.InstanceURL == "" {
		record.InstanceURL = params.InstanceURL
	}

	if p.tokens != nil {
		if err := p.tokens.Put(key.OwnerID, *record); err != nil {
			return nil, err
		}
	}
	stored := record.WithOwner(key.OwnerID)
	return &stored, nil
}

// Invalidate evicts the cached session for key.
func (p *Pool) Invalidate(key Key) {
	p.mu.Lock()
	delete(p.entries, key)
	n := len(p.entries)
	p.mu.Unlock()
	p.metrics.setSessions(n)
}

// Clear evicts every cached session of ownerID.
func (p *Pool) Clear(ownerID string) {
	p.mu.Lock()
	keys := make([]Key, 0)
	for key := range p.entries {
		if key.OwnerID == ownerID {
			keys = append(keys, key)
		}
	}
	for _, key := range keys {
		delete(p.entries, key)
	}
	n := len(p.entries)
	p.mu.Unlock()
	p.metrics.setSessions(n)
}

// Len returns the number of cached sessions.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Execute runs op with the session for key using the pool's default
// credentials. See ExecuteWith.
func (p *Pool) Execute(ctx context.Context, key Key, op func(ctx context.Context, h Handle) error) error {
	return p.ExecuteWith(ctx, key, AuthParams{}, op)
}

// ExecuteWith runs op with the session for key. When op fails with an
// expired session and retries remain, the session is rebuilt (refreshing the
// token first when possible) unless another caller already replaced it, and
// op runs again.
// Every other failure is returned unchanged.
func (p *Pool) ExecuteWith(ctx context.Context, key Key, params AuthParams, op func(ctx context.Context, h Handle) error) error {
	var stale Handle
	for attempt := 0; ; attempt++ {
		h, err := p.get(ctx, key, params, stale)
		if err != nil {
			return err
		}

		err = op(ctx, h)
		if err == nil {
			return nil
		}

		switch oauth.Classify(err) {
		case oauth.ClassExpiredSession:
			if attempt >= p.maxRetries {
				return err
			}
			logging.Info("SessionPool", "Session expired for owner=%s mode=%s, renewing and retrying",
				logging.TruncateID(key.OwnerID), key.Mode)
			p.metrics.recordRetry(key.Mode)
			stale = h
		default:
			return err
		}
	}
}

// Execute is the typed form of Pool.Execute.
func Execute[T any](ctx context.Context, p *Pool, key Key, op func(ctx context.Context, h Handle) (T, error)) (T, error) {
	var out T
	err := p.Execute(ctx, key, func(ctx context.Context, h Handle) error {
		v, err := op(ctx, h)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
