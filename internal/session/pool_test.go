package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
)

type fakeGrants struct {
	mu       sync.Mutex
	calls    map[string]int
	gate     chan struct{}
	refresh  func(refreshToken string) (*oauth.TokenRecord, error)
	password func(username, password string) (*oauth.TokenRecord, error)
	issued   atomic.Int64

	inflight    int
	maxInflight int
}

func newFakeGrants() *fakeGrants {
	return &fakeGrants{calls: make(map[string]int)}
}

func (g *fakeGrants) count(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[name]
}

func (g *fakeGrants) record(name string) {
	g.mu.Lock()
	g.calls[name]++
	g.inflight++
	if g.inflight > g.maxInflight {
		g.maxInflight = g.inflight
	}
	gate := g.gate
	g.mu.Unlock()
	if gate != nil {
		<-gate
	}
	g.mu.Lock()
	g.inflight--
	g.mu.Unlock()
}

func (g *fakeGrants) peakInflight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxInflight
}

func (g *fakeGrants) setGate(gate chan struct{}) {
	g.mu.Lock()
	g.gate = gate
	g.mu.Unlock()
}

func (g *fakeGrants) token() *oauth.TokenRecord {
	n := g.issued.Add(1)
	return &oauth.TokenRecord{
		AccessToken:  fmt.Sprintf("access-%d", n),
		RefreshToken: "refresh",
		InstanceURL:  "https://acme.my.salesforce.com",
		TokenType:    oauth.DefaultTokenType,
	}
}

func (g *fakeGrants) Refresh(_ context.Context, refreshToken string) (*oauth.TokenRecord, error) {
	g.record("refresh")
	if g.refresh != nil {
		return g.refresh(refreshToken)
	}
	return g.token(), nil
}

func (g *fakeGrants) PasswordLogin(_ context.Context, username, password string) (*oauth.TokenRecord, error) {
	g.record("password")
	if g.password != nil {
		return g.password(username, password)
	}
	return g.token(), nil
}

func (g *fakeGrants) ClientCredentials(context.Context) (*oauth.TokenRecord, error) {
	g.record("client_credentials")
	return g.token(), nil
}

func (g *fakeGrants) JWTBearer(_ context.Context, subject string) (*oauth.TokenRecord, error) {
	g.record("jwt_bearer:" + subject)
	return g.token(), nil
}

type fakeProbe struct {
	calls atomic.Int64
	err   error
}

func (p *fakeProbe) Resolve(context.Context, oauth.TokenRecord) (*oauth.UserIdentity, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return &oauth.UserIdentity{Username: "ada@example.com"}, nil
}

func expiredSession() error {
	return oauth.NewAPIError(http.StatusUnauthorized, []byte(`[{"message":"Session expired or invalid","errorCode":"INVALID_SESSION_ID"}]`))
}

func TestPool_ConcurrentGetBuildsOnce(t *testing.T) {
	grants := newFakeGrants()
	grants.gate = make(chan struct{})
	pool := NewPool(PoolConfig{Grants: grants})
	key := Key{OwnerID: "ada", Mode: ModePassword}

	const callers = 20
	var wg sync.WaitGroup
	handles := make([]Handle, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = pool.Get(context.Background(), key, AuthParams{})
		}(i)
	}

	require.Eventually(t, func() bool { return grants.count("password") == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(grants.gate)
	wg.Wait()

	assert.Equal(t, 1, grants.count("password"))
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, handles[0], handles[i])
	}
	assert.Equal(t, 1, pool.Len())
}

func TestPool_GetReusesCachedHandle(t *testing.T) {
	grants := newFakeGrants()
	pool := NewPool(PoolConfig{Grants: grants})
	key := Key{OwnerID: "ada", Mode: ModeClientCredentials}

	first, err := pool.Get(context.Background(), key, AuthParams{})
	require.NoError(t, err)
	second, err := pool.Get(context.Background(), key, AuthParams{})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, grants.count("client_credentials"))
}

func TestPool_KeysAreIndependent(t *testing.T) {
	grants := newFakeGrants()
	pool := NewPool(PoolConfig{Grants: grants})

	_, err := pool.Get(context.Background(), Key{OwnerID: "ada", Mode: ModePassword}, AuthParams{})
	require.NoError(t, err)
	_, err = pool.Get(context.Background(), Key{OwnerID: "ada", Mode: ModeClientCredentials}, AuthParams{})
	require.NoError(t, err)
	_, err = pool.Get(context.Background(), Key{OwnerID: "bob", Mode: ModePassword}, AuthParams{})
	require.NoError(t, err)

	assert.Equal(t, 3, pool.Len())

	pool.Clear("ada")
	assert.Equal(t, 1, pool.Len())

	pool.Invalidate(Key{OwnerID: "bob", Mode: ModePassword})
	assert.Equal(t, 0, pool.Len())
}

func TestPool_PasswordAppendsSecurityToken(t *testing.T) {
	grants := newFakeGrants()
	var gotUser, gotPassword string
	grants.password = func(username, password string) (*oauth.TokenRecord, error) {
		gotUser, gotPassword = username, password
		return grants.token(), nil
	}
	pool := NewPool(PoolConfig{
		Grants:      grants,
		Credentials: AuthParams{Username: "ada@example.com", Password: "hunter2", SecurityToken: "XYZ"},
	})

	_, err := pool.Get(context.Background(), Key{OwnerID: "ada", Mode: ModePassword}, AuthParams{})
	require.NoError(t, err)

	assert.Equal(t, "ada@example.com", gotUser)
	assert.Equal(t, "hunter2XYZ", gotPassword)
}

func TestPool_JWTBearerSubject(t *testing.T) {
	tests := []struct {
		name   string
		params AuthParams
		want   string
	}{
		{"explicit subject", AuthParams{Subject: "svc@example.com", Username: "ada@example.com"}, "jwt_bearer:svc@example.com"},
		{"username", AuthParams{Username: "ada@example.com"}, "jwt_bearer:ada@example.com"},
		{"owner id", AuthParams{}, "jwt_bearer:owner@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grants := newFakeGrants()
			pool := NewPool(PoolConfig{Grants: grants})

			_, err := pool.Get(context.Background(), Key{OwnerID: "owner@example.com", Mode: ModeJWTBearer}, tt.params)
			require.NoError(t, err)
			assert.Equal(t, 1, grants.count(tt.want))
		})
	}
}

func TestPool_AccessTokenMode(t *testing.T) {
	pool := NewPool(PoolConfig{})
	key := Key{OwnerID: "ada", Mode: ModeAccessToken}

	_, err := pool.Get(context.Background(), key, AuthParams{AccessToken: "00D!static"})
	require.Error(t, err)
	assert.True(t, oauth.IsKind(err, oauth.KindMissingCredentials))

	h, err := pool.Get(context.Background(), key, AuthParams{
		AccessToken: "00D!static",
		InstanceURL: "https://acme.my.salesforce.com/",
	})
	require.NoError(t, err)
	assert.Equal(t, "00D!static", h.AccessToken())
	assert.Equal(t, "https://acme.my.salesforce.com", h.Endpoint())
	assert.ErrorIs(t, h.Refresh(context.Background()), ErrRefreshUnsupported)
}

func TestPool_RefreshTokenModeUsesStoredRecord(t *testing.T) {
	tokens, err := oauth.NewTokenStore()
	require.NoError(t, err)
	require.NoError(t, tokens.Put("ada", oauth.TokenRecord{
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		InstanceURL:  "https://acme.my.salesforce.com",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	grants := newFakeGrants()
	pool := NewPool(PoolConfig{Grants: grants, Tokens: tokens})

	h, err := pool.Get(context.Background(), Key{OwnerID: "ada", Mode: ModeRefreshToken}, AuthParams{})
	require.NoError(t, err)
	assert.Equal(t, "stored-access", h.AccessToken())
	assert.Equal(t, 0, grants.count("refresh"))
}

func TestPool_RefreshTokenModeRefreshesExpiredRecord(t *testing.T) {
	tokens, err := oauth.NewTokenStore()
	require.NoError(t, err)
	require.NoError(t, tokens.Put("ada", oauth.TokenRecord{
		AccessToken:  "stale-access",
		RefreshToken: "stored-refresh",
		InstanceURL:  "https://acme.my.salesforce.com",
		IdentityURL:  "https://login.salesforce.com/id/00D/005",
		ExpiresAt:    time.Now().Add(time.Minute),
	}))

	grants := newFakeGrants()
	var usedRefresh string
	grants.refresh = func(refreshToken string) (*oauth.TokenRecord, error) {
		usedRefresh = refreshToken
		return &oauth.TokenRecord{AccessToken: "fresh-access", RefreshToken: refreshToken}, nil
	}
	pool := NewPool(PoolConfig{Grants: grants, Tokens: tokens})

	h, err := pool.Get(context.Background(), Key{OwnerID: "ada", Mode: ModeRefreshToken}, AuthParams{})
	require.NoError(t, err)

	assert.Equal(t, "stored-refresh", usedRefresh)
	assert.Equal(t, "fresh-access", h.AccessToken())
	assert.Equal(t, "https://acme.my.salesforce.com", h.Endpoint())

	stored := tokens.Peek("ada")
	require.NotNil(t, stored)
	assert.Equal(t, "fresh-access", stored.AccessToken)
	assert.Equal(t, "https://login.salesforce.com/id/00D/005", stored.IdentityURL)
}

func TestPool_RefreshTokenModePreProvisioned(t *testing.T) {
	tokens, err := oauth.NewTokenStore()
	require.NoError(t, err)

	grants := newFakeGrants()
	var usedRefresh string
	grants.refresh = func(refreshToken string) (*oauth.TokenRecord, error) {
		usedRefresh = refreshToken
		return &oauth.TokenRecord{AccessToken: "fresh-access", RefreshToken: refreshToken}, nil
	}
	pool := NewPool(PoolConfig{
		Grants: grants,
		Tokens: tokens,
		Credentials: AuthParams{
			RefreshToken: "provisioned-refresh",
			InstanceURL:  "https://acme.my.salesforce.com",
		},
		DefaultOwner: "default",
	})

	h, err := pool.Get(context.Background(), Key{OwnerID: "default", Mode: ModeRefreshToken}, AuthParams{})
	require.NoError(t, err)
	assert.Equal(t, "provisioned-refresh", usedRefresh)
	assert.Equal(t, "https://acme.my.salesforce.com", h.Endpoint())
	assert.NotNil(t, tokens.Get("default"))
}

func TestPool_RefreshTokenModeWithoutCredentials(t *testing.T) {
	tokens, err := oauth.NewTokenStore()
	require.NoError(t, err)
	grants := newFakeGrants()
	pool := NewPool(PoolConfig{Grants: grants, Tokens: tokens})

	_, err = pool.Get(context.Background(), Key{OwnerID: "nobody", Mode: ModeRefreshToken}, AuthParams{})
	require.Error(t, err)
	assert.True(t, oauth.IsKind(err, oauth.KindMissingCredentials))
	assert.Equal(t, 0, grants.count("refresh"))
}

func TestPool_RefreshTokenModeIgnoresProvisionedTokenForOtherOwners(t *testing.T) {
	tokens, err := oauth.NewTokenStore()
	require.NoError(t, err)
	grants := newFakeGrants()
	pool := NewPool(PoolConfig{
		Grants:       grants,
		Tokens:       tokens,
		Credentials:  AuthParams{RefreshToken: "provisioned-refresh"},
		DefaultOwner: "default",
	})

	_, err = pool.Get(context.Background(), Key{OwnerID: "mallory", Mode: ModeRefreshToken}, AuthParams{})
	require.Error(t, err)
	assert.True(t, oauth.IsKind(err, oauth.KindMissingCredentials))
	assert.Equal(t, 0, grants.count("refresh"))
	assert.Nil(t, tokens.Peek("mallory"))
	assert.Equal(t, 0, pool.Len())
}

func TestPool_RecordWithoutRefreshTokenIsNotRenewed(t *testing.T) {
	tokens, err := oauth.NewTokenStore()
	require.NoError(t, err)
	require.NoError(t, tokens.Put("bob@example.com", oauth.TokenRecord{
		AccessToken: "bob-implicit",
		InstanceURL: "https://acme.my.salesforce.com",
	}))

	grants := newFakeGrants()
	var used []string
	grants.refresh = func(refreshToken string) (*oauth.TokenRecord, error) {
		used = append(used, refreshToken)
		return &oauth.TokenRecord{AccessToken: "minted-from-" + refreshToken}, nil
	}
	pool := NewPool(PoolConfig{
		Grants:       grants,
		Tokens:       tokens,
		Credentials:  AuthParams{RefreshToken: "provisioned-refresh"},
		DefaultOwner: "bob@example.com",
	})

	var calls int
	err = pool.Execute(context.Background(), Key{OwnerID: "bob@example.com", Mode: ModeRefreshToken}, func(_ context.Context, h Handle) error {
		calls++
		if h.AccessToken() == "bob-implicit" {
			return expiredSession()
		}
		return nil
	})

	require.Error(t, err)
	assert.True(t, oauth.IsKind(err, oauth.KindMissingCredentials))
	var reauth *oauth.ReauthRequiredError
	assert.ErrorAs(t, err, &reauth)
	assert.Equal(t, 1, calls)
	assert.Empty(t, used)
	stored := tokens.Peek("bob@example.com")
	require.NotNil(t, stored)
	assert.Equal(t, "bob-implicit", stored.AccessToken)
}

func TestPool_InvalidGrantEvictsStoredRecord(t *testing.T) {
	tokens, err := oauth.NewTokenStore()
	require.NoError(t, err)
	require.NoError(t, tokens.Put("ada", oauth.TokenRecord{
		AccessToken:  "stale-access",
		RefreshToken: "revoked-refresh",
		InstanceURL:  "https://acme.my.salesforce.com",
		ExpiresAt:    time.Now().Add(-time.Hour),
	}))

	grants := newFakeGrants()
	grants.refresh = func(string) (*oauth.TokenRecord, error) {
		return nil, &oauth.Error{
			Kind:       oauth.KindTokenRefreshFailed,
			Code:       "invalid_grant",
			StatusCode: http.StatusBadRequest,
			Message:    "expired access/refresh token",
		}
	}
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)
	pool := NewPool(PoolConfig{Grants: grants, Tokens: tokens, Metrics: metrics})

	_, err = pool.Get(context.Background(), Key{OwnerID: "ada", Mode: ModeRefreshToken}, AuthParams{})
	require.Error(t, err)
	assert.True(t, oauth.IsKind(err, oauth.KindTokenRefreshFailed))
	assert.Nil(t, tokens.Peek("ada"))
	assert.Equal(t, 0, pool.Len())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.refreshFailures.WithLabelValues("refresh_token", "invalid_grant")))
}

func TestPool_ExecuteRetriesExpiredSessionOnce(t *testing.T) {
	grants := newFakeGrants()
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)
	pool := NewPool(PoolConfig{Grants: grants, Metrics: metrics})
	key := Key{OwnerID: "ada", Mode: ModePassword}

	var calls int
	var tokens []string
	err = pool.Execute(context.Background(), key, func(_ context.Context, h Handle) error {
		calls++
		tokens = append(tokens, h.AccessToken())
		if calls == 1 {
			return expiredSession()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, grants.count("password"))
	assert.NotEqual(t, tokens[0], tokens[1])
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.retries.WithLabelValues("password")))
}

func TestPool_RenewalSharesFlightWithPlainGet(t *testing.T) {
	grants := newFakeGrants()
	pool := NewPool(PoolConfig{Grants: grants})
	key := Key{OwnerID: "ada", Mode: ModePassword}

	stale, err := pool.Get(context.Background(), key, AuthParams{})
	require.NoError(t, err)
	pool.Invalidate(key)

	gate := make(chan struct{})
	grants.setGate(gate)

	var wg sync.WaitGroup
	var plain, renewed Handle
	var plainErr, renewErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		plain, plainErr = pool.Get(context.Background(), key, AuthParams{})
	}()
	require.Eventually(t, func() bool { return grants.count("password") == 2 }, time.Second, time.Millisecond)
	go func() {
		defer wg.Done()
		renewed, renewErr = pool.get(context.Background(), key, AuthParams{}, stale)
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	require.NoError(t, plainErr)
	require.NoError(t, renewErr)
	assert.Equal(t, 1, grants.peakInflight())
	assert.Equal(t, 2, grants.count("password"))
	assert.Equal(t, plain.AccessToken(), renewed.AccessToken())
	assert.NotEqual(t, stale.AccessToken(), renewed.AccessToken())
}

func TestPool_ConcurrentExpiredSessionsRenewOnce(t *testing.T) {
	grants := newFakeGrants()
	pool := NewPool(PoolConfig{Grants: grants})
	key := Key{OwnerID: "ada", Mode: ModePassword}

	first, err := pool.Get(context.Background(), key, AuthParams{})
	require.NoError(t, err)
	staleToken := first.AccessToken()

	gate := make(chan struct{})
	grants.setGate(gate)

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = pool.Execute(context.Background(), key, func(_ context.Context, h Handle) error {
				if h.AccessToken() == staleToken {
					return expiredSession()
				}
				return nil
			})
		}(i)
	}

	require.Eventually(t, func() bool { return grants.count("password") == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 2, grants.count("password"))
	assert.Equal(t, 1, grants.peakInflight())
}

func TestPool_CancelledCallerDoesNotFailSharedBuild(t *testing.T) {
	grants := newFakeGrants()
	gate := make(chan struct{})
	grants.setGate(gate)
	pool := NewPool(PoolConfig{Grants: grants})
	key := Key{OwnerID: "ada", Mode: ModePassword}

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := pool.Get(ctx, key, AuthParams{})
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return grants.count("password") == 1 }, time.Second, time.Millisecond)

	secondDone := make(chan struct{})
	var second Handle
	var secondErr error
	go func() {
		defer close(secondDone)
		second, secondErr = pool.Get(context.Background(), key, AuthParams{})
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(gate)
	<-secondDone
	require.NoError(t, secondErr)
	assert.NotNil(t, second)
	assert.Equal(t, 1, grants.count("password"))
	assert.Equal(t, 1, pool.Len())
}

func TestPool_ExecuteRetriesAtMostOnce(t *testing.T) {
	grants := newFakeGrants()
	pool := NewPool(PoolConfig{Grants: grants})

	var calls int
	err := pool.Execute(context.Background(), Key{OwnerID: "ada", Mode: ModePassword}, func(context.Context, Handle) error {
		calls++
		return expiredSession()
	})

	require.Error(t, err)
	assert.True(t, oauth.IsExpiredSession(err))
	assert.Equal(t, 2, calls)
}

func TestPool_ExecuteDoesNotRetryOtherFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"missing credentials", oauth.NewError(oauth.KindMissingCredentials, "no client id", nil)},
		{"authorization failed", oauth.NewError(oauth.KindOAuthAuthorizationFailed, "access_denied", nil)},
		{"validation", oauth.NewAPIError(http.StatusBadRequest, []byte(`[{"message":"bad field","errorCode":"INVALID_FIELD"}]`))},
		{"transient", oauth.NewAPIError(http.StatusServiceUnavailable, nil)},
		{"plain", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grants := newFakeGrants()
			pool := NewPool(PoolConfig{Grants: grants})

			var calls int
			err := pool.Execute(context.Background(), Key{OwnerID: "ada", Mode: ModePassword}, func(context.Context, Handle) error {
				calls++
				return tt.err
			})

			assert.Same(t, tt.err, err)
			assert.Equal(t, 1, calls)
			assert.Equal(t, 1, grants.count("password"))
		})
	}
}

func TestPool_ExecuteBuildFailureSkipsOperation(t *testing.T) {
	pool := NewPool(PoolConfig{})

	called := false
	err := pool.Execute(context.Background(), Key{OwnerID: "ada", Mode: ModeAccessToken}, func(context.Context, Handle) error {
		called = true
		return nil
	})

	require.Error(t, err)
	assert.True(t, oauth.IsKind(err, oauth.KindMissingCredentials))
	assert.False(t, called)
}

func TestPool_ExecuteRetriesDisabled(t *testing.T) {
	grants := newFakeGrants()
	pool := NewPool(PoolConfig{Grants: grants, MaxRetries: -1})

	var calls int
	err := pool.Execute(context.Background(), Key{OwnerID: "ada", Mode: ModePassword}, func(context.Context, Handle) error {
		calls++
		return expiredSession()
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteTyped(t *testing.T) {
	grants := newFakeGrants()
	pool := NewPool(PoolConfig{Grants: grants})

	var calls int
	got, err := Execute(context.Background(), pool, Key{OwnerID: "ada", Mode: ModePassword}, func(_ context.Context, h Handle) (string, error) {
		calls++
		if calls == 1 {
			return "", expiredSession()
		}
		return h.Endpoint(), nil
	})

	require.NoError(t, err)
	assert.Equal(t, "https://acme.my.salesforce.com", got)
}

func TestPool_ProbeRunsOncePerInterval(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	grants := newFakeGrants()
	probe := &fakeProbe{}
	pool := NewPool(PoolConfig{Grants: grants, Probe: probe, ProbeInterval: time.Minute, Clock: clock})
	key := Key{OwnerID: "ada", Mode: ModePassword}

	first, err := pool.Get(context.Background(), key, AuthParams{})
	require.NoError(t, err)
	_, err = pool.Get(context.Background(), key, AuthParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), probe.calls.Load())

	advance(2 * time.Minute)
	second, err := pool.Get(context.Background(), key, AuthParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), probe.calls.Load())
	assert.Same(t, first, second)

	_, err = pool.Get(context.Background(), key, AuthParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), probe.calls.Load())
	assert.Equal(t, 1, grants.count("password"))
}

func TestPool_FailedProbeRebuilds(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	grants := newFakeGrants()
	probe := &fakeProbe{}
	pool := NewPool(PoolConfig{Grants: grants, Probe: probe, ProbeInterval: time.Minute, Clock: clock})
	key := Key{OwnerID: "ada", Mode: ModePassword}

	first, err := pool.Get(context.Background(), key, AuthParams{})
	require.NoError(t, err)

	probe.err = expiredSession()
	now = now.Add(2 * time.Minute)

	second, err := pool.Get(context.Background(), key, AuthParams{})
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, 2, grants.count("password"))
}

func TestParseAuthMode(t *testing.T) {
	mode, err := ParseAuthMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeRefreshToken, mode)

	mode, err = ParseAuthMode(" JWT_Bearer ")
	require.NoError(t, err)
	assert.Equal(t, ModeJWTBearer, mode)

	_, err = ParseAuthMode("kerberos")
	assert.Error(t, err)
}

func TestNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	require.NoError(t, err)
	second, err := NewMetrics(reg)
	require.NoError(t, err)

	first.recordBuild(ModePassword, nil)
	second.recordBuild(ModePassword, nil)
	assert.Equal(t, float64(2), testutil.ToFloat64(first.builds.WithLabelValues("password", "ok")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.recordRetry(ModePassword) })
}
