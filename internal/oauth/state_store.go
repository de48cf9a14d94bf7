package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/the-answerai/mcp-server-salesforce/pkg/logging"
)

const (
	// DefaultStateTimeout bounds how long an issued authorization URL stays valid.
	DefaultStateTimeout = 10 * time.Minute

	// stateBytes is the number of random bytes in a state value (256 bits).
	stateBytes = 32
)

// StateStore persists pending authorizations. Take must be an atomic
// get-and-delete so a state can never be matched twice.
type StateStore interface {
	Save(ctx context.Context, pending PendingAuthorization, ttl time.Duration) error
	Take(ctx context.Context, state string) (*PendingAuthorization, error)
	Sweep(ctx context.Context, createdBefore time.Time) (int, error)
	Close() error
}

// MemoryStateStore is the default in-process StateStore.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]PendingAuthorization
}

// NewMemoryStateStore creates an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]PendingAuthorization)}
}

// Save records a pending authorization. The ttl is enforced by the tracker.
func (s *MemoryStateStore) Save(_ context.Context, pending PendingAuthorization, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[pending.State] = pending
	return nil
}

// Take removes and returns the pending authorization for state.
func (s *MemoryStateStore) Take(_ context.Context, state string) (*PendingAuthorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.states[state]
	if !ok {
		return nil, ErrStateNotFound
	}
	delete(s.states, state)
	return &pending, nil
}

// Sweep deletes entries created before the cutoff. Keys are copied out first
// so the map is never ranged over while entries are being deleted.
func (s *MemoryStateStore) Sweep(_ context.Context, createdBefore time.Time) (int, error) {
	s.mu.RLock()
	stale := make([]string, 0)
	for state, pending := range s.states {
		if pending.CreatedAt.Before(createdBefore) {
			stale = append(stale, state)
		}
	}
	s.mu.RUnlock()

	removed := 0
	s.mu.Lock()
	for _, state := range stale {
		// Re-check: the entry may have been consumed in between.
		if pending, ok := s.states[state]; ok && pending.CreatedAt.Before(createdBefore) {
			delete(s.states, state)
			removed++
		}
	}
	s.mu.Unlock()
	return removed, nil
}

// Len returns the number of pending authorizations.
func (s *MemoryStateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Close is a no-op for the memory store.
func (s *MemoryStateStore) Close() error {
	return nil
}

// StateTracker issues and consumes single-use anti-forgery state values.
type StateTracker struct {
	store   StateStore
	timeout time.Duration
	now     func() time.Time
}

// StateOption configures a StateTracker.
type StateOption func(*StateTracker)

// WithStateStore replaces the default in-memory backend.
func WithStateStore(store StateStore) StateOption {
	return func(t *StateTracker) {
		if store != nil {
			t.store = store
		}
	}
}

// WithStateTimeout overrides DefaultStateTimeout.
func WithStateTimeout(timeout time.Duration) StateOption {
	return func(t *StateTracker) {
		if timeout > 0 {
			t.timeout = timeout
		}
	}
}

// WithStateClock injects the time source.
func WithStateClock(now func() time.Time) StateOption {
	return func(t *StateTracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewStateTracker creates a tracker backed by an in-memory store unless
// WithStateStore is given.
func NewStateTracker(opts ...StateOption) *StateTracker {
	t := &StateTracker{
		store:   NewMemoryStateStore(),
		timeout: DefaultStateTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Timeout returns the configured state timeout.
func (t *StateTracker) Timeout() time.Duration {
	return t.timeout
}

// Issue generates a new state value bound to ownerHint.
func (t *StateTracker) Issue(ctx context.Context, ownerHint string) (string, error) {
	return t.IssueWithVerifier(ctx, ownerHint, "")
}

// IssueWithVerifier is Issue for flows that carry a PKCE code verifier.
func (t *StateTracker) IssueWithVerifier(ctx context.Context, ownerHint, codeVerifier string) (string, error) {
	t.SweepExpired(ctx)

	state, err := generateState()
	if err != nil {
		return "", err
	}

	pending := PendingAuthorization{
		State:        state,
		OwnerID:      ownerHint,
		CreatedAt:    t.now(),
		CodeVerifier: codeVerifier,
	}
	if err := t.store.Save(ctx, pending, t.timeout); err != nil {
		return "", fmt.Errorf("failed to save oauth state: %w", err)
	}

	logging.Debug("OAuth", "Issued state for owner=%s", logging.TruncateID(ownerHint))
	return state, nil
}

// Consume atomically looks up and deletes state. It returns ErrStateNotFound
// for unknown or already consumed values and ErrStateExpired for values older
// than the timeout.
func (t *StateTracker) Consume(ctx context.Context, state string) (*PendingAuthorization, error) {
	if state == "" {
		return nil, ErrStateNotFound
	}

	pending, err := t.store.Take(ctx, state)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			logging.Warn("OAuth", "State not found in store")
		}
		return nil, err
	}

	if age := t.now().Sub(pending.CreatedAt); age > t.timeout {
		logging.Warn("OAuth", "State expired: owner=%s age=%v", logging.TruncateID(pending.OwnerID), age)
		return nil, ErrStateExpired
	}
	return pending, nil
}

// SweepExpired removes pending authorizations older than the timeout and
// returns how many were removed.
func (t *StateTracker) SweepExpired(ctx context.Context) int {
	removed, err := t.store.Sweep(ctx, t.now().Add(-t.timeout))
	if err != nil {
		logging.Warn("OAuth", "Failed to sweep expired states: %v", err)
		return 0
	}
	if removed > 0 {
		logging.Debug("OAuth", "Cleaned up %d expired states", removed)
	}
	return removed
}

// Close releases the backend.
func (t *StateTracker) Close() error {
	return t.store.Close()
}

func generateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
