package oauth

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/the-answerai/mcp-server-salesforce/pkg/logging"
)

// DefaultRefreshBuffer is subtracted from a record's expiry so tokens are
// renewed before the provider rejects them.
const DefaultRefreshBuffer = 5 * time.Minute

// TokenStore holds the current token record per owner.
//
// Expiry is enforced lazily: Get never returns a record past its buffered
// expiry. Eviction timers are an optional extra and never the only check, so
// a restart does not depend on them.
type TokenStore struct {
	mu      sync.RWMutex
	records map[string]TokenRecord
	timers  map[string]*time.Timer

	buffer         time.Duration
	backend        TokenBackend
	evictionTimers bool
	now            func() time.Time
}

// TokenStoreOption configures a TokenStore.
type TokenStoreOption func(*TokenStore)

// WithRefreshBuffer overrides DefaultRefreshBuffer.
func WithRefreshBuffer(buffer time.Duration) TokenStoreOption {
	return func(s *TokenStore) {
		if buffer >= 0 {
			s.buffer = buffer
		}
	}
}

// WithBackend enables durable storage. Existing records are loaded on construction.
func WithBackend(backend TokenBackend) TokenStoreOption {
	return func(s *TokenStore) {
		s.backend = backend
	}
}

// WithEvictionTimers arms a timer per record that evicts it at its buffered expiry.
func WithEvictionTimers(enabled bool) TokenStoreOption {
	return func(s *TokenStore) {
		s.evictionTimers = enabled
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) TokenStoreOption {
	return func(s *TokenStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenStore creates a token store and loads any persisted records.
func NewTokenStore(opts ...TokenStoreOption) (*TokenStore, error) {
	s := &TokenStore{
		records: make(map[string]TokenRecord),
		timers:  make(map[string]*time.Timer),
		buffer:  DefaultRefreshBuffer,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.backend != nil {
		loaded, err := s.backend.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load token records: %w", err)
		}
		for owner, record := range loaded {
			record.OwnerID = owner
			s.records[owner] = record
			s.armTimerLocked(owner, record)
		}
		logging.Info("TokenStore", "Loaded %d token records", len(loaded))
	}

	return s, nil
}

// RefreshBuffer returns the configured buffer.
func (s *TokenStore) RefreshBuffer() time.Duration {
	return s.buffer
}

// IsExpired reports whether now >= ExpiresAt - buffer. A record without an
// expiry is never considered expired.
func (s *TokenStore) IsExpired(record TokenRecord) bool {
	if record.ExpiresAt.IsZero() {
		return false
	}
	return !s.now().Before(record.ExpiresAt.Add(-s.buffer))
}

// Put stores a copy of record under ownerID, replacing any previous record,
// and flushes it to the backend.
// SECURITY: token values are never logged.
func (s *TokenStore) Put(ownerID string, record TokenRecord) error {
	if ownerID == "" {
		return errors.New("owner id is required")
	}
	if record.AccessToken == "" {
		return errors.New("access token is required")
	}
	record.OwnerID = ownerID
	if record.TokenType == "" {
		record.TokenType = DefaultTokenType
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, hadPrevious := s.records[ownerID]
	s.records[ownerID] = record

	if err := s.persistLocked(); err != nil {
		if hadPrevious {
			s.records[ownerID] = previous
		} else {
			delete(s.records, ownerID)
		}
		logging.Audit("OAuth token storage failed",
			"event", "token_store_failed",
			"owner", logging.TruncateID(ownerID),
			"error", err.Error(),
		)
		return fmt.Errorf("failed to persist token: %w", err)
	}
	s.armTimerLocked(ownerID, record)

	logging.Audit("OAuth token stored",
		"event", "token_stored",
		"owner", logging.TruncateID(ownerID),
		"instance_url", record.InstanceURL,
		"expires_at", formatExpiry(record.ExpiresAt),
		"has_refresh_token", record.CanRefresh(),
	)
	return nil
}

// Get returns a copy of the owner's record, or nil when absent or past its
// buffered expiry. Expired records stay in the store so Peek can still find
// their refresh token.
func (s *TokenStore) Get(ownerID string) *TokenRecord {
	s.mu.RLock()
	record, ok := s.records[ownerID]
	s.mu.RUnlock()

	if !ok || s.IsExpired(record) {
		return nil
	}
	return &record
}

// Peek returns a copy of the owner's record regardless of expiry.
func (s *TokenStore) Peek(ownerID string) *TokenRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[ownerID]
	if !ok {
		return nil
	}
	return &record
}

// Clear removes the owner's record.
func (s *TokenStore) Clear(ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, ok := s.records[ownerID]
	if !ok {
		return nil
	}
	s.removeLocked(ownerID)

	if err := s.persistLocked(); err != nil {
		s.records[ownerID] = previous
		s.armTimerLocked(ownerID, previous)
		return fmt.Errorf("failed to persist token removal: %w", err)
	}

	logging.Audit("OAuth token deleted",
		"event", "token_deleted",
		"owner", logging.TruncateID(ownerID),
	)
	return nil
}

// ListOwners returns the owners with a stored record, sorted.
func (s *TokenStore) ListOwners() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owners := make([]string, 0, len(s.records))
	for owner := range s.records {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

// TokenStatus summarizes an owner's stored credential without exposing it.
type TokenStatus struct {
	OwnerID     string    `json:"owner_id"`
	Present     bool      `json:"present"`
	Expired     bool      `json:"expired"`
	CanRefresh  bool      `json:"can_refresh"`
	InstanceURL string    `json:"instance_url,omitempty"`
	Scope       string    `json:"scope,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
}

// Usable reports whether a request for the owner can succeed without a new
// authorization flow.
func (s TokenStatus) Usable() bool {
	return s.Present && (!s.Expired || s.CanRefresh)
}

// Status returns the owner's token status.
func (s *TokenStore) Status(ownerID string) TokenStatus {
	status := TokenStatus{OwnerID: ownerID}
	record := s.Peek(ownerID)
	if record == nil {
		return status
	}
	status.Present = true
	status.Expired = s.IsExpired(*record)
	status.CanRefresh = record.CanRefresh()
	status.InstanceURL = record.InstanceURL
	status.Scope = record.Scope
	status.ExpiresAt = record.ExpiresAt
	return status
}

// SweepExpired removes expired records that cannot be refreshed and returns
// how many were removed.
func (s *TokenStore) SweepExpired() int {
	s.mu.RLock()
	stale := make([]string, 0)
	for owner, record := range s.records {
		if !record.CanRefresh() && s.IsExpired(record) {
			stale = append(stale, owner)
		}
	}
	s.mu.RUnlock()

	if len(stale) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, owner := range stale {
		if record, ok := s.records[owner]; ok && !record.CanRefresh() && s.IsExpired(record) {
			s.removeLocked(owner)
			removed++
		}
	}
	if removed > 0 {
		if err := s.persistLocked(); err != nil {
			logging.Warn("TokenStore", "Failed to persist sweep: %v", err)
		}
		logging.Debug("TokenStore", "Swept %d expired token records", removed)
	}
	return removed
}

// Close stops any eviction timers.
func (s *TokenStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for owner, timer := range s.timers {
		timer.Stop()
		delete(s.timers, owner)
	}
}

func (s *TokenStore) removeLocked(ownerID string) {
	delete(s.records, ownerID)
	if timer, ok := s.timers[ownerID]; ok {
		timer.Stop()
		delete(s.timers, ownerID)
	}
}

func (s *TokenStore) persistLocked() error {
	if s.backend == nil {
		return nil
	}
	snapshot := make(map[string]TokenRecord, len(s.records))
	for owner, record := range s.records {
		snapshot[owner] = record
	}
	return s.backend.Save(snapshot)
}

// armTimerLocked schedules eviction of record at its buffered expiry. The
// timer only evicts if the same record is still current when it fires.
func (s *TokenStore) armTimerLocked(ownerID string, record TokenRecord) {
	if !s.evictionTimers {
		return
	}
	if timer, ok := s.timers[ownerID]; ok {
		timer.Stop()
		delete(s.timers, ownerID)
	}
	if record.ExpiresAt.IsZero() {
		return
	}

	delay := record.ExpiresAt.Add(-s.buffer).Sub(s.now())
	if delay < 0 {
		delay = 0
	}
	accessToken := record.AccessToken
	s.timers[ownerID] = time.AfterFunc(delay, func() {
		s.evictIfCurrent(ownerID, accessToken)
	})
}

func (s *TokenStore) evictIfCurrent(ownerID, accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.records[ownerID]
	if !ok || current.AccessToken != accessToken {
		return
	}
	s.removeLocked(ownerID)
	if err := s.persistLocked(); err != nil {
		logging.Warn("TokenStore", "Failed to persist timed eviction: %v", err)
	}
	logging.Debug("TokenStore", "Evicted expiring token for owner=%s", logging.TruncateID(ownerID))
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "none"
	}
	return t.Format(time.RFC3339)
}
