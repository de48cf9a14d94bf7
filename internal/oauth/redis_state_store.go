package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultStateKeyPrefix = "salesforce-mcp:oauth:state:"

// RedisConfig configures the Redis connection used by RedisStateStore.
type RedisConfig struct {
	Address   string `yaml:"address"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"poolSize"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// RedisStateStore keeps pending authorizations in Redis so several server
// processes can share them. Entries expire through Redis TTLs and are taken
// with GETDEL, which keeps consumption atomic across processes.
type RedisStateStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStateStore connects to Redis and verifies the connection.
func NewRedisStateStore(ctx context.Context, config RedisConfig) (*RedisStateStore, error) {
	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStateStoreFromClient(rdb, config.KeyPrefix), nil
}

// NewRedisStateStoreFromClient wraps an existing client.
func NewRedisStateStoreFromClient(rdb *redis.Client, keyPrefix string) *RedisStateStore {
	if keyPrefix == "" {
		keyPrefix = defaultStateKeyPrefix
	}
	return &RedisStateStore{rdb: rdb, prefix: keyPrefix}
}

func (s *RedisStateStore) key(state string) string {
	return s.prefix + state
}

// Save stores the pending authorization with a TTL.
func (s *RedisStateStore) Save(ctx context.Context, pending PendingAuthorization, ttl time.Duration) error {
	data, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to marshal pending authorization: %w", err)
	}
	return s.rdb.Set(ctx, s.key(pending.State), data, ttl).Err()
}

// Take atomically reads and deletes the pending authorization.
func (s *RedisStateStore) Take(ctx context.Context, state string) (*PendingAuthorization, error) {
	data, err := s.rdb.GetDel(ctx, s.key(state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("failed to take oauth state: %w", err)
	}

	var pending PendingAuthorization
	if err := json.Unmarshal(data, &pending); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending authorization: %w", err)
	}
	return &pending, nil
}

// Sweep is a no-op: Redis expires entries on its own.
func (s *RedisStateStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Close closes the Redis client.
func (s *RedisStateStore) Close() error {
	return s.rdb.Close()
}
