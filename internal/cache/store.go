package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// TTL states reported by Remaining, mirroring the Redis TTL command.
const (
	// TTLKeyMissing means the key does not exist (or has expired).
	TTLKeyMissing int64 = -2
	// TTLNoExpiry means the key exists without an expiration set.
	TTLNoExpiry int64 = -1
)

// Store wraps the Redis client with the availability-first failure policy used
// across the oral exam flow: an unreachable cache never blocks a legitimate
// user. Lock acquisition failures count as acquired, TTL read failures count
// as still alive, and rate-limit marker failures count as allowed.
type Store struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewStore builds a Store around the given Redis client.
func NewStore(client *redis.Client, logger zerolog.Logger) *Store {
	return &Store{
		client: client,
		logger: logger.With().Str("component", "cache_store").Logger(),
	}
}

// AcquireLock attempts an atomic set-if-absent with the given TTL. Returns
// true when the lock was obtained. Infra errors default to acquired so a
// failing lock service cannot livelock generation.
func (s *Store) AcquireLock(ctx context.Context, key string, ttl time.Duration) bool {
	acquired, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("lock acquire failed, assuming acquired")
		return true
	}

	return acquired
}

// ReleaseLock deletes the lock key. Best-effort; the TTL reclaims stuck locks.
func (s *Store) ReleaseLock(ctx context.Context, key string) {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("lock release failed")
	}
}

// Locked reports whether the lock key currently exists. Infra errors report
// unlocked so pollers fall through to the durable store instead of spinning.
func (s *Store) Locked(ctx context.Context, key string) bool {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("lock probe failed, assuming released")
		return false
	}

	return n > 0
}

// Get returns the cached value and whether it was present. Any error reads as
// a miss.
func (s *Store) Get(ctx context.Context, key string) (string, bool) {
	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return "", false
	}

	return value, true
}

// Set stores a value with the given TTL. Failures are logged and swallowed.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

// Del removes a key. Failures are logged and swallowed.
func (s *Store) Del(ctx context.Context, key string) {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache delete failed")
	}
}

// Remaining returns the key's remaining lifetime in seconds, TTLKeyMissing, or
// TTLNoExpiry. An infra error reads as TTLNoExpiry: indistinguishable from a
// misconfigured key, both are treated as still alive by callers.
func (s *Store) Remaining(ctx context.Context, key string) int64 {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("ttl read failed, assuming still valid")
		return TTLNoExpiry
	}

	// go-redis maps the integer replies -1 and -2 straight to durations.
	if ttl == -1 {
		return TTLNoExpiry
	}
	if ttl < 0 {
		return TTLKeyMissing
	}

	return int64(ttl / time.Second)
}

// MarkOnce atomically sets a marker key with the given TTL and reports whether
// the marker was newly set. An existing marker reports false. Infra errors
// report true: the cache being down must never deny a legitimate user.
func (s *Store) MarkOnce(ctx context.Context, key string, ttl time.Duration) bool {
	set, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("marker write failed, allowing")
		return true
	}

	return set
}
