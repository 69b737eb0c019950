package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	return NewStore(client, zerolog.Nop()), mini
}

func TestStoreLockIsExclusive(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	key := GenerationLockKey(7)
	require.True(t, store.AcquireLock(ctx, key, 30*time.Second))
	require.False(t, store.AcquireLock(ctx, key, 30*time.Second))
	require.True(t, store.Locked(ctx, key))

	store.ReleaseLock(ctx, key)
	require.False(t, store.Locked(ctx, key))
	require.True(t, store.AcquireLock(ctx, key, 30*time.Second))
}

func TestStoreLockExpires(t *testing.T) {
	store, mini := newTestStore(t)
	ctx := context.Background()

	key := GenerationLockKey(7)
	require.True(t, store.AcquireLock(ctx, key, 30*time.Second))

	mini.FastForward(31 * time.Second)

	require.True(t, store.AcquireLock(ctx, key, 30*time.Second))
}

func TestStoreRemaining(t *testing.T) {
	store, mini := newTestStore(t)
	ctx := context.Background()

	key := SessionLivenessKey("abc")
	require.Equal(t, TTLKeyMissing, store.Remaining(ctx, key))

	store.Set(ctx, key, "1", 900*time.Second)
	remaining := store.Remaining(ctx, key)
	require.Greater(t, remaining, int64(800))

	mini.FastForward(901 * time.Second)
	require.Equal(t, TTLKeyMissing, store.Remaining(ctx, key))

	// A key without expiry reads as alive.
	mini.Set("forever", "1")
	require.Equal(t, TTLNoExpiry, store.Remaining(ctx, "forever"))
}

func TestStoreMarkOnce(t *testing.T) {
	store, mini := newTestStore(t)
	ctx := context.Background()

	key := DailyLimitKey(42)
	require.True(t, store.MarkOnce(ctx, key, time.Hour))
	require.False(t, store.MarkOnce(ctx, key, time.Hour))

	mini.FastForward(2 * time.Hour)
	require.True(t, store.MarkOnce(ctx, key, time.Hour))
}

func TestStoreDegradesWhenRedisDown(t *testing.T) {
	store, mini := newTestStore(t)
	ctx := context.Background()

	mini.Close()

	// Infra failure must never block a legitimate caller.
	require.True(t, store.AcquireLock(ctx, GenerationLockKey(1), time.Second))
	require.True(t, store.MarkOnce(ctx, DailyLimitKey(1), time.Hour))
	require.False(t, store.Locked(ctx, GenerationLockKey(1)))
	require.Equal(t, TTLNoExpiry, store.Remaining(ctx, SessionLivenessKey("x")))

	_, found := store.Get(ctx, ReferenceAnswerKey(1))
	require.False(t, found)
}
