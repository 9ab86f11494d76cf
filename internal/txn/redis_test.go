package txn

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khill1269/servalsheets-sub001/internal/testutil"
)

// redisRegistry runs a registry against an in-process Redis server.
func redisRegistry(t *testing.T) (*RedisRegistry, *testutil.FixedClock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	clk := testutil.NewFixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewRedisRegistry(client, "", clk), clk, mr
}

func TestRedisRegistry_CreateIsInsertIfAbsent(t *testing.T) {
	reg, clk, _ := redisRegistry(t)
	ctx := context.Background()
	tx := &Transaction{ID: "a", RequestFingerprint: "fp", State: StatePending, CreatedAt: clk.Now(), ExpiresAt: clk.Now().Add(time.Minute)}

	ok, err := reg.Create(ctx, tx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = reg.Create(ctx, tx)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := reg.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "fp", got.RequestFingerprint)
	assert.True(t, tx.ExpiresAt.Equal(got.ExpiresAt))
}

func TestRedisRegistry_UpdateMissing(t *testing.T) {
	reg, clk, _ := redisRegistry(t)
	err := reg.Update(context.Background(), &Transaction{ID: "nope", ExpiresAt: clk.Now().Add(time.Minute)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisRegistry_Coordinator(t *testing.T) {
	reg, clk, _ := redisRegistry(t)
	c := NewCoordinator(reg, clk, time.Minute)
	ctx := context.Background()

	ticket, d, err := c.Admit(ctx, "tx", "fp")
	require.NoError(t, err)
	require.Equal(t, Fresh, d.Outcome)
	require.NoError(t, ticket.Commit(ctx, []byte("report")))

	_, d, err = c.Admit(ctx, "tx", "fp")
	require.NoError(t, err)
	assert.Equal(t, Replay, d.Outcome)

	clk.Advance(2 * time.Minute)
	n, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := reg.Get(ctx, "tx")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisRegistry_KeyOutlivesExpiryByRetain(t *testing.T) {
	reg, clk, mr := redisRegistry(t)
	reg.Retain = 10 * time.Minute
	ctx := context.Background()
	tx := &Transaction{ID: "ttl", State: StatePending, CreatedAt: clk.Now(), ExpiresAt: clk.Now().Add(time.Minute)}

	ok, err := reg.Create(ctx, tx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 11*time.Minute, mr.TTL(DefaultRedisPrefix+"ttl"))

	// Past ExpiresAt the entry is still readable and reported as expired.
	mr.FastForward(2 * time.Minute)
	clk.Advance(2 * time.Minute)
	got, err := reg.Get(ctx, "ttl")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Expired(clk.Now()))

	mr.FastForward(10 * time.Minute)
	got, err = reg.Get(ctx, "ttl")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisRegistry_DeleteExpiredKeepsLive(t *testing.T) {
	reg, clk, mr := redisRegistry(t)
	ctx := context.Background()
	for id, ttl := range map[string]time.Duration{"old": time.Minute, "live": time.Hour} {
		ok, err := reg.Create(ctx, &Transaction{ID: id, CreatedAt: clk.Now(), ExpiresAt: clk.Now().Add(ttl)})
		require.NoError(t, err)
		require.True(t, ok)
	}

	clk.Advance(5 * time.Minute)
	n, err := reg.DeleteExpired(ctx, clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists(DefaultRedisPrefix+"old"))
	assert.True(t, mr.Exists(DefaultRedisPrefix+"live"))
}

func TestRedisRegistry_ServerErrorsAreWrapped(t *testing.T) {
	reg, _, mr := redisRegistry(t)
	mr.SetError("ERR server unavailable")

	_, err := reg.Get(context.Background(), "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis get a")
}
