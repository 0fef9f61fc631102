package redisx

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-group-buying/internal/teams"
)

// butuh Redis beneran: REDIS_TEST_ADDR=localhost:6379 go test ./internal/redisx
func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := New(addr)
	require.NoError(t, rdb.Ping(context.Background()).Err())
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestIdempotencyLifecycle(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	idem := Idempotency{RDB: rdb}
	cust, key := "cust-"+uuid.NewString(), uuid.NewString()

	_, fresh, err := idem.Begin(ctx, cust, key)
	require.NoError(t, err)
	assert.True(t, fresh)

	_, _, err = idem.Begin(ctx, cust, key)
	assert.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, idem.Finish(ctx, cust, key, "team-1"))
	teamID, fresh, err := idem.Begin(ctx, cust, key)
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, "team-1", teamID)
}

func TestIdempotencyAbortAllowsRetry(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	idem := Idempotency{RDB: rdb}
	cust, key := "cust-"+uuid.NewString(), uuid.NewString()

	_, _, err := idem.Begin(ctx, cust, key)
	require.NoError(t, err)
	require.NoError(t, idem.Abort(ctx, cust, key))

	_, fresh, err := idem.Begin(ctx, cust, key)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestStatusCacheKeepsHighestVersion(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	cache := StatusCache{RDB: rdb}
	id := uuid.NewString()
	now := time.Now().UTC()

	// the Active snapshot was committed first but published last, so it
	// carries the later UpdatedAt
	completed := teams.Snapshot{TeamID: id, Status: teams.TeamCompleted, MemberCount: 3,
		TotalCommitted: decimal.NewFromInt(50), UpdatedAt: now, Version: 1<<32 | 3}
	active := teams.Snapshot{TeamID: id, Status: teams.TeamActive, MemberCount: 2,
		TotalCommitted: decimal.NewFromInt(45), UpdatedAt: now.Add(time.Second), Version: 2}

	require.NoError(t, cache.Put(ctx, completed))
	require.NoError(t, cache.Put(ctx, active))

	got, ok, err := cache.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, teams.TeamCompleted, got.Status)
	assert.True(t, got.TotalCommitted.Equal(decimal.NewFromInt(50)))

	ttl, err := rdb.PTTL(ctx, fmt.Sprintf(KeyTeamStatus, id)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, cache.Delete(ctx, id))
	_, ok, err = cache.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	// after eviction any version is accepted again
	require.NoError(t, cache.Put(ctx, active))
	got, ok, err = cache.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, teams.TeamActive, got.Status)
}

func TestDeduper(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	d := Deduper{RDB: rdb, Service: "test"}
	id := uuid.NewString()

	first, err := d.First(ctx, id)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := d.First(ctx, id)
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, d.Forget(ctx, id))
	retry, err := d.First(ctx, id)
	require.NoError(t, err)
	assert.True(t, retry)
}

func TestTokenBlacklist(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()
	bl := TokenBlacklist{RDB: rdb}
	jti := uuid.NewString()

	revoked, err := bl.Revoked(ctx, jti)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, bl.Revoke(ctx, jti, time.Now().Add(time.Minute)))
	revoked, err = bl.Revoked(ctx, jti)
	require.NoError(t, err)
	assert.True(t, revoked)

	past := uuid.NewString()
	require.NoError(t, bl.Revoke(ctx, past, time.Now().Add(-time.Minute)))
	revoked, err = bl.Revoked(ctx, past)
	require.NoError(t, err)
	assert.False(t, revoked)
}
