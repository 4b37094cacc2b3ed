package cachesvc

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iradukundapaci/communiserver-sub002/core"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, core.TokenDenylist) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisDenylist(client)
}

func TestRedisDenylist(t *testing.T) {
	mr, dl := setupTestRedis(t)
	ctx := context.Background()

	revoked, err := dl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, dl.Revoke(ctx, "jti-1", time.Minute))
	revoked, err = dl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.True(t, mr.Exists(keyPrefix+"jti-1"))

	mr.FastForward(time.Minute + time.Second)
	revoked, err = dl.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisDenylist_expiredToken(t *testing.T) {
	mr, dl := setupTestRedis(t)
	require.NoError(t, dl.Revoke(context.Background(), "jti-2", -time.Second))
	assert.False(t, mr.Exists(keyPrefix+"jti-2"))
}

func TestRedisDenylist_unreachable(t *testing.T) {
	mr, dl := setupTestRedis(t)
	mr.Close()
	_, err := dl.IsRevoked(context.Background(), "jti-3")
	assert.Error(t, err)
}

func TestMemoryDenylist(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dl := NewMemoryDenylist().(*memoryDenylist)
	dl.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, dl.Revoke(ctx, "a", time.Minute))
	revoked, _ := dl.IsRevoked(ctx, "a")
	assert.True(t, revoked)

	now = now.Add(2 * time.Minute)
	revoked, _ = dl.IsRevoked(ctx, "a")
	assert.False(t, revoked)

	require.NoError(t, dl.Revoke(ctx, "b", time.Minute))
	assert.Len(t, dl.revoked, 1, "expired entries are dropped on revoke")
}
