package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, Wrap(client)
}

type entry struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestSetGetRoundTrip(t *testing.T) {
	mr, r := setupMiniRedis(t)
	ctx := t.Context()

	require.NoError(t, Set(ctx, r, "playlist:1", entry{Name: "a", N: 2}, time.Minute))
	assert.True(t, mr.Exists(KeyPrefix+"playlist:1"))

	got, err := Get[entry](ctx, r, "playlist:1")
	require.NoError(t, err)
	assert.Equal(t, entry{Name: "a", N: 2}, got)

	mr.FastForward(2 * time.Minute)
	_, err = Get[entry](ctx, r, "playlist:1")
	assert.True(t, IsMiss(err))
}

func TestDelPattern(t *testing.T) {
	mr, r := setupMiniRedis(t)
	ctx := t.Context()
	for _, k := range []string{"channels:a", "channels:b", "channel:1", "playlists:x"} {
		require.NoError(t, Set(ctx, r, k, 1, time.Minute))
	}

	require.NoError(t, DelPattern(ctx, r, "channels:*"))
	assert.False(t, mr.Exists(KeyPrefix+"channels:a"))
	assert.False(t, mr.Exists(KeyPrefix+"channels:b"))
	assert.True(t, mr.Exists(KeyPrefix+"channel:1"))

	require.NoError(t, Del(ctx, r, "channel:1", "playlists:x"))
	assert.Empty(t, mr.Keys())
}

func TestTryLock(t *testing.T) {
	mr, r := setupMiniRedis(t)
	ctx := t.Context()
	key := PlaylistLockKey("dev-1", " My List ")
	assert.Equal(t, "lock:playlist:dev-1:my list", key)

	release, err := TryLock(ctx, r, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, IsLocked(ctx, r, key))

	_, err = TryLock(ctx, r, key, time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	release()
	assert.False(t, IsLocked(ctx, r, key))

	// An expired lock taken over by someone else survives the stale release.
	release, err = TryLock(ctx, r, key, time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)
	_, err = TryLock(ctx, r, key, time.Minute)
	require.NoError(t, err)
	release()
	assert.True(t, IsLocked(ctx, r, key))
}

func TestQueueFIFO(t *testing.T) {
	_, r := setupMiniRedis(t)
	ctx := t.Context()

	require.NoError(t, Enqueue(ctx, r, RefreshQueue, RefreshJob{PlaylistID: 1}))
	require.NoError(t, Enqueue(ctx, r, RefreshQueue, RefreshJob{PlaylistID: 2}))
	n, err := QueueLen(ctx, r, RefreshQueue)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	job, err := Dequeue(ctx, r, RefreshQueue, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.EqualValues(t, 1, job.PlaylistID)

	job, err = Dequeue(ctx, r, RefreshQueue, time.Second)
	require.NoError(t, err)
	assert.EqualValues(t, 2, job.PlaylistID)
}

func TestDequeueTimeout(t *testing.T) {
	_, r := setupMiniRedis(t)
	job, err := Dequeue(t.Context(), r, RefreshQueue, time.Second)
	assert.NoError(t, err)
	assert.Nil(t, job)
}
