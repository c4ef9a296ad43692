package store

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/iptvdeck/internal/cache"
	"github.com/voyagen/iptvdeck/internal/models"
)

// countingStore counts reads that reach the inner store.
type countingStore struct {
	*Memory
	playlistReads atomic.Int32
	channelReads  atomic.Int32
	listReads     atomic.Int32
}

func (c *countingStore) GetPlaylistByID(ctx context.Context, id int64) (*models.Playlist, error) {
	c.playlistReads.Add(1)
	return c.Memory.GetPlaylistByID(ctx, id)
}

func (c *countingStore) GetChannelByID(ctx context.Context, id int64) (*models.Channel, error) {
	c.channelReads.Add(1)
	return c.Memory.GetChannelByID(ctx, id)
}

func (c *countingStore) ListChannels(ctx context.Context, f ChannelFilter) ([]models.Channel, int, error) {
	c.listReads.Add(1)
	return c.Memory.ListChannels(ctx, f)
}

func newCached(t *testing.T) (*miniredis.Miniredis, *countingStore, *CachedStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	inner := &countingStore{Memory: NewMemory()}
	return mr, inner, NewCachedStore(inner, cache.Wrap(client))
}

func TestCachedReadsHitRedis(t *testing.T) {
	ctx := t.Context()
	_, inner, cs := newCached(t)
	id, err := cs.CreatePlaylist(ctx, &models.Playlist{Name: "P", DeviceKey: "d"}, sampleChannels())
	require.NoError(t, err)

	for range 3 {
		pl, err := cs.GetPlaylistByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 4, pl.ChannelCount)
	}
	assert.EqualValues(t, 1, inner.playlistReads.Load())

	for range 2 {
		chans, total, err := cs.ListChannels(ctx, ChannelFilter{PlaylistID: id, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, chans, 2)
		assert.Equal(t, 4, total)
	}
	assert.EqualValues(t, 1, inner.listReads.Load())
}

func TestCachedReplaceInvalidates(t *testing.T) {
	ctx := t.Context()
	_, inner, cs := newCached(t)
	id, err := cs.CreatePlaylist(ctx, &models.Playlist{Name: "P", DeviceKey: "d"}, sampleChannels())
	require.NoError(t, err)

	chans, _, err := cs.ListChannels(ctx, ChannelFilter{PlaylistID: id})
	require.NoError(t, err)
	_, err = cs.GetChannelByID(ctx, chans[0].ID)
	require.NoError(t, err)

	require.NoError(t, cs.ReplacePlaylistChannels(ctx, id, sampleChannels()[:1], nil, inner.now()))

	chans, total, err := cs.ListChannels(ctx, ChannelFilter{PlaylistID: id})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.EqualValues(t, 2, inner.listReads.Load())

	_, err = cs.GetChannelByID(ctx, chans[0].ID-4)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 2, inner.channelReads.Load())
}

func TestCachedDeleteInvalidatesLists(t *testing.T) {
	ctx := t.Context()
	_, _, cs := newCached(t)
	id, err := cs.CreatePlaylist(ctx, &models.Playlist{Name: "P", DeviceKey: "d", IsActive: true}, nil)
	require.NoError(t, err)

	lists, err := cs.ListPlaylists(ctx, PlaylistFilter{DeviceKey: "d"})
	require.NoError(t, err)
	require.Len(t, lists, 1)

	require.NoError(t, cs.DeletePlaylist(ctx, id))
	lists, err = cs.ListPlaylists(ctx, PlaylistFilter{DeviceKey: "d"})
	require.NoError(t, err)
	assert.Empty(t, lists)

	_, err = cs.GetPlaylistByID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedDegradesWithoutRedis(t *testing.T) {
	ctx := t.Context()
	mr, inner, cs := newCached(t)
	id, err := cs.CreatePlaylist(ctx, &models.Playlist{Name: "P", DeviceKey: "d"}, nil)
	require.NoError(t, err)

	mr.Close()
	pl, err := cs.GetPlaylistByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "P", pl.Name)
	assert.EqualValues(t, 1, inner.playlistReads.Load())
}
