package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/iptvdeck/internal/models"
)

func ptr[T any](v T) *T { return &v }

func sampleChannels() []models.ParsedChannel {
	return []models.ParsedChannel{
		{Name: "News One", GroupTitle: ptr("News"), StreamURL: "http://x.test/1.m3u8", Type: models.ContentLive},
		{Name: "News Two", GroupTitle: ptr("News"), StreamURL: "http://x.test/2.m3u8", Type: models.ContentLive},
		{Name: "Heat", GroupTitle: ptr("Movies"), StreamURL: "http://x.test/heat.mp4", Type: models.ContentMovie},
		{Name: "Lost S01E01", GroupTitle: ptr("Series"), StreamURL: "http://x.test/lost.mkv", Type: models.ContentSeries},
	}
}

func TestMemoryPlaylistLifecycle(t *testing.T) {
	ctx := t.Context()
	m := NewMemory()

	id, err := m.CreatePlaylist(ctx, &models.Playlist{
		Name: "Home", DeviceKey: "dev", IsActive: true, Content: ptr("#EXTM3U"),
	}, sampleChannels())
	require.NoError(t, err)

	pl, err := m.GetPlaylistByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 4, pl.ChannelCount)
	assert.Nil(t, pl.Content)
	assert.NotNil(t, pl.CreatedAt)
	assert.Equal(t, []string{}, pl.ParseErrors)

	content, err := m.GetPlaylistContent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "#EXTM3U", *content)

	parsedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, m.ReplacePlaylistChannels(ctx, id, sampleChannels()[:1], []string{"warn"}, parsedAt))
	pl, err = m.GetPlaylistByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, pl.ChannelCount)
	assert.Equal(t, []string{"warn"}, pl.ParseErrors)
	assert.Equal(t, parsedAt, *pl.LastParsed)

	require.NoError(t, m.DeletePlaylist(ctx, id))
	_, err = m.GetPlaylistByID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.DeletePlaylist(ctx, id), ErrNotFound)
	n, err := m.CountChannelsByPlaylist(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryListPlaylists(t *testing.T) {
	ctx := t.Context()
	m := NewMemory()
	a, _ := m.CreatePlaylist(ctx, &models.Playlist{Name: "A", DeviceKey: "one", IsActive: true}, nil)
	b, _ := m.CreatePlaylist(ctx, &models.Playlist{Name: "B", DeviceKey: "one", IsActive: false}, nil)
	c, _ := m.CreatePlaylist(ctx, &models.Playlist{Name: "C", DeviceKey: "two", IsActive: true}, nil)

	all, err := m.ListPlaylists(ctx, PlaylistFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{c, b, a}, []int64{all[0].ID, all[1].ID, all[2].ID})

	one, err := m.ListPlaylists(ctx, PlaylistFilter{DeviceKey: "one", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, a, one[0].ID)
}

func TestMemoryListChannelsFilters(t *testing.T) {
	ctx := t.Context()
	m := NewMemory()
	id, err := m.CreatePlaylist(ctx, &models.Playlist{Name: "P", DeviceKey: "d"}, sampleChannels())
	require.NoError(t, err)

	live := models.ContentLive
	tests := []struct {
		name      string
		filter    ChannelFilter
		wantNames []string
		wantTotal int
	}{
		{"all", ChannelFilter{PlaylistID: id}, []string{"News One", "News Two", "Heat", "Lost S01E01"}, 4},
		{"type", ChannelFilter{PlaylistID: id, Type: &live}, []string{"News One", "News Two"}, 2},
		{"group", ChannelFilter{PlaylistID: id, Group: "Movies"}, []string{"Heat"}, 1},
		{"search", ChannelFilter{PlaylistID: id, Search: "NEWS t"}, []string{"News Two"}, 1},
		{"page", ChannelFilter{PlaylistID: id, Limit: 2, Offset: 1}, []string{"News Two", "Heat"}, 4},
		{"past end", ChannelFilter{PlaylistID: id, Offset: 10}, []string{}, 4},
		{"other playlist", ChannelFilter{PlaylistID: id + 1}, []string{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chans, total, err := m.ListChannels(ctx, tt.filter)
			require.NoError(t, err)
			names := []string{}
			for _, ch := range chans {
				names = append(names, ch.Name)
			}
			assert.Equal(t, tt.wantNames, names)
			assert.Equal(t, tt.wantTotal, total)
		})
	}
}

func TestMemoryGetChannel(t *testing.T) {
	ctx := t.Context()
	m := NewMemory()
	id, _ := m.CreatePlaylist(ctx, &models.Playlist{Name: "P", DeviceKey: "d"}, sampleChannels())
	chans, _, _ := m.ListChannels(ctx, ChannelFilter{PlaylistID: id})

	ch, err := m.GetChannelByID(ctx, chans[2].ID)
	require.NoError(t, err)
	assert.Equal(t, "Heat", ch.Name)
	assert.Equal(t, id, ch.PlaylistID)
	assert.Equal(t, "Movies", *ch.Group)

	_, err = m.GetChannelByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChannelFilterNormalize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, ChannelFilter{}.Normalize().Limit)
	assert.Equal(t, MaxPageSize, ChannelFilter{Limit: 5000}.Normalize().Limit)
	assert.Zero(t, ChannelFilter{Offset: -4}.Normalize().Offset)
}
