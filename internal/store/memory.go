package store

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/voyagen/iptvdeck/internal/models"
)

// Memory is an in-process Store used by `serve --memory` and tests.
type Memory struct {
	mu        sync.RWMutex
	nextPL    int64
	nextCh    int64
	playlists map[int64]*models.Playlist
	channels  map[int64][]models.Channel // by playlist, insertion order
	now       func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		playlists: make(map[int64]*models.Playlist),
		channels:  make(map[int64][]models.Channel),
		now:       time.Now,
	}
}

func (m *Memory) materialize(playlistID int64, parsed []models.ParsedChannel) []models.Channel {
	out := make([]models.Channel, 0, len(parsed))
	for _, p := range parsed {
		m.nextCh++
		ch := models.ChannelFromParsed(playlistID, p)
		ch.ID = m.nextCh
		out = append(out, ch)
	}
	return out
}

func (m *Memory) CreatePlaylist(_ context.Context, p *models.Playlist, channels []models.ParsedChannel) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPL++
	cp := *p
	cp.ID = m.nextPL
	created := m.now()
	cp.CreatedAt = &created
	cp.ParseErrors = slices.Clone(nonNil(p.ParseErrors))
	m.playlists[cp.ID] = &cp
	m.channels[cp.ID] = m.materialize(cp.ID, channels)
	return cp.ID, nil
}

func (m *Memory) ReplacePlaylistChannels(_ context.Context, playlistID int64, channels []models.ParsedChannel, parseErrors []string, parsedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.playlists[playlistID]
	if !ok {
		return ErrNotFound
	}
	t := parsedAt
	p.LastParsed = &t
	p.ParseErrors = slices.Clone(nonNil(parseErrors))
	m.channels[playlistID] = m.materialize(playlistID, channels)
	return nil
}

func (m *Memory) snapshot(p *models.Playlist) models.Playlist {
	cp := *p
	cp.ParseErrors = slices.Clone(p.ParseErrors)
	cp.ChannelCount = len(m.channels[p.ID])
	cp.Content = nil
	return cp
}

func (m *Memory) GetPlaylistByID(_ context.Context, playlistID int64) (*models.Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.playlists[playlistID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := m.snapshot(p)
	return &cp, nil
}

func (m *Memory) GetPlaylistContent(_ context.Context, playlistID int64) (*string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.playlists[playlistID]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Content == nil {
		return nil, nil
	}
	content := *p.Content
	return &content, nil
}

func (m *Memory) ListPlaylists(_ context.Context, filter PlaylistFilter) ([]models.Playlist, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.Playlist{}
	for _, p := range m.playlists {
		if filter.DeviceKey != "" && p.DeviceKey != filter.DeviceKey {
			continue
		}
		if filter.ActiveOnly && !p.IsActive {
			continue
		}
		out = append(out, m.snapshot(p))
	}
	// Newest first; ids grow with creation time.
	slices.SortFunc(out, func(a, b models.Playlist) int { return cmp.Compare(b.ID, a.ID) })
	return out, nil
}

func (m *Memory) DeletePlaylist(_ context.Context, playlistID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.playlists[playlistID]; !ok {
		return ErrNotFound
	}
	delete(m.playlists, playlistID)
	delete(m.channels, playlistID)
	return nil
}

func (m *Memory) GetChannelByID(_ context.Context, channelID int64) (*models.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, chans := range m.channels {
		for _, ch := range chans {
			if ch.ID == channelID {
				cp := ch
				return &cp, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListChannels(_ context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	filter = filter.Normalize()
	m.mu.RLock()
	defer m.mu.RUnlock()

	search := strings.ToLower(filter.Search)
	var matched []models.Channel
	for _, ch := range m.channels[filter.PlaylistID] {
		if filter.Type != nil && ch.Type != *filter.Type {
			continue
		}
		if filter.Group != "" && (ch.Group == nil || *ch.Group != filter.Group) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(ch.Name), search) {
			continue
		}
		matched = append(matched, ch)
	}

	total := len(matched)
	start := min(filter.Offset, total)
	end := min(start+filter.Limit, total)
	return append([]models.Channel{}, matched[start:end]...), total, nil
}

func (m *Memory) CountChannelsByPlaylist(_ context.Context, playlistID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.channels[playlistID])), nil
}
