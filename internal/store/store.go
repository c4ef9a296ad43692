package store

import (
	"context"
	"errors"
	"time"

	"github.com/voyagen/iptvdeck/internal/models"
)

// ErrNotFound is returned when a playlist or channel does not exist.
var ErrNotFound = errors.New("not found")

// Page size bounds for ListChannels.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Store defines persistence for playlists and their channels.
type Store interface {
	// CreatePlaylist inserts p and its channels atomically and returns the new id.
	CreatePlaylist(ctx context.Context, p *models.Playlist, channels []models.ParsedChannel) (int64, error)
	// ReplacePlaylistChannels swaps the channel set of a playlist and records
	// the parse diagnostics and time.
	ReplacePlaylistChannels(ctx context.Context, playlistID int64, channels []models.ParsedChannel, parseErrors []string, parsedAt time.Time) error
	// GetPlaylistByID returns a playlist with its channel count. Content is not loaded.
	GetPlaylistByID(ctx context.Context, playlistID int64) (*models.Playlist, error)
	// GetPlaylistContent returns the stored M3U text of a playlist, nil if none was kept.
	GetPlaylistContent(ctx context.Context, playlistID int64) (*string, error)
	// ListPlaylists returns playlists newest first.
	ListPlaylists(ctx context.Context, filter PlaylistFilter) ([]models.Playlist, error)
	// DeletePlaylist deletes a playlist and its channels.
	DeletePlaylist(ctx context.Context, playlistID int64) error

	// GetChannelByID returns a single channel.
	GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error)
	// ListChannels returns channels matching the filter and the total count (before limit/offset).
	ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error)
	// CountChannelsByPlaylist returns how many channels a playlist owns.
	CountChannelsByPlaylist(ctx context.Context, playlistID int64) (int64, error)
}

// PlaylistFilter holds optional filters for listing playlists.
type PlaylistFilter struct {
	DeviceKey  string // empty = every device
	ActiveOnly bool
}

// ChannelFilter holds filters for listing channels.
type ChannelFilter struct {
	PlaylistID int64
	Type       *models.ContentType
	Group      string // exact group title
	Search     string // case-insensitive substring match on channel name
	Limit      int    // default 50, max 200
	Offset     int
}

// Normalize applies the page size defaults and bounds.
func (f ChannelFilter) Normalize() ChannelFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
