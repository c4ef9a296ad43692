package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/voyagen/iptvdeck/internal/apperr"
	"github.com/voyagen/iptvdeck/internal/cache"
	"github.com/voyagen/iptvdeck/internal/metrics"
	"github.com/voyagen/iptvdeck/internal/models"
	"github.com/voyagen/iptvdeck/internal/store"
)

// Source is a playlist URL or pasted M3U text. Content wins when both are set.
type Source struct {
	URL     string `json:"url,omitempty"`
	Content string `json:"content,omitempty"`
}

// Preview is the result of ParseSource.
type Preview struct {
	Success       bool                   `json:"success"`
	Channels      []models.ParsedChannel `json:"channels"`
	TotalChannels int                    `json:"totalChannels"`
	Errors        []string               `json:"errors"`
}

// ParseSource resolves and parses a source without storing anything. It
// returns the first PreviewSize channels. A parse with no channels is a
// ValidationError carrying the diagnostics.
func (s *Service) ParseSource(ctx context.Context, src Source) (*Preview, error) {
	text, err := s.resolver.Resolve(ctx, src.URL, src.Content)
	if err != nil {
		return nil, err
	}
	res := s.parse(text)
	if !res.Success {
		return nil, parseFailure(res)
	}
	return &Preview{
		Success:       true,
		Channels:      res.Channels[:min(len(res.Channels), PreviewSize)],
		TotalChannels: res.TotalChannels,
		Errors:        res.Errors,
	}, nil
}

// CreateInput is a request to store a playlist.
type CreateInput struct {
	Name      string `json:"name"`
	DeviceKey string `json:"deviceKey"`
	Source
}

// Created summarises a stored playlist.
type Created struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	ChannelCount int    `json:"channelCount"`
}

// CreatePlaylist resolves, parses and stores a playlist with its channels.
func (s *Service) CreatePlaylist(ctx context.Context, in CreateInput) (*Created, error) {
	name, deviceKey := strings.TrimSpace(in.Name), strings.TrimSpace(in.DeviceKey)
	if name == "" || deviceKey == "" {
		return nil, apperr.Validation("Name and deviceKey are required")
	}
	if strings.TrimSpace(in.URL) == "" && in.Content == "" {
		return nil, apperr.Validation("URL or content is required")
	}

	release, err := s.lock(ctx, cache.PlaylistLockKey(deviceKey, name),
		fmt.Sprintf("playlist %q is already being created for this device", name))
	if err != nil {
		return nil, err
	}
	defer release()

	text, err := s.resolver.Resolve(ctx, in.URL, in.Content)
	if err != nil {
		return nil, err
	}
	res := s.parse(text)
	if !res.Success {
		return nil, parseFailure(res)
	}

	parsedAt := s.now()
	pl := &models.Playlist{
		Name:        name,
		Content:     &text,
		DeviceKey:   deviceKey,
		IsActive:    true,
		LastParsed:  &parsedAt,
		ParseErrors: res.Errors,
	}
	if u := strings.TrimSpace(in.URL); u != "" {
		pl.URL = &u
	}
	id, err := s.store.CreatePlaylist(ctx, pl, res.Channels)
	if err != nil {
		return nil, fmt.Errorf("create playlist: %w", err)
	}
	s.logger.Info().Int64("playlist", id).Str("device", deviceKey).Int("channels", res.TotalChannels).
		Int("diagnostics", len(res.Errors)).Msg("playlist created")
	return &Created{ID: id, Name: name, ChannelCount: res.TotalChannels}, nil
}

// ListPlaylists returns the active playlists of deviceKey (all devices when
// empty). IsActive in the result marks the playlist whose id is activeID.
func (s *Service) ListPlaylists(ctx context.Context, deviceKey string, activeID int64) ([]models.Playlist, error) {
	pls, err := s.store.ListPlaylists(ctx, store.PlaylistFilter{DeviceKey: strings.TrimSpace(deviceKey), ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list playlists: %w", err)
	}
	for i := range pls {
		pls[i].IsActive = activeID != 0 && pls[i].ID == activeID
	}
	return pls, nil
}

// GetPlaylist returns one playlist with its channel count.
func (s *Service) GetPlaylist(ctx context.Context, id int64) (*models.Playlist, error) {
	pl, err := s.store.GetPlaylistByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "playlist", id)
	}
	return pl, nil
}

// DeletePlaylist removes a playlist and its channels.
func (s *Service) DeletePlaylist(ctx context.Context, id int64) error {
	if err := s.store.DeletePlaylist(ctx, id); err != nil {
		return notFound(err, "playlist", id)
	}
	s.logger.Info().Int64("playlist", id).Msg("playlist deleted")
	return nil
}

// Refreshed summarises a completed refresh.
type Refreshed struct {
	ID                   int64    `json:"id"`
	ChannelCount         int      `json:"channelCount"`
	PreviousChannelCount int64    `json:"previousChannelCount"`
	Errors               []string `json:"errors"`
}

// RefreshPlaylist re-resolves a playlist's source, re-parses it and replaces
// its channels. URL-backed playlists are fetched again; pasted ones are
// re-parsed from the stored text. On a failed parse the old channels stay.
func (s *Service) RefreshPlaylist(ctx context.Context, id int64) (*Refreshed, error) {
	pl, err := s.store.GetPlaylistByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "playlist", id)
	}

	release, err := s.lock(ctx, cache.RefreshLockKey(id), fmt.Sprintf("playlist %d is already refreshing", id))
	if err != nil {
		return nil, err
	}
	defer release()

	text, err := s.sourceText(ctx, pl)
	if err != nil {
		metrics.PlaylistRefreshes.WithLabelValues("fetch_error").Inc()
		return nil, err
	}
	res := s.parse(text)
	if !res.Success {
		metrics.PlaylistRefreshes.WithLabelValues("parse_error").Inc()
		return nil, parseFailure(res)
	}
	previous, err := s.store.CountChannelsByPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplacePlaylistChannels(ctx, id, res.Channels, res.Errors, s.now()); err != nil {
		metrics.PlaylistRefreshes.WithLabelValues("store_error").Inc()
		return nil, notFound(err, "playlist", id)
	}
	metrics.PlaylistRefreshes.WithLabelValues("success").Inc()
	s.logger.Info().Int64("playlist", id).Int64("previous", previous).Int("channels", res.TotalChannels).Msg("playlist refreshed")
	return &Refreshed{ID: id, ChannelCount: res.TotalChannels, PreviousChannelCount: previous, Errors: res.Errors}, nil
}

func (s *Service) sourceText(ctx context.Context, pl *models.Playlist) (string, error) {
	if pl.URL != nil && *pl.URL != "" {
		return s.resolver.Resolve(ctx, *pl.URL, "")
	}
	content, err := s.store.GetPlaylistContent(ctx, pl.ID)
	if err != nil {
		return "", notFound(err, "playlist", pl.ID)
	}
	if content == nil {
		return "", apperr.Validation("playlist %d has no source to refresh", pl.ID)
	}
	return *content, nil
}

// EnqueueRefresh queues a refresh when Redis is configured and reports
// queued=true. Without Redis the refresh runs inline and its result is returned.
func (s *Service) EnqueueRefresh(ctx context.Context, id int64) (queued bool, res *Refreshed, err error) {
	if s.redis == nil {
		res, err = s.RefreshPlaylist(ctx, id)
		return false, res, err
	}
	if _, err := s.store.GetPlaylistByID(ctx, id); err != nil {
		return false, nil, notFound(err, "playlist", id)
	}
	if cache.IsLocked(ctx, s.redis, cache.RefreshLockKey(id)) {
		return false, nil, &apperr.ConflictError{Msg: fmt.Sprintf("playlist %d is already refreshing", id)}
	}
	if err := cache.Enqueue(ctx, s.redis, cache.RefreshQueue, cache.RefreshJob{PlaylistID: id, QueuedAt: s.now()}); err != nil {
		return false, nil, fmt.Errorf("enqueue refresh: %w", err)
	}
	s.logger.Debug().Int64("playlist", id).Msg("refresh queued")
	return true, nil, nil
}
