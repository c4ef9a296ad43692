package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/voyagen/iptvdeck/internal/apperr"
	"github.com/voyagen/iptvdeck/internal/models"
	"github.com/voyagen/iptvdeck/internal/store"
)

// ChannelQuery selects channels of one playlist.
type ChannelQuery struct {
	PlaylistID int64
	Type       string
	Group      string
	Search     string
	Limit      int
	Offset     int
}

// ChannelPage is one page of a channel listing.
type ChannelPage struct {
	Channels   []models.Channel `json:"channels"`
	TotalCount int              `json:"totalCount"`
	Limit      int              `json:"limit"`
	Offset     int              `json:"offset"`
}

// ListChannels returns a page of channels. The playlist id is required.
func (s *Service) ListChannels(ctx context.Context, q ChannelQuery) (*ChannelPage, error) {
	if q.PlaylistID <= 0 {
		return nil, apperr.Validation("playlistId is required")
	}
	f := store.ChannelFilter{
		PlaylistID: q.PlaylistID,
		Group:      strings.TrimSpace(q.Group),
		Search:     strings.TrimSpace(q.Search),
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	if q.Type != "" {
		t := models.ContentType(q.Type)
		if !t.Valid() {
			return nil, apperr.Validation("type must be one of live, movie, series")
		}
		f.Type = &t
	}
	if f.Limit <= 0 {
		f.Limit = s.opts.PageSize
	}
	f = f.Normalize()

	chans, total, err := s.store.ListChannels(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return &ChannelPage{Channels: chans, TotalCount: total, Limit: f.Limit, Offset: f.Offset}, nil
}

// GetChannel returns one channel.
func (s *Service) GetChannel(ctx context.Context, id int64) (*models.Channel, error) {
	ch, err := s.store.GetChannelByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "channel", id)
	}
	return ch, nil
}
