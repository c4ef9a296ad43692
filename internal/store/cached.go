package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/voyagen/iptvdeck/internal/cache"
	xlog "github.com/voyagen/iptvdeck/internal/log"
	"github.com/voyagen/iptvdeck/internal/models"
)

// Cache TTLs per entity.
const (
	ttlPlaylists = 2 * time.Minute
	ttlPlaylist  = 5 * time.Minute
	ttlChannels  = 1 * time.Minute
	ttlChannel   = 5 * time.Minute
)

// CachedStore wraps a Store with a Redis read cache. Reads are served from
// Redis when present; writes invalidate the keys they can affect. Redis
// failures degrade to the inner store.
type CachedStore struct {
	inner  Store
	cache  *cache.Redis
	logger zerolog.Logger
}

// NewCachedStore wraps inner with Redis caching.
func NewCachedStore(inner Store, c *cache.Redis) *CachedStore {
	return &CachedStore{inner: inner, cache: c, logger: xlog.WithComponent("cache")}
}

// cached returns the value under key, loading and storing it on a miss.
func cached[T any](ctx context.Context, c *CachedStore, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	if v, err := cache.Get[T](ctx, c.cache, key); err == nil {
		return v, nil
	} else if !cache.IsMiss(err) {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache get failed")
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if err := cache.Set(ctx, c.cache, key, v, ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache set failed")
	}
	return v, nil
}

// --- cached reads ---

func (c *CachedStore) GetPlaylistByID(ctx context.Context, playlistID int64) (*models.Playlist, error) {
	pl, err := cached(ctx, c, fmt.Sprintf("playlist:%d", playlistID), ttlPlaylist, func() (models.Playlist, error) {
		p, err := c.inner.GetPlaylistByID(ctx, playlistID)
		if err != nil {
			return models.Playlist{}, err
		}
		return *p, nil
	})
	if err != nil {
		return nil, err
	}
	return &pl, nil
}

func (c *CachedStore) ListPlaylists(ctx context.Context, filter PlaylistFilter) ([]models.Playlist, error) {
	key := fmt.Sprintf("playlists:%s:%t", filter.DeviceKey, filter.ActiveOnly)
	return cached(ctx, c, key, ttlPlaylists, func() ([]models.Playlist, error) {
		return c.inner.ListPlaylists(ctx, filter)
	})
}

// channelPage is the cached form of a ListChannels result.
type channelPage struct {
	Channels []models.Channel `json:"channels"`
	Total    int              `json:"total"`
}

func (c *CachedStore) ListChannels(ctx context.Context, filter ChannelFilter) ([]models.Channel, int, error) {
	filter = filter.Normalize()
	key := fmt.Sprintf("channels:%d:%s", filter.PlaylistID, filterHash(filter))
	page, err := cached(ctx, c, key, ttlChannels, func() (channelPage, error) {
		chans, total, err := c.inner.ListChannels(ctx, filter)
		return channelPage{Channels: chans, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return page.Channels, page.Total, nil
}

func (c *CachedStore) GetChannelByID(ctx context.Context, channelID int64) (*models.Channel, error) {
	ch, err := cached(ctx, c, fmt.Sprintf("channel:%d", channelID), ttlChannel, func() (models.Channel, error) {
		ch, err := c.inner.GetChannelByID(ctx, channelID)
		if err != nil {
			return models.Channel{}, err
		}
		return *ch, nil
	})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// --- writes with invalidation ---

func (c *CachedStore) CreatePlaylist(ctx context.Context, p *models.Playlist, channels []models.ParsedChannel) (int64, error) {
	id, err := c.inner.CreatePlaylist(ctx, p, channels)
	if err != nil {
		return 0, err
	}
	c.invalidatePattern(ctx, "playlists:*")
	return id, nil
}

func (c *CachedStore) ReplacePlaylistChannels(ctx context.Context, playlistID int64, channels []models.ParsedChannel, parseErrors []string, parsedAt time.Time) error {
	if err := c.inner.ReplacePlaylistChannels(ctx, playlistID, channels, parseErrors, parsedAt); err != nil {
		return err
	}
	c.invalidate(ctx, fmt.Sprintf("playlist:%d", playlistID))
	// Channel ids change on replace, so single-channel entries go too.
	c.invalidatePattern(ctx, "playlists:*", fmt.Sprintf("channels:%d:*", playlistID), "channel:*")
	return nil
}

func (c *CachedStore) DeletePlaylist(ctx context.Context, playlistID int64) error {
	if err := c.inner.DeletePlaylist(ctx, playlistID); err != nil {
		return err
	}
	c.invalidate(ctx, fmt.Sprintf("playlist:%d", playlistID))
	c.invalidatePattern(ctx, "playlists:*", fmt.Sprintf("channels:%d:*", playlistID), "channel:*")
	return nil
}

// --- passthrough ---

func (c *CachedStore) GetPlaylistContent(ctx context.Context, playlistID int64) (*string, error) {
	return c.inner.GetPlaylistContent(ctx, playlistID)
}

func (c *CachedStore) CountChannelsByPlaylist(ctx context.Context, playlistID int64) (int64, error) {
	return c.inner.CountChannelsByPlaylist(ctx, playlistID)
}

// --- helpers ---

func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := cache.Del(ctx, c.cache, keys...); err != nil {
		c.logger.Warn().Err(err).Strs("keys", keys).Msg("cache del failed")
	}
}

func (c *CachedStore) invalidatePattern(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		if err := cache.DelPattern(ctx, c.cache, p); err != nil {
			c.logger.Warn().Err(err).Str("pattern", p).Msg("cache del pattern failed")
		}
	}
}

// filterHash is a short deterministic digest of a ChannelFilter for cache keys.
func filterHash(f ChannelFilter) string {
	typ := ""
	if f.Type != nil {
		typ = string(*f.Type)
	}
	raw := fmt.Sprintf("%d|%s|%s|%s|%d|%d", f.PlaylistID, typ, f.Group, f.Search, f.Limit, f.Offset)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}
