// Package service holds the playlist and channel operations behind the HTTP
// API: resolving and parsing sources, persisting playlists, refreshing them
// and listing their channels.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/voyagen/iptvdeck/internal/apperr"
	"github.com/voyagen/iptvdeck/internal/cache"
	"github.com/voyagen/iptvdeck/internal/fetcher"
	xlog "github.com/voyagen/iptvdeck/internal/log"
	"github.com/voyagen/iptvdeck/internal/metrics"
	"github.com/voyagen/iptvdeck/internal/models"
	"github.com/voyagen/iptvdeck/internal/store"
)

// PreviewSize is how many channels ParseSource returns.
const PreviewSize = 10

// Options tune a Service. Zero values select defaults.
type Options struct {
	Classifier fetcher.Classifier
	// PageSize is the default channel page size. Default store.DefaultPageSize.
	PageSize int
	// LockTTL bounds how long a create or refresh lock is held. Default 2m.
	LockTTL time.Duration
}

// Service implements the playlist operations.
type Service struct {
	store    store.Store
	resolver *fetcher.Resolver
	redis    *cache.Redis
	opts     Options
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates a Service. rds may be nil; without it creation is not
// de-duplicated and refreshes run inline.
func New(s store.Store, resolver *fetcher.Resolver, rds *cache.Redis, opts Options) *Service {
	if opts.Classifier == nil {
		opts.Classifier = fetcher.ClassifyGroupTitle
	}
	if opts.PageSize <= 0 {
		opts.PageSize = store.DefaultPageSize
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 2 * time.Minute
	}
	return &Service{
		store:    s,
		resolver: resolver,
		redis:    rds,
		opts:     opts,
		logger:   xlog.WithComponent("service"),
		now:      time.Now,
	}
}

// parse runs the parser and records its outcome.
func (s *Service) parse(text string) models.ParseResult {
	res := fetcher.ParseWithOptions(text, fetcher.Options{Classifier: s.opts.Classifier})
	if res.Success {
		metrics.PlaylistParses.WithLabelValues("success").Inc()
	} else {
		metrics.PlaylistParses.WithLabelValues("failure").Inc()
	}
	for _, ch := range res.Channels {
		metrics.ChannelsParsed.WithLabelValues(string(ch.Type)).Inc()
	}
	return res
}

func parseFailure(res models.ParseResult) error {
	return &apperr.ValidationError{Msg: "Failed to parse playlist", Details: res.Errors}
}

// lock takes key when Redis is configured. The release func is never nil.
// A Redis outage degrades to running unlocked.
func (s *Service) lock(ctx context.Context, key, conflict string) (func(), error) {
	if s.redis == nil {
		return func() {}, nil
	}
	release, err := cache.TryLock(ctx, s.redis, key, s.opts.LockTTL)
	if errors.Is(err, cache.ErrLocked) {
		return nil, &apperr.ConflictError{Msg: conflict}
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("lock unavailable, continuing without it")
		return func() {}, nil
	}
	return release, nil
}

// notFound turns store.ErrNotFound into a typed NotFoundError.
func notFound(err error, kind string, id int64) error {
	if errors.Is(err, store.ErrNotFound) {
		return &apperr.NotFoundError{Kind: kind, ID: id}
	}
	return err
}
