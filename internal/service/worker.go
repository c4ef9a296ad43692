package service

import (
	"context"
	"time"

	"github.com/voyagen/iptvdeck/internal/cache"
	xlog "github.com/voyagen/iptvdeck/internal/log"
)

// RunRefreshWorker consumes refresh jobs until ctx is cancelled. It returns
// nil immediately when Redis is not configured.
func (s *Service) RunRefreshWorker(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	logger := xlog.WithComponent("worker")
	logger.Info().Msg("refresh worker started")
	defer logger.Info().Msg("refresh worker stopped")

	for ctx.Err() == nil {
		job, err := cache.Dequeue(ctx, s.redis, cache.RefreshQueue, 5*time.Second)
		if err != nil {
			logger.Warn().Err(err).Msg("dequeue failed")
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		res, err := s.RefreshPlaylist(ctx, job.PlaylistID)
		if err != nil {
			logger.Warn().Err(err).Int64("playlist", job.PlaylistID).Msg("refresh job failed")
			continue
		}
		logger.Info().Int64("playlist", res.ID).Int("channels", res.ChannelCount).
			Dur("queued_for", time.Since(job.QueuedAt)).Msg("refresh job done")
	}
	return nil
}
