package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RefreshJob asks a worker to re-resolve and re-parse one playlist.
type RefreshJob struct {
	PlaylistID int64     `json:"playlist_id"`
	QueuedAt   time.Time `json:"queued_at"`
}

// RefreshQueue is the list key used for refresh jobs.
const RefreshQueue = "jobs:refresh"

// Enqueue pushes job onto the head of queue.
func Enqueue(ctx context.Context, r *Redis, queue string, job RefreshJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue encode: %w", err)
	}
	if err := r.client.LPush(ctx, KeyPrefix+queue, data).Err(); err != nil {
		return fmt.Errorf("queue push: %w", err)
	}
	return nil
}

// Dequeue waits up to timeout for a job at the tail of queue. It returns
// (nil, nil) on timeout and on ctx cancellation so workers can loop and
// observe shutdown.
func Dequeue(ctx context.Context, r *Redis, queue string, timeout time.Duration) (*RefreshJob, error) {
	res, err := r.client.BRPop(ctx, timeout, KeyPrefix+queue).Result()
	if err != nil {
		if IsMiss(err) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("queue pop: %w", err)
	}
	if len(res) < 2 {
		return nil, nil
	}
	var job RefreshJob
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("queue decode: %w", err)
	}
	return &job, nil
}

// QueueLen returns the number of pending jobs.
func QueueLen(ctx context.Context, r *Redis, queue string) (int64, error) {
	return r.client.LLen(ctx, KeyPrefix+queue).Result()
}
