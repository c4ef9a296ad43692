// Package cache holds the Redis helpers shared by the read cache, the
// playlist creation lock and the refresh job queue.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "iptvdeck:"

// Redis wraps a go-redis client.
type Redis struct {
	client *redis.Client
}

// New parses a Redis URL (e.g. "redis://host:6379/0"). Call Ping to verify
// the connection.
func New(rawURL string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

// Wrap adopts an existing client.
func Wrap(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Ping checks the connection to Redis.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close shuts down the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

// IsMiss reports whether err means the key was absent.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Get loads key and decodes its JSON value. A missing key yields an error
// for which IsMiss is true.
func Get[T any](ctx context.Context, r *Redis, key string) (T, error) {
	var v T
	raw, err := r.client.Get(ctx, KeyPrefix+key).Bytes()
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return v, nil
}

// Set stores v as JSON under key for ttl.
func Set(ctx context.Context, r *Redis, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	return r.client.Set(ctx, KeyPrefix+key, data, ttl).Err()
}

// Del removes exact keys.
func Del(ctx context.Context, r *Redis, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = KeyPrefix + k
	}
	return r.client.Del(ctx, full...).Err()
}

// DelPattern removes every key matching a glob such as "channels:*",
// walking the keyspace with SCAN.
func DelPattern(ctx context.Context, r *Redis, pattern string) error {
	iter := r.client.Scan(ctx, 0, KeyPrefix+pattern, 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("cache del %s: %w", pattern, err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache scan %s: %w", pattern, err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("cache del %s: %w", pattern, err)
		}
	}
	return nil
}
