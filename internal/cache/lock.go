package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned by TryLock when another holder owns the lock.
var ErrLocked = errors.New("lock is already held")

// releaseScript deletes the lock only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// PlaylistLockKey is the lock guarding creation of one named playlist on a device.
func PlaylistLockKey(deviceKey, name string) string {
	return "lock:playlist:" + deviceKey + ":" + strings.ToLower(strings.TrimSpace(name))
}

// RefreshLockKey guards a running refresh of one playlist.
func RefreshLockKey(playlistID int64) string {
	return fmt.Sprintf("lock:refresh:%d", playlistID)
}

// TryLock takes key with SET NX for ttl. The returned release func must be
// called by the holder; it is a no-op once the lock has expired or moved on.
func TryLock(ctx context.Context, r *Redis, key string, ttl time.Duration) (release func(), err error) {
	token := randomToken()
	ok, err := r.client.SetNX(ctx, KeyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("cache lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		// Released with a fresh context so a cancelled request still unlocks.
		_ = releaseScript.Run(context.Background(), r.client, []string{KeyPrefix + key}, token).Err()
	}, nil
}

// IsLocked reports whether key is currently held.
func IsLocked(ctx context.Context, r *Redis, key string) bool {
	n, _ := r.client.Exists(ctx, KeyPrefix+key).Result()
	return n > 0
}

func randomToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
