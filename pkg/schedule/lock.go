package schedule

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// LockScope is the one capacity scope: every run that writes the schedule,
// and every restore, holds it.
const LockScope = "schedule"

const (
	// DefaultLockTTL bounds how long a crashed holder can block a scope.
	DefaultLockTTL = 30 * time.Second

	lockRetryInterval = 25 * time.Millisecond
)

// releaseScript deletes the lock only if it still holds our token, so an
// expired holder cannot release a lock somebody else has since acquired.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock acquires the distributed lock for a capacity scope, blocking until it
// is free or ctx is done. The returned release function is idempotent.
func (c *Client) Lock(ctx context.Context, scope string, ttl time.Duration) (func(), error) {
	if scope == "" {
		return nil, fmt.Errorf("lock scope cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}

	key := LockKey(c.instanceName, scope)
	token := uuid.New().String()

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for {
		ok, err := c.rdb.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %q: %w", scope, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timed out waiting for lock %q: %w", scope, ctx.Err())
		case <-ticker.C:
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, c.rdb, []string{key}, token).Err(); err != nil {
			log.Printf("[Schedule] Failed to release lock %q: %v", scope, err)
		}
	}, nil
}
