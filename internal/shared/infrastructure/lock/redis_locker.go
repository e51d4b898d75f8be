package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix   = "qzwhatnext:rebuild-lock:"
	lockTTL         = 2 * time.Minute
	lockPollBackoff = 100 * time.Millisecond
)

// RedisLocker implements UserLocker with Redis SET NX leases. Used when
// multiple API instances share a database.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker creates a Redis-backed user locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Acquire polls SET NX until the lease is held or ctx is done. The lease
// value is unique per acquisition so release only deletes our own lease.
func (l *RedisLocker) Acquire(ctx context.Context, userID uuid.UUID) (func(), error) {
	key := lockKeyPrefix + userID.String()
	leaseID := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, leaseID, lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollBackoff):
		}
	}

	release := func() {
		// Delete only if we still own the lease.
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.client.Eval(releaseCtx, script, []string{key}, leaseID).Err()
	}
	return release, nil
}
