package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrLeaseLost   = errors.New("leadership lease lost")
	ErrLeaseStolen = errors.New("leadership lease held by another instance")
)

// releaseScript deletes the lease only while it still names this instance.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LeaderElector hands a single named lease to one instance at a time. Background
// jobs that must not run concurrently across replicas (history pruning) gate on it.
type LeaderElector struct {
	rdb        *redis.Client
	instanceID string
	key        string
	ttl        time.Duration
}

func NewLeaderElector(rdb *redis.Client, instanceID, key string, ttl time.Duration) *LeaderElector {
	return &LeaderElector{rdb: rdb, instanceID: instanceID, key: key, ttl: ttl}
}

// TryAcquire claims the lease if nobody holds it.
func (l *LeaderElector) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	return ok, nil
}

// Renew extends a lease this instance already holds.
func (l *LeaderElector) Renew(ctx context.Context) error {
	holder, err := l.rdb.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrLeaseLost
	}
	if err != nil {
		return fmt.Errorf("read lease %s: %w", l.key, err)
	}
	if holder != l.instanceID {
		return fmt.Errorf("%w: %s", ErrLeaseStolen, holder)
	}

	ok, err := l.rdb.Expire(ctx, l.key, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("renew lease %s: %w", l.key, err)
	}
	if !ok {
		return ErrLeaseLost
	}
	return nil
}

// Release gives the lease up on shutdown so another replica can take over
// without waiting for the TTL.
func (l *LeaderElector) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID).Err()
}
