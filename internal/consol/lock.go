package consol

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockRetryInterval = 250 * time.Millisecond

// releaseScript deletes the lock only when the caller still owns it, so a
// slow run cannot release a successor's lock after its own ttl expired.
var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RunLock serializes consolidation runs per organization and period via a
// redis SET NX lease. A nil client disables locking (single-node dev).
type RunLock struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRunLock constructs a lock manager. ttl bounds how long a crashed run
// can hold a period; wait bounds how long a second run queues behind the
// first before giving up.
func NewRunLock(client *redis.Client, ttl, wait time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RunLock{client: client, ttl: ttl, wait: wait}
}

// Acquire takes the lock for key, polling until the wait budget runs out.
// The returned release function is safe to call exactly once; an expired
// lease releases itself via ttl.
func (l *RunLock) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
			}, nil
		}
		if l.wait <= 0 || time.Now().After(deadline) {
			return nil, ErrPeriodLocked
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}
