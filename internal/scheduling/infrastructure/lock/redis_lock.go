// Package lock provides a cross-process mutex so two planning calls over
// the same set of resource IDs never run concurrently when multiple
// CLI/MCP processes share one run-history database. The lock key is the
// whole set: calls over different but overlapping sets do not exclude
// each other.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock is already held by another
// holder and TryAcquire declines to wait.
var ErrNotAcquired = errors.New("scheduling: run lock already held")

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// RunLock is a held distributed lock over a set of resource IDs. Release
// is idempotent and safe to call more than once or defer unconditionally.
type RunLock struct {
	client *redis.Client
	key    string
	token  string
}

// RedisRunLock acquires a per-resource-set run lock backed by Redis's
// SET NX PX pattern: the key is set only if absent, with an expiry so a
// crashed holder cannot wedge the lock forever.
type RedisRunLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRunLock constructs a RedisRunLock. ttl bounds how long a single
// planning call may hold the lock before it is considered abandoned.
func NewRedisRunLock(client *redis.Client, ttl time.Duration) *RedisRunLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisRunLock{client: client, ttl: ttl}
}

// resourceSetKey builds a stable key for a set of resource IDs regardless
// of input order, so two callers planning the same resources collide.
func resourceSetKey(resourceIDs []int) string {
	ids := append([]int(nil), resourceIDs...)
	sort.Ints(ids)
	parts := make([]string, 0, len(ids))
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return "scheduling:run-lock:" + strings.Join(parts, ",")
}

// Acquire blocks, polling at a fixed interval, until the lock over
// resourceIDs is obtained or ctx is canceled.
func (l *RedisRunLock) Acquire(ctx context.Context, resourceIDs []int) (*RunLock, error) {
	const pollInterval = 50 * time.Millisecond
	for {
		run, err := l.TryAcquire(ctx, resourceIDs)
		if err == nil {
			return run, nil
		}
		if !errors.Is(err, ErrNotAcquired) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// TryAcquire attempts to obtain the lock once, without waiting.
func (l *RedisRunLock) TryAcquire(ctx context.Context, resourceIDs []int) (*RunLock, error) {
	key := resourceSetKey(resourceIDs)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("scheduling: acquiring run lock: %w", err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &RunLock{client: l.client, key: key, token: token}, nil
}

// Release drops the lock if and only if it is still held by this token,
// so a lock that already expired and was reacquired by someone else is
// never released out from under them.
func (r *RunLock) Release(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.client.Eval(ctx, releaseScript, []string{r.key}, r.token).Err()
}
