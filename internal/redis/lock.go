package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("agenda date lock not acquired")
)

// Locker serialises bookings per calendar date, so the overlap check and the
// insert that follows it cannot interleave with another booking for that day.
type Locker interface {
	WithDateLock(ctx context.Context, date time.Time, fn func(ctx context.Context) error) error
}

func dateKey(date time.Time) string {
	return "lock:agenda:" + date.Format(time.DateOnly)
}

// lockClient is the part of *redis.Client the date locker needs.
type lockClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

const (
	minLockBackoff = 10 * time.Millisecond
	maxLockBackoff = 200 * time.Millisecond
)

type redisDateLocker struct {
	client lockClient
	ttl    time.Duration
}

// NewRedisDateLocker creates a locker that uses a per date Redis key.
// A busy date is retried until the lock TTL elapses, like LocalLocker.
func NewRedisDateLocker(client *redis.Client, ttl time.Duration) Locker {
	return newRedisDateLocker(client, ttl)
}

func newRedisDateLocker(client lockClient, ttl time.Duration) *redisDateLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &redisDateLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisDateLocker) WithDateLock(ctx context.Context, date time.Time, fn func(ctx context.Context) error) error {
	key := dateKey(date)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		_ = l.release(context.WithoutCancel(ctx), key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisDateLocker) acquire(ctx context.Context, key, token string) error {
	wait := time.NewTimer(l.ttl)
	defer wait.Stop()

	backoff := minLockBackoff
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire date lock: %w", err)
		}
		if ok {
			return nil
		}

		retry := time.NewTimer(backoff)
		select {
		case <-retry.C:
		case <-wait.C:
			retry.Stop()
			return ErrLockNotAcquired
		case <-ctx.Done():
			retry.Stop()
			return ctx.Err()
		}
		backoff = min(backoff*2, maxLockBackoff)
	}
}

const unlockScript = `
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`

func (l *redisDateLocker) release(ctx context.Context, key, token string) error {
	_, err := l.client.Eval(ctx, unlockScript, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release date lock: %w", err)
	}
	return nil
}

// LocalLocker is an in-process Locker for single-instance deployments and
// tests. It waits for the date to be released, up to the lock TTL.
type LocalLocker struct {
	ttl   time.Duration
	mu    sync.Mutex
	dates map[string]chan struct{}
}

func NewLocalLocker(ttl time.Duration) *LocalLocker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &LocalLocker{ttl: ttl, dates: make(map[string]chan struct{})}
}

func (l *LocalLocker) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.dates[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.dates[key] = ch
	}
	return ch
}

func (l *LocalLocker) WithDateLock(ctx context.Context, date time.Time, fn func(ctx context.Context) error) error {
	ch := l.sem(dateKey(date))

	wait := time.NewTimer(l.ttl)
	defer wait.Stop()

	select {
	case ch <- struct{}{}:
	case <-wait.C:
		return ErrLockNotAcquired
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-ch }()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}
