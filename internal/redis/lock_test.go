package redisclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateKey(t *testing.T) {
	d := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)
	assert.Equal(t, "lock:agenda:2025-03-10", dateKey(d))
}

func TestLocalLocker_SerialisesSameDate(t *testing.T) {
	l := NewLocalLocker(time.Second)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithDateLock(context.Background(), date, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
}

func TestLocalLocker_OtherDatesDoNotBlock(t *testing.T) {
	l := NewLocalLocker(50 * time.Millisecond)
	monday := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	err := l.WithDateLock(context.Background(), monday, func(ctx context.Context) error {
		return l.WithDateLock(ctx, tuesday, func(context.Context) error { return nil })
	})
	require.NoError(t, err)
}

func TestLocalLocker_TimesOutWhenHeld(t *testing.T) {
	l := NewLocalLocker(20 * time.Millisecond)
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	err := l.WithDateLock(context.Background(), date, func(ctx context.Context) error {
		return l.WithDateLock(context.Background(), date, func(context.Context) error { return nil })
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}

// fakeLockClient holds keys in memory and refuses SetNX while busy > 0.
type fakeLockClient struct {
	mu       sync.Mutex
	busy     int
	attempts int
	keys     map[string]string
	released []string
}

func newFakeLockClient(busy int) *fakeLockClient {
	return &fakeLockClient{busy: busy, keys: make(map[string]string)}
}

func (f *fakeLockClient) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.attempts++
	if f.busy != 0 {
		if f.busy > 0 {
			f.busy--
		}
		return redis.NewBoolResult(false, nil)
	}
	if _, held := f.keys[key]; held {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeLockClient) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.keys[keys[0]] != args[0] {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(f.keys, keys[0])
	f.released = append(f.released, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func TestRedisDateLocker_RetriesUntilDateFrees(t *testing.T) {
	client := newFakeLockClient(3)
	l := newRedisDateLocker(client, time.Second)
	date := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

	ran := false
	err := l.WithDateLock(context.Background(), date, func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 4, client.attempts)
	assert.Equal(t, []string{"lock:agenda:2026-10-20"}, client.released)
	assert.Empty(t, client.keys)
}

func TestRedisDateLocker_GivesUpAfterTTL(t *testing.T) {
	client := newFakeLockClient(-1)
	l := newRedisDateLocker(client, 50*time.Millisecond)
	date := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

	start := time.Now()
	err := l.WithDateLock(context.Background(), date, func(context.Context) error {
		t.Fatal("fn must not run without the lock")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Greater(t, client.attempts, 1)
}

func TestRedisDateLocker_StopsOnContextCancel(t *testing.T) {
	client := newFakeLockClient(-1)
	l := newRedisDateLocker(client, 5*time.Second)
	date := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := l.WithDateLock(ctx, date, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisDateLocker_SerialisesSameDate(t *testing.T) {
	client := newFakeLockClient(0)
	l := newRedisDateLocker(client, time.Second)
	date := time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithDateLock(context.Background(), date, func(ctx context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Len(t, client.released, 4)
}
