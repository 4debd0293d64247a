package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/dental-agenda/internal/config"
)

// NewRedisClient connects to the Redis instance that backs the booking lock
// and pings it once before returning.
func NewRedisClient(ctx context.Context, cfg config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.RedisAddr, err)
	}

	return rdb, nil
}

// NewLocker builds the locker selected by LOCK_BACKEND. The redis client is
// nil for the local backend.
func NewLocker(ctx context.Context, cfg config.Config) (Locker, *redis.Client, error) {
	if cfg.LockBackend == "local" {
		return NewLocalLocker(cfg.LockTTL), nil, nil
	}

	rdb, err := NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return NewRedisDateLocker(rdb, cfg.LockTTL), rdb, nil
}
