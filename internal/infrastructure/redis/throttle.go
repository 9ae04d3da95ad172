package redisinfra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewClient configures a Redis client and verifies connectivity.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Throttle counts events per key in fixed windows. It fails open: a nil
// client or a Redis error lets the event through.
type Throttle struct {
	client *redis.Client
	prefix string
	max    int64
	window time.Duration
}

func NewThrottle(client *redis.Client, prefix string, max int, window time.Duration) *Throttle {
	if max <= 0 {
		max = 3
	}
	return &Throttle{client: client, prefix: prefix, max: int64(max), window: window}
}

// Allow records one event for key and reports whether it is within the limit.
func (t *Throttle) Allow(ctx context.Context, key string) bool {
	if t == nil || t.client == nil {
		return true
	}
	k := t.prefix + key
	cnt, err := t.client.Incr(ctx, k).Result()
	if err != nil {
		slog.Warn("throttle unavailable, allowing", "key", k, "err", err)
		return true
	}
	if cnt == 1 {
		t.client.Expire(ctx, k, t.window)
	}
	return cnt <= t.max
}
