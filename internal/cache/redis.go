// Package cache holds computed report snapshots outside the process.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/axs360/access-engine/internal/axs/types"
)

const DefaultTTL = 10 * time.Minute

// Connect dials Redis and pings it once so a bad address fails at startup.
func Connect(ctx context.Context, addr, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

// StatsCache stores stats snapshots as JSON.  Keys carry the window start
// and the log watermark, so the TTL bounds memory rather than staleness.
type StatsCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StatsCache{client: client, prefix: "axs:", ttl: ttl}
}

func (c *StatsCache) key(k string) string {
	return c.prefix + k
}

func (c *StatsCache) Get(ctx context.Context, key string) (types.Stats, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.Stats{}, false, nil
	}
	if err != nil {
		return types.Stats{}, false, err
	}

	var s types.Stats
	if err := json.Unmarshal(val, &s); err != nil {
		return types.Stats{}, false, fmt.Errorf("stats cache: unmarshal %s: %w", key, err)
	}
	return s, true, nil
}

func (c *StatsCache) Set(ctx context.Context, key string, s types.Stats) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("stats cache: marshal %s: %w", key, err)
	}
	return c.client.Set(ctx, c.key(key), data, c.ttl).Err()
}
