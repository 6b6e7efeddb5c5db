// Package cache holds the Redis-backed helpers used by checkout: idempotency
// keys for purchase requests and a read-through bill cache. Every type works
// with a nil client, in which case it degrades to a pass-through.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/safar/cart-billing/internal/config"
)

// Connect returns nil when Redis is not configured.
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
