package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/cart-billing/internal/apperr"
)

const pendingMarker = "pending"

// IdempotencyStore remembers which bill a purchase request produced, so a
// retried request with the same key returns that bill instead of billing
// the cart again.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

func idempotencyKey(scope, key string) string {
	return fmt.Sprintf("checkout:idem:%s:%s", scope, key)
}

// Reserve claims key for a new checkout. If the key already completed it
// returns the bill id with reserved=false. A key still in flight is a
// Conflict.
func (s *IdempotencyStore) Reserve(ctx context.Context, scope, key string) (int64, bool, error) {
	const op = "cache.Reserve"

	if s.client == nil || key == "" {
		return 0, true, nil
	}

	redisKey := idempotencyKey(scope, key)

	ok, err := s.client.SetNX(ctx, redisKey, pendingMarker, s.ttl).Result()
	if err != nil {
		return 0, false, apperr.Storage(op, fmt.Errorf("reserve idempotency key: %w", err))
	}
	if ok {
		return 0, true, nil
	}

	value, err := s.client.Get(ctx, redisKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, apperr.Conflict(op, "request is being retried, try again")
		}
		return 0, false, apperr.Storage(op, fmt.Errorf("read idempotency key: %w", err))
	}
	if value == pendingMarker {
		return 0, false, apperr.Conflict(op, "a checkout with this idempotency key is in progress")
	}

	billID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false, apperr.Storage(op, fmt.Errorf("corrupt idempotency key %s: %w", redisKey, err))
	}

	return billID, false, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, scope, key string, billID int64) error {
	if s.client == nil || key == "" {
		return nil
	}

	err := s.client.Set(ctx, idempotencyKey(scope, key), strconv.FormatInt(billID, 10), s.ttl).Err()
	if err != nil {
		return apperr.Storage("cache.Complete", fmt.Errorf("store idempotency result: %w", err))
	}
	return nil
}

// Release frees a key whose checkout failed so the client can retry.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if s.client == nil || key == "" {
		return nil
	}

	if err := s.client.Del(ctx, idempotencyKey(scope, key)).Err(); err != nil {
		return apperr.Storage("cache.Release", fmt.Errorf("release idempotency key: %w", err))
	}
	return nil
}
