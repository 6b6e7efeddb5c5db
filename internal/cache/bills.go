package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/cart-billing/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// BillCache is a cache-aside store for bill reads. Concurrent misses for the
// same bill share one load. A miss only fills an empty key, while Refresh
// overwrites it, so a load that raced a state change cannot replace the
// entry written after that change.
type BillCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger logrus.FieldLogger
}

func NewBillCache(client *redis.Client, ttl time.Duration, logger logrus.FieldLogger) *BillCache {
	return &BillCache{client: client, ttl: ttl, logger: logger}
}

func billKey(id int64) string {
	return "bill:" + strconv.FormatInt(id, 10)
}

func (c *BillCache) Get(ctx context.Context, id int64, load func(context.Context) (*models.Bill, error)) (*models.Bill, error) {
	if c.client == nil {
		return load(ctx)
	}

	key := billKey(id)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var bill models.Bill
		if err := json.Unmarshal(data, &bill); err == nil {
			return &bill, nil
		}
		c.logger.WithField("bill_id", id).Warn("discarding undecodable cached bill")
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WithError(err).WithField("bill_id", id).Warn("bill cache read failed")
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		bill, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.fill(ctx, bill)
		return bill, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*models.Bill), nil
}

func (c *BillCache) fill(ctx context.Context, bill *models.Bill) {
	data, err := json.Marshal(bill)
	if err != nil {
		c.logger.WithError(err).WithField("bill_id", bill.ID).Warn("encode bill for cache")
		return
	}
	if err := c.client.SetNX(ctx, billKey(bill.ID), string(data), c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("bill_id", bill.ID).Warn("bill cache write failed")
	}
}

// Refresh re-reads a bill after a state change and overwrites the cached
// entry. When the read fails the entry is dropped instead.
func (c *BillCache) Refresh(ctx context.Context, id int64, load func(context.Context) (*models.Bill, error)) (*models.Bill, error) {
	bill, err := load(ctx)
	if c.client == nil {
		return bill, err
	}
	if err != nil {
		c.invalidate(ctx, id)
		return nil, err
	}

	data, err := json.Marshal(bill)
	if err != nil {
		c.logger.WithError(err).WithField("bill_id", id).Warn("encode bill for cache")
		c.invalidate(ctx, id)
		return bill, nil
	}
	if err := c.client.Set(ctx, billKey(id), string(data), c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("bill_id", id).Warn("bill cache write failed")
		c.invalidate(ctx, id)
	}
	return bill, nil
}

// invalidate drops a cached bill. Failure is logged only; the entry then
// lives until its TTL.
func (c *BillCache) invalidate(ctx context.Context, id int64) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, billKey(id)).Err(); err != nil {
		c.logger.WithError(fmt.Errorf("invalidate bill cache: %w", err)).WithField("bill_id", id).Warn("bill cache invalidation failed")
	}
}
