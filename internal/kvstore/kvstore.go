// Package kvstore wraps the Redis client shared by the rate limiter and the
// idempotency guard.
package kvstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tyrchen/mailflow/internal/mailerr"
)

// Store is the key-value seam consumed by internal/ratelimit and
// internal/idempotency.
type Store interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (string, bool, error)
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Client is the Redis-backed implementation of Store.
type Client struct {
	rdb *redis.Client
}

// New wraps an existing redis.Client.
func New(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// NewFromAddr constructs a redis.Client from an address and wraps it.
func NewFromAddr(addr, password string, db int) *Client {
	return New(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}))
}

// Incr increments key and, when it was newly created, sets ttl. Used by the
// sliding fixed-window rate limiter.
func (c *Client) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, mailerr.Wrap(mailerr.IdempotencyStoreFault, err, "incr")
	}
	if n == 1 && ttl > 0 {
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return n, mailerr.Wrap(mailerr.IdempotencyStoreFault, err, "expire")
		}
	}
	return n, nil
}

// Get returns the value stored at key. The bool result is false when the
// key does not exist.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, mailerr.Wrap(mailerr.IdempotencyStoreFault, err, "get")
	}
	return val, true, nil
}

// SetNX sets key to value only if it does not already exist, the primitive
// behind idempotency reservation.
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, mailerr.Wrap(mailerr.IdempotencyStoreFault, err, "setnx")
	}
	return ok, nil
}

// Set unconditionally writes key to value with ttl.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return mailerr.Wrap(mailerr.IdempotencyStoreFault, err, "set")
	}
	return nil
}

// Delete removes key.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return mailerr.Wrap(mailerr.IdempotencyStoreFault, err, "del")
	}
	return nil
}

// Ping reports Redis connectivity, reused by the health sidecar.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return mailerr.Wrap(mailerr.IdempotencyStoreFault, err, "ping")
	}
	return nil
}