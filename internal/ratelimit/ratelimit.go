// Package ratelimit implements the sliding fixed-window limiter applied to
// inbound sender addresses, atop the key-value store's atomic increment.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/tyrchen/mailflow/internal/kvstore"
	"github.com/tyrchen/mailflow/internal/mailerr"
	"github.com/tyrchen/mailflow/internal/sanitize"
)

// Limiter decides whether a sender may proceed within the current window.
type Limiter interface {
	Allow(ctx context.Context, sender string) error
}

// WindowLimiter is the sliding fixed-window implementation backed by a
// kvstore.Store. Window start is floor(now/W)*W, so every caller within the
// same W-second bucket shares one counter key.
type WindowLimiter struct {
	store         kvstore.Store
	window        time.Duration
	limit         int64
	ttlBuffer     time.Duration
	now           func() time.Time
}

// New builds a WindowLimiter with window, limit, and ttlBuffer taken from
// config.RateLimitConfig.
func New(store kvstore.Store, window time.Duration, limit int64, ttlBuffer time.Duration) *WindowLimiter {
	return &WindowLimiter{store: store, window: window, limit: limit, ttlBuffer: ttlBuffer, now: time.Now}
}

// Allow increments the counter for sender's current window and rejects with
// RateLimitExceeded once the count exceeds limit.
func (l *WindowLimiter) Allow(ctx context.Context, sender string) error {
	now := l.now().Unix()
	windowSeconds := int64(l.window.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	windowStart := (now / windowSeconds) * windowSeconds
	key := fmt.Sprintf("ratelimit:%s:%d", sender, windowStart)
	ttl := l.window + l.ttlBuffer

	count, err := l.store.Incr(ctx, key, ttl)
	if err != nil {
		return err
	}
	if count > l.limit {
		return mailerr.New(mailerr.RateLimitExceeded, fmt.Sprintf("sender %s exceeded %d per %s window", sanitize.Email(sender), l.limit, l.window))
	}
	return nil
}

// AlwaysAllow is the no-op limiter required for environments where the
// key-value store has not been provisioned.
type AlwaysAllow struct{}

// Allow always succeeds.
func (AlwaysAllow) Allow(ctx context.Context, sender string) error { return nil }