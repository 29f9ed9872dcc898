package idempotency

import (
	"time"

	"github.com/tyrchen/mailflow/internal/kvstore"
)

type mockClock struct {
	current time.Time
	store   *kvstore.Mock
}

func newMockClock() *mockClock {
	c := &mockClock{current: time.Unix(1_700_000_000, 0)}
	c.store = kvstore.NewMockWithClock(c.now)
	return c
}

func (c *mockClock) now() time.Time { return c.current }

func (c *mockClock) advance(d time.Duration) { c.current = c.current.Add(d) }