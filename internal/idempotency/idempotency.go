// Package idempotency implements the reserve/complete/check guard that
// suppresses duplicate outbound sends across redeliveries of the same
// correlation_id.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/tyrchen/mailflow/internal/kvstore"
)

// Status is the result of a reservation attempt or probe.
type Status string

const (
	Fresh     Status = "fresh"
	Pending   Status = "pending"
	Completed Status = "completed"
)

const (
	statePending   = "pending"
	stateCompleted = "completed"
)

// Guard is the capability consumed by the outbound pipeline.
type Guard interface {
	Reserve(ctx context.Context, correlationID string, ttl time.Duration) (Status, error)
	Complete(ctx context.Context, correlationID string) error
	Check(ctx context.Context, correlationID string) (Status, error)
}

// StoreGuard is the kvstore-backed implementation.
type StoreGuard struct {
	store        kvstore.Store
	pendingGrace time.Duration
	now          func() time.Time
}

// New builds a StoreGuard. pendingGrace controls how old a Pending
// reservation must be before it is treated as abandoned and re-attempted
// rather than as a live in-flight duplicate.
func New(store kvstore.Store, pendingGrace time.Duration) *StoreGuard {
	return &StoreGuard{store: store, pendingGrace: pendingGrace, now: time.Now}
}

func key(correlationID string) string {
	return "idempotency:" + correlationID
}

// Reserve attempts to claim correlationID. A fresh claim returns Fresh and
// must be followed by Complete once the send succeeds. A claim already
// marked completed within TTL returns Completed (caller must suppress the
// send). A claim left Pending past pendingGrace is treated as an abandoned
// crash between reserve and complete: this call re-reserves it and returns
// Fresh again, per the decision in the design notes.
func (g *StoreGuard) Reserve(ctx context.Context, correlationID string, ttl time.Duration) (Status, error) {
	k := key(correlationID)
	record := fmt.Sprintf("%s:%d", statePending, g.now().Unix())

	ok, err := g.store.SetNX(ctx, k, record, ttl)
	if err != nil {
		return "", err
	}
	if ok {
		return Fresh, nil
	}

	existing, found, err := g.store.Get(ctx, k)
	if err != nil {
		return "", err
	}
	if !found {
		// Raced with a TTL expiry between SetNX and Get; treat as fresh.
		return Fresh, nil
	}

	state, reservedAt := parseRecord(existing)
	switch state {
	case stateCompleted:
		return Completed, nil
	case statePending:
		if g.pendingGrace > 0 && reservedAt.Add(g.pendingGrace).Before(g.now()) {
			if err := g.store.Set(ctx, k, fmt.Sprintf("%s:%d", statePending, g.now().Unix()), ttl); err != nil {
				return "", err
			}
			return Fresh, nil
		}
		return Pending, nil
	default:
		return Fresh, nil
	}
}

// Complete marks correlationID as terminally sent. The completed marker is
// written with no expiry, replacing the reservation's TTL, so it suppresses
// every later redelivery of correlationID, not only those within that TTL.
func (g *StoreGuard) Complete(ctx context.Context, correlationID string) error {
	return g.store.Set(ctx, key(correlationID), stateCompleted, 0)
}

// Check is a read-only probe of correlationID's state; it never creates or
// refreshes a reservation.
func (g *StoreGuard) Check(ctx context.Context, correlationID string) (Status, error) {
	existing, found, err := g.store.Get(ctx, key(correlationID))
	if err != nil {
		return "", err
	}
	if !found {
		return Fresh, nil
	}
	state, _ := parseRecord(existing)
	switch state {
	case stateCompleted:
		return Completed, nil
	case statePending:
		return Pending, nil
	default:
		return Fresh, nil
	}
}

func parseRecord(raw string) (string, time.Time) {
	if raw == stateCompleted {
		return stateCompleted, time.Time{}
	}
	var state string
	var epoch int64
	if _, err := fmt.Sscanf(raw, "pending:%d", &epoch); err == nil {
		return statePending, time.Unix(epoch, 0)
	}
	return state, time.Time{}
}