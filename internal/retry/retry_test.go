package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tyrchen/mailflow/internal/mailerr"
)

func TestDoSucceedsAfterRetriableFailures(t *testing.T) {
	cfg := Config{MaxAttempts: 3, Base: time.Millisecond, Cap: 10 * time.Millisecond, Jitter: 0}
	attempts := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return mailerr.New(mailerr.StorageUnavailable, "transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	cfg := Config{MaxAttempts: 5, Base: time.Millisecond, Cap: 10 * time.Millisecond, Jitter: 0}
	attempts := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return mailerr.New(mailerr.EmailTooLarge, "too big")
	})
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a permanent error, got %d", attempts)
	}
	if kind, _ := mailerr.KindOf(err); kind != mailerr.EmailTooLarge {
		t.Fatalf("expected EmailTooLarge, got %v", kind)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	cfg := Config{MaxAttempts: 2, Base: time.Millisecond, Cap: 10 * time.Millisecond, Jitter: 0}
	attempts := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		return mailerr.New(mailerr.QueueUnavailable, "down")
	})
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
}

func TestDoRespectsCancellation(t *testing.T) {
	cfg := Config{MaxAttempts: 5, Base: 50 * time.Millisecond, Cap: time.Second, Jitter: 0}
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, cfg, func(ctx context.Context) error {
		attempts++
		return mailerr.New(mailerr.StorageUnavailable, "still down")
	})
	var me *mailerr.Error
	if !errors.As(err, &me) || me.Kind != mailerr.DeadlineExceeded {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestDoCallsObserverOncePerRetry(t *testing.T) {
	var observed []int
	cfg := Config{
		MaxAttempts: 3, Base: time.Millisecond, Cap: 10 * time.Millisecond, Jitter: 0,
		Observer: func(attempt int) { observed = append(observed, attempt) },
	}
	attempts := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return mailerr.New(mailerr.StorageUnavailable, "transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(observed) != 2 {
		t.Fatalf("expected the observer called once per retry (2 of 3 attempts), got %v", observed)
	}
}

func TestDelayIsBoundedByCap(t *testing.T) {
	cfg := Config{MaxAttempts: 10, Base: time.Second, Cap: 5 * time.Second, Jitter: 0}
	d := cfg.Delay(10)
	if d != 5*time.Second {
		t.Fatalf("expected delay capped at 5s, got %v", d)
	}
}