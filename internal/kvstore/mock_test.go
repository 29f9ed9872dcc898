package kvstore

import (
	"context"
	"testing"
	"time"
)

func TestMockIncrCounts(t *testing.T) {
	m := NewMock()
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		n, err := m.Incr(ctx, "k", time.Minute)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != int64(i) {
			t.Fatalf("expected %d, got %d", i, n)
		}
	}
}

func TestMockIncrResetsAfterExpiry(t *testing.T) {
	current := time.Unix(0, 0)
	clock := func() time.Time { return current }
	m := NewMockWithClock(clock)
	ctx := context.Background()
	if _, err := m.Incr(ctx, "k", time.Second); err != nil {
		t.Fatalf("incr: %v", err)
	}
	current = current.Add(2 * time.Second)
	n, err := m.Incr(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("incr: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected counter reset to 1, got %d", n)
	}
}

func TestMockSetNXRejectsDuplicate(t *testing.T) {
	m := NewMock()
	ctx := context.Background()
	ok, err := m.SetNX(ctx, "idem:1", "pending", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first reservation to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = m.SetNX(ctx, "idem:1", "pending", time.Minute)
	if err != nil || ok {
		t.Fatalf("expected duplicate reservation to fail, ok=%v err=%v", ok, err)
	}
}

func TestMockGetMissing(t *testing.T) {
	m := NewMock()
	_, ok, err := m.Get(context.Background(), "absent")
	if err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}
}