package objectstore

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestMockPutGetRoundTrip(t *testing.T) {
	m := NewMock()
	ctx := context.Background()
	if err := m.Put(ctx, "bucket", "key", []byte("hello"), "text/plain"); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := m.Get(ctx, "bucket", "key")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestMockHeadSizeMissing(t *testing.T) {
	m := NewMock()
	_, ok, err := m.HeadSize(context.Background(), "bucket", "missing")
	if err != nil || ok {
		t.Fatalf("expected missing object, got ok=%v err=%v", ok, err)
	}
}

func TestMockDeleteObjects(t *testing.T) {
	m := NewMock()
	ctx := context.Background()
	_ = m.Put(ctx, "b", "a", []byte("1"), "text/plain")
	_ = m.Put(ctx, "b", "b", []byte("2"), "text/plain")
	n, err := m.DeleteObjects(ctx, "b", []string{"a", "missing"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
}

func TestMockPresignIncludesExpiry(t *testing.T) {
	m := NewMock()
	url, err := m.Presign(context.Background(), "b", "k", 15*time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if url == "" {
		t.Fatal("expected non-empty url")
	}
	if !strings.Contains(url, "expires=900") {
		t.Fatalf("expected url to carry the 900s expiry, got %q", url)
	}
}
