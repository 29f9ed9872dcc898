package mailsender

import (
	"context"
	"errors"
	"testing"
)

func TestMockSendRecordsCall(t *testing.T) {
	m := NewMock()
	if err := m.Send(context.Background(), "from@example.com", []string{"to@example.com"}, []byte("raw")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if m.SentCount != 1 {
		t.Fatalf("expected 1 send, got %d", m.SentCount)
	}
	if m.Sent[0].From != "from@example.com" {
		t.Fatalf("got from %q", m.Sent[0].From)
	}
}

func TestMockIsVerifiedDefaultsTrue(t *testing.T) {
	m := NewMock()
	verified, err := m.IsVerified(context.Background(), "new@example.com")
	if err != nil || !verified {
		t.Fatalf("expected verified=true err=nil, got %v %v", verified, err)
	}
}

func TestMockIsVerifiedHonorsUnverified(t *testing.T) {
	m := NewMock()
	m.Unverified["unverified@example.com"] = true
	verified, err := m.IsVerified(context.Background(), "unverified@example.com")
	if err != nil || verified {
		t.Fatalf("expected verified=false err=nil, got %v %v", verified, err)
	}
}

func TestMockSendHonorsFailNext(t *testing.T) {
	m := NewMock()
	m.FailNext = errors.New("simulated throttle")
	if err := m.Send(context.Background(), "from@example.com", nil, nil); err == nil {
		t.Fatal("expected error")
	}
	if err := m.Send(context.Background(), "from@example.com", nil, nil); err != nil {
		t.Fatalf("expected FailNext to be consumed, got %v", err)
	}
	if m.SentCount != 1 {
		t.Fatalf("expected only the successful call recorded, got %d", m.SentCount)
	}
}