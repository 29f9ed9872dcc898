package queue

import (
	"context"
	"encoding/json"
	"testing"
)

func TestMockSendRecordsMessage(t *testing.T) {
	m := NewMock()
	if err := m.Send(context.Background(), "https://queue/outbound", []byte("payload"), map[string]string{"app": "foo"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(m.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(m.Messages))
	}
	if m.Messages[0].Attrs["app"] != "foo" {
		t.Fatalf("expected attr app=foo, got %v", m.Messages[0].Attrs)
	}
}

func TestMockSendDLQMarshalsEnvelope(t *testing.T) {
	m := NewMock()
	type envelope struct {
		Reason string `json:"reason"`
	}
	if err := m.SendDLQ(context.Background(), "https://queue/dlq", envelope{Reason: "rate_limit_dropped"}); err != nil {
		t.Fatalf("send dlq: %v", err)
	}
	var decoded envelope
	if err := json.Unmarshal(m.Messages[0].Body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Reason != "rate_limit_dropped" {
		t.Fatalf("got %q", decoded.Reason)
	}
}

func TestMockSendFailureIsReturned(t *testing.T) {
	m := NewMock()
	m.FailSend = true
	if err := m.Send(context.Background(), "q", nil, nil); err == nil {
		t.Fatal("expected error")
	}
}

func TestMockQueueExistsDefaultsTrue(t *testing.T) {
	m := NewMock()
	exists, err := m.QueueExists(context.Background(), "https://queue/app1")
	if err != nil || !exists {
		t.Fatalf("expected exists=true err=nil, got %v %v", exists, err)
	}
}

func TestMockQueueExistsHonorsNonExistent(t *testing.T) {
	m := NewMock()
	m.NonExistent["https://queue/gone"] = true
	exists, err := m.QueueExists(context.Background(), "https://queue/gone")
	if err != nil || exists {
		t.Fatalf("expected exists=false err=nil, got %v %v", exists, err)
	}
}