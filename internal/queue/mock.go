package queue

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tyrchen/mailflow/internal/mailerr"
)

// Sent records a single message handed to the mock queue, for assertions in
// dispatcher and pipeline tests.
type Sent struct {
	QueueURL string
	Body     []byte
	Attrs    map[string]string
}

// Mock is an in-memory Queue that records every send instead of submitting
// to SQS.
type Mock struct {
	mu          sync.Mutex
	Messages    []Sent
	Deleted     []string // receipt handles passed to Delete
	FailSend    bool
	FailDelete  bool
	NonExistent map[string]bool // queue URLs QueueExists should report missing
}

// NewMock returns an empty mock queue. Every queue URL is treated as
// existing unless added to NonExistent.
func NewMock() *Mock {
	return &Mock{NonExistent: make(map[string]bool)}
}

func (m *Mock) Send(ctx context.Context, queueURL string, body []byte, attrs map[string]string) error {
	if m.FailSend {
		return mailerr.New(mailerr.QueueUnavailable, "mock send failure")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, Sent{QueueURL: queueURL, Body: body, Attrs: attrs})
	return nil
}

func (m *Mock) SendDLQ(ctx context.Context, queueURL string, envelope any) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return mailerr.Wrap(mailerr.BadMessageFormat, err, "marshal dlq envelope")
	}
	return m.Send(ctx, queueURL, body, nil)
}

func (m *Mock) QueueExists(ctx context.Context, queueURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.NonExistent[queueURL], nil
}

func (m *Mock) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	if m.FailDelete {
		return mailerr.New(mailerr.QueueUnavailable, "mock delete failure")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deleted = append(m.Deleted, receiptHandle)
	return nil
}
