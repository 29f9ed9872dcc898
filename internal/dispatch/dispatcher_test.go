package dispatch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tyrchen/mailflow/internal/mailerr"
	"github.com/tyrchen/mailflow/internal/queue"
)

type stubInbound struct {
	sesErr    error
	objErr    error
	sesCalls  int
	objCalls  int
	lastSesEv SesReceiveEvent
}

func (s *stubInbound) HandleSesReceive(ctx context.Context, ev SesReceiveEvent) error {
	s.sesCalls++
	s.lastSesEv = ev
	return s.sesErr
}

func (s *stubInbound) HandleObjectCreated(ctx context.Context, ev ObjectCreatedEvent) error {
	s.objCalls++
	return s.objErr
}

type stubOutbound struct {
	calls int
	err   error
}

func (s *stubOutbound) HandleQueueBatch(ctx context.Context, ev QueueBatchEvent) error {
	s.calls++
	return s.err
}

func fixedClock() time.Time { return time.Unix(1_700_000_000, 0) }

func TestClassifySesReceive(t *testing.T) {
	raw := json.RawMessage(`{"eventSource":"aws:ses","ses":{"mail":{"messageId":"m1","source":"a@b.com","destination":["x@y.com"]},"receipt":{"recipients":["x@y.com"],"action":{"type":"S3","bucketName":"raw","objectKey":"k1"}}}}`)
	shape, err := classify(raw)
	if err != nil || shape != ShapeSesReceive {
		t.Fatalf("got shape=%v err=%v", shape, err)
	}
}

func TestClassifyObjectCreated(t *testing.T) {
	raw := json.RawMessage(`{"s3":{"bucket":{"name":"raw"},"object":{"key":"k1","size":100}}}`)
	shape, err := classify(raw)
	if err != nil || shape != ShapeObjectCreated {
		t.Fatalf("got shape=%v err=%v", shape, err)
	}
}

func TestClassifyQueueBatch(t *testing.T) {
	raw := json.RawMessage(`{"receiptHandle":"rh1","body":"{}","messageId":"m1"}`)
	shape, err := classify(raw)
	if err != nil || shape != ShapeQueueBatch {
		t.Fatalf("got shape=%v err=%v", shape, err)
	}
}

func TestClassifyUnclassified(t *testing.T) {
	raw := json.RawMessage(`{"unrelated":"field"}`)
	shape, err := classify(raw)
	if err != nil || shape != ShapeUnclassified {
		t.Fatalf("got shape=%v err=%v", shape, err)
	}
}

func TestDecodeSesReceivePreservesVerdictsAndAction(t *testing.T) {
	raw := json.RawMessage(`{"eventSource":"aws:ses","ses":{"mail":{"messageId":"m1","source":"a@b.com","destination":["x@y.com"]},"receipt":{"recipients":["x@y.com"],"spfVerdict":{"status":"PASS"},"dkimVerdict":{"status":"PASS"},"action":{"type":"S3","bucketName":"raw","objectKey":"k1"}}}}`)
	ev, err := decodeSesReceive(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.BucketName != "raw" || ev.ObjectKey != "k1" {
		t.Fatalf("got %+v", ev)
	}
	if !ev.Verdicts.Present || ev.Verdicts.SPF != "PASS" || ev.Verdicts.DKIM != "PASS" {
		t.Fatalf("expected present verdicts, got %+v", ev.Verdicts)
	}
}

func TestProcessBatchContinuesAfterPerRecordFailure(t *testing.T) {
	inbound := &stubInbound{sesErr: mailerr.New(mailerr.EmailTooLarge, "too big")}
	outbound := &stubOutbound{}
	dlq := queue.NewMock()

	d := New(Config{Inbound: inbound, Outbound: outbound, DLQ: dlq, DLQURL: "https://queue/dlq", Now: fixedClock})

	records := []json.RawMessage{
		json.RawMessage(`{"eventSource":"aws:ses","ses":{"mail":{"messageId":"m1","source":"a@b.com","destination":["x@y.com"]},"receipt":{"recipients":["x@y.com"],"action":{"type":"S3","bucketName":"raw","objectKey":"k1"}}}}`),
		json.RawMessage(`{"receiptHandle":"rh1","body":"{}","messageId":"m2"}`),
	}

	result := d.ProcessBatch(context.Background(), records)
	if result.Failed != 1 || result.Processed != 1 {
		t.Fatalf("got %+v", result)
	}
	if outbound.calls != 1 {
		t.Fatalf("expected outbound handler to still run, got %d calls", outbound.calls)
	}
	if len(dlq.Messages) != 1 {
		t.Fatalf("expected 1 dead-lettered record, got %d", len(dlq.Messages))
	}
}

func TestProcessBatchLeavesRetriableFailureForRedeliveryInsteadOfDLQ(t *testing.T) {
	inbound := &stubInbound{sesErr: mailerr.New(mailerr.StorageUnavailable, "s3 put failed")}
	outbound := &stubOutbound{}
	dlq := queue.NewMock()

	d := New(Config{Inbound: inbound, Outbound: outbound, DLQ: dlq, DLQURL: "https://queue/dlq", Now: fixedClock})

	records := []json.RawMessage{
		json.RawMessage(`{"eventSource":"aws:ses","ses":{"mail":{"messageId":"m1","source":"a@b.com","destination":["x@y.com"]},"receipt":{"recipients":["x@y.com"],"action":{"type":"S3","bucketName":"raw","objectKey":"k1"}}}}`),
	}

	result := d.ProcessBatch(context.Background(), records)
	if result.Failed != 1 {
		t.Fatalf("expected 1 failure, got %+v", result)
	}
	if len(dlq.Messages) != 0 {
		t.Fatalf("expected retriable failure to skip DLQ, got %d messages", len(dlq.Messages))
	}
}

func TestProcessBatchDeadLettersUnclassifiedRecord(t *testing.T) {
	inbound := &stubInbound{}
	outbound := &stubOutbound{}
	dlq := queue.NewMock()
	d := New(Config{Inbound: inbound, Outbound: outbound, DLQ: dlq, DLQURL: "https://queue/dlq", Now: fixedClock})

	result := d.ProcessBatch(context.Background(), []json.RawMessage{json.RawMessage(`{"nonsense":true}`)})
	if result.Failed != 1 {
		t.Fatalf("expected 1 failure, got %+v", result)
	}
	if inbound.sesCalls != 0 || inbound.objCalls != 0 || outbound.calls != 0 {
		t.Fatal("no handler should have been invoked for an unclassified record")
	}
	if len(dlq.Messages) != 1 {
		t.Fatalf("expected unclassified record dead lettered, got %d DLQ messages", len(dlq.Messages))
	}
}
