package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tyrchen/mailflow/internal/dispatch"
	"github.com/tyrchen/mailflow/internal/idempotency"
	"github.com/tyrchen/mailflow/internal/logger"
	"github.com/tyrchen/mailflow/internal/mailerr"
	"github.com/tyrchen/mailflow/internal/mailsender"
	"github.com/tyrchen/mailflow/internal/mimecompose"
	"github.com/tyrchen/mailflow/internal/model"
	"github.com/tyrchen/mailflow/internal/objectstore"
	"github.com/tyrchen/mailflow/internal/queue"
	"github.com/tyrchen/mailflow/internal/retry"
)

var outboundValidator = validator.New()

// OutboundConfig wires an Outbound pipeline's collaborators and tunables.
type OutboundConfig struct {
	Store               objectstore.Store
	Queue               queue.Queue
	Sender              mailsender.Client
	Idempotency         idempotency.Guard
	OutboundQueueURL    string
	IdempotencyTTL      time.Duration
	MaxAttachmentsBytes int64
	MaxComposedBytes    int64
	Retry               retry.Config
	Metrics             OutboundMetrics
	Logger              *slog.Logger
	Now                 func() time.Time
}

// Outbound implements dispatch.OutboundHandler, running the full outbound
// send sequence for a single decoded send request.
type Outbound struct {
	store               objectstore.Store
	queue               queue.Queue
	sender              mailsender.Client
	idempotency         idempotency.Guard
	outboundQueueURL    string
	idempotencyTTL      time.Duration
	maxAttachmentsBytes int64
	maxComposedBytes    int64
	retry               retry.Config
	metrics             OutboundMetrics
	logger              *slog.Logger
	now                 func() time.Time
}

// NewOutbound builds an Outbound pipeline from cfg.
func NewOutbound(cfg OutboundConfig) *Outbound {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopOutboundMetrics{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Outbound{
		store:               cfg.Store,
		queue:               cfg.Queue,
		sender:              cfg.Sender,
		idempotency:         cfg.Idempotency,
		outboundQueueURL:    cfg.OutboundQueueURL,
		idempotencyTTL:      cfg.IdempotencyTTL,
		maxAttachmentsBytes: cfg.MaxAttachmentsBytes,
		maxComposedBytes:    cfg.MaxComposedBytes,
		retry:               cfg.Retry,
		metrics:             metrics,
		logger:              log,
		now:                 now,
	}
}

// HandleQueueBatch decodes, sends, and acknowledges one outbound record.
func (p *Outbound) HandleQueueBatch(ctx context.Context, ev dispatch.QueueBatchEvent) error {
	start := p.now()

	var msg model.OutboundMessage
	if err := json.Unmarshal([]byte(ev.Body), &msg); err != nil {
		return mailerr.Wrap(mailerr.BadMessageFormat, err, "decode outbound message")
	}
	if err := outboundValidator.Struct(&msg); err != nil {
		return mailerr.Wrap(mailerr.BadMessageFormat, err, "validate outbound message")
	}

	ctx = logger.SetCorrelationID(ctx, msg.CorrelationID)
	log := logger.WithCorrelationID(ctx, p.logger)

	status, err := p.idempotency.Reserve(ctx, msg.CorrelationID, p.idempotencyTTL)
	if err != nil {
		return err
	}
	switch status {
	case idempotency.Completed:
		p.metrics.IncDuplicateDropped()
		log.InfoContext(ctx, "dropping already-sent outbound message")
		return p.deleteSource(ctx, ev)
	case idempotency.Pending:
		p.metrics.IncDuplicateDropped()
		log.InfoContext(ctx, "outbound message reservation already in flight, leaving for redelivery")
		return nil
	}

	verified, err := p.sender.IsVerified(ctx, msg.From)
	if err != nil {
		return err
	}
	if !verified {
		return mailerr.New(mailerr.UnverifiedSender, "from address is not a verified sending identity")
	}

	fetched, err := p.fetchAttachments(ctx, msg.Attachments)
	if err != nil {
		return err
	}

	raw, err := mimecompose.Compose(msg, fetched, p.maxComposedBytes)
	if err != nil {
		return err
	}

	if err := retry.Do(ctx, p.retry, func(ctx context.Context) error {
		return p.sender.Send(ctx, msg.From, msg.To, raw)
	}); err != nil {
		return err
	}

	if err := p.idempotency.Complete(ctx, msg.CorrelationID); err != nil {
		return err
	}

	if err := p.deleteSource(ctx, ev); err != nil {
		log.ErrorContext(ctx, "failed to delete processed outbound record", slog.String("error", err.Error()))
		p.metrics.IncDeleteFailed()
	}

	p.metrics.IncEmailsSent()
	p.metrics.ObserveLatency(p.now().Sub(start))
	return nil
}

// fetchAttachments downloads every referenced attachment, rejecting once
// the running total crosses the send-size ceiling rather than after
// fetching everything.
func (p *Outbound) fetchAttachments(ctx context.Context, refs []model.OutboundAttachmentRef) ([]mimecompose.Attachment, error) {
	fetched := make([]mimecompose.Attachment, len(refs))
	var total int64
	for i, ref := range refs {
		var data []byte
		if err := retry.Do(ctx, p.retry, func(ctx context.Context) error {
			d, err := p.store.Get(ctx, ref.StorageBucket, ref.StorageKey)
			if err != nil {
				return err
			}
			data = d
			return nil
		}); err != nil {
			return nil, err
		}
		total += int64(len(data))
		if total > p.maxAttachmentsBytes {
			return nil, mailerr.New(mailerr.AttachmentsTooLarge, fmt.Sprintf("attachments total %d bytes exceeds %d byte ceiling", total, p.maxAttachmentsBytes))
		}
		fetched[i] = mimecompose.Attachment{Ref: ref, Data: data}
	}
	return fetched, nil
}

// deleteSource removes the outbound record once it has been sent and
// idempotency-committed, or once it is recognized as an already-completed
// duplicate, returning any deletion error. After a fresh send the caller
// logs and metrics that error rather than propagating it: idempotency
// already guarantees a redelivered copy will be suppressed, so failing the
// batch over it would gain nothing. For a completed duplicate the error is
// returned to the dispatcher.
func (p *Outbound) deleteSource(ctx context.Context, ev dispatch.QueueBatchEvent) error {
	if ev.ReceiptHandle == "" {
		return nil
	}
	return retry.Do(ctx, p.retry, func(ctx context.Context) error {
		return p.queue.Delete(ctx, p.outboundQueueURL, ev.ReceiptHandle)
	})
}
