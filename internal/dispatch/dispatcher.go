package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/tyrchen/mailflow/internal/mailerr"
	"github.com/tyrchen/mailflow/internal/model"
)

// InboundHandler is satisfied by internal/pipeline's Inbound pipeline.
type InboundHandler interface {
	HandleSesReceive(ctx context.Context, ev SesReceiveEvent) error
	HandleObjectCreated(ctx context.Context, ev ObjectCreatedEvent) error
}

// OutboundHandler is satisfied by internal/pipeline's Outbound pipeline.
type OutboundHandler interface {
	HandleQueueBatch(ctx context.Context, ev QueueBatchEvent) error
}

// DLQSender is the narrow queue capability the dispatcher needs to dead
// letter a permanently failed record.
type DLQSender interface {
	SendDLQ(ctx context.Context, queueURL string, envelope any) error
}

// MetricsSink is the narrow metrics capability the dispatcher drives. Left
// as an interface so tests can assert on call counts without pulling in
// promauto collectors.
type MetricsSink interface {
	IncRecordProcessed(shape string)
	IncRecordFailed(shape, kind string)
}

// noopMetrics satisfies MetricsSink when the dispatcher is built without a
// metrics sink, e.g. in unit tests.
type noopMetrics struct{}

func (noopMetrics) IncRecordProcessed(string)      {}
func (noopMetrics) IncRecordFailed(string, string) {}

// Config configures a Dispatcher.
type Config struct {
	Inbound  InboundHandler
	Outbound OutboundHandler
	DLQ      DLQSender
	DLQURL   string
	Metrics  MetricsSink
	Logger   *slog.Logger
	Now      func() time.Time
}

// Dispatcher classifies and routes one runtime event's records with a
// per-record isolation loop: a single record's failure never aborts the
// batch. A permanent failure is dead-lettered with a sanitized envelope and
// acknowledged; a retriable failure is left unacknowledged for the host
// runtime to redeliver. Either way processing continues with the next
// record.
type Dispatcher struct {
	inbound  InboundHandler
	outbound OutboundHandler
	dlq      DLQSender
	dlqURL   string
	metrics  MetricsSink
	logger   *slog.Logger
	now      func() time.Time
}

// New builds a Dispatcher from cfg, nil-defaulting optional collaborators.
func New(cfg Config) *Dispatcher {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		inbound:  cfg.Inbound,
		outbound: cfg.Outbound,
		dlq:      cfg.DLQ,
		dlqURL:   cfg.DLQURL,
		metrics:  metrics,
		logger:   logger,
		now:      now,
	}
}

// BatchResult summarizes one invocation's batch processing, tracking counts
// rather than free-text messages since each permanent failure has already
// been dead lettered with full detail and each retriable one logged.
type BatchResult struct {
	Processed int
	Failed    int
}

// ProcessBatch runs every record in records through classification and the
// matching handler and does not abort on a single record's failure. A
// permanently failed record is dead lettered; a retriable record that has
// exhausted local retry is left alone for the host runtime's own
// redelivery. The dispatcher always returns a successful acknowledgement
// for the batch as a whole once every record has reached a terminal local
// state, since per-record redelivery is handled by the host runtime, not
// by failing the batch.
func (d *Dispatcher) ProcessBatch(ctx context.Context, records []json.RawMessage) BatchResult {
	var result BatchResult
	for _, record := range records {
		shape, err := classify(record)
		if err == nil {
			err = d.handle(ctx, shape, record)
		}
		if err != nil {
			kind, retriable := classifyError(err)
			if retriable {
				d.logger.WarnContext(ctx, "retriable failure, leaving record for host redelivery",
					slog.String("shape", string(shape)),
					slog.String("kind", kind),
				)
			} else {
				d.deadLetter(ctx, shape, record, err, kind)
			}
			d.metrics.IncRecordFailed(string(shape), kind)
			result.Failed++
			continue
		}
		d.metrics.IncRecordProcessed(string(shape))
		result.Processed++
	}
	return result
}

func (d *Dispatcher) handle(ctx context.Context, shape Shape, record json.RawMessage) error {
	switch shape {
	case ShapeSesReceive:
		ev, err := decodeSesReceive(record)
		if err != nil {
			return err
		}
		return d.inbound.HandleSesReceive(ctx, ev)
	case ShapeObjectCreated:
		ev, err := decodeObjectCreated(record)
		if err != nil {
			return err
		}
		return d.inbound.HandleObjectCreated(ctx, ev)
	case ShapeQueueBatch:
		ev, err := decodeQueueBatch(record)
		if err != nil {
			return err
		}
		return d.outbound.HandleQueueBatch(ctx, ev)
	default:
		return mailerr.New(mailerr.BadEventShape, "record matches no known event shape")
	}
}

// deadLetter wraps a permanently failed record's error into a sanitized
// DLQEnvelope and submits it to the configured DLQ. Only called for
// non-retriable kinds: a retriable error that has exhausted local retry is
// left for the host runtime's own redelivery instead of being dead
// lettered here, so it gets another delivery attempt rather than being
// given up on. A failure to reach the DLQ itself is logged rather than
// propagated: the batch must still acknowledge so the host runtime does
// not redeliver a record mailflow has already given up on classifying or
// processing. mailerr messages are static operator text written by this
// codebase, never interpolated raw addresses or subjects, so no further
// redaction of the message itself is needed here; callers that might embed
// user content in an error are responsible for running it through
// internal/sanitize before wrapping.
func (d *Dispatcher) deadLetter(ctx context.Context, shape Shape, record json.RawMessage, cause error, kind string) {
	envelope := model.DLQEnvelope{
		ErrorKind:    kind,
		ErrorMessage: cause.Error(),
		Retriable:    false,
		Source:       model.InboundMessageSource,
		Handler:      string(shape),
		Timestamp:    d.now(),
	}
	if d.dlqURL == "" || d.dlq == nil {
		d.logger.ErrorContext(ctx, "dropping record, no DLQ configured", slog.String("kind", kind))
		return
	}
	if err := d.dlq.SendDLQ(ctx, d.dlqURL, envelope); err != nil {
		d.logger.ErrorContext(ctx, "failed to dead letter record",
			slog.String("kind", kind),
			slog.String("dlq_error", err.Error()),
		)
	}
}

func classifyError(err error) (kind string, retriable bool) {
	k, ok := mailerr.KindOf(err)
	if !ok {
		return "Unknown", false
	}
	return string(k), k.Retriable()
}
