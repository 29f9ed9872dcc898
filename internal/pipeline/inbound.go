package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tyrchen/mailflow/internal/attachment"
	"github.com/tyrchen/mailflow/internal/dispatch"
	"github.com/tyrchen/mailflow/internal/logger"
	"github.com/tyrchen/mailflow/internal/mailerr"
	"github.com/tyrchen/mailflow/internal/mimeparse"
	"github.com/tyrchen/mailflow/internal/model"
	"github.com/tyrchen/mailflow/internal/objectstore"
	"github.com/tyrchen/mailflow/internal/queue"
	"github.com/tyrchen/mailflow/internal/ratelimit"
	"github.com/tyrchen/mailflow/internal/retry"
	"github.com/tyrchen/mailflow/internal/routing"
	"github.com/tyrchen/mailflow/internal/security"
)

// InboundConfig wires an Inbound pipeline's collaborators and tunables.
type InboundConfig struct {
	Store         objectstore.Store
	Queue         queue.Queue
	Attachments   *attachment.Processor
	Limiter       ratelimit.Limiter
	Security      security.Policy
	Routing       model.RoutingTable
	ParserOptions mimeparse.Options
	MaxEmailBytes int64
	Retry         retry.Config
	Metrics       InboundMetrics
	Logger        *slog.Logger
	Now           func() time.Time
	NewID         func() string
}

// Inbound implements dispatch.InboundHandler, running the full inbound
// sequence for both SesReceive and ObjectCreated records through a shared
// core.
type Inbound struct {
	store         objectstore.Store
	queue         queue.Queue
	attachments   *attachment.Processor
	limiter       ratelimit.Limiter
	security      security.Policy
	routing       model.RoutingTable
	parserOptions mimeparse.Options
	maxEmailBytes int64
	retry         retry.Config
	metrics       InboundMetrics
	logger        *slog.Logger
	now           func() time.Time
	newID         func() string
}

// NewInbound builds an Inbound pipeline from cfg, defaulting optional
// collaborators the way internal/dispatch.New does.
func NewInbound(cfg InboundConfig) *Inbound {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopInboundMetrics{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() string { return uuid.New().String() }
	}
	return &Inbound{
		store:         cfg.Store,
		queue:         cfg.Queue,
		attachments:   cfg.Attachments,
		limiter:       cfg.Limiter,
		security:      cfg.Security,
		routing:       cfg.Routing,
		parserOptions: cfg.ParserOptions,
		maxEmailBytes: cfg.MaxEmailBytes,
		retry:         cfg.Retry,
		metrics:       metrics,
		logger:        log,
		now:           now,
		newID:         newID,
	}
}

// HandleSesReceive runs the inbound pipeline for a record delivered
// directly by the mail transport, carrying SES verdicts and an explicit
// recipient list.
func (p *Inbound) HandleSesReceive(ctx context.Context, ev dispatch.SesReceiveEvent) error {
	if ev.BucketName == "" || ev.ObjectKey == "" {
		return mailerr.New(mailerr.MissingObjectReference, "ses receipt action is missing bucket or object key")
	}
	return p.run(ctx, ev.BucketName, ev.ObjectKey, ev.Recipients, ev.Verdicts)
}

// HandleObjectCreated runs the inbound pipeline for a record describing a
// raw object that appeared in storage without passing through the mail
// transport's own receipt notification. No SES verdicts are available;
// the recipient list is derived from the parsed message's own To addresses
// once downloaded, since an object-store notification carries no envelope
// recipients of its own.
func (p *Inbound) HandleObjectCreated(ctx context.Context, ev dispatch.ObjectCreatedEvent) error {
	return p.run(ctx, ev.BucketName, ev.ObjectKey, nil, model.SecurityVerdicts{})
}

func (p *Inbound) run(ctx context.Context, bucket, key string, sesRecipients []string, verdicts model.SecurityVerdicts) error {
	start := p.now()
	correlationID := p.newID()
	ctx = logger.SetCorrelationID(ctx, correlationID)

	size, found, err := p.store.HeadSize(ctx, bucket, key)
	if err != nil {
		return err
	}
	if !found {
		return mailerr.New(mailerr.MissingObjectReference, "raw object does not exist in storage")
	}
	if size > p.maxEmailBytes {
		return mailerr.New(mailerr.EmailTooLarge, fmt.Sprintf("raw object is %d bytes, exceeds %d byte ceiling", size, p.maxEmailBytes))
	}

	var raw []byte
	if err := retry.Do(ctx, p.retry, func(ctx context.Context) error {
		data, err := p.store.Get(ctx, bucket, key)
		if err != nil {
			return err
		}
		raw = data
		return nil
	}); err != nil {
		return err
	}

	parsed, err := mimeparse.Parse(raw, p.parserOptions)
	if err != nil {
		return err
	}

	if err := security.Validate(parsed.From.Address, verdicts, p.security); err != nil {
		return err
	}

	if err := p.limiter.Allow(ctx, parsed.From.Address); err != nil {
		return err
	}

	attachmentMeta, err := p.attachments.Process(ctx, parsed.MessageID, parsed.Attachments)
	if err != nil {
		return err
	}

	bodyHTML := parsed.BodyHTML
	if parsed.HasHTML {
		bodyHTML = sanitizeInboundHTML(bodyHTML)
	}

	recipients := sesRecipients
	if len(recipients) == 0 {
		recipients = addressStrings(parsed.To)
	}
	targets := routing.Resolve(recipients, p.routing)
	if len(targets) == 0 {
		targets = []model.RoutingTarget{{App: "default", QueueURL: p.routing.DefaultQueueURL}}
	}

	for _, target := range targets {
		exists, err := p.queue.QueueExists(ctx, target.QueueURL)
		if err != nil {
			return err
		}
		if !exists {
			return mailerr.New(mailerr.RoutingQueueMissing, fmt.Sprintf("queue for app %q does not exist", target.App))
		}
	}

	email := model.InboundEmail{
		MessageID:   parsed.MessageID,
		From:        parsed.From,
		To:          parsed.To,
		Cc:          parsed.Cc,
		Bcc:         parsed.Bcc,
		Subject:     parsed.Subject,
		Date:        parsed.Date,
		Headers:     threadingHeaders(parsed.Headers),
		Body:        model.InboundBody{Text: parsed.BodyText, HTML: bodyHTML},
		Attachments: attachmentMeta,
	}

	for _, target := range targets {
		msg := model.InboundMessage{
			Version:       model.InboundMessageVersion,
			CorrelationID: correlationID,
			Timestamp:     start,
			Source:        model.InboundMessageSource,
			App:           target.App,
			Email:         email,
			Security:      verdicts,
			Metadata: model.InboundMetadata{
				S3Bucket:   bucket,
				S3Key:      key,
				SizeBytes:  size,
				ReceivedAt: start,
			},
		}
		body, err := json.Marshal(msg)
		if err != nil {
			return mailerr.Wrap(mailerr.BadMessageFormat, err, "marshal inbound message")
		}
		if err := retry.Do(ctx, p.retry, func(ctx context.Context) error {
			return p.queue.Send(ctx, target.QueueURL, body, nil)
		}); err != nil {
			return err
		}
		p.metrics.IncRoutingDecision(target.App)
	}

	p.metrics.IncEmailsReceived()
	for _, meta := range attachmentMeta {
		p.metrics.IncAttachmentProcessed(string(meta.Status))
	}
	p.metrics.ObserveLatency(p.now().Sub(start))

	logger.WithCorrelationID(ctx, p.logger).InfoContext(ctx, "inbound message processed",
		slog.Int("targets", len(targets)),
		slog.Int("attachments", len(attachmentMeta)),
	)

	return nil
}

func addressStrings(addrs []model.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}

// threadingHeaders extracts the two threading headers the wire shape names
// explicitly; every other header captured by the parser stays internal to
// this pipeline rather than round-tripping onto the app queue.
func threadingHeaders(headers map[string][]string) map[string]any {
	out := map[string]any{}
	if values, ok := headers["In-Reply-To"]; ok && len(values) > 0 {
		if v := strings.Trim(values[0], "<> \t"); v != "" {
			out["in_reply_to"] = v
		}
	}
	if values, ok := headers["References"]; ok && len(values) > 0 {
		if refs := strings.Fields(values[0]); len(refs) > 0 {
			out["references"] = refs
		}
	}
	return out
}
