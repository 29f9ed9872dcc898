// Package model holds the wire and in-memory shapes that flow through the
// dispatcher: parsed emails, attachment metadata, and the inbound/outbound
// queue message envelopes.
package model

import "time"

// Address is an email address with an optional display name.
type Address struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Disposition classifies how a MIME part was attached to its message.
type Disposition string

const (
	DispositionAttachment Disposition = "attachment"
	DispositionInline     Disposition = "inline"
)

// AttachmentStatus is the terminal state of an attachment after processing.
type AttachmentStatus string

const (
	AttachmentAvailable AttachmentStatus = "available"
	AttachmentFailed    AttachmentStatus = "failed"
)

// AttachmentRaw is an in-memory attachment as extracted by the MIME parser,
// before it has been validated, sanitized, or uploaded anywhere.
type AttachmentRaw struct {
	OriginalFilename     string
	DeclaredContentType  string
	Bytes                []byte
	Disposition          Disposition
	ContentID            string
}

// AttachmentMetadata is the externalized, serializable form of an attachment
// once the attachment processor has run. It is what travels on the wire
// inside an InboundMessage.
type AttachmentMetadata struct {
	OriginalFilename      string           `json:"original_filename"`
	SanitizedFilename     string           `json:"sanitized_filename"`
	ContentType           string           `json:"content_type"`
	SizeBytes             int64            `json:"size_bytes"`
	StorageBucket         string           `json:"storage_bucket"`
	StorageKey            string           `json:"storage_key"`
	PresignedURL          string           `json:"presigned_url"`
	PresignedURLExpiresAt time.Time        `json:"presigned_url_expires_at"`
	ChecksumMD5           string           `json:"checksum_md5"`
	Status                AttachmentStatus `json:"status"`
	Error                 string           `json:"error,omitempty"`
}

// ParsedEmail is the output of the MIME parser: a fully decoded message with
// attachments still in raw, in-memory form.
type ParsedEmail struct {
	MessageID   string
	From        Address
	To          []Address
	Cc          []Address
	Bcc         []Address
	Subject     string
	Date        time.Time
	Headers     map[string][]string
	BodyText    string
	HasText     bool
	BodyHTML    string
	HasHTML     bool
	Attachments []AttachmentRaw
	SizeBytes   int64
}

// SecurityVerdicts carries the upstream authentication/scanning results for
// an inbound message, when the triggering event supplies them.
type SecurityVerdicts struct {
	SPF       string  `json:"spf"`
	DKIM      string  `json:"dkim"`
	DMARC     string  `json:"dmarc"`
	Virus     string  `json:"virus"`
	Spam      string  `json:"spam"`
	SpamScore float64 `json:"spam_score"`
	Present   bool    `json:"-"`
}

// VerdictPass is the status string an upstream verdict reports on success.
const VerdictPass = "PASS"

// VerdictFail is the status string an upstream verdict reports on failure.
const VerdictFail = "FAIL"

// InboundBody carries the optional text/html bodies of a message.
type InboundBody struct {
	Text string `json:"text,omitempty"`
	HTML string `json:"html,omitempty"`
}

// InboundEmail is the flattened, wire-ready form of a ParsedEmail: addresses
// stay structured, attachments are metadata rather than raw bytes.
type InboundEmail struct {
	MessageID   string              `json:"messageId"`
	From        Address             `json:"from"`
	To          []Address           `json:"to"`
	Cc          []Address           `json:"cc"`
	Bcc         []Address           `json:"bcc"`
	Subject     string              `json:"subject"`
	Date        time.Time           `json:"date"`
	Headers     map[string]any      `json:"headers"`
	Body        InboundBody         `json:"body"`
	Attachments []AttachmentMetadata `json:"attachments"`
}

// InboundMetadata records where the raw object came from and when it
// arrived, for downstream audit purposes.
type InboundMetadata struct {
	S3Bucket   string    `json:"s3_bucket"`
	S3Key      string    `json:"s3_key"`
	SizeBytes  int64     `json:"size_bytes"`
	ReceivedAt time.Time `json:"received_at"`
}

// InboundMessage is the JSON payload enqueued onto an application queue.
// Its shape is wire-frozen; field order and names must not change.
type InboundMessage struct {
	Version       string           `json:"version"`
	CorrelationID string           `json:"correlationId"`
	Timestamp     time.Time        `json:"timestamp"`
	Source        string           `json:"source"`
	App           string           `json:"app"`
	Email         InboundEmail     `json:"email"`
	Security      SecurityVerdicts `json:"security"`
	Metadata      InboundMetadata  `json:"metadata"`
}

// InboundMessageVersion is the constant version tag on every InboundMessage.
const InboundMessageVersion = "1.0"

// InboundMessageSource is the constant source tag on every InboundMessage.
const InboundMessageSource = "mailflow"

// OutboundAttachmentRef points an OutboundMessage at a pre-existing object
// in storage rather than carrying attachment bytes inline.
type OutboundAttachmentRef struct {
	StorageBucket    string `json:"storage_bucket"`
	StorageKey       string `json:"storage_key"`
	OriginalFilename string `json:"original_filename" validate:"required"`
	ContentType      string `json:"content_type" validate:"required"`
}

// OutboundMessage is the JSON payload read from the outbound queue,
// describing a message mailflow should compose and send.
type OutboundMessage struct {
	CorrelationID string                  `json:"correlation_id" validate:"required"`
	From          string                  `json:"from" validate:"required,email"`
	To            []string                `json:"to" validate:"required,min=1,dive,email"`
	Cc            []string                `json:"cc,omitempty" validate:"omitempty,dive,email"`
	Bcc           []string                `json:"bcc,omitempty" validate:"omitempty,dive,email"`
	Subject       string                  `json:"subject"`
	Body          InboundBody             `json:"body"`
	Attachments   []OutboundAttachmentRef `json:"attachments,omitempty" validate:"omitempty,dive"`
	Headers       map[string]string       `json:"headers,omitempty"`
	ReplyTo       string                  `json:"reply_to,omitempty" validate:"omitempty,email"`
}

// RoutingRule describes one application's queue and the aliases that also
// resolve to it.
type RoutingRule struct {
	QueueURL string
	Aliases  []string
}

// RoutingTable maps canonical app names to their routing rule. The zero
// value is an empty table (everything falls to the default queue).
type RoutingTable struct {
	Apps            map[string]RoutingRule
	DefaultQueueURL string
	Prefix          string // local-part prefix that marks a recipient as routable; default "_"
}

// RoutingTarget is a resolved (app, queue) pair produced by the routing
// engine.
type RoutingTarget struct {
	App      string
	QueueURL string
}

// DLQEnvelope is the structurally-sanitized record written to the dead
// letter queue when a record fails with a permanent error kind. A
// retriable error that exhausts local retry is never wrapped in one of
// these: it is left for the host runtime's own redelivery instead.
type DLQEnvelope struct {
	ErrorKind    string            `json:"error_kind"`
	ErrorMessage string            `json:"error_message"`
	Retriable    bool              `json:"retriable"`
	Source       string            `json:"source"`
	Handler      string            `json:"handler"`
	Timestamp    time.Time         `json:"timestamp"`
	Context      map[string]string `json:"context,omitempty"`
}