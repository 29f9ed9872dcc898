// Package dispatch classifies a runtime event's records into one of the
// three shapes mailflow understands and drives per-record, error-isolated
// processing.
package dispatch

import "github.com/tyrchen/mailflow/internal/model"

// Shape identifies which of the three disjoint event record shapes a raw
// record was classified as.
type Shape string

const (
	ShapeSesReceive    Shape = "SesReceive"
	ShapeObjectCreated Shape = "ObjectCreated"
	ShapeQueueBatch    Shape = "QueueBatch"
	ShapeUnclassified  Shape = "Unclassified"
)

// Verdict is a single upstream authentication/scanning status.
type Verdict struct {
	Status string `json:"status"`
}

// SesReceiveEvent is the decoded form of an "aws:ses" event source record.
type SesReceiveEvent struct {
	MessageID    string
	Source       string
	Destinations []string
	Recipients   []string
	BucketName   string
	ObjectKey    string
	Verdicts     model.SecurityVerdicts
}

// ObjectCreatedEvent is the decoded form of a direct object-store
// notification record, carrying no SES verdicts.
type ObjectCreatedEvent struct {
	BucketName string
	ObjectKey  string
	SizeHint   int64
}

// QueueBatchEvent is the decoded form of a queue-delivered record destined
// for the outbound pipeline. The source queue URL is not a per-record
// field on the wire shape; the outbound pipeline is constructed already
// knowing it, since mailflow only ever consumes one outbound queue.
type QueueBatchEvent struct {
	ReceiptHandle string
	Body          string
	MessageID     string
	Attributes    map[string]string
}
