package dispatch

import (
	"encoding/json"

	"github.com/tyrchen/mailflow/internal/mailerr"
)

// wireSesReceive mirrors the AWS SES receipt event record shape exactly;
// field names are case-sensitive on the wire and are not renamed here.
type wireSesReceive struct {
	EventSource string `json:"eventSource"`
	SES         struct {
		Mail struct {
			MessageID   string   `json:"messageId"`
			Source      string   `json:"source"`
			Destination []string `json:"destination"`
		} `json:"mail"`
		Receipt struct {
			Recipients  []string `json:"recipients"`
			SPFVerdict  *Verdict `json:"spfVerdict"`
			DKIMVerdict *Verdict `json:"dkimVerdict"`
			DMARCVerdict *Verdict `json:"dmarcVerdict"`
			SpamVerdict *Verdict `json:"spamVerdict"`
			VirusVerdict *Verdict `json:"virusVerdict"`
			Action      struct {
				Type       string `json:"type"`
				BucketName string `json:"bucketName"`
				ObjectKey  string `json:"objectKey"`
			} `json:"action"`
		} `json:"receipt"`
	} `json:"ses"`
}

type wireObjectCreated struct {
	S3 struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key  string `json:"key"`
			Size int64  `json:"size"`
		} `json:"object"`
	} `json:"s3"`
}

type wireQueueBatch struct {
	ReceiptHandle string            `json:"receiptHandle"`
	Body          string            `json:"body"`
	MessageID     string            `json:"messageId"`
	Attributes    map[string]string `json:"attributes"`
}

// classify inspects the most specific marker first: eventSource ==
// "aws:ses" beats an "s3" sub-object, which beats a bare "receiptHandle".
// A record that matches none is unclassified and is a fatal parse error.
func classify(raw json.RawMessage) (Shape, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ShapeUnclassified, mailerr.Wrap(mailerr.BadEventShape, err, "record is not a JSON object")
	}

	if es, ok := probe["eventSource"]; ok {
		var source string
		if err := json.Unmarshal(es, &source); err == nil && source == "aws:ses" {
			if _, hasSES := probe["ses"]; hasSES {
				return ShapeSesReceive, nil
			}
		}
	}
	if _, ok := probe["s3"]; ok {
		var s3 wireObjectCreated
		if err := json.Unmarshal(raw, &s3); err == nil && s3.S3.Bucket.Name != "" && s3.S3.Object.Key != "" {
			return ShapeObjectCreated, nil
		}
	}
	if _, ok := probe["receiptHandle"]; ok {
		return ShapeQueueBatch, nil
	}
	return ShapeUnclassified, nil
}

// decodeSesReceive parses a record already classified as ShapeSesReceive.
func decodeSesReceive(raw json.RawMessage) (SesReceiveEvent, error) {
	var w wireSesReceive
	if err := json.Unmarshal(raw, &w); err != nil {
		return SesReceiveEvent{}, mailerr.Wrap(mailerr.BadEventShape, err, "malformed SesReceive record")
	}
	ev := SesReceiveEvent{
		MessageID:    w.SES.Mail.MessageID,
		Source:       w.SES.Mail.Source,
		Destinations: w.SES.Mail.Destination,
		Recipients:   w.SES.Receipt.Recipients,
		BucketName:   w.SES.Receipt.Action.BucketName,
		ObjectKey:    w.SES.Receipt.Action.ObjectKey,
	}
	r := w.SES.Receipt
	if r.SPFVerdict != nil || r.DKIMVerdict != nil || r.DMARCVerdict != nil || r.SpamVerdict != nil || r.VirusVerdict != nil {
		ev.Verdicts.Present = true
		ev.Verdicts.SPF = verdictStatus(r.SPFVerdict)
		ev.Verdicts.DKIM = verdictStatus(r.DKIMVerdict)
		ev.Verdicts.DMARC = verdictStatus(r.DMARCVerdict)
		ev.Verdicts.Spam = verdictStatus(r.SpamVerdict)
		ev.Verdicts.Virus = verdictStatus(r.VirusVerdict)
	}
	return ev, nil
}

func verdictStatus(v *Verdict) string {
	if v == nil {
		return ""
	}
	return v.Status
}

// decodeObjectCreated parses a record already classified as
// ShapeObjectCreated.
func decodeObjectCreated(raw json.RawMessage) (ObjectCreatedEvent, error) {
	var w wireObjectCreated
	if err := json.Unmarshal(raw, &w); err != nil {
		return ObjectCreatedEvent{}, mailerr.Wrap(mailerr.BadEventShape, err, "malformed ObjectCreated record")
	}
	return ObjectCreatedEvent{
		BucketName: w.S3.Bucket.Name,
		ObjectKey:  w.S3.Object.Key,
		SizeHint:   w.S3.Object.Size,
	}, nil
}

// decodeQueueBatch parses a record already classified as ShapeQueueBatch.
func decodeQueueBatch(raw json.RawMessage) (QueueBatchEvent, error) {
	var w wireQueueBatch
	if err := json.Unmarshal(raw, &w); err != nil {
		return QueueBatchEvent{}, mailerr.Wrap(mailerr.BadEventShape, err, "malformed QueueBatch record")
	}
	return QueueBatchEvent{
		ReceiptHandle: w.ReceiptHandle,
		Body:          w.Body,
		MessageID:     w.MessageID,
		Attributes:    w.Attributes,
	}, nil
}
