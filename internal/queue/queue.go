// Package queue wraps the SQS client used to fan inbound messages out to app
// queues, delete processed outbound records, and dead-letter rejected
// messages, following the AWS SDK v2 client
// construction idiom the source uses for its S3 client.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/tyrchen/mailflow/internal/config"
	"github.com/tyrchen/mailflow/internal/mailerr"
)

// Queue is the message submission seam consumed by the dispatcher and
// pipelines.
type Queue interface {
	Send(ctx context.Context, queueURL string, body []byte, attrs map[string]string) error
	SendDLQ(ctx context.Context, queueURL string, envelope any) error
	// QueueExists validates a routing target before the pipeline enqueues
	// to it, per the routing step's "get_attributes, cached" requirement.
	QueueExists(ctx context.Context, queueURL string) (bool, error)
	// Delete removes the source record after a successful outbound send, so
	// a redelivered copy is never double-processed.
	Delete(ctx context.Context, queueURL, receiptHandle string) error
}

// Client is the SQS-backed implementation of Queue. Existence checks are
// cached for the lifetime of the client, since a queue's existence is
// stable for the life of a worker process and repeated GetQueueAttributes
// calls would otherwise cost a round trip per routed recipient.
type Client struct {
	sqs *sqs.Client

	mu          sync.RWMutex
	existsCache map[string]bool
}

// New builds a Client using static credentials, with an SQS-specific
// endpoint override for local development against a queue emulator.
func New(cfg config.QueueConfig, accessKeyID, secretAccessKey string) *Client {
	opts := sqs.Options{
		Region: cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"",
		),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return &Client{sqs: sqs.New(opts), existsCache: make(map[string]bool)}
}

// Send submits body as a message to queueURL with the given message
// attributes, used for fan-out to app queues and by SendDLQ.
func (c *Client) Send(ctx context.Context, queueURL string, body []byte, attrs map[string]string) error {
	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
	}
	if len(attrs) > 0 {
		input.MessageAttributes = make(map[string]types.MessageAttributeValue, len(attrs))
		for k, v := range attrs {
			input.MessageAttributes[k] = types.MessageAttributeValue{
				DataType:    aws.String("String"),
				StringValue: aws.String(v),
			}
		}
	}
	if _, err := c.sqs.SendMessage(ctx, input); err != nil {
		return mailerr.Wrap(mailerr.QueueUnavailable, err, fmt.Sprintf("send to %s", queueURL))
	}
	return nil
}

// QueueExists reports whether queueURL resolves to a real queue, caching
// positive and negative results so a batch with many recipients routed to
// the same app only pays for one round trip.
func (c *Client) QueueExists(ctx context.Context, queueURL string) (bool, error) {
	c.mu.RLock()
	if exists, cached := c.existsCache[queueURL]; cached {
		c.mu.RUnlock()
		return exists, nil
	}
	c.mu.RUnlock()

	_, err := c.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		var notFound *types.QueueDoesNotExist
		if errors.As(err, &notFound) {
			c.mu.Lock()
			c.existsCache[queueURL] = false
			c.mu.Unlock()
			return false, nil
		}
		return false, mailerr.Wrap(mailerr.QueueUnavailable, err, fmt.Sprintf("check existence of %s", queueURL))
	}

	c.mu.Lock()
	c.existsCache[queueURL] = true
	c.mu.Unlock()
	return true, nil
}

// Delete acknowledges a processed queue record by its receipt handle.
func (c *Client) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	_, err := c.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return mailerr.Wrap(mailerr.QueueUnavailable, err, fmt.Sprintf("delete from %s", queueURL))
	}
	return nil
}

// SendDLQ marshals envelope and submits it to the dead-letter queue.
// Failures here are themselves retriable at the caller's discretion but are
// never allowed to loop back into the pipeline that produced them.
func (c *Client) SendDLQ(ctx context.Context, queueURL string, envelope any) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return mailerr.Wrap(mailerr.BadMessageFormat, err, "marshal dlq envelope")
	}
	return c.Send(ctx, queueURL, body, nil)
}