// Package mailsender wraps the outbound mail submission client. The SESv2
// implementation follows the same aws-sdk-go-v2 client-construction idiom
// as internal/objectstore and internal/queue, submitting the already-
// composed raw message via SendEmail's raw-content path.
package mailsender

import (
	"context"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/tyrchen/mailflow/internal/mailerr"
)

// Client is the mail submission seam consumed by the outbound pipeline.
type Client interface {
	Send(ctx context.Context, from string, to []string, raw []byte) error
	// IsVerified reports whether address is a verified sending identity,
	// consulted before every send.
	IsVerified(ctx context.Context, address string) (bool, error)
}

// SESClient is the SESv2-backed implementation.
type SESClient struct {
	ses *sesv2.Client
}

// New builds a SESClient using static credentials.
func New(region, accessKeyID, secretAccessKey string) *SESClient {
	client := sesv2.New(sesv2.Options{
		Region: region,
		Credentials: credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"",
		),
	})
	return &SESClient{ses: client}
}

// Send submits a pre-composed raw MIME message via SESv2's raw content
// path, passing to as the request's Destination ToAddresses alongside it.
func (c *SESClient) Send(ctx context.Context, from string, to []string, raw []byte) error {
	_, err := c.ses.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: to},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	})
	if err != nil {
		return classifySendError(err)
	}
	return nil
}

// IsVerified consults SESv2's identity verification status for address.
// Any lookup failure, including a malformed or unknown identity, is
// reported as unverified rather than as an error, since the outbound
// pipeline's only interest is the yes/no.
func (c *SESClient) IsVerified(ctx context.Context, address string) (bool, error) {
	out, err := c.ses.GetEmailIdentity(ctx, &sesv2.GetEmailIdentityInput{
		EmailIdentity: aws.String(address),
	})
	if err != nil {
		return false, nil
	}
	return out.VerifiedForSendingStatus, nil
}

// classifySendError maps SESv2 throttling into the retriable
// SenderThrottled kind and everything else into the non-retriable
// SenderRejectedContent kind, since a malformed or policy-rejected message
// will never succeed on retry.
func classifySendError(err error) error {
	msg := err.Error()
	for _, marker := range []string{"Throttling", "TooManyRequestsException", "LimitExceededException"} {
		if strings.Contains(msg, marker) {
			return mailerr.Wrap(mailerr.SenderThrottled, err, "ses throttled the send")
		}
	}
	return mailerr.Wrap(mailerr.SenderRejectedContent, err, "ses rejected the send")
}

// Mock is an in-memory Client used by pipeline tests.
type Mock struct {
	mu             sync.Mutex
	Sent           []MockSend
	FailNext       error
	SentCount      int
	// Unverified lists addresses IsVerified should reject. Every other
	// address is reported verified, matching the "mock defaults to the
	// permissive case" shape used by ratelimit.AlwaysAllow.
	Unverified map[string]bool
}

// MockSend records a single call to Send.
type MockSend struct {
	From string
	To   []string
	Raw  []byte
}

// NewMock returns an empty mock mail sender with every address verified.
func NewMock() *Mock {
	return &Mock{Unverified: make(map[string]bool)}
}

func (m *Mock) IsVerified(ctx context.Context, address string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.Unverified[address], nil
}

func (m *Mock) Send(ctx context.Context, from string, to []string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return err
	}
	m.Sent = append(m.Sent, MockSend{From: from, To: to, Raw: raw})
	m.SentCount++
	return nil
}
