// Package mailerr defines the classified error kinds that flow through the
// dispatcher and pipelines as one small parameterized type, rather than
// scattering bare sentinel strings or one bespoke error type per concern.
package mailerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the named error conditions a pipeline can produce.
type Kind string

const (
	BadEventShape            Kind = "BadEventShape"
	MissingObjectReference   Kind = "MissingObjectReference"
	EmailTooLarge            Kind = "EmailTooLarge"
	StorageUnavailable       Kind = "StorageUnavailable"
	ParseFailure             Kind = "ParseFailure"
	TooManyAttachments       Kind = "TooManyAttachments"
	FileTypeRejected         Kind = "FileTypeRejected"
	AttachmentTooLarge       Kind = "AttachmentTooLarge"
	SecurityPolicyFailed     Kind = "SecurityPolicyFailed"
	SenderDomainNotAllowed   Kind = "SenderDomainNotAllowed"
	RateLimitExceeded        Kind = "RateLimitExceeded"
	RoutingQueueMissing      Kind = "RoutingQueueMissing"
	QueueUnavailable         Kind = "QueueUnavailable"
	BadMessageFormat         Kind = "BadMessageFormat"
	UnverifiedSender         Kind = "UnverifiedSender"
	AttachmentsTooLarge      Kind = "AttachmentsTooLarge"
	SenderThrottled          Kind = "SenderThrottled"
	SenderRejectedContent    Kind = "SenderRejectedContent"
	DeadlineExceeded         Kind = "DeadlineExceeded"
	IdempotencyStoreFault    Kind = "IdempotencyStoreFault"
	MissingSecurityVerdicts  Kind = "MissingSecurityVerdicts"
	ComposedTooLarge         Kind = "ComposedTooLarge"
)

// retriable classifies each kind per the error handling design. Kinds not
// present default to permanent via Retriable's zero-value fallback.
var retriable = map[Kind]bool{
	StorageUnavailable:    true,
	QueueUnavailable:      true,
	SenderThrottled:       true,
	DeadlineExceeded:      true,
	IdempotencyStoreFault: true,
}

// Retriable reports whether an error of this kind should be retried locally
// by the retry engine before being surfaced to the host runtime.
func (k Kind) Retriable() bool {
	return retriable[k]
}

// Error wraps a Kind with a human message and an optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error around an existing cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retriable reports whether this error's kind is retriable.
func (e *Error) Retriable() bool {
	return e.Kind.Retriable()
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error, otherwise
// returns "" and false.
func KindOf(err error) (Kind, bool) {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind, true
	}
	return "", false
}