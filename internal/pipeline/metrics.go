// Package pipeline runs the inbound and outbound flows that the dispatcher
// hands classified events to, built around one shared processing core per
// direction of traffic the way an email processor's own top-level method
// fans out to per-recipient delivery.
package pipeline

import "time"

// InboundMetrics is the narrow metrics capability the inbound pipeline
// drives, defined at the point of consumption so tests can substitute a
// counting fake without pulling in promauto collectors.
type InboundMetrics interface {
	IncEmailsReceived()
	IncRoutingDecision(app string)
	IncAttachmentProcessed(status string)
	ObserveLatency(d time.Duration)
}

type noopInboundMetrics struct{}

func (noopInboundMetrics) IncEmailsReceived()            {}
func (noopInboundMetrics) IncRoutingDecision(string)     {}
func (noopInboundMetrics) IncAttachmentProcessed(string) {}
func (noopInboundMetrics) ObserveLatency(time.Duration)  {}

// OutboundMetrics is the narrow metrics capability the outbound pipeline
// drives.
type OutboundMetrics interface {
	IncEmailsSent()
	IncDuplicateDropped()
	IncDeleteFailed()
	ObserveLatency(d time.Duration)
}

type noopOutboundMetrics struct{}

func (noopOutboundMetrics) IncEmailsSent()               {}
func (noopOutboundMetrics) IncDuplicateDropped()         {}
func (noopOutboundMetrics) IncDeleteFailed()             {}
func (noopOutboundMetrics) ObserveLatency(time.Duration) {}
