// Package metrics exposes mailflow's Prometheus metrics, following the
// source's promauto.New*-package-level-constructor pattern re-subsystemed
// from the admin API's http/db/smtp/sse concerns to the worker's own
// inbound/outbound/attachment/retry/dlq concerns.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mailflow"

var (
	emailsReceivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inbound",
		Name:      "emails_received_total",
		Help:      "Total number of inbound emails accepted and routed.",
	})

	routingDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inbound",
		Name:      "routing_decisions_total",
		Help:      "Total number of routing decisions by destination app.",
	}, []string{"app"})

	attachmentsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "attachment",
		Name:      "processed_total",
		Help:      "Total number of attachments processed by outcome status.",
	}, []string{"status"})

	inboundLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "inbound",
		Name:      "latency_seconds",
		Help:      "End-to-end inbound pipeline latency per record.",
		Buckets:   prometheus.DefBuckets,
	})

	emailsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbound",
		Name:      "emails_sent_total",
		Help:      "Total number of outbound emails successfully sent.",
	})

	duplicateDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbound",
		Name:      "duplicate_dropped_total",
		Help:      "Total number of outbound records dropped by the idempotency guard.",
	})

	deleteFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbound",
		Name:      "delete_failed_total",
		Help:      "Total number of source queue records that failed to delete after a send.",
	})

	outboundLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "outbound",
		Name:      "latency_seconds",
		Help:      "End-to-end outbound pipeline latency per record.",
		Buckets:   prometheus.DefBuckets,
	})

	recordsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "records_processed_total",
		Help:      "Total number of batch records that reached a successful terminal state, by event shape.",
	}, []string{"shape"})

	recordsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dlq",
		Name:      "records_failed_total",
		Help:      "Total number of batch records that failed, by event shape and error kind; only non-retriable failures are dead lettered.",
	}, []string{"shape", "kind"})

	retryAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "retry",
		Name:      "attempts_total",
		Help:      "Total number of retries issued by the backoff combinator across every I/O seam.",
	})
)

// Dispatch satisfies internal/dispatch's MetricsSink.
type Dispatch struct{}

func (Dispatch) IncRecordProcessed(shape string) { recordsProcessedTotal.WithLabelValues(shape).Inc() }
func (Dispatch) IncRecordFailed(shape, kind string) {
	recordsFailedTotal.WithLabelValues(shape, kind).Inc()
}

// Inbound satisfies internal/pipeline's InboundMetrics.
type Inbound struct{}

func (Inbound) IncEmailsReceived()            { emailsReceivedTotal.Inc() }
func (Inbound) IncRoutingDecision(app string) { routingDecisionsTotal.WithLabelValues(app).Inc() }
func (Inbound) IncAttachmentProcessed(status string) {
	attachmentsProcessedTotal.WithLabelValues(status).Inc()
}
func (Inbound) ObserveLatency(d time.Duration) { inboundLatencySeconds.Observe(d.Seconds()) }

// Outbound satisfies internal/pipeline's OutboundMetrics.
type Outbound struct{}

func (Outbound) IncEmailsSent()                 { emailsSentTotal.Inc() }
func (Outbound) IncDuplicateDropped()           { duplicateDroppedTotal.Inc() }
func (Outbound) IncDeleteFailed()               { deleteFailedTotal.Inc() }
func (Outbound) ObserveLatency(d time.Duration) { outboundLatencySeconds.Observe(d.Seconds()) }

// ObserveRetry satisfies retry.Config's Observer hook signature.
func ObserveRetry(attempt int) { retryAttemptsTotal.Inc() }

// Handler returns the Prometheus scrape handler for the sidecar mount.
func Handler() http.Handler {
	return promhttp.Handler()
}
