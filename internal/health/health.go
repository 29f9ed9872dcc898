// Package health provides the worker's own liveness/readiness sidecar,
// checking the object store, queue, and key-value store clients mailflow
// owns.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// ServiceStatus represents the status of a single dependency.
type ServiceStatus struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the structured /healthz response.
type HealthResponse struct {
	Status   string                   `json:"status"`
	Services map[string]ServiceStatus `json:"services"`
}

// ReadinessResponse is the structured /readyz response.
type ReadinessResponse struct {
	Ready bool `json:"ready"`
}

// ObjectStorePinger probes object store reachability without requiring a
// real object to exist: a "not found" response still proves the bucket and
// credentials are reachable.
type ObjectStorePinger interface {
	HeadSize(ctx context.Context, bucket, key string) (int64, bool, error)
}

// QueuePinger probes queue reachability via the same cached existence
// check the routing step already relies on.
type QueuePinger interface {
	QueueExists(ctx context.Context, queueURL string) (bool, error)
}

// KVPinger probes key-value store reachability.
type KVPinger interface {
	Ping(ctx context.Context) error
}

// Config holds health handler configuration.
type Config struct {
	Store             ObjectStorePinger
	HealthCheckBucket string
	HealthCheckKey    string // probed by Store.HeadSize; need not exist
	Queue             QueuePinger
	QueueURL          string // a known-good queue, e.g. the outbound queue
	KV                KVPinger
	Timeout           time.Duration
}

// Handler serves /healthz and /readyz for the worker process.
type Handler struct {
	store    ObjectStorePinger
	bucket   string
	key      string
	queue    QueuePinger
	queueURL string
	kv       KVPinger
	timeout  time.Duration

	mu    sync.RWMutex
	ready bool
}

// NewHandler builds a Handler from cfg, starting in the ready state.
func NewHandler(cfg Config) *Handler {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	key := cfg.HealthCheckKey
	if key == "" {
		key = "__healthz__"
	}
	return &Handler{
		store:    cfg.Store,
		bucket:   cfg.HealthCheckBucket,
		key:      key,
		queue:    cfg.Queue,
		queueURL: cfg.QueueURL,
		kv:       cfg.KV,
		timeout:  timeout,
		ready:    true,
	}
}

// SetReady flips the readiness flag, so the composition root can mark the
// worker not-ready while draining an in-flight batch during shutdown.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady reports the current readiness flag.
func (h *Handler) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Healthz reports the liveness of every configured dependency.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	services := map[string]ServiceStatus{}
	overall := "healthy"

	if status := h.checkObjectStore(ctx); status.Status != "up" {
		overall = "degraded"
		services["object_store"] = status
	} else {
		services["object_store"] = status
	}

	if status := h.checkQueue(ctx); status.Status != "up" {
		overall = "degraded"
		services["queue"] = status
	} else {
		services["queue"] = status
	}

	if status := h.checkKV(ctx); status.Status != "up" {
		overall = "degraded"
		services["kv_store"] = status
	} else {
		services["kv_store"] = status
	}

	resp := HealthResponse{Status: overall, Services: services}
	w.Header().Set("Content-Type", "application/json")
	if overall == "healthy" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}

// Readyz reports whether the worker should currently receive new batches.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.IsReady()
	w.Header().Set("Content-Type", "application/json")
	if ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(ReadinessResponse{Ready: ready})
}

func (h *Handler) checkObjectStore(ctx context.Context) ServiceStatus {
	if h.store == nil {
		return ServiceStatus{Status: "down", Error: "object store not configured"}
	}
	start := time.Now()
	_, _, err := h.store.HeadSize(ctx, h.bucket, h.key)
	latency := time.Since(start)
	if err != nil {
		return ServiceStatus{Status: "down", Latency: latency.String(), Error: err.Error()}
	}
	return ServiceStatus{Status: "up", Latency: latency.String()}
}

func (h *Handler) checkQueue(ctx context.Context) ServiceStatus {
	if h.queue == nil || h.queueURL == "" {
		return ServiceStatus{Status: "down", Error: "queue not configured"}
	}
	start := time.Now()
	_, err := h.queue.QueueExists(ctx, h.queueURL)
	latency := time.Since(start)
	if err != nil {
		return ServiceStatus{Status: "down", Latency: latency.String(), Error: err.Error()}
	}
	return ServiceStatus{Status: "up", Latency: latency.String()}
}

func (h *Handler) checkKV(ctx context.Context) ServiceStatus {
	if h.kv == nil {
		return ServiceStatus{Status: "down", Error: "kv store not configured"}
	}
	start := time.Now()
	err := h.kv.Ping(ctx)
	latency := time.Since(start)
	if err != nil {
		return ServiceStatus{Status: "down", Latency: latency.String(), Error: err.Error()}
	}
	return ServiceStatus{Status: "up", Latency: latency.String()}
}
