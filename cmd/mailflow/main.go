package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tyrchen/mailflow/internal/attachment"
	"github.com/tyrchen/mailflow/internal/config"
	"github.com/tyrchen/mailflow/internal/dispatch"
	"github.com/tyrchen/mailflow/internal/health"
	"github.com/tyrchen/mailflow/internal/idempotency"
	"github.com/tyrchen/mailflow/internal/kvstore"
	"github.com/tyrchen/mailflow/internal/logger"
	"github.com/tyrchen/mailflow/internal/mailsender"
	"github.com/tyrchen/mailflow/internal/metrics"
	"github.com/tyrchen/mailflow/internal/mimeparse"
	"github.com/tyrchen/mailflow/internal/objectstore"
	"github.com/tyrchen/mailflow/internal/pipeline"
	"github.com/tyrchen/mailflow/internal/queue"
	"github.com/tyrchen/mailflow/internal/ratelimit"
	"github.com/tyrchen/mailflow/internal/retry"
	"github.com/tyrchen/mailflow/internal/security"
)

func main() {
	cfg := config.Load()

	appLogger := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	slog.SetDefault(appLogger)

	appLogger.Info("starting mailflow worker",
		slog.String("log_level", cfg.Logging.Level),
		slog.String("metrics_addr", cfg.Metrics.ListenAddr),
	)

	store := objectstore.New(cfg.Storage)

	q := queue.New(cfg.Queue, cfg.Storage.AccessKeyID, cfg.Storage.SecretAccessKey)

	var kv interface {
		kvstore.Store
		Ping(ctx context.Context) error
	}
	if cfg.KVStore.Mock {
		kv = kvstore.NewMock()
	} else {
		kv = kvstore.NewFromAddr(cfg.KVStore.Addr, cfg.KVStore.Password, cfg.KVStore.DB)
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.Mock {
		limiter = ratelimit.AlwaysAllow{}
	} else {
		limiter = ratelimit.New(kv, time.Duration(cfg.RateLimit.WindowSeconds)*time.Second, cfg.RateLimit.Limit, time.Duration(cfg.RateLimit.BufferSeconds)*time.Second)
	}

	guard := idempotency.New(kv, cfg.Idempotency.PendingGrace)

	var sender mailsender.Client
	if cfg.MailSender.Mock {
		sender = mailsender.NewMock()
	} else {
		sender = mailsender.New(cfg.MailSender.Region, cfg.Storage.AccessKeyID, cfg.Storage.SecretAccessKey)
	}

	attachments := attachment.New(store, attachment.Config{
		Bucket:             cfg.Storage.AttachmentsBucket,
		MaxAttachmentBytes: cfg.Storage.MaxAttachmentBytes,
		PresignedURLTTL:    cfg.Storage.PresignedURLTTL,
		FanOut:             cfg.Storage.AttachmentFanOut,
	})

	retryConfig := retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Base:        time.Duration(cfg.Retry.BaseSeconds) * time.Second,
		Cap:         time.Duration(cfg.Retry.CapSeconds) * time.Second,
		Jitter:      cfg.Retry.Jitter,
		Observer:    metrics.ObserveRetry,
	}

	inbound := pipeline.NewInbound(pipeline.InboundConfig{
		Store:       store,
		Queue:       q,
		Attachments: attachments,
		Limiter:     limiter,
		Security: security.Policy{
			RequireSPF:                     cfg.Security.RequireSPF,
			RequireDKIM:                    cfg.Security.RequireDKIM,
			RequireDMARC:                   cfg.Security.RequireDMARC,
			RejectOnSpam:                   cfg.Security.RejectOnSpam,
			AllowedSenderDomains:           cfg.Security.AllowedSenderDomains,
			RequireVerdictsForObjectEvents: cfg.Security.RequireVerdictsForObjectEvents,
		},
		Routing:       cfg.Routing.Table,
		ParserOptions: mimeparse.Options{MaxAttachments: cfg.Storage.MaxAttachmentsPerMsg},
		MaxEmailBytes: cfg.Storage.MaxEmailBytes,
		Retry:         retryConfig,
		Metrics:       metrics.Inbound{},
		Logger:        appLogger,
	})

	outbound := pipeline.NewOutbound(pipeline.OutboundConfig{
		Store:               store,
		Queue:               q,
		Sender:              sender,
		Idempotency:         guard,
		OutboundQueueURL:    cfg.Queue.OutboundQueueURL,
		IdempotencyTTL:      cfg.Idempotency.TTL,
		MaxAttachmentsBytes: cfg.Compose.MaxAttachmentsBytes,
		MaxComposedBytes:    cfg.Compose.MaxComposedBytes,
		Retry:               retryConfig,
		Metrics:             metrics.Outbound{},
		Logger:              appLogger,
	})

	dispatcher := dispatch.New(dispatch.Config{
		Inbound:  inbound,
		Outbound: outbound,
		DLQ:      q,
		DLQURL:   cfg.Queue.DLQURL,
		Metrics:  metrics.Dispatch{},
		Logger:   appLogger,
	})

	healthHandler := health.NewHandler(health.Config{
		Store:             store,
		HealthCheckBucket: cfg.Storage.RawEmailsBucket,
		Queue:             q,
		QueueURL:          cfg.Queue.OutboundQueueURL,
		KV:                kv,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.Healthz)
	mux.HandleFunc("/readyz", healthHandler.Readyz)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/invoke", invokeHandler(dispatcher, cfg.Deadline, appLogger))

	server := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("sidecar server failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	appLogger.Info("mailflow worker listening", slog.String("addr", cfg.Metrics.ListenAddr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("shutting down mailflow worker")
	healthHandler.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("error stopping sidecar server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	appLogger.Info("mailflow worker stopped gracefully")
}

// invokeRequest is the runtime event envelope: a flat batch of records,
// each independently classified and dispatched.
type invokeRequest struct {
	Records []json.RawMessage `json:"Records"`
}

// invokeResponse acknowledges a batch: the worker always returns a success
// acknowledgement once every record reaches a terminal state, since
// failures are already routed to DLQ rather than surfaced here.
type invokeResponse struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

func invokeHandler(d *dispatch.Dispatcher, deadline time.Duration, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req invokeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed event payload", http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		if deadline > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, deadline)
			defer cancel()
		}

		result := d.ProcessBatch(ctx, req.Records)
		log.InfoContext(ctx, "batch processed",
			slog.Int("processed", result.Processed),
			slog.Int("failed", result.Failed),
		)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(invokeResponse{StatusCode: 200, Body: "OK"})
	}
}
