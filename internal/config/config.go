// Package config assembles mailflow's configuration from environment
// variables, using a per-concern-substruct Config shape and a small
// getEnv/getIntEnv/getBoolEnv helper family.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tyrchen/mailflow/internal/model"
)

// Config is the process-wide, read-only configuration loaded once at cold
// start. Per the design notes, it is never hot-reloaded mid-invocation.
type Config struct {
	Storage     StorageConfig
	Queue       QueueConfig
	Routing     RoutingConfig
	Security    SecurityConfig
	KVStore     KVStoreConfig
	RateLimit   RateLimitConfig
	Idempotency IdempotencyConfig
	MailSender  MailSenderConfig
	Logging     LoggingConfig
	Metrics     MetricsConfig
	Retry       RetryConfig
	Compose     ComposeConfig
	Deadline    time.Duration
}

// KVStoreConfig holds the Redis connection backing the rate limiter and
// idempotency guard.
type KVStoreConfig struct {
	Addr     string
	Password string
	DB       int
	Mock     bool
}

// StorageConfig configures the object store client.
type StorageConfig struct {
	Endpoint             string
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	UseSSL               bool
	RawEmailsBucket      string
	AttachmentsBucket    string
	PresignedURLTTL      time.Duration
	MaxEmailBytes        int64
	MaxAttachmentBytes   int64
	MaxAttachmentsPerMsg int
	AttachmentFanOut     int
}

// QueueConfig configures the queue client and known queue URLs.
type QueueConfig struct {
	OutboundQueueURL string
	DLQURL           string
	Endpoint         string
	Region           string
}

// RoutingConfig holds the routing table, loaded from a JSON env var.
type RoutingConfig struct {
	Table model.RoutingTable
}

// SecurityConfig holds the policy flags enforced by the security validator.
// Attachment content-type policy is not configurable here: internal/filetype
// enforces a static, auditable allow/block table per its own DESIGN.md entry.
type SecurityConfig struct {
	RequireSPF                     bool
	RequireDKIM                    bool
	RequireDMARC                   bool
	RejectOnSpam                   bool
	AllowedSenderDomains           []string
	RequireVerdictsForObjectEvents bool
}

// RateLimitConfig configures the sliding-window limiter.
type RateLimitConfig struct {
	WindowSeconds int64
	Limit         int64
	BufferSeconds int64
	TableName     string
	Mock          bool
}

// IdempotencyConfig configures the outbound dedup guard.
type IdempotencyConfig struct {
	TTL          time.Duration
	PendingGrace time.Duration
	TableName    string
}

// MailSenderConfig configures the outbound mail submission client.
type MailSenderConfig struct {
	Region string
	Mock   bool
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level     string
	Format    string
	Output    string
	AddSource bool
}

// MetricsConfig configures the metrics sink and its optional scrape port.
type MetricsConfig struct {
	Namespace  string
	ListenAddr string
}

// RetryConfig configures the backoff combinator.
type RetryConfig struct {
	MaxAttempts int
	BaseSeconds int
	CapSeconds  int
	Jitter      float64
}

// ComposeConfig bounds the outbound pipeline's attachment-fetch and
// composed-message sizes, independent of the inbound pipeline's raw-email
// and per-attachment ceilings.
type ComposeConfig struct {
	MaxAttachmentsBytes int64
	MaxComposedBytes    int64
}

// Load reads configuration from environment variables, mirroring the
// source's Load() shape.
func Load() *Config {
	return &Config{
		Storage: StorageConfig{
			Endpoint:             getEnv("S3_ENDPOINT", "localhost:9000"),
			Region:               getEnv("S3_REGION", "us-east-1"),
			AccessKeyID:          getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("S3_SECRET_ACCESS_KEY", ""),
			UseSSL:               getBoolEnv("S3_USE_SSL", true),
			RawEmailsBucket:      getEnv("RAW_EMAILS_BUCKET", "mailflow-raw-emails"),
			AttachmentsBucket:    getEnv("ATTACHMENTS_BUCKET", "mailflow-attachments"),
			PresignedURLTTL:      getSecondsEnv("PRESIGNED_URL_TTL_SECONDS", 604800*time.Second),
			MaxEmailBytes:        getInt64Env("MAX_EMAIL_BYTES", 40*1024*1024),
			MaxAttachmentBytes:   getInt64Env("MAX_ATTACHMENT_BYTES", 36700160),
			MaxAttachmentsPerMsg: getIntEnv("MAX_ATTACHMENTS_PER_MESSAGE", 50),
			AttachmentFanOut:     getIntEnv("ATTACHMENT_FANOUT", 4),
		},
		Queue: QueueConfig{
			OutboundQueueURL: getEnv("OUTBOUND_QUEUE_URL", ""),
			DLQURL:           getEnv("DLQ_URL", ""),
			Endpoint:         getEnv("SQS_ENDPOINT", ""),
			Region:           getEnv("SQS_REGION", "us-east-1"),
		},
		Routing: RoutingConfig{
			Table: parseRoutingTable(getEnv("ROUTING_TABLE_JSON", "{}"), getEnv("DEFAULT_QUEUE_URL", "")),
		},
		Security: SecurityConfig{
			RequireSPF:                     getBoolEnv("SECURITY_REQUIRE_SPF", false),
			RequireDKIM:                    getBoolEnv("SECURITY_REQUIRE_DKIM", false),
			RequireDMARC:                   getBoolEnv("SECURITY_REQUIRE_DMARC", false),
			RejectOnSpam:                   getBoolEnv("SECURITY_REJECT_ON_SPAM", false),
			AllowedSenderDomains:           getListEnv("ALLOWED_SENDER_DOMAINS", nil),
			RequireVerdictsForObjectEvents: getBoolEnv("REQUIRE_SECURITY_VERDICTS_FOR_OBJECT_EVENTS", true),
		},
		KVStore: KVStoreConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			Mock:     getBoolEnv("KVSTORE_MOCK", false),
		},
		RateLimit: RateLimitConfig{
			WindowSeconds: int64(getIntEnv("RATE_LIMIT_WINDOW_SECONDS", 60)),
			Limit:         int64(getIntEnv("RATE_LIMIT_MAX_PER_WINDOW", 100)),
			BufferSeconds: int64(getIntEnv("RATE_LIMIT_TTL_BUFFER_SECONDS", 60)),
			TableName:     getEnv("RATE_LIMITER_TABLE_NAME", ""),
			Mock:          getBoolEnv("RATE_LIMIT_MOCK", false),
		},
		Idempotency: IdempotencyConfig{
			TTL:          getSecondsEnv("IDEMPOTENCY_TTL_SECONDS", 24*time.Hour),
			PendingGrace: getSecondsEnv("IDEMPOTENCY_PENDING_GRACE_SECONDS", 5*time.Minute),
			TableName:    getEnv("IDEMPOTENCY_TABLE_NAME", ""),
		},
		MailSender: MailSenderConfig{
			Region: getEnv("SES_REGION", "us-east-1"),
			Mock:   getBoolEnv("MAIL_SENDER_MOCK", false),
		},
		Logging: LoggingConfig{
			Level:     getEnv("LOG_LEVEL", "info"),
			Format:    getEnv("LOG_FORMAT", "json"),
			Output:    getEnv("LOG_OUTPUT", "stdout"),
			AddSource: getBoolEnv("LOG_ADD_SOURCE", false),
		},
		Metrics: MetricsConfig{
			Namespace:  getEnv("METRICS_NAMESPACE", "mailflow"),
			ListenAddr: getEnv("METRICS_LISTEN_ADDR", ":9090"),
		},
		Retry: RetryConfig{
			MaxAttempts: getIntEnv("RETRY_MAX_ATTEMPTS", 5),
			BaseSeconds: getIntEnv("RETRY_BASE_SECONDS", 1),
			CapSeconds:  getIntEnv("RETRY_CAP_SECONDS", 30),
			Jitter:      getFloatEnv("RETRY_JITTER", 0.1),
		},
		Compose: ComposeConfig{
			MaxAttachmentsBytes: getInt64Env("MAX_OUTBOUND_ATTACHMENTS_BYTES", 10*1024*1024),
			MaxComposedBytes:    getInt64Env("MAX_COMPOSED_BYTES", 10*1024*1024),
		},
		Deadline: getSecondsEnv("INVOCATION_DEADLINE_SECONDS", 60*time.Second),
	}
}

func parseRoutingTable(raw, defaultQueueURL string) model.RoutingTable {
	table := model.RoutingTable{
		Apps:            map[string]model.RoutingRule{},
		DefaultQueueURL: defaultQueueURL,
		Prefix:          "_",
	}
	var decoded map[string]struct {
		QueueURL string   `json:"queue_url"`
		Aliases  []string `json:"aliases"`
	}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return table
	}
	for app, rule := range decoded {
		table.Apps[app] = model.RoutingRule{QueueURL: rule.QueueURL, Aliases: rule.Aliases}
	}
	return table
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getSecondsEnv returns a duration from an environment variable holding a
// raw integer number of seconds.
func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

// getIntEnv returns int from environment variable or default.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getInt64Env returns int64 from environment variable or default.
func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getBoolEnv returns bool from environment variable or default.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getFloatEnv returns float64 from environment variable or default.
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getListEnv returns a comma-separated environment variable as a slice of
// trimmed, non-empty entries.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}