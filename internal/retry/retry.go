// Package retry implements the bounded exponential backoff combinator used
// by every I/O seam in the dispatcher, computing the delay with a
// multiplicative-jitter formula.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/tyrchen/mailflow/internal/mailerr"
)

// Config controls the backoff schedule.
type Config struct {
	MaxAttempts int
	Base        time.Duration
	Cap         time.Duration
	Jitter      float64 // fraction, e.g. 0.1 for +/-10%

	// Observer, if set, is called once per retry (i.e. for every attempt
	// beyond the first) right before the backoff sleep, so a caller can
	// drive a retry-count metric without Do needing to know which I/O seam
	// is being retried.
	Observer func(attempt int)
}

// DefaultConfig returns 5 attempts, 1s base, 30s cap, 10% jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		Base:        time.Second,
		Cap:         30 * time.Second,
		Jitter:      0.1,
	}
}

// Delay returns the delay before attempt k (1-based), per
// min(base*2^(k-1), cap) * jitter in [1-J, 1+J].
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := float64(c.Base) * float64(uint64(1)<<uint(attempt-1))
	if capped := float64(c.Cap); backoff > capped {
		backoff = capped
	}
	jitterFactor := 1 - c.Jitter + rand.Float64()*2*c.Jitter
	return time.Duration(backoff * jitterFactor)
}

// Op is a unit of work the retry engine can attempt.
type Op func(ctx context.Context) error

// Do runs fn, retrying on errors the classifier marks retriable, up to
// cfg.MaxAttempts. It aborts with mailerr.DeadlineExceeded if ctx is
// cancelled while waiting, rather than sleeping past the deadline.
func Do(ctx context.Context, cfg Config, fn Op) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return mailerr.Wrap(mailerr.DeadlineExceeded, err, "deadline reached before attempt")
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		kind, known := mailerr.KindOf(lastErr)
		if known && !kind.Retriable() {
			return lastErr
		}
		if !known {
			// Unclassified errors are treated as permanent: retrying an
			// error this engine cannot classify risks masking a bug.
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if cfg.Observer != nil {
			cfg.Observer(attempt)
		}

		delay := cfg.Delay(attempt)
		select {
		case <-ctx.Done():
			return mailerr.Wrap(mailerr.DeadlineExceeded, ctx.Err(), "deadline reached mid-backoff")
		case <-time.After(delay):
		}
	}
	return lastErr
}