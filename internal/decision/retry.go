package decision

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RetryConfig bounds the adapter's own retry loop. Exhaustion surfaces as a
// single ErrDecisionUnavailable to the caller.
type RetryConfig struct {
	Attempts       int
	InitialBackoff time.Duration
}

// DefaultRetryConfig matches the conservative defaults used for
// provider-side flakiness: three attempts, exponential backoff from 1s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, InitialBackoff: time.Second}
}

// Retrying wraps an Engine with bounded retry and exponential backoff.
// The run state machine never retries decisions itself.
type Retrying struct {
	inner  Engine
	cfg    RetryConfig
	logger *zap.SugaredLogger
}

// NewRetrying creates a retrying decision adapter.
func NewRetrying(inner Engine, cfg RetryConfig, logger *zap.SugaredLogger) *Retrying {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	return &Retrying{inner: inner, cfg: cfg, logger: logger}
}

func (r *Retrying) Decide(ctx context.Context, job JobContext, profile Profile, model string) (*Decision, error) {
	backoff := r.cfg.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		d, err := r.inner.Decide(ctx, job, profile, model)
		if err == nil {
			return d, nil
		}
		lastErr = err

		r.logger.Warnw("Decision attempt failed",
			"attempt", attempt,
			"max_attempts", r.cfg.Attempts,
			"company", job.Company,
			"error", err,
		)

		if attempt == r.cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrDecisionUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("%w: %v", ErrDecisionUnavailable, lastErr)
}
