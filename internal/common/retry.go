package common

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy describes exponential backoff for transient failures:
// Attempts retries with Delay doubling each time, capped at MaxDelay.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
}

// PolicyFromConfig builds the retry policy from matching configuration.
func PolicyFromConfig(m *MatchingConfig) RetryPolicy {
	return RetryPolicy{
		Attempts: m.RetryAttempts,
		Delay:    m.RetryDelayDuration(),
		MaxDelay: m.MaxRetryDelayDuration(),
	}
}

// Backoff returns the delay before retry number attempt (0-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	delay := p.Delay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// WithRetry runs fn, retrying transient failures per the policy. Permanent
// and eligibility failures return immediately. Once attempts are exhausted
// the last transient error is promoted to permanent for this item.
func WithRetry(ctx context.Context, logger arbor.ILogger, policy RetryPolicy, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= policy.Attempts; attempt++ {
		if attempt > 0 {
			backoff := policy.Backoff(attempt - 1)
			logger.Warn().
				Str("op", op).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("Retrying after transient failure")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
	}

	return Permanent(op, fmt.Errorf("retries exhausted after %d attempts: %w", policy.Attempts, lastErr))
}
