// Package retry calls a backend under a bounded exponential backoff policy
// driven by the recognizer error kinds.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"docscan/internal/logger"
	"docscan/internal/recognizer"
)

// Policy bounds the retries of one backend.
type Policy struct {
	// MaxRetries is the number of calls after the first; at most
	// MaxRetries+1 calls are made. Negative values count as 0.
	MaxRetries int
	Delay      time.Duration
	Backoff    float64

	// Sleep waits d or until ctx is done. Nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy is three retries starting at one second, doubling.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, Delay: time.Second, Backoff: 2}
}

// Wait is the pause before the call following attempt (0-based). A
// rate-limited error that names its own delay overrides the schedule.
func (p Policy) Wait(attempt int, err error) time.Duration {
	var re *recognizer.Error
	if errors.As(err, &re) && re.Kind == recognizer.RateLimited && re.RetryAfter > 0 {
		return re.RetryAfter
	}
	backoff := p.Backoff
	if backoff < 1 {
		backoff = 1
	}
	return time.Duration(float64(p.Delay) * math.Pow(backoff, float64(attempt)))
}

// Retryable reports whether err may succeed on another call. Client errors,
// unavailability and cancellation of ctx are final; unclassified errors are
// retried.
func Retryable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if kind, ok := recognizer.KindOf(err); ok {
		return kind.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}

// Do calls fn until it succeeds, returns a final error, or the policy is
// exhausted, in which case the last error is returned.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	log := logger.WithComponent("retry")
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var zero T
	var lastErr error
	maxRetries := max(p.MaxRetries, 0)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !Retryable(ctx, err) || attempt == maxRetries {
			break
		}

		wait := p.Wait(attempt, err)
		logRetry(log, attempt, wait, err)
		if err := sleep(ctx, wait); err != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

func logRetry(log zerolog.Logger, attempt int, wait time.Duration, err error) {
	event := log.Warn().
		Err(err).
		Int("attempt", attempt+1).
		Dur("wait", wait)
	var re *recognizer.Error
	if errors.As(err, &re) {
		event = event.Str("backend", string(re.Backend)).Str("kind", re.Kind.String())
	}
	event.Msg("Backend call failed, retrying")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
