package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docscan/internal/recognizer"
	"docscan/pkg/models"
)

// recordingPolicy returns a default policy whose sleeps are recorded instead
// of waited.
func recordingPolicy(sleeps *[]time.Duration) Policy {
	p := DefaultPolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return ctx.Err()
	}
	return p
}

func backendErr(kind recognizer.ErrorKind) error {
	return recognizer.NewError(models.ServiceGoogle, kind, errors.New("boom"))
}

func TestDoBoundsCalls(t *testing.T) {
	var sleeps []time.Duration
	calls := 0
	want := backendErr(recognizer.ServerError)

	_, err := Do(context.Background(), recordingPolicy(&sleeps), func(context.Context) (string, error) {
		calls++
		return "", want
	})

	assert.Equal(t, 4, calls)
	assert.Same(t, want, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeps)
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	var sleeps []time.Duration
	calls := 0

	got, err := Do(context.Background(), recordingPolicy(&sleeps), func(context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, backendErr(recognizer.NetworkFailure)
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
	assert.Len(t, sleeps, 2)
}

func TestDoDoesNotRetryFinalErrors(t *testing.T) {
	for _, kind := range []recognizer.ErrorKind{recognizer.ClientError, recognizer.Unavailable} {
		t.Run(kind.String(), func(t *testing.T) {
			var sleeps []time.Duration
			calls := 0

			_, err := Do(context.Background(), recordingPolicy(&sleeps), func(context.Context) (bool, error) {
				calls++
				return false, backendErr(kind)
			})

			assert.Error(t, err)
			assert.Equal(t, 1, calls)
			assert.Empty(t, sleeps)
		})
	}
}

func TestDoHonorsRetryAfter(t *testing.T) {
	var sleeps []time.Duration
	calls := 0

	_, _ = Do(context.Background(), recordingPolicy(&sleeps), func(context.Context) (bool, error) {
		calls++
		if calls == 1 {
			return false, &recognizer.Error{Backend: models.ServiceMicroblink, Kind: recognizer.RateLimited, RetryAfter: 7 * time.Second}
		}
		return false, &recognizer.Error{Backend: models.ServiceMicroblink, Kind: recognizer.RateLimited}
	})

	assert.Equal(t, []time.Duration{7 * time.Second, 2 * time.Second, 4 * time.Second}, sleeps)
}

func TestDoRetriesUnclassifiedErrors(t *testing.T) {
	var sleeps []time.Duration
	calls := 0

	_, err := Do(context.Background(), recordingPolicy(&sleeps), func(context.Context) (bool, error) {
		calls++
		return false, errors.New("socket closed")
	})

	assert.EqualError(t, err, "socket closed")
	assert.Equal(t, 4, calls)
}

func TestDoStopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := DefaultPolicy()
	p.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	calls := 0
	want := backendErr(recognizer.ServerError)

	_, err := Do(ctx, p, func(context.Context) (bool, error) {
		calls++
		return false, want
	})

	assert.Equal(t, 1, calls)
	assert.Same(t, want, err)
}

func TestDoWithCanceledContextMakesNoCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, DefaultPolicy(), func(context.Context) (bool, error) {
		t.Fatal("fn must not be called")
		return false, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoZeroRetries(t *testing.T) {
	calls := 0
	p := Policy{MaxRetries: 0, Delay: time.Hour, Backoff: 2}

	_, err := Do(context.Background(), p, func(context.Context) (bool, error) {
		calls++
		return false, backendErr(recognizer.ServerError)
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoNegativeRetriesStillCallsOnce(t *testing.T) {
	calls := 0
	p := Policy{MaxRetries: -1, Backoff: 1}

	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)

	calls = 0
	_, err = Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		return "", backendErr(recognizer.ServerError)
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestSleepContextRealTimer(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
