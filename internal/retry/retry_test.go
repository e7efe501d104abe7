package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func fast(attempts int) Policy {
	return Policy{Attempts: attempts, Initial: time.Millisecond, Max: 2 * time.Millisecond}
}

func TestDo_RetriesTransientUpToAttempts(t *testing.T) {
	calls := 0
	var waits []time.Duration
	p := fast(3)
	p.OnRetry = func(_ int, wait time.Duration, _ error) { waits = append(waits, wait) }

	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return Transient(errors.New("503"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
	assert.Contains(t, err.Error(), "gave up after 3 attempts")
}

func TestDo_StopsOnFatal(t *testing.T) {
	calls := 0
	fatal := errors.New("401 unauthorized")
	err := Do(context.Background(), fast(5), func(context.Context) error {
		calls++
		return fatal
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, fatal, err)
}

func TestDo_SucceedsAfterTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fast(3), func(context.Context) error {
		calls++
		if calls < 2 {
			return Transient(errors.New("429"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDo_PerAttemptTimeoutIsTransient(t *testing.T) {
	calls := 0
	p := fast(2)
	p.Timeout = 5 * time.Millisecond
	err := Do(context.Background(), p, func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDo_ParentCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fast(5), func(context.Context) error {
		calls++
		cancel()
		return Transient(errors.New("flaky"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_UsesLimiter(t *testing.T) {
	p := fast(1)
	p.Limiter = rate.NewLimiter(rate.Inf, 1)
	require.NoError(t, Do(context.Background(), p, func(context.Context) error { return nil }))
}

func TestTransientStatus(t *testing.T) {
	for code, want := range map[int]bool{200: false, 400: false, 401: false, 408: true, 429: true, 500: true, 503: true} {
		assert.Equal(t, want, TransientStatus(code), "code %d", code)
	}
}

func TestTransient_Nil(t *testing.T) {
	assert.NoError(t, Transient(nil))
	assert.False(t, IsTransient(errors.New("x")))
}
