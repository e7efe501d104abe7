// Package retry runs external calls with a per-attempt timeout, bounded
// exponential backoff and an optional shared rate limiter.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/time/rate"
)

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

// Transient marks err as worth retrying. Unmarked errors stop Do immediately.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return transientError{err: err}
}

func IsTransient(err error) bool {
	var t transientError
	if errors.As(err, &t) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// TransientStatus reports whether an HTTP status is worth retrying.
func TransientStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

type Policy struct {
	// Attempts is the total number of calls, including the first one.
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	// Timeout bounds each attempt; zero leaves the parent deadline alone.
	Timeout time.Duration
	Limiter *rate.Limiter
	// OnRetry is called before sleeping ahead of attempt n+1.
	OnRetry func(attempt int, wait time.Duration, err error)
}

func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Initial: time.Second, Max: 30 * time.Second, Timeout: 90 * time.Second}
}

// Do calls fn until it succeeds, returns a non-transient error, the attempts
// run out or ctx is done. The parent ctx deadline is never treated as transient.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	attempts := max(1, p.Attempts)
	wait := p.Initial
	var err error
	for n := 1; n <= attempts; n++ {
		if p.Limiter != nil {
			if werr := p.Limiter.Wait(ctx); werr != nil {
				return errors.Join(werr, err)
			}
		}
		err = call(ctx, p.Timeout, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if n == attempts || !IsTransient(err) {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(n, wait, err)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(ctx.Err(), err)
		case <-t.C:
		}
		wait = next(wait, p.Max)
	}
	if attempts > 1 && IsTransient(err) {
		return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
	}
	return err
}

func call(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(cctx)
}

func next(d, ceiling time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	d *= 2
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}
