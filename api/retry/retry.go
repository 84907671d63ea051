// Package retry runs a single remote operation under a bounded attempt
// budget, waiting a computed interval between retryable failures.
package retry

import (
	"context"
	"log/slog"
	"time"
)

const DefaultMaxAttempts = 3

// Policy describes how an operation is retried. The zero value makes a
// single attempt.
type Policy struct {
	MaxAttempts int
	// Backoff returns the wait after the given failed attempt (1-based).
	Backoff func(attempt int) time.Duration
	// Retryable classifies an error. Nil treats every error as fatal.
	Retryable func(err error) bool
	// OnRetry is called before each wait. Observability only.
	OnRetry func(attempt int, err error)
	Logger  *slog.Logger
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Linear waits attempt*unit after each failure.
func Linear(unit time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * unit
	}
}

// Default is three attempts with linear 2s backoff.
func Default(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     Linear(2 * time.Second),
		Retryable:   retryable,
	}
}

// Do runs op until it succeeds, fails fatally, or the attempt budget is
// spent. The last error is returned as-is.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	max := p.MaxAttempts
	if max <= 0 {
		max = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = timerSleep
	}

	var err error
	for attempt := 1; attempt <= max; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt == max || p.Retryable == nil || !p.Retryable(err) {
			return err
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if p.Logger != nil {
			p.Logger.Warn("retrying", "attempt", attempt, "max", max, "wait", wait, "error", err)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return err
		}
	}
	return err
}

func timerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
