// internal/browser/poll.go
package browser

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPollInterval paces condition polling when no interval is given.
const DefaultPollInterval = 100 * time.Millisecond

// ConditionFunc reports whether a polled condition holds. A non-nil error
// stops polling immediately.
type ConditionFunc func(ctx context.Context) (bool, error)

// Poll evaluates cond at most once per interval until it holds, it errors,
// or ctx ends. When ctx ends first the context error is returned.
func Poll(ctx context.Context, interval time.Duration, cond ConditionFunc) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			// Wait refuses early when the next token lies past the deadline.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return context.DeadlineExceeded
		}
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
}

// Sleep pauses for d or until ctx ends.
func Sleep(ctx context.Context, d time.Duration) error {
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
