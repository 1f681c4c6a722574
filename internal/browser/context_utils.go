// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from primary that is also canceled when
// secondary is done. Values come from primary only, which matters for CDP
// contexts that carry the target connection.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}

// WithDefaultTimeout applies d to ctx unless ctx already has a deadline or d
// is not positive.
func WithDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// Detach returns a context carrying ctx's values that is never canceled.
// Teardown uses it so cleanup still runs after the caller gave up.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
