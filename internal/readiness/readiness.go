// Package readiness waits, on a best-effort basis, for documents to reach
// DOMContentLoaded. Its outcomes are informational and never fail a run.
package readiness

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/browser"
	"github.com/xkilldash9x/lancet/internal/frames"
)

// DefaultTimeout bounds a single wait when the caller passes none.
const DefaultTimeout = 3 * time.Second

// Result is the outcome of one readiness wait.
type Result int

const (
	Ready Result = iota
	TimedOut
	Errored
)

func (r Result) String() string {
	switch r {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed_out"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// Entry records the wait on one document.
type Entry struct {
	FrameID string
	Name    string
	URL     string
	Main    bool
	Result  Result
	Err     error
	Elapsed time.Duration
}

// Report collects every wait AwaitAll performed.
type Report struct {
	Entries []Entry
	// ListErr is set when the frame tree could not be listed.
	ListErr error
}

// Count returns how many entries ended with r.
func (rep Report) Count(r Result) int {
	n := 0
	for _, e := range rep.Entries {
		if e.Result == r {
			n++
		}
	}
	return n
}

// AllReady reports whether every document reached the state in time.
func (rep Report) AllReady() bool {
	return rep.ListErr == nil && rep.Count(Ready) == len(rep.Entries)
}

// Waiter performs the waits.
type Waiter struct {
	logger   *zap.Logger
	resolver *frames.Resolver
	state    browser.LoadState
}

func NewWaiter(resolver *frames.Resolver, logger *zap.Logger) *Waiter {
	return &Waiter{
		logger:   logger.Named("readiness"),
		resolver: resolver,
		state:    browser.LoadStateDOMContentLoaded,
	}
}

// AwaitReady waits up to timeout for target to be parsed. Failures are
// absorbed into the Result and logged at debug level.
func (w *Waiter) AwaitReady(ctx context.Context, target browser.Frame, timeout time.Duration) Result {
	r, _ := w.await(ctx, target, timeout)
	return r
}

func (w *Waiter) await(ctx context.Context, target browser.Frame, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := target.WaitForState(waitCtx, w.state)
	switch {
	case err == nil:
		return Ready, nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(waitCtx.Err(), context.DeadlineExceeded):
		w.logger.Debug("Readiness wait timed out.",
			zap.String("frame", target.ID()), zap.Duration("timeout", timeout))
		return TimedOut, err
	default:
		w.logger.Debug("Readiness wait failed.", zap.String("frame", target.ID()), zap.Error(err))
		return Errored, err
	}
}

// AwaitAll waits on the main document and then on every other frame, each
// independently bounded so one broken frame cannot hold up the rest.
func (w *Waiter) AwaitAll(ctx context.Context, page browser.Page, timeout time.Duration) Report {
	var rep Report

	var mainID string
	if main, err := page.MainFrame(ctx); err != nil {
		w.logger.Debug("Main frame unavailable for readiness.", zap.Error(err))
		rep.Entries = append(rep.Entries, Entry{Main: true, Result: Errored, Err: err})
	} else {
		mainID = main.ID()
		rep.Entries = append(rep.Entries, w.entry(ctx, main, true, timeout))
	}

	fs, err := w.resolver.List(ctx, page)
	if err != nil {
		w.logger.Debug("Could not list frames for readiness.", zap.Error(err))
		rep.ListErr = err
		return rep
	}
	for _, f := range fs {
		if ctx.Err() != nil {
			break
		}
		if mainID != "" && f.ID() == mainID {
			continue
		}
		rep.Entries = append(rep.Entries, w.entry(ctx, f, false, timeout))
	}

	w.logger.Debug("Readiness complete.",
		zap.Int("documents", len(rep.Entries)),
		zap.Int("ready", rep.Count(Ready)),
		zap.Int("timed_out", rep.Count(TimedOut)),
		zap.Int("errored", rep.Count(Errored)))
	return rep
}

func (w *Waiter) entry(ctx context.Context, f browser.Frame, main bool, timeout time.Duration) Entry {
	start := time.Now()
	res, err := w.await(ctx, f, timeout)
	return Entry{
		FrameID: f.ID(),
		Name:    f.Name(),
		URL:     f.URL(),
		Main:    main,
		Result:  res,
		Err:     err,
		Elapsed: time.Since(start),
	}
}
