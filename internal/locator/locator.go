// Package locator turns declarative element locators into element handles
// at the moment they are needed.
package locator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/browser"
	"github.com/xkilldash9x/lancet/internal/frames"
)

var (
	// ErrNotFound means nothing matched when the locator was resolved.
	ErrNotFound = errors.New("element not found")
	// ErrAmbiguousIndex means there were matches, but fewer than the index asked for.
	ErrAmbiguousIndex = errors.New("match index out of range")
)

// Locator names an element: which frame, how to find it, and which match.
type Locator struct {
	Frame    frames.Target
	Strategy Strategy
	// Index is the 0-based position among the matches, in document order.
	Index int
}

func (l Locator) String() string {
	s := fmt.Sprintf("%s[%d]", l.Strategy, l.Index)
	if l.Frame.Kind != frames.TargetMain {
		s += " in frame " + l.Frame.String()
	}
	return s
}

// Resolver resolves locators. It never retries; waiting is the caller's job.
type Resolver struct {
	frames *frames.Resolver
	logger *zap.Logger
}

func NewResolver(fr *frames.Resolver, logger *zap.Logger) *Resolver {
	return &Resolver{frames: fr, logger: logger.Named("locator")}
}

// Resolve finds loc's element inside frame. The locator's own frame
// target is ignored; frame is taken as already selected.
func (r *Resolver) Resolve(ctx context.Context, frame browser.Frame, loc Locator) (browser.Element, error) {
	if loc.Index < 0 {
		return nil, fmt.Errorf("%w: negative index %d for %s", ErrAmbiguousIndex, loc.Index, loc)
	}
	q, err := loc.Strategy.Compile()
	if err != nil {
		return nil, fmt.Errorf("invalid locator %s: %w", loc, err)
	}
	matches, err := frame.Query(ctx, q)
	if err != nil {
		// Queries that cannot run, such as a malformed selector or a frame
		// that went away, leave nothing to act on.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("resolving %s: %w", loc, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, loc, err)
	}
	r.logger.Debug("Resolved locator.",
		zap.Stringer("locator", loc), zap.String("frame", frame.ID()), zap.Int("matches", len(matches)))

	switch {
	case len(matches) == 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	case loc.Index >= len(matches):
		return nil, fmt.Errorf("%w: %s has %d matches", ErrAmbiguousIndex, loc, len(matches))
	}
	return matches[loc.Index], nil
}

// ResolveIn selects loc's frame on page and resolves it there. A frame
// that cannot be selected is reported as ErrNotFound.
func (r *Resolver) ResolveIn(ctx context.Context, page browser.Page, loc Locator) (browser.Element, error) {
	frame, err := r.frames.Select(ctx, page, loc.Frame)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("resolving %s: %w", loc, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, loc, err)
	}
	return r.Resolve(ctx, frame, loc)
}
