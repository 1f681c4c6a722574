// internal/browser/chrome/frame.go
package chrome

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/lancet/internal/browser"
	"go.uber.org/zap"
)

// worldName labels the isolated world the harness evaluates in, keeping
// page scripts and harness helpers out of each other's globals.
const worldName = "__lancet__"

// Frame is a handle on one frame of a tab, keyed by its DevTools frame id.
type Frame struct {
	page *Page
	id   cdp.FrameID

	mu    sync.Mutex
	name  string
	url   string
	world runtime.ExecutionContextID
}

func (f *Frame) setSnapshot(name, url string) {
	f.mu.Lock()
	f.name, f.url = name, url
	f.mu.Unlock()
}

func (f *Frame) ID() string { return string(f.id) }

func (f *Frame) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.name
}

// URL is the frame's address as of the last frame listing.
func (f *Frame) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url
}

// WaitForState polls document.readyState until it reaches state. Errors
// while a new document is being swapped in are treated as not ready yet.
func (f *Frame) WaitForState(ctx context.Context, state browser.LoadState) error {
	ctx, cancel := browser.WithDefaultTimeout(ctx, f.page.owner.defaultTimeout())
	defer cancel()

	return browser.Poll(ctx, browser.DefaultPollInterval, func(ctx context.Context) (bool, error) {
		res, err := f.evaluate(ctx, readyStateJS, true)
		if err != nil {
			if errors.Is(err, browser.ErrDetached) || errors.Is(err, browser.ErrClosed) {
				return false, err
			}
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			f.page.logger.Debug("readyState probe failed", zap.String("frame", f.ID()), zap.Error(err))
			return false, nil
		}
		var rs string
		if err := jsoniter.Unmarshal(res.Value, &rs); err != nil {
			return false, fmt.Errorf("unexpected readyState value %s: %w", res.Value, err)
		}
		switch state {
		case browser.LoadStateLoad:
			return rs == "complete", nil
		default:
			return rs == "interactive" || rs == "complete", nil
		}
	})
}

// Query counts the current matches and returns lazy handles. Each handle
// re-resolves its match by position when used.
func (f *Frame) Query(ctx context.Context, q browser.Query) ([]browser.Element, error) {
	expr, err := queryCountExpr(q)
	if err != nil {
		return nil, err
	}
	res, err := f.evaluate(ctx, expr, true)
	if err != nil {
		return nil, fmt.Errorf("query %s failed: %w", q, err)
	}
	var n int
	if err := jsoniter.Unmarshal(res.Value, &n); err != nil {
		return nil, fmt.Errorf("query %s returned %s: %w", q, res.Value, err)
	}
	out := make([]browser.Element, n)
	for i := range out {
		out[i] = &Element{frame: f, query: q, index: i}
	}
	return out, nil
}

// evaluate runs expr in the frame's isolated world. A stale world, which
// is what a navigation leaves behind, is recreated once.
func (f *Frame) evaluate(ctx context.Context, expr string, byValue bool) (*runtime.RemoteObject, error) {
	var out *runtime.RemoteObject
	err := f.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var lastErr error
		for attempt := 0; attempt < 2; attempt++ {
			world, err := f.worldID(ctx, attempt > 0)
			if err != nil {
				return err
			}
			res, exc, err := runtime.Evaluate(expr).
				WithContextID(world).
				WithReturnByValue(byValue).
				WithAwaitPromise(true).
				Do(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				lastErr = err
				continue
			}
			if exc != nil {
				return fmt.Errorf("script error: %w", exc)
			}
			out = res
			return nil
		}
		return lastErr
	}))
	return out, err
}

func (f *Frame) worldID(ctx context.Context, fresh bool) (runtime.ExecutionContextID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.world != 0 && !fresh {
		return f.world, nil
	}
	id, err := page.CreateIsolatedWorld(f.id).WithWorldName(worldName).Do(ctx)
	if err != nil {
		f.world = 0
		if strings.Contains(strings.ToLower(err.Error()), "no frame") {
			return 0, fmt.Errorf("frame %s: %w", f.id, browser.ErrDetached)
		}
		return 0, fmt.Errorf("failed to create isolated world: %w", err)
	}
	f.world = id
	return id, nil
}
