// internal/browser/chrome/element.go
package chrome

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/lancet/internal/browser"
)

// stabilityGap is how long an element's box must stay put before a click.
const stabilityGap = 50 * time.Millisecond

// Element is a lazy handle: the index-th match of query in frame,
// re-resolved on every call so it never points at a replaced node.
type Element struct {
	frame *Frame
	query browser.Query
	index int
}

func (e *Element) Describe() string {
	return fmt.Sprintf("%s (match %d) in frame %s", e.query, e.index, e.frame.id)
}

// Click scrolls the element into view, checks it is visible, enabled,
// stable and not covered, then presses the left button on its center.
func (e *Element) Click(ctx context.Context) error {
	return e.withObject(ctx, func(ctx context.Context, id runtime.RemoteObjectID) error {
		if err := e.requireBool(ctx, id, isVisibleJS, "is not visible"); err != nil {
			return err
		}
		if err := e.requireBool(ctx, id, isEnabledJS, "is disabled"); err != nil {
			return err
		}
		if err := dom.ScrollIntoViewIfNeeded().WithObjectID(id).Do(ctx); err != nil {
			return fmt.Errorf("%s could not be scrolled into view (%v): %w", e.Describe(), err, browser.ErrNotInteractable)
		}
		x, y, err := e.stableCenter(ctx, id)
		if err != nil {
			return err
		}
		if err := e.requireBool(ctx, id, hitTestJS, "is covered by another element"); err != nil {
			return err
		}

		if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
			return fmt.Errorf("mouse move failed: %w", err)
		}
		if err := input.DispatchMouseEvent(input.MousePressed, x, y).
			WithButton(input.Left).WithClickCount(1).Do(ctx); err != nil {
			return fmt.Errorf("mouse press failed: %w", err)
		}
		if err := input.DispatchMouseEvent(input.MouseReleased, x, y).
			WithButton(input.Left).WithClickCount(1).Do(ctx); err != nil {
			return fmt.Errorf("mouse release failed: %w", err)
		}
		return nil
	})
}

func (e *Element) Focus(ctx context.Context) error {
	return e.withObject(ctx, func(ctx context.Context, id runtime.RemoteObjectID) error {
		if err := dom.Focus().WithObjectID(id).Do(ctx); err != nil {
			return fmt.Errorf("%s cannot take focus (%v): %w", e.Describe(), err, browser.ErrNotInteractable)
		}
		return nil
	})
}

func (e *Element) IsVisible(ctx context.Context) (bool, error) {
	var visible bool
	err := e.withObject(ctx, func(ctx context.Context, id runtime.RemoteObjectID) error {
		var err error
		visible, err = callBool(ctx, id, isVisibleJS)
		return err
	})
	return visible, err
}

// SetFiles sets the selected files of a file input. Paths are made absolute
// because the browser resolves them relative to its own working directory.
func (e *Element) SetFiles(ctx context.Context, paths []string) error {
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve upload path %s: %w", p, err)
		}
		abs = append(abs, a)
	}
	return e.withObject(ctx, func(ctx context.Context, id runtime.RemoteObjectID) error {
		if err := e.requireBool(ctx, id, isFileInputJS, "is not a file input"); err != nil {
			return err
		}
		if err := dom.SetFileInputFiles(abs).WithObjectID(id).Do(ctx); err != nil {
			return fmt.Errorf("failed to set files on %s: %w", e.Describe(), err)
		}
		return nil
	})
}

func (e *Element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.withObject(ctx, func(ctx context.Context, id runtime.RemoteObjectID) error {
		res, exc, err := runtime.CallFunctionOn(innerTextJS).WithObjectID(id).WithReturnByValue(true).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("script error: %w", exc)
		}
		return jsoniter.Unmarshal(res.Value, &text)
	})
	return strings.Join(strings.Fields(text), " "), err
}

// withObject resolves the handle to a remote object for the duration of fn.
func (e *Element) withObject(ctx context.Context, fn func(ctx context.Context, id runtime.RemoteObjectID) error) error {
	expr, err := queryNthExpr(e.query, e.index)
	if err != nil {
		return err
	}
	res, err := e.frame.evaluate(ctx, expr, false)
	if err != nil {
		return err
	}
	if res.Type == runtime.TypeUndefined || res.ObjectID == "" {
		return fmt.Errorf("%s no longer matches: %w", e.Describe(), browser.ErrDetached)
	}
	id := res.ObjectID
	defer func() {
		releaseCtx, cancel := context.WithTimeout(browser.Detach(ctx), time.Second)
		defer cancel()
		_ = e.frame.page.run(releaseCtx, runtime.ReleaseObject(id))
	}()
	return e.frame.page.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error { return fn(ctx, id) }))
}

func (e *Element) requireBool(ctx context.Context, id runtime.RemoteObjectID, fn, failure string) error {
	ok, err := callBool(ctx, id, fn)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s %s: %w", e.Describe(), failure, browser.ErrNotInteractable)
	}
	return nil
}

// stableCenter returns the center of the element's first content quad once
// two samples taken stabilityGap apart agree.
func (e *Element) stableCenter(ctx context.Context, id runtime.RemoteObjectID) (float64, float64, error) {
	first, err := dom.GetContentQuads().WithObjectID(id).Do(ctx)
	if err != nil || len(first) == 0 {
		return 0, 0, fmt.Errorf("%s has no layout box: %w", e.Describe(), browser.ErrNotInteractable)
	}
	if err := browser.Sleep(ctx, stabilityGap); err != nil {
		return 0, 0, err
	}
	second, err := dom.GetContentQuads().WithObjectID(id).Do(ctx)
	if err != nil || len(second) == 0 {
		return 0, 0, fmt.Errorf("%s has no layout box: %w", e.Describe(), browser.ErrNotInteractable)
	}
	if !sameQuad(first[0], second[0]) {
		return 0, 0, fmt.Errorf("%s is still moving: %w", e.Describe(), browser.ErrNotInteractable)
	}
	x, y := quadCenter(second[0])
	return x, y, nil
}

func callBool(ctx context.Context, id runtime.RemoteObjectID, fn string) (bool, error) {
	res, exc, err := runtime.CallFunctionOn(fn).WithObjectID(id).WithReturnByValue(true).Do(ctx)
	if err != nil {
		return false, err
	}
	if exc != nil {
		return false, fmt.Errorf("script error: %w", exc)
	}
	var b bool
	if err := jsoniter.Unmarshal(res.Value, &b); err != nil {
		return false, fmt.Errorf("expected boolean, got %s: %w", res.Value, err)
	}
	return b, nil
}

func sameQuad(a, b dom.Quad) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if d := a[i] - b[i]; d > 0.5 || d < -0.5 {
			return false
		}
	}
	return true
}

func quadCenter(q dom.Quad) (float64, float64) {
	var x, y float64
	points := len(q) / 2
	if points == 0 {
		return 0, 0
	}
	for i := 0; i < points; i++ {
		x += q[2*i]
		y += q[2*i+1]
	}
	return x / float64(points), y / float64(points)
}
