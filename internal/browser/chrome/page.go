// internal/browser/chrome/page.go
package chrome

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/lancet/internal/browser"
	"go.uber.org/zap"
)

// Page is a single Chromium tab.
type Page struct {
	owner     *Context
	logger    *zap.Logger
	tabCtx    context.Context
	tabCancel context.CancelFunc

	mu      sync.Mutex
	console []browser.ConsoleEntry
	frames  map[string]*Frame
	closed  bool
}

// onEvent runs on the target's event loop and must not block.
func (p *Page) onEvent(ev any) {
	switch ev := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		parts := make([]string, 0, len(ev.Args))
		for _, arg := range ev.Args {
			parts = append(parts, remoteObjectText(arg))
		}
		p.record(string(ev.Type), strings.Join(parts, " "))
	case *runtime.EventExceptionThrown:
		if ev.ExceptionDetails != nil {
			p.record("pageerror", exceptionText(ev.ExceptionDetails))
		}
	}
}

func (p *Page) record(level, text string) {
	p.mu.Lock()
	p.console = append(p.console, browser.ConsoleEntry{Level: level, Text: text, Timestamp: time.Now()})
	p.mu.Unlock()
}

func (p *Page) Console() []browser.ConsoleEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]browser.ConsoleEntry, len(p.console))
	copy(out, p.console)
	return out
}

// run executes actions against the tab, bounded by both ctx and the tab's
// own lifetime, with the context default timeout when ctx has no deadline.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return browser.ErrClosed
	}

	ctx, cancelTimeout := browser.WithDefaultTimeout(ctx, p.owner.defaultTimeout())
	defer cancelTimeout()
	opCtx, cancel := browser.CombineContext(p.tabCtx, ctx)
	defer cancel()

	err := chromedp.Run(opCtx, actions...)
	switch {
	case err == nil:
		return nil
	case p.tabCtx.Err() != nil:
		return fmt.Errorf("%w: %v", browser.ErrClosed, err)
	case ctx.Err() != nil:
		// The combined context only reports cancellation; surface the
		// caller's own reason so deadlines stay recognizable.
		return fmt.Errorf("%v: %w", err, ctx.Err())
	}
	return err
}

// Goto returns once the main frame has committed the navigation.
func (p *Page) Goto(ctx context.Context, url string) error {
	p.logger.Debug("Navigating", zap.String("url", url))
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errorText, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return fmt.Errorf("navigation to %s failed: %w", url, err)
		}
		if errorText != "" {
			return fmt.Errorf("navigation to %s failed: %s", url, errorText)
		}
		return nil
	}))
}

func (p *Page) frameTree(ctx context.Context) (*page.FrameTree, error) {
	var tree *page.FrameTree
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read frame tree: %w", err)
	}
	return tree, nil
}

func (p *Page) MainFrame(ctx context.Context) (browser.Frame, error) {
	tree, err := p.frameTree(ctx)
	if err != nil {
		return nil, err
	}
	return p.frameFor(tree), nil
}

// Frames walks the frame tree, main frame first.
func (p *Page) Frames(ctx context.Context) ([]browser.Frame, error) {
	tree, err := p.frameTree(ctx)
	if err != nil {
		return nil, err
	}
	var out []browser.Frame
	var walk func(t *page.FrameTree)
	walk = func(t *page.FrameTree) {
		out = append(out, p.frameFor(t))
		for _, child := range t.ChildFrames {
			walk(child)
		}
	}
	walk(tree)
	return out, nil
}

// frameFor returns the cached handle for a frame id, refreshing its name
// and URL so the isolated world survives across listings.
func (p *Page) frameFor(t *page.FrameTree) *Frame {
	id := string(t.Frame.ID)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frames == nil {
		p.frames = make(map[string]*Frame)
	}
	f, ok := p.frames[id]
	if !ok {
		f = &Frame{page: p, id: t.Frame.ID}
		p.frames[id] = f
	}
	f.setSnapshot(t.Frame.Name, t.Frame.URL+t.Frame.URLFragment)
	return f
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (p *Page) Content(ctx context.Context) (string, error) {
	var out string
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		res, exc, err := runtime.Evaluate(documentHTMLJS).WithReturnByValue(true).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		return jsoniter.Unmarshal(res.Value, &out)
	}))
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return out, nil
}

// close shuts the tab. Waiting for the target to go away is bounded.
func (p *Page) close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(p.tabCtx) }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to close page: %w", err)
		}
		return nil
	case <-time.After(closeTimeout):
		p.tabCancel()
		return fmt.Errorf("page did not close within %s", closeTimeout)
	}
}

func remoteObjectText(o *runtime.RemoteObject) string {
	if o == nil {
		return ""
	}
	if len(o.Value) > 0 {
		var s string
		if err := jsoniter.Unmarshal(o.Value, &s); err == nil {
			return s
		}
		return string(o.Value)
	}
	if o.UnserializableValue != "" {
		return string(o.UnserializableValue)
	}
	if o.Description != "" {
		return o.Description
	}
	return string(o.Type)
}

func exceptionText(d *runtime.ExceptionDetails) string {
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}
