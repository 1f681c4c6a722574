// Package chrome drives a Chromium browser over the DevTools protocol.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/lancet/internal/browser"
	"go.uber.org/zap"
)

const (
	defaultLaunchTimeout = 30 * time.Second
	closeTimeout         = 10 * time.Second
)

// Provider launches Chromium instances through chromedp.
type Provider struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Provider {
	return &Provider{logger: logger.Named("chrome")}
}

func (p *Provider) Name() string { return "cdp" }

// Launch starts a local browser, or attaches to RemoteURL when it is set,
// and blocks until the browser answers or opts.Timeout elapses.
func (p *Provider) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultLaunchTimeout
	}

	// The allocator outlives the launch call, so it must not inherit ctx's
	// cancellation. Close tears it down.
	base := context.WithoutCancel(ctx)
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.RemoteURL != "" {
		p.logger.Info("Connecting to remote browser", zap.String("url", opts.RemoteURL))
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(base, opts.RemoteURL)
	} else {
		p.logger.Info("Launching browser",
			zap.Bool("headless", opts.Headless),
			zap.Strings("args", opts.Args))
		allocCtx, allocCancel = chromedp.NewExecAllocator(base, allocatorOptions(opts)...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(p.logger.Sugar().Debugf),
		chromedp.WithErrorf(p.logger.Sugar().Debugf),
	)

	// The first Run binds the browser's lifetime to the ctx it receives, so
	// it gets browserCtx itself and the deadline is enforced out here.
	if err := runBounded(ctx, browserCtx, timeout); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	p.logger.Info("Browser launched and responsive.")
	return &Browser{
		logger:        p.logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		contexts:      make(map[*Context]struct{}),
	}, nil
}

// runBounded executes the first Run on a chromedp context and waits for it
// up to timeout or until ctx is done.
func runBounded(ctx, cdpCtx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(cdpCtx, actions...) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("no response after %s: %w", timeout, context.DeadlineExceeded)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Browser is a running Chromium process.
type Browser struct {
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu       sync.Mutex
	contexts map[*Context]struct{}
	closed   bool
	once     sync.Once
	closeErr error
}

// NewContext creates an incognito-style browser context.
func (b *Browser) NewContext(ctx context.Context, opts browser.ContextOptions) (browser.Context, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, browser.ErrClosed
	}
	b.mu.Unlock()

	c := chromedp.FromContext(b.browserCtx)
	if c == nil || c.Browser == nil {
		return nil, fmt.Errorf("browser is not initialized: %w", browser.ErrClosed)
	}
	id, err := target.CreateBrowserContext().
		WithDisposeOnDetach(true).
		Do(cdp.WithExecutor(ctx, c.Browser))
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	bc := &Context{
		browser: b,
		logger:  b.logger.With(zap.String("browser_context", string(id))),
		id:      id,
		opts:    opts,
		pages:   make(map[*Page]struct{}),
	}
	b.mu.Lock()
	b.contexts[bc] = struct{}{}
	b.mu.Unlock()
	return bc, nil
}

// Close closes every context and shuts the browser down gracefully, falling
// back to killing the process. Calling it again returns the first result.
func (b *Browser) Close(ctx context.Context) error {
	b.once.Do(func() {
		b.mu.Lock()
		b.closed = true
		contexts := make([]*Context, 0, len(b.contexts))
		for c := range b.contexts {
			contexts = append(contexts, c)
		}
		b.mu.Unlock()

		var errs []error
		for _, c := range contexts {
			if err := c.Close(ctx); err != nil {
				errs = append(errs, err)
			}
		}

		cancelCtx, cancel := context.WithTimeout(b.browserCtx, closeTimeout)
		if err := chromedp.Cancel(cancelCtx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("graceful browser shutdown failed: %w", err))
		}
		cancel()
		b.browserCancel()
		b.allocCancel()
		b.closeErr = errors.Join(errs...)
		b.logger.Info("Browser closed.")
	})
	return b.closeErr
}

func (b *Browser) forget(c *Context) {
	b.mu.Lock()
	delete(b.contexts, c)
	b.mu.Unlock()
}

// Context is a browser context holding its own cookies and storage.
type Context struct {
	browser *Browser
	logger  *zap.Logger
	id      cdp.BrowserContextID
	opts    browser.ContextOptions
	timeout time.Duration

	mu     sync.Mutex
	pages  map[*Page]struct{}
	closed bool
}

func (c *Context) SetDefaultTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

func (c *Context) defaultTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// NewPage opens a tab inside the context and applies the viewport and
// user agent overrides.
func (c *Context) NewPage(ctx context.Context) (browser.Page, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, browser.ErrClosed
	}
	c.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(c.browser.browserCtx, chromedp.WithExistingBrowserContext(c.id))
	p := &Page{owner: c, logger: c.logger, tabCtx: tabCtx, tabCancel: tabCancel}

	// Listeners must be registered before the target exists so nothing
	// emitted during start-up is missed.
	chromedp.ListenTarget(tabCtx, p.onEvent)

	var setup []chromedp.Action
	if vp := c.opts.Viewport; vp.Width > 0 && vp.Height > 0 {
		setup = append(setup, chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height)))
	}
	if c.opts.UserAgent != "" {
		setup = append(setup, emulation.SetUserAgentOverride(c.opts.UserAgent))
	}

	timeout := c.defaultTimeout()
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		timeout = defaultLaunchTimeout
	}
	if err := runBounded(ctx, tabCtx, timeout, setup...); err != nil {
		tabCancel()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	c.mu.Lock()
	c.pages[p] = struct{}{}
	c.mu.Unlock()
	return p, nil
}

// Close closes all pages and disposes the browser context. It is safe to
// call more than once.
func (c *Context) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pages := make([]*Page, 0, len(c.pages))
	for p := range c.pages {
		pages = append(pages, p)
	}
	c.pages = nil
	c.mu.Unlock()

	var errs []error
	for _, p := range pages {
		if err := p.close(); err != nil {
			errs = append(errs, err)
		}
	}

	bc := chromedp.FromContext(c.browser.browserCtx)
	if bc != nil && bc.Browser != nil && c.browser.browserCtx.Err() == nil {
		disposeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		err := target.DisposeBrowserContext(c.id).Do(cdp.WithExecutor(disposeCtx, bc.Browser))
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to dispose browser context: %w", err))
		}
	}
	c.browser.forget(c)
	return errors.Join(errs...)
}
