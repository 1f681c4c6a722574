// Package static is a pure-Go browser provider. It fetches documents over
// HTTP, parses them into a DOM and evaluates XPath and CSS selectors
// without running JavaScript. Clicks follow links, submit forms and toggle
// inputs.
package static

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xkilldash9x/lancet/internal/browser"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

const (
	providerName     = "static"
	defaultUserAgent = "lancet-static/1.0"
)

// Provider launches static browsers.
type Provider struct {
	logger    *zap.Logger
	transport http.RoundTripper
}

// Option customizes a Provider.
type Option func(*Provider)

// WithTransport overrides the base HTTP transport, mostly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Provider) { p.transport = rt }
}

// New creates a static provider.
func New(logger *zap.Logger, opts ...Option) *Provider {
	p := &Provider{logger: logger.Named("static")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return providerName }

// Launch returns a browser sharing one connection pool across its contexts.
func (p *Provider) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := p.transport
	var owned *http.Transport
	if base == nil {
		owned = http.DefaultTransport.(*http.Transport).Clone()
		base = owned
	}
	p.logger.Debug("Static browser launched", zap.Strings("args", opts.Args))
	return &Browser{
		logger:    p.logger,
		transport: newDecompressingTransport(base),
		owned:     owned,
	}, nil
}

// Browser is a static browser instance.
type Browser struct {
	logger    *zap.Logger
	transport http.RoundTripper
	owned     *http.Transport

	mu       sync.Mutex
	contexts []*Context
	closed   bool
}

// NewContext creates a browsing context with its own cookie jar.
func (b *Browser) NewContext(ctx context.Context, opts browser.ContextOptions) (browser.Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, browser.ErrClosed
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	c := &Context{
		browser:   b,
		logger:    b.logger,
		client:    &http.Client{Transport: b.transport, Jar: jar},
		userAgent: ua,
	}
	b.contexts = append(b.contexts, c)
	return c, nil
}

// Close closes every context and drops idle connections.
func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	contexts := b.contexts
	b.contexts = nil
	b.mu.Unlock()

	for _, c := range contexts {
		_ = c.Close(ctx)
	}
	if b.owned != nil {
		b.owned.CloseIdleConnections()
	}
	return nil
}

// Context is an isolated static browsing context.
type Context struct {
	browser   *Browser
	logger    *zap.Logger
	client    *http.Client
	userAgent string
	timeout   atomic.Int64

	mu     sync.Mutex
	pages  []*Page
	closed bool
}

// NewPage opens an empty page.
func (c *Context) NewPage(ctx context.Context) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, browser.ErrClosed
	}
	p := newPage(c)
	c.pages = append(c.pages, p)
	return p, nil
}

func (c *Context) SetDefaultTimeout(d time.Duration) { c.timeout.Store(int64(d)) }

func (c *Context) defaultTimeout() time.Duration { return time.Duration(c.timeout.Load()) }

// Close closes every page. The cookie jar dies with the context.
func (c *Context) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for _, p := range c.pages {
		p.close()
	}
	c.pages = nil
	return nil
}
