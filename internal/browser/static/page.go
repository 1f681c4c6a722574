// internal/browser/static/page.go
package static

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/xkilldash9x/lancet/internal/browser"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

const maxFrameDepth = 4

// Page is a static tab. All frame state is guarded by mu.
type Page struct {
	owner  *Context
	logger *zap.Logger
	main   *Frame
	nextID atomic.Int64

	mu      sync.RWMutex
	console []browser.ConsoleEntry
	closed  bool
}

func newPage(c *Context) *Page {
	p := &Page{owner: c, logger: c.logger}
	p.main = &Frame{page: p, id: "main", url: blankURL(), doc: blankDocument()}
	return p
}

// Goto loads rawURL into the main frame along with its iframes.
func (p *Page) Goto(ctx context.Context, rawURL string) error {
	ctx, cancel := browser.WithDefaultTimeout(ctx, p.owner.defaultTimeout())
	defer cancel()

	if err := p.alive(); err != nil {
		return err
	}
	target, err := p.main.resolve(rawURL)
	if err != nil {
		return fmt.Errorf("failed to resolve URL %q: %w", rawURL, err)
	}
	if !target.IsAbs() {
		return fmt.Errorf("navigation target must be an absolute URL: %q", rawURL)
	}
	req, err := p.newRequest(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return err
	}
	return p.main.load(ctx, req)
}

func (p *Page) MainFrame(context.Context) (browser.Frame, error) {
	if err := p.alive(); err != nil {
		return nil, err
	}
	return p.main, nil
}

// Frames walks the frame tree, main frame first.
func (p *Page) Frames(ctx context.Context) ([]browser.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, browser.ErrClosed
	}
	var out []browser.Frame
	var walk func(f *Frame)
	walk = func(f *Frame) {
		out = append(out, f)
		for _, c := range f.children {
			walk(c)
		}
	}
	walk(p.main)
	return out, nil
}

// Screenshot is not available without a renderer.
func (p *Page) Screenshot(context.Context) ([]byte, error) {
	return nil, fmt.Errorf("static screenshot: %w", browser.ErrUnsupported)
}

// Content serializes the main document.
func (p *Page) Content(context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return "", browser.ErrClosed
	}
	return htmlquery.OutputHTML(p.main.doc, true), nil
}

func (p *Page) Console() []browser.ConsoleEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]browser.ConsoleEntry, len(p.console))
	copy(out, p.console)
	return out
}

func (p *Page) close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *Page) alive() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return browser.ErrClosed
	}
	return nil
}

func (p *Page) record(level, text string) {
	p.mu.Lock()
	p.console = append(p.console, browser.ConsoleEntry{Level: level, Text: text, Timestamp: time.Now()})
	p.mu.Unlock()
}

func (p *Page) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %q: %w", target, err)
	}
	req.Header.Set("User-Agent", p.owner.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	return req, nil
}

// fetch performs req and parses the response. HTTP error statuses still
// yield a document, as a real browser would render the error page.
func (p *Page) fetch(req *http.Request) (*html.Node, *url.URL, error) {
	p.logger.Debug("Fetching document", zap.String("method", req.Method), zap.String("url", req.URL.String()))
	resp, err := p.owner.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request for %s failed: %w", req.URL, err)
	}
	defer resp.Body.Close()

	final := resp.Request.URL
	if resp.StatusCode >= http.StatusBadRequest {
		p.logger.Warn("Document request returned an error status",
			zap.Int("status", resp.StatusCode), zap.String("url", final.String()))
		p.record("error", fmt.Sprintf("Failed to load resource: the server responded with a status of %d (%s)", resp.StatusCode, final))
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if contentType != "" && !strings.Contains(contentType, "html") {
		_, _ = io.Copy(io.Discard, resp.Body)
		return blankDocument(), final, nil
	}

	doc, err := htmlquery.Parse(resp.Body)
	if err != nil {
		return nil, final, fmt.Errorf("failed to parse HTML from %s: %w", final, err)
	}
	return doc, final, nil
}

// loadChildren builds frames for every iframe in doc. A frame that fails
// to load stays in the tree carrying its error.
func (p *Page) loadChildren(ctx context.Context, parent *Frame, doc *html.Node, base *url.URL, depth int) []*Frame {
	if depth > maxFrameDepth {
		return nil
	}
	var children []*Frame
	for _, n := range htmlquery.Find(doc, "//*[self::iframe or self::frame]") {
		child := &Frame{
			page:   p,
			parent: parent,
			id:     fmt.Sprintf("frame-%d", p.nextID.Add(1)),
			name:   htmlquery.SelectAttr(n, "name"),
		}
		children = append(children, child)

		if srcdoc := htmlquery.SelectAttr(n, "srcdoc"); srcdoc != "" {
			child.url = &url.URL{Scheme: "about", Opaque: "srcdoc"}
			parsed, err := htmlquery.Parse(strings.NewReader(srcdoc))
			if err != nil {
				child.err = err
				continue
			}
			child.doc = parsed
			child.children = p.loadChildren(ctx, child, parsed, base, depth+1)
			continue
		}

		src := strings.TrimSpace(htmlquery.SelectAttr(n, "src"))
		if src == "" || src == "about:blank" {
			child.url = blankURL()
			child.doc = blankDocument()
			continue
		}
		target, err := base.Parse(src)
		if err != nil {
			child.err = err
			child.url = &url.URL{Opaque: src}
			continue
		}
		child.url = target

		req, err := p.newRequest(ctx, http.MethodGet, target.String(), nil)
		if err == nil {
			req.Header.Set("Referer", base.String())
			var final *url.URL
			child.doc, final, err = p.fetch(req)
			if final != nil {
				child.url = final
			}
		}
		if err != nil {
			child.err = err
			p.record("error", fmt.Sprintf("failed to load frame %s: %v", target, err))
			continue
		}
		child.children = p.loadChildren(ctx, child, child.doc, child.url, depth+1)
	}
	return children
}

func blankURL() *url.URL { return &url.URL{Scheme: "about", Opaque: "blank"} }

func blankDocument() *html.Node {
	doc, _ := html.Parse(strings.NewReader(""))
	return doc
}
