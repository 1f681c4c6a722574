package static

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/xkilldash9x/lancet/internal/browser"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Frame is one document in a static page. Fields are guarded by page.mu.
type Frame struct {
	page   *Page
	parent *Frame
	id     string
	name   string

	url        *url.URL
	doc        *html.Node
	err        error
	children   []*Frame
	detached   bool
	generation uint64
	files      map[*html.Node][]string
	focused    *html.Node
}

func (f *Frame) ID() string   { return f.id }
func (f *Frame) Name() string { return f.name }

func (f *Frame) URL() string {
	f.page.mu.RLock()
	defer f.page.mu.RUnlock()
	if f.url == nil {
		return ""
	}
	return f.url.String()
}

// WaitForState returns immediately: documents are parsed synchronously, so a
// frame is either loaded, failed or detached.
func (f *Frame) WaitForState(ctx context.Context, state browser.LoadState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.page.mu.RLock()
	defer f.page.mu.RUnlock()
	if err := f.usableLocked(); err != nil {
		return err
	}
	if f.err != nil {
		return fmt.Errorf("frame %s never reached %s: %w", f.id, state, f.err)
	}
	return nil
}

// Query evaluates q against the frame's current document. Text and
// attribute matches are lifted to their owning element.
func (f *Frame) Query(ctx context.Context, q browser.Query) ([]browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.page.mu.RLock()
	defer f.page.mu.RUnlock()
	if err := f.usableLocked(); err != nil {
		return nil, err
	}
	if f.doc == nil {
		return nil, nil
	}

	var nodes []*html.Node
	switch q.Syntax {
	case browser.SyntaxXPath:
		found, err := htmlquery.QueryAll(f.doc, q.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", q.Expr, err)
		}
		nodes = found
	case browser.SyntaxCSS:
		nodes = goquery.NewDocumentFromNode(f.doc).Find(q.Expr).Nodes
	default:
		return nil, fmt.Errorf("query syntax %s: %w", q.Syntax, browser.ErrUnsupported)
	}

	seen := make(map[*html.Node]bool, len(nodes))
	out := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		n = owningElement(n)
		if n == nil || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, &Element{frame: f, node: n, generation: f.generation})
	}
	return out, nil
}

func (f *Frame) usableLocked() error {
	if f.page.closed {
		return browser.ErrClosed
	}
	if f.detached {
		return browser.ErrDetached
	}
	return nil
}

func (f *Frame) resolve(ref string) (*url.URL, error) {
	f.page.mu.RLock()
	base := f.url
	f.page.mu.RUnlock()

	parsed, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	if base != nil && base.Scheme != "about" {
		return base.ResolveReference(parsed), nil
	}
	return parsed, nil
}

// load replaces the frame's document with the response to req. Previous
// descendants are detached.
func (f *Frame) load(ctx context.Context, req *http.Request) error {
	doc, final, err := f.page.fetch(req)
	if err != nil {
		return err
	}
	children := f.page.loadChildren(ctx, f, doc, final, f.depth()+1)

	f.page.mu.Lock()
	defer f.page.mu.Unlock()
	if f.page.closed {
		return browser.ErrClosed
	}
	for _, c := range f.children {
		c.detach()
	}
	f.url = final
	f.doc = doc
	f.err = nil
	f.children = children
	f.generation++
	f.files = nil
	f.focused = nil
	f.page.logger.Debug("Frame navigated", zap.String("frame", f.id), zap.String("url", final.String()), zap.Int("children", len(children)))
	return nil
}

func (f *Frame) detach() {
	f.detached = true
	for _, c := range f.children {
		c.detach()
	}
}

func (f *Frame) depth() int {
	d := 0
	for p := f.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// owningElement lifts n to the nearest element. Attribute matches come back
// from htmlquery as parentless synthetic elements and are dropped.
func owningElement(n *html.Node) *html.Node {
	for n != nil && n.Type != html.ElementNode {
		n = n.Parent
	}
	if n != nil && n.Parent == nil {
		return nil
	}
	return n
}
