// internal/browser/static/element.go
package static

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/xkilldash9x/lancet/internal/browser"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Element is a node handle bound to the frame document it was found in.
// Navigating the frame invalidates it.
type Element struct {
	frame      *Frame
	node       *html.Node
	generation uint64
}

func (e *Element) Describe() string {
	var b strings.Builder
	b.WriteString("<" + e.node.Data)
	if id := htmlquery.SelectAttr(e.node, "id"); id != "" {
		fmt.Fprintf(&b, " id=%q", id)
	}
	if tid := htmlquery.SelectAttr(e.node, "data-testid"); tid != "" {
		fmt.Fprintf(&b, " data-testid=%q", tid)
	}
	b.WriteString("> in frame " + e.frame.id)
	return b.String()
}

// Click applies the element's default action: follow a link, submit the
// owning form, or toggle a checkbox or radio.
func (e *Element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.frame.page.mu.RLock()
	err := e.interactableLocked()
	e.frame.page.mu.RUnlock()
	if err != nil {
		return err
	}
	return e.activate(ctx)
}

// Focus records the element as the frame's focused element.
func (e *Element) Focus(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.frame.page.mu.Lock()
	defer e.frame.page.mu.Unlock()
	if err := e.interactableLocked(); err != nil {
		return err
	}
	e.frame.focused = e.node
	return nil
}

func (e *Element) IsVisible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e.frame.page.mu.RLock()
	defer e.frame.page.mu.RUnlock()
	if err := e.staleLocked(); err != nil {
		return false, err
	}
	return isVisible(e.node), nil
}

// SetFiles attaches local files to a file input. They are sent when the
// owning multipart form is submitted.
func (e *Element) SetFiles(ctx context.Context, paths []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.frame.page.mu.Lock()
	defer e.frame.page.mu.Unlock()
	if err := e.staleLocked(); err != nil {
		return err
	}
	if !strings.EqualFold(e.node.Data, "input") || !strings.EqualFold(htmlquery.SelectAttr(e.node, "type"), "file") {
		return fmt.Errorf("%s is not a file input: %w", e.Describe(), browser.ErrNotInteractable)
	}
	if len(paths) > 1 && !htmlquery.ExistsAttr(e.node, "multiple") {
		return fmt.Errorf("%s accepts a single file, got %d", e.Describe(), len(paths))
	}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("upload file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("upload file %s is a directory", p)
		}
	}
	if e.frame.files == nil {
		e.frame.files = make(map[*html.Node][]string)
	}
	e.frame.files[e.node] = append([]string(nil), paths...)
	return nil
}

func (e *Element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.frame.page.mu.RLock()
	defer e.frame.page.mu.RUnlock()
	if err := e.staleLocked(); err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(e.node)), " "), nil
}

func (e *Element) staleLocked() error {
	if err := e.frame.usableLocked(); err != nil {
		return err
	}
	if e.generation != e.frame.generation {
		return fmt.Errorf("%s belongs to a replaced document: %w", e.Describe(), browser.ErrDetached)
	}
	return nil
}

func (e *Element) interactableLocked() error {
	if err := e.staleLocked(); err != nil {
		return err
	}
	if !isVisible(e.node) {
		return fmt.Errorf("%s is not visible: %w", e.Describe(), browser.ErrNotInteractable)
	}
	if htmlquery.ExistsAttr(e.node, "disabled") {
		return fmt.Errorf("%s is disabled: %w", e.Describe(), browser.ErrNotInteractable)
	}
	return nil
}

func (e *Element) activate(ctx context.Context) error {
	n := e.node
	tag := strings.ToLower(n.Data)
	inputType := strings.ToLower(htmlquery.SelectAttr(n, "type"))
	logger := e.frame.page.logger

	if tag == "a" {
		href := strings.TrimSpace(htmlquery.SelectAttr(n, "href"))
		if href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(strings.ToLower(href), "javascript:") {
			target, err := e.frame.resolve(href)
			if err != nil {
				return fmt.Errorf("failed to resolve link %q: %w", href, err)
			}
			req, err := e.frame.page.newRequest(ctx, http.MethodGet, target.String(), nil)
			if err != nil {
				return err
			}
			req.Header.Set("Referer", e.frame.URL())
			return e.frame.load(ctx, req)
		}
	}

	isSubmit := (tag == "button" && (inputType == "submit" || inputType == "")) ||
		(tag == "input" && (inputType == "submit" || inputType == "image"))
	if isSubmit {
		if form := findParentForm(n); form != nil {
			return e.frame.submit(ctx, form, n)
		}
	}

	if tag == "input" && (inputType == "checkbox" || inputType == "radio") {
		e.frame.page.mu.Lock()
		defer e.frame.page.mu.Unlock()
		if inputType == "checkbox" {
			if htmlquery.ExistsAttr(n, "checked") {
				removeAttr(n, "checked")
			} else {
				setAttr(n, "checked", "checked")
			}
			return nil
		}
		selectRadio(n)
		return nil
	}

	e.frame.page.mu.Lock()
	e.frame.focused = n
	e.frame.page.mu.Unlock()
	logger.Debug("Click has no default action without scripting", zap.String("element", e.Describe()))
	return nil
}

// isVisible approximates rendering: an element is hidden when it or any
// ancestor is non-rendered, carries the hidden attribute, or is styled
// display:none or visibility:hidden.
func isVisible(n *html.Node) bool {
	if strings.EqualFold(n.Data, "input") && strings.EqualFold(htmlquery.SelectAttr(n, "type"), "hidden") {
		return false
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		switch strings.ToLower(cur.Data) {
		case "head", "script", "style", "template", "noscript", "title", "meta", "link":
			return false
		}
		if htmlquery.ExistsAttr(cur, "hidden") {
			return false
		}
		style := strings.ReplaceAll(strings.ToLower(htmlquery.SelectAttr(cur, "style")), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

func selectRadio(n *html.Node) {
	name := htmlquery.SelectAttr(n, "name")
	if name == "" {
		setAttr(n, "checked", "checked")
		return
	}
	root := findParentForm(n)
	if root == nil {
		root = n
		for root.Parent != nil {
			root = root.Parent
		}
	}
	for _, radio := range htmlquery.Find(root, ".//input[@type='radio']") {
		if htmlquery.SelectAttr(radio, "name") != name {
			continue
		}
		if radio == n {
			setAttr(radio, "checked", "checked")
		} else {
			removeAttr(radio, "checked")
		}
	}
}

func removeAttr(n *html.Node, key string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func setAttr(n *html.Node, key, val string) {
	for i, attr := range n.Attr {
		if attr.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func findParentForm(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && strings.EqualFold(p.Data, "form") {
			return p
		}
	}
	return nil
}
