package chrome

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/xkilldash9x/lancet/internal/browser"
)

// queryAllJS collects the elements matching a query in document order.
// Text and attribute matches are lifted to their owning element.
const queryAllJS = `(syntax, expr) => {
	let nodes = [];
	if (syntax === 'xpath') {
		const snap = document.evaluate(expr, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null);
		for (let i = 0; i < snap.snapshotLength; i++) nodes.push(snap.snapshotItem(i));
	} else {
		nodes = Array.from(document.querySelectorAll(expr));
	}
	const seen = new Set();
	const out = [];
	for (let n of nodes) {
		if (n.nodeType === Node.ATTRIBUTE_NODE) n = n.ownerElement;
		else if (n.nodeType !== Node.ELEMENT_NODE) n = n.parentElement;
		if (n && !seen.has(n)) {
			seen.add(n);
			out.push(n);
		}
	}
	return out;
}`

const readyStateJS = `document.readyState`

const documentHTMLJS = `document.documentElement ? document.documentElement.outerHTML : ''`

const isVisibleJS = `function() {
	if (!this.isConnected) return false;
	const style = this.ownerDocument.defaultView.getComputedStyle(this);
	if (style.visibility === 'hidden' || style.display === 'none') return false;
	const rect = this.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
}`

const isEnabledJS = `function() { return !this.disabled; }`

// hitTestJS reports whether a click at the element's center would land on
// the element itself rather than something covering it.
const hitTestJS = `function() {
	const rect = this.getBoundingClientRect();
	const hit = this.ownerDocument.elementFromPoint(rect.left + rect.width / 2, rect.top + rect.height / 2);
	return !!hit && (hit === this || this.contains(hit));
}`

const innerTextJS = `function() {
	const t = this.innerText !== undefined ? this.innerText : this.textContent;
	return t || '';
}`

const isFileInputJS = `function() {
	return this.tagName === 'INPUT' && (this.type || '').toLowerCase() === 'file';
}`

func syntaxName(s browser.QuerySyntax) string {
	if s == browser.SyntaxXPath {
		return "xpath"
	}
	return "css"
}

// queryCountExpr evaluates to the number of elements q matches.
func queryCountExpr(q browser.Query) (string, error) {
	args, err := queryArgs(q)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s)(%s).length", queryAllJS, args), nil
}

// queryNthExpr evaluates to the index-th element q matches, or undefined.
func queryNthExpr(q browser.Query, index int) (string, error) {
	args, err := queryArgs(q)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s)(%s)[%d]", queryAllJS, args, index), nil
}

func queryArgs(q browser.Query) (string, error) {
	syntax, err := jsoniter.MarshalToString(syntaxName(q.Syntax))
	if err != nil {
		return "", err
	}
	expr, err := jsoniter.MarshalToString(q.Expr)
	if err != nil {
		return "", fmt.Errorf("failed to encode query %s: %w", q, err)
	}
	return syntax + ", " + expr, nil
}
