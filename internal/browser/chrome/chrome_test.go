package chrome

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/lancet/internal/browser"
	"go.uber.org/zap/zaptest"
)

func TestQuadHelpers(t *testing.T) {
	q := dom.Quad{10, 20, 30, 20, 30, 60, 10, 60}
	x, y := quadCenter(q)
	assert.Equal(t, 20.0, x)
	assert.Equal(t, 40.0, y)

	x, y = quadCenter(dom.Quad{})
	assert.Zero(t, x)
	assert.Zero(t, y)

	assert.True(t, sameQuad(q, dom.Quad{10.2, 20, 30, 20, 30, 60, 10, 60.4}))
	assert.False(t, sameQuad(q, dom.Quad{12, 20, 30, 20, 30, 60, 10, 60}))
	assert.False(t, sameQuad(q, dom.Quad{10, 20}))
}

func TestQueryExpressions(t *testing.T) {
	q := browser.Query{Syntax: browser.SyntaxXPath, Expr: `//div[@title="it's"]`}
	count, err := queryCountExpr(q)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(count, `("xpath", "//div[@title=\"it's\"]").length`), count)

	nth, err := queryNthExpr(browser.Query{Syntax: browser.SyntaxCSS, Expr: "button.primary"}, 2)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(nth, `("css", "button.primary")[2]`), nth)
}

func TestRemoteObjectText(t *testing.T) {
	assert.Equal(t, "", remoteObjectText(nil))
}

func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "headless-shell"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no Chromium binary on PATH")
	return ""
}

const fixturePage = `<!doctype html>
<html><body>
<h1 id="title">Facade studio</h1>
<button id="go" onclick="document.getElementById('out').textContent='clicked'">Generate</button>
<button id="off" disabled>Disabled</button>
<p id="out"></p>
<div style="display:none" id="ghost">ghost</div>
<iframe name="preview" srcdoc="<p id='inner'>inside</p>"></iframe>
</body></html>`

func TestChromeEndToEnd(t *testing.T) {
	execPath := findChrome(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(fixturePage))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	b, err := New(zaptest.NewLogger(t)).Launch(ctx, browser.LaunchOptions{
		Headless: true,
		ExecPath: execPath,
		Viewport: browser.Viewport{Width: 1280, Height: 720},
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, b.Close(context.Background())) }()

	bc, err := b.NewContext(ctx, browser.ContextOptions{Viewport: browser.Viewport{Width: 1280, Height: 720}})
	require.NoError(t, err)
	bc.SetDefaultTimeout(5 * time.Second)

	page, err := bc.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, page.Goto(ctx, srv.URL))

	main, err := page.MainFrame(ctx)
	require.NoError(t, err)
	require.NoError(t, main.WaitForState(ctx, browser.LoadStateDOMContentLoaded))

	frames, err := page.Frames(ctx)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, main.ID(), frames[0].ID())
	assert.Equal(t, "preview", frames[1].Name())

	require.NoError(t, frames[1].WaitForState(ctx, browser.LoadStateLoad))
	inner, err := frames[1].Query(ctx, browser.Query{Syntax: browser.SyntaxCSS, Expr: "#inner"})
	require.NoError(t, err)
	require.Len(t, inner, 1)
	text, err := inner[0].Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "inside", text)

	buttons, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxXPath, Expr: "//button"})
	require.NoError(t, err)
	require.Len(t, buttons, 2)
	require.NoError(t, buttons[0].Click(ctx))

	out, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxCSS, Expr: "#out"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	text, err = out[0].Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "clicked", text)

	err = buttons[1].Click(ctx)
	assert.ErrorIs(t, err, browser.ErrNotInteractable)

	ghost, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxCSS, Expr: "#ghost"})
	require.NoError(t, err)
	visible, err := ghost[0].IsVisible(ctx)
	require.NoError(t, err)
	assert.False(t, visible)

	_, err = main.Query(ctx, browser.Query{Syntax: browser.SyntaxXPath, Expr: "//*["})
	assert.Error(t, err)

	shot, err := page.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, shot)

	html, err := page.Content(ctx)
	require.NoError(t, err)
	assert.Contains(t, html, "Facade studio")

	require.NoError(t, bc.Close(ctx))
	_, err = page.Frames(ctx)
	assert.ErrorIs(t, err, browser.ErrClosed)
}
