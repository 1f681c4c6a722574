// internal/browser/static/static_test.go
package static

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/lancet/internal/browser"
	"go.uber.org/zap/zaptest"
)

const homePage = `<!doctype html>
<html><head><title>Viewer</title><script>var x = "Generar 3D";</script></head>
<body>
  <div id="app">
    <nav><button type="button" data-testid="tab-files">Archivos</button><button type="button">Modelos</button></nav>
    <a id="generate" href="/generated">Generar 3D</a>
    <p id="ghost" style="display: none">Hidden banner</p>
    <div hidden><span id="deep-hidden">Deep</span></div>
    <iframe name="preview" src="/frame/preview"></iframe>
    <iframe name="broken" src="/frame/missing-host"></iframe>
    <iframe name="inline" srcdoc="<p>inline doc</p>"></iframe>
  </div>
</body></html>`

const previewFrame = `<html><body><h2>Preview</h2><iframe name="nested" src="/frame/nested"></iframe></body></html>`

const nestedFrame = `<html><body><canvas id="scene"></canvas></body></html>`

const generatedPage = `<html><body><h1 class="status">Model generated</h1>
<form action="/upload" method="post" enctype="multipart/form-data">
  <input type="text" name="title" value="facade">
  <input type="checkbox" name="smooth" value="yes">
  <input type="file" name="model" data-testid="model-input">
  <button type="submit" name="go" value="1">Subir</button>
</form></body></html>`

type site struct {
	*httptest.Server
	uploads chan string
}

func newSite(t *testing.T) *site {
	t.Helper()
	s := &site{uploads: make(chan string, 1)}
	mux := http.NewServeMux()
	html := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = io.WriteString(w, body)
		}
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		html(homePage)(w, r)
	})
	mux.HandleFunc("/frame/preview", html(previewFrame))
	mux.HandleFunc("/frame/nested", html(nestedFrame))
	mux.HandleFunc("/frame/missing-host", func(w http.ResponseWriter, r *http.Request) {
		// Hijack and drop the connection so the fetch itself fails.
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	})
	mux.HandleFunc("/generated", html(generatedPage))
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("model")
		require.NoError(t, err)
		defer file.Close()
		content, _ := io.ReadAll(file)
		s.uploads <- fmt.Sprintf("%s|%s|%s|%s|%s", header.Filename, content, r.FormValue("title"), r.FormValue("smooth"), r.FormValue("go"))
		html(`<html><body><p class="toast">Model Upload Successful</p></body></html>`)(w, r)
	})
	mux.HandleFunc("/set-cookie", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		html(`<html><body>set</body></html>`)(w, r)
	})
	mux.HandleFunc("/echo-cookie", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("session")
		value := "none"
		if err == nil {
			value = c.Value
		}
		html(`<html><body><p id="cookie">`+value+`</p></body></html>`)(w, r)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func openPage(t *testing.T) (browser.Page, browser.Context) {
	t.Helper()
	ctx := context.Background()
	b, err := New(zaptest.NewLogger(t)).Launch(ctx, browser.LaunchOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(context.Background()) })

	bc, err := b.NewContext(ctx, browser.ContextOptions{})
	require.NoError(t, err)
	bc.SetDefaultTimeout(5 * time.Second)
	page, err := bc.NewPage(ctx)
	require.NoError(t, err)
	return page, bc
}

func TestFramesOrderAndReadiness(t *testing.T) {
	s := newSite(t)
	page, _ := openPage(t)
	ctx := context.Background()

	require.NoError(t, page.Goto(ctx, s.URL))

	frames, err := page.Frames(ctx)
	require.NoError(t, err)

	var names []string
	for _, f := range frames {
		names = append(names, f.Name())
	}
	// Main first, then depth first in document order. The broken frame is kept.
	want := []string{"", "preview", "nested", "broken", "inline"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("frame order mismatch (-want +got):\n%s", diff)
	}

	main, err := page.MainFrame(ctx)
	require.NoError(t, err)
	assert.Same(t, frames[0], main)
	assert.Equal(t, s.URL, main.URL())

	assert.NoError(t, frames[0].WaitForState(ctx, browser.LoadStateDOMContentLoaded))
	assert.NoError(t, frames[2].WaitForState(ctx, browser.LoadStateDOMContentLoaded))
	assert.Error(t, frames[3].WaitForState(ctx, browser.LoadStateDOMContentLoaded), "a frame that failed to load reports an error")
	assert.Equal(t, "about:srcdoc", frames[4].URL())

	assert.NotEmpty(t, page.Console(), "the failed frame load is reported on the console")
}

func TestQuery(t *testing.T) {
	s := newSite(t)
	page, _ := openPage(t)
	ctx := context.Background()
	require.NoError(t, page.Goto(ctx, s.URL))
	main, err := page.MainFrame(ctx)
	require.NoError(t, err)

	t.Run("xpath structural path", func(t *testing.T) {
		els, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxXPath, Expr: "html/body/div/nav/button"})
		require.NoError(t, err)
		require.Len(t, els, 2)
		text, err := els[1].Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Modelos", text)
	})

	t.Run("css selector", func(t *testing.T) {
		els, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxCSS, Expr: `[data-testid="tab-files"]`})
		require.NoError(t, err)
		require.Len(t, els, 1)
		assert.Contains(t, els[0].Describe(), `data-testid="tab-files"`)
	})

	t.Run("text nodes are lifted and deduplicated", func(t *testing.T) {
		els, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxXPath, Expr: "//a/text() | //a"})
		require.NoError(t, err)
		assert.Len(t, els, 1)
	})

	t.Run("attribute matches are dropped", func(t *testing.T) {
		els, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxXPath, Expr: "//a/@href"})
		require.NoError(t, err)
		assert.Empty(t, els)
	})

	t.Run("invalid xpath", func(t *testing.T) {
		_, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxXPath, Expr: "//*["})
		assert.Error(t, err)
	})

	t.Run("visibility", func(t *testing.T) {
		cases := map[string]bool{
			"//a[@id='generate']":       true,
			"//p[@id='ghost']":          false,
			"//span[@id='deep-hidden']": false,
			"//script":                  false,
		}
		for expr, want := range cases {
			els, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxXPath, Expr: expr})
			require.NoError(t, err)
			require.Len(t, els, 1, expr)
			got, err := els[0].IsVisible(ctx)
			require.NoError(t, err)
			assert.Equal(t, want, got, expr)
		}
	})

	t.Run("nested frame document", func(t *testing.T) {
		frames, err := page.Frames(ctx)
		require.NoError(t, err)
		els, err := frames[2].Query(ctx, browser.Query{Syntax: browser.SyntaxCSS, Expr: "canvas#scene"})
		require.NoError(t, err)
		assert.Len(t, els, 1)
	})
}

func TestClickFollowsLinksAndDetachesOldHandles(t *testing.T) {
	s := newSite(t)
	page, _ := openPage(t)
	ctx := context.Background()
	require.NoError(t, page.Goto(ctx, s.URL))
	main, _ := page.MainFrame(ctx)

	before, err := page.Frames(ctx)
	require.NoError(t, err)

	links, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxXPath, Expr: "//a[@id='generate']"})
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.NoError(t, links[0].Click(ctx))

	assert.Equal(t, s.URL+"/generated", main.URL())
	_, err = links[0].IsVisible(ctx)
	assert.ErrorIs(t, err, browser.ErrDetached)
	assert.ErrorIs(t, before[1].WaitForState(ctx, browser.LoadStateDOMContentLoaded), browser.ErrDetached)

	after, err := page.Frames(ctx)
	require.NoError(t, err)
	assert.Len(t, after, 1)
}

func TestClickHiddenElementIsNotInteractable(t *testing.T) {
	s := newSite(t)
	page, _ := openPage(t)
	ctx := context.Background()
	require.NoError(t, page.Goto(ctx, s.URL))
	main, _ := page.MainFrame(ctx)

	els, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxXPath, Expr: "//p[@id='ghost']"})
	require.NoError(t, err)
	assert.ErrorIs(t, els[0].Click(ctx), browser.ErrNotInteractable)
}

func TestMultipartUpload(t *testing.T) {
	s := newSite(t)
	page, _ := openPage(t)
	ctx := context.Background()
	require.NoError(t, page.Goto(ctx, s.URL+"/generated"))
	main, _ := page.MainFrame(ctx)

	model := filepath.Join(t.TempDir(), "facade.obj")
	require.NoError(t, os.WriteFile(model, []byte("v 0 0 0"), 0o600))

	input, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxCSS, Expr: `[data-testid="model-input"]`})
	require.NoError(t, err)
	require.NoError(t, input[0].SetFiles(ctx, []string{model}))

	box, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxCSS, Expr: `input[type=checkbox]`})
	require.NoError(t, err)
	require.NoError(t, box[0].Click(ctx))

	submit, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxCSS, Expr: "button"})
	require.NoError(t, err)
	require.NoError(t, submit[0].Click(ctx))

	select {
	case got := <-s.uploads:
		assert.Equal(t, "facade.obj|v 0 0 0|facade|yes|1", got)
	case <-time.After(2 * time.Second):
		t.Fatal("upload never reached the server")
	}

	toast, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxCSS, Expr: ".toast"})
	require.NoError(t, err)
	require.Len(t, toast, 1)
}

func TestSetFilesRejectsNonFileInputs(t *testing.T) {
	s := newSite(t)
	page, _ := openPage(t)
	ctx := context.Background()
	require.NoError(t, page.Goto(ctx, s.URL+"/generated"))
	main, _ := page.MainFrame(ctx)

	text, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxCSS, Expr: "input[name=title]"})
	require.NoError(t, err)
	assert.ErrorIs(t, text[0].SetFiles(ctx, []string{"x"}), browser.ErrNotInteractable)

	file, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxCSS, Expr: "input[type=file]"})
	require.NoError(t, err)
	assert.Error(t, file[0].SetFiles(ctx, []string{filepath.Join(t.TempDir(), "missing.obj")}))
}

func TestContextsAreIsolated(t *testing.T) {
	s := newSite(t)
	ctx := context.Background()
	b, err := New(zaptest.NewLogger(t)).Launch(ctx, browser.LaunchOptions{})
	require.NoError(t, err)
	defer b.Close(ctx)

	readCookie := func(bc browser.Context, setFirst bool) string {
		page, err := bc.NewPage(ctx)
		require.NoError(t, err)
		if setFirst {
			require.NoError(t, page.Goto(ctx, s.URL+"/set-cookie"))
		}
		require.NoError(t, page.Goto(ctx, s.URL+"/echo-cookie"))
		main, _ := page.MainFrame(ctx)
		els, err := main.Query(ctx, browser.Query{Syntax: browser.SyntaxCSS, Expr: "#cookie"})
		require.NoError(t, err)
		text, err := els[0].Text(ctx)
		require.NoError(t, err)
		return text
	}

	first, err := b.NewContext(ctx, browser.ContextOptions{})
	require.NoError(t, err)
	assert.Equal(t, "abc", readCookie(first, true))

	second, err := b.NewContext(ctx, browser.ContextOptions{})
	require.NoError(t, err)
	assert.Equal(t, "none", readCookie(second, false))
}

func TestClosedHandles(t *testing.T) {
	s := newSite(t)
	page, bc := openPage(t)
	ctx := context.Background()
	require.NoError(t, page.Goto(ctx, s.URL))

	require.NoError(t, bc.Close(ctx))
	require.NoError(t, bc.Close(ctx), "close is idempotent")
	assert.ErrorIs(t, page.Goto(ctx, s.URL), browser.ErrClosed)
	_, err := page.Frames(ctx)
	assert.ErrorIs(t, err, browser.ErrClosed)
	_, err = bc.NewPage(ctx)
	assert.ErrorIs(t, err, browser.ErrClosed)
}

func TestScreenshotUnsupported(t *testing.T) {
	page, _ := openPage(t)
	_, err := page.Screenshot(context.Background())
	assert.ErrorIs(t, err, browser.ErrUnsupported)

	content, err := page.Content(context.Background())
	require.NoError(t, err)
	assert.Contains(t, content, "<body>")
}

func TestGotoRequiresAbsoluteURL(t *testing.T) {
	page, _ := openPage(t)
	assert.Error(t, page.Goto(context.Background(), "/relative"))
}
