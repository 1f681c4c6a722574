// Package browser defines the provider-neutral automation surface the
// harness drives. Concrete backends live in the chrome and static subpackages.
package browser

import (
	"context"
	"time"
)

// LoadState is a document lifecycle milestone a frame can be waited on.
type LoadState string

const (
	// LoadStateDOMContentLoaded fires once the document has been parsed.
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"
	// LoadStateLoad fires once all subresources have loaded.
	LoadStateLoad LoadState = "load"
)

// QuerySyntax is the selector language a Query is written in.
type QuerySyntax int

const (
	SyntaxXPath QuerySyntax = iota
	SyntaxCSS
)

func (s QuerySyntax) String() string {
	switch s {
	case SyntaxXPath:
		return "xpath"
	case SyntaxCSS:
		return "css"
	default:
		return "unknown"
	}
}

// Query is a compiled element selector a provider evaluates natively.
type Query struct {
	Syntax QuerySyntax
	Expr   string
}

func (q Query) String() string { return q.Syntax.String() + "=" + q.Expr }

// Viewport is a window size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// LaunchOptions configures a browser process.
type LaunchOptions struct {
	Headless  bool
	ExecPath  string
	RemoteURL string
	// Args are extra command line switches in "--name" or "--name=value" form.
	Args     []string
	Viewport Viewport
	// Timeout bounds process start-up.
	Timeout time.Duration
}

// ContextOptions configures an isolated browsing context.
type ContextOptions struct {
	Viewport  Viewport
	UserAgent string
}

// ConsoleEntry is one console message or uncaught page error.
type ConsoleEntry struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Provider launches browsers.
type Provider interface {
	Name() string
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is a running browser process.
type Browser interface {
	NewContext(ctx context.Context, opts ContextOptions) (Context, error)
	Close(ctx context.Context) error
}

// Context is an isolated browsing context with its own cookies and storage.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	// SetDefaultTimeout bounds every page operation whose ctx carries no deadline.
	SetDefaultTimeout(d time.Duration)
	Close(ctx context.Context) error
}

// Page is a single tab.
type Page interface {
	// Goto navigates the main frame and returns once the navigation has
	// committed. The caller bounds it through ctx.
	Goto(ctx context.Context, url string) error
	MainFrame(ctx context.Context) (Frame, error)
	// Frames returns the main frame first, then nested frames depth first
	// in document order. Detached and cross-origin frames are included.
	Frames(ctx context.Context) ([]Frame, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Content(ctx context.Context) (string, error)
	Console() []ConsoleEntry
}

// Frame is one document in a page's frame tree.
type Frame interface {
	ID() string
	Name() string
	URL() string
	WaitForState(ctx context.Context, state LoadState) error
	// Query returns every element matching q at call time, in document order.
	Query(ctx context.Context, q Query) ([]Element, error)
}

// Element is a handle to a DOM element inside a frame.
type Element interface {
	Click(ctx context.Context) error
	Focus(ctx context.Context) error
	IsVisible(ctx context.Context) (bool, error)
	SetFiles(ctx context.Context, paths []string) error
	Text(ctx context.Context) (string, error)
	Describe() string
}
