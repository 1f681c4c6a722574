// Package artifacts writes the evidence a failed run leaves behind.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/browser"
)

// File names inside a run directory.
const (
	ScreenshotFile = "screenshot.png"
	HTMLFile       = "page.html"
	ConsoleFile    = "console.json"
)

// nameSanitizer collapses anything unsafe in a path segment into a hyphen.
var nameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// Writer stores artifacts under dir/<scenario>-<run id>/.
type Writer struct {
	dir    string
	logger *zap.Logger
}

// New returns a Writer rooted at dir. A leading ~ is expanded; the
// directory is created lazily.
func New(dir string, logger *zap.Logger) (*Writer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("artifacts directory must not be empty")
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand artifacts directory: %w", err)
	}
	return &Writer{dir: expanded, logger: logger.Named("artifacts")}, nil
}

// Dir returns the root directory.
func (w *Writer) Dir() string { return w.dir }

// RunDir is the directory a run's artifacts are written to.
func (w *Writer) RunDir(scenario, runID string) string {
	return filepath.Join(w.dir, sanitize(scenario)+"-"+sanitize(runID))
}

// Capture saves a screenshot, the main document and the console log of
// page. Pieces the provider cannot produce are skipped; the rest are still
// written. It returns the paths written.
func (w *Writer) Capture(ctx context.Context, scenario, runID string, page browser.Page) ([]string, error) {
	dir, err := w.ensure(scenario, runID)
	if err != nil {
		return nil, err
	}
	logger := w.logger.With(zap.String("dir", dir))

	var paths []string
	var errs []error
	save := func(name string, data []byte) {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, data, 0o644); err != nil {
			errs = append(errs, fmt.Errorf("write %s: %w", name, err))
			return
		}
		paths = append(paths, p)
	}

	png, err := page.Screenshot(ctx)
	switch {
	case errors.Is(err, browser.ErrUnsupported):
		logger.Debug("Provider cannot capture screenshots.")
	case err != nil:
		errs = append(errs, fmt.Errorf("screenshot: %w", err))
	default:
		save(ScreenshotFile, png)
	}

	html, err := page.Content(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("page content: %w", err))
	} else {
		save(HTMLFile, []byte(html))
	}

	entries := page.Console()
	if entries == nil {
		entries = []browser.ConsoleEntry{}
	}
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(entries, "", "  ")
	if err != nil {
		errs = append(errs, fmt.Errorf("encode console log: %w", err))
	} else {
		save(ConsoleFile, data)
	}

	logger.Info("Captured failure artifacts.", zap.Int("files", len(paths)))
	return paths, errors.Join(errs...)
}

// SaveScreenshot writes png as <name>.png in the run's directory.
func (w *Writer) SaveScreenshot(_ context.Context, scenario, runID, name string, png []byte) (string, error) {
	dir, err := w.ensure(scenario, runID)
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, sanitize(name)+".png")
	if err := os.WriteFile(p, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	w.logger.Debug("Saved screenshot.", zap.String("path", p))
	return p, nil
}

func (w *Writer) ensure(scenario, runID string) (string, error) {
	dir := w.RunDir(scenario, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	return dir, nil
}

func sanitize(s string) string {
	s = strings.Trim(nameSanitizer.ReplaceAllString(s, "-"), "-.")
	if s == "" {
		return "unnamed"
	}
	return s
}
