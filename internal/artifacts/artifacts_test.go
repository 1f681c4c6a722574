package artifacts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/lancet/internal/browser"
	"github.com/xkilldash9x/lancet/internal/mocks"
)

func newWriter(t *testing.T) *Writer {
	w, err := New(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return w
}

func TestCaptureWritesEverything(t *testing.T) {
	w := newWriter(t)
	page := new(mocks.MockPage)
	page.On("Screenshot", mock.Anything).Return([]byte("\x89PNG"), nil)
	page.On("Content", mock.Anything).Return("<html><body>boom</body></html>", nil)
	page.On("Console").Return([]browser.ConsoleEntry{{Level: "error", Text: "WebGL context lost", Timestamp: time.Unix(0, 0).UTC()}})

	paths, err := w.Capture(context.Background(), "viewer-orbit-controls", "run-1", page)
	require.NoError(t, err)

	dir := w.RunDir("viewer-orbit-controls", "run-1")
	assert.Equal(t, []string{
		filepath.Join(dir, ScreenshotFile),
		filepath.Join(dir, HTMLFile),
		filepath.Join(dir, ConsoleFile),
	}, paths)

	data, err := os.ReadFile(filepath.Join(dir, ConsoleFile))
	require.NoError(t, err)
	var entries []browser.ConsoleEntry
	require.NoError(t, jsoniter.Unmarshal(data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "WebGL context lost", entries[0].Text)
}

func TestCaptureSkipsUnsupportedAndKeepsGoing(t *testing.T) {
	w := newWriter(t)
	page := new(mocks.MockPage)
	page.On("Screenshot", mock.Anything).Return(nil, browser.ErrUnsupported)
	page.On("Content", mock.Anything).Return("", errors.New("page closed"))
	page.On("Console").Return(nil)

	paths, err := w.Capture(context.Background(), "upload", "r", page)
	assert.ErrorContains(t, err, "page closed")
	require.Len(t, paths, 1)
	assert.Equal(t, ConsoleFile, filepath.Base(paths[0]))

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestSaveScreenshot(t *testing.T) {
	w := newWriter(t)
	p, err := w.SaveScreenshot(context.Background(), "model upload", "abc", "after/upload", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(w.Dir(), "model-upload-abc", "after-upload.png"), p)
	assert.FileExists(t, p)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "TC001-viewer", sanitize("TC001 viewer"))
	assert.Equal(t, "unnamed", sanitize("../"))
	assert.Equal(t, "a.b_c", sanitize("a.b_c"))
}

func TestNewRejectsEmptyDir(t *testing.T) {
	_, err := New(" ", zaptest.NewLogger(t))
	assert.Error(t, err)
}
