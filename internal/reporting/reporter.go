// internal/reporting/reporter.go
package reporting

import (
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/scenario"
)

// ToolName identifies lancet in report metadata.
const ToolName = "lancet"

// Reporter receives outcomes as runs finish.
type Reporter interface {
	// Write records a single outcome.
	Write(out *scenario.Outcome) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format ("json", "junit" or "text") writing to
// outputPath. An empty path or "stdout" writes to standard output.
func New(format, outputPath, toolVersion string, logger *zap.Logger) (Reporter, error) {
	switch format {
	case "json", "junit", "text":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = NopCloser(os.Stdout)
	} else {
		p, err := homedir.Expand(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to expand output path %s: %w", outputPath, err)
		}
		f, err := os.Create(p)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}
	return NewWithWriter(format, writer, toolVersion, logger)
}

// NewWithWriter creates a reporter that takes ownership of w.
func NewWithWriter(format string, w io.WriteCloser, toolVersion string, logger *zap.Logger) (Reporter, error) {
	logger = logger.Named("reporting")
	switch format {
	case "json":
		return NewJSONReporter(w, toolVersion, logger), nil
	case "junit":
		return NewJUnitReporter(w, logger), nil
	case "text":
		return NewTextReporter(w), nil
	default:
		w.Close()
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Multi fans outcomes out to several reporters.
type Multi []Reporter

func (m Multi) Write(out *scenario.Outcome) error {
	var first error
	for _, r := range m {
		if err := r.Write(out); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every reporter and returns the first error.
func (m Multi) Close() error {
	var first error
	for _, r := range m {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NopCloser wraps w so closing a reporter leaves w open.
func NopCloser(w io.Writer) io.WriteCloser {
	return &nopWriteCloser{w}
}
