package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/scenario"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Document is the top level of a JSON report.
type Document struct {
	Tool      string             `json:"tool"`
	Version   string             `json:"version"`
	Generated time.Time          `json:"generated"`
	Summary   Counts             `json:"summary"`
	Outcomes  []scenario.Outcome `json:"outcomes"`
}

// Counts totals outcomes by status.
type Counts struct {
	Total    int `json:"total"`
	Passed   int `json:"passed"`
	Failed   int `json:"failed"`
	TimedOut int `json:"timed_out"`
}

func (c *Counts) add(s scenario.Status) {
	c.Total++
	switch s {
	case scenario.StatusPassed:
		c.Passed++
	case scenario.StatusTimedOut:
		c.TimedOut++
	default:
		c.Failed++
	}
}

// JSONReporter buffers outcomes and writes one document on Close. It is
// safe for concurrent use.
type JSONReporter struct {
	writer io.WriteCloser
	logger *zap.Logger
	mu     sync.Mutex
	doc    Document
}

func NewJSONReporter(w io.WriteCloser, toolVersion string, logger *zap.Logger) *JSONReporter {
	return &JSONReporter{
		writer: w,
		logger: logger,
		doc: Document{
			Tool:     ToolName,
			Version:  toolVersion,
			Outcomes: []scenario.Outcome{},
		},
	}
}

func (r *JSONReporter) Write(out *scenario.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc.Outcomes = append(r.doc.Outcomes, *out)
	r.doc.Summary.add(out.Status)
	return nil
}

// Close encodes the document and closes the writer.
func (r *JSONReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.doc.Generated = time.Now().UTC()
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	encodeErr := encoder.Encode(r.doc)
	// Always attempt to close the writer, regardless of encoding success.
	closeErr := r.writer.Close()

	if encodeErr != nil {
		return fmt.Errorf("failed to encode JSON report: %w", encodeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Debug("Wrote JSON report.", zap.Int("outcomes", len(r.doc.Outcomes)))
	return nil
}
