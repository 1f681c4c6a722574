package reporting

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/xkilldash9x/lancet/internal/scenario"
)

// TextReporter prints one line per outcome and a summary on Close.
type TextReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
	counts Counts
}

func NewTextReporter(w io.WriteCloser) *TextReporter {
	return &TextReporter{writer: w}
}

func (r *TextReporter) Write(out *scenario.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts.add(out.Status)

	label := "PASS"
	switch out.Status {
	case scenario.StatusTimedOut:
		label = "TIME"
	case scenario.StatusFailed:
		label = "FAIL"
	}
	line := fmt.Sprintf("%s  %s (%s)", label, caseName(*out), out.Duration.Round(time.Millisecond))
	if !out.Passed() {
		line += "  " + out.Reason
	}
	_, err := fmt.Fprintln(r.writer, line)
	return err
}

func (r *TextReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintf(r.writer, "%d scenarios: %d passed, %d failed, %d timed out\n",
		r.counts.Total, r.counts.Passed, r.counts.Failed, r.counts.TimedOut)
	if cerr := r.writer.Close(); err == nil {
		err = cerr
	}
	return err
}
