// internal/reporting/junit_reporter.go
package reporting

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/scenario"
)

// JUnitReporter renders outcomes as a JUnit XML test suite on Close.
// Setup failures (no session, no page, internal errors) are reported as
// <error>; everything else that did not pass is a <failure>.
type JUnitReporter struct {
	writer   io.WriteCloser
	logger   *zap.Logger
	mu       sync.Mutex
	outcomes []scenario.Outcome
}

func NewJUnitReporter(w io.WriteCloser, logger *zap.Logger) *JUnitReporter {
	return &JUnitReporter{writer: w, logger: logger}
}

func (r *JUnitReporter) Write(out *scenario.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, *out)
	return nil
}

func (r *JUnitReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := r.build()
	doc.Indent(2)
	_, writeErr := doc.WriteTo(r.writer)
	closeErr := r.writer.Close()
	if writeErr != nil {
		return fmt.Errorf("failed to write JUnit report: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}
	r.logger.Debug("Wrote JUnit report.", zap.Int("testcases", len(r.outcomes)))
	return nil
}

func (r *JUnitReporter) build() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	var failures, errs int
	var total time.Duration
	for _, o := range r.outcomes {
		total += o.Duration
		switch {
		case o.Passed():
		case isSetupError(o.Code):
			errs++
		default:
			failures++
		}
	}

	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", ToolName)
	suites.CreateAttr("tests", strconv.Itoa(len(r.outcomes)))
	suites.CreateAttr("failures", strconv.Itoa(failures))
	suites.CreateAttr("errors", strconv.Itoa(errs))
	suites.CreateAttr("time", seconds(total))

	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", ToolName)
	suite.CreateAttr("tests", strconv.Itoa(len(r.outcomes)))
	suite.CreateAttr("failures", strconv.Itoa(failures))
	suite.CreateAttr("errors", strconv.Itoa(errs))
	suite.CreateAttr("skipped", "0")
	suite.CreateAttr("time", seconds(total))
	suite.CreateAttr("timestamp", time.Now().UTC().Format("2006-01-02T15:04:05"))

	for _, o := range r.outcomes {
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", caseName(o))
		tc.CreateAttr("classname", ToolName+".scenario")
		tc.CreateAttr("time", seconds(o.Duration))

		if !o.Passed() {
			tag := "failure"
			if isSetupError(o.Code) {
				tag = "error"
			}
			f := tc.CreateElement(tag)
			f.CreateAttr("type", string(o.Code))
			f.CreateAttr("message", firstLine(o.Reason))
			f.SetText(o.Reason)
		}

		out := tc.CreateElement("system-out")
		out.SetText(trace(o))
	}
	return doc
}

func isSetupError(c scenario.ErrorCode) bool {
	switch c {
	case scenario.CodeAcquisitionFailure, scenario.CodeNavigationFailure, scenario.CodeInternalError:
		return true
	}
	return false
}

func caseName(o scenario.Outcome) string {
	if o.ScenarioID != "" {
		return o.ScenarioID + " " + o.Scenario
	}
	return o.Scenario
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// trace renders the states and steps of a run for system-out.
func trace(o scenario.Outcome) string {
	var b strings.Builder
	states := make([]string, len(o.States))
	for i, s := range o.States {
		states[i] = string(s)
	}
	fmt.Fprintf(&b, "run %s states %s\n", o.RunID, strings.Join(states, " > "))
	for _, s := range o.Steps {
		status := "ok"
		if s.Error != "" {
			status = s.Error
		}
		fmt.Fprintf(&b, "step %d %s: %s\n", s.Index+1, s.Intent, status)
	}
	for _, w := range o.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	for _, a := range o.Artifacts {
		fmt.Fprintf(&b, "artifact: %s\n", a)
	}
	return b.String()
}
