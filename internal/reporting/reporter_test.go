package reporting_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/beevik/etree"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/lancet/internal/reporting"
	"github.com/xkilldash9x/lancet/internal/scenario"
)

const testToolVersion = "v1.0.0-test"

// bufferCloser records whether Close was called.
type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func outcomes() []scenario.Outcome {
	return []scenario.Outcome{
		{
			Scenario: "model-file-upload", ScenarioID: "TC006", RunID: "r1",
			Status:   scenario.StatusPassed,
			States:   []scenario.State{scenario.StateInitializing, scenario.StatePassed, scenario.StateDone},
			Duration: 1500 * time.Millisecond,
		},
		{
			Scenario: "viewer-orbit-controls", ScenarioID: "TC001", RunID: "r2",
			Status:   scenario.StatusFailed,
			Code:     scenario.CodeAssertionMismatch,
			Reason:   "[ASSERTION_MISMATCH] Test case failed: The 3D facade viewer did not allow smooth orbit",
			Steps:    []scenario.StepResult{{Index: 0, Intent: "Click 'Generar 3D'"}},
			Warnings: []string{"assertion may be inverted"},
			Duration: 2 * time.Second,
		},
		{
			Scenario: "smoke", RunID: "r3",
			Status: scenario.StatusFailed,
			Code:   scenario.CodeAcquisitionFailure,
			Reason: "[ACQUISITION_FAILURE] could not acquire a browser session",
		},
		{
			Scenario: "hidden-button", RunID: "r4",
			Status: scenario.StatusTimedOut,
			Code:   scenario.CodeInteractionTimeout,
			Reason: "[INTERACTION_TIMEOUT] step 1 (click) failed",
		},
	}
}

func writeAll(t *testing.T, r reporting.Reporter) {
	t.Helper()
	for _, o := range outcomes() {
		o := o
		require.NoError(t, r.Write(&o))
	}
	require.NoError(t, r.Close())
}

func TestJSONReport(t *testing.T) {
	buf := &bufferCloser{}
	r, err := reporting.NewWithWriter("json", buf, testToolVersion, zaptest.NewLogger(t))
	require.NoError(t, err)
	writeAll(t, r)
	assert.True(t, buf.closed)

	var doc reporting.Document
	require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "lancet", doc.Tool)
	assert.Equal(t, testToolVersion, doc.Version)
	assert.Equal(t, reporting.Counts{Total: 4, Passed: 1, Failed: 2, TimedOut: 1}, doc.Summary)
	require.Len(t, doc.Outcomes, 4)
	assert.Equal(t, scenario.CodeAssertionMismatch, doc.Outcomes[1].Code)
	assert.Equal(t, 2*time.Second, doc.Outcomes[1].Duration)
	assert.NotContains(t, buf.String(), `"Err"`)
}

func TestJUnitReport(t *testing.T) {
	buf := &bufferCloser{}
	r, err := reporting.NewWithWriter("junit", buf, testToolVersion, zaptest.NewLogger(t))
	require.NoError(t, err)
	writeAll(t, r)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(buf.Bytes()))
	suite := doc.FindElement("/testsuites/testsuite")
	require.NotNil(t, suite)
	assert.Equal(t, "4", suite.SelectAttrValue("tests", ""))
	assert.Equal(t, "2", suite.SelectAttrValue("failures", ""))
	assert.Equal(t, "1", suite.SelectAttrValue("errors", ""))

	cases := suite.SelectElements("testcase")
	require.Len(t, cases, 4)
	assert.Equal(t, "TC006 model-file-upload", cases[0].SelectAttrValue("name", ""))
	assert.Equal(t, "1.500", cases[0].SelectAttrValue("time", ""))
	assert.Nil(t, cases[0].SelectElement("failure"))

	failure := cases[1].SelectElement("failure")
	require.NotNil(t, failure)
	assert.Equal(t, "ASSERTION_MISMATCH", failure.SelectAttrValue("type", ""))
	assert.Contains(t, cases[1].SelectElement("system-out").Text(), "warning: assertion may be inverted")

	assert.NotNil(t, cases[2].SelectElement("error"))
	assert.NotNil(t, cases[3].SelectElement("failure"))
}

func TestTextReport(t *testing.T) {
	buf := &bufferCloser{}
	r, err := reporting.NewWithWriter("text", buf, testToolVersion, zaptest.NewLogger(t))
	require.NoError(t, err)
	writeAll(t, r)

	out := buf.String()
	assert.Contains(t, out, "PASS  TC006 model-file-upload (1.5s)")
	assert.Contains(t, out, "FAIL  TC001 viewer-orbit-controls (2s)  [ASSERTION_MISMATCH]")
	assert.Contains(t, out, "TIME  hidden-button")
	assert.Contains(t, out, "4 scenarios: 1 passed, 2 failed, 1 timed out")
}

func TestMulti(t *testing.T) {
	a, b := &bufferCloser{}, &bufferCloser{}
	logger := zaptest.NewLogger(t)
	ra, err := reporting.NewWithWriter("text", a, testToolVersion, logger)
	require.NoError(t, err)
	rb, err := reporting.NewWithWriter("json", b, testToolVersion, logger)
	require.NoError(t, err)
	writeAll(t, reporting.Multi{ra, rb})
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.NotEmpty(t, a.String())
	assert.NotEmpty(t, b.String())
}

func TestNew_File(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "report.xml")
	r, err := reporting.New("junit", tmpFile, testToolVersion, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	data, err := os.ReadFile(tmpFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<testsuites name="lancet" tests="0"`)
}

func TestNew_Stdout(t *testing.T) {
	r, err := reporting.New("text", "stdout", testToolVersion, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotNil(t, r)
}

// TestNew_Failure_UnsupportedFormat checks that no file is created for an unknown format.
func TestNew_Failure_UnsupportedFormat(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "output.sarif")
	r, err := reporting.New("sarif", tmpFile, testToolVersion, zaptest.NewLogger(t))
	assert.Error(t, err)
	assert.Nil(t, r)
	assert.NoFileExists(t, tmpFile)

	buf := &bufferCloser{}
	_, err = reporting.NewWithWriter("yaml", buf, testToolVersion, zaptest.NewLogger(t))
	assert.Error(t, err)
	assert.True(t, buf.closed)
}

// TestNew_Failure_FileCreation tests errors during output file creation.
func TestNew_Failure_FileCreation(t *testing.T) {
	invalidPath := t.TempDir()
	r, err := reporting.New("json", invalidPath, testToolVersion, zaptest.NewLogger(t))
	assert.Error(t, err)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), "failed to create output file")
}

var _ io.WriteCloser = (*bufferCloser)(nil)
