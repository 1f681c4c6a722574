package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/lancet/internal/observability"
	"github.com/xkilldash9x/lancet/internal/reporting"
)

const homePage = `<!doctype html>
<html><body>
  <div><a id="generate" href="/viewer">Generar 3D</a></div>
</body></html>`

const viewerPage = `<!doctype html>
<html><body><p>Model Upload Successful</p></body></html>`

func app3D(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(homePage))
	})
	mux.HandleFunc("/viewer", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(viewerPage))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func scenarioFile(t *testing.T, dir, name, expect string) string {
	t.Helper()
	doc := fmt.Sprintf(`name: %s
steps:
  - intent: Open the viewer
    locator: css=#generate
assertion:
  locator: text=%s
  timeout: 500ms
`, name, expect)
	p := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(p, []byte(doc), 0o644))
	return p
}

// execute runs the command line with stdout and stderr captured.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Cleanup(observability.ResetForTest)
	var stdout, stderr bytes.Buffer
	err := Execute(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func staticRunArgs(target, artifacts string, extra ...string) []string {
	args := []string{
		"run",
		"--provider", "static",
		"--target", target,
		"--settle", "0s",
		"--no-hold",
		"--artifacts-dir", artifacts,
		"--log-level", "error",
	}
	return append(args, extra...)
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "lancet version "+Version+"\n", stdout)
}

func TestList(t *testing.T) {
	stdout, _, err := execute(t, "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "TC001")
	assert.Contains(t, lines[1], "viewer-orbit-controls")
	assert.Contains(t, lines[1], "[suspect assertion]")
	assert.Contains(t, lines[2], "TC006")
	assert.Contains(t, lines[2], "model-file-upload")
	assert.Contains(t, lines[2], "builtin")
}

func TestRunPassingScenario(t *testing.T) {
	srv := app3D(t)
	dir := t.TempDir()
	sc := scenarioFile(t, dir, "open-viewer", "Model Upload Successful")
	jsonReport := filepath.Join(dir, "report.json")
	junitReport := filepath.Join(dir, "report.xml")

	stdout, _, err := execute(t, staticRunArgs(srv.URL, filepath.Join(dir, "artifacts"),
		"--json", jsonReport, "--junit", junitReport, sc)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "PASS  open-viewer")
	assert.Contains(t, stdout, "1 scenarios: 1 passed, 0 failed, 0 timed out")

	data, err := os.ReadFile(jsonReport)
	require.NoError(t, err)
	var doc reporting.Document
	require.NoError(t, jsoniter.Unmarshal(data, &doc))
	assert.Equal(t, reporting.ToolName, doc.Tool)
	assert.Equal(t, Version, doc.Version)
	assert.Equal(t, reporting.Counts{Total: 1, Passed: 1}, doc.Summary)
	require.Len(t, doc.Outcomes, 1)
	assert.Equal(t, "open-viewer", doc.Outcomes[0].Scenario)

	xml, err := os.ReadFile(junitReport)
	require.NoError(t, err)
	assert.Contains(t, string(xml), `<testcase name="open-viewer"`)

	_, err = os.Stat(filepath.Join(dir, "artifacts"))
	assert.True(t, os.IsNotExist(err), "a passing run leaves no artifacts")
}

func TestRunFailingScenario(t *testing.T) {
	srv := app3D(t)
	dir := t.TempDir()
	sc := scenarioFile(t, dir, "expect-error", "3D facade viewer error")
	artifactsDir := filepath.Join(dir, "artifacts")

	stdout, stderr, err := execute(t, staticRunArgs(srv.URL, artifactsDir, sc)...)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScenariosFailed))
	assert.Equal(t, ExitFailures, ExitCode(err))

	assert.Contains(t, stdout, "FAIL  expect-error")
	assert.Contains(t, stderr, "expect-error: [ASSERTION_MISMATCH]")
	assert.Contains(t, stderr, "Error: scenarios failed")

	runs, err := os.ReadDir(artifactsDir)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, strings.HasPrefix(runs[0].Name(), "expect-error-"))
	assert.FileExists(t, filepath.Join(artifactsDir, runs[0].Name(), "page.html"))
}

func TestRunConcurrentScenarios(t *testing.T) {
	srv := app3D(t)
	dir := t.TempDir()
	scenarioFile(t, dir, "first", "Model Upload Successful")
	scenarioFile(t, dir, "second", "Model Upload Successful")
	scenarioFile(t, dir, "third", "Model Upload Successful")

	stdout, _, err := execute(t, staticRunArgs(srv.URL, filepath.Join(dir, "artifacts"), "-j", "3", dir)...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "3 scenarios: 3 passed, 0 failed, 0 timed out")
}

func TestRunReadsConfigFile(t *testing.T) {
	srv := app3D(t)
	dir := t.TempDir()
	sc := scenarioFile(t, dir, "from-config", "Model Upload Successful")
	jsonReport := filepath.Join(dir, "config-report.json")
	cfgFile := filepath.Join(dir, "lancet.yaml")
	cfg := fmt.Sprintf(`browser:
  provider: static
target:
  url: %s
runner:
  settle_delay: 0s
artifacts:
  enabled: false
report:
  json: %s
logger:
  level: error
`, srv.URL, jsonReport)
	require.NoError(t, os.WriteFile(cfgFile, []byte(cfg), 0o644))

	_, _, err := execute(t, "run", "--config", cfgFile, "--no-hold", sc)
	require.NoError(t, err)
	assert.FileExists(t, jsonReport)
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	t.Setenv("LANCET_BROWSER_PROVIDER", "telepathy")
	_, _, err := execute(t, "run", "tc001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser.provider")
	assert.Equal(t, ExitError, ExitCode(err))
}

func TestRunErrors(t *testing.T) {
	tests := map[string]struct {
		args    []string
		message string
	}{
		"bad provider flag": {
			args:    []string{"run", "--provider", "firefox", "tc001"},
			message: "browser.provider",
		},
		"missing config file": {
			args:    []string{"run", "--config", filepath.Join(t.TempDir(), "missing.yaml")},
			message: "error reading config file",
		},
		"unknown scenario": {
			args:    []string{"run", "--provider", "static", "no-such-scenario"},
			message: "no-such-scenario",
		},
		"unknown report dir": {
			args:    []string{"run", "--provider", "static", "--json", filepath.Join(t.TempDir(), "nope", "r.json"), "tc001"},
			message: "r.json",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, stderr, err := execute(t, tc.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.message)
			assert.Contains(t, stderr, "Error:")
			assert.Equal(t, ExitError, ExitCode(err))
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitFailures, ExitCode(fmt.Errorf("%w: 2 of 3 did not pass", ErrScenariosFailed)))
	assert.Equal(t, ExitError, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitError, ExitCode(context.Canceled))
}
