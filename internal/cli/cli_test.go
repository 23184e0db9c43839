package cli

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stampede/internal/dummy"
	"github.com/wesleyorama2/stampede/internal/performance/report"
)

const quickScenario = `
name: quick
pause: -1s
gracePeriod: 5s
thinkTime:
  min: 10ms
  max: 20ms
stages:
  - name: Smoke
    users: 3
    spawnRate: 30
    duration: 1s
`

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func startService(t *testing.T, cfg dummy.Config) string {
	t.Helper()
	logger, _ := test.NewNullLogger()
	ts := httptest.NewServer(dummy.New(cfg, logger).Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func readFinalReport(t *testing.T, dir string) map[string]interface{} {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(dir, report.FinalFileName))
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

func TestVersion(t *testing.T) {
	code, stdout, _ := execute(t, "version")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "stampede "+version)
}

func TestRun_Passes(t *testing.T) {
	target := startService(t, dummy.Config{Latency: 2 * time.Millisecond, Seed: 1})
	scenario := writeScenario(t, quickScenario)
	out := filepath.Join(t.TempDir(), "results")
	history := filepath.Join(t.TempDir(), "runs.db")

	code, stdout, stderr := execute(t, "run",
		"--config", scenario,
		"--target", target,
		"--output-dir", out,
		"--history", history,
		"--log-level", "warn")
	require.Equal(t, ExitOK, code, "stdout: %s\nstderr: %s", stdout, stderr)

	for _, name := range []string{report.StatsFileName, report.FinalFileName, report.HTMLFileName} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}

	doc := readFinalReport(t, out)
	assert.Equal(t, true, doc["success"])
	stages := doc["stages"].([]interface{})
	require.Len(t, stages, 1)
	assert.Equal(t, "Smoke", stages[0].(map[string]interface{})["name"])
	assert.Equal(t, "3 users, 30/s spawn", stages[0].(map[string]interface{})["target"])

	assert.Contains(t, stdout, "All stages passed")

	code, stdout, _ = execute(t, "history", "--history", history)
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "quick")
	assert.Contains(t, stdout, "PASS")
}

func TestRun_SLAViolationExitsOne(t *testing.T) {
	target := startService(t, dummy.Config{FailureRate: 1, Seed: 1})
	scenario := writeScenario(t, quickScenario)
	out := t.TempDir()

	code, stdout, _ := execute(t, "run", "--config", scenario, "--target", target, "--output-dir", out, "--no-html", "--log-level", "error")
	assert.Equal(t, ExitSLAViolation, code)
	assert.Contains(t, stdout, "SLA violated")

	doc := readFinalReport(t, out)
	assert.Equal(t, false, doc["success"])

	_, err := os.Stat(filepath.Join(out, report.HTMLFileName))
	assert.True(t, os.IsNotExist(err), "report.html written despite --no-html")
}

func TestRun_UnhealthyTargetExitsTwo(t *testing.T) {
	target := startService(t, dummy.Config{Unhealthy: true})
	scenario := writeScenario(t, quickScenario)
	out := t.TempDir()

	code, _, stderr := execute(t, "run", "--config", scenario, "--target", target, "--output-dir", out, "--log-level", "error")
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, stderr, "not healthy")

	_, err := os.Stat(filepath.Join(out, report.FinalFileName))
	assert.True(t, os.IsNotExist(err), "no report is written for a fatal run")
}

func TestRun_TargetFromEnvironment(t *testing.T) {
	target := startService(t, dummy.Config{Seed: 1})
	t.Setenv("STAMPEDE_TARGET", target)
	t.Setenv("STAMPEDE_OUTPUT_DIR", t.TempDir())

	code, stdout, stderr := execute(t, "run", "--config", writeScenario(t, quickScenario), "--quiet", "--log-level", "error")
	assert.Equal(t, ExitOK, code, "stdout: %s\nstderr: %s", stdout, stderr)
	assert.Equal(t, "PASSED", strings.TrimSpace(stdout))
}

func TestRun_InvalidScenarioExitsTwo(t *testing.T) {
	scenario := writeScenario(t, `
stages:
  - name: Broken
    users: 0
    spawnRate: 1
    duration: 1s
`)
	code, _, stderr := execute(t, "run", "--config", scenario, "--output-dir", t.TempDir())
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, stderr, "stages[0].users")

	code, _, _ = execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, ExitFatal, code)
}

func TestRootFlags(t *testing.T) {
	code, _, stderr := execute(t, "version", "--log-level", "loud")
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, stderr, "loud")

	code, _, _ = execute(t, "version", "--log-format", "xml")
	assert.Equal(t, ExitFatal, code)

	code, _, _ = execute(t, "run", "--no-such-flag")
	assert.Equal(t, ExitFatal, code)
}

func TestHistory_RequiresFile(t *testing.T) {
	code, _, stderr := execute(t, "history")
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, stderr, "--history is required")
}

func TestHistory_EmptyAndShowUnknown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	code, stdout, _ := execute(t, "history", "--history", path)
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "No runs recorded.")

	code, _, stderr := execute(t, "history", "show", "missing", "--history", path)
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, stderr, "run not found")
}

func TestServe_RejectsBadFailureRate(t *testing.T) {
	code, _, stderr := execute(t, "serve", "--failure-rate", "2")
	assert.Equal(t, ExitFatal, code)
	assert.Contains(t, stderr, "failure rate")
}
