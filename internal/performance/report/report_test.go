package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stampede/internal/performance/metrics"
	"github.com/wesleyorama2/stampede/internal/performance/scenario"
	"github.com/wesleyorama2/stampede/internal/performance/sla"
	"github.com/wesleyorama2/stampede/internal/performance/stage"
)

func stageResult(name string, users int, rate float64, failures int64) scenario.StageResult {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stats := metrics.Stats{
		RequestCount: 100,
		FailureCount: failures,
		Latency: metrics.LatencyStats{
			Min: 2 * time.Millisecond,
			P50: 20 * time.Millisecond,
			P90: 40 * time.Millisecond,
			P95: 50 * time.Millisecond,
			P99: 90 * time.Millisecond,
			Max: 120 * time.Millisecond,
		},
		Categories: map[string]metrics.CategoryStats{
			"purchase": {RequestCount: 10, FailureCount: failures},
			"click":    {RequestCount: 90},
		},
		PeakUsers:  users,
		StageStart: start,
		StageEnd:   start.Add(10 * time.Second),
	}
	checks := sla.Check(stats, sla.Default())
	return scenario.StageResult{
		Spec:   stage.Spec{Name: name, TargetUsers: users, SpawnRate: rate, Duration: 10 * time.Second},
		Stats:  stats,
		Passed: sla.Evaluate(stats, sla.Default()),
		Checks: checks,
	}
}

func sampleReport() *scenario.Report {
	return &scenario.Report{
		Timestamp:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Success:    false,
		Duration:   35 * time.Second,
		Thresholds: sla.Default(),
		Stages: []scenario.StageResult{
			stageResult("Low Load", 50, 5, 0),
			stageResult("Medium Load", 200, 20, 10),
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleReport()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)

	// header + (2 categories + aggregated) per stage
	require.Len(t, records, 1+3*2)
	assert.Equal(t, csvHeader, records[0])

	assert.Equal(t, []string{"Low Load", "50 users, 5/s spawn", "POST", "click"}, records[1][:4])
	assert.Equal(t, "purchase", records[2][3])

	agg := records[3]
	assert.Equal(t, AggregatedName, agg[3])
	assert.Equal(t, "100", agg[4])
	assert.Equal(t, "0.0000", agg[6])
	assert.Equal(t, "20.00", agg[7])
	assert.Equal(t, "10.00", agg[14])
	assert.Equal(t, "PASS", agg[15])

	failed := records[6]
	assert.Equal(t, "Medium Load", failed[0])
	assert.Equal(t, AggregatedName, failed[3])
	assert.Equal(t, "0.1000", failed[6])
	assert.Equal(t, "FAIL", failed[15])
}

func TestWriteCSV_NilReport(t *testing.T) {
	assert.Error(t, WriteCSV(&bytes.Buffer{}, nil))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleReport()))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "2024-05-01 12:00:00", doc["timestamp"])
	assert.Equal(t, false, doc["success"])
	assert.Equal(t, map[string]interface{}{
		"max_failure_rate":      0.01,
		"max_median_latency_ms": 500.0,
	}, doc["thresholds"])

	stages, ok := doc["stages"].([]interface{})
	require.True(t, ok)
	require.Len(t, stages, 2)

	first := stages[0].(map[string]interface{})
	assert.Equal(t, "Low Load", first["name"])
	assert.Equal(t, "50 users, 5/s spawn", first["target"])
	assert.Equal(t, true, first["passed"])
	assert.NotContains(t, first, "violations")

	second := stages[1].(map[string]interface{})
	assert.Equal(t, false, second["passed"])
	assert.Len(t, second["violations"], 1)
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	report := sampleReport()

	require.NoError(t, WriteCSVFile(report, filepath.Join(dir, StatsFileName)))
	require.NoError(t, WriteJSONFile(report, filepath.Join(dir, FinalFileName)))
	require.NoError(t, GenerateHTML(report, "checkout", filepath.Join(dir, HTMLFileName)))

	for _, name := range []string{StatsFileName, FinalFileName, HTMLFileName} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Greater(t, info.Size(), int64(0), name)
	}

	assert.Error(t, WriteJSONFile(report, filepath.Join(dir, "missing", FinalFileName)))
}

func TestGenerateHTMLString(t *testing.T) {
	html, err := GenerateHTMLString(sampleReport(), "checkout")
	require.NoError(t, err)

	assert.Contains(t, html, "<title>checkout - Load Test Report</title>")
	assert.Contains(t, html, "FAILED")
	assert.Contains(t, html, "Low Load")
	assert.Contains(t, html, "50 users, 5/s spawn")
	assert.Contains(t, html, "failure rate 10.00% exceeds 1.00%")
	assert.Contains(t, html, "<td>purchase</td>")
	assert.True(t, strings.Contains(html, `"name":"Medium Load"`), "stage chart data missing")

	_, err = GenerateHTMLString(nil, "")
	assert.Error(t, err)
}

func TestGenerateHTMLString_Empty(t *testing.T) {
	html, err := GenerateHTMLString(&scenario.Report{Success: true}, "")
	require.NoError(t, err)
	assert.Contains(t, html, "Load Test")
	assert.Contains(t, html, "PASSED")
	assert.Contains(t, html, "const stageData = []")
}

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{formatNumber(999), "999"},
		{formatNumber(1234567), "1,234,567"},
		{formatNumber(-1000), "-1,000"},
		{formatLatency(0), "0"},
		{formatLatency(500 * time.Microsecond), "500µs"},
		{formatLatency(5 * time.Millisecond), "5.00ms"},
		{formatLatency(250 * time.Millisecond), "250ms"},
		{formatLatency(1500 * time.Millisecond), "1.50s"},
		{formatDuration(90 * time.Second), "1m 30s"},
		{formatDuration(2 * time.Minute), "2m"},
		{formatDuration(30 * time.Second), "30.0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got)
	}
}
