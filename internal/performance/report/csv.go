// Package report writes the artifacts of a scenario run: the per-stage
// statistics table, the final JSON document, an HTML summary and the run
// history store.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/wesleyorama2/stampede/internal/performance/metrics"
	"github.com/wesleyorama2/stampede/internal/performance/scenario"
)

// Output file names inside the results directory.
const (
	StatsFileName  = "stage_stats.csv"
	FinalFileName  = "final_report.json"
	HTMLFileName   = "report.html"
	AggregatedName = "Aggregated"
	requestType    = "POST"
)

// csvHeader is the column layout of the stage statistics table.
var csvHeader = []string{
	"Stage",
	"Target",
	"Type",
	"Name",
	"Request Count",
	"Failure Count",
	"Failure Rate",
	"Median Response Time",
	"Average Response Time",
	"Min Response Time",
	"Max Response Time",
	"90%",
	"95%",
	"99%",
	"Requests/s",
	"SLA",
	"Abandoned Users",
}

// WriteCSV writes one row per category and one Aggregated row per stage.
// Latencies are in milliseconds.
func WriteCSV(w io.Writer, report *scenario.Report) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, result := range report.Stages {
		for _, row := range stageRows(result) {
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes the statistics table to path.
func WriteCSVFile(report *scenario.Report, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}

	if err := WriteCSV(f, report); err != nil {
		f.Close()
		return fmt.Errorf("failed to write CSV file: %w", err)
	}
	return f.Close()
}

func stageRows(result scenario.StageResult) [][]string {
	stats := result.Stats
	duration := stats.Duration().Seconds()

	verdict := "PASS"
	if !result.Passed {
		verdict = "FAIL"
	}

	categories := make([]string, 0, len(stats.Categories))
	for name := range stats.Categories {
		categories = append(categories, name)
	}
	sort.Strings(categories)

	rows := make([][]string, 0, len(categories)+1)
	for _, name := range categories {
		cat := stats.Categories[name]
		rows = append(rows, row(result, requestType, name, cat.RequestCount, cat.FailureCount,
			cat.FailureRate(), cat.Latency, perSecond(cat.RequestCount, duration), "", ""))
	}

	rows = append(rows, row(result, "", AggregatedName, stats.RequestCount, stats.FailureCount,
		stats.FailureRate(), stats.Latency, stats.Throughput(), verdict, strconv.Itoa(stats.AbandonedUsers)))
	return rows
}

func row(result scenario.StageResult, typ, name string, requests, failures int64, rate float64,
	lat metrics.LatencyStats, rps float64, verdict, abandoned string) []string {
	return []string{
		result.Spec.Name,
		result.Spec.Target(),
		typ,
		name,
		strconv.FormatInt(requests, 10),
		strconv.FormatInt(failures, 10),
		strconv.FormatFloat(rate, 'f', 4, 64),
		formatMs(metrics.Ms(lat.P50)),
		formatMs(metrics.Ms(lat.Mean)),
		formatMs(metrics.Ms(lat.Min)),
		formatMs(metrics.Ms(lat.Max)),
		formatMs(metrics.Ms(lat.P90)),
		formatMs(metrics.Ms(lat.P95)),
		formatMs(metrics.Ms(lat.P99)),
		strconv.FormatFloat(rps, 'f', 2, 64),
		verdict,
		abandoned,
	}
}

func perSecond(n int64, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return float64(n) / seconds
}

func formatMs(ms float64) string {
	return strconv.FormatFloat(ms, 'f', 2, 64)
}
