package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"sort"
	"time"

	"github.com/wesleyorama2/stampede/internal/performance/metrics"
	"github.com/wesleyorama2/stampede/internal/performance/scenario"
)

// ReportData contains all data needed to render the HTML report.
type ReportData struct {
	*scenario.Report
	Name       string
	EndTime    time.Time
	StagesJSON template.JS
}

// StagePoint is one stage in the chart data.
type StagePoint struct {
	Name        string  `json:"name"`
	RPS         float64 `json:"rps"`
	P50         float64 `json:"p50"`
	P95         float64 `json:"p95"`
	P99         float64 `json:"p99"`
	FailureRate float64 `json:"failureRate"`
	PeakUsers   int     `json:"peakUsers"`
}

// CategoryRow is one row of a stage's category table.
type CategoryRow struct {
	Name  string
	Stats metrics.CategoryStats
}

// GenerateHTML generates an HTML report and writes it to a file.
func GenerateHTML(report *scenario.Report, name, outputPath string) error {
	html, err := GenerateHTMLString(report, name)
	if err != nil {
		return fmt.Errorf("failed to generate HTML: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(html), 0644); err != nil {
		return fmt.Errorf("failed to write HTML file: %w", err)
	}

	return nil
}

// GenerateHTMLString renders the HTML report to a string.
func GenerateHTMLString(report *scenario.Report, name string) (string, error) {
	if report == nil {
		return "", fmt.Errorf("report cannot be nil")
	}

	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	stagesJSON, err := convertStagesJSON(report.Stages)
	if err != nil {
		return "", fmt.Errorf("failed to convert stages: %w", err)
	}

	if name == "" {
		name = "Load Test"
	}
	data := ReportData{
		Report:     report,
		Name:       name,
		EndTime:    report.Timestamp.Add(report.Duration),
		StagesJSON: template.JS(stagesJSON),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// convertStagesJSON converts the stage results to JSON for chart rendering.
func convertStagesJSON(stages []scenario.StageResult) (string, error) {
	if len(stages) == 0 {
		return "[]", nil
	}

	points := make([]StagePoint, len(stages))
	for i, s := range stages {
		points[i] = StagePoint{
			Name:        s.Spec.Name,
			RPS:         s.Stats.Throughput(),
			P50:         metrics.Ms(s.Stats.Latency.P50),
			P95:         metrics.Ms(s.Stats.Latency.P95),
			P99:         metrics.Ms(s.Stats.Latency.P99),
			FailureRate: s.Stats.FailureRate(),
			PeakUsers:   s.Stats.PeakUsers,
		}
	}

	jsonBytes, err := json.Marshal(points)
	if err != nil {
		return "[]", err
	}
	return string(jsonBytes), nil
}

// templateFuncs returns the template helper functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDuration": formatDuration,
		"formatNumber":   formatNumber,
		"formatLatency":  formatLatency,
		"mul":            mul,
		"categories":     categories,
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if mins == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, mins)
}

// formatNumber formats a large number with commas.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	str := fmt.Sprintf("%d", n)
	result := ""
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}

// formatLatency formats a latency duration in a human-readable way.
func formatLatency(d time.Duration) string {
	if d == 0 {
		return "0"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		ms := metrics.Ms(d)
		if ms < 10 {
			return fmt.Sprintf("%.2fms", ms)
		}
		if ms < 100 {
			return fmt.Sprintf("%.1fms", ms)
		}
		return fmt.Sprintf("%dms", int(ms))
	}
	s := d.Seconds()
	if s < 10 {
		return fmt.Sprintf("%.2fs", s)
	}
	return fmt.Sprintf("%.1fs", s)
}

// mul multiplies two float64 values (for template use).
func mul(a, b float64) float64 {
	return a * b
}

// categories returns the category breakdown sorted by name.
func categories(stats metrics.Stats) []CategoryRow {
	rows := make([]CategoryRow, 0, len(stats.Categories))
	for name, cs := range stats.Categories {
		rows = append(rows, CategoryRow{Name: name, Stats: cs})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows
}
