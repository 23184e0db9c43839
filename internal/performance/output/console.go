// Package output prints scenario progress and the final summary to the console.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/wesleyorama2/stampede/internal/performance/scenario"
	"github.com/wesleyorama2/stampede/internal/performance/stage"
)

const (
	boxHorizontal = "━"
	lineWidth     = 56
)

// ColorScheme defines the colors used for different elements in the output
type ColorScheme struct {
	Title     *color.Color
	Rule      *color.Color
	Value     *color.Color
	Success   *color.Color
	Warning   *color.Color
	Error     *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:     color.New(color.Bold),
		Rule:      color.New(color.FgCyan),
		Value:     color.New(color.FgCyan),
		Success:   color.New(color.FgGreen, color.Bold),
		Warning:   color.New(color.FgYellow),
		Error:     color.New(color.FgRed, color.Bold),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Title, s.Rule, s.Value, s.Success, s.Warning, s.Error, s.Highlight}
}

// setEnabled forces colors on or off regardless of the global detection.
func (s *ColorScheme) setEnabled(enabled bool) {
	for _, c := range s.all() {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// Config contains configuration for Console.
type Config struct {
	Writer      io.Writer
	NoColor     bool
	ForceColors bool
	Quiet       bool
}

// Console prints run progress. Its methods are safe for concurrent use.
type Console struct {
	mu          sync.Mutex
	w           io.Writer
	colors      *ColorScheme
	useColors   bool
	quiet       bool
	totalStages int
}

// NewConsole creates a console printer.
func NewConsole(cfg Config) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	useColors := cfg.ForceColors || (!cfg.NoColor && isTerminal(cfg.Writer) && supportsColors())
	scheme := DefaultColorScheme()
	scheme.setEnabled(useColors)

	return &Console{
		w:         cfg.Writer,
		colors:    scheme,
		useColors: useColors,
		quiet:     cfg.Quiet,
	}
}

// isTerminal checks if the writer is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// supportsColors checks if the terminal supports colors.
func supportsColors() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

// UsesColors reports whether output is colorized.
func (c *Console) UsesColors() bool {
	return c.useColors
}

// PrintHeader prints the scenario banner and stage plan.
func (c *Console) PrintHeader(name, target string, stages []stage.Spec) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalStages = len(stages)
	if c.quiet {
		return
	}

	rule := c.colors.Rule.Sprint(strings.Repeat(boxHorizontal, lineWidth))
	c.writeln(rule)
	c.writeln(c.colors.Title.Sprintf("%s - %s", name, target))
	c.writeln(rule)
	for i, s := range stages {
		c.writeln(fmt.Sprintf("  %d. %-14s %s for %s", i+1, s.Name, s.Target(), formatDuration(s.Duration)))
	}
	c.writeln("")
}

// StageStarted announces a stage. It matches scenario.Hooks.OnStageStart.
func (c *Console) StageStarted(index int, spec stage.Spec) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("%s %s  %s",
		c.colors.Highlight.Sprintf("[%d/%d]", index+1, c.totalStages),
		c.colors.Title.Sprint(spec.Name),
		spec.Target()))
}

// StageFinished prints a stage verdict. It matches scenario.Hooks.OnStageEnd.
func (c *Console) StageFinished(index int, result scenario.StageResult) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := result.Stats
	verdict := c.colors.Success.Sprint("✓ PASS")
	if !result.Passed {
		verdict = c.colors.Error.Sprint("✗ FAIL")
	}

	c.writeln(fmt.Sprintf("      %s  reqs %s | %s req/s | failures %s | p50 %s | p95 %s",
		verdict,
		c.colors.Value.Sprint(formatNumber(s.RequestCount)),
		c.colors.Value.Sprintf("%.1f", s.Throughput()),
		c.failureColor(s.FailureRate()).Sprintf("%.2f%%", s.FailureRate()*100),
		c.colors.Value.Sprint(formatDurationShort(s.Latency.P50)),
		c.colors.Value.Sprint(formatDurationShort(s.Latency.P95))))

	for _, check := range result.Checks {
		if !check.Passed {
			c.writeln(fmt.Sprintf("      %s %s", c.colors.Error.Sprint("✗"), check.Message))
		}
	}
	if s.AbandonedUsers > 0 {
		c.writeln(c.colors.Warning.Sprintf("      ⚠ %d users abandoned during drain", s.AbandonedUsers))
	}
}

// PrintSummary prints the final scenario summary.
func (c *Console) PrintSummary(report *scenario.Report, outputDir string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		if report.Success {
			c.writeln(c.colors.Success.Sprint("PASSED"))
		} else {
			c.writeln(c.colors.Error.Sprint("FAILED"))
		}
		return
	}

	rule := c.colors.Rule.Sprint(strings.Repeat(boxHorizontal, lineWidth))
	status := c.colors.Success.Sprint("All stages passed ✓")
	if !report.Success {
		status = c.colors.Error.Sprint("SLA violated ✗")
	}

	c.writeln("")
	c.writeln(rule)
	c.writeln(status)
	c.writeln(rule)
	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.Value.Sprint(formatDuration(report.Duration))))
	c.writeln(fmt.Sprintf("Total Reqs:    %s", c.colors.Value.Sprint(formatNumber(report.TotalRequests()))))
	c.writeln(fmt.Sprintf("SLA:           failure rate <= %.2f%%, median <= %s",
		report.Thresholds.MaxFailureRate*100, formatDurationShort(report.Thresholds.MaxMedianLatency)))

	if failed := report.FailedStages(); len(failed) > 0 {
		c.writeln(fmt.Sprintf("Failed stages: %s", c.colors.Error.Sprint(strings.Join(failed, ", "))))
	}
	if outputDir != "" {
		c.writeln(fmt.Sprintf("Reports:       %s", outputDir))
	}
	c.writeln("")
}

// PrintError prints a fatal error.
func (c *Console) PrintError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeln(fmt.Sprintf("%s %v", c.colors.Error.Sprint("✗ Error:"), err))
}

func (c *Console) failureColor(rate float64) *color.Color {
	switch {
	case rate <= 0.01:
		return c.colors.Success
	case rate <= 0.05:
		return c.colors.Warning
	default:
		return c.colors.Error
	}
}

// writeln writes to the output with a newline.
func (c *Console) writeln(s string) {
	fmt.Fprintln(c.w, s)
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a duration in a short format.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}
