package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/stampede/internal/performance"
	"github.com/wesleyorama2/stampede/internal/performance/config"
	"github.com/wesleyorama2/stampede/internal/performance/health"
	"github.com/wesleyorama2/stampede/internal/performance/output"
	"github.com/wesleyorama2/stampede/internal/performance/report"
	"github.com/wesleyorama2/stampede/internal/performance/scenario"
	"github.com/wesleyorama2/stampede/internal/performance/stage"
)

// DefaultOutputDir is where reports are written unless --output-dir is given.
const DefaultOutputDir = "load-test/results"

// errSLAViolated is returned by run when at least one stage failed its SLA.
var errSLAViolated = errors.New("SLA violated")

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the stage ladder against a target and certify its SLA",
		Long: `Run checks the target's health endpoint, then runs every stage in order,
pausing between stages so the target can stabilize. Each stage is checked
against the SLA and the reports are written to the output directory.

Exit status is 0 when every stage passed, 1 when an SLA was violated and
2 when the run could not be performed (unhealthy target, invalid scenario,
interrupted run).

  stampede run --target http://localhost:8080
  stampede run --config scenario.yaml --history runs.db

Every flag can also be set through the environment, e.g. STAMPEDE_TARGET.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd)
		},
	}

	flags := cmd.Flags()
	flags.StringP("config", "c", "", "Scenario file (YAML or JSON)")
	flags.StringP("target", "t", "", "Base URL of the service under test (overrides the scenario file)")
	flags.StringP("output-dir", "o", DefaultOutputDir, "Directory for stage_stats.csv, final_report.json and report.html")
	flags.String("history", "", "Append the run to this history file")
	flags.Duration("pause", 0, "Pause between stages (negative disables, 0 keeps the scenario value)")
	flags.Duration("grace-period", 0, "Drain grace period per stage (0 keeps the scenario value)")
	flags.Int64("seed", 0, "Seed for task selection (0 keeps the scenario value)")
	flags.Bool("no-html", false, "Do not write report.html")
	flags.Bool("no-color", false, "Disable colored output")
	flags.BoolP("quiet", "q", false, "Only print the final verdict")

	return cmd
}

// loadScenario reads the scenario file, applies command line overrides and
// defaults, and validates the result.
func (a *app) loadScenario() (*config.Config, error) {
	cfg := &config.Config{}
	if path := a.v.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if target := a.v.GetString("target"); target != "" {
		cfg.Target.BaseURL = target
	}
	if pause := a.v.GetDuration("pause"); pause != 0 {
		cfg.Pause = config.Duration(pause)
	}
	if grace := a.v.GetDuration("grace-period"); grace != 0 {
		cfg.GracePeriod = config.Duration(grace)
	}
	if seed := a.v.GetInt64("seed"); seed != 0 {
		cfg.Seed = seed
	}

	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) run(cmd *cobra.Command) error {
	cfg, err := a.loadScenario()
	if err != nil {
		return fatal(fmt.Errorf("invalid scenario: %w", err))
	}

	outputDir := a.v.GetString("output-dir")
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fatal(fmt.Errorf("failed to create output directory: %w", err))
	}

	logger := a.logger.WithField("scenario", cfg.Name)
	console := output.NewConsole(output.Config{
		Writer:  cmd.OutOrStdout(),
		NoColor: a.v.GetBool("no-color"),
		Quiet:   a.v.GetBool("quiet"),
	})

	clientCfg := performance.DefaultHTTPClientConfig()
	clientCfg.Timeout = cfg.Target.Timeout.GetDuration(clientCfg.Timeout)
	sink := performance.NewHTTPSink(cfg.Target.BaseURL, cfg.Target.EventsPath, performance.NewHTTPClient(clientCfg))
	defer sink.Close()

	preflight, err := health.NewPreflight(health.Config{
		BaseURL:     cfg.Target.BaseURL,
		HealthPath:  cfg.Target.HealthPath,
		MetricsPath: cfg.Target.MetricsPath,
		StatusPath:  cfg.Target.StatusPath,
		Timeout:     cfg.Target.HealthTimeout.GetDuration(health.DefaultTimeout),
		Logger:      logger,
	})
	if err != nil {
		return fatal(err)
	}

	runner, err := stage.NewRunner(stage.Options{
		Sink:           sink,
		Tasks:          cfg.TaskDefinitions(),
		ThinkTime:      cfg.ThinkTimeRange(),
		AcceptedStatus: cfg.Target.AcceptedStatus,
		GracePeriod:    cfg.GracePeriod.GetDuration(stage.DefaultGracePeriod),
		Seed:           cfg.Seed,
		Logger:         logger,
	})
	if err != nil {
		return fatal(err)
	}

	thresholds := cfg.SLAThresholds()
	orchestrator := scenario.NewOrchestrator(runner, scenario.Options{
		Pause:      cfg.PauseDuration(),
		Thresholds: &thresholds,
		Hooks: scenario.Hooks{
			OnStageStart: console.StageStarted,
			OnStageEnd:   console.StageFinished,
		},
		Preflight: preflight,
		Metrics:   preflight,
		Logger:    logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	specs := cfg.StageSpecs()
	console.PrintHeader(cfg.Name, sink.URL(), specs)

	result, err := orchestrator.RunAll(ctx, specs)
	if err != nil {
		console.PrintError(err)
		return fatal(err)
	}

	if err := writeReports(result, cfg.Name, outputDir, !a.v.GetBool("no-html")); err != nil {
		return fatal(err)
	}
	if path := a.v.GetString("history"); path != "" {
		if err := saveHistory(path, cfg, result, logger); err != nil {
			return fatal(err)
		}
	}

	console.PrintSummary(result, outputDir)

	if !result.Success {
		return &ExitError{Code: ExitSLAViolation, Err: errSLAViolated}
	}
	return nil
}

// writeReports writes the statistics table, the final report and,
// optionally, the HTML summary into dir.
func writeReports(result *scenario.Report, name, dir string, html bool) error {
	if err := report.WriteCSVFile(result, filepath.Join(dir, report.StatsFileName)); err != nil {
		return err
	}
	if err := report.WriteJSONFile(result, filepath.Join(dir, report.FinalFileName)); err != nil {
		return err
	}
	if html {
		if err := report.GenerateHTML(result, name, filepath.Join(dir, report.HTMLFileName)); err != nil {
			return err
		}
	}
	return nil
}

func saveHistory(path string, cfg *config.Config, result *scenario.Report, logger logrus.FieldLogger) error {
	store, err := report.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()

	id, err := store.Save(cfg.Name, cfg.Target.BaseURL, result)
	if err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	logger.WithField("id", id).Info("run saved to history")
	return nil
}

// Compile-time interface checks.
var (
	_ scenario.Preflight      = (*health.Preflight)(nil)
	_ scenario.MetricsFetcher = (*health.Preflight)(nil)
)
