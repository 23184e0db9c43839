package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "0.1.0"

// Process exit codes.
const (
	ExitOK           = 0
	ExitSLAViolation = 1
	ExitFatal        = 2
)

// EnvPrefix prefixes environment overrides, e.g. STAMPEDE_TARGET.
const EnvPrefix = "STAMPEDE"

// ExitError carries the exit code a command wants the process to end with.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func fatal(err error) error {
	return &ExitError{Code: ExitFatal, Err: err}
}

// app holds what the subcommands share.
type app struct {
	v      *viper.Viper
	logger *logrus.Logger
}

// NewRootCmd builds the command tree. Each call returns an independent
// tree with its own settings, so tests can run commands side by side.
func NewRootCmd() *cobra.Command {
	a := &app{
		v:      viper.New(),
		logger: logrus.New(),
	}
	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:     "stampede",
		Short:   "Staged load generation with SLA certification",
		Version: version,
		Long: `Stampede drives a ladder of load stages against an event ingestion
service, simulating virtual users that post weighted events with think time
between them. Every stage is checked against an SLA (failure rate and median
latency) and the run fails if any stage violates it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.bind(cmd); err != nil {
				return fatal(err)
			}
			return a.configureLogger(cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "text", "Log format (text, json)")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newHistoryCmd(a))
	root.AddCommand(newVersionCmd())

	return root
}

// bind makes every flag of the running command readable through viper,
// with STAMPEDE_* environment variables as fallback.
func (a *app) bind(cmd *cobra.Command) error {
	return a.v.BindPFlags(cmd.Flags())
}

func (a *app) configureLogger(w io.Writer) error {
	level, err := logrus.ParseLevel(a.v.GetString("log-level"))
	if err != nil {
		return fatal(err)
	}
	a.logger.SetLevel(level)
	a.logger.SetOutput(w)

	switch format := a.v.GetString("log-format"); format {
	case "json":
		a.logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		a.logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05",
		})
	default:
		return fatal(fmt.Errorf("unknown log format %q", format))
	}
	return nil
}

// Run executes the command line and returns the process exit code.
func Run(args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return ExitOK
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Code != ExitSLAViolation {
			fmt.Fprintln(stderr, "Error:", exitErr.Err)
		}
		return exitErr.Code
	}

	// Flag and argument errors from cobra
	fmt.Fprintln(stderr, "Error:", err)
	return ExitFatal
}

// Execute runs the command line of the current process.
func Execute() int {
	return Run(os.Args[1:], os.Stdout, os.Stderr)
}
