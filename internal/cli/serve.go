package cli

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wesleyorama2/stampede/internal/dummy"
)

var errInvalidFailureRate = errors.New("failure rate must be between 0 and 1")

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local event service to practice load tests against",
		Long: `Serve starts a stand-in for the event ingestion service. It accepts
events on /api/v1/events with 202, answers /api/v1/health and exposes
Prometheus metrics on /api/v1/metrics. Latency, jitter and failure rate
are configurable:

  stampede serve --addr :8080 --latency 20ms --jitter 30ms --failure-rate 0.005`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := dummy.Config{
				Latency:     a.v.GetDuration("latency"),
				Jitter:      a.v.GetDuration("jitter"),
				FailureRate: a.v.GetFloat64("failure-rate"),
				Unhealthy:   a.v.GetBool("unhealthy"),
				Seed:        a.v.GetInt64("seed"),
			}
			if cfg.FailureRate < 0 || cfg.FailureRate > 1 {
				return fatal(errInvalidFailureRate)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			server := dummy.New(cfg, a.logger)
			if err := server.ListenAndServe(ctx, a.v.GetString("addr")); err != nil {
				return fatal(err)
			}

			accepted, rejected, invalid := server.Counts()
			a.logger.WithFields(logrus.Fields{
				"accepted": accepted,
				"rejected": rejected,
				"invalid":  invalid,
			}).Info("dummy event service stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.String("addr", ":8080", "Listen address")
	flags.Duration("latency", 0, "Fixed latency added to every event")
	flags.Duration("jitter", 0, "Random extra latency in [0, jitter)")
	flags.Float64("failure-rate", 0, "Probability in [0, 1] that an event is rejected with 500")
	flags.Bool("unhealthy", false, "Report unhealthy on the health endpoint")
	flags.Int64("seed", 0, "Seed for latency jitter and failures (0 uses the clock)")

	return cmd
}
