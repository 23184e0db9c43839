package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/stampede/internal/performance/report"
)

var errNoHistoryFile = errors.New("--history is required")

func newHistoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List runs stored in a history file",
		Long: `History lists the runs saved with "stampede run --history <file>",
newest first. Use "stampede history show <id>" to print one run's final report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			items, err := store.List(a.v.GetInt("limit"))
			if err != nil {
				return fatal(err)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSAVED\tNAME\tTARGET\tSTAGES\tREQUESTS\tRESULT")
			for _, item := range items {
				result := "PASS"
				if item.Report != nil && !item.Report.Success {
					result = "FAIL"
				}
				stages := 0
				if item.Report != nil {
					stages = len(item.Report.Stages)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					item.ID,
					item.SavedAt.Format(report.TimestampLayout),
					item.Name,
					item.Target,
					stages,
					item.Requests,
					result)
			}
			return tw.Flush()
		},
	}

	cmd.PersistentFlags().String("history", "", "History file written by stampede run --history")
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list (0 lists all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print the final report of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openHistory()
			if err != nil {
				return err
			}
			defer store.Close()

			item, err := store.Get(args[0])
			if err != nil {
				return fatal(fmt.Errorf("%s: %w", args[0], err))
			}
			if err := report.WriteJSON(cmd.OutOrStdout(), item.Report); err != nil {
				return fatal(err)
			}
			return nil
		},
	})

	return cmd
}

func (a *app) openHistory() (*report.Store, error) {
	path := a.v.GetString("history")
	if path == "" {
		return nil, fatal(errNoHistoryFile)
	}
	store, err := report.OpenStore(path)
	if err != nil {
		return nil, fatal(err)
	}
	return store, nil
}
