package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/parastress/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Results string
}

// NewReportCommand creates the report command, which reads a persisted
// results database and prints the downgrade listing for a run.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Show the thread-safety verdicts of a persisted run",
		Long: `Show which operations of a persisted run were downgraded or skipped
as thread-unsafe, and why. Without a run id the latest run is shown.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.Results, "results", "",
		"path to the SQLite database written by run --results")
	_ = cmd.MarkFlagRequired("results")

	return cmd
}

func runReport(cmd *cobra.Command, opts *ReportOptions, args []string) error {
	st, err := store.Open(opts.Results)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open results database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	var run store.Run
	if len(args) == 1 {
		run, err = st.ReadRun(ctx, args[0])
	} else {
		run, err = st.ReadLatestRun(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	fmt.Fprintf(out, "run %s (threads=%d, iterations=%d)\n", run.ID, run.Threads, run.Iterations)

	downgraded, err := st.ReadDowngraded(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read verdicts", err)
	}
	if len(downgraded) == 0 {
		fmt.Fprintln(out, "all operations ran in parallel")
		return nil
	}

	for _, v := range downgraded {
		disposition := "serial"
		if v.Skipped {
			disposition = "skipped"
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", v.Operation, disposition, v.Reason)
	}
	return nil
}
