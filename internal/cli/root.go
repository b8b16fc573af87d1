// Package cli implements the parastress command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/parastress/internal/suite"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
	Config  string
}

// NewRootCommand creates the root command. The suite is supplied by
// the embedding binary, which registers its operations before calling
// Execute.
func NewRootCommand(s *suite.Suite) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "parastress",
		Short: "Replicated concurrent execution harness for test operations",
		Long: `parastress runs each registered test operation redundantly across
concurrent worker threads, synchronized round by round, to surface data
races and other concurrency bugs in the code under test.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to YAML config file")

	cmd.AddCommand(NewRunCommand(opts, s))
	cmd.AddCommand(NewReportCommand(opts))

	return cmd
}
