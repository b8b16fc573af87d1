package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/parastress/internal/config"
	"github.com/roach88/parastress/internal/plan"
	"github.com/roach88/parastress/internal/report"
	"github.com/roach88/parastress/internal/store"
	"github.com/roach88/parastress/internal/suite"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Threads          string
	Iterations       int
	SkipThreadUnsafe bool
	MarkEnvUnsafe    bool
	MarkFFIUnsafe    bool
	MarkQuickUnsafe  bool
	Forever          bool
	Results          string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions, s *suite.Suite) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the registered operations under the harness",
		Long: `Execute every registered operation: resolve its invocation plan,
classify its thread-safety, and run it replicated across worker threads.

Examples:
  parastress run --parallel-threads auto --iterations 10
  parastress run --parallel-threads 8 --skip-thread-unsafe --results ./results.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSuite(cmd, opts, s)
		},
	}

	cmd.Flags().StringVar(&opts.Threads, "parallel-threads", "",
		`number of threads per operation (integer or "auto")`)
	cmd.Flags().IntVar(&opts.Iterations, "iterations", 0,
		"number of iterations each thread runs")
	cmd.Flags().BoolVar(&opts.SkipThreadUnsafe, "skip-thread-unsafe", false,
		"skip thread-unsafe operations instead of running them on one thread")
	cmd.Flags().BoolVar(&opts.MarkEnvUnsafe, "mark-env-as-unsafe", true,
		"classify environment mutation as thread-unsafe")
	cmd.Flags().BoolVar(&opts.MarkFFIUnsafe, "mark-ffi-as-unsafe", true,
		"classify foreign-function calls as thread-unsafe")
	cmd.Flags().BoolVar(&opts.MarkQuickUnsafe, "mark-quick-as-unsafe", true,
		"classify property-based testing as thread-unsafe")
	cmd.Flags().BoolVar(&opts.Forever, "forever", false,
		"repeat the whole suite until a failure or interrupt; useful for rare races")
	cmd.Flags().StringVar(&opts.Results, "results", "",
		"path to a SQLite database for persisted run results")

	return cmd
}

// buildConfig layers the command line over the config file over the
// built-in defaults.
func buildConfig(opts *RunOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.Threads != "" {
		c, err := plan.ParseCount(opts.Threads)
		if err != nil {
			return nil, err
		}
		cfg.Threads = config.ThreadCount{Count: c}
	}
	if opts.Iterations != 0 {
		cfg.Iterations = opts.Iterations
	}
	if opts.SkipThreadUnsafe {
		cfg.SkipThreadUnsafe = true
	}
	cfg.MarkEnvAsUnsafe = cfg.MarkEnvAsUnsafe && opts.MarkEnvUnsafe
	cfg.MarkFFIAsUnsafe = cfg.MarkFFIAsUnsafe && opts.MarkFFIUnsafe
	cfg.MarkQuickAsUnsafe = cfg.MarkQuickAsUnsafe && opts.MarkQuickUnsafe

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSuite(cmd *cobra.Command, opts *RunOptions, s *suite.Suite) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))

	cfg, err := buildConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	runner := &suite.Runner{
		Suite:   s,
		Config:  cfg,
		Out:     cmd.OutOrStdout(),
		Log:     log,
		Verbose: opts.Verbose || report.VerboseFromEnv(),
		Forever: opts.Forever,
	}

	if opts.Results != "" {
		st, err := store.Open(opts.Results)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open results database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				log.Error("error closing results database", "error", closeErr)
			}
		}()
		runner.Store = st
	}

	stats, err := runner.Run(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "harness error", err)
	}

	log.Info("run finished",
		"total", stats.Total,
		"parallel", stats.Parallel,
		"downgraded", stats.Downgraded,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
	)

	if stats.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d operation(s) failed", stats.Failed))
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d operation(s) passed\n", stats.Total-stats.Skipped)
	return err
}
