package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/benrt/internal/app"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	File     string
	Duration time.Duration
}

// RunResult summarizes a finished session.
type RunResult struct {
	Session      string `json:"session"`
	PushConnects int64  `json:"pushConnects"`
	PushDropped  int64  `json:"pushDropped"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the runtime against a live backend",
		Long: `Connect to the backend named in the configuration, hydrate every store
and follow the push channel until interrupted or --for elapses.

Logs go to stderr at the configured level and format; --verbose forces
debug.

Examples:
  benrt run
  benrt run --file benrt.yaml
  benrt run --for 30s --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "config file to load over the defaults")
	cmd.Flags().DurationVar(&opts.Duration, "for", 0, "stop after this long (0 runs until interrupted)")

	return cmd
}

func runSession(ctx context.Context, opts *RunOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(f, opts.File)
	if err != nil {
		return err
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	if opts.Format == "json" {
		cfg.Log.Format = "json"
	}
	logger := slog.New(cfg.Log.Handler(f.GetErrWriter()))

	session, err := app.Connect(cfg, app.WithLogger(logger))
	if err != nil {
		_ = f.Error(ErrCodeRun, err.Error(), nil)
		return WrapExitError(ExitFailure, "connect", err)
	}
	defer session.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}
	if err := session.Run(ctx); err != nil {
		_ = f.Error(ErrCodeRun, err.Error(), nil)
		return WrapExitError(ExitFailure, "session failed", err)
	}

	result := RunResult{
		Session:      session.SessionID,
		PushConnects: session.Push.Connects(),
		PushDropped:  session.Push.Dropped(),
	}
	if f.JSON() {
		return f.Success(result)
	}
	fmt.Fprintf(f.Writer, "Session %s ended (%d push connections, %d frames dropped)\n",
		result.Session, result.PushConnects, result.PushDropped)
	return nil
}
