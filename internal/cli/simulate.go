package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/benrt/internal/harness"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Metrics bool
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Run one scenario and print its trace",
		Long: `Run a single scenario against a fresh runtime and print every flow
step with its outcome, followed by the final runtime state.

Examples:
  benrt simulate ./testdata/scenarios/navigation-gestures.yaml
  benrt simulate ./scenario.yaml --metrics
  benrt simulate ./scenario.yaml --format json -v`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print gathered metrics")

	return cmd
}

func runSimulate(ctx context.Context, opts *SimulateOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		_ = f.Error(ErrCodeScenario, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid scenario", err)
	}
	f.VerboseLog("simulating %s (%d steps)", scenario.Name, len(scenario.Flow))

	h := harness.New(harness.WithLogger(runtimeLogger(opts.RootOptions, f.GetErrWriter())))
	result, err := h.Run(ctx, scenario)
	if err != nil {
		_ = f.Error(ErrCodeRun, err.Error(), nil)
		return WrapExitError(ExitFailure, "scenario did not run", err)
	}
	if !opts.Metrics {
		result.Metrics = nil
	}

	if f.JSON() {
		if err := f.Success(result); err != nil {
			return err
		}
	} else if err := printSimulation(f.Writer, scenario.Name, result); err != nil {
		return err
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("%d check(s) failed", len(result.Errors)))
	}
	return nil
}

func printSimulation(w io.Writer, name string, result *harness.Result) error {
	fmt.Fprintf(w, "Scenario: %s\n", name)
	for _, e := range result.Trace {
		fmt.Fprintf(w, "  [%d] %s", e.Seq, e.Action)
		if len(e.Args) > 0 {
			fmt.Fprintf(w, " %v", e.Args)
		}
		fmt.Fprintf(w, " -> %s", e.Outcome)
		switch {
		case e.Error != "":
			fmt.Fprintf(w, ": %s", e.Error)
		case e.Result != nil:
			fmt.Fprintf(w, ": %v", e.Result)
		}
		fmt.Fprintln(w)
	}

	state, err := json.MarshalIndent(result.State, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nFinal state:\n%s\n", state)

	if len(result.Metrics) > 0 {
		fmt.Fprintln(w, "\nMetrics:")
		for _, name := range slices.Sorted(maps.Keys(result.Metrics)) {
			fmt.Fprintf(w, "  %s %g\n", name, result.Metrics[name])
		}
	}

	if result.Pass {
		fmt.Fprintln(w, "\n✓ All checks passed")
		return nil
	}
	fmt.Fprintln(w, "\n✗ Failed checks:")
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
	return nil
}
