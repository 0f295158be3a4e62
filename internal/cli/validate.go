package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/benrt/internal/config"
	"github.com/roach88/benrt/internal/harness"
)

// FileCheck is the validation outcome for one file.
type FileCheck struct {
	Path  string `json:"path"`
	Kind  string `json:"kind"` // "scenario" or "config"
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool        `json:"valid"`
	Files []FileCheck `json:"files"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Config string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [scenario-or-dir...]",
		Short: "Validate scenario and config files without running them",
		Long: `Parse and check scenario files and, with --config, a runtime config
file. Directories are searched for .yaml and .yml files.

Examples:
  benrt validate ./testdata/scenarios
  benrt validate --config benrt.yaml
  benrt validate ./a.yaml ./b.yaml --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && opts.Config == "" {
				return NewExitError(ExitCommandError, "nothing to validate: pass scenario files or --config")
			}
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "runtime config file to validate")

	return cmd
}

func runValidate(opts *ValidateOptions, targets []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	result := ValidationResult{Valid: true, Files: []FileCheck{}}

	check := func(path, kind string, err error) {
		fc := FileCheck{Path: path, Kind: kind, Valid: err == nil}
		if err != nil {
			fc.Error = err.Error()
			result.Valid = false
		}
		result.Files = append(result.Files, fc)
	}

	if opts.Config != "" {
		_, err := config.Load(opts.Config)
		check(opts.Config, "config", err)
	}
	for _, target := range targets {
		files, err := scenarioTargets(target)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		for _, file := range files {
			f.VerboseLog("validating %s", file)
			_, err := harness.LoadScenario(file)
			check(file, "scenario", err)
		}
	}

	if f.JSON() {
		if result.Valid {
			if err := f.Success(result); err != nil {
				return err
			}
		} else if err := f.Error(ErrCodeScenario, "validation failed", result); err != nil {
			return err
		}
	} else {
		for _, fc := range result.Files {
			if fc.Valid {
				fmt.Fprintf(f.Writer, "✓ %s\n", fc.Path)
				continue
			}
			fmt.Fprintf(f.Writer, "✗ %s\n  %s\n", fc.Path, fc.Error)
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	if !f.JSON() {
		fmt.Fprintf(f.Writer, "%d file(s) valid\n", len(result.Files))
	}
	return nil
}

// scenarioTargets expands a directory into its scenario files. Plain files
// are returned as given, whatever their extension.
func scenarioTargets(target string) ([]string, error) {
	matches, err := filepath.Glob(target)
	if err != nil || len(matches) == 0 {
		return []string{target}, nil
	}
	var out []string
	for _, m := range matches {
		if !isDir(m) {
			out = append(out, m)
			continue
		}
		files, err := findScenarioFiles(m, "")
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
