package cli

import (
	"bytes"
	"errors"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/benrt/internal/config"
)

// ConfigOptions holds flags for the config command.
type ConfigOptions struct {
	*RootOptions
	File string
}

// loadConfig returns the defaults overlaid with path, if set. Failures are
// reported through f.
func loadConfig(f *OutputFormatter, path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		code := ExitFailure
		if errors.Is(err, fs.ErrNotExist) {
			code = ExitCommandError
		}
		return config.Config{}, WrapExitError(code, "invalid config", err)
	}
	f.VerboseLog("loaded %s", path)
	return cfg, nil
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfigOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective runtime configuration",
		Long: `Print the runtime configuration as YAML: the defaults, or the defaults
overlaid with --file after validation.

Examples:
  benrt config
  benrt config --file benrt.yaml
  benrt config --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfig(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "config file to load over the defaults")

	return cmd
}

func runConfig(opts *ConfigOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := loadConfig(f, opts.File)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := cfg.Encode(&buf); err != nil {
		return err
	}
	if f.JSON() {
		return f.Success(map[string]string{"yaml": buf.String()})
	}
	_, err = f.Writer.Write(buf.Bytes())
	return err
}
