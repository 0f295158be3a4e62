package cli

import (
	"io"
	"log/slog"
)

// runtimeLogger returns the logger handed to the runtime. Runtime logs are
// only shown with --verbose, on the diagnostic writer, in the output format.
func runtimeLogger(opts *RootOptions, w io.Writer) *slog.Logger {
	if !opts.Verbose {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	hopts := &slog.HandlerOptions{Level: slog.LevelDebug}
	if opts.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}
