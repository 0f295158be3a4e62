package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: push-and-back
description: push a page and come back
initial_href: /a
flow:
  - action: history.push
    args: {href: /b}
    expect: {outcome: ok, result: /b}
  - action: history.back
    expect: {outcome: ok, result: /a}
`

const failingScenario = `
name: wrong-expectation
description: back at the first entry is rejected
flow:
  - action: history.back
    expect: {outcome: ok}
`

// writeFile writes content under dir and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs a subcommand built by newCmd with the given root options.
func execute(t *testing.T, newCmd func(*RootOptions) *cobra.Command, format string, args ...string) (string, string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := newCmd(&RootOptions{Format: format})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
