// Package cmdtest runs recall subcommands under a root carrying the global
// flags, for command tests.
package cmdtest

import (
	"bytes"

	"github.com/spf13/cobra"
)

// Execute runs args against a throwaway root holding cmds. configDir is
// passed as --config-dir. It returns everything written to stdout.
func Execute(configDir string, cmds []*cobra.Command, args ...string) (string, error) {
	root := &cobra.Command{
		Use:           "recall",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolP("debug", "d", false, "")
	root.PersistentFlags().String("config-dir", "", "")
	root.AddCommand(cmds...)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--config-dir", configDir}, args...))

	err := root.Execute()
	return out.String(), err
}
