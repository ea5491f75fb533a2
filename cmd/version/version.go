// Package versioncmder
package versioncmder

import (
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/utils"
)

func NewVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "displays version",
		Long:  "displays the version, commit and build time of this recall binary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}

	return cmd
}

func printVersion(w io.Writer) {
	cliui.KeyValue(w, "Version", 10, utils.Version)
	cliui.KeyValue(w, "Sha", 10, utils.Sha)
	cliui.KeyValue(w, "Built at", 10, utils.Buildtime)
	cliui.KeyValue(w, "Go", 10, runtime.Version())
}
