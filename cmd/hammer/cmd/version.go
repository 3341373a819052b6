package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/mediahammer/internal/hammer"
)

func versionCmd(a *hammer.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Prints version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.Out = cmd.OutOrStdout()
			return a.Version()
		},
	}
	return cmd
}
