package cmd

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/G-Research/mediahammer/internal/hammer"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd(app *hammer.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hammer",
		Short: "hammer exercises a real-time media cluster.",
		Long: `hammer exercises a real-time media cluster.

Every verb reads its flags from the command line, then from HAMMER_<VERB>_<FLAG> environment variables,
then from the config file (default $HOME/.hammer.yaml).

Type q and press Enter to cancel a run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "config file (default is $HOME/.hammer.yaml)")

	cmd.AddCommand(
		clusterCmd(app),
		loadCmd(app),
		scanCmd(app),
		versionCmd(app),
	)

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := RootCmd(hammer.New()).Execute()
	if err == nil {
		return 0
	}
	var failed *runFailedError
	if errors.As(err, &failed) {
		return failed.outcome.ExitCode()
	}
	log.Error(err)
	return 1
}
