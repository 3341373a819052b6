package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/G-Research/mediahammer/internal/common/hammercontext"
	"github.com/G-Research/mediahammer/internal/hammer"
	"github.com/G-Research/mediahammer/internal/hammer/configuration"
	"github.com/G-Research/mediahammer/pkg/client"
)

func clusterCmd(a *hammer.App) *cobra.Command {
	defaults := configuration.DefaultClusterOptions()
	v := client.NewCommandlineViper("cluster")
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Repeatedly connects two clients through one channel and verifies the media between them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &configuration.ClusterOptions{}
			if err := loadOptions(cmd, v, opts); err != nil {
				return err
			}
			return execute(cmd, a, opts.Logging, func(ctx *hammercontext.Context) *hammer.RunOutcome {
				return a.Cluster(ctx, opts)
			})
		},
	}

	addGatewayFlags(cmd, defaults.Gateway)
	addReportFlags(cmd, defaults.Report)
	addLoggingFlags(cmd, defaults.Logging)
	cmd.Flags().Int("iteration-count", defaults.IterationCount, "number of test iterations")
	cmd.Flags().Int("media-timeout", int(defaults.MediaTimeout.Seconds()), "seconds to wait for media to flow")
	for leg := 1; leg <= 2; leg++ {
		cmd.Flags().String(fmt.Sprintf("user-%d", leg), "", fmt.Sprintf("user ID of client %d (random if empty)", leg))
		cmd.Flags().String(fmt.Sprintf("device-%d", leg), "", fmt.Sprintf("device ID of client %d (random if empty)", leg))
		cmd.Flags().String(fmt.Sprintf("tag-%d", leg), "", fmt.Sprintf("tag of client %d, used to route it to specific media servers", leg))
		cmd.Flags().String(fmt.Sprintf("region-%d", leg), "", fmt.Sprintf("region of client %d", leg))
	}
	return cmd
}
