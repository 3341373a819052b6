package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/mediahammer/internal/common/hammercontext"
	"github.com/G-Research/mediahammer/internal/hammer"
	"github.com/G-Research/mediahammer/internal/hammer/configuration"
	"github.com/G-Research/mediahammer/pkg/client"
)

func loadCmd(a *hammer.App) *cobra.Command {
	defaults := configuration.DefaultLoadOptions()
	v := client.NewCommandlineViper("load")
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Registers many clients, joins them to channels and opens connections in parallel batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &configuration.LoadOptions{}
			if err := loadOptions(cmd, v, opts); err != nil {
				return err
			}
			return execute(cmd, a, opts.Logging, func(ctx *hammercontext.Context) *hammer.RunOutcome {
				return a.Load(ctx, opts)
			})
		},
	}

	addGatewayFlags(cmd, defaults.Gateway)
	addReportFlags(cmd, defaults.Report)
	addLoggingFlags(cmd, defaults.Logging)
	f := cmd.Flags()
	f.Int("iteration-count", defaults.IterationCount, "number of test iterations")
	f.Int("client-count", defaults.ClientCount, "number of clients")
	f.Int("channel-count", defaults.ChannelCount, "number of channels every client joins")
	f.Int("connection-count", defaults.ConnectionCount, "number of connections opened per client per channel")
	f.Int("parallel-client-registers", defaults.ParallelClientRegisters, "number of clients registered at once")
	f.Int("parallel-channel-joins", defaults.ParallelChannelJoins, "number of channel joins at once")
	f.Int("parallel-connection-opens", defaults.ParallelConnectionOpens, "number of connections opened at once")
	f.Bool("channel-burst", defaults.ChannelBurst, "join every client to a channel before moving on to the next channel")
	f.Int("pause-timeout", int(defaults.PauseTimeout.Seconds()), "seconds to hold the connections open before tearing down")
	f.Bool("no-warmup", defaults.NoWarmup, "skip the single-client warmup iteration")
	f.Bool("verify-media", defaults.VerifyMedia, "send fake media and verify it is received by the other clients")
	f.Int("media-timeout", int(defaults.MediaTimeout.Seconds()), "seconds to wait for media to flow")
	f.String("tag", defaults.Tag, "tag of every client, used to route them to specific media servers")
	return cmd
}
