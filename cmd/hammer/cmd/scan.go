package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/mediahammer/internal/common/hammercontext"
	"github.com/G-Research/mediahammer/internal/hammer"
	"github.com/G-Research/mediahammer/internal/hammer/configuration"
	"github.com/G-Research/mediahammer/pkg/client"
)

func scanCmd(a *hammer.App) *cobra.Command {
	defaults := configuration.DefaultScanOptions()
	v := client.NewCommandlineViper("scan")
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Probes every media server through each ICE path and checks its TLS certificates",
		Long: `Probes every media server through each ICE path and checks its TLS certificates.

The results document is written to standard output. The exit code is 7 if a certificate expires within
--min-cert-days.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &configuration.ScanOptions{}
			if err := loadOptions(cmd, v, opts); err != nil {
				return err
			}
			return execute(cmd, a, opts.Logging, func(ctx *hammercontext.Context) *hammer.RunOutcome {
				return a.Scan(ctx, opts)
			})
		},
	}

	addGatewayFlags(cmd, defaults.Gateway)
	addReportFlags(cmd, defaults.Report)
	addLoggingFlags(cmd, defaults.Logging)
	client.AddApiConnectionCommandlineArgs(cmd, defaults.Api)
	f := cmd.Flags()
	f.String("tag", defaults.Tag, "tag of the scanning client")
	f.String("media-server-id", defaults.MediaServerId, "scan only this media server")
	f.Bool("no-host", defaults.NoHost, "skip the host candidate scenario")
	f.Bool("no-stun", defaults.NoStun, "skip the STUN scenario")
	f.Bool("no-turn-udp", defaults.NoTurnUdp, "skip the TURN/UDP scenario")
	f.Bool("no-turn-tcp", defaults.NoTurnTcp, "skip the TURN/TCP scenario")
	f.Bool("no-turns", defaults.NoTurns, "skip the TURNS scenario")
	f.Int("min-cert-days", defaults.MinCertDays, "fail if a TLS certificate expires within this many days")
	f.Int("max-attempts", defaults.MaxAttempts, "attempts per media server before it is reported as failed")
	f.Int("attempt-interval", int(defaults.AttemptInterval.Seconds()), "seconds between attempts on one media server")
	return cmd
}
