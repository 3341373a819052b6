package cmd

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/G-Research/mediahammer/internal/common"
	"github.com/G-Research/mediahammer/internal/common/app"
	"github.com/G-Research/mediahammer/internal/common/hammercontext"
	"github.com/G-Research/mediahammer/internal/common/hammererrors"
	"github.com/G-Research/mediahammer/internal/common/logging"
	"github.com/G-Research/mediahammer/internal/hammer"
	"github.com/G-Research/mediahammer/internal/hammer/configuration"
	"github.com/G-Research/mediahammer/pkg/client"
)

// cancelKey cancels a run when typed on a line of its own.
const cancelKey = "q"

// sharedFlags may also be given as HAMMER_<FLAG>, for every verb at once.
var sharedFlags = []string{
	"gateway-url",
	"application-id",
	"shared-secret",
	"sdk-log-level",
	"simulate",
	"output",
	"metrics-push-url",
	"results-redis-addr",
	"results-redis-key",
	"log-level",
	"log-format",
	"verbose",
	"api-base-url",
	"api-key",
	"api-timeout",
}

func addGatewayFlags(cmd *cobra.Command, defaults configuration.GatewayOptions) {
	cmd.Flags().String("gateway-url", defaults.GatewayUrl, "URL of the gateway")
	cmd.Flags().String("application-id", defaults.ApplicationId, "application ID the clients register under")
	cmd.Flags().String("shared-secret", defaults.SharedSecret, "shared secret used to sign client tokens")
	cmd.Flags().String("sdk-log-level", defaults.SdkLogLevel, "log level of the media SDK")
	cmd.Flags().Bool("simulate", defaults.Simulate, "run against an in-process loopback gateway")
}

func addReportFlags(cmd *cobra.Command, defaults configuration.ReportOptions) {
	cmd.Flags().String("output", defaults.Output, "output format: text or json")
	cmd.Flags().String("metrics-push-url", defaults.MetricsPushUrl, "Prometheus Pushgateway to push run metrics to")
	cmd.Flags().String("results-redis-addr", defaults.ResultsRedisAddr, "host:port of a Redis server to append the outcome to")
	cmd.Flags().String("results-redis-key", configuration.DefaultResultsKey, "Redis list the outcome is appended to")
}

func addLoggingFlags(cmd *cobra.Command, defaults logging.Config) {
	cmd.Flags().String("log-level", defaults.Level, "log level, e.g. info or debug")
	cmd.Flags().String("log-format", defaults.Format, "log format: cli, text or json")
	cmd.Flags().Bool("verbose", defaults.Verbose, "append log fields to cli formatted lines")
}

// loadOptions fills opts from the flags, environment and config file of cmd.
func loadOptions(cmd *cobra.Command, v *viper.Viper, opts interface{}) error {
	flags := cmd.Flags()
	if err := v.BindPFlags(flags); err != nil {
		return errors.WithStack(err)
	}
	if err := client.BindSharedEnv(v, cmd.Name(), flags, sharedFlags...); err != nil {
		return err
	}
	cfgFile, err := flags.GetString("config")
	if err != nil {
		return errors.WithStack(err)
	}
	if err := client.LoadCommandlineArgsFromConfigFile(v, cfgFile); err != nil {
		return err
	}
	if err := v.Unmarshal(opts, configuration.CustomHooks...); err != nil {
		return errors.WithStack(&hammererrors.ErrInvalidArgument{
			Name:    "--config",
			Value:   cfgFile,
			Message: err.Error(),
		})
	}
	return nil
}

// runFailedError carries the outcome of a failed run out of cobra. The outcome has already been reported.
type runFailedError struct {
	outcome *hammer.RunOutcome
}

func (e *runFailedError) Error() string {
	return e.outcome.Error
}

// execute configures logging, runs fn until it returns, a signal arrives or the cancel key is typed,
// and turns a failed outcome into an error.
func execute(cmd *cobra.Command, a *hammer.App, config logging.Config, fn func(*hammercontext.Context) *hammer.RunOutcome) error {
	if err := common.ConfigureLogging(config); err != nil {
		return err
	}
	a.Out = cmd.OutOrStdout()

	ctx, cancel := app.CreateContextWithShutdown()
	defer cancel()
	go app.CancelOnKey(ctx, cmd.InOrStdin(), cancelKey, cancel)
	log.Infof("Type %s and press Enter to cancel.", cancelKey)

	outcome := fn(hammercontext.New(ctx, log.NewEntry(log.StandardLogger())))
	if outcome.Err == nil {
		return nil
	}
	if outcome.Kind == hammererrors.Cancelled {
		log.Warn("Cancelled.")
	} else {
		logging.WithFailure(log.NewEntry(log.StandardLogger()), outcome.Err).Errorf("Run failed (%s)", outcome.Kind)
	}
	return &runFailedError{outcome: outcome}
}
