// Package hammer ties the runners to the command line: it builds the gateway and management API client
// for a run, executes the run and reports its outcome.
package hammer

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/mediahammer/internal/common/hammercontext"
	"github.com/G-Research/mediahammer/internal/common/hammererrors"
	"github.com/G-Research/mediahammer/internal/common/logging"
	"github.com/G-Research/mediahammer/internal/common/util"
	"github.com/G-Research/mediahammer/internal/hammer/cluster"
	"github.com/G-Research/mediahammer/internal/hammer/configuration"
	"github.com/G-Research/mediahammer/internal/hammer/load"
	"github.com/G-Research/mediahammer/internal/hammer/metrics"
	"github.com/G-Research/mediahammer/internal/hammer/report"
	"github.com/G-Research/mediahammer/internal/hammer/scan"
	"github.com/G-Research/mediahammer/internal/media"
	"github.com/G-Research/mediahammer/internal/media/loopback"
	"github.com/G-Research/mediahammer/pkg/client"
)

// App is the hammer application. Results are written to Out; progress is logged.
type App struct {
	Out io.Writer
	// NewGateway returns the media SDK for a run.
	NewGateway func(opts configuration.GatewayOptions, sdkLog *log.Entry) (media.Gateway, error)
	// NewAPI returns the cluster management API client for a scan. It is not called in simulation.
	NewAPI func(details *client.ApiConnectionDetails) (scan.API, error)
}

// New creates an App writing to stdout. Only the loopback gateway is linked in, so every run needs
// --simulate unless NewGateway is replaced with a binding to a real media SDK.
func New() *App {
	return &App{
		Out:        os.Stdout,
		NewGateway: simulatedGateway,
		NewAPI: func(details *client.ApiConnectionDetails) (scan.API, error) {
			return client.NewMediaServerClient(details, client.NewHttpClient(details))
		},
	}
}

func simulatedGateway(opts configuration.GatewayOptions, sdkLog *log.Entry) (media.Gateway, error) {
	if !opts.Simulate {
		return nil, errors.WithStack(&hammererrors.ErrInvalidArgument{
			Name:    "--simulate",
			Value:   false,
			Message: "no media SDK binding is linked into this build; run against the loopback gateway",
		})
	}
	return loopback.New(opts.SharedSecret, sdkLog), nil
}

// RunOutcome is the result of one run, as rendered by --output json.
type RunOutcome struct {
	Verb           string                   `json:"verb"`
	Kind           hammererrors.FailureKind `json:"kind"`
	Error          string                   `json:"error,omitempty"`
	ElapsedSeconds float64                  `json:"elapsedSeconds"`
	Scan           *scan.Result             `json:"scan,omitempty"`

	Err     error         `json:"-"`
	Elapsed time.Duration `json:"-"`
}

func (o *RunOutcome) ExitCode() int {
	return hammererrors.ExitCode(o.Err)
}

func (a *App) Cluster(ctx *hammercontext.Context, opts *configuration.ClusterOptions) *RunOutcome {
	return a.run(ctx, "cluster", opts.Validate, opts.Gateway, opts.Report,
		func(gateway media.Gateway, m *metrics.Metrics) (*scan.Result, error) {
			return nil, cluster.NewRunner(opts, gateway, m).Run(ctx)
		})
}

func (a *App) Load(ctx *hammercontext.Context, opts *configuration.LoadOptions) *RunOutcome {
	return a.run(ctx, "load", opts.Validate, opts.Gateway, opts.Report,
		func(gateway media.Gateway, m *metrics.Metrics) (*scan.Result, error) {
			return nil, load.NewRunner(opts, gateway, m).Run(ctx)
		})
}

func (a *App) Scan(ctx *hammercontext.Context, opts *configuration.ScanOptions) *RunOutcome {
	return a.run(ctx, "scan", opts.Validate, opts.Gateway, opts.Report,
		func(gateway media.Gateway, m *metrics.Metrics) (*scan.Result, error) {
			var api scan.API
			if simulated, ok := gateway.(*loopback.Gateway); ok && opts.Gateway.Simulate {
				api = simulated
			} else {
				var err error
				if api, err = a.NewAPI(&opts.Api); err != nil {
					return nil, err
				}
			}
			return scan.NewRunner(opts, gateway, api, m).Run(ctx)
		})
}

type runFunc func(gateway media.Gateway, m *metrics.Metrics) (*scan.Result, error)

func (a *App) run(
	ctx *hammercontext.Context,
	verb string,
	validate func() error,
	gatewayOpts configuration.GatewayOptions,
	reportOpts configuration.ReportOptions,
	run runFunc,
) *RunOutcome {
	start := time.Now()
	m := metrics.New()
	outcome := &RunOutcome{Verb: verb}

	err := validate()
	if err == nil {
		var gateway media.Gateway
		gateway, err = a.NewGateway(gatewayOpts, sdkLog(ctx.Log, gatewayOpts.SdkLogLevel))
		if err == nil {
			outcome.Scan, err = run(gateway, m)
		}
	}

	outcome.Err = err
	outcome.Kind = hammererrors.KindOf(err)
	if err != nil {
		outcome.Error = err.Error()
	}
	outcome.Elapsed = time.Since(start)
	outcome.ElapsedSeconds = outcome.Elapsed.Seconds()
	a.report(ctx, reportOpts, outcome, m)
	return outcome
}

// report writes the outcome to Out and ships it to the optional metrics and results sinks. Sink errors
// are logged, never returned.
func (a *App) report(ctx *hammercontext.Context, opts configuration.ReportOptions, outcome *RunOutcome, m *metrics.Metrics) {
	var err error
	switch {
	case opts.Output == "json":
		err = report.Render(a.Out, outcome)
	case outcome.Verb == "scan":
		if outcome.Scan != nil {
			ctx.Log.Info("Writing test results to standard output...")
			err = report.Render(a.Out, outcome.Scan)
		}
	default:
		err = a.summary(outcome)
	}
	if err != nil {
		ctx.Log.WithError(err).Error("Error writing results")
	}

	if opts.MetricsPushUrl != "" {
		if err := m.Push(opts.MetricsPushUrl); err != nil {
			ctx.Log.WithError(err).Warn("Error pushing metrics")
		}
	}
	if opts.ResultsRedisAddr != "" {
		sink := report.NewRedisSink(opts.ResultsRedisAddr, opts.ResultsRedisKey)
		defer util.CloseResource(ctx.Log, "results sink", sink)
		if err := sink.Push(hammercontext.WithoutCancel(ctx), outcome); err != nil {
			ctx.Log.WithError(err).Warn("Error storing results")
		}
	}
}

func (a *App) summary(outcome *RunOutcome) error {
	result := "TEST SUCCEEDED"
	switch outcome.Kind {
	case hammererrors.None:
	case hammererrors.Cancelled:
		result = "TEST CANCELLED"
	default:
		result = "TEST FAILED: " + outcome.Error
	}
	_, err := fmt.Fprintf(a.Out, "Total runtime: %s\n%s\n", outcome.Elapsed.Round(time.Millisecond), result)
	return errors.WithStack(err)
}

// sdkLog is the logger handed to the media SDK. It shares the application's output and format but has
// its own level.
func sdkLog(appLog *log.Entry, level string) *log.Entry {
	logger := log.New()
	logger.SetOutput(appLog.Logger.Out)
	logger.SetFormatter(appLog.Logger.Formatter)
	parsed, err := logging.ParseLevel(level)
	if err != nil {
		parsed = log.ErrorLevel
	}
	logger.SetLevel(parsed)
	return log.NewEntry(logger)
}
