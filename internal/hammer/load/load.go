// Package load generates load: many clients, each joined to several channels, each membership holding
// several MCU connections, all acquired in bounded parallel groups.
package load

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/G-Research/mediahammer/internal/common/hammercontext"
	"github.com/G-Research/mediahammer/internal/hammer/configuration"
	"github.com/G-Research/mediahammer/internal/hammer/lifecycle"
	"github.com/G-Research/mediahammer/internal/hammer/metrics"
	"github.com/G-Research/mediahammer/internal/hammer/pipeline"
	"github.com/G-Research/mediahammer/internal/hammer/verify"
	"github.com/G-Research/mediahammer/internal/media"
)

const scenario = "load"

type Runner struct {
	opts    *configuration.LoadOptions
	gateway media.Gateway
	stages  lifecycle.Stages
	metrics *metrics.Metrics
}

// NewRunner creates a runner. m may be nil.
func NewRunner(opts *configuration.LoadOptions, gateway media.Gateway, m *metrics.Metrics) *Runner {
	return &Runner{
		opts:    opts,
		gateway: gateway,
		stages:  lifecycle.Stages{Tokens: media.NewTokenGenerator(opts.Gateway.SharedSecret), Metrics: m},
		metrics: m,
	}
}

// Run warms up, unless disabled, and then runs IterationCount independent iterations. The first
// iteration that fails or is cancelled ends the run with its error.
func (r *Runner) Run(ctx *hammercontext.Context) error {
	if !r.opts.NoWarmup {
		ctx.Log.Info("Warming up...")
		warmup := r.opts.Warmup()
		// Warm-up timings stay out of the run metrics.
		stages := lifecycle.Stages{Tokens: r.stages.Tokens}
		report := (&Runner{opts: &warmup, gateway: r.gateway, stages: stages}).
			Iteration(hammercontext.WithLogField(ctx, "iteration", "warmup"))
		if report.Err != nil {
			return report.Err
		}
	}

	for i := 1; i <= r.opts.IterationCount; i++ {
		ctx.Log.Infof("Test #%d", i)
		start := time.Now()
		report := r.Iteration(hammercontext.WithLogField(ctx, "iteration", i))
		if r.metrics != nil {
			r.metrics.RecordIteration(scenario, lifecycle.Outcome(report.Err))
		}
		if report.Err != nil {
			return report.Err
		}
		ctx.Log.WithField("elapsed", time.Since(start)).Debugf("Test #%d succeeded", i)
	}
	return nil
}

// Iteration registers ClientCount clients, joins each of them to ChannelCount fresh channels and opens
// ConnectionCount connections per membership. Media is verified if enabled, and everything is held for
// PauseTimeout before it is torn down.
func (r *Runner) Iteration(ctx *hammercontext.Context) *pipeline.Report {
	clients := make([]media.Client, r.opts.ClientCount)
	for i := range clients {
		clients[i] = r.gateway.NewClient(media.ClientConfig{
			GatewayUrl:    r.opts.Gateway.GatewayUrl,
			ApplicationId: r.opts.Gateway.ApplicationId,
			Tag:           r.opts.Tag,
		})
	}
	channelIds := make([]string, r.opts.ChannelCount)
	for i := range channelIds {
		channelIds[i] = uuid.NewString()
	}
	memberships := Memberships(clients, channelIds, r.opts.ChannelBurst)
	links := r.links(memberships)

	stages := []pipeline.Stage{
		r.stages.Register(clients, r.opts.ParallelClientRegisters),
		r.stages.Join(memberships, r.opts.ParallelChannelJoins),
		r.stages.Open(links, r.opts.ParallelConnectionOpens),
	}
	if r.opts.VerifyMedia {
		stages = append(stages, r.stages.Verify(func() []*verify.Signal { return signals(links) }, r.opts.MediaTimeout))
	}
	if r.opts.PauseTimeout > 0 {
		stages = append(stages, lifecycle.Pause(r.opts.PauseTimeout))
	}
	return r.stages.Pipeline(stages...).Run(ctx)
}

// Memberships pairs every client with every channel. Sequential order walks all channels of one client
// before the next client. Burst order joins every client to the first channel before any joins the second.
func Memberships(clients []media.Client, channelIds []string, burst bool) []*lifecycle.Membership {
	memberships := make([]*lifecycle.Membership, 0, len(clients)*len(channelIds))
	if burst {
		for _, channelId := range channelIds {
			for _, client := range clients {
				memberships = append(memberships, &lifecycle.Membership{Client: client, ChannelId: channelId})
			}
		}
		return memberships
	}
	for _, client := range clients {
		for _, channelId := range channelIds {
			memberships = append(memberships, &lifecycle.Membership{Client: client, ChannelId: channelId})
		}
	}
	return memberships
}

// links creates ConnectionCount links per membership. Each link builds its own tracks when it is opened
// and destroys them when it is closed.
func (r *Runner) links(memberships []*lifecycle.Membership) []*lifecycle.Link {
	source := media.NullSource
	if r.opts.VerifyMedia {
		source = media.FakeSource
	}
	links := make([]*lifecycle.Link, 0, len(memberships)*r.opts.ConnectionCount)
	for _, membership := range memberships {
		for i := 0; i < r.opts.ConnectionCount; i++ {
			name := "#" + strconv.Itoa(len(links)+1)
			link := &lifecycle.Link{Membership: membership, OwnsTracks: true}
			link.Prepare = func(link *lifecycle.Link) {
				leg := lifecycle.NewMcuLeg(r.gateway, name, source, r.opts.VerifyMedia)
				link.Tracks = leg.Tracks
				link.Config = leg.Config()
				link.Signals = leg.Signals
			}
			links = append(links, link)
		}
	}
	return links
}

func signals(links []*lifecycle.Link) []*verify.Signal {
	var result []*verify.Signal
	for _, link := range links {
		result = append(result, link.Signals...)
	}
	return result
}
