// Package cluster runs the two-party scenario: two clients join one channel through MCU connections and
// each must see the other's audio and video, iteration after iteration.
package cluster

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

const (
	scenario    = "cluster"
	legs        = 2
	parallelism = 2
)

type Runner struct {
	opts    *configuration.ClusterOptions
	gateway media.Gateway
	stages  lifecycle.Stages
	metrics *metrics.Metrics
}

// NewRunner creates a runner. m may be nil.
func NewRunner(opts *configuration.ClusterOptions, gateway media.Gateway, m *metrics.Metrics) *Runner {
	return &Runner{
		opts:    opts,
		gateway: gateway,
		stages:  lifecycle.Stages{Tokens: media.NewTokenGenerator(opts.Gateway.SharedSecret), Metrics: m},
		metrics: m,
	}
}

// Run runs IterationCount iterations. The first iteration that fails or is cancelled ends the run with
// its error, after it has been torn down.
func (r *Runner) Run(ctx *hammercontext.Context) error {
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

// Iteration registers both clients, joins them to a fresh channel, starts their tracks, opens one MCU
// connection each and verifies that both legs receive audio and video. Everything is torn down before
// it returns.
func (r *Runner) Iteration(ctx *hammercontext.Context) *pipeline.Report {
	channelId := uuid.NewString()
	clients := make([]media.Client, legs)
	memberships := make([]*lifecycle.Membership, legs)
	trackSets := make([]*lifecycle.Tracks, legs)
	links := make([]*lifecycle.Link, legs)
	var signals []*verify.Signal
	for i := 0; i < legs; i++ {
		clients[i] = r.gateway.NewClient(r.opts.Client(i + 1))
		memberships[i] = &lifecycle.Membership{Client: clients[i], ChannelId: channelId}
		leg := lifecycle.NewMcuLeg(r.gateway, strconv.Itoa(i+1), media.FakeSource, true)
		trackSets[i] = leg.Tracks
		links[i] = &lifecycle.Link{Membership: memberships[i], Tracks: leg.Tracks, Config: leg.Config()}
		signals = append(signals, leg.Signals...)
	}

	return r.stages.Pipeline(
		r.stages.Register(clients, parallelism),
		r.stages.Join(memberships, parallelism),
		r.stages.StartTracks(trackSets, parallelism),
		r.stages.Open(links, parallelism),
		r.stages.Verify(func() []*verify.Signal { return signals }, r.opts.MediaTimeout),
	).Run(ctx)
}
