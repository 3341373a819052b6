// Package scan probes every media server of a cluster, one at a time, with a fixed set of connectivity
// scenarios pinned to that server.
package scan

import (
	"context"
	"crypto/x509"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/G-Research/mediahammer/internal/common/hammercontext"
	"github.com/G-Research/mediahammer/internal/common/hammererrors"
	"github.com/G-Research/mediahammer/internal/common/util"
	"github.com/G-Research/mediahammer/internal/hammer/configuration"
	"github.com/G-Research/mediahammer/internal/hammer/lifecycle"
	"github.com/G-Research/mediahammer/internal/hammer/metrics"
	"github.com/G-Research/mediahammer/internal/hammer/pipeline"
	"github.com/G-Research/mediahammer/internal/media"
	"github.com/G-Research/mediahammer/pkg/client"
)

const (
	reasonDisabled     = "Disabled by options."
	reasonInactive     = "Media Server is inactive."
	reasonDraining     = "Media Server is draining."
	reasonOverCapacity = "Media Server is over-capacity."
	reasonUnregistered = "Media Server has unregistered."
	reasonWouldBeOver  = "Media Server would be over-capacity."
)

// API is the part of the cluster management API the scan reads.
type API interface {
	MediaServers(ctx context.Context) ([]*client.MediaServer, error)
	// MediaServer returns nil if the server is not registered.
	MediaServer(ctx context.Context, id string) (*client.MediaServer, error)
	CapacityThresholds(ctx context.Context, deploymentId string) (*client.CapacityThresholds, error)
}

type Runner struct {
	opts         *configuration.ScanOptions
	gateway      media.Gateway
	api          API
	metrics      *metrics.Metrics
	stages       lifecycle.Stages
	certificates *CertificateRegistry
	clock        util.Clock
}

// NewRunner creates a runner. m may be nil.
func NewRunner(opts *configuration.ScanOptions, gateway media.Gateway, api API, m *metrics.Metrics) *Runner {
	return &Runner{
		opts:         opts,
		gateway:      gateway,
		api:          api,
		metrics:      m,
		stages:       lifecycle.Stages{Tokens: media.NewTokenGenerator(opts.Gateway.SharedSecret), Metrics: m},
		certificates: NewCertificateRegistry(),
		clock:        &util.DefaultClock{},
	}
}

func (r *Runner) Certificates() *CertificateRegistry {
	return r.certificates
}

// Run scans every selected media server in turn. Failed servers are reported in the result only. The
// error is non-nil if the scan could not complete, or, once it has, if any certificate is expiring.
func (r *Runner) Run(ctx *hammercontext.Context) (*Result, error) {
	servers, err := r.api.MediaServers(ctx)
	if err != nil {
		return nil, err
	}
	var selected []*client.MediaServer
	for _, server := range servers {
		if r.opts.ShouldTestServer(server.Id) {
			selected = append(selected, server)
		}
	}

	result := &Result{Failed: []*ServerResult{}, Expiring: []*ServerResult{}}
	for i, server := range selected {
		ctx.Log.Infof("Media Server %s (%d/%d)", server.Id, i+1, len(selected))
		serverResult, err := r.Scan(hammercontext.WithLogField(ctx, "mediaServer", server.Id), server.Id)
		if err != nil {
			return nil, err
		}
		r.record(serverResult)
		result.Servers = append(result.Servers, serverResult)
	}

	var expiring []hammererrors.ExpiringCertificate
	for _, server := range result.Servers {
		if server.State == Fail {
			result.Failed = append(result.Failed, server)
		}
		if server.CertificateExpiring(r.opts.MinCertDays) {
			result.Expiring = append(result.Expiring, server)
			expiring = append(expiring, r.expiringCertificates(server)...)
		}
	}
	if len(result.Failed) > 0 {
		ctx.Log.Warn("Some Media Servers failed at least one scenario.")
	}
	if len(result.Expiring) > 0 {
		ctx.Log.Warn("Some Media Servers have expiring certificates.")
		return result, errors.WithStack(&hammererrors.ErrCertificateExpiring{Certificates: expiring, MinDays: r.opts.MinCertDays})
	}
	if len(result.Failed) == 0 {
		ctx.Log.Info("All Media Servers passed all scenarios.")
	}
	return result, nil
}

// Scan runs up to MaxAttempts rounds against one media server, re-reading its state before each. It
// stops at the first round without a failed scenario, or as soon as the server should not be probed.
// Otherwise the last round is reported. The error is non-nil only on cancellation or if the management
// API cannot be read.
func (r *Runner) Scan(ctx *hammercontext.Context, mediaServerId string) (*ServerResult, error) {
	var last *ServerResult
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := hammercontext.Sleep(ctx, r.opts.AttemptInterval); err != nil {
				return nil, errors.WithStack(hammererrors.ErrCancelled)
			}
		}
		ctx.Log.Infof("Test Attempt #%d", attempt)
		attemptCtx := hammercontext.WithLogField(ctx, "attempt", attempt)

		server, err := r.api.MediaServer(attemptCtx, mediaServerId)
		if err != nil {
			return nil, err
		}
		reason := ""
		switch {
		case server == nil:
			reason = reasonUnregistered
		case !server.Active:
			reason = reasonInactive
		case server.Draining:
			reason = reasonDraining
		case server.OverCapacity:
			reason = reasonOverCapacity
		}
		if reason != "" {
			attemptCtx.Log.Infof("%s Skipping...", reason)
			skip := serverSkipped(mediaServerId, reason)
			skip.Attempts = attempt
			return skip, nil
		}

		result, err := r.round(attemptCtx, mediaServerId)
		if hammererrors.KindOf(err) == hammererrors.Cancelled {
			return nil, err
		}
		if err != nil {
			result = serverFailed(mediaServerId, err)
		}
		result.Attempts = attempt
		if result.State != Fail {
			return result, nil
		}
		attemptCtx.Log.Warnf("Attempt #%d failed: %s", attempt, result.Reason)
		last = result

		if mismatched(result) {
			reason, err := r.afterMismatch(attemptCtx, mediaServerId)
			if err != nil {
				return nil, err
			}
			if reason != "" {
				attemptCtx.Log.Infof("%s Skipping...", reason)
				skip := serverSkipped(mediaServerId, reason)
				skip.Attempts = attempt
				return skip, nil
			}
		}
	}
	return last, nil
}

// round registers one client, joins a fresh channel and probes every scenario through it.
func (r *Runner) round(ctx *hammercontext.Context, mediaServerId string) (*ServerResult, error) {
	c := r.gateway.NewClient(media.ClientConfig{
		GatewayUrl:    r.opts.Gateway.GatewayUrl,
		ApplicationId: r.opts.Gateway.ApplicationId,
		Tag:           r.opts.Tag,
	})
	membership := &lifecycle.Membership{Client: c, ChannelId: uuid.NewString()}
	result := newServerResult(mediaServerId)

	report := r.stages.Pipeline(
		r.stages.Register([]media.Client{c}, 1),
		r.stages.Join([]*lifecycle.Membership{membership}, 1),
		pipeline.Stage{
			Name:         "scenarios",
			Verification: true,
			Acquire: func(ctx *hammercontext.Context) error {
				for _, scenario := range Scenarios {
					if ctx.Err() != nil {
						return errors.WithStack(hammererrors.ErrCancelled)
					}
					scenarioCtx := hammercontext.WithLogField(ctx, "scenario", scenario.Name)
					result.add(r.probe(scenarioCtx, membership, mediaServerId, scenario))
				}
				if ctx.Err() != nil {
					return errors.WithStack(hammererrors.ErrCancelled)
				}
				return nil
			},
		},
	).Run(ctx)
	return result, report.Err
}

// probe opens one SFU upstream connection pinned to the media server, restricted to the ICE servers the
// scenario allows, and closes it again.
func (r *Runner) probe(
	ctx *hammercontext.Context,
	membership *lifecycle.Membership,
	mediaServerId string,
	scenario Scenario,
) *ScenarioResult {
	if scenario.Disabled(r.opts) {
		return skipped(scenario.Name, reasonDisabled)
	}
	ctx.Log.Infof("Opening connection (%s)...", scenario.Name)
	ctx.Log.Infof("ICE gather policy: %s", scenario.Policy)

	audio := r.gateway.NewLocalTrack(media.Audio, media.NullSource)
	config := media.ConnectionConfig{
		Type:                   media.SfuUpstreamConnection,
		Audio:                  &media.Stream{Kind: media.Audio, Local: audio},
		PreferredMediaServerId: mediaServerId,
		IceGatherPolicy:        scenario.Policy,
		FilterIceServers: func(servers []media.IceServer) []media.IceServer {
			kept := media.FilterIceServers(servers, scenario.Compatible)
			for _, server := range kept {
				ctx.Log.Infof("ICE server: %s", server.Url)
			}
			return kept
		},
	}
	var seen atomic.Pointer[presented]
	if scenario.RequiresTLS {
		config.TLSInspector = func(targetHost string, certificate *x509.Certificate) {
			p := &presented{host: targetHost, certificate: certificate, validFor: util.Until(r.clock, certificate.NotAfter)}
			seen.Store(p)
			r.inspect(ctx, p)
		}
	}
	link := &lifecycle.Link{
		Membership: membership,
		Tracks:     &lifecycle.Tracks{Local: []media.LocalTrack{audio}},
		OwnsTracks: true,
		Config:     config,
	}

	// The open runs detached and is raced against cancellation. If cancellation wins, the link is closed
	// in the background once the open completes.
	opened := make(chan error, 1)
	go func() { opened <- lifecycle.OpenLink(hammercontext.WithoutCancel(ctx), link) }()
	var err error
	select {
	case err = <-opened:
	case <-ctx.Done():
		go func() {
			if openErr := <-opened; openErr == nil {
				closeLink(ctx, link)
			}
		}()
		return failed(scenario.Name, errors.WithStack(hammererrors.ErrCancelled))
	}
	if err != nil {
		return failed(scenario.Name, errors.WithMessage(err, "connection could not be opened"))
	}
	defer closeLink(ctx, link)

	if actual := link.Connection.MediaServerId(); actual != mediaServerId {
		return failed(scenario.Name, errors.WithStack(&hammererrors.ErrMediaServerMismatch{
			Requested: mediaServerId,
			Actual:    actual,
		}))
	}
	p := seen.Load()
	if p == nil {
		return passed(scenario.Name, nil)
	}
	result := passed(scenario.Name, &p.validFor)
	result.certificateHost, result.certificate = p.host, p.certificate
	return result
}

func closeLink(ctx *hammercontext.Context, link *lifecycle.Link) {
	ctx.Log.Info("Closing connection...")
	if err := lifecycle.CloseLink(hammercontext.WithoutCancel(ctx), link); err != nil {
		ctx.Log.WithError(err).Warn("Error closing connection")
	}
}

// presented is a certificate presented by a TLS relay during a probe.
type presented struct {
	host        string
	certificate *x509.Certificate
	validFor    time.Duration
}

// inspect logs a certificate the first time its host presents one.
func (r *Runner) inspect(ctx *hammercontext.Context, p *presented) {
	host, certificate := p.host, p.certificate
	if !r.certificates.Add(host, certificate) {
		return
	}
	const layout = "2006-01-02T15:04:05"
	days := wholeDays(p.validFor)
	ctx.Log.Infof("TLS certificate subject: %s", certificate.Subject)
	ctx.Log.Infof("TLS certificate issuer: %s", certificate.Issuer)
	ctx.Log.Infof("TLS certificate issued: %s", certificate.NotBefore.UTC().Format(layout))
	ctx.Log.Infof("TLS certificate expiry: %s (%d day(s) remaining)", certificate.NotAfter.UTC().Format(layout), days)
	ctx.Log.Infof("TLS certificate thumbprint: %s", Thumbprint(certificate))
	if r.metrics != nil {
		r.metrics.RecordCertificate(host, days)
	}
}

// afterMismatch decides whether a server that a pinned connection missed should be retried. It returns
// a skip reason if the server has unregistered or one more connection would take it over capacity.
func (r *Runner) afterMismatch(ctx *hammercontext.Context, mediaServerId string) (string, error) {
	server, err := r.api.MediaServer(ctx, mediaServerId)
	if err != nil {
		return "", err
	}
	if server == nil {
		return reasonUnregistered, nil
	}
	if r.wouldBeOverCapacity(ctx, server) {
		return reasonWouldBeOver, nil
	}
	return "", nil
}

// wouldBeOverCapacity reports whether one more SFU connection would push the server's used capacity past
// 1, given its core count and its deployment's connections-per-CPU threshold.
func (r *Runner) wouldBeOverCapacity(ctx *hammercontext.Context, server *client.MediaServer) bool {
	thresholds, err := r.api.CapacityThresholds(ctx, server.DeploymentId)
	if err != nil {
		ctx.Log.WithError(err).Warnf("Could not read capacity thresholds of deployment %s", server.DeploymentId)
		return false
	}
	if thresholds == nil || !thresholds.Enabled {
		return false
	}
	threshold, ok := thresholds.SfuThreshold()
	if !ok || threshold <= 0 || server.CoreCount <= 0 {
		return false
	}
	return server.UsedCapacity+1/float64(server.CoreCount*threshold) > 1
}

func (r *Runner) expiringCertificates(server *ServerResult) []hammererrors.ExpiringCertificate {
	minimum := time.Duration(r.opts.MinCertDays) * 24 * time.Hour
	var result []hammererrors.ExpiringCertificate
	for _, scenario := range server.ScenarioResults {
		if scenario.CertificateValidFor == nil || *scenario.CertificateValidFor >= minimum {
			continue
		}
		expiring := hammererrors.ExpiringCertificate{MediaServerId: server.MediaServerId, Host: scenario.certificateHost}
		if scenario.certificate != nil {
			expiring.Subject = scenario.certificate.Subject.String()
			expiring.NotAfter = scenario.certificate.NotAfter
		}
		result = append(result, expiring)
	}
	return result
}

func (r *Runner) record(server *ServerResult) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordServer(string(server.State))
	for _, scenario := range server.ScenarioResults {
		r.metrics.RecordScenario(scenario.Scenario, string(scenario.State))
	}
}

func mismatched(result *ServerResult) bool {
	var mismatch *hammererrors.ErrMediaServerMismatch
	if errors.As(result.Err, &mismatch) {
		return true
	}
	for _, scenario := range result.ScenarioResults {
		if errors.As(scenario.Err, &mismatch) {
			return true
		}
	}
	return false
}
