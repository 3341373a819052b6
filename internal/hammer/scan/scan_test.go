package scan

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/mediahammer/internal/common/hammercontext"
	"github.com/G-Research/mediahammer/internal/common/hammererrors"
	"github.com/G-Research/mediahammer/internal/common/util"
	"github.com/G-Research/mediahammer/internal/hammer/configuration"
	"github.com/G-Research/mediahammer/internal/hammer/metrics"
	"github.com/G-Research/mediahammer/internal/media"
	"github.com/G-Research/mediahammer/internal/media/loopback"
	"github.com/G-Research/mediahammer/pkg/client"
)

const turnHost = "turn.loopback.local"

func setup() (*configuration.ScanOptions, *loopback.Gateway) {
	opts := configuration.DefaultScanOptions()
	opts.AttemptInterval = 0
	gateway := loopback.New(opts.Gateway.SharedSecret, logrus.NewEntry(logrus.New()))
	return &opts, gateway
}

func server(id string) *loopback.Server {
	return &loopback.Server{MediaServer: client.MediaServer{
		Id:           id,
		Available:    true,
		Active:       true,
		CoreCount:    4,
		DeploymentId: "deployment",
	}}
}

func states(results []*ScenarioResult) map[string]State {
	s := map[string]State{}
	for _, r := range results {
		s[r.Scenario] = r.State
	}
	return s
}

func TestRun_AllScenariosPass(t *testing.T) {
	opts, gateway := setup()
	m := metrics.New()
	runner := NewRunner(opts, gateway, gateway, m)

	result, err := runner.Run(hammercontext.Background())
	require.NoError(t, err)
	require.Len(t, result.Servers, 1)
	assert.Empty(t, result.Failed)
	assert.Empty(t, result.Expiring)

	server := result.Servers[0]
	assert.Equal(t, loopback.DefaultMediaServerId, server.MediaServerId)
	assert.Equal(t, Pass, server.State)
	assert.Equal(t, 1, server.Attempts)
	require.Len(t, server.ScenarioResults, len(Scenarios))
	for i, scenario := range server.ScenarioResults {
		assert.Equal(t, Scenarios[i].Name, scenario.Scenario)
		assert.Equal(t, Pass, scenario.State)
	}

	turns := server.ScenarioResults[4]
	require.NotNil(t, turns.CertificateDays)
	assert.InDelta(t, 89, *turns.CertificateDays, 1)
	assert.Nil(t, server.ScenarioResults[0].CertificateDays)
	assert.Equal(t, []string{turnHost}, runner.Certificates().Hosts())

	stats := gateway.Stats()
	assert.Equal(t, int64(1), stats.Registrations)
	assert.Equal(t, int64(5), stats.ConnectionsOpened)
	assert.Equal(t, stats.ConnectionsOpened, stats.ConnectionsClosed)
	assert.Equal(t, stats.Joins, stats.Leaves)
}

func TestScan_SkipsUnusableServersWithoutProbing(t *testing.T) {
	tests := map[string]struct {
		update func(*loopback.Server)
		reason string
	}{
		"inactive":      {func(s *loopback.Server) { s.Active = false }, "Media Server is inactive."},
		"draining":      {func(s *loopback.Server) { s.Draining = true }, "Media Server is draining."},
		"over-capacity": {func(s *loopback.Server) { s.OverCapacity = true }, "Media Server is over-capacity."},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			opts, gateway := setup()
			gateway.UpdateMediaServer(loopback.DefaultMediaServerId, tc.update)

			result, err := NewRunner(opts, gateway, gateway, nil).Scan(hammercontext.Background(), loopback.DefaultMediaServerId)
			require.NoError(t, err)
			assert.Equal(t, Skip, result.State)
			assert.Equal(t, tc.reason, result.Reason)
			assert.Equal(t, 1, result.Attempts)
			assert.Equal(t, int64(0), gateway.Stats().Registrations)
		})
	}
}

func TestRun_DisabledScenariosAreSkipped(t *testing.T) {
	opts, gateway := setup()
	opts.NoHost = true
	opts.NoTurns = true

	result, err := NewRunner(opts, gateway, gateway, nil).Run(hammercontext.Background())
	require.NoError(t, err)
	server := result.Servers[0]
	assert.Equal(t, Pass, server.State)
	assert.Equal(t, map[string]State{
		"Host":     Skip,
		"STUN":     Pass,
		"TURN/UDP": Pass,
		"TURN/TCP": Pass,
		"TURNS":    Skip,
	}, states(server.ScenarioResults))
	assert.Equal(t, "Disabled by options.", server.ScenarioResults[0].Reason)
	assert.Equal(t, int64(3), gateway.Stats().ConnectionsOpened)
}

func TestRun_MediaServerFilter(t *testing.T) {
	opts, gateway := setup()
	gateway.SetMediaServers(server("a"), server("b"), server("c"))
	opts.MediaServerId = "b"

	result, err := NewRunner(opts, gateway, gateway, nil).Run(hammercontext.Background())
	require.NoError(t, err)
	require.Len(t, result.Servers, 1)
	assert.Equal(t, "b", result.Servers[0].MediaServerId)
	assert.Equal(t, Pass, result.Servers[0].State)
}

func TestScan_MismatchThenUnregisteredIsNotRetried(t *testing.T) {
	opts, gateway := setup()
	opts.MaxAttempts = 3
	target := server("target")
	target.Unreachable = true
	target.UnregisterOnMismatch = true
	gateway.SetMediaServers(server("other"), target)

	result, err := NewRunner(opts, gateway, gateway, nil).Scan(hammercontext.Background(), "target")
	require.NoError(t, err)
	assert.Equal(t, Skip, result.State)
	assert.Equal(t, "Media Server has unregistered.", result.Reason)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, int64(1), gateway.Stats().Registrations)
}

func TestScan_MismatchThenWouldBeOverCapacity(t *testing.T) {
	opts, gateway := setup()
	target := server("target")
	target.Unreachable = true
	target.UsedCapacity = 0.9
	gateway.SetMediaServers(server("other"), target)
	safe := 2
	gateway.SetCapacityThresholds("deployment", &client.CapacityThresholds{Enabled: true, SafeSfuConnectionsPerCpuThreshold: &safe})

	result, err := NewRunner(opts, gateway, gateway, nil).Scan(hammercontext.Background(), "target")
	require.NoError(t, err)
	assert.Equal(t, Skip, result.State)
	assert.Equal(t, "Media Server would be over-capacity.", result.Reason)
	assert.Equal(t, 1, result.Attempts)
}

func TestScan_MismatchRetriedUntilAttemptsAreExhausted(t *testing.T) {
	opts, gateway := setup()
	opts.MaxAttempts = 3
	target := server("target")
	target.Unreachable = true
	gateway.SetMediaServers(server("other"), target)
	safe := 2
	gateway.SetCapacityThresholds("deployment", &client.CapacityThresholds{Enabled: false, SafeSfuConnectionsPerCpuThreshold: &safe})

	result, err := NewRunner(opts, gateway, gateway, nil).Scan(hammercontext.Background(), "target")
	require.NoError(t, err)
	assert.Equal(t, Fail, result.State)
	assert.Equal(t, 3, result.Attempts)
	assert.Contains(t, result.Reason, "instead of preferred media server target")
	assert.Equal(t, int64(3), gateway.Stats().Registrations)

	var mismatch *hammererrors.ErrMediaServerMismatch
	require.True(t, errors.As(result.Err, &mismatch))
	assert.Equal(t, "other", mismatch.Actual)
}

func TestRun_FailedServersDoNotFailTheScan(t *testing.T) {
	opts, gateway := setup()
	opts.MaxAttempts = 1
	target := server("target")
	target.Unreachable = true
	gateway.SetMediaServers(server("other"), target)

	result, err := NewRunner(opts, gateway, gateway, nil).Run(hammercontext.Background())
	require.NoError(t, err)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "target", result.Failed[0].MediaServerId)
}

func TestScan_RegisterFailureIsRetried(t *testing.T) {
	opts, gateway := setup()
	calls := 0
	gateway.Faults.Register = func(media.ClientConfig) error {
		calls++
		if calls == 1 {
			return errors.New("gateway unavailable")
		}
		return nil
	}

	result, err := NewRunner(opts, gateway, gateway, nil).Scan(hammercontext.Background(), loopback.DefaultMediaServerId)
	require.NoError(t, err)
	assert.Equal(t, Pass, result.State)
	assert.Equal(t, 2, result.Attempts)
}

func TestRun_ExpiringCertificateIsReportedAfterTheScan(t *testing.T) {
	opts, gateway := setup()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	certificate, err := loopback.SelfSignedCertificate(turnHost, now.Add(-80*24*time.Hour), now.Add(3*24*time.Hour+time.Hour))
	require.NoError(t, err)
	gateway.Certificates[turnHost] = certificate
	gateway.SetMediaServers(server("a"), server("b"))

	runner := NewRunner(opts, gateway, gateway, nil)
	runner.clock = &util.DummyClock{T: now}
	result, err := runner.Run(hammercontext.Background())
	require.Error(t, err)
	assert.Equal(t, hammererrors.CertificateExpiring, hammererrors.KindOf(err))

	require.NotNil(t, result)
	assert.Len(t, result.Servers, 2)
	assert.Len(t, result.Expiring, 2)
	turns := result.Expiring[0].ScenarioResults[4]
	require.NotNil(t, turns.CertificateDays)
	assert.Equal(t, 3, *turns.CertificateDays)

	var expiring *hammererrors.ErrCertificateExpiring
	require.True(t, errors.As(err, &expiring))
	require.Len(t, expiring.Certificates, 2)
	assert.Equal(t, turnHost, expiring.Certificates[0].Host)
	assert.Equal(t, opts.MinCertDays, expiring.MinDays)
}

func TestCertificateRegistry_FirstSeenWins(t *testing.T) {
	now := time.Now()
	first, err := loopback.SelfSignedCertificate("a", now, now.Add(time.Hour))
	require.NoError(t, err)
	second, err := loopback.SelfSignedCertificate("a", now, now.Add(2*time.Hour))
	require.NoError(t, err)

	registry := NewCertificateRegistry()
	assert.True(t, registry.Add("a", first))
	assert.False(t, registry.Add("a", second))
	got, ok := registry.Get("a")
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.Len(t, Thumbprint(first), 40)
}

func TestWouldBeOverCapacity(t *testing.T) {
	two, four := 2, 4
	tests := map[string]struct {
		thresholds *client.CapacityThresholds
		used       float64
		expected   bool
	}{
		"no thresholds":              {nil, 0.99, false},
		"disabled":                   {&client.CapacityThresholds{SfuConnectionsPerCpuThreshold: &two}, 0.99, false},
		"no threshold configured":    {&client.CapacityThresholds{Enabled: true}, 0.99, false},
		"room left":                  {&client.CapacityThresholds{Enabled: true, SfuConnectionsPerCpuThreshold: &two}, 0.5, false},
		"explicit wins over safe":    {&client.CapacityThresholds{Enabled: true, SfuConnectionsPerCpuThreshold: &four, SafeSfuConnectionsPerCpuThreshold: &two}, 0.9, false},
		"safe used when no explicit": {&client.CapacityThresholds{Enabled: true, SafeSfuConnectionsPerCpuThreshold: &two}, 0.9, true},
		"unsafe is the last resort":  {&client.CapacityThresholds{Enabled: true, UnsafeSfuConnectionsPerCpuThreshold: &two}, 0.9, true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			opts, gateway := setup()
			gateway.SetCapacityThresholds("deployment", tc.thresholds)
			s := server("s")
			s.UsedCapacity = tc.used
			runner := NewRunner(opts, gateway, gateway, nil)
			assert.Equal(t, tc.expected, runner.wouldBeOverCapacity(hammercontext.Background(), &s.MediaServer))
		})
	}
}

type failingAPI struct{}

func (failingAPI) MediaServers(context.Context) ([]*client.MediaServer, error) {
	return nil, &hammererrors.ErrMediaServerFetch{Attempts: 4, Cause: errors.New("503")}
}

func (failingAPI) MediaServer(context.Context, string) (*client.MediaServer, error) {
	return nil, errors.New("not expected")
}

func (failingAPI) CapacityThresholds(context.Context, string) (*client.CapacityThresholds, error) {
	return nil, errors.New("not expected")
}

func TestRun_FetchFailureIsFatal(t *testing.T) {
	opts, gateway := setup()
	_, err := NewRunner(opts, gateway, failingAPI{}, nil).Run(hammercontext.Background())
	assert.Equal(t, hammererrors.MediaServerFetch, hammererrors.KindOf(err))
}

func TestScan_CancelledBetweenAttempts(t *testing.T) {
	opts, gateway := setup()
	opts.AttemptInterval = time.Minute
	gateway.Faults.Register = func(media.ClientConfig) error { return errors.New("down") }

	ctx, cancel := hammercontext.WithCancel(hammercontext.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err := NewRunner(opts, gateway, gateway, nil).Scan(ctx, loopback.DefaultMediaServerId)
	assert.Equal(t, hammererrors.Cancelled, hammererrors.KindOf(err))
}

func TestScan_CancelledWhileOpeningDoesNotWaitForTheOpen(t *testing.T) {
	opts, gateway := setup()
	release := make(chan struct{})
	gateway.Faults.Open = func(media.ConnectionConfig) error {
		<-release
		return nil
	}

	ctx, cancel := hammercontext.WithCancel(hammercontext.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	start := time.Now()
	_, err := NewRunner(opts, gateway, gateway, nil).Scan(ctx, loopback.DefaultMediaServerId)
	elapsed := time.Since(start)
	close(release)

	assert.Equal(t, hammererrors.Cancelled, hammererrors.KindOf(err))
	assert.Less(t, elapsed, time.Second)
	assert.Eventually(t, func() bool {
		stats := gateway.Stats()
		return stats.ConnectionsOpened == 1 &&
			stats.ConnectionsClosed == 1 &&
			stats.TracksStarted == 1 &&
			stats.TracksStopped == 1
	}, 2*time.Second, 10*time.Millisecond)
}
