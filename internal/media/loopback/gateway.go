// Package loopback is an in-process media gateway. It honours the SDK contract of package media closely
// enough to drive every scenario end to end: tokens are verified, channels are shared between clients,
// connections are routed to media servers from a configurable table and media frames flow between the
// connections of a channel. Every operation can be delayed or made to fail.
package loopback

import (
	"context"
	"crypto/x509"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/G-Research/mediahammer/internal/media"
	"github.com/G-Research/mediahammer/pkg/client"
)

// Faults lets callers fail individual operations. A nil function never fails.
type Faults struct {
	Register   func(config media.ClientConfig) error
	Unregister func(config media.ClientConfig) error
	Join       func(config media.ClientConfig, channelId string) error
	Leave      func(config media.ClientConfig, channelId string) error
	Start      func(kind media.StreamKind) error
	Open       func(config media.ConnectionConfig) error
	Close      func(mediaServerId string) error
}

// Stats counts successful operations.
type Stats struct {
	Registrations     int64
	Unregistrations   int64
	Joins             int64
	Leaves            int64
	TracksStarted     int64
	TracksStopped     int64
	ConnectionsOpened int64
	ConnectionsClosed int64
}

// Membership records one successful join.
type Membership struct {
	ClientId  string
	ChannelId string
}

type counters struct {
	registrations     atomic.Int64
	unregistrations   atomic.Int64
	joins             atomic.Int64
	leaves            atomic.Int64
	tracksStarted     atomic.Int64
	tracksStopped     atomic.Int64
	connectionsOpened atomic.Int64
	connectionsClosed atomic.Int64
}

const DefaultMediaServerId = "loopback-1"

type Gateway struct {
	SharedSecret   string
	OperationDelay time.Duration
	FrameInterval  time.Duration
	VideoFormat    media.VideoFormat
	VideoWidth     int
	VideoHeight    int
	// SilentAudio and BlackVideo replace every delivered frame with silence or black.
	SilentAudio bool
	BlackVideo  bool
	IceServers  []media.IceServer
	// Certificates are presented by secure TURN servers, keyed by host. Hosts without an entry present a
	// generated certificate valid for CertificateLifetime.
	Certificates        map[string]*x509.Certificate
	CertificateLifetime time.Duration
	Faults              Faults

	log      *logrus.Entry
	counters counters

	mu          sync.Mutex
	servers     []*Server
	thresholds  map[string]*client.CapacityThresholds
	channels    map[string]*hub
	memberships []Membership
	nextServer  int
}

func New(sharedSecret string, log *logrus.Entry) *Gateway {
	return &Gateway{
		SharedSecret:  sharedSecret,
		FrameInterval: 20 * time.Millisecond,
		VideoFormat:   media.I420,
		VideoWidth:    64,
		VideoHeight:   48,
		IceServers: []media.IceServer{
			{Url: "stun:stun.loopback.local:3478"},
			{Url: "turn:turn.loopback.local:3478?transport=udp", Username: "hammer", Password: "hammer"},
			{Url: "turn:turn.loopback.local:443?transport=tcp", Username: "hammer", Password: "hammer"},
			{Url: "turns:turn.loopback.local:5349?transport=tcp", Username: "hammer", Password: "hammer"},
		},
		Certificates:        map[string]*x509.Certificate{},
		CertificateLifetime: 90 * 24 * time.Hour,
		log:                 log.WithField("component", "sdk"),
		servers: []*Server{{MediaServer: client.MediaServer{
			Id:           DefaultMediaServerId,
			Available:    true,
			Active:       true,
			CoreCount:    4,
			DeploymentId: "loopback",
		}}},
		thresholds: map[string]*client.CapacityThresholds{},
		channels:   map[string]*hub{},
	}
}

func (g *Gateway) NewClient(config media.ClientConfig) media.Client {
	if config.UserId == "" {
		config.UserId = uuid.NewString()
	}
	if config.DeviceId == "" {
		config.DeviceId = uuid.NewString()
	}
	return &loopbackClient{
		gateway:  g,
		id:       uuid.NewString(),
		config:   config,
		channels: map[string]*loopbackChannel{},
	}
}

func (g *Gateway) NewLocalTrack(kind media.StreamKind, source media.SourceKind) media.LocalTrack {
	return &localTrack{gateway: g, kind: kind, source: source}
}

func (g *Gateway) NewAudioSink(sink func(media.AudioFrame)) media.RemoteTrack {
	return &remoteTrack{kind: media.Audio, audio: sink}
}

func (g *Gateway) NewVideoSink(sink func(media.VideoFrame)) media.RemoteTrack {
	return &remoteTrack{kind: media.Video, video: sink}
}

// Stats returns the number of successful operations so far.
func (g *Gateway) Stats() Stats {
	return Stats{
		Registrations:     g.counters.registrations.Load(),
		Unregistrations:   g.counters.unregistrations.Load(),
		Joins:             g.counters.joins.Load(),
		Leaves:            g.counters.leaves.Load(),
		TracksStarted:     g.counters.tracksStarted.Load(),
		TracksStopped:     g.counters.tracksStopped.Load(),
		ConnectionsOpened: g.counters.connectionsOpened.Load(),
		ConnectionsClosed: g.counters.connectionsClosed.Load(),
	}
}

// Memberships returns every successful join in the order the gateway accepted them.
func (g *Gateway) Memberships() []Membership {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Membership(nil), g.memberships...)
}

// wait simulates the latency of a round trip to the gateway.
func (g *Gateway) wait(ctx context.Context) error {
	if g.OperationDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(g.OperationDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (g *Gateway) hub(channelId string) *hub {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.channels[channelId]
	if !ok {
		h = &hub{connections: map[*connection]struct{}{}}
		g.channels[channelId] = h
	}
	return h
}
