// Package media is the boundary between the harness and the real-time media SDK.
//
// The harness never implements media transport, codecs or ICE itself. It drives an SDK through the
// interfaces below: a Gateway creates clients and tracks, a Client registers and joins channels, a
// Channel creates connections and a Connection is opened and closed. Frames produced by the SDK's
// decoders are handed to sinks so that the harness can sample them.
package media

import (
	"context"
	"crypto/x509"
	"fmt"
)

// StreamKind distinguishes audio from video.
type StreamKind int

const (
	Audio StreamKind = iota
	Video
)

func (k StreamKind) String() string {
	switch k {
	case Audio:
		return "Audio"
	case Video:
		return "Video"
	}
	return fmt.Sprintf("StreamKind(%d)", int(k))
}

func (k StreamKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ConnectionType selects how the media server routes a connection.
type ConnectionType int

const (
	// McuConnection sends local media and receives a mix of every other participant.
	McuConnection ConnectionType = iota
	// SfuUpstreamConnection only sends local media.
	SfuUpstreamConnection
)

func (t ConnectionType) String() string {
	switch t {
	case McuConnection:
		return "MCU"
	case SfuUpstreamConnection:
		return "SFU upstream"
	}
	return fmt.Sprintf("ConnectionType(%d)", int(t))
}

// IceGatherPolicy restricts which candidates a connection gathers.
type IceGatherPolicy int

const (
	IceGatherAll IceGatherPolicy = iota
	IceGatherNoHost
	IceGatherRelay
)

func (p IceGatherPolicy) String() string {
	switch p {
	case IceGatherAll:
		return "All"
	case IceGatherNoHost:
		return "NoHost"
	case IceGatherRelay:
		return "Relay"
	}
	return fmt.Sprintf("IceGatherPolicy(%d)", int(p))
}

// SourceKind selects what a local track produces.
type SourceKind int

const (
	// NullSource produces silence or black frames.
	NullSource SourceKind = iota
	// FakeSource produces a tone or a test pattern that the verifier can detect.
	FakeSource
)

// ClientConfig identifies a client at the gateway. Empty ids are generated by the SDK.
type ClientConfig struct {
	GatewayUrl    string
	ApplicationId string
	UserId        string
	DeviceId      string
	Tag           string
	Region        string
}

// Gateway is the entry point of the media SDK.
type Gateway interface {
	NewClient(config ClientConfig) Client
	NewLocalTrack(kind StreamKind, source SourceKind) LocalTrack
	NewAudioSink(sink func(AudioFrame)) RemoteTrack
	NewVideoSink(sink func(VideoFrame)) RemoteTrack
}

// Client is one registered identity at the gateway.
type Client interface {
	Id() string
	Config() ClientConfig
	Register(ctx context.Context, token string) error
	Unregister(ctx context.Context) error
	Join(ctx context.Context, token string) (Channel, error)
	Leave(ctx context.Context, channelId string) error
}

// Channel is a joined session.
type Channel interface {
	Id() string
	CreateConnection(config ConnectionConfig) (Connection, error)
}

// TLSInspector is called with the remote certificate whenever a secure relay transport is negotiated.
type TLSInspector func(targetHost string, certificate *x509.Certificate)

// ConnectionConfig describes a connection to be created on a channel.
type ConnectionConfig struct {
	Type  ConnectionType
	Audio *Stream
	Video *Stream
	// PreferredMediaServerId pins the connection to one media server. Empty means any.
	PreferredMediaServerId string
	IceGatherPolicy        IceGatherPolicy
	// FilterIceServers, if set, receives the ICE servers offered by the gateway and returns those to use.
	FilterIceServers func([]IceServer) []IceServer
	// TLSInspector, if set, is used for secure relay transports of this connection only.
	TLSInspector TLSInspector
}

// Connection is a media transport session bound to a channel.
type Connection interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	// MediaServerId is the media server the connection was negotiated with. Valid once Open succeeded.
	MediaServerId() string
}

// Stream pairs a local and a remote track of one kind. Either track may be nil.
// OnSend and OnReceive are invoked once per frame sent and received.
type Stream struct {
	Kind      StreamKind
	Local     LocalTrack
	Remote    RemoteTrack
	OnSend    func()
	OnReceive func()
}

// LocalTrack produces media.
type LocalTrack interface {
	Kind() StreamKind
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Destroy()
}

// RemoteTrack consumes media.
type RemoteTrack interface {
	Kind() StreamKind
	Destroy()
}
