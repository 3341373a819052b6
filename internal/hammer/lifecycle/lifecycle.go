// Package lifecycle builds the standard stages of a run: register clients, join channels, start tracks
// and open connections, each paired with its teardown.
package lifecycle

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/G-Research/mediahammer/internal/common/hammercontext"
	"github.com/G-Research/mediahammer/internal/common/hammererrors"
	"github.com/G-Research/mediahammer/internal/hammer/batch"
	"github.com/G-Research/mediahammer/internal/hammer/metrics"
	"github.com/G-Research/mediahammer/internal/hammer/pipeline"
	"github.com/G-Research/mediahammer/internal/hammer/verify"
	"github.com/G-Research/mediahammer/internal/media"
)

// Stages creates fan-out stages that share a token generator and, optionally, run metrics.
type Stages struct {
	Tokens  *media.TokenGenerator
	Metrics *metrics.Metrics
}

func (s Stages) spec(stage, narration, operation string, groupSize int) batch.Spec {
	spec := batch.Spec{
		Stage:     stage,
		Narration: narration,
		Operation: operation,
		GroupSize: groupSize,
	}
	if s.Metrics != nil {
		spec.Recorder = s.Metrics
	}
	return spec
}

// Register registers every client, groupSize at a time, and unregisters them on release.
func (s Stages) Register(clients []media.Client, groupSize int) pipeline.Stage {
	return pipeline.FanOut[media.Client]{
		Name:    "register",
		Kind:    hammererrors.ClientRegister,
		Acquire: s.spec("register", "Registering clients", "register", groupSize),
		Release: s.spec("unregister", "Unregistering clients", "unregister", groupSize),
		Slots:   batch.NewSlots(clients),
		AcquireOp: func(ctx *hammercontext.Context, client media.Client) error {
			token, err := s.Tokens.RegisterToken(client)
			if err != nil {
				return err
			}
			return client.Register(ctx, token)
		},
		ReleaseOp: func(ctx *hammercontext.Context, client media.Client) error {
			return client.Unregister(ctx)
		},
	}.Stage()
}

// Membership associates a client with a channel. Channel is set once the join succeeded.
type Membership struct {
	Client    media.Client
	ChannelId string
	Channel   media.Channel
}

// Join joins every membership, groupSize at a time, and leaves on release.
func (s Stages) Join(memberships []*Membership, groupSize int) pipeline.Stage {
	return pipeline.FanOut[*Membership]{
		Name:    "join",
		Kind:    hammererrors.ChannelJoin,
		Acquire: s.spec("join", "Joining channels", "join", groupSize),
		Release: s.spec("leave", "Leaving channels", "leave", groupSize),
		Slots:   batch.NewSlots(memberships),
		AcquireOp: func(ctx *hammercontext.Context, m *Membership) error {
			token, err := s.Tokens.JoinToken(m.Client, m.ChannelId)
			if err != nil {
				return err
			}
			channel, err := m.Client.Join(ctx, token)
			if err != nil {
				return err
			}
			m.Channel = channel
			return nil
		},
		ReleaseOp: func(ctx *hammercontext.Context, m *Membership) error {
			return m.Client.Leave(ctx, m.ChannelId)
		},
	}.Stage()
}

// StartTracks starts every track set, groupSize at a time. Release stops and destroys them.
func (s Stages) StartTracks(sets []*Tracks, groupSize int) pipeline.Stage {
	return pipeline.FanOut[*Tracks]{
		Name:    "tracks",
		Kind:    hammererrors.TrackStart,
		Acquire: s.spec("tracks", "Starting tracks", "start", groupSize),
		Release: s.spec("tracks-stop", "Stopping tracks", "stop", groupSize),
		Slots:   batch.NewSlots(sets),
		AcquireOp: func(ctx *hammercontext.Context, t *Tracks) error {
			return t.Start(ctx)
		},
		ReleaseOp: func(ctx *hammercontext.Context, t *Tracks) error {
			return t.Stop(ctx)
		},
	}.Stage()
}

// Open opens every link, groupSize at a time, and closes them on release.
func (s Stages) Open(links []*Link, groupSize int) pipeline.Stage {
	return pipeline.FanOut[*Link]{
		Name:      "open",
		Kind:      hammererrors.ConnectionOpen,
		Acquire:   s.spec("open", "Opening connections", "open", groupSize),
		Release:   s.spec("close", "Closing connections", "close", groupSize),
		Slots:     batch.NewSlots(links),
		AcquireOp: OpenLink,
		ReleaseOp: CloseLink,
	}.Stage()
}

// Tracks are the local and remote tracks built for one connection. They are never reused.
type Tracks struct {
	Local  []media.LocalTrack
	Remote []media.RemoteTrack
}

// Start starts every local track. If one fails, those already started are stopped and every track is
// destroyed before the error is returned.
func (t *Tracks) Start(ctx *hammercontext.Context) error {
	for i, track := range t.Local {
		if err := track.Start(ctx); err != nil {
			for _, started := range t.Local[:i] {
				if stopErr := started.Stop(ctx); stopErr != nil {
					ctx.Log.WithError(stopErr).Warnf("Error stopping %s track", started.Kind())
				}
			}
			t.destroy()
			return errors.WithMessagef(err, "%s track could not be started", track.Kind())
		}
	}
	return nil
}

// Stop stops every local track, then destroys every track.
func (t *Tracks) Stop(ctx *hammercontext.Context) error {
	var result *multierror.Error
	for _, track := range t.Local {
		if err := track.Stop(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	t.destroy()
	return result.ErrorOrNil()
}

func (t *Tracks) destroy() {
	for _, track := range t.Local {
		track.Destroy()
	}
	for _, track := range t.Remote {
		track.Destroy()
	}
}

// Link is one connection to be opened on a membership.
type Link struct {
	Membership *Membership
	// Prepare, if set, builds Tracks and Config right before the connection is created.
	Prepare func(link *Link)
	Tracks  *Tracks
	// OwnsTracks makes opening start Tracks and closing stop and destroy them.
	OwnsTracks bool
	Config     media.ConnectionConfig
	Connection media.Connection
	// Signals are verified once every link is open.
	Signals []*verify.Signal
}

// OpenLink creates and opens the connection of link. If anything fails, nothing is left acquired: a
// connection that was created but did not open is closed again.
func OpenLink(ctx *hammercontext.Context, link *Link) error {
	if link.Prepare != nil {
		link.Prepare(link)
	}
	if link.OwnsTracks && link.Tracks != nil {
		if err := link.Tracks.Start(ctx); err != nil {
			return err
		}
	}
	connection, err := link.Membership.Channel.CreateConnection(link.Config)
	if err == nil {
		if err = connection.Open(ctx); err != nil {
			if closeErr := connection.Close(ctx); closeErr != nil {
				ctx.Log.WithError(closeErr).Warn("Error closing a connection that failed to open")
			}
		}
	}
	if err != nil {
		if link.OwnsTracks && link.Tracks != nil {
			if stopErr := link.Tracks.Stop(ctx); stopErr != nil {
				ctx.Log.WithError(stopErr).Warn("Error stopping tracks of a connection that failed to open")
			}
		}
		return err
	}
	link.Connection = connection
	return nil
}

// CloseLink closes the connection of link and, if it owns them, stops and destroys its tracks.
func CloseLink(ctx *hammercontext.Context, link *Link) error {
	var result *multierror.Error
	if link.Connection != nil {
		if err := link.Connection.Close(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if link.OwnsTracks && link.Tracks != nil {
		if err := link.Tracks.Stop(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
