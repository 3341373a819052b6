package loopback

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/mediahammer/internal/media"
)

type connection struct {
	channel *loopbackChannel
	config  media.ConnectionConfig

	mu            sync.Mutex
	mediaServerId string
	stop          chan struct{}
	done          chan struct{}
}

func (c *connection) MediaServerId() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mediaServerId
}

func (c *connection) Open(ctx context.Context) error {
	g := c.channel.client.gateway
	if err := g.wait(ctx); err != nil {
		return err
	}
	if g.Faults.Open != nil {
		if err := g.Faults.Open(c.config); err != nil {
			return err
		}
	}

	iceServers := g.IceServers
	if c.config.FilterIceServers != nil {
		iceServers = c.config.FilterIceServers(append([]media.IceServer(nil), iceServers...))
	}
	if err := checkCandidates(c.config.IceGatherPolicy, iceServers); err != nil {
		return err
	}
	if c.config.TLSInspector != nil {
		for _, server := range iceServers {
			info, err := server.Classify()
			if err != nil || !info.Turn || !info.Secure {
				continue
			}
			certificate, err := g.certificate(info.Host)
			if err != nil {
				return errors.WithMessagef(err, "TLS handshake with %s failed", info.Host)
			}
			c.config.TLSInspector(info.Host, certificate)
		}
	}

	server, err := g.route(c.config.PreferredMediaServerId)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		return errors.New("connection is already open")
	}
	c.mediaServerId = server
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.channel.hub.add(c)
	go c.flow(c.stop, c.done)

	g.counters.connectionsOpened.Add(1)
	g.log.Debugf("Connection opened in channel %s on media server %s (%s, ICE gather policy %s).",
		c.channel.id, server, c.config.Type, c.config.IceGatherPolicy)
	return nil
}

func (c *connection) Close(ctx context.Context) error {
	g := c.channel.client.gateway
	if err := g.wait(ctx); err != nil {
		return err
	}
	if g.Faults.Close != nil {
		if err := g.Faults.Close(c.MediaServerId()); err != nil {
			return err
		}
	}

	c.mu.Lock()
	stop, done := c.stop, c.done
	c.stop, c.done = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return errors.New("connection is not open")
	}
	close(stop)
	<-done
	c.channel.hub.remove(c)

	g.counters.connectionsClosed.Add(1)
	g.log.Debugf("Connection closed in channel %s.", c.channel.id)
	return nil
}

// checkCandidates fails the way ICE would when the gather policy leaves no usable candidate.
func checkCandidates(policy media.IceGatherPolicy, servers []media.IceServer) error {
	var stun, turn bool
	for _, server := range servers {
		info, err := server.Classify()
		if err != nil {
			continue
		}
		stun = stun || info.Stun
		turn = turn || info.Turn
	}
	switch policy {
	case media.IceGatherRelay:
		if !turn {
			return errors.New("ICE failed: relay gather policy and no TURN server")
		}
	case media.IceGatherNoHost:
		if !stun && !turn {
			return errors.New("ICE failed: no-host gather policy and no STUN or TURN server")
		}
	}
	return nil
}

func (c *connection) flow(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := c.channel.client.gateway.FrameInterval
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *connection) tick() {
	g := c.channel.client.gateway
	for _, stream := range []*media.Stream{c.config.Audio, c.config.Video} {
		if stream == nil {
			continue
		}
		if local, ok := stream.Local.(*localTrack); ok && local.running() && stream.OnSend != nil {
			stream.OnSend()
		}
		remote, ok := stream.Remote.(*remoteTrack)
		if !ok || remote.destroyed.Load() {
			continue
		}
		present := c.channel.hub.sending(stream.Kind, c)
		switch stream.Kind {
		case media.Audio:
			remote.deliverAudio(audioFrame(present && !g.SilentAudio))
		case media.Video:
			remote.deliverVideo(videoFrame(g.VideoFormat, g.VideoWidth, g.VideoHeight, present && !g.BlackVideo))
		}
		if stream.OnReceive != nil {
			stream.OnReceive()
		}
	}
}

// hub is the set of open connections of one channel. A connection receives the mix of every other
// connection in the hub.
type hub struct {
	mu          sync.Mutex
	connections map[*connection]struct{}
}

func (h *hub) add(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = struct{}{}
}

func (h *hub) remove(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.connections, c)
}

// sending reports whether any connection other than self sends a detectable source of kind.
func (h *hub) sending(kind media.StreamKind, self *connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for other := range h.connections {
		if other == self {
			continue
		}
		stream := other.config.Audio
		if kind == media.Video {
			stream = other.config.Video
		}
		if stream == nil {
			continue
		}
		if local, ok := stream.Local.(*localTrack); ok && local.running() && local.source == media.FakeSource {
			return true
		}
	}
	return false
}
