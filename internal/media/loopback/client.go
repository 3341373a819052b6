package loopback

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/G-Research/mediahammer/internal/media"
)

type loopbackClient struct {
	gateway *Gateway
	id      string
	config  media.ClientConfig

	mu         sync.Mutex
	registered bool
	channels   map[string]*loopbackChannel
}

func (c *loopbackClient) Id() string {
	return c.id
}

func (c *loopbackClient) Config() media.ClientConfig {
	return c.config
}

func (c *loopbackClient) Register(ctx context.Context, token string) error {
	g := c.gateway
	if err := g.wait(ctx); err != nil {
		return err
	}
	claims, err := media.ParseToken(token, g.SharedSecret)
	if err != nil {
		return err
	}
	if !claims.IsRegisterToken() || claims.ClientId != c.id {
		return errors.Errorf("token does not authorise client %s to register", c.id)
	}
	if g.Faults.Register != nil {
		if err := g.Faults.Register(c.config); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registered {
		return errors.Errorf("client %s is already registered", c.id)
	}
	c.registered = true
	g.counters.registrations.Add(1)
	g.log.Debugf("Client %s registered.", c.id)
	return nil
}

func (c *loopbackClient) Unregister(ctx context.Context) error {
	g := c.gateway
	if err := g.wait(ctx); err != nil {
		return err
	}
	if g.Faults.Unregister != nil {
		if err := g.Faults.Unregister(c.config); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.registered {
		return errors.Errorf("client %s is not registered", c.id)
	}
	c.registered = false
	g.counters.unregistrations.Add(1)
	g.log.Debugf("Client %s unregistered.", c.id)
	return nil
}

func (c *loopbackClient) Join(ctx context.Context, token string) (media.Channel, error) {
	g := c.gateway
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	claims, err := media.ParseToken(token, g.SharedSecret)
	if err != nil {
		return nil, err
	}
	if len(claims.Channels) != 1 || !claims.IsJoinTokenFor(claims.Channels[0].Id) || claims.ClientId != c.id {
		return nil, errors.Errorf("token does not authorise client %s to join a channel", c.id)
	}
	channelId := claims.Channels[0].Id
	if g.Faults.Join != nil {
		if err := g.Faults.Join(c.config, channelId); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.registered {
		return nil, errors.Errorf("client %s is not registered", c.id)
	}
	if _, ok := c.channels[channelId]; ok {
		return nil, errors.Errorf("client %s has already joined channel %s", c.id, channelId)
	}
	channel := &loopbackChannel{client: c, id: channelId, hub: g.hub(channelId)}
	c.channels[channelId] = channel

	g.mu.Lock()
	g.memberships = append(g.memberships, Membership{ClientId: c.id, ChannelId: channelId})
	g.mu.Unlock()
	g.counters.joins.Add(1)
	g.log.Debugf("Client %s joined channel %s.", c.id, channelId)
	return channel, nil
}

func (c *loopbackClient) Leave(ctx context.Context, channelId string) error {
	g := c.gateway
	if err := g.wait(ctx); err != nil {
		return err
	}
	if g.Faults.Leave != nil {
		if err := g.Faults.Leave(c.config, channelId); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[channelId]; !ok {
		return errors.Errorf("client %s is not in channel %s", c.id, channelId)
	}
	delete(c.channels, channelId)
	g.counters.leaves.Add(1)
	g.log.Debugf("Client %s left channel %s.", c.id, channelId)
	return nil
}

type loopbackChannel struct {
	client *loopbackClient
	id     string
	hub    *hub
}

func (c *loopbackChannel) Id() string {
	return c.id
}

func (c *loopbackChannel) CreateConnection(config media.ConnectionConfig) (media.Connection, error) {
	if config.Audio == nil && config.Video == nil {
		return nil, errors.New("a connection needs at least one stream")
	}
	if config.Type == media.SfuUpstreamConnection {
		for _, stream := range []*media.Stream{config.Audio, config.Video} {
			if stream != nil && stream.Remote != nil {
				return nil, errors.New("an upstream connection cannot receive media")
			}
		}
	}
	return &connection{channel: c, config: config}, nil
}
