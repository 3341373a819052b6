package loopback

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/G-Research/mediahammer/internal/media"
)

type localTrack struct {
	gateway   *Gateway
	kind      media.StreamKind
	source    media.SourceKind
	started   atomic.Bool
	destroyed atomic.Bool
}

func (t *localTrack) Kind() media.StreamKind {
	return t.kind
}

func (t *localTrack) Start(ctx context.Context) error {
	g := t.gateway
	if err := g.wait(ctx); err != nil {
		return err
	}
	if g.Faults.Start != nil {
		if err := g.Faults.Start(t.kind); err != nil {
			return err
		}
	}
	if t.destroyed.Load() {
		return errors.Errorf("%s track has been destroyed", t.kind)
	}
	if !t.started.CompareAndSwap(false, true) {
		return errors.Errorf("%s track is already started", t.kind)
	}
	g.counters.tracksStarted.Add(1)
	return nil
}

func (t *localTrack) Stop(ctx context.Context) error {
	if err := t.gateway.wait(ctx); err != nil {
		return err
	}
	if !t.started.CompareAndSwap(true, false) {
		return errors.Errorf("%s track is not started", t.kind)
	}
	t.gateway.counters.tracksStopped.Add(1)
	return nil
}

func (t *localTrack) Destroy() {
	t.destroyed.Store(true)
	t.started.Store(false)
}

func (t *localTrack) running() bool {
	return t.started.Load() && !t.destroyed.Load()
}

type remoteTrack struct {
	kind      media.StreamKind
	audio     func(media.AudioFrame)
	video     func(media.VideoFrame)
	destroyed atomic.Bool
}

func (t *remoteTrack) Kind() media.StreamKind {
	return t.kind
}

func (t *remoteTrack) Destroy() {
	t.destroyed.Store(true)
}

func (t *remoteTrack) deliverAudio(frame media.AudioFrame) {
	if t.audio != nil && !t.destroyed.Load() {
		t.audio(frame)
	}
}

func (t *remoteTrack) deliverVideo(frame media.VideoFrame) {
	if t.video != nil && !t.destroyed.Load() {
		t.video(frame)
	}
}
