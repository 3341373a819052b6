package lifecycle

import (
	"time"

	"github.com/G-Research/mediahammer/internal/common/hammercontext"
	"github.com/G-Research/mediahammer/internal/common/hammererrors"
	"github.com/G-Research/mediahammer/internal/hammer/pipeline"
	"github.com/G-Research/mediahammer/internal/hammer/verify"
	"github.com/G-Research/mediahammer/internal/media"
)

// Leg is the audio and video of one MCU connection: two local tracks, two remote sinks and, if observed,
// one signal per stream kind fed by the sinks.
type Leg struct {
	Name    string
	Tracks  *Tracks
	Audio   *media.Stream
	Video   *media.Stream
	Signals []*verify.Signal
}

// NewMcuLeg builds the tracks of a leg. With observe set, decoded frames are sampled and the frame
// counters of each stream feed its signal.
func NewMcuLeg(gateway media.Gateway, name string, source media.SourceKind, observe bool) *Leg {
	leg := &Leg{Name: name}
	audioSink, videoSink := func(media.AudioFrame) {}, func(media.VideoFrame) {}
	var audioSignal, videoSignal *verify.Signal
	if observe {
		audioSignal = verify.NewSignal(media.Audio, name)
		videoSignal = verify.NewSignal(media.Video, name)
		audioSink = verify.NewObserver(audioSignal, verify.AudioDetected).Observe
		videoSink = verify.NewObserver(videoSignal, verify.VideoDetected).Observe
		leg.Signals = []*verify.Signal{audioSignal, videoSignal}
	}

	leg.Audio = &media.Stream{
		Kind:   media.Audio,
		Local:  gateway.NewLocalTrack(media.Audio, source),
		Remote: gateway.NewAudioSink(audioSink),
	}
	leg.Video = &media.Stream{
		Kind:   media.Video,
		Local:  gateway.NewLocalTrack(media.Video, source),
		Remote: gateway.NewVideoSink(videoSink),
	}
	if observe {
		leg.Audio.OnSend, leg.Audio.OnReceive = audioSignal.CountSent, audioSignal.CountReceived
		leg.Video.OnSend, leg.Video.OnReceive = videoSignal.CountSent, videoSignal.CountReceived
	}
	leg.Tracks = &Tracks{
		Local:  []media.LocalTrack{leg.Audio.Local, leg.Video.Local},
		Remote: []media.RemoteTrack{leg.Audio.Remote, leg.Video.Remote},
	}
	return leg
}

func (l *Leg) Config() media.ConnectionConfig {
	return media.ConnectionConfig{Type: media.McuConnection, Audio: l.Audio, Video: l.Video}
}

// Verify is the verification stage: it waits up to timeout for every signal and records the verdicts.
// signals is called when the stage starts, so legs built while opening connections are included.
func (s Stages) Verify(signals func() []*verify.Signal, timeout time.Duration) pipeline.Stage {
	return pipeline.Stage{
		Name:         "verify",
		Verification: true,
		Acquire: func(ctx *hammercontext.Context) error {
			signals := signals()
			ctx.Log.Infof("Verifying media (%d signals)...", len(signals))
			results, err := verify.Verify(ctx, signals, timeout)
			if s.Metrics != nil && results != nil {
				s.Metrics.RecordVerification(results)
			}
			return err
		},
	}
}

// Pause holds everything acquired so far for d before teardown starts. A zero d is a no-op.
func Pause(d time.Duration) pipeline.Stage {
	return pipeline.Stage{
		Name: "pause",
		Acquire: func(ctx *hammercontext.Context) error {
			if d <= 0 {
				return nil
			}
			ctx.Log.Infof("Pausing for %s...", d)
			return hammercontext.Sleep(ctx, d)
		},
	}
}

// Pipeline assembles stages into a pipeline that reports to the run metrics, if any.
func (s Stages) Pipeline(stages ...pipeline.Stage) *pipeline.Pipeline {
	p := pipeline.New(stages...)
	if s.Metrics != nil {
		p.WithRecorder(s.Metrics)
	}
	return p
}

// Outcome labels the result of an iteration for metrics and summaries.
func Outcome(err error) string {
	switch hammererrors.KindOf(err) {
	case hammererrors.None:
		return "success"
	case hammererrors.Cancelled:
		return "cancelled"
	default:
		return "failed"
	}
}
