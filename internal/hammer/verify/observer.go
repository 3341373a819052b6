package verify

// Detector judges whether a frame carries a signal.
type Detector[F any] func(frame F) bool

// Observer samples frames of one kind and fires its signal on the first frame the detector accepts.
// Once the signal has completed, frames are no longer inspected.
type Observer[F any] struct {
	signal *Signal
	detect Detector[F]
}

func NewObserver[F any](signal *Signal, detect Detector[F]) *Observer[F] {
	return &Observer[F]{signal: signal, detect: detect}
}

func (o *Observer[F]) Observe(frame F) {
	if o.signal.Completed() {
		return
	}
	if o.detect(frame) {
		o.signal.Fire()
	}
}
