package verify

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/G-Research/mediahammer/internal/media"
)

// Signal is a single-fire flag for one (stream kind, leg) pair. It completes at most once, either as
// detected or with a fault, and never resets.
type Signal struct {
	Stream media.StreamKind
	Leg    string

	once  sync.Once
	done  chan struct{}
	fault error

	// Diagnostic frame counters, only ever read for logging.
	sent     atomic.Int64
	received atomic.Int64
}

func NewSignal(stream media.StreamKind, leg string) *Signal {
	return &Signal{Stream: stream, Leg: leg, done: make(chan struct{})}
}

func (s *Signal) Name() string {
	return fmt.Sprintf("%s %s", s.Stream, s.Leg)
}

// Fire marks the signal detected. It returns false if the signal had already completed.
func (s *Signal) Fire() bool {
	return s.complete(nil)
}

// Fault completes the signal with err. It returns false if the signal had already completed.
func (s *Signal) Fault(err error) bool {
	return s.complete(err)
}

func (s *Signal) complete(err error) bool {
	fired := false
	s.once.Do(func() {
		s.fault = err
		fired = true
		close(s.done)
	})
	return fired
}

// Done is closed once the signal has completed.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

func (s *Signal) Completed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Satisfied reports whether the signal completed without a fault.
func (s *Signal) Satisfied() bool {
	return s.Completed() && s.fault == nil
}

// Err returns the fault the signal completed with, if any.
func (s *Signal) Err() error {
	if !s.Completed() {
		return nil
	}
	return s.fault
}

func (s *Signal) CountSent() {
	s.sent.Add(1)
}

func (s *Signal) CountReceived() {
	s.received.Add(1)
}

func (s *Signal) Sent() int64 {
	return s.sent.Load()
}

func (s *Signal) Received() int64 {
	return s.received.Load()
}
