// Package verify decides whether media actually flows. Remote tracks hand decoded frames to observers,
// which sample them and fire single-fire signals; Verify races those signals against a timeout.
package verify

import (
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/mediahammer/internal/common/hammercontext"
	"github.com/G-Research/mediahammer/internal/common/hammererrors"
)

// Result is the verdict on one signal.
type Result struct {
	Signal    string `json:"signal"`
	Satisfied bool   `json:"satisfied"`
	Sent      int64  `json:"sent"`
	Received  int64  `json:"received"`
}

// Verify waits until every signal has completed, timeout has elapsed or ctx is cancelled, whichever comes
// first. Each signal is then judged on its own: it passes only if it completed without a fault. If any
// signal fails, the error is an ErrMediaVerification listing every failed leg with its frame counters.
func Verify(ctx *hammercontext.Context, signals []*Signal, timeout time.Duration) ([]Result, error) {
	all := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for _, signal := range signals {
			select {
			case <-signal.Done():
			case <-stop:
				return
			}
		}
		close(all)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, errors.WithStack(hammererrors.ErrCancelled)
	case <-timer.C:
	case <-all:
	}
	if ctx.Err() != nil {
		return nil, errors.WithStack(hammererrors.ErrCancelled)
	}

	results := make([]Result, len(signals))
	var failures []*hammererrors.ErrMediaStreamFailed
	for i, signal := range signals {
		results[i] = Result{
			Signal:    signal.Name(),
			Satisfied: signal.Satisfied(),
			Sent:      signal.Sent(),
			Received:  signal.Received(),
		}
		if results[i].Satisfied {
			continue
		}
		failure := &hammererrors.ErrMediaStreamFailed{
			Stream:   signal.Stream.String(),
			Leg:      signal.Leg,
			Sent:     results[i].Sent,
			Received: results[i].Received,
			Cause:    signal.Err(),
		}
		ctx.Log.Warnf("%s failed (sent: %d, received: %d).", signal.Name(), failure.Sent, failure.Received)
		failures = append(failures, failure)
	}
	if len(failures) > 0 {
		return results, errors.WithStack(&hammererrors.ErrMediaVerification{Failures: failures})
	}
	return results, nil
}
