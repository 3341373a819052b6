// Package batch runs one operation per item in consecutive fixed-size groups. Each group fans out
// concurrently; the next group only starts once the previous one has finished.
package batch

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/G-Research/mediahammer/internal/common/hammercontext"
	"github.com/G-Research/mediahammer/internal/common/hammererrors"
	"github.com/G-Research/mediahammer/internal/common/util"
)

type Outcome int

const (
	Success Outcome = iota
	Faulted
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Faulted:
		return "faulted"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Recorder observes every group that resolves.
type Recorder interface {
	RecordGroup(stage string, outcome Outcome, operations int, elapsed time.Duration)
}

// Spec describes a fan-out stage.
type Spec struct {
	// Stage names the stage in metrics and log fields, e.g. "register".
	Stage string
	// Narration is the progress message logged per group, e.g. "Registering clients".
	Narration string
	// Operation names one operation in the progress message, e.g. "register".
	Operation string
	GroupSize int
	Recorder  Recorder
}

// Result is the outcome of Run. Group is the 1-based index of the group that faulted or was cancelled.
type Result struct {
	Outcome Outcome
	Group   int
	Groups  int
	Err     error
}

// Slot tracks the acquisition of one item so that teardown releases exactly what was acquired.
type Slot[T any] struct {
	Item    T
	started bool
	done    chan struct{}
	err     error
}

func NewSlots[T any](items []T) []*Slot[T] {
	slots := make([]*Slot[T], len(items))
	for i, item := range items {
		slots[i] = &Slot[T]{Item: item, done: make(chan struct{})}
	}
	return slots
}

// Acquired reports whether the operation of this slot ran to completion without error.
func (s *Slot[T]) Acquired() bool {
	if !s.started {
		return false
	}
	select {
	case <-s.done:
		return s.err == nil
	default:
		return false
	}
}

// Err returns the error of the completed operation, if any.
func (s *Slot[T]) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Run starts op for every slot, group by group. It stops at the first group that faults or once ctx is
// cancelled, whichever comes first; cancellation takes precedence over a fault in the same group.
// Operations run under a context that is never cancelled, so an operation that was started is left to
// finish in the background rather than being aborted.
func Run[T any](ctx *hammercontext.Context, spec Spec, slots []*Slot[T], op func(*hammercontext.Context, T) error) Result {
	groups := util.Batch(slots, groupSize(spec))
	detached := hammercontext.WithoutCancel(ctx)
	for i, group := range groups {
		if ctx.Err() != nil {
			return Result{Outcome: Cancelled, Group: i + 1, Groups: len(groups), Err: errors.WithStack(hammererrors.ErrCancelled)}
		}
		groupCtx := hammercontext.WithLogFields(detached, logrus.Fields{"stage": spec.Stage, "group": i + 1})
		ctx.Log.WithField("stage", spec.Stage).Infof(
			"%s (group #%d, %d %s operations)...", spec.Narration, i+1, len(group), spec.Operation,
		)

		start := time.Now()
		wait := make(chan error, 1)
		var g errgroup.Group
		for _, slot := range group {
			slot := slot
			slot.started = true
			g.Go(func() error {
				defer close(slot.done)
				slot.err = op(groupCtx, slot.Item)
				return slot.err
			})
		}
		go func() { wait <- g.Wait() }()

		var outcome Outcome
		var err error
		select {
		case <-ctx.Done():
			outcome, err = Cancelled, errors.WithStack(hammererrors.ErrCancelled)
		case err = <-wait:
			switch {
			case ctx.Err() != nil:
				outcome, err = Cancelled, errors.WithStack(hammererrors.ErrCancelled)
			case err != nil:
				outcome = Faulted
			}
		}
		if spec.Recorder != nil {
			spec.Recorder.RecordGroup(spec.Stage, outcome, len(group), time.Since(start))
		}
		if outcome != Success {
			return Result{Outcome: outcome, Group: i + 1, Groups: len(groups), Err: err}
		}
	}
	return Result{Outcome: Success, Groups: len(groups)}
}

// RunTeardown releases every acquired slot, group by group. Slots whose operation is still in flight are
// waited for first; slots that were never started or whose operation failed are skipped. A failing
// release never stops the others. Cancellation of ctx is ignored so that teardown always completes.
// The returned error aggregates every release failure.
func RunTeardown[T any](ctx *hammercontext.Context, spec Spec, slots []*Slot[T], op func(*hammercontext.Context, T) error) error {
	detached := hammercontext.WithoutCancel(ctx)
	var result *multierror.Error
	for i, group := range util.Batch(slots, groupSize(spec)) {
		pending := make([]*Slot[T], 0, len(group))
		for _, slot := range group {
			if slot.started {
				pending = append(pending, slot)
			}
		}
		if len(pending) == 0 {
			continue
		}
		groupCtx := hammercontext.WithLogFields(detached, logrus.Fields{"stage": spec.Stage, "group": i + 1})
		ctx.Log.WithField("stage", spec.Stage).Infof(
			"%s (group #%d, %d %s operations)...", spec.Narration, i+1, len(pending), spec.Operation,
		)

		start := time.Now()
		errs := make([]error, len(pending))
		var g errgroup.Group
		for j, slot := range pending {
			j, slot := j, slot
			g.Go(func() error {
				<-slot.done
				if slot.err != nil {
					return nil
				}
				if err := op(groupCtx, slot.Item); err != nil {
					groupCtx.Log.WithError(err).Warnf("%s operation failed", spec.Operation)
					errs[j] = err
				}
				return nil
			})
		}
		_ = g.Wait()

		outcome := Success
		for _, err := range errs {
			if err != nil {
				result = multierror.Append(result, err)
				outcome = Faulted
			}
		}
		if spec.Recorder != nil {
			spec.Recorder.RecordGroup(spec.Stage, outcome, len(pending), time.Since(start))
		}
	}
	return result.ErrorOrNil()
}

func groupSize(spec Spec) int {
	if spec.GroupSize < 1 {
		return 1
	}
	return spec.GroupSize
}
