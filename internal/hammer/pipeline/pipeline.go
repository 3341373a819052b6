// Package pipeline sequences scoped acquisitions. Stages acquire in order; on success, failure or
// cancellation the pipeline unwinds by releasing every acquired stage in reverse order.
package pipeline

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/G-Research/mediahammer/internal/common/hammercontext"
	"github.com/G-Research/mediahammer/internal/common/hammererrors"
)

type State int

const (
	NotStarted State = iota
	Acquiring
	Verifying
	Releasing
	Released
	Done
	Failed
	Cancelled
)

var stateNames = map[State]string{
	NotStarted: "NotStarted",
	Acquiring:  "Acquiring",
	Verifying:  "Verifying",
	Releasing:  "Releasing",
	Released:   "Released",
	Done:       "Done",
	Failed:     "Failed",
	Cancelled:  "Cancelled",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether the pipeline can leave the state.
func (s State) Terminal() bool {
	return s == Done || s == Failed || s == Cancelled
}

// Stage pairs an acquisition with its release. Release is nil for stages that hold nothing, such as
// verification or a pause. A stage whose Acquire fails must not hold anything: fan-out stages roll back
// their partial acquisitions before returning (see FanOut).
type Stage struct {
	Name string
	// Verification marks a stage that checks rather than acquires.
	Verification bool
	Acquire      func(ctx *hammercontext.Context) error
	Release      func(ctx *hammercontext.Context) error
}

// Transition is one step of the state machine. Index is the stage index, or -1.
type Transition struct {
	State State
	Index int
	Stage string
}

// Report describes one run of a pipeline.
type Report struct {
	State State
	// Err is the failure or cancellation that stopped the pipeline. Release errors never replace it.
	Err         error
	Acquired    []string
	Released    []string
	TeardownErr error
	Transitions []Transition
}

func (r *Report) transition(state State, index int, stage string) {
	r.State = state
	r.Transitions = append(r.Transitions, Transition{State: state, Index: index, Stage: stage})
}

// Recorder observes every stage acquisition.
type Recorder interface {
	RecordStage(stage string, succeeded bool, elapsed time.Duration)
}

type Pipeline struct {
	stages   []Stage
	recorder Recorder
}

func New(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

func (p *Pipeline) WithRecorder(recorder Recorder) *Pipeline {
	p.recorder = recorder
	return p
}

// Run acquires each stage in turn. It stops at the first stage that fails or as soon as ctx is cancelled,
// then releases every acquired stage, most recent first. Releases run to completion even if ctx is
// cancelled; their errors are logged and aggregated into Report.TeardownErr.
func (p *Pipeline) Run(ctx *hammercontext.Context) *Report {
	report := &Report{State: NotStarted}
	var held []int
	var err error
	for i, stage := range p.stages {
		if ctx.Err() != nil {
			err = errors.WithStack(hammererrors.ErrCancelled)
			break
		}
		if stage.Verification {
			report.transition(Verifying, i, stage.Name)
		} else {
			report.transition(Acquiring, i, stage.Name)
		}
		start := time.Now()
		err = stage.Acquire(hammercontext.WithLogField(ctx, "stage", stage.Name))
		if p.recorder != nil {
			p.recorder.RecordStage(stage.Name, err == nil, time.Since(start))
		}
		if err != nil {
			break
		}
		report.Acquired = append(report.Acquired, stage.Name)
		if stage.Release != nil {
			held = append(held, i)
		}
	}
	if ctx.Err() != nil && hammererrors.KindOf(err) != hammererrors.Cancelled {
		if err != nil {
			ctx.Log.WithError(err).Debug("Failure discovered after cancellation")
		}
		err = errors.WithStack(hammererrors.ErrCancelled)
	}

	detached := hammercontext.WithoutCancel(ctx)
	var teardown *multierror.Error
	for j := len(held) - 1; j >= 0; j-- {
		stage := p.stages[held[j]]
		report.transition(Releasing, held[j], stage.Name)
		if releaseErr := stage.Release(hammercontext.WithLogField(detached, "stage", stage.Name)); releaseErr != nil {
			ctx.Log.WithError(releaseErr).Warnf("Error releasing stage %s", stage.Name)
			teardown = multierror.Append(teardown, releaseErr)
		}
		report.Released = append(report.Released, stage.Name)
	}
	report.transition(Released, -1, "")

	report.Err = err
	report.TeardownErr = teardown.ErrorOrNil()
	switch {
	case err == nil:
		report.transition(Done, -1, "")
	case hammererrors.KindOf(err) == hammererrors.Cancelled:
		report.transition(Cancelled, -1, "")
	default:
		report.transition(Failed, -1, "")
	}
	return report
}
