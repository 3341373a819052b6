package pipeline

import (
	"github.com/pkg/errors"

	"github.com/G-Research/mediahammer/internal/common/hammercontext"
	"github.com/G-Research/mediahammer/internal/common/hammererrors"
	"github.com/G-Research/mediahammer/internal/hammer/batch"
)

// FanOut is a stage that acquires one resource per slot in batches and releases them in batches.
type FanOut[T any] struct {
	Name      string
	Kind      hammererrors.FailureKind
	Acquire   batch.Spec
	Release   batch.Spec
	Slots     []*batch.Slot[T]
	AcquireOp func(*hammercontext.Context, T) error
	ReleaseOp func(*hammercontext.Context, T) error
}

// Stage turns the fan-out into a pipeline stage. If acquisition faults or is cancelled, the slots that
// were acquired are released before the stage reports its failure.
func (f FanOut[T]) Stage() Stage {
	return Stage{
		Name: f.Name,
		Acquire: func(ctx *hammercontext.Context) error {
			result := batch.Run(ctx, f.Acquire, f.Slots, f.AcquireOp)
			if result.Outcome == batch.Success {
				return nil
			}
			if err := batch.RunTeardown(ctx, f.Release, f.Slots, f.ReleaseOp); err != nil {
				ctx.Log.WithError(err).Warnf("Error rolling back stage %s", f.Name)
			}
			if result.Outcome == batch.Cancelled {
				return result.Err
			}
			return errors.WithStack(&hammererrors.ErrStageFailed{
				Kind:  f.Kind,
				Stage: f.Name,
				Group: result.Group,
				Cause: result.Err,
			})
		},
		Release: func(ctx *hammercontext.Context) error {
			return batch.RunTeardown(ctx, f.Release, f.Slots, f.ReleaseOp)
		},
	}
}
