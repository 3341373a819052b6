package pipeline

import (
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/mediahammer/internal/common/hammercontext"
	"github.com/G-Research/mediahammer/internal/common/hammererrors"
	"github.com/G-Research/mediahammer/internal/hammer/batch"
)

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func stage(j *journal, name string, acquireErr error) Stage {
	return Stage{
		Name: name,
		Acquire: func(*hammercontext.Context) error {
			j.add("acquire " + name)
			return acquireErr
		},
		Release: func(*hammercontext.Context) error {
			j.add("release " + name)
			return nil
		},
	}
}

func TestPipeline_SuccessReleasesInReverseOrder(t *testing.T) {
	j := &journal{}
	report := New(stage(j, "register", nil), stage(j, "join", nil), stage(j, "open", nil)).Run(hammercontext.Background())

	assert.Equal(t, Done, report.State)
	assert.NoError(t, report.Err)
	assert.NoError(t, report.TeardownErr)
	assert.Equal(t, []string{
		"acquire register", "acquire join", "acquire open",
		"release open", "release join", "release register",
	}, j.entries)
	assert.Equal(t, []string{"register", "join", "open"}, report.Acquired)
	assert.Equal(t, []string{"open", "join", "register"}, report.Released)
}

func TestPipeline_TeardownMatchesCompletedAcquisitions(t *testing.T) {
	const n = 5
	for failAt := 0; failAt < n; failAt++ {
		t.Run(fmt.Sprintf("fail at %d", failAt), func(t *testing.T) {
			j := &journal{}
			boom := errors.New("boom")
			stages := make([]Stage, n)
			for i := range stages {
				var err error
				if i == failAt {
					err = boom
				}
				stages[i] = stage(j, fmt.Sprintf("s%d", i), err)
			}

			report := New(stages...).Run(hammercontext.Background())

			assert.Equal(t, Failed, report.State)
			assert.ErrorIs(t, report.Err, boom)
			require.Len(t, report.Acquired, failAt)
			require.Len(t, report.Released, failAt)
			for i := 0; i < failAt; i++ {
				assert.Equal(t, report.Acquired[i], report.Released[failAt-1-i])
			}
		})
	}
}

func TestPipeline_ReleaseErrorsAreSwallowed(t *testing.T) {
	boom := errors.New("acquire failed")
	var released []string
	failingRelease := Stage{
		Name:    "register",
		Acquire: func(*hammercontext.Context) error { return nil },
		Release: func(*hammercontext.Context) error {
			released = append(released, "register")
			return errors.New("release failed")
		},
	}
	second := Stage{
		Name:    "join",
		Acquire: func(*hammercontext.Context) error { return nil },
		Release: func(*hammercontext.Context) error {
			released = append(released, "join")
			return errors.New("release failed too")
		},
	}
	failing := Stage{Name: "open", Acquire: func(*hammercontext.Context) error { return boom }}

	report := New(failingRelease, second, failing).Run(hammercontext.Background())

	assert.Equal(t, Failed, report.State)
	assert.ErrorIs(t, report.Err, boom)
	assert.Error(t, report.TeardownErr)
	assert.Equal(t, []string{"join", "register"}, released)
}

func TestPipeline_CancellationUnwindsAndStopsAdvancing(t *testing.T) {
	j := &journal{}
	ctx, cancel := hammercontext.WithCancel(hammercontext.Background())
	cancelling := Stage{
		Name: "join",
		Acquire: func(*hammercontext.Context) error {
			j.add("acquire join")
			cancel()
			return nil
		},
		Release: func(releaseCtx *hammercontext.Context) error {
			assert.NoError(t, releaseCtx.Err())
			j.add("release join")
			return nil
		},
	}

	report := New(stage(j, "register", nil), cancelling, stage(j, "open", nil)).Run(ctx)

	assert.Equal(t, Cancelled, report.State)
	assert.ErrorIs(t, report.Err, hammererrors.ErrCancelled)
	assert.Equal(t, []string{"acquire register", "acquire join", "release join", "release register"}, j.entries)
}

func TestPipeline_CancellationTakesPrecedenceOverFailure(t *testing.T) {
	ctx, cancel := hammercontext.WithCancel(hammercontext.Background())
	failing := Stage{
		Name: "verify",
		Acquire: func(*hammercontext.Context) error {
			cancel()
			return errors.New("boom")
		},
	}

	report := New(failing).Run(ctx)

	assert.Equal(t, Cancelled, report.State)
	assert.Equal(t, hammererrors.Cancelled, hammererrors.KindOf(report.Err))
}

func TestPipeline_StateMachine(t *testing.T) {
	j := &journal{}
	verify := Stage{Name: "verify", Verification: true, Acquire: func(*hammercontext.Context) error { return nil }}

	report := New(stage(j, "register", nil), verify).Run(hammercontext.Background())

	assert.Equal(t, []Transition{
		{State: Acquiring, Index: 0, Stage: "register"},
		{State: Verifying, Index: 1, Stage: "verify"},
		{State: Releasing, Index: 0, Stage: "register"},
		{State: Released, Index: -1},
		{State: Done, Index: -1},
	}, report.Transitions)
	assert.True(t, report.State.Terminal())
}

func TestFanOut_RollsBackPartialAcquisition(t *testing.T) {
	j := &journal{}
	boom := errors.New("boom")
	slots := batch.NewSlots([]string{"a", "b", "c", "d"})
	fanOut := FanOut[string]{
		Name:    "register",
		Kind:    hammererrors.ClientRegister,
		Acquire: batch.Spec{Stage: "register", Narration: "Registering clients", Operation: "register", GroupSize: 2},
		Release: batch.Spec{Stage: "unregister", Narration: "Unregistering clients", Operation: "unregister", GroupSize: 2},
		Slots:   slots,
		AcquireOp: func(_ *hammercontext.Context, item string) error {
			if item == "c" {
				return boom
			}
			j.add("acquire " + item)
			return nil
		},
		ReleaseOp: func(_ *hammercontext.Context, item string) error {
			j.add("release " + item)
			return nil
		},
	}
	after := stage(j, "join", nil)

	report := New(fanOut.Stage(), after).Run(hammercontext.Background())

	assert.Equal(t, Failed, report.State)
	var stageErr *hammererrors.ErrStageFailed
	require.ErrorAs(t, report.Err, &stageErr)
	assert.Equal(t, hammererrors.ClientRegister, stageErr.Kind)
	assert.Equal(t, 2, stageErr.Group)
	assert.Empty(t, report.Released)

	acquired := map[string]bool{}
	released := map[string]bool{}
	for _, entry := range j.entries {
		var verb, item string
		_, _ = fmt.Sscanf(entry, "%s %s", &verb, &item)
		if verb == "acquire" {
			acquired[item] = true
		} else {
			released[item] = true
		}
	}
	assert.Equal(t, acquired, released)
	assert.Equal(t, 3, len(acquired))
}
