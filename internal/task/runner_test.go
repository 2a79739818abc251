package task

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingExecutor runs tasks under test control: each Execute blocks
// until released or cancelled.
type blockingExecutor struct {
	started chan string
	release chan Result
}

func newBlockingExecutor() *blockingExecutor {
	return &blockingExecutor{
		started: make(chan string, 16),
		release: make(chan Result),
	}
}

func (e *blockingExecutor) Execute(ctx context.Context, t *Task) Result {
	e.started <- t.ID
	select {
	case res := <-e.release:
		return res
	case <-ctx.Done():
		return Result{State: StateCancelled, Detail: "cancelled during execution"}
	}
}

func waitForState(t *testing.T, r *Runner, id string, want State) *Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := r.Status(id)
		require.NoError(t, err)
		if st.Task.State == want {
			return st
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached %s", id, want)
	return nil
}

func TestRunner_FIFOOrder(t *testing.T) {
	t.Parallel()

	exec := newBlockingExecutor()
	r, err := NewRunner(RunnerOptions{Executor: exec})
	require.NoError(t, err)
	defer r.Close()

	a := NewTask("task a", Constraints{}, false)
	b := NewTask("task b", Constraints{}, false)
	c := NewTask("task c", Constraints{}, false)

	assert.Equal(t, 1, r.Submit(a))
	require.Equal(t, a.ID, <-exec.started)

	// With a occupying the slot, b and c queue at positions 1 and 2.
	assert.Equal(t, 1, r.Submit(b))
	assert.Equal(t, 2, r.Submit(c))

	stB, err := r.Status(b.ID)
	require.NoError(t, err)
	assert.Equal(t, StateQueued, stB.Task.State)
	assert.Equal(t, 1, stB.Position)

	exec.release <- Result{State: StateSuccess}
	require.Equal(t, b.ID, <-exec.started)
	exec.release <- Result{State: StateSuccess}
	require.Equal(t, c.ID, <-exec.started)
	exec.release <- Result{State: StateSuccess}

	waitForState(t, r, c.ID, StateSuccess)

	// Completion order matches submission order.
	history := r.History()
	require.Len(t, history, 3)
	assert.Equal(t, c.ID, history[0].ID)
	assert.Equal(t, b.ID, history[1].ID)
	assert.Equal(t, a.ID, history[2].ID)
}

func TestRunner_CancelQueuedShiftsPositions(t *testing.T) {
	t.Parallel()

	exec := newBlockingExecutor()
	r, err := NewRunner(RunnerOptions{Executor: exec})
	require.NoError(t, err)
	defer r.Close()

	a := NewTask("task a", Constraints{}, false)
	b := NewTask("task b", Constraints{}, false)
	c := NewTask("task c", Constraints{}, false)

	r.Submit(a)
	require.Equal(t, a.ID, <-exec.started)
	r.Submit(b)
	r.Submit(c)

	require.NoError(t, r.Cancel(b.ID))

	stB, err := r.Status(b.ID)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, stB.Task.State)

	// c moves up into b's position.
	stC, err := r.Status(c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stC.Position)

	exec.release <- Result{State: StateSuccess}
	require.Equal(t, c.ID, <-exec.started)
	exec.release <- Result{State: StateSuccess}
	waitForState(t, r, c.ID, StateSuccess)
}

func TestRunner_CancelRunningIsCooperative(t *testing.T) {
	t.Parallel()

	exec := newBlockingExecutor()
	r, err := NewRunner(RunnerOptions{Executor: exec})
	require.NoError(t, err)
	defer r.Close()

	a := NewTask("task a", Constraints{}, false)
	r.Submit(a)
	require.Equal(t, a.ID, <-exec.started)

	// Cancel returns immediately; the executor decides when to stop.
	require.NoError(t, r.Cancel(a.ID))

	st := waitForState(t, r, a.ID, StateCancelled)
	assert.Equal(t, "cancelled during execution", st.Task.Detail)
}

func TestRunner_CancelUnknownTask(t *testing.T) {
	t.Parallel()

	r, err := NewRunner(RunnerOptions{Executor: newBlockingExecutor()})
	require.NoError(t, err)
	defer r.Close()

	err = r.Cancel("task_20260101_000000_nosuch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not queued")
}

func TestRunner_ResultCarriesRunState(t *testing.T) {
	t.Parallel()

	exec := ExecutorFunc(func(ctx context.Context, tk *Task) Result {
		return Result{
			State:    StateStuck,
			Detail:   "12 verification loops without a pass",
			Attempts: 12,
			RunIDs:   []string{"run_20260115_142233_a1b2c3"},
		}
	})
	r, err := NewRunner(RunnerOptions{Executor: exec})
	require.NoError(t, err)
	defer r.Close()

	tk := NewTask("hopeless", Constraints{}, false)
	r.Submit(tk)

	st := waitForState(t, r, tk.ID, StateStuck)
	assert.Equal(t, 12, st.Task.Attempts)
	assert.Equal(t, []string{"run_20260115_142233_a1b2c3"}, st.Task.RunIDs)
	assert.False(t, st.Task.FinishedAt.IsZero())
}

func TestRunner_NonTerminalResultIsInfraError(t *testing.T) {
	t.Parallel()

	exec := ExecutorFunc(func(ctx context.Context, tk *Task) Result {
		return Result{State: StateRunning}
	})
	r, err := NewRunner(RunnerOptions{Executor: exec})
	require.NoError(t, err)
	defer r.Close()

	tk := NewTask("broken executor", Constraints{}, false)
	r.Submit(tk)

	st := waitForState(t, r, tk.ID, StateInfraError)
	assert.Contains(t, st.Task.Detail, "non-terminal")
}

func TestRunner_QueueView(t *testing.T) {
	t.Parallel()

	exec := newBlockingExecutor()
	r, err := NewRunner(RunnerOptions{Executor: exec})
	require.NoError(t, err)
	defer r.Close()

	a := NewTask("task a", Constraints{}, false)
	b := NewTask("task b", Constraints{}, false)
	r.Submit(a)
	require.Equal(t, a.ID, <-exec.started)
	r.Submit(b)

	running, waiting := r.Queue()
	require.NotNil(t, running)
	assert.Equal(t, a.ID, running.ID)
	assert.Equal(t, StateRunning, running.State)
	require.Len(t, waiting, 1)
	assert.Equal(t, b.ID, waiting[0].ID)

	exec.release <- Result{State: StateSuccess}
	require.Equal(t, b.ID, <-exec.started)
	exec.release <- Result{State: StateSuccess}
}

func TestRunner_HistoryBounded(t *testing.T) {
	t.Parallel()

	exec := ExecutorFunc(func(ctx context.Context, tk *Task) Result {
		return Result{State: StateSuccess}
	})
	r, err := NewRunner(RunnerOptions{Executor: exec, HistoryLimit: 2})
	require.NoError(t, err)
	defer r.Close()

	var last *Task
	for i := 0; i < 4; i++ {
		last = NewTask("task", Constraints{}, false)
		r.Submit(last)
	}
	waitForState(t, r, last.ID, StateSuccess)

	assert.LessOrEqual(t, len(r.History()), 2)

	r.ClearHistory()
	assert.Empty(t, r.History())
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "QUEUED", StateQueued.String())
	assert.Equal(t, "INFRA_ERROR", StateInfraError.String())
	assert.True(t, StateStuck.IsTerminal())
	assert.False(t, StateRunning.IsTerminal())
}
