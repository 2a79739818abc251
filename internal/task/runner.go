package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultHistoryLimit bounds how many completed tasks are kept in
// memory for the history command.
const DefaultHistoryLimit = 50

// Result is what an Executor reports back for a finished task.
type Result struct {
	State      State
	Detail     string
	Attempts   int
	RunIDs     []string
	Hypothesis string
}

// Executor runs one task to a terminal state. It must return promptly
// after ctx is cancelled, finishing only the phase in flight.
type Executor interface {
	Execute(ctx context.Context, t *Task) Result
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, t *Task) Result

func (f ExecutorFunc) Execute(ctx context.Context, t *Task) Result {
	return f(ctx, t)
}

// Status is a point-in-time view of a task. Position is the 1-based
// queue position, zero for tasks that are running or finished.
type Status struct {
	Task     *Task
	Position int
}

// Runner owns the queue and the single execution slot. Submissions,
// status checks and cancellations never block on a running task.
type Runner struct {
	executor Executor
	log      *zap.Logger
	metrics  *Metrics

	mu            sync.Mutex
	pending       queue
	current       *Task
	cancelCurrent context.CancelFunc
	history       []*Task
	historyLimit  int

	wake   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Executor     Executor
	Log          *zap.Logger
	Metrics      *Metrics
	HistoryLimit int
}

// NewRunner starts the worker goroutine and returns the runner. Close
// must be called to stop it.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		executor:     opts.Executor,
		log:          opts.Log,
		metrics:      opts.Metrics,
		historyLimit: opts.HistoryLimit,
		wake:         make(chan struct{}, 1),
		cancel:       cancel,
	}
	r.wg.Add(1)
	go r.loop(ctx)
	return r, nil
}

// Close cancels any running task, stops the worker and waits for it.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}

// Submit enqueues a task and returns its 1-based queue position. With
// an idle slot the task starts immediately.
func (r *Runner) Submit(t *Task) int {
	r.mu.Lock()
	pos := r.pending.enqueue(t)
	r.metrics.Submitted.Inc()
	r.metrics.QueueDepth.Set(float64(r.pending.len()))
	r.mu.Unlock()

	r.log.Info("task submitted",
		zap.String("task_id", t.ID),
		zap.Int("position", pos))

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return pos
}

// Status returns the current view of a task by ID.
func (r *Runner) Status(id string) (*Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.current.ID == id {
		return &Status{Task: r.current.Clone()}, nil
	}
	if t := r.pending.find(id); t != nil {
		return &Status{Task: t.Clone(), Position: r.pending.position(id)}, nil
	}
	for _, t := range r.history {
		if t.ID == id {
			return &Status{Task: t.Clone()}, nil
		}
	}
	return nil, fmt.Errorf("unknown task %s", id)
}

// Queue returns the running task (may be nil) and the queued tasks in
// order.
func (r *Runner) Queue() (running *Task, waiting []*Task) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil {
		running = r.current.Clone()
	}
	return running, r.pending.snapshot()
}

// Cancel stops a task. A queued task is removed immediately; a running
// task gets its context cancelled and finishes its current phase
// before stopping. In-flight verification steps are never killed.
func (r *Runner) Cancel(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current != nil && r.current.ID == id {
		r.cancelCurrent()
		r.log.Info("cancellation requested for running task", zap.String("task_id", id))
		return nil
	}

	t, err := r.pending.remove(id)
	if err != nil {
		return err
	}
	t.State = StateCancelled
	t.FinishedAt = time.Now().UTC()
	t.Detail = "cancelled while queued"
	r.recordFinishedLocked(t)
	r.metrics.Cancelled.Inc()
	r.metrics.QueueDepth.Set(float64(r.pending.len()))
	r.log.Info("queued task cancelled", zap.String("task_id", id))
	return nil
}

// History returns completed tasks, most recent first.
func (r *Runner) History() []*Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Task, 0, len(r.history))
	for i := len(r.history) - 1; i >= 0; i-- {
		out = append(out, r.history[i].Clone())
	}
	return out
}

// ClearHistory drops the completed-task list.
func (r *Runner) ClearHistory() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		}
		r.drain(ctx)
	}
}

// drain runs queued tasks one at a time until the queue empties or the
// runner shuts down.
func (r *Runner) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		r.mu.Lock()
		t := r.pending.dequeue()
		if t == nil {
			r.mu.Unlock()
			return
		}
		runCtx, cancel := context.WithCancel(ctx)
		t.State = StateRunning
		t.StartedAt = time.Now().UTC()
		r.current = t
		r.cancelCurrent = cancel
		r.metrics.QueueDepth.Set(float64(r.pending.len()))
		r.mu.Unlock()

		r.log.Info("task started", zap.String("task_id", t.ID))
		res := r.executor.Execute(runCtx, t.Clone())
		cancel()

		if !res.State.IsTerminal() {
			res.State = StateInfraError
			if res.Detail == "" {
				res.Detail = "executor returned a non-terminal state"
			}
		}

		r.mu.Lock()
		t.State = res.State
		t.Detail = res.Detail
		t.Attempts = res.Attempts
		t.RunIDs = append([]string(nil), res.RunIDs...)
		t.Hypothesis = res.Hypothesis
		t.FinishedAt = time.Now().UTC()
		r.current = nil
		r.cancelCurrent = nil
		r.recordFinishedLocked(t)
		r.metrics.Completed.WithLabelValues(t.State.String()).Inc()
		if t.State == StateCancelled {
			r.metrics.Cancelled.Inc()
		}
		r.mu.Unlock()

		r.log.Info("task finished",
			zap.String("task_id", t.ID),
			zap.String("state", t.State.String()),
			zap.Int("attempts", t.Attempts))
	}
}

func (r *Runner) recordFinishedLocked(t *Task) {
	r.history = append(r.history, t)
	if len(r.history) > r.historyLimit {
		r.history = r.history[len(r.history)-r.historyLimit:]
	}
}
