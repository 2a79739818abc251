// Package task holds the task model, the strict-FIFO queue and the
// single-slot runner that drives tasks through their lifecycle.
package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is a task's lifecycle position. QUEUED and RUNNING are the
// only non-terminal states.
type State int

const (
	StateQueued State = iota
	StateRunning
	StateSuccess
	StateCancelled
	StateStuck
	StateInfraError
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "QUEUED"
	case StateRunning:
		return "RUNNING"
	case StateSuccess:
		return "SUCCESS"
	case StateCancelled:
		return "CANCELLED"
	case StateStuck:
		return "STUCK"
	case StateInfraError:
		return "INFRA_ERROR"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// IsTerminal reports whether a task in this state will never run again.
func (s State) IsTerminal() bool {
	switch s {
	case StateSuccess, StateCancelled, StateStuck, StateInfraError:
		return true
	default:
		return false
	}
}

// Constraints are extracted once at submission and never change for
// the lifetime of the task.
type Constraints struct {
	MustPreserve  []string
	NonGoals      []string
	BoundaryPaths []string
}

// Task is one unit of work moving through the queue.
type Task struct {
	ID          string
	Description string
	Constraints Constraints
	DryRun      bool
	// ApplyStaged starts the task from a previously staged dry-run
	// change set instead of a fresh proposal.
	ApplyStaged bool

	State       State
	SubmittedAt time.Time
	StartedAt   time.Time
	FinishedAt  time.Time

	// Attempts counts verification pipeline invocations.
	Attempts int
	// RunIDs lists every verification run this task produced.
	RunIDs []string
	// Hypothesis is the strategy in play when the task ended.
	Hypothesis string
	// Detail carries a human-readable note about the terminal state.
	Detail string
}

const taskSuffixLength = 6

// NewTask builds a queued task with a fresh ID.
func NewTask(description string, constraints Constraints, dryRun bool) *Task {
	return &Task{
		ID:          NewTaskID(),
		Description: description,
		Constraints: constraints,
		DryRun:      dryRun,
		State:       StateQueued,
		SubmittedAt: time.Now().UTC(),
	}
}

// NewTaskID generates a task identifier like task_20260115_142233_a1b2c3.
func NewTaskID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:taskSuffixLength]
	return "task_" + time.Now().UTC().Format("20060102_150405") + "_" + suffix
}

// Clone returns a deep copy safe to hand out across the runner's
// mutex boundary.
func (t *Task) Clone() *Task {
	cp := *t
	cp.RunIDs = append([]string(nil), t.RunIDs...)
	cp.Constraints.MustPreserve = append([]string(nil), t.Constraints.MustPreserve...)
	cp.Constraints.NonGoals = append([]string(nil), t.Constraints.NonGoals...)
	cp.Constraints.BoundaryPaths = append([]string(nil), t.Constraints.BoundaryPaths...)
	return &cp
}
