// Package orchestrator drives one task end to end: scout queries,
// proposed changes, the sandboxed verification loop and the terminal
// outputs.
package orchestrator

import (
	"context"

	"github.com/fixkit/mend/internal/scout"
	"github.com/fixkit/mend/internal/task"
)

// Phase tells the implementer where in the loop a proposal request
// sits.
type Phase int

const (
	// PhaseInitial is the first proposal for a fresh task.
	PhaseInitial Phase = iota
	// PhaseFixForward continues the current hypothesis after a failed
	// verification.
	PhaseFixForward
	// PhaseReplan asks for a new hypothesis after the current one was
	// abandoned.
	PhaseReplan
)

func (p Phase) String() string {
	switch p {
	case PhaseInitial:
		return "INITIAL"
	case PhaseFixForward:
		return "FIX_FORWARD"
	case PhaseReplan:
		return "REPLAN"
	default:
		return "UNKNOWN"
	}
}

// FileChange is one proposed edit, relative to the repository root.
type FileChange struct {
	Path    string
	Content []byte
	Delete  bool
}

// ChangeSet is a batch of edits advancing one hypothesis.
type ChangeSet struct {
	Hypothesis string
	Summary    string
	Changes    []FileChange
}

// Request carries everything an implementer needs for a proposal.
type Request struct {
	Phase      Phase
	Task       *task.Task
	Scouts     *scout.Bundle
	Hypothesis string
	FailedStep string
	FailureLog string
	Abandoned  []string
}

// Implementer proposes code changes. Implementations never write to
// the repository themselves; the orchestrator applies accepted
// changes after boundary checks.
type Implementer interface {
	Propose(ctx context.Context, req Request) (*ChangeSet, error)
}
