// Package loop implements the bounded debug loop: counting verify
// outcomes and deciding when to keep iterating, replan, or give up.
package loop

import (
	"fmt"
	"strings"
)

// Thresholds for the debug loop. Consecutive failures trigger a
// replan; the total across all strategies is the hard ceiling. When
// both trip on the same failure the hard stop wins.
const (
	ReplanThreshold   = 3
	HardStopThreshold = 12
)

// Decision is the controller's verdict after an outcome is recorded.
type Decision int

const (
	// DecisionContinue keeps iterating on the current hypothesis.
	DecisionContinue Decision = iota
	// DecisionReplan abandons the current hypothesis for a new one.
	DecisionReplan
	// DecisionSuccess ends the task after a passing verification.
	DecisionSuccess
	// DecisionHardStop ends the task as stuck.
	DecisionHardStop
)

func (d Decision) String() string {
	switch d {
	case DecisionContinue:
		return "CONTINUE"
	case DecisionReplan:
		return "REPLAN"
	case DecisionSuccess:
		return "SUCCESS"
	case DecisionHardStop:
		return "HARD_STOP"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Attempt records one verification outcome against a hypothesis.
type Attempt struct {
	Hypothesis string
	Passed     bool
	RunID      string
	FailedStep string
}

// Controller tracks debug loop state for a single task. It is not
// safe for concurrent use; the orchestrator owns it.
type Controller struct {
	consecutiveFailures int
	totalLoops          int
	replans             int
	hypothesis          string
	attempts            []Attempt
	abandoned           []string
}

// NewController returns a fresh controller with zeroed counters.
func NewController() *Controller {
	return &Controller{}
}

// SetHypothesis records the strategy currently being pursued. Called
// at task start and after every replan.
func (c *Controller) SetHypothesis(h string) {
	c.hypothesis = h
}

// Hypothesis returns the strategy currently being pursued.
func (c *Controller) Hypothesis() string {
	return c.hypothesis
}

// RecordPass registers a passing verification. Both counters reset so
// a later regression starts from a clean slate.
func (c *Controller) RecordPass(runID string) Decision {
	c.totalLoops++
	c.consecutiveFailures = 0
	c.attempts = append(c.attempts, Attempt{
		Hypothesis: c.hypothesis,
		Passed:     true,
		RunID:      runID,
	})
	return DecisionSuccess
}

// RecordFail registers a failing verification and returns the next
// move. The hard stop is checked before the replan threshold so a tie
// ends the task.
func (c *Controller) RecordFail(runID, failedStep string) Decision {
	c.totalLoops++
	c.consecutiveFailures++
	c.attempts = append(c.attempts, Attempt{
		Hypothesis: c.hypothesis,
		RunID:      runID,
		FailedStep: failedStep,
	})

	if c.totalLoops >= HardStopThreshold {
		return DecisionHardStop
	}
	if c.consecutiveFailures >= ReplanThreshold {
		c.replans++
		c.consecutiveFailures = 0
		c.abandoned = append(c.abandoned, c.hypothesis)
		return DecisionReplan
	}
	return DecisionContinue
}

// ConsecutiveFailures returns failures since the last pass or replan.
func (c *Controller) ConsecutiveFailures() int {
	return c.consecutiveFailures
}

// TotalLoops returns verification attempts across all strategies.
// Infra errors never pass through the controller, so they are not
// counted here.
func (c *Controller) TotalLoops() int {
	return c.totalLoops
}

// Replans returns how many times the strategy was abandoned.
func (c *Controller) Replans() int {
	return c.replans
}

// Attempts returns the recorded history in order.
func (c *Controller) Attempts() []Attempt {
	return c.attempts
}

// AbandonedHypotheses returns the strategies given up at each replan.
func (c *Controller) AbandonedHypotheses() []string {
	return c.abandoned
}

// ShouldRequeryScouts reports whether a failure looks like stale
// context rather than a wrong fix, in which case the scouts are worth
// asking again before the next attempt.
func ShouldRequeryScouts(tailLog string) bool {
	lower := strings.ToLower(tailLog)
	for _, marker := range []string{
		"no such file or directory",
		"cannot find package",
		"cannot find module",
		"undefined:",
		"undeclared name",
		"unknown command",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
