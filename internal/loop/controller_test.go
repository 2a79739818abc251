package loop

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_ReplanAfterThreeConsecutive(t *testing.T) {
	t.Parallel()

	c := NewController()
	c.SetHypothesis("fix nil deref")

	assert.Equal(t, DecisionContinue, c.RecordFail("run_a", "test"))
	assert.Equal(t, DecisionContinue, c.RecordFail("run_b", "test"))
	assert.Equal(t, DecisionReplan, c.RecordFail("run_c", "test"))

	// A replan resets the consecutive count but not the total.
	assert.Equal(t, 0, c.ConsecutiveFailures())
	assert.Equal(t, 3, c.TotalLoops())
	assert.Equal(t, 1, c.Replans())
	assert.Equal(t, []string{"fix nil deref"}, c.AbandonedHypotheses())
}

func TestController_PassResetsBothCounters(t *testing.T) {
	t.Parallel()

	c := NewController()
	c.SetHypothesis("adjust timeout")

	c.RecordFail("run_a", "test")
	c.RecordFail("run_b", "test")
	assert.Equal(t, DecisionSuccess, c.RecordPass("run_c"))

	assert.Equal(t, 0, c.ConsecutiveFailures())
	assert.Equal(t, 3, c.TotalLoops())
	assert.Equal(t, 0, c.Replans())

	// A second pass changes nothing but the loop count.
	assert.Equal(t, DecisionSuccess, c.RecordPass("run_d"))
	assert.Equal(t, 0, c.ConsecutiveFailures())
}

func TestController_HardStopAtTwelve(t *testing.T) {
	t.Parallel()

	c := NewController()
	for round := 0; round < 3; round++ {
		c.SetHypothesis(fmt.Sprintf("hypothesis %d", round+1))
		assert.Equal(t, DecisionContinue, c.RecordFail("run", "test"))
		assert.Equal(t, DecisionContinue, c.RecordFail("run", "test"))
		assert.Equal(t, DecisionReplan, c.RecordFail("run", "test"))
	}
	// Loops 10 and 11.
	c.SetHypothesis("hypothesis 4")
	assert.Equal(t, DecisionContinue, c.RecordFail("run", "test"))
	assert.Equal(t, DecisionContinue, c.RecordFail("run", "test"))

	// Loop 12 is both the third consecutive failure and the twelfth
	// total. The hard stop must win the tie.
	assert.Equal(t, DecisionHardStop, c.RecordFail("run", "test"))
	assert.Equal(t, 12, c.TotalLoops())
	assert.Equal(t, 3, c.Replans())
}

func TestController_InvariantConsecutiveNeverExceedsTotal(t *testing.T) {
	t.Parallel()

	c := NewController()
	for i := 0; i < 11; i++ {
		c.RecordFail("run", "test")
		require.LessOrEqual(t, c.ConsecutiveFailures(), c.TotalLoops())
	}
}

func TestController_AttemptHistory(t *testing.T) {
	t.Parallel()

	c := NewController()
	c.SetHypothesis("first")
	c.RecordFail("run_1", "build")
	c.RecordPass("run_2")

	attempts := c.Attempts()
	require.Len(t, attempts, 2)
	assert.Equal(t, "first", attempts[0].Hypothesis)
	assert.Equal(t, "build", attempts[0].FailedStep)
	assert.False(t, attempts[0].Passed)
	assert.True(t, attempts[1].Passed)
}

func TestShouldRequeryScouts(t *testing.T) {
	t.Parallel()

	assert.True(t, ShouldRequeryScouts("open config.yaml: no such file or directory"))
	assert.True(t, ShouldRequeryScouts("main.go:10: undefined: helperFn"))
	assert.False(t, ShouldRequeryScouts("assertion failed: want 3, got 4"))
	assert.False(t, ShouldRequeryScouts(""))
}

func TestDecisionString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "CONTINUE", DecisionContinue.String())
	assert.Equal(t, "REPLAN", DecisionReplan.String())
	assert.Equal(t, "SUCCESS", DecisionSuccess.String())
	assert.Equal(t, "HARD_STOP", DecisionHardStop.String())
}
