package verify

import (
	"bytes"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fixkit/mend/internal/config"
)

// TimeoutExitCode marks a step killed by its timeout. Timeouts are
// verification failures, never infrastructure errors.
const TimeoutExitCode = 124

// runSteps executes the configured steps in order inside the
// container, stopping at the first failure. It returns the outcomes,
// the name of the failed step if any, and the failed step's output.
func (v *Verifier) runSteps(ctx context.Context, containerID, runDir string, steps []config.Step, stepTimeout time.Duration) ([]StepOutcome, string, []byte, error) {
	var outcomes []StepOutcome

	for i, step := range steps {
		select {
		case <-ctx.Done():
			return outcomes, "", nil, ctx.Err()
		default:
		}

		outcome, output, err := v.runStep(ctx, containerID, i+1, step, stepTimeout)
		if err != nil {
			return outcomes, "", nil, err
		}
		outcomes = append(outcomes, outcome)

		if _, werr := WriteStepLog(runDir, i+1, step.Name, output); werr != nil {
			v.log.Warn("failed to write step log", zap.String("step", step.Name), zap.Error(werr))
		}
		if werr := AppendCombinedLog(runDir, step.Name, output); werr != nil {
			v.log.Warn("failed to append combined log", zap.String("step", step.Name), zap.Error(werr))
		}

		if outcome.ExitCode != 0 {
			return outcomes, step.Name, output, nil
		}
	}
	return outcomes, "", nil, nil
}

func (v *Verifier) runStep(ctx context.Context, containerID string, index int, step config.Step, timeout time.Duration) (StepOutcome, []byte, error) {
	stepCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	v.log.Info("running verification step",
		zap.Int("index", index),
		zap.String("step", step.Name))

	var buf bytes.Buffer
	start := time.Now()
	exitCode, err := v.runtime.Exec(stepCtx, containerID, step.Command, &buf)
	duration := time.Since(start)

	outcome := StepOutcome{
		Name:       step.Name,
		Command:    step.Command,
		ExitCode:   exitCode,
		DurationMS: duration.Milliseconds(),
	}

	if err != nil {
		// A deadline on the step context means the command was killed
		// by its timeout: report exit 124 rather than an error.
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			outcome.ExitCode = TimeoutExitCode
			outcome.TimedOut = true
			v.log.Warn("verification step timed out",
				zap.String("step", step.Name),
				zap.Duration("timeout", timeout))
			return outcome, buf.Bytes(), nil
		}
		return outcome, buf.Bytes(), err
	}

	v.log.Info("verification step finished",
		zap.String("step", step.Name),
		zap.Int("exit_code", exitCode),
		zap.Duration("duration", duration))
	return outcome, buf.Bytes(), nil
}
