package orchestrator

import (
	"fmt"
	"strings"

	"github.com/fixkit/mend/internal/artifacts"
	"github.com/fixkit/mend/internal/loop"
	"github.com/fixkit/mend/internal/task"
	"github.com/fixkit/mend/internal/verify"
)

// SuccessSummary renders the terminal output for a completed task.
func SuccessSummary(t *task.Task, ctrl *loop.Controller, changedFiles []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s succeeded\n", t.ID)
	fmt.Fprintf(&b, "Verification loops: %d (replans: %d)\n", ctrl.TotalLoops(), ctrl.Replans())
	if len(changedFiles) > 0 {
		b.WriteString("Files changed:\n")
		for _, f := range changedFiles {
			fmt.Fprintf(&b, "  %s\n", f)
		}
	}
	if len(t.RunIDs) > 0 {
		fmt.Fprintf(&b, "Runs: %s\n", strings.Join(t.RunIDs, ", "))
	}
	return b.String()
}

// buildStuckReport assembles the diagnostic report for a hard stop.
// The hypotheses come straight from the controller's attempt history
// so the report reflects what was actually tried.
func buildStuckReport(t *task.Task, ctrl *loop.Controller) artifacts.DiagnosticReport {
	report := artifacts.DiagnosticReport{
		Kind:   artifacts.ReportStuck,
		TaskID: t.ID,
		Reason: fmt.Sprintf("%d verification loops without a pass", ctrl.TotalLoops()),
		RunIDs: append([]string(nil), t.RunIDs...),
	}

	// One entry per hypothesis, carrying its last failing run.
	byHypothesis := make(map[string]*artifacts.Hypothesis)
	var order []string
	for _, attempt := range ctrl.Attempts() {
		h, ok := byHypothesis[attempt.Hypothesis]
		if !ok {
			h = &artifacts.Hypothesis{Summary: attempt.Hypothesis}
			byHypothesis[attempt.Hypothesis] = h
			order = append(order, attempt.Hypothesis)
		}
		h.Outcome = "FAIL"
		if attempt.FailedStep != "" {
			h.Outcome = "FAIL at " + attempt.FailedStep
		}
		h.RunID = attempt.RunID
	}
	for _, key := range order {
		report.Hypotheses = append(report.Hypotheses, *byHypothesis[key])
	}

	report.Suggestion = "review the step logs of the listed runs; the failure may need a human decision"
	return report
}

// buildInfraReport assembles the diagnostic report for an
// infrastructure failure.
func buildInfraReport(t *task.Task, resp *verify.Response) artifacts.DiagnosticReport {
	report := artifacts.DiagnosticReport{
		Kind:   artifacts.ReportInfraError,
		TaskID: t.ID,
		RunIDs: append([]string(nil), t.RunIDs...),
	}
	if resp != nil && resp.Infra != nil {
		report.Reason = resp.Infra.Error()
		report.Suggestion = infraSuggestion(resp.Infra.Type)
		if resp.RunID != "" {
			report.RunIDs = appendUnique(report.RunIDs, resp.RunID)
		}
	} else {
		report.Reason = "environment failure outside the verification pipeline"
	}
	return report
}

func infraSuggestion(typ verify.InfraErrorType) string {
	switch typ {
	case verify.InfraDockerUnavailable:
		return "start the Docker daemon and resubmit the task"
	case verify.InfraImagePull:
		return "check the container image name in mend.yaml and registry access"
	case verify.InfraResourceExhaustion:
		return "free disk space or memory on this host and resubmit"
	default:
		return "inspect the container engine logs and resubmit"
	}
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
