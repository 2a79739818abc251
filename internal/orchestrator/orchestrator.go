package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fixkit/mend/internal/artifacts"
	"github.com/fixkit/mend/internal/loop"
	"github.com/fixkit/mend/internal/scout"
	"github.com/fixkit/mend/internal/task"
	"github.com/fixkit/mend/internal/verify"
)

// maxBoundaryRetries bounds how often a rejected change set is sent
// back for a corrected proposal. Boundary rejections never count as
// verification loops.
const maxBoundaryRetries = 3

// Verifier is the slice of the verify package the orchestrator needs.
type Verifier interface {
	Verify(ctx context.Context) (*verify.Response, error)
}

// Orchestrator runs tasks. It implements task.Executor.
type Orchestrator struct {
	repoRoot        string
	artifactDirName string
	dir             *artifacts.Dir
	verifier        Verifier
	implementer     Implementer
	scouts          *scout.Coordinator
	log             *zap.Logger
}

// Options configures an Orchestrator.
type Options struct {
	RepoRoot        string
	ArtifactDirName string
	Dir             *artifacts.Dir
	Verifier        Verifier
	Implementer     Implementer
	Scouts          *scout.Coordinator
	Log             *zap.Logger
}

// New validates the options and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.RepoRoot == "":
		return nil, fmt.Errorf("repository root is required")
	case opts.Dir == nil:
		return nil, fmt.Errorf("artifact directory is required")
	case opts.Verifier == nil:
		return nil, fmt.Errorf("verifier is required")
	case opts.Implementer == nil:
		return nil, fmt.Errorf("implementer is required")
	case opts.Scouts == nil:
		return nil, fmt.Errorf("scout coordinator is required")
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Orchestrator{
		repoRoot:        opts.RepoRoot,
		artifactDirName: opts.ArtifactDirName,
		dir:             opts.Dir,
		verifier:        opts.Verifier,
		implementer:     opts.Implementer,
		scouts:          opts.Scouts,
		log:             opts.Log,
	}, nil
}

// Execute drives one task to a terminal state. Cancellation is
// cooperative: it is honored at phase boundaries, never by killing a
// phase in flight.
func (o *Orchestrator) Execute(ctx context.Context, t *task.Task) task.Result {
	log := o.log.With(zap.String("task_id", t.ID))
	ctrl := loop.NewController()
	changed := make(map[string]bool)

	result := o.run(ctx, t, ctrl, changed, log)
	result.Attempts = ctrl.TotalLoops()
	result.RunIDs = append([]string(nil), t.RunIDs...)
	result.Hypothesis = ctrl.Hypothesis()
	return result
}

func (o *Orchestrator) run(ctx context.Context, t *task.Task, ctrl *loop.Controller, changed map[string]bool, log *zap.Logger) task.Result {
	if strings.TrimSpace(t.Description) == "" {
		return task.Result{State: task.StateInfraError, Detail: "task description is empty"}
	}

	if prev, err := o.dir.ReadReport(); err == nil {
		log.Info("a diagnostic report from an earlier task exists",
			zap.String("previous_task", prev.TaskID),
			zap.String("report", o.dir.ReportPath()))
	}

	if _, err := o.dir.WriteSnapshot(artifacts.Snapshot{
		Milestone: artifacts.MilestoneTaskStart,
		TaskID:    t.ID,
	}); err != nil {
		log.Warn("failed to write task-start snapshot", zap.Error(err))
	}

	if ctx.Err() != nil {
		return cancelled("before scout queries")
	}
	bundle, err := o.scouts.Gather(ctx, t.Description)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled("during scout queries")
		}
		log.Error("scout queries failed", zap.Error(err))
		report := buildInfraReport(t, nil)
		report.Reason = err.Error()
		if werr := o.dir.WriteReport(report); werr != nil {
			log.Warn("failed to write diagnostic report", zap.Error(werr))
		}
		return task.Result{State: task.StateInfraError, Detail: err.Error()}
	}

	if ctx.Err() != nil {
		return cancelled("before first proposal")
	}

	var cs *ChangeSet
	initialReq := Request{Phase: PhaseInitial, Task: t, Scouts: bundle}
	if t.ApplyStaged {
		cs, err = LoadStaged(o.dir)
		if err != nil {
			return task.Result{State: task.StateInfraError, Detail: err.Error()}
		}
		log.Info("resuming from staged change set", zap.String("hypothesis", cs.Hypothesis))
	} else {
		cs, err = o.implementer.Propose(ctx, initialReq)
		if err != nil {
			return o.proposalFailure(ctx, err)
		}
	}
	ctrl.SetHypothesis(cs.Hypothesis)

	if t.DryRun {
		return o.stageDryRun(t, cs, log)
	}

	cs, res, ok := o.acceptAndApply(ctx, t, cs, initialReq, changed, log)
	if !ok {
		return res
	}
	ctrl.SetHypothesis(cs.Hypothesis)

	for {
		if ctx.Err() != nil {
			return cancelled("before verification")
		}

		resp, err := o.verifier.Verify(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return cancelled("during verification")
			}
			return task.Result{State: task.StateInfraError, Detail: err.Error()}
		}
		if resp.RunID != "" {
			t.RunIDs = append(t.RunIDs, resp.RunID)
		}

		switch resp.Status {
		case verify.StatusInfraError:
			// Infra errors bypass the loop counters entirely.
			report := buildInfraReport(t, resp)
			if werr := o.dir.WriteReport(report); werr != nil {
				log.Warn("failed to write diagnostic report", zap.Error(werr))
			}
			log.Error("verification environment failed",
				zap.String("type", string(resp.Infra.Type)),
				zap.String("message", resp.Infra.Message))
			return task.Result{State: task.StateInfraError, Detail: resp.Infra.Error()}

		case verify.StatusPass:
			ctrl.RecordPass(resp.RunID)
			if _, serr := o.dir.WriteSnapshot(artifacts.Snapshot{
				Milestone:        artifacts.MilestoneTaskSuccess,
				TaskID:           t.ID,
				Hypothesis:       ctrl.Hypothesis(),
				FilesModified:    sortedKeys(changed),
				TotalVerifyLoops: ctrl.TotalLoops(),
			}); serr != nil {
				log.Warn("failed to write success snapshot", zap.Error(serr))
			}
			return task.Result{
				State:  task.StateSuccess,
				Detail: SuccessSummary(t, ctrl, sortedKeys(changed)),
			}

		case verify.StatusFail:
			decision := ctrl.RecordFail(resp.RunID, resp.FailedStep)
			log.Info("verification failed",
				zap.String("run_id", resp.RunID),
				zap.String("step", resp.FailedStep),
				zap.String("decision", decision.String()),
				zap.Int("total_loops", ctrl.TotalLoops()),
				zap.Int("consecutive", ctrl.ConsecutiveFailures()))

			var req Request
			switch decision {
			case loop.DecisionHardStop:
				report := buildStuckReport(t, ctrl)
				if werr := o.dir.WriteReport(report); werr != nil {
					log.Warn("failed to write diagnostic report", zap.Error(werr))
				}
				return task.Result{State: task.StateStuck, Detail: report.Reason}

			case loop.DecisionReplan:
				if _, serr := o.dir.WriteSnapshot(artifacts.Snapshot{
					Milestone:           artifacts.MilestoneReplan,
					TaskID:              t.ID,
					Hypothesis:          ctrl.Hypothesis(),
					FilesModified:       sortedKeys(changed),
					ConsecutiveFailures: ctrl.ConsecutiveFailures(),
					TotalVerifyLoops:    ctrl.TotalLoops(),
				}); serr != nil {
					log.Warn("failed to write replan snapshot", zap.Error(serr))
				}
				// A failure pattern that smells like stale analysis is
				// worth a second scout pass before the new strategy.
				if loop.ShouldRequeryScouts(resp.TailLog) {
					if fresh, gerr := o.scouts.Gather(ctx, t.Description); gerr == nil {
						bundle = fresh
					} else if ctx.Err() != nil {
						return cancelled("during scout re-query")
					} else {
						log.Warn("scout re-query failed, keeping stale context", zap.Error(gerr))
					}
				}
				req = Request{
					Phase:      PhaseReplan,
					Task:       t,
					Scouts:     bundle,
					Hypothesis: ctrl.Hypothesis(),
					FailedStep: resp.FailedStep,
					FailureLog: resp.TailLog,
					Abandoned:  ctrl.AbandonedHypotheses(),
				}

			default:
				req = Request{
					Phase:      PhaseFixForward,
					Task:       t,
					Scouts:     bundle,
					Hypothesis: ctrl.Hypothesis(),
					FailedStep: resp.FailedStep,
					FailureLog: resp.TailLog,
				}
			}

			cs, err = o.implementer.Propose(ctx, req)
			if err != nil {
				return o.proposalFailure(ctx, err)
			}

			var res task.Result
			cs, res, ok = o.acceptAndApply(ctx, t, cs, req, changed, log)
			if !ok {
				return res
			}
			if decision == loop.DecisionReplan {
				ctrl.SetHypothesis(cs.Hypothesis)
			}

		default:
			return task.Result{
				State:  task.StateInfraError,
				Detail: fmt.Sprintf("unhandled verification status %s", resp.Status),
			}
		}
	}
}

// acceptAndApply boundary-checks a change set and writes it into the
// repository. A violation is bounced back to the implementer for a
// corrected proposal a bounded number of times; exhausting the retries
// ends the task. Returns the change set that was actually applied.
func (o *Orchestrator) acceptAndApply(ctx context.Context, t *task.Task, cs *ChangeSet, req Request, changed map[string]bool, log *zap.Logger) (*ChangeSet, task.Result, bool) {
	for attempt := 1; ; attempt++ {
		err := CheckBoundaries(cs, o.artifactDirName, t.Constraints)
		if err == nil {
			break
		}
		log.Warn("change set rejected before I/O",
			zap.Error(err),
			zap.Int("attempt", attempt))

		if attempt >= maxBoundaryRetries {
			report := artifacts.DiagnosticReport{
				Kind:       artifacts.ReportStuck,
				TaskID:     t.ID,
				Reason:     err.Error(),
				RunIDs:     append([]string(nil), t.RunIDs...),
				Suggestion: "the implementer kept proposing writes outside the boundary; review the task constraints",
			}
			if werr := o.dir.WriteReport(report); werr != nil {
				log.Warn("failed to write diagnostic report", zap.Error(werr))
			}
			return cs, task.Result{State: task.StateStuck, Detail: err.Error()}, false
		}

		if ctx.Err() != nil {
			return cs, cancelled("during boundary correction"), false
		}
		retry := req
		retry.FailureLog = err.Error()
		next, perr := o.implementer.Propose(ctx, retry)
		if perr != nil {
			return cs, o.proposalFailure(ctx, perr), false
		}
		cs = next
	}

	if err := Apply(o.repoRoot, cs); err != nil {
		return cs, task.Result{State: task.StateInfraError, Detail: err.Error()}, false
	}
	for _, change := range cs.Changes {
		changed[change.Path] = true
	}
	log.Info("change set applied",
		zap.String("hypothesis", cs.Hypothesis),
		zap.Int("files", len(cs.Changes)))
	return cs, task.Result{}, true
}

func (o *Orchestrator) stageDryRun(t *task.Task, cs *ChangeSet, log *zap.Logger) task.Result {
	if err := CheckBoundaries(cs, o.artifactDirName, t.Constraints); err != nil {
		return task.Result{State: task.StateStuck, Detail: err.Error()}
	}
	preview, err := Stage(o.dir, o.repoRoot, cs)
	if err != nil {
		return task.Result{State: task.StateInfraError, Detail: err.Error()}
	}
	log.Info("dry run staged",
		zap.String("staging_dir", o.dir.StagingDir()),
		zap.Int("files", len(cs.Changes)))
	if preview == "" {
		preview = "(no changes)\n"
	}
	return task.Result{
		State:  task.StateSuccess,
		Detail: "dry run; staged preview (run 'mend apply' to apply and verify):\n" + preview,
	}
}

func (o *Orchestrator) proposalFailure(ctx context.Context, err error) task.Result {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return cancelled("during proposal")
	}
	return task.Result{State: task.StateInfraError, Detail: fmt.Sprintf("implementer failed: %v", err)}
}

func cancelled(phase string) task.Result {
	return task.Result{
		State:  task.StateCancelled,
		Detail: "cancelled " + phase,
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidateStartup checks the preconditions a task run depends on. It
// is called once at process start so misconfiguration fails fast with
// a distinct exit code.
func ValidateStartup(repoRoot string) error {
	info, err := os.Stat(repoRoot)
	if err != nil {
		return fmt.Errorf("repository root %s: %w", repoRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("repository root %s is not a directory", repoRoot)
	}
	return nil
}
