package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fixkit/mend/internal/config"
	"github.com/fixkit/mend/internal/orchestrator"
	"github.com/fixkit/mend/internal/scout"
	"github.com/fixkit/mend/internal/task"
	"github.com/fixkit/mend/internal/verify"
)

var (
	submitDryRun   bool
	submitPreserve []string
	submitNonGoals []string
	submitBoundary []string
)

var submitCmd = &cobra.Command{
	Use:   "submit <description>",
	Short: "Submit a fix task and run it to completion",
	Long: `Submits a task and runs it in the foreground: scout queries, change
proposals from the configured implementer, and the sandboxed
verification loop. Ctrl-C cancels cooperatively at the next phase
boundary; an in-flight verification step is never killed.

With --dry-run the proposed changes are staged under the artifact
directory and shown as a unified diff instead of being applied.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().BoolVar(&submitDryRun, "dry-run", false, "stage and preview changes without applying them")
	submitCmd.Flags().StringArrayVar(&submitPreserve, "preserve", nil, "behavior that must not change (repeatable)")
	submitCmd.Flags().StringArrayVar(&submitNonGoals, "non-goal", nil, "explicitly out of scope (repeatable)")
	submitCmd.Flags().StringArrayVar(&submitBoundary, "boundary", nil, "repository path the implementer must not touch (repeatable)")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	description := strings.TrimSpace(strings.Join(args, " "))
	if description == "" {
		return &startupError{err: config.ValidationError{
			Field:   "description",
			Message: "must not be empty",
		}}
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.log.Sync()

	constraints := orchestrator.ParseConstraints(submitPreserve, submitNonGoals, submitBoundary)
	t := task.NewTask(description, constraints, submitDryRun)
	return runTask(e, t)
}

// runTask drives one task through the foreground runner. Shared by
// submit and apply.
func runTask(e *env, t *task.Task) error {
	if strings.TrimSpace(e.cfg.Implementer.Command) == "" {
		return &startupError{err: config.ValidationError{
			Field:   "implementer.command",
			Message: "required for submit",
		}}
	}

	verifier, err := verify.New(verify.Options{
		Dir:      e.dir,
		Config:   e.cfg,
		RepoRoot: e.repoRoot,
		Log:      e.log.Named("verify"),
	})
	if err != nil {
		return err
	}

	orch, err := orchestrator.New(orchestrator.Options{
		RepoRoot:        e.repoRoot,
		ArtifactDirName: e.cfg.ArtifactDir,
		Dir:             e.dir,
		Verifier:        verifier,
		Implementer: orchestrator.NewExecImplementer(
			e.cfg.Implementer.Command, e.repoRoot, e.log.Named("implementer")),
		Scouts: scout.NewCoordinator(
			scout.NewRepoScout(e.repoRoot),
			time.Duration(e.cfg.Timeouts.ScoutQueryMS)*time.Millisecond,
			e.log.Named("scout")),
		Log: e.log.Named("orchestrator"),
	})
	if err != nil {
		return err
	}

	runner, err := task.NewRunner(task.RunnerOptions{
		Executor: persistingExecutor{orch: orch, store: e.store},
		Log:      e.log.Named("runner"),
		Metrics:  task.NewMetrics(prometheus.NewRegistry()),
	})
	if err != nil {
		return err
	}
	defer runner.Close()

	if err := e.store.Save(t); err != nil {
		return err
	}
	runner.Submit(t)
	fmt.Printf("Submitted %s\n", t.ID)

	return waitForTask(e, runner, t.ID)
}

// persistingExecutor wraps the orchestrator so every state transition
// lands in the on-disk store, where other mend invocations can see it.
type persistingExecutor struct {
	orch  *orchestrator.Orchestrator
	store *task.Store
}

func (p persistingExecutor) Execute(ctx context.Context, t *task.Task) task.Result {
	t.State = task.StateRunning
	p.store.Save(t)
	res := p.orch.Execute(ctx, t)
	t.State = res.State
	t.Detail = res.Detail
	t.Attempts = res.Attempts
	t.RunIDs = res.RunIDs
	t.Hypothesis = res.Hypothesis
	t.FinishedAt = time.Now().UTC()
	p.store.Save(t)
	p.store.ClearCancel(t.ID)
	return res
}

// waitForTask blocks until the task reaches a terminal state, relaying
// Ctrl-C and cross-process cancel markers into cooperative
// cancellation.
func waitForTask(e *env, runner *task.Runner, id string) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	interrupted := false
	for {
		select {
		case <-sigCh:
			if !interrupted {
				interrupted = true
				fmt.Fprintln(os.Stderr, "interrupt received; finishing the current phase and stopping")
				if err := runner.Cancel(id); err != nil {
					e.log.Warn("cancel failed", zap.Error(err))
				}
			}
		case <-ticker.C:
			if e.store.CancelRequested(id) {
				e.store.ClearCancel(id)
				if err := runner.Cancel(id); err != nil {
					e.log.Warn("cancel failed", zap.Error(err))
				}
			}

			st, err := runner.Status(id)
			if err != nil {
				return err
			}
			if !st.Task.State.IsTerminal() {
				continue
			}

			printOutcome(st.Task)
			if interrupted {
				return errInterrupted
			}
			return nil
		}
	}
}

func printOutcome(t *task.Task) {
	fmt.Printf("\nTask %s finished: %s\n", t.ID, t.State)
	if t.Detail != "" {
		fmt.Println(t.Detail)
	}
}
