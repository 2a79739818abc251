package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixkit/mend/internal/artifacts"
	"github.com/fixkit/mend/internal/scout"
	"github.com/fixkit/mend/internal/task"
	"github.com/fixkit/mend/internal/verify"
)

// scriptedVerifier returns canned responses in order.
type scriptedVerifier struct {
	responses []*verify.Response
	calls     int
}

func (v *scriptedVerifier) Verify(ctx context.Context) (*verify.Response, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if v.calls >= len(v.responses) {
		return nil, fmt.Errorf("unexpected verification call %d", v.calls+1)
	}
	resp := v.responses[v.calls]
	v.calls++
	return resp, nil
}

func failUntil(n int) []*verify.Response {
	var out []*verify.Response
	for i := 1; i < n; i++ {
		out = append(out, verify.Fail(
			fmt.Sprintf("run_20260115_1422%02d_%06d", i, i), "", nil,
			"test", "assertion failed: want 3, got 4"))
	}
	out = append(out, verify.Pass(fmt.Sprintf("run_20260115_1422%02d_%06d", n, n), "", nil))
	return out
}

// recordingImplementer answers every proposal with a single file edit
// and records the requests it saw.
type recordingImplementer struct {
	requests []Request
	change   FileChange
	err      error
}

func (im *recordingImplementer) Propose(ctx context.Context, req Request) (*ChangeSet, error) {
	im.requests = append(im.requests, req)
	if im.err != nil {
		return nil, im.err
	}
	return &ChangeSet{
		Hypothesis: fmt.Sprintf("hypothesis %d", len(im.requests)),
		Changes:    []FileChange{im.change},
	}, nil
}

// staticScout satisfies scout.Scout with fixed reports.
type staticScout struct{}

func (staticScout) QueryContext(ctx context.Context, desc string) (*scout.ContextReport, error) {
	return &scout.ContextReport{SchemaVersion: scout.SchemaVersion, RelevantFiles: []string{"main.go"}}, nil
}

func (staticScout) QueryCommands(ctx context.Context) (*scout.CommandReport, error) {
	return &scout.CommandReport{SchemaVersion: scout.SchemaVersion, TestCommands: []string{"go test ./..."}}, nil
}

type fixture struct {
	orch *Orchestrator
	impl *recordingImplementer
	dir  *artifacts.Dir
	repo string
}

func newFixture(t *testing.T, responses []*verify.Response) *fixture {
	t.Helper()

	repo := t.TempDir()
	dir := artifacts.NewDir(filepath.Join(repo, ".mend"))
	impl := &recordingImplementer{
		change: FileChange{Path: "main.go", Content: []byte("package main\n")},
	}

	orch, err := New(Options{
		RepoRoot:        repo,
		ArtifactDirName: ".mend",
		Dir:             dir,
		Verifier:        &scriptedVerifier{responses: responses},
		Implementer:     impl,
		Scouts:          scout.NewCoordinator(staticScout{}, time.Second, nil),
	})
	require.NoError(t, err)
	return &fixture{orch: orch, impl: impl, dir: dir, repo: repo}
}

func TestExecute_PassFirstTry(t *testing.T) {
	t.Parallel()

	f := newFixture(t, failUntil(1))
	tk := task.NewTask("fix the bug", task.Constraints{}, false)

	res := f.orch.Execute(context.Background(), tk)

	assert.Equal(t, task.StateSuccess, res.State)
	assert.Equal(t, 1, res.Attempts)
	assert.Len(t, res.RunIDs, 1)
	assert.Equal(t, "hypothesis 1", res.Hypothesis)
	assert.Contains(t, res.Detail, "succeeded")

	// The change landed in the repository.
	_, err := os.Stat(filepath.Join(f.repo, "main.go"))
	assert.NoError(t, err)

	// Snapshots: task start and task success.
	names, err := f.dir.ListSnapshots()
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestExecute_FailTwiceThenPass(t *testing.T) {
	t.Parallel()

	f := newFixture(t, failUntil(3))
	tk := task.NewTask("fix the bug", task.Constraints{}, false)

	res := f.orch.Execute(context.Background(), tk)

	assert.Equal(t, task.StateSuccess, res.State)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, res.RunIDs, 3)

	// Initial proposal plus two fix-forwards, no replan at only two
	// consecutive failures.
	require.Len(t, f.impl.requests, 3)
	assert.Equal(t, PhaseInitial, f.impl.requests[0].Phase)
	assert.Equal(t, PhaseFixForward, f.impl.requests[1].Phase)
	assert.Equal(t, PhaseFixForward, f.impl.requests[2].Phase)
	assert.Contains(t, f.impl.requests[1].FailureLog, "assertion failed")
}

func TestExecute_ReplanAtThreeConsecutive(t *testing.T) {
	t.Parallel()

	f := newFixture(t, failUntil(4))
	tk := task.NewTask("fix the bug", task.Constraints{}, false)

	res := f.orch.Execute(context.Background(), tk)

	assert.Equal(t, task.StateSuccess, res.State)
	assert.Equal(t, 4, res.Attempts)

	require.Len(t, f.impl.requests, 4)
	assert.Equal(t, PhaseReplan, f.impl.requests[3].Phase)
	assert.Equal(t, []string{"hypothesis 1"}, f.impl.requests[3].Abandoned)

	// Snapshots: task start, replan, task success.
	names, err := f.dir.ListSnapshots()
	require.NoError(t, err)
	assert.Len(t, names, 3)
}

func TestExecute_HardStopAtTwelve(t *testing.T) {
	t.Parallel()

	var responses []*verify.Response
	for i := 1; i <= 12; i++ {
		responses = append(responses, verify.Fail(
			fmt.Sprintf("run_20260115_1422%02d_%06d", i, i), "", nil,
			"test", "assertion failed"))
	}
	f := newFixture(t, responses)
	tk := task.NewTask("hopeless", task.Constraints{}, false)

	res := f.orch.Execute(context.Background(), tk)

	assert.Equal(t, task.StateStuck, res.State)
	assert.Equal(t, 12, res.Attempts)
	assert.Len(t, res.RunIDs, 12)

	report, err := f.dir.ReadReport()
	require.NoError(t, err)
	assert.Equal(t, artifacts.ReportStuck, report.Kind)
	assert.Equal(t, tk.ID, report.TaskID)
	assert.NotEmpty(t, report.Hypotheses)
	assert.Len(t, report.RunIDs, 12)
}

func TestExecute_InfraErrorBypassesCounters(t *testing.T) {
	t.Parallel()

	responses := []*verify.Response{
		verify.Fail("run_20260115_142201_000001", "", nil, "test", "assertion failed"),
		verify.Infra("", "", verify.InfraDockerUnavailable, "daemon unreachable"),
	}
	f := newFixture(t, responses)
	tk := task.NewTask("fix the bug", task.Constraints{}, false)

	res := f.orch.Execute(context.Background(), tk)

	assert.Equal(t, task.StateInfraError, res.State)
	// Only the real pipeline invocation counted; the infra error did
	// not consume a loop.
	assert.Equal(t, 1, res.Attempts)
	assert.Contains(t, res.Detail, "DOCKER_UNAVAILABLE")

	report, err := f.dir.ReadReport()
	require.NoError(t, err)
	assert.Equal(t, artifacts.ReportInfraError, report.Kind)
	assert.Contains(t, report.Suggestion, "Docker daemon")
}

func TestExecute_DryRunStagesInsteadOfApplying(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	tk := task.NewTask("fix the bug", task.Constraints{}, true)

	res := f.orch.Execute(context.Background(), tk)

	assert.Equal(t, task.StateSuccess, res.State)
	assert.Equal(t, 0, res.Attempts)
	assert.Contains(t, res.Detail, "+package main")

	// Repository untouched, staging populated.
	_, err := os.Stat(filepath.Join(f.repo, "main.go"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(f.dir.StagingDir(), "main.go"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(f.dir.StagingDir(), PreviewName))
	assert.NoError(t, err)
}

func TestExecute_BoundaryViolationRejectedBeforeIO(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.impl.change = FileChange{Path: "../outside.go", Content: []byte("x")}
	tk := task.NewTask("fix the bug", task.Constraints{}, false)

	res := f.orch.Execute(context.Background(), tk)

	assert.Equal(t, task.StateStuck, res.State)
	assert.Contains(t, res.Detail, "write boundary violation")

	// The initial proposal plus two correction rounds, none of which
	// touched the filesystem or consumed a verification loop.
	require.Len(t, f.impl.requests, 3)
	assert.Contains(t, f.impl.requests[1].FailureLog, "write boundary violation")
	assert.Equal(t, 0, res.Attempts)

	_, err := os.Stat(filepath.Join(filepath.Dir(f.repo), "outside.go"))
	assert.True(t, os.IsNotExist(err))
}

// correctingImplementer proposes an out-of-bounds path first and a
// valid one on the next request.
type correctingImplementer struct {
	requests int
}

func (im *correctingImplementer) Propose(ctx context.Context, req Request) (*ChangeSet, error) {
	im.requests++
	change := FileChange{Path: "../outside.go", Content: []byte("x")}
	if im.requests > 1 {
		change = FileChange{Path: "main.go", Content: []byte("package main\n")}
	}
	return &ChangeSet{Hypothesis: "corrected path", Changes: []FileChange{change}}, nil
}

func TestExecute_BoundaryViolationRetriedWithCorrection(t *testing.T) {
	t.Parallel()

	f := newFixture(t, failUntil(1))
	impl := &correctingImplementer{}
	f.orch.implementer = impl
	tk := task.NewTask("fix the bug", task.Constraints{}, false)

	res := f.orch.Execute(context.Background(), tk)

	assert.Equal(t, task.StateSuccess, res.State)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 2, impl.requests)

	_, err := os.Stat(filepath.Join(f.repo, "main.go"))
	assert.NoError(t, err)
}

func TestExecute_ApplyStagedResumesVerification(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	dry := task.NewTask("fix the bug", task.Constraints{}, true)
	res := f.orch.Execute(context.Background(), dry)
	require.Equal(t, task.StateSuccess, res.State)

	// A second task picks up the staged change set without asking the
	// implementer for a fresh proposal.
	f2 := &fixture{
		impl: &recordingImplementer{},
		dir:  f.dir,
		repo: f.repo,
	}
	orch, err := New(Options{
		RepoRoot:        f.repo,
		ArtifactDirName: ".mend",
		Dir:             f.dir,
		Verifier:        &scriptedVerifier{responses: failUntil(1)},
		Implementer:     f2.impl,
		Scouts:          scout.NewCoordinator(staticScout{}, time.Second, nil),
	})
	require.NoError(t, err)

	apply := task.NewTask("fix the bug", task.Constraints{}, false)
	apply.ApplyStaged = true
	res = orch.Execute(context.Background(), apply)

	assert.Equal(t, task.StateSuccess, res.State)
	assert.Equal(t, "hypothesis 1", res.Hypothesis)
	assert.Empty(t, f2.impl.requests)

	_, err = os.Stat(filepath.Join(f.repo, "main.go"))
	assert.NoError(t, err)
}

func TestExecute_ApplyStagedWithoutDryRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	tk := task.NewTask("fix the bug", task.Constraints{}, false)
	tk.ApplyStaged = true

	res := f.orch.Execute(context.Background(), tk)

	assert.Equal(t, task.StateInfraError, res.State)
	assert.Contains(t, res.Detail, "no staged change set")
}

func TestExecute_EmptyDescription(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	tk := task.NewTask("   ", task.Constraints{}, false)

	res := f.orch.Execute(context.Background(), tk)

	assert.Equal(t, task.StateInfraError, res.State)
	assert.Contains(t, res.Detail, "description is empty")
}

func TestExecute_ArtifactDirIsProtected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.impl.change = FileChange{Path: ".mend/runs/fake", Content: []byte("x")}
	tk := task.NewTask("fix the bug", task.Constraints{}, false)

	res := f.orch.Execute(context.Background(), tk)
	assert.Equal(t, task.StateStuck, res.State)
	assert.Contains(t, res.Detail, "engine-owned")
}

func TestExecute_ConstraintBoundaryPaths(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.impl.change = FileChange{Path: "migrations/0001_init.sql", Content: []byte("x")}
	tk := task.NewTask("fix the bug", task.Constraints{BoundaryPaths: []string{"migrations"}}, false)

	res := f.orch.Execute(context.Background(), tk)
	assert.Equal(t, task.StateStuck, res.State)
	assert.Contains(t, res.Detail, "protected path")
}

func TestExecute_CancelledBeforeVerification(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	tk := task.NewTask("fix the bug", task.Constraints{}, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.orch.Execute(ctx, tk)
	assert.Equal(t, task.StateCancelled, res.State)
}

func TestCheckBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"plain file", "internal/parser/parser.go", ""},
		{"empty", "", "empty path"},
		{"absolute", "/etc/passwd", "absolute"},
		{"escape", "../../secrets", "escapes"},
		{"dot", ".", "repository root itself"},
		{"artifact dir", ".mend/report.json", "engine-owned"},
		{"sneaky escape", "a/../../b", "escapes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cs := &ChangeSet{Changes: []FileChange{{Path: tt.path}}}
			err := CheckBoundaries(cs, ".mend", task.Constraints{})
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParseConstraints(t *testing.T) {
	t.Parallel()

	c := ParseConstraints(
		[]string{" keep api ", "keep api", ""},
		nil,
		[]string{"migrations/"},
	)
	assert.Equal(t, []string{"keep api"}, c.MustPreserve)
	assert.Nil(t, c.NonGoals)
	assert.Equal(t, []string{"migrations/"}, c.BoundaryPaths)
}

func TestPreviewAndApply(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "main.go"), []byte("package main\n\nvar x = 1\n"), 0o644))

	cs := &ChangeSet{Changes: []FileChange{
		{Path: "main.go", Content: []byte("package main\n\nvar x = 2\n")},
	}}

	preview, err := Preview(repo, cs)
	require.NoError(t, err)
	assert.Contains(t, preview, "-var x = 1")
	assert.Contains(t, preview, "+var x = 2")

	require.NoError(t, Apply(repo, cs))
	data, err := os.ReadFile(filepath.Join(repo, "main.go"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "var x = 2")
}

func TestApply_Delete(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repo, "dead.go"), []byte("package main\n"), 0o644))

	cs := &ChangeSet{Changes: []FileChange{{Path: "dead.go", Delete: true}}}
	require.NoError(t, Apply(repo, cs))

	_, err := os.Stat(filepath.Join(repo, "dead.go"))
	assert.True(t, os.IsNotExist(err))
}
