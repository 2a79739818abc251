package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"go.uber.org/zap"

	"github.com/fixkit/mend/internal/scout"
)

// wireRequest is the JSON handed to the external implementer command
// on stdin.
type wireRequest struct {
	Phase        string               `json:"phase"`
	TaskID       string               `json:"task_id"`
	Description  string               `json:"description"`
	MustPreserve []string             `json:"must_preserve,omitempty"`
	NonGoals     []string             `json:"non_goals,omitempty"`
	Hypothesis   string               `json:"hypothesis,omitempty"`
	FailedStep   string               `json:"failed_step,omitempty"`
	FailureLog   string               `json:"failure_log,omitempty"`
	Abandoned    []string             `json:"abandoned_hypotheses,omitempty"`
	Context      *scout.ContextReport `json:"context,omitempty"`
	Commands     *scout.CommandReport `json:"commands,omitempty"`
}

// wireChange mirrors FileChange on the wire.
type wireChange struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	Delete  bool   `json:"delete,omitempty"`
}

// wireChangeSet is the JSON the command must print on stdout.
type wireChangeSet struct {
	Hypothesis string       `json:"hypothesis"`
	Summary    string       `json:"summary,omitempty"`
	Changes    []wireChange `json:"changes"`
}

// ExecImplementer proposes changes by running a configured external
// command: request JSON on stdin, change set JSON on stdout. The
// command runs with the repository root as working directory but must
// not write to it; the orchestrator applies accepted changes.
type ExecImplementer struct {
	Command  string
	RepoRoot string
	Log      *zap.Logger
}

// NewExecImplementer wires an implementer around a shell command.
func NewExecImplementer(command, repoRoot string, log *zap.Logger) *ExecImplementer {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExecImplementer{Command: command, RepoRoot: repoRoot, Log: log}
}

func (e *ExecImplementer) Propose(ctx context.Context, req Request) (*ChangeSet, error) {
	wire := wireRequest{
		Phase:      req.Phase.String(),
		Hypothesis: req.Hypothesis,
		FailedStep: req.FailedStep,
		FailureLog: req.FailureLog,
		Abandoned:  req.Abandoned,
	}
	if req.Task != nil {
		wire.TaskID = req.Task.ID
		wire.Description = req.Task.Description
		wire.MustPreserve = req.Task.Constraints.MustPreserve
		wire.NonGoals = req.Task.Constraints.NonGoals
	}
	if req.Scouts != nil {
		wire.Context = req.Scouts.Context
		wire.Commands = req.Scouts.Commands
	}

	input, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to encode implementer request: %w", err)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", e.Command)
	cmd.Dir = e.RepoRoot
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.Log.Debug("invoking implementer command", zap.String("phase", wire.Phase))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("implementer command failed: %v: %s", err, firstStderrLine(&stderr))
	}

	var out wireChangeSet
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("implementer produced invalid JSON: %w", err)
	}
	if out.Hypothesis == "" {
		return nil, fmt.Errorf("implementer response is missing a hypothesis")
	}

	cs := &ChangeSet{Hypothesis: out.Hypothesis, Summary: out.Summary}
	for _, c := range out.Changes {
		cs.Changes = append(cs.Changes, FileChange{
			Path:    c.Path,
			Content: []byte(c.Content),
			Delete:  c.Delete,
		})
	}
	return cs, nil
}

func firstStderrLine(buf *bytes.Buffer) string {
	line, _, _ := bytes.Cut(bytes.TrimSpace(buf.Bytes()), []byte{'\n'})
	return string(line)
}
