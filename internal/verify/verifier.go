package verify

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fixkit/mend/internal/artifacts"
	"github.com/fixkit/mend/internal/config"
)

// Verifier runs the full verification pipeline: container setup, the
// configured steps in order, manifest write and retention cleanup.
type Verifier struct {
	runtime  Runtime
	dir      *artifacts.Dir
	cfg      *config.Config
	repoRoot string
	log      *zap.Logger
}

// Options configures a Verifier.
type Options struct {
	Runtime  Runtime
	Dir      *artifacts.Dir
	Config   *config.Config
	RepoRoot string
	Log      *zap.Logger
}

// New builds a Verifier from options. Runtime defaults to the docker
// CLI and Log to a no-op logger.
func New(opts Options) (*Verifier, error) {
	if opts.Dir == nil {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.RepoRoot == "" {
		return nil, fmt.Errorf("repository root is required")
	}
	if opts.Runtime == nil {
		opts.Runtime = NewDockerRuntime()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Verifier{
		runtime:  opts.Runtime,
		dir:      opts.Dir,
		cfg:      opts.Config,
		repoRoot: opts.RepoRoot,
		log:      opts.Log,
	}, nil
}

// Verify executes one verification attempt. The returned error is
// non-nil only for cancellation or internal faults; every
// environment or step failure comes back as a classified Response.
// The container is destroyed on every exit path.
func (v *Verifier) Verify(ctx context.Context) (*Response, error) {
	if err := v.runtime.Ping(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return Infra("", "", InfraDockerUnavailable, err.Error()), nil
	}

	runID, runDir, err := v.dir.CreateRunDir()
	if err != nil {
		return Infra("", "", InfraResourceExhaustion, err.Error()), nil
	}

	start := time.Now().UTC()
	resp, verr := v.verifyInRun(ctx, runID, runDir)
	if verr != nil {
		return nil, verr
	}

	v.writeRunManifest(ctx, runDir, runID, start, resp)
	v.attachRunPayload(runDir, resp)

	if deleted, cerr := v.dir.Cleanup(artifacts.CleanupPolicy{
		MaxRuns: v.cfg.Retention.MaxRuns,
		MaxAge:  time.Duration(v.cfg.Retention.MaxAgeDays) * 24 * time.Hour,
		Log:     v.log,
	}); cerr != nil {
		v.log.Warn("retention cleanup failed", zap.Error(cerr))
	} else if len(deleted) > 0 {
		v.log.Info("retention cleanup removed runs", zap.Int("count", len(deleted)))
	}

	return resp, nil
}

func (v *Verifier) verifyInRun(ctx context.Context, runID, runDir string) (*Response, error) {
	image := v.cfg.Verification.ContainerImage

	if err := v.runtime.EnsureImage(ctx, image); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return Infra(runID, runDir, InfraImagePull, err.Error()), nil
	}

	spec := ContainerSpec{
		Image:    image,
		RepoDir:  v.repoRoot,
		RunDir:   runDir,
		CPUs:     v.cfg.Limits.CPUs,
		MemoryGB: v.cfg.Limits.MemoryGB,
		Env: map[string]string{
			// Steps see a read-only workspace, so scratch and database
			// writes are redirected onto the artifact mount.
			"TMPDIR":       path.Join(ArtifactsMount, artifacts.TmpDirName),
			"MEND_DB_PATH": path.Join(ArtifactsMount, artifacts.DBDirName),
		},
	}

	containerID, err := v.runtime.Create(ctx, spec)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return Infra(runID, runDir, classifyCreateError(err), err.Error()), nil
	}

	defer func() {
		if derr := v.runtime.Destroy(containerID); derr != nil {
			v.log.Warn("failed to destroy container",
				zap.String("container_id", containerID), zap.Error(derr))
		}
	}()

	v.log.Info("verification container started",
		zap.String("run_id", runID),
		zap.String("container_id", containerID),
		zap.String("image", image))

	stepTimeout := time.Duration(v.cfg.Timeouts.VerificationStepMS) * time.Millisecond
	outcomes, failedStep, failedOutput, err := v.runSteps(ctx, containerID, runDir, v.cfg.Verification.Steps, stepTimeout)
	if err != nil {
		return nil, err
	}

	if failedStep != "" {
		return Fail(runID, runDir, outcomes, failedStep, Tail(failedOutput, TailLines)), nil
	}
	return Pass(runID, runDir, outcomes), nil
}

func (v *Verifier) writeRunManifest(ctx context.Context, runDir, runID string, start time.Time, resp *Response) {
	records := make([]CommandRecord, 0, len(resp.Steps))
	for _, s := range resp.Steps {
		records = append(records, CommandRecord{
			Name:       s.Name,
			Command:    s.Command,
			ExitCode:   s.ExitCode,
			DurationMS: s.DurationMS,
		})
	}

	m := Manifest{
		RunID:            runID,
		TimestampStart:   start,
		TimestampEnd:     time.Now().UTC(),
		CommitSHA:        CommitSHA(ctx, v.repoRoot),
		Status:           resp.Status.String(),
		CommandsExecuted: records,
		Platform:         HostPlatform(v.cfg.Verification.ContainerImage),
	}
	if err := WriteManifest(runDir, m); err != nil {
		v.log.Warn("failed to write manifest", zap.String("run_id", runID), zap.Error(err))
	}
	resp.Manifest = &m
}

// attachRunPayload fills the response fields derived from the run
// directory: the combined-log tail and the artifact listing.
func (v *Verifier) attachRunPayload(runDir string, resp *Response) {
	if resp.Status != StatusInfraError {
		if data, err := os.ReadFile(filepath.Join(runDir, artifacts.LogsDirName, CombinedLogName)); err == nil {
			resp.TailLog = Tail(data, TailLines)
		}
	}
	if paths, err := artifacts.ListArtifactPaths(runDir); err == nil {
		resp.ArtifactPaths = paths
	}
}

// classifyCreateError separates resource exhaustion from other
// container creation failures based on the engine's message.
func classifyCreateError(err error) InfraErrorType {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"no space left", "cannot allocate memory", "out of memory", "disk quota"} {
		if strings.Contains(msg, marker) {
			return InfraResourceExhaustion
		}
	}
	return InfraContainerCreation
}
