package cli

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fixkit/mend/internal/artifacts"
	"github.com/fixkit/mend/internal/config"
	"github.com/fixkit/mend/internal/logging"
	"github.com/fixkit/mend/internal/orchestrator"
	"github.com/fixkit/mend/internal/task"
)

// env is the per-invocation wiring shared by the commands: resolved
// repository root, validated config, logger, artifact dir and the
// persistent task store.
type env struct {
	repoRoot string
	cfg      *config.Config
	log      *zap.Logger
	dir      *artifacts.Dir
	store    *task.Store
}

// loadEnv resolves the repository root, loads and validates mend.yaml
// and builds the shared components. Failures here are startup
// validation failures and exit with a distinct code.
func loadEnv() (*env, error) {
	repoRoot, err := filepath.Abs(repoFlag)
	if err != nil {
		return nil, &startupError{err: fmt.Errorf("failed to resolve repository root: %w", err)}
	}
	if err := orchestrator.ValidateStartup(repoRoot); err != nil {
		return nil, &startupError{err: err}
	}

	cfg, err := config.Load(repoRoot)
	if err != nil {
		return nil, &startupError{err: err}
	}

	log, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, &startupError{err: err}
	}
	logging.SetDefault(log)

	artifactRoot := cfg.ArtifactDir
	if !filepath.IsAbs(artifactRoot) {
		artifactRoot = filepath.Join(repoRoot, artifactRoot)
	}
	dir := artifacts.NewDir(artifactRoot)

	return &env{
		repoRoot: repoRoot,
		cfg:      cfg,
		log:      log,
		dir:      dir,
		store:    task.NewStore(artifactRoot),
	}, nil
}
