package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Run directory subpaths created for every verification attempt.
const (
	LogsDirName = "logs"
	TmpDirName  = "tmp"
	DBDirName   = "db"
)

// Dir is a handle on the artifact side-channel directory. All mend
// writes outside the target repository land under this root.
type Dir struct {
	root string
}

// NewDir returns a handle rooted at path. Nothing is created until
// Ensure or CreateRunDir is called.
func NewDir(path string) *Dir {
	return &Dir{root: path}
}

// Root returns the artifact directory root path.
func (d *Dir) Root() string {
	return d.root
}

// RunsDir returns the directory holding one subdirectory per
// verification run.
func (d *Dir) RunsDir() string {
	return filepath.Join(d.root, "runs")
}

// SnapshotsDir returns the directory holding milestone context
// snapshots.
func (d *Dir) SnapshotsDir() string {
	return filepath.Join(d.root, "snapshots")
}

// StagingDir returns the directory where dry-run change sets are
// staged instead of being applied to the repository.
func (d *Dir) StagingDir() string {
	return filepath.Join(d.root, "staging")
}

// RunDir returns the directory for a specific run.
func (d *Dir) RunDir(runID string) string {
	return filepath.Join(d.RunsDir(), runID)
}

// Ensure creates the artifact directory structure.
func (d *Dir) Ensure() error {
	for _, p := range []string{d.root, d.RunsDir(), d.SnapshotsDir()} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("failed to create artifact directory %s: %w", p, err)
		}
	}
	return nil
}

// CreateRunDir allocates a fresh run directory with logs/, tmp/ and db/
// subpaths and returns its run ID and absolute path.
func (d *Dir) CreateRunDir() (runID, runDir string, err error) {
	if err := d.Ensure(); err != nil {
		return "", "", err
	}

	runID = NewRunID()
	runDir = d.RunDir(runID)

	if err := os.Mkdir(runDir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create run directory: %w", err)
	}
	for _, sub := range []string{LogsDirName, TmpDirName, DBDirName} {
		if err := os.Mkdir(filepath.Join(runDir, sub), 0o755); err != nil {
			return "", "", fmt.Errorf("failed to create run subdirectory %s: %w", sub, err)
		}
	}
	return runID, runDir, nil
}

// ListArtifactPaths enumerates every file under a run directory,
// relative to it, in sorted order.
func ListArtifactPaths(runDir string) ([]string, error) {
	var paths []string
	err := filepath.Walk(runDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(runDir, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate artifacts: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}
