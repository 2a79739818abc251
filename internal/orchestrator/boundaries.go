package orchestrator

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fixkit/mend/internal/task"
)

// BoundaryError rejects a change set before any I/O happens.
type BoundaryError struct {
	Path   string
	Reason string
}

func (e *BoundaryError) Error() string {
	return fmt.Sprintf("write boundary violation at %s: %s", e.Path, e.Reason)
}

// CheckBoundaries validates every path in a change set against the
// write boundary: inside the repository root, outside the artifact
// directory, and outside any constraint boundary path. The whole set
// is rejected before a single byte is written.
func CheckBoundaries(cs *ChangeSet, artifactDirName string, constraints task.Constraints) error {
	for _, change := range cs.Changes {
		if err := checkPath(change.Path, artifactDirName, constraints); err != nil {
			return err
		}
	}
	return nil
}

func checkPath(path, artifactDirName string, constraints task.Constraints) error {
	if path == "" {
		return &BoundaryError{Path: path, Reason: "empty path"}
	}
	if filepath.IsAbs(path) {
		return &BoundaryError{Path: path, Reason: "absolute paths are not allowed"}
	}

	clean := filepath.ToSlash(filepath.Clean(path))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return &BoundaryError{Path: path, Reason: "escapes the repository root"}
	}
	if clean == "." {
		return &BoundaryError{Path: path, Reason: "refers to the repository root itself"}
	}
	if artifactDirName != "" && underPath(clean, filepath.ToSlash(artifactDirName)) {
		return &BoundaryError{Path: path, Reason: "the artifact directory is engine-owned"}
	}
	for _, boundary := range constraints.BoundaryPaths {
		if underPath(clean, filepath.ToSlash(filepath.Clean(boundary))) {
			return &BoundaryError{Path: path, Reason: fmt.Sprintf("inside protected path %s", boundary)}
		}
	}
	return nil
}

func underPath(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
