package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/fixkit/mend/internal/artifacts"
)

// PreviewName is the rendered diff written alongside staged changes.
const PreviewName = "preview.diff"

// StagedSetName is the machine-readable change set written by a dry
// run and consumed by a later explicit apply.
const StagedSetName = "changeset.json"

// Apply writes a change set into the repository, creating parent
// directories as needed. Boundary checks must have passed already.
func Apply(repoRoot string, cs *ChangeSet) error {
	for _, change := range cs.Changes {
		target := filepath.Join(repoRoot, change.Path)
		if change.Delete {
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to delete %s: %w", change.Path, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", change.Path, err)
		}
		if err := os.WriteFile(target, change.Content, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", change.Path, err)
		}
	}
	return nil
}

// Preview renders a unified diff of what Apply would do, without
// touching the repository.
func Preview(repoRoot string, cs *ChangeSet) (string, error) {
	var b strings.Builder
	for _, change := range cs.Changes {
		current, err := os.ReadFile(filepath.Join(repoRoot, change.Path))
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to read %s: %w", change.Path, err)
		}

		proposed := change.Content
		if change.Delete {
			proposed = nil
		}

		diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(current)),
			B:        difflib.SplitLines(string(proposed)),
			FromFile: "a/" + change.Path,
			ToFile:   "b/" + change.Path,
			Context:  3,
		})
		if err != nil {
			return "", fmt.Errorf("failed to diff %s: %w", change.Path, err)
		}
		if diff != "" {
			b.WriteString(diff)
		}
	}
	return b.String(), nil
}

// Stage records a dry-run change set under the artifact staging
// directory: each proposed file plus the rendered preview. It returns
// the preview text.
func Stage(dir *artifacts.Dir, repoRoot string, cs *ChangeSet) (string, error) {
	staging := dir.StagingDir()
	if err := os.RemoveAll(staging); err != nil {
		return "", fmt.Errorf("failed to clear staging directory: %w", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	for _, change := range cs.Changes {
		if change.Delete {
			continue
		}
		target := filepath.Join(staging, change.Path)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", fmt.Errorf("failed to stage %s: %w", change.Path, err)
		}
		if err := os.WriteFile(target, change.Content, 0o644); err != nil {
			return "", fmt.Errorf("failed to stage %s: %w", change.Path, err)
		}
	}

	preview, err := Preview(repoRoot, cs)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(staging, PreviewName), []byte(preview), 0o644); err != nil {
		return "", fmt.Errorf("failed to write preview: %w", err)
	}

	set := wireChangeSet{Hypothesis: cs.Hypothesis, Summary: cs.Summary}
	for _, change := range cs.Changes {
		set.Changes = append(set.Changes, wireChange{
			Path:    change.Path,
			Content: string(change.Content),
			Delete:  change.Delete,
		})
	}
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode staged change set: %w", err)
	}
	if err := os.WriteFile(filepath.Join(staging, StagedSetName), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write staged change set: %w", err)
	}
	return preview, nil
}

// LoadStaged reads back the change set written by the last dry run.
func LoadStaged(dir *artifacts.Dir) (*ChangeSet, error) {
	data, err := os.ReadFile(filepath.Join(dir.StagingDir(), StagedSetName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no staged change set; run 'mend submit --dry-run' first")
		}
		return nil, err
	}

	var set wireChangeSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse staged change set: %w", err)
	}

	cs := &ChangeSet{Hypothesis: set.Hypothesis, Summary: set.Summary}
	for _, c := range set.Changes {
		cs.Changes = append(cs.Changes, FileChange{
			Path:    c.Path,
			Content: []byte(c.Content),
			Delete:  c.Delete,
		})
	}
	return cs, nil
}
