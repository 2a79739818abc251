package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Milestone identifies the events that produce a context snapshot.
// Snapshots are written only at these milestones, never per verify
// attempt or per scout query.
type Milestone string

const (
	MilestoneTaskStart   Milestone = "TASK_START"
	MilestoneReplan      Milestone = "REPLAN"
	MilestoneTaskSuccess Milestone = "TASK_SUCCESS"
)

// Snapshot captures orchestrator state at a milestone.
type Snapshot struct {
	Number              int
	Timestamp           time.Time
	Milestone           Milestone
	TaskID              string
	Hypothesis          string
	FilesModified       []string
	ConsecutiveFailures int
	TotalVerifyLoops    int
}

var snapshotPattern = regexp.MustCompile(`^snapshot_(\d{3})\.md$`)

// WriteSnapshot appends a numbered snapshot file to the snapshots
// directory. Numbering continues from the highest existing snapshot.
func (d *Dir) WriteSnapshot(snap Snapshot) (string, error) {
	if err := d.Ensure(); err != nil {
		return "", err
	}

	next, err := nextSnapshotNumber(d.SnapshotsDir())
	if err != nil {
		return "", err
	}
	snap.Number = next
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}

	path := filepath.Join(d.SnapshotsDir(), fmt.Sprintf("snapshot_%03d.md", snap.Number))
	if err := os.WriteFile(path, []byte(renderSnapshot(snap)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	return path, nil
}

// ListSnapshots returns the snapshot file names in order.
func (d *Dir) ListSnapshots() ([]string, error) {
	entries, err := os.ReadDir(d.SnapshotsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshots directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && snapshotPattern.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func nextSnapshotNumber(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, fmt.Errorf("failed to read snapshots directory: %w", err)
	}

	max := 0
	for _, e := range entries {
		m := snapshotPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

func renderSnapshot(snap Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Context Snapshot %03d\n\n", snap.Number)
	fmt.Fprintf(&b, "- Milestone: %s\n", snap.Milestone)
	fmt.Fprintf(&b, "- Timestamp: %s\n", snap.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Task: %s\n\n", snap.TaskID)

	fmt.Fprintf(&b, "## Loop state\n\n")
	fmt.Fprintf(&b, "- Total verify loops: %d\n", snap.TotalVerifyLoops)
	fmt.Fprintf(&b, "- Consecutive failures: %d\n\n", snap.ConsecutiveFailures)

	fmt.Fprintf(&b, "## Hypothesis\n\n")
	if snap.Hypothesis == "" {
		b.WriteString("(none)\n")
	} else {
		b.WriteString(snap.Hypothesis + "\n")
	}

	if len(snap.FilesModified) > 0 {
		fmt.Fprintf(&b, "\n## Files modified\n\n")
		for _, f := range snap.FilesModified {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	return b.String()
}
