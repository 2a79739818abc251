package artifacts

import (
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
)

// CleanupPolicy bounds how many run directories are retained and for
// how long. Runs referenced by the diagnostic report are never removed.
type CleanupPolicy struct {
	MaxRuns int
	MaxAge  time.Duration
	Clock   func() time.Time
	Log     *zap.Logger
}

// Cleanup removes run directories that exceed the retention policy and
// returns the run IDs it deleted. Directories whose names do not parse
// as run IDs are left alone.
func (d *Dir) Cleanup(policy CleanupPolicy) ([]string, error) {
	now := time.Now().UTC()
	if policy.Clock != nil {
		now = policy.Clock()
	}
	log := policy.Log
	if log == nil {
		log = zap.NewNop()
	}

	entries, err := os.ReadDir(d.RunsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read runs directory: %w", err)
	}

	type run struct {
		id string
		ts time.Time
	}
	var runs []run
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ts, ok := ParseRunTime(e.Name())
		if !ok {
			continue
		}
		runs = append(runs, run{id: e.Name(), ts: ts})
	}

	// Newest first so count-based trimming keeps the most recent runs.
	sort.Slice(runs, func(i, j int) bool { return runs[i].ts.After(runs[j].ts) })

	protected := d.ProtectedRunIDs()

	var deleted []string
	for i, r := range runs {
		tooMany := policy.MaxRuns > 0 && i >= policy.MaxRuns
		tooOld := policy.MaxAge > 0 && now.Sub(r.ts) > policy.MaxAge
		if !tooMany && !tooOld {
			continue
		}
		if protected[r.id] {
			log.Debug("retaining run referenced by diagnostic report", zap.String("run_id", r.id))
			continue
		}
		if err := os.RemoveAll(d.RunDir(r.id)); err != nil {
			return deleted, fmt.Errorf("failed to remove run %s: %w", r.id, err)
		}
		log.Debug("removed expired run", zap.String("run_id", r.id))
		deleted = append(deleted, r.id)
	}
	return deleted, nil
}
