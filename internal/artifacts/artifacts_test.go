package artifacts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunID(t *testing.T) {
	t.Parallel()

	id := NewRunID()
	assert.True(t, IsRunID(id), "generated ID %q should parse", id)

	ts, ok := ParseRunTime(id)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().UTC(), ts, 5*time.Second)
}

func TestParseRunTime_Rejects(t *testing.T) {
	t.Parallel()

	for _, s := range []string{
		"",
		"run_20260115_142233",
		"run_20260115_142233_ab",
		"task_20260115_142233_a1b2c3",
		"run_20261345_142233_a1b2c3",
		"run-20260115-142233-a1b2c3",
	} {
		assert.False(t, IsRunID(s), "%q should not parse", s)
	}
}

func TestCreateRunDir(t *testing.T) {
	t.Parallel()

	d := NewDir(filepath.Join(t.TempDir(), ".mend"))

	runID, runDir, err := d.CreateRunDir()
	require.NoError(t, err)
	assert.True(t, IsRunID(runID))
	assert.Equal(t, d.RunDir(runID), runDir)

	for _, sub := range []string{LogsDirName, TmpDirName, DBDirName} {
		info, err := os.Stat(filepath.Join(runDir, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestListArtifactPaths(t *testing.T) {
	t.Parallel()

	d := NewDir(filepath.Join(t.TempDir(), ".mend"))
	_, runDir, err := d.CreateRunDir()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(runDir, "manifest.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, LogsDirName, "step-01-build.log"), []byte("ok"), 0o644))

	paths, err := ListArtifactPaths(runDir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(LogsDirName, "step-01-build.log"), "manifest.json"}, paths)
}

func TestWriteSnapshot_Numbering(t *testing.T) {
	t.Parallel()

	d := NewDir(filepath.Join(t.TempDir(), ".mend"))

	first, err := d.WriteSnapshot(Snapshot{Milestone: MilestoneTaskStart, TaskID: "task_x"})
	require.NoError(t, err)
	assert.Equal(t, "snapshot_001.md", filepath.Base(first))

	second, err := d.WriteSnapshot(Snapshot{Milestone: MilestoneReplan, TaskID: "task_x", Hypothesis: "stale cache"})
	require.NoError(t, err)
	assert.Equal(t, "snapshot_002.md", filepath.Base(second))

	names, err := d.ListSnapshots()
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshot_001.md", "snapshot_002.md"}, names)

	data, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Milestone: REPLAN")
	assert.Contains(t, string(data), "stale cache")
}

func TestReport_RoundTrip(t *testing.T) {
	t.Parallel()

	d := NewDir(filepath.Join(t.TempDir(), ".mend"))

	report := DiagnosticReport{
		Kind:   ReportStuck,
		TaskID: "task_20260115_142233_fix",
		Reason: "12 verification loops without a pass",
		Hypotheses: []Hypothesis{
			{Summary: "missing nil check", Outcome: "FAIL", RunID: "run_20260115_142233_a1b2c3"},
		},
		RunIDs:     []string{"run_20260115_143000_d4e5f6"},
		Suggestion: "inspect step-02-test.log from the last run",
	}
	require.NoError(t, d.WriteReport(report))

	got, err := d.ReadReport()
	require.NoError(t, err)
	assert.Equal(t, ReportStuck, got.Kind)
	assert.Equal(t, report.Reason, got.Reason)
	assert.False(t, got.Timestamp.IsZero())

	protected := d.ProtectedRunIDs()
	assert.True(t, protected["run_20260115_142233_a1b2c3"])
	assert.True(t, protected["run_20260115_143000_d4e5f6"])

	rendered := got.Render()
	assert.Contains(t, rendered, "hypothesis space exhausted")
	assert.Contains(t, rendered, "missing nil check")
}

func TestReadReport_Missing(t *testing.T) {
	t.Parallel()

	d := NewDir(filepath.Join(t.TempDir(), ".mend"))
	_, err := d.ReadReport()
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, d.ProtectedRunIDs())
}

func TestCleanup(t *testing.T) {
	t.Parallel()

	d := NewDir(filepath.Join(t.TempDir(), ".mend"))
	require.NoError(t, d.Ensure())

	now := time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)
	mkRun := func(id string) {
		require.NoError(t, os.MkdirAll(d.RunDir(id), 0o755))
	}

	old := "run_20260101_090000_aaaaaa"      // past max age
	protected := "run_20260102_090000_bbbbbb" // past max age but referenced
	third := "run_20260119_090000_cccccc"     // fresh, over the count limit
	recentA := "run_20260120_100000_dddddd"
	recentB := "run_20260120_110000_eeeeee"
	for _, id := range []string{old, protected, third, recentA, recentB} {
		mkRun(id)
	}
	// A stray directory must be ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(d.RunsDir(), "scratch"), 0o755))

	require.NoError(t, d.WriteReport(DiagnosticReport{
		Kind:   ReportStuck,
		TaskID: "task_x",
		Reason: "stuck",
		RunIDs: []string{protected},
	}))

	deleted, err := d.Cleanup(CleanupPolicy{
		MaxRuns: 2,
		MaxAge:  14 * 24 * time.Hour,
		Clock:   func() time.Time { return now },
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{old, third}, deleted)

	for _, id := range []string{protected, recentA, recentB} {
		_, err := os.Stat(d.RunDir(id))
		assert.NoError(t, err, "run %s should survive", id)
	}
	_, err = os.Stat(filepath.Join(d.RunsDir(), "scratch"))
	assert.NoError(t, err)
}
