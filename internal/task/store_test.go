package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveGetList(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir())

	a := NewTask("first task", Constraints{}, false)
	b := NewTask("second task", Constraints{}, true)
	b.SubmittedAt = a.SubmittedAt.Add(1e9)
	b.State = StateSuccess
	b.Attempts = 2
	b.RunIDs = []string{"run_20260115_142233_a1b2c3"}

	require.NoError(t, s.Save(a))
	require.NoError(t, s.Save(b))

	got, err := s.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS", got.State)
	assert.Equal(t, 2, got.Attempts)
	assert.True(t, got.DryRun)

	records, err := s.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Most recent submission first.
	assert.Equal(t, b.ID, records[0].ID)
	assert.Equal(t, a.ID, records[1].ID)

	require.NoError(t, s.Clear())
	records, err = s.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestStore_GetUnknown(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir())
	_, err := s.Get("task_20260101_000000_nosuch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")
}

func TestStore_CancelMarkers(t *testing.T) {
	t.Parallel()

	s := NewStore(t.TempDir())
	id := NewTaskID()

	assert.False(t, s.CancelRequested(id))
	require.NoError(t, s.RequestCancel(id))
	assert.True(t, s.CancelRequested(id))

	s.ClearCancel(id)
	assert.False(t, s.CancelRequested(id))
}
