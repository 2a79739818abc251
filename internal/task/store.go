package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Store persists task records under the artifact directory so later
// CLI invocations can answer status and history queries, and so a
// cancel from another process reaches a running task.
type Store struct {
	root string
}

// NewStore returns a store rooted at the artifact directory.
func NewStore(artifactRoot string) *Store {
	return &Store{root: artifactRoot}
}

func (s *Store) tasksDir() string {
	return filepath.Join(s.root, "tasks")
}

func (s *Store) cancelDir() string {
	return filepath.Join(s.root, "cancel")
}

// Record is the on-disk shape of a task.
type Record struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	State       string    `json:"state"`
	Detail      string    `json:"detail,omitempty"`
	DryRun      bool      `json:"dry_run,omitempty"`
	ApplyStaged bool      `json:"apply_staged,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
	Attempts    int       `json:"attempts"`
	RunIDs      []string  `json:"run_ids,omitempty"`
	Hypothesis  string    `json:"hypothesis,omitempty"`
}

// Save writes the task's current state, replacing any previous record.
func (s *Store) Save(t *Task) error {
	if err := os.MkdirAll(s.tasksDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create tasks directory: %w", err)
	}

	rec := Record{
		ID:          t.ID,
		Description: t.Description,
		State:       t.State.String(),
		Detail:      t.Detail,
		DryRun:      t.DryRun,
		ApplyStaged: t.ApplyStaged,
		SubmittedAt: t.SubmittedAt,
		StartedAt:   t.StartedAt,
		FinishedAt:  t.FinishedAt,
		Attempts:    t.Attempts,
		RunIDs:      t.RunIDs,
		Hypothesis:  t.Hypothesis,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.tasksDir(), t.ID+".json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write task record: %w", err)
	}
	return nil
}

// Get loads one task record by ID.
func (s *Store) Get(id string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(s.tasksDir(), id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("unknown task %s", id)
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse task record %s: %w", id, err)
	}
	return &rec, nil
}

// List returns every stored record, most recently submitted first.
func (s *Store) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.tasksDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []*Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rec, err := s.Get(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].SubmittedAt.After(records[j].SubmittedAt)
	})
	return records, nil
}

// Clear removes every stored record.
func (s *Store) Clear() error {
	if err := os.RemoveAll(s.tasksDir()); err != nil {
		return fmt.Errorf("failed to clear task records: %w", err)
	}
	return nil
}

// RequestCancel drops a cancel marker for the task. The process
// running the task notices the marker at its next poll.
func (s *Store) RequestCancel(id string) error {
	if err := os.MkdirAll(s.cancelDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create cancel directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.cancelDir(), id), nil, 0o644); err != nil {
		return fmt.Errorf("failed to write cancel marker: %w", err)
	}
	return nil
}

// CancelRequested reports whether a cancel marker exists for the task.
func (s *Store) CancelRequested(id string) bool {
	_, err := os.Stat(filepath.Join(s.cancelDir(), id))
	return err == nil
}

// ClearCancel removes the task's cancel marker, if any.
func (s *Store) ClearCancel(id string) {
	os.Remove(filepath.Join(s.cancelDir(), id))
}
