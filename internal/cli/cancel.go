package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fixkit/mend/internal/task"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id|position>",
	Short: "Cancel a queued or running task",
	Long: `Requests cancellation of a task, addressed by its ID or by its
1-based queue position as shown by 'mend queue'. A running task stops
at its next phase boundary; an in-flight verification step always
finishes first.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	id := args[0]
	if pos, perr := strconv.Atoi(id); perr == nil {
		id, err = taskIDAtPosition(e, pos)
		if err != nil {
			return err
		}
	}

	rec, err := e.store.Get(id)
	if err != nil {
		return err
	}

	switch rec.State {
	case task.StateQueued.String(), task.StateRunning.String():
		if err := e.store.RequestCancel(id); err != nil {
			return err
		}
		fmt.Printf("Cancellation requested for %s; it takes effect at the next phase boundary.\n", id)
		return nil
	default:
		return fmt.Errorf("task %s is already %s", id, rec.State)
	}
}

// taskIDAtPosition resolves a 1-based queue position to a task ID,
// using the same ordering the queue command displays.
func taskIDAtPosition(e *env, pos int) (string, error) {
	if pos < 1 {
		return "", fmt.Errorf("queue position must be at least 1")
	}

	records, err := e.store.List()
	if err != nil {
		return "", err
	}

	// List is newest first; walk it backwards for queue order.
	n := 0
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].State != task.StateQueued.String() {
			continue
		}
		n++
		if n == pos {
			return records[i].ID, nil
		}
	}
	return "", fmt.Errorf("no queued task at position %d", pos)
}
