package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fixkit/mend/internal/task"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show active tasks",
	Long:  `Lists tasks that are queued or running, in queue order.`,
	Args:  cobra.NoArgs,
	RunE:  runQueue,
}

func init() {
	rootCmd.AddCommand(queueCmd)
}

func runQueue(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	records, err := e.store.List()
	if err != nil {
		return err
	}

	var active []*task.Record
	for _, rec := range records {
		if rec.State == task.StateQueued.String() || rec.State == task.StateRunning.String() {
			active = append(active, rec)
		}
	}
	if len(active) == 0 {
		fmt.Println("No active tasks.")
		return nil
	}

	// Oldest submission first: that is queue order.
	for i, j := 0, len(active)-1; i < j; i, j = i+1, j-1 {
		active[i], active[j] = active[j], active[i]
	}

	position := 0
	fmt.Printf("%-28s  %-8s  %-4s  %s\n", "TASK", "STATE", "POS", "DESCRIPTION")
	fmt.Printf("%s  %s  %s  %s\n", strings.Repeat("-", 28), "--------", "----", "-----------")
	for _, rec := range active {
		pos := "-"
		if rec.State == task.StateQueued.String() {
			position++
			pos = fmt.Sprintf("%d", position)
		}
		fmt.Printf("%-28s  %-8s  %-4s  %s\n", rec.ID, rec.State, pos, truncate(rec.Description, 60))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
