package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fixkit/mend/internal/task"
)

var historyClear bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List completed tasks",
	Long:  `Lists tasks that reached a terminal state, most recent first.`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "delete the stored task history")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	if historyClear {
		if err := e.store.Clear(); err != nil {
			return err
		}
		fmt.Println("Task history cleared.")
		return nil
	}

	records, err := e.store.List()
	if err != nil {
		return err
	}

	var finished []*task.Record
	for _, rec := range records {
		switch rec.State {
		case task.StateQueued.String(), task.StateRunning.String():
		default:
			finished = append(finished, rec)
		}
	}
	if len(finished) == 0 {
		fmt.Println("No completed tasks.")
		return nil
	}

	fmt.Printf("%-28s  %-11s  %-8s  %-19s  %s\n", "TASK", "STATE", "ATTEMPTS", "FINISHED", "DESCRIPTION")
	fmt.Printf("%s  %s  %s  %s  %s\n",
		strings.Repeat("-", 28), strings.Repeat("-", 11), "--------", strings.Repeat("-", 19), "-----------")
	for _, rec := range finished {
		finishedAt := "-"
		if !rec.FinishedAt.IsZero() {
			finishedAt = formatTime(rec.FinishedAt)
		}
		fmt.Printf("%-28s  %-11s  %-8d  %-19s  %s\n",
			rec.ID, rec.State, rec.Attempts, finishedAt, truncate(rec.Description, 50))
	}
	return nil
}
