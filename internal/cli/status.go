package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fixkit/mend/internal/artifacts"
	"github.com/fixkit/mend/internal/task"
	"github.com/fixkit/mend/internal/verify"
)

var statusCmd = &cobra.Command{
	Use:   "status <task-id|run-id>",
	Short: "Show the status of a task or a verification run",
	Long: `With a task ID, shows the task's lifecycle state, attempt count and
verification runs. With a run ID, shows that run's manifest.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	id := args[0]
	if artifacts.IsRunID(id) {
		return showRun(e, id)
	}
	return showTask(e, id)
}

func showTask(e *env, id string) error {
	rec, err := e.store.Get(id)
	if err != nil {
		return err
	}

	fmt.Println("Task Details")
	fmt.Println("============")
	printField("ID", rec.ID)
	printField("Description", rec.Description)
	printField("State", rec.State)
	if rec.DryRun {
		printField("Mode", "dry run")
	}
	if rec.ApplyStaged {
		printField("Mode", "apply staged")
	}
	printField("Submitted", formatTime(rec.SubmittedAt))
	if !rec.StartedAt.IsZero() {
		printField("Started", formatTime(rec.StartedAt))
	}
	if !rec.FinishedAt.IsZero() {
		printField("Finished", formatTime(rec.FinishedAt))
		printField("Elapsed", formatDuration(rec.FinishedAt.Sub(rec.SubmittedAt)))
	}
	printField("Attempts", fmt.Sprintf("%d", rec.Attempts))
	if rec.Hypothesis != "" {
		printField("Hypothesis", rec.Hypothesis)
	}
	if len(rec.RunIDs) > 0 {
		printField("Runs", strings.Join(rec.RunIDs, ", "))
	}
	if rec.Detail != "" {
		fmt.Println()
		fmt.Println(rec.Detail)
	}

	if rec.State == task.StateStuck.String() || rec.State == task.StateInfraError.String() {
		if report, rerr := e.dir.ReadReport(); rerr == nil && report.TaskID == rec.ID {
			fmt.Println()
			fmt.Print(report.Render())
		}
	}
	return nil
}

func showRun(e *env, runID string) error {
	runDir := e.dir.RunDir(runID)
	m, err := verify.ReadManifest(runDir)
	if err != nil {
		return fmt.Errorf("no manifest for run %s: %w", runID, err)
	}

	fmt.Println("Run Details")
	fmt.Println("===========")
	printField("ID", m.RunID)
	printField("Status", m.Status)
	printField("Commit", m.CommitSHA)
	printField("Image", m.Platform.ContainerImage)
	printField("Platform", m.Platform.OS+"/"+m.Platform.Arch)
	printField("Started", formatTime(m.TimestampStart))
	printField("Elapsed", formatDuration(m.TimestampEnd.Sub(m.TimestampStart)))

	if len(m.CommandsExecuted) > 0 {
		fmt.Println()
		fmt.Println("Steps")
		fmt.Println("-----")
		for _, c := range m.CommandsExecuted {
			fmt.Printf("  %-20s exit %-4d %s\n", c.Name, c.ExitCode, formatDuration(time.Duration(c.DurationMS)*time.Millisecond))
		}
	}

	paths, err := artifacts.ListArtifactPaths(runDir)
	if err == nil && len(paths) > 0 {
		fmt.Println()
		fmt.Println("Artifacts")
		fmt.Println("---------")
		for _, p := range paths {
			fmt.Printf("  %s\n", p)
		}
	}
	return nil
}

func printField(label, value string) {
	fmt.Printf("  %-14s %s\n", label+":", value)
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
