package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fixkit/mend/internal/artifacts"
	"github.com/fixkit/mend/internal/verify"
)

var runsCleanup bool

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List verification runs",
	Long: `Lists the retained verification run directories with their outcome.
With --cleanup, applies the retention policy immediately: runs beyond
the configured count or age are removed, except runs referenced by the
current diagnostic report.`,
	Args: cobra.NoArgs,
	RunE: runRuns,
}

func init() {
	runsCmd.Flags().BoolVar(&runsCleanup, "cleanup", false, "apply the retention policy now")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}

	if runsCleanup {
		deleted, err := e.dir.Cleanup(artifacts.CleanupPolicy{
			MaxRuns: e.cfg.Retention.MaxRuns,
			MaxAge:  time.Duration(e.cfg.Retention.MaxAgeDays) * 24 * time.Hour,
			Log:     e.log,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d run(s).\n", len(deleted))
	}

	entries, err := os.ReadDir(e.dir.RunsDir())
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No runs.")
			return nil
		}
		return err
	}

	var rows [][2]string
	for _, entry := range entries {
		if !entry.IsDir() || !artifacts.IsRunID(entry.Name()) {
			continue
		}
		status := "?"
		if m, merr := verify.ReadManifest(e.dir.RunDir(entry.Name())); merr == nil {
			status = m.Status
		}
		rows = append(rows, [2]string{entry.Name(), status})
	}
	if len(rows) == 0 {
		fmt.Println("No runs.")
		return nil
	}

	// Newest first.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	fmt.Printf("%-28s  %s\n", "RUN", "STATUS")
	fmt.Printf("%s  %s\n", strings.Repeat("-", 28), "------")
	for _, row := range rows {
		fmt.Printf("%-28s  %s\n", row[0], row[1])
	}
	return nil
}
