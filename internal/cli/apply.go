package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/fixkit/mend/internal/config"
	"github.com/fixkit/mend/internal/orchestrator"
	"github.com/fixkit/mend/internal/task"
)

var (
	applyPreserve []string
	applyNonGoals []string
	applyBoundary []string
)

var applyCmd = &cobra.Command{
	Use:   "apply <description>",
	Short: "Apply the last staged dry run and verify it",
	Long: `Applies the change set staged by the most recent 'mend submit
--dry-run' and runs it through the normal verification loop, as if the
changes had just been proposed. The description should match the one
given to the dry run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringArrayVar(&applyPreserve, "preserve", nil, "behavior that must not change (repeatable)")
	applyCmd.Flags().StringArrayVar(&applyNonGoals, "non-goal", nil, "explicitly out of scope (repeatable)")
	applyCmd.Flags().StringArrayVar(&applyBoundary, "boundary", nil, "repository path the implementer must not touch (repeatable)")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	description := strings.TrimSpace(strings.Join(args, " "))
	if description == "" {
		return &startupError{err: config.ValidationError{
			Field:   "description",
			Message: "must not be empty",
		}}
	}

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.log.Sync()

	constraints := orchestrator.ParseConstraints(applyPreserve, applyNonGoals, applyBoundary)
	t := task.NewTask(description, constraints, false)
	t.ApplyStaged = true
	return runTask(e, t)
}
