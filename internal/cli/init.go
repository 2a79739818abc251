package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fixkit/mend/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter mend.yaml to the repository root",
	Long: `Creates a starter mend.yaml with a Go build-and-test pipeline.
Edit the container image and steps to match the target repository.
Refuses to overwrite an existing file.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	repoRoot, err := filepath.Abs(repoFlag)
	if err != nil {
		return fmt.Errorf("failed to resolve repository root: %w", err)
	}

	path, err := config.WriteStarter(repoRoot)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	fmt.Println("Edit the verification section to match your project, then run 'mend submit'.")
	return nil
}
