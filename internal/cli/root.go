// Package cli wires the mend commands together.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fixkit/mend/internal/config"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Process exit codes. Anything else that fails exits 1.
const (
	ExitOK         = 0
	ExitError      = 1
	ExitValidation = 2
	ExitInterrupt  = 130
)

// errInterrupted marks a run ended by the user pressing Ctrl-C.
var errInterrupted = errors.New("interrupted")

var repoFlag string

var rootCmd = &cobra.Command{
	Use:   "mend",
	Short: "Bounded debug-loop orchestrator with sandboxed verification",
	Long: `Mend automates iterative code-fix workflows. It accepts a task,
gathers repository context, applies proposed changes, and gates every
change on a verification pipeline run inside an ephemeral Docker
container. The loop is bounded: three consecutive failures force a
replan, twelve total failures stop the task.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("mend version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", ".", "path to the target repository root")
}

// Execute runs the root command and maps failures to process exit
// codes: 2 for startup validation problems, 130 after an interrupt.
func Execute() int {
	err := rootCmd.Execute()
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, errInterrupted):
		return ExitInterrupt
	case config.IsValidationError(err), isStartupError(err):
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitValidation
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return ExitError
	}
}

// startupError wraps configuration and precondition failures detected
// before any task work begins.
type startupError struct {
	err error
}

func (e *startupError) Error() string { return e.err.Error() }
func (e *startupError) Unwrap() error { return e.err }

func isStartupError(err error) bool {
	var se *startupError
	return errors.As(err, &se)
}
