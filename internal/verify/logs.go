package verify

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fixkit/mend/internal/artifacts"
)

// TailLines is how much of a failed step's log gets attached to the
// response for diagnosis.
const TailLines = 200

// CombinedLogName aggregates all step output for a run in order.
const CombinedLogName = "combined.log"

// StepLogName returns the per-step log file name, 1-based.
func StepLogName(index int, name string) string {
	return fmt.Sprintf("step-%02d-%s.log", index, sanitizeName(name))
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, name)
}

// WriteStepLog writes one step's combined output under the run's logs
// directory and returns the file path.
func WriteStepLog(runDir string, index int, name string, output []byte) (string, error) {
	path := filepath.Join(runDir, artifacts.LogsDirName, StepLogName(index, name))
	if err := os.WriteFile(path, output, 0o644); err != nil {
		return "", fmt.Errorf("failed to write step log: %w", err)
	}
	return path, nil
}

// AppendCombinedLog appends a step's output to the run-wide combined
// log with a header separating steps.
func AppendCombinedLog(runDir string, name string, output []byte) error {
	path := filepath.Join(runDir, artifacts.LogsDirName, CombinedLogName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open combined log: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "==> %s\n", name); err != nil {
		return err
	}
	if _, err := f.Write(output); err != nil {
		return err
	}
	if len(output) > 0 && output[len(output)-1] != '\n' {
		if _, err := f.Write([]byte{'\n'}); err != nil {
			return err
		}
	}
	return nil
}

// Tail returns the last n lines of output as a string.
func Tail(output []byte, n int) string {
	s := strings.TrimRight(string(output), "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
