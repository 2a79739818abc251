package artifacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ReportFileName is the diagnostic report written when a task ends
// STUCK or INFRA_ERROR. A single file, overwritten by each new report.
const ReportFileName = "diagnostic_report.json"

// ReportKind distinguishes why a diagnostic report was produced.
type ReportKind string

const (
	ReportStuck      ReportKind = "STUCK"
	ReportInfraError ReportKind = "INFRA_ERROR"
)

// Hypothesis is one attempted fix recorded in the diagnostic report.
type Hypothesis struct {
	Summary string `json:"summary"`
	Outcome string `json:"outcome"`
	RunID   string `json:"run_id,omitempty"`
}

// DiagnosticReport summarizes a task that could not be completed.
// Referenced run IDs are protected from retention cleanup.
type DiagnosticReport struct {
	Kind       ReportKind   `json:"kind"`
	TaskID     string       `json:"task_id"`
	Timestamp  time.Time    `json:"timestamp"`
	Reason     string       `json:"reason"`
	Hypotheses []Hypothesis `json:"hypotheses,omitempty"`
	RunIDs     []string     `json:"run_ids,omitempty"`
	Suggestion string       `json:"suggestion,omitempty"`
}

// ReportPath returns the location of the diagnostic report file.
func (d *Dir) ReportPath() string {
	return filepath.Join(d.root, ReportFileName)
}

// WriteReport persists the diagnostic report, replacing any previous
// one.
func (d *Dir) WriteReport(report DiagnosticReport) error {
	if err := d.Ensure(); err != nil {
		return err
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now().UTC()
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostic report: %w", err)
	}
	if err := os.WriteFile(d.ReportPath(), data, 0o644); err != nil {
		return fmt.Errorf("failed to write diagnostic report: %w", err)
	}
	return nil
}

// ReadReport loads the current diagnostic report. A missing file
// returns os.ErrNotExist.
func (d *Dir) ReadReport() (*DiagnosticReport, error) {
	data, err := os.ReadFile(d.ReportPath())
	if err != nil {
		return nil, err
	}
	var report DiagnosticReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse diagnostic report: %w", err)
	}
	return &report, nil
}

// ProtectedRunIDs returns the run IDs referenced by the current
// diagnostic report, if any. A missing or unreadable report protects
// nothing.
func (d *Dir) ProtectedRunIDs() map[string]bool {
	report, err := d.ReadReport()
	if err != nil {
		return nil
	}

	protected := make(map[string]bool)
	for _, id := range report.RunIDs {
		protected[id] = true
	}
	for _, h := range report.Hypotheses {
		if h.RunID != "" {
			protected[h.RunID] = true
		}
	}
	return protected
}

// Render formats the report for terminal display.
func (r *DiagnosticReport) Render() string {
	var b strings.Builder

	switch r.Kind {
	case ReportInfraError:
		b.WriteString("Task halted: infrastructure error\n")
	default:
		b.WriteString("Task stuck: hypothesis space exhausted\n")
	}
	fmt.Fprintf(&b, "Task: %s\n", r.TaskID)
	fmt.Fprintf(&b, "Reason: %s\n", r.Reason)

	if len(r.Hypotheses) > 0 {
		b.WriteString("\nHypotheses attempted:\n")
		for i, h := range r.Hypotheses {
			fmt.Fprintf(&b, "  %d. %s (%s)", i+1, h.Summary, h.Outcome)
			if h.RunID != "" {
				fmt.Fprintf(&b, " [%s]", h.RunID)
			}
			b.WriteString("\n")
		}
	}
	if len(r.RunIDs) > 0 {
		fmt.Fprintf(&b, "\nVerification runs: %s\n", strings.Join(r.RunIDs, ", "))
	}
	if r.Suggestion != "" {
		fmt.Fprintf(&b, "\nSuggested next step: %s\n", r.Suggestion)
	}
	return b.String()
}
