// Package scout gathers read-only context about the target repository
// before implementation begins: which files matter, what risks exist,
// and how the project is built and tested.
package scout

import (
	"context"
	"fmt"
)

// SchemaVersion is stamped on every scout report so downstream
// consumers can reject reports they do not understand.
const SchemaVersion = 1

// RiskZone flags an area of the repository that a change could break.
type RiskZone struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ContextReport is the repository-context scout's answer.
type ContextReport struct {
	SchemaVersion int        `json:"schema_version"`
	RelevantFiles []string   `json:"relevant_files"`
	RiskZones     []RiskZone `json:"risk_zones,omitempty"`
	Conventions   []string   `json:"conventions,omitempty"`
}

// CommandReport is the build-and-test scout's answer.
type CommandReport struct {
	SchemaVersion int      `json:"schema_version"`
	BuildCommands []string `json:"build_commands"`
	TestCommands  []string `json:"test_commands"`
	Prerequisites []string `json:"prerequisites,omitempty"`
}

// Validate rejects reports from an unknown schema generation.
func (r *ContextReport) Validate() error {
	if r.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported context report schema version %d", r.SchemaVersion)
	}
	return nil
}

// Validate rejects reports from an unknown schema generation.
func (r *CommandReport) Validate() error {
	if r.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported command report schema version %d", r.SchemaVersion)
	}
	return nil
}

// Scout answers the two pre-implementation queries. Implementations
// must be safe for the coordinator to call concurrently.
type Scout interface {
	// QueryContext surveys the repository for the given task
	// description.
	QueryContext(ctx context.Context, taskDescription string) (*ContextReport, error)

	// QueryCommands discovers how the repository is built and tested.
	QueryCommands(ctx context.Context) (*CommandReport, error)
}
