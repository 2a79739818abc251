// Package verify runs a repository's verification steps inside a
// sandboxed container and classifies the outcome.
package verify

import "fmt"

// Status is the top-level classification of a verification attempt.
type Status int

const (
	// StatusPass means every configured step exited zero.
	StatusPass Status = iota
	// StatusFail means a step exited non-zero, including timeouts.
	StatusFail
	// StatusInfraError means the environment itself broke before or
	// during the run. Infra errors never count against the debug loop.
	StatusInfraError
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusFail:
		return "FAIL"
	case StatusInfraError:
		return "INFRA_ERROR"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// InfraErrorType names the infrastructure failure classes.
type InfraErrorType string

const (
	InfraDockerUnavailable  InfraErrorType = "DOCKER_UNAVAILABLE"
	InfraImagePull          InfraErrorType = "IMAGE_PULL"
	InfraContainerCreation  InfraErrorType = "CONTAINER_CREATION"
	InfraResourceExhaustion InfraErrorType = "RESOURCE_EXHAUSTION"
)

// InfraError describes an environment failure. It is carried inside a
// Response rather than returned as a Go error so callers always get a
// classified outcome.
type InfraError struct {
	Type    InfraErrorType
	Message string
}

func (e *InfraError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// StepOutcome records one executed step.
type StepOutcome struct {
	Name       string
	Command    string
	ExitCode   int
	DurationMS int64
	TimedOut   bool
}

// Response is the single result type every verification attempt
// produces. Exactly one of the three statuses applies; RunID is empty
// only when the failure happened before a run directory existed.
type Response struct {
	Status        Status
	RunID         string
	RunDir        string
	Steps         []StepOutcome
	FailedStep    string
	TailLog       string
	ArtifactPaths []string
	Manifest      *Manifest
	Infra         *InfraError
}

// Pass builds a passing response.
func Pass(runID, runDir string, steps []StepOutcome) *Response {
	return &Response{Status: StatusPass, RunID: runID, RunDir: runDir, Steps: steps}
}

// Fail builds a failing response with the tail of the failed step's
// log attached for diagnosis.
func Fail(runID, runDir string, steps []StepOutcome, failedStep, tailLog string) *Response {
	return &Response{
		Status:     StatusFail,
		RunID:      runID,
		RunDir:     runDir,
		Steps:      steps,
		FailedStep: failedStep,
		TailLog:    tailLog,
	}
}

// Infra builds an infrastructure error response. runID may be empty.
func Infra(runID, runDir string, typ InfraErrorType, message string) *Response {
	return &Response{
		Status: StatusInfraError,
		RunID:  runID,
		RunDir: runDir,
		Infra:  &InfraError{Type: typ, Message: message},
	}
}
