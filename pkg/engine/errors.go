package engine

import (
	"context"
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for exit status and
// reporting.
type ErrorClass string

const (
	// ErrorClassPrecondition indicates the environment is unfit for a run.
	// Examples: wrong host platform, insufficient free disk space.
	ErrorClassPrecondition ErrorClass = "precondition"

	// ErrorClassValidation indicates invalid configuration or arguments.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassPhase indicates a phase body failed. Earlier phases stay
	// complete and the run can be resumed.
	ErrorClassPhase ErrorClass = "phase"

	// ErrorClassInterrupted indicates the run was cancelled by a signal.
	ErrorClassInterrupted ErrorClass = "interrupted"

	// ErrorClassBestEffort indicates a non-fatal failure that was logged
	// and skipped.
	ErrorClassBestEffort ErrorClass = "best_effort"
)

// Exit codes returned by the CLI.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitPrecondition = 2
	ExitInterrupted  = 130
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Phase is the phase that was running, if any.
	Phase string `json:"phase,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := e.Message
	if e.Phase != "" {
		msg = fmt.Sprintf("%s (phase=%s)", msg, e.Phase)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewPreconditionError creates a new precondition error.
func NewPreconditionError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassPrecondition, Message: message, Err: err}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassValidation, Message: message, Err: err, Code: ErrCodeValidation}
}

// NewPhaseError creates an error for a failed phase body.
func NewPhaseError(phase string, err error) *EngineError {
	return &EngineError{Class: ErrorClassPhase, Message: "phase failed", Phase: phase, Err: err}
}

// NewInterruptedError creates an error for a cancelled run.
func NewInterruptedError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassInterrupted, Message: message, Err: err, Code: ErrCodeInterrupted}
}

// NewBestEffortError creates an error for a skipped best-effort step.
func NewBestEffortError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassBestEffort, Message: message, Err: err}
}

// WithPhase adds phase context to an error.
func (e *EngineError) WithPhase(phase string) *EngineError {
	e.Phase = phase
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func classOf(err error) ErrorClass {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class
	}
	return ""
}

// IsPrecondition returns true if the error is a precondition failure.
func IsPrecondition(err error) bool {
	return classOf(err) == ErrorClassPrecondition
}

// IsValidation returns true if the error is a validation failure.
func IsValidation(err error) bool {
	return classOf(err) == ErrorClassValidation
}

// IsPhaseFailure returns true if the error is a phase body failure.
func IsPhaseFailure(err error) bool {
	return classOf(err) == ErrorClassPhase
}

// IsInterrupted returns true if the error is an interruption. A bare
// context.Canceled counts as one.
func IsInterrupted(err error) bool {
	return classOf(err) == ErrorClassInterrupted || errors.Is(err, context.Canceled)
}

// FailedPhase returns the phase recorded on err, or "".
func FailedPhase(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Phase
	}
	return ""
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case IsInterrupted(err):
		return ExitInterrupted
	case IsPrecondition(err), IsValidation(err):
		return ExitPrecondition
	default:
		return ExitFailure
	}
}

// Common error codes.
const (
	ErrCodeValidation  = "VALIDATION_ERROR"
	ErrCodePlatform    = "UNSUPPORTED_PLATFORM"
	ErrCodeDiskSpace   = "INSUFFICIENT_DISK"
	ErrCodeStateWrite  = "STATE_WRITE_FAILED"
	ErrCodeInterrupted = "INTERRUPTED"
	ErrCodeTimeout     = "TIMEOUT"
)
