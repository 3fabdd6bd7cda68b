package policy

import (
	"fmt"
	"strings"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityWarning is logged but does not block the action.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the action.
	SeverityError Severity = "error"
)

// Policy is a named Rego module exposing a deny set.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. The module must define a
	// `deny` set in its package.
	Rego string `json:"rego"`

	// Severity is the default severity for violations that do not carry
	// their own.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is evaluated.
	Enabled bool `json:"enabled"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is a single deny result.
type Violation struct {
	Policy   string   `json:"policy"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Decision is the outcome of evaluating every enabled policy against one
// action.
type Decision struct {
	// Allowed is false when any violation has error severity.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking violations and evaluation failures.
	Warnings []Violation `json:"warnings,omitempty"`

	// Evaluated lists the names of the policies that were evaluated.
	Evaluated []string `json:"evaluated"`
}

// DeniedError is returned by Engine.Check when a decision is not allowed.
type DeniedError struct {
	Violations []Violation
}

func (e *DeniedError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = fmt.Sprintf("%s: %s", v.Policy, v.Message)
	}
	return "policy violation: " + strings.Join(msgs, "; ")
}
