package engine

import (
	"context"
	"fmt"
)

// Phase is a named unit of provisioning work.
type Phase struct {
	// ID identifies the phase in the state file. It must be unique within
	// a run and must not contain '=' or a newline.
	ID string

	// Description is shown by plan and status.
	Description string

	// Run performs the phase. It touches the environment only through the
	// gateway and backup store it was built with.
	Run func(ctx context.Context) error

	// Verify optionally reports whether the phase's artifacts are still
	// present. It is only consulted for completed phases when verification
	// is enabled.
	Verify func(ctx context.Context) bool
}

// ValidatePhases checks that phases can be driven by an orchestrator.
func ValidatePhases(phases []Phase) error {
	if len(phases) == 0 {
		return NewValidationError("no phases to run", nil)
	}

	seen := make(map[string]bool, len(phases))
	for i, p := range phases {
		if p.ID == "" {
			return NewValidationError(fmt.Sprintf("phase %d has no id", i), nil)
		}
		if seen[p.ID] {
			return NewValidationError(fmt.Sprintf("duplicate phase id %q", p.ID), nil)
		}
		if p.Run == nil {
			return NewValidationError(fmt.Sprintf("phase %q has no body", p.ID), nil)
		}
		seen[p.ID] = true
	}
	return nil
}
