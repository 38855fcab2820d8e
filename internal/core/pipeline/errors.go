package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrStepExecution matches the failure of a mandatory step. It aborts the run.
	ErrStepExecution = errors.New("step execution failed")

	// ErrOptionalStep matches the failure of an optional step. It is recorded only.
	ErrOptionalStep = errors.New("optional step failed")

	// ErrInvalidStep is returned when a step list cannot be run at all.
	ErrInvalidStep = errors.New("invalid step")

	// ErrActionPanicked wraps a panic recovered from a step action.
	ErrActionPanicked = errors.New("step action panicked")
)

// StepFailure describes a failed step. Mandatory failures are returned from
// Pipeline.Run; optional ones are only attached to the step result.
type StepFailure struct {
	Step     string
	ExitCode *int
	Optional bool
	Err      error
}

func (e *StepFailure) Error() string {
	kind := "step"
	if e.Optional {
		kind = "optional step"
	}

	switch {
	case e.ExitCode != nil && e.Err != nil:
		return fmt.Sprintf("%s %q failed with exit code %d: %v", kind, e.Step, *e.ExitCode, e.Err)
	case e.ExitCode != nil:
		return fmt.Sprintf("%s %q failed with exit code %d", kind, e.Step, *e.ExitCode)
	case e.Err != nil:
		return fmt.Sprintf("%s %q failed: %v", kind, e.Step, e.Err)
	default:
		return fmt.Sprintf("%s %q failed", kind, e.Step)
	}
}

// Unwrap returns the error produced by the step action, if any
func (e *StepFailure) Unwrap() error {
	return e.Err
}

// Is reports whether the failure is of the kind named by target
func (e *StepFailure) Is(target error) bool {
	switch target {
	case ErrStepExecution:
		return !e.Optional
	case ErrOptionalStep:
		return e.Optional
	}
	return false
}

// Code returns the exit code to surface for this failure. Failures without
// an exit code map to 1.
func (e *StepFailure) Code() int {
	if e.ExitCode != nil && *e.ExitCode != 0 {
		return *e.ExitCode
	}
	return 1
}
