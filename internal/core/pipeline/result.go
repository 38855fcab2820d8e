package pipeline

import "time"

// StepResult is the recorded outcome of one executed step
type StepResult struct {
	Name      string        `json:"name"`
	Succeeded bool          `json:"succeeded"`
	ExitCode  *int          `json:"exit_code,omitempty"`
	Message   string        `json:"message,omitempty"`
	Optional  bool          `json:"optional"`
	Duration  time.Duration `json:"duration"`

	// Err is the error returned by the action. It is not persisted;
	// Message carries its text.
	Err error `json:"-"`
}

// Failed returns true if the step did not succeed
func (r StepResult) Failed() bool {
	return !r.Succeeded
}

// Fatal returns true if the step failed and was not optional
func (r StepResult) Fatal() bool {
	return !r.Succeeded && !r.Optional
}

// Failure returns the failure for this result, or nil if it succeeded
func (r StepResult) Failure() *StepFailure {
	if r.Succeeded {
		return nil
	}
	return &StepFailure{
		Step:     r.Name,
		ExitCode: r.ExitCode,
		Optional: r.Optional,
		Err:      r.Err,
	}
}

// newResult converts what an action returned into a StepResult
func newResult(step Step, code int, err error) StepResult {
	result := StepResult{
		Name:      step.Name,
		Optional:  step.Optional,
		Succeeded: code == 0 && err == nil,
		Err:       err,
	}

	if code != 0 {
		c := code
		result.ExitCode = &c
	} else if err == nil {
		zero := 0
		result.ExitCode = &zero
	}

	if !result.Succeeded {
		result.Message = result.Failure().Error()
	}

	return result
}
