package pipeline

import "time"

// Report is the ordered record of a pipeline run. It is always a prefix of
// the declared steps.
type Report struct {
	RunID      string       `json:"run_id"`
	Name       string       `json:"name,omitempty"`
	Declared   int          `json:"declared"`
	Results    []StepResult `json:"results"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// NewReport creates an empty report for a run of declared steps
func NewReport(runID, name string, declared int, startedAt time.Time) *Report {
	return &Report{
		RunID:     runID,
		Name:      name,
		Declared:  declared,
		Results:   make([]StepResult, 0, declared),
		StartedAt: startedAt,
	}
}

// Append records the next step result
func (r *Report) Append(result StepResult) {
	r.Results = append(r.Results, result)
}

// Len returns the number of steps that ran
func (r *Report) Len() int {
	return len(r.Results)
}

// Succeeded is the AND of every mandatory step's outcome
func (r *Report) Succeeded() bool {
	for _, result := range r.Results {
		if result.Fatal() {
			return false
		}
	}
	return true
}

// Complete returns true if every declared step ran
func (r *Report) Complete() bool {
	return len(r.Results) == r.Declared
}

// Skipped returns the number of declared steps that never ran
func (r *Report) Skipped() int {
	return r.Declared - len(r.Results)
}

// FailedStep returns the first mandatory step that failed, or nil
func (r *Report) FailedStep() *StepResult {
	for i := range r.Results {
		if r.Results[i].Fatal() {
			return &r.Results[i]
		}
	}
	return nil
}

// OptionalFailures returns the optional steps that failed
func (r *Report) OptionalFailures() []StepResult {
	var failures []StepResult
	for _, result := range r.Results {
		if result.Failed() && result.Optional {
			failures = append(failures, result)
		}
	}
	return failures
}

// Err returns the terminal failure of the run, or nil on success
func (r *Report) Err() error {
	if failed := r.FailedStep(); failed != nil {
		return failed.Failure()
	}
	return nil
}

// ExitCode returns 0 on success, otherwise the failing step's exit code
func (r *Report) ExitCode() int {
	if failed := r.FailedStep(); failed != nil {
		return failed.Failure().Code()
	}
	return 0
}

// Duration returns the wall time of the run
func (r *Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
