package testfixtures

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"kilometers.ai/appdeploy/internal/core/pipeline"
)

// CallLog records the order in which step actions were invoked
type CallLog struct {
	mu    sync.Mutex
	names []string
}

// NewCallLog creates an empty call log
func NewCallLog() *CallLog {
	return &CallLog{}
}

func (l *CallLog) record(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

// Names returns the invoked step names in order, never nil
func (l *CallLog) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.names...)
}

// Called reports whether the named step ran
func (l *CallLog) Called(name string) bool {
	for _, n := range l.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// StepBuilder provides a builder pattern for creating test steps
type StepBuilder struct {
	name     string
	optional bool
	exitCode int
	err      error
	panicVal any
	delay    time.Duration
	log      *CallLog
}

// NewStepBuilder creates a StepBuilder for a step that succeeds
func NewStepBuilder(name string) *StepBuilder {
	return &StepBuilder{name: name}
}

// Optional marks the step as optional
func (b *StepBuilder) Optional() *StepBuilder {
	b.optional = true
	return b
}

// Succeeding makes the step exit with 0
func (b *StepBuilder) Succeeding() *StepBuilder {
	b.exitCode = 0
	b.err = nil
	return b
}

// FailingWith makes the step exit with the given code
func (b *StepBuilder) FailingWith(code int) *StepBuilder {
	b.exitCode = code
	return b
}

// Erroring makes the step return err instead of an exit code
func (b *StepBuilder) Erroring(err error) *StepBuilder {
	b.err = err
	return b
}

// Panicking makes the step panic with v
func (b *StepBuilder) Panicking(v any) *StepBuilder {
	b.panicVal = v
	return b
}

// Sleeping makes the step wait d, or until its context is done
func (b *StepBuilder) Sleeping(d time.Duration) *StepBuilder {
	b.delay = d
	return b
}

// RecordingTo appends the step name to log when it runs
func (b *StepBuilder) RecordingTo(log *CallLog) *StepBuilder {
	b.log = log
	return b
}

// Build creates the step
func (b *StepBuilder) Build() pipeline.Step {
	name, code, err, panicVal, delay, log := b.name, b.exitCode, b.err, b.panicVal, b.delay, b.log

	action := func(ctx context.Context) (int, error) {
		if log != nil {
			log.record(name)
		}
		if delay > 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(delay):
			}
		}
		if panicVal != nil {
			panic(panicVal)
		}
		return code, err
	}

	return pipeline.Step{Name: name, Action: action, Optional: b.optional}
}

// Outcome describes one generated step for table and property tests
type Outcome struct {
	Fails    bool
	Optional bool
}

// StepsFromOutcomes builds steps named s1..sN following outcomes
func StepsFromOutcomes(outcomes []Outcome, log *CallLog) []pipeline.Step {
	steps := make([]pipeline.Step, 0, len(outcomes))
	for i, o := range outcomes {
		b := NewStepBuilder(fmt.Sprintf("s%d", i+1)).RecordingTo(log)
		if o.Fails {
			b.FailingWith(i + 1)
		}
		if o.Optional {
			b.Optional()
		}
		steps = append(steps, b.Build())
	}
	return steps
}

// SampleReport returns a finished report with one success, one optional
// failure and one mandatory failure.
func SampleReport(runID string) *pipeline.Report {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	zero, two, seven := 0, 2, 7

	report := pipeline.NewReport(runID, "deploy", 4, started)
	report.Append(pipeline.StepResult{Name: "build", Succeeded: true, ExitCode: &zero, Duration: 3 * time.Second})
	report.Append(pipeline.StepResult{
		Name:     "lint",
		Optional: true,
		ExitCode: &two,
		Message:  `optional step "lint" failed with exit code 2`,
		Duration: time.Second,
	})
	report.Append(pipeline.StepResult{
		Name:     "install",
		ExitCode: &seven,
		Message:  `step "install" failed with exit code 7`,
		Duration: 2 * time.Second,
	})
	report.FinishedAt = started.Add(6 * time.Second)
	return report
}

// SuccessfulReport returns a finished report where every step succeeded
func SuccessfulReport(runID string, names ...string) *pipeline.Report {
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	report := pipeline.NewReport(runID, "deploy", len(names), started)
	for _, name := range names {
		zero := 0
		report.Append(pipeline.StepResult{Name: name, Succeeded: true, ExitCode: &zero, Duration: time.Second})
	}
	report.FinishedAt = started.Add(time.Duration(len(names)) * time.Second)
	return report
}

// RandomOutcomes generates n random outcomes
func RandomOutcomes(rng *rand.Rand, n int) []Outcome {
	outcomes := make([]Outcome, n)
	for i := range outcomes {
		outcomes[i] = Outcome{
			Fails:    rng.Intn(4) == 0,
			Optional: rng.Intn(3) == 0,
		}
	}
	return outcomes
}

// ErrBoom is a generic action error for tests
var ErrBoom = errors.New("boom")
