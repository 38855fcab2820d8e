package pipeline

import (
	"context"
	"fmt"
	"time"
)

// Action runs one unit of work. It returns an exit-code-like integer where
// 0 means success, or an error.
type Action func(ctx context.Context) (int, error)

// Step is one named unit of work in a pipeline
type Step struct {
	Name     string
	Action   Action
	Optional bool
}

// NewStep creates a mandatory step
func NewStep(name string, action Action) Step {
	return Step{Name: name, Action: action}
}

// NewOptionalStep creates a step whose failure does not abort the pipeline
func NewOptionalStep(name string, action Action) Step {
	return Step{Name: name, Action: action, Optional: true}
}

// ErrorAction adapts an error-only function (file removal, archiving) to
// the Action contract.
func ErrorAction(fn func(ctx context.Context) error) Action {
	return func(ctx context.Context) (int, error) {
		return 0, fn(ctx)
	}
}

// WithTimeout returns a copy of step whose action runs under a deadline.
// The pipeline itself never imposes one.
func WithTimeout(step Step, timeout time.Duration) Step {
	if timeout <= 0 {
		return step
	}

	action := step.Action
	step.Action = func(ctx context.Context) (int, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return action(ctx)
	}
	return step
}

// Validate checks that every step has a unique, non-empty name and an action
func Validate(steps []Step) error {
	seen := make(map[string]bool, len(steps))
	for i, step := range steps {
		if step.Name == "" {
			return fmt.Errorf("%w: step %d has no name", ErrInvalidStep, i+1)
		}
		if step.Action == nil {
			return fmt.Errorf("%w: step %q has no action", ErrInvalidStep, step.Name)
		}
		if seen[step.Name] {
			return fmt.Errorf("%w: duplicate step name %q", ErrInvalidStep, step.Name)
		}
		seen[step.Name] = true
	}
	return nil
}
