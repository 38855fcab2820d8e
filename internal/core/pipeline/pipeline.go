package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Pipeline runs steps strictly in order and stops at the first mandatory
// failure.
type Pipeline struct {
	name      string
	listeners []Listener
	now       func() time.Time
	newRunID  func() string
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithName sets the name recorded on reports
func WithName(name string) Option {
	return func(p *Pipeline) {
		p.name = name
	}
}

// WithListener registers a listener for step events
func WithListener(listener Listener) Option {
	return func(p *Pipeline) {
		if listener != nil {
			p.listeners = append(p.listeners, listener)
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithRunIDGenerator overrides how run IDs are generated
func WithRunIDGenerator(gen func() string) Option {
	return func(p *Pipeline) {
		p.newRunID = gen
	}
}

// New creates a new pipeline
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes steps one at a time. It returns the report together with a
// *StepFailure when a mandatory step failed. An invalid step list is
// rejected before anything runs.
func (p *Pipeline) Run(ctx context.Context, steps []Step) (*Report, error) {
	if err := Validate(steps); err != nil {
		return nil, err
	}

	report := NewReport(p.newRunID(), p.name, len(steps), p.now())

	for i, step := range steps {
		p.emit(Event{
			Type:     EventStepStarted,
			RunID:    report.RunID,
			Index:    i,
			Total:    len(steps),
			Step:     step.Name,
			Optional: step.Optional,
		})

		result := p.execute(ctx, step)
		report.Append(result)

		p.emit(Event{
			Type:     EventStepFinished,
			RunID:    report.RunID,
			Index:    i,
			Total:    len(steps),
			Step:     step.Name,
			Optional: step.Optional,
			Result:   &result,
		})

		if result.Fatal() {
			break
		}
	}

	report.FinishedAt = p.now()
	return report, report.Err()
}

// execute invokes a single action. A panic is recorded as a failure.
func (p *Pipeline) execute(ctx context.Context, step Step) (result StepResult) {
	start := p.now()

	defer func() {
		if r := recover(); r != nil {
			result = newResult(step, 0, fmt.Errorf("%w: %v", ErrActionPanicked, r))
		}
		result.Duration = p.now().Sub(start)
	}()

	code, err := step.Action(ctx)
	return newResult(step, code, err)
}

func (p *Pipeline) emit(event Event) {
	event.OccurredAt = p.now()
	for _, listener := range p.listeners {
		listener(event)
	}
}
