package pipeline

import "time"

// EventType names a pipeline lifecycle event
type EventType string

const (
	EventStepStarted  EventType = "step_started"
	EventStepFinished EventType = "step_finished"
)

// Event is emitted to listeners as steps start and finish. Result is set
// only for EventStepFinished.
type Event struct {
	Type       EventType
	RunID      string
	Index      int
	Total      int
	Step       string
	Optional   bool
	Result     *StepResult
	OccurredAt time.Time
}

// Listener observes pipeline events. Listeners run synchronously on the
// pipeline's goroutine and must not block.
type Listener func(Event)
