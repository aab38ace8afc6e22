package orchestrator

import (
	"opsdesk/internal/models"
	"opsdesk/internal/react"
)

// Event is emitted while a turn runs. Transports decide how and when to
// render them.
type Event interface {
	event()
}

type ProgressEvent struct {
	SessionID string
	Progress  models.Progress
}

type NavigateEvent struct {
	SessionID string
	Path      string
}

type DecisionEvent struct {
	SessionID string
	MessageID string
	Decision  models.Decision
}

// StepEvent reports one completed reasoning iteration.
type StepEvent struct {
	SessionID string
	Iteration react.Iteration
}

// SummaryEvent carries the assistant message that closes a turn.
type SummaryEvent struct {
	SessionID string
	Message   models.ChatMessage
	Failed    bool
}

func (ProgressEvent) event() {}
func (NavigateEvent) event() {}
func (DecisionEvent) event() {}
func (StepEvent) event()     {}
func (SummaryEvent) event()  {}

// Sink receives events. It is called from the goroutine running the turn.
type Sink func(Event)

func (s Sink) emit(e Event) {
	if s != nil {
		s(e)
	}
}
