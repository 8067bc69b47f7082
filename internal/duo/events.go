package duo

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/duet/pkg/models"
)

// EventType represents the type of orchestration event.
type EventType string

const (
	// EventIterationStarted indicates an iteration began dispatching.
	EventIterationStarted EventType = "iteration_started"
	// EventIterationDone indicates an iteration finished and was recorded.
	EventIterationDone EventType = "iteration_done"
	// EventHandoff indicates control transferred between the agents.
	EventHandoff EventType = "handoff"
	// EventRecovery indicates a failure was classified and a recovery
	// decision applied.
	EventRecovery EventType = "recovery"
	// EventLoopDetected indicates the repetition detector halted the run.
	EventLoopDetected EventType = "loop_detected"
	// EventFallback indicates the dual-agent loop gave way to the
	// single-agent continuation.
	EventFallback EventType = "fallback"
	// EventSessionDone indicates the session finished, whatever the
	// outcome.
	EventSessionDone EventType = "session_done"
)

// Event is emitted by the orchestrator for subscribers such as the TUI.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// SessionID identifies the session.
	SessionID string
	// Iteration is the iteration number the event belongs to.
	Iteration int
	// Agent is the role involved, if applicable.
	Agent models.Role
	// Message provides human-readable context.
	Message string
	// Err carries failure details, if any.
	Err error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Duration is the elapsed time for done events.
	Duration time.Duration
	// Cost is the cumulative session cost for done events.
	Cost float64
}

// EventEmitter fans orchestration events out to a single subscriber over a
// buffered channel. Emission never blocks the loop for long: when the
// buffer stays full past a short grace period the event is dropped and
// counted.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates an emitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &EventEmitter{events: make(chan Event, bufferSize)}
}

// Emit sends an event, dropping it if the subscriber cannot drain in time.
func (e *EventEmitter) Emit(event Event) {
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[duo] event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of dropped events.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns the read-only subscriber channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. Call only after the orchestrator has
// stopped emitting.
func (e *EventEmitter) Close() {
	close(e.events)
}
