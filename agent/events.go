package agent

import (
	"sync"
	"time"
)

// EventKind identifies the type of loop event.
type EventKind string

const (
	EventSessionStart  EventKind = "session_start"
	EventSessionEnd    EventKind = "session_end"
	EventUserInput     EventKind = "user_input"
	EventAssistantTurn EventKind = "assistant_turn"
	EventToolStart     EventKind = "tool_start"
	EventToolEnd       EventKind = "tool_end"
	EventInterrupted   EventKind = "interrupted"
	EventRoundLimit    EventKind = "round_limit"
	EventWarning       EventKind = "warning"
	EventError         EventKind = "error"
)

// Event is a typed notification emitted by the loop for the host UI.
type Event struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventEmitter delivers events to the host application via a channel.
type EventEmitter struct {
	sessionID string
	ch        chan Event
	closed    bool
	mu        sync.Mutex
}

// NewEventEmitter creates an EventEmitter with a buffered channel.
func NewEventEmitter(sessionID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		sessionID: sessionID,
		ch:        make(chan Event, bufferSize),
	}
}

// Emit sends an event. Events are dropped rather than blocking the loop
// when the channel is full or the emitter is closed.
func (e *EventEmitter) Emit(kind EventKind, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := Event{
		Kind:      kind,
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
