package agent

import "sync/atomic"

// Signal is a latched stop request. Set may be called from any goroutine,
// any number of times; Consume atomically observes and clears the latch so
// exactly one consumer acts on each request. A request raised while nothing
// is running stays pending until the next Consume.
type Signal struct {
	fired atomic.Bool
}

// NewSignal creates an unset Signal.
func NewSignal() *Signal {
	return &Signal{}
}

// Set raises the stop request. Idempotent.
func (s *Signal) Set() {
	s.fired.Store(true)
}

// Consume reports whether a stop request was pending and clears it.
func (s *Signal) Consume() bool {
	return s.fired.CompareAndSwap(true, false)
}

// Pending reports whether a stop request is latched without clearing it.
func (s *Signal) Pending() bool {
	return s.fired.Load()
}

// Clear drops any pending request without acting on it.
func (s *Signal) Clear() {
	s.fired.Store(false)
}
