package agent

import (
	"sync"
	"testing"
)

func TestSignalConsumeOnce(t *testing.T) {
	s := NewSignal()
	if s.Consume() {
		t.Error("fresh signal must not be pending")
	}

	s.Set()
	s.Set() // repeated presses collapse into one request
	if !s.Consume() {
		t.Error("set signal must be consumable")
	}
	if s.Consume() {
		t.Error("a request must be consumed at most once")
	}
}

func TestSignalPendingDoesNotClear(t *testing.T) {
	s := NewSignal()
	s.Set()
	if !s.Pending() {
		t.Error("expected pending")
	}
	if !s.Pending() {
		t.Error("Pending must not consume the request")
	}
	if !s.Consume() {
		t.Error("request should still be consumable after Pending")
	}
}

func TestSignalClear(t *testing.T) {
	s := NewSignal()
	s.Set()
	s.Clear()
	if s.Consume() {
		t.Error("cleared signal must not be consumable")
	}
}

func TestSignalConcurrentConsume(t *testing.T) {
	s := NewSignal()
	s.Set()

	var wg sync.WaitGroup
	consumed := make(chan bool, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumed <- s.Consume()
		}()
	}
	wg.Wait()
	close(consumed)

	count := 0
	for ok := range consumed {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("exactly one consumer must win, got %d", count)
	}
}
