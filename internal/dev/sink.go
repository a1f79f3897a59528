package dev

import (
	"errors"
	"sync"
)

var errSinkClosed = errors.New("subscriber closed")

// queueSink buffers events for the goroutine serving one connection.
// Send never blocks the broadcaster and never drops an event while the
// sink is open.
type queueSink struct {
	mu     sync.Mutex
	queue  []Event
	closed bool

	// ready holds a token while queue is non-empty.
	ready chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newQueueSink() *queueSink {
	return &queueSink{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

func (s *queueSink) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSinkClosed
	}
	s.queue = append(s.queue, ev)
	select {
	case s.ready <- struct{}{}:
	default:
	}
	return nil
}

// take removes and returns every queued event.
func (s *queueSink) take() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.queue
	s.queue = nil
	return events
}

// Close signals the serving goroutine to finish. Events queued before
// Close are still returned by take. Safe to call more than once.
func (s *queueSink) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}
