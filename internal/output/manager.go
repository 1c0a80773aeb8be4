package output

import (
	"errors"
	"fmt"
	"sync"
)

// Sink is a destination for Records and lifecycle Events. Sinks must accept
// concurrent Writes: bulk fan-out reports from several goroutines.
type Sink interface {
	Write(v any) error
	Close() error
}

// Manager fans every value out to all attached sinks. A nil *Manager
// discards, so components can hold an optional one.
type Manager struct {
	mu     sync.RWMutex
	sinks  []Sink
	closed bool
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddSink(s Sink) error {
	if m == nil {
		return errors.New("output manager is nil")
	}
	if s == nil {
		return errors.New("sink must not be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("output manager is closed")
	}
	m.sinks = append(m.sinks, s)
	return nil
}

// Write delivers v to every sink even when some fail; failures are joined.
func (m *Manager) Write(v any) error {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return eachSink(m.sinks, "writing to", func(s Sink) error { return s.Write(v) })
}

// Emit writes each value in order.
func (m *Manager) Emit(values ...any) error {
	var errs []error
	for _, v := range values {
		if err := m.Write(v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) Len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sinks)
}

// Close closes every sink once; later calls are no-ops.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return eachSink(m.sinks, "closing", Sink.Close)
}

func eachSink(sinks []Sink, verb string, fn func(Sink) error) error {
	var errs []error
	for _, s := range sinks {
		if err := fn(s); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", s, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors %s sinks: %w", verb, errors.Join(errs...))
	}
	return nil
}
