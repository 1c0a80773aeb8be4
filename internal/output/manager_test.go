package output

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

type recordingSink struct {
	mu       sync.Mutex
	writes   []any
	closes   int
	writeErr error
	closeErr error
}

func (s *recordingSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, v)
	return s.writeErr
}

func (s *recordingSink) Close() error {
	s.closes++
	return s.closeErr
}

type failingSink struct{ recordingSink }

func newManager(t *testing.T, sinks ...Sink) *Manager {
	t.Helper()
	m := NewManager()
	for _, s := range sinks {
		if err := m.AddSink(s); err != nil {
			t.Fatalf("AddSink: %v", err)
		}
	}
	return m
}

func TestManager_FansOutInOrder(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	m := newManager(t, a, b)

	if err := m.Emit("started", "result", "finished"); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	for _, s := range []*recordingSink{a, b} {
		if len(s.writes) != 3 || s.writes[0] != "started" || s.writes[2] != "finished" {
			t.Fatalf("unexpected writes: %v", s.writes)
		}
	}
	if m.Len() != 2 {
		t.Fatalf("Len = %d", m.Len())
	}
}

func TestManager_ErrorsNameTheSink(t *testing.T) {
	tests := []struct {
		name string
		sink *failingSink
		run  func(*Manager) error
		want []string
	}{
		{
			name: "write",
			sink: &failingSink{recordingSink{writeErr: errors.New("disk full")}},
			run:  func(m *Manager) error { return m.Write("v") },
			want: []string{"errors writing to sinks", "failingSink", "disk full"},
		},
		{
			name: "close",
			sink: &failingSink{recordingSink{closeErr: errors.New("broken pipe")}},
			run:  (*Manager).Close,
			want: []string{"errors closing sinks", "failingSink", "broken pipe"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			healthy := &recordingSink{}
			m := newManager(t, tt.sink, healthy)
			err := tt.run(m)
			if err == nil {
				t.Fatalf("expected error")
			}
			for _, want := range tt.want {
				if !strings.Contains(err.Error(), want) {
					t.Fatalf("error missing %q: %v", want, err)
				}
			}
			if len(healthy.writes)+healthy.closes == 0 {
				t.Fatalf("a failing sink must not stop delivery to the others")
			}
		})
	}
}

func TestManager_CloseOnce(t *testing.T) {
	a := &recordingSink{}
	m := newManager(t, a)
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if a.closes != 1 {
		t.Fatalf("sink closed %d times", a.closes)
	}
	if err := m.AddSink(&recordingSink{}); err == nil {
		t.Fatalf("AddSink after Close should fail")
	}
}

func TestManager_NilDiscards(t *testing.T) {
	var m *Manager
	if err := m.Emit(Event{Type: EventActionStarted}); err != nil {
		t.Fatalf("Emit on nil manager: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close on nil manager: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("Len on nil manager: %d", m.Len())
	}
	if err := m.AddSink(&recordingSink{}); err == nil {
		t.Fatalf("AddSink on nil manager should fail")
	}
}

func TestManager_ConcurrentWrites(t *testing.T) {
	a := &recordingSink{}
	m := newManager(t, a)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Write(i)
		}()
	}
	wg.Wait()
	if len(a.writes) != 20 {
		t.Fatalf("expected 20 writes, got %d", len(a.writes))
	}
}
