package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"repodesk/internal/model"
)

// RunSummary is what json-format sinks write on Close: each action of the
// run in order, its per-entity results and the final exit code.
type RunSummary struct {
	Actions  []ActionSummary `json:"actions"`
	ExitCode int             `json:"exit_code"`
}

type ActionSummary struct {
	Action    model.Action          `json:"action"`
	RunID     string                `json:"run_id,omitempty"`
	Status    model.AggregateStatus `json:"status,omitempty"`
	Total     int                   `json:"total"`
	Succeeded int                   `json:"succeeded"`
	Results   []model.Result        `json:"results"`
}

// structured renders records and events for machines. ndjson streams one
// Event per line and flushes; json folds everything into a RunSummary.
type structured struct {
	w       io.Writer
	format  string
	mu      sync.Mutex
	summary RunSummary
	written bool
}

func newStructured(w io.Writer, format string) (*structured, error) {
	if format != "json" && format != "ndjson" {
		return nil, fmt.Errorf("unsupported structured format: %s", format)
	}
	return &structured{w: w, format: format, summary: RunSummary{Actions: []ActionSummary{}}}, nil
}

func (s *structured) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = true

	if s.format == "ndjson" {
		var ev Event
		switch t := v.(type) {
		case Event:
			ev = t
		case Record:
			ev = eventFromRecord(t)
		default:
			return nil
		}
		if err := json.NewEncoder(s.w).Encode(ev); err != nil {
			return err
		}
		return flushIfPossible(s.w)
	}

	switch t := v.(type) {
	case Event:
		s.fold(t)
	case Record:
		a := s.action(t.Action, "")
		a.Results = append(a.Results, t.Result)
	}
	return nil
}

func (s *structured) fold(ev Event) {
	switch ev.Type {
	case EventActionStarted:
		s.summary.Actions = append(s.summary.Actions, ActionSummary{Action: ev.Action, RunID: ev.RunID, Total: ev.Total, Results: []model.Result{}})
	case EventActionFinished:
		a := s.action(ev.Action, ev.RunID)
		a.Status, a.Total, a.Succeeded = ev.Status, ev.Total, ev.Succeeded
	case EventRunFinished:
		if ev.ExitCode != nil {
			s.summary.ExitCode = *ev.ExitCode
		}
	}
}

// action returns the latest summary for action (matching runID when set),
// opening one when records arrive without a started event.
func (s *structured) action(action model.Action, runID string) *ActionSummary {
	for i := len(s.summary.Actions) - 1; i >= 0; i-- {
		a := &s.summary.Actions[i]
		if a.Action == action && (runID == "" || a.RunID == runID) {
			return a
		}
	}
	s.summary.Actions = append(s.summary.Actions, ActionSummary{Action: action, RunID: runID, Results: []model.Result{}})
	return &s.summary.Actions[len(s.summary.Actions)-1]
}

// idle reports whether nothing has been written yet.
func (s *structured) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.written
}

func (s *structured) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.format != "json" {
		return nil
	}
	enc := json.NewEncoder(s.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.summary); err != nil {
		return err
	}
	return flushIfPossible(s.w)
}
