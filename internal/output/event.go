package output

import "repodesk/internal/model"

// Lifecycle event types.
const (
	EventRunStarted     = "run.started"
	EventActionStarted  = "action.started"
	EventEntityResult   = "entity.result"
	EventActionFinished = "action.finished"
	EventRunFinished    = "run.finished"
)

// Record is one per-entity outcome tagged with the action that produced it.
// JSON modes aggregate Records; NDJSON streams them as entity.result events.
type Record struct {
	Action model.Action `json:"action"`
	model.Result
}

// Event is a lifecycle record for NDJSON streaming output.
type Event struct {
	Type    string       `json:"type"`
	Command string       `json:"command,omitempty"`
	Action  model.Action `json:"action,omitempty"`
	RunID  string       `json:"run_id,omitempty"`
	*model.Result
	Total     int                   `json:"total,omitempty"`
	Succeeded int                   `json:"succeeded,omitempty"`
	Status    model.AggregateStatus `json:"status,omitempty"`
	// ExitCode is set on run.finished only, so a zero code is still written.
	ExitCode *int `json:"exit_code,omitempty"`
}

func RunStarted(command string) Event {
	return Event{Type: EventRunStarted, Command: command}
}

func RunFinished(action model.Action, code int) Event {
	return Event{Type: EventRunFinished, Action: action, ExitCode: &code}
}

func eventFromRecord(r Record) Event {
	return Event{Type: EventEntityResult, Action: r.Action, Result: &r.Result}
}
