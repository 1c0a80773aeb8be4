package model

import "time"

// JobKind says how a task's terminal payload is interpreted.
type JobKind string

const (
	JobClone    JobKind = "clone"
	JobGenerate JobKind = "generate"
	JobPrompt   JobKind = "prompt"
)

// TaskHandle identifies one asynchronous backend job. Handles are never reused.
type TaskHandle struct {
	TaskID      string    `json:"task_id"`
	OwnerID     string    `json:"owner_id,omitempty"`
	Job         JobKind   `json:"job"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomePending marks a Result whose job was still running when polling
	// gave up. It is never the outcome of a TerminalResult.
	OutcomePending Outcome = "pending"
)

// TerminalResult is the single resolution of a task handle.
type TerminalResult struct {
	Outcome Outcome        `json:"outcome"`
	Payload map[string]any `json:"payload,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

func Success(payload map[string]any) TerminalResult {
	return TerminalResult{Outcome: OutcomeSuccess, Payload: payload}
}

func Failure(reason string) TerminalResult {
	return TerminalResult{Outcome: OutcomeFailure, Reason: reason}
}

func (r TerminalResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// PayloadString returns payload[key] rendered as a string. JSON numbers decode
// as float64, so integral values are rendered without a fraction.
func (r TerminalResult) PayloadString(key string) string {
	return AnyString(r.Payload[key])
}
