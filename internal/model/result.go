package model

import (
	"fmt"
	"strconv"
)

// Action is a bulk operation applied to a selection of entities.
type Action string

const (
	ActionEdit                  Action = "edit"
	ActionDelete                Action = "delete"
	ActionGenerateDocumentation Action = "generate-documentation"
	ActionEditPrompt            Action = "edit-prompt"
	ActionDeleteDocumentation   Action = "delete-documentation"
	ActionRegenerate            Action = "regenerate-documentation"
	ActionEditGoal              Action = "edit-goal"
	ActionClone                 Action = "clone"
)

type AggregateStatus string

const (
	StatusAllSucceeded AggregateStatus = "all-succeeded"
	StatusPartial      AggregateStatus = "partial"
	StatusAllFailed    AggregateStatus = "all-failed"
	// StatusPending is reported when every entity is still pending.
	StatusPending AggregateStatus = "pending"
)

// Result is the outcome of a bulk action for one entity.
type Result struct {
	EntityID string  `json:"entity_id"`
	Outcome  Outcome `json:"outcome"`
	Message  string  `json:"message,omitempty"`
}

func (r Result) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

func (r Result) Failed() bool {
	return r.Outcome != OutcomeSuccess && r.Outcome != OutcomePending
}

func (r Result) Pending() bool {
	return r.Outcome == OutcomePending
}

// AggregateResult combines the per-entity outcomes of one bulk action.
type AggregateResult struct {
	Action       Action          `json:"action"`
	SuccessCount int             `json:"success_count"`
	Results      []Result        `json:"results"`
	Status       AggregateStatus `json:"status"`

	// Pending lists follow-up tasks the action queued on the backend.
	Pending []TaskHandle `json:"pending,omitempty"`
}

// NewAggregateResult derives SuccessCount and Status from the per-entity
// results. Pending results are neither successes nor failures, so Status is
// computed over the settled ones.
func NewAggregateResult(action Action, results []Result) AggregateResult {
	success, pending := 0, 0
	for _, r := range results {
		switch {
		case r.Succeeded():
			success++
		case r.Pending():
			pending++
		}
	}
	status := ComputeStatus(success, len(results)-pending)
	if pending > 0 && pending == len(results) {
		status = StatusPending
	}
	return AggregateResult{
		Action:       action,
		SuccessCount: success,
		Results:      results,
		Status:       status,
	}
}

// ComputeStatus: all-succeeded iff success == total, all-failed iff success == 0.
func ComputeStatus(success, total int) AggregateStatus {
	switch {
	case success == total:
		return StatusAllSucceeded
	case success == 0:
		return StatusAllFailed
	default:
		return StatusPartial
	}
}

// Failed returns the results whose outcome is a failure.
func (a AggregateResult) Failed() []Result {
	var out []Result
	for _, r := range a.Results {
		if r.Failed() {
			out = append(out, r)
		}
	}
	return out
}

// StillPending counts results whose job outlived polling.
func (a AggregateResult) StillPending() int {
	n := 0
	for _, r := range a.Results {
		if r.Pending() {
			n++
		}
	}
	return n
}

// Err reports a non-complete aggregate as an error value. Partial results are
// *PartialFailure. Work still pending wraps ErrTimeout.
func (a AggregateResult) Err() error {
	switch a.Status {
	case StatusAllSucceeded:
		if n := a.StillPending(); n > 0 {
			return fmt.Errorf("%s: %d still pending: %w", a.Action, n, ErrTimeout)
		}
		return nil
	case StatusPending:
		return fmt.Errorf("%s: all %d still pending: %w", a.Action, len(a.Results), ErrTimeout)
	case StatusPartial:
		return &PartialFailure{Action: a.Action, Succeeded: a.SuccessCount, Failed: a.Failed()}
	default:
		failed := a.Failed()
		if len(failed) == 0 {
			return fmt.Errorf("%s failed", a.Action)
		}
		return fmt.Errorf("%s failed for all %d entities: %s", a.Action, len(failed), failed[0].Message)
	}
}

// AnyString renders scalar JSON-decoded values as strings.
func AnyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
