package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors; every typed error below unwraps to one of these.
var (
	ErrSubmission     = errors.New("submission rejected")
	ErrTimeout        = errors.New("polling timed out")
	ErrNotFound       = errors.New("not found")
	ErrDuplicateName  = errors.New("duplicate name")
	ErrPartialFailure = errors.New("partial failure")
	ErrValidation     = errors.New("validation error")
)

// SubmissionError means the backend rejected a job before a task existed.
type SubmissionError struct {
	StatusCode int
	Detail     string
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("submission rejected (%d): %s", e.StatusCode, e.Detail)
	}
	return "submission rejected: " + e.Detail
}

func (e *SubmissionError) Unwrap() error { return ErrSubmission }

// TimeoutError means a task was still pending when the polling budget ran out.
// The entity it affects keeps its last known state.
type TimeoutError struct {
	TaskID  string
	Elapsed time.Duration
	LastErr error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("task %s still pending after %s", e.TaskID, e.Elapsed.Truncate(time.Millisecond))
	if e.LastErr != nil {
		msg += fmt.Sprintf(" (last status error: %v)", e.LastErr)
	}
	return msg
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

type NotFoundError struct {
	Kind Kind
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DuplicateNameError is surfaced verbatim to operators, so its message matches
// the backend's wording.
type DuplicateNameError struct {
	Kind       Kind
	Name       string
	ConflictID string
}

func (e *DuplicateNameError) Error() string {
	label := "Repository"
	if e.Kind == KindTemplate {
		label = "Template"
	}
	return fmt.Sprintf("%s with name '%s' already exists", label, e.Name)
}

func (e *DuplicateNameError) Unwrap() error { return ErrDuplicateName }

// PartialFailure reports a bulk action where some, but not all, entities
// succeeded. Succeeded changes are kept.
type PartialFailure struct {
	Action    Action
	Succeeded int
	Failed    []Result
}

func (e *PartialFailure) Error() string {
	ids := make([]string, 0, len(e.Failed))
	for _, r := range e.Failed {
		ids = append(ids, r.EntityID)
	}
	return fmt.Sprintf("%s: %d succeeded, %d failed (%s)", e.Action, e.Succeeded, len(e.Failed), strings.Join(ids, ", "))
}

func (e *PartialFailure) Unwrap() error { return ErrPartialFailure }

// ValidationError rejects caller input before any state changes.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
