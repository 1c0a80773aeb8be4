package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"repodesk/internal/model"
)

// APIError is a non-2xx answer from the service. Detail is the decoded
// {"detail": ...} body, or the raw body when it is not JSON.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Detail)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

func decodeDetail(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}
	var s string
	if err := json.Unmarshal(eb.Detail, &s); err == nil {
		return s
	}
	// 422 validation errors carry a list of {loc, msg, type}.
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(eb.Detail, &items); err == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return string(eb.Detail)
}

// asSubmissionError maps a rejected submission onto the model taxonomy.
func asSubmissionError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return &model.SubmissionError{StatusCode: apiErr.StatusCode, Detail: apiErr.Detail}
	}
	return err
}

func asNotFound(err error, kind model.Kind, id string) error {
	if IsStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%w: %s", &model.NotFoundError{Kind: kind, ID: id}, err.Error())
	}
	return err
}

// asDuplicate maps the service's 400 "already exists" answer for renames.
func asDuplicate(err error, kind model.Kind, name string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(apiErr.Detail, "already exists") {
		return &model.DuplicateNameError{Kind: kind, Name: name}
	}
	return err
}

// asValidation maps the service rejecting a field value.
func asValidation(err error, field string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) &&
		(apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnprocessableEntity) {
		return model.NewValidationError(field, apiErr.Detail)
	}
	return err
}
