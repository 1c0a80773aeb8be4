package bulk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"repodesk/internal/backend"
	"repodesk/internal/model"
)

// PresentError renders a per-entity failure for operators. Unless verbose,
// request methods and URLs are dropped from transport errors.
// Validation errors always show only their message.
func PresentError(err error, verbose bool) string {
	if err == nil {
		return "unknown error"
	}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	full := strings.TrimSpace(err.Error())
	if verbose {
		return full
	}

	var dup *model.DuplicateNameError
	if errors.As(err, &dup) {
		return dup.Error()
	}
	var nf *model.NotFoundError
	if errors.As(err, &nf) {
		return nf.Error()
	}
	var sub *model.SubmissionError
	if errors.As(err, &sub) {
		return sub.Error()
	}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		status := fmt.Sprintf("%d %s", apiErr.StatusCode, http.StatusText(apiErr.StatusCode))
		if apiErr.Detail == "" {
			return fmt.Sprintf("backend request failed (%s)", status)
		}
		return fmt.Sprintf("backend request failed (%s): %s", status, apiErr.Detail)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "backend request timed out"
	}
	if scrubbed := scrubRequestFromErrorString(full); scrubbed != "" {
		return scrubbed
	}
	return full
}

// scrubRequestFromErrorString drops a leading "METHOD /path: " or
// "METHOD https://host/path: " from transport error strings.
func scrubRequestFromErrorString(s string) string {
	methods := []string{"GET ", "POST ", "PUT ", "PATCH ", "DELETE "}
	for _, m := range methods {
		if !strings.HasPrefix(s, m) {
			continue
		}
		rest := s[len(m):]
		if i := strings.Index(rest, "://"); i >= 0 {
			rest = rest[i+3:]
		}
		if j := strings.Index(rest, ": "); j >= 0 {
			return strings.TrimSpace(rest[j+2:])
		}
		return ""
	}
	return ""
}

// mentionsID reports whether msg names id as a standalone token, as the
// service's batched error strings do ("Document not found: 12").
func mentionsID(msg, id string) bool {
	if id == "" {
		return false
	}
	tokens := strings.FieldsFunc(msg, func(r rune) bool {
		return r == ' ' || r == ':' || r == ',' || r == '(' || r == ')' || r == '\'' || r == '"'
	})
	for _, t := range tokens {
		if t == id {
			return true
		}
	}
	return false
}
