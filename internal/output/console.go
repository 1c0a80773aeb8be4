package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"repodesk/internal/model"
)

var (
	okLabel   = color.New(color.FgGreen).SprintFunc()
	failLabel = color.New(color.FgRed).SprintFunc()
	warnLabel = color.New(color.FgYellow).SprintFunc()
	bold      = color.New(color.Bold).SprintFunc()
)

// ConsoleSink is the operator-facing sink. Text mode prints one line per
// entity and a summary per action; json and ndjson match the emit sink.
type ConsoleSink struct {
	writer          io.Writer
	format          string // "text", "json", "ndjson"
	mu              sync.Mutex
	machine         *structured
	allowedOutcomes map[model.Outcome]bool
}

// NewConsoleSink writes to w (stdout when nil). filterOutcomes limits which
// per-entity records are shown ("success", "failure", "pending").
func NewConsoleSink(w io.Writer, format string, filterOutcomes []string) *ConsoleSink {
	if w == nil {
		w = os.Stdout
	}
	if format == "" {
		format = "text"
	}

	s := &ConsoleSink{writer: w, format: format}
	if format != "text" {
		// Unsupported formats leave machine nil and fail on first Write.
		s.machine, _ = newStructured(w, format)
	}
	if len(filterOutcomes) > 0 {
		s.allowedOutcomes = make(map[model.Outcome]bool)
		for _, o := range filterOutcomes {
			s.allowedOutcomes[model.Outcome(strings.ToLower(strings.TrimSpace(o)))] = true
		}
	}
	return s
}

func (s *ConsoleSink) Write(v any) error {
	if r, ok := v.(Record); ok && len(s.allowedOutcomes) > 0 && !s.allowedOutcomes[r.Outcome] {
		return nil
	}
	if s.format != "text" {
		if s.machine == nil {
			return fmt.Errorf("unsupported console format: %s", s.format)
		}
		return s.machine.write(v)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch t := v.(type) {
	case Record:
		if err := writeRecordLine(s.writer, t); err != nil {
			return err
		}
	case Event:
		if t.Type != EventActionFinished {
			return nil
		}
		if _, err := fmt.Fprintf(s.writer, "%s: %d/%d succeeded (%s)\n", bold(t.Action), t.Succeeded, t.Total, statusLabel(t.Status)); err != nil {
			return err
		}
	default:
		return nil
	}
	return flushIfPossible(s.writer)
}

func writeRecordLine(w io.Writer, r Record) error {
	label := okLabel("[OK]")
	switch {
	case r.Pending():
		label = warnLabel("[PENDING]")
	case !r.Succeeded():
		label = failLabel("[FAIL]")
	}
	line := fmt.Sprintf("%s %s %s", label, r.Action, r.EntityID)
	if r.Message != "" {
		line += " - " + r.Message
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

func statusLabel(s model.AggregateStatus) string {
	switch s {
	case model.StatusAllSucceeded:
		return okLabel(string(s))
	case model.StatusPartial, model.StatusPending:
		return warnLabel(string(s))
	default:
		return failLabel(string(s))
	}
}

func (s *ConsoleSink) Close() error {
	switch {
	case s.format == "text":
		return nil
	case s.machine == nil:
		return fmt.Errorf("unsupported console format: %s", s.format)
	case s.machine.idle():
		// Views and single-entity commands print their own output.
		return nil
	default:
		return s.machine.close()
	}
}
