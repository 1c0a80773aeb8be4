package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"repodesk/internal/model"
)

// ReportSink writes a Markdown summary of every action in the run on Close.
type ReportSink struct {
	path         string
	file         *os.File
	mu           sync.Mutex
	records      []Record
	order        []model.Action
	finished     map[model.Action]Event
	exitCode     int
	haveExitCode bool
}

func NewReportSink(path string) (*ReportSink, error) {
	if path == "" {
		return nil, fmt.Errorf("report path required")
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	return &ReportSink{
		path:     path,
		file:     f,
		finished: make(map[model.Action]Event),
	}, nil
}

func (s *ReportSink) noteAction(a model.Action) {
	if a == "" {
		return
	}
	for _, seen := range s.order {
		if seen == a {
			return
		}
	}
	s.order = append(s.order, a)
}

func (s *ReportSink) Write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch t := v.(type) {
	case Record:
		s.records = append(s.records, t)
		s.noteAction(t.Action)
	case Event:
		s.noteAction(t.Action)
		switch t.Type {
		case EventActionFinished:
			s.finished[t.Action] = t
		case EventRunFinished:
			if t.ExitCode != nil {
				s.exitCode = *t.ExitCode
				s.haveExitCode = true
			}
		}
	}
	return nil
}

type actionStats struct {
	total, succeeded, pending int
	failures                  []Record
}

func (s *ReportSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := make(map[model.Action]*actionStats)
	for _, a := range s.order {
		stats[a] = &actionStats{}
	}
	for _, r := range s.records {
		st, ok := stats[r.Action]
		if !ok {
			continue
		}
		st.total++
		switch {
		case r.Succeeded():
			st.succeeded++
		case r.Pending():
			st.pending++
		default:
			st.failures = append(st.failures, r)
		}
	}

	var b strings.Builder
	b.WriteString("# repodesk Action Report\n\n")

	if len(s.order) == 0 {
		b.WriteString("No actions were run.\n")
	} else {
		b.WriteString("## Summary\n\n")
		b.WriteString("| Action | Entities | Succeeded | Failed | Pending | Status |\n")
		b.WriteString("|---|---:|---:|---:|---:|---|\n")
		for _, a := range s.order {
			st := stats[a]
			status := model.ComputeStatus(st.succeeded, st.total-st.pending)
			if st.pending > 0 && st.pending == st.total {
				status = model.StatusPending
			}
			if ev, ok := s.finished[a]; ok && ev.Status != "" {
				status = ev.Status
			}
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %s |\n", a, st.total, st.succeeded, len(st.failures), st.pending, status)
		}
		b.WriteString("\n")

		b.WriteString("## Failure Reasons\n\n")
		reasons := groupReasons(s.records)
		if len(reasons) == 0 {
			b.WriteString("None.\n\n")
		} else {
			b.WriteString("| Reason | Count |\n|---|---:|\n")
			for _, rc := range reasons {
				fmt.Fprintf(&b, "| %s | %d |\n", escapeCell(rc.reason), rc.count)
			}
			b.WriteString("\n")
		}

		for _, a := range s.order {
			st := stats[a]
			if len(st.failures) == 0 {
				continue
			}
			fmt.Fprintf(&b, "### %s failures\n\n", a)
			for _, r := range st.failures {
				fmt.Fprintf(&b, "- `%s`: %s\n", r.EntityID, normalizeErrorReason(r.Message))
			}
			b.WriteString("\n")
		}
	}

	if s.haveExitCode {
		fmt.Fprintf(&b, "Exit code: %d\n", s.exitCode)
	}

	_, err := s.file.WriteString(b.String())
	if closeErr := s.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

type reasonCount struct {
	reason string
	count  int
}

func groupReasons(records []Record) []reasonCount {
	counts := map[string]int{}
	for _, r := range records {
		if !r.Failed() {
			continue
		}
		counts[normalizeErrorReason(r.Message)]++
	}
	out := make([]reasonCount, 0, len(counts))
	for reason, n := range counts {
		out = append(out, reasonCount{reason: reason, count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].reason < out[j].reason
	})
	return out
}

// normalizeErrorReason collapses whitespace and truncates long messages.
func normalizeErrorReason(errText string) string {
	s := strings.Join(strings.Fields(errText), " ")
	if s == "" {
		return "unknown error"
	}
	if len(s) > 120 {
		return s[:117] + "..."
	}
	return s
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
