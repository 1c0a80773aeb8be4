package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"repodesk/internal/model"
)

func init() {
	color.NoColor = true
}

func ok(action model.Action, id string) Record {
	return Record{Action: action, Result: model.Result{EntityID: id, Outcome: model.OutcomeSuccess}}
}

func failed(action model.Action, id, msg string) Record {
	return Record{Action: action, Result: model.Result{EntityID: id, Outcome: model.OutcomeFailure, Message: msg}}
}

func TestConsoleSink_Filtering(t *testing.T) {
	tests := []struct {
		name        string
		format      string
		filter      []string
		input       Record
		shouldWrite bool
	}{
		{name: "text - no filter - success", format: "text", input: ok(model.ActionEdit, "1"), shouldWrite: true},
		{name: "text - filter failure - input success", format: "text", filter: []string{"failure"}, input: ok(model.ActionEdit, "1")},
		{name: "text - filter failure - input failure", format: "text", filter: []string{"FAILURE"}, input: failed(model.ActionEdit, "1", "boom"), shouldWrite: true},
		{name: "json - filter failure - input success", format: "json", filter: []string{"failure"}, input: ok(model.ActionDelete, "2")},
		{name: "json - filter failure - input failure", format: "json", filter: []string{"failure"}, input: failed(model.ActionDelete, "2", "gone"), shouldWrite: true},
		{name: "ndjson - no filter", format: "ndjson", input: ok(model.ActionDelete, "2"), shouldWrite: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			s := NewConsoleSink(&buf, tt.format, tt.filter)
			if err := s.Write(tt.input); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if err := s.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			out := buf.String()
			wrote := strings.Contains(out, tt.input.EntityID)
			if wrote != tt.shouldWrite {
				t.Fatalf("shouldWrite=%v, output %q", tt.shouldWrite, out)
			}
		})
	}
}

func TestConsoleSink_TextLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf, "text", nil)
	_ = s.Write(Event{Type: EventActionStarted, Action: model.ActionEdit, Total: 2})
	_ = s.Write(ok(model.ActionEdit, "1"))
	_ = s.Write(failed(model.ActionEdit, "2", "Repository with name 'alpha' already exists"))
	_ = s.Write(Event{Type: EventActionFinished, Action: model.ActionEdit, Total: 2, Succeeded: 1, Status: model.StatusPartial})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := "[OK] edit 1\n" +
		"[FAIL] edit 2 - Repository with name 'alpha' already exists\n" +
		"edit: 1/2 succeeded (partial)\n"
	if buf.String() != want {
		t.Fatalf("unexpected text output:\n%s", buf.String())
	}
}

func TestEmitSink_NDJSONRunLifecycle(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewEmitSink(&buf, "ndjson")
	if err != nil {
		t.Fatalf("NewEmitSink returned error: %v", err)
	}
	_ = s.Write(RunStarted("repodesk repos delete"))
	_ = s.Write(Event{Type: EventActionStarted, Action: model.ActionDelete, RunID: "r1", Total: 1})
	_ = s.Write(RunFinished(model.ActionDelete, 0))
	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], `"type":"run.started"`) || !strings.Contains(lines[0], `"command":"repodesk repos delete"`) {
		t.Fatalf("unexpected run.started line: %s", lines[0])
	}
	if strings.Contains(lines[1], "exit_code") {
		t.Fatalf("only run.finished carries exit_code: %s", lines[1])
	}
	if !strings.Contains(lines[2], `"exit_code":0`) {
		t.Fatalf("a successful run.finished must still carry exit_code: %s", lines[2])
	}
}

func TestConsoleSink_PendingLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf, "text", []string{"pending"})
	_ = s.Write(ok(model.ActionClone, "https://github.com/acme/fast"))
	_ = s.Write(Record{Action: model.ActionClone, Result: model.Result{EntityID: "https://github.com/acme/slow", Outcome: model.OutcomePending, Message: "still pending after 10m0s (task t1)"}})
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := "[PENDING] clone https://github.com/acme/slow - still pending after 10m0s (task t1)\n"
	if buf.String() != want {
		t.Fatalf("unexpected text output:\n%s", buf.String())
	}
}

func TestConsoleSink_UnsupportedFormat(t *testing.T) {
	s := NewConsoleSink(io.Discard, "xml", nil)
	if err := s.Write(ok(model.ActionEdit, "1")); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestEmitSink_JSONSummarisesRun(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewEmitSink(&buf, "json")
	if err != nil {
		t.Fatalf("NewEmitSink returned error: %v", err)
	}

	_ = s.Write(Event{Type: EventActionStarted, Action: model.ActionEditPrompt, RunID: "r1", Total: 2})
	_ = s.Write(ok(model.ActionEditPrompt, "1"))
	_ = s.Write(failed(model.ActionEditPrompt, "2", "Repository not found"))
	_ = s.Write(Event{Type: EventActionFinished, Action: model.ActionEditPrompt, RunID: "r1", Total: 2, Succeeded: 1, Status: model.StatusPartial})
	// A settle phase for the same action is reported separately.
	_ = s.Write(Event{Type: EventActionStarted, Action: model.ActionEditPrompt, RunID: "r2", Total: 1})
	_ = s.Write(ok(model.ActionEditPrompt, "1"))
	_ = s.Write(Event{Type: EventActionFinished, Action: model.ActionEditPrompt, RunID: "r2", Total: 1, Succeeded: 1, Status: model.StatusAllSucceeded})
	_ = s.Write(RunFinished(model.ActionEditPrompt, 2))
	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	var got RunSummary
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("failed to unmarshal json output: %v", err)
	}
	if got.ExitCode != 2 || len(got.Actions) != 2 {
		t.Fatalf("unexpected summary: %+v", got)
	}
	first := got.Actions[0]
	if first.RunID != "r1" || first.Status != model.StatusPartial || first.Succeeded != 1 || len(first.Results) != 2 {
		t.Fatalf("unexpected first action: %+v", first)
	}
	if first.Results[1].EntityID != "2" || first.Results[1].Message != "Repository not found" {
		t.Fatalf("unexpected result: %+v", first.Results[1])
	}
	if second := got.Actions[1]; second.RunID != "r2" || len(second.Results) != 1 {
		t.Fatalf("unexpected second action: %+v", second)
	}
}

func TestConsoleSink_JSONSilentWithoutRecords(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf, "json", nil)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestEmitSink_NDJSON(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewEmitSink(&buf, "ndjson")
	if err != nil {
		t.Fatalf("NewEmitSink returned error: %v", err)
	}

	_ = s.Write(ok(model.ActionGenerateDocumentation, "1"))
	_ = s.Write(failed(model.ActionGenerateDocumentation, "2", "Error cloning repository"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 ndjson lines, got %d", len(lines))
	}
	for _, line := range lines {
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		if e.Type != EventEntityResult {
			t.Fatalf("expected event type entity.result, got %q", e.Type)
		}
		if e.Result == nil || e.Action != model.ActionGenerateDocumentation {
			t.Fatalf("expected event to carry result and action, got %+v", e)
		}
	}
}

func TestEmitSink_InvalidArgs(t *testing.T) {
	if _, err := NewEmitSink(io.Discard, "text"); err == nil {
		t.Fatalf("expected error for text format")
	}
	if _, err := NewEmitSink(nil, "json"); err == nil {
		t.Fatalf("expected error for nil writer")
	}
}

func TestEmitSink_NDJSON_FlushesPerWrite(t *testing.T) {
	pr, pw := io.Pipe()
	defer pr.Close()
	defer pw.Close()

	bw := bufio.NewWriterSize(pw, 64*1024)
	s, err := NewEmitSink(bw, "ndjson")
	if err != nil {
		t.Fatalf("NewEmitSink returned error: %v", err)
	}

	lineCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(pr).ReadString('\n')
		if err != nil {
			errCh <- err
			return
		}
		lineCh <- line
	}()

	if err := s.Write(Event{Type: EventActionStarted, Action: model.ActionClone}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	select {
	case line := <-lineCh:
		if !strings.Contains(line, `"type":"action.started"`) {
			t.Fatalf("expected action.started event, got %q", line)
		}
	case err := <-errCh:
		t.Fatalf("read error: %v", err)
	case <-time.After(250 * time.Millisecond):
		t.Fatalf("timed out waiting for ndjson line; writer likely not flushing")
	}
}

func TestNewFileSink_Formats(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewFileSink(filepath.Join(dir, "out.unknown"), ""); err == nil {
		t.Fatalf("expected error for unknown extension")
	}
	if _, err := NewFileSink(filepath.Join(dir, "out.json"), "yaml"); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
	s, err := NewFileSink(filepath.Join(dir, "nested", "out.jsonl"), "")
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	_ = s.Close()
}

func TestFileSink_JSONAggregatesRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	s, err := NewFileSink(path, "")
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	_ = s.Write(Event{Type: EventActionStarted, Action: model.ActionEditGoal, RunID: "g1", Total: 1})
	_ = s.Write(ok(model.ActionEditGoal, "d1"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got RunSummary
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Actions) != 1 || got.Actions[0].Action != model.ActionEditGoal {
		t.Fatalf("unexpected actions: %+v", got.Actions)
	}
	if results := got.Actions[0].Results; len(results) != 1 || results[0].EntityID != "d1" {
		t.Fatalf("unexpected results: %+v", results)
	}
}

func TestFileSink_JSONWithoutRecordsIsValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	s, err := NewFileSink(path, "")
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.TrimSpace(string(b)) != "{\n  \"actions\": [],\n  \"exit_code\": 0\n}" {
		t.Fatalf("unexpected empty summary: %s", b)
	}
}

func TestInferFormat(t *testing.T) {
	for path, want := range map[string]string{"a.json": "json", "b.NDJSON": "ndjson", "c.jsonl": "ndjson"} {
		got, err := InferFormat(path)
		if err != nil || got != want {
			t.Fatalf("InferFormat(%q) = %q, %v; want %q", path, got, err, want)
		}
	}
	if _, err := InferFormat("noext"); err == nil {
		t.Fatalf("expected error for missing extension")
	}
}

func TestFileSink_NDJSON_WritesIncrementally(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.ndjson")
	s, err := NewFileSink(path, "ndjson")
	if err != nil {
		t.Fatalf("NewFileSink returned error: %v", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.Write(Event{Type: EventActionStarted}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	b1, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(b1), `"type":"action.started"`) || !strings.HasSuffix(string(b1), "\n") {
		t.Fatalf("expected a complete action.started line after first Write, got %q", string(b1))
	}

	if err := s.Write(RunFinished("", 2)); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	b2, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(string(b2)), "\n"); len(lines) != 2 {
		t.Fatalf("expected 2 ndjson lines after two Writes, got %d: %q", len(lines), string(b2))
	}
}

func TestMarkdownReportContract(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repodesk-report.md")
	s, err := NewReportSink(path)
	if err != nil {
		t.Fatalf("NewReportSink failed: %v", err)
	}

	_ = s.Write(Event{Type: EventActionStarted, Action: model.ActionGenerateDocumentation})
	_ = s.Write(ok(model.ActionGenerateDocumentation, "1"))
	_ = s.Write(ok(model.ActionGenerateDocumentation, "2"))
	_ = s.Write(failed(model.ActionGenerateDocumentation, "3", "Error   cloning\nrepository"))
	_ = s.Write(Event{Type: EventActionFinished, Action: model.ActionGenerateDocumentation, Status: model.StatusPartial})
	_ = s.Write(failed(model.ActionDelete, "9", "Repository not found"))
	_ = s.Write(Record{Action: model.ActionClone, Result: model.Result{EntityID: "https://github.com/acme/slow", Outcome: model.OutcomePending, Message: "still pending after 10m0s (task t1)"}})
	_ = s.Write(RunFinished("", 2))
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	out := string(b)
	for _, want := range []string{
		"# repodesk Action Report",
		"## Summary",
		"| generate-documentation | 3 | 2 | 1 | 0 | partial |",
		"| delete | 1 | 0 | 1 | 0 | all-failed |",
		"| clone | 1 | 0 | 0 | 1 | pending |",
		"## Failure Reasons",
		"| Error cloning repository | 1 |",
		"### generate-documentation failures",
		"- `3`: Error cloning repository",
		"Exit code: 2",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "still pending") {
		t.Fatalf("pending clones are not failure reasons:\n%s", out)
	}
	if strings.Index(out, "generate-documentation |") > strings.Index(out, "| delete |") {
		t.Fatalf("actions should be listed in run order:\n%s", out)
	}
}

func TestMarkdownReport_NoActions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.md")
	s, err := NewReportSink(path)
	if err != nil {
		t.Fatalf("NewReportSink failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	b, _ := os.ReadFile(path)
	if !strings.Contains(string(b), "No actions were run.") {
		t.Fatalf("unexpected report: %s", b)
	}
}
