package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"repodesk/internal/model"
)

func newTestClient(t *testing.T, mux *http.ServeMux, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	c, err := NewClient(server.URL+"/api", opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func TestNewClient_RejectsNonHTTPBase(t *testing.T) {
	if _, err := NewClient("ftp://example.com"); err == nil {
		t.Fatalf("expected error for ftp base url")
	}
}

func TestSubmitClone_ReturnsTaskID(t *testing.T) {
	mux := http.NewServeMux()
	var gotURL, gotAuth string
	mux.HandleFunc("POST /api/repos/clone", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req cloneRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotURL = req.RepoURL
		writeJSON(t, w, http.StatusOK, map[string]any{"task_id": "t-1"})
	})
	c := newTestClient(t, mux, WithToken("secret"))

	id, err := c.SubmitClone(context.Background(), "https://github.com/acme/widgets.git")
	if err != nil {
		t.Fatalf("SubmitClone: %v", err)
	}
	if id != "t-1" {
		t.Fatalf("task id = %q", id)
	}
	if gotURL != "https://github.com/acme/widgets.git" {
		t.Fatalf("repo_url = %q", gotURL)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("Authorization = %q", gotAuth)
	}
}

func TestSubmitClone_ValidationErrorIsSubmissionError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/repos/clone", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{"loc": []string{"body", "repo_url"}, "msg": "Invalid git repository URL"}},
		})
	})
	c := newTestClient(t, mux)

	_, err := c.SubmitClone(context.Background(), "nope")
	var subErr *model.SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("expected SubmissionError, got %T %v", err, err)
	}
	if subErr.StatusCode != http.StatusUnprocessableEntity || subErr.Detail != "Invalid git repository URL" {
		t.Fatalf("unexpected submission error: %+v", subErr)
	}
	if !errors.Is(err, model.ErrSubmission) {
		t.Fatalf("expected errors.Is ErrSubmission")
	}
}

func TestTaskStatus_TerminalResults(t *testing.T) {
	tests := []struct {
		name    string
		body    map[string]any
		success bool
		reason  string
		final   bool
	}{
		{name: "pending", body: map[string]any{"task_id": "t", "state": "PENDING"}},
		{name: "started", body: map[string]any{"task_id": "t", "state": "STARTED"}},
		{name: "success", body: map[string]any{"task_id": "t", "state": "SUCCESS", "result": map[string]any{"status": "ok", "repo_id": 7}}, success: true, final: true},
		{name: "duplicate reported as success", body: map[string]any{"task_id": "t", "state": "SUCCESS", "result": map[string]any{"status": "error", "message": "Repository already exists"}}, reason: "Repository already exists", final: true},
		{name: "failure", body: map[string]any{"task_id": "t", "state": "FAILURE", "result": map[string]any{"error": "clone failed"}}, reason: "clone failed", final: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/repos/tasks/t", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, http.StatusOK, tt.body)
			})
			c := newTestClient(t, mux)
			st, err := c.TaskStatus(context.Background(), "t")
			if err != nil {
				t.Fatalf("TaskStatus: %v", err)
			}
			if st.Terminal() != tt.final {
				t.Fatalf("Terminal() = %v, want %v", st.Terminal(), tt.final)
			}
			if !tt.final {
				return
			}
			res := st.TerminalResult()
			if res.Succeeded() != tt.success {
				t.Fatalf("Succeeded() = %v, want %v", res.Succeeded(), tt.success)
			}
			if res.Reason != tt.reason {
				t.Fatalf("Reason = %q, want %q", res.Reason, tt.reason)
			}
			if tt.success && res.PayloadString("repo_id") != "7" {
				t.Fatalf("repo_id = %q", res.PayloadString("repo_id"))
			}
		})
	}
}

func TestListRepositories_DecodesNumericIDsAndNaiveTimes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/repos/list", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"id":12,"name":"widgets","description":"d","repo_url":"git@github.com:acme/widgets.git","date_of_version":"2024-03-01T10:11:12.123456","specific_prompt":null}]`)
	})
	c := newTestClient(t, mux)

	repos, err := c.ListRepositories(context.Background())
	if err != nil {
		t.Fatalf("ListRepositories: %v", err)
	}
	if len(repos) != 1 {
		t.Fatalf("got %d repos", len(repos))
	}
	r := repos[0]
	if r.ID != "12" || r.Name != "widgets" || r.CloneStatus != model.CloneSuccess || r.DocStatus != model.DocNotDocumented {
		t.Fatalf("unexpected repo: %+v", r)
	}
	if r.VersionedAt.Year() != 2024 || r.VersionedAt.Second() != 12 {
		t.Fatalf("unexpected version time: %v", r.VersionedAt)
	}
}

func TestUpdateRepository_MapsErrors(t *testing.T) {
	mux := http.NewServeMux()
	var gotBody map[string]any
	mux.HandleFunc("POST /api/repos/update", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		switch gotBody["repo_id"] {
		case float64(1):
			writeJSON(t, w, http.StatusBadRequest, map[string]any{"detail": "Repository with name 'taken' already exists"})
		case float64(2):
			writeJSON(t, w, http.StatusNotFound, map[string]any{"detail": "Repository not found"})
		default:
			writeJSON(t, w, http.StatusOK, map[string]any{"status": "ok"})
		}
	})
	c := newTestClient(t, mux)
	name := "taken"

	err := c.UpdateRepository(context.Background(), "1", model.RepositoryPatch{Name: &name})
	var dup *model.DuplicateNameError
	if !errors.As(err, &dup) || dup.Name != "taken" {
		t.Fatalf("expected DuplicateNameError, got %v", err)
	}
	if err.Error() != "Repository with name 'taken' already exists" {
		t.Fatalf("message = %q", err.Error())
	}

	err = c.UpdateRepository(context.Background(), "2", model.RepositoryPatch{Name: &name})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	desc := "new"
	if err := c.UpdateRepository(context.Background(), "3", model.RepositoryPatch{Description: &desc}); err != nil {
		t.Fatalf("UpdateRepository: %v", err)
	}
	if _, ok := gotBody["name"]; ok {
		t.Fatalf("name should be omitted when unset: %v", gotBody)
	}
}

func TestGenerateDocumentation_SendsIntegerIDs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/ai/generate", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if !bytes.Contains(raw, []byte(`"repo_ids":[1,2]`)) {
			t.Errorf("unexpected body %s", raw)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{
			"status":           "partial_success",
			"message":          "Documentation generated for 1/2 repositories.",
			"successful_count": 1,
			"results": []map[string]any{
				{"status": "documented", "repository": "widgets", "prompt_id": 9, "documentation": map[string]any{"content": "# W", "format": "markdown"}},
				{"status": "error", "message": "Error cloning repository"},
			},
			"errors": []string{"Error cloning repository"},
		})
	})
	c := newTestClient(t, mux)

	resp, err := c.GenerateDocumentation(context.Background(), []string{"1", "2"})
	if err != nil {
		t.Fatalf("GenerateDocumentation: %v", err)
	}
	if resp.Status != GeneratePartial || len(resp.Results) != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !resp.Results[0].Documented() || resp.Results[0].PromptID != "9" || resp.Results[0].Documentation.Content != "# W" {
		t.Fatalf("unexpected first result: %+v", resp.Results[0])
	}
}

func TestGetDocumentation_ConvertsSSHURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/docs/5", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"id": "5", "title": "widgets", "repo_id": "12", "repo_name": "widgets",
			"repo_url": "git@github.com:acme/widgets.git", "status": "ready",
			"created_at": "2024-03-01T10:11:12", "updated_at": "2024-03-01T10:11:12",
			"content": "# Widgets", "table_of_contents": "", "goal": "onboarding",
		})
	})
	mux.HandleFunc("GET /api/docs/404", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]any{"detail": "Document not found"})
	})
	c := newTestClient(t, mux)

	doc, err := c.GetDocumentation(context.Background(), "5")
	if err != nil {
		t.Fatalf("GetDocumentation: %v", err)
	}
	if doc.RepoURL != "https://github.com/acme/widgets.git" || doc.Goal != "onboarding" || doc.RepoID != "12" {
		t.Fatalf("unexpected doc: %+v", doc)
	}

	_, err = c.GetDocumentation(context.Background(), "404")
	var nf *model.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != model.KindDocumentation {
		t.Fatalf("expected documentation NotFoundError, got %v", err)
	}
}

func TestTemplates_CreateDuplicateAndDelete(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/prompt-templates", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["name"] == "dup" {
			writeJSON(t, w, http.StatusBadRequest, map[string]any{"detail": "Template with name 'dup' already exists"})
			return
		}
		writeJSON(t, w, http.StatusCreated, map[string]any{"id": 3, "name": req["name"], "content": req["content"]})
	})
	mux.HandleFunc("DELETE /api/prompt-templates/3", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"message": "deleted"})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	tpl, err := c.CreateTemplate(ctx, model.Template{Name: "api", Content: "Focus on the API"})
	if err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if tpl.ID != "3" || tpl.Content != "Focus on the API" {
		t.Fatalf("unexpected template: %+v", tpl)
	}
	_, err = c.CreateTemplate(ctx, model.Template{Name: "dup"})
	if !errors.Is(err, model.ErrDuplicateName) || !strings.HasPrefix(err.Error(), "Template with name") {
		t.Fatalf("expected template duplicate, got %v", err)
	}
	if err := c.DeleteTemplate(ctx, "3"); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
}

func TestClient_VerboseLogsToWriter(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/prompt-templates", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "[]")
	})
	var buf bytes.Buffer
	c := newTestClient(t, mux, WithVerbose(true, &buf))

	if _, err := c.ListTemplates(context.Background()); err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "[verbose] backend: GET") || !strings.Contains(out, "200 OK") {
		t.Fatalf("unexpected verbose output: %q", out)
	}
}

func TestClient_RetryAfterStartsCooldown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/repos/list", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		writeJSON(t, w, http.StatusTooManyRequests, map[string]any{"detail": "slow down"})
	})
	throttle := NewThrottle()
	c := newTestClient(t, mux, WithThrottle(throttle))

	_, err := c.ListRepositories(context.Background())
	if !IsStatus(err, http.StatusTooManyRequests) {
		t.Fatalf("expected 429 APIError, got %v", err)
	}
	if throttle.CooldownUntil().IsZero() {
		t.Fatalf("expected active cooldown after Retry-After")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.ListRepositories(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled while cooling down, got %v", err)
	}
}

func TestSearchDocumentation_SendsQueryAndDecodesHits(t *testing.T) {
	mux := http.NewServeMux()
	var gotQuery string
	mux.HandleFunc("GET /api/docs/search", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		writeJSON(t, w, http.StatusOK, []map[string]any{{
			"id": 4, "title": "", "repo_id": 2, "repo_name": "widgets",
			"content_snippet": "...use the cache...", "match_count": 3,
			"created_at": "2024-05-01T10:00:00",
		}})
	})
	c := newTestClient(t, mux)

	hits, err := c.SearchDocumentation(context.Background(), "cache layer & more")
	if err != nil {
		t.Fatalf("SearchDocumentation: %v", err)
	}
	if gotQuery != "cache layer & more" {
		t.Fatalf("query = %q", gotQuery)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %+v", hits)
	}
	h := hits[0]
	if h.ID != "4" || h.RepoID != "2" || h.Title != "widgets" || h.MatchCount != 3 || h.Snippet != "...use the cache..." {
		t.Fatalf("hit = %+v", h)
	}
	if h.CreatedAt.IsZero() {
		t.Fatalf("created_at not parsed")
	}
}

func TestRegenerateDocumentation_PostsDocIDs(t *testing.T) {
	mux := http.NewServeMux()
	var req deleteDocumentsRequest
	mux.HandleFunc("POST /api/docs/update", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(t, w, http.StatusOK, map[string]any{
			"status": "success", "updated_count": 1, "errors": []string{"Document not found: 9"},
		})
	})
	c := newTestClient(t, mux)

	resp, err := c.RegenerateDocumentation(context.Background(), []string{"3", "9"})
	if err != nil {
		t.Fatalf("RegenerateDocumentation: %v", err)
	}
	if strings.Join(req.DocIDs, ",") != "3,9" {
		t.Fatalf("doc_ids = %v", req.DocIDs)
	}
	if resp.UpdatedCount != 1 || len(resp.Errors) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestGeneralSettings_RoundTripAndValidation(t *testing.T) {
	mux := http.NewServeMux()
	var put map[string]any
	mux.HandleFunc("GET /api/settings/general", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"prompt": "be brief", "checkInterval": 60, "disabled": false})
	})
	mux.HandleFunc("PUT /api/settings/general", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&put)
		if put["checkInterval"] == float64(77) {
			writeJSON(t, w, http.StatusBadRequest, map[string]any{"detail": "checkInterval rejected"})
			return
		}
		writeJSON(t, w, http.StatusOK, put)
	})
	mux.HandleFunc("GET /api/prompts/general", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"prompt": "be brief"})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	got, err := c.GeneralSettings(ctx)
	if err != nil {
		t.Fatalf("GeneralSettings: %v", err)
	}
	if got.Prompt != "be brief" || got.CheckInterval == nil || *got.CheckInterval != 60 {
		t.Fatalf("settings = %+v", got)
	}
	if p, err := c.GeneralPrompt(ctx); err != nil || p != "be brief" {
		t.Fatalf("GeneralPrompt = %q, %v", p, err)
	}

	interval := 120
	saved, err := c.SaveGeneralSettings(ctx, model.GeneralSettings{Prompt: "x", CheckInterval: &interval, Disabled: true})
	if err != nil {
		t.Fatalf("SaveGeneralSettings: %v", err)
	}
	if put["checkInterval"] != float64(120) || put["disabled"] != true {
		t.Fatalf("request body = %v", put)
	}
	if !saved.Disabled || *saved.CheckInterval != 120 {
		t.Fatalf("saved = %+v", saved)
	}

	put = nil
	tooBig := model.MaxCheckInterval + 1
	_, err = c.SaveGeneralSettings(ctx, model.GeneralSettings{CheckInterval: &tooBig})
	if !errors.Is(err, model.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if put != nil {
		t.Fatalf("an out of range interval reached the service")
	}

	rejected := 77
	_, err = c.SaveGeneralSettings(ctx, model.GeneralSettings{CheckInterval: &rejected})
	if !errors.Is(err, model.ErrValidation) || !strings.Contains(err.Error(), "checkInterval rejected") {
		t.Fatalf("err = %v, want service rejection as validation error", err)
	}
}
