package backend

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"repodesk/internal/model"
)

// FlexID decodes identifiers the service emits either as JSON numbers or strings.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

// wireID sends numeric identifiers as JSON numbers, which the service's
// integer-typed request models require.
func wireID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

func wireIDs(ids []string) []any {
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, wireID(id))
	}
	return out
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime accepts RFC 3339 as well as the naive ISO timestamps the service
// writes; unparseable values yield the zero time.
func parseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

type repositoryItem struct {
	ID             FlexID `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	RepoURL        string `json:"repo_url"`
	DateOfVersion  string `json:"date_of_version"`
	SpecificPrompt string `json:"specific_prompt"`
	HasDocs        *bool  `json:"has_docs,omitempty"`
}

// toModel maps a listed repository. Listed repositories have finished
// cloning; documentation status is derived later from the document list.
func (r repositoryItem) toModel() model.Repository {
	doc := model.DocNotDocumented
	if r.HasDocs != nil && *r.HasDocs {
		doc = model.DocDocumented
	}
	return model.Repository{
		ID:             r.ID.String(),
		Name:           r.Name,
		Description:    r.Description,
		URL:            r.RepoURL,
		VersionedAt:    parseTime(r.DateOfVersion),
		SpecificPrompt: r.SpecificPrompt,
		CloneStatus:    model.CloneSuccess,
		DocStatus:      doc,
	}
}

type documentItem struct {
	ID        FlexID `json:"id"`
	Title     string `json:"title"`
	RepoID    FlexID `json:"repo_id"`
	RepoName  string `json:"repo_name"`
	RepoURL   string `json:"repo_url"`
	Status    string `json:"status"`
	Goal      string `json:"goal"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (d documentItem) toModel() model.Documentation {
	title := d.Title
	if title == "" {
		title = d.RepoName
	}
	return model.Documentation{
		ID:        d.ID.String(),
		Title:     title,
		RepoID:    d.RepoID.String(),
		RepoURL:   model.DisplayURL(d.RepoURL),
		Status:    d.Status,
		Goal:      d.Goal,
		Content:   d.Content,
		CreatedAt: parseTime(d.CreatedAt),
		UpdatedAt: parseTime(d.UpdatedAt),
	}
}

type templateItem struct {
	ID          FlexID `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

func (t templateItem) toModel() model.Template {
	return model.Template{
		ID:          t.ID.String(),
		Name:        t.Name,
		Description: t.Description,
		Content:     t.Content,
	}
}

type cloneRequest struct {
	RepoURL string `json:"repo_url"`
}

type taskCreated struct {
	TaskID string `json:"task_id"`
}

type updateRepositoryRequest struct {
	RepoID      any     `json:"repo_id"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type deleteRepositoryRequest struct {
	RepoID any `json:"repo_id"`
}

type generateRequest struct {
	RepoIDs []any `json:"repo_ids"`
}

type promptRequest struct {
	RepoID any    `json:"repo_id"`
	Prompt string `json:"prompt"`
}

type deleteDocumentsRequest struct {
	DocIDs []string `json:"doc_ids"`
}

type searchItem struct {
	ID         FlexID `json:"id"`
	Title      string `json:"title"`
	RepoID     FlexID `json:"repo_id"`
	RepoName   string `json:"repo_name"`
	Snippet    string `json:"content_snippet"`
	MatchCount int    `json:"match_count"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

func (h searchItem) toModel() model.SearchHit {
	title := h.Title
	if title == "" {
		title = h.RepoName
	}
	return model.SearchHit{
		ID:         h.ID.String(),
		Title:      title,
		RepoID:     h.RepoID.String(),
		RepoName:   h.RepoName,
		Snippet:    h.Snippet,
		MatchCount: h.MatchCount,
		CreatedAt:  parseTime(h.CreatedAt),
		UpdatedAt:  parseTime(h.UpdatedAt),
	}
}

// settingsItem uses the service's camelCase keys.
type settingsItem struct {
	Prompt        string `json:"prompt"`
	CheckInterval *int   `json:"checkInterval"`
	Disabled      bool   `json:"disabled"`
}

func (s settingsItem) toModel() model.GeneralSettings {
	return model.GeneralSettings{Prompt: s.Prompt, CheckInterval: s.CheckInterval, Disabled: s.Disabled}
}

type generalPromptBody struct {
	Prompt string `json:"prompt"`
}

type goalRequest struct {
	Goal string `json:"goal"`
}

type templateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Content     *string `json:"content,omitempty"`
}

type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}
