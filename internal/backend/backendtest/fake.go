// Package backendtest provides an in-memory, scripted backend.Backend.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"repodesk/internal/backend"
	"repodesk/internal/model"
)

// Step is one scripted observation of a clone task. A SUCCESS step without a
// result registers the repository and answers with the created id.
type Step = backend.TaskStatus

func Pending() Step { return Step{State: backend.StatePending} }

func Started() Step { return Step{State: backend.StateStarted} }

func Succeed() Step { return Step{State: backend.StateSuccess} }

func Fail(reason string) Step {
	return Step{State: backend.StateFailure, Result: map[string]any{"error": reason}}
}

type injected struct {
	err       error
	remaining int // < 0 means every call
}

type task struct {
	id     string
	url    string
	steps  []Step
	pos    int
	result *Step
}

// Fake is safe for concurrent use. Zero value is not usable; call New.
type Fake struct {
	mu sync.Mutex

	repos     []model.Repository
	docs      []model.Documentation
	templates []model.Template
	nextID    int
	general   model.GeneralSettings

	tasks   map[string]*task
	scripts map[string][]Step
	faults  map[string]*injected
	calls   map[string]int

	// Latency is added to every TaskStatus call.
	Latency time.Duration
	Now     func() time.Time
}

var _ backend.Backend = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		nextID:  1,
		tasks:   map[string]*task{},
		scripts: map[string][]Step{},
		faults:  map[string]*injected{},
		calls:   map[string]int{},
		general: model.GeneralSettings{CheckInterval: ptr(model.DefaultCheckInterval)},
		Now:     time.Now,
	}
}

func ptr[T any](v T) *T { return &v }

func (f *Fake) newIDLocked() string {
	id := strconv.Itoa(f.nextID)
	f.nextID++
	return id
}

// AddRepository seeds a repository; an empty ID is assigned.
func (f *Fake) AddRepository(r model.Repository) model.Repository {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == "" {
		r.ID = f.newIDLocked()
	}
	if r.CloneStatus == "" {
		r.CloneStatus = model.CloneSuccess
	}
	if r.DocStatus == "" {
		r.DocStatus = model.DocNotDocumented
	}
	f.repos = append(f.repos, r)
	return r
}

// AddDocumentation seeds a document for an existing repository.
func (f *Fake) AddDocumentation(d model.Documentation) model.Documentation {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d.ID == "" {
		d.ID = f.newIDLocked()
	}
	if d.Status == "" {
		d.Status = model.DocStatusReady
	}
	f.docs = append(f.docs, d)
	return d
}

func (f *Fake) AddTemplate(t model.Template) model.Template {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == "" {
		t.ID = f.newIDLocked()
	}
	f.templates = append(f.templates, t)
	return t
}

// ScriptClone sets the observations a clone of repoURL will go through.
// Without a script a clone is pending once and then succeeds.
func (f *Fake) ScriptClone(repoURL string, steps ...Step) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[repoURL] = steps
}

// FailOn makes op fail for key ("" matches every key) on every call.
func (f *Fake) FailOn(op, key string, err error) {
	f.inject(op, key, err, -1)
}

// FailOnce makes the next call of op for key fail.
func (f *Fake) FailOnce(op, key string, err error) {
	f.inject(op, key, err, 1)
}

func (f *Fake) inject(op, key string, err error, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op+"\x00"+key] = &injected{err: err, remaining: n}
}

// FailRegenerate makes regeneration of docID report an error inside an
// otherwise successful batch.
func (f *Fake) FailRegenerate(docID, message string) {
	f.inject("Regenerate", docID, errors.New(message), -1)
}

// FailGenerate makes generation for repoID report a per-repository error
// inside an otherwise successful batch.
func (f *Fake) FailGenerate(repoID, message string) {
	f.inject("Generate", repoID, errors.New(message), -1)
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) enterLocked(op, key string) error {
	f.calls[op]++
	for _, k := range []string{op + "\x00" + key, op + "\x00"} {
		inj, ok := f.faults[k]
		if !ok {
			continue
		}
		if inj.remaining == 0 {
			continue
		}
		if inj.remaining > 0 {
			inj.remaining--
		}
		return inj.err
	}
	return nil
}

// Repositories returns a snapshot of the backend's repository table.
func (f *Fake) Repositories() []model.Repository {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Repository(nil), f.repos...)
}

func (f *Fake) Documents() []model.Documentation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Documentation(nil), f.docs...)
}

func (f *Fake) repoIndexLocked(id string) int {
	for i, r := range f.repos {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (f *Fake) docIndexLocked(id string) int {
	for i, d := range f.docs {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (f *Fake) docForRepoLocked(repoID string) int {
	for i, d := range f.docs {
		if d.RepoID == repoID {
			return i
		}
	}
	return -1
}

func (f *Fake) SubmitClone(_ context.Context, repoURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("SubmitClone", repoURL); err != nil {
		return "", err
	}
	if _, err := model.ValidateSourceURL(repoURL); err != nil {
		return "", &model.SubmissionError{StatusCode: http.StatusUnprocessableEntity, Detail: err.Error()}
	}
	steps, ok := f.scripts[repoURL]
	if !ok {
		steps = []Step{Pending(), Succeed()}
	}
	t := &task{id: uuid.NewString(), url: repoURL, steps: steps}
	f.tasks[t.id] = t
	return t.id, nil
}

func (f *Fake) TaskStatus(ctx context.Context, taskID string) (backend.TaskStatus, error) {
	if f.Latency > 0 {
		select {
		case <-ctx.Done():
			return backend.TaskStatus{}, ctx.Err()
		case <-time.After(f.Latency):
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("TaskStatus", taskID); err != nil {
		return backend.TaskStatus{}, err
	}
	t, ok := f.tasks[taskID]
	if !ok {
		// Unknown ids look pending, like the task queue reports them.
		return backend.TaskStatus{TaskID: taskID, State: backend.StatePending}, nil
	}
	if t.result != nil {
		return *t.result, nil
	}
	var step Step
	if len(t.steps) == 0 {
		step = Succeed()
	} else if t.pos < len(t.steps) {
		step = t.steps[t.pos]
		t.pos++
	} else {
		step = t.steps[len(t.steps)-1]
	}
	step.TaskID = taskID
	if step.State == backend.StateSuccess && step.Result == nil {
		step.Result = f.completeCloneLocked(t.url)
	}
	if step.Terminal() {
		final := step
		t.result = &final
	}
	return step, nil
}

// completeCloneLocked mirrors the clone worker: duplicates by normalised URL
// or by name are answered with status "error" inside a SUCCESS state.
func (f *Fake) completeCloneLocked(repoURL string) map[string]any {
	name := model.NameFromURL(repoURL)
	key := model.NormalizeURL(repoURL)
	for _, r := range f.repos {
		if model.NormalizeURL(r.URL) == key {
			return map[string]any{
				"status":       "error",
				"message":      "Repository already exists in database (same repository with different URL format).",
				"repo_id":      r.ID,
				"repo_name":    r.Name,
				"existing_url": r.URL,
			}
		}
		if r.Name == name {
			return map[string]any{
				"status":    "error",
				"message":   fmt.Sprintf("Repository with name '%s' already exists in database.", name),
				"repo_id":   r.ID,
				"repo_name": r.Name,
			}
		}
	}
	r := model.Repository{
		ID:          f.newIDLocked(),
		Name:        name,
		URL:         repoURL,
		VersionedAt: f.Now(),
		CloneStatus: model.CloneSuccess,
		DocStatus:   model.DocNotDocumented,
	}
	f.repos = append(f.repos, r)
	return map[string]any{
		"status":    "success",
		"message":   fmt.Sprintf("Repository '%s' saved successfully with ID: %s", name, r.ID),
		"repo_id":   r.ID,
		"repo_name": name,
		"repo_url":  repoURL,
	}
}

func (f *Fake) ListRepositories(context.Context) ([]model.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("ListRepositories", ""); err != nil {
		return nil, err
	}
	out := append([]model.Repository(nil), f.repos...)
	for i := range out {
		out[i].DocStatus = model.DocNotDocumented
	}
	return out, nil
}

func (f *Fake) UpdateRepository(_ context.Context, id string, patch model.RepositoryPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("UpdateRepository", id); err != nil {
		return err
	}
	i := f.repoIndexLocked(id)
	if i < 0 {
		return &model.NotFoundError{Kind: model.KindRepository, ID: id}
	}
	if patch.Name != nil && *patch.Name != f.repos[i].Name {
		for _, r := range f.repos {
			if r.ID != id && r.Name == *patch.Name {
				return &model.DuplicateNameError{Kind: model.KindRepository, Name: *patch.Name, ConflictID: r.ID}
			}
		}
		f.repos[i].Name = *patch.Name
		if d := f.docForRepoLocked(id); d >= 0 {
			f.docs[d].Title = *patch.Name
		}
	}
	if patch.Description != nil {
		f.repos[i].Description = *patch.Description
	}
	return nil
}

func (f *Fake) DeleteRepository(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("DeleteRepository", id); err != nil {
		return err
	}
	i := f.repoIndexLocked(id)
	if i < 0 {
		return &model.NotFoundError{Kind: model.KindRepository, ID: id}
	}
	f.repos = append(f.repos[:i], f.repos[i+1:]...)
	kept := f.docs[:0]
	for _, d := range f.docs {
		if d.RepoID != id {
			kept = append(kept, d)
		}
	}
	f.docs = kept
	return nil
}

// GenerateDocumentation documents every known id unless a fault is injected
// for that id, mirroring the batched answer of the service.
func (f *Fake) GenerateDocumentation(_ context.Context, repoIDs []string) (backend.GenerateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("GenerateDocumentation", ""); err != nil {
		return backend.GenerateResponse{}, err
	}
	var resp backend.GenerateResponse
	for _, id := range repoIDs {
		i := f.repoIndexLocked(id)
		if i < 0 {
			resp.Errors = append(resp.Errors, fmt.Sprintf("Repository %s not found", id))
			continue
		}
		repo := f.repos[i]
		if inj, ok := f.faults["Generate\x00"+id]; ok && inj.remaining != 0 {
			if inj.remaining > 0 {
				inj.remaining--
			}
			resp.Results = append(resp.Results, backend.GenerateResult{Status: "error", Message: inj.err.Error()})
			resp.Errors = append(resp.Errors, inj.err.Error())
			continue
		}
		content := fmt.Sprintf("# %s\n\n## Overview\n\n%s\n", repo.Name, repo.Description)
		doc := f.upsertDocLocked(repo, content)
		resp.Results = append(resp.Results, backend.GenerateResult{
			Status:        "documented",
			Repository:    repo.Name,
			PromptID:      backend.FlexID(doc.ID),
			Documentation: &backend.GeneratedContent{Content: content, Format: "markdown"},
		})
		resp.SuccessfulCount++
	}
	switch {
	case resp.SuccessfulCount == 0:
		resp.Status = backend.GenerateError
		resp.Message = fmt.Sprintf("Failed to generate documentation for all %d repositories.", len(repoIDs))
	case resp.SuccessfulCount < len(repoIDs):
		resp.Status = backend.GeneratePartial
		resp.Message = fmt.Sprintf("Documentation generated for %d/%d repositories.", resp.SuccessfulCount, len(repoIDs))
	default:
		resp.Status = backend.GenerateOK
		resp.Message = fmt.Sprintf("Documentation generated successfully for %d repositories.", resp.SuccessfulCount)
	}
	return resp, nil
}

func (f *Fake) upsertDocLocked(repo model.Repository, content string) model.Documentation {
	now := f.Now()
	if d := f.docForRepoLocked(repo.ID); d >= 0 {
		f.docs[d].Content = content
		f.docs[d].Title = repo.Name
		f.docs[d].UpdatedAt = now
		return f.docs[d]
	}
	doc := model.Documentation{
		ID:        f.newIDLocked(),
		Title:     repo.Name,
		RepoID:    repo.ID,
		RepoURL:   model.DisplayURL(repo.URL),
		Status:    model.DocStatusReady,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.docs = append(f.docs, doc)
	return doc
}

// SavePrompt stores the prompt and queues a regeneration task that succeeds
// on its first observation with the regenerated content.
func (f *Fake) SavePrompt(_ context.Context, repoID, prompt string) (backend.PromptResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("SavePrompt", repoID); err != nil {
		return backend.PromptResponse{}, err
	}
	i := f.repoIndexLocked(repoID)
	if i < 0 {
		return backend.PromptResponse{}, &model.NotFoundError{Kind: model.KindRepository, ID: repoID}
	}
	f.repos[i].SpecificPrompt = prompt
	repo := f.repos[i]
	content := fmt.Sprintf("# %s\n\n## Focus\n\n%s\n", repo.Name, prompt)
	doc := f.upsertDocLocked(repo, content)

	id := uuid.NewString()
	final := backend.TaskStatus{
		TaskID: id,
		State:  backend.StateSuccess,
		Result: map[string]any{
			"status":        "documented",
			"repository":    repo.Name,
			"prompt_id":     doc.ID,
			"documentation": map[string]any{"content": content, "format": "markdown"},
		},
	}
	f.tasks[id] = &task{id: id, result: &final}
	return backend.PromptResponse{
		Status:  "ok",
		Message: "Prompt saved successfully. Documentation regeneration queued for repository " + repo.Name,
		TaskID:  id,
	}, nil
}

func (f *Fake) ListDocumentation(context.Context) ([]model.Documentation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("ListDocumentation", ""); err != nil {
		return nil, err
	}
	out := make([]model.Documentation, 0, len(f.docs))
	for _, d := range f.docs {
		d.Content = ""
		out = append(out, d)
	}
	return out, nil
}

func (f *Fake) GetDocumentation(_ context.Context, id string) (model.Documentation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("GetDocumentation", id); err != nil {
		return model.Documentation{}, err
	}
	i := f.docIndexLocked(id)
	if i < 0 {
		return model.Documentation{}, &model.NotFoundError{Kind: model.KindDocumentation, ID: id}
	}
	return f.docs[i], nil
}

func (f *Fake) DeleteDocumentation(_ context.Context, ids []string) (backend.DeleteDocumentationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("DeleteDocumentation", ""); err != nil {
		return backend.DeleteDocumentationResponse{}, err
	}
	var resp backend.DeleteDocumentationResponse
	for _, id := range ids {
		i := f.docIndexLocked(id)
		if i < 0 {
			resp.Errors = append(resp.Errors, fmt.Sprintf("Document not found: %s", id))
			continue
		}
		f.docs = append(f.docs[:i], f.docs[i+1:]...)
		resp.DeletedCount++
	}
	resp.Status = "success"
	if resp.DeletedCount == 0 {
		resp.Status = "error"
	}
	return resp, nil
}

// RegenerateDocumentation rebuilds each document from its repository's
// current name and description.
func (f *Fake) RegenerateDocumentation(_ context.Context, ids []string) (backend.RegenerateDocumentationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("RegenerateDocumentation", ""); err != nil {
		return backend.RegenerateDocumentationResponse{}, err
	}
	var resp backend.RegenerateDocumentationResponse
	for _, id := range ids {
		i := f.docIndexLocked(id)
		if i < 0 {
			resp.Errors = append(resp.Errors, fmt.Sprintf("Document not found: %s", id))
			continue
		}
		if inj, ok := f.faults["Regenerate\x00"+id]; ok && inj.remaining != 0 {
			if inj.remaining > 0 {
				inj.remaining--
			}
			resp.Errors = append(resp.Errors, fmt.Sprintf("Failed to update document %s: %s", id, inj.err))
			continue
		}
		r := f.repoIndexLocked(f.docs[i].RepoID)
		if r < 0 {
			resp.Errors = append(resp.Errors, fmt.Sprintf("Repository not found for document %s", id))
			continue
		}
		repo := f.repos[r]
		f.upsertDocLocked(repo, fmt.Sprintf("# %s\n\n## Overview\n\n%s\n", repo.Name, repo.Description))
		resp.UpdatedCount++
	}
	resp.Status = "success"
	if resp.UpdatedCount == 0 {
		resp.Status = "error"
	}
	return resp, nil
}

// SearchDocumentation ranks documents by match count, highest first.
func (f *Fake) SearchDocumentation(_ context.Context, query string) ([]model.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("SearchDocumentation", query); err != nil {
		return nil, err
	}
	hits := []model.SearchHit{}
	for _, d := range f.docs {
		count, snippet, ok := model.MatchDocument(d.Title, d.Content, query)
		if !ok {
			continue
		}
		name := d.Title
		if r := f.repoIndexLocked(d.RepoID); r >= 0 {
			name = f.repos[r].Name
		}
		hits = append(hits, model.SearchHit{
			ID:         d.ID,
			Title:      d.Title,
			RepoID:     d.RepoID,
			RepoName:   name,
			Snippet:    snippet,
			MatchCount: count,
			CreatedAt:  d.CreatedAt,
			UpdatedAt:  d.UpdatedAt,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].MatchCount > hits[j].MatchCount })
	return hits, nil
}

func (f *Fake) UpdateGoal(_ context.Context, docID, goal string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("UpdateGoal", docID); err != nil {
		return err
	}
	i := f.docIndexLocked(docID)
	if i < 0 {
		return &model.NotFoundError{Kind: model.KindDocumentation, ID: docID}
	}
	f.docs[i].Goal = goal
	return nil
}

func (f *Fake) ListTemplates(context.Context) ([]model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("ListTemplates", ""); err != nil {
		return nil, err
	}
	return append([]model.Template(nil), f.templates...), nil
}

func (f *Fake) CreateTemplate(_ context.Context, tpl model.Template) (model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("CreateTemplate", tpl.Name); err != nil {
		return model.Template{}, err
	}
	for _, t := range f.templates {
		if t.Name == tpl.Name {
			return model.Template{}, &model.DuplicateNameError{Kind: model.KindTemplate, Name: tpl.Name, ConflictID: t.ID}
		}
	}
	tpl.ID = f.newIDLocked()
	f.templates = append(f.templates, tpl)
	return tpl, nil
}

func (f *Fake) UpdateTemplate(_ context.Context, id string, patch model.TemplatePatch) (model.Template, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("UpdateTemplate", id); err != nil {
		return model.Template{}, err
	}
	idx := -1
	for i, t := range f.templates {
		if t.ID == id {
			idx = i
		}
	}
	if idx < 0 {
		return model.Template{}, &model.NotFoundError{Kind: model.KindTemplate, ID: id}
	}
	if patch.Name != nil {
		for _, t := range f.templates {
			if t.ID != id && t.Name == *patch.Name {
				return model.Template{}, &model.DuplicateNameError{Kind: model.KindTemplate, Name: *patch.Name, ConflictID: t.ID}
			}
		}
		f.templates[idx].Name = *patch.Name
	}
	if patch.Description != nil {
		f.templates[idx].Description = *patch.Description
	}
	if patch.Content != nil {
		f.templates[idx].Content = *patch.Content
	}
	return f.templates[idx], nil
}

func (f *Fake) DeleteTemplate(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("DeleteTemplate", id); err != nil {
		return err
	}
	for i, t := range f.templates {
		if t.ID == id {
			f.templates = append(f.templates[:i], f.templates[i+1:]...)
			return nil
		}
	}
	return &model.NotFoundError{Kind: model.KindTemplate, ID: id}
}

func (f *Fake) GeneralPrompt(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("GeneralPrompt", ""); err != nil {
		return "", err
	}
	return f.general.Prompt, nil
}

func (f *Fake) SaveGeneralPrompt(_ context.Context, prompt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("SaveGeneralPrompt", ""); err != nil {
		return err
	}
	f.general.Prompt = prompt
	return nil
}

func (f *Fake) GeneralSettings(context.Context) (model.GeneralSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("GeneralSettings", ""); err != nil {
		return model.GeneralSettings{}, err
	}
	out := f.general
	out.CheckInterval = ptr(*f.general.CheckInterval)
	return out, nil
}

// SaveGeneralSettings keeps the stored interval when none is given.
func (f *Fake) SaveGeneralSettings(_ context.Context, s model.GeneralSettings) (model.GeneralSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enterLocked("SaveGeneralSettings", ""); err != nil {
		return model.GeneralSettings{}, err
	}
	if err := s.Validate(); err != nil {
		return model.GeneralSettings{}, err
	}
	f.general.Prompt = s.Prompt
	f.general.Disabled = s.Disabled
	if s.CheckInterval != nil {
		f.general.CheckInterval = ptr(*s.CheckInterval)
	}
	out := f.general
	out.CheckInterval = ptr(*f.general.CheckInterval)
	return out, nil
}
