// Package store holds the client-side entity collections and reconciles
// task results into them.
package store

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"repodesk/internal/model"
)

// Store keeps repositories, documentation and templates keyed by id in
// insertion order. It is safe for concurrent use.
//
// Invariant: a repository's DocStatus is documented exactly when a document
// with its RepoID is held.
type Store struct {
	mu        sync.RWMutex
	repos     *ordered[model.Repository]
	docs      *ordered[model.Documentation]
	templates *ordered[model.Template]
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Store)

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		repos:     newOrdered[model.Repository](),
		docs:      newOrdered[model.Documentation](),
		templates: newOrdered[model.Template](),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, apply := range opts {
		if apply != nil {
			apply(s)
		}
	}
	return s
}

func (s *Store) docForLocked(repoID string) (model.Documentation, bool) {
	for _, k := range s.docs.keys {
		if d := s.docs.items[k]; d.RepoID == repoID {
			return d, true
		}
	}
	return model.Documentation{}, false
}

func (s *Store) syncDocStatusLocked(repoID string) {
	r, ok := s.repos.get(repoID)
	if !ok {
		return
	}
	if _, documented := s.docForLocked(repoID); documented {
		r.DocStatus = model.DocDocumented
	} else {
		r.DocStatus = model.DocNotDocumented
	}
	s.repos.put(repoID, r)
}

func (s *Store) syncAllDocStatusLocked() {
	for _, k := range s.repos.keys {
		s.syncDocStatusLocked(k)
	}
}

// InsertOptimistic adds a row before the backend confirms it. It reports
// false and changes nothing when the key is already held.
func (s *Store) InsertOptimistic(repo model.Repository) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if repo.ID == "" || s.repos.has(repo.ID) {
		return false
	}
	if repo.CloneStatus == "" {
		repo.CloneStatus = model.ClonePending
	}
	repo.DocStatus = model.DocNotDocumented
	s.repos.put(repo.ID, repo)
	s.syncDocStatusLocked(repo.ID)
	return true
}

// Reconcile merges the terminal result of h into the row it owns.
//
// A successful clone flips the row to SUCCESS and re-keys a provisional row to
// the server-assigned repo_id; fields edited locally in the meantime are kept.
// A failed clone keeps the row with CloneStatus FAILURE and the reason as
// StatusMessage. A successful prompt job refreshes the owner's document.
// Generate results are applied per repository by the caller.
func (s *Store) Reconcile(h model.TaskHandle, res model.TerminalResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch h.Job {
	case model.JobClone:
		return s.reconcileCloneLocked(h, res)
	case model.JobPrompt:
		return s.reconcilePromptLocked(h, res)
	case model.JobGenerate:
		return nil
	default:
		return model.NewValidationError("job", fmt.Sprintf("unsupported job kind %q", h.Job))
	}
}

func (s *Store) reconcileCloneLocked(h model.TaskHandle, res model.TerminalResult) error {
	row, ok := s.repos.get(h.OwnerID)
	if !ok {
		return &model.NotFoundError{Kind: model.KindRepository, ID: h.OwnerID}
	}
	if !res.Succeeded() {
		row.CloneStatus = model.CloneFailure
		row.StatusMessage = res.Reason
		s.repos.put(h.OwnerID, row)
		s.logger.Info("clone failed", "task_id", h.TaskID, "owner_id", h.OwnerID, "reason", res.Reason)
		return nil
	}

	row.CloneStatus = model.CloneSuccess
	row.StatusMessage = res.PayloadString("warning")
	if row.Name == "" {
		row.Name = res.PayloadString("repo_name")
	}

	newID := res.PayloadString("repo_id")
	if newID == "" || newID == h.OwnerID {
		s.repos.put(h.OwnerID, row)
		s.syncDocStatusLocked(h.OwnerID)
		return nil
	}

	// A list refresh may already have brought the confirmed row in; merge
	// instead of holding it twice.
	if listed, exists := s.repos.get(newID); exists {
		if row.VersionedAt.IsZero() {
			row.VersionedAt = listed.VersionedAt
		}
		if row.Description == "" {
			row.Description = listed.Description
		}
		if row.SpecificPrompt == "" {
			row.SpecificPrompt = listed.SpecificPrompt
		}
	}
	row.ID = newID
	s.repos.rekey(h.OwnerID, newID, row)
	s.syncDocStatusLocked(newID)
	s.logger.Debug("clone reconciled", "task_id", h.TaskID, "provisional_id", h.OwnerID, "repo_id", newID)
	return nil
}

func (s *Store) reconcilePromptLocked(h model.TaskHandle, res model.TerminalResult) error {
	repo, ok := s.repos.get(h.OwnerID)
	if !ok {
		return &model.NotFoundError{Kind: model.KindRepository, ID: h.OwnerID}
	}
	if !res.Succeeded() {
		repo.StatusMessage = res.Reason
		s.repos.put(h.OwnerID, repo)
		return nil
	}
	content := generatedContent(res.Payload)
	if content == "" {
		return nil
	}
	now := s.now()
	doc, ok := s.docForLocked(h.OwnerID)
	if !ok {
		doc = model.Documentation{
			ID:        res.PayloadString("prompt_id"),
			Title:     repo.Name,
			RepoID:    repo.ID,
			RepoURL:   model.DisplayURL(repo.URL),
			Status:    model.DocStatusReady,
			CreatedAt: now,
		}
		if doc.ID == "" {
			doc.ID = "doc:" + repo.ID
		}
	}
	doc.Content = content
	doc.UpdatedAt = now
	s.docs.put(doc.ID, doc)
	s.syncDocStatusLocked(repo.ID)
	return nil
}

// generatedContent reads documentation.content from a generation payload.
func generatedContent(payload map[string]any) string {
	docPayload, ok := payload["documentation"].(map[string]any)
	if !ok {
		return ""
	}
	return model.AnyString(docPayload["content"])
}

// UpdateRepository applies patch to one row. Renames must stay unique among
// repositories and are mirrored into the owned document's title.
func (s *Store) UpdateRepository(id string, patch model.RepositoryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos.get(id)
	if !ok {
		return &model.NotFoundError{Kind: model.KindRepository, ID: id}
	}
	if patch.Name != nil && *patch.Name != r.Name {
		if conflict, taken := s.repositoryByNameLocked(*patch.Name); taken && conflict.ID != id {
			return &model.DuplicateNameError{Kind: model.KindRepository, Name: *patch.Name, ConflictID: conflict.ID}
		}
		r.Name = *patch.Name
		if doc, ok := s.docForLocked(id); ok {
			doc.Title = r.Name
			s.docs.put(doc.ID, doc)
		}
	}
	if patch.Description != nil {
		r.Description = *patch.Description
	}
	if patch.SpecificPrompt != nil {
		r.SpecificPrompt = *patch.SpecificPrompt
	}
	s.repos.put(id, r)
	return nil
}

// CheckRename reports the DuplicateNameError a rename of id to name would hit.
func (s *Store) CheckRename(id, name string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if conflict, taken := s.repositoryByNameLocked(name); taken && conflict.ID != id {
		return &model.DuplicateNameError{Kind: model.KindRepository, Name: name, ConflictID: conflict.ID}
	}
	return nil
}

// RemoveRepository drops a row and the documentation it owns.
func (s *Store) RemoveRepository(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.repos.remove(id) {
		return &model.NotFoundError{Kind: model.KindRepository, ID: id}
	}
	for _, d := range s.docs.values() {
		if d.RepoID == id {
			s.docs.remove(d.ID)
		}
	}
	return nil
}

// LoadRepositories replaces the repository collection with a backend listing.
// Provisional rows are local-only and survive the refresh after the listed ones.
func (s *Store) LoadRepositories(repos []model.Repository) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := newOrdered[model.Repository]()
	for _, r := range repos {
		if r.CloneStatus == "" {
			r.CloneStatus = model.CloneSuccess
		}
		next.put(r.ID, r)
	}
	for _, r := range s.repos.values() {
		if model.IsProvisional(r.ID) && !next.has(r.ID) {
			next.put(r.ID, r)
		}
	}
	s.repos = next
	s.syncAllDocStatusLocked()
}

// LoadDocumentation replaces the documentation collection. Content already
// fetched for a document is kept when the listing omits it.
func (s *Store) LoadDocumentation(docs []model.Documentation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := newOrdered[model.Documentation]()
	for _, d := range docs {
		if prev, ok := s.docs.get(d.ID); ok {
			if d.Content == "" {
				d.Content = prev.Content
			}
			if d.Goal == "" {
				d.Goal = prev.Goal
			}
		}
		if d.Title == "" {
			if r, ok := s.repos.get(d.RepoID); ok {
				d.Title = r.Name
			}
		}
		next.put(d.ID, d)
	}
	s.docs = next
	s.syncAllDocStatusLocked()
}

func (s *Store) LoadTemplates(templates []model.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := newOrdered[model.Template]()
	for _, t := range templates {
		next.put(t.ID, t)
	}
	s.templates = next
}

// PutDocumentation inserts or replaces the document of doc.RepoID. A
// repository owns at most one document.
func (s *Store) PutDocumentation(doc model.Documentation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	repo, ok := s.repos.get(doc.RepoID)
	if !ok {
		return &model.NotFoundError{Kind: model.KindRepository, ID: doc.RepoID}
	}
	if prev, ok := s.docForLocked(doc.RepoID); ok {
		if doc.Goal == "" {
			doc.Goal = prev.Goal
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = prev.CreatedAt
		}
		if prev.ID != doc.ID {
			s.docs.rekey(prev.ID, doc.ID, doc)
		}
	}
	if doc.Title == "" {
		doc.Title = repo.Name
	}
	if doc.RepoURL == "" {
		doc.RepoURL = model.DisplayURL(repo.URL)
	}
	if doc.Status == "" {
		doc.Status = model.DocStatusReady
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = s.now()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}
	s.docs.put(doc.ID, doc)
	s.syncDocStatusLocked(doc.RepoID)
	return nil
}

func (s *Store) UpdateDocumentation(id string, patch model.DocumentationPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs.get(id)
	if !ok {
		return &model.NotFoundError{Kind: model.KindDocumentation, ID: id}
	}
	if patch.Goal != nil {
		d.Goal = *patch.Goal
	}
	if patch.Content != nil {
		d.Content = *patch.Content
	}
	d.UpdatedAt = s.now()
	s.docs.put(id, d)
	return nil
}

// RemoveDocumentation drops a document and flips its owner to not documented.
func (s *Store) RemoveDocumentation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs.get(id)
	if !ok {
		return &model.NotFoundError{Kind: model.KindDocumentation, ID: id}
	}
	s.docs.remove(id)
	s.syncDocStatusLocked(d.RepoID)
	return nil
}

// PutTemplate inserts or replaces a template; names are unique.
func (s *Store) PutTemplate(t model.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conflict, ok := s.templateByNameLocked(t.Name); ok && conflict.ID != t.ID {
		return &model.DuplicateNameError{Kind: model.KindTemplate, Name: t.Name, ConflictID: conflict.ID}
	}
	s.templates.put(t.ID, t)
	return nil
}

func (s *Store) UpdateTemplate(id string, patch model.TemplatePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates.get(id)
	if !ok {
		return &model.NotFoundError{Kind: model.KindTemplate, ID: id}
	}
	if patch.Name != nil {
		if conflict, taken := s.templateByNameLocked(*patch.Name); taken && conflict.ID != id {
			return &model.DuplicateNameError{Kind: model.KindTemplate, Name: *patch.Name, ConflictID: conflict.ID}
		}
		t.Name = *patch.Name
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Content != nil {
		t.Content = *patch.Content
	}
	s.templates.put(id, t)
	return nil
}

func (s *Store) RemoveTemplate(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.templates.remove(id) {
		return &model.NotFoundError{Kind: model.KindTemplate, ID: id}
	}
	return nil
}
