package store

import "repodesk/internal/model"

func (s *Store) Repository(id string) (model.Repository, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repos.get(id)
}

// Repositories returns a snapshot in store order.
func (s *Store) Repositories() []model.Repository {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repos.values()
}

func (s *Store) Documentation(id string) (model.Documentation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs.get(id)
}

func (s *Store) Documents() []model.Documentation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs.values()
}

// DocumentationFor returns the document owned by repoID.
func (s *Store) DocumentationFor(repoID string) (model.Documentation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docForLocked(repoID)
}

func (s *Store) Template(id string) (model.Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.templates.get(id)
}

func (s *Store) Templates() []model.Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.templates.values()
}

func (s *Store) TemplateByName(name string) (model.Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.templateByNameLocked(name)
}

func (s *Store) RepositoryByName(name string) (model.Repository, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repositoryByNameLocked(name)
}

// RepositoryByURL finds a row whose clone URL is equivalent to raw once both
// are normalised (SSH vs HTTPS, .git suffix, case).
func (s *Store) RepositoryByURL(raw string) (model.Repository, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := model.NormalizeURL(raw)
	for _, k := range s.repos.keys {
		if r := s.repos.items[k]; model.NormalizeURL(r.URL) == key {
			return r, true
		}
	}
	return model.Repository{}, false
}

// Count returns the number of entities of kind.
func (s *Store) Count(kind model.Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case model.KindRepository:
		return s.repos.size()
	case model.KindDocumentation:
		return s.docs.size()
	case model.KindTemplate:
		return s.templates.size()
	}
	return 0
}

func (s *Store) repositoryByNameLocked(name string) (model.Repository, bool) {
	for _, k := range s.repos.keys {
		if r := s.repos.items[k]; r.Name == name {
			return r, true
		}
	}
	return model.Repository{}, false
}

func (s *Store) templateByNameLocked(name string) (model.Template, bool) {
	for _, k := range s.templates.keys {
		if t := s.templates.items[k]; t.Name == name {
			return t, true
		}
	}
	return model.Template{}, false
}
