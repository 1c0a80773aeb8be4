package engine

import (
	"context"
	"fmt"
	"strings"

	"repodesk/internal/model"
)

// Document returns a document with its content. Listings omit content, so
// it is fetched once and kept in the store.
func (c *Console) Document(ctx context.Context, id string) (model.Documentation, error) {
	if d, ok := c.store.Documentation(id); ok && d.Content != "" {
		return d, nil
	}
	fetched, err := c.backend.GetDocumentation(ctx, id)
	if err != nil {
		return model.Documentation{}, fmt.Errorf("get documentation %s: %w", id, err)
	}
	if _, ok := c.store.Documentation(id); ok {
		content := fetched.Content
		if err := c.store.UpdateDocumentation(id, model.DocumentationPatch{Content: &content}); err != nil {
			return model.Documentation{}, err
		}
	} else if err := c.store.PutDocumentation(fetched); err != nil {
		return model.Documentation{}, err
	}
	d, _ := c.store.Documentation(id)
	return d, nil
}

// Search runs a full-text search over document titles and content on the
// service. Hits for documents not yet listed locally keep the service's
// repository name; listed ones take the local repository name.
func (c *Console) Search(ctx context.Context, query string) ([]model.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, model.NewValidationError("query", "search query cannot be empty")
	}
	hits, err := c.backend.SearchDocumentation(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search documentation: %w", err)
	}
	for i, h := range hits {
		if r, ok := c.store.Repository(h.RepoID); ok {
			hits[i].RepoName = r.Name
		}
	}
	c.logger.Debug("documentation search", "query", query, "hits", len(hits))
	return hits, nil
}

// CreateTemplate registers a prompt template. Names are unique.
func (c *Console) CreateTemplate(ctx context.Context, tpl model.Template) (model.Template, error) {
	tpl.Name = strings.TrimSpace(tpl.Name)
	if tpl.Name == "" {
		return model.Template{}, model.NewValidationError("name", "template name cannot be empty")
	}
	if strings.TrimSpace(tpl.Content) == "" {
		return model.Template{}, model.NewValidationError("content", "template content cannot be empty")
	}
	if existing, ok := c.store.TemplateByName(tpl.Name); ok {
		return model.Template{}, &model.DuplicateNameError{Kind: model.KindTemplate, Name: tpl.Name, ConflictID: existing.ID}
	}
	created, err := c.backend.CreateTemplate(ctx, tpl)
	if err != nil {
		return model.Template{}, err
	}
	if err := c.store.PutTemplate(created); err != nil {
		return model.Template{}, err
	}
	return created, nil
}

func (c *Console) UpdateTemplate(ctx context.Context, id string, patch model.TemplatePatch) (model.Template, error) {
	if _, ok := c.store.Template(id); !ok {
		return model.Template{}, &model.NotFoundError{Kind: model.KindTemplate, ID: id}
	}
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return model.Template{}, model.NewValidationError("name", "template name cannot be empty")
		}
		if existing, ok := c.store.TemplateByName(name); ok && existing.ID != id {
			return model.Template{}, &model.DuplicateNameError{Kind: model.KindTemplate, Name: name, ConflictID: existing.ID}
		}
		patch.Name = &name
	}
	updated, err := c.backend.UpdateTemplate(ctx, id, patch)
	if err != nil {
		return model.Template{}, err
	}
	if err := c.store.PutTemplate(updated); err != nil {
		return model.Template{}, err
	}
	return updated, nil
}

func (c *Console) DeleteTemplate(ctx context.Context, id string) error {
	if _, ok := c.store.Template(id); !ok {
		return &model.NotFoundError{Kind: model.KindTemplate, ID: id}
	}
	if err := c.backend.DeleteTemplate(ctx, id); err != nil {
		return err
	}
	return c.store.RemoveTemplate(id)
}
