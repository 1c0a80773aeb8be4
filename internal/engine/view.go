package engine

import (
	"repodesk/internal/config"
	"repodesk/internal/filter"
	"repodesk/internal/model"
	"repodesk/internal/output"
)

// Selection narrows a view to ids the operator picked. All selects every
// visible entity; IDs outside the view are ignored.
type Selection struct {
	All bool
	IDs []string
}

// PredicatesFromConfig parses the configured view filters.
func PredicatesFromConfig(v config.View) (filter.Predicates, error) {
	p := filter.Predicates{
		Search:  v.Search,
		Include: v.Include,
		Exclude: v.Exclude,
	}
	for _, raw := range v.Tags {
		t, err := filter.ParseTag(raw)
		if err != nil {
			return filter.Predicates{}, err
		}
		p.Tags = append(p.Tags, t)
	}
	return p, nil
}

// Filter returns a filter engine over the store with p applied.
func (c *Console) Filter(kind model.Kind, p filter.Predicates) (*filter.Engine, error) {
	e := filter.New(kind, c.store)
	e.SetSearchText(p.Search)
	for _, t := range p.Tags {
		if err := e.AddFilterTag(t); err != nil {
			return nil, err
		}
	}
	if err := e.SetInclude(p.Include); err != nil {
		return nil, err
	}
	if err := e.SetExclude(p.Exclude); err != nil {
		return nil, err
	}
	return e, nil
}

// View derives the visible entities of kind, in store order, with sel
// applied.
func (c *Console) View(kind model.Kind, p filter.Predicates, sel Selection) (output.View, error) {
	e, err := c.Filter(kind, p)
	if err != nil {
		return output.View{}, err
	}
	if sel.All {
		e.SelectAll()
	}
	// Explicit ids only ever add to the selection.
	selected := map[string]bool{}
	for _, id := range e.Selected() {
		selected[id] = true
	}
	for _, id := range sel.IDs {
		if !selected[id] && e.Toggle(id) {
			selected[id] = true
		}
	}

	v := output.View{Kind: kind, Selected: e.Selected()}
	for _, id := range e.DeriveView() {
		switch kind {
		case model.KindRepository:
			if r, ok := c.store.Repository(id); ok {
				v.Repos = append(v.Repos, r)
			}
		case model.KindDocumentation:
			if d, ok := c.store.Documentation(id); ok {
				v.Docs = append(v.Docs, d)
			}
		case model.KindTemplate:
			if t, ok := c.store.Template(id); ok {
				v.Tpls = append(v.Tpls, t)
			}
		}
	}
	return v, nil
}
