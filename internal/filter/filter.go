// Package filter derives the visible working set of a list view and holds
// the selection scoped to it.
package filter

import (
	"fmt"
	"slices"
	"strings"

	"repodesk/internal/model"
)

// Engine holds the predicates and selection of one list view. It is not safe
// for concurrent use; the Source it reads from is.
type Engine struct {
	kind     model.Kind
	src      Source
	preds    Predicates
	selected map[string]struct{}
}

func New(kind model.Kind, src Source) *Engine {
	return &Engine{kind: kind, src: src, selected: map[string]struct{}{}}
}

func (e *Engine) Kind() model.Kind { return e.kind }

// Predicates returns a copy of the active predicates.
func (e *Engine) Predicates() Predicates {
	return Predicates{
		Search:  e.preds.Search,
		Tags:    slices.Clone(e.preds.Tags),
		Include: slices.Clone(e.preds.Include),
		Exclude: slices.Clone(e.preds.Exclude),
	}
}

func (e *Engine) SetSearchText(text string) {
	e.preds.Search = text
	e.prune()
}

// AddFilterTag activates t. Adding an active tag is a no-op.
func (e *Engine) AddFilterTag(t Tag) error {
	if !supported(e.kind, t) {
		return model.NewValidationError("tag", fmt.Sprintf("tag %s does not apply to %s views", t, e.kind))
	}
	if slices.Contains(e.preds.Tags, t) {
		return nil
	}
	e.preds.Tags = append(e.preds.Tags, t)
	e.prune()
	return nil
}

func (e *Engine) RemoveFilterTag(t Tag) {
	if i := slices.Index(e.preds.Tags, t); i >= 0 {
		e.preds.Tags = slices.Delete(e.preds.Tags, i, i+1)
	}
}

// ClearAll drops every tag and glob; search text stays.
func (e *Engine) ClearAll() {
	e.preds.Tags = nil
	e.preds.Include = nil
	e.preds.Exclude = nil
}

// SetInclude keeps only entities matching at least one glob.
func (e *Engine) SetInclude(patterns []string) error {
	clean, err := cleanPatterns(patterns)
	if err != nil {
		return err
	}
	e.preds.Include = clean
	e.prune()
	return nil
}

// SetExclude drops entities matching any glob.
func (e *Engine) SetExclude(patterns []string) error {
	clean, err := cleanPatterns(patterns)
	if err != nil {
		return err
	}
	e.preds.Exclude = clean
	e.prune()
	return nil
}

func cleanPatterns(patterns []string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := pathMatchCheck(p); err != nil {
			return nil, model.NewValidationError("pattern", fmt.Sprintf("invalid glob %q: %v", p, err))
		}
		out = append(out, p)
	}
	return out, nil
}

// DeriveView returns the ids currently visible, in store order. An empty
// slice means the view has no results.
func (e *Engine) DeriveView() []string {
	return Derive(e.src, e.kind, e.preds)
}

func (e *Engine) HasResults() bool {
	return len(e.DeriveView()) > 0
}

// SelectAll selects exactly the current view.
func (e *Engine) SelectAll() {
	e.selected = map[string]struct{}{}
	for _, id := range e.DeriveView() {
		e.selected[id] = struct{}{}
	}
}

// Toggle flips id's selection and reports whether it is now selected. Ids
// outside the view cannot be selected.
func (e *Engine) Toggle(id string) bool {
	if _, ok := e.selected[id]; ok {
		delete(e.selected, id)
		return false
	}
	if !slices.Contains(e.DeriveView(), id) {
		return false
	}
	e.selected[id] = struct{}{}
	return true
}

func (e *Engine) DeselectAll() {
	e.selected = map[string]struct{}{}
}

// Selected returns the selection intersected with the current view, in view
// order.
func (e *Engine) Selected() []string {
	e.prune()
	out := []string{}
	for _, id := range e.DeriveView() {
		if _, ok := e.selected[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// prune drops selected ids that left the view. Widening a view never
// re-selects anything.
func (e *Engine) prune() {
	if len(e.selected) == 0 {
		return
	}
	visible := map[string]struct{}{}
	for _, id := range e.DeriveView() {
		visible[id] = struct{}{}
	}
	for id := range e.selected {
		if _, ok := visible[id]; !ok {
			delete(e.selected, id)
		}
	}
}
