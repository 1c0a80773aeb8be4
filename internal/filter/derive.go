package filter

import (
	"net/url"
	"path"
	"strings"

	"repodesk/internal/model"
)

// Source is the read side of the entity store a view derives from.
type Source interface {
	Repositories() []model.Repository
	Documents() []model.Documentation
	Templates() []model.Template
}

// Predicates is everything that narrows a view. All active predicates must
// hold, and tags on the same field are combined conjunctively too.
type Predicates struct {
	Search  string
	Tags    []Tag
	Include []string
	Exclude []string
}

// Derive returns the ids of kind that satisfy p, in store order. Search text
// matches the repository or template name and the document title only. It
// reads nothing but its arguments.
func Derive(src Source, kind model.Kind, p Predicates) []string {
	search := strings.ToLower(strings.TrimSpace(p.Search))
	out := []string{}

	keep := func(id, title string, names [2]string, tagMatch func(Tag) bool) {
		if search != "" && !strings.Contains(strings.ToLower(title), search) {
			return
		}
		for _, t := range p.Tags {
			if !tagMatch(t) {
				return
			}
		}
		if len(p.Include) > 0 && !matchesAnyPattern(p.Include, names[0], names[1]) {
			return
		}
		if len(p.Exclude) > 0 && matchesAnyPattern(p.Exclude, names[0], names[1]) {
			return
		}
		out = append(out, id)
	}

	switch kind {
	case model.KindRepository:
		for _, r := range src.Repositories() {
			keep(r.ID,
				r.Name,
				[2]string{fullName(r), r.Name},
				func(t Tag) bool { return matchRepository(t, r) })
		}
	case model.KindDocumentation:
		for _, d := range src.Documents() {
			keep(d.ID,
				d.Title,
				[2]string{d.Title, d.Title},
				func(t Tag) bool { return matchDocumentation(t, d) })
		}
	case model.KindTemplate:
		for _, t := range src.Templates() {
			keep(t.ID,
				t.Name,
				[2]string{t.Name, t.Name},
				func(Tag) bool { return false })
		}
	}
	return out
}

// fullName is owner/name taken from the clone URL path.
func fullName(r model.Repository) string {
	u, err := url.Parse(model.DisplayURL(r.URL))
	if err != nil || u.Path == "" {
		return r.Name
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return r.Name
	}
	return parts[len(parts)-2] + "/" + strings.TrimSuffix(parts[len(parts)-1], ".git")
}

func matchesAnyPattern(patterns []string, fullName, name string) bool {
	for _, p := range patterns {
		if matchPattern(p, fullName, name) {
			return true
		}
	}
	return false
}

// matchPattern matches against owner/name when the pattern has an owner
// component, otherwise against the bare name so "*-service" works.
func matchPattern(pattern, fullName, name string) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return false
	}
	if strings.Contains(pattern, "/") {
		matched, _ := path.Match(pattern, fullName)
		return matched
	}
	matched, _ := path.Match(pattern, name)
	return matched
}

func pathMatchCheck(pattern string) (bool, error) {
	return path.Match(pattern, "")
}
