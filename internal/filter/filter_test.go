package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repodesk/internal/model"
	"repodesk/internal/store"
)

func fixture(t *testing.T) *store.Store {
	t.Helper()
	s := store.New()
	s.LoadRepositories([]model.Repository{
		{ID: "1", Name: "bias-bench", URL: "https://github.com/McGill-NLP/bias-bench.git", Description: "Bias benchmarks"},
		{ID: "2", Name: "aci-bench", URL: "https://github.com/wyim/aci-bench.git", SpecificPrompt: "Focus on datasets"},
		{ID: "3", Name: "auth-service", URL: "git@github.com:acme/auth-service.git"},
		{ID: "4", Name: "billing-service", URL: "https://gitlab.com/acme/billing-service"},
	})
	require.True(t, s.InsertOptimistic(model.Repository{ID: model.ProvisionalID("t1"), Name: "widgets", URL: "https://github.com/acme/widgets.git"}))
	require.NoError(t, s.PutDocumentation(model.Documentation{ID: "d1", RepoID: "1", Goal: "onboarding"}))
	require.NoError(t, s.PutDocumentation(model.Documentation{ID: "d3", RepoID: "3"}))
	require.NoError(t, s.PutTemplate(model.Template{ID: "t1", Name: "api", Description: "API focus", Content: "Describe every endpoint"}))
	require.NoError(t, s.PutTemplate(model.Template{ID: "t2", Name: "security", Content: "Describe auth"}))
	return s
}

func TestDerive_RepositoryPredicates(t *testing.T) {
	s := fixture(t)
	tests := []struct {
		name  string
		preds Predicates
		want  []string
	}{
		{name: "no predicates keeps store order", preds: Predicates{}, want: []string{"1", "2", "3", "4", "task:t1"}},
		{name: "search is case-insensitive over name", preds: Predicates{Search: "BENCH"}, want: []string{"1", "2"}},
		{name: "search ignores description", preds: Predicates{Search: "benchmarks"}, want: []string{}},
		{name: "search ignores url", preds: Predicates{Search: "github"}, want: []string{}},
		{name: "documented", preds: Predicates{Tags: []Tag{TagDocumented}}, want: []string{"1", "3"}},
		{name: "not documented", preds: Predicates{Tags: []Tag{TagNotDocumented}}, want: []string{"2", "4", "task:t1"}},
		{name: "pending clones", preds: Predicates{Tags: []Tag{TagClonePending}}, want: []string{"task:t1"}},
		{name: "prompt set", preds: Predicates{Tags: []Tag{TagPromptSet}}, want: []string{"2"}},
		{name: "tags and search are conjunctive", preds: Predicates{Search: "service", Tags: []Tag{TagDocumented}}, want: []string{"3"}},
		{name: "same-field tags are conjunctive", preds: Predicates{Tags: []Tag{TagDocumented, TagNotDocumented}}, want: []string{}},
		{name: "include by name glob", preds: Predicates{Include: []string{"*-service"}}, want: []string{"3", "4"}},
		{name: "include by owner glob", preds: Predicates{Include: []string{"acme/*"}}, want: []string{"3", "4", "task:t1"}},
		{name: "exclude", preds: Predicates{Exclude: []string{"*-bench"}}, want: []string{"3", "4", "task:t1"}},
		{name: "no results", preds: Predicates{Search: "nothing-matches"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(s, model.KindRepository, tt.preds))
		})
	}
}

func TestDerive_DocumentationAndTemplates(t *testing.T) {
	s := fixture(t)
	assert.Equal(t, []string{"d1"}, Derive(s, model.KindDocumentation, Predicates{Tags: []Tag{TagGoalSet}}))
	assert.Equal(t, []string{"d3"}, Derive(s, model.KindDocumentation, Predicates{Tags: []Tag{TagGoalUnset}}))
	assert.Equal(t, []string{"d3"}, Derive(s, model.KindDocumentation, Predicates{Search: "auth"}))
	assert.Equal(t, []string{}, Derive(s, model.KindDocumentation, Predicates{Search: "onboarding"}), "goal text is not searched")
	assert.Equal(t, []string{}, Derive(s, model.KindTemplate, Predicates{Search: "describe"}), "template content is not searched")
	assert.Equal(t, []string{}, Derive(s, model.KindTemplate, Predicates{Search: "api focus"}), "template description is not searched")
	assert.Equal(t, []string{"t2"}, Derive(s, model.KindTemplate, Predicates{Search: "SECUR"}))
}

func TestDeriveView_IsPureAndTagRoundTrips(t *testing.T) {
	s := fixture(t)
	e := New(model.KindRepository, s)
	e.SetSearchText("e")
	original := e.DeriveView()
	assert.Equal(t, original, e.DeriveView())

	require.NoError(t, e.AddFilterTag(TagDocumented))
	narrowed := e.DeriveView()
	assert.NotEqual(t, original, narrowed)

	e.RemoveFilterTag(TagDocumented)
	assert.Equal(t, original, e.DeriveView())
}

func TestSelectAll_SelectsExactlyTheView(t *testing.T) {
	s := fixture(t)
	e := New(model.KindRepository, s)
	require.NoError(t, e.AddFilterTag(TagNotDocumented))

	e.SelectAll()

	assert.Equal(t, e.DeriveView(), e.Selected())
}

func TestNarrowingShrinksSelectionToIntersection(t *testing.T) {
	s := fixture(t)
	e := New(model.KindRepository, s)
	e.SelectAll()
	require.Len(t, e.Selected(), 5)

	e.SetSearchText("bench")
	assert.Equal(t, []string{"1", "2"}, e.Selected())

	require.NoError(t, e.AddFilterTag(TagDocumented))
	assert.Equal(t, []string{"1"}, e.Selected())

	// Widening again never resurrects pruned ids.
	e.ClearAll()
	e.SetSearchText("")
	assert.Equal(t, []string{"1"}, e.Selected())
	for _, id := range e.Selected() {
		assert.Contains(t, e.DeriveView(), id)
	}
}

func TestSelected_DropsIdsRemovedFromStore(t *testing.T) {
	s := fixture(t)
	e := New(model.KindRepository, s)
	e.SelectAll()

	require.NoError(t, s.RemoveRepository("2"))

	assert.NotContains(t, e.Selected(), "2")
	assert.Len(t, e.Selected(), 4)
}

func TestToggle(t *testing.T) {
	s := fixture(t)
	e := New(model.KindRepository, s)
	e.SetSearchText("bench")

	assert.True(t, e.Toggle("1"))
	assert.False(t, e.Toggle("3"), "ids outside the view cannot be selected")
	assert.Equal(t, []string{"1"}, e.Selected())
	assert.False(t, e.Toggle("1"))
	assert.Empty(t, e.Selected())

	e.SelectAll()
	e.DeselectAll()
	assert.Empty(t, e.Selected())
}

func TestHasResults(t *testing.T) {
	s := fixture(t)
	e := New(model.KindRepository, s)
	assert.True(t, e.HasResults())
	e.SetSearchText("zzz")
	assert.False(t, e.HasResults())
	assert.Equal(t, []string{}, e.DeriveView())
}

func TestClearAll_KeepsSearch(t *testing.T) {
	s := fixture(t)
	e := New(model.KindRepository, s)
	e.SetSearchText("service")
	require.NoError(t, e.AddFilterTag(TagDocumented))
	require.NoError(t, e.SetExclude([]string{"auth-*"}))

	e.ClearAll()

	p := e.Predicates()
	assert.Equal(t, "service", p.Search)
	assert.Empty(t, p.Tags)
	assert.Empty(t, p.Exclude)
	assert.Equal(t, []string{"3", "4"}, e.DeriveView())
}

func TestAddFilterTag_RejectsTagsForOtherKinds(t *testing.T) {
	e := New(model.KindDocumentation, fixture(t))
	assert.ErrorIs(t, e.AddFilterTag(TagClonePending), model.ErrValidation)
	assert.NoError(t, e.AddFilterTag(TagGoalSet))
	assert.NoError(t, e.AddFilterTag(TagGoalSet))
	assert.Len(t, e.Predicates().Tags, 1)
}

func TestSetInclude_RejectsBadGlob(t *testing.T) {
	e := New(model.KindRepository, fixture(t))
	assert.ErrorIs(t, e.SetInclude([]string{"[unclosed"}), model.ErrValidation)
}

func TestParseTag(t *testing.T) {
	tests := []struct {
		raw     string
		want    Tag
		wantErr bool
	}{
		{raw: "doc:documented", want: TagDocumented},
		{raw: " Clone:Failure ", want: TagCloneFailure},
		{raw: "goal:unset", want: TagGoalUnset},
		{raw: "doc:maybe", wantErr: true},
		{raw: "documented", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseTag(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, model.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
