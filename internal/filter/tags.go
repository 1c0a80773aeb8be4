package filter

import (
	"fmt"
	"strings"

	"repodesk/internal/model"
)

// Field is the entity attribute a Tag constrains.
type Field string

const (
	FieldDoc    Field = "doc"
	FieldClone  Field = "clone"
	FieldPrompt Field = "prompt"
	FieldGoal   Field = "goal"
)

// Tag is one structured filter from a closed set, written field:value.
type Tag struct {
	Field Field
	Value string
}

func (t Tag) String() string { return string(t.Field) + ":" + t.Value }

var (
	TagDocumented    = Tag{FieldDoc, "documented"}
	TagNotDocumented = Tag{FieldDoc, "not-documented"}
	TagClonePending  = Tag{FieldClone, "pending"}
	TagCloneSuccess  = Tag{FieldClone, "success"}
	TagCloneFailure  = Tag{FieldClone, "failure"}
	TagPromptSet     = Tag{FieldPrompt, "set"}
	TagPromptUnset   = Tag{FieldPrompt, "unset"}
	TagGoalSet       = Tag{FieldGoal, "set"}
	TagGoalUnset     = Tag{FieldGoal, "unset"}
)

var tagsByKind = map[model.Kind][]Tag{
	model.KindRepository: {
		TagDocumented, TagNotDocumented,
		TagClonePending, TagCloneSuccess, TagCloneFailure,
		TagPromptSet, TagPromptUnset,
	},
	model.KindDocumentation: {TagGoalSet, TagGoalUnset},
}

// TagsFor lists the tags a view of kind accepts.
func TagsFor(kind model.Kind) []Tag {
	return append([]Tag(nil), tagsByKind[kind]...)
}

func supported(kind model.Kind, t Tag) bool {
	for _, known := range tagsByKind[kind] {
		if known == t {
			return true
		}
	}
	return false
}

// ParseTag parses "field:value" against the closed tag set.
func ParseTag(raw string) (Tag, error) {
	field, value, ok := strings.Cut(strings.ToLower(strings.TrimSpace(raw)), ":")
	if !ok || field == "" || value == "" {
		return Tag{}, model.NewValidationError("tag", fmt.Sprintf("%q is not of the form field:value", raw))
	}
	t := Tag{Field: Field(field), Value: value}
	for _, tags := range tagsByKind {
		for _, known := range tags {
			if known == t {
				return t, nil
			}
		}
	}
	return Tag{}, model.NewValidationError("tag", fmt.Sprintf("unknown filter tag %q", raw))
}

func matchRepository(t Tag, r model.Repository) bool {
	switch t {
	case TagDocumented:
		return r.DocStatus == model.DocDocumented
	case TagNotDocumented:
		return r.DocStatus != model.DocDocumented
	case TagClonePending:
		return r.CloneStatus == model.ClonePending
	case TagCloneSuccess:
		return r.CloneStatus == model.CloneSuccess
	case TagCloneFailure:
		return r.CloneStatus == model.CloneFailure
	case TagPromptSet:
		return strings.TrimSpace(r.SpecificPrompt) != ""
	case TagPromptUnset:
		return strings.TrimSpace(r.SpecificPrompt) == ""
	}
	return false
}

func matchDocumentation(t Tag, d model.Documentation) bool {
	switch t {
	case TagGoalSet:
		return strings.TrimSpace(d.Goal) != ""
	case TagGoalUnset:
		return strings.TrimSpace(d.Goal) == ""
	}
	return false
}
