package model

// Template is a reusable prompt text, applied to repositories by name.
type Template struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content"`
}

type TemplatePatch struct {
	Name        *string
	Description *string
	Content     *string
}

// Kind identifies one of the entity collections held by the store.
type Kind string

const (
	KindRepository    Kind = "repository"
	KindDocumentation Kind = "documentation"
	KindTemplate      Kind = "template"
)
