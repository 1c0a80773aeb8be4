package model

import (
	"regexp"
	"strings"
	"time"
)

// DocStatusReady is the status the backend reports for generated documents.
const DocStatusReady = "ready"

// Documentation is a generated document owned by exactly one repository.
type Documentation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	RepoID    string    `json:"repo_id"`
	RepoURL   string    `json:"repo_url,omitempty"`
	Status    string    `json:"status"`
	Goal      string    `json:"goal,omitempty"`
	Content   string    `json:"content,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DocumentationPatch struct {
	Goal    *string
	Content *string
}

// Heading is an addressable section of a document's markdown content.
type Heading struct {
	Level int    `json:"level"`
	Title string `json:"title"`
}

var headingPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// Headings returns the markdown headings of the content in document order.
func (d Documentation) Headings() []Heading {
	matches := headingPattern.FindAllStringSubmatch(d.Content, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Heading, 0, len(matches))
	for _, m := range matches {
		out = append(out, Heading{Level: len(m[1]), Title: strings.TrimSpace(m[2])})
	}
	return out
}

// TableOfContents renders Headings as an indented bullet list.
func (d Documentation) TableOfContents() string {
	headings := d.Headings()
	if len(headings) == 0 {
		return "No headings found"
	}
	lines := make([]string, 0, len(headings))
	for _, h := range headings {
		lines = append(lines, strings.Repeat("  ", h.Level-1)+"- "+h.Title)
	}
	return strings.Join(lines, "\n")
}

// Section returns the content below the first heading whose title matches
// (case-insensitively) up to the next heading of the same or a higher level.
func (d Documentation) Section(title string) (string, bool) {
	locs := headingPattern.FindAllStringSubmatchIndex(d.Content, -1)
	for i, loc := range locs {
		level := loc[3] - loc[2]
		if !strings.EqualFold(strings.TrimSpace(d.Content[loc[4]:loc[5]]), strings.TrimSpace(title)) {
			continue
		}
		end := len(d.Content)
		for _, next := range locs[i+1:] {
			if next[3]-next[2] <= level {
				end = next[0]
				break
			}
		}
		return strings.TrimSpace(d.Content[loc[1]:end]), true
	}
	return "", false
}
