package model

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// SearchHit is one document matching a full-text search.
type SearchHit struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	RepoID     string    `json:"repo_id"`
	RepoName   string    `json:"repo_name,omitempty"`
	Snippet    string    `json:"snippet"`
	MatchCount int       `json:"match_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

const (
	snippetContext = 150
	snippetPreview = 200
)

// MatchDocument scores a document against query, case-insensitively. The
// count is the number of occurrences in content plus one for a title match.
// The snippet surrounds the first content match, or previews the content
// when only the title matched.
func MatchDocument(title, content, query string) (count int, snippet string, ok bool) {
	needle := strings.Map(unicode.ToLower, strings.TrimSpace(query))
	if needle == "" {
		return 0, "", false
	}
	body := strings.Map(unicode.ToLower, content)
	count = strings.Count(body, needle)
	titleHit := strings.Contains(strings.Map(unicode.ToLower, title), needle)
	if titleHit {
		count++
	}
	if count == 0 {
		return 0, "", false
	}

	runes := []rune(content)
	if at := strings.Index(body, needle); at >= 0 {
		start := utf8.RuneCountInString(body[:at])
		end := start + utf8.RuneCountInString(needle)
		from, to := max(0, start-snippetContext), min(len(runes), end+snippetContext)
		snippet = strings.TrimSpace(string(runes[from:to]))
		if from > 0 {
			snippet = "..." + snippet
		}
		if to < len(runes) {
			snippet += "..."
		}
		return count, snippet, true
	}
	if len(runes) > snippetPreview {
		return count, string(runes[:snippetPreview]) + "...", true
	}
	return count, content, true
}
