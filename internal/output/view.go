package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"repodesk/internal/model"
)

// View is a rendered list: the visible entities in order plus the ids
// currently selected among them.
type View struct {
	Kind     model.Kind            `json:"kind"`
	Repos    []model.Repository    `json:"repositories,omitempty"`
	Docs     []model.Documentation `json:"documentation,omitempty"`
	Tpls     []model.Template      `json:"templates,omitempty"`
	Selected []string              `json:"selected,omitempty"`
}

// RenderView writes v as an aligned table ("text") or indented JSON.
func RenderView(w io.Writer, v View, format string) error {
	if format == "json" || format == "ndjson" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	total := len(v.Repos) + len(v.Docs) + len(v.Tpls)
	if total == 0 {
		_, err := fmt.Fprintln(w, "No results.")
		return err
	}

	selected := make(map[string]bool, len(v.Selected))
	for _, id := range v.Selected {
		selected[id] = true
	}
	mark := func(id string) string {
		if selected[id] {
			return "*"
		}
		return " "
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	switch v.Kind {
	case model.KindRepository:
		fmt.Fprintln(tw, " \tID\tNAME\tCLONE\tDOCS\tVERSION\tURL")
		for _, r := range v.Repos {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				mark(r.ID), r.ID, r.Name, cloneLabel(r.CloneStatus), r.DocStatus, formatDate(r.VersionedAt), r.URL)
			if r.CloneStatus == model.CloneFailure && r.StatusMessage != "" {
				fmt.Fprintf(tw, " \t\t  %s\t\t\t\t\n", failLabel(r.StatusMessage))
			}
		}
	case model.KindDocumentation:
		fmt.Fprintln(tw, " \tID\tTITLE\tREPO\tSTATUS\tGOAL\tUPDATED")
		for _, d := range v.Docs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				mark(d.ID), d.ID, d.Title, d.RepoID, d.Status, truncate(d.Goal, 40), formatDate(d.UpdatedAt))
		}
	case model.KindTemplate:
		fmt.Fprintln(tw, " \tID\tNAME\tDESCRIPTION\tCONTENT")
		for _, t := range v.Tpls {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				mark(t.ID), t.ID, t.Name, truncate(t.Description, 40), truncate(t.Content, 50))
		}
	default:
		return fmt.Errorf("unsupported view kind: %s", v.Kind)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d shown, %d selected\n", total, len(v.Selected))
	return err
}

// RenderDocument writes a document's header, table of contents and content.
func RenderDocument(w io.Writer, d model.Documentation, format string) error {
	if format == "json" || format == "ndjson" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			model.Documentation
			TableOfContents string `json:"table_of_contents"`
		}{d, d.TableOfContents()})
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", bold(d.Title))
	fmt.Fprintf(&b, "Repository: %s\n", d.RepoURL)
	if d.Goal != "" {
		fmt.Fprintf(&b, "Goal: %s\n", d.Goal)
	}
	fmt.Fprintf(&b, "Updated: %s\n\n", formatDate(d.UpdatedAt))
	b.WriteString("Contents:\n")
	b.WriteString(d.TableOfContents())
	b.WriteString("\n\n")
	b.WriteString(d.Content)
	if !strings.HasSuffix(d.Content, "\n") {
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RenderSearchHits lists search hits with their snippets, best match first.
func RenderSearchHits(w io.Writer, hits []model.SearchHit, format string) error {
	if format == "json" || format == "ndjson" {
		if hits == nil {
			hits = []model.SearchHit{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}
	if len(hits) == 0 {
		_, err := fmt.Fprintln(w, "No matches.")
		return err
	}
	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "%s  %s (repo %s, %d matches)\n", h.ID, bold(h.Title), h.RepoName, h.MatchCount)
		if h.Snippet != "" {
			fmt.Fprintf(&b, "    %s\n", strings.Join(strings.Fields(h.Snippet), " "))
		}
	}
	fmt.Fprintf(&b, "%d documents matched\n", len(hits))
	_, err := io.WriteString(w, b.String())
	return err
}

func RenderSettings(w io.Writer, s model.GeneralSettings, format string) error {
	if format == "json" || format == "ndjson" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	interval := "-"
	if s.CheckInterval != nil {
		interval = fmt.Sprintf("%d minutes", *s.CheckInterval)
	}
	state := okLabel("enabled")
	if s.Disabled {
		state = warnLabel("disabled")
	}
	prompt := s.Prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = "(none)"
	}
	_, err := fmt.Fprintf(w, "Update checks: %s, every %s\nGeneral prompt:\n%s\n", state, interval, prompt)
	return err
}

func cloneLabel(s model.CloneStatus) string {
	switch s {
	case model.CloneSuccess:
		return okLabel(string(s))
	case model.ClonePending:
		return warnLabel(string(s))
	default:
		return failLabel(string(s))
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
