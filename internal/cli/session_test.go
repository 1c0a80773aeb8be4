package cli

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/cobra"

	"repodesk/internal/engine"
	"repodesk/internal/flags"
	"repodesk/internal/model"
)

func TestResolveSelection(t *testing.T) {
	visible := func() ([]string, error) { return []string{"1", "3"}, nil }

	got, err := resolveSelection([]string{"2"}, false, visible)
	if err != nil || !reflect.DeepEqual(got, []string{"2"}) {
		t.Fatalf("explicit ids: got %v, %v", got, err)
	}

	got, err = resolveSelection(nil, true, visible)
	if err != nil || !reflect.DeepEqual(got, []string{"1", "3"}) {
		t.Fatalf("--all: got %v, %v", got, err)
	}

	_, err = resolveSelection([]string{"2"}, true, visible)
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for ids with --all, got %v", err)
	}
}

func TestOptionalString_OnlyWhenChanged(t *testing.T) {
	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().String(flags.FlagName, "", "")
	cmd.Flags().String(flags.FlagDescription, "", "")
	if err := cmd.Flags().Parse([]string{"--" + flags.FlagDescription, ""}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	if v := optionalString(cmd, flags.FlagName); v != nil {
		t.Fatalf("expected nil for unset flag, got %q", *v)
	}
	v := optionalString(cmd, flags.FlagDescription)
	if v == nil || *v != "" {
		t.Fatalf("expected explicit empty description, got %v", v)
	}
}

func TestReadContent(t *testing.T) {
	if got, err := readContent("inline"); err != nil || got != "inline" {
		t.Fatalf("inline: got %q, %v", got, err)
	}

	path := filepath.Join(t.TempDir(), "prompt.md")
	if err := os.WriteFile(path, []byte("# Focus on the API\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got, err := readContent("@" + path); err != nil || got != "# Focus on the API\n" {
		t.Fatalf("file: got %q, %v", got, err)
	}
	if _, err := readContent("@" + filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestExitCodeForError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", model.NewValidationError("name", "bad"), engine.ExitFatal},
		{"duplicate", &model.DuplicateNameError{Kind: model.KindTemplate, Name: "a", ConflictID: "1"}, engine.ExitFatal},
		{"not_found", &model.NotFoundError{Kind: model.KindTemplate, ID: "9"}, engine.ExitFatal},
		{"backend", errors.New("connection refused"), engine.ExitFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeForError(tt.err); got != tt.want {
				t.Fatalf("exitCodeForError = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCommandTree(t *testing.T) {
	want := map[string][]string{
		"repos":     {"clone", "delete", "edit", "generate", "list", "prompt"},
		"docs":      {"delete", "goal", "list", "regenerate", "search", "show"},
		"settings":  {"prompt", "set", "show"},
		"templates": {"create", "delete", "edit", "list"},
	}
	for group, subs := range want {
		cmd, _, err := rootCmd.Find([]string{group})
		if err != nil || cmd.Name() != group {
			t.Fatalf("missing command group %q: %v", group, err)
		}
		var got []string
		for _, c := range cmd.Commands() {
			got = append(got, c.Name())
		}
		if !reflect.DeepEqual(got, subs) {
			t.Fatalf("%s subcommands = %v, want %v", group, got, subs)
		}
	}
}
