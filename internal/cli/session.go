package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"repodesk/internal/bulk"
	"repodesk/internal/config"
	"repodesk/internal/engine"
	"repodesk/internal/flags"
	"repodesk/internal/model"
	"repodesk/internal/output"
)

// session is one command invocation: validated config, a loaded console and
// the output sinks it reports into.
type session struct {
	ctx     context.Context
	cfg     *config.Config
	console *engine.Console
	out     *output.Manager
	cancel  context.CancelFunc
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(engine.ExitFatal)
}

func loadConfig(cmd *cobra.Command) *config.Config {
	c, err := config.Load(configPath, cmd.Flags())
	if err == nil {
		err = c.Validate()
	}
	if err != nil {
		fatalf("%v", err)
	}
	return c
}

// openSession loads config, builds the console and fetches the lists. Any
// failure here exits 3: nothing has been changed yet.
func openSession(cmd *cobra.Command) *session {
	c := loadConfig(cmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	ctx, cancel := context.WithTimeout(ctx, c.Runtime.Timeout)
	s := &session{ctx: ctx, cfg: c, cancel: func() { cancel(); stop() }}

	console, out, err := engine.FromConfig(ctx, c, os.Stderr)
	if err != nil {
		s.cancel()
		fatalf("%v", err)
	}
	s.console, s.out = console, out

	if err := console.Load(ctx); err != nil {
		s.close()
		fatalf("failed to load from %s: %s", c.Backend.URL, bulk.PresentError(err, c.Runtime.Verbose))
	}
	return s
}

func (s *session) close() {
	if err := s.out.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: closing output: %v\n", err)
	}
	s.cancel()
}

func (s *session) exit(code int) {
	s.close()
	os.Exit(code)
}

// runAction runs a bulk action and exits with the combined code of the
// phases it returns. An error means the action never ran.
func runAction(cmd *cobra.Command, run func(s *session) ([]model.AggregateResult, error)) {
	s := openSession(cmd)
	s.console.Begin(cmd.CommandPath())
	aggs, err := run(s)
	if err != nil {
		s.close()
		fatalf("%s", bulk.PresentError(err, s.cfg.Runtime.Verbose))
	}
	s.exit(s.console.Finish(aggs...))
}

// runSingle runs an operation on one entity. Rejected input exits 3 and a
// failed backend call exits 1.
func runSingle(cmd *cobra.Command, run func(s *session) error) {
	s := openSession(cmd)
	err := run(s)
	if err == nil {
		s.exit(engine.ExitOK)
	}
	fmt.Fprintf(os.Stderr, "Error: %s\n", bulk.PresentError(err, s.cfg.Runtime.Verbose))
	s.exit(exitCodeForError(err))
}

func exitCodeForError(err error) int {
	var ve *model.ValidationError
	var dup *model.DuplicateNameError
	var nf *model.NotFoundError
	if errors.As(err, &ve) || errors.As(err, &dup) || errors.As(err, &nf) {
		return engine.ExitFatal
	}
	return engine.ExitFailed
}

// resolveSelection turns positional ids and --all into the ids an action
// applies to. Explicit ids are used as given; --all takes every entity in
// the filtered view.
func resolveSelection(ids []string, all bool, visible func() ([]string, error)) ([]string, error) {
	if all && len(ids) > 0 {
		return nil, model.NewValidationError("selection", "pass ids or --all, not both")
	}
	if !all {
		return ids, nil
	}
	return visible()
}

func (s *session) selection(cmd *cobra.Command, kind model.Kind, ids []string) ([]string, error) {
	all, _ := cmd.Flags().GetBool(flags.FlagAll)
	return resolveSelection(ids, all, func() ([]string, error) {
		p, err := engine.PredicatesFromConfig(s.cfg.View)
		if err != nil {
			return nil, err
		}
		v, err := s.console.View(kind, p, engine.Selection{All: true})
		if err != nil {
			return nil, err
		}
		return v.Selected, nil
	})
}

// listView renders the filtered view of kind, marking ids as selected.
func (s *session) listView(cmd *cobra.Command, kind model.Kind, ids []string) error {
	all, _ := cmd.Flags().GetBool(flags.FlagAll)
	p, err := engine.PredicatesFromConfig(s.cfg.View)
	if err != nil {
		return err
	}
	v, err := s.console.View(kind, p, engine.Selection{All: all, IDs: ids})
	if err != nil {
		return err
	}
	return output.RenderView(os.Stdout, v, s.cfg.Output.ConsoleFormat)
}

// optionalString returns the flag's value only when the user set it, so an
// explicit empty value can be told apart from an omitted flag.
func optionalString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

// readContent expands "@path" to the contents of the file at path.
func readContent(raw string) (string, error) {
	path, ok := strings.CutPrefix(raw, "@")
	if !ok {
		return raw, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(b), nil
}
