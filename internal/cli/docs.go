package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"repodesk/internal/bulk"
	"repodesk/internal/flags"
	"repodesk/internal/model"
	"repodesk/internal/output"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Browse and manage generated documentation",
}

var docsListCmd = &cobra.Command{
	Use:   "list [ID...]",
	Short: "List documentation, optionally marking a selection",
	Run: func(cmd *cobra.Command, args []string) {
		runSingle(cmd, func(s *session) error {
			return s.listView(cmd, model.KindDocumentation, args)
		})
	},
}

var docsShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print a document, its table of contents or one section",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		toc, _ := cmd.Flags().GetBool(flags.FlagTOC)
		section, _ := cmd.Flags().GetString(flags.FlagSection)
		runSingle(cmd, func(s *session) error {
			d, err := s.console.Document(s.ctx, args[0])
			if err != nil {
				return err
			}
			return showDocument(d, toc, section, s.cfg.Output.ConsoleFormat)
		})
	},
}

func showDocument(d model.Documentation, toc bool, section, format string) error {
	switch {
	case toc:
		_, err := fmt.Fprintln(os.Stdout, d.TableOfContents())
		return err
	case section != "":
		body, ok := d.Section(section)
		if !ok {
			return model.NewValidationError(flags.FlagSection, fmt.Sprintf("document %s has no section %q", d.ID, section))
		}
		_, err := fmt.Fprintln(os.Stdout, body)
		return err
	default:
		return output.RenderDocument(os.Stdout, d, format)
	}
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete [ID...]",
	Short: "Delete documentation in one batch",
	Run: func(cmd *cobra.Command, args []string) {
		runBulk(cmd, model.KindDocumentation, model.ActionDeleteDocumentation, args, nil)
	},
}

var docsRegenerateCmd = &cobra.Command{
	Use:   "regenerate [ID...]",
	Short: "Rebuild documentation from the current repository contents",
	Run: func(cmd *cobra.Command, args []string) {
		runBulk(cmd, model.KindDocumentation, model.ActionRegenerate, args, nil)
	},
}

var docsSearchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search document titles and content on the service",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSingle(cmd, func(s *session) error {
			hits, err := s.console.Search(s.ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return output.RenderSearchHits(os.Stdout, hits, s.cfg.Output.ConsoleFormat)
		})
	},
}

var docsGoalCmd = &cobra.Command{
	Use:   "goal [ID...]",
	Short: "Set the goal recorded on documentation",
	Run: func(cmd *cobra.Command, args []string) {
		runBulk(cmd, model.KindDocumentation, model.ActionEditGoal, args, func() (bulk.Payload, error) {
			return bulk.Payload{Goal: optionalString(cmd, flags.FlagGoal)}, nil
		})
	},
}

func init() {
	rootCmd.AddCommand(docsCmd)
	addViewFlags(docsCmd.PersistentFlags())

	for _, c := range []*cobra.Command{docsListCmd, docsDeleteCmd, docsGoalCmd, docsRegenerateCmd} {
		c.Flags().Bool(flags.FlagAll, false, "Select every document in the filtered view")
	}

	docsShowCmd.Flags().Bool(flags.FlagTOC, false, "Print only the table of contents")
	docsShowCmd.Flags().String(flags.FlagSection, "", "Print only the section under this heading")
	docsShowCmd.MarkFlagsMutuallyExclusive(flags.FlagTOC, flags.FlagSection)

	docsGoalCmd.Flags().String(flags.FlagGoal, "", "Goal text")

	docsCmd.AddCommand(docsListCmd, docsShowCmd, docsSearchCmd, docsDeleteCmd, docsGoalCmd, docsRegenerateCmd)
}
