package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"repodesk/internal/flags"
	"repodesk/internal/model"
	"repodesk/internal/output"
)

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Aliases: []string{"tpl"},
	Short:   "Manage prompt templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompt templates",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runSingle(cmd, func(s *session) error {
			return s.listView(cmd, model.KindTemplate, nil)
		})
	},
}

var templatesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a prompt template",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runSingle(cmd, func(s *session) error {
			tpl, err := templateFromFlags(cmd)
			if err != nil {
				return err
			}
			created, err := s.console.CreateTemplate(s.ctx, tpl)
			if err != nil {
				return err
			}
			return printTemplate(created, "created", s.cfg.Output.ConsoleFormat)
		})
	},
}

var templatesEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Change a prompt template's name, description or content",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSingle(cmd, func(s *session) error {
			patch := model.TemplatePatch{
				Name:        optionalString(cmd, flags.FlagName),
				Description: optionalString(cmd, flags.FlagDescription),
				Content:     optionalString(cmd, flags.FlagContent),
			}
			if patch.Name == nil && patch.Description == nil && patch.Content == nil {
				return model.NewValidationError("template", "nothing to change: pass --name, --description or --content")
			}
			if patch.Content != nil {
				content, err := readContent(*patch.Content)
				if err != nil {
					return model.NewValidationError(flags.FlagContent, err.Error())
				}
				patch.Content = &content
			}
			updated, err := s.console.UpdateTemplate(s.ctx, args[0], patch)
			if err != nil {
				return err
			}
			return printTemplate(updated, "updated", s.cfg.Output.ConsoleFormat)
		})
	},
}

var templatesDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a prompt template",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSingle(cmd, func(s *session) error {
			if err := s.console.DeleteTemplate(s.ctx, args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(os.Stdout, "template %s deleted\n", args[0])
			return err
		})
	},
}

func templateFromFlags(cmd *cobra.Command) (model.Template, error) {
	name, _ := cmd.Flags().GetString(flags.FlagName)
	description, _ := cmd.Flags().GetString(flags.FlagDescription)
	raw, _ := cmd.Flags().GetString(flags.FlagContent)
	content, err := readContent(raw)
	if err != nil {
		return model.Template{}, model.NewValidationError(flags.FlagContent, err.Error())
	}
	return model.Template{Name: name, Description: description, Content: content}, nil
}

func printTemplate(t model.Template, verb, format string) error {
	if format != "text" {
		return output.RenderView(os.Stdout, output.View{Kind: model.KindTemplate, Tpls: []model.Template{t}}, format)
	}
	_, err := fmt.Fprintf(os.Stdout, "template %q %s (id %s)\n", t.Name, verb, t.ID)
	return err
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	addViewFlags(templatesCmd.PersistentFlags())

	for _, c := range []*cobra.Command{templatesCreateCmd, templatesEditCmd} {
		c.Flags().String(flags.FlagName, "", "Template name (unique)")
		c.Flags().String(flags.FlagDescription, "", "Template description")
		c.Flags().String(flags.FlagContent, "", "Template prompt text (@path reads a file)")
	}

	templatesCmd.AddCommand(templatesListCmd, templatesCreateCmd, templatesEditCmd, templatesDeleteCmd)
}
