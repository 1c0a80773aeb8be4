package cli

import (
	"github.com/spf13/cobra"

	"repodesk/internal/bulk"
	"repodesk/internal/flags"
	"repodesk/internal/model"
)

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "List, clone and act on repositories",
}

var reposListCmd = &cobra.Command{
	Use:   "list [ID...]",
	Short: "List repositories, optionally marking a selection",
	Long: `List repositories in the order the service returned them, narrowed by
--search, --tag, --include and --exclude. IDs given as arguments (or --all)
are marked with "*" when they are visible.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSingle(cmd, func(s *session) error {
			return s.listView(cmd, model.KindRepository, args)
		})
	},
}

var reposCloneCmd = &cobra.Command{
	Use:   "clone URL...",
	Short: "Clone source repositories into the service",
	Long: `Submit one clone job per URL and wait for all of them.

URLs must be http(s) or SSH (git@host:owner/repo.git). A URL already listed,
or listed twice in one invocation, is rejected before anything is submitted.
Clones still running after --poll-timeout are reported as pending and the
command exits 2.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAction(cmd, func(s *session) ([]model.AggregateResult, error) {
			agg, err := s.console.Clone(s.ctx, args)
			return []model.AggregateResult{agg}, err
		})
	},
}

var reposEditCmd = &cobra.Command{
	Use:   "edit [ID...]",
	Short: "Rename repositories or change their description",
	Long: `Apply --name and/or --description to the selected repositories.

Renames are applied one at a time; the first duplicate name stops the run and
the remaining repositories are reported as skipped.`,
	Run: func(cmd *cobra.Command, args []string) {
		runBulk(cmd, model.KindRepository, model.ActionEdit, args, func() (bulk.Payload, error) {
			return bulk.Payload{
				Name:        optionalString(cmd, flags.FlagName),
				Description: optionalString(cmd, flags.FlagDescription),
			}, nil
		})
	},
}

var reposDeleteCmd = &cobra.Command{
	Use:   "delete [ID...]",
	Short: "Delete repositories and their documentation",
	Run: func(cmd *cobra.Command, args []string) {
		runBulk(cmd, model.KindRepository, model.ActionDelete, args, nil)
	},
}

var reposGenerateCmd = &cobra.Command{
	Use:   "generate [ID...]",
	Short: "Generate documentation for cloned repositories",
	Long: `Ask the service to generate documentation for the selected repositories in
one batch. Repositories that have not finished cloning fail locally.`,
	Run: func(cmd *cobra.Command, args []string) {
		runBulk(cmd, model.KindRepository, model.ActionGenerateDocumentation, args, nil)
	},
}

var reposPromptCmd = &cobra.Command{
	Use:   "prompt [ID...]",
	Short: "Set the repository-specific prompt and regenerate documentation",
	Long: `Save a repository-specific prompt, taken from --template (by name) or given
inline with --prompt, for each selected repository. The service regenerates
the documentation in the background; pass --wait to poll those jobs and
report their outcome as well.`,
	Run: func(cmd *cobra.Command, args []string) {
		wait, _ := cmd.Flags().GetBool(flags.FlagWait)
		runAction(cmd, func(s *session) ([]model.AggregateResult, error) {
			ids, err := s.selection(cmd, model.KindRepository, args)
			if err != nil {
				return nil, err
			}
			template, _ := cmd.Flags().GetString(flags.FlagTemplate)
			payload := bulk.Payload{Template: template, Prompt: optionalString(cmd, flags.FlagPrompt)}
			if payload.Prompt != nil {
				content, err := readContent(*payload.Prompt)
				if err != nil {
					return nil, model.NewValidationError(flags.FlagPrompt, err.Error())
				}
				payload.Prompt = &content
			}
			agg, err := s.console.Apply(s.ctx, model.ActionEditPrompt, ids, payload)
			if err != nil || !wait || len(agg.Pending) == 0 {
				return []model.AggregateResult{agg}, err
			}
			settled := s.console.Settle(s.ctx, model.ActionEditPrompt, agg.Pending)
			return []model.AggregateResult{agg, settled}, nil
		})
	},
}

// runBulk resolves the selection for kind and applies action to it.
func runBulk(cmd *cobra.Command, kind model.Kind, action model.Action, args []string, payload func() (bulk.Payload, error)) {
	runAction(cmd, func(s *session) ([]model.AggregateResult, error) {
		ids, err := s.selection(cmd, kind, args)
		if err != nil {
			return nil, err
		}
		var p bulk.Payload
		if payload != nil {
			if p, err = payload(); err != nil {
				return nil, err
			}
		}
		agg, err := s.console.Apply(s.ctx, action, ids, p)
		return []model.AggregateResult{agg}, err
	})
}

func init() {
	rootCmd.AddCommand(reposCmd)
	addViewFlags(reposCmd.PersistentFlags())

	for _, c := range []*cobra.Command{reposListCmd, reposEditCmd, reposDeleteCmd, reposGenerateCmd, reposPromptCmd} {
		c.Flags().Bool(flags.FlagAll, false, "Select every repository in the filtered view")
	}

	reposEditCmd.Flags().String(flags.FlagName, "", "New repository name")
	reposEditCmd.Flags().String(flags.FlagDescription, "", "New repository description")

	reposPromptCmd.Flags().String(flags.FlagTemplate, "", "Name of the prompt template to apply")
	reposPromptCmd.Flags().String(flags.FlagPrompt, "", "Inline prompt text (@path reads a file)")
	reposPromptCmd.Flags().Bool(flags.FlagWait, false, "Wait for documentation regeneration to finish")
	reposPromptCmd.MarkFlagsMutuallyExclusive(flags.FlagTemplate, flags.FlagPrompt)

	reposCmd.AddCommand(reposListCmd, reposCloneCmd, reposEditCmd, reposDeleteCmd, reposGenerateCmd, reposPromptCmd)
}
