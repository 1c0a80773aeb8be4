package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"repodesk/internal/engine"
	"repodesk/internal/flags"
	"repodesk/internal/model"
	"repodesk/internal/output"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and change the service-wide generation settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the general prompt and update check settings",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runSingle(cmd, func(s *session) error {
			settings, err := s.console.Settings(s.ctx)
			if err != nil {
				return err
			}
			return output.RenderSettings(os.Stdout, settings, s.cfg.Output.ConsoleFormat)
		})
	},
}

var settingsPromptCmd = &cobra.Command{
	Use:   "prompt [TEXT]",
	Short: "Print the general prompt, or replace it with TEXT (@path reads a file)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runSingle(cmd, func(s *session) error {
			if len(args) == 0 {
				prompt, err := s.console.GeneralPrompt(s.ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(os.Stdout, prompt)
				return err
			}
			prompt, err := readContent(args[0])
			if err != nil {
				return model.NewValidationError("prompt", err.Error())
			}
			if err := s.console.SaveGeneralPrompt(s.ctx, prompt); err != nil {
				return err
			}
			_, err = fmt.Fprintln(os.Stdout, "general prompt saved")
			return err
		})
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the general prompt, update check interval or disabled flag",
	Long: `Change only the settings given as flags. The check interval is in minutes
and must be between 1 and 10080 (one week).`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runSingle(cmd, func(s *session) error {
			patch, err := settingsPatchFromFlags(cmd)
			if err != nil {
				return err
			}
			saved, err := s.console.UpdateSettings(s.ctx, patch)
			if err != nil {
				return err
			}
			return output.RenderSettings(os.Stdout, saved, s.cfg.Output.ConsoleFormat)
		})
	},
}

func settingsPatchFromFlags(cmd *cobra.Command) (engine.SettingsPatch, error) {
	var patch engine.SettingsPatch
	if p := optionalString(cmd, flags.FlagPrompt); p != nil {
		content, err := readContent(*p)
		if err != nil {
			return engine.SettingsPatch{}, model.NewValidationError(flags.FlagPrompt, err.Error())
		}
		patch.Prompt = &content
	}
	if cmd.Flags().Changed(flags.FlagCheckInterval) {
		n, _ := cmd.Flags().GetInt(flags.FlagCheckInterval)
		patch.CheckInterval = &n
	}
	if cmd.Flags().Changed(flags.FlagDisabled) {
		d, _ := cmd.Flags().GetBool(flags.FlagDisabled)
		patch.Disabled = &d
	}
	return patch, nil
}

func init() {
	rootCmd.AddCommand(settingsCmd)

	settingsSetCmd.Flags().String(flags.FlagPrompt, "", "General prompt text (@path reads a file)")
	settingsSetCmd.Flags().Int(flags.FlagCheckInterval, model.DefaultCheckInterval, "Minutes between repository update checks")
	settingsSetCmd.Flags().Bool(flags.FlagDisabled, false, "Disable automatic update checks (--disabled=false enables them)")

	settingsCmd.AddCommand(settingsPromptCmd, settingsSetCmd, settingsShowCmd)
}
