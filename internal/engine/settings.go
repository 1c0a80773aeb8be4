package engine

import (
	"context"
	"fmt"

	"repodesk/internal/model"
)

// SettingsPatch changes the fields that are non-nil.
type SettingsPatch struct {
	Prompt        *string
	CheckInterval *int
	Disabled      *bool
}

func (c *Console) Settings(ctx context.Context) (model.GeneralSettings, error) {
	s, err := c.backend.GeneralSettings(ctx)
	if err != nil {
		return model.GeneralSettings{}, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

// UpdateSettings applies patch on top of the stored settings. The service
// replaces prompt and disabled on every save, so both are read first.
func (c *Console) UpdateSettings(ctx context.Context, patch SettingsPatch) (model.GeneralSettings, error) {
	if patch.Prompt == nil && patch.CheckInterval == nil && patch.Disabled == nil {
		return model.GeneralSettings{}, model.NewValidationError("settings", "nothing to change")
	}
	next := model.GeneralSettings{CheckInterval: patch.CheckInterval}
	if err := next.Validate(); err != nil {
		return model.GeneralSettings{}, err
	}
	current, err := c.Settings(ctx)
	if err != nil {
		return model.GeneralSettings{}, err
	}
	next.Prompt, next.Disabled = current.Prompt, current.Disabled
	if patch.Prompt != nil {
		next.Prompt = *patch.Prompt
	}
	if patch.Disabled != nil {
		next.Disabled = *patch.Disabled
	}
	saved, err := c.backend.SaveGeneralSettings(ctx, next)
	if err != nil {
		return model.GeneralSettings{}, fmt.Errorf("save settings: %w", err)
	}
	attrs := []any{"disabled", saved.Disabled}
	if saved.CheckInterval != nil {
		attrs = append(attrs, "check_interval", *saved.CheckInterval)
	}
	c.logger.Info("settings updated", attrs...)
	return saved, nil
}

// GeneralPrompt is the prompt applied to every generation before any
// repository-specific prompt.
func (c *Console) GeneralPrompt(ctx context.Context) (string, error) {
	p, err := c.backend.GeneralPrompt(ctx)
	if err != nil {
		return "", fmt.Errorf("get general prompt: %w", err)
	}
	return p, nil
}

func (c *Console) SaveGeneralPrompt(ctx context.Context, prompt string) error {
	if err := c.backend.SaveGeneralPrompt(ctx, prompt); err != nil {
		return fmt.Errorf("save general prompt: %w", err)
	}
	return nil
}
