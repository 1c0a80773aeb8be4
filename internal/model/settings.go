package model

import "fmt"

// Bounds of the service's repository update check, in minutes.
const (
	MinCheckInterval     = 1
	MaxCheckInterval     = 10080
	DefaultCheckInterval = 60
)

// GeneralSettings are the service-wide generation settings. A nil
// CheckInterval leaves the stored interval unchanged on save.
type GeneralSettings struct {
	Prompt        string `json:"prompt"`
	CheckInterval *int   `json:"check_interval_minutes,omitempty"`
	Disabled      bool   `json:"disabled"`
}

func (s GeneralSettings) Validate() error {
	if s.CheckInterval == nil {
		return nil
	}
	if n := *s.CheckInterval; n < MinCheckInterval || n > MaxCheckInterval {
		return NewValidationError("check_interval",
			fmt.Sprintf("must be between %d and %d minutes, got %d", MinCheckInterval, MaxCheckInterval, n))
	}
	return nil
}
