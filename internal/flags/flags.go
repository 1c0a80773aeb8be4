package flags

// Package flags defines canonical CLI flag names shared across the CLI and
// config loading. Keeping these as constants helps avoid drift between Cobra
// flag wiring and the config keys they override.
// IMPORTANT: These are flag *names* without leading dashes.
// Example usage:
//
//	cmd.PersistentFlags().String(flags.FlagBackendURL, "", "...")
//	arg := "--" + flags.FlagBackendURL
const (
	FlagConfig = "config"

	// Backend
	FlagBackendURL     = "backend-url"
	FlagRequestTimeout = "request-timeout"

	// Polling
	FlagPollInterval = "poll-interval"
	FlagPollTimeout  = "poll-timeout"

	// View
	FlagSearch  = "search"
	FlagTag     = "tag"
	FlagInclude = "include"
	FlagExclude = "exclude"
	FlagAll     = "all"

	// Output
	FlagConsoleFormat        = "console-format"
	FlagConsoleFilterOutcome = "console-filter-outcome"
	FlagReport               = "report"
	FlagOut                  = "out"
	FlagOutFormat            = "out-format"
	FlagEmit                 = "emit"
	FlagNoConsole            = "no-console"

	// Runtime
	FlagConcurrency = "concurrency"
	FlagTimeout     = "timeout"
	FlagVerbose     = "verbose"
	FlagLogLevel    = "log-level"
	FlagLogFormat   = "log-format"

	// GitHub
	FlagGitHubEnrich = "github-enrich"

	// Action payloads
	FlagName        = "name"
	FlagDescription = "description"
	FlagTemplate    = "template"
	FlagPrompt      = "prompt"
	FlagGoal        = "goal"
	FlagContent     = "content"
	FlagWait        = "wait"
	FlagSection     = "section"
	FlagTOC         = "toc"

	// Settings
	FlagCheckInterval = "check-interval"
	FlagDisabled      = "disabled"
)

// ConfigKeys maps flags that override configuration onto their config keys.
var ConfigKeys = map[string]string{
	FlagBackendURL:           "backend.url",
	FlagRequestTimeout:       "backend.timeout",
	FlagPollInterval:         "polling.interval",
	FlagPollTimeout:          "polling.timeout",
	FlagSearch:               "view.search",
	FlagTag:                  "view.tags",
	FlagInclude:              "view.include",
	FlagExclude:              "view.exclude",
	FlagConsoleFormat:        "output.console_format",
	FlagConsoleFilterOutcome: "output.console_filter_outcome",
	FlagReport:               "output.report",
	FlagOut:                  "output.out",
	FlagOutFormat:            "output.out_format",
	FlagEmit:                 "output.emit",
	FlagNoConsole:            "output.no_console",
	FlagConcurrency:          "runtime.concurrency",
	FlagTimeout:              "runtime.timeout",
	FlagVerbose:              "runtime.verbose",
	FlagLogLevel:             "runtime.log_level",
	FlagLogFormat:            "runtime.log_format",
	FlagGitHubEnrich:         "github.enrich",
}
