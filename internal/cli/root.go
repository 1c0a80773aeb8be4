package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"repodesk/internal/config"
	"repodesk/internal/flags"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildDate    = "unknown"
)

// configPath is the --config flag; every other configuration flag is read
// back through config.Load so files and REPODESK_* variables apply too.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "repodesk",
	Short: "Manage repositories, generated documentation and prompt templates on a documentation service",
	Long: `Repodesk drives a repository documentation service from the command line.

It clones source repositories into the service, asks it to generate
documentation, and manages the prompts and templates used to do so. Clone and
prompt jobs run asynchronously on the service; repodesk polls them until they
finish or the poll timeout elapses.

Examples:
	# List repositories that still need documentation
	repodesk repos list --tag doc:not-documented

	# Clone two repositories and wait for them
	repodesk repos clone https://github.com/acme/api git@github.com:acme/web.git

	# Generate documentation for every cloned repository matching "api"
	repodesk repos generate --all --search api --tag clone:success

	# Print build info
	repodesk version

Configuration:
	Values are read from repodesk.yaml (in ~/.repodesk or the working directory,
	or --config), then REPODESK_* environment variables (for example
	REPODESK_BACKEND_URL, REPODESK_BACKEND_TOKEN), then flags.

Exit codes:
	0 = every selected entity succeeded
	1 = every selected entity failed
	2 = partial failure, or a clone still pending after --poll-timeout
	3 = fatal error (the action did not run)`,
	SilenceUsage: true,
}

func init() {
	d := config.New()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, flags.FlagConfig, "", "Path to a YAML config file (default: ~/.repodesk/repodesk.yaml or ./repodesk.yaml)")

	// Backend
	pf.String(flags.FlagBackendURL, d.Backend.URL, "Base URL of the documentation service API")
	pf.Duration(flags.FlagRequestTimeout, d.Backend.Timeout, "Timeout for a single backend request")

	// Polling
	pf.Duration(flags.FlagPollInterval, d.Polling.Interval, "Interval between task status polls")
	pf.Duration(flags.FlagPollTimeout, d.Polling.Timeout, "Give up waiting on a task after this long; the row stays pending")

	// Output
	pf.String(flags.FlagConsoleFormat, d.Output.ConsoleFormat, "Console output format: text|json|ndjson")
	pf.StringSlice(flags.FlagConsoleFilterOutcome, nil, "Filter console results by outcome (success, failure, pending). Comma-separated.")
	pf.String(flags.FlagReport, "", "Write a Markdown report to this path")
	pf.String(flags.FlagOut, "", "Write structured output to this path")
	pf.String(flags.FlagOutFormat, "", "Structured output format for --out: json|ndjson (default: inferred from file extension)")
	pf.StringSlice(flags.FlagEmit, nil, "Emit additional structured stream to stdout: json|ndjson (repeatable; comma-separated accepted)")
	pf.Bool(flags.FlagNoConsole, false, "Suppress console output (use with --emit/--out/--report)")

	// Runtime
	pf.Int(flags.FlagConcurrency, d.Runtime.Concurrency, "Concurrent backend operations per bulk action")
	pf.Duration(flags.FlagTimeout, d.Runtime.Timeout, "Global timeout for the command")
	pf.Bool(flags.FlagVerbose, false, "Enable verbose logging (prints every backend call and full error details)")
	pf.String(flags.FlagLogLevel, d.Runtime.LogLevel, "Log level: debug|info|warn|error")
	pf.String(flags.FlagLogFormat, d.Runtime.LogFormat, "Log format: text|json")

	// GitHub
	pf.Bool(flags.FlagGitHubEnrich, false, "Fill empty descriptions of cloned GitHub repositories from api.github.com")
}

// addViewFlags registers the filters that narrow a list view and --all.
func addViewFlags(fs *pflag.FlagSet) {
	fs.String(flags.FlagSearch, "", "Only show entities whose name, title or URL contains this text")
	fs.StringSlice(flags.FlagTag, nil, "Filter tags as group:value, e.g. clone:success, doc:documented (repeatable; tags in one group are OR-ed)")
	fs.StringSlice(flags.FlagInclude, nil, "Include pattern(s), path.Match style over names (repeatable; comma-separated accepted)")
	fs.StringSlice(flags.FlagExclude, nil, "Exclude pattern(s), same matching rules as --include")
}

func SetBuildInfo(version, commit, date string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	if date != "" {
		buildDate = date
	}

	rootCmd.Version = fmt.Sprintf("%s (%s) %s", buildVersion, buildCommit, buildDate)
	rootCmd.SetVersionTemplate("{{.Version}}\n")
}

func BuildInfo() (version, commit, date string) {
	return buildVersion, buildCommit, buildDate
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(3)
	}
}
