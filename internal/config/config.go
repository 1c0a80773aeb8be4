package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"repodesk/internal/flags"
	"repodesk/internal/output"
)

// EnvPrefix scopes environment overrides, e.g. REPODESK_BACKEND_URL.
const EnvPrefix = "REPODESK"

type Config struct {
	// MAINTAINER NOTE: If you add/change/remove config fields, keep these in sync:
	// - defaults in New and setDefaults
	// - CLI flags in internal/cli
	Backend Backend `mapstructure:"backend"`
	Polling Polling `mapstructure:"polling"`
	View    View    `mapstructure:"view"`
	Output  Output  `mapstructure:"output"`
	Runtime Runtime `mapstructure:"runtime"`
	GitHub  GitHub  `mapstructure:"github"`
}

type Backend struct {
	// URL is the API root of the documentation service (see --backend-url).
	URL string `mapstructure:"url"`

	// Token is sent as a bearer token when set. Never printed.
	Token string `mapstructure:"token"`

	// Timeout bounds a single HTTP request (see --request-timeout).
	Timeout time.Duration `mapstructure:"timeout"`
}

type Polling struct {
	// Interval between task status observations (see --poll-interval).
	Interval time.Duration `mapstructure:"interval"`

	// Timeout after which an awaited task is reported as timed out and left
	// pending (see --poll-timeout).
	Timeout time.Duration `mapstructure:"timeout"`
}

// View holds the list predicates applied before rendering.
type View struct {
	// Search is a case-insensitive substring over the searchable text (see --search).
	Search string `mapstructure:"search"`

	// Tags are filter tags such as doc:documented or clone:pending (see --tag).
	Tags []string `mapstructure:"tags"`

	// Include and Exclude match repository names using Go path.Match style.
	// If a pattern contains '/', it matches OWNER/NAME from the source URL.
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

type Output struct {
	// ConsoleFormat controls the human-facing console sink format (see --console-format).
	// Allowed values: text, json, ndjson.
	ConsoleFormat string `mapstructure:"console_format"`

	// ConsoleFilterOutcome filters console records by outcome (see --console-filter-outcome).
	// Allowed values: success, failure.
	ConsoleFilterOutcome []string `mapstructure:"console_filter_outcome"`

	// Report writes a Markdown action report to this path (see --report).
	Report string `mapstructure:"report"`

	// Out writes structured output to this path (see --out).
	Out string `mapstructure:"out"`

	// OutFormat selects the format for --out. If empty, it is inferred from the
	// file extension.
	OutFormat string `mapstructure:"out_format"`

	// Emit writes an additional structured stream to stdout (see --emit).
	Emit []string `mapstructure:"emit"`

	// NoConsole suppresses the console sink (see --no-console).
	NoConsole bool `mapstructure:"no_console"`
}

type Runtime struct {
	// Concurrency bounds bulk fan-out (see --concurrency). Must be >= 1.
	Concurrency int `mapstructure:"concurrency"`

	// Timeout is the global timeout for one command (see --timeout).
	Timeout time.Duration `mapstructure:"timeout"`

	// Verbose prints every backend call and full error details.
	Verbose bool `mapstructure:"verbose"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

type GitHub struct {
	// Token for api.github.com lookups; resolved from GITHUB_TOKEN or gh when empty.
	Token string `mapstructure:"token"`

	// Enrich fills empty descriptions of cloned github.com repositories.
	Enrich bool `mapstructure:"enrich"`
}

func New() *Config {
	return &Config{
		Backend: Backend{
			URL:     "http://localhost:8000/api",
			Timeout: 30 * time.Second,
		},
		Polling: Polling{
			Interval: 2 * time.Second,
			Timeout:  10 * time.Minute,
		},
		Output: Output{
			ConsoleFormat: "text",
		},
		Runtime: Runtime{
			Concurrency: 4,
			Timeout:     30 * time.Minute,
			LogLevel:    "warn",
			LogFormat:   "text",
		},
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("backend.url", d.Backend.URL)
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.timeout", d.Backend.Timeout)

	v.SetDefault("polling.interval", d.Polling.Interval)
	v.SetDefault("polling.timeout", d.Polling.Timeout)

	v.SetDefault("view.search", "")
	v.SetDefault("view.tags", []string{})
	v.SetDefault("view.include", []string{})
	v.SetDefault("view.exclude", []string{})

	v.SetDefault("output.console_format", d.Output.ConsoleFormat)
	v.SetDefault("output.console_filter_outcome", []string{})
	v.SetDefault("output.report", "")
	v.SetDefault("output.out", "")
	v.SetDefault("output.out_format", "")
	v.SetDefault("output.emit", []string{})
	v.SetDefault("output.no_console", false)

	v.SetDefault("runtime.concurrency", d.Runtime.Concurrency)
	v.SetDefault("runtime.timeout", d.Runtime.Timeout)
	v.SetDefault("runtime.verbose", false)
	v.SetDefault("runtime.log_level", d.Runtime.LogLevel)
	v.SetDefault("runtime.log_format", d.Runtime.LogFormat)

	v.SetDefault("github.token", "")
	v.SetDefault("github.enrich", false)
}

// Load reads defaults, then the YAML config file, then REPODESK_* environment
// variables, then flags in fs the user set explicitly. An explicit path must
// exist; otherwise repodesk.yaml is looked up in ~/.repodesk and the working
// directory and may be absent. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, New())

	if fs != nil {
		for name, key := range flags.ConfigKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding --%s: %w", name, err)
			}
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("repodesk")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".repodesk"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg := New()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	// Normalize comma-delimited list inputs.
	c.View.Tags = splitCommaList(c.View.Tags)
	c.View.Include = splitCommaList(c.View.Include)
	c.View.Exclude = splitCommaList(c.View.Exclude)
	c.Output.Emit = splitCommaList(c.Output.Emit)
	c.Output.ConsoleFilterOutcome = splitCommaList(c.Output.ConsoleFilterOutcome)
	c.View.Search = strings.TrimSpace(c.View.Search)

	// Backend validation
	base, err := normalizeBackendURL(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("invalid --backend-url value: %w", err)
	}
	c.Backend.URL = base
	c.Backend.Token = strings.TrimSpace(c.Backend.Token)
	if c.Backend.Timeout <= 0 {
		return errors.New("--request-timeout must be > 0")
	}

	// Polling validation
	if c.Polling.Interval <= 0 {
		return errors.New("--poll-interval must be > 0")
	}
	if c.Polling.Timeout <= 0 {
		return errors.New("--poll-timeout must be > 0")
	}
	if c.Polling.Interval > c.Polling.Timeout {
		return fmt.Errorf("--poll-interval (%s) must not exceed --poll-timeout (%s)", c.Polling.Interval, c.Polling.Timeout)
	}

	// Output validation
	c.Output.ConsoleFormat = normalizeEnumValue(c.Output.ConsoleFormat)
	if c.Output.ConsoleFormat == "" {
		return errors.New("--console-format must be one of: text, json, ndjson")
	}
	if c.Output.ConsoleFormat != "text" && c.Output.ConsoleFormat != "json" && c.Output.ConsoleFormat != "ndjson" {
		return fmt.Errorf("unsupported --console-format: %s (must be one of: text, json, ndjson)", c.Output.ConsoleFormat)
	}

	for i, emit := range c.Output.Emit {
		v := normalizeEnumValue(emit)
		if v != "json" && v != "ndjson" {
			return fmt.Errorf("unsupported --emit value: %s (must be one of: json, ndjson)", emit)
		}
		c.Output.Emit[i] = v
	}

	for i, o := range c.Output.ConsoleFilterOutcome {
		v := normalizeEnumValue(o)
		if v != "success" && v != "failure" && v != "pending" {
			return fmt.Errorf("unsupported --console-filter-outcome value: %s (must be one of: success, failure, pending)", o)
		}
		c.Output.ConsoleFilterOutcome[i] = v
	}

	if c.Output.Out != "" {
		c.Output.OutFormat = normalizeEnumValue(c.Output.OutFormat)
		if c.Output.OutFormat == "" {
			f, err := output.InferFormat(c.Output.Out)
			if err != nil {
				return fmt.Errorf("%w; use --out-format", err)
			}
			c.Output.OutFormat = f
		} else if c.Output.OutFormat != "json" && c.Output.OutFormat != "ndjson" {
			return fmt.Errorf("unsupported output format: %s", c.Output.OutFormat)
		}
	}

	// Runtime validation
	if c.Runtime.Concurrency <= 0 {
		return errors.New("--concurrency must be >= 1")
	}
	if c.Runtime.Timeout <= 0 {
		return errors.New("--timeout must be > 0")
	}
	c.Runtime.LogLevel = normalizeEnumValue(c.Runtime.LogLevel)
	if c.Runtime.LogLevel == "" {
		c.Runtime.LogLevel = "warn"
	}
	switch c.Runtime.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported --log-level: %s (must be one of: debug, info, warn, error)", c.Runtime.LogLevel)
	}
	c.Runtime.LogFormat = normalizeEnumValue(c.Runtime.LogFormat)
	if c.Runtime.LogFormat == "" {
		c.Runtime.LogFormat = "text"
	}
	if c.Runtime.LogFormat != "text" && c.Runtime.LogFormat != "json" {
		return fmt.Errorf("unsupported --log-format: %s (must be one of: text, json)", c.Runtime.LogFormat)
	}

	return nil
}

func normalizeEnumValue(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// normalizeBackendURL accepts an http(s) API root and drops trailing slashes.
func normalizeBackendURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%q: missing host", raw)
	}
	return strings.TrimRight(raw, "/"), nil
}

func splitCommaList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			p := strings.TrimSpace(part)
			if p == "" {
				continue
			}
			out = append(out, p)
		}
	}
	return out
}
