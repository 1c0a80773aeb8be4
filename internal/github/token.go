package github

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

// TokenSource names where a GitHub token came from. It is logged; the token
// itself never is.
type TokenSource string

const (
	TokenSourceConfig TokenSource = "config"
	TokenSourceEnv    TokenSource = "env"
	TokenSourceGhCLI  TokenSource = "gh"
)

// tokenEnvVars are checked in order; GH_TOKEN is what the gh CLI itself honours.
var tokenEnvVars = []string{"GITHUB_TOKEN", "GH_TOKEN"}

// ghTimeout bounds `gh auth token` so a broken credential helper cannot stall
// a clone run.
const ghTimeout = 5 * time.Second

// ResolveAuthToken finds a token for api.github.com lookups: the configured
// value, then GITHUB_TOKEN or GH_TOKEN, then `gh auth token`. An empty token
// with a nil error means none is available; description lookups then run
// unauthenticated against the public rate limit.
func ResolveAuthToken(ctx context.Context, configured string) (string, TokenSource, error) {
	if tok := strings.TrimSpace(configured); tok != "" {
		return tok, TokenSourceConfig, nil
	}
	for _, name := range tokenEnvVars {
		if tok := strings.TrimSpace(os.Getenv(name)); tok != "" {
			return tok, TokenSource(string(TokenSourceEnv) + ":" + name), nil
		}
	}

	tok, err := ghCLIToken(ctx)
	if err != nil || tok == "" {
		return "", "", err
	}
	return tok, TokenSourceGhCLI, nil
}

func ghCLIToken(ctx context.Context) (string, error) {
	if _, err := exec.LookPath("gh"); err != nil {
		return "", nil
	}

	cmdCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, ghTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cmdCtx, "gh", "auth", "token", "--hostname", "github.com")
	cmd.Env = withEnv(os.Environ(), "GH_PAGER", "cat")
	out, err := cmd.Output()
	if err != nil {
		if cmdCtx.Err() != nil {
			return "", cmdCtx.Err()
		}
		// Not logged in, or gh failed: no token. Its output is not surfaced.
		return "", nil
	}

	tok := strings.TrimSpace(string(out))
	if strings.ContainsAny(tok, " \t\n\r") {
		return "", errors.New("gh auth token returned a value containing whitespace")
	}
	return tok, nil
}

// withEnv returns env with key set to value exactly once.
func withEnv(env []string, key, value string) []string {
	prefix := key + "="
	out := make([]string, 0, len(env)+1)
	for _, e := range env {
		if !strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return append(out, prefix+value)
}
