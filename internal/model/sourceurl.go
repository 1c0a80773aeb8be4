package model

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	httpURLPattern = regexp.MustCompile(`^https?://.+`)
	sshURLPattern  = regexp.MustCompile(`^(ssh://)?git@[\w.-]+[:/].+`)
)

// IsSSHURL reports whether raw is an SSH clone URL (git@host:path or ssh://git@host/path).
func IsSSHURL(raw string) bool {
	return sshURLPattern.MatchString(raw)
}

// ValidateSourceURL accepts HTTP(S) and SSH clone URLs and returns the trimmed value.
func ValidateSourceURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", NewValidationError("repo_url", "Repository URL cannot be empty")
	}
	if httpURLPattern.MatchString(raw) {
		if _, err := url.Parse(raw); err != nil {
			return "", NewValidationError("repo_url", fmt.Sprintf("invalid URL %q", raw))
		}
		return raw, nil
	}
	if IsSSHURL(raw) {
		return raw, nil
	}
	return "", NewValidationError("repo_url",
		"Invalid git repository URL. Please use HTTP/HTTPS (e.g., https://github.com/user/repo.git) or SSH format (e.g., git@github.com:user/repo.git)")
}

// DisplayURL converts SSH clone URLs into clickable HTTPS URLs; other values
// are returned unchanged.
func DisplayURL(raw string) string {
	switch {
	case strings.HasPrefix(raw, "ssh://git@"):
		return "https://" + strings.TrimPrefix(raw, "ssh://git@")
	case strings.HasPrefix(raw, "git@"):
		return "https://" + strings.Replace(strings.TrimPrefix(raw, "git@"), ":", "/", 1)
	default:
		return raw
	}
}

// NormalizeURL maps equivalent clone URLs (SSH vs HTTPS, http vs https,
// with or without .git, any case) onto one comparison key.
func NormalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	if IsSSHURL(u) {
		u = DisplayURL(u)
	}
	if strings.HasPrefix(u, "http://") {
		u = "https://" + strings.TrimPrefix(u, "http://")
	}
	u = strings.TrimRight(u, "/")
	if !strings.HasSuffix(u, ".git") {
		u += ".git"
	}
	return strings.ToLower(u)
}

// NameFromURL derives the repository display name the backend assigns on clone.
func NameFromURL(raw string) string {
	u := strings.TrimRight(strings.TrimSpace(raw), "/")
	if i := strings.LastIndexAny(u, "/:"); i >= 0 {
		u = u[i+1:]
	}
	return strings.TrimSuffix(u, ".git")
}

// GitHubOwnerRepo extracts owner and name from github.com clone URLs.
func GitHubOwnerRepo(raw string) (owner, name string, ok bool) {
	u := DisplayURL(strings.TrimSpace(raw))
	if strings.HasPrefix(u, "github.com/") || strings.HasPrefix(u, "www.github.com/") {
		u = "https://" + u
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return "", "", false
	}
	host := strings.ToLower(parsed.Hostname())
	if host != "github.com" && host != "www.github.com" {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), true
}
