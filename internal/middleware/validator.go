package middleware

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Input validation and sanitization utilities

// scp-like git remote, e.g. git@github.com:org/repo.git
var scpRemoteRx = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:[^\s]+$`)

// ValidateGitURL accepts http(s), ssh and git remotes and the scp-like form.
// Local paths, file:// and anything that git would read as an option are rejected.
func ValidateGitURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("git_url cannot be empty")
	}
	if strings.HasPrefix(raw, "-") {
		return fmt.Errorf("invalid git_url")
	}
	if strings.ContainsAny(raw, "\n\r\x00") {
		return fmt.Errorf("invalid characters in git_url")
	}
	if scpRemoteRx.MatchString(raw) {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid git_url format: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ssh", "git":
	default:
		return fmt.Errorf("invalid git_url scheme: %q (allowed: http, https, ssh, git)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("git_url must include a host")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	if limit <= 0 {
		return 20 // default
	}
	if limit > 100 {
		return 100 // max limit
	}
	return limit
}
