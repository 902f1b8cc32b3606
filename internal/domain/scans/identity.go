package scans

import (
	"path/filepath"
	"regexp"
	"strings"
)

// DefaultGitKey is used when no key can be parsed from a git URL.
const DefaultGitKey = "default_git_project"

var (
	gitKeyRx     = regexp.MustCompile(`/([^/]+?)(\.git)?$`)
	projectKeyRx = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,400}$`)
)

// ResolveIdentity derives the project identity: an explicit key first, then the
// last segment of a git URL, then the stem of the uploaded or inline filename.
func ResolveIdentity(req ScanRequest) (ProjectIdentity, error) {
	key := strings.TrimSpace(req.ProjectKey)
	if key == "" {
		switch {
		case req.Remote != nil:
			key = KeyFromGitURL(req.Remote.URL)
		case req.Inline != nil && req.Inline.Filename != "":
			key = KeyFromFilename(req.Inline.Filename)
		case req.Archive != nil && len(req.Archive.Parts) > 0:
			key = KeyFromFilename(req.Archive.Parts[0].Filename)
		}
	}
	if key == "" {
		return ProjectIdentity{}, Validation(MsgMissingKey)
	}
	name := strings.TrimSpace(req.ProjectName)
	if name == "" {
		return ProjectIdentity{}, Validation(MsgMissingName)
	}
	if err := ValidateProjectKey(key); err != nil {
		return ProjectIdentity{}, err
	}
	return ProjectIdentity{Key: key, Name: name}, nil
}

func KeyFromGitURL(url string) string {
	m := gitKeyRx.FindStringSubmatch(url)
	if m == nil {
		return DefaultGitKey
	}
	return m[1]
}

func KeyFromFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ValidateProjectKey rejects keys that are unusable as a backend key or as a
// path segment of a workspace directory.
func ValidateProjectKey(key string) error {
	if key == "." || key == ".." || !projectKeyRx.MatchString(key) {
		return Validation("Invalid project_key: use letters, digits, '-', '_', '.' or ':' (max 400 chars)")
	}
	return nil
}
