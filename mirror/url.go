package mirror

import (
	"net/url"
	"path"
	"strings"

	platformerrors "github.com/jmgilman/go/errors"
)

// Canonicalize reduces a fetch URL to the identity mirrors are keyed by.
// Two URLs naming the same repository through different spellings share
// one mirror.
//
// Canonicalization rules:
//  1. Strip credentials, query and fragment
//  2. Lowercase the scheme and host
//  3. Convert scp-style URLs (git@host:path) to ssh://host/path
//  4. Strip a trailing .git suffix and trailing slashes
//  5. Keep plain filesystem paths as cleaned paths
//
// Examples:
//   - https://user:pw@GitHub.com/my/repo.git → https://github.com/my/repo
//   - git@github.com:my/repo.git → ssh://github.com/my/repo
//   - /srv/git/project.git/ → /srv/git/project
func Canonicalize(fetchURL string) (string, error) {
	raw := strings.TrimSpace(fetchURL)
	if raw == "" {
		return "", platformerrors.New(platformerrors.CodeInvalidInput, "fetch URL is empty")
	}

	// Handle URLs carrying an explicit scheme.
	if strings.Contains(raw, "://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", platformerrors.Wrapf(err, platformerrors.CodeInvalidInput,
				"fetch URL %q is not parseable", fetchURL)
		}
		canonical := strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host)
		if trimmed := trimRepoPath(parsed.Path); trimmed != "" {
			canonical += trimmed
		}
		return canonical, nil
	}

	// Handle scp-style URLs (user@host:path).
	if at := strings.Index(raw, "@"); at >= 0 {
		if host, p, ok := strings.Cut(raw[at+1:], ":"); ok {
			canonical := "ssh://" + strings.ToLower(host)
			if trimmed := strings.TrimPrefix(trimRepoPath(p), "/"); trimmed != "" {
				canonical += "/" + trimmed
			}
			return canonical, nil
		}
	}

	// Fallback: a plain filesystem path.
	return trimRepoPath(path.Clean(raw)), nil
}

// trimRepoPath drops the conventional repository suffixes from a path: any
// trailing slashes and a final .git segment or extension.
func trimRepoPath(p string) string {
	p = strings.TrimRight(p, "/")
	switch {
	case strings.HasSuffix(p, "/.git"):
		p = p[:len(p)-len("/.git")]
	case strings.HasSuffix(p, ".git"):
		p = p[:len(p)-len(".git")]
	}
	return strings.TrimRight(p, "/")
}
