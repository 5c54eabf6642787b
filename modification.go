package git

import (
	"strings"
	"time"
)

// ChangeType describes what happened to a file in a commit.
type ChangeType int

const (
	// ChangeAdded marks a file that did not exist in the parent tree.
	ChangeAdded ChangeType = iota
	// ChangeModified marks a file whose content or mode differs from the
	// parent tree.
	ChangeModified
	// ChangeDeleted marks a file present in the parent tree but not in the
	// commit tree.
	ChangeDeleted
)

// String returns a human-readable name for the change type.
func (t ChangeType) String() string {
	switch t {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// FileChange is a single file-level change inside a commit, relative to the
// commit's first parent.
type FileChange struct {
	// Path is the file path inside the repository. For deletions it is the
	// path in the parent tree.
	Path string

	// Type says whether the file was added, modified or deleted.
	Type ChangeType
}

// Modification is one commit rendered for change collection: identity,
// author metadata, the parent commits, and the per-file changes against the
// first parent.
type Modification struct {
	// Version identifies the commit, in "<revision>@<hex millis>" form.
	Version string

	// Parents holds the versions of the parent commits, in parent order.
	// When a parent object is absent from the local mirror its bare
	// revision is used instead of a full version string.
	Parents []string

	// AuthorName and AuthorEmail identify the commit author.
	AuthorName  string
	AuthorEmail string

	// Timestamp is the committer time of the commit.
	Timestamp time.Time

	// Message is the full commit message.
	Message string

	// Changes lists the file-level changes against the first parent. Root
	// commits list every file as added.
	Changes []FileChange
}

// Revision returns the bare revision of the modification, without the
// encoded commit time.
func (m Modification) Revision() string {
	if i := strings.Index(m.Version, versionSeparator); i >= 0 {
		return m.Version[:i]
	}
	return m.Version
}

// PathFilter narrows which file paths contribute to the Changes list of a
// Modification. Hosts translate their own path rule syntax into a filter;
// filtering never affects which commits are visited.
type PathFilter interface {
	// Accepts reports whether the path should be kept.
	Accepts(path string) bool
}
