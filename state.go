package git

import (
	"fmt"
	"sort"
)

// RepositoryState is a snapshot of the branches of a repository at some
// moment: a set of branch names mapped to the revision each one pointed to,
// plus the name of the default branch. Change collection works on pairs of
// such snapshots.
//
// Branch names are stored in short form ("main", not "refs/heads/main").
// A state is immutable after construction.
type RepositoryState struct {
	defaultBranch string
	branches      map[string]string
}

// NewRepositoryState builds a state from a default branch name and a
// branch-to-revision map. The map is copied. The default branch is added to
// the branch set even when the map does not mention it, with an empty
// revision, so callers can detect it was never resolved.
func NewRepositoryState(defaultBranch string, branches map[string]string) *RepositoryState {
	copied := make(map[string]string, len(branches)+1)
	for name, revision := range branches {
		copied[ShortBranchName(name)] = revision
	}

	short := ShortBranchName(defaultBranch)
	if _, ok := copied[short]; !ok {
		copied[short] = ""
	}

	return &RepositoryState{defaultBranch: short, branches: copied}
}

// NewSingleBranchState builds a state holding exactly one branch, which is
// also the default branch.
func NewSingleBranchState(branch, revision string) *RepositoryState {
	return NewRepositoryState(branch, map[string]string{branch: revision})
}

// DefaultBranch returns the short name of the default branch.
func (s *RepositoryState) DefaultBranch() string {
	return s.defaultBranch
}

// Revision returns the revision the given branch pointed to, and whether the
// branch is part of this state. Short and fully qualified names are accepted.
func (s *RepositoryState) Revision(branch string) (string, bool) {
	revision, ok := s.branches[ShortBranchName(branch)]
	return revision, ok
}

// Branches returns the branch names in this state, sorted, short form.
func (s *RepositoryState) Branches() []string {
	names := make([]string, 0, len(s.branches))
	for name := range s.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BranchRevisions returns a copy of the branch-to-revision map.
func (s *RepositoryState) BranchRevisions() map[string]string {
	copied := make(map[string]string, len(s.branches))
	for name, revision := range s.branches {
		copied[name] = revision
	}
	return copied
}

// String renders the state for log messages.
func (s *RepositoryState) String() string {
	return fmt.Sprintf("default=%s branches=%v", s.defaultBranch, s.BranchRevisions())
}
