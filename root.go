package git

// DefaultBranchName is assumed when a root does not name a branch.
const DefaultBranchName = "master"

// VcsRoot describes one remote repository to mirror and collect changes
// from: where to fetch, which branch is the default, and how to
// authenticate. The zero Auth value means anonymous access.
type VcsRoot struct {
	// FetchURL is the remote URL. Any transport go-git supports is
	// accepted, including plain filesystem paths.
	FetchURL string

	// Branch is the default branch, short or fully qualified. Empty means
	// DefaultBranchName.
	Branch string

	// Auth carries the credentials used for fetch and ls-remote. Nil means
	// anonymous.
	Auth Auth

	// RepositoryDir optionally pins the root to an explicit mirror
	// directory instead of the one derived from the fetch URL. A directory
	// already bound to a different remote is rejected rather than
	// overwritten.
	RepositoryDir string
}

// DefaultBranch returns the root's default branch as a fully qualified ref.
func (r VcsRoot) DefaultBranch() string {
	if r.Branch == "" {
		return ExpandRef(DefaultBranchName)
	}
	return ExpandRef(r.Branch)
}

// ForBranch returns a copy of the root pointing at another branch. Fetch
// URL, credentials and directory pinning are preserved.
func (r VcsRoot) ForBranch(branch string) VcsRoot {
	r.Branch = branch
	return r
}

// String renders the root for log and error messages.
func (r VcsRoot) String() string {
	return r.FetchURL + "#" + ShortBranchName(r.DefaultBranch())
}
