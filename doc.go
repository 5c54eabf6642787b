// Package git is the server-side core of a TeamCity-style Git integration:
// bare mirror repositories kept under a shared caches directory, and change
// collection computed from those mirrors.
//
// The package wraps go-git rather than reimplementing Git, uses go-billy
// for all filesystem access, and exposes escape hatches to the underlying
// go-git objects for operations it does not cover. Higher layers live in
// the mirror and changes sub-packages; this package carries the domain
// vocabulary (versions, states, roots, modifications) and the repository
// engine they share.
//
// # Mirrors
//
// Every remote a VcsRoot points at is materialized exactly once, as a bare
// repository in a directory derived from the canonical form of its fetch
// URL. A mirror is bound to its remote by a marker in the repository
// config:
//
//	[teamcity]
//		remote = <canonical URL>
//
// OpenMirror reports what it finds at a directory as a tagged OpenResult
// (valid, missing, stale or corrupt) instead of forcing callers to decode
// error values. InitMirror creates or adopts a mirror and stamps the
// marker; it refuses to rebind a directory already claimed by another
// remote.
//
// # Versions
//
// A version identifies a commit together with its committer time:
//
//	<revision>@<hex epoch millis>
//
// MakeVersion, VersionRevision and VersionTime convert between the two
// representations. The time component makes versions orderable without
// touching the repository; CompareVersions implements that order.
//
// # Change collection
//
// Modifications walks the commit graph between two sets of revisions and
// renders one Modification per commit: author, message, committer time and
// the file-level changes against the first parent. The walk emits children
// before parents and is deterministic across runs.
//
// # Authentication
//
// Fetch and ls-remote accept the Auth values produced by SSHKeyAuth,
// SSHKeyFile and BasicAuth. A nil Auth means anonymous access:
//
//	auth, err := git.SSHKeyFile("git", "/home/user/.ssh/id_rsa")
//	refs, err := git.ListRemoteRefs(ctx, root.FetchURL, auth)
//
// # Error Handling
//
// Errors are wrapped with platform error codes from the errors library:
//
//   - CodeNotFound: missing repository, ref or object
//   - CodeAlreadyExists: repository or remote already present
//   - CodeUnauthorized: authentication failures
//   - CodeConflict: a directory claimed by another remote
//   - CodeNetwork, CodeTimeout: transport failures
//   - CodeInvalidInput: malformed versions, revisions or refs
//
// # Context and Cancellation
//
// Network operations (Fetch, ListRemoteRefs) accept a context.Context for
// cancellation and timeout control. Local operations work purely on the
// mirror directory and take no context.
package git
