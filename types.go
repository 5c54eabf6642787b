package git

import (
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// Repository is an open handle to one bare mirror directory. It wraps the
// underlying go-git repository together with the filesystem scope it was
// opened on, providing escape hatches for advanced use cases.
//
// A Repository never reaches outside its directory. Callers serialize
// mutating operations (fetches, removal) through the mirror manager's
// directory locks; the handle itself does no locking.
type Repository struct {
	path    string
	url     string
	repo    *gogit.Repository
	storage *filesystem.Storage
	fs      billy.Filesystem
}

// Path returns the mirror directory the repository was opened on.
func (r *Repository) Path() string {
	return r.path
}

// RemoteURL returns the canonical remote URL the mirror is bound to.
func (r *Repository) RemoteURL() string {
	return r.url
}

// Underlying exposes the go-git repository for operations not covered by
// this package.
func (r *Repository) Underlying() *gogit.Repository {
	return r.repo
}

// Filesystem returns the filesystem scoped to the mirror directory.
func (r *Repository) Filesystem() billy.Filesystem {
	return r.fs
}

// Close releases the pack file descriptors held open by the repository.
// The handle must not be used afterwards.
func (r *Repository) Close() error {
	if r.storage == nil {
		return nil
	}
	return r.storage.Close()
}

// OpenStatus tells callers what OpenMirror found at a directory.
type OpenStatus int

const (
	// OpenValid means a readable mirror bound to the requested remote.
	OpenValid OpenStatus = iota

	// OpenMissing means no repository exists at the directory.
	OpenMissing

	// OpenStale means a repository exists but is bound to a different
	// remote, or carries no remote marker at all.
	OpenStale

	// OpenCorrupt means a repository exists but could not be read.
	OpenCorrupt
)

// String returns a human-readable name for the status.
func (s OpenStatus) String() string {
	switch s {
	case OpenValid:
		return "valid"
	case OpenMissing:
		return "missing"
	case OpenStale:
		return "stale"
	case OpenCorrupt:
		return "corrupt"
	default:
		return "unknown"
	}
}

// OpenResult is the outcome of OpenMirror. Repository is non-nil only when
// Status is OpenValid. Remote carries the remote marker found in the
// repository config, empty when none was stamped. Reason holds the
// underlying read error for OpenCorrupt results.
type OpenResult struct {
	Repository *Repository
	Status     OpenStatus
	Remote     string
	Reason     error
}

// Auth is an interface for authentication methods.
// It is satisfied by go-git's transport.AuthMethod.
type Auth interface {
	// Marker interface - satisfied by go-git transport.AuthMethod
}

// RepositoryOption configures how mirrors are opened and created.
type RepositoryOption func(*repositoryOptions)

// repositoryOptions holds the configuration for OpenMirror and InitMirror.
type repositoryOptions struct {
	fs billy.Filesystem
}

// WithFilesystem roots mirror directories in the given filesystem instead
// of the host filesystem. Directory arguments are then interpreted
// relative to that filesystem.
//
// Example:
//
//	repo, err := git.InitMirror("/mirrors/git-0a1b2c3d4e5f.git", url,
//	    git.WithFilesystem(memfs.New()))
func WithFilesystem(fs billy.Filesystem) RepositoryOption {
	return func(opts *repositoryOptions) {
		opts.fs = fs
	}
}

func newRepositoryOptions(opts []RepositoryOption) repositoryOptions {
	options := repositoryOptions{
		fs: osfs.New("/"), // Default to host filesystem
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
