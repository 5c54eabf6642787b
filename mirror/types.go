package mirror

import (
	"log/slog"

	"github.com/go-git/go-billy/v5"

	git "github.com/pjreed/teamcity-git-plugin"
)

// Manager owns the caches directory: it assigns mirror directories to
// fetch URLs, creates and repairs the bare repositories inside them, and
// tracks when each mirror was last used.
//
// A single Manager should be shared by everything operating on the same
// caches directory. Its methods are safe for concurrent use.
type Manager struct {
	cfg   git.Config
	fs    billy.Filesystem
	locks *DirectoryLocks
	index *mirrorIndex
	log   *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerOptions)

type managerOptions struct {
	fs  billy.Filesystem
	log *slog.Logger
}
