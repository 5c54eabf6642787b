package mirror

import (
	"log/slog"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
)

// WithFilesystem sets the filesystem the Manager stores mirrors on.
// Useful for testing with in-memory filesystems.
func WithFilesystem(fs billy.Filesystem) ManagerOption {
	return func(o *managerOptions) {
		o.fs = fs
	}
}

// WithLogger sets the logger the Manager and its Cleaner report to.
func WithLogger(log *slog.Logger) ManagerOption {
	return func(o *managerOptions) {
		o.log = log
	}
}

func newManagerOptions(opts ...ManagerOption) managerOptions {
	options := managerOptions{
		fs:  osfs.New("/"), // Default to host filesystem
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
