package changes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	git "github.com/pjreed/teamcity-git-plugin"
	"github.com/pjreed/teamcity-git-plugin/mirror"
)

// OperationContext carries the state of one logical collector operation:
// the operation's name, the root it was invoked for, and every repository
// handle opened on its behalf. Handles are cached per mirror directory, so
// an operation touching the same mirror through several roots opens it
// once; Close releases all of them when the operation ends.
//
// A context belongs to a single goroutine. The collector itself is safe
// for concurrent use because every call builds its own context.
//
// Handles are held without directory locks between fetches, so a mirror
// can in principle be evicted under an operation that outlives the
// expiration window. Opening a mirror refreshes its last-used timestamp,
// which keeps the window from closing on anything still in flight.
type OperationContext struct {
	manager *mirror.Manager
	op      string
	root    git.VcsRoot
	log     *slog.Logger

	dirs  map[string]string          // root key → mirror directory
	repos map[string]*git.Repository // mirror directory → open handle
	order []string                   // directories in open order
}

func newOperationContext(manager *mirror.Manager, op string, root git.VcsRoot, log *slog.Logger) *OperationContext {
	return &OperationContext{
		manager: manager,
		op:      op,
		root:    root,
		log:     log,
		dirs:    make(map[string]string),
		repos:   make(map[string]*git.Repository),
	}
}

// Operation names the running operation as it appears in wrapped errors.
func (oc *OperationContext) Operation() string {
	return oc.op
}

// MirrorDir resolves the mirror directory serving the given root: the
// root's explicit directory when set, otherwise the canonical directory
// for its fetch URL. The resolution is cached for the lifetime of the
// operation so repeated lookups cannot diverge mid-operation.
func (oc *OperationContext) MirrorDir(root git.VcsRoot) (string, error) {
	key := root.RepositoryDir + "\x00" + root.FetchURL
	if dir, ok := oc.dirs[key]; ok {
		return dir, nil
	}
	dir := root.RepositoryDir
	if dir == "" {
		var err error
		dir, err = oc.manager.MirrorDir(root.FetchURL)
		if err != nil {
			return "", err
		}
	}
	oc.dirs[key] = dir
	return dir, nil
}

// Repository returns the open mirror serving the given root, creating or
// repairing it as needed. The handle belongs to the context; callers must
// not Close it themselves.
func (oc *OperationContext) Repository(root git.VcsRoot) (*git.Repository, error) {
	dir, err := oc.MirrorDir(root)
	if err != nil {
		return nil, err
	}
	if repo, ok := oc.repos[dir]; ok {
		return repo, nil
	}
	repo, err := oc.manager.GetRepositoryAt(dir, root.FetchURL)
	if err != nil {
		return nil, err
	}
	oc.repos[dir] = repo
	oc.order = append(oc.order, dir)
	return repo, nil
}

// fetch runs one fetch for the root into repo, serialized against other
// writers of that mirror and bounded by the configured fetch timeout. The
// root supplies URL and credentials; the repo decides where the objects
// land, which for cross-root operations is not the root's own mirror.
func (oc *OperationContext) fetch(ctx context.Context, root git.VcsRoot, repo *git.Repository, refSpecs []string) error {
	return oc.manager.RunWithWriteLock(repo.Path(), func() error {
		fetchCtx := ctx
		if timeout := oc.manager.Config().FetchTimeout; timeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return repo.Fetch(fetchCtx, git.FetchOptions{
			RefSpecs:  refSpecs,
			RemoteURL: root.FetchURL,
			Auth:      root.Auth,
		})
	})
}

// Close releases every repository handle the context opened. Every handle
// gets a close attempt even when earlier ones fail; each failure is logged
// and the last one is returned.
func (oc *OperationContext) Close() error {
	var lastErr error
	for _, dir := range oc.order {
		if err := oc.repos[dir].Close(); err != nil {
			oc.log.Warn("failed to close repository", "dir", dir, "error", err)
			lastErr = err
		}
	}
	oc.repos = make(map[string]*git.Repository)
	oc.order = nil
	return lastErr
}

// wrapError stamps an error with the operation and root it happened in,
// the single funnel every collector entry point reports through.
func (oc *OperationContext) wrapError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s failed for %s: %w", capitalize(oc.op), oc.root, err)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
