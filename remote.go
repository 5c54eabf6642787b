package git

import (
	"context"
	"errors"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// originRemote is the remote name every mirror fetches through.
const originRemote = "origin"

// FetchOptions configures one fetch into a mirror.
type FetchOptions struct {
	// RefSpecs name what to fetch, in "src:dst" form. Every spec is
	// applied force-updated whether or not it carries a leading plus.
	RefSpecs []string

	// RemoteURL overrides the configured origin URL for this fetch.
	// Mirrors are keyed by canonical URL while fetches use the root's
	// original URL, which may carry credentials or a syntax the canonical
	// form drops.
	RemoteURL string

	// Auth carries the transport credentials. Nil means anonymous.
	Auth Auth
}

// RemoteRefs is a remote's advertisement: every ref it serves and, when
// advertised, the ref its HEAD points at.
type RemoteRefs struct {
	// Refs maps fully qualified ref names to revisions.
	Refs map[string]string

	// HEAD is the fully qualified name of the remote's default branch,
	// empty when the remote does not advertise one.
	HEAD string
}

// Branches returns the advertised branches as a short-name to revision
// map.
func (r *RemoteRefs) Branches() map[string]string {
	branches := make(map[string]string)
	for name, revision := range r.Refs {
		if strings.HasPrefix(name, "refs/heads/") {
			branches[ShortBranchName(name)] = revision
		}
	}
	return branches
}

// Has reports whether the remote advertises the fully qualified ref.
func (r *RemoteRefs) Has(ref string) bool {
	_, ok := r.Refs[ref]
	return ok
}

// RemoteOperations defines the interface for Git remote network operations.
// This interface allows for testing by enabling mock implementations that
// don't require actual network access.
//
// The default implementation (defaultRemoteOps) delegates to go-git's
// network operations. Tests can replace the package-level remoteOps variable
// with a mock implementation to avoid network calls.
type RemoteOperations interface {
	// Fetch downloads the named refs and their objects into the mirror.
	Fetch(ctx context.Context, repo *Repository, opts FetchOptions) error

	// ListRefs retrieves the advertisement of the remote at url.
	ListRefs(ctx context.Context, url string, auth Auth) (*RemoteRefs, error)
}

// defaultRemoteOps is the default implementation of RemoteOperations that
// uses go-git's network operations to interact with remote repositories.
type defaultRemoteOps struct{}

// remoteOps is the package-level variable that holds the RemoteOperations
// implementation. By default, it uses defaultRemoteOps which performs actual
// network operations. Tests can replace this with a mock implementation.
var remoteOps RemoteOperations = &defaultRemoteOps{}

// Fetch updates the mirror from its remote. Refs named by the options are
// force-updated; a fetch that brings nothing new is not an error.
//
// The fetch operation uses the package-level remoteOps interface, which
// allows tests to mock network operations.
//
// Example:
//
//	err := repo.Fetch(ctx, git.FetchOptions{
//	    RefSpecs:  []string{"refs/heads/main:refs/heads/main"},
//	    RemoteURL: root.FetchURL,
//	    Auth:      root.Auth,
//	})
func (r *Repository) Fetch(ctx context.Context, opts FetchOptions) error {
	//nolint:wrapcheck // Errors from remoteOps are already wrapped in their implementations
	return remoteOps.Fetch(ctx, r, opts)
}

// ListRemoteRefs retrieves the advertisement of the remote at url without
// touching any local mirror.
//
// Example:
//
//	refs, err := git.ListRemoteRefs(ctx, root.FetchURL, root.Auth)
//	for name, revision := range refs.Refs {
//	    fmt.Printf("%s %s\n", revision, name)
//	}
func ListRemoteRefs(ctx context.Context, url string, auth Auth) (*RemoteRefs, error) {
	//nolint:wrapcheck // Errors from remoteOps are already wrapped in their implementations
	return remoteOps.ListRefs(ctx, url, auth)
}

// Fetch implements RemoteOperations.Fetch using go-git's FetchContext.
func (d *defaultRemoteOps) Fetch(ctx context.Context, repo *Repository, opts FetchOptions) error {
	specs := make([]gitconfig.RefSpec, 0, len(opts.RefSpecs))
	for _, spec := range opts.RefSpecs {
		if !strings.HasPrefix(spec, "+") {
			spec = "+" + spec
		}
		specs = append(specs, gitconfig.RefSpec(spec))
	}

	auth, err := authMethod(opts.Auth)
	if err != nil {
		return err
	}

	fetchOpts := &gogit.FetchOptions{
		RemoteName: originRemote,
		RemoteURL:  opts.RemoteURL,
		RefSpecs:   specs,
		Auth:       auth,
		Tags:       gogit.NoTags,
		Force:      true,
	}

	err = repo.repo.FetchContext(ctx, fetchOpts)
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return wrapError(err, "fetch into "+repo.path)
	}
	return nil
}

// ListRefs implements RemoteOperations.ListRefs with an anonymous remote
// over in-memory storage, the go-git equivalent of ls-remote.
func (d *defaultRemoteOps) ListRefs(ctx context.Context, url string, auth Auth) (*RemoteRefs, error) {
	method, err := authMethod(auth)
	if err != nil {
		return nil, err
	}

	remote := gogit.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: originRemote,
		URLs: []string{url},
	})
	refs, err := remote.ListContext(ctx, &gogit.ListOptions{Auth: method})
	if err != nil {
		return nil, wrapError(err, "list refs of "+url)
	}

	result := &RemoteRefs{Refs: make(map[string]string, len(refs))}
	for _, ref := range refs {
		switch ref.Type() {
		case plumbing.SymbolicReference:
			if ref.Name() == plumbing.HEAD {
				result.HEAD = ref.Target().String()
			}
		case plumbing.HashReference:
			result.Refs[ref.Name().String()] = ref.Hash().String()
		}
	}
	return result, nil
}
