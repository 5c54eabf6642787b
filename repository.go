package git

import (
	"errors"
	"io/fs"

	gogit "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/storage/filesystem"
	platformerrors "github.com/jmgilman/go/errors"
)

// Every mirror carries a marker in its git config binding the directory to
// exactly one remote:
//
//	[teamcity]
//		remote = <canonical URL>
//
// The marker is what makes a directory safely reusable across processes: a
// mirror is only ever read or written on behalf of the remote it was
// created for.
const (
	markerSection = "teamcity"
	markerOption  = "remote"
)

// mirrorFetchSpec is the refspec configured on the origin remote of every
// mirror: remote branches keep their names locally. Fetches name explicit
// refspecs, so the configured spec only matters for plain fetch calls.
const mirrorFetchSpec = "+refs/heads/*:refs/heads/*"

// OpenMirror opens the bare repository at dir and checks that it is bound
// to remoteURL. The outcome is reported in the result's Status field; only
// OpenValid carries a usable Repository. The error return is reserved for
// directories that cannot hold a mirror at all, such as a path occupied by
// a regular file.
//
// remoteURL is compared byte for byte against the stored marker, so
// callers are expected to pass the canonical form on both sides.
func OpenMirror(dir, remoteURL string, opts ...RepositoryOption) (OpenResult, error) {
	options := newRepositoryOptions(opts)

	stat, err := options.fs.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return OpenResult{Status: OpenMissing}, nil
	}
	if err != nil {
		return OpenResult{}, wrapError(err, "stat mirror directory "+dir)
	}
	if !stat.IsDir() {
		return OpenResult{}, platformerrors.Newf(platformerrors.CodeConflict,
			"mirror path %q is occupied by a non-directory", dir)
	}

	scoped, err := options.fs.Chroot(dir)
	if err != nil {
		return OpenResult{}, wrapError(err, "open mirror directory "+dir)
	}

	storage := filesystem.NewStorage(scoped, cache.NewObjectLRUDefault())
	repo, err := gogit.Open(storage, nil)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		return OpenResult{Status: OpenMissing}, nil
	}
	if err != nil {
		return OpenResult{Status: OpenCorrupt, Reason: err}, nil
	}

	remote, err := markerRemote(repo)
	if err != nil {
		return OpenResult{Status: OpenCorrupt, Reason: err}, nil
	}
	if remote != remoteURL {
		return OpenResult{Status: OpenStale, Remote: remote}, nil
	}

	return OpenResult{
		Repository: &Repository{path: dir, url: remoteURL, repo: repo, storage: storage, fs: scoped},
		Status:     OpenValid,
		Remote:     remote,
	}, nil
}

// InitMirror creates a bare repository at dir bound to remoteURL, or
// adopts an existing one. Adopting stamps the remote marker onto a
// repository that has none; a repository already bound to a different
// remote is rejected with CodeConflict. InitMirror never discards objects,
// so re-running it against a valid mirror is cheap and safe.
func InitMirror(dir, remoteURL string, opts ...RepositoryOption) (*Repository, error) {
	options := newRepositoryOptions(opts)

	if err := options.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, wrapError(err, "create mirror directory "+dir)
	}
	scoped, err := options.fs.Chroot(dir)
	if err != nil {
		return nil, wrapError(err, "open mirror directory "+dir)
	}

	storage := filesystem.NewStorage(scoped, cache.NewObjectLRUDefault())
	repo, err := gogit.Open(storage, nil)
	switch {
	case errors.Is(err, gogit.ErrRepositoryNotExists):
		repo, err = gogit.Init(storage, nil)
		if err != nil {
			return nil, wrapError(err, "initialize mirror at "+dir)
		}
	case err != nil:
		return nil, wrapError(err, "open mirror at "+dir)
	}

	existing, err := markerRemote(repo)
	if err != nil {
		return nil, wrapError(err, "read mirror config at "+dir)
	}
	if existing != "" && existing != remoteURL {
		return nil, platformerrors.Newf(platformerrors.CodeConflict,
			"directory %q is already used to mirror %q and cannot mirror %q; remove it or pick another directory",
			dir, existing, remoteURL)
	}
	if existing == "" {
		if err := stampMarker(repo, remoteURL); err != nil {
			return nil, wrapError(err, "stamp remote marker at "+dir)
		}
	}
	if err := ensureOrigin(repo, remoteURL); err != nil {
		return nil, err
	}

	return &Repository{path: dir, url: remoteURL, repo: repo, storage: storage, fs: scoped}, nil
}

// Repack rewrites the mirror's loose and packed objects into a single pack
// and deletes the packs it replaced.
func (r *Repository) Repack() error {
	if err := r.repo.RepackObjects(&gogit.RepackConfig{}); err != nil {
		return wrapError(err, "repack "+r.path)
	}
	return nil
}

// markerRemote reads the remote marker from the repository config. An
// unmarked repository yields the empty string.
func markerRemote(repo *gogit.Repository) (string, error) {
	cfg, err := repo.Config()
	if err != nil {
		return "", err
	}
	return cfg.Raw.Section(markerSection).Option(markerOption), nil
}

func stampMarker(repo *gogit.Repository, remoteURL string) error {
	cfg, err := repo.Config()
	if err != nil {
		return err
	}
	cfg.Raw.Section(markerSection).SetOption(markerOption, remoteURL)
	return repo.SetConfig(cfg)
}

// ensureOrigin makes sure the origin remote exists. An adopted repository
// may already carry an origin pointing elsewhere; it is left alone since
// fetches pass the remote URL explicitly.
func ensureOrigin(repo *gogit.Repository, remoteURL string) error {
	_, err := repo.Remote(originRemote)
	if errors.Is(err, gogit.ErrRemoteNotFound) {
		_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
			Name:  originRemote,
			URLs:  []string{remoteURL},
			Fetch: []gitconfig.RefSpec{mirrorFetchSpec},
		})
	}
	if err != nil {
		return wrapError(err, "configure origin remote")
	}
	return nil
}
