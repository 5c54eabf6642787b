package mirror

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/util"
	platformerrors "github.com/jmgilman/go/errors"

	git "github.com/pjreed/teamcity-git-plugin"
)

// timestampFile sits inside each mirror directory and records, as decimal
// epoch milliseconds, when the mirror was last requested.
const timestampFile = "timestamp"

// NewManager creates a Manager rooted at cfg.CachesDir. The directory and
// the mirror index are created on first use. Zero durations and counts in
// cfg fall back to the package defaults.
func NewManager(cfg git.Config, opts ...ManagerOption) (*Manager, error) {
	if cfg.CachesDir == "" {
		return nil, platformerrors.New(platformerrors.CodeInvalidConfig, "caches directory is not set")
	}
	cfg = cfg.WithDefaults()

	options := newManagerOptions(opts...)

	if err := options.fs.MkdirAll(cfg.CachesDir, 0o755); err != nil {
		return nil, platformerrors.Wrap(err, platformerrors.CodeInvalidConfig,
			"create caches directory "+cfg.CachesDir)
	}
	index, err := loadOrCreateIndex(options.fs, filepath.Join(cfg.CachesDir, indexFileName))
	if err != nil {
		return nil, platformerrors.Wrap(err, platformerrors.CodeInvalidConfig, "load mirror index")
	}

	return &Manager{
		cfg:   cfg,
		fs:    options.fs,
		locks: NewDirectoryLocks(),
		index: index,
		log:   options.log,
	}, nil
}

// BaseDir returns the caches directory all default mirrors live under.
func (m *Manager) BaseDir() string {
	return m.cfg.CachesDir
}

// Config returns the configuration the Manager was created with.
func (m *Manager) Config() git.Config {
	return m.cfg
}

// Locks exposes the per-directory lock tables shared by everything
// operating on this Manager's mirrors.
func (m *Manager) Locks() *DirectoryLocks {
	return m.locks
}

// MirrorDir maps a fetch URL to the mirror directory assigned to it under
// the caches directory. The assignment is stable: the same URL (up to
// canonicalization) always maps to the same directory.
func (m *Manager) MirrorDir(fetchURL string) (string, error) {
	canonical, err := Canonicalize(fetchURL)
	if err != nil {
		return "", err
	}
	name, err := m.index.dirFor(canonical)
	if err != nil {
		return "", platformerrors.Wrap(err, platformerrors.CodeInternal, "assign mirror directory")
	}
	return filepath.Join(m.cfg.CachesDir, name), nil
}

// GetRepository returns a usable mirror for the fetch URL, creating or
// repairing the repository in its assigned directory as needed. The caller
// owns the returned handle and must Close it.
func (m *Manager) GetRepository(fetchURL string) (*git.Repository, error) {
	dir, err := m.MirrorDir(fetchURL)
	if err != nil {
		return nil, err
	}
	return m.GetRepositoryAt(dir, fetchURL)
}

// GetRepositoryAt returns a usable mirror for the fetch URL in an explicit
// directory. Directories under the caches directory are refreshed and may
// be recreated when stale or unreadable; a directory elsewhere is treated
// as user-managed, and a repository already bound to a different remote is
// a conflict rather than something to wipe.
func (m *Manager) GetRepositoryAt(dir, fetchURL string) (*git.Repository, error) {
	canonical, err := Canonicalize(fetchURL)
	if err != nil {
		return nil, err
	}

	if m.isDefaultDir(dir) {
		if err := m.UpdateLastUsed(dir); err != nil {
			m.log.Warn("failed to update mirror timestamp", "dir", dir, "error", err)
		}
	}

	if repo := m.openValid(dir, canonical); repo != nil {
		return repo, nil
	}
	return m.createRepository(dir, canonical)
}

// openValid is the fast path: it opens the mirror when it is already
// present and bound to the canonical URL. Any other outcome returns nil
// and the caller goes through createRepository under the create lock.
func (m *Manager) openValid(dir, canonical string) *git.Repository {
	removeLock := m.locks.RemoveLock(dir)
	removeLock.RLock()
	defer removeLock.RUnlock()

	result, err := git.OpenMirror(dir, canonical, git.WithFilesystem(m.fs))
	if err != nil || result.Status != git.OpenValid {
		return nil
	}
	return result.Repository
}

// createRepository creates or repairs the mirror at dir under the
// directory's create lock, re-probing first because another goroutine may
// have finished the same work while this one waited.
func (m *Manager) createRepository(dir, canonical string) (*git.Repository, error) {
	removeLock := m.locks.RemoveLock(dir)
	removeLock.RLock()
	defer removeLock.RUnlock()

	createLock := m.locks.CreateLock(dir)
	createLock.Lock()
	defer createLock.Unlock()

	result, err := git.OpenMirror(dir, canonical, git.WithFilesystem(m.fs))
	if err != nil {
		return nil, err
	}

	switch result.Status {
	case git.OpenValid:
		return result.Repository, nil

	case git.OpenMissing:
		// Nothing on disk yet.

	case git.OpenStale:
		// An unbound repository is adopted in place: InitMirror stamps
		// the marker without discarding objects.
		if result.Remote != "" {
			if !m.isDefaultDir(dir) {
				return nil, platformerrors.Newf(platformerrors.CodeConflict,
					"directory %q already mirrors %q and cannot be reused for %q; remove it or pick another directory",
					dir, result.Remote, canonical)
			}
			m.log.Info("recreating mirror bound to a different remote",
				"dir", dir, "old", result.Remote, "new", canonical)
			if err := m.wipeDir(dir); err != nil {
				return nil, err
			}
		}

	case git.OpenCorrupt:
		if !m.isDefaultDir(dir) {
			return nil, platformerrors.Wrapf(result.Reason, platformerrors.CodeConflict,
				"directory %q holds an unreadable repository", dir)
		}
		m.log.Warn("recreating unreadable mirror", "dir", dir, "error", result.Reason)
		if err := m.wipeDir(dir); err != nil {
			return nil, err
		}
	}

	repo, err := git.InitMirror(dir, canonical, git.WithFilesystem(m.fs))
	if err != nil {
		return nil, err
	}
	m.log.Info("created mirror", "dir", dir, "url", canonical)
	return repo, nil
}

// UpdateLastUsed stamps the mirror's timestamp file with the current time.
// The directory is created if it does not exist yet, so the stamp survives
// even when repository creation later fails.
func (m *Manager) UpdateLastUsed(dir string) error {
	removeLock := m.locks.RemoveLock(dir)
	removeLock.RLock()
	defer removeLock.RUnlock()

	writeLock := m.locks.WriteLock(dir)
	writeLock.Lock()
	defer writeLock.Unlock()

	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return platformerrors.Wrap(err, platformerrors.CodeInternal, "create mirror directory "+dir)
	}
	stamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := util.WriteFile(m.fs, filepath.Join(dir, timestampFile), []byte(stamp), 0o644); err != nil {
		return platformerrors.Wrap(err, platformerrors.CodeInternal, "write mirror timestamp in "+dir)
	}
	return nil
}

// LastUsed reports when the mirror at dir was last requested. It prefers
// the timestamp file and falls back to the directory's modification time;
// a directory with neither yields the zero time.
func (m *Manager) LastUsed(dir string) time.Time {
	data, err := util.ReadFile(m.fs, filepath.Join(dir, timestampFile))
	if err == nil {
		line, _, _ := strings.Cut(string(data), "\n")
		if millis, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64); err == nil {
			return time.UnixMilli(millis)
		}
	}
	if info, err := m.fs.Stat(dir); err == nil {
		return info.ModTime()
	}
	return time.Time{}
}

// ExpiredDirs lists the mirror directories whose last use is further in
// the past than the configured expiration, measured against now.
func (m *Manager) ExpiredDirs(now time.Time) ([]string, error) {
	entries, err := m.fs.ReadDir(m.cfg.CachesDir)
	if err != nil {
		return nil, platformerrors.Wrap(err, platformerrors.CodeInternal,
			"list caches directory "+m.cfg.CachesDir)
	}

	var expired []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.cfg.CachesDir, entry.Name())
		if now.Sub(m.LastUsed(dir)) > m.cfg.MirrorExpiration {
			expired = append(expired, dir)
		}
	}
	return expired, nil
}

// RemoveMirror deletes the mirror directory and releases its index
// assignment, so the next request for the same URL recreates it from
// scratch. The directory's remove lock is held exclusively for the
// duration, which waits out every reader, creator and writer.
func (m *Manager) RemoveMirror(dir string) error {
	removeLock := m.locks.RemoveLock(dir)
	removeLock.Lock()
	defer removeLock.Unlock()

	if err := m.wipeDir(dir); err != nil {
		return err
	}
	if err := m.index.remove(filepath.Base(dir)); err != nil {
		return platformerrors.Wrap(err, platformerrors.CodeInternal, "update mirror index")
	}
	m.log.Info("removed mirror", "dir", dir)
	return nil
}

// RunWithWriteLock runs fn while holding the directory's write lock,
// serializing it against other writers and against removal. Fetches and
// repacks go through here.
func (m *Manager) RunWithWriteLock(dir string, fn func() error) error {
	removeLock := m.locks.RemoveLock(dir)
	removeLock.RLock()
	defer removeLock.RUnlock()

	writeLock := m.locks.WriteLock(dir)
	writeLock.Lock()
	defer writeLock.Unlock()

	return fn()
}

// isDefaultDir reports whether dir sits directly under the caches
// directory, meaning the Manager owns its lifecycle.
func (m *Manager) isDefaultDir(dir string) bool {
	return filepath.Dir(dir) == filepath.Clean(m.cfg.CachesDir)
}

func (m *Manager) wipeDir(dir string) error {
	if err := util.RemoveAll(m.fs, dir); err != nil {
		return platformerrors.Wrap(err, platformerrors.CodeInternal, "remove mirror directory "+dir)
	}
	return nil
}
