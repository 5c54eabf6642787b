// Package mirror maintains the shared directory of bare Git mirrors that
// change collection reads from.
//
// # Overview
//
// Every remote URL is materialized at most once, as a bare repository in a
// directory derived from the canonical form of the URL. The package keeps
// that invariant across concurrent builds and across processes sharing the
// same caches directory:
//
//  1. Manager: maps fetch URLs to directories and opens, creates or
//     recreates the mirrors behind them
//  2. DirectoryLocks: per-directory create, write and remove locks
//  3. Cleaner: background removal of mirrors nothing has used for a while
//
// # Layout
//
// All mirrors live flat under one base directory:
//
//	<caches dir>/
//	├── mirrors.json                # canonical URL → directory name
//	├── git-0a1b2c3d4e5f.git/       # bare mirror
//	│   └── timestamp               # last-used sidecar (epoch millis)
//	└── git-9f8e7d6c5b4a.git/
//	    └── timestamp
//
// The mirrors.json index persists the name assignment so directories
// survive restarts and naming-scheme changes. Each mirror also carries a
// remote marker inside its git config; the index is a lookup aid while the
// marker is the authority on which remote a directory belongs to.
//
// # Usage
//
// Create a manager over a caches directory and resolve mirrors by URL:
//
//	manager, err := mirror.NewManager(cfg)
//	if err != nil {
//	    return err
//	}
//
//	repo, err := manager.GetRepository("https://github.com/my/repo")
//	defer repo.Close()
//
// Start the background cleaner:
//
//	cleaner := mirror.NewCleaner(manager)
//	stop := cleaner.Start()
//	defer stop()
//
// # Locking
//
// Three lock kinds guard every directory. Creation holds the directory's
// remove lock in read mode plus its create lock; fetches and timestamp
// updates hold the remove lock in read mode plus the write lock; only
// removal takes the remove lock in write mode, so the cleaner waits out
// in-flight work and nothing opens a directory mid-deletion. Create and
// write locks do not exclude each other; the create path never mutates an
// already-valid mirror, so the two kinds never contend for the same bytes.
package mirror
