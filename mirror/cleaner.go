package mirror

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	git "github.com/pjreed/teamcity-git-plugin"
)

// Cleaner removes mirrors that have not been used within the configured
// expiration and optionally repacks the survivors. One cleanup pass runs
// at a time; overlapping calls to RunOnce serialize on an internal mutex.
type Cleaner struct {
	manager *Manager
	log     *slog.Logger
	mu      sync.Mutex
}

// NewCleaner creates a Cleaner for the Manager's caches directory.
func NewCleaner(manager *Manager) *Cleaner {
	return &Cleaner{
		manager: manager,
		log:     manager.log.With("component", "cleaner"),
	}
}

// Start runs cleanup passes in the background at the configured interval.
//
// Returns a function to stop the background cleaner. This function is safe
// to call multiple times and will block until the cleanup goroutine has
// fully stopped. The stop function should be called on shutdown or
// deferred to ensure clean shutdown.
func (c *Cleaner) Start() (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()

		ticker := time.NewTicker(c.manager.cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.RunOnce(); err != nil {
					c.log.Error("cleanup pass failed", "error", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}
}

// RunOnce performs a single cleanup pass: expired mirrors are removed,
// and when repacking is enabled the remaining mirrors are repacked.
func (c *Cleaner) RunOnce() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()

	removed, err := c.removeExpired()
	if err != nil {
		return err
	}

	repacked := 0
	if c.manager.cfg.RepackOnCleanup {
		repacked = c.repackRemaining()
	}

	c.log.Info("cleanup finished",
		"removed", removed, "repacked", repacked, "duration", time.Since(start))
	return nil
}

// removeExpired deletes every mirror directory whose last use is older
// than the expiration. A directory that fails to delete is logged and left
// for the next pass.
func (c *Cleaner) removeExpired() (int, error) {
	now := time.Now()
	expired, err := c.manager.ExpiredDirs(now)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, dir := range expired {
		c.log.Info("removing expired mirror",
			"dir", dir, "idle", now.Sub(c.manager.LastUsed(dir)))
		if err := c.manager.RemoveMirror(dir); err != nil {
			c.log.Warn("failed to remove expired mirror", "dir", dir, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// repackRemaining repacks every indexed mirror still present in the caches
// directory. Directories the index does not know about are skipped, and a
// mirror that fails to repack is logged and left as is.
func (c *Cleaner) repackRemaining() int {
	entries, err := c.manager.fs.ReadDir(c.manager.cfg.CachesDir)
	if err != nil {
		c.log.Warn("failed to list caches directory", "error", err)
		return 0
	}

	repacked := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		url, ok := c.manager.index.urlOf(entry.Name())
		if !ok {
			continue
		}
		dir := filepath.Join(c.manager.cfg.CachesDir, entry.Name())

		err := c.manager.RunWithWriteLock(dir, func() error {
			result, err := git.OpenMirror(dir, url, git.WithFilesystem(c.manager.fs))
			if err != nil || result.Status != git.OpenValid {
				return err
			}
			defer result.Repository.Close()
			return result.Repository.Repack()
		})
		if err != nil {
			c.log.Warn("failed to repack mirror", "dir", dir, "error", err)
			continue
		}
		repacked++
	}
	return repacked
}
