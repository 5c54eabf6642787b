package mirror

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

const indexVersion = "1"

// indexFileName is the sidecar in the caches directory recording which
// directory each canonical URL was assigned.
const indexFileName = "mirrors.json"

// mirrorIndex persists the URL to directory-name assignment, so a mirror
// keeps its directory across restarts even if the naming scheme changes.
// It provides thread-safe access with JSON persistence.
type mirrorIndex struct {
	Version string            `json:"version"`
	Mirrors map[string]string `json:"mirrors"` // canonical URL → directory name

	mu   sync.Mutex
	fs   billy.Filesystem
	path string
	dirs map[string]string // directory name → canonical URL
}

// loadOrCreateIndex loads the index sidecar, or starts an empty one when
// the file does not exist. A corrupted or unsupported file is an error.
func loadOrCreateIndex(fs billy.Filesystem, path string) (*mirrorIndex, error) {
	index := &mirrorIndex{
		Version: indexVersion,
		Mirrors: make(map[string]string),
		fs:      fs,
		path:    path,
		dirs:    make(map[string]string),
	}

	if _, err := fs.Stat(path); os.IsNotExist(err) {
		return index, nil
	}

	data, err := util.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mirror index: %w", err)
	}
	if err := json.Unmarshal(data, index); err != nil {
		return nil, fmt.Errorf("failed to parse mirror index: %w", err)
	}
	if index.Version != indexVersion {
		return nil, fmt.Errorf("unsupported mirror index version: %s (expected %s)", index.Version, indexVersion)
	}
	if index.Mirrors == nil {
		index.Mirrors = make(map[string]string)
	}
	for url, dir := range index.Mirrors {
		index.dirs[dir] = url
	}
	return index, nil
}

// dirFor returns the directory name assigned to the canonical URL,
// deriving and persisting a fresh assignment when none exists yet. A
// derived name already claimed by another URL gets a numeric suffix.
func (idx *mirrorIndex) dirFor(canonical string) (string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if dir, ok := idx.Mirrors[canonical]; ok {
		return dir, nil
	}

	dir := dirNameFor(canonical, 0)
	for n := 1; ; n++ {
		if _, taken := idx.dirs[dir]; !taken {
			break
		}
		dir = dirNameFor(canonical, n)
	}

	idx.Mirrors[canonical] = dir
	idx.dirs[dir] = canonical
	if err := idx.save(); err != nil {
		delete(idx.Mirrors, canonical)
		delete(idx.dirs, dir)
		return "", err
	}
	return dir, nil
}

// remove drops the assignment for a directory name. Unknown names are
// ignored, keeping removal idempotent.
func (idx *mirrorIndex) remove(dir string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	canonical, ok := idx.dirs[dir]
	if !ok {
		return nil
	}
	delete(idx.dirs, dir)
	delete(idx.Mirrors, canonical)
	return idx.save()
}

// urlOf returns the canonical URL a directory name is assigned to.
func (idx *mirrorIndex) urlOf(dir string) (string, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	url, ok := idx.dirs[dir]
	return url, ok
}

// entries returns a copy of the URL → directory assignment.
func (idx *mirrorIndex) entries() map[string]string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	result := make(map[string]string, len(idx.Mirrors))
	for url, dir := range idx.Mirrors {
		result[url] = dir
	}
	return result
}

// save writes the index to disk atomically via a temp file and rename.
// Callers hold idx.mu.
func (idx *mirrorIndex) save() error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal mirror index: %w", err)
	}

	tmpPath := idx.path + ".tmp"
	tmpFile, err := idx.fs.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary index file: %w", err)
	}

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		_ = idx.fs.Remove(tmpPath)
		return fmt.Errorf("failed to write temporary index file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		_ = idx.fs.Remove(tmpPath)
		return fmt.Errorf("failed to close temporary index file: %w", err)
	}

	// Rename to final path (atomic on POSIX systems)
	if err := idx.fs.Rename(tmpPath, idx.path); err != nil {
		_ = idx.fs.Remove(tmpPath)
		return fmt.Errorf("failed to rename index file: %w", err)
	}

	return nil
}

// dirNameFor derives the directory name for a canonical URL. A short
// digest keeps names uniform and filesystem-safe regardless of the URL's
// length or characters; n distinguishes colliding digests.
func dirNameFor(canonical string, n int) string {
	sum := sha256.Sum256([]byte(canonical))
	if n == 0 {
		return fmt.Sprintf("git-%x.git", sum[:6])
	}
	return fmt.Sprintf("git-%x-%d.git", sum[:6], n)
}
