package mirror

import "sync"

// DirectoryLocks hands out the per-directory locks that serialize mirror
// work. Three independent kinds exist for every directory:
//
//   - create locks serialize mirror creation and recreation
//   - write locks serialize fetches and other in-place mutation
//   - remove locks are read/write: creation and mutation hold the read
//     side, removal takes the write side
//
// Locks are created on first use, and every caller naming the same
// directory gets the same lock instance. Entries are never dropped, so the
// registry grows with the number of distinct directories touched over the
// life of the process.
type DirectoryLocks struct {
	create sync.Map // dir → *sync.Mutex
	write  sync.Map // dir → *sync.Mutex
	remove sync.Map // dir → *sync.RWMutex
}

// NewDirectoryLocks returns an empty registry.
func NewDirectoryLocks() *DirectoryLocks {
	return &DirectoryLocks{}
}

// CreateLock returns the creation lock for dir.
func (l *DirectoryLocks) CreateLock(dir string) *sync.Mutex {
	return mutexFor(&l.create, dir)
}

// WriteLock returns the write lock for dir.
func (l *DirectoryLocks) WriteLock(dir string) *sync.Mutex {
	return mutexFor(&l.write, dir)
}

// RemoveLock returns the remove lock for dir.
func (l *DirectoryLocks) RemoveLock(dir string) *sync.RWMutex {
	if lock, ok := l.remove.Load(dir); ok {
		return lock.(*sync.RWMutex)
	}
	lock, _ := l.remove.LoadOrStore(dir, &sync.RWMutex{})
	return lock.(*sync.RWMutex)
}

func mutexFor(table *sync.Map, dir string) *sync.Mutex {
	if lock, ok := table.Load(dir); ok {
		return lock.(*sync.Mutex)
	}
	lock, _ := table.LoadOrStore(dir, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
