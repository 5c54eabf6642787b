package testutil

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// RepoBuilder grows a commit graph inside a bare repository. Every commit
// is written directly to the object database: blobs, trees, the commit and
// the branch ref, with a deterministic clock supplying the timestamps.
// Failures abort the test immediately, so fixture code stays linear.
type RepoBuilder struct {
	t     *testing.T
	repo  *gogit.Repository
	clock time.Time
}

// NewSourceRepo initializes a bare repository at dir and returns a builder
// over it. The directory then works as the remote end of clone and fetch
// calls: a local path is a valid fetch URL. fs must be the real filesystem
// for that to hold; the transport runs outside the process.
func NewSourceRepo(t *testing.T, fs billy.Filesystem, dir string) *RepoBuilder {
	t.Helper()

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create source repo directory: %v", err)
	}
	scoped, err := fs.Chroot(dir)
	if err != nil {
		t.Fatalf("failed to scope source repo directory: %v", err)
	}
	repo, err := gogit.Init(filesystem.NewStorage(scoped, cache.NewObjectLRUDefault()), nil)
	if err != nil {
		t.Fatalf("failed to init source repo: %v", err)
	}
	return NewRepoBuilder(t, repo)
}

// NewRepoBuilder wraps an already open repository, typically a mirror the
// test wants extra history in.
func NewRepoBuilder(t *testing.T, repo *gogit.Repository) *RepoBuilder {
	t.Helper()
	return &RepoBuilder{t: t, repo: repo, clock: commitEpoch}
}

// Repo returns the underlying go-git repository.
func (b *RepoBuilder) Repo() *gogit.Repository {
	return b.repo
}

// Commit writes one commit on branch and returns its revision. files
// overlay the branch tip's tree; a branch with no commits yet starts from
// an empty tree and becomes the commit's branch.
func (b *RepoBuilder) Commit(branch, message string, files map[string]string) string {
	b.t.Helper()
	return b.commit(branch, message, files, nil)
}

// Remove writes a commit on branch that deletes the given paths.
func (b *RepoBuilder) Remove(branch, message string, paths ...string) string {
	b.t.Helper()
	return b.commit(branch, message, nil, paths)
}

// Merge writes a merge commit on branch with from as the second parent.
// The merged tree is branch's tree overlaid with from's; tests that care
// about conflict resolution semantics should not.
func (b *RepoBuilder) Merge(branch, from, message string) string {
	b.t.Helper()

	target := b.tipHash(branch)
	source := b.tipHash(from)
	snapshot := b.snapshotOf(target)
	for path, blob := range b.snapshotOf(source) {
		snapshot[path] = blob
	}
	hash := b.writeCommit(message, b.writeTree(snapshot), []plumbing.Hash{target, source})
	b.setBranch(branch, hash)
	return hash.String()
}

// Branch points a new branch at the tip of an existing one.
func (b *RepoBuilder) Branch(name, from string) {
	b.t.Helper()
	b.setBranch(name, b.tipHash(from))
}

// DeleteBranch removes the branch ref, leaving its commits in place.
func (b *RepoBuilder) DeleteBranch(name string) {
	b.t.Helper()
	if err := b.repo.Storer.RemoveReference(plumbing.NewBranchReferenceName(name)); err != nil {
		b.t.Fatalf("failed to delete branch %s: %v", name, err)
	}
}

// Head points the repository's HEAD at the branch, which is what the
// remote's advertisement reports as the default branch.
func (b *RepoBuilder) Head(branch string) {
	b.t.Helper()
	ref := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))
	if err := b.repo.Storer.SetReference(ref); err != nil {
		b.t.Fatalf("failed to set HEAD: %v", err)
	}
}

// Tip returns the revision the branch currently points at.
func (b *RepoBuilder) Tip(branch string) string {
	b.t.Helper()
	return b.tipHash(branch).String()
}

// CommitTime returns the committer time recorded in the commit, the time
// component of the commit's version string.
func (b *RepoBuilder) CommitTime(revision string) time.Time {
	b.t.Helper()
	commit, err := object.GetCommit(b.repo.Storer, plumbing.NewHash(revision))
	if err != nil {
		b.t.Fatalf("failed to read commit %s: %v", revision, err)
	}
	return commit.Committer.When
}

// AnnotatedTag writes an annotated tag object pointing at the branch tip
// and returns the tag object's revision, the thing that needs peeling.
func (b *RepoBuilder) AnnotatedTag(name, branch, message string) string {
	b.t.Helper()

	b.clock = b.clock.Add(time.Minute)
	tag := &object.Tag{
		Name:       name,
		Message:    message,
		TargetType: plumbing.CommitObject,
		Target:     b.tipHash(branch),
		Tagger:     object.Signature{Name: TestAuthor, Email: TestEmail, When: b.clock},
	}
	obj := b.repo.Storer.NewEncodedObject()
	if err := tag.Encode(obj); err != nil {
		b.t.Fatalf("failed to encode tag: %v", err)
	}
	hash, err := b.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		b.t.Fatalf("failed to store tag: %v", err)
	}
	refName := plumbing.NewTagReferenceName(name)
	if err := b.repo.Storer.SetReference(plumbing.NewHashReference(refName, hash)); err != nil {
		b.t.Fatalf("failed to set tag ref: %v", err)
	}
	return hash.String()
}

// BlobBranch points a branch ref directly at a raw blob and returns the
// blob's revision, for exercising tips that do not resolve to commits.
func (b *RepoBuilder) BlobBranch(name, content string) string {
	b.t.Helper()
	hash := b.writeBlob(content)
	b.setBranch(name, hash)
	return hash.String()
}

func (b *RepoBuilder) commit(branch, message string, files map[string]string, deletes []string) string {
	b.t.Helper()

	refName := plumbing.NewBranchReferenceName(branch)
	var parents []plumbing.Hash
	snapshot := map[string]plumbing.Hash{}
	if ref, err := b.repo.Reference(refName, true); err == nil {
		parents = append(parents, ref.Hash())
		snapshot = b.snapshotOf(ref.Hash())
	}

	for path, content := range files {
		snapshot[path] = b.writeBlob(content)
	}
	for _, path := range deletes {
		delete(snapshot, path)
	}

	hash := b.writeCommit(message, b.writeTree(snapshot), parents)
	b.setBranch(branch, hash)
	return hash.String()
}

// snapshotOf reads the commit's full tree as a path → blob map.
func (b *RepoBuilder) snapshotOf(commit plumbing.Hash) map[string]plumbing.Hash {
	b.t.Helper()

	c, err := object.GetCommit(b.repo.Storer, commit)
	if err != nil {
		b.t.Fatalf("failed to read commit %s: %v", commit, err)
	}
	tree, err := c.Tree()
	if err != nil {
		b.t.Fatalf("failed to read tree of %s: %v", commit, err)
	}

	snapshot := map[string]plumbing.Hash{}
	err = tree.Files().ForEach(func(f *object.File) error {
		snapshot[f.Name] = f.Hash
		return nil
	})
	if err != nil {
		b.t.Fatalf("failed to list tree of %s: %v", commit, err)
	}
	return snapshot
}

func (b *RepoBuilder) writeBlob(content string) plumbing.Hash {
	b.t.Helper()

	obj := b.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(content)))
	w, err := obj.Writer()
	if err != nil {
		b.t.Fatalf("failed to open blob writer: %v", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		b.t.Fatalf("failed to write blob: %v", err)
	}
	if err := w.Close(); err != nil {
		b.t.Fatalf("failed to close blob writer: %v", err)
	}
	hash, err := b.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		b.t.Fatalf("failed to store blob: %v", err)
	}
	return hash
}

// writeTree encodes the snapshot as nested tree objects and returns the
// root tree's hash. Entries are sorted the way git sorts them, with
// directory names compared as if they ended in a slash.
func (b *RepoBuilder) writeTree(snapshot map[string]plumbing.Hash) plumbing.Hash {
	b.t.Helper()

	entries := make([]object.TreeEntry, 0, len(snapshot))
	subtrees := map[string]map[string]plumbing.Hash{}
	for path, blob := range snapshot {
		dir, rest, nested := strings.Cut(path, "/")
		if !nested {
			entries = append(entries, object.TreeEntry{Name: path, Mode: filemode.Regular, Hash: blob})
			continue
		}
		if subtrees[dir] == nil {
			subtrees[dir] = map[string]plumbing.Hash{}
		}
		subtrees[dir][rest] = blob
	}
	for name, sub := range subtrees {
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: b.writeTree(sub)})
	}

	sort.Slice(entries, func(i, j int) bool {
		return treeSortKey(entries[i]) < treeSortKey(entries[j])
	})

	tree := &object.Tree{Entries: entries}
	obj := b.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		b.t.Fatalf("failed to encode tree: %v", err)
	}
	hash, err := b.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		b.t.Fatalf("failed to store tree: %v", err)
	}
	return hash
}

func treeSortKey(entry object.TreeEntry) string {
	if entry.Mode == filemode.Dir {
		return entry.Name + "/"
	}
	return entry.Name
}

func (b *RepoBuilder) writeCommit(message string, tree plumbing.Hash, parents []plumbing.Hash) plumbing.Hash {
	b.t.Helper()

	b.clock = b.clock.Add(time.Minute)
	sig := object.Signature{Name: TestAuthor, Email: TestEmail, When: b.clock}
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     tree,
		ParentHashes: parents,
	}
	obj := b.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		b.t.Fatalf("failed to encode commit: %v", err)
	}
	hash, err := b.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		b.t.Fatalf("failed to store commit: %v", err)
	}
	return hash
}

func (b *RepoBuilder) tipHash(branch string) plumbing.Hash {
	b.t.Helper()

	ref, err := b.repo.Reference(plumbing.NewBranchReferenceName(branch), false)
	if err != nil {
		b.t.Fatalf("failed to resolve branch %s: %v", branch, err)
	}
	return ref.Hash()
}

func (b *RepoBuilder) setBranch(name string, hash plumbing.Hash) {
	b.t.Helper()

	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), hash)
	if err := b.repo.Storer.SetReference(ref); err != nil {
		b.t.Fatalf("failed to set branch %s: %v", name, err)
	}
}
