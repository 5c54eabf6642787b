package mirror

import (
	"os"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
)

func newTestIndex(t *testing.T) (*mirrorIndex, billy.Filesystem, string) {
	t.Helper()

	fs := memfs.New()
	path := "/caches/" + indexFileName
	index, err := loadOrCreateIndex(fs, path)
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	return index, fs, path
}

func TestIndex_AssignStableAndPersisted(t *testing.T) {
	index, fs, path := newTestIndex(t)

	url := "https://github.com/my/repo"
	dir, err := index.dirFor(url)
	if err != nil {
		t.Fatalf("failed to assign directory: %v", err)
	}
	if !strings.HasPrefix(dir, "git-") || !strings.HasSuffix(dir, ".git") {
		t.Errorf("unexpected directory name %q", dir)
	}

	again, err := index.dirFor(url)
	if err != nil {
		t.Fatalf("failed to look up directory: %v", err)
	}
	if again != dir {
		t.Errorf("expected stable assignment, got %q then %q", dir, again)
	}

	// A fresh index over the same file sees the same assignment.
	reloaded, err := loadOrCreateIndex(fs, path)
	if err != nil {
		t.Fatalf("failed to reload index: %v", err)
	}
	loaded, err := reloaded.dirFor(url)
	if err != nil {
		t.Fatalf("failed to look up after reload: %v", err)
	}
	if loaded != dir {
		t.Errorf("expected %q after reload, got %q", dir, loaded)
	}
}

func TestIndex_DistinctURLsDistinctDirs(t *testing.T) {
	index, _, _ := newTestIndex(t)

	one, err := index.dirFor("https://github.com/my/repo")
	if err != nil {
		t.Fatalf("failed to assign first directory: %v", err)
	}
	two, err := index.dirFor("https://github.com/other/repo")
	if err != nil {
		t.Fatalf("failed to assign second directory: %v", err)
	}
	if one == two {
		t.Errorf("distinct URLs share directory %q", one)
	}
}

func TestIndex_CollisionGetsSuffix(t *testing.T) {
	index, _, _ := newTestIndex(t)

	url := "https://github.com/my/repo"
	derived := dirNameFor(url, 0)

	// Claim the derived name for someone else, as a digest collision would.
	index.dirs[derived] = "https://github.com/elsewhere/repo"

	dir, err := index.dirFor(url)
	if err != nil {
		t.Fatalf("failed to assign directory: %v", err)
	}
	if dir != dirNameFor(url, 1) {
		t.Errorf("expected suffixed name %q, got %q", dirNameFor(url, 1), dir)
	}
}

func TestIndex_RemoveReleasesAssignment(t *testing.T) {
	index, _, _ := newTestIndex(t)

	url := "https://github.com/my/repo"
	dir, err := index.dirFor(url)
	if err != nil {
		t.Fatalf("failed to assign directory: %v", err)
	}

	if err := index.remove(dir); err != nil {
		t.Fatalf("failed to remove assignment: %v", err)
	}
	if _, ok := index.urlOf(dir); ok {
		t.Error("expected assignment to be gone after remove")
	}
	if err := index.remove(dir); err != nil {
		t.Fatalf("expected removing twice to be harmless: %v", err)
	}

	// The freed name is derived again for the same URL.
	again, err := index.dirFor(url)
	if err != nil {
		t.Fatalf("failed to reassign directory: %v", err)
	}
	if again != dir {
		t.Errorf("expected %q to be reused, got %q", dir, again)
	}
}

func TestIndex_Entries(t *testing.T) {
	index, _, _ := newTestIndex(t)

	urls := []string{
		"https://github.com/a/one",
		"https://github.com/b/two",
	}
	want := make(map[string]string)
	for _, url := range urls {
		dir, err := index.dirFor(url)
		if err != nil {
			t.Fatalf("failed to assign directory: %v", err)
		}
		want[url] = dir
	}

	entries := index.entries()
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for url, dir := range want {
		if entries[url] != dir {
			t.Errorf("entry for %s = %q, want %q", url, entries[url], dir)
		}
	}
}

func TestIndex_CorruptFileRejected(t *testing.T) {
	fs := memfs.New()
	path := "/caches/" + indexFileName
	if err := util.WriteFile(fs, path, []byte("not json{"), 0o644); err != nil {
		t.Fatalf("failed to seed corrupt index: %v", err)
	}

	if _, err := loadOrCreateIndex(fs, path); err == nil {
		t.Error("expected corrupt index file to be rejected")
	}
}

func TestIndex_UnsupportedVersionRejected(t *testing.T) {
	fs := memfs.New()
	path := "/caches/" + indexFileName
	if err := util.WriteFile(fs, path, []byte(`{"version":"99","mirrors":{}}`), 0o644); err != nil {
		t.Fatalf("failed to seed index: %v", err)
	}

	if _, err := loadOrCreateIndex(fs, path); err == nil {
		t.Error("expected unsupported index version to be rejected")
	}
}

func TestIndex_SaveLeavesNoTempFile(t *testing.T) {
	index, fs, path := newTestIndex(t)

	if _, err := index.dirFor("https://github.com/my/repo"); err != nil {
		t.Fatalf("failed to assign directory: %v", err)
	}

	if _, err := fs.Stat(path); err != nil {
		t.Errorf("expected index file at %s: %v", path, err)
	}
	if _, err := fs.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("expected no temp file left behind, stat err = %v", err)
	}
}
