package git

import (
	"errors"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	platformerrors "github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pjreed/teamcity-git-plugin/testutil"
)

// newCommitTestMirror builds an in-memory mirror with history written
// directly into its object database, so no fetch is involved.
func newCommitTestMirror(t *testing.T) (*Repository, *testutil.RepoBuilder) {
	t.Helper()

	repo, err := InitMirror("/mirrors/repo.git", testutil.TestRepoURL, WithFilesystem(memfs.New()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	return repo, testutil.NewRepoBuilder(t, repo.Underlying())
}

func TestRepositoryCommit(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	revision := builder.Commit("master", "add readme", map[string]string{"readme.md": "readme\n"})

	commit, err := repo.Commit(revision)
	require.NoError(t, err)

	assert.Equal(t, revision, commit.Hash)
	assert.Equal(t, testutil.TestAuthor, commit.Author)
	assert.Equal(t, testutil.TestEmail, commit.Email)
	assert.Equal(t, "add readme", commit.Message)
	assert.True(t, commit.Timestamp.Equal(builder.CommitTime(revision)))
	assert.Equal(t, MakeVersion(revision, builder.CommitTime(revision)), commit.Version())
	require.NotNil(t, commit.Underlying())
	assert.Equal(t, revision, commit.Underlying().Hash.String())
}

func TestRepositoryCommit_PeelsAnnotatedTag(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	revision := builder.Commit("master", "add readme", map[string]string{"readme.md": "readme\n"})
	tag := builder.AnnotatedTag("v1.0", "master", "release 1.0")

	commit, err := repo.Commit(tag)
	require.NoError(t, err)
	assert.Equal(t, revision, commit.Hash)
}

func TestRepositoryCommit_NonCommitObject(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	blob := builder.BlobBranch("binary", "raw bytes\n")

	_, err := repo.Commit(blob)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNonCommit))
	assert.Equal(t, platformerrors.CodeInvalidInput, platformerrors.GetCode(err))
}

func TestRepositoryCommit_NotFound(t *testing.T) {
	repo, _ := newCommitTestMirror(t)

	_, err := repo.Commit(strings.Repeat("ab", 20))
	require.Error(t, err)
	assert.Equal(t, platformerrors.CodeNotFound, platformerrors.GetCode(err))
}

func TestRepositoryCommit_InvalidRevision(t *testing.T) {
	repo, _ := newCommitTestMirror(t)

	for _, revision := range []string{"", "main", "abc123"} {
		_, err := repo.Commit(revision)
		require.Error(t, err, "revision %q", revision)
		assert.Equal(t, platformerrors.CodeInvalidInput, platformerrors.GetCode(err), "revision %q", revision)
	}
}

func TestRepositoryHasRevision(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	revision := builder.Commit("master", "add readme", map[string]string{"readme.md": "readme\n"})
	blob := builder.BlobBranch("binary", "raw bytes\n")

	assert.True(t, repo.HasRevision(revision))
	assert.False(t, repo.HasRevision(strings.Repeat("ab", 20)))
	assert.False(t, repo.HasRevision("not-a-revision"))
	assert.False(t, repo.HasRevision(blob))
}

func TestRepositoryMergeBase(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	base := builder.Commit("master", "base", map[string]string{"readme.md": "readme\n"})
	builder.Branch("feature", "master")
	masterTip := builder.Commit("master", "master work", map[string]string{"main.go": "package main\n"})
	featureTip := builder.Commit("feature", "feature work", map[string]string{"feature.go": "package feature\n"})

	commit, err := repo.MergeBase(masterTip, featureTip)
	require.NoError(t, err)
	assert.Equal(t, base, commit.Hash)

	// Argument order does not matter.
	commit, err = repo.MergeBase(featureTip, masterTip)
	require.NoError(t, err)
	assert.Equal(t, base, commit.Hash)

	// The merge base of an ancestor pair is the ancestor itself.
	commit, err = repo.MergeBase(base, masterTip)
	require.NoError(t, err)
	assert.Equal(t, base, commit.Hash)
}

func TestRepositoryMergeBase_CrissCross(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	builder.Commit("master", "base", map[string]string{"readme.md": "readme\n"})
	builder.Branch("topic", "master")
	builder.Commit("master", "master work", map[string]string{"main.go": "package main\n"})
	topicWork := builder.Commit("topic", "topic work", map[string]string{"topic.go": "package topic\n"})

	// Each side merges the other's pre-merge tip, leaving two equally
	// good ancestors.
	builder.Branch("master-before-merge", "master")
	masterMerge := builder.Merge("master", "topic", "merge topic into master")
	topicMerge := builder.Merge("topic", "master-before-merge", "merge master into topic")

	// The newer ancestor wins so repeated calls agree.
	commit, err := repo.MergeBase(masterMerge, topicMerge)
	require.NoError(t, err)
	assert.Equal(t, topicWork, commit.Hash)
}

func TestRepositoryMergeBase_DisjointHistories(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	left := builder.Commit("left", "left root", map[string]string{"left.md": "left\n"})
	right := builder.Commit("right", "right root", map[string]string{"right.md": "right\n"})

	_, err := repo.MergeBase(left, right)
	require.Error(t, err)
	assert.Equal(t, platformerrors.CodeNotFound, platformerrors.GetCode(err))
	assert.Contains(t, err.Error(), "no common ancestor")
}
