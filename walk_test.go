package git

import (
	"path/filepath"
	"strings"
	"testing"

	platformerrors "github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// versionsOf projects modifications onto their revisions, the part of the
// version the fixtures control directly.
func versionsOf(mods []Modification) []string {
	revisions := make([]string, 0, len(mods))
	for _, mod := range mods {
		revisions = append(revisions, mod.Revision())
	}
	return revisions
}

func changeTypes(changes []FileChange) map[string]ChangeType {
	byPath := make(map[string]ChangeType, len(changes))
	for _, change := range changes {
		byPath[change.Path] = change.Type
	}
	return byPath
}

type pathPrefixFilter string

func (f pathPrefixFilter) Accepts(path string) bool {
	return strings.HasPrefix(path, string(f))
}

func TestModifications_LinearHistory(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	first := builder.Commit("master", "first", map[string]string{"readme.md": "readme\n"})
	second := builder.Commit("master", "second", map[string]string{"main.go": "package main\n"})
	third := builder.Commit("master", "third", map[string]string{"main.go": "package main // v2\n"})

	mods, err := repo.Modifications(WalkOptions{Starts: []string{third}})
	require.NoError(t, err)

	assert.Equal(t, []string{third, second, first}, versionsOf(mods))

	// Each commit diffs against its first parent.
	assert.Equal(t, map[string]ChangeType{"main.go": ChangeModified}, changeTypes(mods[0].Changes))
	assert.Equal(t, map[string]ChangeType{"main.go": ChangeAdded}, changeTypes(mods[1].Changes))

	// The root commit lists every file as added and has no parents.
	assert.Equal(t, map[string]ChangeType{"readme.md": ChangeAdded}, changeTypes(mods[2].Changes))
	assert.Empty(t, mods[2].Parents)

	assert.Equal(t, []string{MakeVersion(first, builder.CommitTime(first))}, mods[1].Parents)
}

func TestModifications_UninterestingBoundary(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	first := builder.Commit("master", "first", map[string]string{"readme.md": "readme\n"})
	second := builder.Commit("master", "second", map[string]string{"main.go": "package main\n"})
	third := builder.Commit("master", "third", map[string]string{"main.go": "package main // v2\n"})

	mods, err := repo.Modifications(WalkOptions{Starts: []string{third}, Uninteresting: []string{first}})
	require.NoError(t, err)
	assert.Equal(t, []string{third, second}, versionsOf(mods))

	// A start that is itself uninteresting produces nothing.
	mods, err = repo.Modifications(WalkOptions{Starts: []string{third}, Uninteresting: []string{third}})
	require.NoError(t, err)
	assert.Empty(t, mods)
}

func TestModifications_UninterestingMissingTolerated(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	first := builder.Commit("master", "first", map[string]string{"readme.md": "readme\n"})
	second := builder.Commit("master", "second", map[string]string{"main.go": "package main\n"})
	blob := builder.BlobBranch("binary", "raw bytes\n")

	// Revisions never fetched locally, or not commits at all, just end
	// the boundary early.
	mods, err := repo.Modifications(WalkOptions{
		Starts:        []string{second},
		Uninteresting: []string{strings.Repeat("ab", 20), blob},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{second, first}, versionsOf(mods))
}

func TestModifications_MalformedRevisions(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	tip := builder.Commit("master", "first", map[string]string{"readme.md": "readme\n"})

	_, err := repo.Modifications(WalkOptions{Starts: []string{"not-a-revision"}})
	require.Error(t, err)
	assert.Equal(t, platformerrors.CodeInvalidInput, platformerrors.GetCode(err))

	// Malformed boundary revisions are errors, unlike missing ones.
	_, err = repo.Modifications(WalkOptions{Starts: []string{tip}, Uninteresting: []string{"not-a-revision"}})
	require.Error(t, err)
	assert.Equal(t, platformerrors.CodeInvalidInput, platformerrors.GetCode(err))

	// Starts must resolve.
	_, err = repo.Modifications(WalkOptions{Starts: []string{strings.Repeat("ab", 20)}})
	require.Error(t, err)
	assert.Equal(t, platformerrors.CodeNotFound, platformerrors.GetCode(err))
}

func TestModifications_MaxCount(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	builder.Commit("master", "first", map[string]string{"readme.md": "readme\n"})
	builder.Commit("master", "second", map[string]string{"a.go": "package a\n"})
	third := builder.Commit("master", "third", map[string]string{"b.go": "package b\n"})
	fourth := builder.Commit("master", "fourth", map[string]string{"c.go": "package c\n"})

	mods, err := repo.Modifications(WalkOptions{Starts: []string{fourth}, MaxCount: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{fourth, third}, versionsOf(mods))
}

func TestModifications_MultipleStarts(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	first := builder.Commit("master", "first", map[string]string{"readme.md": "readme\n"})
	builder.Branch("topic", "master")
	second := builder.Commit("master", "second", map[string]string{"main.go": "package main\n"})
	topicTip := builder.Commit("topic", "topic work", map[string]string{"topic.go": "package topic\n"})

	// Newest first among independent commits, shared history emitted once.
	mods, err := repo.Modifications(WalkOptions{Starts: []string{second, topicTip}})
	require.NoError(t, err)
	assert.Equal(t, []string{topicTip, second, first}, versionsOf(mods))

	// Duplicate starts do not duplicate output.
	mods, err = repo.Modifications(WalkOptions{Starts: []string{second, second}})
	require.NoError(t, err)
	assert.Equal(t, []string{second, first}, versionsOf(mods))
}

func TestModifications_MergeDiffsFirstParent(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	builder.Commit("master", "first", map[string]string{"readme.md": "readme\n"})
	builder.Branch("topic", "master")
	topicTip := builder.Commit("topic", "topic work", map[string]string{"topic.go": "package topic\n"})
	masterTip := builder.Commit("master", "master work", map[string]string{"main.go": "package main\n"})
	merge := builder.Merge("master", "topic", "merge topic into master")

	mods, err := repo.Modifications(WalkOptions{Starts: []string{merge}, Uninteresting: []string{masterTip, topicTip}})
	require.NoError(t, err)
	require.Len(t, mods, 1)

	// The merge reports what it brought onto its first parent.
	assert.Equal(t, map[string]ChangeType{"topic.go": ChangeAdded}, changeTypes(mods[0].Changes))
	assert.Equal(t, []string{
		MakeVersion(masterTip, builder.CommitTime(masterTip)),
		MakeVersion(topicTip, builder.CommitTime(topicTip)),
	}, mods[0].Parents)
}

func TestModifications_PathFilter(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	first := builder.Commit("master", "sources", map[string]string{
		"src/main.go":   "package main\n",
		"docs/guide.md": "guide\n",
	})
	second := builder.Commit("master", "docs only", map[string]string{"docs/guide.md": "guide v2\n"})

	mods, err := repo.Modifications(WalkOptions{Starts: []string{second}, Filter: pathPrefixFilter("src/")})
	require.NoError(t, err)

	// Filtering narrows the file lists but never hides commits.
	require.Equal(t, []string{second, first}, versionsOf(mods))
	assert.Empty(t, mods[0].Changes)
	assert.Equal(t, map[string]ChangeType{"src/main.go": ChangeAdded}, changeTypes(mods[1].Changes))
}

func TestModifications_MissingParentBounds(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	first := builder.Commit("master", "first", map[string]string{"readme.md": "readme\n"})
	second := builder.Commit("master", "second", map[string]string{"main.go": "package main\n"})

	// Drop the first commit's object, as if it was never fetched.
	require.NoError(t, repo.Filesystem().Remove(filepath.Join("objects", first[:2], first[2:])))

	mods, err := repo.Modifications(WalkOptions{Starts: []string{second}})
	require.NoError(t, err)
	require.Equal(t, []string{second}, versionsOf(mods))

	// The absent parent is reported as a bare revision, and the diff
	// falls back to the root commit shape.
	assert.Equal(t, []string{first}, mods[0].Parents)
	assert.Equal(t, map[string]ChangeType{
		"readme.md": ChangeAdded,
		"main.go":   ChangeAdded,
	}, changeTypes(mods[0].Changes))
}

func TestReachableFrom(t *testing.T) {
	repo, builder := newCommitTestMirror(t)
	first := builder.Commit("master", "first", map[string]string{"readme.md": "readme\n"})
	builder.Branch("topic", "master")
	second := builder.Commit("master", "second", map[string]string{"main.go": "package main\n"})
	topicTip := builder.Commit("topic", "topic work", map[string]string{"topic.go": "package topic\n"})

	reachable, err := repo.ReachableFrom(second)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{first: true, second: true}, reachable)

	reachable, err = repo.ReachableFrom(topicTip)
	require.NoError(t, err)
	assert.True(t, reachable[topicTip])
	assert.True(t, reachable[first])
	assert.False(t, reachable[second])

	_, err = repo.ReachableFrom(strings.Repeat("ab", 20))
	require.Error(t, err)
	assert.Equal(t, platformerrors.CodeNotFound, platformerrors.GetCode(err))
}
