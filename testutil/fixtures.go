// Package testutil provides repository fixtures for the test suites. Its
// centerpiece is RepoBuilder, which writes commit graphs straight into bare
// repositories through the object database, so fixtures need no worktree
// and produce identical hashes wherever the same graph is built.
//
// The package deliberately depends only on go-git and go-billy, never on
// the module's own packages, so even their in-package tests can use it.
package testutil

import "time"

// Test user information used across all test helpers.
const (
	// TestAuthor is the default author name for test commits.
	TestAuthor = "Test User"

	// TestEmail is the default email for test commits.
	TestEmail = "test@example.com"
)

// TestRepoURL is a sample HTTPS repository URL for testing.
const TestRepoURL = "https://github.com/test/repo.git"

// Test commit messages.
const (
	// TestInitialCommit is a message for initial commits.
	TestInitialCommit = "Initial commit"

	// TestFeatureCommit is a message for feature commits.
	TestFeatureCommit = "Add new feature"

	// TestBugfixCommit is a message for bugfix commits.
	TestBugfixCommit = "Fix critical bug"
)

// commitEpoch anchors every builder's clock. Commits advance the clock by
// one minute each, so the same fixture sequence yields the same signatures,
// and therefore the same hashes, in any repository.
var commitEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
