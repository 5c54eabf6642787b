package git

import (
	"strconv"
	"strings"
	"time"

	platformerrors "github.com/jmgilman/go/errors"
)

// versionSeparator splits the revision from the hex-encoded commit time.
const versionSeparator = "@"

// MakeVersion builds a version string from a commit revision and its commit
// time. The format is "<revision>@<hex millis>", where the suffix is the
// commit time in milliseconds since the Unix epoch, lowercase hex, no
// leading zeros.
//
// Example:
//
//	v := git.MakeVersion("ab12cd34...", commit.Committer.When)
func MakeVersion(revision string, t time.Time) string {
	return revision + versionSeparator + strconv.FormatInt(t.UnixMilli(), 16)
}

// VersionRevision extracts the revision part of a version string.
// It returns an error with code CodeInvalidInput if the string does not
// contain a separator.
func VersionRevision(version string) (string, error) {
	i := strings.Index(version, versionSeparator)
	if i < 0 {
		return "", platformerrors.Newf(platformerrors.CodeInvalidInput, "invalid version format: %q", version)
	}
	return version[:i], nil
}

// VersionTime extracts the commit time encoded in a version string.
func VersionTime(version string) (time.Time, error) {
	i := strings.Index(version, versionSeparator)
	if i < 0 {
		return time.Time{}, platformerrors.Newf(platformerrors.CodeInvalidInput, "invalid version format: %q", version)
	}

	millis, err := strconv.ParseInt(version[i+1:], 16, 64)
	if err != nil {
		return time.Time{}, platformerrors.Wrapf(err, platformerrors.CodeInvalidInput, "invalid version format: %q", version)
	}

	return time.UnixMilli(millis), nil
}

// CompareVersions orders two version strings by their encoded commit time:
// -1 if a is older than b, 0 if equal, +1 if newer. A version whose time
// suffix cannot be parsed sorts as the zero time.
func CompareVersions(a, b string) int {
	ta, _ := VersionTime(a)
	tb, _ := VersionTime(b)
	return ta.Compare(tb)
}

// ExpandRef turns a short branch name into a fully qualified ref name.
// Names already under "refs/" are returned unchanged, and the empty string
// stays empty.
//
// Example:
//
//	git.ExpandRef("main") // "refs/heads/main"
func ExpandRef(name string) string {
	if name == "" || strings.HasPrefix(name, "refs/") {
		return name
	}
	return "refs/heads/" + name
}

// ShortBranchName strips the "refs/heads/" prefix from a ref name, if
// present.
func ShortBranchName(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}
