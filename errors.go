package git

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	platformerrors "github.com/jmgilman/go/errors"
)

// ErrNonCommit reports that a revision resolved to an object that is not a
// commit and cannot be peeled to one. Callers that enumerate refs skip such
// refs; callers resolving an explicit revision surface the error.
var ErrNonCommit = platformerrors.New(platformerrors.CodeInvalidInput, "object is not a commit")

// ChangesError reports a commit whose file changes could not be computed,
// usually because a tree or submodule entry is unreadable in the local
// mirror. Branches names the branches whose history contains the broken
// commit; the collector fills it in before surfacing the error so the
// report points at the refs an administrator needs to inspect.
type ChangesError struct {
	Revision string
	Branches []string
	Err      error
}

func (e *ChangesError) Error() string {
	if len(e.Branches) > 0 {
		return fmt.Sprintf("cannot compute changes of commit %s (reachable from %s): %v",
			e.Revision, strings.Join(e.Branches, ", "), e.Err)
	}
	return fmt.Sprintf("cannot compute changes of commit %s: %v", e.Revision, e.Err)
}

func (e *ChangesError) Unwrap() error {
	return e.Err
}

// wrapError wraps an error with context, classifying it as a platform error type.
// It preserves the original error chain for errors.Is/errors.As compatibility.
// If err is nil, returns nil.
func wrapError(err error, context string) error {
	if err == nil {
		return nil
	}

	// First classify the go-git error to a platform error type
	classified := classifyError(err)

	// Then wrap with context
	return fmt.Errorf("%s: %w", context, classified)
}

// classifyError maps go-git and transport errors to platform error types.
// It uses errors.Is() to match go-git error types and returns the
// appropriate platform error code. Unknown errors are passed through
// unchanged to preserve their original information.
//
//nolint:gocyclo,cyclop // High complexity is acceptable for error classification - each case is a simple mapping
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	// Repository not found errors → ErrNotFound
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		return platformerrors.New(platformerrors.CodeNotFound, "repository does not exist")
	}
	if errors.Is(err, transport.ErrRepositoryNotFound) {
		return platformerrors.New(platformerrors.CodeNotFound, "repository not found")
	}

	// Reference and object not found errors → ErrNotFound
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return platformerrors.New(platformerrors.CodeNotFound, "reference not found")
	}
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return platformerrors.New(platformerrors.CodeNotFound, "object not found")
	}

	// Repository already exists errors → ErrAlreadyExists
	if errors.Is(err, gogit.ErrRepositoryAlreadyExists) {
		return platformerrors.New(platformerrors.CodeAlreadyExists, "repository already exists")
	}

	// Remote errors
	if errors.Is(err, gogit.ErrRemoteNotFound) {
		return platformerrors.New(platformerrors.CodeNotFound, "remote not found")
	}
	if errors.Is(err, gogit.ErrRemoteExists) {
		return platformerrors.New(platformerrors.CodeAlreadyExists, "remote already exists")
	}

	// Authentication/Authorization errors → ErrUnauthorized
	if errors.Is(err, transport.ErrAuthenticationRequired) {
		return platformerrors.New(platformerrors.CodeUnauthorized, "authentication required")
	}
	if errors.Is(err, transport.ErrAuthorizationFailed) {
		return platformerrors.New(platformerrors.CodeUnauthorized, "authorization failed")
	}

	// Empty remote repository → ErrNotFound (nothing to fetch)
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return platformerrors.New(platformerrors.CodeNotFound, "remote repository is empty")
	}

	// Invalid input errors → ErrInvalidInput
	if errors.Is(err, gogit.ErrMissingURL) {
		return platformerrors.New(platformerrors.CodeInvalidInput, "URL is required")
	}

	// Fetch deadline exceeded → ErrTimeout
	if errors.Is(err, context.DeadlineExceeded) {
		return platformerrors.New(platformerrors.CodeTimeout, "operation timed out")
	}

	// Unresolvable host → ErrNetwork, named host preserved for diagnostics
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return platformerrors.Newf(platformerrors.CodeNetwork, "unknown host: %s", dnsErr.Name)
	}

	// Missing local file (e.g. file:// remote pointing nowhere) → ErrNotFound
	if errors.Is(err, fs.ErrNotExist) {
		return platformerrors.Wrap(err, platformerrors.CodeNotFound, "file not found")
	}

	// Pass through unknown errors unchanged to preserve original information
	return err
}
