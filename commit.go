package git

import (
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	platformerrors "github.com/jmgilman/go/errors"
)

// Commit is a value type containing the commit metadata change collection
// works with. It includes an escape hatch to the underlying go-git commit
// object for advanced operations.
type Commit struct {
	// Hash is the full hex revision.
	Hash string

	// Author and Email identify who wrote the change.
	Author string
	Email  string

	// Message is the full commit message.
	Message string

	// Timestamp is the committer time, which is also the time component
	// encoded in version strings.
	Timestamp time.Time

	raw *object.Commit
}

// Version renders the commit as a version string.
func (c *Commit) Version() string {
	return MakeVersion(c.Hash, c.Timestamp)
}

// Underlying returns the underlying go-git commit object for advanced
// operations not covered by this wrapper, such as accessing the tree or
// parent commits directly.
func (c *Commit) Underlying() *object.Commit {
	return c.raw
}

// Commit resolves revision to a commit in the mirror. Annotated tags are
// peeled until a commit is reached; a revision naming any other object
// kind fails with ErrNonCommit. A missing object is reported with
// CodeNotFound, a string that is not a full hex object id with
// CodeInvalidInput.
func (r *Repository) Commit(revision string) (*Commit, error) {
	c, err := r.commitObject(revision)
	if err != nil {
		return nil, err
	}
	return newCommit(c), nil
}

// HasRevision reports whether revision resolves to a commit in the mirror.
func (r *Repository) HasRevision(revision string) bool {
	_, err := r.commitObject(revision)
	return err == nil
}

// MergeBase returns the best common ancestor of the two revisions. When
// the histories share several equally good ancestors the newest one wins,
// with the hash as tie break, so repeated calls agree. Revisions with no
// shared history fail with CodeNotFound.
func (r *Repository) MergeBase(rev1, rev2 string) (*Commit, error) {
	c1, err := r.commitObject(rev1)
	if err != nil {
		return nil, err
	}
	c2, err := r.commitObject(rev2)
	if err != nil {
		return nil, err
	}

	bases, err := c1.MergeBase(c2)
	if err != nil {
		return nil, wrapError(err, "find merge base of "+rev1+" and "+rev2)
	}
	if len(bases) == 0 {
		return nil, platformerrors.Newf(platformerrors.CodeNotFound,
			"revisions %s and %s have no common ancestor", rev1, rev2)
	}

	best := bases[0]
	for _, base := range bases[1:] {
		if laterCommit(base, best) {
			best = base
		}
	}
	return newCommit(best), nil
}

// commitObject resolves revision to a go-git commit, peeling annotated
// tags along the way.
func (r *Repository) commitObject(revision string) (*object.Commit, error) {
	hash := plumbing.NewHash(revision)
	if hash.IsZero() {
		return nil, platformerrors.Newf(platformerrors.CodeInvalidInput,
			"revision %q is not a full hex object id", revision)
	}

	obj, err := r.repo.Object(plumbing.AnyObject, hash)
	if err != nil {
		return nil, wrapError(err, "resolve revision "+revision)
	}
	for {
		switch o := obj.(type) {
		case *object.Commit:
			return o, nil
		case *object.Tag:
			obj, err = o.Object()
			if err != nil {
				return nil, wrapError(err, "peel tag "+revision)
			}
		default:
			return nil, platformerrors.Wrapf(ErrNonCommit, platformerrors.CodeInvalidInput,
				"revision %q resolves to a %s object", revision, obj.Type())
		}
	}
}

func newCommit(c *object.Commit) *Commit {
	return &Commit{
		Hash:      c.Hash.String(),
		Author:    c.Author.Name,
		Email:     c.Author.Email,
		Message:   c.Message,
		Timestamp: c.Committer.When,
		raw:       c,
	}
}
