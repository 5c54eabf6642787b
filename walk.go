package git

import (
	"container/heap"
	"errors"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	platformerrors "github.com/jmgilman/go/errors"
)

// WalkOptions select the commit range rendered by Modifications.
type WalkOptions struct {
	// Starts are the revisions the walk begins from. Every start must
	// resolve to a commit in the mirror.
	Starts []string

	// Uninteresting marks revisions whose ancestry is excluded from the
	// walk. Revisions or ancestors absent from the mirror are tolerated;
	// the boundary simply ends where the local history does.
	Uninteresting []string

	// MaxCount caps how many modifications are produced. Zero means no
	// cap.
	MaxCount int

	// Filter narrows the file changes attached to each modification. Nil
	// keeps every path. Filtering never affects which commits are
	// visited.
	Filter PathFilter
}

// Modifications renders the commits reachable from Starts but not from
// Uninteresting, children before parents and newest first among
// independent commits. Ordering ties are broken by hash, so the produced
// order is stable across runs.
//
// File changes are computed against each commit's first parent; root
// commits list every file as added. A failure while computing the changes
// of one commit is reported as a ChangesError naming that commit.
func (r *Repository) Modifications(opts WalkOptions) ([]Modification, error) {
	uninteresting, err := r.uninterestingClosure(opts.Uninteresting)
	if err != nil {
		return nil, err
	}

	candidates, err := r.collectCandidates(opts.Starts, uninteresting)
	if err != nil {
		return nil, err
	}

	// A commit may only be emitted once every candidate pointing at it
	// has been, so count the candidate children of each candidate.
	pending := make(map[plumbing.Hash]int, len(candidates))
	for _, c := range candidates {
		for _, parent := range c.ParentHashes {
			if _, ok := candidates[parent]; ok {
				pending[parent]++
			}
		}
	}

	ready := &commitQueue{}
	for hash, c := range candidates {
		if pending[hash] == 0 {
			*ready = append(*ready, c)
		}
	}
	heap.Init(ready)

	mods := make([]Modification, 0, len(candidates))
	for ready.Len() > 0 {
		if opts.MaxCount > 0 && len(mods) == opts.MaxCount {
			break
		}
		c := heap.Pop(ready).(*object.Commit)
		mod, err := r.modification(c, opts.Filter)
		if err != nil {
			return nil, err
		}
		mods = append(mods, mod)

		for _, parent := range c.ParentHashes {
			if _, ok := candidates[parent]; !ok {
				continue
			}
			pending[parent]--
			if pending[parent] == 0 {
				heap.Push(ready, candidates[parent])
			}
		}
	}
	return mods, nil
}

// ReachableFrom returns every revision reachable from the given revision,
// itself included, following parent edges. Parents missing from the mirror
// bound the set instead of failing.
func (r *Repository) ReachableFrom(revision string) (map[string]bool, error) {
	start, err := r.commitObject(revision)
	if err != nil {
		return nil, err
	}

	reachable := map[string]bool{start.Hash.String(): true}
	queue := []plumbing.Hash{start.Hash}
	for len(queue) > 0 {
		hash := queue[0]
		queue = queue[1:]
		c, err := r.repo.CommitObject(hash)
		if err != nil {
			continue
		}
		for _, parent := range c.ParentHashes {
			if !reachable[parent.String()] {
				reachable[parent.String()] = true
				queue = append(queue, parent)
			}
		}
	}
	return reachable, nil
}

// uninterestingClosure walks parent edges from the given revisions and
// returns every reachable hash. Revisions that do not resolve to a local
// commit are skipped; a malformed revision is still an error.
func (r *Repository) uninterestingClosure(revisions []string) (map[plumbing.Hash]bool, error) {
	closure := make(map[plumbing.Hash]bool)
	var queue []plumbing.Hash
	for _, revision := range revisions {
		c, err := r.commitObject(revision)
		switch {
		case err == nil:
			if !closure[c.Hash] {
				closure[c.Hash] = true
				queue = append(queue, c.Hash)
			}
		case errors.Is(err, ErrNonCommit):
			continue
		case platformerrors.GetCode(err) == platformerrors.CodeInvalidInput:
			return nil, err
		default:
			// Not fetched locally; the boundary ends here.
			continue
		}
	}

	for len(queue) > 0 {
		hash := queue[0]
		queue = queue[1:]
		c, err := r.repo.CommitObject(hash)
		if err != nil {
			continue
		}
		for _, parent := range c.ParentHashes {
			if !closure[parent] {
				closure[parent] = true
				queue = append(queue, parent)
			}
		}
	}
	return closure, nil
}

// collectCandidates gathers the commits reachable from starts without
// passing through the uninteresting set.
func (r *Repository) collectCandidates(starts []string, uninteresting map[plumbing.Hash]bool) (map[plumbing.Hash]*object.Commit, error) {
	candidates := make(map[plumbing.Hash]*object.Commit)
	var queue []plumbing.Hash
	for _, revision := range starts {
		c, err := r.commitObject(revision)
		if err != nil {
			return nil, err
		}
		if uninteresting[c.Hash] || candidates[c.Hash] != nil {
			continue
		}
		candidates[c.Hash] = c
		queue = append(queue, c.Hash)
	}

	for len(queue) > 0 {
		hash := queue[0]
		queue = queue[1:]
		for _, parent := range candidates[hash].ParentHashes {
			if uninteresting[parent] || candidates[parent] != nil {
				continue
			}
			c, err := r.repo.CommitObject(parent)
			if errors.Is(err, plumbing.ErrObjectNotFound) {
				// The parent was never fetched; treat it like a boundary.
				continue
			}
			if err != nil {
				return nil, wrapError(err, "load commit "+parent.String())
			}
			candidates[parent] = c
			queue = append(queue, parent)
		}
	}
	return candidates, nil
}

// modification renders one commit, diffing against its first parent.
func (r *Repository) modification(c *object.Commit, filter PathFilter) (Modification, error) {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, parent := range c.ParentHashes {
		pc, err := r.repo.CommitObject(parent)
		if err != nil {
			// The parent object is absent, so its committer time is
			// unknown; report the bare revision.
			parents = append(parents, parent.String())
			continue
		}
		parents = append(parents, MakeVersion(pc.Hash.String(), pc.Committer.When))
	}

	changes, err := r.fileChanges(c, filter)
	if err != nil {
		return Modification{}, &ChangesError{Revision: c.Hash.String(), Err: err}
	}

	return Modification{
		Version:     MakeVersion(c.Hash.String(), c.Committer.When),
		Parents:     parents,
		AuthorName:  c.Author.Name,
		AuthorEmail: c.Author.Email,
		Timestamp:   c.Committer.When,
		Message:     c.Message,
		Changes:     changes,
	}, nil
}

func (r *Repository) fileChanges(c *object.Commit, filter PathFilter) ([]FileChange, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, err
	}

	var parentTree *object.Tree
	if len(c.ParentHashes) > 0 {
		parent, err := r.repo.CommitObject(c.ParentHashes[0])
		switch {
		case err == nil:
			parentTree, err = parent.Tree()
			if err != nil {
				return nil, err
			}
		case errors.Is(err, plumbing.ErrObjectNotFound):
			// A first parent missing locally diffs like a root commit.
		default:
			return nil, err
		}
	}

	diff, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return nil, err
	}

	changes := make([]FileChange, 0, len(diff))
	for _, change := range diff {
		action, err := change.Action()
		if err != nil {
			return nil, err
		}

		var fc FileChange
		switch action {
		case merkletrie.Insert:
			fc = FileChange{Path: change.To.Name, Type: ChangeAdded}
		case merkletrie.Delete:
			fc = FileChange{Path: change.From.Name, Type: ChangeDeleted}
		case merkletrie.Modify:
			fc = FileChange{Path: change.To.Name, Type: ChangeModified}
		default:
			continue
		}
		if filter != nil && !filter.Accepts(fc.Path) {
			continue
		}
		changes = append(changes, fc)
	}
	return changes, nil
}

// laterCommit orders commits newest first by committer time, with the hex
// hash as a deterministic tie break.
func laterCommit(a, b *object.Commit) bool {
	at, bt := a.Committer.When, b.Committer.When
	if !at.Equal(bt) {
		return at.After(bt)
	}
	return a.Hash.String() < b.Hash.String()
}

// commitQueue is a priority queue yielding the newest ready commit first.
type commitQueue []*object.Commit

func (q commitQueue) Len() int           { return len(q) }
func (q commitQueue) Less(i, j int) bool { return laterCommit(q[i], q[j]) }
func (q commitQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *commitQueue) Push(x any) {
	*q = append(*q, x.(*object.Commit))
}

func (q *commitQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
