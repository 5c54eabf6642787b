package changes

import (
	"context"
	"errors"
	"sort"

	platformerrors "github.com/jmgilman/go/errors"

	git "github.com/pjreed/teamcity-git-plugin"
)

// ensureStates makes the branch tips of the given states resolvable in the
// mirror, fetching what is missing. The first state is the primary one:
// failures resolving it abort the operation, failures on the others only
// narrow what the caller can walk and are logged. Config.PerBranchFetch
// selects the fetch strategy.
func (c *Collector) ensureStates(ctx context.Context, octx *OperationContext, repo *git.Repository, root git.VcsRoot, states ...*git.RepositoryState) error {
	if c.cfg.PerBranchFetch {
		for i, state := range states {
			if err := c.fetchPerBranch(ctx, octx, repo, root, state, i == 0); err != nil {
				return err
			}
		}
		return nil
	}
	return c.fetchCombined(ctx, octx, repo, root, states)
}

// fetchCombined gathers every branch whose recorded tip is missing from
// the mirror, across all states, and fetches them in one round trip.
// Branches the remote no longer advertises are dropped from the fetch;
// whether their absence matters is verifyState's call afterwards.
func (c *Collector) fetchCombined(ctx context.Context, octx *OperationContext, repo *git.Repository, root git.VcsRoot, states []*git.RepositoryState) error {
	missing := make(map[string]bool)
	for _, state := range states {
		for _, branch := range state.Branches() {
			revision, _ := state.Revision(branch)
			if revision == "" || repo.HasRevision(revision) {
				continue
			}
			missing[git.ExpandRef(branch)] = true
		}
	}

	if len(missing) > 0 {
		refs, err := git.ListRemoteRefs(ctx, root.FetchURL, root.Auth)
		if err != nil {
			return err
		}
		specs := make([]string, 0, len(missing))
		for _, ref := range sortedKeys(missing) {
			if !refs.Has(ref) {
				c.log.Info("remote no longer advertises ref, skipping fetch",
					"ref", ref, "root", root.String())
				continue
			}
			specs = append(specs, ref+":"+ref)
		}
		if len(specs) > 0 {
			if err := octx.fetch(ctx, root, repo, specs); err != nil {
				return err
			}
		}
	}

	for i, state := range states {
		if err := c.verifyState(repo, root, state, i == 0); err != nil {
			return err
		}
	}
	return nil
}

// fetchPerBranch fetches each missing tip with its own fetch, deriving a
// branch-scoped root for every one. failFast applies the primary-state
// policy to fetch failures as well as to tips still missing afterwards.
func (c *Collector) fetchPerBranch(ctx context.Context, octx *OperationContext, repo *git.Repository, root git.VcsRoot, state *git.RepositoryState, failFast bool) error {
	for _, branch := range state.Branches() {
		revision, _ := state.Revision(branch)
		if revision == "" || repo.HasRevision(revision) {
			continue
		}
		ref := git.ExpandRef(branch)
		if err := octx.fetch(ctx, root.ForBranch(branch), repo, []string{ref + ":" + ref}); err != nil {
			if failFast {
				return err
			}
			c.log.Warn("fetch of branch failed, ignoring",
				"branch", branch, "root", root.String(), "error", err)
		}
	}
	return c.verifyState(repo, root, state, failFast)
}

// verifyState checks that every recorded tip resolves after fetching. Tips
// peeling to non-commits are never an error. A tip still missing aborts
// when failFast is set and is otherwise logged and ignored.
func (c *Collector) verifyState(repo *git.Repository, root git.VcsRoot, state *git.RepositoryState, failFast bool) error {
	for _, branch := range state.Branches() {
		revision, _ := state.Revision(branch)
		if revision == "" {
			continue
		}
		_, err := repo.Commit(revision)
		switch {
		case err == nil:
		case errors.Is(err, git.ErrNonCommit):
			c.log.Info("branch tip is not a commit",
				"branch", branch, "revision", revision)
		case failFast:
			return platformerrors.Wrapf(err, platformerrors.CodeNotFound,
				"cannot find commit %s of branch %s in %s", revision, branch, root.FetchURL)
		default:
			c.log.Warn("cannot find commit, ignoring branch",
				"branch", branch, "revision", revision, "root", root.String())
		}
	}
	return nil
}

// refSpecsForStates builds force-update ref-specs for every branch that
// both appears in one of the states and is currently advertised.
func refSpecsForStates(refs *git.RemoteRefs, states []*git.RepositoryState) []string {
	wanted := make(map[string]bool)
	for _, state := range states {
		if state == nil {
			continue
		}
		for _, branch := range state.Branches() {
			wanted[git.ExpandRef(branch)] = true
		}
	}

	specs := make([]string, 0, len(wanted))
	for _, ref := range sortedKeys(wanted) {
		if refs.Has(ref) {
			specs = append(specs, ref+":"+ref)
		}
	}
	return specs
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
