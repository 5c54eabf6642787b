package changes

import (
	"context"
	"errors"
	"log/slog"

	platformerrors "github.com/jmgilman/go/errors"

	git "github.com/pjreed/teamcity-git-plugin"
	"github.com/pjreed/teamcity-git-plugin/mirror"
)

// forkPointRefPrefix is the scratch namespace cross-root fetches land in,
// keeping refs/heads/* an exact image of the mirror's own remote.
const forkPointRefPrefix = "refs/forkpoint/"

// Collector computes repository states and change lists for VCS roots. It
// owns no repositories itself: every operation resolves the root's mirror
// through the Manager, fetches what the operation needs, and walks the
// result locally. A Collector is stateless between calls and safe for
// concurrent use.
type Collector struct {
	manager *mirror.Manager
	cfg     git.Config
	log     *slog.Logger
}

// CollectorOption customizes a Collector.
type CollectorOption func(*collectorOptions)

type collectorOptions struct {
	log *slog.Logger
}

// WithLogger sets the logger the Collector reports progress to.
func WithLogger(log *slog.Logger) CollectorOption {
	return func(o *collectorOptions) {
		o.log = log
	}
}

// NewCollector creates a Collector over the given mirror manager. The
// manager's configuration supplies the fetch timeout, the fetch strategy
// and the walk bound used when a range has no resolvable lower boundary.
func NewCollector(manager *mirror.Manager, opts ...CollectorOption) *Collector {
	options := collectorOptions{log: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	return &Collector{
		manager: manager,
		cfg:     manager.Config(),
		log:     options.log.With("component", "collector"),
	}
}

func (c *Collector) newContext(op string, root git.VcsRoot) *OperationContext {
	return newOperationContext(c.manager, op, root, c.log)
}

// GetCurrentState asks the remote for its current branch tips and returns
// them as a RepositoryState. The state's default branch is the root's
// configured branch, or the branch the remote's HEAD points at when the
// root does not name one. Nothing is fetched and the mirror is not
// touched; a remote that does not advertise the default branch is an
// error.
func (c *Collector) GetCurrentState(ctx context.Context, root git.VcsRoot) (state *git.RepositoryState, err error) {
	octx := c.newContext("retrieving current state", root)
	defer func() {
		if cerr := octx.Close(); cerr != nil && err == nil {
			state, err = nil, octx.wrapError(cerr)
		}
	}()

	refs, err := git.ListRemoteRefs(ctx, root.FetchURL, root.Auth)
	if err != nil {
		return nil, octx.wrapError(err)
	}
	state, err = c.stateFromRefs(root, refs)
	if err != nil {
		return nil, octx.wrapError(err)
	}
	c.log.Debug("retrieved current state", "root", root.String(), "state", state.String())
	return state, nil
}

// CollectChanges lists the commits reachable from the branch tips of
// toState but not from those of fromState, newest first, each with its
// file-level changes. Both states are reconciled into the mirror before
// walking: missing tips are fetched, toState strictly and fromState best
// effort. A fromState with no resolvable tip at all yields an empty
// result rather than replaying the whole history.
//
// filter, when non-nil, narrows the file changes reported per commit; it
// never hides commits.
func (c *Collector) CollectChanges(ctx context.Context, root git.VcsRoot, fromState, toState *git.RepositoryState, filter git.PathFilter) (mods []git.Modification, err error) {
	octx := c.newContext("collecting changes", root)
	defer func() {
		if cerr := octx.Close(); cerr != nil && err == nil {
			mods, err = nil, octx.wrapError(cerr)
		}
	}()

	if fromState == nil || toState == nil {
		return nil, octx.wrapError(platformerrors.New(platformerrors.CodeInvalidInput,
			"both repository states are required"))
	}
	c.log.Info("collecting changes",
		"root", root.String(), "from", fromState.String(), "to", toState.String())

	repo, err := octx.Repository(root)
	if err != nil {
		return nil, octx.wrapError(err)
	}

	// The target state decides what the walk emits, so its tips must
	// resolve; stale tips in the previous state only widen the result and
	// are tolerated.
	if err := c.ensureStates(ctx, octx, repo, root, toState, fromState); err != nil {
		return nil, octx.wrapError(err)
	}

	starts := c.commitTips(repo, toState)
	if len(starts) == 0 {
		c.log.Warn("no tip of the target state resolves to a commit", "root", root.String())
		return nil, nil
	}
	uninteresting := c.commitTips(repo, fromState)
	if len(uninteresting) == 0 {
		// Without a lower boundary the walk would replay all history.
		// Bounding by the target state itself yields the empty result.
		c.log.Warn("no tip of the previous state resolves to a commit, reporting no changes",
			"root", root.String())
		uninteresting = starts
	}

	mods, err = repo.Modifications(git.WalkOptions{
		Starts:        starts,
		Uninteresting: uninteresting,
		Filter:        filter,
	})
	if err != nil {
		var changesErr *git.ChangesError
		if errors.As(err, &changesErr) {
			changesErr.Branches = c.branchesWithCommit(repo, toState, changesErr.Revision)
		}
		return nil, octx.wrapError(err)
	}
	c.log.Info("collected changes", "root", root.String(), "count", len(mods))
	return mods, nil
}

// CollectChangesBetween lists the commits between two versions of the
// root's branch, newest first. An empty toVersion yields no changes. When
// fromVersion is empty or names a commit the mirror does not have, the
// walk is capped at Config.MaxCommitsWhenFromMissing newest commits
// instead of failing.
func (c *Collector) CollectChangesBetween(ctx context.Context, root git.VcsRoot, fromVersion, toVersion string, filter git.PathFilter) (mods []git.Modification, err error) {
	octx := c.newContext("collecting changes", root)
	defer func() {
		if cerr := octx.Close(); cerr != nil && err == nil {
			mods, err = nil, octx.wrapError(cerr)
		}
	}()

	if toVersion == "" {
		c.log.Info("upper version is empty, no changes to collect", "root", root.String())
		return nil, nil
	}
	toRevision, err := git.VersionRevision(toVersion)
	if err != nil {
		return nil, octx.wrapError(err)
	}

	repo, err := octx.Repository(root)
	if err != nil {
		return nil, octx.wrapError(err)
	}
	if _, err = c.loadCommit(ctx, octx, repo, root, toRevision); err != nil {
		return nil, octx.wrapError(err)
	}

	opts := git.WalkOptions{Starts: []string{toRevision}, Filter: filter}
	if fromVersion == "" {
		opts.MaxCount = c.cfg.MaxCommitsWhenFromMissing
		c.log.Warn("lower version is empty, collecting a bounded history",
			"root", root.String(), "max", opts.MaxCount)
	} else {
		fromRevision, verr := git.VersionRevision(fromVersion)
		if verr != nil {
			return nil, octx.wrapError(verr)
		}
		if repo.HasRevision(fromRevision) {
			opts.Uninteresting = []string{fromRevision}
		} else {
			opts.MaxCount = c.cfg.MaxCommitsWhenFromMissing
			c.log.Warn("lower revision not in mirror, collecting a bounded history",
				"root", root.String(), "revision", fromRevision, "max", opts.MaxCount)
		}
	}

	mods, err = repo.Modifications(opts)
	if err != nil {
		return nil, octx.wrapError(err)
	}
	c.log.Info("collected changes", "root", root.String(), "count", len(mods))
	return mods, nil
}

// FetchAllRefs fetches, in one round trip, every branch that appears in
// one of the given states and is still advertised by the remote, then
// returns the fresh advertisement as a state. Branches the remote no
// longer advertises are skipped silently: their tips are simply gone.
func (c *Collector) FetchAllRefs(ctx context.Context, root git.VcsRoot, states ...*git.RepositoryState) (state *git.RepositoryState, err error) {
	octx := c.newContext("fetching all refs", root)
	defer func() {
		if cerr := octx.Close(); cerr != nil && err == nil {
			state, err = nil, octx.wrapError(cerr)
		}
	}()

	repo, err := octx.Repository(root)
	if err != nil {
		return nil, octx.wrapError(err)
	}
	refs, err := git.ListRemoteRefs(ctx, root.FetchURL, root.Auth)
	if err != nil {
		return nil, octx.wrapError(err)
	}

	if specs := refSpecsForStates(refs, states); len(specs) > 0 {
		if err := octx.fetch(ctx, root, repo, specs); err != nil {
			return nil, octx.wrapError(err)
		}
	}

	state, err = c.stateFromRefs(root, refs)
	if err != nil {
		return nil, octx.wrapError(err)
	}
	return state, nil
}

// LastCommonVersion finds the most recent common ancestor of two versions
// and returns its version string. The versions may come from different
// roots: the second root's branch is then fetched into the first root's
// mirror under a scratch ref, so both histories share one object database
// for the merge-base walk. Versions with no common ancestor are an error,
// never a silent empty result.
func (c *Collector) LastCommonVersion(ctx context.Context, root1 git.VcsRoot, version1 string, root2 git.VcsRoot, version2 string) (version string, err error) {
	octx := c.newContext("computing fork point", root1)
	defer func() {
		if cerr := octx.Close(); cerr != nil && err == nil {
			version, err = "", octx.wrapError(cerr)
		}
	}()

	revision1, err := git.VersionRevision(version1)
	if err != nil {
		return "", octx.wrapError(err)
	}
	revision2, err := git.VersionRevision(version2)
	if err != nil {
		return "", octx.wrapError(err)
	}

	repo, err := octx.Repository(root1)
	if err != nil {
		return "", octx.wrapError(err)
	}
	if _, err = c.loadCommit(ctx, octx, repo, root1, revision1); err != nil {
		return "", octx.wrapError(err)
	}
	if !repo.HasRevision(revision2) {
		ref := root2.DefaultBranch()
		scratch := forkPointRefPrefix + git.ShortBranchName(ref)
		c.log.Info("fetching second history for fork point",
			"ref", ref, "scratch", scratch, "url", root2.FetchURL)
		if err := octx.fetch(ctx, root2, repo, []string{ref + ":" + scratch}); err != nil {
			return "", octx.wrapError(err)
		}
		if _, err := repo.Commit(revision2); err != nil {
			return "", octx.wrapError(err)
		}
	}

	base, err := repo.MergeBase(revision1, revision2)
	if err != nil {
		return "", octx.wrapError(err)
	}
	c.log.Info("found fork point",
		"root", root1.String(), "revision", base.Hash)
	return base.Version(), nil
}

// stateFromRefs turns an advertisement into a RepositoryState, picking the
// default branch per the root and verifying the remote actually has it.
func (c *Collector) stateFromRefs(root git.VcsRoot, refs *git.RemoteRefs) (*git.RepositoryState, error) {
	defaultRef := root.DefaultBranch()
	if root.Branch == "" && refs.HEAD != "" {
		defaultRef = refs.HEAD
	}
	branches := refs.Branches()
	defaultBranch := git.ShortBranchName(defaultRef)
	if _, ok := branches[defaultBranch]; !ok {
		return nil, platformerrors.Newf(platformerrors.CodeNotFound,
			"remote %s has no branch %q", root.FetchURL, defaultBranch)
	}
	return git.NewRepositoryState(defaultBranch, branches), nil
}

// commitTips returns the distinct branch-tip revisions of the state that
// resolve to commits in the mirror. Empty tips, unknown revisions and refs
// peeling to non-commits are skipped.
func (c *Collector) commitTips(repo *git.Repository, state *git.RepositoryState) []string {
	var tips []string
	seen := make(map[string]bool)
	for _, branch := range state.Branches() {
		revision, _ := state.Revision(branch)
		if revision == "" || seen[revision] {
			continue
		}
		seen[revision] = true
		if _, err := repo.Commit(revision); err != nil {
			if errors.Is(err, git.ErrNonCommit) {
				c.log.Info("branch tip is not a commit, skipping",
					"branch", branch, "revision", revision)
			} else {
				c.log.Debug("branch tip not in mirror, skipping",
					"branch", branch, "revision", revision)
			}
			continue
		}
		tips = append(tips, revision)
	}
	return tips
}

// branchesWithCommit names the branches of the state whose tips reach the
// given commit, for error reports. Best effort: a branch whose history
// cannot be read is reported as not containing the commit.
func (c *Collector) branchesWithCommit(repo *git.Repository, state *git.RepositoryState, revision string) []string {
	var branches []string
	for _, branch := range state.Branches() {
		tip, _ := state.Revision(branch)
		if tip == "" {
			continue
		}
		reachable, err := repo.ReachableFrom(tip)
		if err != nil {
			continue
		}
		if reachable[revision] {
			branches = append(branches, branch)
		}
	}
	return branches
}

// loadCommit resolves a revision to a commit, fetching the root's branch
// once when the revision is not in the mirror yet.
func (c *Collector) loadCommit(ctx context.Context, octx *OperationContext, repo *git.Repository, root git.VcsRoot, revision string) (*git.Commit, error) {
	commit, err := repo.Commit(revision)
	if err == nil {
		return commit, nil
	}
	if platformerrors.GetCode(err) != platformerrors.CodeNotFound {
		return nil, err
	}
	ref := root.DefaultBranch()
	c.log.Info("revision not in mirror, fetching",
		"revision", revision, "ref", ref, "root", root.String())
	if err := octx.fetch(ctx, root, repo, []string{ref + ":" + ref}); err != nil {
		return nil, err
	}
	return repo.Commit(revision)
}
