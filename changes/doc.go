// Package changes turns the mirrors maintained by the mirror package into
// answers to version control questions: what is the current state of a
// remote, what changed between two states, and where did two branches fork.
//
// # Operations
//
// A Collector exposes one method per question:
//
//   - GetCurrentState: the remote's branch tips, straight from ls-remote
//   - CollectChanges: commits between two recorded states, newest first
//   - CollectChangesBetween: commits between two version strings
//   - FetchAllRefs: one bulk fetch of every branch the given states mention
//   - LastCommonVersion: the fork point of two versions
//
// Every operation runs inside an OperationContext, which caches repository
// handles per mirror directory for the duration of the operation and
// releases them when it ends. Errors leave through a single funnel carrying
// the operation name and the root, so a log line alone places a failure.
//
// # Reconciliation
//
// Change collection trusts the caller's states, not the mirror: before
// walking, the collector fetches whatever branch tips the mirror is
// missing. Config.PerBranchFetch selects between one combined fetch
// carrying every missing ref (the default) and one fetch per missing
// branch. The state being collected toward is reconciled strictly; the
// state being collected from is best effort, because a stale lower bound
// only widens the walk.
//
// # Usage
//
//	manager, err := mirror.NewManager(cfg)
//	if err != nil {
//	    return err
//	}
//	collector := changes.NewCollector(manager)
//
//	state, err := collector.GetCurrentState(ctx, root)
//	if err != nil {
//	    return err
//	}
//	mods, err := collector.CollectChanges(ctx, root, lastState, state, nil)
package changes
