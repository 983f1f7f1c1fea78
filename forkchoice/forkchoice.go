// Package forkchoice implements spec §4.5: main-parent selection by
// greatest-honest-weight subtree, and secondary-parent selection among
// mergeable tips.
package forkchoice

import (
	"github.com/dagchain/consensus-core/dag"
	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/message"
)

// ForkChoice picks the main parent of a new message.
type ForkChoice struct{}

// New builds a ForkChoice.
func New() *ForkChoice { return &ForkChoice{} }

// MainParent walks the DAG from stopHash (the key block for highway,
// Genesis globally) following, at each step, the child carrying the
// greatest honest-weight subtree, until it reaches a tip. weights and
// equivocators describe the validator set whose latest messages "vote" for
// their main-chain ancestors.
func (f *ForkChoice) MainParent(view dag.View, stopHash hash.Hash, weights map[message.ValidatorID]uint64, equivocators map[message.ValidatorID]struct{}) hash.Hash {
	votes := f.votesByBlock(view, stopHash, weights, equivocators)

	current := stopHash
	for {
		children := view.Children(current)
		best, bestVotes := hash.Hash{}, uint64(0)
		found := false
		for _, c := range children {
			v := votes[c]
			if !found || v > bestVotes || (v == bestVotes && c.Less(best)) {
				best, bestVotes, found = c, v, true
			}
		}
		if !found || bestVotes == 0 {
			return current
		}
		current = best
	}
}

// votesByBlock computes, for every block reachable from stopHash, the total
// weight of honest validators whose latest message's main-chain ancestry
// passes through that block.
func (f *ForkChoice) votesByBlock(view dag.View, stopHash hash.Hash, weights map[message.ValidatorID]uint64, equivocators map[message.ValidatorID]struct{}) map[hash.Hash]uint64 {
	votes := make(map[hash.Hash]uint64)
	for v, w := range weights {
		if _, eq := equivocators[v]; eq {
			continue
		}
		tips := view.LatestMessage(v)
		if len(tips) != 1 {
			continue
		}
		cur, ok := view.Lookup(tips[0])
		if !ok {
			continue
		}
		for {
			votes[cur.Hash] += w
			if cur.Hash == stopHash {
				break
			}
			mp := cur.MainParent()
			if mp.IsZero() {
				break
			}
			parent, ok := view.Lookup(mp)
			if !ok {
				break
			}
			cur = parent
		}
	}
	return votes
}

// MergeChecker reports whether candidate can be merged as an additional
// secondary parent alongside the parents already chosen, without an effects
// conflict (spec §4.5). The caller supplies it; highway's Producer supplies
// a local check for duplicate deploy hashes.
type MergeChecker func(chosen []hash.Hash, candidate hash.Hash) (bool, error)

// SelectSecondaryParents picks, from candidateTips, the subset that can be
// added as secondary parents alongside mainParent: excluding equivocators
// and the main parent, sorted by hash for determinism, and filtered by
// mergeability. Returns nil without error if secondary parents are
// disabled by configuration.
func SelectSecondaryParents(candidateTips []hash.Hash, mainParent hash.Hash, tipOwner map[hash.Hash]message.ValidatorID, equivocators map[message.ValidatorID]struct{}, canMerge MergeChecker, enabled bool) ([]hash.Hash, error) {
	if !enabled {
		return nil, nil
	}

	filtered := make([]hash.Hash, 0, len(candidateTips))
	for _, t := range candidateTips {
		if t == mainParent {
			continue
		}
		if owner, ok := tipOwner[t]; ok {
			if _, eq := equivocators[owner]; eq {
				continue
			}
		}
		filtered = append(filtered, t)
	}

	sorted := hash.SortHashes(filtered)
	chosen := make([]hash.Hash, 0, len(sorted))
	for _, t := range sorted {
		ok, err := canMerge(chosen, t)
		if err != nil {
			return nil, err
		}
		if ok {
			chosen = append(chosen, t)
		}
	}
	return chosen, nil
}
