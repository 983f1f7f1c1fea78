// Package finality implements the voting-matrix finality detector of spec
// §4.4: a per-LFB-candidate voting matrix, the committee check that
// promotes a candidate to last-finalized-block, and the indirect
// finalization / orphan-marking traversals that follow.
package finality

import (
	"github.com/dagchain/consensus-core/dag"
	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/message"
)

// levelZeroVote records a validator's latest direct vote for a child of the
// matrix's LFB: the branch, and the jRank of the message that cast it.
type levelZeroVote struct {
	branch hash.Hash
	jRank  uint64
}

// VotingMatrix is the flat n·n buffer of spec §9: "The voting-matrix
// two-dimensional array is stored as a single flat buffer of length n·n;
// validators is frozen per matrix instance." A single VotingMatrix tracks
// every branch a validator might vote for; spec §4.4's "separate instance
// per direct-child candidate" collapses naturally into levelZeroVotes
// grouping by branch, since matrix cells are already zeroed across
// mismatched branches.
type VotingMatrix struct {
	lfb        hash.Hash
	validators []message.ValidatorID
	index      map[message.ValidatorID]int
	weight     []uint64
	total      uint64

	levelZeroVotes []*levelZeroVote
	cells                []uint64 // n*n, row-major: cells[i*n+j]
}

// NewVotingMatrix seeds a fresh matrix for candidates that are direct
// children of lfb, over the bonded validator set described by weights.
func NewVotingMatrix(lfb hash.Hash, weights map[message.ValidatorID]uint64) *VotingMatrix {
	validators := make([]message.ValidatorID, 0, len(weights))
	for v := range weights {
		validators = append(validators, v)
	}
	// Deterministic ordering so repeated runs over the same weights
	// produce byte-identical matrices (spec §8 Determinism).
	for i := 1; i < len(validators); i++ {
		for j := i; j > 0 && less(validators[j], validators[j-1]); j-- {
			validators[j], validators[j-1] = validators[j-1], validators[j]
		}
	}

	n := len(validators)
	vm := &VotingMatrix{
		lfb:                  lfb,
		validators:           validators,
		index:                make(map[message.ValidatorID]int, n),
		weight:               make([]uint64, n),
		levelZeroVotes:       make([]*levelZeroVote, n),
		cells:                make([]uint64, n*n),
	}
	for i, v := range validators {
		vm.index[v] = i
		vm.weight[i] = weights[v]
		vm.total += weights[v]
	}
	return vm
}

func less(a, b message.ValidatorID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// LFB returns the LFB this matrix is currently seeded from.
func (vm *VotingMatrix) LFB() hash.Hash { return vm.lfb }

func (vm *VotingMatrix) at(i, j int) uint64     { return vm.cells[i*len(vm.validators)+j] }
func (vm *VotingMatrix) set(i, j int, v uint64) { vm.cells[i*len(vm.validators)+j] = v }

// Update applies a new latest message m by validator m.ValidatorID to the
// matrix (spec §4.4's Update algorithm). Messages from validators outside
// the bonded set are ignored here; messages from equivocators are filtered
// out by the caller before this is invoked.
func (vm *VotingMatrix) Update(view dag.View, m *message.Message, equivocators map[message.ValidatorID]struct{}) {
	i, ok := vm.index[m.ValidatorID]
	if !ok {
		return
	}

	panorama := computePanorama(view, m, equivocators)

	// The level-0 vote is "direct" (no indirection through a committee),
	// not "first ever": each new message re-targets it at whichever child
	// of the LFB m's main chain currently passes through, so a later
	// message can bring a validator's vote onto a branch its earlier
	// messages didn't vote for (spec §8 S1, where V2's vote only joins
	// V1's branch once b4 is built on top of it).
	if branch, ok := message.VotedBranch(m, vm.lfb, view.Lookup); ok {
		vm.levelZeroVotes[i] = &levelZeroVote{branch: branch, jRank: m.JRank}
	}

	n := len(vm.validators)
	for j := 0; j < n; j++ {
		vj := vm.validators[j]
		same := vm.levelZeroVotes[i] != nil && vm.levelZeroVotes[j] != nil &&
			vm.levelZeroVotes[i].branch == vm.levelZeroVotes[j].branch
		if same {
			vm.set(i, j, panorama[vj])
		} else {
			vm.set(i, j, 0)
		}
	}
}

// computePanorama returns, for every non-equivocating validator, the jRank
// of their latest message visible in the j-past cone of m (spec GLOSSARY:
// "Panorama of M").
func computePanorama(view dag.View, m *message.Message, equivocators map[message.ValidatorID]struct{}) map[message.ValidatorID]uint64 {
	result := make(map[message.ValidatorID]uint64)
	visited := make(map[hash.Hash]struct{})

	var walk func(h hash.Hash)
	walk = func(h hash.Hash) {
		if _, ok := visited[h]; ok {
			return
		}
		visited[h] = struct{}{}
		msg, ok := view.Lookup(h)
		if !ok {
			return
		}
		if !msg.ValidatorID.IsZero() {
			if _, eq := equivocators[msg.ValidatorID]; !eq {
				if cur, ok := result[msg.ValidatorID]; !ok || msg.JRank > cur {
					result[msg.ValidatorID] = msg.JRank
				}
			}
		}
		for _, p := range msg.Parents {
			walk(p)
		}
		for _, j := range msg.Justifications {
			walk(j)
		}
	}
	walk(m.Hash)
	return result
}

// CheckCommittee looks for a committee C that commits a candidate under
// relative fault-tolerance threshold rFTT (spec §4.4): sum of C's weight ≥
// totalStake·(1+2·rFTT)/2, and every pair in C sees each other seeing the
// same branch.
func (vm *VotingMatrix) CheckCommittee(rFTT float64) (committee []message.ValidatorID, branch hash.Hash, found bool) {
	quorum := float64(vm.total) * (1 + 2*rFTT) / 2

	groups := make(map[hash.Hash][]int)
	for i, v := range vm.levelZeroVotes {
		if v != nil {
			groups[v.branch] = append(groups[v.branch], i)
		}
	}

	var bestBranch hash.Hash
	var bestClique []int
	var bestWeight uint64
	for b, idxs := range groups {
		clique := vm.stabilizeClique(idxs)
		w := vm.sumWeight(clique)
		if float64(w) >= quorum && w > bestWeight {
			bestBranch, bestClique, bestWeight = b, clique, w
		}
	}
	if bestClique == nil {
		return nil, hash.Hash{}, false
	}
	out := make([]message.ValidatorID, 0, len(bestClique))
	for _, i := range bestClique {
		out = append(out, vm.validators[i])
	}
	return out, bestBranch, true
}

// stabilizeClique repeatedly drops the lightest member lacking mutual
// visibility with some other member, until what remains is a clique in the
// mutual-visibility graph (matrix[i][j]>0 and matrix[j][i]>0 for every
// pair).
func (vm *VotingMatrix) stabilizeClique(idxs []int) []int {
	cur := append([]int(nil), idxs...)
	for {
		offender := -1
		for _, i := range cur {
			for _, j := range cur {
				if i == j {
					continue
				}
				if vm.at(i, j) == 0 || vm.at(j, i) == 0 {
					if offender == -1 || vm.weight[i] < vm.weight[offender] {
						offender = i
					}
					break
				}
			}
		}
		if offender == -1 {
			return cur
		}
		cur = removeInt(cur, offender)
		if len(cur) == 0 {
			return cur
		}
	}
}

func removeInt(s []int, v int) []int {
	out := make([]int, 0, len(s))
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func (vm *VotingMatrix) sumWeight(idxs []int) uint64 {
	var total uint64
	for _, i := range idxs {
		total += vm.weight[i]
	}
	return total
}

// TotalWeight returns the matrix's total bonded stake.
func (vm *VotingMatrix) TotalWeight() uint64 { return vm.total }
