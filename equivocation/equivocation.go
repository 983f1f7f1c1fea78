// Package equivocation implements the two responsibilities of spec §4.3:
// the pre-store check run against a validator's current tips, and the
// j-past-cone BFS that reports which validators appear equivocating from a
// given justification set.
package equivocation

import (
	"github.com/hashicorp/go-hclog"

	"github.com/dagchain/consensus-core/dag"
	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/message"
)

// Detector runs both equivocation checks against a dag.View.
type Detector struct {
	log hclog.Logger
}

// New builds a Detector.
func New(log hclog.Logger) *Detector {
	return &Detector{log: log.Named("equivocation")}
}

// CheckInsert decides whether msg, about to be inserted, equivocates
// against validator msg.ValidatorID's current tips T (spec §4.3): T empty
// ⇒ not an equivocation; |T|=1 and msg's validatorPrevMessageHash equals
// that tip ⇒ not an equivocation; otherwise ⇒ equivocation.
func (d *Detector) CheckInsert(view dag.View, msg *message.Message) bool {
	if msg.ValidatorID.IsZero() {
		return false
	}
	tips := view.LatestMessage(msg.ValidatorID)
	switch len(tips) {
	case 0:
		return false
	case 1:
		return tips[0] != msg.ValidatorPrevMessageHash
	default:
		return true
	}
}

// VisibleFromJustifications returns the set of validators that appear
// equivocating in the j-past-cone of the messages named by justifications
// (spec §4.3): a BFS back from the justification messages in
// jRank-descending order, computing minBaseRank from the known
// equivocators' tip ranks, stopping once every known equivocator has been
// seen in the cone or traversal passes minBaseRank.
func (d *Detector) VisibleFromJustifications(view dag.View, justifications message.Justifications) map[message.ValidatorID]struct{} {
	known := view.GetEquivocators()
	result := make(map[message.ValidatorID]struct{})
	if len(justifications) == 0 || len(known) == 0 {
		return result
	}

	minBaseRank := minTipRankMinusOne(view)

	seenSeq := make(map[message.ValidatorID]map[uint64]hash.Hash)
	visited := make(map[hash.Hash]struct{})

	frontier := make([]*message.Message, 0, len(justifications))
	for _, h := range justifications {
		if m, ok := view.Lookup(h); ok {
			frontier = append(frontier, m)
		}
	}

	for len(frontier) > 0 {
		// Pop the highest-jRank message (descending order).
		maxIdx := 0
		for i := 1; i < len(frontier); i++ {
			if frontier[i].JRank > frontier[maxIdx].JRank {
				maxIdx = i
			}
		}
		m := frontier[maxIdx]
		frontier = append(frontier[:maxIdx], frontier[maxIdx+1:]...)

		if _, ok := visited[m.Hash]; ok {
			continue
		}
		visited[m.Hash] = struct{}{}

		if m.JRank <= minBaseRank {
			continue
		}

		if !m.ValidatorID.IsZero() {
			if seenSeq[m.ValidatorID] == nil {
				seenSeq[m.ValidatorID] = make(map[uint64]hash.Hash)
			}
			if existing, ok := seenSeq[m.ValidatorID][m.ValidatorMsgSeqNum]; ok && existing != m.Hash {
				result[m.ValidatorID] = struct{}{}
			}
			seenSeq[m.ValidatorID][m.ValidatorMsgSeqNum] = m.Hash
		}

		if len(result) >= len(known) {
			allSeen := true
			for v := range known {
				if _, ok := result[v]; !ok {
					allSeen = false
					break
				}
			}
			if allSeen {
				break
			}
		}

		for _, p := range m.Parents {
			if pm, ok := view.Lookup(p); ok {
				frontier = append(frontier, pm)
			}
		}
		for _, jh := range m.Justifications {
			if jm, ok := view.Lookup(jh); ok {
				frontier = append(frontier, jm)
			}
		}
	}

	return result
}

// minTipRankMinusOne finds the lowest jRank among every known equivocator's
// current tips, via EquivocatingTips (spec §4.3: bounds how far back the
// cone BFS needs to walk before no further equivocation evidence can
// appear).
func minTipRankMinusOne(view dag.View) uint64 {
	var min uint64
	first := true
	for _, tips := range view.EquivocatingTips() {
		for _, tip := range tips {
			if m, ok := view.Lookup(tip); ok {
				if first || m.JRank < min {
					min = m.JRank
					first = false
				}
			}
		}
	}
	if first || min == 0 {
		return 0
	}
	return min - 1
}
