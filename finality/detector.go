package finality

import (
	"github.com/hashicorp/go-hclog"

	"github.com/dagchain/consensus-core/dag"
	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/message"
	"github.com/dagchain/consensus-core/storage"
)

// Result describes the effect of feeding one new message to the Detector.
type Result struct {
	NewLFB              hash.Hash
	Committee           []message.ValidatorID
	FinalizedIndirectly []hash.Hash
	Orphaned            []hash.Hash
}

// Detector tracks the current last-finalized block and the voting matrix
// seeded from it (spec §4.4).
type Detector struct {
	log      hclog.Logger
	store    storage.BlockStorage
	rFTT     float64
	lfb      hash.Hash
	matrix   *VotingMatrix
	isHighway bool
}

// New builds a Detector seeded at genesisLFB (normally the Genesis
// message's hash) with the given bonded weights.
func New(log hclog.Logger, store storage.BlockStorage, rFTT float64, isHighway bool, genesisLFB hash.Hash, weights map[message.ValidatorID]uint64) *Detector {
	return &Detector{
		log:       log.Named("finality"),
		store:     store,
		rFTT:      rFTT,
		isHighway: isHighway,
		lfb:       genesisLFB,
		matrix:    NewVotingMatrix(genesisLFB, weights),
	}
}

// LFB returns the current last finalized block.
func (d *Detector) LFB() hash.Hash { return d.lfb }

// OnNewMessage feeds m (a validator's new latest message) to the voting
// matrix, and if a committee now commits a direct child of the current LFB,
// advances the LFB, performs indirect finalization / orphan marking, and
// reseeds the matrix.
func (d *Detector) OnNewMessage(view dag.View, m *message.Message, weights map[message.ValidatorID]uint64, equivocators map[message.ValidatorID]struct{}) (*Result, error) {
	if _, eq := equivocators[m.ValidatorID]; eq {
		return nil, nil
	}
	d.matrix.Update(view, m, equivocators)

	committee, branch, found := d.matrix.CheckCommittee(d.rFTT)
	if !found {
		return nil, nil
	}

	if err := d.store.SetFinality(branch, storage.FinalizedDirectly); err != nil {
		return nil, err
	}

	var eraBound *hash.Hash
	if d.isHighway {
		if bm, ok := view.Lookup(branch); ok && !bm.EraID.IsZero() {
			eraBound = &bm.EraID
		}
	}

	finalizedIndirect, orphaned, err := IndirectlyFinalize(view, d.store, branch, eraBound)
	if err != nil {
		return nil, err
	}

	d.lfb = branch
	d.matrix = NewVotingMatrix(branch, weights)

	return &Result{
		NewLFB:              branch,
		Committee:           committee,
		FinalizedIndirectly: finalizedIndirect,
		Orphaned:            orphaned,
	}, nil
}

// IndirectlyFinalize implements spec §4.4's indirect-finalization and
// orphan-marking traversals once newLFB has just become the LFB. newLFB is
// expected to already be marked FinalizedDirectly by the caller. eraBound,
// when non-nil, stops both traversals from crossing into a different era
// (SPEC_FULL §D.3: bounded in highway mode, unbounded in NCB mode).
func IndirectlyFinalize(view dag.View, store storage.BlockStorage, newLFB hash.Hash, eraBound *hash.Hash) (finalized, orphaned []hash.Hash, err error) {
	finalizedSet := make(map[hash.Hash]struct{})

	visited := make(map[hash.Hash]struct{})
	queue := []hash.Hash{newLFB}
	for len(queue) > 0 {
		h := queue[0]
		queue = queue[1:]
		if _, ok := visited[h]; ok {
			continue
		}
		visited[h] = struct{}{}

		m, ok := view.Lookup(h)
		if !ok {
			continue
		}
		if eraBound != nil && !m.EraID.IsZero() && m.EraID != *eraBound {
			continue
		}

		if h != newLFB && !m.IsGenesis() {
			status, _, serr := store.GetFinality(h)
			if serr != nil {
				return nil, nil, serr
			}
			if status == storage.FinalizedDirectly || status == storage.FinalizedIndirectly {
				continue
			}
			if m.Kind == message.KindBlock && status == storage.Undecided {
				if err := store.SetFinality(h, storage.FinalizedIndirectly); err != nil {
					return nil, nil, err
				}
				finalized = append(finalized, h)
				finalizedSet[h] = struct{}{}
			}
		}

		for _, p := range m.Parents {
			queue = append(queue, p)
		}
	}

	visited2 := make(map[hash.Hash]struct{})
	queue2 := []hash.Hash{newLFB}
	for len(queue2) > 0 {
		h := queue2[0]
		queue2 = queue2[1:]
		if _, ok := visited2[h]; ok {
			continue
		}
		visited2[h] = struct{}{}

		m, ok := view.Lookup(h)
		if !ok {
			continue
		}
		if eraBound != nil && !m.EraID.IsZero() && m.EraID != *eraBound {
			continue
		}

		if h != newLFB && !m.IsGenesis() {
			if _, done := finalizedSet[h]; !done {
				status, _, serr := store.GetFinality(h)
				if serr != nil {
					return nil, nil, serr
				}
				if m.Kind == message.KindBlock && status == storage.Undecided {
					if err := store.SetFinality(h, storage.Orphaned); err != nil {
						return nil, nil, err
					}
					orphaned = append(orphaned, h)
				}
			}
		}

		for _, p := range m.Parents {
			queue2 = append(queue2, p)
		}
		for _, j := range m.Justifications {
			queue2 = append(queue2, j)
		}
	}

	return finalized, orphaned, nil
}
