package dag

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/message"
	"github.com/dagchain/consensus-core/storage"
)

// DAG is the concrete View plus the single writer entry point, Insert.
// Ownership follows spec §3: the DAG owns messages by hash in its
// in-process indices; store owns the persisted bytes.
type DAG struct {
	mu  sync.RWMutex
	log hclog.Logger

	store storage.BlockStorage

	children map[hash.Hash]map[hash.Hash]struct{}

	// swimlane[v][seqNum] = messageHash — the append-only per-validator
	// index spec §9 recommends.
	swimlane map[message.ValidatorID]map[uint64]hash.Hash
	// tips[v] holds v's current latest-message hashes; cardinality > 1
	// means v is an equivocator.
	tips map[message.ValidatorID]map[hash.Hash]struct{}
	// tipsInEra scopes tips to era (highway mode).
	tipsInEra map[hash.Hash]map[message.ValidatorID]map[hash.Hash]struct{}

	equivocators      map[message.ValidatorID]struct{}
	equivocatorsInEra map[hash.Hash]map[message.ValidatorID]struct{}

	byJRank  map[uint64][]hash.Hash
	maxRank  uint64
}

// New builds an empty DAG view backed by store.
func New(log hclog.Logger, store storage.BlockStorage) *DAG {
	return &DAG{
		log:               log.Named("dag"),
		store:             store,
		children:          make(map[hash.Hash]map[hash.Hash]struct{}),
		swimlane:          make(map[message.ValidatorID]map[uint64]hash.Hash),
		tips:              make(map[message.ValidatorID]map[hash.Hash]struct{}),
		tipsInEra:         make(map[hash.Hash]map[message.ValidatorID]map[hash.Hash]struct{}),
		equivocators:      make(map[message.ValidatorID]struct{}),
		equivocatorsInEra: make(map[hash.Hash]map[message.ValidatorID]struct{}),
		byJRank:           make(map[uint64][]hash.Hash),
	}
}

// Lookup implements View.
func (d *DAG) Lookup(h hash.Hash) (*message.Message, bool) {
	m, ok, err := d.store.GetMessage(h)
	if err != nil {
		d.log.Error("lookup failed", "hash", h, "error", err)
		return nil, false
	}
	return m, ok
}

// Contains implements View.
func (d *DAG) Contains(h hash.Hash) bool {
	_, ok := d.Lookup(h)
	return ok
}

// Children implements View.
func (d *DAG) Children(h hash.Hash) []hash.Hash {
	d.mu.RLock()
	defer d.mu.RUnlock()
	set := d.children[h]
	out := make([]hash.Hash, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// LatestMessage implements View.
func (d *DAG) LatestMessage(v message.ValidatorID) []hash.Hash {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return tipSlice(d.tips[v])
}

// LatestInEra implements View.
func (d *DAG) LatestInEra(eraID hash.Hash, v message.ValidatorID) []hash.Hash {
	d.mu.RLock()
	defer d.mu.RUnlock()
	byV := d.tipsInEra[eraID]
	if byV == nil {
		return nil
	}
	return tipSlice(byV[v])
}

func tipSlice(set map[hash.Hash]struct{}) []hash.Hash {
	out := make([]hash.Hash, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}

// GetEquivocators implements View.
func (d *DAG) GetEquivocators() map[message.ValidatorID]struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[message.ValidatorID]struct{}, len(d.equivocators))
	for v := range d.equivocators {
		out[v] = struct{}{}
	}
	return out
}

// GetEquivocatorsInEra implements View.
func (d *DAG) GetEquivocatorsInEra(eraID hash.Hash) map[message.ValidatorID]struct{} {
	d.mu.RLock()
	defer d.mu.RUnlock()
	src := d.equivocatorsInEra[eraID]
	out := make(map[message.ValidatorID]struct{}, len(src))
	for v := range src {
		out[v] = struct{}{}
	}
	return out
}

// EquivocatingTips implements View.
func (d *DAG) EquivocatingTips() map[message.ValidatorID][]hash.Hash {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[message.ValidatorID][]hash.Hash, len(d.equivocators))
	for v := range d.equivocators {
		out[v] = tipSlice(d.tips[v])
	}
	return out
}

// ExpectedRanks computes the jRank and mainRank a message with the given
// parents/justifications and main parent would receive (spec §3, Open
// Question decision SPEC_FULL §D.1: jRank includes both parents and
// justifications; mainRank follows only the main parent).
func (d *DAG) ExpectedRanks(parents []hash.Hash, justifications message.Justifications, mainParent hash.Hash) (jRank, mainRank uint64, err error) {
	if len(parents) == 0 && mainParent.IsZero() {
		return 0, 0, nil
	}
	var maxJ uint64
	seen := false
	for _, p := range parents {
		pm, ok := d.Lookup(p)
		if !ok {
			return 0, 0, fmt.Errorf("dag: missing parent %s", p)
		}
		if !seen || pm.JRank > maxJ {
			maxJ = pm.JRank
		}
		seen = true
	}
	for _, h := range justifications {
		jm, ok := d.Lookup(h)
		if !ok {
			return 0, 0, fmt.Errorf("dag: missing justification %s", h)
		}
		if !seen || jm.JRank > maxJ {
			maxJ = jm.JRank
		}
		seen = true
	}
	jRank = maxJ + 1

	mp, ok := d.Lookup(mainParent)
	if !ok {
		return 0, 0, fmt.Errorf("dag: missing main parent %s", mainParent)
	}
	mainRank = mp.MainRank + 1
	return jRank, mainRank, nil
}

// Insert commits msg into the DAG: persists it via store, and updates the
// children, swimlane/tips and equivocator indices. Callers must hold the
// message-adding permit (spec §5); Insert itself is not safe for
// concurrent use with other writers of the same validator's swimlane.
func (d *DAG) Insert(msg *message.Message) error {
	if err := d.store.PutMessage(msg); err != nil {
		return fmt.Errorf("dag: put message: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range msg.Parents {
		if d.children[p] == nil {
			d.children[p] = make(map[hash.Hash]struct{})
		}
		d.children[p][msg.Hash] = struct{}{}
	}

	d.byJRank[msg.JRank] = append(d.byJRank[msg.JRank], msg.Hash)
	if msg.JRank > d.maxRank {
		d.maxRank = msg.JRank
	}

	d.updateSwimlane(msg)
	return nil
}

func (d *DAG) updateSwimlane(msg *message.Message) {
	v := msg.ValidatorID
	if v.IsZero() {
		// Genesis carries no validator identity and never equivocates.
		return
	}
	if d.swimlane[v] == nil {
		d.swimlane[v] = make(map[uint64]hash.Hash)
	}
	if d.tips[v] == nil {
		d.tips[v] = make(map[hash.Hash]struct{})
	}

	if existing, ok := d.swimlane[v][msg.ValidatorMsgSeqNum]; ok && existing != msg.Hash {
		d.markEquivocator(v, msg.EraID)
	}
	d.swimlane[v][msg.ValidatorMsgSeqNum] = msg.Hash

	_, alreadyEquivocator := d.equivocators[v]
	if !alreadyEquivocator {
		prevTips := d.tips[v]
		if len(prevTips) == 1 {
			if _, ok := prevTips[msg.ValidatorPrevMessageHash]; ok {
				delete(prevTips, msg.ValidatorPrevMessageHash)
			} else if len(prevTips) > 0 {
				// New message doesn't continue the sole known tip:
				// an equivocation just became visible.
				d.markEquivocator(v, msg.EraID)
			}
		}
	}
	d.tips[v][msg.Hash] = struct{}{}

	if !msg.EraID.IsZero() {
		if d.tipsInEra[msg.EraID] == nil {
			d.tipsInEra[msg.EraID] = make(map[message.ValidatorID]map[hash.Hash]struct{})
		}
		byV := d.tipsInEra[msg.EraID]
		if byV[v] == nil {
			byV[v] = make(map[hash.Hash]struct{})
		}
		if _, alreadyEq := d.equivocatorsInEra[msg.EraID][v]; !alreadyEq {
			prevEraTips := byV[v]
			if len(prevEraTips) == 1 {
				if _, ok := prevEraTips[msg.ValidatorPrevMessageHash]; ok {
					delete(prevEraTips, msg.ValidatorPrevMessageHash)
				}
			}
		}
		byV[v][msg.Hash] = struct{}{}
	}
}

func (d *DAG) markEquivocator(v message.ValidatorID, eraID hash.Hash) {
	d.equivocators[v] = struct{}{}
	if !eraID.IsZero() {
		if d.equivocatorsInEra[eraID] == nil {
			d.equivocatorsInEra[eraID] = make(map[message.ValidatorID]struct{})
		}
		d.equivocatorsInEra[eraID][v] = struct{}{}
	}
}

// TopoSort implements View.
func (d *DAG) TopoSort(ctx context.Context, startRank, endRank uint64) <-chan *message.Message {
	out := make(chan *message.Message)
	go func() {
		defer close(out)
		d.mu.RLock()
		ranks := make([]uint64, 0)
		for r := startRank; r < endRank; r++ {
			if _, ok := d.byJRank[r]; ok {
				ranks = append(ranks, r)
			}
		}
		snapshot := make(map[uint64][]hash.Hash, len(ranks))
		for _, r := range ranks {
			hs := make([]hash.Hash, len(d.byJRank[r]))
			copy(hs, d.byJRank[r])
			snapshot[r] = hs
		}
		d.mu.RUnlock()

		for _, r := range ranks {
			for _, h := range snapshot[r] {
				m, ok := d.Lookup(h)
				if !ok {
					continue
				}
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
