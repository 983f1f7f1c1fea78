// Package glue wires the Producer's mempool dependency and maps the errs
// taxonomy of spec §7 onto the actions the reference node takes in
// response, the way the teacher's main.go decides which protocol loop to
// run off of a single switch.
package glue

import (
	"sync"

	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/message"
)

// Mempool is the in-memory MempoolView the reference node wires into
// highway.Producer: a FIFO of deploys pending inclusion, deduplicated by
// hash so a requeue after an orphaning never double-counts a deploy still
// sitting in the queue.
type Mempool struct {
	mu      sync.Mutex
	order   []hash.Hash
	byHash  map[hash.Hash]message.Deploy
}

// NewMempool builds an empty Mempool.
func NewMempool() *Mempool {
	return &Mempool{byHash: make(map[hash.Hash]message.Deploy)}
}

// Add enqueues d if it isn't already pending.
func (p *Mempool) Add(d message.Deploy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byHash[d.Hash]; ok {
		return
	}
	p.byHash[d.Hash] = d
	p.order = append(p.order, d.Hash)
}

// CandidateDeploys removes and returns up to max pending deploys, oldest
// first.
func (p *Mempool) CandidateDeploys(max int) []message.Deploy {
	p.mu.Lock()
	defer p.mu.Unlock()
	if max > len(p.order) {
		max = len(p.order)
	}
	out := make([]message.Deploy, 0, max)
	for i := 0; i < max; i++ {
		h := p.order[i]
		out = append(out, p.byHash[h])
		delete(p.byHash, h)
	}
	p.order = p.order[max:]
	return out
}

// Requeue returns d to the front of the queue, so an orphaned deploy is
// reconsidered before newly submitted ones (spec §4.4).
func (p *Mempool) Requeue(d message.Deploy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byHash[d.Hash]; ok {
		return
	}
	p.byHash[d.Hash] = d
	p.order = append([]hash.Hash{d.Hash}, p.order...)
}

// Len reports the number of deploys currently pending.
func (p *Mempool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}
