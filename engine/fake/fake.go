// Package fake provides a deterministic in-memory ExecutionEngine double
// for tests: no mocking framework, just a hand-written struct implementing
// the real interface, wired the same way production code wires it.
package fake

import (
	"context"
	"sync"

	"github.com/dagchain/consensus-core/engine"
	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/message"
)

// Engine is a no-op execution engine: every commit just hashes the
// requested effects together with the pre-state to produce a deterministic
// post-state, and bonds are whatever the test pre-seeded for that
// pre-state.
type Engine struct {
	mu    sync.Mutex
	bonds map[hash.Hash][]message.Bond
}

// New builds an Engine with no bonds registered; see SetBonds.
func New() *Engine {
	return &Engine{bonds: make(map[hash.Hash][]message.Bond)}
}

// SetBonds fixes the bonds that Commit will report whenever it is asked to
// commit on top of preStateHash.
func (e *Engine) SetBonds(preStateHash hash.Hash, bonds []message.Bond) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bonds[preStateHash] = bonds
}

func (e *Engine) Query(ctx context.Context, stateHash hash.Hash, key, path string, protocolVersion uint32) (engine.StoredValue, error) {
	return engine.StoredValue{}, nil
}

func (e *Engine) Commit(ctx context.Context, req engine.CommitRequest) (engine.CommitResult, error) {
	e.mu.Lock()
	bonds := e.bonds[req.PreStateHash]
	e.mu.Unlock()

	buf := req.PreStateHash.Bytes()
	for _, t := range req.Effects.Transforms {
		buf = append(buf, []byte(t.Key)...)
		buf = append(buf, t.Bytes...)
	}
	post := hash.Sum(buf)

	// Post-state inherits the same bonds unless the test registered a
	// bonds snapshot directly under the post-state hash (simulating a
	// bonding-amount change taking effect).
	if b, ok := e.bonds[post]; ok {
		bonds = b
	} else {
		e.mu.Lock()
		e.bonds[post] = bonds
		e.mu.Unlock()
	}
	return engine.CommitResult{PostStateHash: post, Bonds: bonds}, nil
}

func (e *Engine) Exec(ctx context.Context, preStateHash hash.Hash, blockTime int64, deploys []message.Deploy, protocolVersion uint32) ([]engine.DeployResult, error) {
	out := make([]engine.DeployResult, 0, len(deploys))
	for _, d := range deploys {
		out = append(out, engine.DeployResult{
			DeployHash: d.Hash,
			Cost:       uint64(len(d.Session) + len(d.Payment)),
			Effects: engine.Effects{Transforms: []engine.Transform{
				{Key: d.Hash.String(), Bytes: d.Session},
			}},
		})
	}
	return out, nil
}
