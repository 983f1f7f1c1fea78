// Package engine declares the execution-engine, clock and metrics
// capability interfaces of spec §6 and §9 — external collaborators this
// module calls but never implements for production use.
package engine

import (
	"context"
	"time"

	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/message"
)

// StoredValue is a value read back from global state via Query.
type StoredValue struct {
	Bytes []byte
}

// Transform is a single effect produced by executing a deploy: a write (or
// no-op) against one global-state key.
type Transform struct {
	Key   string
	Bytes []byte
}

// Effects is the accumulated transform map of a deploy or a whole block
// (spec §4.2 step 5).
type Effects struct {
	Transforms []Transform
}

// DeployResult is the per-deploy outcome of executing it against a
// pre-state (spec §6's exec()).
type DeployResult struct {
	DeployHash hash.Hash
	Cost       uint64
	Error      string
	Effects    Effects
}

// CommitRequest carries a prestate and effects to commit, and the protocol
// version effects were produced under (SPEC_FULL §C).
type CommitRequest struct {
	PreStateHash    hash.Hash
	Effects         Effects
	ProtocolVersion uint32
}

// CommitResult is the result of commit(): a fresh post-state root and the
// bonds snapshot visible at that root.
type CommitResult struct {
	PostStateHash hash.Hash
	Bonds         []message.Bond
}

// ExecutionEngine is the Wasm execution engine of spec §6: it supplies
// preStateHash → deploys → (postStateHash, effects, bonds). It is an
// external collaborator, never implemented inside this module.
type ExecutionEngine interface {
	Query(ctx context.Context, stateHash hash.Hash, key, path string, protocolVersion uint32) (StoredValue, error)
	Commit(ctx context.Context, req CommitRequest) (CommitResult, error)
	Exec(ctx context.Context, preStateHash hash.Hash, blockTime int64, deploys []message.Deploy, protocolVersion uint32) ([]DeployResult, error)
}

// Clock abstracts wall-clock access so the executor's pre-timestamp check
// (spec §4.2 step 1) and the highway supervisor's round scheduling (spec
// §4.6) are deterministically testable.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the production Clock backed by the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Metrics is the minimal metrics sink this module emits to (spec §9).
// Reporters/exporters live outside this module's scope.
type Metrics interface {
	IncCounter(name string, labels ...string)
	ObserveDuration(name string, d time.Duration, labels ...string)
	SetGauge(name string, value float64, labels ...string)
}

// NopMetrics discards everything. Used where no metrics backend is wired.
type NopMetrics struct{}

func (NopMetrics) IncCounter(string, ...string)                 {}
func (NopMetrics) ObserveDuration(string, time.Duration, ...string) {}
func (NopMetrics) SetGauge(string, float64, ...string)          {}
