// Package dag implements the block-DAG view of spec §4.1: a read/write
// index over a content-addressed, append-only message store, plus the
// per-validator swimlane bookkeeping spec §9 recommends (an append-only
// (validatorId, seqNum) → messageHash index with a secondary
// validatorId → tips set).
package dag

import (
	"context"

	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/message"
)

// View exposes the read operations of spec §4.1. Reads are serializable
// snapshots; Children is eventually consistent with Insert but guaranteed
// consistent after the inserting call has returned.
type View interface {
	Lookup(h hash.Hash) (*message.Message, bool)
	Contains(h hash.Hash) bool
	Children(h hash.Hash) []hash.Hash

	// LatestMessage returns the set of latest messages of v: size 1
	// normally, ≥2 if v has equivocated and none of its equivocations
	// dominate.
	LatestMessage(v message.ValidatorID) []hash.Hash
	// LatestInEra scopes LatestMessage to a single era.
	LatestInEra(eraID hash.Hash, v message.ValidatorID) []hash.Hash

	// TopoSort streams messages in j-rank order over [startRank,
	// endRank). The returned channel is closed when the range is
	// exhausted or ctx is cancelled.
	TopoSort(ctx context.Context, startRank, endRank uint64) <-chan *message.Message

	GetEquivocators() map[message.ValidatorID]struct{}
	GetEquivocatorsInEra(eraID hash.Hash) map[message.ValidatorID]struct{}

	// EquivocatingTips returns, for every known equivocator, its current
	// set of tip hashes — used by the equivocation detector's
	// justification-cone BFS (spec §4.3) to bound traversal depth.
	EquivocatingTips() map[message.ValidatorID][]hash.Hash
}
