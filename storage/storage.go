// Package storage declares the persistence façade of spec §6 (block/DAG/
// deploy storage, era storage) as capability interfaces, and provides an
// in-memory reference implementation in the teacher's map-plus-mutex style
// for tests and for wiring components that don't yet have a durable
// backend.
package storage

import (
	"github.com/dagchain/consensus-core/era"
	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/message"
)

// FinalityStatus is a block's position in the finality lifecycle (spec §3).
type FinalityStatus uint8

const (
	Undecided FinalityStatus = iota
	FinalizedDirectly
	FinalizedIndirectly
	Orphaned
)

func (s FinalityStatus) String() string {
	switch s {
	case FinalizedDirectly:
		return "finalized-directly"
	case FinalizedIndirectly:
		return "finalized-indirectly"
	case Orphaned:
		return "orphaned"
	default:
		return "undecided"
	}
}

// BlockStorage is the block/DAG/deploy persistence façade of spec §6. It is
// an external collaborator: this module calls it, never implements the
// durable backend itself (Memory below is a test double, not a production
// store).
type BlockStorage interface {
	PutMessage(m *message.Message) error
	GetMessage(h hash.Hash) (*message.Message, bool, error)
	GetMessageByDeployHash(deployHash hash.Hash) (hash.Hash, bool, error)

	SetFinality(h hash.Hash, status FinalityStatus) error
	GetFinality(h hash.Hash) (FinalityStatus, bool, error)

	PutDeploy(d *message.Deploy) error
	MarkDeployProcessed(deployHash hash.Hash) error
	RemoveFinalizedDeploy(deployHash hash.Hash) error
}

// EraStorage is the era persistence façade of spec §6.
type EraStorage interface {
	PutEra(e *era.Era) error
	GetEra(keyBlockHash hash.Hash) (*era.Era, bool, error)
	ChildEras(keyBlockHash hash.Hash) ([]hash.Hash, error)
}
