// Package message defines the DAG node type (spec §3): a signed Block or
// Ballot, its justifications, and the rank bookkeeping the DAG and finality
// packages depend on.
package message

import (
	"crypto/ed25519"
	"encoding/hex"

	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/sign"
)

// ValidatorID is a validator's public key. The zero value denotes the
// Genesis "no validator" sender (spec §3).
type ValidatorID [ed25519.PublicKeySize]byte

// IsZero reports whether v is the empty/Genesis validator id.
func (v ValidatorID) IsZero() bool {
	return v == ValidatorID{}
}

// String renders v as lowercase hex, truncated for log friendliness the way
// the teacher logs sender names as short strings.
func (v ValidatorID) String() string {
	s := hex.EncodeToString(v[:])
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// ValidatorIDFromBytes wraps a public key's bytes as a ValidatorID.
func ValidatorIDFromBytes(b []byte) ValidatorID {
	var v ValidatorID
	copy(v[:], b)
	return v
}

// Kind distinguishes a Block (carries deploys) from a Ballot (a vote).
type Kind uint8

const (
	KindBlock Kind = iota
	KindBallot
)

func (k Kind) String() string {
	if k == KindBlock {
		return "block"
	}
	return "ballot"
}

// Bond is a validator's stake as recorded in a block's post-state.
type Bond struct {
	ValidatorID ValidatorID
	Stake       uint64
}

// BondedWeight returns the stake map derived from bonds, keyed by validator.
func BondedWeight(bonds []Bond) map[ValidatorID]uint64 {
	out := make(map[ValidatorID]uint64, len(bonds))
	for _, b := range bonds {
		out[b.ValidatorID] = b.Stake
	}
	return out
}

// Deploy is a unit of work a Block carries for execution. Session and
// Payment mirror the execution engine's split of payment code from session
// code (SPEC_FULL §C).
type Deploy struct {
	Hash      hash.Hash
	Session   []byte
	Payment   []byte
	GasPrice  uint64
	TtlMillis uint64
	Timestamp int64
}

// Justifications names, for each validator, the latest message of theirs
// that a message's author had seen when producing it (spec §3).
type Justifications map[ValidatorID]hash.Hash

// Clone returns an independent copy.
func (j Justifications) Clone() Justifications {
	out := make(Justifications, len(j))
	for k, v := range j {
		out[k] = v
	}
	return out
}

// Message is a signed DAG node: either a Block or a Ballot (spec §3).
type Message struct {
	Hash                     hash.Hash
	Kind                     Kind
	ValidatorID              ValidatorID
	ValidatorMsgSeqNum       uint64
	ValidatorPrevMessageHash hash.Hash
	Parents                  []hash.Hash
	Justifications           Justifications
	JRank                    uint64
	MainRank                 uint64
	EraID                    hash.Hash
	RoundID                  uint64
	Timestamp                int64
	Signature                sign.Signature

	// Block-only fields, zero/nil for Ballots, except PostStateHash, which a
	// Ballot copies from its Target.
	PostStateHash  hash.Hash
	Bonds          []Bond
	Deploys        []Deploy
	IsBookingBlock bool
	IsSwitchBlock  bool

	// Ballot-only field: the block/ballot this ballot votes for. Block
	// messages don't set this; their "vote" is implicit in their main
	// parent.
	Target hash.Hash
}

// MainParent returns the first parent (spec §3: "first is main parent"), or
// the zero hash if this message has no parents (Genesis).
func (m *Message) MainParent() hash.Hash {
	if len(m.Parents) == 0 {
		return hash.Zero
	}
	return m.Parents[0]
}

// SecondaryParents returns all parents after the main parent.
func (m *Message) SecondaryParents() []hash.Hash {
	if len(m.Parents) <= 1 {
		return nil
	}
	return m.Parents[1:]
}

// IsGenesis reports whether m is the Genesis message: no parents, empty
// validator id.
func (m *Message) IsGenesis() bool {
	return len(m.Parents) == 0 && m.ValidatorID.IsZero()
}

// VotedBranch returns the direct child (by main-chain descent) of stopAt
// that m's main chain passes through, by walking m's own main-parent chain
// backwards through lookup until stopAt is reached. ok is false if m does
// not descend from stopAt on its main chain.
func VotedBranch(m *Message, stopAt hash.Hash, lookup func(hash.Hash) (*Message, bool)) (branch hash.Hash, ok bool) {
	cur := m
	for {
		mp := cur.MainParent()
		if mp == stopAt {
			return cur.Hash, true
		}
		if mp.IsZero() {
			return hash.Zero, false
		}
		parent, found := lookup(mp)
		if !found {
			return hash.Zero, false
		}
		cur = parent
	}
}
