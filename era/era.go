// Package era defines the highway-mode era record of spec §3: a
// time-bounded segment of the chain keyed by its key block.
package era

import (
	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/message"
)

// Era is a time-bounded segment of the chain, keyed by its key block.
type Era struct {
	KeyBlockHash       hash.Hash
	ParentKeyBlockHash hash.Hash
	BookingBlockHash   hash.Hash
	StartTick          uint64
	EndTick            uint64
	Bonds              []message.Bond
	LeaderSeed         uint64
}

// Weight returns the total bonded stake of the era.
func (e *Era) Weight() uint64 {
	var total uint64
	for _, b := range e.Bonds {
		total += b.Stake
	}
	return total
}

// RoundLength returns the tick length of a round for the given round
// exponent (spec §4.6: "rounds ... fire at 2^roundExponent-tick
// boundaries").
func RoundLength(roundExponent uint8) uint64 {
	return uint64(1) << roundExponent
}

// RoundStart returns the tick at which the round containing tick begins,
// relative to the era's StartTick.
func (e *Era) RoundStart(tick uint64, roundExponent uint8) uint64 {
	rl := RoundLength(roundExponent)
	offset := tick - e.StartTick
	return e.StartTick + (offset/rl)*rl
}

// Leader returns the validator elected to lead the round starting at
// roundStart, by weighted round-robin over LeaderSeed and the era's bonds
// (spec §4.6). Deterministic given (LeaderSeed, roundStart, Bonds).
func (e *Era) Leader(roundStart uint64) message.ValidatorID {
	total := e.Weight()
	if total == 0 {
		return message.ValidatorID{}
	}
	// FNV-1a mix of the leader seed and round start, folded into
	// [0, total).
	h := uint64(14695981039346656037)
	for _, b := range []uint64{e.LeaderSeed, roundStart} {
		for i := 0; i < 8; i++ {
			h ^= (b >> (8 * uint(i))) & 0xff
			h *= 1099511628211
		}
	}
	target := h % total

	sorted := sortedBonds(e.Bonds)
	var acc uint64
	for _, b := range sorted {
		acc += b.Stake
		if target < acc {
			return b.ValidatorID
		}
	}
	return sorted[len(sorted)-1].ValidatorID
}

// DeriveLeaderSeed folds the booking block's post-state-derived entropy
// together with the parent era's leader seed into the child era's leader
// seed (SPEC_FULL §C.3: the booking block's post-state supplies the random
// bit mixed into leaderSeed).
func DeriveLeaderSeed(parentSeed uint64, bookingPostState hash.Hash) uint64 {
	buf := make([]byte, 8, 8+len(bookingPostState))
	for i := 0; i < 8; i++ {
		buf[i] = byte(parentSeed >> (8 * uint(i)))
	}
	buf = append(buf, bookingPostState.Bytes()...)
	mixed := hash.Sum(buf)
	var seed uint64
	mb := mixed.Bytes()
	for i := 0; i < 8; i++ {
		seed |= uint64(mb[i]) << (8 * uint(i))
	}
	return seed
}

func sortedBonds(bonds []message.Bond) []message.Bond {
	out := make([]message.Bond, len(bonds))
	copy(out, bonds)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && bondLess(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func bondLess(a, b message.Bond) bool {
	for i := range a.ValidatorID {
		if a.ValidatorID[i] != b.ValidatorID[i] {
			return a.ValidatorID[i] < b.ValidatorID[i]
		}
	}
	return false
}
