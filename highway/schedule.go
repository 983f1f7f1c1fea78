package highway

import (
	"math/rand"

	"github.com/dagchain/consensus-core/era"
)

// LambdaTicks returns every round-start tick within e's active phase (spec
// §4.6 / §8 S6): t0, t0+2^roundExponent, t0+2·2^roundExponent, ...
func LambdaTicks(e *era.Era, spec ChainSpec, roundExponent uint8) []uint64 {
	roundLen := era.RoundLength(roundExponent)
	end := e.StartTick + spec.ActiveDuration()
	if end > e.EndTick {
		end = e.EndTick
	}
	var out []uint64
	for t := e.StartTick; t < end; t += roundLen {
		out = append(out, t)
	}
	return out
}

// OmegaWindow returns the tick range [roundStart+omegaStart·roundLen,
// roundStart+omegaEnd·roundLen) within which the omega message of a round
// must fire (spec §4.6 / §8 S6).
func OmegaWindow(roundStart uint64, roundExponent uint8, omegaStart, omegaEnd float64) (winStart, winEnd uint64) {
	roundLen := float64(era.RoundLength(roundExponent))
	winStart = roundStart + uint64(omegaStart*roundLen)
	winEnd = roundStart + uint64(omegaEnd*roundLen)
	if winEnd <= winStart {
		winEnd = winStart + 1
	}
	return winStart, winEnd
}

// SampleOmegaTick deterministically samples a tick inside the omega window
// for (roundStart, seed) — seed is typically derived from the validator id,
// so each active validator picks its own tick independently without
// coordination.
func SampleOmegaTick(roundStart uint64, roundExponent uint8, omegaStart, omegaEnd float64, seed int64) uint64 {
	winStart, winEnd := OmegaWindow(roundStart, roundExponent, omegaStart, omegaEnd)
	span := winEnd - winStart
	if span == 0 {
		return winStart
	}
	r := rand.New(rand.NewSource(seed))
	return winStart + uint64(r.Int63n(int64(span)))
}

// IsActivePhase reports whether tick falls in e's block-producing phase.
func IsActivePhase(e *era.Era, spec ChainSpec, tick uint64) bool {
	return tick < e.StartTick+spec.ActiveDuration() && tick >= e.StartTick
}

// IsBookingPhase reports whether tick has reached the booking phase but is
// still within the active phase — the window in which a proposed block is
// flagged as the booking block (spec §4.6).
func IsBookingPhase(e *era.Era, spec ChainSpec, tick uint64) bool {
	return tick >= e.StartTick+spec.BookingDurationMillis && IsActivePhase(e, spec, tick)
}

// IsSwitchBlockRound reports whether the round starting at roundStart is
// the last active-phase round of e — the round whose block is the switch
// block (spec §4.6).
func IsSwitchBlockRound(e *era.Era, spec ChainSpec, roundExponent uint8, roundStart uint64) bool {
	roundLen := era.RoundLength(roundExponent)
	activeEnd := e.StartTick + spec.ActiveDuration()
	return roundStart < activeEnd && roundStart+roundLen >= activeEnd
}
