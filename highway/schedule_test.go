package highway

import (
	"testing"

	"github.com/dagchain/consensus-core/era"
)

// TestLambdaTicksFireOnRoundBoundaries is the reference node's S6 scenario:
// for an era [t0, t0+T) with roundExponent e (round length 2^e), lambda
// ticks must land at exactly t0, t0+2^e, t0+2*2^e, ... up to the end of the
// active phase.
func TestLambdaTicksFireOnRoundBoundaries(t *testing.T) {
	const roundExponent = 4 // round length 16
	roundLen := era.RoundLength(roundExponent)

	e := &era.Era{StartTick: 1000, EndTick: 1000 + 160}
	spec := ChainSpec{EraDurationMillis: 160, VotingPeriodDurationMillis: 0}

	ticks := LambdaTicks(e, spec, roundExponent)
	if len(ticks) == 0 {
		t.Fatalf("LambdaTicks returned none")
	}
	for i, tick := range ticks {
		want := e.StartTick + uint64(i)*roundLen
		if tick != want {
			t.Fatalf("ticks[%d] = %d, want %d", i, tick, want)
		}
	}
	last := ticks[len(ticks)-1]
	if last+roundLen < e.StartTick+spec.ActiveDuration() {
		t.Fatalf("last tick %d leaves active phase (end %d) uncovered by a full round", last, e.StartTick+spec.ActiveDuration())
	}
}

// TestLambdaTicksStopAtVotingPeriod confirms the active phase (and hence the
// lambda schedule) excludes the era's trailing voting period.
func TestLambdaTicksStopAtVotingPeriod(t *testing.T) {
	const roundExponent = 4
	e := &era.Era{StartTick: 0, EndTick: 160}
	spec := ChainSpec{EraDurationMillis: 160, VotingPeriodDurationMillis: 32}

	ticks := LambdaTicks(e, spec, roundExponent)
	activeEnd := spec.ActiveDuration()
	for _, tick := range ticks {
		if tick >= activeEnd {
			t.Fatalf("tick %d falls at/after active-phase end %d", tick, activeEnd)
		}
	}
}

// TestOmegaWindowAndSampleStayInBounds is the other half of S6: the omega
// message of a round must land inside [roundStart+omegaStart*roundLen,
// roundStart+omegaEnd*roundLen).
func TestOmegaWindowAndSampleStayInBounds(t *testing.T) {
	const roundExponent = 10 // round length 1024
	roundStart := uint64(2048)
	omegaStart, omegaEnd := 0.5, 1.0

	winStart, winEnd := OmegaWindow(roundStart, roundExponent, omegaStart, omegaEnd)
	roundLen := era.RoundLength(roundExponent)
	wantStart := roundStart + uint64(omegaStart*float64(roundLen))
	wantEnd := roundStart + uint64(omegaEnd*float64(roundLen))
	if winStart != wantStart || winEnd != wantEnd {
		t.Fatalf("OmegaWindow = [%d, %d), want [%d, %d)", winStart, winEnd, wantStart, wantEnd)
	}

	for seed := int64(0); seed < 20; seed++ {
		tick := SampleOmegaTick(roundStart, roundExponent, omegaStart, omegaEnd, seed)
		if tick < winStart || tick >= winEnd {
			t.Fatalf("SampleOmegaTick(seed=%d) = %d, want in [%d, %d)", seed, tick, winStart, winEnd)
		}
	}
}

// TestIsSwitchBlockRoundFlagsLastActiveRound confirms only the final round
// of the active phase is identified as the switch-block round (spec §4.6);
// every earlier round is not.
func TestIsSwitchBlockRoundFlagsLastActiveRound(t *testing.T) {
	const roundExponent = 4 // round length 16
	roundLen := era.RoundLength(roundExponent)

	e := &era.Era{StartTick: 0, EndTick: 160}
	spec := ChainSpec{EraDurationMillis: 160, VotingPeriodDurationMillis: 32}

	ticks := LambdaTicks(e, spec, roundExponent)
	if len(ticks) == 0 {
		t.Fatalf("LambdaTicks returned none")
	}
	last := ticks[len(ticks)-1]
	for _, tick := range ticks {
		got := IsSwitchBlockRound(e, spec, roundExponent, tick)
		want := tick == last
		if got != want {
			t.Fatalf("IsSwitchBlockRound(%d) = %v, want %v", tick, got, want)
		}
	}
	if IsSwitchBlockRound(e, spec, roundExponent, last+roundLen) {
		t.Fatalf("IsSwitchBlockRound flagged a round outside the active phase")
	}
}

// TestOmegaWindowDegenerateSpanStillAdvances ensures a zero-width omega
// window (omegaStart == omegaEnd) still yields a single valid tick rather
// than an empty, unsatisfiable range.
func TestOmegaWindowDegenerateSpanStillAdvances(t *testing.T) {
	const roundExponent = 8
	roundStart := uint64(512)

	winStart, winEnd := OmegaWindow(roundStart, roundExponent, 0.75, 0.75)
	if winEnd <= winStart {
		t.Fatalf("OmegaWindow degenerate case = [%d, %d), want winEnd > winStart", winStart, winEnd)
	}

	tick := SampleOmegaTick(roundStart, roundExponent, 0.75, 0.75, 7)
	if tick != winStart {
		t.Fatalf("SampleOmegaTick degenerate case = %d, want %d", tick, winStart)
	}
}
