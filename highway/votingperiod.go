package highway

import "github.com/dagchain/consensus-core/hash"

// VotingPeriodTracker implements SPEC_FULL §D.2's Open Question decision:
// the era's voting period closes only once the same candidate has been
// committee-committed VotingPeriodSummitLevel times in a row. A single
// direct-child commit (spec §4.4) is already final for NCB-mode purposes;
// this highway-only check lets an era's voting phase end early. An era
// whose voting period never closes still advances at its end tick.
type VotingPeriodTracker struct {
	summitLevel uint
	last        hash.Hash
	streak      uint
}

// NewVotingPeriodTracker builds a tracker requiring summitLevel consecutive
// commits of the same candidate. A summitLevel of zero degrades to closing
// on the first observed commit.
func NewVotingPeriodTracker(summitLevel uint) *VotingPeriodTracker {
	return &VotingPeriodTracker{summitLevel: summitLevel}
}

// Observe records a newly committee-committed LFB candidate and reports
// whether the voting period is now closed, along with the current streak.
func (t *VotingPeriodTracker) Observe(candidate hash.Hash) (closed bool, streak uint) {
	if candidate == t.last {
		t.streak++
	} else {
		t.last = candidate
		t.streak = 1
	}
	return t.streak >= t.summitLevel, t.streak
}

// Reset clears the tracker's streak, for reuse against the next era's
// voting period.
func (t *VotingPeriodTracker) Reset() {
	t.last = hash.Hash{}
	t.streak = 0
}
