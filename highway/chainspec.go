// Package highway implements the era-partitioned mode of spec §4.6: the era
// supervisor that schedules lambda/omega messages and identifies booking
// and switch blocks, and the message producer that builds signed blocks and
// ballots under a per-validator permit (spec §5.2).
package highway

// ChainSpec holds the Genesis-era timings of spec §6, which "come from the
// chain spec, not CLI" and are therefore not part of package config.
type ChainSpec struct {
	EraDurationMillis         uint64
	BookingDurationMillis     uint64
	EntropyDurationMillis     uint64
	VotingPeriodDurationMillis uint64
	// VotingPeriodSummitLevel gates when the voting period itself closes
	// (SPEC_FULL §D.2): the number of consecutive committee-commits of the
	// same candidate that ends the era's voting phase before its end tick.
	VotingPeriodSummitLevel uint
}

// ActiveDuration is the length of an era's active (block-producing) phase:
// everything before the voting period.
func (c ChainSpec) ActiveDuration() uint64 {
	if c.VotingPeriodDurationMillis >= c.EraDurationMillis {
		return 0
	}
	return c.EraDurationMillis - c.VotingPeriodDurationMillis
}
