package highway

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/dagchain/consensus-core/engine"
	"github.com/dagchain/consensus-core/era"
	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/message"
	"github.com/dagchain/consensus-core/storage"
)

// LambdaEvent is delivered when a round's lambda phase starts: the leader
// should propose a block, everyone else should be ready to respond with a
// lambda-response ballot.
type LambdaEvent struct {
	Era        *era.Era
	RoundStart uint64
	Leader     message.ValidatorID
	IsLeader   bool
}

// OmegaEvent is delivered at a validator's sampled omega tick.
type OmegaEvent struct {
	Era        *era.Era
	RoundStart uint64
	Tick       uint64
}

// Supervisor tracks the tree of active eras (parent, current, child during
// transitions) and schedules lambda/omega callbacks (spec §4.6).
type Supervisor struct {
	log   hclog.Logger
	spec  ChainSpec
	store storage.EraStorage
	clock engine.Clock
	self  message.ValidatorID
	epoch time.Time // real wall-clock instant ticks are measured from

	mu      sync.RWMutex
	parent  *era.Era
	current *era.Era
	child   *era.Era
}

// NewSupervisor builds a Supervisor rooted at current, with epoch as the
// wall-clock instant corresponding to tick 0.
func NewSupervisor(log hclog.Logger, spec ChainSpec, store storage.EraStorage, clock engine.Clock, self message.ValidatorID, epoch time.Time, current *era.Era) *Supervisor {
	return &Supervisor{
		log:     log.Named("highway"),
		spec:    spec,
		store:   store,
		clock:   clock,
		self:    self,
		epoch:   epoch,
		current: current,
	}
}

// CurrentEra returns the era the supervisor is currently scheduling rounds
// for.
func (s *Supervisor) CurrentEra() *era.Era {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// BeginChildEra records e as the child era during a transition: both the
// current and child eras remain active until the current era's voting
// phase closes.
func (s *Supervisor) BeginChildEra(e *era.Era) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.PutEra(e); err != nil {
		return err
	}
	s.child = e
	return nil
}

// AdvanceToChild promotes the child era to current, and current to parent —
// called once the current era's voting phase has closed.
func (s *Supervisor) AdvanceToChild() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.child == nil {
		return
	}
	s.parent, s.current, s.child = s.current, s.child, nil
}

func (s *Supervisor) tickToTime(tick uint64) time.Time {
	return s.epoch.Add(time.Duration(tick) * time.Millisecond)
}

// Run drives e's full schedule: lambda ticks over the active phase, then
// omega ticks — one per round — over the voting phase, until votingClosed
// reports the voting period has closed, ctx is cancelled, or e's end tick is
// reached (spec §4.6, §8 S6). It gates each call against
// CanProduceBlock/CanProduceBallot, enforcing "new blocks happen only in the
// active phase; ballots only in the voting phase" (spec §4.6) at the single
// point that decides when a round fires, rather than leaving callers to
// re-derive the phase. votingClosed may be nil, in which case the voting
// phase runs until e's end tick. onLambda/onOmega are invoked synchronously
// from this goroutine.
func (s *Supervisor) Run(ctx context.Context, e *era.Era, roundExponent uint8, omegaStart, omegaEnd float64, votingClosed func() bool, onLambda func(LambdaEvent), onOmega func(OmegaEvent)) error {
	seed := int64(0)
	for _, b := range s.self {
		seed = seed*31 + int64(b)
	}

	for _, roundStart := range LambdaTicks(e, s.spec, roundExponent) {
		if err := s.sleepUntil(ctx, roundStart); err != nil {
			return err
		}
		if !CanProduceBlock(e, s.spec, roundStart) {
			continue
		}
		leader := e.Leader(roundStart)
		onLambda(LambdaEvent{Era: e, RoundStart: roundStart, Leader: leader, IsLeader: leader == s.self})
	}

	roundLen := era.RoundLength(roundExponent)
	activeEnd := e.StartTick + s.spec.ActiveDuration()
	for tick := activeEnd; tick < e.EndTick; tick += roundLen {
		if votingClosed != nil && votingClosed() {
			return nil
		}
		if err := s.sleepUntil(ctx, tick); err != nil {
			return err
		}
		if !CanProduceBallot(e, s.spec, tick) {
			continue
		}
		omegaTick := SampleOmegaTick(tick, roundExponent, omegaStart, omegaEnd, seed^int64(tick))
		if err := s.sleepUntil(ctx, omegaTick); err != nil {
			return err
		}
		onOmega(OmegaEvent{Era: e, RoundStart: tick, Tick: omegaTick})
	}
	return nil
}

func (s *Supervisor) sleepUntil(ctx context.Context, tick uint64) error {
	d := s.tickToTime(tick).Sub(s.clock.Now())
	if d <= 0 {
		return nil
	}
	select {
	case <-s.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsBookingBlock reports whether a block proposed at roundStart within e
// should be flagged as the booking block (spec §4.6).
func IsBookingBlock(e *era.Era, spec ChainSpec, roundStart uint64) bool {
	return IsBookingPhase(e, spec, roundStart)
}

// CanProduceBlock gates block production to the active phase (spec §4.6:
// "new blocks happen only in the current era's active phase").
func CanProduceBlock(e *era.Era, spec ChainSpec, tick uint64) bool {
	return IsActivePhase(e, spec, tick)
}

// CanProduceBallot gates ballot production to the voting phase.
func CanProduceBallot(e *era.Era, spec ChainSpec, tick uint64) bool {
	return tick >= e.StartTick+spec.ActiveDuration() && tick < e.EndTick
}

// KeyBlockHash identifies an era's key block hash as the zero-value-safe
// accessor the producer and DAG code pass around.
func KeyBlockHash(e *era.Era) hash.Hash {
	if e == nil {
		return hash.Zero
	}
	return e.KeyBlockHash
}
