package highway

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/dagchain/consensus-core/dag"
	"github.com/dagchain/consensus-core/engine"
	"github.com/dagchain/consensus-core/errs"
	"github.com/dagchain/consensus-core/executor"
	"github.com/dagchain/consensus-core/forkchoice"
	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/message"
)

// MempoolView is the pending-deploy collaborator the producer pulls from
// when building a block, and returns deploys to when a block carrying them
// is later orphaned (spec §4.4, §4.6: "orphaned deploys go back into the
// pool").
type MempoolView interface {
	CandidateDeploys(max int) []message.Deploy
	Requeue(d message.Deploy)
}

// Persist hands a freshly built message to the rest of the pipeline (the
// executor's AddMessage) for validation, storage and finality bookkeeping.
// Ballots are returned to the caller unpersisted (spec §4.6: block() "signs
// the block, persists it"; ballot() only signs); Block persists via this
// callback so its own production path runs through the same admission
// pipeline as a received message.
type Persist func(ctx context.Context, m *message.Message) (executor.Status, error)

// Producer builds and signs this validator's own blocks and ballots under a
// per-validator permit (spec §5.2), and requeues deploys from messages the
// finality detector later orphans.
type Producer struct {
	log hclog.Logger

	self    message.ValidatorID
	priv    ed25519.PrivateKey
	permit  *executor.Permit
	fc      *forkchoice.ForkChoice
	mempool MempoolView
	ee      engine.ExecutionEngine
	clock   engine.Clock
	persist Persist

	secondaryParentsEnabled bool
	maxDeploysPerBlock      int
}

// ProducerParams groups Producer's constructor dependencies.
type ProducerParams struct {
	Log                     hclog.Logger
	Self                    message.ValidatorID
	PrivateKey              ed25519.PrivateKey
	Mempool                 MempoolView
	Engine                  engine.ExecutionEngine
	Clock                   engine.Clock
	Persist                 Persist
	SecondaryParentsEnabled bool
	MaxDeploysPerBlock      int
}

// NewProducer builds a Producer.
func NewProducer(p ProducerParams) *Producer {
	max := p.MaxDeploysPerBlock
	if max <= 0 {
		max = 50
	}
	return &Producer{
		log:                     p.Log.Named("producer"),
		self:                    p.Self,
		priv:                    p.PrivateKey,
		permit:                  executor.NewPermit(1),
		fc:                      forkchoice.New(),
		mempool:                 p.Mempool,
		ee:                      p.Engine,
		clock:                   p.Clock,
		persist:                 p.Persist,
		secondaryParentsEnabled: p.SecondaryParentsEnabled,
		maxDeploysPerBlock:      max,
	}
}

// ownPrevious finds the hash and next sequence number this producer's own
// messages should chain from. It prefers the producer's own entry in
// justifications, then the DAG's tip for this validator in eraID, then the
// DAG's global latest message, before concluding this is the validator's
// first message. Because of the global fallback, ValidatorMsgSeqNum does
// not restart per era: it stays monotonic across eras.
func (p *Producer) ownPrevious(view dag.View, eraID hash.Hash, justifications message.Justifications) (prevHash hash.Hash, nextSeq uint64, err error) {
	if h, ok := justifications[p.self]; ok {
		if m, found := view.Lookup(h); found {
			return m.Hash, m.ValidatorMsgSeqNum + 1, nil
		}
	}
	if tips := view.LatestInEra(eraID, p.self); len(tips) == 1 {
		if m, found := view.Lookup(tips[0]); found {
			return m.Hash, m.ValidatorMsgSeqNum + 1, nil
		}
	}
	if tips := view.LatestMessage(p.self); len(tips) == 1 {
		if m, found := view.Lookup(tips[0]); found {
			return m.Hash, m.ValidatorMsgSeqNum + 1, nil
		}
	}
	if tips := view.LatestMessage(p.self); len(tips) > 1 {
		return hash.Zero, 0, fmt.Errorf("producer: refusing to build on top of own equivocation (%d tips)", len(tips))
	}
	return hash.Zero, 1, nil
}

// candidateTips lists the current tips of every known validator, for
// secondary-parent selection, paired with their owning validator.
func candidateTips(view dag.View, validators map[message.ValidatorID]uint64) (tips []hash.Hash, owner map[hash.Hash]message.ValidatorID) {
	owner = make(map[hash.Hash]message.ValidatorID)
	for v := range validators {
		for _, t := range view.LatestMessage(v) {
			tips = append(tips, t)
			owner[t] = v
		}
	}
	return tips, owner
}

// Ballot signs a Ballot voting for target, without executing any deploys or
// persisting it (spec §4.6) — the caller decides whether and when to feed
// it into the executor.
func (p *Producer) Ballot(ctx context.Context, view dag.View, eraID hash.Hash, roundID uint64, mainParent, target hash.Hash, justifications message.Justifications, timestamp int64) (*message.Message, error) {
	if err := p.permit.Acquire(ctx); err != nil {
		return nil, err
	}
	defer p.permit.Release()

	targetMsg, ok := view.Lookup(target)
	if !ok {
		return nil, fmt.Errorf("producer: unknown ballot target %s", target)
	}

	prevHash, nextSeq, err := p.ownPrevious(view, eraID, justifications)
	if err != nil {
		return nil, err
	}

	m := &message.Message{
		Kind:                     message.KindBallot,
		ValidatorID:              p.self,
		ValidatorMsgSeqNum:       nextSeq,
		ValidatorPrevMessageHash: prevHash,
		Parents:                  []hash.Hash{mainParent},
		Justifications:           justifications.Clone(),
		EraID:                    eraID,
		RoundID:                  roundID,
		Timestamp:                timestamp,
		PostStateHash:            targetMsg.PostStateHash,
		Target:                   target,
	}

	jRank, mainRank, err := computeRanks(view, m)
	if err != nil {
		return nil, err
	}
	m.JRank, m.MainRank = jRank, mainRank

	if err := message.Sign(m, p.priv); err != nil {
		return nil, errs.Wrap(errs.KindFatal, "sign ballot", err)
	}
	return m, nil
}

// Block builds, executes, signs and persists a new block proposing
// mainParent as its main parent, with secondary parents chosen from the
// current tip set (spec §4.5, §4.6). isBookingBlock flags the block as the
// era's booking block; isSwitchBlock flags it as the last block of the
// era's active phase (spec §4.6).
func (p *Producer) Block(ctx context.Context, view dag.View, eraID hash.Hash, roundID uint64, mainParent hash.Hash, justifications message.Justifications, validators map[message.ValidatorID]uint64, equivocators map[message.ValidatorID]struct{}, isBookingBlock, isSwitchBlock bool, timestamp int64) (*message.Message, error) {
	if err := p.permit.Acquire(ctx); err != nil {
		return nil, err
	}
	defer p.permit.Release()

	mainParentMsg, ok := view.Lookup(mainParent)
	if !ok {
		return nil, fmt.Errorf("producer: unknown main parent %s", mainParent)
	}

	prevHash, nextSeq, err := p.ownPrevious(view, eraID, justifications)
	if err != nil {
		return nil, err
	}

	tips, owner := candidateTips(view, validators)
	secondary, err := forkchoice.SelectSecondaryParents(tips, mainParent, owner, equivocators, p.mergeChecker(view), p.secondaryParentsEnabled)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "secondary parent selection", err)
	}

	deploys := p.mempool.CandidateDeploys(p.maxDeploysPerBlock)

	results, err := p.ee.Exec(ctx, mainParentMsg.PostStateHash, timestamp, deploys, 1)
	if err != nil {
		for _, d := range deploys {
			p.mempool.Requeue(d)
		}
		return nil, errs.Transient("exec", err)
	}
	var effects engine.Effects
	for _, r := range results {
		effects.Transforms = append(effects.Transforms, r.Effects.Transforms...)
	}

	commit, err := p.ee.Commit(ctx, engine.CommitRequest{PreStateHash: mainParentMsg.PostStateHash, Effects: effects, ProtocolVersion: 1})
	if err != nil {
		for _, d := range deploys {
			p.mempool.Requeue(d)
		}
		return nil, errs.Transient("commit", err)
	}

	parents := append([]hash.Hash{mainParent}, secondary...)
	m := &message.Message{
		Kind:                     message.KindBlock,
		ValidatorID:              p.self,
		ValidatorMsgSeqNum:       nextSeq,
		ValidatorPrevMessageHash: prevHash,
		Parents:                  parents,
		Justifications:           justifications.Clone(),
		EraID:                    eraID,
		RoundID:                  roundID,
		Timestamp:                timestamp,
		PostStateHash:            commit.PostStateHash,
		Bonds:                    commit.Bonds,
		Deploys:                  deploys,
		IsBookingBlock:           isBookingBlock,
		IsSwitchBlock:            isSwitchBlock,
	}

	jRank, mainRank, err := computeRanks(view, m)
	if err != nil {
		for _, d := range deploys {
			p.mempool.Requeue(d)
		}
		return nil, err
	}
	m.JRank, m.MainRank = jRank, mainRank

	if err := message.Sign(m, p.priv); err != nil {
		for _, d := range deploys {
			p.mempool.Requeue(d)
		}
		return nil, errs.Wrap(errs.KindFatal, "sign block", err)
	}

	if p.persist != nil {
		if status, err := p.persist(ctx, m); err != nil || status != executor.StatusValid {
			for _, d := range deploys {
				p.mempool.Requeue(d)
			}
			return nil, fmt.Errorf("producer: persisting own block: status=%v err=%w", status, err)
		}
	}

	return m, nil
}

// RequeueOrphaned returns every deploy carried by an orphaned message to
// the mempool, so they are reconsidered for inclusion in a future block
// (spec §4.4).
func (p *Producer) RequeueOrphaned(view dag.View, orphaned []hash.Hash) {
	for _, h := range orphaned {
		m, ok := view.Lookup(h)
		if !ok || m.Kind != message.KindBlock {
			continue
		}
		for _, d := range m.Deploys {
			p.mempool.Requeue(d)
		}
	}
}

// mergeChecker treats duplicate deploy-hash inclusion across the parents
// already chosen as the concrete conflict signal for secondary-parent
// mergeability: the execution-engine interface of spec §6 exposes no direct
// "can these effects merge" RPC, so this is the grounded stand-in a
// validator can compute locally before asking the engine to actually exec
// the merged set. A candidate conflicts if it carries a
// deploy hash already carried by a parent chosen earlier in this selection.
func (p *Producer) mergeChecker(view dag.View) forkchoice.MergeChecker {
	return func(chosen []hash.Hash, candidate hash.Hash) (bool, error) {
		candidateMsg, ok := view.Lookup(candidate)
		if !ok {
			return false, fmt.Errorf("producer: unknown merge candidate %s", candidate)
		}
		if len(candidateMsg.Deploys) == 0 {
			return true, nil
		}
		seen := make(map[hash.Hash]struct{}, len(candidateMsg.Deploys))
		for _, d := range candidateMsg.Deploys {
			seen[d.Hash] = struct{}{}
		}
		for _, c := range chosen {
			chosenMsg, ok := view.Lookup(c)
			if !ok {
				continue
			}
			for _, d := range chosenMsg.Deploys {
				if _, dup := seen[d.Hash]; dup {
					return false, nil
				}
			}
		}
		return true, nil
	}
}

func computeRanks(view dag.View, m *message.Message) (jRank, mainRank uint64, err error) {
	d, ok := view.(ranker)
	if !ok {
		return 0, 0, fmt.Errorf("producer: view does not support rank computation")
	}
	return d.ExpectedRanks(m.Parents, m.Justifications, m.MainParent())
}

// ranker is satisfied by *dag.DAG; kept narrow so Producer depends only on
// the rank computation it needs, not the whole concrete type.
type ranker interface {
	ExpectedRanks(parents []hash.Hash, justifications message.Justifications, mainParent hash.Hash) (jRank, mainRank uint64, err error)
}
