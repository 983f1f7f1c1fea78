package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/dagchain/consensus-core/config"
	"github.com/dagchain/consensus-core/dag"
	"github.com/dagchain/consensus-core/engine"
	"github.com/dagchain/consensus-core/equivocation"
	"github.com/dagchain/consensus-core/errs"
	"github.com/dagchain/consensus-core/finality"
	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/message"
	"github.com/dagchain/consensus-core/storage"
)

// AllowedClockDrift bounds how far into the future a block's timestamp may
// be before the executor sleeps and retries it (spec §4.2 step 1). Not one
// of spec §6's enumerated CLI knobs; kept as a small constant rather than a
// new config surface.
const AllowedClockDrift = 5 * time.Second

const protocolVersion uint32 = 1

// Executor drives the spec §4.2 state machine for incoming blocks and
// ballots.
type Executor struct {
	log hclog.Logger
	cfg *config.Config

	clock engine.Clock
	ee    engine.ExecutionEngine
	store storage.BlockStorage
	dag   *dag.DAG

	equiv    *equivocation.Detector
	finality *finality.Detector

	permit *Permit

	self    message.ValidatorID
	weights map[message.ValidatorID]uint64

	metrics    engine.Metrics
	onFinalize func(*finality.Result)
}

// Params groups Executor's constructor dependencies.
type Params struct {
	Log      hclog.Logger
	Config   *config.Config
	Clock    engine.Clock
	Engine   engine.ExecutionEngine
	Store    storage.BlockStorage
	DAG      *dag.DAG
	Finality *finality.Detector
	Self     message.ValidatorID
	Weights  map[message.ValidatorID]uint64
	Metrics  engine.Metrics

	// OnFinalize, if set, is invoked synchronously whenever a new message
	// advances the last finalized block (spec §4.4). Highway mode uses this
	// to feed the era's VotingPeriodTracker; NCB mode leaves it nil.
	OnFinalize func(*finality.Result)
}

// New builds an Executor.
func New(p Params) *Executor {
	metrics := p.Metrics
	if metrics == nil {
		metrics = engine.NopMetrics{}
	}
	return &Executor{
		log:      p.Log.Named("executor"),
		cfg:      p.Config,
		clock:    p.Clock,
		ee:       p.Engine,
		store:    p.Store,
		dag:      p.DAG,
		equiv:    equivocation.New(p.Log),
		finality: p.Finality,
		permit:   NewPermit(1),
		self:       p.Self,
		weights:    p.Weights,
		metrics:    metrics,
		onFinalize: p.OnFinalize,
	}
}

// AddMessage runs m through Received → ... → Finalized* (spec §4.2), under
// the message-adding permit.
func (e *Executor) AddMessage(ctx context.Context, m *message.Message) (Status, error) {
	if e.dag.Contains(m.Hash) {
		return StatusProcessed, nil
	}

	if err := e.permit.Acquire(ctx); err != nil {
		return StatusProcessing, err
	}
	defer e.permit.Release()

	if e.dag.Contains(m.Hash) {
		return StatusProcessed, nil
	}

	if err := e.waitForTimestamp(ctx, m); err != nil {
		return StatusProcessing, err
	}

	if status, err := e.validate(m); status != StatusValid {
		return status, err
	}

	preStateHash, preBonds, err := e.preState(m)
	if err != nil {
		return StatusMissingBlocks, err
	}

	if status, err := e.computeAndCheckEffects(ctx, m, preStateHash, preBonds); status != StatusValid {
		return status, err
	}

	equivocated := e.equiv.CheckInsert(e.dag, m)

	if err := e.dag.Insert(m); err != nil {
		return StatusInvalidBlock, errs.Wrap(errs.KindDrop, "insert", err)
	}
	for i := range m.Deploys {
		d := m.Deploys[i]
		if err := e.store.PutDeploy(&d); err != nil {
			e.log.Error("put deploy failed", "deploy", d.Hash, "error", err)
		}
		if err := e.store.MarkDeployProcessed(d.Hash); err != nil {
			e.log.Error("mark deploy processed failed", "deploy", d.Hash, "error", err)
		}
	}

	e.log.Debug("block added", "hash", m.Hash, "validator", m.ValidatorID, "jRank", m.JRank)
	e.metrics.IncCounter("messages_added")

	if equivocated {
		if m.ValidatorID == e.self {
			return StatusSelfEquivocatedBlock, errs.Fatal("self-equivocation detected", fmt.Errorf("validator %s signed two conflicting messages", m.ValidatorID))
		}
		e.metrics.IncCounter("equivocations_detected")
		return StatusEquivocatedBlock, nil
	}

	equivocators := e.dag.GetEquivocators()
	result, err := e.finality.OnNewMessage(e.dag, m, e.weights, equivocators)
	if err != nil {
		return StatusValid, errs.Transient("finality update", err)
	}
	if result != nil {
		e.log.Info("new last finalized block", "hash", result.NewLFB, "committee", len(result.Committee),
			"finalizedIndirectly", len(result.FinalizedIndirectly), "orphaned", len(result.Orphaned))
		e.metrics.IncCounter("blocks_finalized")
		if e.onFinalize != nil {
			e.onFinalize(result)
		}
		if branch, ok := e.dag.Lookup(result.NewLFB); ok && branch.Kind == message.KindBlock {
			e.weights = message.BondedWeight(branch.Bonds)
		}
		for _, dh := range result.FinalizedIndirectly {
			if fm, ok := e.dag.Lookup(dh); ok {
				for _, d := range fm.Deploys {
					_ = e.store.RemoveFinalizedDeploy(d.Hash)
				}
			}
		}
	}

	return StatusValid, nil
}

func (e *Executor) waitForTimestamp(ctx context.Context, m *message.Message) error {
	for {
		now := e.clock.Now()
		deadline := time.UnixMilli(m.Timestamp)
		if !deadline.After(now.Add(AllowedClockDrift)) {
			return nil
		}
		wait := deadline.Sub(now.Add(AllowedClockDrift))
		select {
		case <-e.clock.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Executor) validate(m *message.Message) (Status, error) {
	if !m.IsGenesis() {
		if len(m.Parents) == 0 {
			return StatusInvalidBlock, errs.Validation(errs.SubKindShape, "non-genesis message without parents")
		}
		if m.ValidatorID.IsZero() {
			return StatusInvalidBlock, errs.Validation(errs.SubKindShape, "non-genesis message without a validator id")
		}
	}
	if m.ValidatorMsgSeqNum == 0 && !m.IsGenesis() {
		return StatusInvalidBlock, errs.Validation(errs.SubKindShape, "seqNum must be >= 1")
	}
	if m.ValidatorPrevMessageHash.IsZero() && m.ValidatorMsgSeqNum > 1 {
		return StatusInvalidBlock, errs.Validation(errs.SubKindShape, "seqNum > 1 requires a previous message hash")
	}

	if !m.IsGenesis() {
		if ok, err := message.Verify(m, m.ValidatorID[:]); err != nil || !ok {
			return StatusInvalidBlock, errs.ValidationWrap(errs.SubKindSignature, "signature verification failed", err)
		}
	}

	for _, p := range m.Parents {
		if !e.dag.Contains(p) {
			return StatusMissingBlocks, errs.New(errs.KindTransient, fmt.Sprintf("missing parent %s", p))
		}
	}
	for _, j := range m.Justifications {
		if !e.dag.Contains(j) {
			return StatusMissingBlocks, errs.New(errs.KindTransient, fmt.Sprintf("missing justification %s", j))
		}
	}

	if !m.IsGenesis() {
		expJRank, expMainRank, err := e.dag.ExpectedRanks(m.Parents, m.Justifications, m.MainParent())
		if err != nil {
			return StatusMissingBlocks, errs.Wrap(errs.KindTransient, "rank computation", err)
		}
		if expJRank != m.JRank || expMainRank != m.MainRank {
			return StatusInvalidBlock, errs.Validation(errs.SubKindShape, "jRank/mainRank mismatch")
		}
	}

	if m.Kind == message.KindBlock {
		for _, d := range m.Deploys {
			if e.cfg != nil && time.Duration(d.TtlMillis)*time.Millisecond < e.cfg.MinDeployTtl {
				return StatusInvalidBlock, errs.Validation(errs.SubKindTransaction, fmt.Sprintf("deploy %s below minimum TTL", d.Hash))
			}
		}
	}

	return StatusValid, nil
}

// preState returns the pre-state root and bonds snapshot a new message m
// should be built against: its main parent's post-state if the main parent
// is itself a block, or (walking back) the nearest ancestor block's
// post-state otherwise (spec §4.2 step 4).
func (e *Executor) preState(m *message.Message) (hash.Hash, []message.Bond, error) {
	if m.IsGenesis() {
		return hash.Zero, nil, nil
	}
	cur := m.MainParent()
	for {
		pm, ok := e.dag.Lookup(cur)
		if !ok {
			return hash.Hash{}, nil, fmt.Errorf("executor: missing ancestor %s while computing pre-state", cur)
		}
		if pm.Kind == message.KindBlock {
			return pm.PostStateHash, pm.Bonds, nil
		}
		if pm.IsGenesis() {
			return hash.Zero, nil, nil
		}
		cur = pm.MainParent()
	}
}

func (e *Executor) computeAndCheckEffects(ctx context.Context, m *message.Message, preStateHash hash.Hash, preBonds []message.Bond) (Status, error) {
	if m.Kind == message.KindBallot {
		target, ok := e.dag.Lookup(m.Target)
		if !ok {
			return StatusMissingBlocks, errs.New(errs.KindTransient, fmt.Sprintf("missing ballot target %s", m.Target))
		}
		if m.PostStateHash != target.PostStateHash {
			return StatusInvalidBlock, errs.Validation(errs.SubKindTransaction, "ballot post-state does not match target")
		}
		return StatusValid, nil
	}

	results, err := e.ee.Exec(ctx, preStateHash, m.Timestamp, m.Deploys, protocolVersion)
	if err != nil {
		return StatusProcessing, errs.Transient("exec", err)
	}
	var effects engine.Effects
	for _, r := range results {
		effects.Transforms = append(effects.Transforms, r.Effects.Transforms...)
	}

	commit, err := e.ee.Commit(ctx, engine.CommitRequest{PreStateHash: preStateHash, Effects: effects, ProtocolVersion: protocolVersion})
	if err != nil {
		return StatusProcessing, errs.Transient("commit", err)
	}

	if commit.PostStateHash != m.PostStateHash {
		return StatusInvalidBlock, errs.Validation(errs.SubKindTransaction, "post-state hash mismatch")
	}
	if !bondsEqual(commit.Bonds, m.Bonds) {
		return StatusInvalidBlock, errs.Validation(errs.SubKindTransaction, "bonds mismatch")
	}
	_ = preBonds
	return StatusValid, nil
}

func bondsEqual(a, b []message.Bond) bool {
	if len(a) != len(b) {
		return false
	}
	am := message.BondedWeight(a)
	bm := message.BondedWeight(b)
	if len(am) != len(bm) {
		return false
	}
	for v, w := range am {
		if bm[v] != w {
			return false
		}
	}
	return true
}
