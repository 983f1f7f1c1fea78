// Command validator runs a single block-DAG consensus node: it loads its
// configuration, generates a fresh Ed25519 signing key (the validator key
// paths in the configuration are not read), wires the execution engine,
// storage, DAG,
// finality detector and executor together, and — when run in highway mode —
// drives the era supervisor's lambda/omega schedule to produce its own
// blocks and ballots. Mirrors the teacher's main.go, which loads config in
// init() and dispatches on a protocol switch in main().
package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/dagchain/consensus-core/config"
	"github.com/dagchain/consensus-core/dag"
	"github.com/dagchain/consensus-core/engine"
	enginefake "github.com/dagchain/consensus-core/engine/fake"
	"github.com/dagchain/consensus-core/era"
	"github.com/dagchain/consensus-core/errs"
	"github.com/dagchain/consensus-core/executor"
	"github.com/dagchain/consensus-core/finality"
	"github.com/dagchain/consensus-core/glue"
	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/highway"
	"github.com/dagchain/consensus-core/logging"
	"github.com/dagchain/consensus-core/message"
	"github.com/dagchain/consensus-core/sign"
	"github.com/dagchain/consensus-core/storage"
)

var cfg *config.Config

func init() {
	var err error
	cfg, err = config.LoadConfig("", "config")
	if err != nil {
		panic(err)
	}
}

func main() {
	highwayMode := flag.Bool("highway", false, "run in era-partitioned highway mode instead of NCB mode")
	flag.Parse()

	log := logging.New("validator", "info")

	priv, pub := sign.GenED25519Keys()
	self := message.ValidatorIDFromBytes(pub)

	store := storage.NewMemory()
	d := dag.New(log, store)
	ee := enginefake.New()

	bonds := []message.Bond{{ValidatorID: self, Stake: 100}}
	genesis := &message.Message{
		Bonds:         bonds,
		PostStateHash: hash.Zero,
	}
	genesisHash, err := message.ComputeHash(genesis)
	if err != nil {
		log.Error("hash genesis", "error", err)
		os.Exit(1)
	}
	genesis.Hash = genesisHash
	ee.SetBonds(hash.Zero, bonds)

	if err := d.Insert(genesis); err != nil {
		log.Error("insert genesis", "error", err)
		os.Exit(1)
	}

	weights := message.BondedWeight(bonds)
	fin := finality.New(log, store, cfg.FaultToleranceThreshold, *highwayMode, genesis.Hash, weights)

	spec := highway.ChainSpec{
		EraDurationMillis:          uint64(24 * time.Hour / time.Millisecond),
		BookingDurationMillis:      uint64(22 * time.Hour / time.Millisecond),
		EntropyDurationMillis:      uint64(time.Hour / time.Millisecond),
		VotingPeriodDurationMillis: uint64(2 * time.Hour / time.Millisecond),
		VotingPeriodSummitLevel:    3,
	}

	// votingPeriod and gate track the current era's voting-period closure
	// (SPEC_FULL §D.2): votingPeriod tallies consecutive committee-commits
	// of the same LFB candidate, gate latches the resulting "closed" signal
	// for the era-transition loop in runHighway to poll. Both are reset at
	// the start of every era.
	votingPeriod := highway.NewVotingPeriodTracker(spec.VotingPeriodSummitLevel)
	gate := &closingGate{}

	var onFinalize func(*finality.Result)
	if *highwayMode {
		onFinalize = func(result *finality.Result) {
			closed, streak := votingPeriod.Observe(result.NewLFB)
			log.Debug("voting period streak", "candidate", result.NewLFB, "streak", streak)
			if closed {
				gate.set()
				log.Info("voting period closed", "candidate", result.NewLFB, "streak", streak)
			}
		}
	}

	exec := executor.New(executor.Params{
		Log:        log,
		Config:     cfg,
		Clock:      engine.SystemClock{},
		Engine:     ee,
		Store:      store,
		DAG:        d,
		Finality:   fin,
		Self:       self,
		Weights:    weights,
		Metrics:    engine.NopMetrics{},
		OnFinalize: onFinalize,
	})

	mempool := glue.NewMempool()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	if !*highwayMode {
		runNCB(ctx, log, exec, d, genesis.Hash)
		return
	}
	runHighway(ctx, log, cfg, spec, priv, self, exec, d, ee, mempool, genesis, bonds, votingPeriod, gate)
}

// closingGate latches a one-way "voting period closed" signal set from the
// executor's OnFinalize callback (running on the message-processing path)
// and polled from the era supervisor's scheduling loop (spec SPEC_FULL
// §D.2). reset() rearms it for the next era.
type closingGate struct {
	mu     sync.Mutex
	closed bool
}

func (g *closingGate) set() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}

func (g *closingGate) get() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func (g *closingGate) reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = false
}

// runNCB is the non-era-partitioned mode (spec §4.6 "default"): this
// reference node only admits messages it receives; it never proposes its
// own, since there is no global leader schedule to tell it when.
func runNCB(ctx context.Context, log hclog.Logger, exec *executor.Executor, d *dag.DAG, genesisHash hash.Hash) {
	log.Info("running in NCB mode, awaiting messages", "genesis", genesisHash)
	<-ctx.Done()
}

// runHighway drives the era-partitioned mode of spec §4.6: a chain of
// Genesis-rooted eras each run the lambda/omega schedule, proposing this
// validator's own block in each active-phase round it leads and a ballot in
// each voting-phase round, then — once the era's voting period closes or
// its end tick is reached — derive the child
// era's key block and leader seed from the booking/switch blocks produced
// along the way and advance the supervisor's era tree to it (spec §4.6,
// §3, SPEC_FULL §C.3).
func runHighway(ctx context.Context, log hclog.Logger, cfg *config.Config, spec highway.ChainSpec, priv ed25519.PrivateKey, self message.ValidatorID, exec *executor.Executor, d *dag.DAG, ee engine.ExecutionEngine, mempool *glue.Mempool, genesis *message.Message, bonds []message.Bond, votingPeriod *highway.VotingPeriodTracker, gate *closingGate) {
	currentEra := &era.Era{
		KeyBlockHash: genesis.Hash,
		StartTick:    0,
		EndTick:      spec.EraDurationMillis,
		Bonds:        bonds,
		LeaderSeed:   1,
	}

	sup := highway.NewSupervisor(log, spec, storage.NewMemory(), engine.SystemClock{}, self, time.Now(), currentEra)

	persist := func(ctx context.Context, m *message.Message) (executor.Status, error) {
		status, err := exec.AddMessage(ctx, m)
		glue.Handle(log, m.Hash.String(), err)
		return status, err
	}
	producer := highway.NewProducer(highway.ProducerParams{
		Log:                     log,
		Self:                    self,
		PrivateKey:              priv,
		Mempool:                 mempool,
		Engine:                  ee,
		Clock:                   engine.SystemClock{},
		Persist:                 persist,
		SecondaryParentsEnabled: cfg.SecondaryParentsEnabled,
	})

	roundExponent := cfg.Highway.InitRoundExponent

	for {
		if ctx.Err() != nil {
			return
		}

		log.Info("running in highway mode", "era", currentEra.KeyBlockHash)

		var bookingBlockHash, bookingPostState, switchBlockHash hash.Hash
		var switchBlockBonds []message.Bond

		onLambda := func(ev highway.LambdaEvent) {
			if !ev.IsLeader {
				return
			}
			mainParent := ev.Era.KeyBlockHash
			justifications := message.Justifications{}
			isBooking := highway.IsBookingBlock(ev.Era, spec, ev.RoundStart)
			isSwitch := highway.IsSwitchBlockRound(ev.Era, spec, roundExponent, ev.RoundStart)
			blk, err := producer.Block(ctx, d, ev.Era.KeyBlockHash, ev.RoundStart, mainParent, justifications, message.BondedWeight(ev.Era.Bonds), d.GetEquivocators(), isBooking, isSwitch, time.Now().UnixMilli())
			if err != nil {
				log.Warn("block production failed", "round", ev.RoundStart, "error", err)
				return
			}
			if isBooking {
				bookingBlockHash, bookingPostState = blk.Hash, blk.PostStateHash
			}
			if isSwitch {
				switchBlockHash, switchBlockBonds = blk.Hash, blk.Bonds
			}
		}
		onOmega := func(ev highway.OmegaEvent) {
			tips := d.LatestMessage(self)
			if len(tips) == 0 {
				return
			}
			_, err := producer.Ballot(ctx, d, ev.Era.KeyBlockHash, ev.RoundStart, tips[0], tips[0], message.Justifications{}, time.Now().UnixMilli())
			if err != nil {
				log.Warn("ballot production failed", "round", ev.RoundStart, "error", err)
			}
		}

		err := sup.Run(ctx, currentEra, roundExponent, cfg.Highway.OmegaMessageTimeStart, cfg.Highway.OmegaMessageTimeEnd, gate.get, onLambda, onOmega)
		if err != nil {
			if e, ok := errs.As(err); ok && e.Kind == errs.KindFatal {
				log.Error("fatal highway error", "error", err)
				os.Exit(1)
			}
			log.Info("highway run ended", "error", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if !gate.get() {
			log.Warn("era's active and voting phases elapsed without the voting period closing", "era", currentEra.KeyBlockHash)
		}

		childKeyBlock := switchBlockHash
		childBonds := switchBlockBonds
		if childKeyBlock.IsZero() {
			// This validator never led the switch-block round; carry the
			// era forward on its own key block rather than stall.
			childKeyBlock = currentEra.KeyBlockHash
			childBonds = currentEra.Bonds
		}
		childEra := &era.Era{
			KeyBlockHash:       childKeyBlock,
			ParentKeyBlockHash: currentEra.KeyBlockHash,
			BookingBlockHash:   bookingBlockHash,
			StartTick:          currentEra.EndTick,
			EndTick:            currentEra.EndTick + spec.EraDurationMillis,
			Bonds:              childBonds,
			LeaderSeed:         era.DeriveLeaderSeed(currentEra.LeaderSeed, bookingPostState),
		}
		if err := sup.BeginChildEra(childEra); err != nil {
			log.Error("begin child era", "error", err)
			return
		}
		sup.AdvanceToChild()
		votingPeriod.Reset()
		gate.reset()
		currentEra = childEra
	}
}
