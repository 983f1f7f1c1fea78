package forkchoice

import (
	"testing"

	"github.com/hashicorp/go-hclog"

	"github.com/dagchain/consensus-core/dag"
	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/message"
	"github.com/dagchain/consensus-core/storage"
)

func testValidator(b byte) message.ValidatorID {
	var v message.ValidatorID
	v[0] = b
	return v
}

func mustInsert(t *testing.T, d *dag.DAG, m *message.Message) {
	t.Helper()
	jRank, mainRank, err := d.ExpectedRanks(m.Parents, m.Justifications, m.MainParent())
	if err != nil {
		t.Fatalf("ExpectedRanks(%s): %v", m.Hash, err)
	}
	m.JRank, m.MainRank = jRank, mainRank
	if err := d.Insert(m); err != nil {
		t.Fatalf("Insert(%s): %v", m.Hash, err)
	}
}

// TestMainParentFollowsGreatestHonestWeight builds a fork at genesis: b1's
// subtree holds all three validators' tips (weight 30), while b2 holds none
// once its author moves on. MainParent must walk to a tip of the heavier
// branch.
func TestMainParentFollowsGreatestHonestWeight(t *testing.T) {
	store := storage.NewMemory()
	d := dag.New(hclog.NewNullLogger(), store)

	v1, v2, v3 := testValidator(1), testValidator(2), testValidator(3)
	weights := map[message.ValidatorID]uint64{v1: 10, v2: 10, v3: 10}

	genesis := &message.Message{Hash: hash.Sum([]byte("G"))}
	mustInsert(t, d, genesis)

	b1 := &message.Message{
		Hash: hash.Sum([]byte("b1")), Kind: message.KindBlock,
		ValidatorID: v1, ValidatorMsgSeqNum: 1,
		Parents: []hash.Hash{genesis.Hash},
	}
	mustInsert(t, d, b1)
	b2 := &message.Message{
		Hash: hash.Sum([]byte("b2")), Kind: message.KindBlock,
		ValidatorID: v2, ValidatorMsgSeqNum: 1,
		Parents: []hash.Hash{genesis.Hash},
	}
	mustInsert(t, d, b2)

	// v2 builds its own next block on top of b1, and v3 votes for b1 too,
	// giving b1's subtree weight 30 against b2's weight 0.
	b3 := &message.Message{
		Hash: hash.Sum([]byte("b3")), Kind: message.KindBlock,
		ValidatorID: v2, ValidatorMsgSeqNum: 2, ValidatorPrevMessageHash: b2.Hash,
		Parents:        []hash.Hash{b1.Hash},
		Justifications: message.Justifications{v1: b1.Hash, v2: b2.Hash},
	}
	mustInsert(t, d, b3)
	b4 := &message.Message{
		Hash: hash.Sum([]byte("b4")), Kind: message.KindBlock,
		ValidatorID: v3, ValidatorMsgSeqNum: 1,
		Parents: []hash.Hash{b1.Hash},
	}
	mustInsert(t, d, b4)

	fc := New()
	got := fc.MainParent(d, genesis.Hash, weights, nil)
	if got != b3.Hash && got != b4.Hash {
		t.Fatalf("MainParent = %s, want a tip of b1's subtree (b3 or b4)", got)
	}

	// Confirm b1's subtree actually outweighs b2's: b1 carries v1's vote (10)
	// plus v2's vote via b3 (10) plus v3's vote via b4 (10) = 30, b2 carries
	// none once v2 moved on to b3.
	votes := fc.votesByBlock(d, genesis.Hash, weights, nil)
	if votes[b1.Hash] != 30 {
		t.Fatalf("votes[b1] = %d, want 30", votes[b1.Hash])
	}
	if votes[b2.Hash] != 0 {
		t.Fatalf("votes[b2] = %d, want 0 (v2 moved on to b3)", votes[b2.Hash])
	}
}

// TestMainParentIgnoresEquivocators confirms an equivocating validator's
// vote is excluded from the subtree-weight computation.
func TestMainParentIgnoresEquivocators(t *testing.T) {
	store := storage.NewMemory()
	d := dag.New(hclog.NewNullLogger(), store)

	v1, v2 := testValidator(1), testValidator(2)
	weights := map[message.ValidatorID]uint64{v1: 10, v2: 90}

	genesis := &message.Message{Hash: hash.Sum([]byte("G"))}
	mustInsert(t, d, genesis)

	b1 := &message.Message{
		Hash: hash.Sum([]byte("b1")), Kind: message.KindBlock,
		ValidatorID: v1, ValidatorMsgSeqNum: 1,
		Parents: []hash.Hash{genesis.Hash},
	}
	mustInsert(t, d, b1)
	b2 := &message.Message{
		Hash: hash.Sum([]byte("b2")), Kind: message.KindBlock,
		ValidatorID: v2, ValidatorMsgSeqNum: 1,
		Parents: []hash.Hash{genesis.Hash},
	}
	mustInsert(t, d, b2)

	fc := New()
	equivocators := map[message.ValidatorID]struct{}{v2: {}}
	got := fc.MainParent(d, genesis.Hash, weights, equivocators)
	if got != b1.Hash {
		t.Fatalf("MainParent = %s, want b1: v2's heavier vote must be excluded as an equivocator", got)
	}
}

// TestSelectSecondaryParentsFiltersAndRespectsMergeChecker verifies that
// secondary-parent selection excludes the main parent and equivocators'
// tips, and honors the merge checker's rejections.
func TestSelectSecondaryParentsFiltersAndRespectsMergeChecker(t *testing.T) {
	mainParent := hash.Sum([]byte("main"))
	t1 := hash.Sum([]byte("t1"))
	t2 := hash.Sum([]byte("t2"))
	t3 := hash.Sum([]byte("t3")) // owned by an equivocator

	v1, v2 := testValidator(1), testValidator(2)
	tipOwner := map[hash.Hash]message.ValidatorID{t1: v1, t2: v1, t3: v2}
	equivocators := map[message.ValidatorID]struct{}{v2: {}}

	canMerge := func(chosen []hash.Hash, candidate hash.Hash) (bool, error) {
		return candidate != t2, nil
	}

	got, err := SelectSecondaryParents([]hash.Hash{mainParent, t1, t2, t3}, mainParent, tipOwner, equivocators, canMerge, true)
	if err != nil {
		t.Fatalf("SelectSecondaryParents: %v", err)
	}
	if len(got) != 1 || got[0] != t1 {
		t.Fatalf("SelectSecondaryParents = %v, want [%s]", got, t1)
	}
}

// TestSelectSecondaryParentsDisabled confirms the disabled gate short-circuits.
func TestSelectSecondaryParentsDisabled(t *testing.T) {
	got, err := SelectSecondaryParents([]hash.Hash{hash.Sum([]byte("t1"))}, hash.Hash{}, nil, nil, nil, false)
	if err != nil || got != nil {
		t.Fatalf("SelectSecondaryParents(disabled) = %v, %v, want nil, nil", got, err)
	}
}
