package finality

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

func newDAG(t *testing.T) (*dag.DAG, storage.BlockStorage) {
	t.Helper()
	store := storage.NewMemory()
	return dag.New(hclog.NewNullLogger(), store), store
}

// TestCommitteeTwoValidatorAgreement is the reference node's S1 scenario:
// V1 and V2 stake 10 each; V1 builds b1 on G, V2 builds b2 on G, V1 builds
// b3 on b1 citing b2, V2 builds b4 on b3 citing b2, V1 builds b5 on b4.
// With rFTT=0.1 the matrix should first commit b1, with committee {V1,V2}
// and quorum weight 20, exactly when b5 is added.
func TestCommitteeTwoValidatorAgreement(t *testing.T) {
	d, store := newDAG(t)

	v1, v2 := testValidator(1), testValidator(2)
	weights := map[message.ValidatorID]uint64{v1: 10, v2: 10}

	genesis := &message.Message{Hash: hash.Sum([]byte("G"))}
	mustInsert(t, d, genesis)

	det := New(hclog.NewNullLogger(), store, 0.1, false, genesis.Hash, weights)

	b1 := &message.Message{
		Hash: hash.Sum([]byte("b1")), Kind: message.KindBlock,
		ValidatorID: v1, ValidatorMsgSeqNum: 1,
		Parents: []hash.Hash{genesis.Hash},
	}
	mustInsert(t, d, b1)
	if res, err := det.OnNewMessage(d, b1, weights, nil); err != nil || res != nil {
		t.Fatalf("after b1: res=%v err=%v, want no commit yet", res, err)
	}

	b2 := &message.Message{
		Hash: hash.Sum([]byte("b2")), Kind: message.KindBlock,
		ValidatorID: v2, ValidatorMsgSeqNum: 1,
		Parents: []hash.Hash{genesis.Hash},
	}
	mustInsert(t, d, b2)
	if res, err := det.OnNewMessage(d, b2, weights, nil); err != nil || res != nil {
		t.Fatalf("after b2: res=%v err=%v, want no commit yet", res, err)
	}

	b3 := &message.Message{
		Hash: hash.Sum([]byte("b3")), Kind: message.KindBlock,
		ValidatorID: v1, ValidatorMsgSeqNum: 2, ValidatorPrevMessageHash: b1.Hash,
		Parents:        []hash.Hash{b1.Hash},
		Justifications: message.Justifications{v1: b1.Hash, v2: b2.Hash},
	}
	mustInsert(t, d, b3)
	if res, err := det.OnNewMessage(d, b3, weights, nil); err != nil || res != nil {
		t.Fatalf("after b3: res=%v err=%v, want no commit yet", res, err)
	}

	b4 := &message.Message{
		Hash: hash.Sum([]byte("b4")), Kind: message.KindBlock,
		ValidatorID: v2, ValidatorMsgSeqNum: 2, ValidatorPrevMessageHash: b2.Hash,
		Parents:        []hash.Hash{b3.Hash},
		Justifications: message.Justifications{v1: b3.Hash, v2: b2.Hash},
	}
	mustInsert(t, d, b4)
	if res, err := det.OnNewMessage(d, b4, weights, nil); err != nil || res != nil {
		t.Fatalf("after b4: res=%v err=%v, want no commit yet", res, err)
	}

	b5 := &message.Message{
		Hash: hash.Sum([]byte("b5")), Kind: message.KindBlock,
		ValidatorID: v1, ValidatorMsgSeqNum: 3, ValidatorPrevMessageHash: b3.Hash,
		Parents:        []hash.Hash{b4.Hash},
		Justifications: message.Justifications{v1: b3.Hash, v2: b4.Hash},
	}
	mustInsert(t, d, b5)

	res, err := det.OnNewMessage(d, b5, weights, nil)
	if err != nil {
		t.Fatalf("after b5: %v", err)
	}
	if res == nil {
		t.Fatalf("after b5: expected a commit, got none")
	}
	if res.NewLFB != b1.Hash {
		t.Fatalf("NewLFB = %s, want b1 %s", res.NewLFB, b1.Hash)
	}
	if len(res.Committee) != 2 {
		t.Fatalf("committee = %v, want 2 members", res.Committee)
	}
	var committeeWeight uint64
	for _, v := range res.Committee {
		committeeWeight += weights[v]
	}
	if committeeWeight != 20 {
		t.Fatalf("committee weight = %d, want 20", committeeWeight)
	}
	if det.LFB() != b1.Hash {
		t.Fatalf("detector LFB = %s, want b1 %s", det.LFB(), b1.Hash)
	}
}

// TestIndirectFinalizationLinearChain is the reference node's S4 scenario:
// a linear chain G<-b1<-b2<-b3 where b3 has just become the LFB. b1 and b2
// must be marked FinalizedIndirectly, and nothing is orphaned.
func TestIndirectFinalizationLinearChain(t *testing.T) {
	d, store := newDAG(t)

	genesis := &message.Message{Hash: hash.Sum([]byte("G"))}
	mustInsert(t, d, genesis)
	b1 := &message.Message{Hash: hash.Sum([]byte("b1")), Kind: message.KindBlock, Parents: []hash.Hash{genesis.Hash}}
	mustInsert(t, d, b1)
	b2 := &message.Message{Hash: hash.Sum([]byte("b2")), Kind: message.KindBlock, Parents: []hash.Hash{b1.Hash}}
	mustInsert(t, d, b2)
	b3 := &message.Message{Hash: hash.Sum([]byte("b3")), Kind: message.KindBlock, Parents: []hash.Hash{b2.Hash}}
	mustInsert(t, d, b3)

	if err := store.SetFinality(b3.Hash, storage.FinalizedDirectly); err != nil {
		t.Fatalf("SetFinality(b3): %v", err)
	}

	finalized, orphaned, err := IndirectlyFinalize(d, store, b3.Hash, nil)
	if err != nil {
		t.Fatalf("IndirectlyFinalize: %v", err)
	}
	if len(orphaned) != 0 {
		t.Fatalf("orphaned = %v, want none", orphaned)
	}
	wantFinalized := map[hash.Hash]bool{b1.Hash: true, b2.Hash: true}
	if len(finalized) != len(wantFinalized) {
		t.Fatalf("finalized = %v, want %v", finalized, wantFinalized)
	}
	for _, h := range finalized {
		if !wantFinalized[h] {
			t.Fatalf("unexpected finalized block %s", h)
		}
		status, _, _ := store.GetFinality(h)
		if status != storage.FinalizedIndirectly {
			t.Fatalf("block %s status = %v, want FinalizedIndirectly", h, status)
		}
	}
}

// TestOrphanMarking is the reference node's S5 scenario: a fork from G, with
// the main chain G<-b1<-b2 (built by VA, citing side-chain validator VB's
// message as a justification without ever taking it as a parent) finalized,
// and a side chain G<-s1 built by VB. Once b2 finalizes, s1 — undecided and
// in b2's j-past cone but not one of its ancestors — must be marked
// Orphaned.
func TestOrphanMarking(t *testing.T) {
	d, store := newDAG(t)

	va, vb := testValidator(1), testValidator(2)

	genesis := &message.Message{Hash: hash.Sum([]byte("G"))}
	mustInsert(t, d, genesis)
	s1 := &message.Message{
		Hash: hash.Sum([]byte("s1")), Kind: message.KindBlock,
		ValidatorID: vb, ValidatorMsgSeqNum: 1,
		Parents: []hash.Hash{genesis.Hash},
	}
	mustInsert(t, d, s1)
	b1 := &message.Message{
		Hash: hash.Sum([]byte("b1")), Kind: message.KindBlock,
		ValidatorID: va, ValidatorMsgSeqNum: 1,
		Parents:        []hash.Hash{genesis.Hash},
		Justifications: message.Justifications{vb: s1.Hash},
	}
	mustInsert(t, d, b1)
	b2 := &message.Message{
		Hash: hash.Sum([]byte("b2")), Kind: message.KindBlock,
		ValidatorID: va, ValidatorMsgSeqNum: 2, ValidatorPrevMessageHash: b1.Hash,
		Parents:        []hash.Hash{b1.Hash},
		Justifications: message.Justifications{va: b1.Hash, vb: s1.Hash},
	}
	mustInsert(t, d, b2)

	if err := store.SetFinality(b2.Hash, storage.FinalizedDirectly); err != nil {
		t.Fatalf("SetFinality(b2): %v", err)
	}

	_, orphaned, err := IndirectlyFinalize(d, store, b2.Hash, nil)
	if err != nil {
		t.Fatalf("IndirectlyFinalize: %v", err)
	}
	if len(orphaned) != 1 || orphaned[0] != s1.Hash {
		t.Fatalf("orphaned = %v, want [%s]", orphaned, s1.Hash)
	}
	status, _, _ := store.GetFinality(s1.Hash)
	if status != storage.Orphaned {
		t.Fatalf("s1 status = %v, want Orphaned", status)
	}
}
