package equivocation

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

// TestCheckInsertDetectsDuplicateSeqNum is the reference node's S2 scenario:
// V1 signs two children of G with the same validatorMsgSeqNum=1. On
// inserting the second, CheckInsert must report an equivocation, and
// GetEquivocators must include V1 afterwards.
func TestCheckInsertDetectsDuplicateSeqNum(t *testing.T) {
	store := storage.NewMemory()
	d := dag.New(hclog.NewNullLogger(), store)
	det := New(hclog.NewNullLogger())

	v1 := testValidator(1)

	genesis := &message.Message{Hash: hash.Sum([]byte("G"))}
	mustInsert(t, d, genesis)

	c1 := &message.Message{
		Hash: hash.Sum([]byte("c1")), Kind: message.KindBlock,
		ValidatorID: v1, ValidatorMsgSeqNum: 1,
		Parents: []hash.Hash{genesis.Hash},
	}
	if det.CheckInsert(d, c1) {
		t.Fatalf("c1: expected no equivocation on validator's first message")
	}
	mustInsert(t, d, c1)

	c2 := &message.Message{
		Hash: hash.Sum([]byte("c2")), Kind: message.KindBlock,
		ValidatorID: v1, ValidatorMsgSeqNum: 1,
		Parents: []hash.Hash{genesis.Hash},
	}
	if !det.CheckInsert(d, c2) {
		t.Fatalf("c2: expected an equivocation against c1")
	}
	mustInsert(t, d, c2)

	equivocators := d.GetEquivocators()
	if _, ok := equivocators[v1]; !ok {
		t.Fatalf("GetEquivocators() = %v, want it to include V1", equivocators)
	}
}

// TestVisibleFromJustificationsFindsCone verifies that a known equivocator
// surfaces in VisibleFromJustifications once its duplicate messages are
// visible in the justification cone, and is absent when the cone never
// reaches both of them.
func TestVisibleFromJustificationsFindsCone(t *testing.T) {
	store := storage.NewMemory()
	d := dag.New(hclog.NewNullLogger(), store)
	det := New(hclog.NewNullLogger())

	v1 := testValidator(1)

	genesis := &message.Message{Hash: hash.Sum([]byte("G"))}
	mustInsert(t, d, genesis)

	c1 := &message.Message{
		Hash: hash.Sum([]byte("c1")), Kind: message.KindBlock,
		ValidatorID: v1, ValidatorMsgSeqNum: 1,
		Parents: []hash.Hash{genesis.Hash},
	}
	mustInsert(t, d, c1)
	c2 := &message.Message{
		Hash: hash.Sum([]byte("c2")), Kind: message.KindBlock,
		ValidatorID: v1, ValidatorMsgSeqNum: 1,
		Parents: []hash.Hash{genesis.Hash},
	}
	mustInsert(t, d, c2)

	observer := &message.Message{
		Hash: hash.Sum([]byte("observer")), Kind: message.KindBlock,
		ValidatorID: testValidator(2), ValidatorMsgSeqNum: 1,
		Parents:        []hash.Hash{genesis.Hash},
		Justifications: message.Justifications{v1: c1.Hash},
	}
	mustInsert(t, d, observer)

	visible := det.VisibleFromJustifications(d, message.Justifications{testValidator(2): observer.Hash})
	if _, ok := visible[v1]; ok {
		t.Fatalf("visible = %v, want V1 absent: observer's cone only reaches c1, not both of V1's messages", visible)
	}

	observer2 := &message.Message{
		Hash: hash.Sum([]byte("observer2")), Kind: message.KindBlock,
		ValidatorID: testValidator(2), ValidatorMsgSeqNum: 2, ValidatorPrevMessageHash: observer.Hash,
		Parents:        []hash.Hash{observer.Hash},
		Justifications: message.Justifications{testValidator(2): observer.Hash, v1: c2.Hash},
	}
	mustInsert(t, d, observer2)

	visible = det.VisibleFromJustifications(d, message.Justifications{testValidator(2): observer2.Hash})
	if _, ok := visible[v1]; !ok {
		t.Fatalf("visible = %v, want V1 present: observer2's cone reaches both c1 (via observer) and c2", visible)
	}
}
