package message

import (
	"bytes"
	"crypto/ed25519"
	"fmt"

	"github.com/hashicorp/go-msgpack/codec"

	"github.com/dagchain/consensus-core/hash"
	"github.com/dagchain/consensus-core/sign"
)

var mh codec.MsgpackHandle

// signedPayload is every field that is covered by the message signature and
// content hash: everything except the Hash and Signature fields themselves.
type signedPayload struct {
	Kind                     Kind
	ValidatorID              ValidatorID
	ValidatorMsgSeqNum       uint64
	ValidatorPrevMessageHash hash.Hash
	Parents                  []hash.Hash
	Justifications           Justifications
	JRank                    uint64
	MainRank                 uint64
	EraID                    hash.Hash
	RoundID                  uint64
	Timestamp                int64
	PostStateHash            hash.Hash
	Bonds                    []Bond
	Deploys                  []Deploy
	IsBookingBlock           bool
	IsSwitchBlock            bool
	Target                   hash.Hash
}

func (m *Message) payload() signedPayload {
	return signedPayload{
		Kind:                     m.Kind,
		ValidatorID:              m.ValidatorID,
		ValidatorMsgSeqNum:       m.ValidatorMsgSeqNum,
		ValidatorPrevMessageHash: m.ValidatorPrevMessageHash,
		Parents:                  m.Parents,
		Justifications:           m.Justifications,
		JRank:                    m.JRank,
		MainRank:                 m.MainRank,
		EraID:                    m.EraID,
		RoundID:                  m.RoundID,
		Timestamp:                m.Timestamp,
		PostStateHash:            m.PostStateHash,
		Bonds:                    m.Bonds,
		Deploys:                  m.Deploys,
		IsBookingBlock:           m.IsBookingBlock,
		IsSwitchBlock:            m.IsSwitchBlock,
		Target:                   m.Target,
	}
}

// EncodePayload returns the canonical msgpack bytes of the signed portion of
// m, the bytes that are both hashed (spec §6: "the hash is Blake2b-256 of
// the signed-payload bytes") and signed.
func EncodePayload(m *Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, &mh)
	if err := enc.Encode(m.payload()); err != nil {
		return nil, fmt.Errorf("message: encode payload: %w", err)
	}
	return buf.Bytes(), nil
}

// ComputeHash returns the content hash of m's signed payload.
func ComputeHash(m *Message) (hash.Hash, error) {
	b, err := EncodePayload(m)
	if err != nil {
		return hash.Hash{}, err
	}
	return hash.Sum(b), nil
}

// Sign computes m's hash and signature from priv and populates both fields.
func Sign(m *Message, priv ed25519.PrivateKey) error {
	h, err := ComputeHash(m)
	if err != nil {
		return err
	}
	m.Hash = h
	m.Signature = sign.SignEd25519(priv, h.Bytes())
	return nil
}

// Verify checks that m's Hash matches its payload and that Signature
// verifies against pub over that hash.
func Verify(m *Message, pub ed25519.PublicKey) (bool, error) {
	h, err := ComputeHash(m)
	if err != nil {
		return false, err
	}
	if h != m.Hash {
		return false, fmt.Errorf("message: hash mismatch: computed %s, claimed %s", h, m.Hash)
	}
	return sign.VerifySignEd25519(pub, h.Bytes(), m.Signature)
}

// Encode serializes the full message, including Hash and Signature, for
// wire transfer / storage.
func Encode(m *Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, &mh)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("message: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes a full message previously produced by Encode.
func Decode(b []byte) (*Message, error) {
	var m Message
	dec := codec.NewDecoder(bytes.NewReader(b), &mh)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("message: decode: %w", err)
	}
	return &m, nil
}
