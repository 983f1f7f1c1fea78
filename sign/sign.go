// Package sign wraps Ed25519 key generation, signing and verification, in
// the same shape the teacher's sign package is called with
// (sign.GenED25519Keys, sign.SignEd25519, sign.VerifySignEd25519) — spec §6
// fixes Ed25519 as the default signature algorithm.
package sign

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// Signature pairs the signing algorithm with the raw signature bytes, per
// spec §6's Signature{algorithm, bytes}.
type Signature struct {
	Algorithm string
	Bytes     []byte
}

// AlgorithmEd25519 is the only algorithm this module currently implements.
const AlgorithmEd25519 = "ed25519"

// GenED25519Keys generates a fresh Ed25519 key pair.
func GenED25519Keys() (ed25519.PrivateKey, ed25519.PublicKey) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		// crypto/rand failing to produce entropy is not a case this module
		// can recover from.
		panic(fmt.Sprintf("sign: generate key: %v", err))
	}
	return priv, pub
}

// SignEd25519 signs data with priv and wraps the result as a Signature.
func SignEd25519(priv ed25519.PrivateKey, data []byte) Signature {
	return Signature{Algorithm: AlgorithmEd25519, Bytes: ed25519.Sign(priv, data)}
}

// VerifySignEd25519 verifies sig against data under pub.
func VerifySignEd25519(pub ed25519.PublicKey, data []byte, sig Signature) (bool, error) {
	if sig.Algorithm != AlgorithmEd25519 {
		return false, fmt.Errorf("sign: unsupported algorithm %q", sig.Algorithm)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("sign: bad public key length %d", len(pub))
	}
	return ed25519.Verify(pub, data, sig.Bytes), nil
}
