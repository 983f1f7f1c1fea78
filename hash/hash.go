// Package hash defines the opaque content-addressed identifier used
// throughout the consensus core and the Blake2b-256 function that produces
// it from a message's signed-payload bytes.
package hash

import (
	"encoding/hex"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// Size is the length in bytes of a Hash.
const Size = 32

// Hash is an opaque 32-byte content-addressed identifier.
type Hash [Size]byte

// Zero is the empty hash, used for "no parent"/"no previous message".
var Zero Hash

// IsZero reports whether h is the empty hash.
func (h Hash) IsZero() bool {
	return h == Zero
}

// String renders h as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the underlying bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, h[:])
	return out
}

// Less gives Hash a total order, used to sort secondary parents
// deterministically (spec §4.5).
func (h Hash) Less(other Hash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// FromBytes wraps raw bytes as a Hash. Panics if the length is wrong, since
// every caller is working from a value that was itself produced by Sum or by
// decoding a Hash-shaped field.
func FromBytes(b []byte) Hash {
	if len(b) != Size {
		panic("hash: wrong length")
	}
	var h Hash
	copy(h[:], b)
	return h
}

// Sum computes the Blake2b-256 digest of data.
func Sum(data []byte) Hash {
	return blake2b.Sum256(data)
}

// SortHashes returns a new, ascending-sorted copy of hs, by the total order
// defined by Less. Used for deterministic secondary-parent ordering.
func SortHashes(hs []Hash) []Hash {
	out := make([]Hash, len(hs))
	copy(out, hs)
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
