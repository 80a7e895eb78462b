// Package digest computes the fixed-width cryptographic fingerprint used to
// identify keys throughout the index and segment layers.
package digest

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Size is the fixed width of a Digest in bytes.
const Size = 16

// Digest is a fixed-width fingerprint of a key. Equality and ordering are
// bytewise; hashing to a bucket uses the low bits of the first word.
type Digest [Size]byte

// Compute hashes key into a Digest. It is a total function: every byte
// slice, including nil and empty, produces a value.
func Compute(key []byte) Digest {
	sum := blake2b.Sum256(key)

	var d Digest
	copy(d[:], sum[:Size])
	return d
}

// Equal reports whether two digests are bytewise identical.
func (d Digest) Equal(other Digest) bool {
	return d == other
}

// Compare returns -1, 0, or 1 following bytewise comparison of d and other.
func (d Digest) Compare(other Digest) int {
	return bytes.Compare(d[:], other[:])
}

// Less reports whether d sorts before other under bytewise comparison.
func (d Digest) Less(other Digest) bool {
	return d.Compare(other) < 0
}

// Hash derives a bucket seed from the digest's low bits. It must be
// deterministic and well distributed in its low bits, since callers reduce
// it modulo a power-of-two bucket count.
func Hash(d Digest) uint64 {
	return binary.LittleEndian.Uint64(d[:8])
}

// String renders the digest as lowercase hex, mainly for log lines.
func (d Digest) String() string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, Size*2)
	for i, b := range d {
		buf[i*2] = hexDigits[b>>4]
		buf[i*2+1] = hexDigits[b&0x0f]
	}
	return string(buf)
}
