// Package random provides splittable, deterministic random keys.
//
// A Key never carries mutable state: drawing numbers goes through a fresh
// generator returned by Rand, and composites derive independent child keys
// with Split or Fold. The same key always reproduces the same stream.
package random

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math/rand/v2"
)

// Key is an immutable seed for deterministic random generation.
type Key struct {
	seed [32]byte
}

// NewKey creates a key from an integer seed.
func NewKey(seed uint64) Key {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], seed)
	return Key{seed: sha256.Sum256(append([]byte("born-flow/key"), buf[:]...))}
}

// Fold derives a new key from k and data.
//
// Distinct data values give independent keys; the parent key is unchanged.
func (k Key) Fold(data uint64) Key {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], data)

	h := sha256.New()
	h.Write(k.seed[:])
	h.Write([]byte("fold"))
	h.Write(buf[:])

	var child Key
	copy(child.seed[:], h.Sum(nil))
	return child
}

// Split returns n child keys. Child i equals k.Fold(i).
func (k Key) Split(n int) []Key {
	keys := make([]Key, n)
	for i := range keys {
		keys[i] = k.Fold(uint64(i)) //nolint:gosec // G115: i is non-negative
	}
	return keys
}

// Rand returns a new generator seeded from the key.
//
// Every call returns a generator positioned at the start of the same stream.
func (k Key) Rand() *rand.Rand {
	return rand.New(rand.NewChaCha8(k.seed)) //nolint:gosec // reproducible parameter init, not security
}

// String returns the hex encoding of the key.
func (k Key) String() string {
	return hex.EncodeToString(k.seed[:8])
}
