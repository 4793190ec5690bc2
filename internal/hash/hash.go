// Package hash implements the streaming content fingerprint described in
// spec §4.1: a fixed-order absorption of typed items (bytes, integers,
// booleans, ordered mappings, sequences) into a single SHA-256 digest.
//
// A leading schema-version byte guards against silent cache collisions
// when the absorption order or item set changes between toast releases.
package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"
)

// SchemaVersion is absorbed first into every fingerprint. Bump this
// whenever the set or order of absorbed fields changes, so that old and
// new cache keys never collide.
const SchemaVersion byte = 1

// Fingerprint accumulates absorbed items into a SHA-256 digest.
type Fingerprint struct {
	h hash.Hash
}

// New creates a Fingerprint and absorbs the schema version byte.
func New() *Fingerprint {
	f := &Fingerprint{h: sha256.New()}
	f.h.Write([]byte{SchemaVersion})
	return f
}

// AbsorbBytes absorbs a length-prefixed byte string. The length prefix
// prevents ambiguity between e.g. absorbing "ab" then "c" versus "a" then
// "bc".
func (f *Fingerprint) AbsorbBytes(b []byte) *Fingerprint {
	f.absorbLen(uint64(len(b)))
	f.h.Write(b)
	return f
}

// AbsorbString is a convenience wrapper around AbsorbBytes.
func (f *Fingerprint) AbsorbString(s string) *Fingerprint {
	return f.AbsorbBytes([]byte(s))
}

// AbsorbUint64 absorbs a 64-bit integer in big-endian form.
func (f *Fingerprint) AbsorbUint64(n uint64) *Fingerprint {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	f.h.Write(buf[:])
	return f
}

// AbsorbBool absorbs a single boolean byte.
func (f *Fingerprint) AbsorbBool(b bool) *Fingerprint {
	if b {
		f.h.Write([]byte{1})
	} else {
		f.h.Write([]byte{0})
	}
	return f
}

func (f *Fingerprint) absorbLen(n uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	f.h.Write(buf[:])
}

// AbsorbMapping absorbs an ordered mapping by sorting its keys
// lexicographically and emitting (key-bytes, value-bytes) pairs, per
// spec §4.1's higher-level combinators.
func (f *Fingerprint) AbsorbMapping(m map[string]string) *Fingerprint {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f.absorbLen(uint64(len(keys)))
	for _, k := range keys {
		f.AbsorbString(k)
		f.AbsorbString(m[k])
	}
	return f
}

// AbsorbSequence absorbs an ordered sequence of strings by emitting
// (length, element-bytes...).
func (f *Fingerprint) AbsorbSequence(items []string) *Fingerprint {
	f.absorbLen(uint64(len(items)))
	for _, item := range items {
		f.AbsorbString(item)
	}
	return f
}

// Sum returns the current hex digest without finalizing the underlying
// hash state, so further items may still be absorbed afterward if needed.
func (f *Fingerprint) Sum() string {
	return hex.EncodeToString(f.h.Sum(nil))
}
