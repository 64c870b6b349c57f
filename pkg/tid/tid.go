// Package tid defines the opaque transaction and object identifiers shared
// across the storage, copier, and config packages.
//
// TID (transaction identifier) and OID (object identifier) are both 8-byte
// tokens. A TID is totally ordered by the source and destination backends;
// this package treats its bytes as a big-endian uint64 strictly for
// ordering arithmetic (computing a successor, comparing two TIDs) and never
// reinterprets the value semantically — a backend is free to embed a
// timestamp, a counter, or anything else in those 8 bytes.
//
// An OID carries no ordering requirement; only equality matters.
package tid

import (
	"encoding/binary"
	"fmt"
)

// Size is the fixed byte length of both TID and OID.
const Size = 8

// TID is an 8-byte opaque transaction identifier.
type TID [Size]byte

// OID is an 8-byte opaque object identifier.
type OID [Size]byte

// Zero is the all-zero TID some backends use to signal "no transactions yet".
var Zero TID

// FromUint64 builds a TID from its big-endian ordering value. Used by
// backends that want a monotonic counter and by tests.
func FromUint64(v uint64) TID {
	var t TID
	binary.BigEndian.PutUint64(t[:], v)
	return t
}

// Uint64 returns the TID's bytes reinterpreted as a big-endian uint64,
// for ordering arithmetic only.
func (t TID) Uint64() uint64 {
	return binary.BigEndian.Uint64(t[:])
}

// Successor returns the TID representing Uint64(t)+1.
func Successor(t TID) TID {
	return FromUint64(t.Uint64() + 1)
}

// Compare returns -1, 0, or 1 as a < b, a == b, a > b under big-endian
// ordering.
func Compare(a, b TID) int {
	au, bu := a.Uint64(), b.Uint64()
	switch {
	case au < bu:
		return -1
	case au > bu:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether t is the all-zero TID.
func (t TID) IsZero() bool {
	return t == Zero
}

// String renders the TID as hex, for logging only.
func (t TID) String() string {
	return fmt.Sprintf("%016x", t.Uint64())
}

// String renders the OID as hex, for logging only.
func (o OID) String() string {
	return fmt.Sprintf("%016x", binary.BigEndian.Uint64(o[:]))
}

// FromUint64OID builds an OID from a uint64, for tests and synthetic data.
func FromUint64OID(v uint64) OID {
	var o OID
	binary.BigEndian.PutUint64(o[:], v)
	return o
}
