// Package storage defines the capability-gated backend contract that the
// copy engine (pkg/copier) drives, and provides two implementations:
//
//   - BadgerStorage: a persistent backend on top of BadgerDB, offering the
//     full capability set (restore, blobs, blob-restore).
//   - MemStorage: an in-memory backend for tests and small copies, offering
//     only the mandatory iteration and store capabilities.
//
// Design Principles:
//   - Capability sets, not a class hierarchy: the engine never branches on
//     concrete backend type, only on whether a backend satisfies one of
//     the optional sub-interfaces below.
//   - Bytes are opaque: this package never interprets Record.Data beyond
//     the leading-byte sniff in IsBlobRecord.
//   - Backends own their own locking; nothing here assumes single-threaded
//     callers, even though the engine that drives them is single-threaded.
//
// Example Usage:
//
//	src, _ := storage.OpenBadger(storage.BadgerOptions{DataDir: "./src"})
//	dst, _ := storage.OpenBadger(storage.BadgerOptions{DataDir: "./dst"})
//	defer src.Close()
//	defer dst.Close()
//
//	caps := storage.Probe(src, dst)
//	if !caps.SourceIterates {
//		log.Fatal(objerr.ErrUnsupportedSource)
//	}
package storage

import (
	"context"
	"io"

	"github.com/arkdb/objcopy/pkg/tid"
)

// Record is a single object-revision within a transaction: an OID, the TID
// that produced it, the opaque payload bytes, and an optional cross-
// reference to a prior transaction used for undo metadata. DataTxn is
// copied verbatim and never interpreted.
type Record struct {
	OID     tid.OID
	TID     tid.TID
	Data    []byte
	DataTxn *tid.TID // nil when the record carries no undo cross-reference
	Version string   // opaque version token, passed through verbatim
}

// Status is the one-character transaction status the source and
// destination exchange. ' ' means ordinary, 'p' means still-pending
// (should not normally be copied), 'c' means packed/committed-undone.
type Status byte

const (
	StatusOK      Status = ' '
	StatusPending Status = 'p'
	StatusPacked  Status = 'c'
)

// TxnEntry describes one transaction: its TID, status, free-text metadata,
// and its ordered records. Records is a lazy sequence — Next returns
// io.EOF once exhausted — so the engine can stream arbitrarily large
// transactions without holding every record in memory at once.
type TxnEntry struct {
	TID         tid.TID
	Status      Status
	User        []byte
	Description []byte
	Extension   []byte // opaque; may hold a serialized mapping, copied verbatim

	records RecordIterator
}

// NewTxnEntry wraps a RecordIterator into a TxnEntry. Storage backends use
// this to construct entries for TransactionIterator.Next.
func NewTxnEntry(txnTID tid.TID, status Status, user, description, extension []byte, records RecordIterator) *TxnEntry {
	return &TxnEntry{
		TID:         txnTID,
		Status:      status,
		User:        user,
		Description: description,
		Extension:   extension,
		records:     records,
	}
}

// Records returns the lazy record sequence for this transaction.
func (e *TxnEntry) Records() RecordIterator { return e.records }

// RecordIterator yields a transaction's records in source order. Next
// returns io.EOF when exhausted. Close releases any handles the iterator
// holds open; it is safe to call Close before exhausting Next.
type RecordIterator interface {
	Next() (Record, error)
	Close() error
}

// TransactionIterator yields transactions in ascending TID order. It is
// finite, non-restartable, and self-closing: Next returns io.EOF once
// exhausted, and Close releases open handles independent of the engine's
// own scope, so callers do not depend on garbage collection for cleanup.
type TransactionIterator interface {
	Next() (*TxnEntry, error)
	Close() error
}

// SourceStorage is the mandatory contract for a copy source.
type SourceStorage interface {
	// Iterator yields transactions with TID >= start in ascending order.
	// A nil start means from the beginning.
	Iterator(ctx context.Context, start *tid.TID) (TransactionIterator, error)

	// LastTransaction returns the largest committed TID, or nil if the
	// backend has never committed one. Backends that cannot distinguish
	// "empty" from "TID zero" may return the zero TID; callers must treat
	// an empty iterator, not this value, as the authoritative emptiness
	// signal (spec invariant).
	LastTransaction(ctx context.Context) (*tid.TID, error)

	Close() error
}

// DestinationStorage is the mandatory two-phase-commit contract for a copy
// destination.
type DestinationStorage interface {
	// TpcBegin opens a transaction. wantTID and wantStatus are non-nil
	// only when this destination also implements SupportsRestore and the
	// caller wants it to adopt the source's TID and status verbatim;
	// otherwise the destination assigns its own TID.
	TpcBegin(ctx context.Context, entry *TxnEntry, wantTID *tid.TID, wantStatus *Status) error

	// Store performs a regular, concurrency-checked write. prevSerial is
	// the TID most recently committed for oid in this copy run, or nil.
	Store(ctx context.Context, oid tid.OID, prevSerial *tid.TID, data []byte, version string) error

	TpcVote(ctx context.Context) error

	// TpcFinish commits the open transaction and returns the TID actually
	// committed — equal to the requested TID on the restore path.
	TpcFinish(ctx context.Context) (tid.TID, error)

	TpcAbort(ctx context.Context) error

	Close() error
}

// SupportsRestore is an optional destination capability permitting a
// bit-exact write of a record carrying a caller-chosen TID, bypassing the
// concurrency check Store applies.
type SupportsRestore interface {
	Restore(ctx context.Context, oid tid.OID, t tid.TID, data []byte, version string, dataTxn *tid.TID) error
}

// SupportsBlobs is the optional blob capability. A source implementing it
// can hand the engine a filesystem path to a blob's bytes; a destination
// implementing it can provide a staging directory and accept the
// concurrency-checked fallback write.
type SupportsBlobs interface {
	// LoadBlob (source side) returns an OS path whose contents are the
	// blob payload for (oid, t). The returned file may be a read-only
	// cache entry; callers must not mutate or delete it.
	LoadBlob(ctx context.Context, oid tid.OID, t tid.TID) (string, error)

	// TemporaryDirectory (destination side) returns a directory on the
	// same filesystem as the destination's blob store, so that
	// rename-into-place is cheap.
	TemporaryDirectory(ctx context.Context) (string, error)

	// StoreBlob (destination side, fallback path) is the concurrency-
	// checked blob write. The backend may rename blobPath away.
	StoreBlob(ctx context.Context, oid tid.OID, prevSerial *tid.TID, data []byte, blobPath string, version string) error
}

// SupportsBlobRestore is the optional bit-exact blob write, bypassing the
// concurrency check, analogous to SupportsRestore for regular records.
type SupportsBlobRestore interface {
	RestoreBlob(ctx context.Context, oid tid.OID, t tid.TID, data []byte, blobPath string, dataTxn *tid.TID) error
}

// IsBlobRecord classifies a record payload as a blob pointer by
// inspecting its leading bytes. Backends in this package use a single
// magic-prefix convention (blobMagic); the engine treats this function as
// the sole authority for "is this a blob record" and never duplicates the
// check inline.
func IsBlobRecord(data []byte) bool {
	return len(data) >= len(blobMagic) && string(data[:len(blobMagic)]) == blobMagic
}

// blobMagic prefixes the opaque payload of a blob-pointer record. The
// bytes after the prefix are not interpreted by this package; backends
// that need to round-trip additional metadata may append it themselves.
const blobMagic = "\x00OBJCOPY-BLOB\x00"

// MakeBlobRecordData builds the opaque payload bytes for a blob-pointer
// record, given the blob's size for display purposes only.
func MakeBlobRecordData(size int64) []byte {
	return append([]byte(blobMagic), []byte(fmtInt(size))...)
}

func fmtInt(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// sliceRecordIterator adapts a pre-materialized []Record into a
// RecordIterator, for backends whose transactions are small enough to hold
// in memory (the in-memory backend, and tests).
type sliceRecordIterator struct {
	records []Record
	pos     int
}

// NewSliceRecordIterator returns a RecordIterator over records.
func NewSliceRecordIterator(records []Record) RecordIterator {
	return &sliceRecordIterator{records: records}
}

func (s *sliceRecordIterator) Next() (Record, error) {
	if s.pos >= len(s.records) {
		return Record{}, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

func (s *sliceRecordIterator) Close() error { return nil }
