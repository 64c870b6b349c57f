package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/arkdb/objcopy/pkg/tid"
)

// MemStorage is a thread-safe in-memory backend. It implements only the
// mandatory capabilities (iteration as a source, store-path commit as a
// destination) — no restore, no blobs — so it exercises the engine's
// fallback path: TID assignment by the destination and the preindex used
// to satisfy Store's concurrency check.
//
// Use Cases:
//   - Unit tests that don't need disk I/O
//   - A destination that must prove the engine works when TIDs can't be
//     preserved end to end
type MemStorage struct {
	mu sync.Mutex

	committed []committedTxn
	lastSerial map[tid.OID]tid.TID
	nextTID   uint64 // 1-based; 0 means "no transactions committed yet"

	pending *pendingTxn
	closed  bool
}

type committedTxn struct {
	tid         tid.TID
	status      Status
	user        []byte
	description []byte
	extension   []byte
	records     []Record
}

type pendingTxn struct {
	meta    TxnEntry
	tid     tid.TID
	records []Record
}

// NewMemStorage returns an empty in-memory backend.
func NewMemStorage() *MemStorage {
	return &MemStorage{
		lastSerial: make(map[tid.OID]tid.TID),
	}
}

// Iterator implements SourceStorage.
func (m *MemStorage) Iterator(_ context.Context, start *tid.TID) (TransactionIterator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var snapshot []committedTxn
	for _, c := range m.committed {
		if start == nil || tid.Compare(c.tid, *start) >= 0 {
			snapshot = append(snapshot, c)
		}
	}
	return &memIterator{txns: snapshot}, nil
}

// LastTransaction implements SourceStorage.
func (m *MemStorage) LastTransaction(_ context.Context) (*tid.TID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.committed) == 0 {
		return nil, nil
	}
	last := m.committed[len(m.committed)-1].tid
	return &last, nil
}

// Close implements SourceStorage/DestinationStorage. Idempotent.
func (m *MemStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// TpcBegin implements DestinationStorage. MemStorage does not implement
// SupportsRestore, so wantTID/wantStatus are expected to be nil; they are
// accepted (and ignored) rather than rejected, since a caller that probed
// capabilities correctly will never set them.
func (m *MemStorage) TpcBegin(_ context.Context, entry *TxnEntry, _ *tid.TID, _ *Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending != nil {
		return fmt.Errorf("objcopy: memstorage: transaction already open")
	}
	m.pending = &pendingTxn{meta: *entry}
	return nil
}

// Store implements DestinationStorage's concurrency-checked write path.
func (m *MemStorage) Store(_ context.Context, oid tid.OID, prevSerial *tid.TID, data []byte, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return fmt.Errorf("objcopy: memstorage: store without open transaction")
	}

	last, exists := m.lastSerial[oid]
	switch {
	case prevSerial == nil && exists:
		return fmt.Errorf("objcopy: memstorage: conflict on %s: object already exists", oid)
	case prevSerial != nil && (!exists || last != *prevSerial):
		return fmt.Errorf("objcopy: memstorage: conflict on %s: stale prev_serial", oid)
	}

	m.pending.records = append(m.pending.records, Record{
		OID:     oid,
		Data:    append([]byte(nil), data...),
		Version: version,
	})
	return nil
}

// TpcVote implements DestinationStorage. MemStorage has nothing further to
// validate once Store has accepted every record.
func (m *MemStorage) TpcVote(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return fmt.Errorf("objcopy: memstorage: vote without open transaction")
	}
	return nil
}

// TpcFinish implements DestinationStorage: it assigns the next sequential
// TID and commits the buffered records.
func (m *MemStorage) TpcFinish(_ context.Context) (tid.TID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pending == nil {
		return tid.TID{}, fmt.Errorf("objcopy: memstorage: finish without open transaction")
	}

	m.nextTID++
	committedTID := tid.FromUint64(m.nextTID)

	records := make([]Record, len(m.pending.records))
	for i, r := range m.pending.records {
		r.TID = committedTID
		records[i] = r
		m.lastSerial[r.OID] = committedTID
	}

	m.committed = append(m.committed, committedTxn{
		tid:         committedTID,
		status:      m.pending.meta.Status,
		user:        m.pending.meta.User,
		description: m.pending.meta.Description,
		extension:   m.pending.meta.Extension,
		records:     records,
	})
	m.pending = nil
	return committedTID, nil
}

// TpcAbort implements DestinationStorage: discards the buffered records.
func (m *MemStorage) TpcAbort(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = nil
	return nil
}

// memIterator implements TransactionIterator over a snapshot slice taken
// at Iterator-call time; later commits are not visible to an iterator
// already in flight (spec's non-restartable, finite iterator contract).
type memIterator struct {
	txns []committedTxn
	pos  int
	done bool
}

func (it *memIterator) Next() (*TxnEntry, error) {
	if it.done || it.pos >= len(it.txns) {
		return nil, io.EOF
	}
	c := it.txns[it.pos]
	it.pos++
	return NewTxnEntry(c.tid, c.status, c.user, c.description, c.extension, NewSliceRecordIterator(c.records)), nil
}

func (it *memIterator) Close() error {
	it.done = true
	return nil
}
