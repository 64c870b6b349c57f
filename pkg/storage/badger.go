package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/arkdb/objcopy/pkg/tid"
)

// Key layout. Badger orders keys byte-lexically, so prefixing every key with
// a one-byte tag groups families together and gives the transaction-metadata
// and record families natural TID-ascending iteration for free.
const (
	tagLast    byte = 0x00 // "last" -> committed tid (8 bytes)
	tagMeta    byte = 0x01 // tagMeta || tid(8) -> json(txnMeta)
	tagRecord  byte = 0x02 // tagRecord || tid(8) || oid(8) -> json(recordEnvelope)
	tagOIDHead byte = 0x03 // tagOIDHead || oid(8) -> tid(8), latest serial per object
)

var lastKey = []byte{tagLast}

// txnMeta is the JSON-encoded sidecar for a committed transaction's free-text
// fields. Record payloads live separately under tagRecord so that a caller
// iterating transactions without touching records never pays for their
// decode.
type txnMeta struct {
	Status      Status
	User        []byte
	Description []byte
	Extension   []byte
}

// recordEnvelope is the JSON-encoded value at a tagRecord key.
type recordEnvelope struct {
	Data    []byte
	DataTxn *tid.TID
	Version string
}

// BadgerOptions configures OpenBadger.
type BadgerOptions struct {
	// DataDir holds both the Badger LSM files (in a "db" subdirectory) and
	// the blob tree (in a "blobs" subdirectory) and staging area (a "tmp"
	// subdirectory).
	DataDir string

	// InMemory runs Badger without touching disk, for tests that want the
	// restore path that MemStorage deliberately omits. An in-memory
	// instance has no blob tree and no staging area: TemporaryDirectory
	// and StageBlob return an error, so blobs cannot be written to it.
	InMemory bool
}

// BadgerStorage is the persistent backend. It implements SourceStorage,
// DestinationStorage, SupportsRestore, SupportsBlobs, and
// SupportsBlobRestore, so it can play either role — including both roles at
// once in an end-to-end copy between two BadgerStorage instances.
type BadgerStorage struct {
	db      *badger.DB
	dataDir string
	blobDir string
	tmpDir  string

	mu      sync.Mutex
	pending *badgerPending
}

type badgerPending struct {
	meta    TxnEntry
	wantTID *tid.TID
	records []pendingRecord
}

type pendingRecord struct {
	oid     tid.OID
	data    []byte
	dataTxn *tid.TID
	version string
	// blobPath is set for records written via StoreBlob/RestoreBlob; the
	// file is moved into place during TpcFinish, once the committed TID
	// (and therefore its permanent path) is known.
	blobPath string
}

// OpenBadger opens (creating if absent) a Badger-backed storage instance
// rooted at opts.DataDir.
func OpenBadger(opts BadgerOptions) (*BadgerStorage, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.DataDir == "" {
			return nil, fmt.Errorf("objcopy: badger: DataDir required when not InMemory")
		}
		bopts = badger.DefaultOptions(filepath.Join(opts.DataDir, "db"))
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("objcopy: badger: open: %w", err)
	}

	b := &BadgerStorage{db: db, dataDir: opts.DataDir}
	if !opts.InMemory {
		b.blobDir = filepath.Join(opts.DataDir, "blobs")
		b.tmpDir = filepath.Join(opts.DataDir, "tmp")
		if err := os.MkdirAll(b.blobDir, 0o755); err != nil {
			db.Close()
			return nil, fmt.Errorf("objcopy: badger: mkdir blobs: %w", err)
		}
		if err := os.MkdirAll(b.tmpDir, 0o755); err != nil {
			db.Close()
			return nil, fmt.Errorf("objcopy: badger: mkdir tmp: %w", err)
		}
	}
	return b, nil
}

func metaKey(t tid.TID) []byte {
	k := make([]byte, 1+tid.Size)
	k[0] = tagMeta
	copy(k[1:], t[:])
	return k
}

func recordKey(t tid.TID, oid tid.OID) []byte {
	k := make([]byte, 1+tid.Size+tid.Size)
	k[0] = tagRecord
	copy(k[1:1+tid.Size], t[:])
	copy(k[1+tid.Size:], oid[:])
	return k
}

func recordPrefix(t tid.TID) []byte {
	k := make([]byte, 1+tid.Size)
	k[0] = tagRecord
	copy(k[1:], t[:])
	return k
}

func oidHeadKey(oid tid.OID) []byte {
	k := make([]byte, 1+tid.Size)
	k[0] = tagOIDHead
	copy(k[1:], oid[:])
	return k
}

// Close implements SourceStorage/DestinationStorage.
func (b *BadgerStorage) Close() error {
	return b.db.Close()
}

// Iterator implements SourceStorage. It pre-scans the (cheap) metadata
// family to get an ascending list of transaction TIDs, then decodes each
// transaction's records lazily, on demand, via its own short-lived read
// transaction.
func (b *BadgerStorage) Iterator(_ context.Context, start *tid.TID) (TransactionIterator, error) {
	var tids []tid.TID
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		var seek []byte
		if start != nil {
			seek = metaKey(*start)
		} else {
			seek = []byte{tagMeta}
		}
		for it.Seek(seek); it.ValidForPrefix([]byte{tagMeta}); it.Next() {
			key := it.Item().KeyCopy(nil)
			var t tid.TID
			copy(t[:], key[1:])
			tids = append(tids, t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("objcopy: badger: iterator scan: %w", err)
	}
	return &badgerTxIterator{db: b.db, tids: tids}, nil
}

// LastTransaction implements SourceStorage.
func (b *BadgerStorage) LastTransaction(_ context.Context) (*tid.TID, error) {
	var last *tid.TID
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(lastKey)
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var t tid.TID
			copy(t[:], val)
			last = &t
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("objcopy: badger: last transaction: %w", err)
	}
	return last, nil
}

// TpcBegin implements DestinationStorage.
func (b *BadgerStorage) TpcBegin(_ context.Context, entry *TxnEntry, wantTID *tid.TID, wantStatus *Status) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending != nil {
		return fmt.Errorf("objcopy: badger: transaction already open")
	}
	meta := *entry
	if wantStatus != nil {
		meta.Status = *wantStatus
	}
	b.pending = &badgerPending{meta: meta, wantTID: wantTID}
	return nil
}

// Store implements DestinationStorage's concurrency-checked write path.
func (b *BadgerStorage) Store(_ context.Context, oid tid.OID, prevSerial *tid.TID, data []byte, version string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == nil {
		return fmt.Errorf("objcopy: badger: store without open transaction")
	}

	if err := b.checkConflict(oid, prevSerial); err != nil {
		return err
	}

	b.pending.records = append(b.pending.records, pendingRecord{
		oid:     oid,
		data:    append([]byte(nil), data...),
		version: version,
	})
	return nil
}

// Restore implements SupportsRestore: a bit-exact write, bypassing the
// concurrency check. dataTxn is preserved verbatim as the record's undo
// cross-reference.
func (b *BadgerStorage) Restore(_ context.Context, oid tid.OID, _ tid.TID, data []byte, version string, dataTxn *tid.TID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == nil {
		return fmt.Errorf("objcopy: badger: restore without open transaction")
	}

	b.pending.records = append(b.pending.records, pendingRecord{
		oid:     oid,
		data:    append([]byte(nil), data...),
		dataTxn: dataTxn,
		version: version,
	})
	return nil
}

func (b *BadgerStorage) checkConflict(oid tid.OID, prevSerial *tid.TID) error {
	var last *tid.TID
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(oidHeadKey(oid))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var t tid.TID
			copy(t[:], val)
			last = &t
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("objcopy: badger: conflict check: %w", err)
	}

	switch {
	case prevSerial == nil && last != nil:
		return fmt.Errorf("objcopy: badger: conflict on %s: object already exists", oid)
	case prevSerial != nil && (last == nil || *last != *prevSerial):
		return fmt.Errorf("objcopy: badger: conflict on %s: stale prev_serial", oid)
	}
	return nil
}

// TpcVote implements DestinationStorage. When the caller supplied a wantTID
// (the restore path), vote rejects a TID that is already present, protecting
// the append-only invariant even if the caller above miscomputed an
// incremental cursor.
func (b *BadgerStorage) TpcVote(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == nil {
		return fmt.Errorf("objcopy: badger: vote without open transaction")
	}
	if b.pending.wantTID == nil {
		return nil
	}
	want := *b.pending.wantTID
	return b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(metaKey(want))
		if err == nil {
			return fmt.Errorf("objcopy: badger: transaction %s already committed", want)
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return nil
	})
}

// TpcFinish implements DestinationStorage: it assigns (or adopts) the
// committed TID, moves any staged blobs into their permanent location, and
// commits everything atomically in a single Badger transaction.
func (b *BadgerStorage) TpcFinish(_ context.Context) (tid.TID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == nil {
		return tid.TID{}, fmt.Errorf("objcopy: badger: finish without open transaction")
	}
	p := b.pending

	var committedTID tid.TID
	if p.wantTID != nil {
		committedTID = *p.wantTID
	} else {
		last, err := b.LastTransaction(context.Background())
		if err != nil {
			return tid.TID{}, err
		}
		if last == nil {
			committedTID = tid.FromUint64(1)
		} else {
			committedTID = tid.Successor(*last)
		}
	}

	for i := range p.records {
		if p.records[i].blobPath == "" {
			continue
		}
		dest := b.blobPath(p.records[i].oid, committedTID)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return tid.TID{}, fmt.Errorf("objcopy: badger: mkdir blob dir: %w", err)
		}
		if err := renameOrCopy(p.records[i].blobPath, dest); err != nil {
			return tid.TID{}, fmt.Errorf("objcopy: badger: stage blob: %w", err)
		}
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		meta := txnMeta{
			Status:      p.meta.Status,
			User:        p.meta.User,
			Description: p.meta.Description,
			Extension:   p.meta.Extension,
		}
		metaBytes, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		if err := txn.Set(metaKey(committedTID), metaBytes); err != nil {
			return err
		}

		for _, r := range p.records {
			env := recordEnvelope{Data: r.data, DataTxn: r.dataTxn, Version: r.version}
			envBytes, err := json.Marshal(env)
			if err != nil {
				return err
			}
			if err := txn.Set(recordKey(committedTID, r.oid), envBytes); err != nil {
				return err
			}
			if err := txn.Set(oidHeadKey(r.oid), committedTID[:]); err != nil {
				return err
			}
		}

		return txn.Set(lastKey, committedTID[:])
	})
	if err != nil {
		return tid.TID{}, fmt.Errorf("objcopy: badger: commit: %w", err)
	}

	b.pending = nil
	return committedTID, nil
}

// TpcAbort implements DestinationStorage: discards the buffered records and
// removes any blobs staged for this transaction (already-gone is not an
// error — the caller may have aborted after a partial failure).
func (b *BadgerStorage) TpcAbort(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == nil {
		return nil
	}
	for _, r := range b.pending.records {
		if r.blobPath == "" {
			continue
		}
		if err := os.Remove(r.blobPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("objcopy: badger: abort cleanup: %w", err)
		}
	}
	b.pending = nil
	return nil
}

// LoadBlob implements SupportsBlobs (source side).
func (b *BadgerStorage) LoadBlob(_ context.Context, oid tid.OID, t tid.TID) (string, error) {
	path := b.blobPath(oid, t)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("objcopy: badger: load blob %s@%s: %w", oid, t, err)
	}
	return path, nil
}

// TemporaryDirectory implements SupportsBlobs (destination side).
func (b *BadgerStorage) TemporaryDirectory(_ context.Context) (string, error) {
	if b.tmpDir == "" {
		return "", fmt.Errorf("objcopy: badger: in-memory instance has no staging directory")
	}
	return b.tmpDir, nil
}

// StoreBlob implements SupportsBlobs' fallback, concurrency-checked blob
// write. The record payload and the blob bytes both move into place
// together, in TpcFinish, once the committed TID is known.
func (b *BadgerStorage) StoreBlob(_ context.Context, oid tid.OID, prevSerial *tid.TID, data []byte, blobPath string, version string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == nil {
		return fmt.Errorf("objcopy: badger: store_blob without open transaction")
	}
	if err := b.checkConflict(oid, prevSerial); err != nil {
		return err
	}

	b.pending.records = append(b.pending.records, pendingRecord{
		oid:      oid,
		data:     append([]byte(nil), data...),
		version:  version,
		blobPath: blobPath,
	})
	return nil
}

// RestoreBlob implements SupportsBlobRestore: a bit-exact blob write,
// bypassing the concurrency check.
func (b *BadgerStorage) RestoreBlob(_ context.Context, oid tid.OID, _ tid.TID, data []byte, blobPath string, dataTxn *tid.TID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pending == nil {
		return fmt.Errorf("objcopy: badger: restore_blob without open transaction")
	}

	b.pending.records = append(b.pending.records, pendingRecord{
		oid:      oid,
		data:     append([]byte(nil), data...),
		dataTxn:  dataTxn,
		blobPath: blobPath,
	})
	return nil
}

func (b *BadgerStorage) blobPath(oid tid.OID, t tid.TID) string {
	return filepath.Join(b.blobDir, oid.String(), t.String()+".blob")
}

// StageBlob copies src (e.g. a freshly loaded source blob) into a new file
// under this backend's temporary directory, named uniquely so concurrent
// copies never collide. It exists so callers driving the no-blob-capability
// destination fallback, or tests, can populate a blobPath without reaching
// into this file's private layout.
func (b *BadgerStorage) StageBlob(src string) (string, error) {
	if b.tmpDir == "" {
		return "", fmt.Errorf("objcopy: badger: in-memory instance has no staging directory")
	}
	dest := filepath.Join(b.tmpDir, uuid.NewString()+".blob")
	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dest, nil
}

func renameOrCopy(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

// badgerTxIterator implements TransactionIterator over a pre-scanned,
// ascending list of transaction TIDs.
type badgerTxIterator struct {
	db   *badger.DB
	tids []tid.TID
	pos  int
}

func (it *badgerTxIterator) Next() (*TxnEntry, error) {
	if it.pos >= len(it.tids) {
		return nil, io.EOF
	}
	t := it.tids[it.pos]
	it.pos++

	var meta txnMeta
	err := it.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(t))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("objcopy: badger: read transaction %s: %w", t, err)
	}

	records, err := newBadgerRecordIterator(it.db, t)
	if err != nil {
		return nil, err
	}
	return NewTxnEntry(t, meta.Status, meta.User, meta.Description, meta.Extension, records), nil
}

func (it *badgerTxIterator) Close() error {
	it.pos = len(it.tids)
	return nil
}

// badgerRecordIterator holds one Badger read transaction open for the
// lifetime of a single TxnEntry's record stream, released on Close or on
// exhaustion.
type badgerRecordIterator struct {
	txn    *badger.Txn
	it     *badger.Iterator
	prefix []byte
	closed bool
}

func newBadgerRecordIterator(db *badger.DB, t tid.TID) (*badgerRecordIterator, error) {
	txn := db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	it := txn.NewIterator(opts)
	prefix := recordPrefix(t)
	it.Seek(prefix)
	return &badgerRecordIterator{txn: txn, it: it, prefix: prefix}, nil
}

func (r *badgerRecordIterator) Next() (Record, error) {
	if r.closed || !r.it.ValidForPrefix(r.prefix) {
		r.Close()
		return Record{}, io.EOF
	}

	item := r.it.Item()
	key := item.KeyCopy(nil)
	var oid tid.OID
	copy(oid[:], key[1+tid.Size:])
	var t tid.TID
	copy(t[:], key[1:1+tid.Size])

	var env recordEnvelope
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &env)
	})
	if err != nil {
		r.Close()
		return Record{}, fmt.Errorf("objcopy: badger: decode record: %w", err)
	}

	r.it.Next()
	return Record{OID: oid, TID: t, Data: env.Data, DataTxn: env.DataTxn, Version: env.Version}, nil
}

func (r *badgerRecordIterator) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.it.Close()
	r.txn.Discard()
	return nil
}
