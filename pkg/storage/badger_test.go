package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkdb/objcopy/pkg/tid"
)

func openTestBadger(t *testing.T) *BadgerStorage {
	t.Helper()
	dir := t.TempDir()
	b, err := OpenBadger(BadgerOptions{DataDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBadgerStorage_RestorePreservesCallerTID(t *testing.T) {
	ctx := context.Background()
	b := openTestBadger(t)

	wantTID := tid.FromUint64(42)
	wantStatus := StatusOK
	entry := TxnEntry{Status: StatusOK, User: []byte("alice"), Description: []byte("restore")}
	require.NoError(t, b.TpcBegin(ctx, &entry, &wantTID, &wantStatus))

	oid := tid.FromUint64OID(7)
	dataTxn := tid.FromUint64(41)
	require.NoError(t, b.Restore(ctx, oid, wantTID, []byte("payload"), "v1", &dataTxn))
	require.NoError(t, b.TpcVote(ctx))
	committed, err := b.TpcFinish(ctx)
	require.NoError(t, err)
	assert.Equal(t, wantTID, committed)

	last, err := b.LastTransaction(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, wantTID, *last)

	it, err := b.Iterator(ctx, nil)
	require.NoError(t, err)
	defer it.Close()

	txn, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, wantTID, txn.TID)
	assert.Equal(t, []byte("alice"), txn.User)

	rec, err := txn.Records().Next()
	require.NoError(t, err)
	assert.Equal(t, oid, rec.OID)
	assert.Equal(t, []byte("payload"), rec.Data)
	require.NotNil(t, rec.DataTxn)
	assert.Equal(t, dataTxn, *rec.DataTxn)

	_, err = txn.Records().Next()
	assert.ErrorIs(t, err, io.EOF)

	_, err = it.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestBadgerStorage_TpcVoteRejectsDuplicateTID(t *testing.T) {
	ctx := context.Background()
	b := openTestBadger(t)

	wantTID := tid.FromUint64(1)
	entry := TxnEntry{Status: StatusOK}
	require.NoError(t, b.TpcBegin(ctx, &entry, &wantTID, nil))
	require.NoError(t, b.Restore(ctx, tid.FromUint64OID(1), wantTID, []byte("a"), "", nil))
	require.NoError(t, b.TpcVote(ctx))
	_, err := b.TpcFinish(ctx)
	require.NoError(t, err)

	require.NoError(t, b.TpcBegin(ctx, &entry, &wantTID, nil))
	require.NoError(t, b.Restore(ctx, tid.FromUint64OID(2), wantTID, []byte("b"), "", nil))
	err = b.TpcVote(ctx)
	assert.Error(t, err)
	require.NoError(t, b.TpcAbort(ctx))
}

func TestBadgerStorage_StoreFallbackAssignsSequentialTID(t *testing.T) {
	ctx := context.Background()
	b := openTestBadger(t)
	oid := tid.FromUint64OID(1)

	entry := TxnEntry{Status: StatusOK}
	require.NoError(t, b.TpcBegin(ctx, &entry, nil, nil))
	require.NoError(t, b.Store(ctx, oid, nil, []byte("v0"), ""))
	require.NoError(t, b.TpcVote(ctx))
	first, err := b.TpcFinish(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Uint64())

	require.NoError(t, b.TpcBegin(ctx, &entry, nil, nil))
	err = b.Store(ctx, oid, nil, []byte("v1"), "")
	assert.Error(t, err, "create without prevSerial against an existing object must conflict")
	require.NoError(t, b.TpcAbort(ctx))

	require.NoError(t, b.TpcBegin(ctx, &entry, nil, nil))
	require.NoError(t, b.Store(ctx, oid, &first, []byte("v1"), ""))
	require.NoError(t, b.TpcVote(ctx))
	second, err := b.TpcFinish(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Uint64()+1, second.Uint64())
}

func TestBadgerStorage_RestoreBlobMovesFileIntoPermanentLocation(t *testing.T) {
	ctx := context.Background()
	b := openTestBadger(t)

	tmp, err := b.TemporaryDirectory(ctx)
	require.NoError(t, err)
	stagePath := filepath.Join(tmp, "staged.blob")
	require.NoError(t, os.WriteFile(stagePath, []byte("blob-bytes"), 0o644))

	wantTID := tid.FromUint64(5)
	entry := TxnEntry{Status: StatusOK}
	require.NoError(t, b.TpcBegin(ctx, &entry, &wantTID, nil))
	oid := tid.FromUint64OID(9)
	pointer := MakeBlobRecordData(int64(len("blob-bytes")))
	require.NoError(t, b.RestoreBlob(ctx, oid, wantTID, pointer, stagePath, nil))
	require.NoError(t, b.TpcVote(ctx))
	committed, err := b.TpcFinish(ctx)
	require.NoError(t, err)

	_, err = os.Stat(stagePath)
	assert.True(t, os.IsNotExist(err), "staged file should have been moved away")

	loaded, err := b.LoadBlob(ctx, oid, committed)
	require.NoError(t, err)
	contents, err := os.ReadFile(loaded)
	require.NoError(t, err)
	assert.Equal(t, "blob-bytes", string(contents))
}

func TestBadgerStorage_TpcAbortCleansUpStagedBlob(t *testing.T) {
	ctx := context.Background()
	b := openTestBadger(t)

	tmp, err := b.TemporaryDirectory(ctx)
	require.NoError(t, err)
	stagePath := filepath.Join(tmp, "orphan.blob")
	require.NoError(t, os.WriteFile(stagePath, []byte("x"), 0o644))

	entry := TxnEntry{Status: StatusOK}
	require.NoError(t, b.TpcBegin(ctx, &entry, nil, nil))
	require.NoError(t, b.StoreBlob(ctx, tid.FromUint64OID(3), nil, MakeBlobRecordData(1), stagePath, ""))
	require.NoError(t, b.TpcAbort(ctx))

	_, err = os.Stat(stagePath)
	assert.True(t, os.IsNotExist(err))

	// aborting twice, or aborting an already-gone staged file, must not error
	require.NoError(t, b.TpcAbort(ctx))
}

func TestBadgerStorage_IteratorStartFiltersOlderTransactions(t *testing.T) {
	ctx := context.Background()
	b := openTestBadger(t)

	var committed []tid.TID
	for i := uint64(1); i <= 3; i++ {
		wantTID := tid.FromUint64(i)
		entry := TxnEntry{Status: StatusOK}
		require.NoError(t, b.TpcBegin(ctx, &entry, &wantTID, nil))
		require.NoError(t, b.Restore(ctx, tid.FromUint64OID(i), wantTID, []byte("d"), "", nil))
		require.NoError(t, b.TpcVote(ctx))
		got, err := b.TpcFinish(ctx)
		require.NoError(t, err)
		committed = append(committed, got)
	}

	start := committed[1]
	it, err := b.Iterator(ctx, &start)
	require.NoError(t, err)
	defer it.Close()

	var seen []tid.TID
	for {
		entry, err := it.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		seen = append(seen, entry.TID)
	}
	assert.Equal(t, committed[1:], seen)
}

func TestBadgerStorage_ImplementsFullCapabilitySet(t *testing.T) {
	b := openTestBadger(t)
	var src SourceStorage = b
	var dst DestinationStorage = b

	_, ok := src.(SupportsBlobs)
	assert.True(t, ok)
	_, ok = dst.(SupportsRestore)
	assert.True(t, ok)
	_, ok = dst.(SupportsBlobs)
	assert.True(t, ok)
	_, ok = dst.(SupportsBlobRestore)
	assert.True(t, ok)
}
