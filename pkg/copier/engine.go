// Package copier implements the transaction-copy engine: the single
// component that actually moves transactions from a source to a
// destination, driving the destination's two-phase commit and staging blob
// bytes through its temporary directory.
package copier

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/arkdb/objcopy/pkg/objerr"
	"github.com/arkdb/objcopy/pkg/objlog"
	"github.com/arkdb/objcopy/pkg/progress"
	"github.com/arkdb/objcopy/pkg/storage"
	"github.com/arkdb/objcopy/pkg/tid"
)

// Options configures a single Copy invocation.
type Options struct {
	// StartTID, when non-nil, copies only transactions with TID >= this
	// value. Use IncrementalStart to compute it from a destination.
	StartTID *tid.TID

	// DryRun counts records without opening any destination transaction.
	DryRun bool

	// Progress receives per-transaction notifications. May be nil.
	Progress progress.Reporter
}

// Result is the engine's return contract: the number of transactions,
// object records, and blobs copied.
type Result struct {
	Transactions int
	Objects      int
	Blobs        int
}

// Copy drives the full copy, or dry-run count, from source to destination.
// On failure partway through, the currently in-flight destination
// transaction is aborted; previously committed transactions remain.
func Copy(ctx context.Context, source storage.SourceStorage, destination storage.DestinationStorage, opts Options) (Result, error) {
	caps := storage.Probe(source, destination)
	if !caps.SourceIterates {
		return Result{}, pkgerrors.WithStack(objerr.ErrUnsupportedSource)
	}

	it, err := source.Iterator(ctx, opts.StartTID)
	if err != nil {
		return Result{}, pkgerrors.Wrap(err, "objcopy: open source iterator")
	}

	// When destination also exposes SourceStorage (every backend this
	// module ships does), its own last-committed TID is the floor every
	// copied TID must strictly exceed — guards against a caller-supplied
	// or stale StartTID re-copying history the destination already has.
	var destBaseline *tid.TID
	if destSource, ok := destination.(storage.SourceStorage); ok {
		last, err := destSource.LastTransaction(ctx)
		if err != nil {
			it.Close()
			return Result{}, pkgerrors.Wrap(err, "objcopy: read destination last transaction")
		}
		destBaseline = last
	}

	e := &engine{
		source:       source,
		destination:  destination,
		caps:         caps,
		opts:         opts,
		preindex:     make(map[tid.OID]tid.TID),
		destBaseline: destBaseline,
	}

	result, err := e.run(ctx, it)
	closeErr := it.Close()
	if err != nil {
		return result, err
	}
	if closeErr != nil {
		return result, pkgerrors.Wrap(closeErr, "objcopy: close source iterator")
	}

	if opts.Progress != nil {
		opts.Progress.LogSummary(result.Transactions, result.Objects, result.Blobs)
	}
	return result, nil
}

type engine struct {
	source       storage.SourceStorage
	destination  storage.DestinationStorage
	caps         storage.Capabilities
	opts         Options
	preindex     map[tid.OID]tid.TID
	destBaseline *tid.TID
}

func (e *engine) run(ctx context.Context, it storage.TransactionIterator) (Result, error) {
	var result Result

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		entry, err := it.Next()
		if err == io.EOF {
			return result, nil
		}
		if err != nil {
			return result, pkgerrors.Wrap(objerr.ErrIterationFailure, err.Error())
		}

		if e.destBaseline != nil && tid.Compare(entry.TID, *e.destBaseline) <= 0 {
			return result, pkgerrors.WithStack(objerr.ErrNonExtendingHistory)
		}

		if e.opts.DryRun {
			recCount, err := e.countRecords(entry)
			if err != nil {
				return result, err
			}
			result.Transactions++
			result.Objects += recCount
			if e.opts.Progress != nil {
				e.opts.Progress.OnTransaction(entry.TID, recCount, 0, 0)
			}
			continue
		}

		txnResult, err := e.copyTransaction(ctx, entry)
		if err != nil {
			return result, err
		}
		result.Transactions++
		result.Objects += txnResult.Objects
		result.Blobs += txnResult.Blobs
		if e.opts.Progress != nil {
			e.opts.Progress.OnTransaction(txnResult.committedTID, txnResult.Objects, txnResult.byteSize, txnResult.Blobs)
		}
	}
}

func (e *engine) countRecords(entry *storage.TxnEntry) (int, error) {
	records := entry.Records()
	count := 0
	for {
		_, err := records.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			records.Close()
			return 0, pkgerrors.Wrap(objerr.ErrIterationFailure, err.Error())
		}
		count++
	}
	return count, records.Close()
}

type txnResult struct {
	Result
	committedTID tid.TID
	byteSize     int64
}

// copyTransaction drives tpc_begin..tpc_finish for one source transaction.
// Any failure aborts the destination transaction, cleans up staged blobs,
// and returns a wrapped ErrIterationFailure when reading the source's
// records failed, or a wrapped ErrDestinationCommit otherwise.
func (e *engine) copyTransaction(ctx context.Context, entry *storage.TxnEntry) (txnResult, error) {
	var staged []string
	abort := func(sentinel, err error) (txnResult, error) {
		if abortErr := e.destination.TpcAbort(ctx); abortErr != nil {
			objlog.Logger.Warn().Err(abortErr).Msg("tpc_abort failed during error recovery")
		}
		cleanupStaged(staged)
		return txnResult{}, pkgerrors.Wrap(sentinel, err.Error())
	}
	fail := func(err error) (txnResult, error) {
		return abort(objerr.ErrDestinationCommit, err)
	}

	var wantTID *tid.TID
	var wantStatus *storage.Status
	if e.caps.DestRestores {
		t := entry.TID
		s := entry.Status
		wantTID, wantStatus = &t, &s
	}
	if err := e.destination.TpcBegin(ctx, entry, wantTID, wantStatus); err != nil {
		return fail(err)
	}

	var tr txnResult
	records := entry.Records()
	for {
		rec, err := records.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			records.Close()
			return abort(objerr.ErrIterationFailure, err)
		}

		tr.Objects++
		tr.byteSize += int64(len(rec.Data))

		stagePath, blobSize, wroteBlob, err := e.stageBlobIfNeeded(ctx, rec, &staged)
		if err != nil {
			records.Close()
			return fail(err)
		}
		if wroteBlob {
			tr.byteSize += blobSize
			tr.Blobs++
		}

		if err := e.writeRecord(ctx, entry, rec, stagePath, wroteBlob); err != nil {
			records.Close()
			return fail(err)
		}
	}
	records.Close()

	if err := e.destination.TpcVote(ctx); err != nil {
		return fail(err)
	}
	committed, err := e.destination.TpcFinish(ctx)
	if err != nil {
		return fail(err)
	}

	if !e.caps.DestRestores {
		e.promotePreindex(entry.TID, committed)
	}
	cleanupStaged(staged)

	tr.committedTID = committed
	return tr, nil
}

// stageBlobIfNeeded classifies rec as a blob pointer and, when both sides
// have blob capability, loads the source's blob file and copies it into
// the destination's staging directory. It returns the staged path (empty
// when rec was not staged), the source blob's size (for byte accounting),
// and whether staging succeeded.
func (e *engine) stageBlobIfNeeded(ctx context.Context, rec storage.Record, staged *[]string) (string, int64, bool, error) {
	if !e.caps.SourceHasBlobs || !e.caps.DestHasBlobs || !storage.IsBlobRecord(rec.Data) {
		return "", 0, false, nil
	}

	srcBlobs := e.source.(storage.SupportsBlobs)
	blobPath, err := srcBlobs.LoadBlob(ctx, rec.OID, rec.TID)
	if err != nil {
		objlog.Logger.Warn().Err(err).Str("oid", rec.OID.String()).Msg(objerr.ErrBlobLoadFailed.Error())
		return "", 0, false, nil
	}

	info, err := os.Stat(blobPath)
	if err != nil {
		objlog.Logger.Warn().Err(err).Str("oid", rec.OID.String()).Msg(objerr.ErrBlobLoadFailed.Error())
		return "", 0, false, nil
	}

	destBlobs := e.destination.(storage.SupportsBlobs)
	tmpDir, err := destBlobs.TemporaryDirectory(ctx)
	if err != nil {
		return "", 0, false, err
	}

	stagePath := filepath.Join(tmpDir, uuid.NewString()+".blob")
	if err := copyFilePreservingMode(blobPath, stagePath, info.Mode()); err != nil {
		return "", 0, false, err
	}
	*staged = append(*staged, stagePath)

	return stagePath, info.Size(), true, nil
}

func (e *engine) writeRecord(ctx context.Context, entry *storage.TxnEntry, rec storage.Record, stagePath string, isBlob bool) error {
	if isBlob {
		if e.caps.DestRestoresBlobs {
			return e.destination.(storage.SupportsBlobRestore).RestoreBlob(ctx, rec.OID, entry.TID, rec.Data, stagePath, rec.DataTxn)
		}
		prevSerial := e.prevSerial(rec.OID)
		if err := e.destination.(storage.SupportsBlobs).StoreBlob(ctx, rec.OID, prevSerial, rec.Data, stagePath, rec.Version); err != nil {
			return err
		}
		e.preindex[rec.OID] = entry.TID
		return nil
	}

	if e.caps.DestRestores {
		return e.destination.(storage.SupportsRestore).Restore(ctx, rec.OID, entry.TID, rec.Data, rec.Version, rec.DataTxn)
	}
	prevSerial := e.prevSerial(rec.OID)
	if err := e.destination.Store(ctx, rec.OID, prevSerial, rec.Data, rec.Version); err != nil {
		return err
	}
	e.preindex[rec.OID] = entry.TID
	return nil
}

func (e *engine) prevSerial(oid tid.OID) *tid.TID {
	t, ok := e.preindex[oid]
	if !ok {
		return nil
	}
	return &t
}

// promotePreindex rewrites every preindex entry still holding the
// provisional (source) TID to the TID the destination actually committed.
func (e *engine) promotePreindex(provisional, committed tid.TID) {
	for oid, t := range e.preindex {
		if t == provisional {
			e.preindex[oid] = committed
		}
	}
}

func cleanupStaged(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			objlog.Logger.Debug().Err(err).Str("path", p).Msg("failed to remove staging file")
		}
	}
}

func copyFilePreservingMode(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("objcopy: open blob source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("objcopy: create blob stage file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("objcopy: stage blob: %w", err)
	}
	return out.Close()
}
