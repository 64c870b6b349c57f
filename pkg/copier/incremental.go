package copier

import (
	"context"
	"io"

	"github.com/arkdb/objcopy/pkg/storage"
	"github.com/arkdb/objcopy/pkg/tid"
)

// IncrementalStart computes the start TID for a resumable copy: the
// successor of destination's last committed transaction, or nil (full
// copy) if destination has none. Per the spec's invariant, the iterator's
// emptiness — not last_transaction's zero value — is the authoritative
// signal for "destination is empty", since some backends cannot
// distinguish "never committed" from "committed TID zero".
func IncrementalStart(ctx context.Context, destination storage.SourceStorage) (*tid.TID, error) {
	it, err := destination.Iterator(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	_, err = it.Next()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	last, err := destination.LastTransaction(ctx)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, nil
	}
	next := tid.Successor(*last)
	return &next, nil
}
