// Package objerr defines the sentinel error kinds raised across objcopy,
// and the exit-code mapping the CLI uses to translate them.
//
// Every sentinel here is meant to be compared with errors.Is, never with
// ==, since callers at the CLI boundary wrap these with github.com/pkg/errors
// to attach a stack trace before logging and exiting.
package objerr

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// Sentinel error kinds, one per row of the error table. They are created
// with github.com/pkg/errors so that Wrap/WithStack at the point of first
// return attaches a stack trace, while remaining comparable with the
// standard library's errors.Is.
var (
	// ErrUnsupportedSource is raised by the capability probe when the
	// source does not implement iteration.
	ErrUnsupportedSource = pkgerrors.New("objcopy: source does not support iteration")

	// ErrMissingSpecification is raised by the config loader when no
	// source, or no destination, could be resolved from any input.
	ErrMissingSpecification = pkgerrors.New("objcopy: no source or destination specification given")

	// ErrDuplicateSpecification is raised by the config loader when both
	// the declarative config and the host-application config resolve the
	// same side (source or destination).
	ErrDuplicateSpecification = pkgerrors.New("objcopy: source or destination specified twice")

	// ErrSectionNotFound is raised by the host-application config
	// extractor when the requested database name has no matching
	// zodb_db block.
	ErrSectionNotFound = pkgerrors.New("objcopy: named database section not found")

	// ErrBlobLoadFailed is raised by the engine when the source's
	// load_blob call fails. It is always recovered: the engine logs a
	// warning and writes the record without a blob payload.
	ErrBlobLoadFailed = pkgerrors.New("objcopy: failed to load blob from source")

	// ErrDestinationCommit is raised when any two-phase-commit call
	// (tpc_begin, store, restore, tpc_vote, tpc_finish) on the
	// destination fails.
	ErrDestinationCommit = pkgerrors.New("objcopy: destination commit failed")

	// ErrIterationFailure is raised when the source iterator fails
	// mid-stream.
	ErrIterationFailure = pkgerrors.New("objcopy: source iteration failed")

	// ErrNonExtendingHistory is raised when start_tid selects a source
	// transaction whose TID is <= one already present on the destination.
	ErrNonExtendingHistory = pkgerrors.New("objcopy: source history does not strictly extend destination")
)

// ExitCode returns the process exit code for err per the error table:
// user/config errors exit 1, operational failures exit 2, success is 0
// and is never represented by an error value.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch {
	case errors.Is(err, ErrMissingSpecification),
		errors.Is(err, ErrDuplicateSpecification),
		errors.Is(err, ErrSectionNotFound):
		return 1
	default:
		return 2
	}
}
