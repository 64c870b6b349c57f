// Package objconf resolves CLI-level configuration into opened source and
// destination storage instances.
//
// Three kinds of input are accepted, matching the CLI surface:
//
//   - a declarative config file naming "source" and/or "destination"
//     sections (declarative.go);
//   - a minimal YAML convenience format with the same two sections
//     (yaml.go);
//   - a host-application config file plus a named database, from which the
//     loader extracts the inner storage section of a <zodb_db NAME> block
//     (host.go).
//
// Exactly one of these must resolve each side; resolving a side twice is
// ErrDuplicateSpecification, resolving neither side is
// ErrMissingSpecification.
package objconf

import (
	"io"

	"github.com/arkdb/objcopy/pkg/storage"
)

// Spec names a storage backend and the key/value parameters its driver
// needs to open it. Keys and values are opaque strings; only the driver
// registered under Driver interprets them.
type Spec struct {
	Driver string
	Params map[string]string
}

// Result is what Load hands back to the CLI: the opened source and
// destination, plus every io.Closer the caller must release once the copy
// (or dry run) completes.
type Result struct {
	Source      storage.SourceStorage
	Destination storage.DestinationStorage
	Closables   []io.Closer
}

// Close releases every closable in Closables, continuing past individual
// failures and returning the first one encountered.
func (r *Result) Close() error {
	var first error
	for _, c := range r.Closables {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
