package storage

// Capabilities is the flat record of booleans the copy engine consults to
// decide which path (restore vs store, blob-restore vs store-blob vs no
// blob) to drive for a given (source, destination) pair. It is produced
// once per copy invocation by Probe and never recomputed mid-copy.
type Capabilities struct {
	SourceIterates    bool
	SourceHasBlobs    bool
	DestRestores      bool
	DestRestoresBlobs bool
	DestHasBlobs      bool
}

// Probe inspects a (source, destination) pair and returns their flat
// capability record. It never calls into the backends beyond the type
// assertions below — capability discovery is static, not a network
// round-trip.
//
// SourceStorage is itself the mandatory iteration capability, so
// SourceIterates is true whenever source is non-nil; the field exists so
// that callers can fail with objerr.ErrUnsupportedSource uniformly rather
// than nil-checking the source storage handle directly.
func Probe(source SourceStorage, destination DestinationStorage) Capabilities {
	var caps Capabilities

	caps.SourceIterates = source != nil

	if _, ok := source.(SupportsBlobs); ok {
		caps.SourceHasBlobs = true
	}

	if _, ok := destination.(SupportsRestore); ok {
		caps.DestRestores = true
	}
	if _, ok := destination.(SupportsBlobRestore); ok {
		caps.DestRestoresBlobs = true
	}
	if _, ok := destination.(SupportsBlobs); ok {
		caps.DestHasBlobs = true
	}

	return caps
}
