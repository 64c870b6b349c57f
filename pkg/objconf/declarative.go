package objconf

import (
	pkgerrors "github.com/pkg/errors"

	"github.com/arkdb/objcopy/pkg/objerr"
)

// ParseDeclarative reads a top-level declarative config: zero or more
// driver sections, each named "source" or "destination" via a bare
// trailing token (`<badger source> data-dir /path </badger>`), the same
// convention the real ZConfig-style storage sections use. %import and
// %define lines are scanned but otherwise ignored at this level — they
// only matter when this document is a host-application config being
// mined for a <zodb_db> block (see host.go).
func ParseDeclarative(data []byte) (map[string]Spec, error) {
	root, _, err := parseDocument(data)
	if err != nil {
		return nil, err
	}

	specs := make(map[string]Spec)
	for _, child := range root.children {
		side := child.attrs["_name"]
		if side != "source" && side != "destination" {
			continue
		}
		if _, exists := specs[side]; exists {
			return nil, pkgerrors.WithStack(objerr.ErrDuplicateSpecification)
		}
		specs[side] = Spec{Driver: child.name, Params: bodyParams(child)}
	}
	return specs, nil
}
