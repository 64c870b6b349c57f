package objconf

import (
	pkgerrors "github.com/pkg/errors"

	"github.com/arkdb/objcopy/pkg/objerr"
)

// hostKeys are stripped from an extracted section's parameters: they only
// make sense in the context of a full application database object
// (mount-point inside a multi-database setup, a custom Python class
// wrapping the raw storage) and have no meaning once the storage is opened
// directly.
var hostKeys = []string{"mount-point", "connection-class", "class-factory", "container-class"}

// ExtractZodbDB finds the <zodb_db name> … </zodb_db> block whose bare
// name token matches name, strips host-application-only keys from its
// inner storage section, and returns that section as a Spec ready to open
// directly — bypassing the database-object construction that would
// otherwise inject an initial root-object transaction into an empty
// destination and pollute the TID sequence (see the direct-open decision
// in DESIGN.md). Hoisted %import/%define lines are returned verbatim,
// in document order, for the caller to log or re-emit.
func ExtractZodbDB(data []byte, name string) (Spec, []string, error) {
	root, directives, err := parseDocument(data)
	if err != nil {
		return Spec{}, nil, err
	}

	block := findZodbDB(root, name)
	if block == nil {
		return Spec{}, nil, pkgerrors.WithStack(objerr.ErrSectionNotFound)
	}

	inner := outermostInnerSection(block)
	if inner == nil {
		return Spec{}, nil, pkgerrors.Wrapf(objerr.ErrSectionNotFound, "zodb_db %q has no storage section", name)
	}

	params := bodyParams(inner)
	for _, k := range hostKeys {
		delete(params, k)
	}
	return Spec{Driver: inner.name, Params: params}, directives, nil
}

func findZodbDB(root *node, name string) *node {
	for _, child := range root.children {
		if (child.name == "zodb_db" || child.name == "zodb") && child.attrs["_name"] == name {
			return child
		}
	}
	return nil
}

// outermostInnerSection returns the first child tag of block whose name is
// neither "zodb_db" nor "zodb" — the section to open, whatever it itself
// wraps or declares in its own body.
func outermostInnerSection(block *node) *node {
	for _, child := range block.children {
		if child.name != "zodb_db" && child.name != "zodb" {
			return child
		}
	}
	return nil
}
