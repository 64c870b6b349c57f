package objconf

import (
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// node is one tag in the declarative grammar: a name, its attributes, the
// raw key/value body lines it directly owns, and any nested tags. The
// grammar is neither XML nor YAML — self-closing tags coexist with
// %-prefixed directive lines — so it is scanned by hand rather than with a
// markup library.
type node struct {
	name     string
	attrs    map[string]string
	body     []string
	children []*node
}

// parseDocument scans data into a synthetic root node holding every
// top-level tag as a child, plus the directive lines (%import, %define)
// encountered anywhere, preserved verbatim and in order.
//
// Tags are matched with an explicit stack rather than a single regexp scan,
// so a closing tag always resolves to its innermost still-open opener —
// which is exactly the "last occurrence of the corresponding closing tag"
// rule a wrapper-inside-wrapper block (e.g. <outer><inner>...</inner></outer>)
// requires.
func parseDocument(data []byte) (root *node, directives []string, err error) {
	root = &node{name: "", attrs: map[string]string{}}
	stack := []*node{root}

	lines := strings.Split(string(data), "\n")
	for lineNo, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "%"):
			directives = append(directives, line)

		case strings.HasPrefix(line, "</"):
			name, err := closingTagName(line)
			if err != nil {
				return nil, nil, pkgerrors.Wrapf(err, "objconf: line %d", lineNo+1)
			}
			if len(stack) < 2 {
				return nil, nil, pkgerrors.Errorf("objconf: line %d: unmatched closing tag %q", lineNo+1, name)
			}
			top := stack[len(stack)-1]
			if top.name != name {
				return nil, nil, pkgerrors.Errorf("objconf: line %d: closing tag %q does not match open tag %q", lineNo+1, name, top.name)
			}
			stack = stack[:len(stack)-1]

		case strings.HasPrefix(line, "<"):
			n, selfClosed, perr := openingTag(line)
			if perr != nil {
				return nil, nil, pkgerrors.Wrapf(perr, "objconf: line %d", lineNo+1)
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, n)
			if !selfClosed {
				stack = append(stack, n)
			}

		default:
			top := stack[len(stack)-1]
			top.body = append(top.body, line)
		}
	}

	if len(stack) != 1 {
		return nil, nil, pkgerrors.Errorf("objconf: unclosed tag %q", stack[len(stack)-1].name)
	}
	return root, directives, nil
}

func closingTagName(line string) (string, error) {
	line = strings.TrimSuffix(strings.TrimPrefix(line, "</"), ">")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", pkgerrors.New("empty closing tag")
	}
	return line, nil
}

// openingTag parses a line like `<section type="storage" name="source"/>`
// or `<zodb_db main>` (bare token instead of quoted attribute, used for the
// host-config wrapper's database name) into a node and whether it was
// self-closing.
func openingTag(line string) (*node, bool, error) {
	selfClosed := strings.HasSuffix(line, "/>")
	body := strings.TrimPrefix(line, "<")
	if selfClosed {
		body = strings.TrimSuffix(body, "/>")
	} else {
		body = strings.TrimSuffix(body, ">")
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, false, pkgerrors.New("empty tag")
	}

	fields := splitTagFields(body)
	n := &node{name: fields[0], attrs: map[string]string{}}
	for _, f := range fields[1:] {
		if eq := strings.IndexByte(f, '='); eq >= 0 {
			key := f[:eq]
			val := strings.Trim(f[eq+1:], `"`)
			n.attrs[key] = val
		} else if f != "" {
			// Bare token, e.g. the NAME in <zodb_db NAME>. Recorded under a
			// fixed key so callers don't need a special case for it.
			n.attrs["_name"] = f
		}
	}
	return n, selfClosed, nil
}

// splitTagFields splits a tag's inner text on whitespace, respecting
// double-quoted attribute values so `name="has space"` stays one field.
func splitTagFields(s string) []string {
	var fields []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case r == ' ' && !inQuotes:
			if cur.Len() > 0 {
				fields = append(fields, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		fields = append(fields, cur.String())
	}
	return fields
}

// bodyParams turns a node's raw "key value" body lines into a map, the
// shape a storage driver's Spec.Params expects.
func bodyParams(n *node) map[string]string {
	params := make(map[string]string, len(n.body))
	for _, line := range n.body {
		fields := strings.SplitN(line, " ", 2)
		key := fields[0]
		val := ""
		if len(fields) == 2 {
			val = strings.TrimSpace(fields[1])
		}
		params[key] = val
	}
	return params
}
