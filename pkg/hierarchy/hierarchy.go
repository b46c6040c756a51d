// Package hierarchy parses on-device UI-hierarchy dumps into an XML tree
// and renders them for readable display.
package hierarchy

import (
	"strings"

	"github.com/beevik/etree"
	"github.com/pkg/errors"
)

// ErrMalformed is returned when a dump cannot be parsed as an XML tree.
var ErrMalformed = errors.New("malformed view hierarchy")

// Parse reads a UI-hierarchy dump into an XML document. The input must
// already be stripped of the bridge tool's trailing confirmation message.
func Parse(markup string) (*etree.Document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(strings.TrimSpace(markup)); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	if doc.Root() == nil {
		return nil, errors.Wrap(ErrMalformed, "document has no root element")
	}
	return doc, nil
}

// Normalize recursively trims surrounding whitespace from the character
// data of el and its descendants. It is a free function on purpose: the
// tree type is owned by the etree library.
func Normalize(el *etree.Element) {
	for _, child := range el.Child {
		switch node := child.(type) {
		case *etree.CharData:
			node.Data = strings.TrimSpace(node.Data)
		case *etree.Element:
			Normalize(node)
		}
	}
}

// Format returns an indented rendering of the document with normalized
// whitespace.
func Format(doc *etree.Document) (string, error) {
	if root := doc.Root(); root != nil {
		Normalize(root)
	}
	doc.Indent(2)
	out, err := doc.WriteToString()
	if err != nil {
		return "", errors.Wrap(err, "failed to serialize view hierarchy")
	}
	return out, nil
}
