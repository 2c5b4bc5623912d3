package fieldpath

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

// XMLNode is a generic XML element tree node
type XMLNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Content  []byte     `xml:",chardata"`
	Children []XMLNode  `xml:",any"`
}

// ParseXML parses an XML body into a navigable document rooted above the
// document element, so paths may start with the root element's name.
func ParseXML(body []byte) (Document, error) {
	var root XMLNode
	if err := xml.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("failed to parse XML response: %w", err)
	}
	return &xmlDoc{root: root}, nil
}

type xmlDoc struct {
	root XMLNode
}

// Get resolves a path against the element tree. The leading segment may name
// the document element itself or one of its children; "@attr" as the final
// segment reads an attribute.
func (d *xmlDoc) Get(path string) (string, bool) {
	segs, err := splitPath(path)
	if err != nil {
		return "", false
	}
	if len(segs) == 0 {
		return "", false
	}

	cur := &d.root
	start := 0
	if segs[0].name == d.root.XMLName.Local && len(segs[0].indexes) == 0 {
		start = 1
	}

	for i := start; i < len(segs); i++ {
		seg := segs[i]

		if attr, ok := strings.CutPrefix(seg.name, "@"); ok && i == len(segs)-1 {
			for _, a := range cur.Attrs {
				if a.Name.Local == attr {
					return a.Value, true
				}
			}
			return "", false
		}

		next := cur.child(seg.name, firstIndex(seg.indexes))
		if next == nil {
			return "", false
		}
		cur = next
	}
	return strings.TrimSpace(string(cur.Content)), true
}

func firstIndex(indexes []int) int {
	if len(indexes) == 0 {
		return 0
	}
	return indexes[0]
}

// child returns the nth child element with the given local name
func (n *XMLNode) child(name string, index int) *XMLNode {
	seen := 0
	for i := range n.Children {
		if n.Children[i].XMLName.Local == name {
			if seen == index {
				return &n.Children[i]
			}
			seen++
		}
	}
	return nil
}

// ContainsMarker reports whether the raw body contains a case-insensitive
// marker string. Used for SOAP fault and upstream-unavailable sentinels that
// appear before a body parses cleanly.
func ContainsMarker(body []byte, marker string) bool {
	return bytes.Contains(bytes.ToLower(body), bytes.ToLower([]byte(marker)))
}
