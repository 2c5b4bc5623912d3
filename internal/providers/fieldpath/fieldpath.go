// Package fieldpath extracts named fields from parsed JSON or XML provider
// responses using dot/bracket-indexed paths, e.g. "result.items[0].id" or
// "Envelope.Body.Status".
package fieldpath

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Document is a parsed response body supporting path lookups
type Document interface {
	// Get resolves a path to a scalar string value
	Get(path string) (string, bool)
}

// Parse parses a response body in the given format ("json" or "xml")
func Parse(format string, body []byte) (Document, error) {
	switch format {
	case "xml":
		return ParseXML(body)
	case "json", "":
		return ParseJSON(body)
	default:
		return nil, fmt.Errorf("unknown response format %q", format)
	}
}

// Extraction is one declared field extraction: a response path mapped to an
// output key in the result field map.
type Extraction struct {
	Path string
	Key  string
}

// ParseExtractions parses the comma-separated "path|outputKey" list of a
// provider operation's response_fields setting. Entries without an explicit
// output key reuse the last path segment.
func ParseExtractions(spec string) []Extraction {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	var out []Extraction
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		path, key, ok := strings.Cut(part, "|")
		path = strings.TrimSpace(path)
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			segs := strings.Split(path, ".")
			key = segs[len(segs)-1]
		}
		out = append(out, Extraction{Path: path, Key: key})
	}
	return out
}

// segment is one parsed path step: an element/key name plus optional indexes
type segment struct {
	name    string
	indexes []int
}

func splitPath(path string) ([]segment, error) {
	var segs []segment
	for _, raw := range strings.Split(path, ".") {
		if raw == "" {
			return nil, fmt.Errorf("empty segment in path %q", path)
		}
		seg := segment{name: raw}
		for {
			open := strings.IndexByte(seg.name, '[')
			if open < 0 {
				break
			}
			closeIdx := strings.IndexByte(seg.name[open:], ']')
			if closeIdx < 0 {
				return nil, fmt.Errorf("unbalanced bracket in path %q", path)
			}
			idx, err := strconv.Atoi(seg.name[open+1 : open+closeIdx])
			if err != nil || idx < 0 {
				return nil, fmt.Errorf("invalid index in path %q", path)
			}
			seg.indexes = append(seg.indexes, idx)
			seg.name = seg.name[:open] + seg.name[open+closeIdx+1:]
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// jsonDoc navigates a decoded JSON value
type jsonDoc struct {
	root interface{}
}

// ParseJSON parses a JSON body into a navigable document
func ParseJSON(body []byte) (Document, error) {
	var root interface{}
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return &jsonDoc{root: root}, nil
}

func (d *jsonDoc) Get(path string) (string, bool) {
	segs, err := splitPath(path)
	if err != nil {
		return "", false
	}

	cur := d.root
	for _, seg := range segs {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		cur, ok = obj[seg.name]
		if !ok {
			return "", false
		}
		for _, idx := range seg.indexes {
			arr, ok := cur.([]interface{})
			if !ok || idx >= len(arr) {
				return "", false
			}
			cur = arr[idx]
		}
	}
	return scalarString(cur)
}

func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		// JSON numbers round-trip through float64; keep integers unscathed
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10), true
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case nil:
		return "", true
	default:
		return "", false
	}
}
