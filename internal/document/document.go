// Package document provides helpers for working with decoded JSON documents.
package document

import (
	"encoding/json"
	"strings"
)

// Segments splits a document path into its field names.
// Both slash form ("/address/city") and dotted form ("address.city") are accepted.
func Segments(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	sep := "."
	if strings.HasPrefix(path, "/") {
		sep = "/"
		path = strings.TrimPrefix(path, "/")
	}
	parts := strings.Split(path, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Dotted returns the dotted form of path.
func Dotted(path string) string {
	return strings.Join(Segments(path), ".")
}

// Decode parses a JSON object.
func Decode(data []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Lookup returns the value at path and whether it is defined.
func Lookup(doc map[string]any, path string) (any, bool) {
	segs := Segments(path)
	if len(segs) == 0 {
		return nil, false
	}
	var cur any = doc
	for _, seg := range segs {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// StringAt returns the string at path, or "" when the value is absent or not a string.
func StringAt(doc map[string]any, path string) string {
	v, ok := Lookup(doc, path)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// ID returns the document identifier.
func ID(doc map[string]any) string {
	return StringAt(doc, "id")
}
