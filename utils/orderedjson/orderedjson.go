// Package orderedjson keeps JSON sub-trees in their original key order so they
// can be re-emitted byte-stable after selected values were rewritten.
package orderedjson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/iancoleman/orderedmap"
)

// Path addresses a value inside a tree. Elements are string keys or int indices.
type Path []any

const wrapKey = "v"

// Parse decodes raw into a tree of *orderedmap.OrderedMap / orderedmap.OrderedMap,
// []any, float64, string, bool and nil.
func Parse(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		om := orderedmap.New()
		om.SetEscapeHTML(false)
		if err := om.UnmarshalJSON(trimmed); err != nil {
			return nil, err
		}
		return om, nil
	}
	// orderedmap only decodes objects, so anything else is wrapped once.
	wrapped := make([]byte, 0, len(trimmed)+8)
	wrapped = append(wrapped, `{"`+wrapKey+`":`...)
	wrapped = append(wrapped, trimmed...)
	wrapped = append(wrapped, '}')
	om := orderedmap.New()
	om.SetEscapeHTML(false)
	if err := om.UnmarshalJSON(wrapped); err != nil {
		return nil, err
	}
	v, _ := om.Get(wrapKey)
	return v, nil
}

// Marshal writes the tree compactly, in key order, without HTML escaping.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalTo(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalTo(buf *bytes.Buffer, v any) error {
	if om, ok := AsMap(v); ok {
		buf.WriteByte('{')
		for i, k := range om.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalScalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			child, _ := om.Get(k)
			if err := marshalTo(buf, child); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	}
	if arr, ok := v.([]any); ok {
		buf.WriteByte('[')
		for i, child := range arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalTo(buf, child); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	}
	return marshalScalar(buf, v)
}

func marshalScalar(buf *bytes.Buffer, v any) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return json.Compact(buf, bytes.TrimRight(tmp.Bytes(), "\n"))
}

// AsMap returns a pointer through which node's entries can be read and replaced.
func AsMap(node any) (*orderedmap.OrderedMap, bool) {
	switch t := node.(type) {
	case *orderedmap.OrderedMap:
		return t, t != nil
	case orderedmap.OrderedMap:
		return &t, true
	}
	return nil, false
}

// Index interprets v as a non-negative array index.
func Index(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 || t != math.Trunc(t) || t > math.MaxInt32 {
			return 0, false
		}
		return int(t), true
	case int:
		return t, t >= 0
	case json.Number:
		n, err := t.Int64()
		if err != nil || n < 0 {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func Get(node any, path Path) (any, bool) {
	cur := node
	for _, p := range path {
		switch key := p.(type) {
		case string:
			om, ok := AsMap(cur)
			if !ok {
				return nil, false
			}
			if cur, ok = om.Get(key); !ok {
				return nil, false
			}
		case int:
			arr, ok := cur.([]any)
			if !ok || key < 0 || key >= len(arr) {
				return nil, false
			}
			cur = arr[key]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Set stores v at path and returns the (possibly new) root. Intermediate nodes
// must exist; only the final key of an object may be new.
func Set(node any, path Path, v any) (any, error) {
	if len(path) == 0 {
		return v, nil
	}
	switch key := path[0].(type) {
	case string:
		om, ok := AsMap(node)
		if !ok {
			return nil, fmt.Errorf("path element %q: not an object", key)
		}
		child, exists := om.Get(key)
		if !exists && len(path) > 1 {
			return nil, fmt.Errorf("path element %q: missing", key)
		}
		updated, err := Set(child, path[1:], v)
		if err != nil {
			return nil, err
		}
		om.Set(key, updated)
		if _, isValue := node.(orderedmap.OrderedMap); isValue {
			return *om, nil
		}
		return om, nil
	case int:
		arr, ok := node.([]any)
		if !ok || key < 0 || key >= len(arr) {
			return nil, fmt.Errorf("path element %d: not an array index", key)
		}
		updated, err := Set(arr[key], path[1:], v)
		if err != nil {
			return nil, err
		}
		arr[key] = updated
		return arr, nil
	}
	return nil, fmt.Errorf("invalid path element %v", path[0])
}

// FindTextureInfos returns the paths of every "index" member inside objects
// stored under keys accepted by match. With recursive set, nested objects and
// arrays are searched as well; otherwise only the top level of node is.
func FindTextureInfos(node any, match func(key string) bool, recursive bool) []Path {
	var out []Path
	findTextureInfos(node, nil, match, recursive, &out)
	return out
}

func findTextureInfos(node any, prefix Path, match func(string) bool, recursive bool, out *[]Path) {
	if om, ok := AsMap(node); ok {
		for _, k := range om.Keys() {
			child, _ := om.Get(k)
			childPath := append(append(Path{}, prefix...), k)
			if match(k) {
				if info, ok := AsMap(child); ok {
					if idx, ok := info.Get("index"); ok {
						if _, ok := Index(idx); ok {
							*out = append(*out, append(childPath, "index"))
						}
					}
				}
			}
			if recursive {
				findTextureInfos(child, childPath, match, recursive, out)
			}
		}
		return
	}
	if arr, ok := node.([]any); ok && recursive {
		for i, child := range arr {
			findTextureInfos(child, append(append(Path{}, prefix...), i), match, recursive, out)
		}
	}
}
