package graph

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PathElement is one segment of a graph path: a string key or an int index.
type PathElement any

// Path is an ordered sequence of segments addressing a location in the graph.
type Path []PathElement

// Key returns a canonical string identity for p. Two paths have the same key
// iff they are element-wise equal; "0" and 0 produce different keys.
func (p Path) Key() string {
	var b strings.Builder
	for i, el := range p {
		if i > 0 {
			b.WriteByte('/')
		}
		switch v := el.(type) {
		case string:
			b.WriteString(strconv.Quote(v))
		case int:
			b.WriteString(strconv.Itoa(v))
		default:
			b.WriteString(fmt.Sprintf("?%v", v))
		}
	}
	return b.String()
}

// Append returns a new path with els appended. p is never modified.
func (p Path) Append(els ...PathElement) Path {
	out := make(Path, 0, len(p)+len(els))
	out = append(out, p...)
	return append(out, els...)
}

// HasPrefix reports whether prefix is a (non-strict) prefix of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (p Path) String() string {
	parts := make([]string, len(p))
	for i, el := range p {
		parts[i] = fmt.Sprint(el)
	}
	return strings.Join(parts, ".")
}

// DecodePath converts a decoded JSON/YAML array into a Path. Integral
// numbers become int segments.
func DecodePath(v any) (Path, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("path must be an array, got %T", v)
	}
	out := make(Path, len(arr))
	for i, el := range arr {
		pe, err := DecodePathElement(el)
		if err != nil {
			return nil, fmt.Errorf("path[%d]: %w", i, err)
		}
		out[i] = pe
	}
	return out, nil
}

// DecodePathElement normalizes a decoded scalar into a PathElement.
func DecodePathElement(v any) (PathElement, error) {
	switch n := v.(type) {
	case string:
		return n, nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return nil, fmt.Errorf("non-integral index %v", n)
		}
		return int(n), nil
	default:
		return nil, fmt.Errorf("unsupported path element %T", v)
	}
}
