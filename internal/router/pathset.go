package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/hanpama/graphpath/internal/graph"
)

// ErrMalformedPath is returned for a path set that cannot be parsed.
var ErrMalformedPath = errors.New("router: malformed path set")

// Element is one position of a path set: either a set of string keys or a
// set of index ranges, never both. Integers are single-index ranges.
type Element struct {
	Keys   []string
	Ranges []graph.Range
}

// PathSet is a path whose positions may each name several keys.
type PathSet []Element

// Keys builds a key element.
func Keys(keys ...string) Element { return Element{Keys: keys} }

// Ranges builds an index element.
func Ranges(rs ...graph.Range) Element { return Element{Ranges: rs} }

// Index builds an element of single indices.
func Index(is ...int) Element {
	e := Element{}
	for _, i := range is {
		e.Ranges = append(e.Ranges, graph.Range{From: i, To: i})
	}
	return e
}

func (e Element) isKeys() bool   { return len(e.Keys) > 0 && len(e.Ranges) == 0 }
func (e Element) isRanges() bool { return len(e.Ranges) > 0 && len(e.Keys) == 0 }

// is reports whether e is exactly the single key s.
func (e Element) is(s string) bool {
	return len(e.Ranges) == 0 && len(e.Keys) == 1 && e.Keys[0] == s
}

// ParsePathSets parses decoded JSON path sets. A position mixing string keys
// and indices splits its path set in two, so the result may be longer than
// the input.
func ParsePathSets(raw []any) ([]PathSet, error) {
	var out []PathSet
	for i, r := range raw {
		sets, err := ParsePathSet(r)
		if err != nil {
			return nil, fmt.Errorf("paths[%d]: %w", i, err)
		}
		out = append(out, sets...)
	}
	return out, nil
}

// ParsePathSet parses one decoded JSON path set.
func ParsePathSet(raw any) ([]PathSet, error) {
	arr, ok := raw.([]any)
	if !ok || len(arr) == 0 {
		return nil, fmt.Errorf("%w: expected a non-empty array, got %v", ErrMalformedPath, raw)
	}
	sets := []PathSet{{}}
	for i, r := range arr {
		variants, err := parsePosition(r)
		if err != nil {
			return nil, fmt.Errorf("%w: position %d: %v", ErrMalformedPath, i, err)
		}
		next := make([]PathSet, 0, len(sets)*len(variants))
		for _, ps := range sets {
			for _, el := range variants {
				grown := make(PathSet, len(ps), len(ps)+1)
				copy(grown, ps)
				next = append(next, append(grown, el))
			}
		}
		sets = next
	}
	return sets, nil
}

// parsePosition returns one element, or two when keys and indices mix.
func parsePosition(raw any) ([]Element, error) {
	items, isSet := raw.([]any)
	if !isSet {
		items = []any{raw}
	}
	var keys Element
	var idx Element
	var empty bool
	for _, item := range items {
		switch v := item.(type) {
		case string:
			keys.Keys = append(keys.Keys, v)
		case float64:
			i, err := integer(v)
			if err != nil {
				return nil, err
			}
			idx.Ranges = append(idx.Ranges, graph.Range{From: i, To: i})
		case map[string]any:
			r, ok, err := parseRange(v)
			if err != nil {
				return nil, err
			}
			if !ok {
				empty = true
				continue
			}
			idx.Ranges = append(idx.Ranges, r)
		default:
			return nil, fmt.Errorf("unsupported key %v", item)
		}
	}
	var out []Element
	if len(keys.Keys) > 0 {
		out = append(out, keys)
	}
	if len(idx.Ranges) > 0 {
		out = append(out, idx)
	}
	if len(out) == 0 && !empty {
		return nil, fmt.Errorf("empty key set")
	}
	return out, nil
}

// parseRange accepts {"from": f, "to": t} and {"from": f, "length": n}.
// A missing "from" is 0. It reports false for a zero length, which matches
// no index. The range is not validated here.
func parseRange(m map[string]any) (graph.Range, bool, error) {
	from := 0
	if v, ok := m["from"]; ok {
		f, ok := v.(float64)
		if !ok {
			return graph.Range{}, false, fmt.Errorf("range from must be a number")
		}
		var err error
		if from, err = integer(f); err != nil {
			return graph.Range{}, false, err
		}
	}
	if v, ok := m["to"]; ok {
		f, ok := v.(float64)
		if !ok {
			return graph.Range{}, false, fmt.Errorf("range to must be a number")
		}
		to, err := integer(f)
		if err != nil {
			return graph.Range{}, false, err
		}
		return graph.Range{From: from, To: to}, true, nil
	}
	if v, ok := m["length"]; ok {
		f, ok := v.(float64)
		if !ok {
			return graph.Range{}, false, fmt.Errorf("range length must be a number")
		}
		n, err := integer(f)
		if err != nil {
			return graph.Range{}, false, err
		}
		if n == 0 {
			return graph.Range{}, false, nil
		}
		return graph.Range{From: from, To: from + n - 1}, true, nil
	}
	return graph.Range{}, false, fmt.Errorf("range needs to or length")
}

// maxIndex is the largest integer a JSON number carries exactly. Bounding
// indices by it keeps from + length within int.
const maxIndex = 1 << 53

func integer(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-integral index %v", f)
	}
	if math.Abs(f) > maxIndex {
		return 0, fmt.Errorf("index %v out of range", f)
	}
	return int(f), nil
}

// MarshalJSON renders e in path-set notation: a bare key or index when e
// names exactly one, otherwise an array.
func (e Element) MarshalJSON() ([]byte, error) {
	var items []any
	for _, k := range e.Keys {
		items = append(items, k)
	}
	for _, r := range e.Ranges {
		if r.From == r.To {
			items = append(items, r.From)
		} else {
			items = append(items, r)
		}
	}
	if len(items) == 1 {
		return json.Marshal(items[0])
	}
	return json.Marshal(items)
}

// continued returns the path set addressing tail under p.
func continued(p graph.Path, tail PathSet) PathSet {
	out := make(PathSet, 0, len(p)+len(tail))
	for _, el := range p {
		switch v := el.(type) {
		case int:
			out = append(out, Index(v))
		default:
			out = append(out, Keys(fmt.Sprint(v)))
		}
	}
	return append(out, tail...)
}
