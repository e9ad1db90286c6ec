package store

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hanpama/graphpath/internal/graph"
)

// Emit receives lookup results.
type Emit func(graph.PathValue)

// FieldValues emits the values of fields at indices for every id. A missing
// resource yields null at its resource path and a missing field null at its
// field path. Indices past the end of a field are not emitted.
func (s *Store) FieldValues(g, typ string, ids, fields []string, indices []int, emit Emit) {
	for _, id := range ids {
		r, err := s.Resolve(typ, id)
		if err != nil {
			emit(graph.PathValue{Path: graph.ResourcePath(g, typ, id)})
			continue
		}
		for _, field := range fields {
			vals, ok := r.Record.Fields[field]
			if !ok {
				emit(graph.PathValue{Path: graph.ResourceFieldPath(g, typ, id, field)})
				continue
			}
			for _, i := range indices {
				if i >= 0 && i < len(vals) {
					emit(graph.PathValue{Path: graph.ResourceFieldValuePath(g, typ, id, field, i), Value: vals[i]})
				}
			}
		}
	}
}

// FieldLengths emits the number of values of each field.
func (s *Store) FieldLengths(g, typ string, ids, fields []string, emit Emit) {
	for _, id := range ids {
		r, err := s.Resolve(typ, id)
		if err != nil {
			emit(graph.PathValue{Path: graph.ResourcePath(g, typ, id)})
			continue
		}
		for _, field := range fields {
			pv := graph.PathValue{Path: graph.ResourceFieldLengthPath(g, typ, id, field)}
			if vals, ok := r.Record.Fields[field]; ok {
				pv.Value = len(vals)
			}
			emit(pv)
		}
	}
}

// Labels emits the first label of every id. A label that is itself a
// reference is not displayable and yields null.
func (s *Store) Labels(g, typ string, ids []string, emit Emit) {
	for _, id := range ids {
		r, err := s.Resolve(typ, id)
		if err != nil {
			emit(graph.PathValue{Path: graph.ResourcePath(g, typ, id)})
			continue
		}
		pv := graph.PathValue{Path: graph.ResourceLabelPath(g, typ, id)}
		if labels := r.Record.Fields["label"]; len(labels) > 0 {
			if _, isRef := labels[0].(graph.Ref); !isRef {
				pv.Value = labels[0]
			}
		}
		emit(pv)
	}
}

// Filter emits references to the resources of typ whose labels fuzzily
// match each filter, at the requested positions of the match list. Matches
// are ordered by id. Positions past the end are not emitted.
func (s *Store) Filter(g, typ string, filters []string, indices []int, emit Emit) {
	for _, filter := range filters {
		matches := s.match(typ, filter)
		for _, i := range indices {
			if i >= 0 && i < len(matches) {
				emit(graph.PathValue{
					Path:  graph.FilterPath(g, typ, filter, i),
					Value: graph.Ref{Path: graph.ResourcePath(g, typ, matches[i])},
				})
			}
		}
	}
}

// FilterLengths emits the number of matches of each filter.
func (s *Store) FilterLengths(g, typ string, filters []string, emit Emit) {
	for _, filter := range filters {
		emit(graph.PathValue{Path: graph.FilterLengthPath(g, typ, filter), Value: len(s.match(typ, filter))})
	}
}

// match returns the sorted ids of typ with a label containing the letters of
// filter in order, ignoring case.
func (s *Store) match(typ, filter string) []string {
	re := fuzzy(filter)
	var out []string
	for _, id := range s.IDs(typ) {
		r, err := s.Resolve(typ, id)
		if err != nil {
			continue
		}
		for _, label := range r.Record.Fields["label"] {
			if text, ok := labelText(label); ok && re.MatchString(text) {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

func fuzzy(filter string) *regexp.Regexp {
	parts := make([]string, 0, len(filter))
	for _, r := range filter {
		parts = append(parts, regexp.QuoteMeta(string(r)))
	}
	return regexp.MustCompile("(?i)" + strings.Join(parts, ".*"))
}

func labelText(v graph.Value) (string, bool) {
	switch v := v.(type) {
	case nil, graph.Ref, graph.Error:
		return "", false
	case string:
		return v, true
	case graph.Atom:
		if v.Value == nil {
			return "", false
		}
		return fmt.Sprint(v.Value), true
	default:
		return fmt.Sprint(v), true
	}
}
