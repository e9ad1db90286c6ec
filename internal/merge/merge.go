// Package merge folds many small path requests into one canonical request
// per correlation key.
//
// Folding is a union: ids, fields and ranges accumulate, and the count and
// label flags are sticky ORs. Ranges are concatenated and exact duplicates
// dropped; overlapping ranges are NOT coalesced into fewer intervals. That is
// a known inefficiency, harmless because range expansion deduplicates
// indices downstream.
//
// The output is a pure function of the multiset of inputs: groups are
// ordered by correlation key, string sets are sorted and ranges are ordered
// by (From, To).
package merge

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hanpama/graphpath/internal/graph"
)

// Kind selects what a request asks for.
type Kind int

const (
	// KindValue asks for the values at a set of indices.
	KindValue Kind = iota
	// KindCount asks for lengths.
	KindCount
	// KindLabel asks for resource labels.
	KindLabel
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindCount:
		return "count"
	case KindLabel:
		return "label"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// SearchRequest asks for a slice of one search's results, or its length.
type SearchRequest struct {
	Kind     Kind
	SearchID string
	Ranges   []graph.Range
}

// ResourceRequest asks for fields of resources of one or more types.
type ResourceRequest struct {
	Kind      Kind
	Types     []string
	Resources []string
	Fields    []string
	Ranges    []graph.Range
}

// MergedSearch is the union of every SearchRequest sharing a search id.
type MergedSearch struct {
	SearchID string        `json:"searchId"`
	Ranges   []graph.Range `json:"ranges"`
	Count    bool          `json:"count"`
}

// MergedResource is the union of every ResourceRequest naming a type.
type MergedResource struct {
	Type      string        `json:"type"`
	Resources []string      `json:"resources"`
	Fields    []string      `json:"fields"`
	Ranges    []graph.Range `json:"ranges"`
	Count     bool          `json:"count"`
	Label     bool          `json:"label"`
}

// Search groups requests by search id.
func Search(reqs []SearchRequest) []MergedSearch {
	groups := map[string]*MergedSearch{}
	for _, req := range reqs {
		m := groups[req.SearchID]
		if m == nil {
			m = &MergedSearch{SearchID: req.SearchID}
			groups[req.SearchID] = m
		}
		switch req.Kind {
		case KindValue:
			m.Ranges = unionRanges(m.Ranges, req.Ranges)
		case KindCount:
			m.Count = true
		}
	}
	out := make([]MergedSearch, 0, len(groups))
	for _, m := range groups {
		slices.SortFunc(m.Ranges, graph.CompareRanges)
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b MergedSearch) int { return strings.Compare(a.SearchID, b.SearchID) })
	return out
}

// Resources groups requests by resource type. A request naming several types
// contributes to each of them.
func Resources(reqs []ResourceRequest) []MergedResource {
	groups := map[string]*MergedResource{}
	for _, req := range reqs {
		for _, typ := range req.Types {
			m := groups[typ]
			if m == nil {
				m = &MergedResource{Type: typ}
				groups[typ] = m
			}
			m.Resources = union(m.Resources, req.Resources)
			switch req.Kind {
			case KindValue:
				m.Fields = union(m.Fields, req.Fields)
				m.Ranges = unionRanges(m.Ranges, req.Ranges)
			case KindCount:
				m.Fields = union(m.Fields, req.Fields)
				m.Count = true
			case KindLabel:
				m.Label = true
			}
		}
	}
	out := make([]MergedResource, 0, len(groups))
	for _, m := range groups {
		slices.Sort(m.Resources)
		slices.Sort(m.Fields)
		slices.SortFunc(m.Ranges, graph.CompareRanges)
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b MergedResource) int { return strings.Compare(a.Type, b.Type) })
	return out
}

// Requests expands m back into canonical requests. Merging the result yields m.
func (m MergedSearch) Requests() []SearchRequest {
	var out []SearchRequest
	if len(m.Ranges) > 0 || !m.Count {
		out = append(out, SearchRequest{Kind: KindValue, SearchID: m.SearchID, Ranges: slices.Clone(m.Ranges)})
	}
	if m.Count {
		out = append(out, SearchRequest{Kind: KindCount, SearchID: m.SearchID})
	}
	return out
}

// Requests expands m back into canonical requests. Merging the result yields m.
func (m MergedResource) Requests() []ResourceRequest {
	types := []string{m.Type}
	out := []ResourceRequest{{
		Kind:      KindValue,
		Types:     types,
		Resources: slices.Clone(m.Resources),
		Fields:    slices.Clone(m.Fields),
		Ranges:    slices.Clone(m.Ranges),
	}}
	if m.Count {
		out = append(out, ResourceRequest{Kind: KindCount, Types: types, Resources: slices.Clone(m.Resources), Fields: slices.Clone(m.Fields)})
	}
	if m.Label {
		out = append(out, ResourceRequest{Kind: KindLabel, Types: types, Resources: slices.Clone(m.Resources)})
	}
	return out
}

func union(dst, src []string) []string {
	for _, s := range src {
		if !slices.Contains(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}

func unionRanges(dst, src []graph.Range) []graph.Range {
	for _, r := range src {
		if !slices.Contains(dst, r) {
			dst = append(dst, r)
		}
	}
	return dst
}

