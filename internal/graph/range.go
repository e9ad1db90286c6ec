package graph

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrInvertedRange is returned for a range whose From exceeds its To.
	ErrInvertedRange = errors.New("graph: range from > to")
	// ErrNegativeRange is returned for a range starting below zero.
	ErrNegativeRange = errors.New("graph: range starts below zero")
	// ErrRangeTooLarge is returned for a range covering more than
	// MaxRangeLength indices.
	ErrRangeTooLarge = errors.New("graph: range too large")
)

// MaxRangeLength bounds the number of indices one range, or the union a
// caller asks for at one path position, may cover.
const MaxRangeLength = 10000

// Range is an inclusive index range.
type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Validate reports whether r can be expanded.
func (r Range) Validate() error {
	if r.From < 0 {
		return fmt.Errorf("%w: {from:%d, to:%d}", ErrNegativeRange, r.From, r.To)
	}
	if r.From > r.To {
		return fmt.Errorf("%w: {from:%d, to:%d}", ErrInvertedRange, r.From, r.To)
	}
	// Both ends are non-negative here, so the difference cannot overflow.
	if r.To-r.From >= MaxRangeLength {
		return fmt.Errorf("%w: {from:%d, to:%d}", ErrRangeTooLarge, r.From, r.To)
	}
	return nil
}

// Len is the number of indices r covers. It is only meaningful for a range
// that passes Validate.
func (r Range) Len() int { return r.To - r.From + 1 }

// Contains reports whether i lies within r.
func (r Range) Contains(i int) bool { return i >= r.From && i <= r.To }

// Expand lists the indices of r in ascending order.
func Expand(r Range) ([]int, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	n := r.Len()
	out := make([]int, n)
	for k := range n {
		out[k] = r.From + k
	}
	return out, nil
}

// ExpandAll returns the ascending, duplicate-free union of the indices of
// every range. The result does not depend on the order of rs.
func ExpandAll(rs []Range) ([]int, error) {
	return expand(rs, -1)
}

// ExpandLimited is ExpandAll that fails with ErrRangeTooLarge, before
// allocating, when the union covers more than limit indices.
func ExpandLimited(rs []Range, limit int) ([]int, error) {
	return expand(rs, limit)
}

func expand(rs []Range, limit int) ([]int, error) {
	spans, err := union(rs)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, s := range spans {
		total += s.Len()
		if limit >= 0 && total > limit {
			return nil, fmt.Errorf("%w: more than %d indices", ErrRangeTooLarge, limit)
		}
	}
	out := make([]int, 0, total)
	for _, s := range spans {
		for k := range s.Len() {
			out = append(out, s.From+k)
		}
	}
	return out, nil
}

// union validates rs and folds overlapping or adjacent ranges together,
// ordered by From.
func union(rs []Range) ([]Range, error) {
	for _, r := range rs {
		if err := r.Validate(); err != nil {
			return nil, err
		}
	}
	sorted := slices.Clone(rs)
	slices.SortFunc(sorted, CompareRanges)
	var out []Range
	for _, r := range sorted {
		if n := len(out); n > 0 && r.From <= out[n-1].To+1 {
			out[n-1].To = max(out[n-1].To, r.To)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// CompareRanges orders ranges by From, then To.
func CompareRanges(a, b Range) int {
	if a.From != b.From {
		return a.From - b.From
	}
	return a.To - b.To
}
