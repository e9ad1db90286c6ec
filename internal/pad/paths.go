package pad

import (
	"iter"

	"github.com/hanpama/graphpath/internal/graph"
)

// PathIndex maps any path to the expected paths it covers: the expected
// paths below it, and any expected path it lies below.
type PathIndex struct {
	paths map[string]graph.Path
	under map[string][]string
}

// NewPathIndex indexes expected by every prefix of every path.
func NewPathIndex(expected []graph.Path) *PathIndex {
	x := &PathIndex{
		paths: make(map[string]graph.Path, len(expected)),
		under: map[string][]string{},
	}
	for _, p := range expected {
		k := p.Key()
		if _, dup := x.paths[k]; dup {
			continue
		}
		x.paths[k] = p
		for i := 1; i <= len(p); i++ {
			pk := p[:i].Key()
			x.under[pk] = append(x.under[pk], k)
		}
	}
	return x
}

// Keys returns the keys of the expected paths covered by p.
func (x *PathIndex) Keys(p graph.Path) []string {
	keys := x.under[p.Key()]
	for i := 1; i < len(p); i++ {
		if _, ok := x.paths[p[:i].Key()]; ok {
			keys = append(keys[:len(keys):len(keys)], p[:i].Key())
		}
	}
	return keys
}

// Path returns the expected path with key k.
func (x *PathIndex) Path(k string) graph.Path { return x.paths[k] }

// NewPaths creates a Projector that settles expected paths with produced
// path values and fills the rest with null.
func NewPaths(expected []graph.Path) *Projector[string, graph.PathValue, graph.PathValue] {
	x := NewPathIndex(expected)
	keys := make([]string, len(expected))
	for i, p := range expected {
		keys[i] = p.Key()
	}
	return New(keys,
		func(pv graph.PathValue) []string { return x.Keys(pv.Path) },
		func(pv graph.PathValue) graph.PathValue { return pv },
		func(k string) graph.PathValue { return graph.PathValue{Path: x.Path(k)} },
	)
}

// ProjectPaths is Project specialised to path values.
func ProjectPaths(expected []graph.Path, produced iter.Seq[graph.PathValue]) iter.Seq[graph.PathValue] {
	return func(yield func(graph.PathValue) bool) {
		p := NewPaths(expected)
		for pv := range produced {
			if r, ok := p.Observe(pv); ok && !yield(r) {
				return
			}
		}
		for _, r := range p.Complete() {
			if !yield(r) {
				return
			}
		}
	}
}
