package router

import (
	"context"
	"iter"
	"slices"

	"github.com/hanpama/graphpath/internal/backend"
	"github.com/hanpama/graphpath/internal/batch"
	"github.com/hanpama/graphpath/internal/graph"
	"github.com/hanpama/graphpath/internal/merge"
	"github.com/hanpama/graphpath/internal/pad"
)

// job is the unit of work one path set turns into. A windowed job waits on
// stream; a job served on the spot carries its values directly. tail is the
// remainder of the path set past the matched route, continued through any
// reference the job yields.
type job struct {
	expected []graph.Path
	base     []graph.Path
	stream   *batch.Stream[graph.PathValue]
	window   string
	values   []graph.PathValue
	tail     PathSet
}

// route matches ps against the route table. It reports false when no route
// matches.
func (r *Router) route(ctx context.Context, ps PathSet) ([]job, bool) {
	if len(ps) < 3 || !ps[0].is(r.graph) {
		return nil, false
	}
	switch {
	case ps[1].is("search") && len(ps) >= 4 && ps[2].isKeys():
		return r.routeSearch(ctx, ps)
	case ps[1].is("resource") && len(ps) >= 5 && ps[2].isKeys() && ps[3].isKeys():
		return r.routeResource(ctx, ps)
	case ps[1].is("types"):
		return r.routeTypes(ps)
	case ps[1].is("filter") && len(ps) >= 5 && ps[2].isKeys() && ps[3].isKeys():
		return r.routeFilter(ps)
	}
	return nil, false
}

func withTail(jobs []job, tail PathSet) []job {
	if len(tail) == 0 {
		return jobs
	}
	for i := range jobs {
		jobs[i].tail = tail
	}
	return jobs
}

// [g, "search", {keys}, {ranges}] and [g, "search", {keys}, "length"]
func (r *Router) routeSearch(ctx context.Context, ps PathSet) ([]job, bool) {
	var jobs []job
	switch {
	case ps[3].is("length") && len(ps) == 4:
		for _, id := range ps[2].Keys {
			jobs = append(jobs, job{
				expected: []graph.Path{graph.SearchLengthPath(r.graph, id)},
				base:     []graph.Path{graph.SearchPath(r.graph, id)},
				window:   r.searches.Name(),
				stream:   r.searches.Submit(ctx, merge.SearchRequest{Kind: merge.KindCount, SearchID: id}),
			})
		}
	case ps[3].isRanges():
		indices, err := graph.ExpandLimited(ps[3].Ranges, graph.MaxRangeLength)
		for _, id := range ps[2].Keys {
			base := graph.SearchPath(r.graph, id)
			if err != nil {
				jobs = append(jobs, malformed(base))
				continue
			}
			expected := make([]graph.Path, len(indices))
			for i, idx := range indices {
				expected[i] = graph.SearchIndexPath(r.graph, id, idx)
			}
			jobs = append(jobs, job{
				expected: expected,
				base:     []graph.Path{base},
				window:   r.searches.Name(),
				stream: r.searches.Submit(ctx, merge.SearchRequest{
					Kind:     merge.KindValue,
					SearchID: id,
					Ranges:   slices.Clone(ps[3].Ranges),
				}),
			})
		}
		jobs = withTail(jobs, ps[4:])
	default:
		return nil, false
	}
	return jobs, true
}

// [g, "resource", {keys}, {keys}, "label"]
// [g, "resource", {keys}, {keys}, {keys}, "length"]
// [g, "resource", {keys}, {keys}, {keys}, {ranges}] with an optional "value",
// which may be followed by a tail continued through reference values
func (r *Router) routeResource(ctx context.Context, ps PathSet) ([]job, bool) {
	types, ids := ps[2].Keys, ps[3].Keys
	var bases []graph.Path
	for _, t := range types {
		for _, id := range ids {
			bases = append(bases, graph.ResourcePath(r.graph, t, id))
		}
	}

	if len(ps) == 5 && ps[4].is("label") {
		var expected []graph.Path
		for _, t := range types {
			for _, id := range ids {
				expected = append(expected, graph.ResourceLabelPath(r.graph, t, id))
			}
		}
		return []job{{
			expected: expected,
			base:     bases,
			window:   r.resources.Name(),
			stream:   r.resources.Submit(ctx, merge.ResourceRequest{Kind: merge.KindLabel, Types: types, Resources: ids}),
		}}, true
	}

	if len(ps) < 6 || !ps[4].isKeys() {
		return nil, false
	}
	fields := ps[4].Keys

	if len(ps) == 6 && ps[5].is("length") {
		var expected []graph.Path
		for _, t := range types {
			for _, id := range ids {
				for _, f := range fields {
					expected = append(expected, graph.ResourceFieldLengthPath(r.graph, t, id, f))
				}
			}
		}
		return []job{{
			expected: expected,
			base:     bases,
			window:   r.resources.Name(),
			stream: r.resources.Submit(ctx, merge.ResourceRequest{
				Kind: merge.KindCount, Types: types, Resources: ids, Fields: fields,
			}),
		}}, true
	}

	if !ps[5].isRanges() || (len(ps) >= 7 && !ps[6].is("value")) {
		return nil, false
	}
	var tail PathSet
	if len(ps) > 7 {
		tail = ps[7:]
	}
	indices, err := graph.ExpandLimited(ps[5].Ranges, graph.MaxRangeLength)
	if err != nil {
		var jobs []job
		for _, t := range types {
			for _, id := range ids {
				for _, f := range fields {
					jobs = append(jobs, malformed(graph.ResourceFieldPath(r.graph, t, id, f)))
				}
			}
		}
		return jobs, true
	}
	var expected []graph.Path
	for _, t := range types {
		for _, id := range ids {
			for _, f := range fields {
				for _, i := range indices {
					expected = append(expected, graph.ResourceFieldValuePath(r.graph, t, id, f, i))
				}
			}
		}
	}
	return withTail([]job{{
		expected: expected,
		base:     bases,
		window:   r.resources.Name(),
		stream: r.resources.Submit(ctx, merge.ResourceRequest{
			Kind: merge.KindValue, Types: types, Resources: ids, Fields: fields, Ranges: slices.Clone(ps[5].Ranges),
		}),
	}}, tail), true
}

// [g, "types", {ranges}] and [g, "types", "length"]
func (r *Router) routeTypes(ps PathSet) ([]job, bool) {
	list := r.store.TypeList()
	if ps[2].is("length") && len(ps) == 3 {
		p := graph.TypesLengthPath(r.graph)
		return []job{{
			expected: []graph.Path{p},
			values:   []graph.PathValue{{Path: p, Value: len(list)}},
		}}, true
	}
	if !ps[2].isRanges() {
		return nil, false
	}
	indices, err := graph.ExpandLimited(ps[2].Ranges, graph.MaxRangeLength)
	if err != nil {
		return []job{malformed(graph.Path{r.graph, "types"})}, true
	}
	var present iter.Seq[int] = func(yield func(int) bool) {
		for _, i := range indices {
			if i < len(list) && !yield(i) {
				return
			}
		}
	}
	values := slices.Collect(pad.Project(indices, present,
		func(i int) []int { return []int{i} },
		func(i int) graph.PathValue {
			return graph.PathValue{
				Path:  graph.TypesPath(r.graph, i),
				Value: graph.Ref{Path: graph.ResourcePath(r.graph, "type", list[i])},
			}
		},
		func(i int) graph.PathValue { return graph.PathValue{Path: graph.TypesPath(r.graph, i)} },
	))
	expected := make([]graph.Path, len(indices))
	for i, idx := range indices {
		expected[i] = graph.TypesPath(r.graph, idx)
	}
	return withTail([]job{{expected: expected, values: values}}, ps[3:]), true
}

// [g, "filter", {keys}, {keys}, {ranges}] and [g, "filter", {keys}, {keys}, "length"]
func (r *Router) routeFilter(ps PathSet) ([]job, bool) {
	types, filters := ps[2].Keys, ps[3].Keys
	var jobs []job
	for _, t := range types {
		switch {
		case ps[4].is("length") && len(ps) == 5:
			var j job
			for _, f := range filters {
				j.expected = append(j.expected, graph.FilterLengthPath(r.graph, t, f))
			}
			r.store.FilterLengths(r.graph, t, filters, j.collect)
			jobs = append(jobs, j)
		case ps[4].isRanges():
			indices, err := graph.ExpandLimited(ps[4].Ranges, graph.MaxRangeLength)
			if err != nil {
				for _, f := range filters {
					jobs = append(jobs, malformed(graph.Path{r.graph, "filter", t, f}))
				}
				continue
			}
			var j job
			for _, f := range filters {
				for _, i := range indices {
					j.expected = append(j.expected, graph.FilterPath(r.graph, t, f, i))
				}
			}
			r.store.Filter(r.graph, t, filters, indices, j.collect)
			j.tail = ps[5:]
			jobs = append(jobs, j)
		default:
			return nil, false
		}
	}
	return jobs, true
}

func (j *job) collect(pv graph.PathValue) { j.values = append(j.values, pv) }

// malformed is a job answering base with a 422 error.
func malformed(base graph.Path) job {
	return job{
		expected: []graph.Path{base},
		values:   []graph.PathValue{{Path: base, Value: backend.ErrMalformedRange}},
	}
}
