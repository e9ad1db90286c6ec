// Package router turns path sets into windowed backend requests and
// assembles each caller's answer.
//
// Search and resource path sets are decomposed into small requests and
// submitted to one coalescing window per kind, so path sets issued close
// together (by one caller or many) share a single merged backend call.
// Each caller then keeps only the results its own path sets cover, with
// every requested coordinate answered exactly once. Static routes (types,
// filter) are answered on the spot from the store.
package router

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hanpama/graphpath/internal/backend"
	"github.com/hanpama/graphpath/internal/batch"
	"github.com/hanpama/graphpath/internal/graph"
	"github.com/hanpama/graphpath/internal/merge"
	"github.com/hanpama/graphpath/internal/pad"
	reqid "github.com/hanpama/graphpath/internal/reqid"
	"github.com/hanpama/graphpath/internal/store"
)

// ErrInternal is placed at the base paths of requests whose backend call failed.
var ErrInternal = graph.Error{Code: "500", Message: "Internal Server Error"}

// Router is safe for concurrent use.
type Router struct {
	graph   string
	store   *store.Store
	backend backend.Backend
	logger  *zap.Logger

	searches  *batch.Window[merge.SearchRequest, merge.MergedSearch, graph.PathValue]
	resources *batch.Window[merge.ResourceRequest, merge.MergedResource, graph.PathValue]
}

// Options configures a Router.
type Options struct {
	// Graph is the first path segment served. Defaults to the store's graph.
	Graph string
	// Window options apply to both coalescing windows.
	Window []batch.Option
	Logger *zap.Logger
}

// Option mutates Options.
type Option func(*Options)

func WithGraph(name string) Option    { return func(o *Options) { o.Graph = name } }
func WithLogger(l *zap.Logger) Option { return func(o *Options) { o.Logger = l } }
func WithWindowOptions(opts ...batch.Option) Option {
	return func(o *Options) { o.Window = append(o.Window, opts...) }
}

// New creates a Router dispatching to b, with static routes served from s.
func New(b backend.Backend, s *store.Store, opts ...Option) *Router {
	o := Options{Graph: s.Graph(), Logger: zap.NewNop()}
	for _, f := range opts {
		f(&o)
	}
	r := &Router{graph: o.Graph, store: s, backend: b, logger: o.Logger}
	wopts := append([]batch.Option{batch.WithLogger(o.Logger)}, o.Window...)
	r.searches = batch.New("search", merge.Search, r.dispatchSearch, wopts...)
	r.resources = batch.New("resource", merge.Resources, r.dispatchResources, wopts...)
	return r
}

// Result is the answer to one Get.
type Result struct {
	Values    []graph.PathValue
	Unhandled []PathSet
}

// MaxRefFollow bounds the chain of references one Get continues through.
const MaxRefFollow = 5

// Get resolves sets. Every coordinate named by a matched path set receives
// exactly one value; null marks a coordinate known to be absent. A path set
// reaching past a reference continues at the reference's target. Path sets
// matching no route are returned unhandled. The only error is ctx's.
func (r *Router) Get(ctx context.Context, sets []PathSet) (Result, error) {
	return r.get(ctx, sets, 0)
}

func (r *Router) get(ctx context.Context, sets []PathSet, hops int) (Result, error) {
	var (
		res  Result
		jobs []job
	)
	for _, ps := range sets {
		js, ok := r.route(ctx, ps)
		if !ok {
			res.Unhandled = append(res.Unhandled, ps)
			continue
		}
		jobs = append(jobs, js...)
	}

	// Several jobs usually share a window; each stream is read once.
	type consumer struct {
		stream   *batch.Stream[graph.PathValue]
		window   string
		expected []graph.Path
		base     []graph.Path
		values   []graph.PathValue
	}
	var (
		consumers []*consumer
		byStream  = map[*batch.Stream[graph.PathValue]]*consumer{}
	)
	for _, j := range jobs {
		if j.stream == nil {
			res.Values = append(res.Values, slices.Collect(pad.ProjectPaths(j.expected, slices.Values(j.values)))...)
			continue
		}
		c := byStream[j.stream]
		if c == nil {
			c = &consumer{stream: j.stream, window: j.window}
			byStream[j.stream] = c
			consumers = append(consumers, c)
		}
		c.expected = append(c.expected, j.expected...)
		c.base = append(c.base, j.base...)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range consumers {
		g.Go(func() error {
			values, err := r.consume(gctx, c.stream, c.expected)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Error("backend request failed",
					zap.String("request_id", reqid.String(ctx)),
					zap.String("window", c.window),
					zap.Int("paths", len(c.expected)),
					zap.Error(err))
				values = failed(c.base)
			}
			c.values = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	for _, c := range consumers {
		res.Values = append(res.Values, c.values...)
	}

	next := follow(jobs, res.Values)
	if len(next) == 0 {
		return res, nil
	}
	if hops >= MaxRefFollow {
		r.logger.Warn("reference chain too long",
			zap.String("request_id", reqid.String(ctx)),
			zap.Int("path_sets", len(next)))
		res.Unhandled = append(res.Unhandled, next...)
		return res, nil
	}
	more, err := r.get(ctx, next, hops+1)
	if err != nil {
		return Result{}, err
	}
	res.Values = append(res.Values, more.Values...)
	res.Unhandled = append(res.Unhandled, more.Unhandled...)
	return res, nil
}

// follow returns the path sets reached by continuing each job's tail at the
// references among values.
func follow(jobs []job, values []graph.PathValue) []PathSet {
	var (
		out  []PathSet
		seen = map[string]bool{}
	)
	for _, j := range jobs {
		if len(j.tail) == 0 {
			continue
		}
		idx := pad.NewPathIndex(j.expected)
		for _, pv := range values {
			ref, ok := pv.Value.(graph.Ref)
			if !ok || len(idx.Keys(pv.Path)) == 0 {
				continue
			}
			k := ref.Path.Key() + fmt.Sprint(j.tail)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, continued(ref.Path, j.tail))
		}
	}
	return out
}

// consume reads stream, keeping the values that cover expected and
// filling the coordinates the stream never answered.
func (r *Router) consume(ctx context.Context, stream *batch.Stream[graph.PathValue], expected []graph.Path) ([]graph.PathValue, error) {
	idx := pad.NewPathIndex(expected)
	p := pad.NewPaths(expected)
	var out []graph.PathValue
	err := stream.Each(ctx, func(pv graph.PathValue) error {
		if len(idx.Keys(pv.Path)) == 0 {
			return nil
		}
		if v, ok := p.Observe(pv); ok {
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return append(out, p.Complete()...), nil
}

// failed answers every distinct base path with ErrInternal.
func failed(base []graph.Path) []graph.PathValue {
	seen := map[string]bool{}
	var out []graph.PathValue
	for _, b := range base {
		if k := b.Key(); !seen[k] {
			seen[k] = true
			out = append(out, graph.PathValue{Path: b, Value: ErrInternal})
		}
	}
	return out
}

// Pending reports the number of requests waiting in open windows.
func (r *Router) Pending() int { return r.searches.Pending() + r.resources.Pending() }

// Flush closes both open windows now.
func (r *Router) Flush() {
	r.searches.Flush()
	r.resources.Flush()
}

func (r *Router) dispatchSearch(ctx context.Context, merged []merge.MergedSearch, emit func(graph.PathValue)) error {
	var expected []graph.Path
	for _, m := range merged {
		indices, err := graph.ExpandAll(m.Ranges)
		if err != nil {
			return err
		}
		for _, i := range indices {
			expected = append(expected, graph.SearchIndexPath(r.graph, m.SearchID, i))
		}
		if m.Count {
			expected = append(expected, graph.SearchLengthPath(r.graph, m.SearchID))
		}
	}
	return padded(expected, emit, func(e backend.Emit) error {
		return r.backend.Search(ctx, merged, e)
	})
}

func (r *Router) dispatchResources(ctx context.Context, merged []merge.MergedResource, emit func(graph.PathValue)) error {
	var expected []graph.Path
	for _, m := range merged {
		indices, err := graph.ExpandAll(m.Ranges)
		if err != nil {
			return err
		}
		for _, id := range m.Resources {
			for _, f := range m.Fields {
				for _, i := range indices {
					expected = append(expected, graph.ResourceFieldValuePath(r.graph, m.Type, id, f, i))
				}
				if m.Count {
					expected = append(expected, graph.ResourceFieldLengthPath(r.graph, m.Type, id, f))
				}
			}
			if m.Label {
				expected = append(expected, graph.ResourceLabelPath(r.graph, m.Type, id))
			}
		}
	}
	return padded(expected, emit, func(e backend.Emit) error {
		return r.backend.Resources(ctx, merged, e)
	})
}

// padded runs call, forwarding its values through a projector over
// expected, then fills whatever call left unanswered with null.
func padded(expected []graph.Path, emit func(graph.PathValue), call func(backend.Emit) error) error {
	var mu sync.Mutex
	p := pad.NewPaths(expected)
	err := call(func(pv graph.PathValue) {
		mu.Lock()
		v, ok := p.Observe(pv)
		mu.Unlock()
		if ok {
			emit(v)
		}
	})
	if err != nil {
		return err
	}
	mu.Lock()
	missing := p.Complete()
	mu.Unlock()
	for _, v := range missing {
		emit(v)
	}
	return nil
}
