package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hanpama/graphpath/internal/graph"
	"github.com/hanpama/graphpath/internal/merge"
	"github.com/hanpama/graphpath/internal/store"
)

// Memory is a Backend over a store.Store.
//
// Types present in the store are served from it. Entity types declared by
// the store's "type" records (company, person, ...) have no stored
// instances; their search results and field values are synthesized.
// Anything else is unknown and yields null at the resource path.
type Memory struct {
	graph   string
	store   *store.Store
	total   int
	latency time.Duration
	logger  *zap.Logger
}

// Option configures a Memory backend.
type Option func(*Memory)

func WithGraph(name string) Option       { return func(m *Memory) { m.graph = name } }
func WithSearchTotal(n int) Option       { return func(m *Memory) { m.total = n } }
func WithLatency(d time.Duration) Option { return func(m *Memory) { m.latency = d } }
func WithLogger(l *zap.Logger) Option    { return func(m *Memory) { m.logger = l } }

// DefaultSearchTotal is the number of results every entity search reports.
const DefaultSearchTotal = 100

// NewMemory creates a Memory backend over s. The graph name defaults to
// the one recorded in the store's seed data.
func NewMemory(s *store.Store, opts ...Option) *Memory {
	m := &Memory{
		graph:  s.Graph(),
		store:  s,
		total:  DefaultSearchTotal,
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

var _ Backend = (*Memory)(nil)

// Search serves search requests. A search id is a query string whose "type"
// parameter names the type searched.
func (m *Memory) Search(ctx context.Context, reqs []merge.MergedSearch, emit Emit) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	for _, req := range reqs {
		q, err := url.ParseQuery(req.SearchID)
		typ := q.Get("type")
		if err != nil || typ == "" {
			m.logger.Debug("malformed search", zap.String("search", req.SearchID))
			emit(graph.PathValue{Path: graph.SearchPath(m.graph, req.SearchID), Value: ErrMalformedSearch})
			continue
		}
		indices, err := graph.ExpandAll(req.Ranges)
		if err != nil {
			emit(graph.PathValue{Path: graph.SearchPath(m.graph, req.SearchID), Value: ErrMalformedRange})
			continue
		}

		ids, total := m.searchSpace(typ)
		for _, i := range indices {
			if i < total {
				emit(graph.PathValue{
					Path:  graph.SearchIndexPath(m.graph, req.SearchID, i),
					Value: graph.Ref{Path: graph.ResourcePath(m.graph, typ, ids(i))},
				})
			}
		}
		if req.Count {
			emit(graph.PathValue{Path: graph.SearchLengthPath(m.graph, req.SearchID), Value: total})
		}
	}
	return nil
}

// searchSpace returns the id at each position of a search over typ, and the
// number of results.
func (m *Memory) searchSpace(typ string) (func(int) string, int) {
	if m.store.Has(typ) {
		ids := m.store.IDs(typ)
		return func(i int) string { return ids[i] }, len(ids)
	}
	return func(i int) string { return "_" + strconv.Itoa(i) }, m.total
}

// Resources serves resource requests. Each type group is served on its own
// goroutine.
func (m *Memory) Resources(ctx context.Context, reqs []merge.MergedResource, emit Emit) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	var mu sync.Mutex
	locked := func(pv graph.PathValue) {
		mu.Lock()
		defer mu.Unlock()
		emit(pv)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, req := range reqs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return m.resource(req, locked)
		})
	}
	return g.Wait()
}

func (m *Memory) resource(req merge.MergedResource, emit Emit) error {
	indices, err := graph.ExpandAll(req.Ranges)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", req.Type, err)
	}
	emitStore := store.Emit(emit)

	switch {
	case m.store.Has(req.Type):
		if len(indices) > 0 {
			m.store.FieldValues(m.graph, req.Type, req.Resources, req.Fields, indices, emitStore)
		}
		if req.Count {
			m.store.FieldLengths(m.graph, req.Type, req.Resources, req.Fields, emitStore)
		}
		if req.Label {
			m.store.Labels(m.graph, req.Type, req.Resources, emitStore)
		}
	case m.isEntity(req.Type):
		m.entity(req, indices, emit)
	default:
		for _, id := range req.Resources {
			emit(graph.PathValue{Path: graph.ResourcePath(m.graph, req.Type, id)})
		}
	}
	return nil
}

func (m *Memory) wait(ctx context.Context) error {
	if m.latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(m.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
