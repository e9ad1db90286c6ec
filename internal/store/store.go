// Package store is a read-only, in-memory graph of typed nodes. Nodes are
// addressed by (type, id); a node is either a record of fields or an alias
// for another node, and lookups follow aliases transparently.
package store

import (
	"maps"
	"slices"

	"go.uber.org/zap"
)

// Store is safe for concurrent use once constructed.
type Store struct {
	graph  string
	types  []string
	nodes  map[string]map[string]Node
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for alias resolution warnings.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.logger = l } }

// New builds a Store. types is the ordered list of searchable entity types
// served by TypeList. nodes is owned by the Store afterwards.
func New(graphName string, types []string, nodes map[string]map[string]Node, opts ...Option) *Store {
	s := &Store{
		graph:  graphName,
		types:  slices.Clone(types),
		nodes:  nodes,
		logger: zap.NewNop(),
	}
	if s.nodes == nil {
		s.nodes = map[string]map[string]Node{}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Graph returns the graph name the seed data was written for.
func (s *Store) Graph() string { return s.graph }

// TypeList returns the ordered list of searchable entity types.
func (s *Store) TypeList() []string { return slices.Clone(s.types) }

// Has reports whether any node of type typ is stored.
func (s *Store) Has(typ string) bool {
	_, ok := s.nodes[typ]
	return ok
}

// Types returns the stored node types in sorted order.
func (s *Store) Types() []string {
	return slices.Sorted(maps.Keys(s.nodes))
}

// IDs returns the ids of typ in sorted order.
func (s *Store) IDs(typ string) []string {
	return slices.Sorted(maps.Keys(s.nodes[typ]))
}

// Node returns the raw node at (typ, id) without following aliases.
func (s *Store) Node(typ, id string) (Node, bool) {
	n, ok := s.nodes[typ][id]
	return n, ok
}
