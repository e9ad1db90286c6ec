package store

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// MaxAliasDepth bounds the number of references followed by Resolve. A
// chain needing MaxAliasDepth or more hops is rejected.
const MaxAliasDepth = 10

var (
	// ErrNotFound is returned when a node, or the target of a reference, does not exist.
	ErrNotFound = errors.New("store: node not found")
	// ErrAliasDepth is returned when an alias chain is too long.
	ErrAliasDepth = errors.New("store: alias chain too deep")
	// ErrAliasCycle is returned when an alias chain revisits a node.
	ErrAliasCycle = errors.New("store: alias cycle")
)

// Resolved is the record at the end of an alias chain, with its own
// coordinates.
type Resolved struct {
	Type   string
	ID     string
	Record Record
}

type nodeKey struct{ typ, id string }

// Resolve follows references from (typ, id) to a Record.
func (s *Store) Resolve(typ, id string) (Resolved, error) {
	at := nodeKey{typ, id}
	seen := map[nodeKey]struct{}{}
	for hops := 0; ; hops++ {
		n, ok := s.nodes[at.typ][at.id]
		if !ok {
			if hops == 0 {
				return Resolved{}, fmt.Errorf("%w: %s/%s", ErrNotFound, at.typ, at.id)
			}
			return Resolved{}, fmt.Errorf("%w: %s/%s (via %s/%s)", ErrNotFound, at.typ, at.id, typ, id)
		}
		switch n := n.(type) {
		case Record:
			return Resolved{Type: at.typ, ID: at.id, Record: n}, nil
		case Reference:
			seen[at] = struct{}{}
			next := nodeKey{n.Type, n.ID}
			if _, loop := seen[next]; loop {
				s.logger.Warn("alias cycle",
					zap.String("type", typ),
					zap.String("id", id),
					zap.Int("hops", hops+1))
				return Resolved{}, fmt.Errorf("%w: %s/%s", ErrAliasCycle, typ, id)
			}
			if hops+1 >= MaxAliasDepth {
				s.logger.Warn("alias chain exceeds max depth",
					zap.String("type", typ),
					zap.String("id", id),
					zap.Int("max_depth", MaxAliasDepth))
				return Resolved{}, fmt.Errorf("%w: %s/%s", ErrAliasDepth, typ, id)
			}
			at = next
		default:
			panic(fmt.Sprintf("store: unknown node type %T", n))
		}
	}
}
