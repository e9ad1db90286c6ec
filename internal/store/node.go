package store

import "github.com/hanpama/graphpath/internal/graph"

// Node is a stored graph node: either a Record or a Reference.
type Node interface {
	isNode()
}

// Record holds field values. Each field is an ordered list of values.
type Record struct {
	Fields map[string][]graph.Value
}

// Reference is an alias for another node.
type Reference struct {
	Type string
	ID   string
}

func (Record) isNode()    {}
func (Reference) isNode() {}
