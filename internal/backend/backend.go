// Package backend defines the data service that merged requests are
// dispatched to, and an in-memory implementation of it.
package backend

import (
	"context"

	"github.com/hanpama/graphpath/internal/graph"
	"github.com/hanpama/graphpath/internal/merge"
)

// Emit receives the path values a backend produces. Implementations of
// Backend may call it from several goroutines; it must be safe for
// concurrent use, and it must not be called after the method returns.
type Emit func(graph.PathValue)

// Backend serves merged requests. A backend emits values only for the
// coordinates it knows about; gap filling is the caller's concern.
// Request-level problems (a malformed search id) are emitted as error
// values at the offending path. A returned error means the whole call
// failed.
type Backend interface {
	Search(ctx context.Context, reqs []merge.MergedSearch, emit Emit) error
	Resources(ctx context.Context, reqs []merge.MergedResource, emit Emit) error
}

var (
	// ErrMalformedSearch is the message placed at a search path whose id
	// does not name a type.
	ErrMalformedSearch = graph.Error{Code: "422", Message: "Malformed Search Request"}
	// ErrMalformedRange is the message placed at a path whose range cannot be expanded.
	ErrMalformedRange = graph.Error{Code: "422", Message: "Malformed Range"}
)
