// Package reqid tags a context with the id of the model request it serves.
// Coalesced dispatches inherit the id of the request that opened the window.
package reqid

import (
	"context"
	"math/rand/v2"
	"strconv"
)

type key struct{}

// NewContext returns a copy of parent with a new random request ID stored.
// It also returns the generated ID.
func NewContext(parent context.Context) (context.Context, int64) {
	id := rand.Int64()
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the request ID from ctx.
func FromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(key{}).(int64)
	return id, ok
}

// String renders the request id of ctx for log fields, or "" when absent.
func String(ctx context.Context) string {
	id, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return strconv.FormatInt(id, 36)
}
