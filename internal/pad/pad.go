// Package pad guarantees that every expected key of a request receives
// exactly one result: either a produced value that covers it, or a
// synthesized "missing" marker once production is complete.
package pad

import "iter"

// Projector tracks which expected keys are still unsettled while produced
// values stream through it. It is not safe for concurrent use.
type Projector[K comparable, V, R any] struct {
	expected []K
	known    map[K]struct{}
	pending  map[K]struct{}
	keysOf   func(V) []K
	found    func(V) R
	missing  func(K) R
}

// New creates a Projector over expected. keysOf names the keys a produced
// value covers; found and missing render results. Duplicate expected keys
// are settled once.
func New[K comparable, V, R any](expected []K, keysOf func(V) []K, found func(V) R, missing func(K) R) *Projector[K, V, R] {
	p := &Projector[K, V, R]{
		known:   make(map[K]struct{}, len(expected)),
		pending: make(map[K]struct{}, len(expected)),
		keysOf:  keysOf,
		found:   found,
		missing: missing,
	}
	for _, k := range expected {
		if _, dup := p.known[k]; dup {
			continue
		}
		p.known[k] = struct{}{}
		p.pending[k] = struct{}{}
		p.expected = append(p.expected, k)
	}
	return p
}

// Observe settles the keys covered by v. It returns found(v) and true when v
// settles at least one pending key or covers no expected key at all; it
// returns false when every expected key v covers was already settled.
func (p *Projector[K, V, R]) Observe(v V) (R, bool) {
	relevant, settled := false, false
	for _, k := range p.keysOf(v) {
		if _, ok := p.known[k]; !ok {
			continue
		}
		relevant = true
		if _, ok := p.pending[k]; ok {
			delete(p.pending, k)
			settled = true
		}
	}
	if relevant && !settled {
		var zero R
		return zero, false
	}
	return p.found(v), true
}

// Complete settles every remaining key as missing, in expected order.
func (p *Projector[K, V, R]) Complete() []R {
	var out []R
	for _, k := range p.expected {
		if _, ok := p.pending[k]; ok {
			delete(p.pending, k)
			out = append(out, p.missing(k))
		}
	}
	return out
}

// Pending reports how many expected keys are unsettled.
func (p *Projector[K, V, R]) Pending() int { return len(p.pending) }

// Project streams produced through a fresh Projector and then yields the
// missing results.
func Project[K comparable, V, R any](expected []K, produced iter.Seq[V], keysOf func(V) []K, found func(V) R, missing func(K) R) iter.Seq[R] {
	return func(yield func(R) bool) {
		p := New(expected, keysOf, found, missing)
		for v := range produced {
			if r, ok := p.Observe(v); ok && !yield(r) {
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
