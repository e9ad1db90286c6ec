package batch

import (
	"context"
	"sync"
)

// Stream is a replaying multicast of the values produced by one dispatch.
// Values are buffered as they are emitted; every consumer sees all of them
// from the start, no matter when it begins reading. The producer runs once
// regardless of how many consumers there are.
type Stream[T any] struct {
	mu      sync.Mutex
	items   []T
	done    bool
	err     error
	changed chan struct{}
}

func newStream[T any]() *Stream[T] {
	return &Stream[T]{changed: make(chan struct{})}
}

func (s *Stream[T]) push(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.items = append(s.items, v)
	s.notify()
}

func (s *Stream[T]) close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.done = true
	s.err = err
	s.notify()
}

// notify wakes every waiting consumer. Callers hold s.mu.
func (s *Stream[T]) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Each calls fn for every value of the stream in emission order, blocking
// for values not yet produced. It returns the stream's terminal error, the
// first error returned by fn, or ctx.Err() if ctx ends first. Cancelling
// ctx only stops this consumer.
func (s *Stream[T]) Each(ctx context.Context, fn func(T) error) error {
	next := 0
	for {
		s.mu.Lock()
		n := len(s.items)
		items := s.items[next:n:n]
		done, err, changed := s.done, s.err, s.changed
		s.mu.Unlock()

		for _, v := range items {
			if ferr := fn(v); ferr != nil {
				return ferr
			}
		}
		next = n
		if len(items) > 0 {
			continue
		}
		if done {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}

// Collect waits for the stream to finish and returns all of its values.
// On error the values received so far are returned with it.
func (s *Stream[T]) Collect(ctx context.Context) ([]T, error) {
	var out []T
	err := s.Each(ctx, func(v T) error {
		out = append(out, v)
		return nil
	})
	return out, err
}

// Done reports whether the stream has finished, and with what error.
func (s *Stream[T]) Done() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done, s.err
}
