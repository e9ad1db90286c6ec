// Package batch coalesces requests issued close together into a single
// merged dispatch.
//
// A Window is opened by the first Submit after the previous one flushed. It
// collects requests until its scheduled flush fires, then merges them once,
// dispatches once, and multicasts the dispatch's output to every submitter
// through one shared Stream. Windows never overlap: every submit lands in
// exactly one of them.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	eventbus "github.com/hanpama/graphpath/internal/eventbus"
	events "github.com/hanpama/graphpath/internal/events"
	reqid "github.com/hanpama/graphpath/internal/reqid"
)

// MergeFunc folds the requests of one window into merged groups.
type MergeFunc[Req, M any] func(reqs []Req) []M

// DispatchFunc serves the merged groups of one window, calling emit for each
// produced value. emit is safe for concurrent use.
type DispatchFunc[M, T any] func(ctx context.Context, merged []M, emit func(T)) error

// Scheduler arranges for f to run once after d and returns a function that
// cancels it, reporting whether it was still pending. f must not be called
// synchronously from within the Scheduler.
type Scheduler func(d time.Duration, f func()) (cancel func() bool)

// TimerScheduler is the default Scheduler, backed by time.AfterFunc.
func TimerScheduler(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Options configures a Window.
//
// Defaults:
// - Wait:      1ms, measured from the first submit of a window
// - Scheduler: TimerScheduler
// - MaxBatch:  0 (unbounded)
// - Logger:    zap.NewNop()
type Options struct {
	Wait      time.Duration
	Scheduler Scheduler
	MaxBatch  int
	Logger    *zap.Logger
}

// Option mutates Options.
type Option func(*Options)

func WithWait(d time.Duration) Option   { return func(o *Options) { o.Wait = d } }
func WithScheduler(s Scheduler) Option { return func(o *Options) { o.Scheduler = s } }
func WithMaxBatch(n int) Option        { return func(o *Options) { o.MaxBatch = n } }
func WithLogger(l *zap.Logger) Option  { return func(o *Options) { o.Logger = l } }

func defaultOptions() Options {
	return Options{Wait: time.Millisecond}
}

// Window is a coalescing window for one request kind.
type Window[Req, M, T any] struct {
	name     string
	merge    MergeFunc[Req, M]
	dispatch DispatchFunc[M, T]
	opts     Options

	mu   sync.Mutex
	seq  uint64
	open *collector[Req, T]
}

type collector[Req, T any] struct {
	seq    uint64
	ctx    context.Context
	reqs   []Req
	stream *Stream[T]
	cancel func() bool
}

// New creates a Window. name labels its events and log lines.
func New[Req, M, T any](name string, merge MergeFunc[Req, M], dispatch DispatchFunc[M, T], opts ...Option) *Window[Req, M, T] {
	o := defaultOptions()
	for _, f := range opts {
		f(&o)
	}
	if o.Scheduler == nil {
		o.Scheduler = TimerScheduler
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return &Window[Req, M, T]{name: name, merge: merge, dispatch: dispatch, opts: o}
}

// Name returns the window's name.
func (w *Window[Req, M, T]) Name() string { return w.name }

// Submit adds req to the open window, opening one if needed, and returns the
// stream that will carry the window's output. Every submit of the same
// window receives the same *Stream.
//
// The dispatch runs under the context of the submit that opened the window,
// stripped of its cancellation. ctx is not consulted afterwards: a caller
// that gives up simply stops reading the stream.
func (w *Window[Req, M, T]) Submit(ctx context.Context, req Req) *Stream[T] {
	w.mu.Lock()
	c := w.open
	if c == nil {
		w.seq++
		c = &collector[Req, T]{
			seq:    w.seq,
			ctx:    context.WithoutCancel(ctx),
			stream: newStream[T](),
		}
		w.open = c
		c.cancel = w.opts.Scheduler(w.opts.Wait, func() { w.expire(c) })
	}
	c.reqs = append(c.reqs, req)
	full := w.opts.MaxBatch > 0 && len(c.reqs) >= w.opts.MaxBatch
	if full {
		w.open = nil
	}
	w.mu.Unlock()

	if full {
		c.cancel()
		w.run(c)
	}
	return c.stream
}

// Flush closes the open window now instead of waiting for its timer.
func (w *Window[Req, M, T]) Flush() {
	w.mu.Lock()
	c := w.open
	w.open = nil
	w.mu.Unlock()
	if c == nil {
		return
	}
	c.cancel()
	w.run(c)
}

// Pending reports the number of requests collected by the open window.
func (w *Window[Req, M, T]) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.open == nil {
		return 0
	}
	return len(w.open.reqs)
}

func (w *Window[Req, M, T]) expire(c *collector[Req, T]) {
	w.mu.Lock()
	if w.open != c {
		// already flushed by MaxBatch or Flush
		w.mu.Unlock()
		return
	}
	w.open = nil
	w.mu.Unlock()
	w.run(c)
}

func (w *Window[Req, M, T]) run(c *collector[Req, T]) {
	go w.dispatchWindow(c)
}

func (w *Window[Req, M, T]) dispatchWindow(c *collector[Req, T]) {
	ctx := c.ctx
	merged := w.merge(c.reqs)
	eventbus.Publish(ctx, events.WindowFlush{
		Window:   w.name,
		Seq:      c.seq,
		Requests: len(c.reqs),
		Groups:   len(merged),
	})

	var (
		mu      sync.Mutex
		entries int
	)
	emit := func(v T) {
		mu.Lock()
		entries++
		mu.Unlock()
		c.stream.push(v)
	}

	start := time.Now()
	err := w.call(ctx, merged, emit)
	if err != nil {
		w.opts.Logger.Warn("window dispatch failed",
			zap.String("window", w.name),
			zap.Uint64("seq", c.seq),
			zap.Int("requests", len(c.reqs)),
			zap.String("request_id", reqid.String(ctx)),
			zap.Error(err))
	}

	mu.Lock()
	n := entries
	mu.Unlock()
	eventbus.Publish(ctx, events.WindowDone{
		Window:   w.name,
		Seq:      c.seq,
		Requests: len(c.reqs),
		Entries:  n,
		Err:      err,
		Duration: time.Since(start),
	})
	c.stream.close(err)
}

func (w *Window[Req, M, T]) call(ctx context.Context, merged []M, emit func(T)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch: %s dispatch panicked: %v", w.name, r)
		}
	}()
	return w.dispatch(ctx, merged, emit)
}
