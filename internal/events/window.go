package events

import "time"

// WindowFlush is emitted when a coalescing window closes, before its merged
// request is dispatched.
type WindowFlush struct {
	Window   string
	Seq      uint64
	Requests int
	Groups   int
}

// WindowDone is emitted after a window's dispatch completes.
type WindowDone struct {
	Window   string
	Seq      uint64
	Requests int
	Entries  int
	Err      error
	Duration time.Duration
}
