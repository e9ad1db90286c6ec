package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when a model request is received.
// Context carries the request context.
type HTTPStart struct {
	Request *http.Request
}

// HTTPFinish is emitted after the handler completes. Paths is the number of
// path sets in the request and Unhandled the number no route matched.
type HTTPFinish struct {
	Request   *http.Request
	Status    int
	Paths     int
	Unhandled int
	Duration  time.Duration
}
