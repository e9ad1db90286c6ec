package events

import (
	"time"

	"google.golang.org/grpc/codes"
)

// GRPCClientStart is emitted before a streaming call to the backing service.
type GRPCClientStart struct {
	Service string
	Method  string
	Target  string
}

// GRPCClientFinish is emitted once the response stream is drained or fails.
type GRPCClientFinish struct {
	Service  string
	Method   string
	Target   string
	Messages int
	Code     codes.Code
	Err      error
	Duration time.Duration
}
