package remote

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"
)

// Transport opens server-streaming calls to the backing service.
// Implementations MUST be safe for concurrent use: the search and resource
// windows dispatch independently.
//
// Provided implementations:
// - internal/grpctp.Transport: pooled client with endpoint discovery and timeouts
// - MockTransport: recorded calls and canned responses for tests
type Transport interface {
	// Stream sends req to service/method and calls recv for every response
	// message until the server ends the stream. A non-nil error from recv
	// aborts the call and is returned.
	Stream(ctx context.Context, service, method string, req *structpb.Struct, recv func(*structpb.Struct) error) error
}
