// Package remote exposes a backend.Backend over gRPC and provides a
// backend.Backend that calls one.
//
// The service is graphpath.v1.Backend with two server-streaming methods,
// Search and Resources. Both take a google.protobuf.Struct holding the
// merged requests and stream one Struct per produced path value, so no
// generated code is needed on either side.
package remote

import (
	"context"
	"errors"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/graphpath/internal/backend"
	"github.com/hanpama/graphpath/internal/graph"
	"github.com/hanpama/graphpath/internal/merge"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "graphpath.v1.Backend"

// Method names.
const (
	MethodSearch    = "Search"
	MethodResources = "Resources"
)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*backend.Backend)(nil),
	Streams: []grpc.StreamDesc{
		{StreamName: MethodSearch, Handler: searchHandler, ServerStreams: true},
		{StreamName: MethodResources, Handler: resourcesHandler, ServerStreams: true},
	},
	Metadata: "graphpath/v1/backend.proto",
}

// Register exposes b on s.
func Register(s grpc.ServiceRegistrar, b backend.Backend) {
	s.RegisterService(&serviceDesc, b)
}

func searchHandler(srv any, stream grpc.ServerStream) error {
	reqs, err := recvRequests[merge.MergedSearch](stream)
	if err != nil {
		return err
	}
	return serve(stream, func(emit backend.Emit) error {
		return srv.(backend.Backend).Search(stream.Context(), reqs, emit)
	})
}

func resourcesHandler(srv any, stream grpc.ServerStream) error {
	reqs, err := recvRequests[merge.MergedResource](stream)
	if err != nil {
		return err
	}
	return serve(stream, func(emit backend.Emit) error {
		return srv.(backend.Backend).Resources(stream.Context(), reqs, emit)
	})
}

func recvRequests[T any](stream grpc.ServerStream) ([]T, error) {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return nil, err
	}
	reqs, err := decodeRequests[T](in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return reqs, nil
}

// serve runs call, sending every emitted value on stream. The first send
// failure is reported in place of call's own result.
func serve(stream grpc.ServerStream, call func(backend.Emit) error) error {
	var (
		mu      sync.Mutex
		sendErr error
	)
	err := call(func(pv graph.PathValue) {
		mu.Lock()
		defer mu.Unlock()
		if sendErr != nil {
			return
		}
		msg, err := encodePathValue(pv)
		if err != nil {
			sendErr = status.Errorf(codes.Internal, "encode %s: %v", pv.Path, err)
			return
		}
		sendErr = stream.SendMsg(msg)
	})
	mu.Lock()
	defer mu.Unlock()
	if sendErr != nil {
		return sendErr
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		if _, ok := status.FromError(err); ok {
			return err
		}
		return status.Error(codes.Unknown, err.Error())
	}
}
