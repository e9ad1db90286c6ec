package remote

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// CallRecord captures a single Stream invocation for assertions.
type CallRecord struct {
	// FullMethod is "/<service>/<method>".
	FullMethod string
	// Request is a deep-cloned snapshot of the input.
	Request *structpb.Struct
}

// MockTransport implements Transport. Successive calls replay the seeded
// response streams in order while recording every call.
type MockTransport struct {
	mu        sync.Mutex
	responses [][]*structpb.Struct
	errs      []error
	idx       int
	calls     []CallRecord
}

// NewMockTransport creates a MockTransport whose i-th call streams
// responses[i].
func NewMockTransport(responses ...[]*structpb.Struct) *MockTransport {
	return &MockTransport{responses: append([][]*structpb.Struct(nil), responses...)}
}

// NewMockTransportWithErrors also seeds per-call errors. For call i, the
// responses are streamed first and then errs[i], if non-nil, is returned.
func NewMockTransportWithErrors(responses [][]*structpb.Struct, errs []error) *MockTransport {
	return &MockTransport{
		responses: append([][]*structpb.Struct(nil), responses...),
		errs:      append([]error(nil), errs...),
	}
}

// Stream records the invocation and replays the next queued response stream.
func (m *MockTransport) Stream(ctx context.Context, service, method string, req *structpb.Struct, recv func(*structpb.Struct) error) error {
	m.mu.Lock()
	m.calls = append(m.calls, CallRecord{
		FullMethod: fmt.Sprintf("/%s/%s", service, method),
		Request:    proto.Clone(req).(*structpb.Struct),
	})
	i := m.idx
	m.idx++
	m.mu.Unlock()

	if i >= len(m.responses) && i >= len(m.errs) {
		return fmt.Errorf("mock transport: no more responses")
	}
	if i < len(m.responses) {
		for _, msg := range m.responses[i] {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := recv(msg); err != nil {
				return err
			}
		}
	}
	if i < len(m.errs) {
		return m.errs[i]
	}
	return nil
}

// Calls returns a snapshot of recorded invocations.
func (m *MockTransport) Calls() []CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CallRecord(nil), m.calls...)
}
