package grpctp

import (
	"context"
	"strings"
	"sync"
)

// EndpointProvider lists reachable endpoints (host:port) for a
// fully-qualified gRPC service name such as "graphpath.v1.Backend".
// Implementations must be safe for concurrent use and return at least one
// endpoint or an error.
type EndpointProvider interface {
	Endpoints(ctx context.Context, service string) ([]string, error)
}

// StaticEndpoints is a provider backed by an in-memory map from service
// name to endpoints.
type StaticEndpoints struct {
	mu   sync.RWMutex
	data map[string][]string
}

func NewStaticEndpoints(m map[string][]string) *StaticEndpoints {
	cp := make(map[string][]string, len(m))
	for k, v := range m {
		cp[k] = append([]string(nil), v...)
	}
	return &StaticEndpoints{data: cp}
}

// ParseEndpoints builds a StaticEndpoints for service from a comma
// separated endpoint list, ignoring blanks.
func ParseEndpoints(service, list string) *StaticEndpoints {
	var eps []string
	for _, ep := range strings.Split(list, ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			eps = append(eps, ep)
		}
	}
	return NewStaticEndpoints(map[string][]string{service: eps})
}

func (s *StaticEndpoints) Endpoints(_ context.Context, service string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.data[service]
	if len(arr) == 0 {
		return nil, ErrNoEndpoints
	}
	return append([]string(nil), arr...), nil
}
