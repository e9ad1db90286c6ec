package remote

import (
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/hanpama/graphpath/internal/graph"
)

// Requests travel as {"requests": [...]} and every response message is one
// {"path": [...], "value": ...} object, both as google.protobuf.Struct.

type envelope[T any] struct {
	Requests []T `json:"requests"`
}

func encodeRequests[T any](reqs []T) (*structpb.Struct, error) {
	b, err := json.Marshal(envelope[T]{Requests: reqs})
	if err != nil {
		return nil, err
	}
	st := new(structpb.Struct)
	if err := protojson.Unmarshal(b, st); err != nil {
		return nil, err
	}
	return st, nil
}

func decodeRequests[T any](st *structpb.Struct) ([]T, error) {
	b, err := protojson.Marshal(st)
	if err != nil {
		return nil, err
	}
	var env envelope[T]
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode requests: %w", err)
	}
	return env.Requests, nil
}

func encodePathValue(pv graph.PathValue) (*structpb.Struct, error) {
	b, err := json.Marshal(pv)
	if err != nil {
		return nil, err
	}
	st := new(structpb.Struct)
	if err := protojson.Unmarshal(b, st); err != nil {
		return nil, err
	}
	return st, nil
}

func decodePathValue(st *structpb.Struct) (graph.PathValue, error) {
	pv, err := graph.DecodePathValue(st.AsMap())
	if err != nil {
		return graph.PathValue{}, err
	}
	pv.Value = integral(pv.Value)
	return pv, nil
}

// integral restores ints that the wire's double-only number type widened.
func integral(v graph.Value) graph.Value {
	switch x := v.(type) {
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return int(x)
		}
	case graph.Atom:
		x.Value = integral(x.Value)
		return x
	}
	return v
}
