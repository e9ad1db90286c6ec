package graph

import (
	"encoding/json"
	"fmt"
)

// Value is the payload at a graph path. It is one of:
//   - nil: explicit absence ("known null")
//   - a literal: string, bool, int, int64, float64
//   - Atom, Ref or Error
type Value any

// PathValue is one entry of a result stream.
type PathValue struct {
	Path  Path  `json:"path"`
	Value Value `json:"value"`
}

// Atom wraps a literal with optional type and language metadata.
type Atom struct {
	Value    any
	DataType string
	Language string
}

// NewAtom builds an Atom. The implicit "string" data type is dropped.
func NewAtom(value any, dataType, language string) Atom {
	if dataType == "string" {
		dataType = ""
	}
	return Atom{Value: value, DataType: dataType, Language: language}
}

func (a Atom) MarshalJSON() ([]byte, error) {
	m := map[string]any{"$type": "atom"}
	if a.Value != nil {
		m["value"] = a.Value
	}
	if a.DataType != "" {
		m["$dataType"] = a.DataType
	}
	if a.Language != "" {
		m["$language"] = a.Language
	}
	return json.Marshal(m)
}

// Ref points at another location in the graph.
type Ref struct {
	Path Path
}

func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"$type": "ref", "value": []PathElement(r.Path)})
}

// Error is a typed error placed at a path instead of a value.
type Error struct {
	Code    string
	Message string
}

func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"$type": "error",
		"value": map[string]string{"code": e.Code, "message": e.Message},
	})
}

func (e Error) Error() string { return e.Code + ": " + e.Message }

// DecodeValue converts a generic decoded document (JSON or YAML) into a
// Value, recognising the $type sentinel objects emitted by MarshalJSON.
func DecodeValue(v any) (Value, error) {
	switch x := v.(type) {
	case nil, string, bool, int, int64, float64:
		return x, nil
	case map[string]any:
		return decodeSentinel(x)
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}

func decodeSentinel(m map[string]any) (Value, error) {
	typ, _ := m["$type"].(string)
	switch typ {
	case "atom":
		a := Atom{Value: m["value"]}
		a.DataType, _ = m["$dataType"].(string)
		a.Language, _ = m["$language"].(string)
		if a.Value == nil && a.DataType == "" && a.Language == "" {
			return nil, nil
		}
		return a, nil
	case "ref":
		p, err := DecodePath(m["value"])
		if err != nil {
			return nil, fmt.Errorf("ref: %w", err)
		}
		return Ref{Path: p}, nil
	case "error":
		body, _ := m["value"].(map[string]any)
		e := Error{}
		e.Code, _ = body["code"].(string)
		e.Message, _ = body["message"].(string)
		return e, nil
	default:
		return nil, fmt.Errorf("unknown sentinel $type %q", typ)
	}
}

// DecodePathValue decodes a {"path": [...], "value": ...} document.
func DecodePathValue(m map[string]any) (PathValue, error) {
	p, err := DecodePath(m["path"])
	if err != nil {
		return PathValue{}, err
	}
	v, err := DecodeValue(m["value"])
	if err != nil {
		return PathValue{}, fmt.Errorf("%s: %w", p, err)
	}
	return PathValue{Path: p, Value: v}, nil
}
