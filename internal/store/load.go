package store

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hanpama/graphpath/internal/graph"
)

//go:embed seed.yaml
var seed []byte

// seedFile is the on-disk layout of seed data.
//
//	graph: juno
//	types: [company, person]
//	resources:
//	  field:
//	    name:
//	      label: [Name]
//	  attribute:
//	    name: {$ref: [field, name]}
type seedFile struct {
	Graph     string                               `yaml:"graph"`
	Types     []string                             `yaml:"types"`
	Resources map[string]map[string]map[string]any `yaml:"resources"`
}

// Load reads seed data from r.
func Load(r io.Reader, opts ...Option) (*Store, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("store: decode seed: %w", err)
	}
	if f.Graph == "" {
		f.Graph = "juno"
	}
	nodes := make(map[string]map[string]Node, len(f.Resources))
	for typ, byID := range f.Resources {
		nodes[typ] = make(map[string]Node, len(byID))
		for id, raw := range byID {
			n, err := decodeNode(raw)
			if err != nil {
				return nil, fmt.Errorf("store: %s/%s: %w", typ, id, err)
			}
			nodes[typ][id] = n
		}
	}
	return New(f.Graph, f.Types, nodes, opts...), nil
}

// LoadFile reads seed data from the YAML file at path.
func LoadFile(path string, opts ...Option) (*Store, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	defer fh.Close()
	return Load(fh, opts...)
}

// Default returns the store built from the embedded seed data.
func Default(opts ...Option) (*Store, error) {
	return Load(bytes.NewReader(seed), opts...)
}

func decodeNode(raw map[string]any) (Node, error) {
	if target, ok := raw["$ref"]; ok {
		if len(raw) != 1 {
			return nil, fmt.Errorf("$ref node has extra keys")
		}
		pair, ok := target.([]any)
		if !ok || len(pair) != 2 {
			return nil, fmt.Errorf("$ref must be [type, id]")
		}
		typ, ok1 := pair[0].(string)
		id, ok2 := pair[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("$ref must be [type, id]")
		}
		return Reference{Type: typ, ID: id}, nil
	}
	rec := Record{Fields: make(map[string][]graph.Value, len(raw))}
	for field, v := range raw {
		items, ok := v.([]any)
		if !ok {
			items = []any{v}
		}
		vals := make([]graph.Value, len(items))
		for i, item := range items {
			gv, err := graph.DecodeValue(item)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
			}
			vals[i] = gv
		}
		rec.Fields[field] = vals
	}
	return rec, nil
}
