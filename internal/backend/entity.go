package backend

import (
	"fmt"

	"github.com/hanpama/graphpath/internal/graph"
	"github.com/hanpama/graphpath/internal/merge"
)

// shareholdings is the number of companies every synthesized entity holds
// shares of.
const shareholdings = 5

func (m *Memory) isEntity(typ string) bool {
	_, err := m.store.Resolve("type", typ)
	return err == nil
}

// declaredFields returns the field names a "type" record lists under
// "field". Entries are refs to [graph, "resource", "field", name].
func (m *Memory) declaredFields(typ string) map[string]bool {
	r, err := m.store.Resolve("type", typ)
	if err != nil {
		return nil
	}
	out := map[string]bool{}
	for _, v := range r.Record.Fields["field"] {
		ref, ok := v.(graph.Ref)
		if !ok || len(ref.Path) == 0 {
			continue
		}
		if name, ok := ref.Path[len(ref.Path)-1].(string); ok {
			out[name] = true
		}
	}
	return out
}

func (m *Memory) typeLabel(typ string) string {
	r, err := m.store.Resolve("type", typ)
	if err != nil {
		return typ
	}
	for _, v := range r.Record.Fields["label"] {
		switch v := v.(type) {
		case string:
			return v
		case graph.Atom:
			return fmt.Sprint(v.Value)
		}
	}
	return typ
}

func (m *Memory) entity(req merge.MergedResource, indices []int, emit Emit) {
	declared := m.declaredFields(req.Type)
	label := m.typeLabel(req.Type)
	for _, id := range req.Resources {
		if req.Label {
			emit(graph.PathValue{Path: graph.ResourceLabelPath(m.graph, req.Type, id), Value: label + " " + id})
		}
		for _, field := range req.Fields {
			if !declared[field] {
				emit(graph.PathValue{Path: graph.ResourceFieldPath(m.graph, req.Type, id, field)})
				continue
			}
			for _, i := range indices {
				if v, ok := m.entityValue(field, i); ok {
					emit(graph.PathValue{Path: graph.ResourceFieldValuePath(m.graph, req.Type, id, field, i), Value: v})
				}
			}
			if req.Count {
				emit(graph.PathValue{Path: graph.ResourceFieldLengthPath(m.graph, req.Type, id, field), Value: entityLength(field)})
			}
		}
	}
}

func (m *Memory) entityValue(field string, i int) (graph.Value, bool) {
	switch field {
	case "birthDate":
		if i == 0 {
			return graph.NewAtom("1980-10-10", "date", ""), true
		}
	case "shareholderOf":
		if i < shareholdings {
			return graph.Ref{Path: graph.ResourcePath(m.graph, "company", fmt.Sprintf("_%d:shareholder", i))}, true
		}
	case "nationality":
		if i == 0 {
			return graph.Ref{Path: graph.ResourcePath(m.graph, "country", "gbr")}, true
		}
	default:
		if i == 0 {
			return graph.Atom{Value: fmt.Sprintf("%s value %d", field, i)}, true
		}
	}
	return nil, false
}

func entityLength(field string) int {
	if field == "shareholderOf" {
		return shareholdings
	}
	return 1
}
