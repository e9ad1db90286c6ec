package graph

import "strconv"

// JSONGraph folds path values into a nested document keyed by path segment.
// Explicit absence is rendered as an empty atom so that the consumer can tell
// "known null" from "never requested". When a value lands on a path that
// already holds a shallower leaf, the shallower leaf wins.
func JSONGraph(pvs []PathValue) map[string]any {
	root := map[string]any{}
	for _, pv := range pvs {
		if len(pv.Path) == 0 {
			continue
		}
		insert(root, pv.Path, leaf(pv.Value))
	}
	return root
}

func insert(node map[string]any, p Path, v any) {
	for i, el := range p {
		k := segment(el)
		if i == len(p)-1 {
			node[k] = v
			return
		}
		child, exists := node[k]
		if !exists {
			next := map[string]any{}
			node[k] = next
			node = next
			continue
		}
		next, ok := child.(map[string]any)
		if !ok {
			return
		}
		node = next
	}
}

func segment(el PathElement) string {
	switch v := el.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	default:
		return Path{el}.Key()
	}
}

func leaf(v Value) any {
	if v == nil {
		return Atom{}
	}
	return v
}
