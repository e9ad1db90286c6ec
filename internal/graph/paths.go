package graph

// Canonical path shapes produced by the gateway. Examples use the default
// graph name "juno".

// SearchPath is [graph, "search", search].
//
//	["juno", "search", "type=person"]
func SearchPath(graph, search string) Path { return Path{graph, "search", search} }

// SearchLengthPath is [graph, "search", search, "length"].
func SearchLengthPath(graph, search string) Path {
	return Path{graph, "search", search, "length"}
}

// SearchIndexPath is [graph, "search", search, index].
//
//	["juno", "search", "type=person", 0]
func SearchIndexPath(graph, search string, index int) Path {
	return Path{graph, "search", search, index}
}

// ResourcePath is [graph, "resource", type, id].
//
//	["juno", "resource", "person", "_1"]
func ResourcePath(graph, typ, id string) Path { return Path{graph, "resource", typ, id} }

// ResourceFieldPath is [graph, "resource", type, id, field].
func ResourceFieldPath(graph, typ, id, field string) Path {
	return Path{graph, "resource", typ, id, field}
}

// ResourceFieldValuePath is [graph, "resource", type, id, field, index, "value"].
//
//	["juno", "resource", "person", "_1", "name", 0, "value"]
func ResourceFieldValuePath(graph, typ, id, field string, index int) Path {
	return Path{graph, "resource", typ, id, field, index, "value"}
}

// ResourceFieldLengthPath is [graph, "resource", type, id, field, "length"].
func ResourceFieldLengthPath(graph, typ, id, field string) Path {
	return Path{graph, "resource", typ, id, field, "length"}
}

// ResourceLabelPath is [graph, "resource", type, id, "label"].
func ResourceLabelPath(graph, typ, id string) Path {
	return Path{graph, "resource", typ, id, "label"}
}

// FilterPath is [graph, "filter", type, filter, index].
//
//	["juno", "filter", "country", "brit", 0]
func FilterPath(graph, typ, filter string, index int) Path {
	return Path{graph, "filter", typ, filter, index}
}

// FilterLengthPath is [graph, "filter", type, filter, "length"].
func FilterLengthPath(graph, typ, filter string) Path {
	return Path{graph, "filter", typ, filter, "length"}
}

// TypesPath is [graph, "types", index].
func TypesPath(graph string, index int) Path { return Path{graph, "types", index} }

// TypesLengthPath is [graph, "types", "length"].
func TypesLengthPath(graph string) Path { return Path{graph, "types", "length"} }
