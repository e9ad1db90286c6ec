package router

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphpath/internal/graph"
)

func parse(t *testing.T, doc string) []PathSet {
	t.Helper()
	var raw []any
	require.NoError(t, json.Unmarshal([]byte(doc), &raw))
	sets, err := ParsePathSets(raw)
	require.NoError(t, err)
	return sets
}

func TestParsePathSets(t *testing.T) {
	got := parse(t, `[
		["juno", "search", ["type=person", "type=company"], {"from": 0, "to": 9}],
		["juno", "resource", "person", "_1", "name", [0, {"from": 3, "length": 2}], "value"],
		["juno", "types", "length"]
	]`)
	want := []PathSet{
		{Keys("juno"), Keys("search"), Keys("type=person", "type=company"), Ranges(graph.Range{From: 0, To: 9})},
		{Keys("juno"), Keys("resource"), Keys("person"), Keys("_1"), Keys("name"), Ranges(graph.Range{From: 0, To: 0}, graph.Range{From: 3, To: 4}), Keys("value")},
		{Keys("juno"), Keys("types"), Keys("length")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ParsePathSets mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePathSet_SplitsMixedKeySets(t *testing.T) {
	got := parse(t, `[["juno", "types", [0, "length", {"to": 2}]]]`)
	want := []PathSet{
		{Keys("juno"), Keys("types"), Keys("length")},
		{Keys("juno"), Keys("types"), Ranges(graph.Range{From: 0, To: 0}, graph.Range{From: 0, To: 2})},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("split mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePathSet_ZeroLengthRangeMatchesNothing(t *testing.T) {
	got := parse(t, `[
		["juno", "search", "type=person", {"from": 5, "length": 0}],
		["juno", "types", [{"from": 5, "length": 0}, 2]]
	]`)
	want := []PathSet{
		{Keys("juno"), Keys("types"), Ranges(graph.Range{From: 2, To: 2})},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("ParsePathSets mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePathSet_Errors(t *testing.T) {
	for name, doc := range map[string]string{
		"not an array":   `"juno"`,
		"empty":          `[]`,
		"fraction":       `["juno", "types", 1.5]`,
		"range no end":   `["juno", "types", {"from": 1}]`,
		"range bad type": `["juno", "types", {"from": "a", "to": 2}]`,
		"null key":       `["juno", null]`,
		"empty key set":  `["juno", []]`,
		"huge to":        `["juno", "search", "type=person", {"from": 1, "to": 9.2e18}]`,
		"huge length":    `["juno", "search", "type=person", {"from": 1, "length": 9.2e18}]`,
		"huge index":     `["juno", "types", -1e300]`,
	} {
		t.Run(name, func(t *testing.T) {
			var raw any
			require.NoError(t, json.Unmarshal([]byte(doc), &raw))
			_, err := ParsePathSet(raw)
			require.ErrorIs(t, err, ErrMalformedPath)
		})
	}
}

func TestPathSet_MarshalJSON(t *testing.T) {
	ps := PathSet{Keys("juno"), Keys("a", "b"), Index(3), Ranges(graph.Range{From: 0, To: 2}, graph.Range{From: 5, To: 5})}
	b, err := json.Marshal(ps)
	require.NoError(t, err)
	require.JSONEq(t, `["juno", ["a", "b"], 3, [{"from": 0, "to": 2}, 5]]`, string(b))
}
