package merge

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/hanpama/graphpath/internal/graph"
)

func TestSearch_GroupsBySearchID(t *testing.T) {
	got := Search([]SearchRequest{
		{Kind: KindValue, SearchID: "type=person", Ranges: []graph.Range{{From: 2, To: 3}}},
		{Kind: KindValue, SearchID: "type=company", Ranges: []graph.Range{{From: 0, To: 0}}},
		{Kind: KindCount, SearchID: "type=person"},
		{Kind: KindValue, SearchID: "type=person", Ranges: []graph.Range{{From: 0, To: 1}, {From: 2, To: 3}}},
	})
	want := []MergedSearch{
		{SearchID: "type=company", Ranges: []graph.Range{{From: 0, To: 0}}},
		{SearchID: "type=person", Ranges: []graph.Range{{From: 0, To: 1}, {From: 2, To: 3}}, Count: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MergedSearch mismatch (-want +got):\n%s", diff)
	}
}

func TestSearch_RangesAreNotIntervalMerged(t *testing.T) {
	got := Search([]SearchRequest{
		{Kind: KindValue, SearchID: "s", Ranges: []graph.Range{{From: 0, To: 5}}},
		{Kind: KindValue, SearchID: "s", Ranges: []graph.Range{{From: 3, To: 8}}},
		{Kind: KindValue, SearchID: "s", Ranges: []graph.Range{{From: 0, To: 5}}},
	})
	require.Len(t, got, 1)
	require.Equal(t, []graph.Range{{From: 0, To: 5}, {From: 3, To: 8}}, got[0].Ranges)
}

func TestSearch_CountIsSticky(t *testing.T) {
	for _, reqs := range [][]SearchRequest{
		{{Kind: KindCount, SearchID: "s"}, {Kind: KindValue, SearchID: "s", Ranges: []graph.Range{{From: 0, To: 0}}}},
		{{Kind: KindValue, SearchID: "s", Ranges: []graph.Range{{From: 0, To: 0}}}, {Kind: KindCount, SearchID: "s"}},
	} {
		got := Search(reqs)
		require.Len(t, got, 1)
		require.True(t, got[0].Count)
	}
}

func TestResources_GroupsByType(t *testing.T) {
	got := Resources([]ResourceRequest{
		{Kind: KindValue, Types: []string{"person", "company"}, Resources: []string{"_1"}, Fields: []string{"name"}, Ranges: []graph.Range{{From: 0, To: 0}}},
		{Kind: KindCount, Types: []string{"person"}, Resources: []string{"_2"}, Fields: []string{"birthDate"}},
		{Kind: KindLabel, Types: []string{"company"}, Resources: []string{"_9"}},
	})
	want := []MergedResource{
		{Type: "company", Resources: []string{"_1", "_9"}, Fields: []string{"name"}, Ranges: []graph.Range{{From: 0, To: 0}}, Label: true},
		{Type: "person", Resources: []string{"_1", "_2"}, Fields: []string{"birthDate", "name"}, Ranges: []graph.Range{{From: 0, To: 0}}, Count: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MergedResource mismatch (-want +got):\n%s", diff)
	}
}

func TestResources_LabelRequestsDoNotContributeFields(t *testing.T) {
	got := Resources([]ResourceRequest{
		{Kind: KindLabel, Types: []string{"person"}, Resources: []string{"_1"}, Fields: []string{"leaked"}},
	})
	require.Len(t, got, 1)
	require.Empty(t, got[0].Fields)
	require.True(t, got[0].Label)
	require.False(t, got[0].Count)
}

func TestResources_SupersetOfEveryInput(t *testing.T) {
	reqs := sampleResourceRequests()
	merged := Resources(reqs)
	byType := map[string]MergedResource{}
	for _, m := range merged {
		byType[m.Type] = m
	}
	for _, req := range reqs {
		for _, typ := range req.Types {
			m := byType[typ]
			require.Subset(t, m.Resources, req.Resources)
			if req.Kind != KindLabel {
				require.Subset(t, m.Fields, req.Fields)
			}
			if req.Kind == KindValue {
				require.Subset(t, m.Ranges, req.Ranges)
			}
		}
	}
}

func TestMerge_Idempotent(t *testing.T) {
	merged := Resources(sampleResourceRequests())
	var again []ResourceRequest
	for _, m := range merged {
		again = append(again, m.Requests()...)
	}
	if diff := cmp.Diff(merged, Resources(again), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("resource merge not idempotent (-first +second):\n%s", diff)
	}

	searches := Search([]SearchRequest{
		{Kind: KindValue, SearchID: "a", Ranges: []graph.Range{{From: 0, To: 2}}},
		{Kind: KindCount, SearchID: "b"},
		{Kind: KindValue, SearchID: "c"},
	})
	var searchAgain []SearchRequest
	for _, m := range searches {
		searchAgain = append(searchAgain, m.Requests()...)
	}
	if diff := cmp.Diff(searches, Search(searchAgain), cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("search merge not idempotent (-first +second):\n%s", diff)
	}
}

func TestMerge_OrderIndependent(t *testing.T) {
	reqs := sampleResourceRequests()
	want := Resources(reqs)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]ResourceRequest(nil), reqs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if diff := cmp.Diff(want, Resources(shuffled)); diff != "" {
			t.Fatalf("merge depends on input order (-want +got):\n%s", diff)
		}
	}
}

func sampleResourceRequests() []ResourceRequest {
	return []ResourceRequest{
		{Kind: KindValue, Types: []string{"person"}, Resources: []string{"_0", "_1"}, Fields: []string{"name"}, Ranges: []graph.Range{{From: 0, To: 2}}},
		{Kind: KindValue, Types: []string{"person"}, Resources: []string{"_2"}, Fields: []string{"shareholderOf"}, Ranges: []graph.Range{{From: 1, To: 4}}},
		{Kind: KindCount, Types: []string{"person", "company"}, Resources: []string{"_0"}, Fields: []string{"shareholderOf"}},
		{Kind: KindLabel, Types: []string{"company"}, Resources: []string{"_5"}},
		{Kind: KindValue, Types: []string{"company"}, Resources: []string{"_5"}, Fields: []string{"name"}, Ranges: []graph.Range{{From: 0, To: 0}}},
	}
}
