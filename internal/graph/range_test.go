package graph

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestExpand_Properties(t *testing.T) {
	for from := 0; from < 6; from++ {
		for to := from; to < 12; to++ {
			got, err := Expand(Range{From: from, To: to})
			require.NoError(t, err)
			require.Len(t, got, to-from+1)
			require.Equal(t, from, got[0])
			require.Equal(t, to, got[len(got)-1])
			for i := 1; i < len(got); i++ {
				require.Less(t, got[i-1], got[i], "indices must be strictly ascending")
			}
		}
	}
}

func TestExpand_SingleIndex(t *testing.T) {
	got, err := Expand(Range{From: 3, To: 3})
	require.NoError(t, err)
	require.Equal(t, []int{3}, got)
}

func TestExpand_InvertedRangeIsAnError(t *testing.T) {
	_, err := Expand(Range{From: 4, To: 2})
	require.ErrorIs(t, err, ErrInvertedRange)

	_, err = ExpandAll([]Range{{From: 0, To: 1}, {From: 4, To: 2}})
	require.ErrorIs(t, err, ErrInvertedRange)
}

func TestExpand_NegativeRangeIsAnError(t *testing.T) {
	_, err := Expand(Range{From: -1, To: 2})
	require.ErrorIs(t, err, ErrNegativeRange)
}

func TestExpand_OversizedRangeIsAnError(t *testing.T) {
	for _, r := range []Range{
		{From: 0, To: MaxRangeLength},
		{From: 0, To: 3_000_000_000},
		{From: 1, To: math.MaxInt},
		{From: 0, To: math.MaxInt},
	} {
		_, err := Expand(r)
		require.ErrorIs(t, err, ErrRangeTooLarge, "%+v", r)
	}

	got, err := Expand(Range{From: 7, To: 7 + MaxRangeLength - 1})
	require.NoError(t, err)
	require.Len(t, got, MaxRangeLength)
	require.Equal(t, 7+MaxRangeLength-1, got[len(got)-1])
}

func TestExpandLimited_BoundsTheUnion(t *testing.T) {
	rs := []Range{{From: 0, To: 5}, {From: 3, To: 9}, {From: 20, To: 21}}
	got, err := ExpandLimited(rs, 12)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 20, 21}, got)

	_, err = ExpandLimited(rs, 11)
	require.ErrorIs(t, err, ErrRangeTooLarge)

	many := make([]Range, 0, 100)
	for i := range 100 {
		many = append(many, Range{From: i * MaxRangeLength, To: (i+1)*MaxRangeLength - 1})
	}
	_, err = ExpandLimited(many, MaxRangeLength)
	require.ErrorIs(t, err, ErrRangeTooLarge)
}

func TestExpandAll_DeduplicatesAcrossRanges(t *testing.T) {
	got, err := ExpandAll([]Range{{From: 2, To: 5}, {From: 0, To: 3}, {From: 9, To: 9}})
	require.NoError(t, err)
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4, 5, 9}, got); diff != "" {
		t.Fatalf("ExpandAll mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandAll_OrderIndependent(t *testing.T) {
	a, err := ExpandAll([]Range{{From: 5, To: 6}, {From: 0, To: 1}})
	require.NoError(t, err)
	b, err := ExpandAll([]Range{{From: 0, To: 1}, {From: 5, To: 6}})
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestExpandAll_Empty(t *testing.T) {
	got, err := ExpandAll(nil)
	require.NoError(t, err)
	require.Empty(t, got)
}
