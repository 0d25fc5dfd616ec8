package stratifier

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func indexOf(strata []Stratum, head string) int {
	for i, s := range strata {
		for _, h := range s.Heads {
			if h == head {
				return i
			}
		}
	}
	return -1
}

func TestStratifyLinearOrder(t *testing.T) {
	edges := []Edge{
		{Head: "path", Body: "edge"},
		{Head: "reachable", Body: "path"},
	}
	strata, err := Stratify([]string{"path", "reachable"}, edges)
	require.NoError(t, err)
	require.Less(t, indexOf(strata, "edge"), indexOf(strata, "path"))
	require.Less(t, indexOf(strata, "path"), indexOf(strata, "reachable"))
}

func TestStratifyRecursiveSelfLoop(t *testing.T) {
	edges := []Edge{
		{Head: "path", Body: "edge"},
		{Head: "path", Body: "path"},
	}
	strata, err := Stratify([]string{"path"}, edges)
	require.NoError(t, err)
	idx := indexOf(strata, "path")
	require.True(t, strata[idx].Recursive)
}

func TestStratifyMutualRecursionGrouped(t *testing.T) {
	edges := []Edge{
		{Head: "even", Body: "odd"},
		{Head: "odd", Body: "even"},
	}
	strata, err := Stratify([]string{"even", "odd"}, edges)
	require.NoError(t, err)
	idx := indexOf(strata, "even")
	require.Equal(t, idx, indexOf(strata, "odd"))
	require.True(t, strata[idx].Recursive)
	require.Len(t, strata[idx].Heads, 2)
}

func TestStratifyRejectsNegationInsideCycle(t *testing.T) {
	edges := []Edge{
		{Head: "a", Body: "b"},
		{Head: "b", Body: "a", Negative: true},
	}
	_, err := Stratify([]string{"a", "b"}, edges)
	require.Error(t, err)
}

func TestStratifyAllowsNegationAcrossStrata(t *testing.T) {
	edges := []Edge{
		{Head: "keep", Body: "edge"},
		{Head: "keep", Body: "excluded", Negative: true},
	}
	strata, err := Stratify([]string{"keep"}, edges)
	require.NoError(t, err)
	require.Less(t, indexOf(strata, "excluded"), indexOf(strata, "keep"))
}
