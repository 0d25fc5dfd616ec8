package storage

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/value"
)

func TestQueryTransitiveClosureAcrossStrata(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{
		row(value.Int64(1), value.Int64(2)),
		row(value.Int64(2), value.Int64(3)),
		row(value.Int64(3), value.Int64(4)),
	}))
	require.NoError(t, e.RegisterRule("", "path(X,Y):-edge(X,Y)."))
	require.NoError(t, e.RegisterRule("", "path(X,Z):-path(X,Y),edge(Y,Z)."))

	res, err := e.Query("", "?-path(1,Z).")
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
}

func TestQueryStratifiesNegationOverDerivedRelation(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{
		row(value.Int64(1), value.Int64(2)),
		row(value.Int64(2), value.Int64(3)),
	}))
	require.NoError(t, e.InsertFacts("", "blocked", [][]value.Value{row(value.Int64(2), value.Int64(3))}))
	require.NoError(t, e.RegisterRule("", "reachable(X,Y):-edge(X,Y),!blocked(X,Y)."))

	res, err := e.Query("", "?-reachable(X,Y).")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, value.Tuple{value.Int64(1), value.Int64(2)}, res.Rows[0])
}

func TestQueryResultsAreSortedDeterministically(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{
		row(value.Int64(3), value.Int64(1)),
		row(value.Int64(1), value.Int64(2)),
		row(value.Int64(2), value.Int64(3)),
	}))

	res1, err := e.Query("", "?-edge(X,Y).")
	require.NoError(t, err)
	res2, err := e.Query("", "?-edge(X,Y).")
	require.NoError(t, err)
	require.Equal(t, res1.Rows, res2.Rows)
	require.Equal(t, value.Tuple{value.Int64(1), value.Int64(2)}, res1.Rows[0])
}

func TestQueryOnUnregisteredRelationErrors(t *testing.T) {
	e := openTestEngine(t)
	_, err := e.Query("", "?-missing(X,Y).")
	require.Error(t, err)
}

func TestExplainRendersPlanWithoutEvaluating(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{row(value.Int64(1), value.Int64(2))}))
	require.NoError(t, e.RegisterRule("", "path(X,Y):-edge(X,Y)."))

	out, err := e.Explain("", "?-path(X,Y).")
	require.NoError(t, err)
	require.NotEmpty(t, out)
}

func TestPlanCacheReturnsSameResultAcrossCalls(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{row(value.Int64(1), value.Int64(2))}))
	require.NoError(t, e.RegisterRule("", "path(X,Y):-edge(X,Y)."))

	const q = "?-path(X,Y)."
	first, err := e.Query("", q)
	require.NoError(t, err)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{row(value.Int64(2), value.Int64(3))}))
	second, err := e.Query("", q)
	require.NoError(t, err)
	require.Len(t, first.Rows, 1)
	require.Len(t, second.Rows, 2, "the cached plan tree is reused but re-evaluated against current state")
}

// valueEqual lets go-cmp compare value.Value despite its unexported fields,
// deferring to the type's own equality rather than reflecting into it.
func valueEqual(a, b value.Value) bool { return a.Equal(b) }

func TestQueryTriangleJoinMatchesExpectedRowsIrrespectiveOfOrder(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{
		row(value.Int64(1), value.Int64(2)),
		row(value.Int64(2), value.Int64(3)),
		row(value.Int64(1), value.Int64(3)),
	}))
	require.NoError(t, e.InsertFacts("", "weight", [][]value.Value{
		row(value.Int64(1), value.Int64(3), value.Int64(10)),
	}))
	require.NoError(t, e.RegisterRule("", "triangle(X,Y,Z,W):-edge(X,Y),edge(Y,Z),weight(X,Z,W)."))

	res, err := e.Query("", "?-triangle(X,Y,Z,W).")
	require.NoError(t, err)

	want := []value.Tuple{
		{value.Int64(1), value.Int64(2), value.Int64(3), value.Int64(10)},
	}
	diff := cmp.Diff(want, res.Rows,
		cmp.Comparer(valueEqual),
		cmpopts.SortSlices(func(a, b value.Tuple) bool { return a[0].GoString() < b[0].GoString() }),
	)
	require.Empty(t, diff)
}
