package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/exec"
	"github.com/inputlayer/inputlayer/value"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(Config{DataDir: t.TempDir(), AutoCreate: true, FlushThreshold: 1000, Limits: exec.DefaultLimits()})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func row(vs ...value.Value) []value.Value { return vs }

func TestInsertFactsInfersSchemaAndPersists(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{
		row(value.Int64(1), value.Int64(2)),
		row(value.Int64(2), value.Int64(3)),
	}))

	res, err := e.Query("", "?-edge(X,Y).")
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
}

func TestInsertFactsRejectsHeterogeneousArity(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{row(value.Int64(1), value.Int64(2))}))
	err := e.InsertFacts("", "edge", [][]value.Value{row(value.Int64(1))})
	require.Error(t, err)
}

func TestDeleteFactsRetractsMatchingRow(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{
		row(value.Int64(1), value.Int64(2)),
		row(value.Int64(2), value.Int64(3)),
	}))
	require.NoError(t, e.DeleteFacts("", "edge", [][]value.Value{row(value.Int64(1), value.Int64(2))}))

	res, err := e.Query("", "?-edge(X,Y).")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, value.Tuple{value.Int64(2), value.Int64(3)}, res.Rows[0])
}

func TestDeleteFactsOfAbsentRowIsNoop(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{row(value.Int64(1), value.Int64(2))}))
	err := e.DeleteFacts("", "edge", [][]value.Value{row(value.Int64(9), value.Int64(9))})
	require.NoError(t, err)

	res, err := e.Query("", "?-edge(X,Y).")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestDeleteByRuleRemovesDerivedMatches(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{
		row(value.Int64(1), value.Int64(2)),
		row(value.Int64(2), value.Int64(3)),
	}))

	res, err := e.Execute("", "-edge(X,Y):-edge(X,Y),edge(Y,_).")
	require.NoError(t, err)
	require.NotNil(t, res)

	out, err := e.Query("", "?-edge(X,Y).")
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
	require.Equal(t, value.Tuple{value.Int64(2), value.Int64(3)}, out.Rows[0])
}

func TestCompactPreservesCurrentState(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{row(value.Int64(1), value.Int64(2))}))
	require.NoError(t, e.DeleteFacts("", "edge", [][]value.Value{row(value.Int64(1), value.Int64(2))}))
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{row(value.Int64(3), value.Int64(4))}))
	require.NoError(t, e.Compact(""))

	res, err := e.Query("", "?-edge(X,Y).")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	require.Equal(t, value.Tuple{value.Int64(3), value.Int64(4)}, res.Rows[0])
}
