package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/value"
)

func TestExecuteDispatchesInsert(t *testing.T) {
	e := openTestEngine(t)
	res, err := e.Execute("", "+edge(1,2).")
	require.NoError(t, err)
	require.Contains(t, res.Message, "inserted")

	out, err := e.Query("", "?-edge(X,Y).")
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)
}

func TestExecuteDispatchesBulkInsert(t *testing.T) {
	e := openTestEngine(t)
	_, err := e.Execute("", "+edge[(1,2),(2,3)].")
	require.NoError(t, err)

	out, err := e.Query("", "?-edge(X,Y).")
	require.NoError(t, err)
	require.Len(t, out.Rows, 2)
}

func TestExecuteDispatchesDelete(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{row(value.Int64(1), value.Int64(2))}))
	_, err := e.Execute("", "-edge(1,2).")
	require.NoError(t, err)

	out, err := e.Query("", "?-edge(X,Y).")
	require.NoError(t, err)
	require.Empty(t, out.Rows)
}

func TestExecuteDispatchesPersistentRule(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{row(value.Int64(1), value.Int64(2))}))
	res, err := e.Execute("", "+path(X,Y):-edge(X,Y).")
	require.NoError(t, err)
	require.Contains(t, res.Message, "registered")

	names, err := e.ListRules("")
	require.NoError(t, err)
	require.Contains(t, names, "path")
}

func TestExecuteDispatchesSchema(t *testing.T) {
	e := openTestEngine(t)
	res, err := e.Execute("", "+edge(a:int64,b:int64).")
	require.NoError(t, err)
	require.Contains(t, res.Message, "declared schema")

	desc, err := e.DescribeRelation("", "edge")
	require.NoError(t, err)
	require.Contains(t, desc, "a:")
}

func TestExecuteDispatchesQuery(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{row(value.Int64(1), value.Int64(2))}))
	res, err := e.Execute("", "?-edge(X,Y).")
	require.NoError(t, err)
	require.NotNil(t, res.Query)
	require.Len(t, res.Query.Rows, 1)
}

func TestExecuteRejectsMultipleStatements(t *testing.T) {
	e := openTestEngine(t)
	_, err := e.Execute("", "+edge(1,2).+edge(2,3).")
	require.Error(t, err)
}

func TestExecuteRejectsNonGroundInsertRow(t *testing.T) {
	e := openTestEngine(t)
	_, err := e.Execute("", "+edge(X,2).")
	require.Error(t, err)
}

func TestExecuteMetaKGLifecycle(t *testing.T) {
	e := openTestEngine(t)
	_, err := e.Execute("", ".kg create other")
	require.NoError(t, err)

	res, err := e.Execute("", ".kg list")
	require.NoError(t, err)
	require.Contains(t, res.Message, "other")

	_, err = e.Execute("", ".kg use other")
	require.NoError(t, err)
	require.Equal(t, "other", e.CurrentKG())
}

func TestExecuteMetaRelAndRuleIntrospection(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{row(value.Int64(1), value.Int64(2))}))
	require.NoError(t, e.RegisterRule("", "path(X,Y):-edge(X,Y)."))

	res, err := e.Execute("", ".rel list")
	require.NoError(t, err)
	require.Contains(t, res.Message, "edge")

	res, err = e.Execute("", ".rule list")
	require.NoError(t, err)
	require.Contains(t, res.Message, "path")

	res, err = e.Execute("", ".rule drop path")
	require.NoError(t, err)
	require.Contains(t, res.Message, "dropped")
}

func TestExecuteMetaStatus(t *testing.T) {
	e := openTestEngine(t)
	res, err := e.Execute("", ".status")
	require.NoError(t, err)
	require.Contains(t, res.Message, "kgs=1")
}

func TestExecuteMetaUnknownCommandErrors(t *testing.T) {
	e := openTestEngine(t)
	_, err := e.Execute("", ".bogus")
	require.Error(t, err)
}

func TestExecuteAllRunsEveryStatementInOrder(t *testing.T) {
	e := openTestEngine(t)
	results, err := e.ExecuteAll("", "+edge(1,2).+edge(2,3).+path(X,Y):-edge(X,Y).?-path(X,Y).")
	require.NoError(t, err)
	require.Len(t, results, 4)
	require.NotNil(t, results[3].Query)
	require.Len(t, results[3].Query.Rows, 2)
}

func TestExecuteAllStopsAtFirstError(t *testing.T) {
	e := openTestEngine(t)
	results, err := e.ExecuteAll("", "+edge(1,2).?-missing(X).+edge(3,4).")
	require.Error(t, err)
	require.Len(t, results, 1, "the successful insert's result is still returned")
}
