package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/exec"
	"github.com/inputlayer/inputlayer/value"
)

func openEngineAt(dir string) (*Engine, error) {
	return Open(Config{DataDir: dir, AutoCreate: true, FlushThreshold: 1000, Limits: exec.DefaultLimits()})
}

func TestOpenCreatesDefaultKGWhenEmpty(t *testing.T) {
	e := openTestEngine(t)
	require.Equal(t, []string{"default"}, e.ListKGs())
	require.Equal(t, "default", e.CurrentKG())
}

func TestCreateUseDropKG(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateKG("other"))
	require.ElementsMatch(t, []string{"default", "other"}, e.ListKGs())

	require.NoError(t, e.UseKG("other"))
	require.Equal(t, "other", e.CurrentKG())

	err := e.DropKG("other")
	require.Error(t, err, "dropping the current KG must be rejected")

	require.NoError(t, e.UseKG("default"))
	require.NoError(t, e.DropKG("other"))
	require.Equal(t, []string{"default"}, e.ListKGs())
}

func TestCreateKGRejectsDuplicateName(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateKG("other"))
	require.Error(t, e.CreateKG("other"))
}

func TestUseKGRejectsUnknownName(t *testing.T) {
	e := openTestEngine(t)
	require.Error(t, e.UseKG("nope"))
}

func TestReopenRecoversFactsAndSchema(t *testing.T) {
	dir := t.TempDir()
	e, err := openEngineAt(dir)
	require.NoError(t, err)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{
		row(value.Int64(1), value.Int64(2)),
		row(value.Int64(2), value.Int64(3)),
	}))
	require.NoError(t, e.Close())

	reopened, err := openEngineAt(dir)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	res, err := reopened.Query("", "?-edge(X,Y).")
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
}

func TestReopenRecoversMultipleKnowledgeGraphs(t *testing.T) {
	dir := t.TempDir()
	e, err := openEngineAt(dir)
	require.NoError(t, err)
	require.NoError(t, e.CreateKG("second"))
	require.NoError(t, e.InsertFacts("default", "edge", [][]value.Value{row(value.Int64(1), value.Int64(2))}))
	require.NoError(t, e.InsertFacts("second", "node", [][]value.Value{row(value.Int64(9))}))
	require.NoError(t, e.Close())

	reopened, err := openEngineAt(dir)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })
	require.ElementsMatch(t, []string{"default", "second"}, reopened.ListKGs())

	res, err := reopened.Query("second", "?-node(X).")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}
