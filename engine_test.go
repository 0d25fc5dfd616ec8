package inputlayer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/config"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	e, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Shutdown() })
	return e
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = ""
	_, err := Open(cfg)
	require.Error(t, err)
}

func TestExecuteInsertThenQuery(t *testing.T) {
	e := openTestEngine(t)
	res, err := e.Execute("+edge(1,2).")
	require.NoError(t, err)
	require.Contains(t, res.Message, "inserted")

	res, err = e.Execute("?-edge(X,Y).")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
}

func TestExecuteRunsMultiStatementScriptAndReturnsLastResult(t *testing.T) {
	e := openTestEngine(t)
	res, err := e.Execute("+edge(1,2).+edge(2,3).+path(X,Y):-edge(X,Y).?-path(X,Y).")
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
}

func TestExplainReturnsRenderedPlan(t *testing.T) {
	e := openTestEngine(t)
	_, err := e.Execute("+edge(1,2).")
	require.NoError(t, err)

	plan, err := e.Explain("?-edge(X,Y).")
	require.NoError(t, err)
	require.NotEmpty(t, plan.Tree)

	out, err := plan.YAML()
	require.NoError(t, err)
	require.Contains(t, out, "tree:")
}

func TestKnowledgeGraphLifecycle(t *testing.T) {
	e := openTestEngine(t)
	require.Equal(t, []string{"default"}, e.ListKGs())
	require.NoError(t, e.CreateKG("other"))
	require.NoError(t, e.UseKG("other"))
	require.Equal(t, "other", e.CurrentKG())
	require.NoError(t, e.UseKG("default"))
	require.NoError(t, e.DropKG("other"))
}

func TestStatusReportsKnowledgeGraphState(t *testing.T) {
	e := openTestEngine(t)
	st := e.Status()
	require.Equal(t, 1, st.KGCount)
	require.Equal(t, "default", st.CurrentKG)
}

func TestCompactIsIdempotent(t *testing.T) {
	e := openTestEngine(t)
	_, err := e.Execute("+edge(1,2).")
	require.NoError(t, err)
	require.NoError(t, e.Compact())
	require.NoError(t, e.Compact())
}

func TestShutdownIsIdempotent(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.Shutdown())
	require.NoError(t, e.Shutdown())
}
