package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/value"
)

func TestListRelationsIncludesBaseAndDerived(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{row(value.Int64(1), value.Int64(2))}))
	require.NoError(t, e.RegisterRule("", "path(X,Y):-edge(X,Y)."))

	names, err := e.ListRelations("")
	require.NoError(t, err)
	require.Contains(t, names, "edge")
	require.Contains(t, names, "path")
}

func TestDescribeRelationRendersSchemaAndKind(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.InsertFacts("", "edge", [][]value.Value{row(value.Int64(1), value.Int64(2))}))
	require.NoError(t, e.RegisterRule("", "path(X,Y):-edge(X,Y)."))

	desc, err := e.DescribeRelation("", "edge")
	require.NoError(t, err)
	require.Contains(t, desc, "base")

	desc, err = e.DescribeRelation("", "path")
	require.NoError(t, err)
	require.Contains(t, desc, "view")
}

func TestDescribeRelationUnknownErrors(t *testing.T) {
	e := openTestEngine(t)
	_, err := e.DescribeRelation("", "nope")
	require.Error(t, err)
}

func TestStatusReflectsKnowledgeGraphs(t *testing.T) {
	e := openTestEngine(t)
	require.NoError(t, e.CreateKG("other"))

	st := e.Status()
	require.Equal(t, 2, st.KGCount)
	require.Equal(t, "default", st.CurrentKG)
	require.ElementsMatch(t, []string{"default", "other"}, st.KGs)
}
