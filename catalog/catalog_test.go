package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/parser"
	"github.com/inputlayer/inputlayer/value"
)

func TestInferSchemaPositionalNames(t *testing.T) {
	c := New(true)
	schema, err := c.InferSchema("edge", [][]value.Value{{value.Int64(1), value.Int64(2)}})
	require.NoError(t, err)
	require.Equal(t, 2, schema.Arity())
	require.Equal(t, "col0", schema.Columns[0].Name)
	require.Equal(t, value.KindInt64, schema.Columns[0].Type)
}

func TestInferSchemaRejectsHeterogeneousArity(t *testing.T) {
	c := New(true)
	_, err := c.InferSchema("edge", [][]value.Value{
		{value.Int64(1), value.Int64(2)},
		{value.Int64(1)},
	})
	require.Error(t, err)
}

func TestSchemaIsAppendOnly(t *testing.T) {
	c := New(true)
	_, err := c.InferSchema("edge", [][]value.Value{{value.Int64(1), value.Int64(2)}})
	require.NoError(t, err)

	err = c.DeclareSchema("edge", Schema{Columns: []Column{{Name: "a", Type: value.KindString}, {Name: "b", Type: value.KindInt64}}})
	require.Error(t, err)
}

func TestAutoCreateDisabledRejectsUnknownRelation(t *testing.T) {
	c := New(false)
	_, err := c.InferSchema("edge", [][]value.Value{{value.Int64(1)}})
	require.Error(t, err)
}

func TestDependencyGraphMarksNegationAndAggregates(t *testing.T) {
	c := New(true)
	stmts, err := parser.Parse(`+a(X):-b(X),!c(X). total(D,S):-sales(D,V),S=sum<V>.`)
	require.NoError(t, err)

	r1 := stmts[0].(*parser.RuleStmt)
	require.NoError(t, c.RegisterRule(r1.Rule, "+a(X):-b(X),!c(X)."))

	r2 := stmts[1].(*parser.RuleStmt)
	require.NoError(t, c.RegisterRule(r2.Rule, "total(D,S):-sales(D,V),S=sum<V>."))

	edges := c.DependencyGraph()
	found := map[DepEdge]bool{}
	for _, e := range edges {
		found[e] = true
	}
	require.True(t, found[DepEdge{Head: "a", Body: "b", Negative: false}])
	require.True(t, found[DepEdge{Head: "a", Body: "c", Negative: true}])
	require.True(t, found[DepEdge{Head: "total", Body: "sales", Negative: true}])
}

func TestRuleDefinitionRoundTrip(t *testing.T) {
	c := New(true)
	stmts, err := parser.Parse(`+path(X,Y):-edge(X,Y).`)
	require.NoError(t, err)
	r := stmts[0].(*parser.RuleStmt)
	require.NoError(t, c.RegisterRule(r.Rule, "+path(X,Y):-edge(X,Y)."))

	defs, err := c.RuleDefinition("path")
	require.NoError(t, err)
	require.Equal(t, []string{"+path(X,Y):-edge(X,Y)."}, defs)

	reparsed, err := parser.Parse(defs[0])
	require.NoError(t, err)
	require.Len(t, reparsed, 1)
}

func TestDropRule(t *testing.T) {
	c := New(true)
	stmts, _ := parser.Parse(`+path(X,Y):-edge(X,Y).`)
	r := stmts[0].(*parser.RuleStmt)
	require.NoError(t, c.RegisterRule(r.Rule, "+path(X,Y):-edge(X,Y)."))

	require.NoError(t, c.DropRule("path"))
	_, ok := c.RuleSetFor("path")
	require.False(t, ok)

	require.Error(t, c.DropRule("path"))
}
