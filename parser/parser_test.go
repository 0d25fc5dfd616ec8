package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseInsert(t *testing.T) {
	stmts, err := Parse(`+edge(1,2).`)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	ins, ok := stmts[0].(*InsertStmt)
	require.True(t, ok)
	require.Equal(t, "edge", ins.Relation)
	require.Len(t, ins.Rows, 1)
	require.Len(t, ins.Rows[0], 2)
}

func TestParseBulkInsert(t *testing.T) {
	stmts, err := Parse(`+edge[(1,2), (2,3)].`)
	require.NoError(t, err)
	ins := stmts[0].(*InsertStmt)
	require.Len(t, ins.Rows, 2)
}

func TestParsePersistentRecursiveRule(t *testing.T) {
	src := `+path(X,Y):-edge(X,Y). +path(X,Z):-edge(X,Y),path(Y,Z).`
	stmts, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	r1 := stmts[0].(*RuleStmt)
	require.True(t, r1.Persistent)
	require.Equal(t, "path", r1.Rule.Head.Relation)
	r2 := stmts[1].(*RuleStmt)
	require.Len(t, r2.Rule.Body, 2)
}

func TestParseQuery(t *testing.T) {
	stmts, err := Parse(`?-path(1,X).`)
	require.NoError(t, err)
	q := stmts[0].(*QueryStmt)
	require.Equal(t, "path", q.Goal.Relation)
}

func TestParseNegation(t *testing.T) {
	stmts, err := Parse(`+a(X):-b(X),!c(X).`)
	require.NoError(t, err)
	r := stmts[0].(*RuleStmt)
	require.Len(t, r.Rule.Body, 2)
	require.True(t, r.Rule.Body[1].Atom.Negated)
}

func TestParseSchema(t *testing.T) {
	stmts, err := Parse(`+sales(region: string, amount: int64).`)
	require.NoError(t, err)
	s := stmts[0].(*SchemaStmt)
	require.Equal(t, "sales", s.Relation)
	require.Len(t, s.Columns, 2)
	require.Equal(t, "amount", s.Columns[1].Name)
}

func TestParseAggregateRule(t *testing.T) {
	stmts, err := Parse(`total(D, S) :- sales(D,V), S = sum<V>.`)
	require.NoError(t, err)
	r := stmts[0].(*RuleStmt)
	require.False(t, r.Persistent)
	require.Len(t, r.Rule.Body, 2)
	require.NotNil(t, r.Rule.Body[1].Binding)
	agg, ok := r.Rule.Body[1].Binding.Expr.(*AggExpr)
	require.True(t, ok)
	require.Equal(t, "sum", agg.Func)
	require.Equal(t, "V", agg.Arg)
}

func TestParseDeleteVariants(t *testing.T) {
	stmts, err := Parse(`-edge(1,2).`)
	require.NoError(t, err)
	d := stmts[0].(*DeleteStmt)
	require.Nil(t, d.Rule)
	require.Len(t, d.Rows, 1)

	stmts, err = Parse(`-path(X,Y):-edge(X,Y).`)
	require.NoError(t, err)
	d = stmts[0].(*DeleteStmt)
	require.NotNil(t, d.Rule)
}

func TestParseComments(t *testing.T) {
	src := "% a line comment\n+edge(1,2). /* block\ncomment */ +edge(3,4)."
	stmts, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
}

func TestParseStringEscapes(t *testing.T) {
	stmts, err := Parse(`+label(1,"a \"quoted\" \\ value").`)
	require.NoError(t, err)
	ins := stmts[0].(*InsertStmt)
	require.Equal(t, `a "quoted" \ value`, ins.Rows[0][1].Const.AsString())
}

func TestParseMetaCommand(t *testing.T) {
	stmts, err := Parse(`.status`)
	require.NoError(t, err)
	m := stmts[0].(*MetaStmt)
	require.Equal(t, "status", m.Command)
}

func TestParseErrorHasLineColumn(t *testing.T) {
	_, err := Parse("+edge(1,2)\n")
	require.Error(t, err)
	pe, ok := err.(*ParseError)
	require.True(t, ok)
	require.Equal(t, 2, pe.Line)
}

func TestParseVectorLiteral(t *testing.T) {
	stmts, err := Parse(`+emb(1,[1,2,3]).`)
	require.NoError(t, err)
	ins := stmts[0].(*InsertStmt)
	require.Equal(t, []int8{1, 2, 3}, ins.Rows[0][1].Const.AsVectorI8())

	stmts, err = Parse(`+emb(1,[1.0,2.5]).`)
	require.NoError(t, err)
	ins = stmts[0].(*InsertStmt)
	require.Equal(t, []float32{1.0, 2.5}, ins.Rows[0][1].Const.AsVectorF32())
}
