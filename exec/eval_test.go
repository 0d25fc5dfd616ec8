package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/ir"
	"github.com/inputlayer/inputlayer/value"
)

func tuple(vs ...value.Value) value.Tuple { return value.Tuple(vs) }

func bagOf(tuples ...value.Tuple) *Bag {
	b := NewBag()
	for _, t := range tuples {
		b.Add(t, 1)
	}
	return b
}

func collect(b *Bag) []value.Tuple {
	var out []value.Tuple
	b.Each(func(t value.Tuple, mult int64) {
		for i := int64(0); i < mult; i++ {
			out = append(out, t)
		}
	})
	return out
}

func TestEvalScanAndFilter(t *testing.T) {
	edge := bagOf(tuple(value.Int64(1), value.Int64(2)), tuple(value.Int64(3), value.Int64(4)))
	resolver := MapResolver{"edge": edge}
	node := &ir.Filter{
		Child: &ir.Scan{Relation: "edge", Columns: []string{"X", "Y"}},
		Preds: []ir.FilterPred{ir.EqConst{Pos: 0, Value: value.Int64(1)}},
	}
	ec := NewContext(context.Background(), resolver, DefaultLimits())
	out, err := Eval(ec, node)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
}

func TestEvalJoin(t *testing.T) {
	edge := bagOf(tuple(value.Int64(1), value.Int64(2)), tuple(value.Int64(2), value.Int64(3)))
	resolver := MapResolver{"edge": edge, "edge2": edge}
	node := &ir.Join{
		Left:     &ir.Scan{Relation: "edge", Columns: []string{"X", "Y"}},
		Right:    &ir.Scan{Relation: "edge2", Columns: []string{"Y", "Z"}},
		LeftKeys: []int{1}, RightKeys: []int{0},
	}
	ec := NewContext(context.Background(), resolver, DefaultLimits())
	out, err := Eval(ec, node)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
}

func TestEvalAntijoin(t *testing.T) {
	edge := bagOf(tuple(value.Int64(1)), tuple(value.Int64(2)))
	excluded := bagOf(tuple(value.Int64(1)))
	resolver := MapResolver{"edge": edge, "excluded": excluded}
	node := &ir.Antijoin{
		Left:     &ir.Scan{Relation: "edge", Columns: []string{"X"}},
		Right:    &ir.Scan{Relation: "excluded", Columns: []string{"X"}},
		LeftKeys: []int{0}, RightKeys: []int{0},
	}
	ec := NewContext(context.Background(), resolver, DefaultLimits())
	out, err := Eval(ec, node)
	require.NoError(t, err)
	result := collect(out)
	require.Len(t, result, 1)
	require.Equal(t, value.Int64(2), result[0][0])
}

func TestEvalAggregateSumExcludesNulls(t *testing.T) {
	sales := bagOf(
		tuple(value.String("d1"), value.Int64(10)),
		tuple(value.String("d1"), value.Null()),
		tuple(value.String("d1"), value.Int64(5)),
	)
	resolver := MapResolver{"sales": sales}
	node := &ir.Aggregate{
		Child:     &ir.Scan{Relation: "sales", Columns: []string{"D", "V"}},
		GroupKeys: []int{0},
		Aggs:      []ir.AggSpec{{Func: ir.AggSum, InputPos: 1, OutName: "S"}, {Func: ir.AggAvg, InputPos: 1, OutName: "A"}},
	}
	ec := NewContext(context.Background(), resolver, DefaultLimits())
	out, err := Eval(ec, node)
	require.NoError(t, err)
	result := collect(out)
	require.Len(t, result, 1)
	require.Equal(t, value.Int64(15), result[0][1])
	require.Equal(t, value.Float64(7.5), result[0][2]) // avg of 10 and 5, null excluded from both sides
}

func TestEvalFixpointTransitiveClosure(t *testing.T) {
	edge := bagOf(
		tuple(value.Int64(1), value.Int64(2)),
		tuple(value.Int64(2), value.Int64(3)),
		tuple(value.Int64(3), value.Int64(4)),
	)
	resolver := MapResolver{"edge": edge}

	// path(X,Y) :- edge(X,Y).
	baseCase := &ir.Scan{Relation: "edge", Columns: []string{"X", "Y"}}
	// path(X,Z) :- edge(X,Y), path(Y,Z).
	recCase := &ir.Join{
		Left:     &ir.Scan{Relation: "edge", Columns: []string{"X", "Y"}},
		Right:    &ir.Scan{Relation: "path", Columns: []string{"Y", "Z"}},
		LeftKeys: []int{1}, RightKeys: []int{0},
	}
	recProjected := &ir.Map{Child: recCase, Exprs: []ir.MapExpr{
		{Name: "X", Expr: ir.ColRef{Pos: 0}},
		{Name: "Z", Expr: ir.ColRef{Pos: 3}},
	}}
	baseProjected := &ir.Map{Child: baseCase, Exprs: []ir.MapExpr{
		{Name: "X", Expr: ir.ColRef{Pos: 0}},
		{Name: "Y", Expr: ir.ColRef{Pos: 1}},
	}}
	step := &ir.Union{ChildNodes: []ir.Node{baseProjected, recProjected}}

	fp := &ir.Fixpoint{
		VarNames: []string{"path"},
		Seed:     []ir.Node{&ir.Union{}},
		Step:     []ir.Node{step},
	}

	ec := NewContext(context.Background(), resolver, DefaultLimits())
	out, err := Eval(ec, fp)
	require.NoError(t, err)

	result := collect(out)
	require.Len(t, result, 6) // 1-2,2-3,3-4,1-3,2-4,1-4
}
