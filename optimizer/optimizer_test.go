package optimizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/ir"
	"github.com/inputlayer/inputlayer/value"
)

func TestOptimizeRemovesEmptyFilter(t *testing.T) {
	scan := &ir.Scan{Relation: "edge", Columns: []string{"col0", "col1"}}
	node := &ir.Filter{Child: scan, Preds: nil}
	out := Optimize(node)
	require.IsType(t, &ir.Scan{}, out)
}

func TestOptimizeFusesNestedFilters(t *testing.T) {
	scan := &ir.Scan{Relation: "edge", Columns: []string{"col0", "col1"}}
	inner := &ir.Filter{Child: scan, Preds: []ir.FilterPred{ir.EqConst{Pos: 0, Value: value.Int64(1)}}}
	outer := &ir.Filter{Child: inner, Preds: []ir.FilterPred{ir.EqConst{Pos: 1, Value: value.Int64(2)}}}
	out := Optimize(outer)

	f, ok := out.(*ir.Filter)
	require.True(t, ok)
	require.Len(t, f.Preds, 2)
	_, isFilter := f.Child.(*ir.Filter)
	require.False(t, isFilter)
}

func TestOptimizeCollapsesIdentityMap(t *testing.T) {
	scan := &ir.Scan{Relation: "edge", Columns: []string{"X", "Y"}}
	m := &ir.Map{Child: scan, Exprs: []ir.MapExpr{
		{Name: "X", Expr: ir.ColRef{Pos: 0, Name: "X"}},
		{Name: "Y", Expr: ir.ColRef{Pos: 1, Name: "Y"}},
	}}
	out := Optimize(m)
	require.IsType(t, &ir.Scan{}, out)
}

func TestOptimizeFlattensNestedUnion(t *testing.T) {
	s1 := &ir.Scan{Relation: "a", Columns: []string{"X"}}
	s2 := &ir.Scan{Relation: "b", Columns: []string{"X"}}
	s3 := &ir.Scan{Relation: "c", Columns: []string{"X"}}
	inner := &ir.Union{ChildNodes: []ir.Node{s1, s2}}
	outer := &ir.Union{ChildNodes: []ir.Node{inner, s3}}
	out := Optimize(outer)

	u, ok := out.(*ir.Union)
	require.True(t, ok)
	require.Len(t, u.ChildNodes, 3)
}

func TestShareSubplansDeduplicatesEqualScans(t *testing.T) {
	left := &ir.Scan{Relation: "edge", Columns: []string{"X", "Y"}}
	right := &ir.Scan{Relation: "edge", Columns: []string{"X", "Y"}}
	join := &ir.Join{Left: left, Right: right, LeftKeys: []int{0}, RightKeys: []int{0}}
	out := Optimize(join).(*ir.Join)
	require.Same(t, out.Left, out.Right)
}

func TestOptimizePlansJoinRootedAtMostConstrainedLeaf(t *testing.T) {
	a := &ir.Scan{Relation: "r1", Columns: []string{"X", "Y"}}
	b := &ir.Scan{Relation: "r2", Columns: []string{"Y", "Z"}}
	c := &ir.Scan{Relation: "r3", Columns: []string{"C"}}
	cf := &ir.Filter{Child: c, Preds: []ir.FilterPred{ir.EqConst{Pos: 0, Value: value.Int64(5)}}}

	join1 := &ir.Join{Left: a, Right: b, LeftKeys: []int{1}, RightKeys: []int{0}}
	join2 := &ir.Join{Left: join1, Right: cf, LeftKeys: []int{3}, RightKeys: []int{0}}

	out := Optimize(join2)
	require.Equal(t, []string{"X", "Y", "Y", "Z", "C"}, out.Vars())

	// the most-constrained leaf (r3, pinned by a Filter) is planned
	// innermost rather than left where the original left-deep build put it.
	var innermost ir.Node = out
	for {
		if m, ok := innermost.(*ir.Map); ok {
			innermost = m.Child
			continue
		}
		j, ok := innermost.(*ir.Join)
		if !ok {
			break
		}
		innermost = j.Left
	}
	f, ok := innermost.(*ir.Filter)
	require.True(t, ok)
	s, ok := f.Child.(*ir.Scan)
	require.True(t, ok)
	require.Equal(t, "r3", s.Relation)
}

func TestOptimizePushesFilterIntoJoinSides(t *testing.T) {
	a := &ir.Scan{Relation: "a", Columns: []string{"X", "Y"}}
	b := &ir.Scan{Relation: "b", Columns: []string{"Y", "Z"}}
	join := &ir.Join{Left: a, Right: b, LeftKeys: []int{1}, RightKeys: []int{0}}
	f := &ir.Filter{Child: join, Preds: []ir.FilterPred{
		ir.EqConst{Pos: 0, Value: value.Int64(1)},
		ir.EqConst{Pos: 3, Value: value.Int64(2)},
	}}
	out := Optimize(f)

	j, ok := out.(*ir.Join)
	require.True(t, ok)
	lf, ok := j.Left.(*ir.Filter)
	require.True(t, ok)
	require.Equal(t, []ir.FilterPred{ir.EqConst{Pos: 0, Value: value.Int64(1)}}, lf.Preds)
	rf, ok := j.Right.(*ir.Filter)
	require.True(t, ok)
	require.Equal(t, []ir.FilterPred{ir.EqConst{Pos: 1, Value: value.Int64(2)}}, rf.Preds)
}

func TestOptimizeFoldsAlwaysFalseComparison(t *testing.T) {
	scan := &ir.Scan{Relation: "edge", Columns: []string{"X"}}
	f := &ir.Filter{Child: scan, Preds: []ir.FilterPred{
		ir.Compare{Op: "=", Left: ir.Const{Value: value.Int64(1)}, Right: ir.Const{Value: value.Int64(2)}},
	}}
	out := Optimize(f)
	of, ok := out.(*ir.Filter)
	require.True(t, ok)
	require.Len(t, of.Preds, 1)
	_, isScan := of.Child.(*ir.Scan)
	require.True(t, isScan)
}

func TestOptimizeDropsAlwaysTrueComparison(t *testing.T) {
	scan := &ir.Scan{Relation: "edge", Columns: []string{"X", "Y"}}
	f := &ir.Filter{Child: scan, Preds: []ir.FilterPred{
		ir.EqConst{Pos: 0, Value: value.Int64(1)},
		ir.Compare{Op: "=", Left: ir.Const{Value: value.Int64(3)}, Right: ir.Const{Value: value.Int64(3)}},
	}}
	out := Optimize(f)
	of, ok := out.(*ir.Filter)
	require.True(t, ok)
	require.Equal(t, []ir.FilterPred{ir.EqConst{Pos: 0, Value: value.Int64(1)}}, of.Preds)
}

func TestOptimizeAppliesSIPAcrossJoin(t *testing.T) {
	a := &ir.Filter{
		Child: &ir.Scan{Relation: "a", Columns: []string{"X", "Y"}},
		Preds: []ir.FilterPred{ir.EqConst{Pos: 0, Value: value.Int64(7)}},
	}
	b := &ir.Scan{Relation: "b", Columns: []string{"X", "Z"}}
	join := &ir.Join{Left: a, Right: b, LeftKeys: []int{0}, RightKeys: []int{0}}

	out := Optimize(join)
	j, ok := out.(*ir.Join)
	require.True(t, ok)
	rf, ok := j.Right.(*ir.Filter)
	require.True(t, ok)
	require.Equal(t, []ir.FilterPred{ir.EqConst{Pos: 0, Value: value.Int64(7)}}, rf.Preds)
}

func TestOptimizeWrapsAntijoinProbeInDistinct(t *testing.T) {
	a := &ir.Scan{Relation: "a", Columns: []string{"X"}}
	b := &ir.Scan{Relation: "b", Columns: []string{"X"}}
	aj := &ir.Antijoin{Left: a, Right: b, LeftKeys: []int{0}, RightKeys: []int{0}}

	out := Optimize(aj)
	out2, ok := out.(*ir.Antijoin)
	require.True(t, ok)
	_, ok = out2.Right.(*ir.Distinct)
	require.True(t, ok)
}
