// Package ir implements the relational intermediate representation
// (spec.md §4.4) that rules and queries are lowered to.
package ir

import (
	"fmt"

	"github.com/inputlayer/inputlayer/value"
)

// Node is one relational-algebra operator in the IR tree (spec.md §4.4).
type Node interface {
	Vars() []string // the ordered variable/column names this node outputs
	Children() []Node
	node()
}

// Scan emits all tuples of a base or derived relation.
type Scan struct {
	Relation string
	Columns  []string
}

// FilterPred is a predicate a Filter node evaluates per tuple.
type FilterPred interface {
	predNode()
}

// EqConst: column at Pos equals a literal constant.
type EqConst struct {
	Pos   int
	Value value.Value
}

// EqCols: two columns (by position) of the same incoming row must be equal;
// used when the same variable recurs within one atom's argument list.
type EqCols struct{ A, B int }

// Compare applies a comparator between two scalar expressions.
type Compare struct {
	Op          string // "=", "!=", "<", "<=", ">", ">="
	Left, Right Scalar
}

func (EqConst) predNode()  {}
func (EqCols) predNode()   {}
func (Compare) predNode()  {}

// Scalar is a scalar expression evaluated against a row, used by Compare,
// Map, and Aggregate inputs.
type Scalar interface {
	scalarNode()
}

// ColRef references a column position in the node's incoming row.
type ColRef struct {
	Pos  int
	Name string
}

// Const is a literal scalar.
type Const struct{ Value value.Value }

// Arith applies a binary arithmetic operator to two scalar expressions.
type Arith struct {
	Op          byte
	Left, Right Scalar
}

func (ColRef) scalarNode() {}
func (Const) scalarNode()  {}
func (Arith) scalarNode()  {}

type Filter struct {
	Child Node
	Preds []FilterPred
}

// MapExpr computes one new or replaced output column.
type MapExpr struct {
	Name string
	Expr Scalar
}

// Map computes the node's entire output column list from Exprs, in order.
// A straight passthrough of a child column is expressed as
// MapExpr{Name: outputName, Expr: ColRef{Pos: i}} — Map never inherits a
// child's column name implicitly, since the name carried forward is a
// Datalog variable name, not necessarily the underlying relation's column
// name (spec.md §4.4).
type Map struct {
	Child Node
	Exprs []MapExpr
}

type Join struct {
	Left, Right Node
	// LeftKeys/RightKeys are aligned equi-join key positions.
	LeftKeys, RightKeys []int
}

type Antijoin struct {
	Left, Right         Node
	LeftKeys, RightKeys []int
}

type Union struct {
	ChildNodes []Node
}

type Distinct struct {
	Child Node
}

// AggFunc names a reducer (spec.md §4.7).
type AggFunc string

const (
	AggCount         AggFunc = "count"
	AggSum           AggFunc = "sum"
	AggMin           AggFunc = "min"
	AggMax           AggFunc = "max"
	AggAvg           AggFunc = "avg"
	AggCountDistinct AggFunc = "count_distinct"
	AggTopK          AggFunc = "top_k"
)

type AggSpec struct {
	Func   AggFunc
	InputPos int // column position being reduced; -1 for unqualified count
	OutName  string
	K        int // top_k only
}

type Aggregate struct {
	Child     Node
	GroupKeys []int
	Aggs      []AggSpec
}

// Fixpoint is assembled by the storage engine's query pipeline (not the IR
// builder) once stratification determines which heads co-iterate; see
// stratifier.Stratum.
type Fixpoint struct {
	VarNames []string
	Seed     []Node
	Step     []Node // one Step tree per VarNames entry, may Scan VarNames[i] itself
}

func (n *Scan) Vars() []string      { return n.Columns }
func (n *Filter) Vars() []string    { return n.Child.Vars() }
func (n *Map) Vars() []string {
	names := make([]string, len(n.Exprs))
	for i, e := range n.Exprs {
		names[i] = e.Name
	}
	return names
}
func (n *Join) Vars() []string {
	return append(append([]string{}, n.Left.Vars()...), n.Right.Vars()...)
}
func (n *Antijoin) Vars() []string { return n.Left.Vars() }
func (n *Union) Vars() []string {
	if len(n.ChildNodes) == 0 {
		return nil
	}
	return n.ChildNodes[0].Vars()
}
func (n *Distinct) Vars() []string  { return n.Child.Vars() }
func (n *Aggregate) Vars() []string {
	names := make([]string, 0, len(n.GroupKeys)+len(n.Aggs))
	childVars := n.Child.Vars()
	for _, k := range n.GroupKeys {
		names = append(names, childVars[k])
	}
	for _, a := range n.Aggs {
		names = append(names, a.OutName)
	}
	return names
}
func (n *Fixpoint) Vars() []string { return n.VarNames }

func (n *Scan) Children() []Node     { return nil }
func (n *Filter) Children() []Node   { return []Node{n.Child} }
func (n *Map) Children() []Node      { return []Node{n.Child} }
func (n *Join) Children() []Node     { return []Node{n.Left, n.Right} }
func (n *Antijoin) Children() []Node { return []Node{n.Left, n.Right} }
func (n *Union) Children() []Node    { return n.ChildNodes }
func (n *Distinct) Children() []Node { return []Node{n.Child} }
func (n *Aggregate) Children() []Node { return []Node{n.Child} }
func (n *Fixpoint) Children() []Node  { return n.Step }

func (*Scan) node()      {}
func (*Filter) node()    {}
func (*Map) node()       {}
func (*Join) node()      {}
func (*Antijoin) node()  {}
func (*Union) node()     {}
func (*Distinct) node()  {}
func (*Aggregate) node() {}
func (*Fixpoint) node()  {}

// String renders a one-line structural summary, used by EXPLAIN (spec.md §6).
func String(n Node) string {
	switch t := n.(type) {
	case *Scan:
		return fmt.Sprintf("Scan(%s)", t.Relation)
	case *Filter:
		return fmt.Sprintf("Filter(%s)", String(t.Child))
	case *Map:
		return fmt.Sprintf("Map(%s)", String(t.Child))
	case *Join:
		return fmt.Sprintf("Join(%s, %s)", String(t.Left), String(t.Right))
	case *Antijoin:
		return fmt.Sprintf("Antijoin(%s, %s)", String(t.Left), String(t.Right))
	case *Union:
		s := "Union("
		for i, c := range t.ChildNodes {
			if i > 0 {
				s += ", "
			}
			s += String(c)
		}
		return s + ")"
	case *Distinct:
		return fmt.Sprintf("Distinct(%s)", String(t.Child))
	case *Aggregate:
		return fmt.Sprintf("Aggregate(%s)", String(t.Child))
	case *Fixpoint:
		return fmt.Sprintf("Fixpoint(%v)", t.VarNames)
	default:
		return "?"
	}
}
