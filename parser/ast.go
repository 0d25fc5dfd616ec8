package parser

import "github.com/inputlayer/inputlayer/value"

// Statement is the union of top-level statement kinds (spec.md §4.2).
type Statement interface {
	statementNode()
}

// Term is either a Var, a Const, or the anonymous placeholder _.
type Term struct {
	IsVar       bool
	IsAnonymous bool
	VarName     string
	Const       value.Value
}

// Atom is a relation reference: name(args...).
type Atom struct {
	Relation string
	Args     []Term
	Negated  bool
	Line, Column int
}

// Comparator for Comparison body atoms.
type Comparator int

const (
	CmpEq Comparator = iota
	CmpNeq
	CmpLt
	CmpLte
	CmpGt
	CmpGte
)

// Expr is an arithmetic/comparison expression tree over Terms, aggregates,
// and nested arithmetic (spec.md §4.2).
type Expr interface {
	exprNode()
}

type TermExpr struct{ Term Term }
type BinaryExpr struct {
	Op          byte // '+','-','*','/','%'
	Left, Right Expr
}
type AggExpr struct {
	Func string // count, sum, min, max, avg, count_distinct, top_k
	Arg  string // variable name inside agg<var>; "" for unqualified count
	K    int    // top_k's K argument, when present
}

func (TermExpr) exprNode()   {}
func (BinaryExpr) exprNode() {}
func (AggExpr) exprNode()    {}

// Comparison is a body atom like X = Y, X < 3.
type Comparison struct {
	Op          Comparator
	Left, Right Expr
	Line, Column int
}

// Binding is `Var = expr` inside a rule body, either a plain arithmetic
// binding or an aggregate assigned to a head variable.
type Binding struct {
	Var  string
	Expr Expr
	Line, Column int
}

// BodyAtom is one element of a rule body: a relation atom, a comparison, or
// an arithmetic/aggregate binding.
type BodyAtom struct {
	Atom       *Atom
	Comparison *Comparison
	Binding    *Binding
}

// Rule is `head(pattern*) :- body_atom*.`
type Rule struct {
	Head *Atom
	Body []BodyAtom
	Line, Column int
}

type InsertStmt struct {
	Relation string
	Rows     [][]Term
	Line, Column int
}

func (*InsertStmt) statementNode() {}

type DeleteStmt struct {
	Relation string
	Rows     [][]Term // bulk unconditional delete
	Rule     *Rule    // conditional delete: -r(X,Y) :- body.
	Line, Column int
}

func (*DeleteStmt) statementNode() {}

type RuleStmt struct {
	Rule        *Rule
	Persistent  bool
	SourceText  string
}

func (*RuleStmt) statementNode() {}

type QueryStmt struct {
	Goal *Atom
	Line, Column int
}

func (*QueryStmt) statementNode() {}

type ColumnDecl struct {
	Name string
	Type string // surface type name, resolved by the catalog
}

type SchemaStmt struct {
	Relation string
	Columns  []ColumnDecl
	Line, Column int
}

func (*SchemaStmt) statementNode() {}

type MetaStmt struct {
	Command string
	Args    []string
	Line, Column int
}

func (*MetaStmt) statementNode() {}
