package ir

import (
	"fmt"
	"sort"

	"github.com/inputlayer/inputlayer/catalog"
	ilerrors "github.com/inputlayer/inputlayer/errors"
	"github.com/inputlayer/inputlayer/parser"
)

// binding tracks, for one clause under construction, which node/column a
// variable currently resolves to.
type binding struct {
	col int
}

// clauseBuilder walks one rule clause's body left to right, threading a
// growing Join tree and the variable bindings it has produced so far
// (spec.md §4.4 "variable tracking walk").
type clauseBuilder struct {
	cat  *catalog.Catalog
	vars map[string]binding
	tmp  int
}

// Build lowers one rule clause to an IR tree whose output columns are the
// head's argument positions, in head order (spec.md §4.4, §4.7). cat
// resolves a relation name to its declared column names for Scan.
func Build(cat *catalog.Catalog, rule *parser.Rule) (Node, []string, error) {
	cb := &clauseBuilder{cat: cat, vars: make(map[string]binding)}
	node, err := cb.buildBody(rule.Body)
	if err != nil {
		return nil, nil, err
	}
	return cb.buildHead(rule.Head, node)
}

// BuildGoal lowers a query goal the same way a rule body atom is lowered:
// constants become Filter predicates against the Scan's columns, and the
// goal's variables become the query's output columns in left-to-right
// first-occurrence order (spec.md §4.7 "Query result").
func BuildGoal(cat *catalog.Catalog, goal *parser.Atom) (Node, []string, error) {
	cb := &clauseBuilder{cat: cat, vars: make(map[string]binding)}
	node, err := cb.bindAtom(goal, nil)
	if err != nil {
		return nil, nil, err
	}
	var outVars []string
	seen := make(map[string]bool)
	for _, arg := range goal.Args {
		if arg.IsVar && !arg.IsAnonymous && !seen[arg.VarName] {
			seen[arg.VarName] = true
			outVars = append(outVars, arg.VarName)
		}
	}
	return projectVars(node, cb.vars, outVars), outVars, nil
}

func (cb *clauseBuilder) freshVar() string {
	cb.tmp++
	return fmt.Sprintf("_t%d", cb.tmp)
}

// buildBody folds the positive atoms into a left-deep Join tree, attaches
// negated atoms as Antijoin, applies Filter for comparisons and
// constant-argument bindings, and wraps an Aggregate node when a body
// binding's expression is an aggregate (spec.md §4.4, §4.5).
func (cb *clauseBuilder) buildBody(body []parser.BodyAtom) (Node, error) {
	var node Node
	var aggBinding *parser.Binding

	for _, ba := range body {
		switch {
		case ba.Atom != nil && !ba.Atom.Negated:
			n, err := cb.bindAtom(ba.Atom, node)
			if err != nil {
				return nil, err
			}
			node = n

		case ba.Atom != nil && ba.Atom.Negated:
			if node == nil {
				return nil, ilerrors.ErrUnsafeRule.New(ba.Atom.Relation, ba.Atom.Relation)
			}
			sub, err := cb.probeAtom(ba.Atom)
			if err != nil {
				return nil, err
			}
			lk, rk := joinKeys(cb.vars, sub.vars)
			node = &Antijoin{Left: node, Right: sub.node, LeftKeys: lk, RightKeys: rk}

		case ba.Comparison != nil:
			left, err := cb.lowerExpr(ba.Comparison.Left, node)
			if err != nil {
				return nil, err
			}
			right, err := cb.lowerExpr(ba.Comparison.Right, node)
			if err != nil {
				return nil, err
			}
			node = &Filter{Child: node, Preds: []FilterPred{Compare{Op: cmpOpString(ba.Comparison.Op), Left: left, Right: right}}}

		case ba.Binding != nil:
			if _, ok := ba.Binding.Expr.(*parser.AggExpr); ok {
				aggBinding = ba.Binding
				continue
			}
			expr, err := cb.lowerExpr(ba.Binding.Expr, node)
			if err != nil {
				return nil, err
			}
			node = appendMapColumn(cb, node, ba.Binding.Var, expr)
			cb.vars[ba.Binding.Var] = binding{col: len(node.Vars()) - 1}
		}
	}

	if aggBinding != nil {
		var err error
		node, err = cb.wrapAggregate(node, aggBinding)
		if err != nil {
			return nil, err
		}
	}

	return node, nil
}

// atomBinding is the scan/filter subtree produced for one atom, plus the
// variable-to-column bindings it established (used to compute Antijoin join
// keys against the accumulated left side).
type atomBinding struct {
	node Node
	vars map[string]binding
}

// bindAtom folds atom into the running join tree: first occurrence of a
// relation becomes a Scan (joined via equi-join keys against any variables
// already bound on the left), constant arguments and within-atom variable
// repeats become Filter predicates (spec.md §4.4 "Head constants ... fresh
// temp variables and equality filters" generalizes to any atom position).
func (cb *clauseBuilder) bindAtom(atom *parser.Atom, left Node) (Node, error) {
	meta, ok := cb.cat.Lookup(atom.Relation)
	var cols []string
	if ok {
		cols = meta.Schema.ColumnNames()
	} else {
		cols = make([]string, len(atom.Args))
		for i := range cols {
			cols[i] = fmt.Sprintf("col%d", i)
		}
	}
	if len(cols) != len(atom.Args) {
		return nil, ilerrors.ErrArityMismatch.New(atom.Relation, len(cols), len(atom.Args))
	}

	scan := &Scan{Relation: atom.Relation, Columns: cols}
	var localPreds []FilterPred
	firstOccur := make(map[string]int)

	for i, arg := range atom.Args {
		switch {
		case arg.IsAnonymous:
			continue
		case arg.IsVar:
			if pos, seen := firstOccur[arg.VarName]; seen {
				localPreds = append(localPreds, EqCols{A: pos, B: i})
				continue
			}
			firstOccur[arg.VarName] = i
		default:
			localPreds = append(localPreds, EqConst{Pos: i, Value: arg.Const})
		}
	}

	var scanNode Node = scan
	if len(localPreds) > 0 {
		scanNode = &Filter{Child: scan, Preds: localPreds}
	}

	// equi-join against variables this atom shares with the accumulated left side
	var leftKeys, rightKeys []int
	for varName, pos := range firstOccur {
		if b, already := cb.vars[varName]; already && left != nil {
			leftKeys = append(leftKeys, b.col)
			rightKeys = append(rightKeys, pos)
		}
	}

	var joined Node
	if left == nil {
		joined = scanNode
	} else if len(leftKeys) > 0 {
		joined = &Join{Left: left, Right: scanNode, LeftKeys: leftKeys, RightKeys: rightKeys}
	} else {
		// no shared variables: cartesian product via a join with no keys
		joined = &Join{Left: left, Right: scanNode}
	}

	offset := 0
	if left != nil {
		offset = len(left.Vars())
	}
	for varName, pos := range firstOccur {
		cb.vars[varName] = binding{col: offset + pos}
	}

	return joined, nil
}

// probeAtom builds an atom's subtree in isolation (for the right side of an
// Antijoin, which must not see the accumulated left bindings).
func (cb *clauseBuilder) probeAtom(atom *parser.Atom) (*atomBinding, error) {
	sub := &clauseBuilder{cat: cb.cat, vars: make(map[string]binding)}
	node, err := sub.bindAtom(atom, nil)
	if err != nil {
		return nil, err
	}
	return &atomBinding{node: node, vars: sub.vars}, nil
}

// joinKeys pairs up the columns of two variable bindings that share a
// variable name, sorted by variable name for determinism.
func joinKeys(left, right map[string]binding) ([]int, []int) {
	var shared []string
	for v := range right {
		if _, ok := left[v]; ok {
			shared = append(shared, v)
		}
	}
	sort.Strings(shared)
	lk := make([]int, len(shared))
	rk := make([]int, len(shared))
	for i, v := range shared {
		lk[i] = left[v].col
		rk[i] = right[v].col
	}
	return lk, rk
}

// appendMapColumn keeps every existing bound variable's column (by its
// current cb.vars position) and appends one new computed column, producing
// a Map whose column i corresponds to cb.vars position i for i < n, with
// the new column last.
func appendMapColumn(cb *clauseBuilder, child Node, name string, expr Scalar) Node {
	type kv struct {
		name string
		col  int
	}
	ordered := make([]kv, 0, len(cb.vars))
	for n, b := range cb.vars {
		ordered = append(ordered, kv{n, b.col})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].col < ordered[j].col })

	exprs := make([]MapExpr, 0, len(ordered)+1)
	for _, kv := range ordered {
		exprs = append(exprs, MapExpr{Name: kv.name, Expr: ColRef{Pos: kv.col, Name: kv.name}})
	}
	exprs = append(exprs, MapExpr{Name: name, Expr: expr})

	m := &Map{Child: child, Exprs: exprs}
	for i, kv := range ordered {
		cb.vars[kv.name] = binding{col: i}
	}
	return m
}

// wrapAggregate builds an Aggregate node for a body binding whose expression
// is an aggregate call, grouping by every other head... in practice every
// other currently-bound variable (spec.md §4.4: "group keys drawn from the
// remaining head variables").
func (cb *clauseBuilder) wrapAggregate(child Node, b *parser.Binding) (Node, error) {
	agg := b.Expr.(*parser.AggExpr)

	var groupNames []string
	for name := range cb.vars {
		if name == agg.Arg {
			continue
		}
		groupNames = append(groupNames, name)
	}
	sort.Strings(groupNames)

	groupKeys := make([]int, len(groupNames))
	for i, name := range groupNames {
		groupKeys[i] = cb.vars[name].col
	}

	inputPos := -1
	if agg.Arg != "" {
		ab, ok := cb.vars[agg.Arg]
		if !ok {
			return nil, ilerrors.ErrUnboundHeadVariable.New(agg.Arg, "")
		}
		inputPos = ab.col
	}

	spec := AggSpec{Func: AggFunc(agg.Func), InputPos: inputPos, OutName: b.Var, K: agg.K}
	result := &Aggregate{Child: child, GroupKeys: groupKeys, Aggs: []AggSpec{spec}}

	cb.vars = make(map[string]binding, len(groupNames)+1)
	for i, name := range groupNames {
		cb.vars[name] = binding{col: i}
	}
	cb.vars[b.Var] = binding{col: len(groupNames)}
	return result, nil
}

// lowerExpr translates a parser.Expr into a Scalar over the current (node)
// variable bindings.
func (cb *clauseBuilder) lowerExpr(e parser.Expr, node Node) (Scalar, error) {
	switch t := e.(type) {
	case *parser.TermExpr:
		if t.Term.IsVar {
			if t.Term.IsAnonymous {
				return nil, ilerrors.ErrUnboundHeadVariable.New("_", "")
			}
			b, ok := cb.vars[t.Term.VarName]
			if !ok {
				return nil, ilerrors.ErrUnboundHeadVariable.New(t.Term.VarName, "")
			}
			return ColRef{Pos: b.col, Name: t.Term.VarName}, nil
		}
		return Const{Value: t.Term.Const}, nil
	case *parser.BinaryExpr:
		left, err := cb.lowerExpr(t.Left, node)
		if err != nil {
			return nil, err
		}
		right, err := cb.lowerExpr(t.Right, node)
		if err != nil {
			return nil, err
		}
		return Arith{Op: t.Op, Left: left, Right: right}, nil
	default:
		return nil, ilerrors.ErrInvalidArgument.New("unsupported expression in this position")
	}
}

func cmpOpString(op parser.Comparator) string {
	switch op {
	case parser.CmpEq:
		return "="
	case parser.CmpNeq:
		return "!="
	case parser.CmpLt:
		return "<"
	case parser.CmpLte:
		return "<="
	case parser.CmpGt:
		return ">"
	case parser.CmpGte:
		return ">="
	default:
		return "="
	}
}

// buildHead projects the body's bound variables into head-argument order.
// A head constant is lowered by introducing a fresh temp variable bound to
// that value via Map, rather than written directly into the projection
// (spec.md §4.4). An unbound head variable is a safety violation.
func (cb *clauseBuilder) buildHead(head *parser.Atom, body Node) (Node, []string, error) {
	if body == nil {
		// a fact-only clause with an empty body is not produced by the
		// parser (inserts are a separate statement kind), so this path
		// only triggers for a head with zero positive body atoms.
		return nil, nil, ilerrors.ErrUnsafeRule.New(head.Relation, head.Relation)
	}

	headVars := make([]string, len(head.Args))
	cur := body
	for i, arg := range head.Args {
		switch {
		case arg.IsVar && !arg.IsAnonymous:
			if _, ok := cb.vars[arg.VarName]; !ok {
				return nil, nil, ilerrors.ErrUnsafeRule.New(head.Relation, arg.VarName)
			}
			headVars[i] = arg.VarName
		case !arg.IsVar:
			fresh := cb.freshVar()
			cur = appendMapColumn(cb, cur, fresh, Const{Value: arg.Const})
			cb.vars[fresh] = binding{col: len(cur.Vars()) - 1}
			headVars[i] = fresh
		default:
			return nil, nil, ilerrors.ErrUnboundHeadVariable.New("_", head.Relation)
		}
	}

	return projectVars(cur, cb.vars, headVars), headVars, nil
}

// projectVars emits a Map node that selects node's columns to exactly the
// given variable list, in order, naming each output column after its
// Datalog variable.
func projectVars(node Node, vars map[string]binding, names []string) Node {
	exprs := make([]MapExpr, len(names))
	for i, n := range names {
		exprs[i] = MapExpr{Name: n, Expr: ColRef{Pos: vars[n].col, Name: n}}
	}
	return &Map{Child: node, Exprs: exprs}
}
