// Package optimizer rewrites an IR tree produced by ir.Build into an
// equivalent, cheaper one (spec.md §4.5): algebraic simplification run to a
// fixpoint (including filter pushdown and constant folding), join planning
// over the atom hypergraph, sideways information passing, semiring/boolean
// specialization, and structural-hash-based subplan sharing within one
// stratum.
package optimizer

import (
	"fmt"

	"github.com/mitchellh/hashstructure"

	"github.com/inputlayer/inputlayer/ir"
	"github.com/inputlayer/inputlayer/value"
)

// Optimize runs the full pass pipeline over node: algebraic rewrites to a
// fixpoint, join planning, another fixpoint (so pushdown can react to the
// new join shape), SIP, semiring specialization, and finally subplan
// sharing (never across the stratum boundary — callers are expected to
// call Optimize once per stratum, not across strata — spec.md §4.5).
func Optimize(node ir.Node) ir.Node {
	node = fixpointRewrite(node)
	node = planJoins(node)
	node = fixpointRewrite(node)
	node = applySIP(node)
	node = fixpointRewrite(node)
	node = specializeSemiring(node)
	node = fixpointRewrite(node)
	return shareSubplans(node)
}

// fixpointRewrite applies rewriteOnce until it reports no further change.
func fixpointRewrite(node ir.Node) ir.Node {
	for {
		rewritten, changed := rewriteOnce(node)
		node = rewritten
		if !changed {
			return node
		}
	}
}

// rewriteOnce applies one bottom-up pass of local algebraic rewrites and
// reports whether anything changed, so fixpointRewrite can iterate to a
// fixpoint.
func rewriteOnce(node ir.Node) (ir.Node, bool) {
	changed := false

	rewriteChild := func(n ir.Node) ir.Node {
		if n == nil {
			return nil
		}
		r, c := rewriteOnce(n)
		if c {
			changed = true
		}
		return r
	}

	switch t := node.(type) {
	case *ir.Filter:
		child := rewriteChild(t.Child)

		preds, folded := foldPreds(t.Preds)
		if folded {
			changed = true
		}
		if len(preds) == 0 {
			changed = true
			return child, changed
		}
		if inner, ok := child.(*ir.Filter); ok {
			changed = true
			return &ir.Filter{Child: inner.Child, Preds: append(append([]ir.FilterPred{}, inner.Preds...), preds...)}, changed
		}
		switch c := child.(type) {
		case *ir.Join:
			if out, ok := pushThroughJoin(c, preds); ok {
				changed = true
				return out, changed
			}
		case *ir.Antijoin:
			// an Antijoin's output is exactly its left side's columns
			// (ir.Antijoin.Vars() == Left.Vars()), so a Filter sitting on
			// top of one can only ever reference left-side positions —
			// push every predicate straight onto Left.
			changed = true
			return &ir.Antijoin{Left: &ir.Filter{Child: c.Left, Preds: preds}, Right: c.Right, LeftKeys: c.LeftKeys, RightKeys: c.RightKeys}, changed
		case *ir.Union:
			// ir.Build only ever produces Union branches with aligned
			// output schemas (one branch per clause of the same head), so
			// the same predicate set applies unshifted to every branch.
			changed = true
			children := make([]ir.Node, len(c.ChildNodes))
			for i, uc := range c.ChildNodes {
				children[i] = &ir.Filter{Child: uc, Preds: preds}
			}
			return &ir.Union{ChildNodes: children}, changed
		}
		return &ir.Filter{Child: child, Preds: preds}, changed

	case *ir.Map:
		child := rewriteChild(t.Child)
		if isIdentityMap(t.Exprs, child) {
			changed = true
			return child, changed
		}
		return &ir.Map{Child: child, Exprs: t.Exprs}, changed

	case *ir.Join:
		left := rewriteChild(t.Left)
		right := rewriteChild(t.Right)
		return &ir.Join{Left: left, Right: right, LeftKeys: t.LeftKeys, RightKeys: t.RightKeys}, changed

	case *ir.Antijoin:
		left := rewriteChild(t.Left)
		right := rewriteChild(t.Right)
		return &ir.Antijoin{Left: left, Right: right, LeftKeys: t.LeftKeys, RightKeys: t.RightKeys}, changed

	case *ir.Union:
		children := make([]ir.Node, 0, len(t.ChildNodes))
		for _, c := range t.ChildNodes {
			rc := rewriteChild(c)
			if u, ok := rc.(*ir.Union); ok {
				changed = true
				children = append(children, u.ChildNodes...)
				continue
			}
			children = append(children, rc)
		}
		if len(children) == 1 {
			changed = true
			return children[0], changed
		}
		return &ir.Union{ChildNodes: children}, changed

	case *ir.Distinct:
		child := rewriteChild(t.Child)
		if _, ok := child.(*ir.Distinct); ok {
			changed = true
			return child, changed
		}
		return &ir.Distinct{Child: child}, changed

	case *ir.Aggregate:
		child := rewriteChild(t.Child)
		return &ir.Aggregate{Child: child, GroupKeys: t.GroupKeys, Aggs: t.Aggs}, changed

	case *ir.Scan:
		return t, changed

	default:
		return node, changed
	}
}

// isIdentityMap reports whether exprs is exactly "pass child's columns
// through unchanged, same names, same order" — the only shape a Map can
// take and still be a true no-op, since Map is the sole node that assigns
// output column names (spec.md §4.4).
func isIdentityMap(exprs []ir.MapExpr, child ir.Node) bool {
	if child == nil {
		return false
	}
	childVars := child.Vars()
	if len(exprs) != len(childVars) {
		return false
	}
	for i, e := range exprs {
		ref, ok := e.Expr.(ir.ColRef)
		if !ok || ref.Pos != i || e.Name != childVars[i] {
			return false
		}
	}
	return true
}

// predPositions lists the row positions a predicate reads, used by filter
// pushdown to decide which side of a Join or Union a predicate belongs on.
func predPositions(p ir.FilterPred) []int {
	switch t := p.(type) {
	case ir.EqConst:
		return []int{t.Pos}
	case ir.EqCols:
		return []int{t.A, t.B}
	case ir.Compare:
		return append(scalarPositions(t.Left), scalarPositions(t.Right)...)
	default:
		return nil
	}
}

func scalarPositions(s ir.Scalar) []int {
	switch t := s.(type) {
	case ir.ColRef:
		return []int{t.Pos}
	case ir.Const:
		return nil
	case ir.Arith:
		return append(scalarPositions(t.Left), scalarPositions(t.Right)...)
	default:
		return nil
	}
}

// classifyPositions reports whether every position in refs lies strictly
// below split (left-only) or at-or-above it (right-only); both are false
// when refs spans both sides.
func classifyPositions(refs []int, split int) (allLeft, allRight bool) {
	if len(refs) == 0 {
		return false, false
	}
	allLeft, allRight = true, true
	for _, p := range refs {
		if p < split {
			allRight = false
		} else {
			allLeft = false
		}
	}
	return allLeft, allRight
}

func shiftPred(p ir.FilterPred, delta int) ir.FilterPred {
	switch t := p.(type) {
	case ir.EqConst:
		return ir.EqConst{Pos: t.Pos + delta, Value: t.Value}
	case ir.EqCols:
		return ir.EqCols{A: t.A + delta, B: t.B + delta}
	case ir.Compare:
		return ir.Compare{Op: t.Op, Left: shiftScalar(t.Left, delta), Right: shiftScalar(t.Right, delta)}
	default:
		return p
	}
}

func shiftScalar(s ir.Scalar, delta int) ir.Scalar {
	switch t := s.(type) {
	case ir.ColRef:
		return ir.ColRef{Pos: t.Pos + delta, Name: t.Name}
	case ir.Const:
		return t
	case ir.Arith:
		return ir.Arith{Op: t.Op, Left: shiftScalar(t.Left, delta), Right: shiftScalar(t.Right, delta)}
	default:
		return s
	}
}

// pushThroughJoin splits preds into the part that only touches join.Left,
// the part that only touches join.Right (re-based to that side's own
// column numbering), and the part that spans both, rebuilding join with
// the first two pushed down and the third left sitting above it. It
// reports false (no rebuild) when nothing could be pushed.
func pushThroughJoin(join *ir.Join, preds []ir.FilterPred) (ir.Node, bool) {
	split := len(join.Left.Vars())
	var leftPreds, rightPreds, above []ir.FilterPred
	for _, p := range preds {
		refs := predPositions(p)
		allLeft, allRight := classifyPositions(refs, split)
		switch {
		case allLeft:
			leftPreds = append(leftPreds, p)
		case allRight:
			rightPreds = append(rightPreds, shiftPred(p, -split))
		default:
			above = append(above, p)
		}
	}
	if len(leftPreds) == 0 && len(rightPreds) == 0 {
		return nil, false
	}

	newLeft := join.Left
	if len(leftPreds) > 0 {
		newLeft = &ir.Filter{Child: join.Left, Preds: leftPreds}
	}
	newRight := join.Right
	if len(rightPreds) > 0 {
		newRight = &ir.Filter{Child: join.Right, Preds: rightPreds}
	}
	newJoin := &ir.Join{Left: newLeft, Right: newRight, LeftKeys: join.LeftKeys, RightKeys: join.RightKeys}
	if len(above) == 0 {
		return newJoin, true
	}
	return &ir.Filter{Child: newJoin, Preds: above}, true
}

// foldConstCompare evaluates a Compare predicate whose both operands are
// literal constants, returning its statically known boolean result.
func foldConstCompare(c ir.Compare) (result bool, decidable bool) {
	lc, lok := c.Left.(ir.Const)
	rc, rok := c.Right.(ir.Const)
	if !lok || !rok {
		return false, false
	}
	if lc.Value.IsNull() || rc.Value.IsNull() {
		// every comparison against null is false under evalPred's own
		// null-short-circuit (exec/operators.go), so this is decidable too.
		return false, true
	}
	cmp, err := value.Compare(lc.Value, rc.Value)
	if err != nil {
		return false, false
	}
	switch c.Op {
	case "=":
		return cmp == 0, true
	case "!=":
		return cmp != 0, true
	case "<":
		return cmp < 0, true
	case "<=":
		return cmp <= 0, true
	case ">":
		return cmp > 0, true
	case ">=":
		return cmp >= 0, true
	default:
		return false, false
	}
}

// foldPreds drops statically-true predicates (self-referential EqCols,
// const-vs-const comparisons that evaluate true) and, on the first
// statically-false predicate, collapses the whole list down to just that
// one — there is no Empty/dead-subtree IR node to express "produces
// nothing", so keeping one unsatisfiable predicate is the conservative
// equivalent.
func foldPreds(preds []ir.FilterPred) ([]ir.FilterPred, bool) {
	changed := false
	out := make([]ir.FilterPred, 0, len(preds))
	for _, p := range preds {
		switch t := p.(type) {
		case ir.EqCols:
			if t.A == t.B {
				changed = true
				continue
			}
		case ir.Compare:
			if result, decidable := foldConstCompare(t); decidable {
				changed = true
				if !result {
					// a list that already is just this one predicate is
					// unchanged, so fixpointRewrite can terminate
					return []ir.FilterPred{t}, len(preds) != 1
				}
				continue
			}
		}
		out = append(out, p)
	}
	if !changed {
		return preds, false
	}
	return out, true
}

// planJoins rewrites every maximal left-deep chain of *ir.Join nodes it
// finds into a hypergraph-planned chain (spec.md §4.5): flatten the chain
// into its leaf atoms, run Prim's maximum-weight-spanning-tree selection
// rooted at the most constrained leaf to pick a join order, emit left-deep
// in that order, and wrap in a Map to restore the original external column
// order whenever the chosen order isn't already the identity order.
// Antijoin subtrees are never decomposed — they stay leaves of the
// surrounding chain, matching spec.md §4.5's "antijoin edges kept as
// leaves".
func planJoins(node ir.Node) ir.Node {
	switch t := node.(type) {
	case *ir.Join:
		leaves, pairs := flattenJoinChain(t)
		for i, l := range leaves {
			leaves[i] = planJoins(l)
		}
		return buildPlannedJoin(leaves, pairs, t.Vars())
	case *ir.Filter:
		return &ir.Filter{Child: planJoins(t.Child), Preds: t.Preds}
	case *ir.Map:
		return &ir.Map{Child: planJoins(t.Child), Exprs: t.Exprs}
	case *ir.Antijoin:
		return &ir.Antijoin{Left: planJoins(t.Left), Right: planJoins(t.Right), LeftKeys: t.LeftKeys, RightKeys: t.RightKeys}
	case *ir.Union:
		children := make([]ir.Node, len(t.ChildNodes))
		for i, c := range t.ChildNodes {
			children[i] = planJoins(c)
		}
		return &ir.Union{ChildNodes: children}
	case *ir.Distinct:
		return &ir.Distinct{Child: planJoins(t.Child)}
	case *ir.Aggregate:
		return &ir.Aggregate{Child: planJoins(t.Child), GroupKeys: t.GroupKeys, Aggs: t.Aggs}
	default:
		return node
	}
}

// flattenJoinChain decomposes the maximal chain of *ir.Join nodes rooted at
// root into its leaves, in original left-to-right order, plus the
// equi-join key pairs the chain expresses restated as absolute positions
// against the concatenated leaf output. Working in absolute positions
// (rather than matching Vars() names across leaves) is required: Scan.Columns
// holds the underlying relation's schema names, not the Datalog variables
// that bound them, so two atoms of the same relation — an ordinary
// self-join — can carry identical column names while binding entirely
// different variables (ir/builder.go).
func flattenJoinChain(root *ir.Join) ([]ir.Node, [][2]int) {
	var leaves []ir.Node
	var absPairs [][2]int

	var collect func(n ir.Node) int
	collect = func(n ir.Node) int {
		if j, ok := n.(*ir.Join); ok {
			leftOffset := collect(j.Left)
			rightOffset := leftOffset + len(j.Left.Vars())
			for i := range j.LeftKeys {
				absPairs = append(absPairs, [2]int{leftOffset + j.LeftKeys[i], rightOffset + j.RightKeys[i]})
			}
			collect(j.Right)
			return leftOffset
		}
		off := 0
		for _, l := range leaves {
			off += len(l.Vars())
		}
		leaves = append(leaves, n)
		return off
	}
	collect(root)
	return leaves, absPairs
}

func leafOffsets(leaves []ir.Node) []int {
	offsets := make([]int, len(leaves))
	sum := 0
	for i, l := range leaves {
		offsets[i] = sum
		sum += len(l.Vars())
	}
	return offsets
}

func locateLeaf(pos int, offsets []int) (leafIdx, localPos int) {
	for i := len(offsets) - 1; i >= 0; i-- {
		if pos >= offsets[i] {
			return i, pos - offsets[i]
		}
	}
	return 0, pos
}

// edgeKeyPairs records, for one unordered pair of leaves (lo < hi), the
// aligned local column positions each shared variable occupies on each
// side.
type edgeKeyPairs struct {
	loPos, hiPos []int
}

func buildEdges(offsets []int, absPairs [][2]int) map[[2]int]*edgeKeyPairs {
	edges := make(map[[2]int]*edgeKeyPairs)
	for _, pr := range absPairs {
		la, pa := locateLeaf(pr[0], offsets)
		lb, pb := locateLeaf(pr[1], offsets)
		if la == lb {
			continue
		}
		lo, loPos, hi, hiPos := la, pa, lb, pb
		if lo > hi {
			lo, hi, loPos, hiPos = hi, lo, hiPos, loPos
		}
		key := [2]int{lo, hi}
		e := edges[key]
		if e == nil {
			e = &edgeKeyPairs{}
			edges[key] = e
		}
		e.loPos = append(e.loPos, loPos)
		e.hiPos = append(e.hiPos, hiPos)
	}
	return edges
}

// constraintScore heuristically ranks how constrained a leaf's own subtree
// already is — Filter predicates narrow it, an Antijoin narrows it further
// still — used to pick the root Prim's spanning-tree selection starts from
// (spec.md §4.5 "rooted at the most-constrained atom").
func constraintScore(n ir.Node) int {
	switch t := n.(type) {
	case *ir.Filter:
		return len(t.Preds) + constraintScore(t.Child)
	case *ir.Antijoin:
		return 1 + constraintScore(t.Left)
	case *ir.Map:
		return constraintScore(t.Child)
	case *ir.Distinct:
		return constraintScore(t.Child)
	case *ir.Aggregate:
		return constraintScore(t.Child)
	case *ir.Join:
		return constraintScore(t.Left) + constraintScore(t.Right)
	default:
		return 0
	}
}

func mostConstrainedIndex(leaves []ir.Node) int {
	best := 0
	bestScore := constraintScore(leaves[0])
	for i := 1; i < len(leaves); i++ {
		if s := constraintScore(leaves[i]); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// primOrder runs literal Prim's maximum-spanning-tree selection over the
// complete leaf graph weighted by edgeWeight, starting from root: at each
// step it adds the single highest-weight edge from any already-included
// leaf to any leaf still outside, ties broken by the lowest leaf index for
// determinism. A zero-weight choice (no shared variable with anything
// already included) falls out of the same rule and simply performs a
// cartesian product at that step.
func primOrder(n int, root int, edgeWeight func(i, j int) int) []int {
	inTree := make([]bool, n)
	inTree[root] = true
	order := []int{root}
	for len(order) < n {
		bestJ, bestW := -1, -1
		for i := 0; i < n; i++ {
			if !inTree[i] {
				continue
			}
			for j := 0; j < n; j++ {
				if inTree[j] {
					continue
				}
				if w := edgeWeight(i, j); w > bestW || (w == bestW && j < bestJ) {
					bestJ, bestW = j, w
				}
			}
		}
		inTree[bestJ] = true
		order = append(order, bestJ)
	}
	return order
}

// gatherKeys collects every equi-join key pair between leaf j and any leaf
// already in included, translated to positions within acc's current
// column layout (accOffset) on one side and leaf j's own local layout on
// the other. Every connecting edge is used here, not just the one Prim's
// selection walked — the spanning tree only chooses a join *order*;
// dropping a real equi-join condition found along the way would multiply
// rows that the original plan never produced.
func gatherKeys(j int, included []int, accOffset map[int]int, edges map[[2]int]*edgeKeyPairs) (leftKeys, rightKeys []int) {
	for _, k := range included {
		lo, hi := k, j
		swapped := false
		if lo > hi {
			lo, hi, swapped = hi, lo, true
		}
		e := edges[[2]int{lo, hi}]
		if e == nil {
			continue
		}
		for idx := range e.loPos {
			var kPos, jPos int
			if !swapped {
				kPos, jPos = e.loPos[idx], e.hiPos[idx]
			} else {
				jPos, kPos = e.loPos[idx], e.hiPos[idx]
			}
			leftKeys = append(leftKeys, accOffset[k]+kPos)
			rightKeys = append(rightKeys, jPos)
		}
	}
	return leftKeys, rightKeys
}

func buildPlannedJoin(leaves []ir.Node, absPairs [][2]int, originalVars []string) ir.Node {
	n := len(leaves)
	if n == 0 {
		return nil
	}
	if n == 1 {
		return leaves[0]
	}

	offsets := leafOffsets(leaves)
	edges := buildEdges(offsets, absPairs)
	edgeWeight := func(i, j int) int {
		lo, hi := i, j
		if lo > hi {
			lo, hi = hi, lo
		}
		if e := edges[[2]int{lo, hi}]; e != nil {
			return len(e.loPos)
		}
		return 0
	}

	root := mostConstrainedIndex(leaves)
	order := primOrder(n, root, edgeWeight)

	acc := leaves[order[0]]
	accOffset := map[int]int{order[0]: 0}
	included := []int{order[0]}
	for _, j := range order[1:] {
		leftKeys, rightKeys := gatherKeys(j, included, accOffset, edges)
		accOffset[j] = len(acc.Vars())
		acc = &ir.Join{Left: acc, Right: leaves[j], LeftKeys: leftKeys, RightKeys: rightKeys}
		included = append(included, j)
	}
	return restoreOrder(acc, leaves, order, originalVars)
}

// restoreOrder wraps acc in a Map that reproduces the original leaf
// concatenation order and names, unless the chosen join order already
// matches it — so no ancestor node's positional column references are
// ever invalidated by join reordering, and a reordering that happened to
// pick the identity order costs nothing.
func restoreOrder(acc ir.Node, leaves []ir.Node, order []int, originalVars []string) ir.Node {
	accOffsetFor := make(map[int]int, len(order))
	cursor := 0
	for _, idx := range order {
		accOffsetFor[idx] = cursor
		cursor += len(leaves[idx].Vars())
	}

	identity := true
	exprs := make([]ir.MapExpr, 0, cursor)
	pos := 0
	for i := range leaves {
		base := accOffsetFor[i]
		for k := 0; k < len(leaves[i].Vars()); k++ {
			accPos := base + k
			if accPos != pos {
				identity = false
			}
			exprs = append(exprs, ir.MapExpr{Name: originalVars[pos], Expr: ir.ColRef{Pos: accPos, Name: originalVars[pos]}})
			pos++
		}
	}
	if identity {
		return acc
	}
	return &ir.Map{Child: acc, Exprs: exprs}
}

// constFiltersAt reports the EqConst pins a Filter sitting at n's own root
// carries, keyed by column position — used by applySIP to find a constant
// already pinned on one side of a Join.
func constFiltersAt(n ir.Node) map[int]value.Value {
	f, ok := n.(*ir.Filter)
	if !ok {
		return nil
	}
	out := make(map[int]value.Value)
	for _, p := range f.Preds {
		if e, ok := p.(ir.EqConst); ok {
			out[e.Pos] = e.Value
		}
	}
	return out
}

// applySIP implements sideways information passing (spec.md §4.5): when
// one side of a Join already carries an EqConst pin on a column that is
// also one of the join's equi-join key positions, the join would discard
// every row on the other side whose key doesn't match that same constant
// anyway, so pinning it there too is sound and lets it be filtered before
// the join runs instead of after.
func applySIP(node ir.Node) ir.Node {
	switch t := node.(type) {
	case *ir.Join:
		left := applySIP(t.Left)
		right := applySIP(t.Right)
		leftConsts := constFiltersAt(left)
		rightConsts := constFiltersAt(right)

		var extraLeft, extraRight []ir.FilterPred
		for i := range t.LeftKeys {
			lp, rp := t.LeftKeys[i], t.RightKeys[i]
			if v, ok := leftConsts[lp]; ok {
				if _, already := rightConsts[rp]; !already {
					extraRight = append(extraRight, ir.EqConst{Pos: rp, Value: v})
				}
			}
			if v, ok := rightConsts[rp]; ok {
				if _, already := leftConsts[lp]; !already {
					extraLeft = append(extraLeft, ir.EqConst{Pos: lp, Value: v})
				}
			}
		}
		if len(extraLeft) > 0 {
			left = &ir.Filter{Child: left, Preds: extraLeft}
		}
		if len(extraRight) > 0 {
			right = &ir.Filter{Child: right, Preds: extraRight}
		}
		return &ir.Join{Left: left, Right: right, LeftKeys: t.LeftKeys, RightKeys: t.RightKeys}

	case *ir.Antijoin:
		return &ir.Antijoin{Left: applySIP(t.Left), Right: applySIP(t.Right), LeftKeys: t.LeftKeys, RightKeys: t.RightKeys}
	case *ir.Filter:
		return &ir.Filter{Child: applySIP(t.Child), Preds: t.Preds}
	case *ir.Map:
		return &ir.Map{Child: applySIP(t.Child), Exprs: t.Exprs}
	case *ir.Union:
		children := make([]ir.Node, len(t.ChildNodes))
		for i, c := range t.ChildNodes {
			children[i] = applySIP(c)
		}
		return &ir.Union{ChildNodes: children}
	case *ir.Distinct:
		return &ir.Distinct{Child: applySIP(t.Child)}
	case *ir.Aggregate:
		return &ir.Aggregate{Child: applySIP(t.Child), GroupKeys: t.GroupKeys, Aggs: t.Aggs}
	default:
		return node
	}
}

// specializeSemiring wraps the probe side of every Antijoin in an
// (idempotent) Distinct. An antijoin only ever asks "does a matching row
// exist" — the boolean semiring — never "how many", so deduplicating the
// probe side first caps the index evalAntijoin builds without changing
// which left-side tuples survive (spec.md §4.5).
func specializeSemiring(node ir.Node) ir.Node {
	switch t := node.(type) {
	case *ir.Antijoin:
		left := specializeSemiring(t.Left)
		right := specializeSemiring(t.Right)
		if _, ok := right.(*ir.Distinct); !ok {
			right = &ir.Distinct{Child: right}
		}
		return &ir.Antijoin{Left: left, Right: right, LeftKeys: t.LeftKeys, RightKeys: t.RightKeys}
	case *ir.Join:
		return &ir.Join{Left: specializeSemiring(t.Left), Right: specializeSemiring(t.Right), LeftKeys: t.LeftKeys, RightKeys: t.RightKeys}
	case *ir.Filter:
		return &ir.Filter{Child: specializeSemiring(t.Child), Preds: t.Preds}
	case *ir.Map:
		return &ir.Map{Child: specializeSemiring(t.Child), Exprs: t.Exprs}
	case *ir.Union:
		children := make([]ir.Node, len(t.ChildNodes))
		for i, c := range t.ChildNodes {
			children[i] = specializeSemiring(c)
		}
		return &ir.Union{ChildNodes: children}
	case *ir.Distinct:
		return &ir.Distinct{Child: specializeSemiring(t.Child)}
	case *ir.Aggregate:
		return &ir.Aggregate{Child: specializeSemiring(t.Child), GroupKeys: t.GroupKeys, Aggs: t.Aggs}
	default:
		return node
	}
}

// shareSubplans deduplicates structurally identical subtrees within node by
// hashing each subtree bottom-up with hashstructure and substituting a
// shared pointer for repeats, so equal subplans are computed once by the
// execution engine instead of once per occurrence.
func shareSubplans(node ir.Node) ir.Node {
	seen := make(map[uint64]ir.Node)
	var walk func(n ir.Node) ir.Node
	walk = func(n ir.Node) ir.Node {
		if n == nil {
			return nil
		}
		rebuilt := rebuildWithRewrittenChildren(n, walk)
		h, err := hashstructure.Hash(canonical(rebuilt), nil)
		if err != nil {
			return rebuilt
		}
		if existing, ok := seen[h]; ok {
			return existing
		}
		seen[h] = rebuilt
		return rebuilt
	}
	return walk(node)
}

func rebuildWithRewrittenChildren(n ir.Node, walk func(ir.Node) ir.Node) ir.Node {
	switch t := n.(type) {
	case *ir.Filter:
		return &ir.Filter{Child: walk(t.Child), Preds: t.Preds}
	case *ir.Map:
		return &ir.Map{Child: walk(t.Child), Exprs: t.Exprs}
	case *ir.Join:
		return &ir.Join{Left: walk(t.Left), Right: walk(t.Right), LeftKeys: t.LeftKeys, RightKeys: t.RightKeys}
	case *ir.Antijoin:
		return &ir.Antijoin{Left: walk(t.Left), Right: walk(t.Right), LeftKeys: t.LeftKeys, RightKeys: t.RightKeys}
	case *ir.Union:
		children := make([]ir.Node, len(t.ChildNodes))
		for i, c := range t.ChildNodes {
			children[i] = walk(c)
		}
		return &ir.Union{ChildNodes: children}
	case *ir.Distinct:
		return &ir.Distinct{Child: walk(t.Child)}
	case *ir.Aggregate:
		return &ir.Aggregate{Child: walk(t.Child), GroupKeys: t.GroupKeys, Aggs: t.Aggs}
	default:
		return n
	}
}

// canonicalNode is a hashstructure-friendly mirror of an ir.Node: plain
// values only, recursively built, so structurally-equal subtrees hash
// equal regardless of pointer identity.
type canonicalNode struct {
	Kind     string
	Relation string
	Columns  []string
	Preds    []string
	Exprs    []string
	Keys     [2][]int
	Group    []int
	Aggs     []string
	Children []canonicalNode
}

func canonical(n ir.Node) canonicalNode {
	switch t := n.(type) {
	case *ir.Scan:
		return canonicalNode{Kind: "scan", Relation: t.Relation, Columns: t.Columns}
	case *ir.Filter:
		preds := make([]string, len(t.Preds))
		for i, p := range t.Preds {
			preds[i] = describePred(p)
		}
		return canonicalNode{Kind: "filter", Preds: preds, Children: []canonicalNode{canonical(t.Child)}}
	case *ir.Map:
		exprs := make([]string, len(t.Exprs))
		for i, e := range t.Exprs {
			exprs[i] = e.Name + "=" + describeScalar(e.Expr)
		}
		return canonicalNode{Kind: "map", Exprs: exprs, Children: []canonicalNode{canonical(t.Child)}}
	case *ir.Join:
		return canonicalNode{Kind: "join", Keys: [2][]int{t.LeftKeys, t.RightKeys}, Children: []canonicalNode{canonical(t.Left), canonical(t.Right)}}
	case *ir.Antijoin:
		return canonicalNode{Kind: "antijoin", Keys: [2][]int{t.LeftKeys, t.RightKeys}, Children: []canonicalNode{canonical(t.Left), canonical(t.Right)}}
	case *ir.Union:
		children := make([]canonicalNode, len(t.ChildNodes))
		for i, c := range t.ChildNodes {
			children[i] = canonical(c)
		}
		return canonicalNode{Kind: "union", Children: children}
	case *ir.Distinct:
		return canonicalNode{Kind: "distinct", Children: []canonicalNode{canonical(t.Child)}}
	case *ir.Aggregate:
		aggs := make([]string, len(t.Aggs))
		for i, a := range t.Aggs {
			aggs[i] = fmt.Sprintf("%s:%d:%d:%s", a.Func, a.InputPos, a.K, a.OutName)
		}
		return canonicalNode{Kind: "aggregate", Group: t.GroupKeys, Aggs: aggs, Children: []canonicalNode{canonical(t.Child)}}
	default:
		return canonicalNode{Kind: "unknown"}
	}
}

func describePred(p ir.FilterPred) string {
	switch t := p.(type) {
	case ir.EqConst:
		return fmt.Sprintf("eqconst:%d=%s", t.Pos, t.Value.GoString())
	case ir.EqCols:
		return fmt.Sprintf("eqcols:%d=%d", t.A, t.B)
	case ir.Compare:
		return t.Op + ":" + describeScalar(t.Left) + ":" + describeScalar(t.Right)
	default:
		return "?"
	}
}

func describeScalar(s ir.Scalar) string {
	switch t := s.(type) {
	case ir.ColRef:
		return fmt.Sprintf("col:%d", t.Pos)
	case ir.Const:
		return "const:" + t.Value.GoString()
	case ir.Arith:
		return string(t.Op) + ":" + describeScalar(t.Left) + ":" + describeScalar(t.Right)
	default:
		return "?"
	}
}
