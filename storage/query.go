package storage

import (
	"context"
	"sort"

	"github.com/inputlayer/inputlayer/catalog"
	ilerrors "github.com/inputlayer/inputlayer/errors"
	"github.com/inputlayer/inputlayer/exec"
	"github.com/inputlayer/inputlayer/ir"
	"github.com/inputlayer/inputlayer/optimizer"
	"github.com/inputlayer/inputlayer/parser"
	"github.com/inputlayer/inputlayer/stratifier"
	"github.com/inputlayer/inputlayer/value"
)

// QueryResult is one evaluated goal's output columns and rows, in the
// column order the goal's variables first occur (spec.md §4.7 "Query
// result").
type QueryResult struct {
	Columns []string
	Rows    []value.Tuple
}

// cachedPlan is one compiled, stratified query: the evaluation order of
// every registered rule-set, each head's optimized clause tree, and the
// goal's own optimized tree. Plans are keyed by the query's exact source
// text and invalidated wholesale on any rule mutation (spec.md §4.5 "a plan
// stays valid until the next register/drop rule").
type cachedPlan struct {
	strata   []stratifier.Stratum
	trees    map[string]ir.Node
	goal     ir.Node
	goalVars []string
}

func (kg *knowledgeGraph) lookupPlan(source string) (cachedPlan, bool) {
	var p cachedPlan
	var ok bool
	kg.planGuard.ReadLocked(func() error {
		p, ok = kg.planCache[source]
		return nil
	})
	return p, ok
}

func (kg *knowledgeGraph) storePlan(source string, p cachedPlan) {
	kg.planGuard.WriteLocked(func() error {
		kg.planCache[source] = p
		return nil
	})
}

func (kg *knowledgeGraph) invalidatePlans() {
	kg.planGuard.WriteLocked(func() error {
		kg.planCache = make(map[string]cachedPlan)
		return nil
	})
}

func depEdgesToStratifierEdges(edges []catalog.DepEdge) []stratifier.Edge {
	out := make([]stratifier.Edge, len(edges))
	for i, e := range edges {
		out[i] = stratifier.Edge{Head: e.Head, Body: e.Body, Negative: e.Negative}
	}
	return out
}

// compilePlan stratifies every registered rule-set and lowers each head's
// clauses to one optimized Union tree per head, plus the goal itself
// (spec.md §4.5, §4.6).
func (kg *knowledgeGraph) compilePlan(goal *parser.Atom) (cachedPlan, error) {
	strata, trees, err := kg.stratifyRuleSets()
	if err != nil {
		return cachedPlan{}, err
	}

	goalNode, goalVars, err := ir.BuildGoal(kg.cat, goal)
	if err != nil {
		return cachedPlan{}, err
	}

	return cachedPlan{
		strata:   strata,
		trees:    trees,
		goal:     optimizer.Optimize(goalNode),
		goalVars: goalVars,
	}, nil
}

func (kg *knowledgeGraph) planFor(source string, goal *parser.Atom) (cachedPlan, error) {
	if p, ok := kg.lookupPlan(source); ok {
		return p, nil
	}
	p, err := kg.compilePlan(goal)
	if err != nil {
		return cachedPlan{}, err
	}
	kg.storePlan(source, p)
	return p, nil
}

// baseResolver resolves straight to a knowledge graph's persisted
// base-relation cache, the bottom of every layeredResolver chain.
type baseResolver struct {
	kg *knowledgeGraph
}

func (r baseResolver) Resolve(relation string) (*exec.Bag, error) {
	if b, ok := r.kg.bags[relation]; ok {
		return b, nil
	}
	if _, ok := r.kg.cat.Lookup(relation); ok {
		return exec.NewBag(), nil
	}
	return nil, ilerrors.ErrRelationNotFound.New(relation, r.kg.name)
}

// evaluateStrata runs every stratum in order, layering each stratum's
// result over the ones computed before it, and returns every derived
// relation's final Bag (spec.md §4.6 "evaluate each stratum to a fixpoint
// before the next begins"). Shared by Query/Explain and conditional delete,
// both of which need the current derived-relation state before evaluating
// a further node against it.
func evaluateStrata(kg *knowledgeGraph, limits exec.Limits, strata []stratifier.Stratum, trees map[string]ir.Node) (map[string]*exec.Bag, error) {
	base := baseResolver{kg: kg}
	computed := make(map[string]*exec.Bag, len(trees))

	for _, st := range strata {
		resolver := &layeredResolver{base: base, computed: computed}

		if st.Recursive {
			names := make([]string, 0, len(st.Heads))
			seeds := make([]ir.Node, 0, len(st.Heads))
			steps := make([]ir.Node, 0, len(st.Heads))
			for _, h := range st.Heads {
				tree, ok := trees[h]
				if !ok {
					continue
				}
				names = append(names, h)
				seeds = append(seeds, &ir.Union{})
				steps = append(steps, tree)
			}
			if len(names) == 0 {
				continue
			}
			fp := &ir.Fixpoint{VarNames: names, Seed: seeds, Step: steps}
			ctx, cancel := context.WithTimeout(context.Background(), limits.Timeout)
			states, err := exec.EvalFixpointStates(exec.NewContext(ctx, resolver, limits), fp)
			cancel()
			if err != nil {
				return nil, err
			}
			for name, bag := range states {
				computed[name] = bag
			}
			continue
		}

		for _, h := range st.Heads {
			tree, ok := trees[h]
			if !ok {
				continue
			}
			bag, err := exec.EvalWithTimeout(context.Background(), resolver, limits, tree)
			if err != nil {
				return nil, err
			}
			computed[h] = bag
		}
	}
	return computed, nil
}

// evaluatePlan evaluates every stratum, then the goal against the fully
// layered view (spec.md §4.7 "Query result").
func evaluatePlan(kg *knowledgeGraph, limits exec.Limits, plan cachedPlan) (*QueryResult, error) {
	computed, err := evaluateStrata(kg, limits, plan.strata, plan.trees)
	if err != nil {
		return nil, err
	}
	resolver := &layeredResolver{base: baseResolver{kg: kg}, computed: computed}
	bag, err := exec.EvalWithTimeout(context.Background(), resolver, limits, plan.goal)
	if err != nil {
		return nil, err
	}

	var rows []value.Tuple
	bag.Each(func(t value.Tuple, mult int64) {
		for i := int64(0); i < mult; i++ {
			rows = append(rows, t)
		}
	})
	sort.Slice(rows, func(i, j int) bool { return lessTuple(rows[i], rows[j]) })
	return &QueryResult{Columns: plan.goalVars, Rows: rows}, nil
}

// stratifyRuleSets computes the current rule catalog's strata and each
// head's optimized clause tree — the part of compilePlan that doesn't
// depend on any particular goal or deletion pattern.
func (kg *knowledgeGraph) stratifyRuleSets() ([]stratifier.Stratum, map[string]ir.Node, error) {
	rules := kg.cat.EnumerateRules()
	heads := make([]string, len(rules))
	for i, rs := range rules {
		heads[i] = rs.HeadName
	}
	edges := depEdgesToStratifierEdges(kg.cat.DependencyGraph())
	strata, err := stratifier.Stratify(heads, edges)
	if err != nil {
		return nil, nil, err
	}

	trees := make(map[string]ir.Node, len(heads))
	for _, st := range strata {
		for _, head := range st.Heads {
			rs, ok := kg.cat.RuleSetFor(head)
			if !ok {
				continue
			}
			children := make([]ir.Node, len(rs.Clauses))
			for i, clause := range rs.Clauses {
				node, _, err := ir.Build(kg.cat, clause.AST)
				if err != nil {
					return nil, nil, err
				}
				children[i] = node
			}
			var tree ir.Node = &ir.Union{ChildNodes: children}
			if len(children) == 1 {
				tree = children[0]
			}
			trees[head] = optimizer.Optimize(tree)
		}
	}
	return strata, trees, nil
}

// lessTuple orders two result rows column by column for stable query
// output. A column whose two values cannot be compared (value.Compare's
// error case) is skipped; rows that tie on every compared column and have
// equal arity fall back to hash order, which is deterministic but not
// human-meaningful.
func lessTuple(a, b value.Tuple) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		c, err := value.Compare(a[i], b[i])
		if err != nil {
			continue
		}
		if c != 0 {
			return c < 0
		}
	}
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a.Hash() < b.Hash()
}

// Query parses source as a single query statement and evaluates its goal
// against kgName's current state (spec.md §6 "evaluate a query").
func (e *Engine) Query(kgName, source string) (*QueryResult, error) {
	kg, err := e.lookupKG(kgName)
	if err != nil {
		return nil, err
	}
	stmts, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}
	if len(stmts) != 1 {
		return nil, ilerrors.ErrInvalidArgument.New("expected exactly one query statement")
	}
	qs, ok := stmts[0].(*parser.QueryStmt)
	if !ok {
		return nil, ilerrors.ErrInvalidArgument.New("expected a query statement")
	}

	var result *QueryResult
	err = kg.guard.ReadLocked(func() error {
		plan, err := kg.planFor(source, qs.Goal)
		if err != nil {
			return err
		}
		result, err = evaluatePlan(kg, e.cfg.Limits, plan)
		return err
	})
	return result, err
}

// queryGoal evaluates goal directly, without the query-source plan cache
// (used by executeStatement/ExecuteAll, where a statement's own source text
// isn't separable from the rest of a multi-statement batch).
func (e *Engine) queryGoal(kgName string, goal *parser.Atom) (*QueryResult, error) {
	kg, err := e.lookupKG(kgName)
	if err != nil {
		return nil, err
	}
	var result *QueryResult
	err = kg.guard.ReadLocked(func() error {
		plan, err := kg.compilePlan(goal)
		if err != nil {
			return err
		}
		result, err = evaluatePlan(kg, e.cfg.Limits, plan)
		return err
	})
	return result, err
}

// Explain compiles source the same way Query would and renders the
// resulting plan tree, without evaluating it (spec.md §6 "explain(query)",
// a supplemented introspection feature).
func (e *Engine) Explain(kgName, source string) (string, error) {
	kg, err := e.lookupKG(kgName)
	if err != nil {
		return "", err
	}
	stmts, err := parser.Parse(source)
	if err != nil {
		return "", err
	}
	if len(stmts) != 1 {
		return "", ilerrors.ErrInvalidArgument.New("expected exactly one query statement")
	}
	qs, ok := stmts[0].(*parser.QueryStmt)
	if !ok {
		return "", ilerrors.ErrInvalidArgument.New("expected a query statement")
	}

	var out string
	err = kg.guard.ReadLocked(func() error {
		plan, err := kg.planFor(source, qs.Goal)
		if err != nil {
			return err
		}
		out = ir.String(plan.goal)
		return nil
	})
	return out, err
}
