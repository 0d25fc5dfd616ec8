package catalog

import (
	"sort"

	ilerrors "github.com/inputlayer/inputlayer/errors"
	"github.com/inputlayer/inputlayer/parser"
)

// RegisterRule appends one clause to the rule-set for its head name (spec.md
// §3 "A rule-set for a head name is the union of its clauses", §4.9
// "register/drop a rule"). Session rules are never registered here; callers
// evaluate them as ad-hoc IR trees (spec.md §9).
func (c *Catalog) RegisterRule(rule *parser.Rule, sourceText string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	head := rule.Head.Relation
	rs, ok := c.rules[head]
	if !ok {
		rs = &RuleSet{HeadName: head, Persistent: true}
		c.rules[head] = rs
	}
	rs.Clauses = append(rs.Clauses, &RuleClause{AST: rule, SourceText: sourceText})
	return nil
}

// DropRule removes the entire rule-set for head, along with its derived
// relation metadata.
func (c *Catalog) DropRule(head string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rules[head]; !ok {
		return ilerrors.ErrRelationNotFound.New(head, "")
	}
	delete(c.rules, head)
	delete(c.relations, head)
	return nil
}

// RuleSetFor returns the registered clauses for head, if any.
func (c *Catalog) RuleSetFor(head string) (*RuleSet, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rs, ok := c.rules[head]
	return rs, ok
}

// EnumerateRules lists registered rule-sets in sorted head-name order
// (spec.md §4.3 enumerate; §6 list_rules).
func (c *Catalog) EnumerateRules() []*RuleSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*RuleSet, 0, len(c.rules))
	for _, rs := range c.rules {
		out = append(out, rs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HeadName < out[j].HeadName })
	return out
}

// RuleDefinition reconstructs the source text of every clause for head,
// satisfying the rule_definition round-trip supplemented in SPEC_FULL.md.
func (c *Catalog) RuleDefinition(head string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rs, ok := c.rules[head]
	if !ok {
		return nil, ilerrors.ErrRelationNotFound.New(head, "")
	}
	out := make([]string, len(rs.Clauses))
	for i, cl := range rs.Clauses {
		out[i] = cl.SourceText
	}
	return out, nil
}

// DependencyGraph computes the rule dependency edges the stratifier SCCs
// over (spec.md §4.6): one edge per (head, body-relation) pair, negative
// when the body atom is negated or feeds an aggregate.
func (c *Catalog) DependencyGraph() []DepEdge {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var edges []DepEdge
	seen := make(map[DepEdge]bool)
	add := func(e DepEdge) {
		if !seen[e] {
			seen[e] = true
			edges = append(edges, e)
		}
	}

	for head, rs := range c.rules {
		for _, clause := range rs.Clauses {
			aggVars := make(map[string]bool)
			for _, ba := range clause.AST.Body {
				if ba.Binding != nil {
					if agg, ok := ba.Binding.Expr.(*parser.AggExpr); ok && agg.Arg != "" {
						aggVars[agg.Arg] = true
					}
				}
			}
			for _, ba := range clause.AST.Body {
				if ba.Atom == nil {
					continue
				}
				negative := ba.Atom.Negated
				if !negative {
					for _, arg := range ba.Atom.Args {
						if arg.IsVar && aggVars[arg.VarName] {
							negative = true
							break
						}
					}
				}
				add(DepEdge{Head: head, Body: ba.Atom.Relation, Negative: negative})
			}
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Head != edges[j].Head {
			return edges[i].Head < edges[j].Head
		}
		return edges[i].Body < edges[j].Body
	})
	return edges
}
