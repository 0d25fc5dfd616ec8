// Package stratifier computes the evaluation order of mutually-dependent
// rule-sets (spec.md §4.6): a Tarjan strongly-connected-components pass over
// the catalog's rule dependency graph, rejecting any component that
// contains a negative (negation or aggregate-input) edge.
package stratifier

import (
	"sort"

	ilerrors "github.com/inputlayer/inputlayer/errors"
)

// Stratum is one strongly-connected component of the dependency graph, in
// the order it must be evaluated (spec.md §4.6: strata are topologically
// ordered, each evaluated to a fixpoint before the next begins).
type Stratum struct {
	Heads     []string
	Recursive bool // true when the SCC has more than one member or a self-loop
}

// Edge mirrors catalog.DepEdge without importing catalog, so this package
// stays usable against any dependency-edge source.
type Edge struct {
	Head, Body string
	Negative   bool
}

// Stratify computes the strata for the relations named in heads, using
// edges as the full dependency graph (heads may reference relations with
// no further edges, e.g. base relations, which simply form their own
// trivial, non-recursive stratum if referenced).
func Stratify(heads []string, edges []Edge) ([]Stratum, error) {
	g := newGraph(heads, edges)
	sccs := g.tarjanSCCs()

	negWithin := make(map[string]bool) // canonical node -> has an internal negative edge
	for _, e := range edges {
		if e.Negative && g.sccOf[e.Head] != "" && g.sccOf[e.Head] == g.sccOf[e.Body] {
			negWithin[g.sccOf[e.Head]] = true
		}
	}

	strata := make([]Stratum, 0, len(sccs))
	for _, comp := range sccs {
		recursive := len(comp) > 1
		if !recursive && len(comp) == 1 {
			for _, e := range edges {
				if e.Head == comp[0] && e.Body == comp[0] {
					recursive = true
				}
			}
		}
		sort.Strings(comp)
		canon := comp[0]
		if negWithin[canon] {
			return nil, ilerrors.ErrStratificationViolation.New(comp)
		}
		strata = append(strata, Stratum{Heads: comp, Recursive: recursive})
	}
	return strata, nil
}

// graph is an adjacency-list view of the dependency edges over every
// relation named in heads or in any edge, built fresh per Stratify call.
type graph struct {
	nodes []string
	adj   map[string][]string
	sccOf map[string]string // node -> canonical (lowest-sorted) member of its SCC, filled after tarjanSCCs
}

func newGraph(heads []string, edges []Edge) *graph {
	adj := make(map[string][]string)
	nodeSet := make(map[string]bool)
	for _, h := range heads {
		nodeSet[h] = true
	}
	for _, e := range edges {
		nodeSet[e.Head] = true
		nodeSet[e.Body] = true
		adj[e.Head] = append(adj[e.Head], e.Body)
	}
	nodes := make([]string, 0, len(nodeSet))
	for n := range nodeSet {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return &graph{nodes: nodes, adj: adj, sccOf: make(map[string]string)}
}

// tarjanSCCs returns strongly-connected components in reverse topological
// order (a component's dependencies appear before it), which is exactly the
// evaluation order strata need.
func (g *graph) tarjanSCCs() [][]string {
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var result [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		neighbors := append([]string{}, g.adj[v]...)
		sort.Strings(neighbors)
		for _, w := range neighbors {
			if _, seen := indices[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var comp []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sort.Strings(comp)
			for _, m := range comp {
				g.sccOf[m] = comp[0]
			}
			result = append(result, comp)
		}
	}

	for _, v := range g.nodes {
		if _, seen := indices[v]; !seen {
			strongconnect(v)
		}
	}
	return result
}
