package storage

import "github.com/inputlayer/inputlayer/exec"

// layeredResolver resolves a relation name against strata already computed
// earlier in the current query (spec.md §4.9 "evaluate a query"), falling
// through to the knowledge graph's persisted base relations for anything a
// prior stratum didn't produce.
type layeredResolver struct {
	base     exec.Resolver
	computed map[string]*exec.Bag
}

func (r *layeredResolver) Resolve(relation string) (*exec.Bag, error) {
	if b, ok := r.computed[relation]; ok {
		return b, nil
	}
	return r.base.Resolve(relation)
}
