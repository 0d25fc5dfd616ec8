package exec

import (
	ilerrors "github.com/inputlayer/inputlayer/errors"
	"github.com/inputlayer/inputlayer/ir"
	"github.com/inputlayer/inputlayer/value"
)

// overlayResolver resolves a Fixpoint's own variable names to the current
// iteration's accumulated state, falling through to outer for everything
// else (base relations and already-settled earlier strata).
type overlayResolver struct {
	outer Resolver
	state map[string]*Bag
}

func (o overlayResolver) Resolve(relation string) (*Bag, error) {
	if b, ok := o.state[relation]; ok {
		return b, nil
	}
	return o.outer.Resolve(relation)
}

// evalFixpoint is the single-relation convenience entry point Eval's switch
// dispatches to; most callers want every co-iterating head's final state
// (a mutually-recursive stratum), which EvalFixpointStates provides.
func evalFixpoint(ec *Context, t *ir.Fixpoint) (*Bag, error) {
	states, err := EvalFixpointStates(ec, t)
	if err != nil {
		return nil, err
	}
	return states[t.VarNames[0]], nil
}

// EvalFixpointStates re-evaluates t.Step in full against the accumulated
// state of t.VarNames on every iteration (not semi-naively: each pass
// replaces the state with everything re-derived from the previous one)
// until every variable's delta is empty, or
// MaxRecursionDepth is exceeded (spec.md §4.7 "Fixpoint(vars, seed,
// step)"), returning every co-iterating head's final Bag — the storage
// engine's query pipeline needs all of them when a stratum groups more
// than one mutually-recursive head.
func EvalFixpointStates(ec *Context, t *ir.Fixpoint) (map[string]*Bag, error) {
	state := make(map[string]*Bag, len(t.VarNames))
	for i, name := range t.VarNames {
		seeded, err := Eval(ec, t.Seed[i])
		if err != nil {
			return nil, err
		}
		state[name] = seeded
	}

	depth := 0
	for {
		if err := ec.checkCancel(); err != nil {
			return nil, err
		}
		depth++
		if ec.limits.MaxRecursionDepth > 0 && depth > ec.limits.MaxRecursionDepth {
			return nil, ilerrors.NewLimit(ilerrors.LimitRecursionDepth, "fixpoint did not converge within the configured iteration bound")
		}

		overlay := overlayResolver{outer: ec.resolver, state: state}
		stepCtx := NewMonitoredContext(ec.ctx, overlay, ec.limits, ec.memory)

		next := make(map[string]*Bag, len(t.VarNames))
		anyDelta := false
		for i, name := range t.VarNames {
			computed, err := Eval(stepCtx, t.Step[i])
			if err != nil {
				return nil, err
			}
			// computed already re-derives everything reachable from the
			// previous iteration's state (the overlay resolves Scan(name)
			// to state[name]), so the next iteration's state is computed
			// outright rather than additively merged with the old state —
			// merging would double-count tuples re-derived on every pass.
			delta := Minus(computed, state[name])
			hasDelta := false
			delta.Each(func(_ value.Tuple, mult int64) {
				if mult != 0 {
					hasDelta = true
				}
			})
			if hasDelta {
				anyDelta = true
			}
			next[name] = computed
		}
		state = next
		if !anyDelta {
			break
		}
	}

	return state, nil
}
