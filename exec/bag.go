// Package exec implements the incremental-style dataflow evaluator (spec.md
// §4.7): it walks an optimized, stratified ir.Node tree and produces a
// multiset of result tuples, iterating recursive strata to a fixpoint over
// diff triples (tuple, logical time, multiplicity).
package exec

import "github.com/inputlayer/inputlayer/value"

// Diff is one (tuple, multiplicity) entry; positive multiplicity is an
// addition, negative a retraction (spec.md §3 "diff triple", time is
// tracked at the Bag/generation level rather than per-entry here since a
// single evaluation pass works against one logical snapshot).
type Diff struct {
	Tuple value.Tuple
	Mult  int64
}

// Bag is a consolidated multiset of tuples, keyed by tuple hash with
// collision chaining.
type Bag struct {
	buckets map[uint64][]Diff
	size    int
}

func NewBag() *Bag {
	return &Bag{buckets: make(map[uint64][]Diff)}
}

// Add folds mult into t's current multiplicity, removing the entry if the
// result is zero (spec.md §3: consolidation drops zero-multiplicity
// entries).
func (b *Bag) Add(t value.Tuple, mult int64) {
	h := t.Hash()
	chain := b.buckets[h]
	for i, d := range chain {
		if d.Tuple.Equal(t) {
			newMult := d.Mult + mult
			if newMult == 0 {
				chain = append(chain[:i], chain[i+1:]...)
				b.size--
			} else {
				chain[i].Mult = newMult
			}
			b.buckets[h] = chain
			return
		}
	}
	if mult != 0 {
		b.buckets[h] = append(chain, Diff{Tuple: t.Clone(), Mult: mult})
		b.size++
	}
}

// Each calls fn for every (tuple, multiplicity) entry in an unspecified
// order.
func (b *Bag) Each(fn func(t value.Tuple, mult int64)) {
	for _, chain := range b.buckets {
		for _, d := range chain {
			fn(d.Tuple, d.Mult)
		}
	}
}

func (b *Bag) Len() int { return b.size }

// Lookup returns the current multiplicity of t (0 if absent).
func (b *Bag) Lookup(t value.Tuple) int64 {
	for _, d := range b.buckets[t.Hash()] {
		if d.Tuple.Equal(t) {
			return d.Mult
		}
	}
	return 0
}

// Clone returns an independent copy of b.
func (b *Bag) Clone() *Bag {
	out := NewBag()
	b.Each(func(t value.Tuple, mult int64) { out.Add(t, mult) })
	return out
}

// Minus computes a - b, entry-wise (used to compute a Fixpoint iteration's
// delta: new minus old).
func Minus(a, b *Bag) *Bag {
	out := a.Clone()
	b.Each(func(t value.Tuple, mult int64) { out.Add(t, -mult) })
	return out
}

// Merge adds every entry of b into a fresh copy of a.
func Merge(a, b *Bag) *Bag {
	out := a.Clone()
	b.Each(func(t value.Tuple, mult int64) { out.Add(t, mult) })
	return out
}
