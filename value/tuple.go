package value

import "github.com/OneOfOne/xxhash"

// Tuple is an ordered sequence of Values; arity is fixed per relation (§3).
type Tuple []Value

// Equal is pointwise equality across the full arity.
func (t Tuple) Equal(o Tuple) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if !t[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Hash produces a stable 64-bit digest over every column, used to key the
// arrange-by-key join index and the bolt-backed columnar batch store (§4.8).
func (t Tuple) Hash() uint64 {
	h := xxhash.New64()
	for _, v := range t {
		v.Hash(h)
	}
	return h.Sum64()
}

// Project extracts the columns at positions into a new tuple, preserving
// order; used by Join/Antijoin key extraction and by head projections.
func (t Tuple) Project(positions []int) Tuple {
	out := make(Tuple, len(positions))
	for i, p := range positions {
		out[i] = t[p]
	}
	return out
}

// Clone returns a shallow copy safe to mutate in place (e.g. Map column rewrite).
func (t Tuple) Clone() Tuple {
	out := make(Tuple, len(t))
	copy(out, t)
	return out
}

// Append returns a new tuple with extra columns appended, used by Map nodes
// that compute new columns rather than replacing existing ones.
func (t Tuple) Append(extra ...Value) Tuple {
	out := make(Tuple, 0, len(t)+len(extra))
	out = append(out, t...)
	out = append(out, extra...)
	return out
}

// KeyHash hashes only the columns at the given key positions; the join
// operator uses this to build its per-key index without materializing a
// projected Tuple for every probe.
func KeyHash(t Tuple, keys []int) uint64 {
	h := xxhash.New64()
	for _, k := range keys {
		t[k].Hash(h)
	}
	return h.Sum64()
}
