package exec

import (
	"github.com/inputlayer/inputlayer/ir"
	"github.com/inputlayer/inputlayer/value"
)

func evalScalar(s ir.Scalar, row value.Tuple) (value.Value, error) {
	switch t := s.(type) {
	case ir.ColRef:
		return row[t.Pos], nil
	case ir.Const:
		return t.Value, nil
	case ir.Arith:
		left, err := evalScalar(t.Left, row)
		if err != nil {
			return value.Value{}, err
		}
		right, err := evalScalar(t.Right, row)
		if err != nil {
			return value.Value{}, err
		}
		result, _, err := value.Arith(value.Op(t.Op), left, right)
		return result, err
	default:
		return value.Value{}, nil
	}
}

func evalPred(p ir.FilterPred, row value.Tuple) (bool, error) {
	switch t := p.(type) {
	case ir.EqConst:
		if row[t.Pos].IsNull() || t.Value.IsNull() {
			return false, nil
		}
		cmp, err := value.Compare(row[t.Pos], t.Value)
		if err != nil {
			return false, err
		}
		return cmp == 0, nil
	case ir.EqCols:
		if row[t.A].IsNull() || row[t.B].IsNull() {
			return false, nil
		}
		cmp, err := value.Compare(row[t.A], row[t.B])
		if err != nil {
			return false, err
		}
		return cmp == 0, nil
	case ir.Compare:
		left, err := evalScalar(t.Left, row)
		if err != nil {
			return false, err
		}
		right, err := evalScalar(t.Right, row)
		if err != nil {
			return false, err
		}
		if left.IsNull() || right.IsNull() {
			return false, nil
		}
		cmp, err := value.Compare(left, right)
		if err != nil {
			return false, err
		}
		switch t.Op {
		case "=":
			return cmp == 0, nil
		case "!=":
			return cmp != 0, nil
		case "<":
			return cmp < 0, nil
		case "<=":
			return cmp <= 0, nil
		case ">":
			return cmp > 0, nil
		case ">=":
			return cmp >= 0, nil
		}
	}
	return false, nil
}

func evalFilter(child *Bag, preds []ir.FilterPred) (*Bag, error) {
	out := NewBag()
	var firstErr error
	child.Each(func(t value.Tuple, mult int64) {
		if firstErr != nil {
			return
		}
		for _, p := range preds {
			ok, err := evalPred(p, t)
			if err != nil {
				firstErr = err
				return
			}
			if !ok {
				return
			}
		}
		out.Add(t, mult)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func evalMap(child *Bag, exprs []ir.MapExpr) (*Bag, error) {
	out := NewBag()
	var firstErr error
	child.Each(func(t value.Tuple, mult int64) {
		if firstErr != nil {
			return
		}
		row := make(value.Tuple, len(exprs))
		for i, e := range exprs {
			v, err := evalScalar(e.Expr, t)
			if err != nil {
				firstErr = err
				return
			}
			row[i] = v
		}
		out.Add(row, mult)
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func evalJoin(left, right *Bag, leftKeys, rightKeys []int) *Bag {
	out := NewBag()
	index := make(map[uint64][]struct {
		tuple value.Tuple
		mult  int64
	})
	right.Each(func(t value.Tuple, mult int64) {
		h := value.KeyHash(t, rightKeys)
		index[h] = append(index[h], struct {
			tuple value.Tuple
			mult  int64
		}{t, mult})
	})

	left.Each(func(lt value.Tuple, lmult int64) {
		h := value.KeyHash(lt, leftKeys)
		for _, cand := range index[h] {
			if !keysEqual(lt, leftKeys, cand.tuple, rightKeys) {
				continue
			}
			out.Add(append(append(value.Tuple{}, lt...), cand.tuple...), lmult*cand.mult)
		}
	})
	return out
}

func keysEqual(a value.Tuple, aKeys []int, b value.Tuple, bKeys []int) bool {
	for i := range aKeys {
		if !a[aKeys[i]].Equal(b[bKeys[i]]) {
			return false
		}
	}
	return true
}

// evalAntijoin keeps every left tuple whose join-key values do not appear
// (with positive multiplicity) anywhere in right — the negation operator,
// restricted by stratification to only ever see a fully-evaluated right
// side (spec.md §4.6, §4.7).
func evalAntijoin(left, right *Bag, leftKeys, rightKeys []int) *Bag {
	present := make(map[uint64][]value.Tuple)
	right.Each(func(t value.Tuple, mult int64) {
		if mult <= 0 {
			return
		}
		h := value.KeyHash(t, rightKeys)
		present[h] = append(present[h], t)
	})

	out := NewBag()
	left.Each(func(t value.Tuple, mult int64) {
		h := value.KeyHash(t, leftKeys)
		for _, cand := range present[h] {
			if keysEqual(t, leftKeys, cand, rightKeys) {
				return
			}
		}
		out.Add(t, mult)
	})
	return out
}
