package exec

import (
	"sort"

	"github.com/inputlayer/inputlayer/ir"
	"github.com/inputlayer/inputlayer/value"
)

// groupState accumulates one aggregate's running state for one group key.
type groupState struct {
	count      int64
	sumInt     int64
	sumFloat   float64
	sawFloat   bool
	min, max   value.Value
	haveMinMax bool
	distinct   map[uint64]bool
	topK       []value.Value
}

// evalAggregate groups child by groupKeys and reduces each group with aggs,
// implementing the null-handling rules of spec.md §4.7: avg excludes nulls
// from both numerator and denominator; count(*) counts every row including
// nulls; count(var) and sum/min/max/avg skip null inputs entirely.
func evalAggregate(child *Bag, groupKeys []int, aggs []ir.AggSpec) (*Bag, error) {
	groups := make(map[uint64]value.Tuple)
	states := make(map[uint64][]*groupState)
	var firstErr error

	child.Each(func(t value.Tuple, mult int64) {
		if firstErr != nil || mult <= 0 {
			return
		}
		key := t.Project(groupKeys)
		h := key.Hash()
		if _, ok := groups[h]; !ok {
			groups[h] = key
			states[h] = make([]*groupState, len(aggs))
			for i := range aggs {
				states[h][i] = &groupState{distinct: make(map[uint64]bool)}
			}
		}
		for i, a := range aggs {
			for r := int64(0); r < mult; r++ {
				if err := foldInto(states[h][i], a, t); err != nil {
					firstErr = err
					return
				}
			}
		}
	})
	if firstErr != nil {
		return nil, firstErr
	}

	out := NewBag()
	for h, key := range groups {
		row := append(value.Tuple{}, key...)
		for i, a := range aggs {
			row = append(row, finalize(states[h][i], a))
		}
		out.Add(row, 1)
	}
	return out, nil
}

func foldInto(s *groupState, a ir.AggSpec, t value.Tuple) error {
	var input value.Value
	if a.InputPos >= 0 {
		input = t[a.InputPos]
	}

	switch a.Func {
	case ir.AggCount:
		// count<> (InputPos<0) counts every row, including nulls;
		// count<V> (InputPos>=0) skips rows where V is null.
		if a.InputPos < 0 || !input.IsNull() {
			s.count++
		}
	case ir.AggCountDistinct:
		if a.InputPos >= 0 && !input.IsNull() {
			h := (value.Tuple{input}).Hash()
			if !s.distinct[h] {
				s.distinct[h] = true
				s.count++
			}
		}
	case ir.AggSum, ir.AggAvg:
		if input.IsNull() {
			return nil
		}
		s.count++
		if !s.sawFloat && input.Kind() == value.KindFloat64 {
			s.sawFloat = true
			s.sumFloat = float64(s.sumInt)
			s.sumInt = 0
		}
		if s.sawFloat {
			s.sumFloat += input.AsFloat()
		} else {
			s.sumInt += input.AsInt64()
		}
	case ir.AggMin, ir.AggMax:
		if input.IsNull() {
			return nil
		}
		if !s.haveMinMax {
			s.min, s.max = input, input
			s.haveMinMax = true
			return nil
		}
		cmp, err := value.Compare(input, s.min)
		if err != nil {
			return err
		}
		if cmp < 0 {
			s.min = input
		}
		cmp, err = value.Compare(input, s.max)
		if err != nil {
			return err
		}
		if cmp > 0 {
			s.max = input
		}
	case ir.AggTopK:
		if input.IsNull() {
			return nil
		}
		s.topK = append(s.topK, input)
		sort.Slice(s.topK, func(i, j int) bool {
			cmp, _ := value.Compare(s.topK[i], s.topK[j])
			return cmp > 0
		})
		if a.K > 0 && len(s.topK) > a.K {
			s.topK = s.topK[:a.K]
		}
	}
	return nil
}

func finalize(s *groupState, a ir.AggSpec) value.Value {
	switch a.Func {
	case ir.AggCount, ir.AggCountDistinct:
		return value.Int64(s.count)
	case ir.AggSum:
		if s.count == 0 {
			return value.Null()
		}
		if s.sawFloat {
			return value.Float64(s.sumFloat)
		}
		return value.Int64(s.sumInt)
	case ir.AggAvg:
		if s.count == 0 {
			return value.Null()
		}
		total := s.sumFloat
		if !s.sawFloat {
			total = float64(s.sumInt)
		}
		return value.Float64(total / float64(s.count))
	case ir.AggMin:
		if !s.haveMinMax {
			return value.Null()
		}
		return s.min
	case ir.AggMax:
		if !s.haveMinMax {
			return value.Null()
		}
		return s.max
	case ir.AggTopK:
		if len(s.topK) == 0 {
			return value.Null()
		}
		floats := make([]float32, len(s.topK))
		for i, v := range s.topK {
			floats[i] = float32(v.AsFloat())
		}
		return value.VectorF32(floats)
	default:
		return value.Null()
	}
}
