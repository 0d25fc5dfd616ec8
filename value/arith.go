package value

import (
	"math"

	ilerrors "github.com/inputlayer/inputlayer/errors"
)

// Op is an arithmetic operator (§4.1): + - * / %.
type Op byte

const (
	OpAdd Op = '+'
	OpSub Op = '-'
	OpMul Op = '*'
	OpDiv Op = '/'
	OpMod Op = '%'
)

// Arith applies op to a and b under InputLayer's coercion rule: if either
// operand is float the result is float, otherwise int64; null propagates
// (null op x = null); division/modulo by zero yields null, not an error;
// integer results saturate on overflow rather than wrapping, reporting
// saturated=true so the caller can emit a trace warning (§4.1).
func Arith(op Op, a, b Value) (result Value, saturated bool, err error) {
	if a.IsNull() || b.IsNull() {
		return Null(), false, nil
	}
	if !a.Numeric() || !b.Numeric() {
		return Value{}, false, typeMismatch(a, b)
	}

	if a.kind == KindFloat64 || b.kind == KindFloat64 {
		af, bf := a.AsFloat(), b.AsFloat()
		switch op {
		case OpAdd:
			return Float64(af + bf), false, nil
		case OpSub:
			return Float64(af - bf), false, nil
		case OpMul:
			return Float64(af * bf), false, nil
		case OpDiv:
			if bf == 0 {
				return Null(), false, nil
			}
			return Float64(af / bf), false, nil
		case OpMod:
			if bf == 0 {
				return Null(), false, nil
			}
			return Float64(math.Mod(af, bf)), false, nil
		}
	}

	ai, bi := a.i, b.i
	switch op {
	case OpAdd:
		r, sat := checkedAdd(ai, bi)
		return Int64(r), sat, nil
	case OpSub:
		r, sat := checkedAdd(ai, -bi)
		if bi == math.MinInt64 {
			// -bi overflows, so decide directly: a - MinInt64 overflows
			// exactly when a >= 0, and is a + 1 + MaxInt64 otherwise.
			if ai >= 0 {
				return Int64(math.MaxInt64), true, nil
			}
			return Int64(ai + 1 + math.MaxInt64), false, nil
		}
		return Int64(r), sat, nil
	case OpMul:
		r, sat := checkedMul(ai, bi)
		return Int64(r), sat, nil
	case OpDiv:
		if bi == 0 {
			return Null(), false, nil
		}
		if ai == math.MinInt64 && bi == -1 {
			return Int64(math.MaxInt64), true, nil
		}
		return Int64(ai / bi), false, nil
	case OpMod:
		if bi == 0 {
			return Null(), false, nil
		}
		return Int64(ai % bi), false, nil
	}
	return Value{}, false, typeMismatch(a, b)
}

func checkedAdd(a, b int64) (int64, bool) {
	r := a + b
	if (b > 0 && r < a) || (b < 0 && r > a) {
		if b > 0 {
			return math.MaxInt64, true
		}
		return math.MinInt64, true
	}
	return r, false
}

func checkedMul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	if a == math.MinInt64 && b == -1 {
		// r/b below would wrap back to a and hide the overflow.
		return math.MaxInt64, true
	}
	r := a * b
	if r/b != a {
		if (a > 0) == (b > 0) {
			return math.MaxInt64, true
		}
		return math.MinInt64, true
	}
	return r, false
}

func typeMismatch(a, b Value) error {
	return ilerrors.ErrTypeMismatch.New(a.kind.String(), b.kind.String())
}
