package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArithNullPropagates(t *testing.T) {
	r, sat, err := Arith(OpAdd, Null(), Int64(1))
	require.NoError(t, err)
	require.False(t, sat)
	require.True(t, r.IsNull())
}

func TestArithDivisionByZeroIsNull(t *testing.T) {
	r, _, err := Arith(OpDiv, Int64(10), Int64(0))
	require.NoError(t, err)
	require.True(t, r.IsNull())

	r, _, err = Arith(OpMod, Int64(10), Int64(0))
	require.NoError(t, err)
	require.True(t, r.IsNull())
}

func TestArithFloatPromotion(t *testing.T) {
	r, _, err := Arith(OpAdd, Int64(1), Float64(2.5))
	require.NoError(t, err)
	require.Equal(t, KindFloat64, r.Kind())
	require.Equal(t, 3.5, r.AsFloat64())
}

func TestArithIntegerOverflowSaturates(t *testing.T) {
	r, sat, err := Arith(OpAdd, Int64(math.MaxInt64), Int64(1))
	require.NoError(t, err)
	require.True(t, sat)
	require.Equal(t, int64(math.MaxInt64), r.AsInt64())

	r, sat, err = Arith(OpMul, Int64(math.MaxInt64), Int64(2))
	require.NoError(t, err)
	require.True(t, sat)
	require.Equal(t, int64(math.MaxInt64), r.AsInt64())
}

func TestArithTypeMismatch(t *testing.T) {
	_, _, err := Arith(OpAdd, String("x"), Int64(1))
	require.Error(t, err)
}
