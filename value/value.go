// Package value implements InputLayer's scalar Value and Tuple model
// (spec.md §3 "Scalar Value"/"Tuple", §4.1).
package value

import (
	"bytes"
	"fmt"
	"math"

	"github.com/OneOfOne/xxhash"
	"github.com/spf13/cast"

	ilerrors "github.com/inputlayer/inputlayer/errors"
)

// Kind tags the variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt32
	KindInt64
	KindFloat64
	KindString
	KindBool
	KindTimestamp
	KindBytes
	KindVectorF32
	KindVectorI8
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindTimestamp:
		return "timestamp"
	case KindBytes:
		return "bytes"
	case KindVectorF32:
		return "vector<f32>"
	case KindVectorI8:
		return "vector<i8>"
	default:
		return "unknown"
	}
}

// Value is a tagged scalar. Exactly one of the typed fields is meaningful,
// selected by Kind; this avoids the allocation an interface{} payload would
// cost on every tuple column.
type Value struct {
	kind Kind
	i    int64   // Int32 (sign-extended), Int64, Timestamp (epoch units), Bool (0/1)
	f    float64 // Float64
	s    string  // String
	b    []byte  // Bytes
	vf   []float32
	vi   []int8
}

func Null() Value                  { return Value{kind: KindNull} }
func Int32(v int32) Value          { return Value{kind: KindInt32, i: int64(v)} }
func Int64(v int64) Value          { return Value{kind: KindInt64, i: v} }
func Float64(v float64) Value      { return Value{kind: KindFloat64, f: v} }
func String(v string) Value        { return Value{kind: KindString, s: v} }
func Bool(v bool) Value {
	var i int64
	if v {
		i = 1
	}
	return Value{kind: KindBool, i: i}
}
func Timestamp(epoch int64) Value  { return Value{kind: KindTimestamp, i: epoch} }
func Bytes(v []byte) Value         { return Value{kind: KindBytes, b: v} }
func VectorF32(v []float32) Value  { return Value{kind: KindVectorF32, vf: v} }
func VectorI8(v []int8) Value      { return Value{kind: KindVectorI8, vi: v} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.kind == KindNull }
func (v Value) AsInt64() int64 { return v.i }
func (v Value) AsFloat64() float64 { return v.f }
func (v Value) AsString() string { return v.s }
func (v Value) AsBool() bool { return v.i != 0 }
func (v Value) AsBytes() []byte { return v.b }
func (v Value) AsVectorF32() []float32 { return v.vf }
func (v Value) AsVectorI8() []int8 { return v.vi }

// Numeric reports whether the value participates in arithmetic coercion.
func (v Value) Numeric() bool {
	switch v.kind {
	case KindInt32, KindInt64, KindFloat64:
		return true
	default:
		return false
	}
}

// AsFloat coerces any numeric kind to float64 for arithmetic (§4.1).
func (v Value) AsFloat() float64 {
	if v.kind == KindFloat64 {
		return v.f
	}
	return float64(v.i)
}

// GoString renders the value for diagnostics, trace logs, and EXPLAIN text.
func (v Value) GoString() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInt32, KindInt64, KindTimestamp:
		return fmt.Sprintf("%d", v.i)
	case KindFloat64:
		return cast.ToString(v.f)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindBool:
		return fmt.Sprintf("%t", v.AsBool())
	case KindBytes:
		return fmt.Sprintf("0x%x", v.b)
	case KindVectorF32:
		return fmt.Sprintf("%v", v.vf)
	case KindVectorI8:
		return fmt.Sprintf("%v", v.vi)
	default:
		return "<?>"
	}
}

// Equal implements pointwise equality; null is equal only to null (§3).
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindInt32, KindInt64, KindTimestamp:
		return v.i == o.i
	case KindFloat64:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindBool:
		return v.i == o.i
	case KindBytes:
		return bytes.Equal(v.b, o.b)
	case KindVectorF32:
		if len(v.vf) != len(o.vf) {
			return false
		}
		for i := range v.vf {
			if v.vf[i] != o.vf[i] {
				return false
			}
		}
		return true
	case KindVectorI8:
		if len(v.vi) != len(o.vi) {
			return false
		}
		for i := range v.vi {
			if v.vi[i] != o.vi[i] {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two values of the same variant. Cross-variant comparison
// (excluding null, which never compares ordered) raises TypeMismatch (§3).
func Compare(a, b Value) (int, error) {
	if a.kind == KindNull || b.kind == KindNull {
		// Null is not ordered; equality is handled separately by Equal.
		if a.kind == b.kind {
			return 0, nil
		}
		return 0, ilerrors.ErrTypeMismatch.New(a.kind.String(), b.kind.String())
	}
	if a.kind != b.kind {
		return 0, ilerrors.ErrTypeMismatch.New(a.kind.String(), b.kind.String())
	}
	switch a.kind {
	case KindInt32, KindInt64, KindTimestamp:
		switch {
		case a.i < b.i:
			return -1, nil
		case a.i > b.i:
			return 1, nil
		default:
			return 0, nil
		}
	case KindFloat64:
		switch {
		case a.f < b.f:
			return -1, nil
		case a.f > b.f:
			return 1, nil
		default:
			return 0, nil
		}
	case KindString:
		return bytes.Compare([]byte(a.s), []byte(b.s)), nil
	case KindBool:
		return int(a.i - b.i), nil
	case KindBytes:
		return bytes.Compare(a.b, b.b), nil
	default:
		return 0, ilerrors.ErrTypeMismatch.New(a.kind.String(), b.kind.String())
	}
}

// Hash feeds v into an xxhash digest; used by the tuple hash below and by
// the execution engine's arrange-by-key index (§4.7 Join contract).
func (v Value) Hash(h *xxhash.XXHash64) {
	h.Write([]byte{byte(v.kind)})
	switch v.kind {
	case KindInt32, KindInt64, KindTimestamp, KindBool:
		var buf [8]byte
		putUint64(buf[:], uint64(v.i))
		h.Write(buf[:])
	case KindFloat64:
		var buf [8]byte
		putUint64(buf[:], math.Float64bits(v.f))
		h.Write(buf[:])
	case KindString:
		h.Write([]byte(v.s))
	case KindBytes:
		h.Write(v.b)
	case KindVectorF32:
		for _, f := range v.vf {
			var buf [4]byte
			putUint32(buf[:], math.Float32bits(f))
			h.Write(buf[:])
		}
	case KindVectorI8:
		buf := make([]byte, len(v.vi))
		for i, x := range v.vi {
			buf[i] = byte(x)
		}
		h.Write(buf)
	}
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func putUint32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
