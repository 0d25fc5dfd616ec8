package wal

import (
	"encoding/json"

	"github.com/inputlayer/inputlayer/value"
)

// Entry is one write-ahead log record: a diff triple plus the logical time
// it was appended at (spec.md §4.8 "append-only file of diff entries";
// §5 "diffs are totally ordered by logical time, which advances
// monotonically per-insert").
type Entry struct {
	Tuple value.Tuple
	Mult  int64
	Time  int64
}

// wireValue is Entry's on-disk shape: value.Value's fields are unexported,
// so every column round-trips through this explicit, JSON-tagged mirror
// rather than relying on reflection over Value itself.
type wireValue struct {
	Kind uint8     `json:"k"`
	I    int64     `json:"i,omitempty"`
	F    float64   `json:"f,omitempty"`
	S    string    `json:"s,omitempty"`
	B    []byte    `json:"b,omitempty"`
	VF   []float32 `json:"vf,omitempty"`
	VI   []int8    `json:"vi,omitempty"`
}

type wireEntry struct {
	Tuple []wireValue `json:"t"`
	Mult  int64       `json:"m"`
	Time  int64       `json:"tm"`
}

func toWire(v value.Value) wireValue {
	w := wireValue{Kind: uint8(v.Kind())}
	switch v.Kind() {
	case value.KindInt32, value.KindInt64, value.KindTimestamp:
		w.I = v.AsInt64()
	case value.KindBool:
		w.I = 0
		if v.AsBool() {
			w.I = 1
		}
	case value.KindFloat64:
		w.F = v.AsFloat64()
	case value.KindString:
		w.S = v.AsString()
	case value.KindBytes:
		w.B = v.AsBytes()
	case value.KindVectorF32:
		w.VF = v.AsVectorF32()
	case value.KindVectorI8:
		w.VI = v.AsVectorI8()
	}
	return w
}

func fromWire(w wireValue) value.Value {
	switch value.Kind(w.Kind) {
	case value.KindNull:
		return value.Null()
	case value.KindInt32:
		return value.Int32(int32(w.I))
	case value.KindInt64:
		return value.Int64(w.I)
	case value.KindTimestamp:
		return value.Timestamp(w.I)
	case value.KindBool:
		return value.Bool(w.I != 0)
	case value.KindFloat64:
		return value.Float64(w.F)
	case value.KindString:
		return value.String(w.S)
	case value.KindBytes:
		return value.Bytes(w.B)
	case value.KindVectorF32:
		return value.VectorF32(w.VF)
	case value.KindVectorI8:
		return value.VectorI8(w.VI)
	default:
		return value.Null()
	}
}

func encodeEntry(e Entry) ([]byte, error) {
	we := wireEntry{Tuple: make([]wireValue, len(e.Tuple)), Mult: e.Mult, Time: e.Time}
	for i, v := range e.Tuple {
		we.Tuple[i] = toWire(v)
	}
	return json.Marshal(we)
}

func decodeEntry(b []byte) (Entry, error) {
	var we wireEntry
	if err := json.Unmarshal(b, &we); err != nil {
		return Entry{}, err
	}
	t := make(value.Tuple, len(we.Tuple))
	for i, wv := range we.Tuple {
		t[i] = fromWire(wv)
	}
	return Entry{Tuple: t, Mult: we.Mult, Time: we.Time}, nil
}
