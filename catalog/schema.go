package catalog

import "github.com/inputlayer/inputlayer/value"

// Column is one (name, type) pair of a relation's schema (spec.md §3).
type Column struct {
	Name string
	Type value.Kind
}

// Schema is a fixed, ordered column list; arity is len(Columns).
type Schema struct {
	Columns []Column
}

func (s Schema) Arity() int { return len(s.Columns) }

func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// IndexOf returns the column position for name, or -1.
func (s Schema) IndexOf(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// ParseColumnType maps a surface-syntax type name (schema declarations,
// spec.md §4.2) to a value.Kind.
func ParseColumnType(name string) (value.Kind, bool) {
	switch name {
	case "int32":
		return value.KindInt32, true
	case "int64", "int":
		return value.KindInt64, true
	case "float64", "float":
		return value.KindFloat64, true
	case "string":
		return value.KindString, true
	case "bool", "boolean":
		return value.KindBool, true
	case "timestamp":
		return value.KindTimestamp, true
	case "bytes":
		return value.KindBytes, true
	case "vector_f32":
		return value.KindVectorF32, true
	case "vector_i8":
		return value.KindVectorI8, true
	default:
		return value.KindNull, false
	}
}
