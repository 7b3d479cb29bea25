package dataset

import (
	"math"
	"strconv"

	mathutil "github.com/inferloop/tabsynth/internal/utils/math"
)

// ValueKind identifies which field of a Value is meaningful
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindNumber
	KindString
)

// ColumnType is the storage type of a column, named after the dtype a
// dataframe library would infer for the same data.
type ColumnType string

const (
	TypeInt64   ColumnType = "int64"
	TypeFloat64 ColumnType = "float64"
	TypeObject  ColumnType = "object"
)

// IsNumeric reports whether the column type holds numbers
func (t ColumnType) IsNumeric() bool {
	return t == TypeInt64 || t == TypeFloat64
}

var nan = math.NaN()

// Value is a single typed cell
type Value struct {
	Kind ValueKind
	Num  float64
	Str  string
}

// Null returns the null value
func Null() Value {
	return Value{Kind: KindNull}
}

// Number wraps a float. Negative zero is stored as zero.
func Number(f float64) Value {
	if math.IsNaN(f) {
		return Null()
	}
	if f == 0 {
		f = 0
	}
	return Value{Kind: KindNumber, Num: f}
}

// String wraps a string
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// FromInterface converts a decoded JSON or SQL scalar to a Value
func FromInterface(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case float64:
		return Number(x)
	case float32:
		return Number(float64(x))
	case int:
		return Number(float64(x))
	case int32:
		return Number(float64(x))
	case int64:
		return Number(float64(x))
	case uint64:
		return Number(float64(x))
	case bool:
		if x {
			return String("True")
		}
		return String("False")
	case string:
		return String(x)
	case []byte:
		return String(string(x))
	default:
		return Null()
	}
}

// IsNull reports whether the value is null
func (v Value) IsNull() bool {
	return v.Kind == KindNull
}

// IsNumber reports whether the value holds a number
func (v Value) IsNumber() bool {
	return v.Kind == KindNumber
}

// Key returns a canonical encoding used for equality across datasets.
// Numbers compare by value, so 1 and 1.0 share a key.
func (v Value) Key() string {
	switch v.Kind {
	case KindNumber:
		f := v.Num
		if f == 0 {
			f = 0
		}
		return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
	case KindString:
		return "s:" + v.Str
	default:
		return "\x00"
	}
}

// Format renders the value as text for a column of the given type.
// Nulls render as the empty string.
func (v Value) Format(t ColumnType) string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		if t != TypeFloat64 && isIntegral(v.Num) {
			return strconv.FormatInt(int64(v.Num), 10)
		}
		return mathutil.FormatFloat(v.Num)
	default:
		return ""
	}
}

// Interface returns the value as a JSON-friendly scalar
func (v Value) Interface() interface{} {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindString:
		return v.Str
	default:
		return nil
	}
}

func isIntegral(f float64) bool {
	return !math.IsInf(f, 0) && f == math.Trunc(f) && math.Abs(f) < 1<<63
}
