// Package meta holds image metadata: a closed set of typed values keyed by
// name, plus the composition rules a writer applies before encoding.
package meta

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Kind identifies the type held by a Value.
type Kind uint8

// Value kinds
const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindString
	KindIntArray
	KindFloatArray
	KindStringArray
)

var kindNames = [...]string{
	KindInvalid:     "invalid",
	KindInt:         "int",
	KindFloat:       "float",
	KindString:      "string",
	KindIntArray:    "int[]",
	KindFloatArray:  "float[]",
	KindStringArray: "string[]",
}

// String returns the kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a metadata value. The zero Value is invalid. Values are
// immutable: array accessors return copies.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
	is   []int64
	fs   []float64
	ss   []string
}

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float returns a floating point value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// String returns a string value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Ints returns an integer array value.
func Ints(v ...int64) Value { return Value{kind: KindIntArray, is: slices.Clone(v)} }

// Floats returns a floating point array value.
func Floats(v ...float64) Value { return Value{kind: KindFloatArray, fs: slices.Clone(v)} }

// Strings returns a string array value.
func Strings(v ...string) Value { return Value{kind: KindStringArray, ss: slices.Clone(v)} }

// Kind returns the kind of v.
func (v Value) Kind() Kind { return v.kind }

// IsValid reports whether v holds a value.
func (v Value) IsValid() bool { return v.kind != KindInvalid }

// Int returns the integer held by v.
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Float returns the float held by v. Integers convert.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// Str returns the string held by v.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// IntArray returns a copy of the integer array held by v.
func (v Value) IntArray() ([]int64, bool) { return slices.Clone(v.is), v.kind == KindIntArray }

// FloatArray returns a copy of the float array held by v.
func (v Value) FloatArray() ([]float64, bool) { return slices.Clone(v.fs), v.kind == KindFloatArray }

// StringArray returns a copy of the string array held by v.
func (v Value) StringArray() ([]string, bool) { return slices.Clone(v.ss), v.kind == KindStringArray }

// Equal reports whether v and o have the same kind and contents.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindIntArray:
		return slices.Equal(v.is, o.is)
	case KindFloatArray:
		return slices.Equal(v.fs, o.fs)
	case KindStringArray:
		return slices.Equal(v.ss, o.ss)
	}
	return true
}

// String formats v for display. Strings are returned unquoted.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return v.s
	case KindIntArray:
		return joinArray(v.is, func(x int64) string { return strconv.FormatInt(x, 10) })
	case KindFloatArray:
		return joinArray(v.fs, func(x float64) string { return strconv.FormatFloat(x, 'g', -1, 64) })
	case KindStringArray:
		return joinArray(v.ss, strconv.Quote)
	}
	return "<invalid>"
}

// GoString implements fmt.GoStringer.
func (v Value) GoString() string {
	if v.kind == KindString {
		return "meta.String(" + strconv.Quote(v.s) + ")"
	}
	return fmt.Sprintf("meta.Value(%s %s)", v.kind, v)
}

func joinArray[T any](xs []T, f func(T) string) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = f(x)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Parse converts text to a Value: integers become Int, other numbers
// Float, everything else String.
func Parse(s string) Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Float(f)
	}
	return String(s)
}

// Metadata maps keys to values.
type Metadata map[string]Value

// Clone returns a shallow copy of m. A nil m clones to an empty map.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	maps.Copy(out, m)
	return out
}

// Keys returns the keys of m in sorted order.
func (m Metadata) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

// Merge copies every entry of o into m, replacing existing keys.
func (m Metadata) Merge(o Metadata) {
	maps.Copy(m, o)
}

// Equal reports whether m and o hold the same keys and values.
func (m Metadata) Equal(o Metadata) bool {
	return maps.EqualFunc(m, o, Value.Equal)
}

// Text returns the value at key if it holds a string.
func (m Metadata) Text(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	return v.Str()
}
