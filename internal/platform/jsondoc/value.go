// Package jsondoc holds schema-less JSON documents whose objects keep their
// keys in document order. Reports arrive with arbitrary, sparsely populated
// fields and the order the producer wrote them in is part of how they are
// displayed, so decoding into map[string]any is not an option.
package jsondoc

import (
	"math"
	"strconv"
	"strings"

	"github.com/labdesk/labdesk/internal/platform/ordered"
)

// Kind identifies the JSON type held by a Value.
type Kind uint8

const (
	// Undefined is the zero Kind: the value was never present.
	Undefined Kind = iota
	Null
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "undefined"
	}
}

// Fields is the ordered member set of a JSON object.
type Fields = ordered.Map[string, Value]

// Value is an immutable JSON value. The zero Value is Undefined, which lets
// lookups chain through missing or mistyped members without checks:
//
//	doc.Field("test").Field("results").Len()
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  []Value
	obj  *Fields
}

func NullValue() Value { return Value{kind: Null} }

func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

func NumberValue(n float64) Value { return Value{kind: Number, n: n} }

func StringValue(s string) Value { return Value{kind: String, s: s} }

func ArrayValue(vs ...Value) Value { return Value{kind: Array, arr: vs} }

// ObjectValue wraps f; a nil f yields an empty object.
func ObjectValue(f *Fields) Value {
	if f == nil {
		f = ordered.New[string, Value](0)
	}
	return Value{kind: Object, obj: f}
}

// Kind returns the JSON type of v.
func (v Value) Kind() Kind { return v.kind }

// IsObject reports whether v is a JSON object.
func (v Value) IsObject() bool { return v.kind == Object }

// IsArray reports whether v is a JSON array.
func (v Value) IsArray() bool { return v.kind == Array }

// IsNullish reports whether v is null or was never present.
func (v Value) IsNullish() bool { return v.kind == Undefined || v.kind == Null }

// IsBlank reports whether v is nullish or the empty string.
func (v Value) IsBlank() bool {
	return v.IsNullish() || (v.kind == String && v.s == "")
}

// Truthy follows JavaScript truthiness, which is what report producers
// assume when they leave fields as "", 0 or false to mean "absent".
func (v Value) Truthy() bool {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		return v.n != 0 && !math.IsNaN(v.n)
	case String:
		return v.s != ""
	case Array, Object:
		return true
	default:
		return false
	}
}

// Field returns the member name of an object, or Undefined.
func (v Value) Field(name string) Value {
	if v.kind != Object {
		return Value{}
	}
	f, _ := v.obj.Get(name)
	return f
}

// Has reports whether v is an object with a member called name.
func (v Value) Has(name string) bool {
	return v.kind == Object && v.obj.Has(name)
}

// Index returns element i of an array, or Undefined.
func (v Value) Index(i int) Value {
	if v.kind != Array || i < 0 || i >= len(v.arr) {
		return Value{}
	}
	return v.arr[i]
}

// Fields returns the members of an object, or nil.
func (v Value) Fields() *Fields {
	if v.kind != Object {
		return nil
	}
	return v.obj
}

// Elements returns the elements of an array, or nil.
func (v Value) Elements() []Value {
	if v.kind != Array {
		return nil
	}
	return v.arr
}

// Len returns the member count of an object or the length of an array.
func (v Value) Len() int {
	switch v.kind {
	case Object:
		return v.obj.Len()
	case Array:
		return len(v.arr)
	default:
		return 0
	}
}

// Float returns the number held by v.
func (v Value) Float() (float64, bool) {
	return v.n, v.kind == Number
}

// Str returns the string held by v.
func (v Value) Str() (string, bool) {
	return v.s, v.kind == String
}

// Text coerces v to display text. Nullish values yield "". Arrays join
// their elements with ", " and objects render as "key: value" pairs.
func (v Value) Text() string {
	switch v.kind {
	case Bool:
		return strconv.FormatBool(v.b)
	case Number:
		return FormatNumber(v.n)
	case String:
		return v.s
	case Array:
		parts := make([]string, 0, len(v.arr))
		for _, e := range v.arr {
			parts = append(parts, e.Text())
		}
		return strings.Join(parts, ", ")
	case Object:
		parts := make([]string, 0, v.obj.Len())
		v.obj.Range(func(k string, e Value) bool {
			parts = append(parts, k+": "+e.Text())
			return true
		})
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

// FormatNumber renders n the way report producers print numbers: integers
// without a fraction, others in the shortest round-tripping form.
func FormatNumber(n float64) string {
	switch {
	case math.IsNaN(n):
		return "NaN"
	case math.IsInf(n, 1):
		return "Infinity"
	case math.IsInf(n, -1):
		return "-Infinity"
	}
	abs := math.Abs(n)
	if abs >= 1e21 || (abs != 0 && abs < 1e-6) {
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}
