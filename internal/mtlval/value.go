// Package mtlval defines the polymorphic runtime value carried by variable
// bindings and produced by expression evaluation (spec §3 "Value").
package mtlval

import (
	"fmt"
	"strconv"
)

// Kind discriminates the closed set of Value variants.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindReal
	KindString
	KindCollection
	KindObject
)

// ModelRef is an opaque reference to a model object. The core never
// inspects its fields directly; navigation and display go through the
// Resolver a model loader registers (spec §6.4).
type ModelRef struct {
	// Alias is the model alias this reference was obtained from.
	Alias string
	// Native is the loader-specific payload (e.g. modelio's unexported *node).
	Native interface{}
	// Display is the canonical textual form used by string coercion.
	Display string
	// Identity is a stable identifier used for trace-link recording.
	Identity string
}

// Value is the closed sum type of runtime values. Exactly one of the
// fields is meaningful, selected by Kind; zero value is Null.
type Value struct {
	kind  Kind
	b     bool
	i     int64
	r     float64
	s     string
	coll  []Value
	obj   ModelRef
}

// Null is the singular null value.
var Null = Value{kind: KindNull}

// Bool constructs a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int constructs an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Real constructs a floating-point value.
func Real(r float64) Value { return Value{kind: KindReal, r: r} }

// String constructs a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Collection constructs an ordered-sequence value.
func Collection(items []Value) Value { return Value{kind: KindCollection, coll: items} }

// Object constructs a model-object reference value.
func Object(ref ModelRef) Value { return Value{kind: KindObject, obj: ref} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean payload and whether v is a KindBool value.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer payload and whether v is a KindInt value.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsReal returns the float payload and whether v is a KindReal value.
func (v Value) AsReal() (float64, bool) { return v.r, v.kind == KindReal }

// AsString returns the string payload and whether v is a KindString value.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsCollection returns the element slice and whether v is a KindCollection
// value.
func (v Value) AsCollection() ([]Value, bool) { return v.coll, v.kind == KindCollection }

// AsObject returns the model reference and whether v is a KindObject value.
func (v Value) AsObject() (ModelRef, bool) { return v.obj, v.kind == KindObject }

// IsTrue reports whether v is the boolean true value. Per spec §4.8, a
// non-boolean or null condition never matches an if/guard/post-condition
// check — this is the single predicate those call sites use.
func (v Value) IsTrue() bool {
	b, ok := v.AsBool()
	return ok && b
}

// CanonicalString renders v using the canonical textual form used for
// output (spec §3 Value, §4.8 Expression/Text statement semantics).
// Collections cannot be coerced directly; callers (the interpreter's For
// statement) must coerce elements instead, so this panics on KindCollection
// to surface a misuse immediately rather than printing "[...]" garbage.
func (v Value) CanonicalString(display func(ModelRef) string) string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindReal:
		return strconv.FormatFloat(v.r, 'g', -1, 64)
	case KindString:
		return v.s
	case KindObject:
		if display != nil {
			return display(v.obj)
		}
		return v.obj.Display
	case KindCollection:
		panic("mtlval: collections have no canonical string form")
	default:
		panic(fmt.Sprintf("mtlval: unknown kind %d", v.kind))
	}
}

// AsSequence coerces v into an iteration sequence per the For statement's
// rules (spec §4.8): a collection iterates its elements; null is the empty
// sequence; any other single value is a one-element sequence.
func (v Value) AsSequence() []Value {
	switch v.kind {
	case KindNull:
		return nil
	case KindCollection:
		return v.coll
	default:
		return []Value{v}
	}
}

// Equal reports structural equality between two values, used by the
// evaluator's comparison operators.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindInt:
		return a.i == b.i
	case KindReal:
		return a.r == b.r
	case KindString:
		return a.s == b.s
	case KindObject:
		return a.obj.Identity == b.obj.Identity
	case KindCollection:
		if len(a.coll) != len(b.coll) {
			return false
		}
		for i := range a.coll {
			if !Equal(a.coll[i], b.coll[i]) {
				return false
			}
		}
		return true
	}
	return false
}
