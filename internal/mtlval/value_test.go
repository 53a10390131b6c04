package mtlval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZeroValueIsNull(t *testing.T) {
	var v Value
	assert.True(t, v.IsNull())
	assert.Equal(t, KindNull, v.Kind())
}

func TestAccessorsRoundTrip(t *testing.T) {
	b, ok := Bool(true).AsBool()
	assert.True(t, ok)
	assert.True(t, b)

	i, ok := Int(42).AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(42), i)

	r, ok := Real(3.5).AsReal()
	assert.True(t, ok)
	assert.Equal(t, 3.5, r)

	s, ok := String("hi").AsString()
	assert.True(t, ok)
	assert.Equal(t, "hi", s)

	c, ok := Collection([]Value{Int(1), Int(2)}).AsCollection()
	assert.True(t, ok)
	assert.Len(t, c, 2)

	ref := ModelRef{Alias: "m", Display: "Foo", Identity: "id1"}
	o, ok := Object(ref).AsObject()
	assert.True(t, ok)
	assert.Equal(t, "Foo", o.Display)
}

func TestAccessorsFailOnWrongKind(t *testing.T) {
	_, ok := Int(1).AsBool()
	assert.False(t, ok)
	_, ok = Bool(true).AsString()
	assert.False(t, ok)
}

func TestIsTrue(t *testing.T) {
	assert.True(t, Bool(true).IsTrue())
	assert.False(t, Bool(false).IsTrue())
	assert.False(t, Int(1).IsTrue())
	assert.False(t, Null.IsTrue())
}

func TestCanonicalString(t *testing.T) {
	assert.Equal(t, "", Null.CanonicalString(nil))
	assert.Equal(t, "true", Bool(true).CanonicalString(nil))
	assert.Equal(t, "false", Bool(false).CanonicalString(nil))
	assert.Equal(t, "42", Int(42).CanonicalString(nil))
	assert.Equal(t, "3.5", Real(3.5).CanonicalString(nil))
	assert.Equal(t, "hi", String("hi").CanonicalString(nil))

	ref := ModelRef{Display: "fallback"}
	assert.Equal(t, "fallback", Object(ref).CanonicalString(nil))

	display := func(r ModelRef) string { return "custom:" + r.Alias }
	ref2 := ModelRef{Alias: "m"}
	assert.Equal(t, "custom:m", Object(ref2).CanonicalString(display))
}

func TestCanonicalStringPanicsOnCollection(t *testing.T) {
	assert.Panics(t, func() {
		Collection([]Value{Int(1)}).CanonicalString(nil)
	})
}

func TestAsSequence(t *testing.T) {
	assert.Nil(t, Null.AsSequence())
	assert.Equal(t, []Value{Int(1), Int(2)}, Collection([]Value{Int(1), Int(2)}).AsSequence())
	assert.Equal(t, []Value{Int(5)}, Int(5).AsSequence())
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Int(1), Int(1)))
	assert.False(t, Equal(Int(1), Int(2)))
	assert.False(t, Equal(Int(1), String("1")))
	assert.True(t, Equal(Null, Null))
	assert.True(t, Equal(String("a"), String("a")))

	ref1 := ModelRef{Identity: "x"}
	ref2 := ModelRef{Identity: "x"}
	assert.True(t, Equal(Object(ref1), Object(ref2)))

	assert.True(t, Equal(
		Collection([]Value{Int(1), Int(2)}),
		Collection([]Value{Int(1), Int(2)}),
	))
	assert.False(t, Equal(
		Collection([]Value{Int(1)}),
		Collection([]Value{Int(1), Int(2)}),
	))
}
