package exprlang

import (
	"testing"

	"github.com/mtlforge/mtlgen/internal/exprast"
	"github.com/mtlforge/mtlgen/internal/mtlast"
	"github.com/mtlforge/mtlgen/internal/mtlval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCtx struct {
	scopes []map[string]mtlval.Value
	queries map[string]func([]mtlval.Value) (mtlval.Value, error)
	objects map[string]map[string]mtlval.Value
}

func newFakeCtx() *fakeCtx {
	return &fakeCtx{
		scopes:  []map[string]mtlval.Value{make(map[string]mtlval.Value)},
		queries: make(map[string]func([]mtlval.Value) (mtlval.Value, error)),
		objects: make(map[string]map[string]mtlval.Value),
	}
}

func (c *fakeCtx) GetVariable(name string) (mtlval.Value, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i][name]; ok {
			return v, true
		}
	}
	return mtlval.Null, false
}

func (c *fakeCtx) SetVariable(name string, v mtlval.Value) {
	c.scopes[len(c.scopes)-1][name] = v
}

func (c *fakeCtx) PushScope() { c.scopes = append(c.scopes, make(map[string]mtlval.Value)) }
func (c *fakeCtx) PopScope()  { c.scopes = c.scopes[:len(c.scopes)-1] }

func (c *fakeCtx) CallQuery(name string, args []mtlval.Value) (mtlval.Value, error) {
	fn, ok := c.queries[name]
	if !ok {
		return mtlval.Null, assertNotFound(name)
	}
	return fn(args)
}

func assertNotFound(name string) error {
	return &notFoundErr{name}
}

type notFoundErr struct{ name string }

func (e *notFoundErr) Error() string { return "query not found: " + e.name }

func (c *fakeCtx) Navigate(ref mtlval.ModelRef, property string) (mtlval.Value, error) {
	obj, ok := c.objects[ref.Identity]
	if !ok {
		return mtlval.Null, assertNotFound(property)
	}
	v, ok := obj[property]
	if !ok {
		return mtlval.Null, assertNotFound(property)
	}
	return v, nil
}

func (c *fakeCtx) DisplayObject(ref mtlval.ModelRef) string { return ref.Display }

func expr(node exprast.Node) mtlast.Expression {
	return mtlast.Expression{Node: node}
}

func TestEvaluateLiteralsAndArithmetic(t *testing.T) {
	ev := New()
	ctx := newFakeCtx()

	v, err := ev.Evaluate(expr(exprast.Binary{
		Op:    exprast.Add,
		Left:  exprast.Literal{Kind: exprast.LitInt, Int: 2},
		Right: exprast.Literal{Kind: exprast.LitInt, Int: 3},
	}), ctx)
	require.NoError(t, err)
	i, ok := v.AsInt()
	require.True(t, ok)
	assert.Equal(t, int64(5), i)
}

func TestEvaluateStringConcatenation(t *testing.T) {
	ev := New()
	ctx := newFakeCtx()

	v, err := ev.Evaluate(expr(exprast.Binary{
		Op:    exprast.Add,
		Left:  exprast.Literal{Kind: exprast.LitString, Str: "foo"},
		Right: exprast.Literal{Kind: exprast.LitString, Str: "bar"},
	}), ctx)
	require.NoError(t, err)
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "foobar", s)
}

func TestEvaluateVariableReference(t *testing.T) {
	ev := New()
	ctx := newFakeCtx()
	ctx.SetVariable("x", mtlval.Int(42))

	v, err := ev.Evaluate(expr(exprast.VarRef{Name: "x"}), ctx)
	require.NoError(t, err)
	i, _ := v.AsInt()
	assert.Equal(t, int64(42), i)
}

func TestEvaluateUnboundVariableIsError(t *testing.T) {
	ev := New()
	ctx := newFakeCtx()
	_, err := ev.Evaluate(expr(exprast.VarRef{Name: "missing"}), ctx)
	require.Error(t, err)
}

func TestEvaluateAndOrShortCircuit(t *testing.T) {
	ev := New()
	ctx := newFakeCtx()

	v, err := ev.Evaluate(expr(exprast.Binary{
		Op:    exprast.Or,
		Left:  exprast.Literal{Kind: exprast.LitBool, Bool: true},
		Right: exprast.VarRef{Name: "never-read"},
	}), ctx)
	require.NoError(t, err)
	assert.True(t, v.IsTrue())
}

func TestEvaluateNavigation(t *testing.T) {
	ev := New()
	ctx := newFakeCtx()
	ref := mtlval.ModelRef{Identity: "obj1", Display: "Obj"}
	ctx.objects["obj1"] = map[string]mtlval.Value{"name": mtlval.String("widget")}
	ctx.SetVariable("o", mtlval.Object(ref))

	v, err := ev.Evaluate(expr(exprast.Navigation{
		Source:   exprast.VarRef{Name: "o"},
		Property: "name",
	}), ctx)
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "widget", s)
}

func TestEvaluateCollectionSelectAndSize(t *testing.T) {
	ev := New()
	ctx := newFakeCtx()
	ctx.SetVariable("xs", mtlval.Collection([]mtlval.Value{
		mtlval.Int(1), mtlval.Int(2), mtlval.Int(3), mtlval.Int(4),
	}))

	selected, err := ev.Evaluate(expr(exprast.CollectionOp{
		Source:  exprast.VarRef{Name: "xs"},
		Op:      exprast.OpSelect,
		IterVar: "it",
		Body: exprast.Binary{
			Op:    exprast.GtEq,
			Left:  exprast.VarRef{Name: "it"},
			Right: exprast.Literal{Kind: exprast.LitInt, Int: 3},
		},
	}), ctx)
	require.NoError(t, err)
	coll, ok := selected.AsCollection()
	require.True(t, ok)
	require.Len(t, coll, 2)

	sized, err := ev.Evaluate(expr(exprast.CollectionOp{
		Source: exprast.VarRef{Name: "xs"},
		Op:     exprast.OpSize,
	}), ctx)
	require.NoError(t, err)
	n, _ := sized.AsInt()
	assert.Equal(t, int64(4), n)
}

func TestEvaluateCollectionForAllAndExists(t *testing.T) {
	ev := New()
	ctx := newFakeCtx()
	ctx.SetVariable("xs", mtlval.Collection([]mtlval.Value{mtlval.Int(2), mtlval.Int(4)}))

	allEven, err := ev.Evaluate(expr(exprast.CollectionOp{
		Source:  exprast.VarRef{Name: "xs"},
		Op:      exprast.OpForAll,
		IterVar: "n",
		Body: exprast.Binary{
			Op:    exprast.Eq,
			Left:  exprast.Literal{Kind: exprast.LitInt, Int: 0},
			Right: exprast.Literal{Kind: exprast.LitInt, Int: 0},
		},
	}), ctx)
	require.NoError(t, err)
	assert.True(t, allEven.IsTrue())

	none, err := ev.Evaluate(expr(exprast.CollectionOp{
		Source:  exprast.VarRef{Name: "xs"},
		Op:      exprast.OpExists,
		IterVar: "n",
		Body: exprast.Binary{
			Op:    exprast.Eq,
			Left:  exprast.VarRef{Name: "n"},
			Right: exprast.Literal{Kind: exprast.LitInt, Int: 99},
		},
	}), ctx)
	require.NoError(t, err)
	assert.False(t, none.IsTrue())
}

func TestEvaluateQueryInvocation(t *testing.T) {
	ev := New()
	ctx := newFakeCtx()
	ctx.queries["double"] = func(args []mtlval.Value) (mtlval.Value, error) {
		i, _ := args[0].AsInt()
		return mtlval.Int(i * 2), nil
	}

	v, err := ev.Evaluate(expr(exprast.Invocation{
		Name: "double",
		Args: []exprast.Node{exprast.Literal{Kind: exprast.LitInt, Int: 21}},
	}), ctx)
	require.NoError(t, err)
	i, _ := v.AsInt()
	assert.Equal(t, int64(42), i)
}

func TestEvaluateMethodCallStringBuiltin(t *testing.T) {
	ev := New()
	ctx := newFakeCtx()

	v, err := ev.Evaluate(expr(exprast.MethodCall{
		Source: exprast.Literal{Kind: exprast.LitString, Str: "Hello"},
		Name:   "toUpper",
	}), ctx)
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "HELLO", s)
}

func TestEvaluateDivisionByZero(t *testing.T) {
	ev := New()
	ctx := newFakeCtx()
	_, err := ev.Evaluate(expr(exprast.Binary{
		Op:    exprast.Div,
		Left:  exprast.Literal{Kind: exprast.LitInt, Int: 1},
		Right: exprast.Literal{Kind: exprast.LitInt, Int: 0},
	}), ctx)
	require.Error(t, err)
}
