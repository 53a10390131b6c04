// Package exprlang is the default implementation of the narrow expression-
// evaluator interface the core consumes (spec §6.3): a small tree-walking
// evaluator over the literal/variable/binary/navigation/collection-op AST
// the parser builds (internal/exprast), grounded on the pack's losp
// evaluator shape (internal/eval, internal/scanner, internal/expr) —
// adapted here to mtlval.Value and the AQL/OCL operator set spec §6.3
// names, rather than losp's s-expression forms.
//
// A caller may substitute a different evaluator (e.g. a real AQL engine)
// behind the same EvalContext-consuming Evaluate method; the CLI wires
// this default one.
package exprlang

import (
	"fmt"
	"strings"

	"github.com/mtlforge/mtlgen/internal/exprast"
	"github.com/mtlforge/mtlgen/internal/mtlast"
	"github.com/mtlforge/mtlgen/internal/mtlerrors"
	"github.com/mtlforge/mtlgen/internal/mtlval"
)

// EvalContext is the seam the evaluator uses to read/write variables and
// reach out to the model loader and query dictionary — the same bindings
// the interpreter's execution context (C7) owns (spec §6.3: "must reflect
// the same bindings the interpreter uses").
type EvalContext = interface {
	GetVariable(name string) (mtlval.Value, bool)
	SetVariable(name string, v mtlval.Value)
	PushScope()
	PopScope()
	CallQuery(name string, args []mtlval.Value) (mtlval.Value, error)
	Navigate(ref mtlval.ModelRef, property string) (mtlval.Value, error)
	DisplayObject(ref mtlval.ModelRef) string
}

// Evaluator implements the narrow evaluate/set_variable/get_variable
// interface of spec §6.3 over exprast nodes.
type Evaluator struct{}

// New returns the default evaluator.
func New() *Evaluator { return &Evaluator{} }

// Evaluate evaluates expr against ctx, returning its Value (Null for "no
// result").
func (e *Evaluator) Evaluate(expr mtlast.Expression, ctx EvalContext) (mtlval.Value, error) {
	node, ok := expr.Node.(exprast.Node)
	if !ok {
		return mtlval.Null, mtlerrors.NewTypeError("expression has no evaluable node")
	}
	return e.eval(node, ctx)
}

func (e *Evaluator) eval(node exprast.Node, ctx EvalContext) (mtlval.Value, error) {
	switch n := node.(type) {
	case exprast.Literal:
		return evalLiteral(n), nil
	case exprast.Paren:
		return e.eval(n.Inner, ctx)
	case exprast.VarRef:
		v, ok := ctx.GetVariable(n.Name)
		if !ok {
			return mtlval.Null, mtlerrors.NewVariableNotFound(n.Name)
		}
		return v, nil
	case exprast.Not:
		v, err := e.eval(n.Operand, ctx)
		if err != nil {
			return mtlval.Null, err
		}
		b, ok := v.AsBool()
		if !ok {
			return mtlval.Null, mtlerrors.NewTypeError("'not' requires a boolean operand")
		}
		return mtlval.Bool(!b), nil
	case exprast.Binary:
		return e.evalBinary(n, ctx)
	case exprast.Navigation:
		return e.evalNavigation(n, ctx)
	case exprast.Invocation:
		return e.evalInvocation(n, ctx)
	case exprast.MethodCall:
		return e.evalMethodCall(n, ctx)
	case exprast.CollectionOp:
		return e.evalCollectionOp(n, ctx)
	default:
		return mtlval.Null, mtlerrors.NewTypeError(fmt.Sprintf("unknown expression node %T", node))
	}
}

func evalLiteral(lit exprast.Literal) mtlval.Value {
	switch lit.Kind {
	case exprast.LitString:
		return mtlval.String(lit.Str)
	case exprast.LitInt:
		return mtlval.Int(lit.Int)
	case exprast.LitReal:
		return mtlval.Real(lit.Real)
	case exprast.LitBool:
		return mtlval.Bool(lit.Bool)
	default:
		return mtlval.Null
	}
}

func (e *Evaluator) evalBinary(n exprast.Binary, ctx EvalContext) (mtlval.Value, error) {
	// and/or short-circuit.
	if n.Op == exprast.And {
		l, err := e.eval(n.Left, ctx)
		if err != nil {
			return mtlval.Null, err
		}
		lb, ok := l.AsBool()
		if !ok {
			return mtlval.Null, mtlerrors.NewTypeError("'and' requires boolean operands")
		}
		if !lb {
			return mtlval.Bool(false), nil
		}
		r, err := e.eval(n.Right, ctx)
		if err != nil {
			return mtlval.Null, err
		}
		rb, ok := r.AsBool()
		if !ok {
			return mtlval.Null, mtlerrors.NewTypeError("'and' requires boolean operands")
		}
		return mtlval.Bool(rb), nil
	}
	if n.Op == exprast.Or {
		l, err := e.eval(n.Left, ctx)
		if err != nil {
			return mtlval.Null, err
		}
		lb, ok := l.AsBool()
		if !ok {
			return mtlval.Null, mtlerrors.NewTypeError("'or' requires boolean operands")
		}
		if lb {
			return mtlval.Bool(true), nil
		}
		r, err := e.eval(n.Right, ctx)
		if err != nil {
			return mtlval.Null, err
		}
		rb, ok := r.AsBool()
		if !ok {
			return mtlval.Null, mtlerrors.NewTypeError("'or' requires boolean operands")
		}
		return mtlval.Bool(rb), nil
	}

	l, err := e.eval(n.Left, ctx)
	if err != nil {
		return mtlval.Null, err
	}
	r, err := e.eval(n.Right, ctx)
	if err != nil {
		return mtlval.Null, err
	}

	switch n.Op {
	case exprast.Eq:
		return mtlval.Bool(mtlval.Equal(l, r)), nil
	case exprast.NotEq:
		return mtlval.Bool(!mtlval.Equal(l, r)), nil
	case exprast.Add:
		return evalAdd(l, r)
	case exprast.Sub, exprast.Mul, exprast.Div:
		return evalArith(n.Op, l, r)
	case exprast.Lt, exprast.Gt, exprast.LtEq, exprast.GtEq:
		return evalCompare(n.Op, l, r)
	default:
		return mtlval.Null, mtlerrors.NewTypeError("unknown binary operator")
	}
}

func evalAdd(l, r mtlval.Value) (mtlval.Value, error) {
	if ls, ok := l.AsString(); ok {
		rs, ok := r.AsString()
		if !ok {
			return mtlval.Null, mtlerrors.NewTypeError("string '+' requires both operands to be strings")
		}
		return mtlval.String(ls + rs), nil
	}
	return evalArith(exprast.Add, l, r)
}

func numeric(v mtlval.Value) (float64, bool, bool) {
	if i, ok := v.AsInt(); ok {
		return float64(i), true, true
	}
	if f, ok := v.AsReal(); ok {
		return f, false, true
	}
	return 0, false, false
}

func evalArith(op exprast.BinOp, l, r mtlval.Value) (mtlval.Value, error) {
	lf, lInt, lok := numeric(l)
	rf, rInt, rok := numeric(r)
	if !lok || !rok {
		return mtlval.Null, mtlerrors.NewTypeError("arithmetic requires numeric operands")
	}
	var result float64
	switch op {
	case exprast.Add:
		result = lf + rf
	case exprast.Sub:
		result = lf - rf
	case exprast.Mul:
		result = lf * rf
	case exprast.Div:
		if rf == 0 {
			return mtlval.Null, mtlerrors.NewTypeError("division by zero")
		}
		result = lf / rf
	}
	if lInt && rInt && op != exprast.Div {
		return mtlval.Int(int64(result)), nil
	}
	return mtlval.Real(result), nil
}

func evalCompare(op exprast.BinOp, l, r mtlval.Value) (mtlval.Value, error) {
	if ls, ok := l.AsString(); ok {
		rs, ok := r.AsString()
		if !ok {
			return mtlval.Null, mtlerrors.NewTypeError("comparison requires operands of the same type")
		}
		return mtlval.Bool(compareOrdered(op, strings.Compare(ls, rs))), nil
	}
	lf, _, lok := numeric(l)
	rf, _, rok := numeric(r)
	if !lok || !rok {
		return mtlval.Null, mtlerrors.NewTypeError("comparison requires numeric or string operands")
	}
	cmp := 0
	switch {
	case lf < rf:
		cmp = -1
	case lf > rf:
		cmp = 1
	}
	return mtlval.Bool(compareOrdered(op, cmp)), nil
}

func compareOrdered(op exprast.BinOp, cmp int) bool {
	switch op {
	case exprast.Lt:
		return cmp < 0
	case exprast.Gt:
		return cmp > 0
	case exprast.LtEq:
		return cmp <= 0
	case exprast.GtEq:
		return cmp >= 0
	}
	return false
}

func (e *Evaluator) evalNavigation(n exprast.Navigation, ctx EvalContext) (mtlval.Value, error) {
	src, err := e.eval(n.Source, ctx)
	if err != nil {
		return mtlval.Null, err
	}
	ref, ok := src.AsObject()
	if !ok {
		return mtlval.Null, mtlerrors.NewTypeError(fmt.Sprintf("cannot navigate '.%s' on a non-object value", n.Property))
	}
	return ctx.Navigate(ref, n.Property)
}

func (e *Evaluator) evalInvocation(n exprast.Invocation, ctx EvalContext) (mtlval.Value, error) {
	args, err := e.evalArgs(n.Args, ctx)
	if err != nil {
		return mtlval.Null, err
	}
	return ctx.CallQuery(n.Name, args)
}

func (e *Evaluator) evalMethodCall(n exprast.MethodCall, ctx EvalContext) (mtlval.Value, error) {
	src, err := e.eval(n.Source, ctx)
	if err != nil {
		return mtlval.Null, err
	}
	args, err := e.evalArgs(n.Args, ctx)
	if err != nil {
		return mtlval.Null, err
	}
	if v, ok, handled := evalStringBuiltin(src, n.Name, args); handled {
		return v, boolToErr(ok)
	}
	return ctx.CallQuery(n.Name, append([]mtlval.Value{src}, args...))
}

func boolToErr(ok bool) error {
	if ok {
		return nil
	}
	return mtlerrors.NewTypeError("built-in method call failed")
}

// evalStringBuiltin implements a small set of OCL-style string operations
// (toUpper/toLower/size/trim) that the grammar's navigation/invocation
// syntax can reach but that are not collection operations. This is a
// deliberate, documented extension beyond spec §6.3's explicit operator
// list, kept minimal.
func evalStringBuiltin(src mtlval.Value, name string, args []mtlval.Value) (mtlval.Value, bool, bool) {
	s, ok := src.AsString()
	if !ok {
		return mtlval.Null, false, false
	}
	switch name {
	case "toUpper":
		return mtlval.String(strings.ToUpper(s)), true, true
	case "toLower":
		return mtlval.String(strings.ToLower(s)), true, true
	case "size":
		return mtlval.Int(int64(len([]rune(s)))), true, true
	case "trim":
		return mtlval.String(strings.TrimSpace(s)), true, true
	case "isEmpty":
		return mtlval.Bool(s == ""), true, true
	case "notEmpty":
		return mtlval.Bool(s != ""), true, true
	default:
		return mtlval.Null, false, false
	}
}

func (e *Evaluator) evalArgs(nodes []exprast.Node, ctx EvalContext) ([]mtlval.Value, error) {
	out := make([]mtlval.Value, len(nodes))
	for i, n := range nodes {
		v, err := e.eval(n, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *Evaluator) evalCollectionOp(n exprast.CollectionOp, ctx EvalContext) (mtlval.Value, error) {
	src, err := e.eval(n.Source, ctx)
	if err != nil {
		return mtlval.Null, err
	}
	items := src.AsSequence()

	switch n.Op {
	case exprast.OpSize:
		return mtlval.Int(int64(len(items))), nil
	case exprast.OpIsEmpty:
		return mtlval.Bool(len(items) == 0), nil
	case exprast.OpNotEmpty:
		return mtlval.Bool(len(items) != 0), nil
	case exprast.OpFirst:
		if len(items) == 0 {
			return mtlval.Null, nil
		}
		return items[0], nil
	case exprast.OpLast:
		if len(items) == 0 {
			return mtlval.Null, nil
		}
		return items[len(items)-1], nil
	}

	iterName := n.IterVar
	if iterName == "" {
		iterName = "it"
	}

	switch n.Op {
	case exprast.OpSelect, exprast.OpReject:
		var out []mtlval.Value
		for _, item := range items {
			keep, err := e.evalIterBody(n.Body, iterName, item, ctx)
			if err != nil {
				return mtlval.Null, err
			}
			b, ok := keep.AsBool()
			if !ok {
				return mtlval.Null, mtlerrors.NewTypeError("select/reject body must be boolean")
			}
			if b == (n.Op == exprast.OpSelect) {
				out = append(out, item)
			}
		}
		return mtlval.Collection(out), nil
	case exprast.OpCollect:
		out := make([]mtlval.Value, 0, len(items))
		for _, item := range items {
			v, err := e.evalIterBody(n.Body, iterName, item, ctx)
			if err != nil {
				return mtlval.Null, err
			}
			out = append(out, v)
		}
		return mtlval.Collection(out), nil
	case exprast.OpForAll:
		for _, item := range items {
			v, err := e.evalIterBody(n.Body, iterName, item, ctx)
			if err != nil {
				return mtlval.Null, err
			}
			b, ok := v.AsBool()
			if !ok || !b {
				return mtlval.Bool(false), nil
			}
		}
		return mtlval.Bool(true), nil
	case exprast.OpExists, exprast.OpAny:
		for _, item := range items {
			v, err := e.evalIterBody(n.Body, iterName, item, ctx)
			if err != nil {
				return mtlval.Null, err
			}
			b, ok := v.AsBool()
			if ok && b {
				if n.Op == exprast.OpAny {
					return item, nil
				}
				return mtlval.Bool(true), nil
			}
		}
		if n.Op == exprast.OpAny {
			return mtlval.Null, nil
		}
		return mtlval.Bool(false), nil
	}
	return mtlval.Null, mtlerrors.NewTypeError("unknown collection operation")
}

func (e *Evaluator) evalIterBody(body exprast.Node, iterName string, item mtlval.Value, ctx EvalContext) (mtlval.Value, error) {
	ctx.PushScope()
	defer ctx.PopScope()
	ctx.SetVariable(iterName, item)
	return e.eval(body, ctx)
}
