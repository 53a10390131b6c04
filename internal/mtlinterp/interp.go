// Package mtlinterp implements the tree-walking interpreter (spec §3
// "Interpreter", C8): exhaustive dispatch over the closed Statement sum
// type, template/query/macro execution semantics (arity checks, guard and
// post-condition handling, scope management), and the top-level Generate
// entry point.
package mtlinterp

import (
	"strconv"
	"strings"
	"time"

	"github.com/mtlforge/mtlgen/internal/mtlast"
	"github.com/mtlforge/mtlgen/internal/mtlctx"
	"github.com/mtlforge/mtlgen/internal/mtlerrors"
	"github.com/mtlforge/mtlgen/internal/mtlval"
	"github.com/mtlforge/mtlgen/internal/protectedarea"
)

// realEvaluator is exprlang.Evaluator's Evaluate signature, expressed
// without importing the exprlang package directly (mtlctx.Context
// structurally satisfies the EvalContext parameter type it names,
// avoiding an import-cycle concern since mtlinterp already depends on
// mtlctx for the concrete Context type used everywhere else below).
type realEvaluator interface {
	Evaluate(expr mtlast.Expression, ctx interface {
		GetVariable(name string) (mtlval.Value, bool)
		SetVariable(name string, v mtlval.Value)
		PushScope()
		PopScope()
		CallQuery(name string, args []mtlval.Value) (mtlval.Value, error)
		Navigate(ref mtlval.ModelRef, property string) (mtlval.Value, error)
		DisplayObject(ref mtlval.ModelRef) string
	}) (mtlval.Value, error)
}

// Stats summarizes one Generate run (spec §6.5 "Generation statistics").
type Stats struct {
	TemplatesExecuted int
	Elapsed           time.Duration
	Success           bool
	LastError         string
}

// thunk is a macro body-parameter binding: the inline block a caller
// supplied at `[name(args)] ... [/name]` invocation time, invoked when the
// macro body references its body-parameter name as a statement (spec §9
// "Macro body parameter").
type thunk struct {
	name  string
	block *mtlast.Block
}

// Interpreter walks one Module's templates, queries, and macros against a
// single execution context.
type Interpreter struct {
	module *mtlast.Module
	eval   realEvaluator
	ctx    *mtlctx.Context
	stats  Stats
	thunks []thunk
}

// New returns an Interpreter over module, wiring ctx's query-invocation
// hook back to this interpreter's query dispatch.
func New(module *mtlast.Module, eval realEvaluator, ctx *mtlctx.Context) *Interpreter {
	ip := &Interpreter{module: module, eval: eval, ctx: ctx}
	ctx.SetQueryCaller(ip.callQuery)
	return ip
}

// Generate runs templateName (or the module's auto-detected main template
// when templateName is "") with args, returning run statistics alongside
// any error (spec §6.5).
func (ip *Interpreter) Generate(templateName string, args []mtlval.Value) (Stats, error) {
	start := time.Now()
	ip.stats = Stats{}

	var t *mtlast.Template
	if templateName == "" {
		tmpl, ok := ip.module.MainTemplate()
		if !ok {
			return ip.finish(start, mtlerrors.NewNoTemplates())
		}
		t = tmpl
	} else {
		tmpl, ok := ip.module.Templates[templateName]
		if !ok {
			return ip.finish(start, mtlerrors.NewTemplateNotFound(templateName))
		}
		t = tmpl
	}
	return ip.finish(start, ip.ExecuteTemplate(t, args))
}

func (ip *Interpreter) finish(start time.Time, err error) (Stats, error) {
	ip.stats.Elapsed = time.Since(start)
	ip.stats.Success = err == nil
	if err != nil {
		ip.stats.LastError = err.Error()
	}
	return ip.stats, err
}

// ExecuteTemplate runs t with args bound to its declared parameters (spec
// §4.7 "Template"): arity-checked, guard-gated (a failing guard silently
// skips the body, spec §4.8 "Guard Failure"), body executed, then
// post-condition-checked.
func (ip *Interpreter) ExecuteTemplate(t *mtlast.Template, args []mtlval.Value) error {
	if len(args) != len(t.Params) {
		return mtlerrors.NewInvalidOperation(
			"template " + t.Name + ": expected " + itoa(len(t.Params)) + " arguments, got " + itoa(len(args)))
	}

	ip.ctx.PushScope()
	defer ip.ctx.PopScope()
	for i, p := range t.Params {
		ip.ctx.SetVariable(p.Name, args[i])
	}

	if t.Guard != nil {
		v, err := ip.eval.Evaluate(*t.Guard, ip.ctx)
		if err != nil {
			return err
		}
		if !v.IsTrue() {
			return nil // guard failure: local recovery, not an error (spec §4.8)
		}
	}

	if err := ip.executeBlock(t.Body); err != nil {
		return err
	}

	if t.Post != nil {
		v, err := ip.eval.Evaluate(*t.Post, ip.ctx)
		if err != nil {
			return err
		}
		if !v.IsTrue() {
			return mtlerrors.NewPostConditionFailed(t.Name)
		}
	}

	ip.stats.TemplatesExecuted++
	return nil
}

// ExecuteQuery evaluates q's body expression with args bound to its
// parameters, returning the result (spec §4.7 "Query").
func (ip *Interpreter) ExecuteQuery(q *mtlast.Query, args []mtlval.Value) (mtlval.Value, error) {
	if len(args) != len(q.Params) {
		return mtlval.Null, mtlerrors.NewInvalidOperation(
			"query " + q.Name + ": expected " + itoa(len(q.Params)) + " arguments, got " + itoa(len(args)))
	}
	ip.ctx.PushScope()
	defer ip.ctx.PopScope()
	for i, p := range q.Params {
		ip.ctx.SetVariable(p.Name, args[i])
	}
	return ip.eval.Evaluate(q.Body, ip.ctx)
}

// ExecuteMacro runs m with args bound to its non-body parameters and
// bodyBlock (if non-nil) bound as the invoked body-parameter thunk (spec
// §9 "Macro body parameter").
func (ip *Interpreter) ExecuteMacro(m *mtlast.Macro, args []mtlval.Value, bodyBlock *mtlast.Block) error {
	if len(args) != len(m.Params) {
		return mtlerrors.NewInvalidOperation(
			"macro " + m.Name + ": expected " + itoa(len(m.Params)) + " arguments, got " + itoa(len(args)))
	}

	ip.ctx.PushScope()
	defer ip.ctx.PopScope()
	for i, p := range m.Params {
		ip.ctx.SetVariable(p.Name, args[i])
	}

	if m.BodyParamName != "" && bodyBlock != nil {
		ip.thunks = append(ip.thunks, thunk{name: m.BodyParamName, block: bodyBlock})
		defer func() { ip.thunks = ip.thunks[:len(ip.thunks)-1] }()
	}

	return ip.executeBlock(m.Body)
}

func (ip *Interpreter) lookupThunk(name string) (*mtlast.Block, bool) {
	for i := len(ip.thunks) - 1; i >= 0; i-- {
		if ip.thunks[i].name == name {
			return ip.thunks[i].block, true
		}
	}
	return nil, false
}

func (ip *Interpreter) executeBlock(b mtlast.Block) error {
	if !b.Inlined {
		ip.ctx.PushIndentation()
		defer ip.ctx.PopIndentation()
	}
	for _, stmt := range b.Statements {
		if err := ip.executeStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (ip *Interpreter) executeStatement(s mtlast.Statement) error {
	switch s.Kind {
	case mtlast.StmtText:
		ip.writeMultiline(s.Text)
		return nil

	case mtlast.StmtExpression:
		v, err := ip.eval.Evaluate(s.Expr, ip.ctx)
		if err != nil {
			return err
		}
		if v.Kind() == mtlval.KindCollection {
			return mtlerrors.NewTypeError("expression statement cannot write a collection directly; use a for loop")
		}
		ip.ctx.RecordTrace(s.Pos)
		ip.writeMultiline(v.CanonicalString(ip.ctx.DisplayObject))
		return nil

	case mtlast.StmtNewLine:
		ip.ctx.NewLine(s.IndentationNeeded)
		return nil

	case mtlast.StmtComment:
		return nil

	case mtlast.StmtIf:
		return ip.executeIf(s)

	case mtlast.StmtFor:
		return ip.executeFor(s)

	case mtlast.StmtLet:
		return ip.executeLet(s)

	case mtlast.StmtFile:
		return ip.executeFile(s)

	case mtlast.StmtProtectedArea:
		return ip.executeProtectedArea(s)

	case mtlast.StmtTrace:
		v, err := ip.eval.Evaluate(s.Source, ip.ctx)
		if err != nil {
			return err
		}
		if _, ok := v.AsObject(); ok {
			ip.ctx.RecordTrace(s.Pos)
		}
		return ip.executeBlock(s.Body)

	case mtlast.StmtMacroInvocation:
		return ip.executeMacroInvocation(s)

	default:
		return mtlerrors.NewInvalidOperation("unknown statement kind")
	}
}

// writeMultiline writes text, re-splitting on embedded newlines so each
// continuation line goes through WriteLine and gets indentation re-applied
// at its own line start (spec Property 2, writer indentation laws).
func (ip *Interpreter) writeMultiline(text string) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i < len(lines)-1 {
			ip.ctx.WriteLine(line)
		} else {
			ip.ctx.Write(line)
		}
	}
}

func (ip *Interpreter) executeIf(s mtlast.Statement) error {
	v, err := ip.eval.Evaluate(s.Condition, ip.ctx)
	if err != nil {
		return err
	}
	if v.IsTrue() {
		return ip.executeBlock(s.Then)
	}
	for _, elseif := range s.ElseIfs {
		v, err := ip.eval.Evaluate(elseif.Condition, ip.ctx)
		if err != nil {
			return err
		}
		if v.IsTrue() {
			return ip.executeBlock(elseif.Block)
		}
	}
	if s.Else != nil {
		return ip.executeBlock(*s.Else)
	}
	return nil
}

func (ip *Interpreter) executeFor(s mtlast.Statement) error {
	v, err := ip.eval.Evaluate(s.Collection, ip.ctx)
	if err != nil {
		return err
	}
	items := v.AsSequence()

	for i, item := range items {
		ip.ctx.PushScope()
		ip.ctx.SetVariable(s.LoopVar.Name, item)
		err := ip.executeBlock(s.Body)
		ip.ctx.PopScope()
		if err != nil {
			return err
		}
		if s.Separator != nil && i < len(items)-1 {
			sep, err := ip.eval.Evaluate(*s.Separator, ip.ctx)
			if err != nil {
				return err
			}
			ip.writeMultiline(sep.CanonicalString(ip.ctx.DisplayObject))
		}
	}
	return nil
}

func (ip *Interpreter) executeLet(s mtlast.Statement) error {
	ip.ctx.PushScope()
	defer ip.ctx.PopScope()
	for _, b := range s.Bindings {
		v, err := ip.eval.Evaluate(b.Init, ip.ctx)
		if err != nil {
			return err
		}
		ip.ctx.SetVariable(b.Variable.Name, v)
	}
	return ip.executeBlock(s.Body)
}

func (ip *Interpreter) executeFile(s mtlast.Statement) error {
	urlVal, err := ip.eval.Evaluate(s.URL, ip.ctx)
	if err != nil {
		return err
	}
	path, ok := urlVal.AsString()
	if !ok {
		return mtlerrors.NewTypeError("file statement url must evaluate to a string")
	}

	charset := "UTF-8"
	if s.Charset != nil {
		csVal, err := ip.eval.Evaluate(*s.Charset, ip.ctx)
		if err != nil {
			return err
		}
		cs, ok := csVal.AsString()
		if !ok {
			return mtlerrors.NewTypeError("file statement charset must evaluate to a string")
		}
		charset = cs
	}

	if err := ip.ctx.OpenFile(path, s.Mode, charset); err != nil {
		return mtlerrors.NewFileError(err.Error())
	}
	if err := ip.executeBlock(s.Body); err != nil {
		// Still attempt to close/finalize what was written so far, then
		// surface the original error.
		_ = ip.ctx.CloseFile()
		return err
	}
	if err := ip.ctx.CloseFile(); err != nil {
		return mtlerrors.NewFileError(err.Error())
	}
	return nil
}

func (ip *Interpreter) executeProtectedArea(s mtlast.Statement) error {
	idVal, err := ip.eval.Evaluate(s.ID, ip.ctx)
	if err != nil {
		return err
	}
	id, ok := idVal.AsString()
	if !ok {
		return mtlerrors.NewTypeError("protected area id must evaluate to a string")
	}

	startPrefix := ""
	if s.StartTagPrefix != nil {
		v, err := ip.eval.Evaluate(*s.StartTagPrefix, ip.ctx)
		if err != nil {
			return err
		}
		startPrefix, _ = v.AsString()
	}
	endPrefix := startPrefix
	if s.EndTagPrefix != nil {
		v, err := ip.eval.Evaluate(*s.EndTagPrefix, ip.ctx)
		if err != nil {
			return err
		}
		endPrefix, _ = v.AsString()
	}

	start, end := protectedarea.GenerateMarkersPrefixed(id, startPrefix, endPrefix)

	ip.ctx.WriteLine(start)
	if preserved, ok := ip.ctx.Protected().Content(id); ok {
		for _, line := range strings.Split(preserved, "\n") {
			ip.ctx.WriteLine(line)
		}
	} else if err := ip.executeBlock(s.Body); err != nil {
		return err
	}
	ip.ctx.WriteLine(end)
	return nil
}

func (ip *Interpreter) executeMacroInvocation(s mtlast.Statement) error {
	if block, ok := ip.lookupThunk(s.MacroName); ok {
		return ip.executeBlock(*block)
	}

	m, ok := ip.module.Macros[s.MacroName]
	if !ok {
		return mtlerrors.NewMacroNotFound(s.MacroName)
	}
	args := make([]mtlval.Value, len(s.Args))
	for i, a := range s.Args {
		v, err := ip.eval.Evaluate(a, ip.ctx)
		if err != nil {
			return err
		}
		args[i] = v
	}
	return ip.ExecuteMacro(m, args, s.BodyBlock)
}

func (ip *Interpreter) callQuery(name string, args []mtlval.Value) (mtlval.Value, error) {
	q, ok := ip.module.Queries[name]
	if !ok {
		return mtlval.Null, mtlerrors.NewQueryNotFound(name)
	}
	return ip.ExecuteQuery(q, args)
}

func itoa(n int) string { return strconv.Itoa(n) }
