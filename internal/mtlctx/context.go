// Package mtlctx implements the interpreter's execution context (spec §3
// "Execution Context", C7): the mutable state threaded through every
// statement execution — variable scopes, the indentation stack, the
// nested writer stack (stdout plus any open [file(...)]), the
// protected-area manager, and the trace-link list — plus the
// narrow hooks (model navigation, query invocation) the expression
// evaluator reaches back through.
package mtlctx

import (
	"strings"

	"github.com/mtlforge/mtlgen/internal/indent"
	"github.com/mtlforge/mtlgen/internal/mtlast"
	"github.com/mtlforge/mtlgen/internal/mtlval"
	"github.com/mtlforge/mtlgen/internal/outstrategy"
	"github.com/mtlforge/mtlgen/internal/protectedarea"
	"github.com/mtlforge/mtlgen/internal/writer"
)

// ModelResolver is the model-loading half of the evaluator's reach-back
// contract (spec §6.4); *modelio.Loader implements it.
type ModelResolver interface {
	Navigate(ref mtlval.ModelRef, property string) (mtlval.Value, error)
	Display(ref mtlval.ModelRef) string
}

// QueryCaller resolves and invokes a named query against the owning
// module, returning its result. The interpreter supplies this hook since
// only it knows how to look up a Query by name and execute its body
// (spec §4.7 "Query").
type QueryCaller func(name string, args []mtlval.Value) (mtlval.Value, error)

// TraceLink records one statement's generated-output position against its
// originating template position (spec §9 Open Question (a)).
type TraceLink struct {
	Source     mtlast.Position
	OutputPath string
	OutputLine int
}

type frame struct {
	w       *writer.Writer
	path    string
	mode    mtlast.FileMode
	charset string
	isFile  bool
}

// Context is the execution context threaded through one generation run. It
// is not safe for concurrent use; a run owns exactly one Context.
type Context struct {
	scopes    []map[string]mtlval.Value
	indents   []indent.Indentation
	frames    []frame
	protected *protectedarea.Manager
	output    outstrategy.Strategy
	models    ModelResolver
	callQuery QueryCaller
	traces    []TraceLink
	indentUnit string
}

// New returns a fresh Context writing to stdout's base writer at
// indentation level 0, using unit as the per-level indentation string
// (spec §3 "Indentation Stack").
func New(protected *protectedarea.Manager, output outstrategy.Strategy, models ModelResolver, unit string) *Context {
	base := indent.New(0, unit)
	c := &Context{
		scopes:     []map[string]mtlval.Value{make(map[string]mtlval.Value)},
		indents:    []indent.Indentation{base},
		protected:  protected,
		output:     output,
		models:     models,
		indentUnit: unit,
	}
	c.frames = []frame{{w: writer.New(base)}}
	return c
}

// SetQueryCaller installs the interpreter's query-invocation hook. Called
// once during wiring, before any template execution begins.
func (c *Context) SetQueryCaller(fn QueryCaller) { c.callQuery = fn }

// --- variable scopes ---

// PushScope opens a new, empty variable scope (spec §3 "push_scope").
func (c *Context) PushScope() {
	c.scopes = append(c.scopes, make(map[string]mtlval.Value))
}

// PopScope discards the innermost variable scope (spec §3 "pop_scope").
// Popping the outermost scope is a caller bug; it panics rather than
// silently corrupting scope nesting.
func (c *Context) PopScope() {
	if len(c.scopes) == 1 {
		panic("mtlctx: cannot pop the outermost scope")
	}
	c.scopes = c.scopes[:len(c.scopes)-1]
}

// GetVariable searches scopes innermost-first (spec §3 "Variable Scope").
func (c *Context) GetVariable(name string) (mtlval.Value, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i][name]; ok {
			return v, true
		}
	}
	return mtlval.Null, false
}

// SetVariable binds name in the innermost scope, shadowing any outer
// binding of the same name.
func (c *Context) SetVariable(name string, v mtlval.Value) {
	c.scopes[len(c.scopes)-1][name] = v
}

// --- indentation stack ---

// PushIndentation increments the current indentation level and applies it
// to the active writer (spec §4.8 "Block" entry).
func (c *Context) PushIndentation() {
	next := c.indents[len(c.indents)-1].Increment()
	c.indents = append(c.indents, next)
	c.currentWriter().SetIndentation(next)
}

// PopIndentation restores the previous indentation level and applies it to
// the active writer (spec §4.8 "Block" exit). A no-op at the base level.
func (c *Context) PopIndentation() {
	if len(c.indents) == 1 {
		return
	}
	c.indents = c.indents[:len(c.indents)-1]
	c.currentWriter().SetIndentation(c.indents[len(c.indents)-1])
}

// CurrentIndentation returns the active indentation.
func (c *Context) CurrentIndentation() indent.Indentation {
	return c.indents[len(c.indents)-1]
}

// --- writer stack ---

func (c *Context) currentWriter() *writer.Writer {
	return c.frames[len(c.frames)-1].w
}

// Write appends text to the active writer, applying indentation at line
// start (spec §3 "Writer Stack").
func (c *Context) Write(text string) {
	c.currentWriter().Write(text, true)
}

// WriteLine appends text followed by a newline to the active writer.
func (c *Context) WriteLine(text string) {
	c.currentWriter().WriteLine(text, true)
}

// NewLine appends a bare newline to the active writer. applyIndentNext
// controls whether the following write re-emits the indentation prefix
// (spec §4.8 "NewLine" indentation_needed field).
func (c *Context) NewLine(applyIndentNext bool) {
	c.currentWriter().NewLine(applyIndentNext)
}

// CurrentLine returns the 1-indexed line the active writer's buffer is
// currently positioned at, used to stamp trace links (spec §9 Open
// Question (a)).
func (c *Context) CurrentLine() int {
	return strings.Count(c.currentWriter().Content(), "\n") + 1
}

// CurrentPath returns the path of the currently open file writer, or ""
// when the active frame is the stdout base writer.
func (c *Context) CurrentPath() string {
	return c.frames[len(c.frames)-1].path
}

// OpenFile pushes a new writer frame for a [file(url, mode, charset)]
// block (spec §4.8 "File"). It pre-scans any existing content at path for
// protected regions so their content survives regeneration (spec §5).
// charset is carried through to Finalize on close; "" means the strategy's
// default (UTF-8, spec §4.8 "file" charset default).
func (c *Context) OpenFile(path string, mode mtlast.FileMode, charset string) error {
	existing, err := c.output.ReadExisting(path)
	if err != nil {
		return err
	}
	if existing != "" {
		c.protected.ScanContent(existing)
	}
	base := indent.New(0, c.indentUnit)
	c.indents = append(c.indents, base)
	c.frames = append(c.frames, frame{w: writer.New(base), path: path, mode: mode, charset: charset, isFile: true})
	return nil
}

// CloseFile pops the active file writer, finalizes its content through the
// output strategy, and restores the previous indentation level. Calling it
// when the active frame is not a file writer is a caller bug; it panics.
func (c *Context) CloseFile() error {
	top := c.frames[len(c.frames)-1]
	if !top.isFile {
		panic("mtlctx: CloseFile called with no open file writer")
	}
	c.frames = c.frames[:len(c.frames)-1]
	c.indents = c.indents[:len(c.indents)-1]
	return c.output.Finalize(top.path, top.w.Content(), top.mode, top.charset)
}

// Protected exposes the protected-area manager so the interpreter's
// ProtectedArea statement handler can fetch/store preserved content.
func (c *Context) Protected() *protectedarea.Manager { return c.protected }

// --- evaluator reach-back hooks ---

// CallQuery implements exprlang.EvalContext.
func (c *Context) CallQuery(name string, args []mtlval.Value) (mtlval.Value, error) {
	if c.callQuery == nil {
		return mtlval.Null, queryCallerNotWired{}
	}
	return c.callQuery(name, args)
}

type queryCallerNotWired struct{}

func (queryCallerNotWired) Error() string { return "mtlctx: no query caller wired" }

// Navigate implements exprlang.EvalContext.
func (c *Context) Navigate(ref mtlval.ModelRef, property string) (mtlval.Value, error) {
	return c.models.Navigate(ref, property)
}

// DisplayObject implements exprlang.EvalContext.
func (c *Context) DisplayObject(ref mtlval.ModelRef) string {
	return c.models.Display(ref)
}

// --- trace links ---

// RecordTrace appends a trace link from src to the active writer's current
// output position (spec §9 Open Question (a)).
func (c *Context) RecordTrace(src mtlast.Position) {
	c.traces = append(c.traces, TraceLink{Source: src, OutputPath: c.CurrentPath(), OutputLine: c.CurrentLine()})
}

// Traces returns every recorded trace link in recording order.
func (c *Context) Traces() []TraceLink {
	return c.traces
}

// BaseContent returns the stdout base writer's accumulated content (used
// when no [file(...)] block redirected output, or to inspect main-template
// output directly in tests).
func (c *Context) BaseContent() string {
	return c.frames[0].w.Content()
}
