// Package mtlerrors implements the fixed parse-time and run-time error
// taxonomy (spec §7) plus a rustc-style source-snippet renderer modeled on
// the teacher's pkg/errors.EnhancedError, used by the CLI and LSP front
// ends to present diagnostics with a source excerpt and a caret.
package mtlerrors

import "fmt"

// ParseErrorKind is the fixed set of parse-time error kinds (spec §7).
type ParseErrorKind int

const (
	InvalidSyntax ParseErrorKind = iota
	UnknownStatementType
	MalformedExpression
	MissingAttribute
	DuplicateName
)

// ParseError is a parse-time error carrying a line/column and a kind-
// specific message.
type ParseError struct {
	Kind    ParseErrorKind
	Line    int
	Column  int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// NewInvalidSyntax builds an InvalidSyntax ParseError at (line, column).
func NewInvalidSyntax(line, column int, message string) *ParseError {
	return &ParseError{Kind: InvalidSyntax, Line: line, Column: column, Message: message}
}

// NewUnknownStatementType builds an UnknownStatementType ParseError.
func NewUnknownStatementType(line, column int, name string) *ParseError {
	return &ParseError{Kind: UnknownStatementType, Line: line, Column: column,
		Message: fmt.Sprintf("unknown statement type %q", name)}
}

// NewMalformedExpression builds a MalformedExpression ParseError.
func NewMalformedExpression(line, column int, message string) *ParseError {
	return &ParseError{Kind: MalformedExpression, Line: line, Column: column, Message: message}
}

// NewMissingAttribute builds a MissingAttribute ParseError.
func NewMissingAttribute(line, column int, attribute, element string) *ParseError {
	return &ParseError{Kind: MissingAttribute, Line: line, Column: column,
		Message: fmt.Sprintf("missing attribute %q on %s", attribute, element)}
}

// NewDuplicateName builds a DuplicateName ParseError.
func NewDuplicateName(line, column int, kind, name string) *ParseError {
	return &ParseError{Kind: DuplicateName, Line: line, Column: column,
		Message: fmt.Sprintf("duplicate %s name %q", kind, name)}
}

// ExecErrorKind is the fixed set of execution-time error kinds (spec §7).
type ExecErrorKind int

const (
	TemplateNotFound ExecErrorKind = iota
	QueryNotFound
	MacroNotFound
	ModuleNotFound
	VariableNotFound
	TypeError
	InvalidOperation
	FileError
	PostConditionFailed
	ProtectedAreaConflict
	Cancelled
	NoTemplates
)

// ExecError is a run-time error carrying a kind and a message. GuardFailed
// is deliberately absent: spec §4.8/§7 treat a failed guard as locally
// recovered (the template silently skips its body), never raised as an
// ExecError.
type ExecError struct {
	Kind    ExecErrorKind
	Message string
	// Name is the template/query/macro/module/variable name involved, when
	// the kind names one (TemplateNotFound, QueryNotFound, ...).
	Name string
}

func (e *ExecError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Name)
	}
	return e.Message
}

func newNamed(kind ExecErrorKind, label, name string) *ExecError {
	return &ExecError{Kind: kind, Name: name, Message: fmt.Sprintf("%s not found", label)}
}

func NewTemplateNotFound(name string) *ExecError { return newNamed(TemplateNotFound, "template", name) }
func NewQueryNotFound(name string) *ExecError     { return newNamed(QueryNotFound, "query", name) }
func NewMacroNotFound(name string) *ExecError     { return newNamed(MacroNotFound, "macro", name) }
func NewModuleNotFound(name string) *ExecError    { return newNamed(ModuleNotFound, "module", name) }
func NewVariableNotFound(name string) *ExecError  { return newNamed(VariableNotFound, "variable", name) }

func NewTypeError(message string) *ExecError {
	return &ExecError{Kind: TypeError, Message: message}
}

func NewInvalidOperation(message string) *ExecError {
	return &ExecError{Kind: InvalidOperation, Message: message}
}

func NewFileError(message string) *ExecError {
	return &ExecError{Kind: FileError, Message: message}
}

func NewPostConditionFailed(templateName string) *ExecError {
	return &ExecError{Kind: PostConditionFailed, Name: templateName,
		Message: "post-condition failed"}
}

func NewProtectedAreaConflict(message string) *ExecError {
	return &ExecError{Kind: ProtectedAreaConflict, Message: message}
}

func NewCancelled() *ExecError {
	return &ExecError{Kind: Cancelled, Message: "generation cancelled"}
}

// NewNoTemplates builds the error the auto-detect main-template policy
// raises when a module declares no templates at all (spec §6.5), distinct
// from TemplateNotFound (which names a specific, absent template).
func NewNoTemplates() *ExecError {
	return &ExecError{Kind: NoTemplates, Message: "module declares no templates"}
}
