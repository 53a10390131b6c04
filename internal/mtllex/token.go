// Package mtllex implements the dual-mode (text / directive) tokeniser
// (spec §4.4). It is a hand-rolled cursor-based scanner, not a combinator
// grammar: a curIndex cursor plus explicit line/column bookkeeping, in
// the idiom of a classic recursive-descent-parser scanner.
package mtllex

// TokenKind is the closed set of token kinds the lexer produces.
type TokenKind int

const (
	EOF TokenKind = iota
	Text
	LeftBracket  // [
	RightBracket // ]
	Comment
	String
	Integer
	Real
	Boolean
	Identifier
	Keyword

	Slash        // /
	LParen       // (
	RParen       // )
	Comma        // ,
	Colon        // :
	Dot          // .
	Pipe         // |
	Question     // ?
	Plus         // +
	Minus        // -
	Star         // *
	Equal        // =
	Less         // <
	Greater      // >
	Arrow        // ->
	NotEqual     // <>
	LessEqual    // <=
	GreaterEqual // >=
)

// Keywords is the reserved word set recognised in directive mode (spec
// §4.4). Identifiers matching one of these become Keyword tokens, except
// true/false which become Boolean literals.
var Keywords = map[string]bool{
	"module": true, "template": true, "query": true, "macro": true,
	"public": true, "private": true, "protected": true,
	"if": true, "elseif": true, "else": true,
	"for": true, "let": true, "file": true,
	"main": true, "post": true, "guard": true, "overrides": true,
	"separator": true, "overwrite": true, "append": true, "create": true,
	"import": true, "extends": true,
	"true": true, "false": true,
	"in": true, "and": true, "or": true, "not": true, "xor": true, "implies": true,
	"select": true, "reject": true, "collect": true, "forAll": true, "exists": true,
	"any": true, "size": true, "isEmpty": true, "notEmpty": true,
	"first": true, "last": true,
	"oclIsKindOf": true, "oclIsTypeOf": true, "oclAsType": true,
}

// Position is a 1-indexed (line, column) location.
type Position struct {
	Line   int
	Column int
}

// Token is one lexical unit plus its source position and, for literal and
// identifier/keyword kinds, its text value.
type Token struct {
	Kind  TokenKind
	Value string
	Pos   Position
}
