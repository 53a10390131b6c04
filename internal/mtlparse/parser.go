// Package mtlparse implements the hand-rolled recursive-descent parser
// (spec §4.5) that turns the mtllex token stream into an mtlast.Module.
package mtlparse

import (
	"fmt"
	"strconv"

	"github.com/mtlforge/mtlgen/internal/exprast"
	"github.com/mtlforge/mtlgen/internal/mtlast"
	"github.com/mtlforge/mtlgen/internal/mtlerrors"
	"github.com/mtlforge/mtlgen/internal/mtllex"
)

// Parser consumes a filtered token stream and builds a Module AST.
type Parser struct {
	toks []mtllex.Token
	pos  int
}

// Parse lexes and parses src (an MTL template file) into a Module.
func Parse(src string) (*mtlast.Module, error) {
	toks, err := mtllex.New(src).Tokenize()
	if err != nil {
		if le, ok := err.(*mtllex.LexError); ok {
			return nil, mtlerrors.NewInvalidSyntax(le.Pos.Line, le.Pos.Column, le.Message)
		}
		return nil, err
	}
	p := &Parser{toks: toks}
	return p.parseModule()
}

func (p *Parser) cur() mtllex.Token  { return p.toks[p.pos] }
func (p *Parser) peekAt(n int) mtllex.Token {
	i := p.pos + n
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1] // EOF
	}
	return p.toks[i]
}

func (p *Parser) advance() mtllex.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) atEOF() bool { return p.cur().Kind == mtllex.EOF }

func (p *Parser) errAt(tok mtllex.Token, format string, args ...interface{}) error {
	return mtlerrors.NewInvalidSyntax(tok.Pos.Line, tok.Pos.Column, fmt.Sprintf(format, args...))
}

// expect consumes the current token if it has kind, else reports a
// deterministic error naming the offending token (spec §4.5 "Errors").
func (p *Parser) expect(kind mtllex.TokenKind) (mtllex.Token, error) {
	if p.cur().Kind != kind {
		return mtllex.Token{}, p.errAt(p.cur(), "expected %s, got %q", kindName(kind), p.cur().Value)
	}
	return p.advance(), nil
}

func (p *Parser) expectKeyword(word string) (mtllex.Token, error) {
	if p.cur().Kind != mtllex.Keyword || p.cur().Value != word {
		return mtllex.Token{}, p.errAt(p.cur(), "expected keyword %q, got %q", word, p.cur().Value)
	}
	return p.advance(), nil
}

func kindName(k mtllex.TokenKind) string {
	switch k {
	case mtllex.LeftBracket:
		return "'['"
	case mtllex.RightBracket:
		return "']'"
	case mtllex.LParen:
		return "'('"
	case mtllex.RParen:
		return "')'"
	case mtllex.Colon:
		return "':'"
	case mtllex.Comma:
		return "','"
	case mtllex.Slash:
		return "'/'"
	case mtllex.Identifier:
		return "identifier"
	case mtllex.String:
		return "string literal"
	case mtllex.EOF:
		return "end of input"
	default:
		return "token"
	}
}

// identLike accepts an Identifier or a Keyword token as a name, per spec
// §4.5: "an identifier may legitimately re-use any keyword spelling as a
// variable, parameter, type, template or query name".
func (p *Parser) identLike() (string, mtllex.Token, error) {
	tok := p.cur()
	if tok.Kind != mtllex.Identifier && tok.Kind != mtllex.Keyword {
		return "", tok, p.errAt(tok, "expected identifier, got %q", tok.Value)
	}
	p.advance()
	return tok.Value, tok, nil
}

func toPos(t mtllex.Token) mtlast.Position {
	return mtlast.Position{Line: t.Pos.Line, Column: t.Pos.Column}
}

// ---- Module ----

func (p *Parser) parseModule() (*mtlast.Module, error) {
	if _, err := p.expect(mtllex.LeftBracket); err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("module"); err != nil {
		return nil, err
	}
	name, _, err := p.identLike()
	if err != nil {
		return nil, err
	}
	mod := mtlast.NewModule(name)

	if _, err := p.expect(mtllex.LParen); err != nil {
		return nil, err
	}
	if p.cur().Kind != mtllex.RParen {
		for {
			if err := p.parseMetamodelEntry(mod); err != nil {
				return nil, err
			}
			if p.cur().Kind == mtllex.Comma {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expect(mtllex.RParen); err != nil {
		return nil, err
	}
	if _, err := p.expect(mtllex.RightBracket); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for !p.atEOF() {
		if p.cur().Kind == mtllex.Text {
			p.advance() // free text between top-level declarations is discarded
			continue
		}
		if p.cur().Kind != mtllex.LeftBracket {
			return nil, p.errAt(p.cur(), "expected a top-level declaration, got %q", p.cur().Value)
		}
		if err := p.parseTopDecl(mod, seen); err != nil {
			return nil, err
		}
	}
	return mod, nil
}

func (p *Parser) parseMetamodelEntry(mod *mtlast.Module) error {
	// alias : 'uri'  |  'uri' (alias defaults to the module name)
	if p.cur().Kind == mtllex.String {
		uri := p.advance().Value
		mod.AddMetamodel(mod.Name, uri)
		return nil
	}
	alias, _, err := p.identLike()
	if err != nil {
		return err
	}
	if _, err := p.expect(mtllex.Colon); err != nil {
		return err
	}
	uriTok, err := p.expect(mtllex.String)
	if err != nil {
		return err
	}
	mod.AddMetamodel(alias, uriTok.Value)
	return nil
}

func (p *Parser) parseTopDecl(mod *mtlast.Module, seen map[string]bool) error {
	start := p.pos
	p.advance() // consume LeftBracket

	switch {
	case p.cur().Kind == mtllex.Comment:
		p.advance()
		if _, err := p.expect(mtllex.RightBracket); err != nil {
			return err
		}
		return nil

	case p.cur().Kind == mtllex.Keyword && p.cur().Value == "template":
		p.pos = start
		t, err := p.parseTemplate()
		if err != nil {
			return err
		}
		if seen["template:"+t.Name] {
			return mtlerrors.NewDuplicateName(t.Pos.Line, t.Pos.Column, "template", t.Name)
		}
		seen["template:"+t.Name] = true
		mod.AddTemplate(t)
		return nil

	case p.cur().Kind == mtllex.Keyword && p.cur().Value == "query":
		p.pos = start
		q, err := p.parseQuery()
		if err != nil {
			return err
		}
		if seen["query:"+q.Name] {
			return mtlerrors.NewDuplicateName(q.Pos.Line, q.Pos.Column, "query", q.Name)
		}
		seen["query:"+q.Name] = true
		mod.AddQuery(q)
		return nil

	case p.cur().Kind == mtllex.Keyword && p.cur().Value == "macro":
		p.pos = start
		mac, err := p.parseMacro()
		if err != nil {
			return err
		}
		if seen["macro:"+mac.Name] {
			return mtlerrors.NewDuplicateName(mac.Pos.Line, mac.Pos.Column, "macro", mac.Name)
		}
		seen["macro:"+mac.Name] = true
		mod.AddMacro(mac)
		return nil

	case p.cur().Kind == mtllex.Keyword && p.cur().Value == "import":
		p.advance()
		name, _, err := p.identLike()
		if err != nil {
			return err
		}
		mod.Imports = append(mod.Imports, name)
		if _, err := p.expect(mtllex.RightBracket); err != nil {
			return err
		}
		return nil

	case p.cur().Kind == mtllex.Keyword && p.cur().Value == "extends":
		p.advance()
		name, _, err := p.identLike()
		if err != nil {
			return err
		}
		mod.Parent = name
		if _, err := p.expect(mtllex.RightBracket); err != nil {
			return err
		}
		return nil

	default:
		return p.errAt(p.cur(), "unknown top-level declaration %q", p.cur().Value)
	}
}

// ---- Params ----

func (p *Parser) parseParams() ([]mtlast.Variable, error) {
	if _, err := p.expect(mtllex.LParen); err != nil {
		return nil, err
	}
	var params []mtlast.Variable
	seen := map[string]bool{}
	if p.cur().Kind != mtllex.RParen {
		for {
			name, tok, err := p.identLike()
			if err != nil {
				return nil, err
			}
			if seen[name] {
				return nil, mtlerrors.NewInvalidSyntax(tok.Pos.Line, tok.Pos.Column,
					fmt.Sprintf("duplicate parameter name %q", name))
			}
			seen[name] = true
			if _, err := p.expect(mtllex.Colon); err != nil {
				return nil, err
			}
			typ, _, err := p.identLike()
			if err != nil {
				return nil, err
			}
			params = append(params, mtlast.Variable{Name: name, Type: typ})
			if p.cur().Kind == mtllex.Comma {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expect(mtllex.RParen); err != nil {
		return nil, err
	}
	return params, nil
}

// ---- Template ----

func (p *Parser) parseTemplate() (*mtlast.Template, error) {
	startTok, err := p.expect(mtllex.LeftBracket)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("template"); err != nil {
		return nil, err
	}
	t := &mtlast.Template{Pos: toPos(startTok), Visibility: mtlast.Public}

	if p.cur().Kind == mtllex.Keyword {
		switch p.cur().Value {
		case "public":
			p.advance()
		case "private":
			t.Visibility = mtlast.Private
			p.advance()
		case "protected":
			t.Visibility = mtlast.Protected
			p.advance()
		}
	}
	// "main" before another name marks that template as main; a template
	// named "main" itself is main too.
	if p.cur().Kind == mtllex.Keyword && p.cur().Value == "main" && p.peekAt(1).Kind != mtllex.LParen {
		t.IsMain = true
		p.advance()
	}

	name, _, err := p.identLike()
	if err != nil {
		return nil, err
	}
	t.Name = name
	if name == "main" {
		t.IsMain = true
	}

	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	t.Params = params

	if p.cur().Kind == mtllex.Keyword && p.cur().Value == "overrides" {
		p.advance()
		over, _, err := p.identLike()
		if err != nil {
			return nil, err
		}
		t.Overrides = over
	}

	if p.cur().Kind == mtllex.Keyword && p.cur().Value == "guard" {
		p.advance()
		if _, err := p.expect(mtllex.LParen); err != nil {
			return nil, err
		}
		guard, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(mtllex.RParen); err != nil {
			return nil, err
		}
		t.Guard = &guard
	}

	if p.cur().Kind == mtllex.Keyword && p.cur().Value == "post" {
		p.advance()
		if _, err := p.expect(mtllex.LParen); err != nil {
			return nil, err
		}
		post, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(mtllex.RParen); err != nil {
			return nil, err
		}
		t.Post = &post
	}

	if _, err := p.expect(mtllex.RightBracket); err != nil {
		return nil, err
	}

	body, err := p.parseBlockUntilKeywordClose("template")
	if err != nil {
		return nil, err
	}
	t.Body = body
	return t, nil
}

// ---- Query ----

func (p *Parser) parseQuery() (*mtlast.Query, error) {
	startTok, err := p.expect(mtllex.LeftBracket)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("query"); err != nil {
		return nil, err
	}
	q := &mtlast.Query{Pos: toPos(startTok), Visibility: mtlast.Public}
	if p.cur().Kind == mtllex.Keyword {
		switch p.cur().Value {
		case "public":
			p.advance()
		case "private":
			q.Visibility = mtlast.Private
			p.advance()
		case "protected":
			q.Visibility = mtlast.Protected
			p.advance()
		}
	}
	name, _, err := p.identLike()
	if err != nil {
		return nil, err
	}
	q.Name = name

	params, err := p.parseParams()
	if err != nil {
		return nil, err
	}
	q.Params = params

	if _, err := p.expect(mtllex.Colon); err != nil {
		return nil, err
	}
	retType, _, err := p.identLike()
	if err != nil {
		return nil, err
	}
	q.ReturnType = retType

	if _, err := p.expect(mtllex.Equal); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	q.Body = body

	if p.cur().Kind == mtllex.Slash {
		p.advance()
	}
	if _, err := p.expect(mtllex.RightBracket); err != nil {
		return nil, err
	}
	return q, nil
}

// ---- Macro ----

func (p *Parser) parseMacro() (*mtlast.Macro, error) {
	startTok, err := p.expect(mtllex.LeftBracket)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("macro"); err != nil {
		return nil, err
	}
	mac := &mtlast.Macro{Pos: toPos(startTok)}
	name, _, err := p.identLike()
	if err != nil {
		return nil, err
	}
	mac.Name = name

	if _, err := p.expect(mtllex.LParen); err != nil {
		return nil, err
	}
	if p.cur().Kind != mtllex.RParen {
		for {
			pname, _, err := p.identLike()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(mtllex.Colon); err != nil {
				return nil, err
			}
			// a body-parameter is declared with type "Block"; any other
			// type is a regular parameter.
			typ, ttok, err := p.identLike()
			if err != nil {
				return nil, err
			}
			if typ == "Block" {
				if mac.BodyParamName != "" {
					return nil, p.errAt(ttok, "macro may declare at most one body parameter")
				}
				mac.BodyParamName = pname
			} else {
				mac.Params = append(mac.Params, mtlast.Variable{Name: pname, Type: typ})
			}
			if p.cur().Kind == mtllex.Comma {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expect(mtllex.RParen); err != nil {
		return nil, err
	}
	if _, err := p.expect(mtllex.RightBracket); err != nil {
		return nil, err
	}

	body, err := p.parseBlockUntilKeywordClose("macro")
	if err != nil {
		return nil, err
	}
	mac.Body = body
	return mac, nil
}

// ---- Blocks & Statements ----

// isClosingTag reports whether the parser is positioned at "[" "/" name "]"
// without consuming any tokens.
func (p *Parser) isClosingTag(name string) bool {
	return p.cur().Kind == mtllex.LeftBracket &&
		p.peekAt(1).Kind == mtllex.Slash &&
		(p.peekAt(2).Kind == mtllex.Keyword || p.peekAt(2).Kind == mtllex.Identifier) &&
		p.peekAt(2).Value == name &&
		p.peekAt(3).Kind == mtllex.RightBracket
}

func (p *Parser) consumeClosingTag(name string) error {
	if !p.isClosingTag(name) {
		return p.errAt(p.cur(), "expected closing [/%s]", name)
	}
	p.advance() // [
	p.advance() // /
	p.advance() // name
	p.advance() // ]
	return nil
}

// parseBlockUntilKeywordClose parses statements until a "[/keyword]"
// closing tag, consumes it, and returns the block. Marked Inlined: the
// source's own literal whitespace (captured verbatim as Text statements)
// is the only indentation a template body carries — the interpreter must
// not layer an additional indentation level on top of it, or template
// output would start one unit off column zero (spec Property 2, concrete
// scenario 1).
func (p *Parser) parseBlockUntilKeywordClose(keyword string) (mtlast.Block, error) {
	blk := mtlast.Block{Inlined: true}
	for {
		if p.atEOF() {
			return blk, p.errAt(p.cur(), "unexpected end of input, expected [/%s]", keyword)
		}
		if p.isClosingTag(keyword) {
			if err := p.consumeClosingTag(keyword); err != nil {
				return blk, err
			}
			return blk, nil
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return blk, err
		}
		blk.Statements = append(blk.Statements, stmt)
	}
}

// atAnyOf reports whether the parser is positioned at "[" followed by one
// of keywords, which end the current block without being consumed, for
// constructs with multiple sibling arms (If's elseif/else).
func (p *Parser) atAnyOf(keywords ...string) bool {
	if p.cur().Kind != mtllex.LeftBracket || p.peekAt(1).Kind != mtllex.Keyword {
		return false
	}
	for _, kw := range keywords {
		if p.peekAt(1).Value == kw {
			return true
		}
	}
	return false
}

func (p *Parser) parseStatement() (mtlast.Statement, error) {
	tok := p.cur()
	if tok.Kind == mtllex.Text {
		p.advance()
		return mtlast.Statement{
			Kind: mtlast.StmtText,
			Pos:  toPos(tok),
			Text: tok.Value,
		}, nil
	}
	if tok.Kind != mtllex.LeftBracket {
		return mtlast.Statement{}, p.errAt(tok, "unexpected token %q", tok.Value)
	}

	next := p.peekAt(1)
	if next.Kind == mtllex.Comment {
		p.advance()
		c := p.advance()
		if _, err := p.expect(mtllex.RightBracket); err != nil {
			return mtlast.Statement{}, err
		}
		return mtlast.Statement{Kind: mtlast.StmtComment, Pos: toPos(tok), Text: c.Value}, nil
	}

	if next.Kind == mtllex.Keyword {
		switch next.Value {
		case "if":
			return p.parseIf()
		case "for":
			return p.parseFor()
		case "let":
			return p.parseLet()
		case "file":
			return p.parseFile()
		case "protected":
			return p.parseProtectedArea()
		}
	}

	return p.parseExprOrMacroStatement()
}

func (p *Parser) parseIf() (mtlast.Statement, error) {
	startTok := p.advance() // [
	p.advance()             // if
	if _, err := p.expect(mtllex.LParen); err != nil {
		return mtlast.Statement{}, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return mtlast.Statement{}, err
	}
	if _, err := p.expect(mtllex.RParen); err != nil {
		return mtlast.Statement{}, err
	}
	if _, err := p.expect(mtllex.RightBracket); err != nil {
		return mtlast.Statement{}, err
	}

	stmt := mtlast.Statement{Kind: mtlast.StmtIf, Pos: toPos(startTok), Condition: cond}

	for {
		thenBlk, err := p.parseBlockUntilAny("if", "elseif", "else")
		if err != nil {
			return mtlast.Statement{}, err
		}
		if stmt.Then.Statements == nil && stmt.ElseIfs == nil {
			stmt.Then = thenBlk
		} else {
			stmt.ElseIfs[len(stmt.ElseIfs)-1].Block = thenBlk
		}

		if p.atAnyOf("elseif") {
			p.advance() // [
			p.advance() // elseif
			if _, err := p.expect(mtllex.LParen); err != nil {
				return mtlast.Statement{}, err
			}
			c, err := p.parseExpr()
			if err != nil {
				return mtlast.Statement{}, err
			}
			if _, err := p.expect(mtllex.RParen); err != nil {
				return mtlast.Statement{}, err
			}
			if _, err := p.expect(mtllex.RightBracket); err != nil {
				return mtlast.Statement{}, err
			}
			stmt.ElseIfs = append(stmt.ElseIfs, mtlast.ElseIfClause{Condition: c})
			continue
		}

		if p.atAnyOf("else") {
			p.advance() // [
			p.advance() // else
			if _, err := p.expect(mtllex.RightBracket); err != nil {
				return mtlast.Statement{}, err
			}
			elseBlk, err := p.parseBlockUntilKeywordClose("if")
			if err != nil {
				return mtlast.Statement{}, err
			}
			stmt.Else = &elseBlk
			return stmt, nil
		}

		if err := p.consumeClosingTag("if"); err != nil {
			return mtlast.Statement{}, err
		}
		return stmt, nil
	}
}

// parseBlockUntilAny parses statements until hitting "[/closeName]" or any
// of the sibling arm keywords, without consuming the stop token. Marked
// Inlined for the same reason as parseBlockUntilKeywordClose.
func (p *Parser) parseBlockUntilAny(closeName string, armKeywords ...string) (mtlast.Block, error) {
	blk := mtlast.Block{Inlined: true}
	for {
		if p.atEOF() {
			return blk, p.errAt(p.cur(), "unexpected end of input, expected [/%s]", closeName)
		}
		if p.isClosingTag(closeName) || p.atAnyOf(armKeywords...) {
			return blk, nil
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return blk, err
		}
		blk.Statements = append(blk.Statements, stmt)
	}
}

func (p *Parser) parseFor() (mtlast.Statement, error) {
	startTok := p.advance() // [
	p.advance()             // for
	if _, err := p.expect(mtllex.LParen); err != nil {
		return mtlast.Statement{}, err
	}
	name, _, err := p.identLike()
	if err != nil {
		return mtlast.Statement{}, err
	}
	loopVar := mtlast.Variable{Name: name}
	if p.cur().Kind == mtllex.Colon {
		p.advance()
		typ, _, err := p.identLike()
		if err != nil {
			return mtlast.Statement{}, err
		}
		loopVar.Type = typ
	}
	if _, err := p.expectKeyword("in"); err != nil {
		return mtlast.Statement{}, err
	}
	coll, err := p.parseExpr()
	if err != nil {
		return mtlast.Statement{}, err
	}
	if _, err := p.expect(mtllex.RParen); err != nil {
		return mtlast.Statement{}, err
	}

	stmt := mtlast.Statement{Kind: mtlast.StmtFor, Pos: toPos(startTok), LoopVar: loopVar, Collection: coll}

	if p.cur().Kind == mtllex.Keyword && p.cur().Value == "separator" {
		p.advance()
		if _, err := p.expect(mtllex.LParen); err != nil {
			return mtlast.Statement{}, err
		}
		sep, err := p.parseExpr()
		if err != nil {
			return mtlast.Statement{}, err
		}
		if _, err := p.expect(mtllex.RParen); err != nil {
			return mtlast.Statement{}, err
		}
		stmt.Separator = &sep
	}

	if _, err := p.expect(mtllex.RightBracket); err != nil {
		return mtlast.Statement{}, err
	}
	body, err := p.parseBlockUntilKeywordClose("for")
	if err != nil {
		return mtlast.Statement{}, err
	}
	stmt.Body = body
	return stmt, nil
}

func (p *Parser) parseLet() (mtlast.Statement, error) {
	startTok := p.advance() // [
	p.advance()             // let
	stmt := mtlast.Statement{Kind: mtlast.StmtLet, Pos: toPos(startTok)}
	for {
		name, _, err := p.identLike()
		if err != nil {
			return mtlast.Statement{}, err
		}
		v := mtlast.Variable{Name: name}
		if p.cur().Kind == mtllex.Colon {
			p.advance()
			typ, _, err := p.identLike()
			if err != nil {
				return mtlast.Statement{}, err
			}
			v.Type = typ
		}
		if _, err := p.expect(mtllex.Equal); err != nil {
			return mtlast.Statement{}, err
		}
		init, err := p.parseExpr()
		if err != nil {
			return mtlast.Statement{}, err
		}
		stmt.Bindings = append(stmt.Bindings, mtlast.Binding{Variable: v, Init: init})
		if p.cur().Kind == mtllex.Comma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(mtllex.RightBracket); err != nil {
		return mtlast.Statement{}, err
	}
	body, err := p.parseBlockUntilKeywordClose("let")
	if err != nil {
		return mtlast.Statement{}, err
	}
	stmt.Body = body
	return stmt, nil
}

func (p *Parser) parseFile() (mtlast.Statement, error) {
	startTok := p.advance() // [
	p.advance()             // file
	if _, err := p.expect(mtllex.LParen); err != nil {
		return mtlast.Statement{}, err
	}
	url, err := p.parseExpr()
	if err != nil {
		return mtlast.Statement{}, err
	}
	stmt := mtlast.Statement{Kind: mtlast.StmtFile, Pos: toPos(startTok), URL: url, Mode: mtlast.FileOverwrite}

	if p.cur().Kind == mtllex.Comma {
		p.advance()
		modeExpr, err := p.parseExpr()
		if err != nil {
			return mtlast.Statement{}, err
		}
		stmt.ModeRaw = modeExpr
		stmt.Mode = resolveLiteralFileMode(modeExpr)

		if p.cur().Kind == mtllex.Comma {
			p.advance()
			cs, err := p.parseExpr()
			if err != nil {
				return mtlast.Statement{}, err
			}
			stmt.Charset = &cs
		}
	}
	if _, err := p.expect(mtllex.RParen); err != nil {
		return mtlast.Statement{}, err
	}
	if _, err := p.expect(mtllex.RightBracket); err != nil {
		return mtlast.Statement{}, err
	}
	body, err := p.parseBlockUntilKeywordClose("file")
	if err != nil {
		return mtlast.Statement{}, err
	}
	stmt.Body = body
	return stmt, nil
}

// resolveLiteralFileMode implements spec §9 Open Question (b): a literal
// string mode expression is promoted to a real FileMode at parse time;
// a non-literal expression or an unrecognised literal resolves to
// Overwrite. The mode expression is not evaluated during generation.
func resolveLiteralFileMode(e mtlast.Expression) mtlast.FileMode {
	lit, ok := e.Node.(exprast.Literal)
	if !ok || lit.Kind != exprast.LitString {
		return mtlast.FileOverwrite
	}
	switch lit.Str {
	case "append":
		return mtlast.FileAppend
	case "create":
		return mtlast.FileCreate
	default:
		return mtlast.FileOverwrite
	}
}

func (p *Parser) parseProtectedArea() (mtlast.Statement, error) {
	startTok := p.advance() // [
	p.advance()             // protected
	if _, err := p.expect(mtllex.LParen); err != nil {
		return mtlast.Statement{}, err
	}
	id, err := p.parseExpr()
	if err != nil {
		return mtlast.Statement{}, err
	}
	stmt := mtlast.Statement{Kind: mtlast.StmtProtectedArea, Pos: toPos(startTok), ID: id}

	if p.cur().Kind == mtllex.Comma {
		p.advance()
		startPrefix, err := p.parseExpr()
		if err != nil {
			return mtlast.Statement{}, err
		}
		stmt.StartTagPrefix = &startPrefix
		if p.cur().Kind == mtllex.Comma {
			p.advance()
			endPrefix, err := p.parseExpr()
			if err != nil {
				return mtlast.Statement{}, err
			}
			stmt.EndTagPrefix = &endPrefix
		}
	}
	if _, err := p.expect(mtllex.RParen); err != nil {
		return mtlast.Statement{}, err
	}
	if _, err := p.expect(mtllex.RightBracket); err != nil {
		return mtlast.Statement{}, err
	}
	body, err := p.parseBlockUntilKeywordClose("protected")
	if err != nil {
		return mtlast.Statement{}, err
	}
	stmt.Body = body
	return stmt, nil
}

// parseExprOrMacroStatement parses "[" Expr "/" "]" (or "[" Expr "]" when
// Expr is not an invocation) as an Expression statement, or
// "[" Ident "(" Args ")" "]" ... "[/" Ident "]" as a
// MacroInvocation with an inline body block (spec §3 MacroInvocation,
// §4.8).
func (p *Parser) parseExprOrMacroStatement() (mtlast.Statement, error) {
	startTok := p.advance() // [
	leadingSlash := false
	if p.cur().Kind == mtllex.Slash {
		leadingSlash = true
		p.advance()
	}
	_ = leadingSlash

	expr, err := p.parseExpr()
	if err != nil {
		return mtlast.Statement{}, err
	}

	if p.cur().Kind == mtllex.Slash {
		p.advance()
		if _, err := p.expect(mtllex.RightBracket); err != nil {
			return mtlast.Statement{}, err
		}
		return mtlast.Statement{Kind: mtlast.StmtExpression, Pos: toPos(startTok), Expr: expr}, nil
	}

	if inv, ok := expr.Node.(exprast.Invocation); ok && p.cur().Kind == mtllex.RightBracket {
		p.advance()
		body, err := p.parseBlockUntilKeywordClose(inv.Name)
		if err != nil {
			return mtlast.Statement{}, err
		}
		return mtlast.Statement{
			Kind:      mtlast.StmtMacroInvocation,
			Pos:       toPos(startTok),
			MacroName: inv.Name,
			Args:      exprNodesToExprs(inv.Args),
			BodyBlock: &body,
		}, nil
	}

	if p.cur().Kind == mtllex.RightBracket {
		p.advance()
		return mtlast.Statement{Kind: mtlast.StmtExpression, Pos: toPos(startTok), Expr: expr}, nil
	}

	return mtlast.Statement{}, p.errAt(p.cur(), "expected '/' or a macro-call block, got %q", p.cur().Value)
}

func exprNodesToExprs(nodes []exprast.Node) []mtlast.Expression {
	out := make([]mtlast.Expression, len(nodes))
	for i, n := range nodes {
		out[i] = mtlast.Expression{Node: n}
	}
	return out
}

// ---- Expression sublanguage (spec §4.5 "Expression sublanguage") ----

func (p *Parser) parseExpr() (mtlast.Expression, error) {
	startTok := p.cur()
	node, err := p.parseOr()
	if err != nil {
		return mtlast.Expression{}, err
	}
	return mtlast.Expression{Node: node, Source: toPos(startTok)}, nil
}

func (p *Parser) parseOr() (exprast.Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == mtllex.Keyword && (p.cur().Value == "or" || p.cur().Value == "xor") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = exprast.Binary{Op: exprast.Or, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (exprast.Node, error) {
	left, err := p.parseImplication()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == mtllex.Keyword && p.cur().Value == "and" {
		p.advance()
		right, err := p.parseImplication()
		if err != nil {
			return nil, err
		}
		left = exprast.Binary{Op: exprast.And, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseImplication() (exprast.Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == mtllex.Keyword && p.cur().Value == "implies" {
		p.advance()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		// implies(a, b) == !a or b
		left = exprast.Binary{Op: exprast.Or, Left: exprast.Not{Operand: left}, Right: right}
	}
	return left, nil
}

func (p *Parser) parseComparison() (exprast.Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	ops := map[mtllex.TokenKind]exprast.BinOp{
		mtllex.Equal: exprast.Eq, mtllex.NotEqual: exprast.NotEq,
		mtllex.Less: exprast.Lt, mtllex.Greater: exprast.Gt,
		mtllex.LessEqual: exprast.LtEq, mtllex.GreaterEqual: exprast.GtEq,
	}
	for {
		op, ok := ops[p.cur().Kind]
		if !ok {
			return left, nil
		}
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = exprast.Binary{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseAdditive() (exprast.Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.cur().Kind == mtllex.Plus || p.cur().Kind == mtllex.Minus {
		op := exprast.Add
		if p.cur().Kind == mtllex.Minus {
			op = exprast.Sub
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = exprast.Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (exprast.Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	// A "/" directly before "]" closes the directive and is not division.
	for p.cur().Kind == mtllex.Star || (p.cur().Kind == mtllex.Slash && p.peekAt(1).Kind != mtllex.RightBracket) {
		op := exprast.Mul
		if p.cur().Kind == mtllex.Slash {
			op = exprast.Div
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = exprast.Binary{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseUnary() (exprast.Node, error) {
	if p.cur().Kind == mtllex.Keyword && p.cur().Value == "not" {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return exprast.Not{Operand: operand}, nil
	}
	if p.cur().Kind == mtllex.Minus {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return exprast.Binary{Op: exprast.Sub, Left: exprast.Literal{Kind: exprast.LitInt, Int: 0}, Right: operand}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (exprast.Node, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Kind {
		case mtllex.Dot:
			p.advance()
			name, _, err := p.identLike()
			if err != nil {
				return nil, err
			}
			if p.cur().Kind == mtllex.LParen {
				args, err := p.parseArgs()
				if err != nil {
					return nil, err
				}
				node = exprast.MethodCall{Source: node, Name: name, Args: args}
			} else {
				node = exprast.Navigation{Source: node, Property: name}
			}
		case mtllex.Arrow:
			p.advance()
			op, name, err := p.parseCollOpName()
			if err != nil {
				return nil, err
			}
			iterVar := ""
			var body exprast.Node
			if p.cur().Kind == mtllex.LParen {
				p.advance()
				if requiresIterator(op) && p.cur().Kind != mtllex.RParen {
					// iterVar | body  OR  just body (implicit "it")
					if p.peekAt(1).Kind == mtllex.Pipe {
						iv, _, err := p.identLike()
						if err != nil {
							return nil, err
						}
						iterVar = iv
						p.advance() // |
					}
					b, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					body = b.Node.(exprast.Node)
				}
				if _, err := p.expect(mtllex.RParen); err != nil {
					return nil, err
				}
			}
			_ = name
			node = exprast.CollectionOp{Source: node, Op: op, IterVar: iterVar, Body: body}
		default:
			return node, nil
		}
	}
}

func (p *Parser) parseCollOpName() (exprast.CollOp, string, error) {
	tok := p.cur()
	if tok.Kind != mtllex.Keyword && tok.Kind != mtllex.Identifier {
		return 0, "", p.errAt(tok, "expected a collection operation name, got %q", tok.Value)
	}
	ops := map[string]exprast.CollOp{
		"size": exprast.OpSize, "isEmpty": exprast.OpIsEmpty, "notEmpty": exprast.OpNotEmpty,
		"first": exprast.OpFirst, "last": exprast.OpLast,
		"select": exprast.OpSelect, "reject": exprast.OpReject, "collect": exprast.OpCollect,
		"forAll": exprast.OpForAll, "exists": exprast.OpExists, "any": exprast.OpAny,
	}
	op, ok := ops[tok.Value]
	if !ok {
		return 0, "", p.errAt(tok, "unknown collection operation %q", tok.Value)
	}
	p.advance()
	return op, tok.Value, nil
}

func requiresIterator(op exprast.CollOp) bool {
	switch op {
	case exprast.OpSize, exprast.OpIsEmpty, exprast.OpNotEmpty, exprast.OpFirst, exprast.OpLast:
		return false
	default:
		return true
	}
}

func (p *Parser) parseArgs() ([]exprast.Node, error) {
	if _, err := p.expect(mtllex.LParen); err != nil {
		return nil, err
	}
	var args []exprast.Node
	if p.cur().Kind != mtllex.RParen {
		for {
			e, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, e)
			if p.cur().Kind == mtllex.Comma {
				p.advance()
				continue
			}
			break
		}
	}
	if _, err := p.expect(mtllex.RParen); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parsePrimary() (exprast.Node, error) {
	tok := p.cur()
	switch tok.Kind {
	case mtllex.String:
		p.advance()
		return exprast.Literal{Kind: exprast.LitString, Str: tok.Value}, nil
	case mtllex.Integer:
		p.advance()
		n, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return nil, p.errAt(tok, "invalid integer literal %q", tok.Value)
		}
		return exprast.Literal{Kind: exprast.LitInt, Int: n}, nil
	case mtllex.Real:
		p.advance()
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.errAt(tok, "invalid real literal %q", tok.Value)
		}
		return exprast.Literal{Kind: exprast.LitReal, Real: f}, nil
	case mtllex.Boolean:
		p.advance()
		return exprast.Literal{Kind: exprast.LitBool, Bool: tok.Value == "true"}, nil
	case mtllex.LParen:
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(mtllex.RParen); err != nil {
			return nil, err
		}
		return exprast.Paren{Inner: inner}, nil
	case mtllex.Identifier, mtllex.Keyword:
		name, _, err := p.identLike()
		if err != nil {
			return nil, err
		}
		if p.cur().Kind == mtllex.LParen {
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			return exprast.Invocation{Name: name, Args: args}, nil
		}
		return exprast.VarRef{Name: name}, nil
	default:
		return nil, p.errAt(tok, "unexpected token %q in expression", tok.Value)
	}
}
