package mtlparse_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlforge/mtlgen/internal/exprast"
	"github.com/mtlforge/mtlgen/internal/mtlast"
	"github.com/mtlforge/mtlgen/internal/mtlerrors"
	"github.com/mtlforge/mtlgen/internal/mtlparse"
)

func TestParseMinimalModule(t *testing.T) {
	src := `[module greeter('http://example.org/greeter')]
[template main()]
hello world
[/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	assert.Equal(t, "greeter", mod.Name)
	tmpl, ok := mod.Templates["main"]
	require.True(t, ok)
	assert.True(t, tmpl.IsMain)
	require.Len(t, tmpl.Body.Statements, 1)
	assert.Equal(t, mtlast.StmtText, tmpl.Body.Statements[0].Kind)
	assert.Equal(t, "\nhello world\n", tmpl.Body.Statements[0].Text)
}

func TestParseAliasedMetamodel(t *testing.T) {
	src := `[module m(uml:'http://uml.org', ecore:'http://ecore.org')]
[template main()][/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	require.Len(t, mod.Metamodel, 2)
}

func TestParseQueryWithVisibilityAndReturnType(t *testing.T) {
	src := `[module m('http://m')]
[query private double(x : Integer) : Integer = x /]
[template main()][/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	q, ok := mod.Queries["double"]
	require.True(t, ok)
	assert.Equal(t, mtlast.Private, q.Visibility)
	assert.Equal(t, "Integer", q.ReturnType)
	require.Len(t, q.Params, 1)
	assert.Equal(t, "x", q.Params[0].Name)
}

func TestParseMacroWithBodyParameter(t *testing.T) {
	src := `[module m('http://m')]
[macro wrap(label : String, body : Block)]
<[label]>[body/]</[label]>
[/macro]
[template main()][/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	mac, ok := mod.Macros["wrap"]
	require.True(t, ok)
	assert.Equal(t, "body", mac.BodyParamName)
	require.Len(t, mac.Params, 1)
	assert.Equal(t, "label", mac.Params[0].Name)
}

func TestParseIfElseIfElse(t *testing.T) {
	src := `[module m('http://m')]
[template main()]
[if (true)]a[elseif (false)]b[else]c[/if]
[/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	tmpl := mod.Templates["main"]
	var ifStmt *mtlast.Statement
	for i := range tmpl.Body.Statements {
		if tmpl.Body.Statements[i].Kind == mtlast.StmtIf {
			ifStmt = &tmpl.Body.Statements[i]
		}
	}
	require.NotNil(t, ifStmt)
	require.Len(t, ifStmt.Then.Statements, 1)
	assert.Equal(t, "a", ifStmt.Then.Statements[0].Text)
	require.Len(t, ifStmt.ElseIfs, 1)
	require.Len(t, ifStmt.ElseIfs[0].Block.Statements, 1)
	assert.Equal(t, "b", ifStmt.ElseIfs[0].Block.Statements[0].Text)
	require.NotNil(t, ifStmt.Else)
	require.Len(t, ifStmt.Else.Statements, 1)
	assert.Equal(t, "c", ifStmt.Else.Statements[0].Text)
}

func TestParseForWithSeparator(t *testing.T) {
	src := `[module m('http://m')]
[template main()]
[for (x : Integer in self) separator(', ')]x[/for]
[/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	tmpl := mod.Templates["main"]
	// the newlines around the directive are Text statements
	require.Len(t, tmpl.Body.Statements, 3)
	forStmt := tmpl.Body.Statements[1]
	assert.Equal(t, mtlast.StmtFor, forStmt.Kind)
	assert.Equal(t, "x", forStmt.LoopVar.Name)
	assert.Equal(t, "Integer", forStmt.LoopVar.Type)
	require.NotNil(t, forStmt.Separator)
}

func TestParseLetWithMultipleBindings(t *testing.T) {
	src := `[module m('http://m')]
[template main()]
[let a : Integer = 1, b = 2]ab[/let]
[/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	tmpl := mod.Templates["main"]
	letStmt := tmpl.Body.Statements[1]
	require.Equal(t, mtlast.StmtLet, letStmt.Kind)
	require.Len(t, letStmt.Bindings, 2)
	assert.Equal(t, "a", letStmt.Bindings[0].Variable.Name)
	assert.Equal(t, "Integer", letStmt.Bindings[0].Variable.Type)
	assert.Equal(t, "b", letStmt.Bindings[1].Variable.Name)
}

func TestParseFileStatementResolvesLiteralMode(t *testing.T) {
	src := `[module m('http://m')]
[template main()]
[file ('out.txt', 'append')]
body
[/file]
[/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	tmpl := mod.Templates["main"]
	fileStmt := tmpl.Body.Statements[1]
	require.Equal(t, mtlast.StmtFile, fileStmt.Kind)
	assert.Equal(t, mtlast.FileAppend, fileStmt.Mode)
}

func TestParseFileStatementDefaultsToOverwrite(t *testing.T) {
	src := `[module m('http://m')]
[template main()]
[file ('out.txt')]
body
[/file]
[/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	fileStmt := mod.Templates["main"].Body.Statements[1]
	assert.Equal(t, mtlast.FileOverwrite, fileStmt.Mode)
}

func TestParseProtectedAreaWithPrefixes(t *testing.T) {
	src := `[module m('http://m')]
[template main()]
[protected ('id1', '// BEGIN ', '// END ')]
keep me
[/protected]
[/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	stmt := mod.Templates["main"].Body.Statements[1]
	require.Equal(t, mtlast.StmtProtectedArea, stmt.Kind)
	require.NotNil(t, stmt.StartTagPrefix)
	require.NotNil(t, stmt.EndTagPrefix)
}

func TestParseMacroInvocationStatement(t *testing.T) {
	src := `[module m('http://m')]
[macro wrap(body : Block)]
[body/]
[/macro]
[template main()]
[wrap()]
inner
[/wrap]
[/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	stmt := mod.Templates["main"].Body.Statements[1]
	require.Equal(t, mtlast.StmtMacroInvocation, stmt.Kind)
	assert.Equal(t, "wrap", stmt.MacroName)
	require.NotNil(t, stmt.BodyBlock)
}

func TestParseExpressionStatement(t *testing.T) {
	src := `[module m('http://m')]
[template main()]
[1 + 2/]
[/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	stmt := mod.Templates["main"].Body.Statements[1]
	require.Equal(t, mtlast.StmtExpression, stmt.Kind)
	bin, ok := stmt.Expr.Node.(exprast.Binary)
	require.True(t, ok)
	assert.Equal(t, exprast.Add, bin.Op)
}

func TestParseImportAndExtends(t *testing.T) {
	src := `[module app('http://app')]
[extends base]
[import shapes]
[template main()][/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	assert.Equal(t, "base", mod.Parent)
	assert.Equal(t, []string{"shapes"}, mod.Imports)
}

func TestParseCollectionOperations(t *testing.T) {
	src := `[module m('http://m')]
[template main()]
[self->size()/]
[self->select(e | e)/]
[/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	stmts := mod.Templates["main"].Body.Statements
	// Text "\n", size, Text "\n", select, Text "\n"
	require.Len(t, stmts, 5)
	sizeOp, ok := stmts[1].Expr.Node.(exprast.CollectionOp)
	require.True(t, ok)
	assert.Equal(t, exprast.OpSize, sizeOp.Op)
	selectOp, ok := stmts[3].Expr.Node.(exprast.CollectionOp)
	require.True(t, ok)
	assert.Equal(t, exprast.OpSelect, selectOp.Op)
	assert.Equal(t, "e", selectOp.IterVar)
}

func TestParseNavigationAndMethodCall(t *testing.T) {
	src := `[module m('http://m')]
[template main()]
[self.name.toUpper()/]
[/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	stmt := mod.Templates["main"].Body.Statements[1]
	call, ok := stmt.Expr.Node.(exprast.MethodCall)
	require.True(t, ok)
	assert.Equal(t, "toUpper", call.Name)
	nav, ok := call.Source.(exprast.Navigation)
	require.True(t, ok)
	assert.Equal(t, "name", nav.Property)
}

func TestDuplicateTemplateNameIsRejected(t *testing.T) {
	src := `[module m('http://m')]
[template main()][/template]
[template main()][/template]`
	_, err := mtlparse.Parse(src)
	require.Error(t, err)
	pe, ok := err.(*mtlerrors.ParseError)
	require.True(t, ok)
	assert.Equal(t, mtlerrors.DuplicateName, pe.Kind)
}

func TestDuplicateQueryNameIsRejected(t *testing.T) {
	src := `[module m('http://m')]
[query q() : Integer = 1 /]
[query q() : Integer = 2 /]
[template main()][/template]`
	_, err := mtlparse.Parse(src)
	require.Error(t, err)
	pe, ok := err.(*mtlerrors.ParseError)
	require.True(t, ok)
	assert.Equal(t, mtlerrors.DuplicateName, pe.Kind)
}

func TestDuplicateParameterNameIsRejected(t *testing.T) {
	src := `[module m('http://m')]
[template main(x : Integer, x : String)][/template]`
	_, err := mtlparse.Parse(src)
	require.Error(t, err)
}

func TestMissingModuleKeywordIsAParseError(t *testing.T) {
	_, err := mtlparse.Parse(`[bogus m('http://m')]`)
	require.Error(t, err)
	_, ok := err.(*mtlerrors.ParseError)
	assert.True(t, ok)
}

func TestUnterminatedTemplateIsAParseError(t *testing.T) {
	src := `[module m('http://m')]
[template main()]
unclosed`
	_, err := mtlparse.Parse(src)
	require.Error(t, err)
}

func TestUnknownTopLevelDeclarationIsAParseError(t *testing.T) {
	src := `[module m('http://m')]
[bogus foo()][/bogus]`
	_, err := mtlparse.Parse(src)
	require.Error(t, err)
}

func TestParseErrorReportsLineAndColumn(t *testing.T) {
	src := "[module m('http://m')]\n[template main()]\n[if (]yes[/if]\n[/template]"
	_, err := mtlparse.Parse(src)
	require.Error(t, err)
	pe, ok := err.(*mtlerrors.ParseError)
	require.True(t, ok)
	assert.Equal(t, 3, pe.Line)
}

func TestParseOverridesAndGuardAndPost(t *testing.T) {
	src := `[module m('http://m')]
[template base()][/template]
[template derived() overrides base guard (true) post (true)][/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	derived, ok := mod.Templates["derived"]
	require.True(t, ok)
	assert.Equal(t, "base", derived.Overrides)
	require.NotNil(t, derived.Guard)
	require.NotNil(t, derived.Post)
}

func TestParseTemplateVisibilityKeywords(t *testing.T) {
	src := `[module m('http://m')]
[template protected hidden()][/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	tmpl, ok := mod.Templates["hidden"]
	require.True(t, ok)
	assert.Equal(t, mtlast.Protected, tmpl.Visibility)
}

func TestKeywordSpellingsMayBeUsedAsIdentifiers(t *testing.T) {
	src := `[module m('http://m')]
[template main(query : String)]
[query/]
[/template]`
	mod, err := mtlparse.Parse(src)
	require.NoError(t, err)
	tmpl, ok := mod.Templates["main"]
	require.True(t, ok)
	require.Len(t, tmpl.Params, 1)
	assert.Equal(t, "query", tmpl.Params[0].Name)
}
