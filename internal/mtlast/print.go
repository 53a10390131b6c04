package mtlast

import (
	"fmt"
	"strings"
)

// ExprPrinter renders an Expression's wrapped node back to MTL surface
// syntax. The core does not know how to print expression-language nodes
// itself (they are opaque, spec §3); callers supply one.
type ExprPrinter func(Expression) string

// Print serialises a Module back to MTL template source: the module header,
// queries (with visibility), templates (name, parameters, guard), macros
// (regular parameters only) and their statements. It does not print
// template visibility, "main", overrides or post; a file statement's mode
// or charset; protected-area tag prefixes; loop and let variable types; a
// macro's body parameter; a macro invocation's body block; or a Trace
// statement's source. A module that uses any of these does not re-parse to
// an equal AST.
func Print(m *Module, exprs ExprPrinter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[module %s(", m.Name)
	for i, alias := range m.MetamodelOrder {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s:'%s'", alias, m.Metamodel[alias])
	}
	b.WriteString(")]\n")

	for _, name := range m.QueryOrder {
		printQuery(&b, m.Queries[name], exprs)
	}
	for _, name := range m.TemplateOrder {
		printTemplate(&b, m.Templates[name], exprs)
	}
	for _, name := range m.MacroOrder {
		printMacro(&b, m.Macros[name], exprs)
	}
	return b.String()
}

func printParams(b *strings.Builder, params []Variable) {
	b.WriteString("(")
	for i, p := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(b, "%s : %s", p.Name, p.Type)
	}
	b.WriteString(")")
}

func printQuery(b *strings.Builder, q *Query, exprs ExprPrinter) {
	fmt.Fprintf(b, "[query %s %s", q.Visibility, q.Name)
	printParams(b, q.Params)
	fmt.Fprintf(b, " : %s = %s /]\n", q.ReturnType, exprs(q.Body))
}

func printTemplate(b *strings.Builder, t *Template, exprs ExprPrinter) {
	fmt.Fprintf(b, "[template %s", t.Name)
	printParams(b, t.Params)
	if t.Guard != nil {
		fmt.Fprintf(b, " guard (%s)", exprs(*t.Guard))
	}
	b.WriteString("]")
	printBlock(b, t.Body, exprs)
	b.WriteString("[/template]\n")
}

func printMacro(b *strings.Builder, mac *Macro, exprs ExprPrinter) {
	fmt.Fprintf(b, "[macro %s", mac.Name)
	printParams(b, mac.Params)
	b.WriteString("]")
	printBlock(b, mac.Body, exprs)
	b.WriteString("[/macro]\n")
}

func printBlock(b *strings.Builder, blk Block, exprs ExprPrinter) {
	for _, s := range blk.Statements {
		printStatement(b, s, exprs)
	}
}

func printStatement(b *strings.Builder, s Statement, exprs ExprPrinter) {
	switch s.Kind {
	case StmtText:
		b.WriteString(s.Text)
	case StmtExpression:
		fmt.Fprintf(b, "[%s/]", exprs(s.Expr))
	case StmtNewLine:
		b.WriteString("\n")
	case StmtComment:
		fmt.Fprintf(b, "[-- %s]", s.Text)
	case StmtIf:
		fmt.Fprintf(b, "[if (%s)]", exprs(s.Condition))
		printBlock(b, s.Then, exprs)
		for _, ei := range s.ElseIfs {
			fmt.Fprintf(b, "[elseif (%s)]", exprs(ei.Condition))
			printBlock(b, ei.Block, exprs)
		}
		if s.Else != nil {
			b.WriteString("[else]")
			printBlock(b, *s.Else, exprs)
		}
		b.WriteString("[/if]")
	case StmtFor:
		fmt.Fprintf(b, "[for (%s in %s)", s.LoopVar.Name, exprs(s.Collection))
		if s.Separator != nil {
			fmt.Fprintf(b, " separator(%s)", exprs(*s.Separator))
		}
		b.WriteString("]")
		printBlock(b, s.Body, exprs)
		b.WriteString("[/for]")
	case StmtLet:
		b.WriteString("[let ")
		for i, bind := range s.Bindings {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(b, "%s = %s", bind.Variable.Name, exprs(bind.Init))
		}
		b.WriteString("]")
		printBlock(b, s.Body, exprs)
		b.WriteString("[/let]")
	case StmtFile:
		fmt.Fprintf(b, "[file (%s)]", exprs(s.URL))
		printBlock(b, s.Body, exprs)
		b.WriteString("[/file]")
	case StmtProtectedArea:
		fmt.Fprintf(b, "[protected (%s)]", exprs(s.ID))
		printBlock(b, s.Body, exprs)
		b.WriteString("[/protected]")
	case StmtTrace:
		printBlock(b, s.Body, exprs)
	case StmtMacroInvocation:
		fmt.Fprintf(b, "[%s(", s.MacroName)
		for i, a := range s.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(exprs(a))
		}
		b.WriteString(")/]")
	}
}
