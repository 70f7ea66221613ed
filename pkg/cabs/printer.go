package cabs

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Printer outputs the AST as C source
type Printer struct {
	w      io.Writer
	indent int
	step   string
}

// NewPrinter creates a new AST printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, indent: 0, step: "  "}
}

// FormatExpr renders an expression as C source.
func FormatExpr(e Expr) string {
	var buf bytes.Buffer
	NewPrinter(&buf).printExpr(e)
	return buf.String()
}

// FormatStruct renders a struct or union definition the way scop type
// lists show it, with four-space indentation and no trailing semicolon.
func FormatStruct(d Definition) string {
	var buf bytes.Buffer
	p := &Printer{w: &buf, step: "    "}
	switch s := d.(type) {
	case StructDef:
		p.printFields("struct", s.Name, s.Fields)
	case UnionDef:
		p.printFields("union", s.Name, s.Fields)
	}
	return strings.TrimSuffix(buf.String(), ";\n")
}

// PrintProgram prints a complete program
func (p *Printer) PrintProgram(prog *Program) {
	for _, def := range prog.Definitions {
		p.printDefinition(def)
		fmt.Fprintln(p.w)
	}
}

func (p *Printer) writeIndent() {
	fmt.Fprint(p.w, strings.Repeat(p.step, p.indent))
}

func (p *Printer) printDefinition(def Definition) {
	switch d := def.(type) {
	case FunDef:
		p.printFunDef(d)
	case TypedefDef:
		p.printTypedefDef(d)
	case StructDef:
		p.printFields("struct", d.Name, d.Fields)
	case UnionDef:
		p.printFields("union", d.Name, d.Fields)
	case EnumDef:
		p.printEnumDef(d)
		fmt.Fprintln(p.w, ";")
	case VarDef:
		p.printDecl(d.Decl)
		fmt.Fprintln(p.w, ";")
	default:
		fmt.Fprintf(p.w, "/* unknown definition %T */\n", def)
	}
}

func (p *Printer) printFunDef(f FunDef) {
	if f.Storage != "" {
		fmt.Fprintf(p.w, "%s ", f.Storage)
	}
	if f.Inline {
		fmt.Fprint(p.w, "inline ")
	}
	fmt.Fprintf(p.w, "%s %s(", f.ReturnType, f.Name)
	for i, param := range f.Params {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprintf(p.w, "%s %s", param.TypeSpec, param.Name)
		p.printDims(param.ArrayDims)
	}
	if f.Variadic {
		if len(f.Params) > 0 {
			fmt.Fprint(p.w, ", ")
		}
		fmt.Fprint(p.w, "...")
	}
	if f.Body == nil {
		fmt.Fprintln(p.w, ");")
		return
	}
	fmt.Fprintln(p.w, ")")
	p.printBlock(f.Body)
}

func (p *Printer) printTypedefDef(t TypedefDef) {
	fmt.Fprint(p.w, "typedef ")
	switch inline := t.InlineType.(type) {
	case StructDef:
		p.printFieldsBody("struct", inline.Name, inline.Fields)
	case UnionDef:
		p.printFieldsBody("union", inline.Name, inline.Fields)
	case EnumDef:
		p.printEnumDef(inline)
	default:
		fmt.Fprint(p.w, t.TypeSpec)
	}
	fmt.Fprintf(p.w, " %s", t.Name)
	p.printDims(t.ArrayDims)
	fmt.Fprintln(p.w, ";")
}

func (p *Printer) printFields(kind, name string, fields []Field) {
	p.printFieldsBody(kind, name, fields)
	fmt.Fprintln(p.w, ";")
}

func (p *Printer) printFieldsBody(kind, name string, fields []Field) {
	if name != "" {
		fmt.Fprintf(p.w, "%s %s {\n", kind, name)
	} else {
		fmt.Fprintf(p.w, "%s {\n", kind)
	}
	p.indent++
	for _, field := range fields {
		p.writeIndent()
		fmt.Fprintf(p.w, "%s %s", field.TypeSpec, field.Name)
		p.printDims(field.ArrayDims)
		fmt.Fprintln(p.w, ";")
	}
	p.indent--
	p.writeIndent()
	fmt.Fprint(p.w, "}")
}

func (p *Printer) printEnumDef(e EnumDef) {
	if e.Name != "" {
		fmt.Fprintf(p.w, "enum %s {", e.Name)
	} else {
		fmt.Fprint(p.w, "enum {")
	}
	for i, val := range e.Values {
		if i > 0 {
			fmt.Fprint(p.w, ",")
		}
		fmt.Fprintf(p.w, " %s", val.Name)
		if val.Value != nil {
			fmt.Fprint(p.w, " = ")
			p.printExpr(val.Value)
		}
	}
	fmt.Fprint(p.w, " }")
}

func (p *Printer) printDims(dims []Expr) {
	for _, dim := range dims {
		fmt.Fprint(p.w, "[")
		if dim != nil {
			p.printExpr(dim)
		}
		fmt.Fprint(p.w, "]")
	}
}

func (p *Printer) printDecl(d Decl) {
	if d.Storage != "" {
		fmt.Fprintf(p.w, "%s ", d.Storage)
	}
	fmt.Fprintf(p.w, "%s %s", d.TypeSpec, d.Name)
	p.printDims(d.ArrayDims)
	if d.Initializer != nil {
		fmt.Fprint(p.w, " = ")
		p.printExpr(d.Initializer)
	}
}

func (p *Printer) printBlock(b *Block) {
	p.writeIndent()
	fmt.Fprintln(p.w, "{")
	p.indent++
	for _, stmt := range b.Items {
		p.printStmt(stmt)
	}
	p.indent--
	p.writeIndent()
	fmt.Fprintln(p.w, "}")
}

// printSub prints the body of a control statement one level deeper,
// except for blocks which stay at the level of the statement.
func (p *Printer) printSub(s Stmt) {
	if b, ok := s.(*Block); ok {
		p.printBlock(b)
		return
	}
	p.indent++
	p.printStmt(s)
	p.indent--
}

func (p *Printer) printStmt(stmt Stmt) {
	if b, ok := stmt.(*Block); ok {
		p.printBlock(b)
		return
	}
	p.writeIndent()
	switch s := stmt.(type) {
	case Return:
		fmt.Fprint(p.w, "return")
		if s.Expr != nil {
			fmt.Fprint(p.w, " ")
			p.printExpr(s.Expr)
		}
		fmt.Fprintln(p.w, ";")
	case Computation:
		p.printExpr(s.Expr)
		fmt.Fprintln(p.w, ";")
	case Empty:
		fmt.Fprintln(p.w, ";")
	case If:
		fmt.Fprint(p.w, "if (")
		p.printExpr(s.Cond)
		fmt.Fprintln(p.w, ")")
		p.printSub(s.Then)
		if s.Else != nil {
			p.writeIndent()
			fmt.Fprintln(p.w, "else")
			p.printSub(s.Else)
		}
	case While:
		fmt.Fprint(p.w, "while (")
		p.printExpr(s.Cond)
		fmt.Fprintln(p.w, ")")
		p.printSub(s.Body)
	case DoWhile:
		fmt.Fprintln(p.w, "do")
		p.printSub(s.Body)
		p.writeIndent()
		fmt.Fprint(p.w, "while (")
		p.printExpr(s.Cond)
		fmt.Fprintln(p.w, ");")
	case For:
		fmt.Fprint(p.w, "for (")
		for i, d := range s.InitDecl {
			if i > 0 {
				fmt.Fprint(p.w, ", ")
			}
			p.printDecl(d)
		}
		if s.Init != nil {
			p.printExpr(s.Init)
		}
		fmt.Fprint(p.w, "; ")
		if s.Cond != nil {
			p.printExpr(s.Cond)
		}
		fmt.Fprint(p.w, "; ")
		if s.Step != nil {
			p.printExpr(s.Step)
		}
		fmt.Fprintln(p.w, ")")
		p.printSub(s.Body)
	case Break:
		fmt.Fprintln(p.w, "break;")
	case Continue:
		fmt.Fprintln(p.w, "continue;")
	case Switch:
		fmt.Fprint(p.w, "switch (")
		p.printExpr(s.Expr)
		fmt.Fprintln(p.w, ")")
		p.printSub(s.Body)
	case Case:
		if s.Expr == nil {
			fmt.Fprintln(p.w, "default:")
		} else {
			fmt.Fprint(p.w, "case ")
			p.printExpr(s.Expr)
			fmt.Fprintln(p.w, ":")
		}
		p.printSub(s.Stmt)
	case Goto:
		fmt.Fprintf(p.w, "goto %s;\n", s.Label)
	case Label:
		fmt.Fprintf(p.w, "%s:\n", s.Name)
		p.printStmt(s.Stmt)
	case DeclStmt:
		for i, decl := range s.Decls {
			if i > 0 {
				p.writeIndent()
			}
			p.printDecl(decl)
			fmt.Fprintln(p.w, ";")
		}
	default:
		fmt.Fprintf(p.w, "/* unknown stmt %T */;\n", stmt)
	}
}

func (p *Printer) printExpr(expr Expr) {
	switch e := expr.(type) {
	case Constant:
		fmt.Fprint(p.w, e.Text)
	case FloatConst:
		fmt.Fprint(p.w, e.Text)
	case StringLiteral:
		fmt.Fprintf(p.w, "\"%s\"", e.Value)
	case CharLiteral:
		fmt.Fprintf(p.w, "'%s'", e.Value)
	case Variable:
		fmt.Fprint(p.w, e.Name)
	case Unary:
		p.printUnary(e)
	case Binary:
		p.printExpr(e.Left)
		if e.Op == OpComma {
			fmt.Fprint(p.w, ", ")
		} else {
			fmt.Fprintf(p.w, " %s ", e.Op)
		}
		p.printExpr(e.Right)
	case Paren:
		fmt.Fprint(p.w, "(")
		p.printExpr(e.Expr)
		fmt.Fprint(p.w, ")")
	case Conditional:
		p.printExpr(e.Cond)
		fmt.Fprint(p.w, " ? ")
		p.printExpr(e.Then)
		fmt.Fprint(p.w, " : ")
		p.printExpr(e.Else)
	case Call:
		p.printExpr(e.Func)
		fmt.Fprint(p.w, "(")
		p.printList(e.Args)
		fmt.Fprint(p.w, ")")
	case Index:
		p.printExpr(e.Array)
		fmt.Fprint(p.w, "[")
		p.printExpr(e.Index)
		fmt.Fprint(p.w, "]")
	case Member:
		p.printExpr(e.Expr)
		if e.IsArrow {
			fmt.Fprint(p.w, "->")
		} else {
			fmt.Fprint(p.w, ".")
		}
		fmt.Fprint(p.w, e.Name)
	case SizeofExpr:
		fmt.Fprint(p.w, "sizeof ")
		p.printExpr(e.Expr)
	case SizeofType:
		fmt.Fprintf(p.w, "sizeof(%s)", e.TypeName)
	case Cast:
		fmt.Fprintf(p.w, "(%s)", e.TypeName)
		p.printExpr(e.Expr)
	case InitList:
		fmt.Fprint(p.w, "{")
		p.printList(e.Items)
		fmt.Fprint(p.w, "}")
	default:
		fmt.Fprintf(p.w, "/* unknown expr %T */", expr)
	}
}

func (p *Printer) printList(list []Expr) {
	for i, arg := range list {
		if i > 0 {
			fmt.Fprint(p.w, ", ")
		}
		p.printExpr(arg)
	}
}

func (p *Printer) printUnary(u Unary) {
	switch u.Op {
	case OpPostInc, OpPostDec:
		p.printExpr(u.Expr)
		fmt.Fprint(p.w, u.Op)
	default:
		fmt.Fprint(p.w, u.Op)
		p.printExpr(u.Expr)
	}
}
