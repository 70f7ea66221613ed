package parser

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/raymyers/ralph-pet/pkg/cabs"
	"github.com/raymyers/ralph-pet/pkg/lexer"
	"gopkg.in/yaml.v3"
)

// TestSpec represents a test case from parse.yaml
type TestSpec struct {
	Name  string  `yaml:"name"`
	Input string  `yaml:"input"`
	AST   ASTSpec `yaml:"ast"`
}

// ASTSpec represents the expected AST structure
type ASTSpec struct {
	Kind       string    `yaml:"kind"`
	Name       string    `yaml:"name,omitempty"`
	ReturnType string    `yaml:"return_type,omitempty"`
	Body       *ASTSpec  `yaml:"body,omitempty"`
	Items      []ASTSpec `yaml:"items,omitempty"`
	Expr       *ASTSpec  `yaml:"expr,omitempty"`
	Left       *ASTSpec  `yaml:"left,omitempty"`
	Right      *ASTSpec  `yaml:"right,omitempty"`
	Cond       *ASTSpec  `yaml:"cond,omitempty"`
	Then       *ASTSpec  `yaml:"then,omitempty"`
	Else       *ASTSpec  `yaml:"else,omitempty"`
	Step       *ASTSpec  `yaml:"step,omitempty"`
	Decls      []string  `yaml:"decls,omitempty"`
	Args       *int      `yaml:"args,omitempty"`
	Op         string    `yaml:"op,omitempty"`
	Text       string    `yaml:"text,omitempty"`
}

// TestFile represents the parse.yaml file structure
type TestFile struct {
	Tests []TestSpec `yaml:"tests"`
}

func TestParseYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/parse.yaml")
	if err != nil {
		t.Fatalf("failed to read parse.yaml: %v", err)
	}

	var testFile TestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse parse.yaml: %v", err)
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			l := lexer.New(tc.Input)
			p := New(l)
			def := p.ParseDefinition()

			if len(p.Errors()) > 0 {
				t.Fatalf("parser errors: %v", p.Errors())
			}

			if def == nil {
				t.Fatal("ParseDefinition returned nil")
			}

			verifyAST(t, def, tc.AST)
		})
	}
}

func declNames(decls []cabs.Decl) []string {
	var names []string
	for _, d := range decls {
		names = append(names, d.Name)
	}
	return names
}

func verifyDecls(t *testing.T, got []cabs.Decl, want []string) {
	t.Helper()
	if want != nil && strings.Join(declNames(got), ",") != strings.Join(want, ",") {
		t.Errorf("declared names: expected %v, got %v", want, declNames(got))
	}
}

func verifyAST(t *testing.T, node cabs.Node, spec ASTSpec) {
	t.Helper()

	sub := func(n cabs.Node, s *ASTSpec) {
		if s != nil {
			verifyAST(t, n, *s)
		}
	}

	switch spec.Kind {
	case "FunDef":
		funDef, ok := node.(cabs.FunDef)
		if !ok {
			t.Fatalf("expected FunDef, got %T", node)
		}
		if spec.Name != "" && funDef.Name != spec.Name {
			t.Errorf("FunDef.Name: expected %q, got %q", spec.Name, funDef.Name)
		}
		if spec.ReturnType != "" && funDef.ReturnType != spec.ReturnType {
			t.Errorf("FunDef.ReturnType: expected %q, got %q", spec.ReturnType, funDef.ReturnType)
		}
		sub(funDef.Body, spec.Body)

	case "Block":
		block, ok := node.(*cabs.Block)
		if !ok {
			t.Fatalf("expected Block, got %T", node)
		}
		if len(spec.Items) != len(block.Items) {
			t.Fatalf("Block.Items: expected %d items, got %d", len(spec.Items), len(block.Items))
		}
		for i, itemSpec := range spec.Items {
			verifyAST(t, block.Items[i], itemSpec)
		}

	case "Return":
		ret, ok := node.(cabs.Return)
		if !ok {
			t.Fatalf("expected Return, got %T", node)
		}
		sub(ret.Expr, spec.Expr)

	case "Computation":
		c, ok := node.(cabs.Computation)
		if !ok {
			t.Fatalf("expected Computation, got %T", node)
		}
		sub(c.Expr, spec.Expr)

	case "For":
		f, ok := node.(cabs.For)
		if !ok {
			t.Fatalf("expected For, got %T", node)
		}
		verifyDecls(t, f.InitDecl, spec.Decls)
		sub(f.Cond, spec.Cond)
		sub(f.Step, spec.Step)
		sub(f.Body, spec.Body)

	case "If":
		s, ok := node.(cabs.If)
		if !ok {
			t.Fatalf("expected If, got %T", node)
		}
		sub(s.Cond, spec.Cond)
		sub(s.Then, spec.Then)
		if spec.Else != nil {
			if s.Else == nil {
				t.Fatal("If.Else: expected statement, got nil")
			}
			verifyAST(t, s.Else, *spec.Else)
		}

	case "While":
		w, ok := node.(cabs.While)
		if !ok {
			t.Fatalf("expected While, got %T", node)
		}
		sub(w.Cond, spec.Cond)
		sub(w.Body, spec.Body)

	case "DeclStmt":
		d, ok := node.(cabs.DeclStmt)
		if !ok {
			t.Fatalf("expected DeclStmt, got %T", node)
		}
		verifyDecls(t, d.Decls, spec.Decls)

	case "Constant":
		constant, ok := node.(cabs.Constant)
		if !ok {
			t.Fatalf("expected Constant, got %T", node)
		}
		if spec.Text != "" && constant.Text != spec.Text {
			t.Errorf("Constant.Text: expected %q, got %q", spec.Text, constant.Text)
		}

	case "Variable":
		variable, ok := node.(cabs.Variable)
		if !ok {
			t.Fatalf("expected Variable, got %T", node)
		}
		if spec.Name != "" && variable.Name != spec.Name {
			t.Errorf("Variable.Name: expected %q, got %q", spec.Name, variable.Name)
		}

	case "Binary":
		binary, ok := node.(cabs.Binary)
		if !ok {
			t.Fatalf("expected Binary, got %T", node)
		}
		if spec.Op != "" && binary.Op.String() != spec.Op {
			t.Errorf("Binary.Op: expected %q, got %q", spec.Op, binary.Op.String())
		}
		sub(binary.Left, spec.Left)
		sub(binary.Right, spec.Right)

	case "Unary":
		unary, ok := node.(cabs.Unary)
		if !ok {
			t.Fatalf("expected Unary, got %T", node)
		}
		if spec.Op != "" && unary.Op.String() != spec.Op {
			t.Errorf("Unary.Op: expected %q, got %q", spec.Op, unary.Op.String())
		}
		sub(unary.Expr, spec.Expr)

	case "Index":
		idx, ok := node.(cabs.Index)
		if !ok {
			t.Fatalf("expected Index, got %T", node)
		}
		sub(idx.Array, spec.Left)
		sub(idx.Index, spec.Right)

	case "Call":
		call, ok := node.(cabs.Call)
		if !ok {
			t.Fatalf("expected Call, got %T", node)
		}
		if spec.Name != "" && exprString(call.Func) != spec.Name {
			t.Errorf("Call.Func: expected %q, got %q", spec.Name, exprString(call.Func))
		}
		if spec.Args != nil && len(call.Args) != *spec.Args {
			t.Errorf("Call.Args: expected %d, got %d", *spec.Args, len(call.Args))
		}

	default:
		t.Fatalf("unknown AST kind: %s", spec.Kind)
	}
}

func parseReturnExpr(t *testing.T, expr string) cabs.Expr {
	t.Helper()
	input := "typedef unsigned char u8; int f() { return " + expr + "; }"
	p := New(lexer.New(input))
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	funDef := prog.Definitions[1].(cabs.FunDef)
	return funDef.Body.Items[0].(cabs.Return).Expr
}

func TestOperatorPrecedence(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"(1 + 2) * 3", "((1 + 2) * 3)"},
		{"1 - 2 - 3", "((1 - 2) - 3)"},
		{"a < b && c || d", "(((a < b) && c) || d)"},
		{"a = b = c", "(a = (b = c))"},
		{"x ? y : z ? 1 : 2", "(x ? y : (z ? 1 : 2))"},
		{"-a[i] * 2", "((-a[i]) * 2)"},
		{"i++ + --j", "((i++) + (--j))"},
		{"(u8) x + 1", "((u8)x + 1)"},
		{"a << 2 | b & 3", "((a << 2) | (b & 3))"},
		{"p->f.g[1]", "p->f.g[1]"},
		{"a, b", "(a , b)"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			actual := exprString(parseReturnExpr(t, tt.input))
			if actual != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, actual)
			}
		})
	}
}

func TestExternalDeclarations(t *testing.T) {
	input := `
typedef float elem_t;
struct point { int x, y; double w[3]; };
typedef struct { int a; } pair;
enum color { RED, GREEN = 4, BLUE };
static int N = 100, M;
int summary(int n, elem_t A[static 10][n]) __attribute__((pencil_access(summary_impl)));
inline void add(int *p, unsigned long k) { *p += k; }
`
	p := New(lexer.New(input))
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}

	var kinds []string
	for _, d := range prog.Definitions {
		kinds = append(kinds, fmt.Sprintf("%T", d))
	}
	want := "cabs.TypedefDef cabs.StructDef cabs.TypedefDef cabs.EnumDef cabs.VarDef cabs.VarDef cabs.FunDef cabs.FunDef"
	if got := strings.Join(kinds, " "); got != want {
		t.Fatalf("definitions:\n got %s\nwant %s", got, want)
	}

	st := prog.Definitions[1].(cabs.StructDef)
	if len(st.Fields) != 3 || st.Fields[2].Name != "w" || len(st.Fields[2].ArrayDims) != 1 {
		t.Errorf("struct fields = %+v", st.Fields)
	}
	if _, ok := prog.Definitions[2].(cabs.TypedefDef).InlineType.(cabs.StructDef); !ok {
		t.Errorf("typedef pair lost its inline struct")
	}
	ev := prog.Definitions[3].(cabs.EnumDef)
	if len(ev.Values) != 3 || ev.Values[1].Value == nil {
		t.Errorf("enum values = %+v", ev.Values)
	}
	n := prog.Definitions[4].(cabs.VarDef)
	if n.Storage != "static" || n.Initializer == nil {
		t.Errorf("N = %+v", n)
	}

	proto := prog.Definitions[6].(cabs.FunDef)
	if proto.Body != nil || len(proto.Params) != 2 {
		t.Fatalf("prototype = %+v", proto)
	}
	if proto.Params[1].TypeSpec != "elem_t" || len(proto.Params[1].ArrayDims) != 2 {
		t.Errorf("param A = %+v", proto.Params[1])
	}
	attr, ok := proto.Attr("pencil_access")
	if !ok || len(attr.Args) != 1 || attr.Args[0] != "summary_impl" {
		t.Errorf("pencil_access attribute = %+v, %v", attr, ok)
	}

	add := prog.Definitions[7].(cabs.FunDef)
	if !add.Inline || add.Params[0].TypeSpec != "int *" || add.Params[1].TypeSpec != "unsigned long" {
		t.Errorf("add = %+v", add)
	}
	if f, ok := prog.Function("add"); !ok || f.Name != "add" {
		t.Errorf("Function(add) = %v", ok)
	}
	if _, ok := prog.Function("summary"); ok {
		t.Errorf("a prototype is not a function definition")
	}
}

func TestPragmasAndSpans(t *testing.T) {
	input := "void f(int a[10]) {\n#pragma scop\n  a[0] = 1;\n#pragma endscop\n}\n"
	p := New(lexer.New(input))
	prog := p.ParseProgram()
	if len(p.Errors()) > 0 {
		t.Fatalf("parser errors: %v", p.Errors())
	}
	if len(prog.Pragmas) != 2 || prog.Pragmas[0].Text != "scop" || prog.Pragmas[1].Text != "endscop" {
		t.Fatalf("pragmas = %+v", prog.Pragmas)
	}
	if prog.Pragmas[0].Line != 2 || prog.Pragmas[1].Line != 4 {
		t.Errorf("pragma lines %d and %d", prog.Pragmas[0].Line, prog.Pragmas[1].Line)
	}

	stmt := prog.Definitions[0].(cabs.FunDef).Body.Items[0]
	sp := stmt.Range()
	if got := input[sp.Start:sp.End]; got != "a[0] = 1;" {
		t.Errorf("statement text = %q", got)
	}
	if sp.Line != 3 || sp.Column != 3 {
		t.Errorf("statement at %d:%d", sp.Line, sp.Column)
	}
	if sp.Start < prog.Pragmas[0].End || sp.End > prog.Pragmas[1].Start {
		t.Errorf("statement span %+v not between pragmas", sp)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"int f() { return 1 }", "expected ;, got }"},
		{"int f() { x = ; }", "expected expression, got ;"},
		{"int (*fp)(int);", "unsupported declarator"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p := New(lexer.New(tt.input))
			p.ParseProgram()
			if len(p.Errors()) == 0 {
				t.Fatal("expected a parse error")
			}
			if !strings.Contains(p.Errors()[0], tt.want) {
				t.Errorf("error %q does not mention %q", p.Errors()[0], tt.want)
			}
		})
	}
}

// exprString returns a string representation of an expression for testing
func exprString(e cabs.Expr) string {
	switch expr := e.(type) {
	case cabs.Constant:
		return expr.Text
	case cabs.Variable:
		return expr.Name
	case cabs.Binary:
		return fmt.Sprintf("(%s %s %s)", exprString(expr.Left), expr.Op.String(), exprString(expr.Right))
	case cabs.Unary:
		if expr.Op == cabs.OpPostInc || expr.Op == cabs.OpPostDec {
			return fmt.Sprintf("(%s%s)", exprString(expr.Expr), expr.Op.String())
		}
		return fmt.Sprintf("(%s%s)", expr.Op.String(), exprString(expr.Expr))
	case cabs.Paren:
		return exprString(expr.Expr)
	case cabs.Conditional:
		return fmt.Sprintf("(%s ? %s : %s)", exprString(expr.Cond), exprString(expr.Then), exprString(expr.Else))
	case cabs.Index:
		return fmt.Sprintf("%s[%s]", exprString(expr.Array), exprString(expr.Index))
	case cabs.Member:
		sep := "."
		if expr.IsArrow {
			sep = "->"
		}
		return exprString(expr.Expr) + sep + expr.Name
	case cabs.Cast:
		return fmt.Sprintf("(%s)%s", expr.TypeName, exprString(expr.Expr))
	case cabs.Call:
		return exprString(expr.Func) + "(...)"
	default:
		return "?"
	}
}
