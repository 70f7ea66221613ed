// Package cabs defines the abstract syntax tree for the C subset the scop
// extractor reads. Every node records its source range.
package cabs

import (
	"fmt"
	"strconv"
	"strings"
)

// Span is a source range: byte offsets [Start, End) into the parsed input
// and the line and column of its first character.
type Span struct {
	Start, End   int
	Line, Column int
	EndLine      int
}

// Range returns the span itself; embedding Span gives every node this
// method.
func (s Span) Range() Span { return s }

// Node is the base interface for all AST nodes
type Node interface {
	implCabsNode()
	Range() Span
}

// Expr is the interface for all expression nodes
type Expr interface {
	Node
	implCabsExpr()
}

// Stmt is the interface for all statement nodes
type Stmt interface {
	Node
	implCabsStmt()
}

// Definition is the interface for top-level definitions
type Definition interface {
	Node
	implDefinition()
}

// BinaryOp represents binary operators, including assignments
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
	OpAnd // &&
	OpOr  // ||
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl // <<
	OpShr // >>
	OpAssign
	OpAddAssign
	OpSubAssign
	OpMulAssign
	OpDivAssign
	OpModAssign
	OpAndAssign
	OpOrAssign
	OpXorAssign
	OpShlAssign
	OpShrAssign
	OpComma
)

var binaryNames = []string{"+", "-", "*", "/", "%", "<", "<=", ">", ">=", "==", "!=",
	"&&", "||", "&", "|", "^", "<<", ">>", "=", "+=", "-=", "*=", "/=", "%=",
	"&=", "|=", "^=", "<<=", ">>=", ","}

func (op BinaryOp) String() string {
	if int(op) < len(binaryNames) {
		return binaryNames[op]
	}
	return "?"
}

// IsAssign reports whether op is = or a compound assignment.
func (op BinaryOp) IsAssign() bool { return op >= OpAssign && op <= OpShrAssign }

// Arith returns the arithmetic operator of a compound assignment, e.g.
// OpAdd for OpAddAssign.
func (op BinaryOp) Arith() (BinaryOp, bool) {
	switch op {
	case OpAddAssign:
		return OpAdd, true
	case OpSubAssign:
		return OpSub, true
	case OpMulAssign:
		return OpMul, true
	case OpDivAssign:
		return OpDiv, true
	case OpModAssign:
		return OpMod, true
	case OpAndAssign:
		return OpBitAnd, true
	case OpOrAssign:
		return OpBitOr, true
	case OpXorAssign:
		return OpBitXor, true
	case OpShlAssign:
		return OpShl, true
	case OpShrAssign:
		return OpShr, true
	}
	return op, false
}

// UnaryOp represents unary operators
type UnaryOp int

const (
	OpNeg    UnaryOp = iota // -
	OpNot                   // !
	OpBitNot                // ~
	OpPreInc
	OpPreDec
	OpPostInc
	OpPostDec
	OpAddrOf
	OpDeref
	OpPlus
)

func (op UnaryOp) String() string {
	names := []string{"-", "!", "~", "++", "--", "++", "--", "&", "*", "+"}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

// Constant is an integer constant as written, suffix included.
type Constant struct {
	Span
	Text string
}

// Value decodes the constant into its bit pattern, its suffix and whether
// it was written in decimal.
func (c Constant) Value() (uint64, string, bool, error) {
	text := c.Text
	end := len(text)
	for end > 0 && strings.ContainsRune("uUlL", rune(text[end-1])) {
		end--
	}
	digits, suffix := text[:end], text[end:]
	decimal := !(len(digits) > 1 && digits[0] == '0')
	v, err := strconv.ParseUint(digits, 0, 64)
	if err != nil {
		return 0, suffix, decimal, fmt.Errorf("invalid integer constant %q", c.Text)
	}
	return v, suffix, decimal, nil
}

// FloatConst is a floating-point constant as written.
type FloatConst struct {
	Span
	Text string
}

// CharLiteral is a character constant; Value is the text between the quotes.
type CharLiteral struct {
	Span
	Value string
}

// Code returns the numeric value of the character constant.
func (c CharLiteral) Code() (int64, error) {
	s, err := strconv.Unquote("'" + c.Value + "'")
	if err == nil && len(s) > 0 {
		return int64(int8(s[0])), nil
	}
	if strings.HasPrefix(c.Value, `\`) {
		if v, err := strconv.ParseInt(c.Value[1:], 8, 64); err == nil {
			return int64(int8(v)), nil
		}
	}
	return 0, fmt.Errorf("invalid character constant '%s'", c.Value)
}

// StringLiteral is a string constant; Value is the text between the quotes.
type StringLiteral struct {
	Span
	Value string
}

// Variable represents an identifier expression
type Variable struct {
	Span
	Name string
}

// Unary represents a unary expression
type Unary struct {
	Span
	Op   UnaryOp
	Expr Expr
}

// Binary represents a binary expression
type Binary struct {
	Span
	Op    BinaryOp
	Left  Expr
	Right Expr
}

// Paren represents a parenthesized expression
type Paren struct {
	Span
	Expr Expr
}

// Conditional represents the ternary operator: cond ? then : else
type Conditional struct {
	Span
	Cond Expr
	Then Expr
	Else Expr
}

// Call represents a function call
type Call struct {
	Span
	Func Expr
	Args []Expr
}

// Index represents array subscript access: arr[idx]
type Index struct {
	Span
	Array Expr
	Index Expr
}

// Member represents a.f or p->f
type Member struct {
	Span
	Expr    Expr
	Name    string
	IsArrow bool
}

// SizeofExpr represents sizeof applied to an expression
type SizeofExpr struct {
	Span
	Expr Expr
}

// SizeofType represents sizeof(type)
type SizeofType struct {
	Span
	TypeName string
}

// Cast represents (type)expr
type Cast struct {
	Span
	TypeName string
	Expr     Expr
}

// InitList represents a brace-enclosed initializer
type InitList struct {
	Span
	Items []Expr
}

// Computation is an expression statement
type Computation struct {
	Span
	Expr Expr
}

// Empty is the null statement ";"
type Empty struct {
	Span
}

// Return represents a return statement
type Return struct {
	Span
	Expr Expr // nil for bare return
}

// If represents if and if-else
type If struct {
	Span
	Cond Expr
	Then Stmt
	Else Stmt // nil without else
}

// While represents a while loop
type While struct {
	Span
	Cond Expr
	Body Stmt
}

// DoWhile represents a do-while loop
type DoWhile struct {
	Span
	Body Stmt
	Cond Expr
}

// For represents a for loop. At most one of InitDecl and Init is set.
type For struct {
	Span
	InitDecl []Decl
	Init     Expr
	Cond     Expr
	Step     Expr
	Body     Stmt
}

// Break represents a break statement
type Break struct {
	Span
}

// Continue represents a continue statement
type Continue struct {
	Span
}

// Switch represents a switch statement
type Switch struct {
	Span
	Expr Expr
	Body Stmt
}

// Case represents a case or default label; Expr is nil for default.
type Case struct {
	Span
	Expr Expr
	Stmt Stmt
}

// Goto represents a goto statement
type Goto struct {
	Span
	Label string
}

// Label represents a labeled statement
type Label struct {
	Span
	Name string
	Stmt Stmt
}

// Block represents a compound statement (block)
type Block struct {
	Span
	Items []Stmt
}

// Decl declares one variable. TypeSpec is the declaration specifier with
// one trailing "*" per pointer level, e.g. "unsigned char" or "float *".
type Decl struct {
	Span
	Storage     string
	TypeSpec    string
	Name        string
	ArrayDims   []Expr // nil entries for []
	Initializer Expr
}

// DeclStmt is a declaration statement
type DeclStmt struct {
	Span
	Decls []Decl
}

// Param is a function parameter
type Param struct {
	Span
	TypeSpec  string
	Name      string
	ArrayDims []Expr
}

// Attribute is a GNU attribute such as pencil_access(summary).
type Attribute struct {
	Name string
	Args []string
}

// FunDef represents a function definition, or a prototype if Body is nil
type FunDef struct {
	Span
	Storage    string
	Inline     bool
	ReturnType string
	Name       string
	Params     []Param
	Variadic   bool
	Attrs      []Attribute
	Body       *Block
}

// Attr looks up an attribute by name.
func (f FunDef) Attr(name string) (Attribute, bool) {
	for _, a := range f.Attrs {
		if a.Name == name || a.Name == "__"+name+"__" {
			return a, true
		}
	}
	return Attribute{}, false
}

// VarDef represents a global variable
type VarDef struct {
	Decl
}

// Field is a member of a struct or union
type Field struct {
	TypeSpec  string
	Name      string
	ArrayDims []Expr
}

// StructDef defines a struct
type StructDef struct {
	Span
	Name   string
	Fields []Field
}

// UnionDef defines a union
type UnionDef struct {
	Span
	Name   string
	Fields []Field
}

// EnumVal is one enumerator
type EnumVal struct {
	Name  string
	Value Expr
}

// EnumDef defines an enum
type EnumDef struct {
	Span
	Name   string
	Values []EnumVal
}

// TypedefDef defines a type name. InlineType holds a struct, union or enum
// defined in the same declaration.
type TypedefDef struct {
	Span
	Name       string
	TypeSpec   string
	ArrayDims  []Expr
	InlineType Definition
}

// Pragma is a #pragma line; Text excludes the "#pragma" prefix.
type Pragma struct {
	Span
	Text string
}

// Program is a parsed translation unit
type Program struct {
	Definitions []Definition
	Pragmas     []Pragma
}

// Function returns the definition (with a body) of the named function.
func (p *Program) Function(name string) (FunDef, bool) {
	for _, d := range p.Definitions {
		if f, ok := d.(FunDef); ok && f.Name == name && f.Body != nil {
			return f, true
		}
	}
	return FunDef{}, false
}

// Marker methods for interface implementation
func (Constant) implCabsNode()      {}
func (Constant) implCabsExpr()      {}
func (FloatConst) implCabsNode()    {}
func (FloatConst) implCabsExpr()    {}
func (CharLiteral) implCabsNode()   {}
func (CharLiteral) implCabsExpr()   {}
func (StringLiteral) implCabsNode() {}
func (StringLiteral) implCabsExpr() {}
func (Variable) implCabsNode()      {}
func (Variable) implCabsExpr()      {}
func (Unary) implCabsNode()         {}
func (Unary) implCabsExpr()         {}
func (Binary) implCabsNode()        {}
func (Binary) implCabsExpr()        {}
func (Paren) implCabsNode()         {}
func (Paren) implCabsExpr()         {}
func (Conditional) implCabsNode()   {}
func (Conditional) implCabsExpr()   {}
func (Call) implCabsNode()          {}
func (Call) implCabsExpr()          {}
func (Index) implCabsNode()         {}
func (Index) implCabsExpr()         {}
func (Member) implCabsNode()        {}
func (Member) implCabsExpr()        {}
func (SizeofExpr) implCabsNode()    {}
func (SizeofExpr) implCabsExpr()    {}
func (SizeofType) implCabsNode()    {}
func (SizeofType) implCabsExpr()    {}
func (Cast) implCabsNode()          {}
func (Cast) implCabsExpr()          {}
func (InitList) implCabsNode()      {}
func (InitList) implCabsExpr()      {}

func (Computation) implCabsNode() {}
func (Computation) implCabsStmt() {}
func (Empty) implCabsNode()       {}
func (Empty) implCabsStmt()       {}
func (Return) implCabsNode()      {}
func (Return) implCabsStmt()      {}
func (If) implCabsNode()          {}
func (If) implCabsStmt()          {}
func (While) implCabsNode()       {}
func (While) implCabsStmt()       {}
func (DoWhile) implCabsNode()     {}
func (DoWhile) implCabsStmt()     {}
func (For) implCabsNode()         {}
func (For) implCabsStmt()         {}
func (Break) implCabsNode()       {}
func (Break) implCabsStmt()       {}
func (Continue) implCabsNode()    {}
func (Continue) implCabsStmt()    {}
func (Switch) implCabsNode()      {}
func (Switch) implCabsStmt()      {}
func (Case) implCabsNode()        {}
func (Case) implCabsStmt()        {}
func (Goto) implCabsNode()        {}
func (Goto) implCabsStmt()        {}
func (Label) implCabsNode()       {}
func (Label) implCabsStmt()       {}
func (*Block) implCabsNode()      {}
func (*Block) implCabsStmt()      {}
func (DeclStmt) implCabsNode()    {}
func (DeclStmt) implCabsStmt()    {}

func (FunDef) implCabsNode()       {}
func (FunDef) implDefinition()     {}
func (VarDef) implCabsNode()       {}
func (VarDef) implDefinition()     {}
func (StructDef) implCabsNode()    {}
func (StructDef) implDefinition()  {}
func (UnionDef) implCabsNode()     {}
func (UnionDef) implDefinition()   {}
func (EnumDef) implCabsNode()      {}
func (EnumDef) implDefinition()    {}
func (TypedefDef) implCabsNode()   {}
func (TypedefDef) implDefinition() {}
