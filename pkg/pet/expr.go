// Package pet defines the intermediate representation produced by the
// scanner: value/access expression trees and control-structure trees.
package pet

import (
	"fmt"
	"strings"

	"github.com/raymyers/ralph-pet/pkg/ctypes"
)

// ID identifies a variable, or a member of a structured variable. IDs are
// compared by pointer; two distinct declarations with the same name are
// two distinct IDs until hygiene renaming separates their names.
type ID struct {
	Name    string
	Type    ctypes.Type
	Parent  *ID // outer variable of a member
	Field   string
	Virtual bool // introduced during scop construction

	members map[string]*ID
}

// NewID creates an identifier for a variable of type t.
func NewID(name string, t ctypes.Type) *ID {
	return &ID{Name: name, Type: t}
}

// Member returns the identifier of field of the structured variable id.
// The same field always yields the same identifier.
func (id *ID) Member(field string, t ctypes.Type) *ID {
	if id.members == nil {
		id.members = make(map[string]*ID)
	}
	if m, ok := id.members[field]; ok {
		return m
	}
	m := &ID{Name: id.Name + "_" + field, Type: t, Parent: id, Field: field}
	id.members[field] = m
	return m
}

// Root returns the outermost variable of a member chain.
func (id *ID) Root() *ID {
	for id.Parent != nil {
		id = id.Parent
	}
	return id
}

// Rank returns the number of subscripts needed to reach a scalar element,
// counting the subscripts of enclosing structured variables.
func (id *ID) Rank() int {
	n := ctypes.ArrayDepth(id.Type)
	if id.Parent != nil {
		n += id.Parent.Rank()
	}
	return n
}

func (id *ID) String() string { return id.Name }

// Expr is a value or access expression.
type Expr interface {
	implPetExpr()
	CType() ctypes.Type
}

// IntLit is an integer literal of the given type.
type IntLit struct {
	Value int64
	Type  ctypes.Type
}

// DoubleLit is a floating point literal. Text is the literal as written
// in the source.
type DoubleLit struct {
	Value float64
	Text  string
	Type  ctypes.Type
}

// Access reads, writes or kills (a slice of) a variable.
type Access struct {
	ID       *ID
	Args     []Expr // subscripts, outermost first
	Read     bool
	Write    bool
	MayWrite bool
	Kill     bool
	RefID    int // 0 when not yet tagged
	Type     ctypes.Type
}

// Op applies an operator to its arguments.
type Op struct {
	Kind OpKind
	Args []Expr
	Type ctypes.Type
}

// Call calls an external function.
type Call struct {
	Name    string
	Args    []Expr
	Summary *FunctionSummary
	Type    ctypes.Type
}

// Cast converts its argument to type To.
type Cast struct {
	To  ctypes.Type
	Arg Expr
}

func (*IntLit) implPetExpr()    {}
func (*DoubleLit) implPetExpr() {}
func (*Access) implPetExpr()    {}
func (*Op) implPetExpr()        {}
func (*Call) implPetExpr()      {}
func (*Cast) implPetExpr()      {}

func (e *IntLit) CType() ctypes.Type    { return e.Type }
func (e *DoubleLit) CType() ctypes.Type { return e.Type }
func (e *Access) CType() ctypes.Type    { return e.Type }
func (e *Op) CType() ctypes.Type        { return e.Type }
func (e *Call) CType() ctypes.Type      { return e.Type }
func (e *Cast) CType() ctypes.Type      { return e.To }

// NewInt returns an int literal.
func NewInt(v int64) *IntLit { return &IntLit{Value: v, Type: ctypes.Int()} }

// NewAccess returns a read of the whole variable id.
func NewAccess(id *ID) *Access {
	return &Access{ID: id, Read: true, Type: id.Type}
}

// NewOp builds an operation whose type is taken from its first argument.
func NewOp(kind OpKind, args ...Expr) *Op {
	var t ctypes.Type = ctypes.Int()
	if len(args) > 0 && args[0].CType() != nil && !kind.IsComparison() {
		t = args[0].CType()
	}
	return &Op{Kind: kind, Args: args, Type: t}
}

// Copy returns a shallow copy of a with its own argument slice.
func (a *Access) Copy() *Access {
	c := *a
	c.Args = append([]Expr(nil), a.Args...)
	return &c
}

// MarkRead returns a copy of a that only reads.
func (a *Access) MarkRead() *Access {
	c := a.Copy()
	c.Read, c.Write, c.MayWrite, c.Kill = true, false, false, false
	return c
}

// MarkWrite returns a copy of a that writes. Reads are dropped; use
// MarkReadWrite for accesses that do both.
func (a *Access) MarkWrite() *Access {
	c := a.Copy()
	c.Read, c.Write, c.MayWrite = false, true, false
	return c
}

// MarkReadWrite returns a copy of a that reads and then writes.
func (a *Access) MarkReadWrite() *Access {
	c := a.Copy()
	c.Read, c.Write = true, true
	return c
}

// MarkMayWrite returns a copy of a that may write. A must-write becomes a
// may-write.
func (a *Access) MarkMayWrite() *Access {
	c := a.Copy()
	if c.Write {
		c.Write = false
	}
	c.MayWrite = true
	return c
}

// MarkKill returns a copy of a that kills the accessed elements.
func (a *Access) MarkKill() *Access {
	c := a.Copy()
	c.Read, c.Write, c.MayWrite, c.Kill = false, false, false, true
	return c
}

// Subscript returns a copy of a with one more subscript.
func (a *Access) Subscript(index Expr) *Access {
	c := a.Copy()
	c.Args = append(c.Args, index)
	if et, ok := ctypes.Elem(a.Type); ok {
		c.Type = et
	}
	return c
}

// Writes reports whether a may modify the accessed elements.
func (a *Access) Writes() bool { return a.Write || a.MayWrite }

// IsScalar reports whether a accesses a variable without subscripts.
func (a *Access) IsScalar() bool { return len(a.Args) == 0 && a.ID.Parent == nil }

// MapExpr rebuilds e bottom-up, replacing every node n by f(n) after its
// children have been rebuilt. Nodes are never modified in place.
func MapExpr(e Expr, f func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}
	switch x := e.(type) {
	case *Access:
		c := x.Copy()
		for i, arg := range c.Args {
			c.Args[i] = MapExpr(arg, f)
		}
		return f(c)
	case *Op:
		c := &Op{Kind: x.Kind, Type: x.Type, Args: make([]Expr, len(x.Args))}
		for i, arg := range x.Args {
			c.Args[i] = MapExpr(arg, f)
		}
		return f(c)
	case *Call:
		c := &Call{Name: x.Name, Summary: x.Summary, Type: x.Type, Args: make([]Expr, len(x.Args))}
		for i, arg := range x.Args {
			c.Args[i] = MapExpr(arg, f)
		}
		return f(c)
	case *Cast:
		return f(&Cast{To: x.To, Arg: MapExpr(x.Arg, f)})
	case *IntLit:
		c := *x
		return f(&c)
	case *DoubleLit:
		c := *x
		return f(&c)
	}
	return f(e)
}

// WalkExpr calls fn on e and its descendants in pre-order. Returning false
// from fn skips the children of that node.
func WalkExpr(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch x := e.(type) {
	case *Access:
		for _, arg := range x.Args {
			WalkExpr(arg, fn)
		}
	case *Op:
		for _, arg := range x.Args {
			WalkExpr(arg, fn)
		}
	case *Call:
		for _, arg := range x.Args {
			WalkExpr(arg, fn)
		}
	case *Cast:
		WalkExpr(x.Arg, fn)
	}
}

// Accesses returns all accesses in e, including those in subscripts, in
// pre-order.
func Accesses(e Expr) []*Access {
	var out []*Access
	WalkExpr(e, func(n Expr) bool {
		if a, ok := n.(*Access); ok {
			out = append(out, a)
		}
		return true
	})
	return out
}

// IsCall reports whether e is a call to the named function.
func IsCall(e Expr, name string) bool {
	c, ok := e.(*Call)
	return ok && c.Name == name
}

// Assignment returns the target and value of a plain assignment.
func Assignment(e Expr) (*Access, Expr, bool) {
	op, ok := e.(*Op)
	if !ok || op.Kind != OpAssign {
		return nil, nil, false
	}
	a, ok := op.Args[0].(*Access)
	if !ok {
		return nil, nil, false
	}
	return a, op.Args[1], true
}

// FormatExpr renders e in C syntax.
func FormatExpr(e Expr) string {
	var sb strings.Builder
	formatExpr(&sb, e)
	return sb.String()
}

func formatExpr(sb *strings.Builder, e Expr) {
	switch x := e.(type) {
	case nil:
		sb.WriteString("<nil>")
	case *IntLit:
		fmt.Fprintf(sb, "%d", x.Value)
	case *DoubleLit:
		if x.Text != "" {
			sb.WriteString(x.Text)
		} else {
			fmt.Fprintf(sb, "%g", x.Value)
		}
	case *Access:
		if x.ID.Parent != nil {
			formatMember(sb, x)
			return
		}
		sb.WriteString(x.ID.Name)
		for _, arg := range x.Args {
			sb.WriteString("[")
			formatExpr(sb, arg)
			sb.WriteString("]")
		}
	case *Op:
		formatOp(sb, x)
	case *Call:
		sb.WriteString(x.Name)
		sb.WriteString("(")
		for i, arg := range x.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			formatExpr(sb, arg)
		}
		sb.WriteString(")")
	case *Cast:
		fmt.Fprintf(sb, "(%s) ", x.To)
		formatExpr(sb, x.Arg)
	default:
		fmt.Fprintf(sb, "<%T>", e)
	}
}

// formatMember prints an access to a member as outer[...].field[...]. The
// subscripts are split according to the rank of each level.
func formatMember(sb *strings.Builder, a *Access) {
	var chain []*ID
	for id := a.ID; id != nil; id = id.Parent {
		chain = append([]*ID{id}, chain...)
	}
	args := a.Args
	for i, id := range chain {
		if i == 0 {
			sb.WriteString(id.Name)
		} else {
			sb.WriteString("." + id.Field)
		}
		n := ctypes.ArrayDepth(id.Type)
		for k := 0; k < n && len(args) > 0; k++ {
			sb.WriteString("[")
			formatExpr(sb, args[0])
			sb.WriteString("]")
			args = args[1:]
		}
	}
}

func formatOp(sb *strings.Builder, op *Op) {
	switch {
	case op.Kind == OpCond && len(op.Args) == 3:
		formatOperand(sb, op.Args[0])
		sb.WriteString(" ? ")
		formatOperand(sb, op.Args[1])
		sb.WriteString(" : ")
		formatOperand(sb, op.Args[2])
	case op.Kind == OpAssume || op.Kind == OpKill:
		sb.WriteString(op.Kind.String() + "(")
		for i, arg := range op.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			formatExpr(sb, arg)
		}
		sb.WriteString(")")
	case op.Kind == OpPostInc || op.Kind == OpPostDec:
		formatOperand(sb, op.Args[0])
		sb.WriteString(op.Kind.String())
	case len(op.Args) == 1:
		sb.WriteString(op.Kind.String())
		formatOperand(sb, op.Args[0])
	case len(op.Args) == 2:
		if op.Kind.IsAssign() {
			formatExpr(sb, op.Args[0])
		} else {
			formatOperand(sb, op.Args[0])
		}
		sb.WriteString(" " + op.Kind.String() + " ")
		if op.Kind.IsAssign() {
			formatExpr(sb, op.Args[1])
		} else {
			formatOperand(sb, op.Args[1])
		}
	default:
		fmt.Fprintf(sb, "%s(...)", op.Kind)
	}
}

func formatOperand(sb *strings.Builder, e Expr) {
	if op, ok := e.(*Op); ok && op.Kind != OpAssume && op.Kind != OpKill {
		sb.WriteString("(")
		formatExpr(sb, e)
		sb.WriteString(")")
		return
	}
	formatExpr(sb, e)
}
