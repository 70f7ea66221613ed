package pet

import "github.com/raymyers/ralph-pet/pkg/ctypes"

// Substituter replaces accesses to some variables by accesses to others.
// A replacement is either an access or the address of an access.
type Substituter struct {
	subs map[*ID]Expr
}

// NewSubstituter returns an empty substituter.
func NewSubstituter() *Substituter {
	return &Substituter{subs: make(map[*ID]Expr)}
}

// Add records that accesses to id are to be redirected to repl, which is
// an *Access or an OpAddrOf applied to one.
func (s *Substituter) Add(id *ID, repl Expr) {
	s.subs[id] = repl
}

// Rename records that id is to be replaced by the variable to.
func (s *Substituter) Rename(id, to *ID) {
	s.subs[id] = &Access{ID: to, Read: true, Type: to.Type}
}

// Len returns the number of substitutions.
func (s *Substituter) Len() int { return len(s.subs) }

// Tree applies the substitutions to every expression of t.
func (s *Substituter) Tree(t Tree) Tree {
	if len(s.subs) == 0 {
		return t
	}
	return MapTree(t, s.Expr)
}

// Expr applies the substitutions to e.
func (s *Substituter) Expr(e Expr) Expr {
	if len(s.subs) == 0 || e == nil {
		return e
	}
	return MapExpr(e, func(n Expr) Expr {
		a, ok := n.(*Access)
		if !ok {
			return n
		}
		return s.access(a)
	})
}

func (s *Substituter) access(a *Access) Expr {
	var path []*ID
	root := a.ID
	for root.Parent != nil {
		path = append([]*ID{root}, path...)
		root = root.Parent
	}
	repl, ok := s.subs[root]
	if !ok {
		return a
	}
	addr := false
	if op, isOp := repl.(*Op); isOp && op.Kind == OpAddrOf {
		repl, addr = op.Args[0], true
	}
	target, ok := repl.(*Access)
	if !ok {
		return a
	}
	if addr && len(a.Args) == 0 && len(path) == 0 {
		return &Op{Kind: OpAddrOf, Args: []Expr{s.retag(target, a)}, Type: a.Type}
	}
	out := s.retag(target, a)
	out.ID = target.ID
	for _, p := range path {
		out.ID = out.ID.Member(p.Field, p.Type)
	}
	args := append([]Expr(nil), target.Args...)
	rest := a.Args
	if addr && len(args) > 0 && len(rest) > 0 {
		last := len(args) - 1
		args[last] = addIndex(args[last], rest[0])
		rest = rest[1:]
	}
	out.Args = append(args, rest...)
	return out
}

// retag copies target and gives it the access kind and type of a.
func (s *Substituter) retag(target, a *Access) *Access {
	out := target.Copy()
	out.Read, out.Write, out.MayWrite, out.Kill = a.Read, a.Write, a.MayWrite, a.Kill
	out.RefID = a.RefID
	out.Type = a.Type
	return out
}

func addIndex(a, b Expr) Expr {
	if lit, ok := b.(*IntLit); ok && lit.Value == 0 {
		return a
	}
	if lit, ok := a.(*IntLit); ok && lit.Value == 0 {
		return b
	}
	return &Op{Kind: OpAdd, Args: []Expr{a, b}, Type: ctypes.Arith(a.CType(), b.CType())}
}
