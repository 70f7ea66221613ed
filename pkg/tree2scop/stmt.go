package tree2scop

import (
	"fmt"

	"github.com/raymyers/ralph-pet/pkg/affine"
	"github.com/raymyers/ralph-pet/pkg/ctypes"
	"github.com/raymyers/ralph-pet/pkg/pet"
	"github.com/raymyers/ralph-pet/pkg/scop"
)

func (b *builder) nextRef() int {
	b.refs++
	return b.refs - 1
}

// newStmt creates the statement executing t for every point of the
// domain of ctx. The accesses of t are tagged with fresh reference ids.
func (b *builder) newStmt(ctx *Context, t pet.Tree) *scop.Stmt {
	name := pet.LabelOf(t)
	if name == "" {
		name = fmt.Sprintf("S_%d", b.stmtCount)
	}
	b.stmtCount++
	body := pet.MapTree(t, func(e pet.Expr) pet.Expr {
		return pet.MapExpr(e, func(n pet.Expr) pet.Expr {
			if a, ok := n.(*pet.Access); ok {
				a.RefID = b.nextRef()
			}
			return n
		})
	})
	st := &scop.Stmt{
		Name:   name,
		Loc:    pet.LocOf(t),
		Domain: ctx.dom.WithName(name),
		Body:   body,
	}
	for _, a := range pet.TreeAccesses(body) {
		st.Accesses = append(st.Accesses, b.newAccess(ctx, a))
	}
	pet.WalkTree(body, func(n pet.Tree) bool {
		for _, e := range pet.Exprs(n) {
			pet.WalkExpr(e, func(x pet.Expr) bool {
				if c, ok := x.(*pet.Call); ok && c.Summary != nil {
					st.Accesses = b.applySummary(ctx, c, st.Accesses)
				}
				return true
			})
		}
		return true
	})
	return st
}

// exprStmt creates the statement evaluating e.
func (b *builder) exprStmtOf(ctx *Context, e pet.Expr, loc pet.Loc, label string) *scop.Stmt {
	t := &pet.ExprStmt{Node: pet.Node{Loc: loc, Label: label}, Expr: e}
	return b.newStmt(ctx, t)
}

func (b *builder) newAccess(ctx *Context, a *pet.Access) *scop.Access {
	acc := &scop.Access{
		Ref:      a.RefID,
		ID:       a.ID,
		Read:     a.Read,
		Write:    a.Write,
		MayWrite: a.MayWrite,
		Kill:     a.Kill,
	}
	if a.Read && !a.Writes() && !a.Kill && a.IsScalar() && ctypes.IsInteger(a.Type) {
		if v := b.eval(ctx, a); !v.IsNaN() {
			acc.Affine = true
			acc.Value = v
			return acc
		}
	}
	rank := a.ID.Rank()
	n := len(a.Args)
	if rank > n {
		n = rank
	}
	acc.Subscripts = make([]affine.PwAff, n)
	for k := range acc.Subscripts {
		if k < len(a.Args) {
			acc.Subscripts[k] = b.eval(ctx, a.Args[k])
		} else {
			acc.Subscripts[k] = affine.NaN()
		}
	}
	acc.Exact = exact(acc.Subscripts)
	if !acc.Exact && acc.Write {
		acc.Write = false
		acc.MayWrite = true
	}
	return acc
}

// applySummary replaces the accesses to whole arrays passed to c by the
// footprints recorded in the summary of the callee.
func (b *builder) applySummary(ctx *Context, c *pet.Call, accs []*scop.Access) []*scop.Access {
	subst := func(s affine.Set) affine.Set {
		for j, arg := range c.Args {
			p := pet.ParamName(j)
			if !s.Involves(p) {
				continue
			}
			if c.Summary.Arg(j).Kind == pet.ArgInt {
				if v, ok := b.eval(ctx, arg).Aff(); ok {
					s = s.Substitute(p, v)
					continue
				}
			}
			s = s.Project(p)
		}
		return s
	}
	for k, arg := range c.Args {
		sa := c.Summary.Arg(k)
		if sa.Kind != pet.ArgArray {
			continue
		}
		if op, ok := arg.(*pet.Op); ok && op.Kind == pet.OpAddrOf {
			arg = op.Args[0]
		}
		a, ok := arg.(*pet.Access)
		if !ok || len(a.Args) > 0 {
			continue
		}
		for i, acc := range accs {
			if acc.Ref != a.RefID {
				continue
			}
			read := subst(sa.MayRead)
			write := subst(sa.MayWrite)
			must := subst(sa.MustWrite)
			if read.IsEmpty() {
				acc.Read = false
			}
			acc.Restrict = &read
			acc.Write, acc.MayWrite = false, false
			if !write.IsEmpty() {
				w := &scop.Access{
					Ref:        b.nextRef(),
					ID:         acc.ID,
					Subscripts: acc.Subscripts,
					Restrict:   &write,
					MayWrite:   true,
				}
				if write.IsEqual(must) {
					w.Write, w.MayWrite = true, false
				}
				accs = append(accs[:i+1], append([]*scop.Access{w}, accs[i+1:]...)...)
			}
			break
		}
	}
	return accs
}

// virtualID returns a fresh integer array indexed by the iterators of ctx.
func (b *builder) virtualID(name string, ctx *Context) *pet.ID {
	var t ctypes.Type = ctypes.Int()
	for range ctx.Iterators() {
		t = ctypes.Array(t, -1)
	}
	id := pet.NewID(name, t)
	id.Virtual = true
	b.virtuals = append(b.virtuals, id)
	return id
}

// dimAccess returns a read of the iterator dim.
func (b *builder) dimAccess(dim string) pet.Expr {
	id, ok := b.dims[dim]
	if !ok {
		id = pet.NewID(dim, ctypes.Int())
		id.Virtual = true
		b.dims[dim] = id
	}
	return pet.NewAccess(id)
}

// virtualAccess returns a read of the element of v for the current
// iterators of ctx. If shift is not zero, the innermost subscript is
// offset by shift.
func (b *builder) virtualAccess(v *pet.ID, ctx *Context, shift int64) (*pet.Access, []affine.PwAff) {
	acc := pet.NewAccess(v)
	iters := ctx.Iterators()
	var index []affine.PwAff
	for k, it := range iters {
		var arg pet.Expr = b.dimAccess(it)
		val := affine.FromVar(it)
		if k == len(iters)-1 && shift != 0 {
			arg = pet.NewOp(pet.OpAdd, arg, pet.NewInt(shift))
			val = val.Add(affine.FromInt(shift))
		}
		acc = acc.Subscript(arg)
		index = append(index, val)
	}
	return acc, index
}

// bindDims returns ctx with every iterator dim readable through the ids
// created by dimAccess.
func (b *builder) bindDims(ctx *Context) *Context {
	for _, it := range ctx.Iterators() {
		if id, ok := b.dims[it]; ok {
			if _, bound := ctx.Value(id); !bound {
				ctx = ctx.Bind(id, affine.FromVar(it))
			}
		}
	}
	return ctx
}

// assignVirtual creates the statement v = value on the domain of ctx.
func (b *builder) assignVirtual(ctx *Context, v *pet.ID, value pet.Expr, loc pet.Loc) *scop.Stmt {
	lhs, _ := b.virtualAccess(v, ctx, 0)
	e := pet.NewOp(pet.OpAssign, lhs.MarkWrite(), value)
	return b.exprStmtOf(b.bindDims(ctx), e, loc, "")
}

// truth returns e as a 0/1 value.
func truth(e pet.Expr) pet.Expr {
	if op, ok := e.(*pet.Op); ok {
		if op.Kind.IsComparison() {
			return e
		}
	}
	return pet.NewOp(pet.OpNe, e, pet.NewInt(0))
}
