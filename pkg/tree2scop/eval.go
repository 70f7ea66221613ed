package tree2scop

import (
	"github.com/raymyers/ralph-pet/pkg/affine"
	"github.com/raymyers/ralph-pet/pkg/ctypes"
	"github.com/raymyers/ralph-pet/pkg/pet"
)

// evaluator computes the affine value of an expression in a context.
// When nesting is allowed, integer reads that are not affine become
// variables standing for the value read; they are collected in nested.
type evaluator struct {
	b      *builder
	ctx    *Context
	nest   bool
	nested []filter
}

// eval returns the value of e in ctx, or NaN.
func (b *builder) eval(ctx *Context, e pet.Expr) affine.PwAff {
	ev := &evaluator{b: b, ctx: ctx}
	return ev.expr(e)
}

// evalNested is eval with reads of data allowed to appear as variables.
func (b *builder) evalNested(ctx *Context, e pet.Expr) (affine.PwAff, []filter) {
	ev := &evaluator{b: b, ctx: ctx, nest: ctx.nested}
	v := ev.expr(e)
	return v, ev.nested
}

// evalCond returns the set where the condition e holds.
func (b *builder) evalCond(ctx *Context, e pet.Expr) (cond, bool) {
	v, nested := b.evalNested(ctx, e)
	if v.IsNaN() {
		return cond{}, false
	}
	return cond{args: nested, set: v.NonZeroSet()}, true
}

func (ev *evaluator) expr(e pet.Expr) affine.PwAff {
	switch x := e.(type) {
	case *pet.IntLit:
		return affine.FromInt(x.Value)
	case *pet.Access:
		return ev.access(x)
	case *pet.Op:
		return ev.op(x)
	case *pet.Cast:
		return ev.cast(x)
	case *pet.Call:
		return ev.call(x)
	}
	return affine.NaN()
}

func (ev *evaluator) access(a *pet.Access) affine.PwAff {
	if !ctypes.IsInteger(a.Type) {
		return affine.NaN()
	}
	if a.IsScalar() {
		if v, ok := ev.ctx.Value(a.ID); ok {
			if !v.IsNaN() {
				return v
			}
			return ev.nestedRead(a)
		}
		if !a.ID.Virtual && !ev.b.notParam[a.ID] {
			return ev.b.param(a.ID)
		}
	}
	return ev.nestedRead(a)
}

// nestedRead returns a variable standing for the value read by a, if
// nesting is allowed and the read location is affine.
func (ev *evaluator) nestedRead(a *pet.Access) affine.PwAff {
	if !ev.nest {
		return affine.NaN()
	}
	index := make([]affine.PwAff, len(a.Args))
	for k, arg := range a.Args {
		inner := &evaluator{b: ev.b, ctx: ev.ctx}
		index[k] = inner.expr(arg)
		if index[k].IsNaN() {
			return affine.NaN()
		}
	}
	text := pet.FormatExpr(a)
	for k, f := range ev.nested {
		if f.acc.ID == a.ID && pet.FormatExpr(f.acc) == text {
			return affine.FromVar(nestedVar(k))
		}
	}
	ev.nested = append(ev.nested, filter{acc: a.MarkRead(), index: index})
	return affine.FromVar(nestedVar(len(ev.nested) - 1))
}

func (ev *evaluator) op(op *pet.Op) affine.PwAff {
	args := func(n int) []affine.PwAff {
		out := make([]affine.PwAff, n)
		for i := 0; i < n && i < len(op.Args); i++ {
			out[i] = ev.expr(op.Args[i])
		}
		return out
	}
	switch op.Kind {
	case pet.OpAdd, pet.OpSub, pet.OpMul:
		a := args(2)
		var v affine.PwAff
		switch op.Kind {
		case pet.OpAdd:
			v = a[0].Add(a[1])
		case pet.OpSub:
			v = a[0].Sub(a[1])
		default:
			v = a[0].Mul(a[1])
		}
		return ev.wrap(v, op.Type)
	case pet.OpMinus:
		return ev.wrap(args(1)[0].Neg(), op.Type)
	case pet.OpDiv, pet.OpMod:
		a := args(1)
		d, ok := ev.expr(op.Args[1]).Const()
		if !ok || d == 0 {
			return affine.NaN()
		}
		if op.Kind == pet.OpDiv {
			return a[0].TDiv(d)
		}
		return a[0].TRem(d)
	case pet.OpShl, pet.OpShr:
		a := args(1)
		k, ok := ev.expr(op.Args[1]).Const()
		if !ok || k < 0 || k > 30 {
			return affine.NaN()
		}
		if op.Kind == pet.OpShl {
			return ev.wrap(a[0].Scale(1<<uint(k)), op.Type)
		}
		return a[0].FloorDiv(1 << uint(k))
	case pet.OpEq, pet.OpNe, pet.OpLt, pet.OpLe, pet.OpGt, pet.OpGe:
		a := args(2)
		switch op.Kind {
		case pet.OpEq:
			return a[0].EqTo(a[1])
		case pet.OpNe:
			return a[0].Ne(a[1])
		case pet.OpLt:
			return a[0].Lt(a[1])
		case pet.OpLe:
			return a[0].Le(a[1])
		case pet.OpGt:
			return a[0].Gt(a[1])
		}
		return a[0].Ge(a[1])
	case pet.OpLand:
		a := args(2)
		return affine.And(a[0], a[1])
	case pet.OpLor:
		a := args(2)
		return affine.Or(a[0], a[1])
	case pet.OpLnot:
		return affine.Not(args(1)[0])
	case pet.OpCond:
		a := args(3)
		return affine.Select(a[0], a[1], a[2])
	}
	return affine.NaN()
}

func (ev *evaluator) cast(c *pet.Cast) affine.PwAff {
	if !ctypes.IsInteger(c.To) || !ctypes.IsInteger(c.Arg.CType()) {
		return affine.NaN()
	}
	v := ev.expr(c.Arg)
	if ctypes.IsSigned(c.To) && ctypes.Width(c.To) < ctypes.Width(c.Arg.CType()) {
		if !ev.b.inRange(ev.ctx, v, c.To) {
			return affine.NaN()
		}
		return v
	}
	return ev.wrap(v, c.To)
}

func (ev *evaluator) call(c *pet.Call) affine.PwAff {
	if len(c.Args) != 2 {
		return affine.NaN()
	}
	a, b := ev.expr(c.Args[0]), ev.expr(c.Args[1])
	switch c.Name {
	case "min":
		return a.Min(b)
	case "max":
		return a.Max(b)
	case "floord", "intFloor":
		if d, ok := b.Const(); ok && d > 0 {
			return a.FloorDiv(d)
		}
	case "ceild", "intCeil":
		if d, ok := b.Const(); ok && d > 0 {
			return a.Neg().FloorDiv(d).Neg()
		}
	case "intMod":
		if d, ok := b.Const(); ok && d > 0 {
			return a.Sub(a.FloorDiv(d).Scale(d))
		}
	}
	return affine.NaN()
}

// wrap reduces v modulo the range of the unsigned type t, unless v is
// known to stay within that range.
func (ev *evaluator) wrap(v affine.PwAff, t ctypes.Type) affine.PwAff {
	if v.IsNaN() || t == nil || !ctypes.IsInteger(t) || ctypes.IsSigned(t) {
		return v
	}
	if ev.b.inRange(ev.ctx, v, t) {
		return v
	}
	return v.ModWidth(ctypes.Width(t))
}

// inRange reports whether v is representable in t on the whole domain of
// ctx.
func (b *builder) inRange(ctx *Context, v affine.PwAff, t ctypes.Type) bool {
	lo, hi, ok := typeRange(t)
	if !ok {
		return true
	}
	dom := ctx.dom.Intersect(b.paramBounds)
	for _, pc := range v.Pieces() {
		d := dom.Intersect(pc.Dom)
		if !d.AddConstraint(affine.LtOf(pc.Val, affine.Const(lo))).IsEmpty() {
			return false
		}
		if !d.AddConstraint(affine.GtOf(pc.Val, affine.Const(hi))).IsEmpty() {
			return false
		}
	}
	return true
}

// typeRange returns the bounds of the integer type t. Types of 64 bits
// are not bounded.
func typeRange(t ctypes.Type) (lo, hi int64, ok bool) {
	if !ctypes.IsInteger(t) {
		return 0, 0, false
	}
	w := ctypes.Width(t)
	if w >= 63 {
		return 0, 0, false
	}
	if ctypes.IsSigned(t) {
		return -(1 << uint(w-1)), 1<<uint(w-1) - 1, true
	}
	return 0, 1<<uint(w) - 1, true
}

// param returns the value of the integer scalar id that is not modified
// in the scop, recording its type bounds.
func (b *builder) param(id *pet.ID) affine.PwAff {
	if _, ok := b.params[id.Name]; !ok {
		b.params[id.Name] = id
		if lo, hi, ok := typeRange(id.Type); ok {
			p := affine.Var(id.Name)
			b.paramBounds = b.paramBounds.AddConstraint(
				affine.GeOf(p, affine.Const(lo)), affine.LeOf(p, affine.Const(hi)))
		}
	}
	return affine.FromVar(id.Name)
}
