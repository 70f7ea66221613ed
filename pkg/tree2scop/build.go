// Package tree2scop converts a pet tree into a scop. The tree is walked
// top-down with a Context holding the domain of the enclosing loops and
// the affine values of integer scalars; every statement of the tree
// becomes a scop statement whose domain is that of its context,
// restricted by the conditions that guard it.
package tree2scop

import (
	"github.com/raymyers/ralph-pet/pkg/affine"
	"github.com/raymyers/ralph-pet/pkg/cabs"
	"github.com/raymyers/ralph-pet/pkg/ctypes"
	"github.com/raymyers/ralph-pet/pkg/diag"
	"github.com/raymyers/ralph-pet/pkg/pet"
	"github.com/raymyers/ralph-pet/pkg/scop"
)

// Options control the construction.
type Options struct {
	// EncapsulateDynamicControl turns subtrees with data dependent
	// control into single statements.
	EncapsulateDynamicControl bool
	// DetectConditionalAssignment turns if statements assigning the same
	// variable in both branches into a single assignment.
	DetectConditionalAssignment bool
}

type builder struct {
	opts Options

	notParam    map[*pet.ID]bool
	params      map[string]*pet.ID
	paramBounds affine.Set
	dims        map[string]*pet.ID
	virtuals    []*pet.ID

	stmtCount int
	refs      int
	tests     int
	skips     int
	loops     int
}

// Build constructs the scop of t.
func Build(t pet.Tree, opts Options) (*scop.Scop, error) {
	return BuildIn(NewContext(), t, opts)
}

// BuildIn constructs the scop of t in the context ctx.
func BuildIn(ctx *Context, t pet.Tree, opts Options) (*scop.Scop, error) {
	b := &builder{
		opts:        opts,
		notParam:    map[*pet.ID]bool{},
		params:      map[string]*pet.ID{},
		paramBounds: affine.Universe(""),
		dims:        map[string]*pet.ID{},
	}
	for _, id := range pet.Writes(t) {
		b.notParam[id] = true
	}
	for _, id := range pet.Declarations(t) {
		b.notParam[id] = true
	}
	res, err := b.tree(ctx, t)
	if err != nil {
		return nil, err
	}
	return b.finish(t, res)
}

func (b *builder) finish(t pet.Tree, res *result) (*scop.Scop, error) {
	s := &scop.Scop{
		Loc:           pet.LocOf(t),
		Context:       res.context.Intersect(b.paramBounds).WithName("").WithDims(),
		Schedule:      res.sched,
		Stmts:         res.stmts,
		Implications:  res.implications,
		Independences: res.independences,
	}
	for _, st := range s.Stmts {
		for _, p := range st.Domain.ParamNames() {
			if len(p) > 1 && p[:2] == "$n" {
				return nil, diag.Internalf("unresolved nested value %s in %s", p, st.Name)
			}
		}
		for _, acc := range st.Accesses {
			acc.SetDomain(st.Domain)
		}
	}
	seen := map[*pet.ID]bool{}
	for _, a := range res.arrays {
		if prev := s.ArrayByID(a.ID); prev != nil {
			prev.Exposed = prev.Exposed || a.Exposed
			continue
		}
		seen[a.ID] = true
		s.Arrays = append(s.Arrays, a)
	}
	for _, id := range b.virtuals {
		if seen[id] {
			continue
		}
		seen[id] = true
		s.Arrays = append(s.Arrays, &scop.Array{
			ID:          id,
			Name:        id.Name,
			ElementType: "int",
			ElementSize: 4,
			Rank:        id.Rank(),
			ValueBounds: affine.FromConstraints("", []string{"$v"},
				affine.Ge(affine.Var("$v")), affine.LeOf(affine.Var("$v"), affine.Const(1))),
		})
	}
	return s, nil
}

func spanOf(loc pet.Loc) cabs.Span {
	return cabs.Span{Start: loc.Start, End: loc.End, Line: loc.Line, Column: len(loc.Indent) + 1, EndLine: loc.Line}
}

func (b *builder) tree(ctx *Context, t pet.Tree) (*result, error) {
	var (
		res *result
		err error
	)
	saved := b.save()
	switch x := t.(type) {
	case *pet.Block:
		res, err = b.block(ctx, x)
	case *pet.ExprStmt:
		return b.exprStmt(ctx, x)
	case *pet.Decl:
		return b.decl(ctx, x), nil
	case *pet.For:
		res, err = b.forLoop(ctx, x)
	case *pet.While:
		res, err = b.whileLoop(ctx, x.Cond, x.Body, nil, x.Loc)
	case *pet.InfiniteLoop:
		res, err = b.whileLoop(ctx, pet.NewInt(1), x.Body, nil, x.Loc)
	case *pet.If:
		res, err = b.ifStmt(ctx, x)
	case *pet.Break:
		return b.jump(ctx, true), nil
	case *pet.Continue:
		return b.jump(ctx, false), nil
	case *pet.Return:
		return nil, diag.Unsupportedf(spanOf(x.Loc), "return statement outside of an inlined function")
	default:
		return nil, diag.Internalf("unexpected tree %T", t)
	}
	if err != nil {
		return nil, err
	}
	if b.opts.EncapsulateDynamicControl && res.dynamic() && !res.virtualSkips() {
		b.restore(saved)
		return b.encapsulate(ctx, t), nil
	}
	return res, nil
}

// jump returns the skip conditions of a break or continue.
func (b *builder) jump(ctx *Context, isBreak bool) *result {
	res := emptyResult()
	all := cond{set: ctx.dom}
	res.skipNow = []cond{all}
	if isBreak {
		res.skipLater = []cond{all}
	}
	return res
}

// block builds the children of t in sequence. The skip conditions of a
// child restrict its later siblings and affine assignments to integer
// scalars are propagated to them.
func (b *builder) block(ctx *Context, t *pet.Block) (*result, error) {
	res := emptyResult()
	entry := ctx
	var guards []cond
	var decls []*pet.Decl
	for _, child := range t.Children {
		cctx := ctx
		res1, err := b.tree(cctx, child)
		if err != nil {
			return nil, err
		}
		for _, g := range guards {
			b.filter(res1, g)
		}
		res = res.seq(res1)
		for _, s := range res1.skipNow {
			neg := s.negate()
			if neg.affine() {
				ctx = ctx.Restrict(neg.set)
			} else {
				guards = append(guards, neg)
			}
		}
		written := pet.Writes(child)
		ctx = ctx.Clear(written)
		if len(guards) == 0 {
			ctx = b.handleAssignment(cctx, ctx, child)
		}
		if d, ok := child.(*pet.Decl); ok {
			decls = append(decls, d)
		}
	}
	for _, d := range decls {
		if t.Scope {
			res = res.seq(b.killStmt(entry, d.Var, t.Loc))
			continue
		}
		res.arrays = append(res.arrays, b.declaredArray(d.Var.ID, true))
	}
	// A skip condition of a statement only concerns the rest of the block
	// and the enclosing loop; it stays in the result for the loop.
	return res, nil
}

// handleAssignment binds the variable assigned by t if the assigned
// value is affine in the context before t.
func (b *builder) handleAssignment(before, after *Context, t pet.Tree) *Context {
	var (
		lhs *pet.Access
		rhs pet.Expr
	)
	switch x := t.(type) {
	case *pet.ExprStmt:
		a, v, ok := pet.Assignment(x.Expr)
		if !ok {
			return after
		}
		lhs, rhs = a, v
	case *pet.Decl:
		if x.Init == nil {
			return after
		}
		lhs, rhs = x.Var, x.Init
	default:
		return after
	}
	if !lhs.IsScalar() || !ctypes.IsInteger(lhs.Type) {
		return after
	}
	v := b.eval(before, rhs)
	if v.IsNaN() {
		return after
	}
	v = (&evaluator{b: b, ctx: before}).wrap(v, lhs.Type)
	return after.Bind(lhs.ID, v)
}

func (b *builder) exprStmt(ctx *Context, t *pet.ExprStmt) (*result, error) {
	res := emptyResult()
	if pet.IsKill(t.Expr) {
		for _, arg := range t.Expr.(*pet.Call).Args {
			if op, ok := arg.(*pet.Op); ok && op.Kind == pet.OpAddrOf {
				arg = op.Args[0]
			}
			a, ok := arg.(*pet.Access)
			if !ok {
				continue
			}
			if k := b.killOf(ctx, a, t.Loc); k != nil {
				res = res.seq(k)
			}
		}
		return res, nil
	}
	if op, ok := t.Expr.(*pet.Op); ok && op.Kind == pet.OpAssume && len(op.Args) == 1 {
		c, ok := b.evalCond(ctx.AllowNested(false), op.Args[0])
		if ok && !involvesAny(c.set, ctx.Iterators()) {
			res.context = c.set.WithName("").WithDims()
		}
	}
	st := b.newStmt(ctx, t)
	res.stmts = []*scop.Stmt{st}
	res.sched = scop.LeafOf(st.Name)
	return res, nil
}

func involvesAny(s affine.Set, vars []string) bool {
	for _, v := range vars {
		if s.Involves(v) {
			return true
		}
	}
	return false
}

// decl kills the declared variable and assigns its initial value.
func (b *builder) decl(ctx *Context, d *pet.Decl) *result {
	res := b.killStmt(ctx, d.Var, d.Loc)
	if d.Init != nil {
		e := pet.NewOp(pet.OpAssign, d.Var.MarkWrite(), d.Init)
		st := b.exprStmtOf(ctx, e, d.Loc, d.Label)
		init := emptyResult()
		init.stmts = []*scop.Stmt{st}
		init.sched = scop.LeafOf(st.Name)
		res = res.seq(init)
	}
	return res
}

// killStmt creates the statement killing all of v.
func (b *builder) killStmt(ctx *Context, v *pet.Access, loc pet.Loc) *result {
	kill := v.Copy()
	kill.Args = nil
	kill.Type = kill.ID.Type
	res := emptyResult()
	st := b.exprStmtOf(ctx, pet.NewOp(pet.OpKill, kill.MarkKill()), loc, "")
	res.stmts = []*scop.Stmt{st}
	res.sched = scop.LeafOf(st.Name)
	res.arrays = []*scop.Array{b.declaredArray(v.ID, false)}
	return res
}

// killOf creates the statement killing the elements accessed by a. No
// statement is created if they cannot be determined exactly.
func (b *builder) killOf(ctx *Context, a *pet.Access, loc pet.Loc) *result {
	for _, arg := range a.Args {
		if b.eval(ctx, arg).IsNaN() {
			return nil
		}
	}
	res := emptyResult()
	st := b.exprStmtOf(ctx, pet.NewOp(pet.OpKill, a.MarkKill()), loc, "")
	res.stmts = []*scop.Stmt{st}
	res.sched = scop.LeafOf(st.Name)
	return res
}

func (b *builder) declaredArray(id *pet.ID, exposed bool) *scop.Array {
	return &scop.Array{ID: id, Name: id.Name, Rank: id.Rank(), Declared: true, Exposed: exposed}
}
