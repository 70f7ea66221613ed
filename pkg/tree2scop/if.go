package tree2scop

import (
	"fmt"

	"github.com/raymyers/ralph-pet/pkg/affine"
	"github.com/raymyers/ralph-pet/pkg/pet"
	"github.com/raymyers/ralph-pet/pkg/scop"
)

// ifStmt builds an if statement. An affine condition splits the domain
// between the branches. Otherwise the condition is either expressed in
// terms of the values it reads, or evaluated into a virtual array that
// filters the branches.
func (b *builder) ifStmt(ctx *Context, t *pet.If) (*result, error) {
	if b.opts.DetectConditionalAssignment {
		if e, ok := b.conditionalAssignment(ctx, t); ok {
			return b.exprStmt(ctx, &pet.ExprStmt{Node: t.Node, Expr: e})
		}
	}
	if c, ok := b.evalCond(ctx.AllowNested(false), t.Cond); ok {
		return b.branches(ctx.Restrict(c.set), ctx.Restrict(c.set.Complement()), t, nil)
	}
	if ctx.nested && !pet.HasJump(t.Then) && !pet.HasJump(t.Else) {
		if c, ok := b.evalCond(ctx, t.Cond); ok && !writesAny(t, c.args) {
			return b.branches(ctx, ctx, t, &c)
		}
	}

	test := b.virtualID(fmt.Sprintf("__pet_test_%d", b.tests), ctx)
	b.tests++
	st := b.assignVirtual(ctx, test, truth(t.Cond), t.Loc)
	pre := emptyResult()
	pre.stmts = []*scop.Stmt{st}
	pre.sched = scop.LeafOf(st.Name)
	cur, index := b.virtualAccess(test, ctx, 0)
	c := cond{
		args: []filter{{acc: cur, index: index}},
		set:  affine.FromConstraints("", nil, affine.EqOf(affine.Var(nestedVar(0)), affine.Const(1))),
	}
	res, err := b.branches(ctx, ctx, t, &c)
	if err != nil {
		return nil, err
	}
	return pre.seq(res), nil
}

// branches builds the branches of t in their contexts. If c is not nil,
// the then branch is filtered by c and the else branch by its negation.
func (b *builder) branches(thenCtx, elseCtx *Context, t *pet.If, c *cond) (*result, error) {
	res, err := b.tree(thenCtx, t.Then)
	if err != nil {
		return nil, err
	}
	if c != nil {
		b.filter(res, *c)
	}
	if t.Else == nil {
		return res, nil
	}
	els, err := b.tree(elseCtx, t.Else)
	if err != nil {
		return nil, err
	}
	if c != nil {
		b.filter(els, c.negate())
	}
	return res.par(els), nil
}

func writesAny(t *pet.If, args []filter) bool {
	writes := append(pet.Writes(t.Then), pet.Writes(t.Else)...)
	for _, f := range args {
		if containsID(writes, f.acc.ID) {
			return true
		}
	}
	return false
}

// conditionalAssignment recognizes
//
//	if (c) x = a; else x = b;
//
// with a condition that is not affine and returns x = c ? a : b.
func (b *builder) conditionalAssignment(ctx *Context, t *pet.If) (pet.Expr, bool) {
	if t.Else == nil {
		return nil, false
	}
	lt, vt, ok := singleAssignment(t.Then)
	if !ok {
		return nil, false
	}
	le, ve, ok := singleAssignment(t.Else)
	if !ok || lt.ID != le.ID || pet.FormatExpr(lt) != pet.FormatExpr(le) {
		return nil, false
	}
	if _, affine := b.evalCond(ctx.AllowNested(false), t.Cond); affine {
		return nil, false
	}
	for _, a := range pet.Accesses(t.Cond) {
		if a.ID == lt.ID {
			return nil, false
		}
	}
	val := &pet.Op{Kind: pet.OpCond, Args: []pet.Expr{t.Cond, vt, ve}, Type: lt.Type}
	return pet.NewOp(pet.OpAssign, lt, val), true
}

func singleAssignment(t pet.Tree) (*pet.Access, pet.Expr, bool) {
	if blk, ok := t.(*pet.Block); ok && len(blk.Children) == 1 {
		t = blk.Children[0]
	}
	es, ok := t.(*pet.ExprStmt)
	if !ok {
		return nil, nil, false
	}
	return pet.Assignment(es.Expr)
}
