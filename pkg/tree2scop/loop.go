package tree2scop

import (
	"fmt"

	"github.com/raymyers/ralph-pet/pkg/affine"
	"github.com/raymyers/ralph-pet/pkg/ctypes"
	"github.com/raymyers/ralph-pet/pkg/pet"
	"github.com/raymyers/ralph-pet/pkg/scop"
)

func containsID(ids []*pet.ID, id *pet.ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// freshDim returns name, primed until it differs from the enclosing
// iterators and the parameters.
func (b *builder) freshDim(ctx *Context, name string) string {
	iters := ctx.Iterators()
	for containsName(iters, name) || b.params[name] != nil {
		name += "'"
	}
	return name
}

func (b *builder) forLoop(ctx *Context, f *pet.For) (*result, error) {
	iv := f.Iv.ID
	init := b.eval(ctx, f.Init)
	step, ok := b.eval(ctx, f.Inc).Const()
	if init.IsNaN() || !ok || step == 0 || !ctypes.IsInteger(iv.Type) ||
		!f.Iv.IsScalar() || containsID(pet.Writes(f.Body), iv) {
		return b.nonAffineFor(ctx, f)
	}
	d := b.freshDim(ctx, iv.Name)
	lctx, ok := b.forDomain(ctx, f, init, step, d, false)
	if !ok {
		return b.nonAffineFor(ctx, f)
	}
	wrapped := false
	if !ctypes.IsSigned(iv.Type) {
		dom := lctx.dom.Intersect(b.paramBounds)
		switch w := ctypes.Width(iv.Type); {
		case w >= 63:
			if mayWrapWide(dom, d, step) {
				return b.nonAffineFor(ctx, f)
			}
		case mayWrap(dom, d, step, w):
			lctx, ok = b.forDomain(ctx, f, init, step, d, true)
			if !ok {
				return b.nonAffineFor(ctx, f)
			}
			wrapped = true
		}
	}
	res, err := b.tree(lctx, f.Body)
	if err != nil {
		return nil, err
	}
	res = b.applyBreaks(res, lctx, d, init, step)
	if !wrapped {
		res.context = res.context.Intersect(b.validIncrement(lctx, d, step, iv.Type))
	}
	if f.Independent {
		ind := scop.Independence{Iter: d, Stmts: res.sched.Statements()}
		for _, id := range pet.Declarations(f.Body) {
			ind.Local = append(ind.Local, id.Name)
		}
		res.independences = append(res.independences, ind)
	}
	res.sched = scop.BandOf(d, res.sched)
	res.skipNow, res.skipLater = nil, nil
	return res, nil
}

// forDomain returns the context of the body of an affine for loop with
// iterator dim d. If wrap is set, d counts without wrapping and the
// iterator is its value modulo the range of its type.
func (b *builder) forDomain(ctx *Context, f *pet.For, init affine.PwAff, step int64, d string, wrap bool) (*Context, bool) {
	outer := ctx.dom.AddDims(d)
	dims := outer.Dims()
	base := affine.Empty("", dims...)
	for _, pc := range init.Pieces() {
		diff := affine.Var(d).Sub(pc.Val)
		bound := affine.Ge(diff)
		if step < 0 {
			bound = affine.Ge(diff.Neg())
		}
		abs := step
		if abs < 0 {
			abs = -abs
		}
		base = base.Union(outer.Intersect(pc.Dom).AddConstraint(bound, affine.Dvd(diff, abs)))
	}
	base = base.WithDims(dims...)
	val := affine.FromVar(d)
	if wrap {
		val = affine.FromAff(affine.Mod(affine.Var(d), 1<<uint(ctypes.Width(f.Iv.ID.Type))))
	}
	lctx := ctx.AddDim(d, f.Iv.ID, val).Clear(pet.Writes(f.Body)).WithDomain(base)
	c, ok := b.evalCond(lctx.AllowNested(false), f.Cond)
	if !ok {
		return nil, false
	}
	var dom affine.Set
	switch {
	case wrap:
		if start, n, ok := wrappedTripCount(init, step, ctypes.Width(f.Iv.ID.Type), c.set, d); ok {
			dom = countedDomain(base, d, start, step, n)
		} else {
			dom = validForEachIteration(base, c.set, d, step)
		}
	case isSimpleBound(c.set.Gist(base), d, step):
		dom = base.Intersect(c.set)
	default:
		dom = validForEachIteration(base, c.set, d, step)
	}
	return lctx.WithDomain(dom.WithDims(dims...)), true
}

// mayWrap reports whether an unsigned iterator of width w running over
// dom with the given step takes a value outside the range of its type,
// either in an iteration or in the increment after one.
func mayWrap(dom affine.Set, d string, step int64, w int) bool {
	v := affine.Var(d)
	hi := affine.Const(1<<uint(w) - 1)
	for _, val := range []affine.Aff{v, v.AddConst(step)} {
		if !dom.AddConstraint(affine.GtOf(val, hi)).IsEmpty() ||
			!dom.AddConstraint(affine.LtOf(val, affine.Const(0))).IsEmpty() {
			return true
		}
	}
	return false
}

// mayWrapWide is mayWrap for 64-bit unsigned iterators, whose upper end
// cannot be represented. Only unit increments that never drop below
// zero are accepted.
func mayWrapWide(dom affine.Set, d string, step int64) bool {
	if step != 1 && step != -1 {
		return true
	}
	v := affine.Var(d)
	return !dom.AddConstraint(affine.LtOf(v, affine.Const(0))).IsEmpty() ||
		!dom.AddConstraint(affine.LtOf(v.AddConst(step), affine.Const(0))).IsEmpty()
}

// maxTripSteps bounds the number of iterations wrappedTripCount runs.
const maxTripSteps = 1 << 16

// wrappedTripCount runs a loop with a constant start and a condition that
// only depends on its own iterator d, counting the iterations until cond
// fails. A negative count means the loop never stops. The boolean result
// is false if the loop does not have this shape or does not stop within
// maxTripSteps iterations.
func wrappedTripCount(init affine.PwAff, step int64, w int, cond affine.Set, d string) (start, n int64, ok bool) {
	start, ok = init.Const()
	if !ok || w >= 63 {
		return 0, 0, false
	}
	for _, v := range cond.Vars() {
		if v != d {
			return 0, 0, false
		}
	}
	limit := int64(maxTripSteps)
	// the wrapped values repeat after 2^w increments
	cycle := w <= 16
	if cycle {
		limit = 1 << uint(w)
	}
	v := start
	for n = 0; n < limit; n++ {
		if !cond.Contains(map[string]int64{d: v}) {
			return start, n, true
		}
		v += step
	}
	if cycle {
		return start, -1, true
	}
	return 0, 0, false
}

// countedDomain restricts base to the first n values of d, starting at
// start and moving by step. A negative n keeps every value.
func countedDomain(base affine.Set, d string, start, step, n int64) affine.Set {
	switch {
	case n < 0:
		return base
	case n == 0:
		return affine.Empty("", base.Dims()...)
	}
	last := affine.Const(start + step*(n-1))
	if step > 0 {
		return base.AddConstraint(affine.LeOf(affine.Var(d), last))
	}
	return base.AddConstraint(affine.GeOf(affine.Var(d), last))
}

// isSimpleBound reports whether cond, a condition on the loop iterator d
// incremented by step, only bounds d in the direction of the increment,
// so that it holds for every earlier iteration whenever it holds.
func isSimpleBound(cond affine.Set, d string, step int64) bool {
	parts := cond.Constraints()
	if len(parts) > 1 {
		return false
	}
	for _, p := range parts {
		for _, c := range p {
			if !c.Aff.Involves(d) {
				continue
			}
			if c.Kind != affine.GE {
				return false
			}
			coef := c.Aff.Coef(d)
			if c.Aff.Sub(affine.Var(d).Scale(coef)).Involves(d) {
				return false
			}
			if (step > 0 && coef > 0) || (step < 0 && coef < 0) {
				return false
			}
		}
	}
	return true
}

// validForEachIteration returns the iterations of base for which cond
// holds at that iteration and at every earlier one.
func validForEachIteration(base, cond affine.Set, d string, step int64) affine.Set {
	prime := d + "'"
	order := affine.LeOf(affine.Var(prime), affine.Var(d))
	if step < 0 {
		order = affine.GeOf(affine.Var(prime), affine.Var(d))
	}
	failing := base.Rename(d, prime).Intersect(cond.Rename(d, prime).Complement())
	bad := failing.AddConstraint(order).Project(prime)
	return base.Subtract(bad).Intersect(cond).WithDims(base.Dims()...)
}

// validIncrement returns the parameter values for which incrementing the
// signed iterator past the last iteration does not overflow.
func (b *builder) validIncrement(lctx *Context, d string, step int64, t ctypes.Type) affine.Set {
	lo, hi, ok := typeRange(t)
	if !ok || !ctypes.IsSigned(t) {
		return affine.Universe("")
	}
	next := affine.Var(d).AddConst(step)
	dom := lctx.dom.Intersect(b.paramBounds)
	bad := dom.AddConstraint(affine.GtOf(next, affine.Const(hi))).
		Union(dom.AddConstraint(affine.LtOf(next, affine.Const(lo))))
	bad = bad.Project(lctx.Iterators()...).WithName("").WithDims()
	if bad.IsEmpty() {
		return affine.Universe("")
	}
	return bad.Complement()
}

// applyBreaks removes the iterations that follow a break of an earlier
// iteration. lctx is the context of the loop body, d the loop dim.
func (b *builder) applyBreaks(res *result, lctx *Context, d string, init affine.PwAff, step int64) *result {
	if len(res.skipLater) == 0 {
		return res
	}
	allAffine := true
	for _, s := range res.skipLater {
		allAffine = allAffine && s.affine()
	}
	if allAffine {
		broken := affine.Empty("", lctx.Iterators()...)
		for _, s := range res.skipLater {
			broken = broken.Union(s.set)
		}
		prime := d + "'"
		order := affine.LtOf(affine.Var(prime), affine.Var(d))
		if step < 0 {
			order = affine.GtOf(affine.Var(prime), affine.Var(d))
		}
		after := broken.Rename(d, prime).AddConstraint(order).Project(prime)
		res.restrict(after.Complement())
		return res
	}

	parts := append([]cond(nil), res.skipLater...)
	skip := b.virtualID(fmt.Sprintf("__pet_skip_%d", b.skips), lctx)
	b.skips++
	prev, prevIndex := b.virtualAccess(skip, lctx, -step)
	first := affine.Empty("")
	for _, pc := range init.Pieces() {
		first = first.Union(pc.Dom.AddConstraint(affine.EqOf(affine.Var(d), pc.Val)))
	}
	guard := cond{
		args: []filter{{acc: prev, index: prevIndex}},
		set:  first.Union(affine.FromConstraints("", nil, affine.Eq(affine.Var(nestedVar(0))))),
	}
	b.filter(res, guard)
	loc := pet.Loc{}
	if len(res.stmts) > 0 {
		loc = res.stmts[len(res.stmts)-1].Loc
	}
	tail := emptyResult()
	add := func(st *scop.Stmt) {
		tail.stmts = append(tail.stmts, st)
		tail.sched = scop.Seq(tail.sched, scop.LeafOf(st.Name))
	}
	add(b.assignVirtual(lctx.Restrict(first), skip, pet.NewInt(0), loc))
	add(b.assignVirtual(lctx.Restrict(first.Complement()), skip, prev, loc))
	for _, p := range parts {
		st := b.assignVirtual(lctx, skip, pet.NewInt(1), loc)
		b.filterStmt(st, guard)
		b.filterStmt(st, p)
		add(st)
	}
	res = res.seq(tail)
	res.implications = append(res.implications, b.monotone(skip, lctx, d, step > 0))
	return res
}

// monotone returns the implication stating that once an element of v for
// a given iteration is 1, so are the elements of all later iterations.
func (b *builder) monotone(v *pet.ID, lctx *Context, d string, increasing bool) scop.Implication {
	iters := lctx.Iterators()
	var cons []affine.Constraint
	for k, it := range iters {
		out := affine.Var(affine.OutDim(k))
		switch {
		case it != d:
			cons = append(cons, affine.EqOf(out, affine.Var(it)))
		case increasing:
			cons = append(cons, affine.GeOf(out, affine.Var(it)))
		default:
			cons = append(cons, affine.LeOf(out, affine.Var(it)))
		}
	}
	ext := affine.NewMap(affine.Universe(v.Name, iters...), v.Name, len(iters), cons...)
	return scop.Implication{Satisfied: 1, Array: v.Name, Extension: ext}
}

// nonAffineFor handles a for loop as an assignment of the initial value
// followed by a while loop incrementing the iterator after the body.
func (b *builder) nonAffineFor(ctx *Context, f *pet.For) (*result, error) {
	init := b.exprStmtOf(ctx, pet.NewOp(pet.OpAssign, f.Iv.MarkWrite(), f.Init), f.Loc, "")
	res := emptyResult()
	res.stmts = []*scop.Stmt{init}
	res.sched = scop.LeafOf(init.Name)
	inc := &pet.ExprStmt{
		Node: pet.Node{Loc: f.Loc},
		Expr: pet.NewOp(pet.OpAddAssign, f.Iv.MarkReadWrite(), f.Inc),
	}
	loop, err := b.whileLoop(ctx.Clear([]*pet.ID{f.Iv.ID}), f.Cond, f.Body, inc, f.Loc)
	if err != nil {
		return nil, err
	}
	return res.seq(loop), nil
}

// whileLoop handles a loop over a virtual counter t >= 0. An affine
// condition restricts the counter; otherwise each iteration evaluates
// the condition into a virtual array that filters the body. inc, if not
// nil, runs after the body even when the rest of the body is skipped.
func (b *builder) whileLoop(ctx *Context, c pet.Expr, body, inc pet.Tree, loc pet.Loc) (*result, error) {
	t := b.freshDim(ctx, fmt.Sprintf("$t%d", b.loops))
	b.loops++
	writes := pet.Writes(body)
	if inc != nil {
		writes = append(writes, pet.Writes(inc)...)
	}
	lctx := ctx.AddDim(t, nil, affine.NaN()).Clear(writes)
	lctx = lctx.Restrict(affine.FromConstraints("", nil, affine.Ge(affine.Var(t))))

	var pre *result
	var guard *cond
	if cc, ok := b.evalCond(lctx.AllowNested(false), c); ok && !cc.set.Involves(t) {
		lctx = lctx.Restrict(cc.set)
	} else {
		test := b.virtualID(fmt.Sprintf("__pet_test_%d", b.tests), lctx)
		b.tests++
		prev, prevIndex := b.virtualAccess(test, lctx, -1)
		st := b.assignVirtual(lctx, test, truth(c), loc)
		b.filterStmt(st, cond{
			args: []filter{{acc: prev, index: prevIndex}},
			set: affine.FromConstraints("", nil, affine.Eq(affine.Var(t))).Union(
				affine.FromConstraints("", nil, affine.EqOf(affine.Var(nestedVar(0)), affine.Const(1)))),
		})
		pre = emptyResult()
		pre.stmts = []*scop.Stmt{st}
		pre.sched = scop.LeafOf(st.Name)
		pre.implications = []scop.Implication{b.monotone(test, lctx, t, false)}
		cur, curIndex := b.virtualAccess(test, lctx, 0)
		guard = &cond{
			args: []filter{{acc: cur, index: curIndex}},
			set:  affine.FromConstraints("", nil, affine.EqOf(affine.Var(nestedVar(0)), affine.Const(1))),
		}
	}

	res, err := b.tree(lctx, body)
	if err != nil {
		return nil, err
	}
	if inc != nil {
		ires, err := b.tree(lctx, inc)
		if err != nil {
			return nil, err
		}
		for _, s := range res.skipLater {
			b.filter(ires, s.negate())
		}
		later := res.skipLater
		res = res.seq(ires)
		res.skipLater = later
	}
	if guard != nil {
		b.filter(res, *guard)
	}
	if pre != nil {
		later := res.skipLater
		res = pre.seq(res)
		res.skipLater = later
	}
	res = b.applyBreaks(res, lctx, t, affine.FromInt(0), 1)
	res.sched = scop.BandOf(t, res.sched)
	res.skipNow, res.skipLater = nil, nil
	return res, nil
}
