package tree2scop

import (
	"fmt"

	"github.com/raymyers/ralph-pet/pkg/affine"
	"github.com/raymyers/ralph-pet/pkg/pet"
	"github.com/raymyers/ralph-pet/pkg/scop"
)

// filter is a read whose value a condition depends on. In the set of a
// cond, the value of args[k] is the variable nestedVar(k).
type filter struct {
	acc   *pet.Access
	index []affine.PwAff
}

func nestedVar(k int) string { return fmt.Sprintf("$n%d", k) }

// cond is a condition over the iterators and the values of args.
type cond struct {
	args []filter
	set  affine.Set
}

func (c cond) affine() bool { return len(c.args) == 0 }

// negate returns the condition that holds exactly where c does not.
func (c cond) negate() cond {
	return cond{args: c.args, set: c.set.Complement()}
}

// shift renames the value variables of c so that they start at off.
func (c cond) shift(off int) cond {
	if off == 0 {
		return c
	}
	set := c.set
	for k := len(c.args) - 1; k >= 0; k-- {
		set = set.Rename(nestedVar(k), nestedVar(k+off))
	}
	return cond{args: c.args, set: set}
}

// and returns the conjunction of c and o.
func (c cond) and(o cond) cond {
	shifted := o.shift(len(c.args))
	args := append(append([]filter(nil), c.args...), o.args...)
	return cond{args: args, set: c.set.Intersect(shifted.set)}
}

// result is the partial scop built for a subtree.
//
// skipNow and skipLater collect the conditions under which the rest of
// the current iteration, respectively all later iterations, of the
// innermost enclosing loop are skipped.
type result struct {
	stmts         []*scop.Stmt
	sched         *scop.Schedule
	skipNow       []cond
	skipLater     []cond
	context       affine.Set
	implications  []scop.Implication
	independences []scop.Independence
	arrays        []*scop.Array
}

func emptyResult() *result {
	return &result{context: affine.Universe("")}
}

// merge adds the statements of o to r, composing the schedules with
// compose.
func (r *result) merge(o *result, compose func(a, b *scop.Schedule) *scop.Schedule) *result {
	if o == nil {
		return r
	}
	out := &result{
		stmts:         append(append([]*scop.Stmt(nil), r.stmts...), o.stmts...),
		sched:         compose(r.sched, o.sched),
		skipNow:       append(append([]cond(nil), r.skipNow...), o.skipNow...),
		skipLater:     append(append([]cond(nil), r.skipLater...), o.skipLater...),
		context:       r.context.Intersect(o.context),
		implications:  append(append([]scop.Implication(nil), r.implications...), o.implications...),
		independences: append(append([]scop.Independence(nil), r.independences...), o.independences...),
		arrays:        append(append([]*scop.Array(nil), r.arrays...), o.arrays...),
	}
	return out
}

func (r *result) seq(o *result) *result { return r.merge(o, scop.Seq) }
func (r *result) par(o *result) *result { return r.merge(o, scop.Par) }

// dynamic reports whether some statement depends on data dependent
// conditions.
func (r *result) dynamic() bool {
	for _, st := range r.stmts {
		if len(st.Args) > 0 {
			return true
		}
	}
	return false
}

// virtualSkips reports whether a skip condition depends on data.
func (r *result) virtualSkips() bool {
	for _, list := range [][]cond{r.skipNow, r.skipLater} {
		for _, c := range list {
			if !c.affine() {
				return true
			}
		}
	}
	return false
}

// restrict intersects every statement domain with the affine set s.
func (r *result) restrict(s affine.Set) {
	for _, st := range r.stmts {
		st.Domain = st.Domain.Intersect(s).WithDims(st.Domain.Dims()...)
	}
	for i, c := range r.skipNow {
		r.skipNow[i] = cond{args: c.args, set: c.set.Intersect(s)}
	}
	for i, c := range r.skipLater {
		r.skipLater[i] = cond{args: c.args, set: c.set.Intersect(s)}
	}
}

// filter restricts r to the executions where c holds.
func (b *builder) filter(r *result, c cond) {
	if c.affine() {
		r.restrict(c.set)
		return
	}
	for _, st := range r.stmts {
		b.filterStmt(st, c)
	}
	for i, s := range r.skipNow {
		r.skipNow[i] = s.and(c)
	}
	for i, s := range r.skipLater {
		r.skipLater[i] = s.and(c)
	}
}

// filterStmt adds the arguments of c to st and restricts its domain to
// the executions where c holds.
func (b *builder) filterStmt(st *scop.Stmt, c cond) {
	off := len(st.Args)
	set := c.set
	var dims []string
	for k := range c.args {
		set = set.Rename(nestedVar(k), scop.ArgDim(off+k))
		dims = append(dims, scop.ArgDim(off+k))
	}
	for _, f := range c.args {
		acc := f.acc.MarkRead()
		acc.RefID = b.nextRef()
		st.Args = append(st.Args, acc)
		st.Accesses = append(st.Accesses, &scop.Access{
			Ref:        acc.RefID,
			ID:         acc.ID,
			Subscripts: f.index,
			Read:       true,
			Exact:      exact(f.index),
		})
	}
	all := append(st.Domain.Dims(), dims...)
	st.Domain = st.Domain.AddDims(dims...).Intersect(set).WithDims(all...)
}

func exact(index []affine.PwAff) bool {
	for _, ix := range index {
		if ix.IsNaN() {
			return false
		}
	}
	return true
}
