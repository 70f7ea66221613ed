package tree2scop

import (
	"github.com/raymyers/ralph-pet/pkg/pet"
	"github.com/raymyers/ralph-pet/pkg/scop"
)

type counters struct {
	stmts, refs, tests, skips, loops, virtuals int
}

func (b *builder) save() counters {
	return counters{b.stmtCount, b.refs, b.tests, b.skips, b.loops, len(b.virtuals)}
}

func (b *builder) restore(c counters) {
	b.stmtCount, b.refs, b.tests, b.skips, b.loops = c.stmts, c.refs, c.tests, c.skips, c.loops
	b.virtuals = b.virtuals[:c.virtuals]
}

// encapsulate turns t into a single statement executed for each point of
// the domain of ctx. Writes inside t may not happen, so they become may
// writes; variables declared inside t are killed after it.
func (b *builder) encapsulate(ctx *Context, t pet.Tree) *result {
	st := b.newStmt(ctx, t)
	for _, acc := range st.Accesses {
		if acc.Write {
			acc.Write, acc.MayWrite = false, true
		}
	}
	res := emptyResult()
	res.stmts = []*scop.Stmt{st}
	res.sched = scop.LeafOf(st.Name)
	for _, id := range pet.Declarations(t) {
		res = res.seq(b.killStmt(ctx, pet.NewAccess(id), pet.LocOf(t)))
	}
	return res
}
