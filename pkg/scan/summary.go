package scan

import (
	mapset "github.com/deckarep/golang-set"
	"github.com/raymyers/ralph-pet/pkg/affine"
	"github.com/raymyers/ralph-pet/pkg/cabs"
	"github.com/raymyers/ralph-pet/pkg/ctypes"
	"github.com/raymyers/ralph-pet/pkg/pet"
	"github.com/raymyers/ralph-pet/pkg/tree2scop"
)

// summary returns the summary of the accesses performed by the function
// name through its arguments, or nil if it cannot be computed. With
// pencil support enabled, a pencil_access attribute names a function
// whose summary is used instead.
func (s *Scanner) summary(name string) *pet.FunctionSummary {
	if v, ok := s.summaries.Get(name); ok {
		return v.(*pet.FunctionSummary)
	}
	fn, ok := s.funcs[name]
	if !ok {
		return nil
	}
	if attr, ok := fn.Attr("pencil_access"); ok && s.opts.Pencil && len(attr.Args) == 1 {
		if target, ok := s.funcs[attr.Args[0]]; ok && target.Name != name {
			fn = target
		}
	}
	var sum *pet.FunctionSummary
	if fn.Body != nil {
		sum = s.computeSummary(fn)
		if sum != nil {
			sum.Name = name
		}
	}
	s.summaries.Add(name, sum)
	return sum
}

// computeSummary extracts the body of fn as a scop of its own and
// collects, for each array argument, the elements it reads and writes.
func (s *Scanner) computeSummary(fn cabs.FunDef) *pet.FunctionSummary {
	for _, active := range s.inlining {
		if active == fn.Name {
			return nil
		}
	}
	inner := *s
	inner.reporter = nil
	inner.call2id = map[cabs.Span]*pet.ID{}
	inner.inlining = append(append([]string(nil), s.inlining...), fn.Name)
	inner.enterFunction(fn)
	inner.region = region{}
	formals := make([]*pet.ID, len(fn.Params))
	for k, p := range fn.Params {
		formals[k] = inner.scopes[1][p.Name]
	}
	res, err := inner.extractBlock(fn.Body, true)
	if err != nil || res.Tree == nil {
		return nil
	}
	sc, err := tree2scop.Build(res.Tree, tree2scop.Options{})
	if err != nil {
		return nil
	}

	sum := &pet.FunctionSummary{Name: fn.Name, Args: make([]pet.SummaryArg, len(formals))}
	ints := mapset.NewThreadUnsafeSet()
	for k, id := range formals {
		if id != nil && ctypes.IsInteger(id.Type) {
			sum.Args[k].Kind = pet.ArgInt
			ints.Add(id.Name)
		}
	}
	for k, id := range formals {
		if id == nil || !(ctypes.IsArray(id.Type) || ctypes.IsPointer(id.Type)) {
			continue
		}
		rank := id.Rank()
		dims := make([]string, rank)
		for i := range dims {
			dims[i] = affine.OutDim(i)
		}
		arg := pet.SummaryArg{
			Kind:      pet.ArgArray,
			MayRead:   affine.Empty("", dims...),
			MayWrite:  affine.Empty("", dims...),
			MustWrite: affine.Empty("", dims...),
		}
		for _, st := range sc.Stmts {
			for _, acc := range st.Accesses {
				if acc.ID == nil || acc.ID != id || acc.Kill {
					continue
				}
				elems := acc.Index.Range().WithName("")
				if acc.Read {
					arg.MayRead = arg.MayRead.Union(elems)
				}
				if acc.Write || acc.MayWrite {
					arg.MayWrite = arg.MayWrite.Union(elems)
				}
				if acc.Write && acc.Exact {
					arg.MustWrite = arg.MustWrite.Union(elems)
				}
			}
		}
		arg.MayRead = summarySet(arg.MayRead, formals, ints, false)
		arg.MayWrite = summarySet(arg.MayWrite, formals, ints, false)
		arg.MustWrite = summarySet(arg.MustWrite, formals, ints, true)
		sum.Args[k] = arg
	}
	return sum
}

// summarySet expresses s in terms of the integer arguments of the
// function. Other parameters are projected out; for a must-write set,
// which would then over-approximate, the result is empty instead.
func summarySet(s affine.Set, formals []*pet.ID, ints mapset.Set, must bool) affine.Set {
	for _, p := range s.ParamNames() {
		if ints.Contains(p) {
			continue
		}
		if must {
			return affine.Empty("", s.Dims()...)
		}
		s = s.Project(p)
	}
	for k, id := range formals {
		if id != nil && ints.Contains(id.Name) {
			s = s.Rename(id.Name, pet.ParamName(k))
		}
	}
	return s.Coalesce()
}
