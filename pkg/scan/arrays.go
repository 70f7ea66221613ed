package scan

import (
	"sort"

	"github.com/raymyers/ralph-pet/pkg/affine"
	"github.com/raymyers/ralph-pet/pkg/cabs"
	"github.com/raymyers/ralph-pet/pkg/ctypes"
	"github.com/raymyers/ralph-pet/pkg/pet"
	"github.com/raymyers/ralph-pet/pkg/scop"
)

// scanArrays adds the variables accessed by sc that it does not declare
// and fills in the extent and element type of every array from the
// declarations seen by the scanner.
func (s *Scanner) scanArrays(sc *scop.Scop) {
	add := func(id *pet.ID) {
		for ; id != nil; id = id.Parent {
			if sc.ArrayByID(id) != nil {
				return
			}
			sc.Arrays = append(sc.Arrays, &scop.Array{ID: id, Name: id.Name, Rank: id.Rank()})
		}
	}
	for _, st := range sc.Stmts {
		for _, acc := range st.Accesses {
			if acc.ID == nil || acc.ID.Virtual {
				continue
			}
			add(acc.ID)
		}
	}
	live := map[string]bool{}
	for _, name := range s.region.liveOut {
		live[name] = true
	}
	seen := map[string]bool{}
	for _, a := range sc.Arrays {
		s.completeArray(a)
		a.LiveOut = live[a.Name]
		if t, ok := s.recordType(a.ID); ok && !seen[t.Name] {
			seen[t.Name] = true
			sc.Types = append(sc.Types, t)
		}
	}
}

func (s *Scanner) completeArray(a *scop.Array) {
	id := a.ID
	a.Rank = id.Rank()
	dims := make([]string, a.Rank)
	for k := range dims {
		dims[k] = affine.OutDim(k)
	}
	if id.Virtual {
		var cons []affine.Constraint
		for _, d := range dims {
			cons = append(cons, affine.Ge(affine.Var(d)))
		}
		a.Extent = affine.FromConstraints(a.Name, dims, cons...)
		a.Context = affine.Universe("")
		if a.ElementType == "" {
			a.ElementType, a.ElementSize = "int", 4
		}
		return
	}

	base := ctypes.BaseType(id.Type)
	a.ElementType = base.String()
	a.ElementSize = ctypes.SizeOf(base)
	switch base.(type) {
	case ctypes.Tstruct, ctypes.Tunion:
		a.ElementIsRecord = true
	}
	var extent, context []affine.Constraint
	for k, size := range s.sizesOf(id) {
		o := affine.Var(dims[k])
		extent = append(extent, affine.Ge(o))
		if size == nil {
			continue
		}
		bound, ok := sizeAff(size)
		if !ok {
			continue
		}
		extent = append(extent, affine.LtOf(o, bound))
		if !bound.IsConst() {
			context = append(context, affine.Ge(bound))
		}
	}
	a.Extent = affine.FromConstraints(a.Name, dims, extent...)
	a.Context = affine.FromConstraints("", nil, context...)
	a.ValueBounds = affine.Universe("", "$v")
	a.Outer = !a.Declared
	a.UniquelyDefined = s.consts[id]
}

// sizesOf returns the size of each dimension of id, outermost first,
// with nil for unknown sizes.
func (s *Scanner) sizesOf(id *pet.ID) []pet.Expr {
	var out []pet.Expr
	if id.Parent != nil {
		out = s.sizesOf(id.Parent)
	}
	own, ok := s.sizes[id]
	if !ok {
		for t := id.Type; ; {
			arr, isArr := t.(ctypes.Tarray)
			switch {
			case isArr && arr.Size >= 0:
				own = append(own, pet.NewInt(arr.Size))
			case isArr || ctypes.IsPointer(t):
				own = append(own, nil)
			}
			elem, more := ctypes.Elem(t)
			if !more {
				break
			}
			t = elem
		}
	}
	depth := ctypes.ArrayDepth(id.Type)
	for len(own) < depth {
		own = append(own, nil)
	}
	return append(out, own[:depth]...)
}

// sizeAff converts an array size to an affine expression of the
// parameters.
func sizeAff(e pet.Expr) (affine.Aff, bool) {
	switch x := e.(type) {
	case *pet.IntLit:
		return affine.Const(x.Value), true
	case *pet.Cast:
		return sizeAff(x.Arg)
	case *pet.Access:
		if x.IsScalar() && ctypes.IsInteger(x.Type) {
			return affine.Var(x.ID.Name), true
		}
	case *pet.Op:
		switch x.Kind {
		case pet.OpMinus:
			a, ok := sizeAff(x.Args[0])
			return a.Neg(), ok
		case pet.OpAdd, pet.OpSub, pet.OpMul:
			l, ok1 := sizeAff(x.Args[0])
			r, ok2 := sizeAff(x.Args[1])
			if !ok1 || !ok2 {
				break
			}
			switch {
			case x.Kind == pet.OpAdd:
				return l.Add(r), true
			case x.Kind == pet.OpSub:
				return l.Sub(r), true
			case l.IsConst():
				return r.Scale(l.Constant()), true
			case r.IsConst():
				return l.Scale(r.Constant()), true
			}
		}
	}
	return affine.Aff{}, false
}

// recordType returns the definition of the structure type of the
// elements of id, if any.
func (s *Scanner) recordType(id *pet.ID) (scop.Type, bool) {
	base := ctypes.BaseType(id.Type)
	var kind, name string
	switch t := base.(type) {
	case ctypes.Tstruct:
		kind, name = "struct", t.Name
	case ctypes.Tunion:
		kind, name = "union", t.Name
	default:
		return scop.Type{}, false
	}
	if name != "" {
		def, ok := s.structDefs[kind+" "+name]
		if !ok {
			return scop.Type{}, false
		}
		return scop.Type{Name: name, Definition: cabs.FormatStruct(def)}, true
	}
	names := make([]string, 0, len(s.typedefs))
	for tname := range s.typedefs {
		names = append(names, tname)
	}
	sort.Strings(names)
	for _, tname := range names {
		if def, ok := s.structDefs[tname]; ok && ctypes.Equal(s.typedefs[tname], base) {
			return scop.Type{Name: tname, Definition: cabs.FormatStruct(def)}, true
		}
	}
	return scop.Type{}, false
}
