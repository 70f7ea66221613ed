// Package prog is the program model handed to systolic array synthesis.
// It wraps an extracted scop with the information the synthesis passes
// start from: per-array properties, the tagged access relations of the
// whole program and the reference groups of every array.
package prog

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/raymyers/ralph-pet/pkg/affine"
	"github.com/raymyers/ralph-pet/pkg/scop"
)

// Ref is one access of a statement to an array.
type Ref struct {
	Stmt   *scop.Stmt
	Access *scop.Access
	// Tag identifies the reference as statement->reference.
	Tag string
	// Footprint is the set of elements accessed over all executions of
	// the statement, with dims affine.OutDim(k).
	Footprint affine.Set
}

// Reads reports whether the reference reads its array.
func (r *Ref) Reads() bool { return r.Access.Read }

// Writes reports whether the reference may write its array.
func (r *Ref) Writes() bool { return r.Access.Write || r.Access.MayWrite }

// Group is a set of references to the same array that have to be
// handled together: references whose footprints overlap where at least
// one of them writes.
type Group struct {
	ID        int
	Array     *Array
	Refs      []*Ref
	Footprint affine.Set
}

// Writes reports whether some reference of the group writes.
func (g *Group) Writes() bool {
	for _, r := range g.Refs {
		if r.Writes() {
			return true
		}
	}
	return false
}

// Exact reports whether every reference of the group has an affine
// index expression.
func (g *Group) Exact() bool {
	for _, r := range g.Refs {
		if !r.Access.Exact {
			return false
		}
	}
	return true
}

// Array is the information collected about one array of the program.
type Array struct {
	Source   *scop.Array
	Name     string
	Type     string
	Size     int64
	Rank     int
	Extent   affine.Set
	Local    bool // declared inside the scop and not visible after it
	ReadOnly bool
	LiveOut  bool
	Record   bool
	Refs     []*Ref
	Groups   []*Group
}

// Accessed reports whether some statement accesses the array.
func (a *Array) Accessed() bool { return len(a.Refs) > 0 }

// Footprint returns the union of the elements accessed by the references
// to a.
func (a *Array) Footprint() affine.Set {
	out := affine.Empty(a.Name, a.Extent.Dims()...)
	for _, r := range a.Refs {
		out = out.Union(r.Footprint)
	}
	return out.Coalesce()
}

// Prog is the program model of one scop.
type Prog struct {
	Scop    *scop.Scop
	Context affine.Set
	Arrays  []*Array

	// Tagged access relations, in statement order.
	MayRead   []*Ref
	MayWrite  []*Ref
	MustWrite []*Ref
	MustKill  []*Ref
}

// New builds the program model of sc.
func New(sc *scop.Scop) (*Prog, error) {
	if sc == nil {
		return nil, errors.New("prog: nil scop")
	}
	p := &Prog{Scop: sc, Context: sc.Context}
	byID := map[*scop.Array]*Array{}
	for _, a := range sc.Arrays {
		arr := &Array{
			Source:  a,
			Name:    a.Name,
			Type:    a.ElementType,
			Size:    a.ElementSize,
			Rank:    a.Rank,
			Extent:  a.Extent,
			Local:   a.Declared && !a.Exposed,
			LiveOut: a.LiveOut,
			Record:  a.ElementIsRecord,
		}
		byID[a] = arr
		p.Arrays = append(p.Arrays, arr)
	}

	for _, st := range sc.Stmts {
		for _, acc := range st.Accesses {
			if acc.Affine || acc.ID == nil {
				continue
			}
			src := sc.ArrayByID(acc.ID)
			if src == nil {
				return nil, errors.Errorf("prog: %s accesses unknown array %s", st.Name, acc.Array())
			}
			arr := byID[src]
			ref := &Ref{
				Stmt:      st,
				Access:    acc,
				Tag:       fmt.Sprintf("%s->%s", st.Name, acc.RefName()),
				Footprint: acc.Footprint(st.Domain).Range().WithName(arr.Name),
			}
			if acc.Kill {
				p.MustKill = append(p.MustKill, ref)
				continue
			}
			if acc.Read {
				p.MayRead = append(p.MayRead, ref)
			}
			if ref.Writes() {
				p.MayWrite = append(p.MayWrite, ref)
			}
			if acc.Write {
				p.MustWrite = append(p.MustWrite, ref)
			}
			arr.Refs = append(arr.Refs, ref)
		}
	}

	for _, arr := range p.Arrays {
		arr.ReadOnly = true
		for _, r := range arr.Refs {
			if r.Writes() {
				arr.ReadOnly = false
			}
		}
		arr.Groups = groupRefs(arr)
	}
	return p, nil
}

// Array returns the array with the given name.
func (p *Prog) Array(name string) *Array {
	for _, a := range p.Arrays {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// groupRefs puts every reference of a in a group of its own and then
// merges groups with overlapping footprints as long as one of the two
// writes.
func groupRefs(a *Array) []*Group {
	parent := make([]int, len(a.Refs))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i, ri := range a.Refs {
		for j := i + 1; j < len(a.Refs); j++ {
			rj := a.Refs[j]
			if !ri.Writes() && !rj.Writes() {
				continue
			}
			if ri.Footprint.Intersect(rj.Footprint).IsEmpty() {
				continue
			}
			if x, y := find(i), find(j); x != y {
				parent[y] = x
			}
		}
	}

	var groups []*Group
	index := map[int]*Group{}
	for i, r := range a.Refs {
		root := find(i)
		g, ok := index[root]
		if !ok {
			g = &Group{ID: len(groups), Array: a, Footprint: affine.Empty(a.Name, a.Extent.Dims()...)}
			index[root] = g
			groups = append(groups, g)
		}
		g.Refs = append(g.Refs, r)
		g.Footprint = g.Footprint.Union(r.Footprint)
	}
	for _, g := range groups {
		g.Footprint = g.Footprint.Coalesce()
	}
	return groups
}
