package affine

import (
	"fmt"
	"strings"
)

// Map is a relation between an input tuple and an output tuple. It is
// stored as a set over the variables of both tuples; output variables use
// reserved names so they never clash with input variables.
type Map struct {
	in      string
	inDims  []string
	out     string
	outDims []string
	rel     Set
}

// OutDim returns the reserved name of the k-th output variable.
func OutDim(k int) string { return fmt.Sprintf("$o%d", k) }

// NewMap returns the relation between dom and the named output tuple of
// the given arity whose pairs satisfy cons. Constraints refer to output
// variables through OutDim.
func NewMap(dom Set, out string, arity int, cons ...Constraint) Map {
	outDims := make([]string, arity)
	for k := range outDims {
		outDims[k] = OutDim(k)
	}
	rel := dom.AddConstraint(cons...).AddDims(outDims...)
	return Map{in: dom.name, inDims: dom.Dims(), out: out, outDims: outDims, rel: rel}
}

// AccessMap returns the relation mapping each point of dom to the element
// of array selected by index. An index that is NaN leaves the
// corresponding output unconstrained.
func AccessMap(dom Set, array string, index []PwAff) Map {
	m := NewMap(dom, array, len(index))
	for k, ix := range index {
		if ix.IsNaN() {
			continue
		}
		o := Var(OutDim(k))
		var acc Set
		for _, pc := range ix.pieces {
			acc = acc.Union(pc.Dom.AddConstraint(EqOf(o, pc.Val)))
		}
		m.rel = m.rel.Intersect(acc)
	}
	return m
}

// InName returns the name of the input tuple.
func (m Map) InName() string { return m.in }

// OutName returns the name of the output tuple.
func (m Map) OutName() string { return m.out }

// OutArity returns the number of output variables.
func (m Map) OutArity() int { return len(m.outDims) }

// WithInName renames the input tuple.
func (m Map) WithInName(name string) Map {
	m.in = name
	m.rel = m.rel.WithName(name)
	return m
}

// WithOutName renames the output tuple.
func (m Map) WithOutName(name string) Map {
	m.out = name
	return m
}

// Domain returns the set of input points related to some output point.
func (m Map) Domain() Set {
	return m.rel.Project(m.outDims...).WithName(m.in).WithDims(m.inDims...)
}

// Range returns the set of output points related to some input point. Its
// set variables are the reserved output names.
func (m Map) Range() Set {
	return m.rel.Project(m.inDims...).WithName(m.out).WithDims(m.outDims...)
}

// IntersectDomain restricts the input points to s.
func (m Map) IntersectDomain(s Set) Map {
	m.rel = m.rel.Intersect(s.WithName(m.in))
	m.rel = m.rel.WithDims(append(append([]string(nil), m.inDims...), m.outDims...)...)
	return m
}

// IntersectRange restricts the output points to s, whose variables are
// the reserved output names.
func (m Map) IntersectRange(s Set) Map {
	m.rel = m.rel.Intersect(s.WithName(m.in))
	m.rel = m.rel.WithDims(append(append([]string(nil), m.inDims...), m.outDims...)...)
	return m
}

// Union returns the union of two relations between the same tuples.
func (m Map) Union(o Map) Map {
	m.rel = m.rel.Union(o.rel)
	return m
}

// IsEmpty reports whether the relation is empty.
func (m Map) IsEmpty() bool { return m.rel.IsEmpty() }

// IsEqual reports whether m and o relate the same pairs.
func (m Map) IsEqual(o Map) bool { return m.rel.IsEqual(o.rel) }

// Contains reports whether the pair (in, out) is related.
func (m Map) Contains(in map[string]int64, out []int64) bool {
	pt := map[string]int64{}
	for k, v := range in {
		pt[k] = v
	}
	for k, v := range out {
		pt[OutDim(k)] = v
	}
	return m.rel.Contains(pt)
}

// Relation returns the underlying set over input and output variables.
func (m Map) Relation() Set { return m.rel }

func (m Map) String() string {
	hide := append(append([]string(nil), m.inDims...), m.outDims...)
	var shown []string
	for _, p := range m.rel.ParamNames() {
		if !contains(hide, p) {
			shown = append(shown, displayName(p))
		}
	}
	var sb strings.Builder
	if len(shown) > 0 {
		sb.WriteString("[" + strings.Join(shown, ", ") + "] -> ")
	}
	sb.WriteString("{ ")
	if len(m.rel.parts) == 0 {
		sb.WriteString(m.tuples(basicSet{}) + " : false }")
		return sb.String()
	}
	texts := make([]string, len(m.rel.parts))
	for i, p := range m.rel.parts {
		texts[i] = m.tuples(p)
	}
	sb.WriteString(strings.Join(texts, "; "))
	sb.WriteString(" }")
	return sb.String()
}

// tuples renders one conjunction, printing output variables fixed by a
// unit equality as the expression they equal.
func (m Map) tuples(p basicSet) string {
	used := map[int]bool{}
	outs := make([]string, len(m.outDims))
	for k, o := range m.outDims {
		outs[k] = displayName(o)
		for i, c := range p.cons {
			if used[i] || c.Kind != EQ || abs(c.Aff.Coef(o)) != 1 || m.otherOuts(c, o) {
				continue
			}
			val := c.Aff.Sub(Var(o).Scale(c.Aff.Coef(o)))
			if c.Aff.Coef(o) == 1 {
				val = val.Neg()
			}
			outs[k] = "(" + val.String() + ")"
			used[i] = true
			break
		}
	}
	ins := make([]string, len(m.inDims))
	for k, d := range m.inDims {
		ins[k] = displayName(d)
	}
	text := fmt.Sprintf("%s[%s] -> %s[%s]", m.in, strings.Join(ins, ", "), m.out, strings.Join(outs, ", "))
	var rest []string
	for i, c := range p.cons {
		if !used[i] {
			rest = append(rest, c.String())
		}
	}
	if len(rest) > 0 {
		text += " : " + strings.Join(rest, " and ")
	}
	return text
}

func (m Map) otherOuts(c Constraint, o string) bool {
	for _, d := range m.outDims {
		if d != o && c.involves(d) {
			return true
		}
	}
	return false
}
