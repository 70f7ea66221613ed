package affine

import (
	"sort"
	"strings"
)

// Set is a finite union of conjunctions of constraints. The variables
// named in Dims are the set variables; all other variables occurring in
// the constraints are parameters.
type Set struct {
	name  string
	dims  []string
	parts []basicSet
}

// Universe returns the set of all points of the named tuple.
func Universe(name string, dims ...string) Set {
	return Set{name: name, dims: dims, parts: []basicSet{{}}}
}

// Empty returns the empty set of the named tuple.
func Empty(name string, dims ...string) Set {
	return Set{name: name, dims: dims}
}

// FromConstraints returns the set of points satisfying all of cons.
func FromConstraints(name string, dims []string, cons ...Constraint) Set {
	return Universe(name, dims...).AddConstraint(cons...)
}

// Name returns the tuple name.
func (s Set) Name() string { return s.name }

// Dims returns the set variables.
func (s Set) Dims() []string { return append([]string(nil), s.dims...) }

// NumParts returns the number of conjunctions in s.
func (s Set) NumParts() int { return len(s.parts) }

// WithName returns s with a different tuple name.
func (s Set) WithName(name string) Set {
	s.name = name
	return s
}

// WithDims returns s with a different list of set variables.
func (s Set) WithDims(dims ...string) Set {
	s.dims = append([]string(nil), dims...)
	return s
}

// AddDims returns s with the given names appended to its set variables.
func (s Set) AddDims(dims ...string) Set {
	s.dims = mergeDims(s.dims, dims)
	return s
}

func mergeDims(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, d := range b {
		if !contains(out, d) {
			out = append(out, d)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// AddConstraint intersects s with the conjunction of cons.
func (s Set) AddConstraint(cons ...Constraint) Set {
	out := Set{name: s.name, dims: s.dims}
	for _, p := range s.parts {
		if nb, ok := p.with(cons...); ok {
			out.parts = append(out.parts, nb)
		}
	}
	return out
}

// Intersect returns the intersection of s and o. The result keeps the
// tuple of s, extended with the set variables of o that s lacks.
func (s Set) Intersect(o Set) Set {
	out := Set{name: s.name, dims: mergeDims(s.dims, o.dims)}
	if out.name == "" {
		out.name = o.name
	}
	for _, p := range s.parts {
		for _, q := range o.parts {
			if nb, ok := p.with(q.cons...); ok {
				out.parts = append(out.parts, nb)
			}
		}
	}
	return out
}

// Union returns the union of s and o.
func (s Set) Union(o Set) Set {
	out := Set{name: s.name, dims: mergeDims(s.dims, o.dims)}
	if out.name == "" {
		out.name = o.name
	}
	out.parts = append(append([]basicSet(nil), s.parts...), o.parts...)
	return out.dedupe()
}

func (s Set) dedupe() Set {
	seen := map[string]bool{}
	var parts []basicSet
	for _, p := range s.parts {
		if len(p.cons) == 0 {
			s.parts = []basicSet{p}
			return s
		}
		k := p.key()
		if seen[k] {
			continue
		}
		seen[k] = true
		parts = append(parts, p)
	}
	s.parts = parts
	return s
}

func (b basicSet) key() string {
	keys := make([]string, len(b.cons))
	for i, c := range b.cons {
		keys[i] = c.key()
	}
	sort.Strings(keys)
	return strings.Join(keys, ";")
}

// Complement returns the points of the tuple space that are not in s.
func (s Set) Complement() Set {
	res := []basicSet{{}}
	for _, p := range s.parts {
		if len(p.cons) == 0 {
			return Empty(s.name, s.dims...)
		}
		var alts []Constraint
		for _, c := range p.cons {
			alts = append(alts, c.negate()...)
		}
		var next []basicSet
		for _, r := range res {
			for _, alt := range alts {
				if nb, ok := r.with(alt); ok && !nb.isEmpty() {
					next = append(next, nb)
				}
			}
		}
		res = next
	}
	return Set{name: s.name, dims: s.dims, parts: res}.dedupe()
}

// Subtract returns the points of s that are not in o.
func (s Set) Subtract(o Set) Set {
	if o.trivialEmpty() {
		return s
	}
	return s.Intersect(o.Complement()).Coalesce()
}

// IsEmpty reports whether s contains no integer point, for any value of
// the parameters.
func (s Set) IsEmpty() bool {
	for _, p := range s.parts {
		if !p.isEmpty() {
			return false
		}
	}
	return true
}

func (s Set) trivialEmpty() bool { return len(s.parts) == 0 }

// IsUniverse reports whether s contains every point.
func (s Set) IsUniverse() bool {
	for _, p := range s.parts {
		if len(p.cons) == 0 {
			return true
		}
	}
	return s.Complement().IsEmpty()
}

// IsSubset reports whether every point of s is in o.
func (s Set) IsSubset(o Set) bool {
	return s.Intersect(o.Complement()).IsEmpty()
}

// IsEqual reports whether s and o contain the same points.
func (s Set) IsEqual(o Set) bool { return s.IsSubset(o) && o.IsSubset(s) }

// Coalesce removes empty conjunctions.
func (s Set) Coalesce() Set {
	var parts []basicSet
	for _, p := range s.parts {
		if !p.isEmpty() {
			parts = append(parts, p)
		}
	}
	s.parts = parts
	return s.dedupe()
}

// Project existentially quantifies the given variables and removes them
// from the set variables.
func (s Set) Project(vars ...string) Set {
	out := Set{name: s.name}
	for _, d := range s.dims {
		if !contains(vars, d) {
			out.dims = append(out.dims, d)
		}
	}
	for _, p := range s.parts {
		if nb, ok := p.project(vars); ok {
			out.parts = append(out.parts, nb)
		}
	}
	return out.dedupe()
}

// Params projects out all set variables.
func (s Set) Params() Set {
	return s.Project(s.dims...).WithName("")
}

// ParamNames returns the sorted names of the parameters of s.
func (s Set) ParamNames() []string {
	seen := map[string]bool{}
	for _, p := range s.parts {
		for _, c := range p.cons {
			c.Aff.collectVars(seen)
		}
	}
	for _, d := range s.dims {
		delete(seen, d)
	}
	return sortedKeys(seen)
}

// Vars returns every variable occurring in the constraints of s.
func (s Set) Vars() []string {
	seen := map[string]bool{}
	for _, p := range s.parts {
		for _, c := range p.cons {
			c.Aff.collectVars(seen)
		}
	}
	return sortedKeys(seen)
}

// Involves reports whether any constraint of s mentions x.
func (s Set) Involves(x string) bool {
	for _, p := range s.parts {
		if p.involves(x) {
			return true
		}
	}
	return false
}

// Substitute replaces the variable x by a in every constraint.
func (s Set) Substitute(x string, a Aff) Set {
	out := Set{name: s.name, dims: s.dims}
	for _, p := range s.parts {
		if nb, ok := p.subst(x, a); ok {
			out.parts = append(out.parts, nb)
		}
	}
	return out
}

// Rename renames the variable from to to, in the constraints and dims.
func (s Set) Rename(from, to string) Set {
	out := s.Substitute(from, Var(to))
	out.dims = make([]string, len(s.dims))
	for i, d := range s.dims {
		if d == from {
			d = to
		}
		out.dims[i] = d
	}
	return out
}

// Gist simplifies s under the assumption that ctx holds: the result r
// satisfies r ∩ ctx = s ∩ ctx and keeps as few constraints as it can.
func (s Set) Gist(ctx Set) Set {
	out := Set{name: s.name, dims: s.dims}
	for _, p := range s.parts {
		if ctx.Intersect(Set{parts: []basicSet{p}}).IsEmpty() {
			continue
		}
		kept := append([]Constraint(nil), p.cons...)
		for i := 0; i < len(kept); {
			rest := without(kept, i)
			test := ctx.AddConstraint(rest...)
			var neg Set
			for _, alt := range kept[i].negate() {
				neg = neg.Union(Universe("").AddConstraint(alt))
			}
			if test.Intersect(neg).IsEmpty() {
				kept = rest
				continue
			}
			i++
		}
		if len(kept) == 0 {
			return Universe(s.name, s.dims...)
		}
		out.parts = append(out.parts, basicSet{cons: kept})
	}
	return out.dedupe()
}

// Contains reports whether the point is in s. Variables missing from pt
// are taken to be zero.
func (s Set) Contains(pt map[string]int64) bool {
	for _, p := range s.parts {
		if p.holds(pt) {
			return true
		}
	}
	return false
}

// Constraints returns the conjunctions of s.
func (s Set) Constraints() [][]Constraint {
	out := make([][]Constraint, len(s.parts))
	for i, p := range s.parts {
		out[i] = append([]Constraint(nil), p.cons...)
	}
	return out
}

// Condition renders the constraints of s without the tuple.
func (s Set) Condition() string {
	switch {
	case len(s.parts) == 0:
		return "false"
	case len(s.parts) == 1 && len(s.parts[0].cons) == 0:
		return "true"
	}
	texts := make([]string, len(s.parts))
	for i, p := range s.parts {
		texts[i] = p.String()
		if len(s.parts) > 1 && len(p.cons) > 1 {
			texts[i] = "(" + texts[i] + ")"
		}
	}
	return strings.Join(texts, " or ")
}

func (s Set) String() string {
	return s.format(s.tuple(), nil)
}

func (s Set) tuple() string {
	if s.name == "" && len(s.dims) == 0 {
		return ""
	}
	names := make([]string, len(s.dims))
	for i, d := range s.dims {
		names[i] = displayName(d)
	}
	return s.name + "[" + strings.Join(names, ", ") + "]"
}

// format renders s in isl notation with the given tuple text. Variables
// listed in hide are treated as set variables even if not in dims.
func (s Set) format(tuple string, hide []string) string {
	params := s.ParamNames()
	var shown []string
	for _, p := range params {
		if !contains(hide, p) {
			shown = append(shown, displayName(p))
		}
	}
	var sb strings.Builder
	if len(shown) > 0 {
		sb.WriteString("[" + strings.Join(shown, ", ") + "] -> ")
	}
	sb.WriteString("{ ")
	sb.WriteString(tuple)
	switch {
	case len(s.parts) == 0:
		if tuple != "" {
			sb.WriteString(" ")
		}
		sb.WriteString(": false }")
		return sb.String()
	case len(s.parts) == 1 && len(s.parts[0].cons) == 0:
		if tuple == "" {
			sb.WriteString(":")
		}
		sb.WriteString(" }")
		return sb.String()
	}
	if tuple != "" {
		sb.WriteString(" ")
	}
	sb.WriteString(": ")
	sb.WriteString(s.Condition())
	sb.WriteString(" }")
	return sb.String()
}
