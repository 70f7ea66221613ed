package affine

import "strings"

// Piece is one piece of a piecewise quasi-affine value.
type Piece struct {
	Dom Set
	Val Aff
}

// PwAff is a piecewise quasi-affine value. A PwAff may also be NaN,
// meaning the value could not be expressed affinely.
type PwAff struct {
	pieces []Piece
	nan    bool
}

// FromAff returns the value a on the whole space.
func FromAff(a Aff) PwAff {
	return PwAff{pieces: []Piece{{Dom: Universe(""), Val: a}}}
}

// FromInt returns the constant value c.
func FromInt(c int64) PwAff { return FromAff(Const(c)) }

// FromVar returns the value of the variable name.
func FromVar(name string) PwAff { return FromAff(Var(name)) }

// OnSet returns the value a restricted to dom.
func OnSet(dom Set, a Aff) PwAff {
	return PwAff{pieces: []Piece{{Dom: dom.WithName("").WithDims(), Val: a}}}
}

// NaN returns the value that could not be expressed affinely.
func NaN() PwAff { return PwAff{nan: true} }

// IsNaN reports whether p is NaN.
func (p PwAff) IsNaN() bool { return p.nan }

// Pieces returns the pieces of p.
func (p PwAff) Pieces() []Piece { return append([]Piece(nil), p.pieces...) }

// Const returns the constant value of p if every piece has the same
// constant value.
func (p PwAff) Const() (int64, bool) {
	if p.nan || len(p.pieces) == 0 {
		return 0, false
	}
	var v int64
	for i, pc := range p.pieces {
		if !pc.Val.IsConst() {
			return 0, false
		}
		if i > 0 && pc.Val.c != v {
			return 0, false
		}
		v = pc.Val.c
	}
	return v, true
}

// Aff returns the single expression of p if every piece carries the same
// expression.
func (p PwAff) Aff() (Aff, bool) {
	if p.nan || len(p.pieces) == 0 {
		return Aff{}, false
	}
	a := p.pieces[0].Val
	for _, pc := range p.pieces[1:] {
		if !pc.Val.Equal(a) {
			return Aff{}, false
		}
	}
	return a, true
}

// Domain returns the union of the piece domains.
func (p PwAff) Domain() Set {
	out := Empty("")
	for _, pc := range p.pieces {
		out = out.Union(pc.Dom)
	}
	return out
}

func combine(a, b PwAff, f func(x, y Aff) (Aff, bool)) PwAff {
	if a.nan || b.nan {
		return NaN()
	}
	var out []Piece
	for _, pa := range a.pieces {
		for _, pb := range b.pieces {
			dom := pa.Dom.Intersect(pb.Dom)
			if dom.trivialEmpty() {
				continue
			}
			v, ok := f(pa.Val, pb.Val)
			if !ok {
				return NaN()
			}
			out = append(out, Piece{Dom: dom, Val: v})
		}
	}
	return PwAff{pieces: out}
}

func (p PwAff) mapVals(f func(Aff) Aff) PwAff {
	if p.nan {
		return p
	}
	out := make([]Piece, len(p.pieces))
	for i, pc := range p.pieces {
		out[i] = Piece{Dom: pc.Dom, Val: f(pc.Val)}
	}
	return PwAff{pieces: out}
}

// Add returns p + q.
func (p PwAff) Add(q PwAff) PwAff {
	return combine(p, q, func(x, y Aff) (Aff, bool) { return x.Add(y), true })
}

// Sub returns p - q.
func (p PwAff) Sub(q PwAff) PwAff {
	return combine(p, q, func(x, y Aff) (Aff, bool) { return x.Sub(y), true })
}

// Neg returns -p.
func (p PwAff) Neg() PwAff { return p.mapVals(Aff.Neg) }

// Scale returns k * p.
func (p PwAff) Scale(k int64) PwAff {
	return p.mapVals(func(a Aff) Aff { return a.Scale(k) })
}

// Mul returns p * q, which is NaN unless one factor is constant on each
// pair of pieces.
func (p PwAff) Mul(q PwAff) PwAff {
	return combine(p, q, func(x, y Aff) (Aff, bool) {
		switch {
		case x.IsConst():
			return y.Scale(x.c), true
		case y.IsConst():
			return x.Scale(y.c), true
		}
		return Aff{}, false
	})
}

// FloorDiv returns floor(p / d).
func (p PwAff) FloorDiv(d int64) PwAff {
	if d == 0 {
		return NaN()
	}
	return p.mapVals(func(a Aff) Aff { return Floor(a, d) })
}

// TDiv returns p / d rounded towards zero.
func (p PwAff) TDiv(d int64) PwAff {
	if p.nan || d == 0 {
		return NaN()
	}
	sign := int64(1)
	if d < 0 {
		sign, d = -1, -d
	}
	var out []Piece
	for _, pc := range p.pieces {
		v := pc.Val
		if v.IsConst() {
			out = append(out, Piece{Dom: pc.Dom, Val: Const(sign * (v.c / d))})
			continue
		}
		if pos := pc.Dom.AddConstraint(Ge(v)); !pos.trivialEmpty() {
			out = append(out, Piece{Dom: pos, Val: Floor(v, d).Scale(sign)})
		}
		if neg := pc.Dom.AddConstraint(Ge(v.Neg().AddConst(-1))); !neg.trivialEmpty() {
			out = append(out, Piece{Dom: neg, Val: Floor(v.Neg(), d).Scale(-sign)})
		}
	}
	return PwAff{pieces: out}
}

// TRem returns the remainder of p / d rounded towards zero, which has the
// sign of p.
func (p PwAff) TRem(d int64) PwAff {
	if p.nan || d == 0 {
		return NaN()
	}
	d = abs(d)
	var out []Piece
	for _, pc := range p.pieces {
		v := pc.Val
		if v.IsConst() {
			out = append(out, Piece{Dom: pc.Dom, Val: Const(v.c % d)})
			continue
		}
		if pos := pc.Dom.AddConstraint(Ge(v)); !pos.trivialEmpty() {
			out = append(out, Piece{Dom: pos, Val: Mod(v, d)})
		}
		if neg := pc.Dom.AddConstraint(Ge(v.Neg().AddConst(-1))); !neg.trivialEmpty() {
			out = append(out, Piece{Dom: neg, Val: Mod(v.Neg(), d).Neg()})
		}
	}
	return PwAff{pieces: out}
}

// ModWidth reduces p modulo 2^width, as unsigned arithmetic of that width
// does.
func (p PwAff) ModWidth(width int) PwAff {
	if width >= 63 {
		return p
	}
	m := int64(1) << uint(width)
	return p.mapVals(func(a Aff) Aff { return Mod(a, m) })
}

// Min returns the smaller of p and q.
func (p PwAff) Min(q PwAff) PwAff { return Select(p.Le(q), p, q) }

// Max returns the larger of p and q.
func (p PwAff) Max(q PwAff) PwAff { return Select(p.Ge(q), p, q) }

func compare(a, b PwAff, holds func(d Aff) Constraint) PwAff {
	if a.nan || b.nan {
		return NaN()
	}
	var out []Piece
	for _, pa := range a.pieces {
		for _, pb := range b.pieces {
			dom := pa.Dom.Intersect(pb.Dom)
			if dom.trivialEmpty() {
				continue
			}
			c := holds(pa.Val.Sub(pb.Val))
			if yes := dom.AddConstraint(c); !yes.trivialEmpty() {
				out = append(out, Piece{Dom: yes, Val: Const(1)})
			}
			no := Empty("")
			for _, n := range c.negate() {
				no = no.Union(dom.AddConstraint(n))
			}
			if !no.trivialEmpty() {
				out = append(out, Piece{Dom: no, Val: Const(0)})
			}
		}
	}
	return PwAff{pieces: out}
}

// Lt returns the 0/1 value of p < q.
func (p PwAff) Lt(q PwAff) PwAff {
	return compare(p, q, func(d Aff) Constraint { return Ge(d.Neg().AddConst(-1)) })
}

// Le returns the 0/1 value of p <= q.
func (p PwAff) Le(q PwAff) PwAff {
	return compare(p, q, func(d Aff) Constraint { return Ge(d.Neg()) })
}

// Gt returns the 0/1 value of p > q.
func (p PwAff) Gt(q PwAff) PwAff { return q.Lt(p) }

// Ge returns the 0/1 value of p >= q.
func (p PwAff) Ge(q PwAff) PwAff { return q.Le(p) }

// EqTo returns the 0/1 value of p == q.
func (p PwAff) EqTo(q PwAff) PwAff {
	return compare(p, q, func(d Aff) Constraint { return Eq(d) })
}

// Ne returns the 0/1 value of p != q.
func (p PwAff) Ne(q PwAff) PwAff { return Not(p.EqTo(q)) }

// NonZeroSet returns the set where p is defined and not zero.
func (p PwAff) NonZeroSet() Set {
	out := Empty("")
	for _, pc := range p.pieces {
		if pc.Val.IsConst() {
			if pc.Val.c != 0 {
				out = out.Union(pc.Dom)
			}
			continue
		}
		out = out.Union(pc.Dom.AddConstraint(Ge(pc.Val.AddConst(-1))))
		out = out.Union(pc.Dom.AddConstraint(Ge(pc.Val.Neg().AddConst(-1))))
	}
	return out
}

// ZeroSet returns the set where p is defined and zero.
func (p PwAff) ZeroSet() Set {
	out := Empty("")
	for _, pc := range p.pieces {
		if pc.Val.IsConst() {
			if pc.Val.c == 0 {
				out = out.Union(pc.Dom)
			}
			continue
		}
		out = out.Union(pc.Dom.AddConstraint(Eq(pc.Val)))
	}
	return out
}

// FromSets returns the value 1 on yes and 0 on no.
func FromSets(yes, no Set) PwAff {
	var out []Piece
	if !yes.trivialEmpty() {
		out = append(out, Piece{Dom: yes.WithName("").WithDims(), Val: Const(1)})
	}
	if !no.trivialEmpty() {
		out = append(out, Piece{Dom: no.WithName("").WithDims(), Val: Const(0)})
	}
	return PwAff{pieces: out}
}

// Indicator returns the value 1 on s and 0 elsewhere.
func Indicator(s Set) PwAff { return FromSets(s, s.Complement()) }

// Not returns the 0/1 negation of the condition p.
func Not(p PwAff) PwAff {
	if p.nan {
		return p
	}
	return FromSets(p.ZeroSet(), p.NonZeroSet())
}

// And returns the 0/1 conjunction of the conditions p and q.
func And(p, q PwAff) PwAff {
	if p.nan || q.nan {
		return NaN()
	}
	dom := p.Domain().Intersect(q.Domain())
	yes := p.NonZeroSet().Intersect(q.NonZeroSet())
	no := dom.Intersect(p.ZeroSet().Union(q.ZeroSet()))
	return FromSets(yes, no)
}

// Or returns the 0/1 disjunction of the conditions p and q.
func Or(p, q PwAff) PwAff {
	if p.nan || q.nan {
		return NaN()
	}
	dom := p.Domain().Intersect(q.Domain())
	yes := dom.Intersect(p.NonZeroSet().Union(q.NonZeroSet()))
	no := p.ZeroSet().Intersect(q.ZeroSet())
	return FromSets(yes, no)
}

// Select returns a where cond is non-zero and b where it is zero.
func Select(cond, a, b PwAff) PwAff {
	if cond.nan || a.nan || b.nan {
		return NaN()
	}
	yes := a.IntersectDomain(cond.NonZeroSet())
	no := b.IntersectDomain(cond.ZeroSet())
	return PwAff{pieces: append(yes.pieces, no.pieces...)}
}

// IntersectDomain restricts p to s.
func (p PwAff) IntersectDomain(s Set) PwAff {
	if p.nan {
		return p
	}
	dom := s.WithName("").WithDims()
	var out []Piece
	for _, pc := range p.pieces {
		d := pc.Dom.Intersect(dom)
		if !d.trivialEmpty() {
			out = append(out, Piece{Dom: d, Val: pc.Val})
		}
	}
	return PwAff{pieces: out}
}

// Coalesce drops pieces with an empty domain.
func (p PwAff) Coalesce() PwAff {
	if p.nan {
		return p
	}
	var out []Piece
	for _, pc := range p.pieces {
		d := pc.Dom.Coalesce()
		if !d.trivialEmpty() {
			out = append(out, Piece{Dom: d, Val: pc.Val})
		}
	}
	return PwAff{pieces: out}
}

// Gist simplifies the piece domains under the assumption ctx.
func (p PwAff) Gist(ctx Set) PwAff {
	if p.nan {
		return p
	}
	ctx = ctx.WithName("").WithDims()
	var out []Piece
	for _, pc := range p.pieces {
		d := pc.Dom.Gist(ctx)
		if !d.trivialEmpty() {
			out = append(out, Piece{Dom: d, Val: pc.Val})
		}
	}
	return PwAff{pieces: out}
}

// Substitute replaces the variable x by a.
func (p PwAff) Substitute(x string, a Aff) PwAff {
	if p.nan {
		return p
	}
	var out []Piece
	for _, pc := range p.pieces {
		d := pc.Dom.Substitute(x, a)
		if !d.trivialEmpty() {
			out = append(out, Piece{Dom: d, Val: pc.Val.Subst(x, a)})
		}
	}
	return PwAff{pieces: out}
}

// SubstitutePw replaces the variable x by the piecewise value q.
func (p PwAff) SubstitutePw(x string, q PwAff) PwAff {
	if p.nan || q.nan {
		return NaN()
	}
	if !p.Involves(x) {
		return p
	}
	var out []Piece
	for _, qc := range q.pieces {
		for _, pc := range p.Substitute(x, qc.Val).pieces {
			d := pc.Dom.Intersect(qc.Dom)
			if !d.trivialEmpty() {
				out = append(out, Piece{Dom: d, Val: pc.Val})
			}
		}
	}
	return PwAff{pieces: out}
}

// Involves reports whether x occurs in p.
func (p PwAff) Involves(x string) bool {
	for _, pc := range p.pieces {
		if pc.Val.Involves(x) || pc.Dom.Involves(x) {
			return true
		}
	}
	return false
}

// Vars returns every variable occurring in p.
func (p PwAff) Vars() []string {
	seen := map[string]bool{}
	for _, pc := range p.pieces {
		pc.Val.collectVars(seen)
		for _, v := range pc.Dom.Vars() {
			seen[v] = true
		}
	}
	return sortedKeys(seen)
}

// Eval evaluates p at a point, reporting false if no piece contains it.
func (p PwAff) Eval(pt map[string]int64) (int64, bool) {
	if p.nan {
		return 0, false
	}
	for _, pc := range p.pieces {
		if pc.Dom.Contains(pt) {
			return pc.Val.Eval(pt), true
		}
	}
	return 0, false
}

func (p PwAff) String() string {
	if p.nan {
		return "NaN"
	}
	parts := make([]string, len(p.pieces))
	for i, pc := range p.pieces {
		parts[i] = pc.Val.String()
		if cond := pc.Dom.Condition(); cond != "true" {
			parts[i] += " : " + cond
		}
	}
	return "{ " + strings.Join(parts, "; ") + " }"
}
