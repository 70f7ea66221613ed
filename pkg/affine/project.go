package affine

import "fmt"

// elimFuel bounds the number of elimination steps and Fourier-Motzkin
// combinations spent on one query. Once it runs out, eliminate drops the
// constraints mentioning the variable, so the result over-approximates
// the projection.
const elimFuel = 4096

// elim performs exact existential elimination of integer variables.
//
// A variable is removed in four stages. Divisions whose numerator
// mentions it are first replaced by fresh variables with their defining
// bounds. An equality then allows direct substitution, using a floor term
// and a divisibility constraint when the coefficient is not a unit.
// Otherwise every divisibility constraint is solved for the variable,
// which is re-expressed as m*y + t over a fresh y. What is left are lower
// and upper bounds, and an integer exists between them iff every lower
// bound rounded up is at most every upper bound rounded down. No stage
// introduces a disjunction.
type elim struct {
	fresh int
	fuel  int
}

func (e *elim) newVar() string {
	e.fresh++
	return fmt.Sprintf("$e%d", e.fresh)
}

// eliminate projects x out of b. The boolean result is false if the
// projection is empty.
func (e *elim) eliminate(b basicSet, x string) (basicSet, bool) {
	if e.fuel <= 0 {
		return b.dropInvolving([]string{x}), true
	}
	e.fuel--
	var extra []string
	for {
		if e.fuel <= 0 {
			return b.dropInvolving(append(extra, x)), true
		}
		e.fuel--
		key, d, found := findDivIn(b.cons, x)
		if !found {
			break
		}
		q := e.newVar()
		extra = append(extra, q)
		cons := make([]Constraint, 0, len(b.cons)+2)
		for _, c := range b.cons {
			cons = append(cons, Constraint{Kind: c.Kind, Aff: c.Aff.replaceDiv(key, q), Mod: c.Mod})
		}
		dq := Var(q).Scale(d.Den)
		cons = append(cons, Ge(d.Num.Sub(dq)), Ge(dq.AddConst(d.Den-1).Sub(d.Num)))
		var ok bool
		if b, ok = newBasic(cons); !ok {
			return b, false
		}
	}
	b, ok := e.eliminatePlain(b, x)
	if !ok {
		return b, false
	}
	for _, q := range extra {
		if !b.involves(q) {
			continue
		}
		if b, ok = e.eliminate(b, q); !ok {
			return b, false
		}
	}
	return b, true
}

func findDivIn(cons []Constraint, x string) (string, Div, bool) {
	for _, c := range cons {
		if k, d, ok := c.Aff.findDiv(x); ok {
			return k, d, true
		}
	}
	return "", Div{}, false
}

// eliminatePlain projects x out of b, where x does not occur inside any
// division.
func (e *elim) eliminatePlain(b basicSet, x string) (basicSet, bool) {
	best := -1
	for i, c := range b.cons {
		if c.Kind != EQ || c.Aff.Coef(x) == 0 {
			continue
		}
		if best < 0 || abs(c.Aff.Coef(x)) < abs(b.cons[best].Aff.Coef(x)) {
			best = i
		}
	}
	if best >= 0 {
		c := b.cons[best]
		a := c.Aff.Coef(x)
		r := c.Aff.Sub(Var(x).Scale(a))
		if a < 0 {
			a, r = -a, r.Neg()
		}
		rest := without(b.cons, best)
		val := r.Neg()
		if a != 1 {
			val = Floor(r.Neg(), a)
			rest = append(rest, Dvd(r, a))
		}
		return basicSet{cons: rest}.subst(x, val)
	}

	for {
		i := -1
		for j, c := range b.cons {
			if c.Kind == DVD && c.Aff.Coef(x) != 0 {
				i = j
				break
			}
		}
		if i < 0 {
			break
		}
		if e.fuel <= 0 {
			return b.dropInvolving([]string{x}), true
		}
		e.fuel--
		c := b.cons[i]
		m := c.Mod
		a := c.Aff.Coef(x)
		r := c.Aff.Sub(Var(x).Scale(a))
		rest := without(b.cons, i)
		if g := gcd(a, m); g > 1 {
			rest = append(rest, Dvd(r, g))
			a, m = a/g, m/g
			r = Floor(r, g)
		}
		if m == 1 {
			var ok bool
			if b, ok = newBasic(rest); !ok {
				return b, false
			}
			continue
		}
		// a*x + r = 0 (mod m)  <=>  x = m*y - inv(a)*r
		y := e.newVar()
		val := Var(y).Scale(m).Add(r.Scale(-modInverse(a, m)))
		var ok bool
		if b, ok = (basicSet{cons: rest}).subst(x, val); !ok {
			return b, false
		}
		x = y
	}

	var lowers, uppers, out []Constraint
	for _, c := range b.cons {
		switch coef := c.Aff.Coef(x); {
		case coef > 0:
			lowers = append(lowers, c)
		case coef < 0:
			uppers = append(uppers, c)
		default:
			out = append(out, c)
		}
	}
	n := len(lowers) * len(uppers)
	if n > e.fuel {
		e.fuel = 0
		return newBasic(out)
	}
	e.fuel -= n
	for _, lo := range lowers {
		a := lo.Aff.Coef(x)
		r1 := lo.Aff.Sub(Var(x).Scale(a))
		for _, up := range uppers {
			bc := -up.Aff.Coef(x)
			r2 := up.Aff.Add(Var(x).Scale(bc))
			// ceil(-r1/a) <= floor(r2/b)
			out = append(out, Ge(Floor(r2, bc).Add(Floor(r1, a))))
		}
	}
	return newBasic(out)
}

func without(cons []Constraint, i int) []Constraint {
	out := make([]Constraint, 0, len(cons)-1)
	out = append(out, cons[:i]...)
	return append(out, cons[i+1:]...)
}

// project eliminates the given variables from b.
func (b basicSet) project(vars []string) (basicSet, bool) {
	e := &elim{fuel: elimFuel}
	for _, v := range vars {
		if !b.involves(v) {
			continue
		}
		var ok bool
		if b, ok = e.eliminate(b, v); !ok {
			return b, false
		}
		if e.fuel <= 0 {
			// Over-approximate: drop what still mentions the remaining variables.
			return b.dropInvolving(vars), true
		}
	}
	return b, true
}

func (b basicSet) dropInvolving(vars []string) basicSet {
	var out []Constraint
	for _, c := range b.cons {
		keep := true
		for _, v := range vars {
			if c.involves(v) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, c)
		}
	}
	return basicSet{cons: out}
}
