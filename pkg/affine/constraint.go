package affine

import (
	"fmt"
	"strings"
)

// Kind is the kind of a constraint.
type Kind int

const (
	GE  Kind = iota // Aff >= 0
	EQ              // Aff = 0
	DVD             // Aff = 0 (mod Mod)
)

// Constraint is a single linear constraint.
type Constraint struct {
	Kind Kind
	Aff  Aff
	Mod  int64
}

// Ge returns the constraint a >= 0.
func Ge(a Aff) Constraint { return Constraint{Kind: GE, Aff: a} }

// Eq returns the constraint a = 0.
func Eq(a Aff) Constraint { return Constraint{Kind: EQ, Aff: a} }

// Dvd returns the constraint that m divides a.
func Dvd(a Aff, m int64) Constraint { return Constraint{Kind: DVD, Aff: a, Mod: m} }

// GeOf returns a >= b.
func GeOf(a, b Aff) Constraint { return Ge(a.Sub(b)) }

// LeOf returns a <= b.
func LeOf(a, b Aff) Constraint { return Ge(b.Sub(a)) }

// LtOf returns a < b.
func LtOf(a, b Aff) Constraint { return Ge(b.Sub(a).AddConst(-1)) }

// GtOf returns a > b.
func GtOf(a, b Aff) Constraint { return Ge(a.Sub(b).AddConst(-1)) }

// EqOf returns a = b.
func EqOf(a, b Aff) Constraint { return Eq(a.Sub(b)) }

type truth int

const (
	open truth = iota
	always
	never
)

// normalize brings c into canonical form and reports whether it is
// trivially satisfied or violated.
func (c Constraint) normalize() (Constraint, truth) {
	switch c.Kind {
	case GE:
		a := c.Aff
		for {
			if a.IsConst() {
				if a.c >= 0 {
					return c, always
				}
				return c, never
			}
			if g := a.termGCD(); g > 1 {
				r := Aff{c: floorDiv(a.c, g)}
				for k, v := range a.terms {
					r.addTerm(k, v/g, a.div(k))
				}
				a = r
			}
			k, d, ok := a.singleDiv()
			if !ok {
				break
			}
			if a.terms[k] == 1 {
				// floor(n/d) >= -c  <=>  n >= -c*d
				a = d.Num.AddConst(a.c * d.Den)
			} else {
				// floor(n/d) <= c  <=>  n <= c*d + d - 1
				a = d.Num.Neg().AddConst(a.c*d.Den + d.Den - 1)
			}
		}
		return Constraint{Kind: GE, Aff: a}, open
	case EQ:
		a := c.Aff
		if a.IsConst() {
			if a.c == 0 {
				return c, always
			}
			return c, never
		}
		g := a.termGCD()
		if a.c%g != 0 {
			return c, never
		}
		if g > 1 {
			a = a.divExact(g)
		}
		if keys := a.keys(); a.terms[keys[0]] < 0 {
			a = a.Neg()
		}
		return Constraint{Kind: EQ, Aff: a}, open
	case DVD:
		m := abs(c.Mod)
		if m == 0 {
			return Eq(c.Aff).normalize()
		}
		if m == 1 {
			return c, always
		}
		a := Aff{c: mod(c.Aff.c, m)}
		for k, v := range c.Aff.terms {
			a.addTerm(k, mod(v, m), c.Aff.div(k))
		}
		if a.IsConst() {
			if a.c == 0 {
				return c, always
			}
			return c, never
		}
		g := gcd(a.termGCD(), gcd(a.c, m))
		if g > 1 {
			a = a.divExact(g)
			m /= g
		}
		if m == 1 {
			return c, always
		}
		return Constraint{Kind: DVD, Aff: a, Mod: m}, open
	}
	panic(fmt.Sprintf("affine: unknown constraint kind %d", c.Kind))
}

func (a Aff) singleDiv() (string, Div, bool) {
	if len(a.terms) != 1 {
		return "", Div{}, false
	}
	for k := range a.terms {
		if d, ok := a.divs[k]; ok {
			return k, d, true
		}
	}
	return "", Div{}, false
}

// negate returns constraints whose disjunction is the negation of c.
func (c Constraint) negate() []Constraint {
	switch c.Kind {
	case GE:
		return []Constraint{Ge(c.Aff.Neg().AddConst(-1))}
	case EQ:
		return []Constraint{Ge(c.Aff.AddConst(-1)), Ge(c.Aff.Neg().AddConst(-1))}
	default:
		return []Constraint{Ge(Mod(c.Aff, c.Mod).AddConst(-1))}
	}
}

// Holds reports whether c is satisfied at the given point.
func (c Constraint) Holds(pt map[string]int64) bool {
	v := c.Aff.Eval(pt)
	switch c.Kind {
	case GE:
		return v >= 0
	case EQ:
		return v == 0
	default:
		return mod(v, c.Mod) == 0
	}
}

func (c Constraint) involves(x string) bool { return c.Aff.Involves(x) }

func (c Constraint) subst(x string, r Aff) Constraint {
	return Constraint{Kind: c.Kind, Aff: c.Aff.Subst(x, r), Mod: c.Mod}
}

func (c Constraint) key() string {
	switch c.Kind {
	case GE:
		return "ge " + c.Aff.format(true)
	case EQ:
		return "eq " + c.Aff.format(true)
	default:
		return fmt.Sprintf("dvd%d %s", c.Mod, c.Aff.format(true))
	}
}

func (c Constraint) String() string {
	if c.Kind == DVD {
		return fmt.Sprintf("(%s) mod %d = 0", c.Aff, c.Mod)
	}
	op := ">="
	if c.Kind == EQ {
		op = "="
	}
	var pos, neg Aff
	for k, v := range c.Aff.terms {
		if v > 0 {
			pos.addTerm(k, v, c.Aff.div(k))
		} else {
			neg.addTerm(k, -v, c.Aff.div(k))
		}
	}
	switch {
	case pos.IsConst():
		// -e + k >= 0 reads better as e <= k
		flip := map[string]string{">=": "<=", "=": "="}[op]
		return fmt.Sprintf("%s %s %d", neg, flip, c.Aff.c)
	case neg.IsConst():
		return fmt.Sprintf("%s %s %d", pos, op, -c.Aff.c)
	}
	if c.Aff.c > 0 {
		pos.c = c.Aff.c
	} else {
		neg.c = -c.Aff.c
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s %s", pos, op, neg))
}
