// Package affine implements the integer set algebra used by the scop
// builder: quasi-affine expressions over named variables, conjunctions of
// linear constraints, finite unions of such conjunctions, piecewise
// quasi-affine values and relations between tuples.
//
// Variables are plain names. Inside a Set, the names listed as dimensions
// are set variables and every other name is a parameter. Names starting
// with '$' are reserved for internal use.
package affine

import (
	"fmt"
	"sort"
	"strings"
)

// Aff is a quasi-affine expression: an integer constant plus a weighted
// sum of variables and floor-division terms. A floor-division term is
// stored under the canonical text of the division.
//
// Aff values are immutable; every operation returns a fresh value.
type Aff struct {
	c     int64
	terms map[string]int64
	divs  map[string]Div
}

// Div is floor(Num / Den). Den is always greater than one and the
// coefficients of Num lie in [0, Den).
type Div struct {
	Num Aff
	Den int64
}

func (d Div) key() string {
	return "floor((" + d.Num.format(true) + ")/" + fmt.Sprint(d.Den) + ")"
}

// Const returns the constant expression c.
func Const(c int64) Aff { return Aff{c: c} }

// Var returns the expression consisting of the single variable name.
func Var(name string) Aff { return Aff{terms: map[string]int64{name: 1}} }

// Constant returns the constant term of a.
func (a Aff) Constant() int64 { return a.c }

// Coef returns the coefficient of the variable name in a.
func (a Aff) Coef(name string) int64 { return a.terms[name] }

// IsConst reports whether a has no variable or division terms.
func (a Aff) IsConst() bool { return len(a.terms) == 0 }

// IsZero reports whether a is the constant zero.
func (a Aff) IsZero() bool { return a.IsConst() && a.c == 0 }

func (a Aff) clone() Aff {
	b := Aff{c: a.c}
	if len(a.terms) > 0 {
		b.terms = make(map[string]int64, len(a.terms))
		for k, v := range a.terms {
			b.terms[k] = v
		}
	}
	if len(a.divs) > 0 {
		b.divs = make(map[string]Div, len(a.divs))
		for k, v := range a.divs {
			b.divs[k] = v
		}
	}
	return b
}

func (a *Aff) addTerm(key string, coef int64, d *Div) {
	if coef == 0 {
		return
	}
	if a.terms == nil {
		a.terms = map[string]int64{}
	}
	n := a.terms[key] + coef
	if n == 0 {
		delete(a.terms, key)
		delete(a.divs, key)
		return
	}
	a.terms[key] = n
	if d != nil {
		if a.divs == nil {
			a.divs = map[string]Div{}
		}
		a.divs[key] = *d
	}
}

func (a Aff) div(key string) *Div {
	if d, ok := a.divs[key]; ok {
		return &d
	}
	return nil
}

// keys returns the term keys of a in a deterministic order: plain
// variables first, then division terms.
func (a Aff) keys() []string {
	keys := make([]string, 0, len(a.terms))
	for k := range a.terms {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		di, dj := isDivKey(keys[i]), isDivKey(keys[j])
		if di != dj {
			return !di
		}
		return keys[i] < keys[j]
	})
	return keys
}

func isDivKey(k string) bool { return strings.HasPrefix(k, "floor(") }

// Add returns a + b.
func (a Aff) Add(b Aff) Aff {
	r := a.clone()
	r.c += b.c
	for k, v := range b.terms {
		r.addTerm(k, v, b.div(k))
	}
	return r
}

// Sub returns a - b.
func (a Aff) Sub(b Aff) Aff { return a.Add(b.Scale(-1)) }

// Neg returns -a.
func (a Aff) Neg() Aff { return a.Scale(-1) }

// AddConst returns a + k.
func (a Aff) AddConst(k int64) Aff {
	r := a.clone()
	r.c += k
	return r
}

// Scale returns k * a.
func (a Aff) Scale(k int64) Aff {
	if k == 0 {
		return Aff{}
	}
	r := Aff{c: a.c * k}
	for key, v := range a.terms {
		r.addTerm(key, v*k, a.div(key))
	}
	return r
}

// Floor returns floor(a / d). The result is kept in canonical form: the
// integral part of the quotient is pulled out of the division and the
// remaining numerator is reduced by the gcd it shares with d.
func Floor(a Aff, d int64) Aff {
	if d == 0 {
		panic("affine: division by zero")
	}
	if d < 0 {
		a, d = a.Neg(), -d
	}
	if d == 1 {
		return a
	}
	q := Aff{c: floorDiv(a.c, d)}
	rem := Aff{c: mod(a.c, d)}
	for _, k := range a.keys() {
		v := a.terms[k]
		dv := a.div(k)
		q.addTerm(k, floorDiv(v, d), dv)
		rem.addTerm(k, mod(v, d), dv)
	}
	if rem.IsConst() {
		return q
	}
	g := gcd(rem.termGCD(), gcd(rem.c, d))
	if g > 1 {
		rem = rem.divExact(g)
		d /= g
	}
	if d == 1 {
		return q.Add(rem)
	}
	dv := Div{Num: rem, Den: d}
	q.addTerm(dv.key(), 1, &dv)
	return q
}

// Mod returns a mod d, the non-negative remainder of floor division.
func Mod(a Aff, d int64) Aff {
	if d < 0 {
		d = -d
	}
	return a.Sub(Floor(a, d).Scale(d))
}

// termGCD returns the gcd of the term coefficients, or 0 if a is constant.
func (a Aff) termGCD() int64 {
	var g int64
	for _, v := range a.terms {
		g = gcd(g, v)
	}
	return g
}

// divExact divides every coefficient by g, which must divide all of them.
func (a Aff) divExact(g int64) Aff {
	r := Aff{c: a.c / g}
	for k, v := range a.terms {
		r.addTerm(k, v/g, a.div(k))
	}
	return r
}

// Involves reports whether name occurs in a, possibly inside a division.
func (a Aff) Involves(name string) bool {
	if _, ok := a.terms[name]; ok && !isDivKey(name) {
		return true
	}
	for _, d := range a.divs {
		if d.Num.Involves(name) {
			return true
		}
	}
	return false
}

// Vars returns the sorted names of the variables occurring in a,
// including those occurring inside divisions.
func (a Aff) Vars() []string {
	seen := map[string]bool{}
	a.collectVars(seen)
	return sortedKeys(seen)
}

func (a Aff) collectVars(seen map[string]bool) {
	for k := range a.terms {
		if d, ok := a.divs[k]; ok {
			d.Num.collectVars(seen)
			continue
		}
		seen[k] = true
	}
}

// Subst replaces the variable x by r.
func (a Aff) Subst(x string, r Aff) Aff {
	if !a.Involves(x) {
		return a
	}
	res := Const(a.c)
	for k, v := range a.terms {
		switch d, isDiv := a.divs[k]; {
		case k == x:
			res = res.Add(r.Scale(v))
		case isDiv && d.Num.Involves(x):
			res = res.Add(Floor(d.Num.Subst(x, r), d.Den).Scale(v))
		default:
			res.addTerm(k, v, a.div(k))
		}
	}
	return res
}

// replaceDiv replaces every occurrence of the division with the given
// key, directly or nested inside another division, by the variable v.
func (a Aff) replaceDiv(key, v string) Aff {
	res := Const(a.c)
	for k, c := range a.terms {
		switch d, isDiv := a.divs[k]; {
		case k == key:
			res.addTerm(v, c, nil)
		case isDiv && d.Num.hasDiv(key):
			res = res.Add(Floor(d.Num.replaceDiv(key, v), d.Den).Scale(c))
		default:
			res.addTerm(k, c, a.div(k))
		}
	}
	return res
}

func (a Aff) hasDiv(key string) bool {
	for k, d := range a.divs {
		if k == key || d.Num.hasDiv(key) {
			return true
		}
	}
	return false
}

// findDiv returns a division occurring in a whose numerator involves x.
func (a Aff) findDiv(x string) (string, Div, bool) {
	for _, k := range a.keys() {
		d, ok := a.divs[k]
		if !ok {
			continue
		}
		if key, inner, found := d.Num.findDiv(x); found {
			return key, inner, true
		}
		if d.Num.Involves(x) {
			return k, d, true
		}
	}
	return "", Div{}, false
}

// Eval evaluates a at the given point. Unbound variables evaluate to 0.
func (a Aff) Eval(pt map[string]int64) int64 {
	v := a.c
	for k, c := range a.terms {
		if d, ok := a.divs[k]; ok {
			v += c * floorDiv(d.Num.Eval(pt), d.Den)
			continue
		}
		v += c * pt[k]
	}
	return v
}

// Equal reports whether a and b are syntactically the same expression.
func (a Aff) Equal(b Aff) bool { return a.format(true) == b.format(true) }

func (a Aff) String() string { return a.format(false) }

func (a Aff) format(raw bool) string {
	var sb strings.Builder
	first := true
	for _, k := range a.keys() {
		v := a.terms[k]
		name := k
		if d, ok := a.divs[k]; ok {
			name = "floor((" + d.Num.format(raw) + ")/" + fmt.Sprint(d.Den) + ")"
		} else if !raw {
			name = displayName(k)
		}
		writeTerm(&sb, v, name, first, isDivKey(k))
		first = false
	}
	switch {
	case first:
		fmt.Fprintf(&sb, "%d", a.c)
	case a.c > 0:
		fmt.Fprintf(&sb, " + %d", a.c)
	case a.c < 0:
		fmt.Fprintf(&sb, " - %d", -a.c)
	}
	return sb.String()
}

func writeTerm(sb *strings.Builder, v int64, name string, first, isDiv bool) {
	if v < 0 {
		if first {
			sb.WriteString("-")
		} else {
			sb.WriteString(" - ")
		}
		v = -v
	} else if !first {
		sb.WriteString(" + ")
	}
	if v != 1 {
		fmt.Fprintf(sb, "%d", v)
		if isDiv {
			sb.WriteString("*")
		}
	}
	sb.WriteString(name)
}

func displayName(name string) string { return strings.TrimPrefix(name, "$") }

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func abs(a int64) int64 {
	if a < 0 {
		return -a
	}
	return a
}

func gcd(a, b int64) int64 {
	a, b = abs(a), abs(b)
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	return abs(a/gcd(a, b)) * abs(b)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func mod(a, b int64) int64 {
	return a - floorDiv(a, b)*b
}

// modInverse returns x in [0, m) with a*x = 1 (mod m); a and m coprime.
func modInverse(a, m int64) int64 {
	oldR, r := mod(a, m), m
	oldS, s := int64(1), int64(0)
	for r != 0 {
		q := oldR / r
		oldR, r = r, oldR-q*r
		oldS, s = s, oldS-q*s
	}
	return mod(oldS, m)
}
