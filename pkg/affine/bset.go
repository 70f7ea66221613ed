package affine

import (
	"sort"
	"strings"
)

// basicSet is a conjunction of normalized constraints. The empty
// conjunction is the universe.
type basicSet struct {
	cons []Constraint
}

// newBasic normalizes cons and removes redundant bounds. It returns false
// if the conjunction is trivially unsatisfiable.
func newBasic(cons []Constraint) (basicSet, bool) {
	var out []Constraint
	ge := map[string]int{} // linear part -> index in out
	seen := map[string]bool{}
	for _, c := range cons {
		n, t := c.normalize()
		switch t {
		case always:
			continue
		case never:
			return basicSet{}, false
		}
		if n.Kind != GE {
			k := n.key()
			if !seen[k] {
				seen[k] = true
				out = append(out, n)
			}
			continue
		}
		lin := n.Aff.AddConst(-n.Aff.c)
		lk := lin.format(true)
		if i, ok := ge[lk]; ok {
			if n.Aff.c < out[i].Aff.c {
				out[i] = n
			}
			continue
		}
		ge[lk] = len(out)
		out = append(out, n)
	}
	// opposite bounds e + a >= 0 and -e + b >= 0
	var eqs []Constraint
	drop := map[int]bool{}
	for lk, i := range ge {
		neg := out[i].Aff.AddConst(-out[i].Aff.c).Neg().format(true)
		j, ok := ge[neg]
		if !ok || drop[i] || drop[j] || lk > neg {
			continue
		}
		sum := out[i].Aff.c + out[j].Aff.c
		if sum < 0 {
			return basicSet{}, false
		}
		if sum == 0 {
			drop[i], drop[j] = true, true
			eqs = append(eqs, out[i])
		}
	}
	if len(drop) > 0 {
		kept := out[:0:0]
		for i, c := range out {
			if !drop[i] {
				kept = append(kept, c)
			}
		}
		for _, c := range eqs {
			kept = append(kept, Eq(c.Aff))
		}
		return newBasic(kept)
	}
	sort.SliceStable(out, func(i, j int) bool { return kindRank[out[i].Kind] < kindRank[out[j].Kind] })
	return basicSet{cons: out}, true
}

var kindRank = map[Kind]int{EQ: 0, GE: 1, DVD: 2}

func (b basicSet) with(cs ...Constraint) (basicSet, bool) {
	all := make([]Constraint, 0, len(b.cons)+len(cs))
	all = append(all, b.cons...)
	all = append(all, cs...)
	return newBasic(all)
}

func (b basicSet) vars() []string {
	seen := map[string]bool{}
	for _, c := range b.cons {
		c.Aff.collectVars(seen)
	}
	return sortedKeys(seen)
}

func (b basicSet) involves(x string) bool {
	for _, c := range b.cons {
		if c.involves(x) {
			return true
		}
	}
	return false
}

func (b basicSet) holds(pt map[string]int64) bool {
	for _, c := range b.cons {
		if !c.Holds(pt) {
			return false
		}
	}
	return true
}

func (b basicSet) subst(x string, r Aff) (basicSet, bool) {
	cons := make([]Constraint, len(b.cons))
	for i, c := range b.cons {
		cons[i] = c.subst(x, r)
	}
	return newBasic(cons)
}

// isEmpty decides emptiness by eliminating every variable.
func (b basicSet) isEmpty() bool {
	e := &elim{fuel: elimFuel}
	cur := b
	for {
		vars := cur.vars()
		if len(vars) == 0 {
			return false
		}
		var ok bool
		cur, ok = e.eliminate(cur, pickVar(cur, vars))
		if !ok {
			return true
		}
		if e.fuel <= 0 {
			return false
		}
	}
}

// pickVar prefers variables fixed by an equality, then the variable whose
// elimination creates the fewest new constraints.
func pickVar(b basicSet, vars []string) string {
	best, bestCost := "", -1
	for _, v := range vars {
		lo, up, cost := 0, 0, 0
		for _, c := range b.cons {
			coef := c.Aff.Coef(v)
			if coef == 0 {
				if c.involves(v) {
					cost += 4
				}
				continue
			}
			switch {
			case c.Kind == EQ && abs(coef) == 1:
				return v
			case c.Kind == EQ:
				cost++
			case c.Kind == DVD:
				cost += 2
			case coef > 0:
				lo++
			default:
				up++
			}
		}
		cost += lo * up
		if bestCost < 0 || cost < bestCost {
			best, bestCost = v, cost
		}
	}
	return best
}

func (b basicSet) String() string {
	if len(b.cons) == 0 {
		return ""
	}
	parts := make([]string, len(b.cons))
	for i, c := range b.cons {
		parts[i] = c.String()
	}
	return strings.Join(parts, " and ")
}
