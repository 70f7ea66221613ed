package affine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func x() Aff { return Var("x") }
func y() Aff { return Var("y") }

func TestFloorCanonicalForm(t *testing.T) {
	tests := []struct {
		name string
		got  Aff
		want string
	}{
		{"exact quotient", Floor(x().Scale(4).AddConst(8), 4), "x + 2"},
		{"integral part pulled out", Floor(x().Scale(4).AddConst(6), 4), "x + 1"},
		{"gcd reduced", Floor(x().Scale(2).AddConst(2), 4), "floor((x + 1)/2)"},
		{"negative divisor", Floor(x(), -2), "-x + floor((x)/2)"},
		{"constant", Floor(Const(-7), 2), "-4"},
		{"mod", Mod(x(), 3), "x - 3*floor((x)/3)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.got.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFloorEvaluation(t *testing.T) {
	for _, d := range []int64{2, 3, 7, -3} {
		f := Floor(x().Scale(2).AddConst(1), d)
		for v := int64(-20); v <= 20; v++ {
			want := floorDiv(2*v+1, d)
			if got := f.Eval(map[string]int64{"x": v}); got != want {
				t.Fatalf("floor((2*%d+1)/%d) = %d, want %d", v, d, got, want)
			}
		}
	}
}

func TestSubstitute(t *testing.T) {
	a := Floor(x().Add(y()), 2).Add(x())
	b := a.Subst("x", y().Scale(3).AddConst(1))
	for v := int64(-10); v <= 10; v++ {
		pt := map[string]int64{"y": v}
		want := floorDiv(3*v+1+v, 2) + 3*v + 1
		assert.Equal(t, want, b.Eval(pt), "y=%d", v)
	}
	assert.False(t, b.Involves("x"))
}

// box enumerates the integer points of [-r, r]^2 over x and y.
func box(r int64, f func(pt map[string]int64)) {
	for i := -r; i <= r; i++ {
		for j := -r; j <= r; j++ {
			f(map[string]int64{"x": i, "y": j})
		}
	}
}

func TestProjectMatchesEnumeration(t *testing.T) {
	tests := []struct {
		name string
		set  Set
	}{
		{"double", FromConstraints("S", []string{"x", "y"},
			EqOf(x(), y().Scale(2)), Ge(y()), LeOf(y(), Const(10)))},
		{"shifted triple", FromConstraints("S", []string{"x", "y"},
			EqOf(x(), y().Scale(3).AddConst(1)), Ge(y().AddConst(3)), LeOf(y(), Const(5)))},
		{"non-unit bounds", FromConstraints("S", []string{"x", "y"},
			LeOf(x().Scale(3), y().Scale(2).AddConst(1)), LeOf(y().Scale(2), x().Scale(3).AddConst(5)))},
		{"divisibility", FromConstraints("S", []string{"x", "y"},
			Dvd(y().AddConst(1), 4), Dvd(x().Add(y()), 3), Ge(y()), LeOf(y(), x()))},
		{"division term", FromConstraints("S", []string{"x", "y"},
			EqOf(Mod(y(), 5), Const(2)), LeOf(x(), y()), LeOf(y(), x().AddConst(3)))},
		{"union", FromConstraints("S", []string{"x", "y"}, EqOf(x(), y().Scale(4))).
			Union(FromConstraints("S", []string{"x", "y"}, EqOf(x(), y().Scale(5).AddConst(2)), Ge(y())))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proj := tt.set.Project("y")
			assert.Equal(t, []string{"x"}, proj.Dims())
			for xv := int64(-20); xv <= 20; xv++ {
				want := false
				for yv := int64(-200); yv <= 200 && !want; yv++ {
					want = tt.set.Contains(map[string]int64{"x": xv, "y": yv})
				}
				got := proj.Contains(map[string]int64{"x": xv})
				if got != want {
					t.Fatalf("x=%d: projection says %v, enumeration says %v\nset: %s\nprojection: %s", xv, got, want, tt.set, proj)
				}
			}
		})
	}
}

func TestComplementPartitions(t *testing.T) {
	sets := []Set{
		FromConstraints("S", []string{"x", "y"}, Ge(x()), LtOf(x(), y())),
		FromConstraints("S", []string{"x", "y"}, EqOf(x(), y().AddConst(2))),
		FromConstraints("S", []string{"x", "y"}, Dvd(x().Add(y()), 3), GeOf(y(), Const(-2))),
		FromConstraints("S", []string{"x", "y"}, EqOf(Mod(x(), 4), Const(1))).
			Union(FromConstraints("S", []string{"x", "y"}, LeOf(y(), Const(0)))),
	}
	for _, s := range sets {
		c := s.Complement()
		box(8, func(pt map[string]int64) {
			if s.Contains(pt) == c.Contains(pt) {
				t.Fatalf("%v is in both or neither of %s and %s", pt, s, c)
			}
		})
		assert.True(t, s.Intersect(c).IsEmpty())
		assert.True(t, s.Union(c).IsUniverse())
	}
}

func TestIsEmpty(t *testing.T) {
	v := Var("v")
	// v runs over multiples of 253 and is 7 modulo 256; the first such
	// value is 20999.
	wrap := func(hi int64) Set {
		return FromConstraints("S", []string{"v"}, Ge(v), LeOf(v, Const(hi)),
			Dvd(v, 253), EqOf(Mod(v, 256), Const(7)))
	}
	tests := []struct {
		name  string
		set   Set
		empty bool
	}{
		{"universe", Universe("S", "x"), false},
		{"contradiction", FromConstraints("S", []string{"x"}, Ge(x()), LtOf(x(), Const(0))), true},
		{"parity", FromConstraints("S", []string{"x", "y"}, EqOf(x().Scale(2), y().Scale(2).AddConst(1))), true},
		{"gap between bounds", FromConstraints("S", []string{"x"},
			LeOf(Const(1), x().Scale(3)), LeOf(x().Scale(3), Const(2))), true},
		{"parametric", FromConstraints("S", []string{"x"}, Ge(x()), LtOf(x(), Var("N"))), false},
		{"wrap before first hit", wrap(20998), true},
		{"wrap at first hit", wrap(20999), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.empty, tt.set.IsEmpty(), "%s", tt.set)
		})
	}
}

func TestGistDropsImpliedConstraints(t *testing.T) {
	i, n := Var("i"), Var("N")
	s := FromConstraints("S", []string{"i"}, Ge(i), LtOf(i, n))
	ctx := FromConstraints("S", []string{"i"}, Ge(i))
	g := s.Gist(ctx)
	assert.Equal(t, "[N] -> { S[i] : N >= i + 1 }", g.String())
	assert.True(t, g.Intersect(ctx).IsEqual(s.Intersect(ctx)))
}

func TestSetString(t *testing.T) {
	i, n := Var("i"), Var("N")
	s := FromConstraints("S_0", []string{"i"}, Ge(i), LtOf(i, n))
	assert.Equal(t, "[N] -> { S_0[i] : i >= 0 and N >= i + 1 }", s.String())
	assert.Equal(t, "{ S_0[i] }", Universe("S_0", "i").String())
	assert.Equal(t, "{ S_0[i] : false }", Empty("S_0", "i").String())
}

func TestTruncatingDivision(t *testing.T) {
	for _, d := range []int64{3, -3, 4} {
		q := FromVar("x").TDiv(d)
		r := FromVar("x").TRem(d)
		for v := int64(-15); v <= 15; v++ {
			pt := map[string]int64{"x": v}
			gq, ok := q.Eval(pt)
			assert.True(t, ok)
			assert.Equal(t, v/d, gq, "%d / %d", v, d)
			gr, ok := r.Eval(pt)
			assert.True(t, ok)
			assert.Equal(t, v%d, gr, "%d %% %d", v, d)
		}
	}
}

func TestConditions(t *testing.T) {
	c := And(FromVar("x").Lt(FromInt(5)), FromVar("x").Ge(FromVar("y")))
	box(8, func(pt map[string]int64) {
		want := int64(0)
		if pt["x"] < 5 && pt["x"] >= pt["y"] {
			want = 1
		}
		got, ok := c.Eval(pt)
		if !ok || got != want {
			t.Fatalf("at %v got %d (%v), want %d", pt, got, ok, want)
		}
	})
	n := Not(Or(FromVar("x").EqTo(FromInt(0)), FromVar("y").Ne(FromInt(1))))
	box(4, func(pt map[string]int64) {
		want := int64(0)
		if !(pt["x"] == 0 || pt["y"] != 1) {
			want = 1
		}
		got, _ := n.Eval(pt)
		if got != want {
			t.Fatalf("at %v got %d, want %d", pt, got, want)
		}
	})
}

func TestAccessMapString(t *testing.T) {
	i := Var("i")
	dom := FromConstraints("S_0", []string{"i"}, Ge(i), LtOf(i, Const(10)))
	m := AccessMap(dom, "a", []PwAff{FromAff(i.AddConst(1))})
	assert.Equal(t, "{ S_0[i] -> a[(i + 1)] : i >= 0 and i <= 9 }", m.String())
	assert.True(t, m.Contains(map[string]int64{"i": 3}, []int64{4}))
	assert.False(t, m.Contains(map[string]int64{"i": 3}, []int64{3}))
	rng := m.Range()
	for v := int64(-2); v <= 12; v++ {
		assert.Equal(t, v >= 1 && v <= 10, rng.Contains(map[string]int64{OutDim(0): v}))
	}
}

func TestEliminateOutOfFuel(t *testing.T) {
	z := Var("z")
	exact, ok := newBasic([]Constraint{
		LeOf(x(), y().Scale(3)), LeOf(y().Scale(2), x().AddConst(7)),
		Dvd(y().AddConst(1), 4), EqOf(Mod(y().Add(z), 5), Const(2)),
		Ge(z), LeOf(z, Const(3)),
	})
	assert.True(t, ok)
	for fuel := 0; fuel <= 12; fuel++ {
		e := &elim{fuel: fuel}
		got, ok := e.eliminate(exact, "y")
		if !assert.True(t, ok, "fuel %d", fuel) {
			continue
		}
		for _, v := range got.vars() {
			assert.Contains(t, []string{"x", "z"}, v, "fuel %d left %s", fuel, got)
		}
		// whatever is dropped, the result must still contain the projection
		for xv := int64(-20); xv <= 20; xv++ {
			for zv := int64(0); zv <= 3; zv++ {
				for yv := int64(-40); yv <= 40; yv++ {
					pt := map[string]int64{"x": xv, "y": yv, "z": zv}
					if exact.holds(pt) {
						assert.True(t, got.holds(pt), "fuel %d: %v lost from %s", fuel, pt, got)
						break
					}
				}
			}
		}
	}
}

func TestProjectionWithManyBoundsTerminates(t *testing.T) {
	var cons []Constraint
	for i := int64(1); i <= 80; i++ {
		a := Var(fmt.Sprintf("p%d", i))
		cons = append(cons, LeOf(a, y()), LeOf(y(), a.AddConst(i)))
	}
	s := FromConstraints("S", []string{"y"}, cons...)
	proj := s.Project("y")
	pt := map[string]int64{}
	for i := int64(1); i <= 80; i++ {
		pt[fmt.Sprintf("p%d", i)] = 0
	}
	assert.True(t, proj.Contains(pt))
	assert.False(t, s.IsEmpty())
}
