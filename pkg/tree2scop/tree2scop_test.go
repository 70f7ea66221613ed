package tree2scop_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/raymyers/ralph-pet/pkg/ctypes"
	"github.com/raymyers/ralph-pet/pkg/options"
	"github.com/raymyers/ralph-pet/pkg/pet"
	"github.com/raymyers/ralph-pet/pkg/scan"
	"github.com/raymyers/ralph-pet/pkg/scop"
	"github.com/raymyers/ralph-pet/pkg/tree2scop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extract(t *testing.T, src string, opts options.Options) *scop.Scop {
	t.Helper()
	prog, err := scan.Parse(src)
	require.NoError(t, err)
	fn, ok := prog.Function("f")
	require.True(t, ok)
	sc, err := scan.New(prog, src, opts).ScanFunction(fn)
	require.NoError(t, err)
	require.NotNil(t, sc)
	return sc
}

// extractWithin is extract with a time limit on scanning.
func extractWithin(t *testing.T, src string, opts options.Options, limit time.Duration) *scop.Scop {
	t.Helper()
	type outcome struct {
		sc  *scop.Scop
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		prog, err := scan.Parse(src)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		fn, ok := prog.Function("f")
		if !ok {
			done <- outcome{err: errors.New("no function f")}
			return
		}
		sc, err := scan.New(prog, src, opts).ScanFunction(fn)
		done <- outcome{sc, err}
	}()
	select {
	case o := <-done:
		require.NoError(t, o.err)
		require.NotNil(t, o.sc)
		return o.sc
	case <-time.After(limit):
		t.Fatalf("scanning did not finish within %v", limit)
		return nil
	}
}

// region wraps body in a function f with integer parameters n, m and
// arrays A and B.
func region(body string) string {
	return "void f(int n, int m, int A[100], int B[100])\n{\n#pragma scop\n" + body + "\n#pragma endscop\n}\n"
}

func mainStmts(sc *scop.Scop) []*scop.Stmt {
	var out []*scop.Stmt
	for _, st := range sc.Stmts {
		if !st.IsKill() {
			out = append(out, st)
		}
	}
	return out
}

func stmtFor(t *testing.T, sc *scop.Scop, text string) *scop.Stmt {
	t.Helper()
	for _, st := range sc.Stmts {
		if e, ok := st.Expr(); ok && pet.FormatExpr(e) == text {
			return st
		}
	}
	t.Fatalf("no statement %q", text)
	return nil
}

func TestAffineIfSplitsDomain(t *testing.T) {
	sc := extract(t, region(`
  for (int i = 0; i < n; i++)
    if (2 * i < n + m)
      A[i] = 0;
    else
      A[i] = 1;`), options.Default())
	then := stmtFor(t, sc, "A[i] = 0")
	els := stmtFor(t, sc, "A[i] = 1")
	assert.True(t, hasKind(sc.Schedule, scop.Set), "branches are unordered")

	for n := int64(0); n < 8; n++ {
		for m := int64(-3); m < 5; m++ {
			for i := int64(-1); i <= n; i++ {
				pt := map[string]int64{"i": i, "n": n, "m": m}
				inLoop := i >= 0 && i < n
				inThen := then.Domain.Contains(pt)
				inElse := els.Domain.Contains(pt)
				assert.Equal(t, inLoop && 2*i < n+m, inThen, "then at %v", pt)
				assert.Equal(t, inLoop && 2*i >= n+m, inElse, "else at %v", pt)
			}
		}
	}
}

func hasKind(s *scop.Schedule, kind scop.ScheduleKind) bool {
	if s == nil {
		return false
	}
	if s.Kind == kind {
		return true
	}
	for _, c := range s.Children {
		if hasKind(c, kind) {
			return true
		}
	}
	return false
}

func TestAffineBreakRestrictsDomain(t *testing.T) {
	sc := extract(t, region(`
  for (int i = 0; i < n; i++) {
    if (i == m)
      break;
    A[i] = 0;
  }`), options.Default())
	st := stmtFor(t, sc, "A[i] = 0")
	assert.Empty(t, sc.Implications)
	for _, a := range sc.Arrays {
		assert.False(t, a.ID.Virtual, "virtual array %s", a.Name)
	}
	for n := int64(0); n < 6; n++ {
		for m := int64(-1); m < 7; m++ {
			var want []int64
			for i := int64(0); i < n; i++ {
				if i == m {
					break
				}
				want = append(want, i)
			}
			var got []int64
			for i := int64(-2); i < 8; i++ {
				if st.Domain.Contains(map[string]int64{"i": i, "n": n, "m": m}) {
					got = append(got, i)
				}
			}
			assert.Equal(t, want, got, "n=%d m=%d", n, m)
		}
	}
}

func TestDataDependentBreak(t *testing.T) {
	sc := extract(t, region(`
  for (int i = 0; i < n; i++) {
    if (A[i] < 0)
      break;
    B[i] = A[i];
  }`), options.Default())
	require.Len(t, sc.Implications, 1)
	impl := sc.Implications[0]
	assert.True(t, strings.HasPrefix(impl.Array, "__pet_skip_"), impl.Array)
	assert.Equal(t, int64(1), impl.Satisfied)

	skip := sc.Array(impl.Array)
	require.NotNil(t, skip)
	assert.True(t, skip.ID.Virtual)
	assert.Equal(t, 1, skip.Rank)
	assert.Equal(t, "int", skip.ElementType)
	test := sc.Array("__pet_test_0")
	require.NotNil(t, test)
	assert.True(t, test.ID.Virtual)

	copyStmt := stmtFor(t, sc, "B[i] = A[i]")
	assert.NotEmpty(t, copyStmt.Args, "the copy is filtered by the skip and test values")
	assert.Equal(t, []string{"i"}, copyStmt.Iterators())

	// a skip of 1 at iteration i holds for every later iteration
	ext := impl.Extension
	assert.True(t, ext.Contains(map[string]int64{"i": 2}, []int64{5}))
	assert.False(t, ext.Contains(map[string]int64{"i": 2}, []int64{1}))
}

func TestUnsignedIteratorWrapsAround(t *testing.T) {
	tests := []struct {
		name   string
		header string
		init   int64
		step   int64
		cond   func(v uint8) bool
	}{
		{
			name:   "wraps past the top",
			header: "unsigned char i = 200; i >= 100; i += 20",
			init:   200, step: 20,
			cond: func(v uint8) bool { return v >= 100 },
		},
		{
			name:   "single iteration",
			header: "unsigned char i = 0; i < 10; i += 253",
			init:   0, step: 253,
			cond: func(v uint8) bool { return v < 10 },
		},
		{
			name:   "no wrap",
			header: "unsigned char i = 3; i < 50; i += 7",
			init:   3, step: 7,
			cond: func(v uint8) bool { return v < 50 },
		},
		{
			name:   "increment jumps past the top",
			header: "unsigned char i = 250; i <= 250; i += 10",
			init:   250, step: 10,
			cond: func(v uint8) bool { return v <= 250 },
		},
		{
			name:   "decrement jumps below zero",
			header: "unsigned char i = 5; i <= 5; i -= 3",
			init:   5, step: -3,
			cond: func(v uint8) bool { return v <= 5 },
		},
		{
			name:   "unit increment reaches the top",
			header: "unsigned char i = 250; i != 3; i++",
			init:   250, step: 1,
			cond: func(v uint8) bool { return v != 3 },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sc := extractWithin(t, region("  for ("+tc.header+")\n    A[0] = i;"), options.Default(), 10*time.Second)
			stmts := mainStmts(sc)
			require.Len(t, stmts, 1)
			st := stmts[0]

			// run the loop with 8-bit arithmetic and record how far the
			// unwrapped counter got
			var want []int64
			v := uint8(tc.init)
			for k := int64(0); tc.cond(v) && k < 1000; k++ {
				want = append(want, tc.init+k*tc.step)
				v += uint8(tc.step)
			}
			var got []int64
			for d := int64(-300); d < 3000; d++ {
				if st.Domain.Contains(map[string]int64{"i": d}) {
					got = append(got, d)
				}
			}
			assert.Equal(t, want, got)
		})
	}
}

func TestWideUnsignedIterator(t *testing.T) {
	sc := extract(t, region(`
  for (unsigned long i = 0; i < 10; i++)
    A[i] = 0;
  for (unsigned long j = 0; j < 10; j--)
    B[0] = 1;
  for (unsigned long k = 0; k < 10; k += 2)
    B[1] = 2;`), options.Default())

	up := stmtFor(t, sc, "A[i] = 0")
	assert.Equal(t, []string{"i"}, up.Iterators())
	for i := int64(-2); i < 14; i++ {
		assert.Equal(t, i >= 0 && i < 10, up.Domain.Contains(map[string]int64{"i": i}), "i=%d", i)
	}

	// these wrap around 2^64, which cannot be modelled
	for _, text := range []string{"B[0] = 1", "B[1] = 2"} {
		st := stmtFor(t, sc, text)
		require.Len(t, st.Iterators(), 1, text)
		assert.True(t, strings.HasPrefix(st.Iterators()[0], "$t"), text)
	}
}

func TestLoopConditionMustHoldForEarlierIterations(t *testing.T) {
	sc := extract(t, region(`
  for (int i = 0; i < n || i < 5; i++)
    A[i] = 0;
  for (int j = 40; j > m && j != 30; j--)
    B[j] = 0;`), options.Default())
	up := stmtFor(t, sc, "A[i] = 0")
	down := stmtFor(t, sc, "B[j] = 0")
	for n := int64(-2); n < 12; n++ {
		count := int64(0)
		for i := int64(0); i < n || i < 5; i++ {
			count++
		}
		for i := int64(-1); i < 20; i++ {
			want := i >= 0 && i < count
			assert.Equal(t, want, up.Domain.Contains(map[string]int64{"i": i, "n": n}), "i=%d n=%d", i, n)
		}
	}
	for m := int64(20); m < 45; m++ {
		last := int64(41)
		for j := int64(40); j > m && j != 30; j-- {
			last = j
		}
		for j := int64(15); j < 45; j++ {
			want := j <= 40 && j >= last
			assert.Equal(t, want, down.Domain.Contains(map[string]int64{"j": j, "m": m}), "j=%d m=%d", j, m)
		}
	}
}

func TestNonAffineWhile(t *testing.T) {
	sc := extract(t, region(`
  {
    int k = 0;
    while (A[k] > 0)
      k = k + 1;
  }`), options.Default())
	test := sc.Array("__pet_test_0")
	require.NotNil(t, test)
	assert.True(t, test.ID.Virtual)
	require.Len(t, sc.Implications, 1)
	assert.Equal(t, "__pet_test_0", sc.Implications[0].Array)

	inc := stmtFor(t, sc, "k = k + 1")
	require.Len(t, inc.Iterators(), 1)
	assert.True(t, strings.HasPrefix(inc.Iterators()[0], "$t"))
	assert.NotEmpty(t, inc.Args)
}

func TestBlockKillsDeclarations(t *testing.T) {
	sc := extract(t, region(`
  {
    int t = A[0];
    B[0] = t;
  }`), options.Default())
	var order []string
	for _, name := range sc.Schedule.Statements() {
		e, ok := sc.Stmt(name).Expr()
		require.True(t, ok)
		order = append(order, pet.FormatExpr(e))
	}
	assert.Equal(t, []string{"kill(t)", "t = A[0]", "B[0] = t", "kill(t)"}, order)
	assert.Equal(t, scop.Sequence, sc.Schedule.Kind)

	arr := sc.Array("t")
	require.NotNil(t, arr)
	assert.True(t, arr.Declared)
	assert.False(t, arr.Exposed)
}

func TestAffineScalarsArePropagated(t *testing.T) {
	sc := extract(t, region(`
  {
    int lo = n + 1;
    for (int i = lo; i < lo + 3; i++)
      A[i] = 0;
  }`), options.Default())
	st := stmtFor(t, sc, "A[i] = 0")
	assert.True(t, st.Domain.Contains(map[string]int64{"i": 5, "n": 4}))
	assert.True(t, st.Domain.Contains(map[string]int64{"i": 7, "n": 4}))
	assert.False(t, st.Domain.Contains(map[string]int64{"i": 8, "n": 4}))
	assert.False(t, st.Domain.Contains(map[string]int64{"i": 4, "n": 4}))
}

func TestEncapsulationKeepsCounters(t *testing.T) {
	src := region(`
  for (int i = 0; i < n; i++)
    if (A[i] > 0)
      A[i] = 0;
  B[0] = 1;`)
	opts := options.Default()
	opts.EncapsulateDynamicControl = true
	sc := extract(t, src, opts)
	stmts := mainStmts(sc)
	require.Len(t, stmts, 2)
	assert.Equal(t, "S_0", stmts[0].Name)
	assert.Equal(t, "S_1", stmts[1].Name)
	assert.IsType(t, &pet.If{}, stmts[0].Body)
	assert.Empty(t, stmts[0].Args)
	assert.Empty(t, sc.Implications)
	for _, a := range sc.Arrays {
		assert.False(t, a.ID.Virtual, "virtual array %s", a.Name)
	}
}

func TestBuildHandwrittenTree(t *testing.T) {
	n := pet.NewID("n", ctypes.Int())
	a := pet.NewID("a", ctypes.Array(ctypes.Int(), 10))
	i := pet.NewID("i", ctypes.Int())
	body := &pet.ExprStmt{Expr: pet.NewOp(pet.OpAssign,
		pet.NewAccess(a).Subscript(pet.NewAccess(i)).MarkWrite(), pet.NewInt(0))}
	loop := &pet.For{
		Iv:       pet.NewAccess(i),
		Declared: true,
		Init:     pet.NewInt(0),
		Cond:     pet.NewOp(pet.OpLt, pet.NewAccess(i), pet.NewAccess(n)),
		Inc:      pet.NewInt(1),
		Body:     body,
	}
	sc, err := tree2scop.Build(&pet.Block{Children: []pet.Tree{loop}}, tree2scop.Options{})
	require.NoError(t, err)
	require.Len(t, sc.Stmts, 1)
	st := sc.Stmts[0]
	assert.Equal(t, "S_0", st.Name)
	assert.Equal(t, []string{"i"}, st.Iterators())
	assert.True(t, st.Domain.Contains(map[string]int64{"i": 2, "n": 3}))
	assert.False(t, st.Domain.Contains(map[string]int64{"i": 3, "n": 3}))

	var w *scop.Access
	for _, acc := range st.Accesses {
		if acc.Write {
			w = acc
		}
	}
	require.NotNil(t, w)
	assert.Equal(t, "a", w.Array())
	assert.True(t, w.Exact)
	assert.True(t, w.Index.Contains(map[string]int64{"i": 2, "n": 3}, []int64{2}))
	assert.False(t, w.Index.Contains(map[string]int64{"i": 2, "n": 3}, []int64{1}))
	assert.True(t, sc.Context.Contains(map[string]int64{"n": 5}))
}
