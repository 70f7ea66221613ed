package scan

import (
	"os"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/raymyers/ralph-pet/pkg/affine"
	"github.com/raymyers/ralph-pet/pkg/cabs"
	"github.com/raymyers/ralph-pet/pkg/ctypes"
	"github.com/raymyers/ralph-pet/pkg/diag"
	"github.com/raymyers/ralph-pet/pkg/options"
	"github.com/raymyers/ralph-pet/pkg/pet"
	"github.com/raymyers/ralph-pet/pkg/scop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type point map[string]int64

// ScanSpec is a test case from scan.yaml.
type ScanSpec struct {
	Name        string          `yaml:"name"`
	Function    string          `yaml:"function"`
	Options     options.Options `yaml:"options"`
	Input       string          `yaml:"input"`
	Exprs       []string        `yaml:"exprs"`
	All         []string        `yaml:"all"`
	Iters       *[]string       `yaml:"iters"`
	In          []point         `yaml:"in"`
	Out         []point         `yaml:"out"`
	Arrays      []ArraySpec     `yaml:"arrays"`
	Types       []string        `yaml:"types"`
	LiveOut     []string        `yaml:"live_out"`
	Independent []string        `yaml:"independent"`
	Error       string          `yaml:"error"`
	None        bool            `yaml:"none"`
}

// ArraySpec describes the expected properties of an array.
type ArraySpec struct {
	Name     string  `yaml:"name"`
	Declared *bool   `yaml:"declared"`
	Outer    *bool   `yaml:"outer"`
	Record   *bool   `yaml:"record"`
	In       []point `yaml:"in"`
	Out      []point `yaml:"out"`
}

type scanFile struct {
	Tests []ScanSpec `yaml:"tests"`
}

func scanFunction(t *testing.T, src, name string, opts options.Options) (*scop.Scop, error) {
	t.Helper()
	prog, err := Parse(src)
	require.NoError(t, err)
	if name == "" {
		name = "f"
	}
	fn, ok := prog.Function(name)
	require.True(t, ok, "function %s not found", name)
	return New(prog, src, opts).ScanFunction(fn)
}

func exprText(st *scop.Stmt) string {
	if e, ok := st.Expr(); ok {
		return pet.FormatExpr(e)
	}
	return "<" + pet.DumpString(st.Body) + ">"
}

func TestScanYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/scan.yaml")
	require.NoError(t, err)
	var file scanFile
	require.NoError(t, yaml.Unmarshal(data, &file))

	for _, tc := range file.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			sc, err := scanFunction(t, tc.Input, tc.Function, tc.Options)
			if tc.Error != "" {
				require.Error(t, err)
				kind, ok := diag.KindOf(err)
				require.True(t, ok, "not a diagnostic: %v", err)
				assert.Equal(t, tc.Error, kind.String(), "error: %v", err)
				return
			}
			require.NoError(t, err)
			if tc.None {
				assert.Nil(t, sc)
				return
			}
			require.NotNil(t, sc)

			var exprs, all []string
			var main []*scop.Stmt
			byName := map[string]*scop.Stmt{}
			for _, st := range sc.Stmts {
				byName[st.Name] = st
				if !st.IsKill() {
					exprs = append(exprs, exprText(st))
					main = append(main, st)
				}
			}
			for _, name := range sc.Schedule.Statements() {
				all = append(all, exprText(byName[name]))
			}
			if tc.Exprs != nil {
				assert.Equal(t, tc.Exprs, exprs)
			}
			if tc.All != nil {
				assert.Equal(t, tc.All, all)
			}
			for _, st := range main {
				if tc.Iters != nil {
					assert.Equal(t, len(*tc.Iters), len(st.Iterators()), "iterators of %s", st.Name)
					for k, it := range st.Iterators() {
						if k < len(*tc.Iters) {
							assert.Equal(t, (*tc.Iters)[k], it)
						}
					}
				}
				for _, p := range tc.In {
					assert.True(t, st.Domain.Contains(p), "%s should contain %v: %s", st.Name, p, st.Domain)
				}
				for _, p := range tc.Out {
					assert.False(t, st.Domain.Contains(p), "%s should not contain %v: %s", st.Name, p, st.Domain)
				}
			}
			for _, want := range tc.Arrays {
				a := sc.Array(want.Name)
				require.NotNil(t, a, "array %s", want.Name)
				if want.Declared != nil {
					assert.Equal(t, *want.Declared, a.Declared, "declared %s", a.Name)
				}
				if want.Outer != nil {
					assert.Equal(t, *want.Outer, a.Outer, "outer %s", a.Name)
				}
				if want.Record != nil {
					assert.Equal(t, *want.Record, a.ElementIsRecord, "record %s", a.Name)
				}
				for _, p := range want.In {
					assert.True(t, a.Extent.Contains(p), "extent of %s should contain %v: %s", a.Name, p, a.Extent)
				}
				for _, p := range want.Out {
					assert.False(t, a.Extent.Contains(p), "extent of %s should not contain %v: %s", a.Name, p, a.Extent)
				}
			}
			if tc.Types != nil {
				var names []string
				for _, ty := range sc.Types {
					names = append(names, ty.Name)
				}
				assert.Equal(t, tc.Types, names)
			}
			if tc.LiveOut != nil {
				var live []string
				for _, a := range sc.Arrays {
					if a.LiveOut {
						live = append(live, a.Name)
					}
				}
				assert.Equal(t, tc.LiveOut, live)
			}
			if tc.Independent != nil {
				var iters []string
				for _, ind := range sc.Independences {
					iters = append(iters, ind.Iter)
				}
				assert.Equal(t, tc.Independent, iters)
			}
		})
	}
}

func TestScanIsRepeatable(t *testing.T) {
	src := `
void f(int n, int A[100])
{
#pragma scop
  for (int i = 0; i < n; i++) {
    int t = A[i];
    if (t > 0)
      A[i] = t;
  }
#pragma endscop
}
`
	first, err := scanFunction(t, src, "f", options.Default())
	require.NoError(t, err)
	second, err := scanFunction(t, src, "f", options.Default())
	require.NoError(t, err)
	require.Equal(t, len(first.Stmts), len(second.Stmts))
	for k := range first.Stmts {
		a, b := first.Stmts[k], second.Stmts[k]
		assert.Equal(t, a.Name, b.Name)
		assert.True(t, a.Domain.IsEqual(b.Domain), "%s: %s vs %s", a.Name, a.Domain, b.Domain)
		assert.Equal(t, exprText(a), exprText(b))
		require.Equal(t, len(a.Accesses), len(b.Accesses))
		for j := range a.Accesses {
			if a.Accesses[j].Affine {
				continue
			}
			assert.True(t, a.Accesses[j].Index.IsEqual(b.Accesses[j].Index), "%s ref %d", a.Name, j)
		}
	}

	prog := mustParse(t, src)
	fn, ok := prog.Function("f")
	require.True(t, ok)
	s := New(prog, src, options.Default())
	t1, err := s.Tree(fn)
	require.NoError(t, err)
	t2, err := s.Tree(fn)
	require.NoError(t, err)
	if pet.DumpString(t1) != pet.DumpString(t2) {
		t.Errorf("trees differ:\n%s\n%s", spew.Sdump(t1), spew.Sdump(t2))
	}
}

func extractFunction(t *testing.T, src string) (pet.Tree, error) {
	t.Helper()
	prog, err := Parse(src)
	require.NoError(t, err)
	fn, ok := prog.Function("f")
	require.True(t, ok)
	s := New(prog, src, options.Default())
	s.enterFunction(fn)
	defer s.leaveFunction()
	res, err := s.extractBlock(fn.Body, true)
	return res.Tree, err
}

func findFor(tree pet.Tree) *pet.For {
	var out *pet.For
	pet.WalkTree(tree, func(n pet.Tree) bool {
		if f, ok := n.(*pet.For); ok && out == nil {
			out = f
		}
		return out == nil
	})
	return out
}

func TestRecordTypeNameIsStable(t *testing.T) {
	src := `typedef struct { int a; } P;
typedef struct { int a; } Q;
typedef struct { int a; } R;
void f(R s[10])
{
#pragma scop
  s[0].a = 1;
#pragma endscop
}
`
	var first []string
	for i := 0; i < 20; i++ {
		sc, err := scanFunction(t, src, "f", options.Default())
		require.NoError(t, err)
		var names []string
		for _, ty := range sc.Types {
			names = append(names, ty.Name)
		}
		if i == 0 {
			first = names
			continue
		}
		assert.Equal(t, first, names, "run %d", i)
	}
	require.Len(t, first, 1)
}

func TestLoopIncrements(t *testing.T) {
	tests := []struct {
		header string
		step   int64
	}{
		{"i = 0; i < n; i++", 1},
		{"i = 0; i < n; ++i", 1},
		{"i = n; i > 0; i--", -1},
		{"i = n; i > 0; --i", -1},
		{"i = 0; i < n; i += 4", 4},
		{"i = n; i > 0; i -= 4", -4},
		{"i = 0; i < n; i = i + 3", 3},
		{"i = n; i > 0; i = i - 3", -3},
		{"i = 0; i < n; i = 5 + i", 5},
		{"int j = 0; j < n; j += 2", 2},
	}
	for _, tc := range tests {
		t.Run(tc.header, func(t *testing.T) {
			src := "void f(int n, int A[100]) { int i; for (" + tc.header + ") A[0] = 0; }"
			tree, err := extractFunction(t, src)
			require.NoError(t, err)
			f := findFor(tree)
			require.NotNil(t, f)
			step, ok := constValue(f.Inc)
			require.True(t, ok, "step %s", pet.FormatExpr(f.Inc))
			assert.Equal(t, tc.step, step)
		})
	}
}

func TestLoopIncrementErrors(t *testing.T) {
	tests := []struct {
		header string
		kind   diag.Kind
	}{
		{"i = 0; i < n; i *= 2", diag.Unsupported},
		{"i = 0; i < n; i = 2 - i", diag.Unsupported},
		{"i = 0; i < n; n++", diag.Unsupported},
		{"i = 0; i < n; ", diag.Missing},
		{"; i < n; i++", diag.Missing},
	}
	for _, tc := range tests {
		t.Run(tc.header, func(t *testing.T) {
			src := "void f(int n, int A[100]) { int i; for (" + tc.header + ") A[0] = 0; }"
			_, err := extractFunction(t, src)
			require.Error(t, err)
			kind, ok := diag.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, tc.kind, kind, "%v", err)
		})
	}
}

func TestInfiniteLoops(t *testing.T) {
	for _, body := range []string{"for (;;) A[0] = 0;", "while (1) A[0] = 0;"} {
		tree, err := extractFunction(t, "void f(int A[1]) { "+body+" }")
		require.NoError(t, err)
		blk, ok := tree.(*pet.Block)
		require.True(t, ok)
		require.Len(t, blk.Children, 1)
		assert.IsType(t, &pet.InfiniteLoop{}, blk.Children[0], body)
	}
}

func TestIntegerLiterals(t *testing.T) {
	tests := []struct {
		text   string
		value  int64
		signed bool
		width  int
	}{
		{"42", 42, true, 32},
		{"2147483647", 2147483647, true, 32},
		{"2147483648", 2147483648, true, 64},
		{"0x7fffffff", 2147483647, true, 32},
		{"0xffffffff", 4294967295, false, 32},
		{"017", 15, true, 32},
		{"10u", 10, false, 32},
		{"10l", 10, true, 64},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			e, err := intLiteral(cabs.Constant{Text: tc.text})
			require.NoError(t, err)
			lit, ok := e.(*pet.IntLit)
			require.True(t, ok)
			assert.Equal(t, tc.value, lit.Value)
			assert.Equal(t, tc.width, ctypes.Width(lit.Type))
			assert.Equal(t, tc.signed, ctypes.IsSigned(lit.Type))
		})
	}
}

func TestFloatLiteralsKeepText(t *testing.T) {
	e, err := floatLiteral(cabs.FloatConst{Text: "1.50f"})
	require.NoError(t, err)
	lit := e.(*pet.DoubleLit)
	assert.Equal(t, "1.50f", pet.FormatExpr(lit))
	assert.Equal(t, 1.5, lit.Value)
}

func TestHygieneNamesAreFresh(t *testing.T) {
	src := `
void f(int n, int A[100])
{
  int i_0;
  for (int i = 0; i < n; i++)
    A[i] = 0;
  for (int i = 0; i < n; i++) {
    int n = 3;
    A[i] = n;
  }
}
`
	tree, err := extractFunction(t, src)
	require.NoError(t, err)
	var names []string
	for _, id := range pet.Declarations(tree) {
		names = append(names, id.Name)
	}
	assert.Equal(t, []string{"i_0", "i", "i_1", "n_0"}, names)

	// every access to the inner n refers to the renamed variable
	for _, acc := range pet.TreeAccesses(tree) {
		if acc.ID.Name == "n" {
			assert.Nil(t, acc.ID.Parent)
			assert.Equal(t, 0, acc.ID.Rank())
		}
	}
	var assigned []string
	pet.WalkTree(tree, func(n pet.Tree) bool {
		if es, ok := n.(*pet.ExprStmt); ok {
			assigned = append(assigned, pet.FormatExpr(es.Expr))
		}
		return true
	})
	assert.Equal(t, []string{"A[i] = 0", "A[i_1] = n_0"}, assigned)
}

func TestFunctionSummary(t *testing.T) {
	src := `
void set(int n, int B[n])
{
  for (int k = 0; k < n; k++)
    B[k] = 0;
}

void f(int A[100])
{
#pragma scop
  set(50, A);
#pragma endscop
}
`
	sc, err := scanFunction(t, src, "f", options.Default())
	require.NoError(t, err)
	require.Len(t, sc.Stmts, 1)
	st := sc.Stmts[0]
	assert.Equal(t, "set(50, A)", exprText(st))

	var writes []*scop.Access
	for _, acc := range st.Accesses {
		if acc.Array() == "A" && (acc.Write || acc.MayWrite) {
			writes = append(writes, acc)
		}
		if acc.Array() == "A" && acc.Read {
			t.Errorf("summary of set does not read its array")
		}
	}
	require.Len(t, writes, 1)
	w := writes[0]
	assert.True(t, w.Write, "write through the summary is a must write")
	assert.True(t, w.Index.Contains(map[string]int64{}, []int64{49}))
	assert.False(t, w.Index.Contains(map[string]int64{}, []int64{50}))

	sum := New(mustParse(t, src), src, options.Default()).summary("set")
	require.NotNil(t, sum)
	require.Len(t, sum.Args, 2)
	assert.Equal(t, pet.ArgInt, sum.Args[0].Kind)
	assert.Equal(t, pet.ArgArray, sum.Args[1].Kind)
	must := sum.Args[1].MustWrite
	assert.True(t, must.Contains(map[string]int64{affine.OutDim(0): 3, pet.ParamName(0): 4}))
	assert.False(t, must.Contains(map[string]int64{affine.OutDim(0): 4, pet.ParamName(0): 4}))
	assert.True(t, sum.Args[1].MayRead.IsEmpty())
}

func TestSummaryCacheBound(t *testing.T) {
	src := `
void g(int B[10]) { B[0] = 1; }
void h(int B[10]) { B[1] = 1; }
`
	opts := options.Default()
	opts.SummaryCacheSize = 1
	s := New(mustParse(t, src), src, opts)
	require.NotNil(t, s.summary("g"))
	require.NotNil(t, s.summary("h"))
	assert.Equal(t, 1, s.summaries.Len())
	assert.True(t, s.summaries.Contains("h"))
}

func mustParse(t *testing.T, src string) *cabs.Program {
	t.Helper()
	prog, err := Parse(src)
	require.NoError(t, err)
	return prog
}

func TestScanReportsFailures(t *testing.T) {
	src := `
void good(int A[10])
{
#pragma scop
  A[0] = 1;
#pragma endscop
}

void bad(int A[10])
{
#pragma scop
  do A[0]++; while (A[0] < 5);
#pragma endscop
}
`
	var out strings.Builder
	s := New(mustParse(t, src), src, options.Default())
	r := diag.NewReporter(&out, "test.c", src)
	s.SetReporter(r)
	scops, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, scops, 1)
	assert.Equal(t, "good", scops[0].Function)
	assert.Equal(t, 1, r.Count())
	assert.Contains(t, out.String(), "do-while")
}

func TestConditionalAssignmentIsDetected(t *testing.T) {
	src := `
void f(int n, int A[100], int B[100])
{
#pragma scop
  for (int i = 0; i < n; i++)
    if (A[i] > 0)
      B[i] = A[i];
    else
      B[i] = 0;
#pragma endscop
}
`
	opts := options.Default()
	opts.DetectConditionalAssignment = true
	sc, err := scanFunction(t, src, "f", opts)
	require.NoError(t, err)
	require.Len(t, sc.Stmts, 1)
	assert.Equal(t, "B[i] = (A[i] > 0) ? A[i] : 0", exprText(sc.Stmts[0]))
}

func TestEncapsulateDynamicControl(t *testing.T) {
	src := `
void f(int n, int A[100])
{
#pragma scop
  for (int i = 0; i < n; i++)
    if (A[i] > 0)
      A[i] = 0;
#pragma endscop
}
`
	opts := options.Default()
	opts.EncapsulateDynamicControl = true
	sc, err := scanFunction(t, src, "f", opts)
	require.NoError(t, err)
	require.Len(t, sc.Stmts, 1)
	st := sc.Stmts[0]
	assert.IsType(t, &pet.If{}, st.Body)
	assert.Equal(t, []string{"i"}, st.Iterators())
	for _, a := range sc.Arrays {
		assert.False(t, a.ID.Virtual, "virtual array %s", a.Name)
	}
	for _, acc := range st.Accesses {
		assert.False(t, acc.Write, "writes under dynamic control are may writes")
	}
}
