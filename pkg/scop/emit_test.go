package scop_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/raymyers/ralph-pet/pkg/options"
	"github.com/raymyers/ralph-pet/pkg/scan"
	"github.com/raymyers/ralph-pet/pkg/scop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const src = `void f(int n, int A[100], int B[100])
{
#pragma scop
  for (int i = 0; i < n; i++)
    A[i] = B[i] + 1;
  B[0] = 2;
#pragma endscop
}
`

func extract(t *testing.T) *scop.Scop {
	t.Helper()
	prog, err := scan.Parse(src)
	require.NoError(t, err)
	fn, ok := prog.Function("f")
	require.True(t, ok)
	sc, err := scan.New(prog, src, options.Default()).ScanFunction(fn)
	require.NoError(t, err)
	require.NotNil(t, sc)
	return sc
}

type doc struct {
	Start      int    `yaml:"start"`
	End        int    `yaml:"end"`
	Context    string `yaml:"context"`
	Schedule   yaml.Node
	Arrays     []map[string]interface{} `yaml:"arrays"`
	Statements []struct {
		Line   int    `yaml:"line"`
		Domain string `yaml:"domain"`
		Body   struct {
			Type string `yaml:"type"`
			Expr struct {
				Type      string `yaml:"type"`
				Operation string `yaml:"operation"`
				Arguments []struct {
					Type      string `yaml:"type"`
					Index     string `yaml:"index"`
					Reference string `yaml:"reference"`
					Read      int    `yaml:"read"`
					Write     int    `yaml:"write"`
				} `yaml:"arguments"`
			} `yaml:"expr"`
		} `yaml:"body"`
	} `yaml:"statements"`
}

func TestEmit(t *testing.T) {
	sc := extract(t)
	var buf bytes.Buffer
	require.NoError(t, scop.Emit(&buf, sc))

	var d doc
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &d))
	assert.Equal(t, sc.Loc.Start, d.Start)
	assert.Equal(t, sc.Loc.End, d.End)
	assert.Less(t, d.Start, d.End)
	assert.Contains(t, src[d.Start:d.End], "A[i] = B[i] + 1;")
	assert.True(t, strings.HasPrefix(d.Context, "[n] -> "), d.Context)

	var assign int
	for _, st := range d.Statements {
		if st.Body.Expr.Operation != "=" {
			continue
		}
		assign++
		require.Len(t, st.Body.Expr.Arguments, 2)
		lhs := st.Body.Expr.Arguments[0]
		assert.Equal(t, "access", lhs.Type)
		assert.Equal(t, 1, lhs.Write)
		assert.Equal(t, 0, lhs.Read)
		assert.True(t, strings.HasPrefix(lhs.Reference, "__pet_ref_"))
	}
	assert.Equal(t, 2, assign)
	assert.Contains(t, buf.String(), "-> [(i)]")
	assert.Contains(t, buf.String(), "sequence:")
}

func TestEmitAllWritesDocuments(t *testing.T) {
	sc := extract(t)
	var buf bytes.Buffer
	require.NoError(t, scop.EmitAll(&buf, []*scop.Scop{sc, sc}))

	dec := yaml.NewDecoder(&buf)
	n := 0
	for {
		var d doc
		if err := dec.Decode(&d); err != nil {
			break
		}
		n++
	}
	assert.Equal(t, 2, n)
}

func TestPrint(t *testing.T) {
	sc := extract(t)
	out := sc.String()
	assert.Contains(t, out, "scop f [")
	assert.Contains(t, out, "A[i] = B[i] + 1")
	assert.Contains(t, out, "write { ")
	assert.Contains(t, out, "read { ")

	depth := map[string]int{}
	for _, name := range sc.Schedule.Statements() {
		st := sc.Stmt(name)
		require.NotNil(t, st, name)
		depth[name] = len(st.Iterators())
	}
	assert.Contains(t, depth, "S_0")
	assert.Equal(t, 0, depth[sc.Stmts[len(sc.Stmts)-1].Name])
	assert.Nil(t, sc.Stmt("S_99"))
	assert.NotNil(t, sc.Array("A"))
}
