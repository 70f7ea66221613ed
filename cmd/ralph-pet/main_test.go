package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const kernel = `void kernel(int n, int A[100], int B[100])
{
#pragma scop
  for (int i = 0; i < n; i++)
    A[i] = B[i] + 1;
#pragma endscop
}

void other(int A[10])
{
#pragma scop
  A[0] = 1;
#pragma endscop
}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(normalizeFlags(args))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// decodeScops reads the YAML documents of out.
func decodeScops(t *testing.T, out string) []map[string]interface{} {
	t.Helper()
	dec := yaml.NewDecoder(strings.NewReader(out))
	var docs []map[string]interface{}
	for {
		var doc map[string]interface{}
		err := dec.Decode(&doc)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		docs = append(docs, doc)
	}
	return docs
}

func TestVersion(t *testing.T) {
	if version == "" {
		t.Error("version should not be empty")
	}
}

func TestNormalizeFlags(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{[]string{"-autodetect", "a.c"}, []string{"--autodetect", "a.c"}},
		{[]string{"-dtree=raw", "a.c"}, []string{"--dtree=raw", "a.c"}},
		{[]string{"--dscop", "-I", "inc"}, []string{"--dscop", "-I", "inc"}},
		{[]string{"-v", "-Dfoo"}, []string{"-v", "-Dfoo"}},
		{[]string{"-", "-unknown"}, []string{"-", "-unknown"}},
	}
	for _, tc := range tests {
		got := normalizeFlags(tc.in)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("normalizeFlags(%v) mismatch (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestFlagsExist(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	for _, name := range []string{"autodetect", "encapsulate-dynamic-control", "detect-conditional-assignment",
		"pencil", "inline-all", "config", "function", "dparse", "dtree", "dscop", "dprog", "stats",
		"include", "define", "undefine", "cpp", "no-color", "verbose"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag --%s", name)
	}
	assert.NotNil(t, cmd.Flags().Lookup("inline_all"), "underscores are accepted")
}

func TestNoArgsPrintsHelp(t *testing.T) {
	out, _, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "ralph-pet extracts static control parts")
}

func TestScopOutput(t *testing.T) {
	file := writeFile(t, "kernel.c", kernel)
	out, errOut, err := execute(t, file)
	require.NoError(t, err, errOut)
	assert.Empty(t, errOut)

	docs := decodeScops(t, out)
	require.Len(t, docs, 2)
	assert.Contains(t, docs[0]["context"], "n")
	stmts, ok := docs[0]["statements"].([]interface{})
	require.True(t, ok)
	assert.Len(t, stmts, 1)
}

func TestFunctionFilter(t *testing.T) {
	file := writeFile(t, "kernel.c", kernel)
	out, _, err := execute(t, "--function", "other", file)
	require.NoError(t, err)
	docs := decodeScops(t, out)
	require.Len(t, docs, 1)
	assert.NotContains(t, out, "B[")
}

func TestMultipleFilesKeepOrder(t *testing.T) {
	a := writeFile(t, "a.c", "void fa(int A[4])\n{\n#pragma scop\n  A[0] = 1;\n#pragma endscop\n}\n")
	b := writeFile(t, "b.c", "void fb(int B[4])\n{\n#pragma scop\n  B[1] = 2;\n#pragma endscop\n}\n")
	out, _, err := execute(t, "--stats", b, a)
	require.NoError(t, err)
	ib, ia := strings.Index(out, "fb"), strings.Index(out, "fa")
	require.True(t, ib >= 0 && ia >= 0, out)
	assert.Less(t, ib, ia)
	assert.Contains(t, out, "2 scops")
}

func TestDumpParse(t *testing.T) {
	file := writeFile(t, "kernel.c", kernel)
	out, _, err := execute(t, "-dparse", file)
	require.NoError(t, err)
	assert.Contains(t, out, "void kernel(")
	assert.Contains(t, out, "A[i] = B[i] + 1;")
}

func TestDumpTree(t *testing.T) {
	file := writeFile(t, "kernel.c", kernel)

	out, _, err := execute(t, "--dtree", file)
	require.NoError(t, err)
	assert.Contains(t, out, "kernel:\n")
	assert.Contains(t, out, "for: i = 0;")

	out, _, err = execute(t, "--dtree=raw", file)
	require.NoError(t, err)
	assert.Contains(t, out, "(*pet.For)")

	_, errOut, err := execute(t, "--dtree=yaml", file)
	require.Error(t, err)
	assert.Contains(t, errOut, "invalid --dtree mode")
}

func TestDumpProg(t *testing.T) {
	file := writeFile(t, "kernel.c", kernel)
	out, _, err := execute(t, "--dprog", "--function", "kernel", file)
	require.NoError(t, err)
	assert.Contains(t, out, "kernel:")
	assert.Contains(t, out, "READ-ONLY")
	assert.Contains(t, out, "S_0->__pet_ref_")
}

func TestUnsupportedFunctionIsReported(t *testing.T) {
	src := "void f(int A[10])\n{\n#pragma scop\n  do { A[0] = 1; } while (0);\n#pragma endscop\n}\n"
	file := writeFile(t, "bad.c", src)
	out, errOut, err := execute(t, "--no-color", file)
	require.Error(t, err)
	assert.Contains(t, errOut, "bad.c:4:")
	assert.Contains(t, errOut, "error:")
	assert.NotContains(t, errOut, "\x1b[")
	assert.Empty(t, decodeScops(t, out))
}

func TestAutodetectSilencesFailures(t *testing.T) {
	src := `void f(int n, int A[100])
{
  for (int i = 0; i < n; i++)
    A[i] = i;
  do { A[0] = 1; } while (0);
}
`
	file := writeFile(t, "auto.c", src)
	out, errOut, err := execute(t, "-autodetect", file)
	require.NoError(t, err)
	assert.Empty(t, errOut)
	docs := decodeScops(t, out)
	require.Len(t, docs, 1)
}

func TestParseErrors(t *testing.T) {
	file := writeFile(t, "broken.c", "void f( {\n")
	_, errOut, err := execute(t, file)
	require.Error(t, err)
	assert.Contains(t, errOut, "ralph-pet: ")
	assert.Contains(t, errOut, "broken.c")

	_, errOut, err = execute(t, filepath.Join(t.TempDir(), "missing.c"))
	require.Error(t, err)
	assert.Contains(t, errOut, "missing.c")
}

func TestConfigFile(t *testing.T) {
	file := writeFile(t, "kernel.c", kernel)
	cfg := writeFile(t, "pet.toml", "functions = [\"other\"]\n")
	out, _, err := execute(t, "--config", cfg, file)
	require.NoError(t, err)
	assert.Len(t, decodeScops(t, out), 1)

	// flags given explicitly win over the file
	out, _, err = execute(t, "--config", cfg, "--function", "kernel,other", file)
	require.NoError(t, err)
	assert.Len(t, decodeScops(t, out), 2)

	_, errOut, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), file)
	require.Error(t, err)
	assert.Contains(t, errOut, "ralph-pet: ")
}

func TestOptionsFromFlags(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	require.NoError(t, cmd.ParseFlags([]string{"--autodetect", "--pencil=false", "-I", "inc", "-DN=4"}))
	f := &cliFlags{
		autodetect:   true,
		pencil:       false,
		includePaths: []string{"inc"},
		defines:      []string{"N=4"},
	}
	opts, err := f.options(cmd.Flags())
	require.NoError(t, err)
	assert.True(t, opts.Autodetect)
	assert.False(t, opts.Pencil)
	assert.True(t, opts.Preprocess.Enable)
	assert.Equal(t, []string{"inc"}, opts.Preprocess.IncludePaths)
	assert.Equal(t, []string{"N=4"}, opts.Preprocess.Defines)
	assert.False(t, opts.InlineAll)
}

func TestNoColorLeavesGlobalSetting(t *testing.T) {
	saved := color.NoColor
	defer func() { color.NoColor = saved }()
	color.NoColor = false

	file := writeFile(t, "kernel.c", kernel)
	_, _, err := execute(t, "--no-color", file)
	require.NoError(t, err)
	assert.False(t, color.NoColor)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func TestOutputWriteErrors(t *testing.T) {
	file := writeFile(t, "kernel.c", kernel)
	var errOut bytes.Buffer
	cmd := newRootCmd(failingWriter{}, &errOut)
	cmd.SetArgs([]string{"--dparse", file})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
