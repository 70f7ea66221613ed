package preproc

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raymyers/ralph-pet/pkg/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgs(t *testing.T) {
	opts := options.Preprocess{
		IncludePaths: []string{"include", "/usr/local/include"},
		Defines:      []string{"N=64", "DEBUG"},
		Undefines:    []string{"NDEBUG"},
	}
	assert.Equal(t, []string{
		"-E", "-Iinclude", "-I/usr/local/include", "-DN=64", "-DDEBUG", "-UNDEBUG", "kernel.c",
	}, Args("kernel.c", opts))
	assert.Equal(t, []string{"-E", "x.c"}, Args("x.c", options.Preprocess{}))
}

func TestNeedsPreprocessing(t *testing.T) {
	tests := []struct {
		file string
		want bool
	}{
		{"kernel.c", true},
		{"kernel.h", true},
		{"kernel.i", false},
		{"KERNEL.I", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NeedsPreprocessing(tc.file), tc.file)
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := Command(options.Preprocess{Command: "no-such-preprocessor-ralph"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-preprocessor-ralph")
}

func TestPreprocessKeepsPragmas(t *testing.T) {
	if _, err := Command(options.Preprocess{}); err != nil {
		t.Skip("no C preprocessor available")
	}
	if _, err := exec.LookPath("cc"); err != nil {
		t.Skip("cc not available")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "size.h"), []byte("#define N 16\n"), 0o644))
	src := `#include "size.h"
void f(int A[N])
{
#pragma scop
  for (int i = 0; i < N; i++)
    A[i] = SCALE * i;
#pragma endscop
}
`
	file := filepath.Join(dir, "kernel.c")
	require.NoError(t, os.WriteFile(file, []byte(src), 0o644))

	out, err := Preprocess(context.Background(), file, options.Preprocess{Command: "cc", Defines: []string{"SCALE=3"}})
	require.NoError(t, err)
	assert.Contains(t, out, "#pragma scop")
	assert.Contains(t, out, "#pragma endscop")
	assert.Contains(t, out, "i < 16")
	assert.Contains(t, out, "3 * i")
	assert.False(t, strings.Contains(out, "SCALE"))
}
