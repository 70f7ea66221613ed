// Package preproc runs an external C preprocessor (cc -E) over the input
// before scanning. Pragmas survive preprocessing, so scop regions may
// contain macro-expanded code.
package preproc

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/raymyers/ralph-pet/pkg/options"
)

// candidates are tried in order when no command is configured.
var candidates = []string{"cc", "gcc", "clang"}

// Args returns the arguments passed to the preprocessor for filename.
func Args(filename string, opts options.Preprocess) []string {
	args := []string{"-E"}
	for _, path := range opts.IncludePaths {
		args = append(args, "-I"+path)
	}
	for _, def := range opts.Defines {
		args = append(args, "-D"+def)
	}
	for _, name := range opts.Undefines {
		args = append(args, "-U"+name)
	}
	return append(args, filename)
}

// Command returns the preprocessor to run: the configured command, or
// the first of cc, gcc and clang found in PATH.
func Command(opts options.Preprocess) (string, error) {
	if opts.Command != "" {
		path, err := exec.LookPath(opts.Command)
		if err != nil {
			return "", errors.Wrapf(err, "preprocessor %s", opts.Command)
		}
		return path, nil
	}
	for _, cmd := range candidates {
		if path, err := exec.LookPath(cmd); err == nil {
			return path, nil
		}
	}
	return "", errors.Errorf("no C preprocessor found (tried: %s)", strings.Join(candidates, ", "))
}

// Preprocess runs the preprocessor on filename and returns its output.
// The command runs in the directory of filename so that relative
// includes resolve.
func Preprocess(ctx context.Context, filename string, opts options.Preprocess) (string, error) {
	cmdPath, err := Command(opts)
	if err != nil {
		return "", err
	}
	cmd := exec.CommandContext(ctx, cmdPath, Args(filepath.Base(filename), opts)...)
	cmd.Dir = filepath.Dir(filename)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("preprocessing %s failed: %v\n%s", filename, err, stderr.String())
	}
	return stdout.String(), nil
}

// NeedsPreprocessing reports whether filename may need preprocessing.
// Files ending in .i are already preprocessed.
func NeedsPreprocessing(filename string) bool {
	return !strings.EqualFold(filepath.Ext(filename), ".i")
}
