// Package options holds the settings of a scan, loaded from a YAML or
// TOML file and then overridden from the command line.
package options

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"unicode"

	"github.com/naoina/toml"
	"gopkg.in/yaml.v3"
)

// Options controls scop extraction.
type Options struct {
	// Autodetect extracts the largest analyzable region of each function
	// instead of the region between scop pragmas.
	Autodetect bool `yaml:"autodetect" toml:"autodetect"`
	// EncapsulateDynamicControl turns subtrees with data-dependent control
	// into single opaque statements.
	EncapsulateDynamicControl bool `yaml:"encapsulate_dynamic_control" toml:"encapsulate_dynamic_control"`
	// DetectConditionalAssignment rewrites if/else pairs assigning the same
	// variable into a single conditional assignment.
	DetectConditionalAssignment bool `yaml:"detect_conditional_assignment" toml:"detect_conditional_assignment"`
	// Pencil enables pencil_access summaries and __pencil_* builtins.
	Pencil bool `yaml:"pencil" toml:"pencil"`
	// InlineAll inlines every called function with a body, not just the
	// ones declared inline.
	InlineAll bool `yaml:"inline_all" toml:"inline_all"`
	// Functions restricts scanning to the named functions.
	Functions []string `yaml:"functions" toml:"functions"`
	// SummaryCacheSize bounds the number of cached function summaries.
	SummaryCacheSize int `yaml:"summary_cache_size" toml:"summary_cache_size"`
	// Preprocess runs the external preprocessor on the input.
	Preprocess Preprocess `yaml:"preprocess" toml:"preprocess"`
}

// Preprocess configures the external C preprocessor.
type Preprocess struct {
	Enable       bool     `yaml:"enable" toml:"enable"`
	Command      string   `yaml:"command" toml:"command"`
	IncludePaths []string `yaml:"include_paths" toml:"include_paths"`
	Defines      []string `yaml:"defines" toml:"defines"`
	Undefines    []string `yaml:"undefines" toml:"undefines"`
}

// Default returns the default options.
func Default() Options {
	return Options{
		Pencil:           true,
		SummaryCacheSize: 64,
	}
}

var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return strings.ToLower(strings.Replace(key, "_", "", -1))
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return tomlKey(rt, field)
	},
	MissingField: func(rt reflect.Type, field string) error {
		return fmt.Errorf("field '%s' is not defined in %s", field, rt.String())
	},
}

// tomlKey maps a struct field to the key named by its toml tag.
func tomlKey(rt reflect.Type, field string) string {
	if f, ok := rt.FieldByName(field); ok {
		if tag := strings.Split(f.Tag.Get("toml"), ",")[0]; tag != "" {
			return tag
		}
	}
	return snake(field)
}

func snake(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Load reads options from file on top of the defaults. Files ending in
// .toml are TOML, anything else YAML.
func Load(file string) (Options, error) {
	opts := Default()
	data, err := os.ReadFile(file)
	if err != nil {
		return opts, err
	}
	if strings.EqualFold(filepath.Ext(file), ".toml") {
		err = tomlSettings.NewDecoder(bufio.NewReader(bytes.NewReader(data))).Decode(&opts)
		// Add file name to errors that have a line number.
		if _, ok := err.(*toml.LineError); ok {
			err = fmt.Errorf("%s, %v", file, err)
		}
		return opts, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&opts); err != nil && err != io.EOF {
		return opts, fmt.Errorf("%s: %v", file, err)
	}
	return opts, nil
}

// WantFunction reports whether the function name is to be scanned.
func (o Options) WantFunction(name string) bool {
	if len(o.Functions) == 0 {
		return true
	}
	for _, f := range o.Functions {
		if f == name {
			return true
		}
	}
	return false
}
