package options

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		file string
		want func(o *Options)
	}{
		{"../../testdata/config/pencil.yaml", func(o *Options) {
			o.Autodetect = true
			o.EncapsulateDynamicControl = true
			o.Functions = []string{"kernel", "foo"}
			o.Preprocess = Preprocess{Enable: true, IncludePaths: []string{"include"}, Defines: []string{"N=64"}}
		}},
		{"../../testdata/config/pencil.toml", func(o *Options) {
			o.Autodetect = true
			o.InlineAll = true
			o.SummaryCacheSize = 8
			o.Functions = []string{"kernel"}
			o.Preprocess = Preprocess{Command: "gcc", Defines: []string{"N=64", "DEBUG"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			got, err := Load(tt.file)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			want := Default()
			tt.want(&want)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("options mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadUnknownField(t *testing.T) {
	_, err := Load("../../testdata/config/bad.toml")
	if err == nil {
		t.Fatal("expected an error for an unknown option")
	}
	if !strings.Contains(err.Error(), "bad.toml") {
		t.Errorf("error %q does not name the file", err)
	}
}

func TestWantFunction(t *testing.T) {
	o := Default()
	if !o.WantFunction("anything") {
		t.Error("no filter should accept every function")
	}
	o.Functions = []string{"kernel"}
	if !o.WantFunction("kernel") || o.WantFunction("main") {
		t.Error("filter mismatch")
	}
}
