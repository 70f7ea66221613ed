package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/raymyers/ralph-pet/pkg/cabs"
	"github.com/raymyers/ralph-pet/pkg/diag"
	"github.com/raymyers/ralph-pet/pkg/options"
	"github.com/raymyers/ralph-pet/pkg/pet"
	"github.com/raymyers/ralph-pet/pkg/preproc"
	"github.com/raymyers/ralph-pet/pkg/prog"
	"github.com/raymyers/ralph-pet/pkg/scan"
	"github.com/raymyers/ralph-pet/pkg/scop"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

var version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// singleDashFlags accept pet-style single-dash spelling.
var singleDashFlags = []string{
	"autodetect", "encapsulate-dynamic-control", "detect-conditional-assignment",
	"pencil", "inline-all", "dparse", "dtree", "dscop", "dprog", "stats",
}

// normalizeFlags converts single-dash flags like -autodetect to
// --autodetect.
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = arg
		name := strings.TrimPrefix(arg, "-")
		if strings.HasPrefix(name, "-") || name == arg {
			continue
		}
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name = name[:eq]
		}
		for _, flagName := range singleDashFlags {
			if name == flagName {
				result[i] = "-" + arg
				break
			}
		}
	}
	return result
}

// wordSepNormalizeFunc accepts underscores in flag names, so that option
// file keys can be used as flags.
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.Replace(name, "_", "-", -1))
}

type cliFlags struct {
	autodetect                  bool
	encapsulateDynamicControl   bool
	detectConditionalAssignment bool
	pencil                      bool
	inlineAll                   bool
	config                      string
	functions                   []string

	dParse bool
	dTree  string
	dScop  bool
	dProg  bool
	stats  bool

	includePaths []string
	defines      []string
	undefines    []string
	cpp          string

	noColor bool
	verbose bool
	color   bool
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	f := &cliFlags{}
	rootCmd := &cobra.Command{
		Use:   "ralph-pet [file...]",
		Short: "ralph-pet extracts polyhedral scops from C",
		Long: `ralph-pet extracts static control parts from C source, either
between #pragma scop and #pragma endscop or, with --autodetect, as the
largest analyzable regions, and prints them as pet scop YAML.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			opts, err := f.options(cmd.Flags())
			if err != nil {
				fmt.Fprintf(errOut, "ralph-pet: %v\n", err)
				return err
			}
			errOut, tty := diag.Terminal(errOut)
			f.color = tty && !f.noColor && !color.NoColor
			return runFiles(cmd.Context(), args, opts, f, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.Flags().SetNormalizeFunc(wordSepNormalizeFunc)

	fl := rootCmd.Flags()
	fl.BoolVar(&f.autodetect, "autodetect", false, "Extract the largest analyzable regions instead of pragma-delimited ones")
	fl.BoolVar(&f.encapsulateDynamicControl, "encapsulate-dynamic-control", false, "Turn data-dependent control into single statements")
	fl.BoolVar(&f.detectConditionalAssignment, "detect-conditional-assignment", false, "Turn if/else assigning one variable into a conditional assignment")
	fl.BoolVar(&f.pencil, "pencil", true, "Support pencil_access summaries and pencil builtins")
	fl.BoolVar(&f.inlineAll, "inline-all", false, "Inline every called function with a body")
	fl.StringVar(&f.config, "config", "", "Load options from a YAML or TOML file")
	fl.StringSliceVar(&f.functions, "function", nil, "Only scan the named functions")

	fl.BoolVar(&f.dParse, "dparse", false, "Dump the parsed program")
	fl.StringVar(&f.dTree, "dtree", "", "Dump the pet tree of every region (text or raw)")
	fl.Lookup("dtree").NoOptDefVal = "text"
	fl.BoolVar(&f.dScop, "dscop", false, "Print the scops as YAML (default output)")
	fl.BoolVar(&f.dProg, "dprog", false, "Print the arrays and reference groups of every scop")
	fl.BoolVar(&f.stats, "stats", false, "Print size figures of the scops")

	fl.StringArrayVarP(&f.includePaths, "include", "I", nil, "Add directory to include search path")
	fl.StringArrayVarP(&f.defines, "define", "D", nil, "Define macro (NAME or NAME=VALUE)")
	fl.StringArrayVarP(&f.undefines, "undefine", "U", nil, "Undefine macro")
	fl.StringVar(&f.cpp, "cpp", "", "Preprocess the input with this command")

	fl.BoolVar(&f.noColor, "no-color", false, "Disable coloured diagnostics")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "Print progress and internal error details")
	return rootCmd
}

// options loads the config file, if any, and applies the flags that were
// set explicitly on top of it.
func (f *cliFlags) options(fs *pflag.FlagSet) (options.Options, error) {
	opts := options.Default()
	if f.config != "" {
		var err error
		if opts, err = options.Load(f.config); err != nil {
			return opts, err
		}
	}
	set := func(name string, dst *bool, v bool) {
		if fs.Changed(name) {
			*dst = v
		}
	}
	set("autodetect", &opts.Autodetect, f.autodetect)
	set("encapsulate-dynamic-control", &opts.EncapsulateDynamicControl, f.encapsulateDynamicControl)
	set("detect-conditional-assignment", &opts.DetectConditionalAssignment, f.detectConditionalAssignment)
	set("pencil", &opts.Pencil, f.pencil)
	set("inline-all", &opts.InlineAll, f.inlineAll)
	if fs.Changed("function") {
		opts.Functions = f.functions
	}
	pp := &opts.Preprocess
	pp.IncludePaths = append(pp.IncludePaths, f.includePaths...)
	pp.Defines = append(pp.Defines, f.defines...)
	pp.Undefines = append(pp.Undefines, f.undefines...)
	if f.cpp != "" {
		pp.Command = f.cpp
	}
	if f.cpp != "" || len(f.includePaths) > 0 || len(f.defines) > 0 || len(f.undefines) > 0 {
		pp.Enable = true
	}
	switch f.dTree {
	case "", "text", "raw":
	default:
		return opts, fmt.Errorf("invalid --dtree mode %q (want text or raw)", f.dTree)
	}
	return opts, nil
}

// fileResult is the outcome of processing one input file. Its output and
// diagnostics are buffered so that files processed concurrently print in
// command line order.
type fileResult struct {
	name   string
	out    bytes.Buffer
	diags  bytes.Buffer
	scops  []*scop.Scop
	failed bool
}

func runFiles(ctx context.Context, files []string, opts options.Options, f *cliFlags, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	results := make([]*fileResult, len(files))
	g, ctx := errgroup.WithContext(ctx)
	for i, file := range files {
		i, file := i, file
		results[i] = &fileResult{name: file}
		g.Go(func() error {
			return processFile(ctx, results[i], opts, f)
		})
	}
	gerr := g.Wait()

	var all []*scop.Scop
	var stats []prog.Stats
	failed := false
	for _, r := range results {
		if f.verbose {
			fmt.Fprintf(errOut, "ralph-pet: %s: %d scops\n", r.name, len(r.scops))
		}
		if _, err := errOut.Write(r.diags.Bytes()); err != nil {
			return err
		}
		if _, err := out.Write(r.out.Bytes()); err != nil {
			return err
		}
		failed = failed || r.failed
		all = append(all, r.scops...)
		if f.stats {
			for _, sc := range r.scops {
				p, err := prog.New(sc)
				if err != nil {
					fmt.Fprintf(errOut, "ralph-pet: %v\n", err)
					return err
				}
				stats = append(stats, p.Stats())
			}
		}
	}
	if gerr != nil {
		return gerr
	}
	if f.dParse || f.dTree != "" {
		return nil
	}
	if f.stats {
		prog.WriteStats(out, stats)
		return nil
	}
	if f.dProg {
		for _, sc := range all {
			p, err := prog.New(sc)
			if err != nil {
				fmt.Fprintf(errOut, "ralph-pet: %v\n", err)
				return err
			}
			fmt.Fprintf(out, "%s:\n", sc.Function)
			p.WriteArrays(out)
			p.WriteGroups(out)
		}
		return nil
	}
	if err := scop.EmitAll(out, all); err != nil {
		fmt.Fprintf(errOut, "ralph-pet: %v\n", err)
		return err
	}
	if failed {
		return errScanFailed
	}
	return nil
}

var errScanFailed = fmt.Errorf("some functions could not be scanned")

func processFile(ctx context.Context, r *fileResult, opts options.Options, f *cliFlags) error {
	src, err := readSource(ctx, r.name, opts.Preprocess)
	if err != nil {
		fmt.Fprintf(&r.diags, "ralph-pet: %v\n", err)
		return err
	}
	program, err := scan.Parse(src)
	if err != nil {
		fmt.Fprintf(&r.diags, "ralph-pet: %s: %v\n", r.name, err)
		return err
	}
	if f.dParse {
		cabs.NewPrinter(&r.out).PrintProgram(program)
		return nil
	}

	reporter := diag.NewReporter(&r.diags, r.name, src)
	reporter.SetColor(f.color)
	reporter.Autodetect = opts.Autodetect
	reporter.Verbose = f.verbose
	s := scan.New(program, src, opts)
	s.SetReporter(reporter)

	if f.dTree != "" {
		return dumpTrees(r, program, s, opts, f.dTree, reporter)
	}
	scops, err := s.Scan()
	r.scops = scops
	if err != nil {
		reporter.Report(err)
		return err
	}
	r.failed = reporter.Count() > 0
	return nil
}

func dumpTrees(r *fileResult, program *cabs.Program, s *scan.Scanner, opts options.Options, mode string, reporter *diag.Reporter) error {
	for _, def := range program.Definitions {
		fn, ok := def.(cabs.FunDef)
		if !ok || fn.Body == nil || !opts.WantFunction(fn.Name) {
			continue
		}
		t, err := s.Tree(fn)
		if err != nil {
			reporter.Report(err)
			if diag.IsInternal(err) {
				return err
			}
			continue
		}
		if t == nil {
			continue
		}
		fmt.Fprintf(&r.out, "%s:\n", fn.Name)
		if mode == "raw" {
			spew.Fdump(&r.out, t)
			continue
		}
		pet.Dump(&r.out, t)
	}
	return nil
}

// readSource reads file, running the preprocessor first if enabled.
func readSource(ctx context.Context, file string, opts options.Preprocess) (string, error) {
	if opts.Enable && preproc.NeedsPreprocessing(file) {
		return preproc.Preprocess(ctx, file, opts)
	}
	content, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}
	return string(content), nil
}
