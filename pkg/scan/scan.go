// Package scan extracts scops from parsed C. Statements are converted
// into pet trees, which tree2scop turns into the polyhedral model; the
// arrays of the resulting scop are then completed from the declarations
// seen while scanning.
package scan

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set"
	lru "github.com/hashicorp/golang-lru"
	"github.com/raymyers/ralph-pet/pkg/cabs"
	"github.com/raymyers/ralph-pet/pkg/ctypes"
	"github.com/raymyers/ralph-pet/pkg/diag"
	"github.com/raymyers/ralph-pet/pkg/lexer"
	"github.com/raymyers/ralph-pet/pkg/options"
	"github.com/raymyers/ralph-pet/pkg/parser"
	"github.com/raymyers/ralph-pet/pkg/pet"
	"github.com/raymyers/ralph-pet/pkg/scop"
	"github.com/raymyers/ralph-pet/pkg/tree2scop"
)

// Scanner extracts the scops of one translation unit.
type Scanner struct {
	prog     *cabs.Program
	src      string
	opts     options.Options
	reporter *diag.Reporter

	// file scope
	typedefs   map[string]ctypes.Type
	structs    map[string]ctypes.Type
	structDefs map[string]cabs.Definition
	enums      map[string]int64
	globals    map[string]*pet.ID
	funcs      map[string]cabs.FunDef

	// arrays
	sizes     map[*pet.ID][]pet.Expr
	typeSizes map[string][]pet.Expr
	consts    map[*pet.ID]bool
	summaries *lru.Cache

	// function scope
	scopes     []map[string]*pet.ID
	used       mapset.Set
	declared   mapset.Set
	renames    []*pet.ID
	topLevel   bool
	fnBody     *cabs.Block
	returnRoot *cabs.Block
	retID      *pet.ID
	call2id    map[cabs.Span]*pet.ID
	inlining   []string
	region     region
}

// region is the part of the current function being extracted.
type region struct {
	autodetect  bool
	independent []cabs.Pragma
	liveOut     []string
}

// New returns a scanner for prog, parsed from src.
func New(prog *cabs.Program, src string, opts options.Options) *Scanner {
	size := opts.SummaryCacheSize
	if size <= 0 {
		size = options.Default().SummaryCacheSize
	}
	cache, _ := lru.New(size)
	s := &Scanner{
		prog:       prog,
		src:        src,
		opts:       opts,
		typedefs:   map[string]ctypes.Type{},
		structs:    map[string]ctypes.Type{},
		structDefs: map[string]cabs.Definition{},
		enums:      map[string]int64{},
		globals:    map[string]*pet.ID{},
		funcs:      map[string]cabs.FunDef{},
		sizes:      map[*pet.ID][]pet.Expr{},
		typeSizes:  map[string][]pet.Expr{},
		consts:     map[*pet.ID]bool{},
		summaries:  cache,
		call2id:    map[cabs.Span]*pet.ID{},
	}
	s.collectFileScope()
	return s
}

// Parse parses src, reporting parse errors as a single error.
func Parse(src string) (*cabs.Program, error) {
	p := parser.New(lexer.New(src))
	prog := p.ParseProgram()
	if errs := p.Errors(); len(errs) > 0 {
		return nil, fmt.Errorf("parse errors:\n  %s", strings.Join(errs, "\n  "))
	}
	return prog, nil
}

// SetReporter makes the scanner print the failures of functions it
// cannot extract a scop from.
func (s *Scanner) SetReporter(r *diag.Reporter) {
	s.reporter = r
}

func (s *Scanner) report(err error) {
	if s.reporter != nil {
		s.reporter.Report(err)
	}
}

// Typedef implements ctypes.Env.
func (s *Scanner) Typedef(name string) (ctypes.Type, bool) {
	t, ok := s.typedefs[name]
	return t, ok
}

// Struct implements ctypes.Env.
func (s *Scanner) Struct(name string) (ctypes.Type, bool) {
	t, ok := s.structs[name]
	return t, ok
}

func (s *Scanner) collectFileScope() {
	for _, def := range s.prog.Definitions {
		switch d := def.(type) {
		case cabs.StructDef:
			s.addRecord("struct", d.Name, d.Fields, d)
		case cabs.UnionDef:
			s.addRecord("union", d.Name, d.Fields, d)
		case cabs.EnumDef:
			s.addEnum(d)
		case cabs.TypedefDef:
			var inlineType ctypes.Type
			switch inline := d.InlineType.(type) {
			case cabs.StructDef:
				inlineType = s.addRecord("struct", inline.Name, inline.Fields, inline)
				if inline.Name == "" {
					s.structDefs[d.Name] = inline
				}
			case cabs.UnionDef:
				inlineType = s.addRecord("union", inline.Name, inline.Fields, inline)
				if inline.Name == "" {
					s.structDefs[d.Name] = inline
				}
			case cabs.EnumDef:
				s.addEnum(inline)
				inlineType = ctypes.Int()
			}
			if inlineType != nil {
				s.typedefs[d.Name] = inlineType
				continue
			}
			t, sizes, err := s.declType(d.TypeSpec, d.ArrayDims)
			if err != nil {
				continue
			}
			s.typedefs[d.Name] = t
			if len(sizes) > 0 {
				s.typeSizes[d.Name] = sizes
			}
		case cabs.VarDef:
			t, sizes, err := s.declType(d.TypeSpec, d.ArrayDims)
			if err != nil {
				continue
			}
			id := pet.NewID(d.Name, t)
			s.globals[d.Name] = id
			s.recordDecl(id, d.TypeSpec, sizes)
		case cabs.FunDef:
			if prev, ok := s.funcs[d.Name]; !ok || prev.Body == nil {
				s.funcs[d.Name] = d
			}
		}
	}
}

func (s *Scanner) addRecord(kind, name string, fields []cabs.Field, def cabs.Definition) ctypes.Type {
	var out []ctypes.Field
	for _, f := range fields {
		t, _, err := s.declType(f.TypeSpec, f.ArrayDims)
		if err != nil {
			t = ctypes.Int()
		}
		out = append(out, ctypes.Field{Name: f.Name, Type: t})
	}
	var t ctypes.Type = ctypes.Tstruct{Name: name, Fields: out}
	if kind == "union" {
		t = ctypes.Tunion{Name: name, Fields: out}
	}
	if name != "" {
		s.structs[kind+" "+name] = t
		s.structDefs[kind+" "+name] = def
	}
	return t
}

func (s *Scanner) addEnum(d cabs.EnumDef) {
	var next int64
	for _, v := range d.Values {
		if v.Value != nil {
			if e, err := s.extractExpr(v.Value); err == nil {
				if k, ok := constValue(e); ok {
					next = k
				}
			}
		}
		s.enums[v.Name] = next
		next++
	}
}

// Scan extracts the scops of all selected functions. Functions that do
// not yield a scop are reported and skipped; internal errors abort.
func (s *Scanner) Scan() ([]*scop.Scop, error) {
	var out []*scop.Scop
	for _, def := range s.prog.Definitions {
		fn, ok := def.(cabs.FunDef)
		if !ok || fn.Body == nil || !s.opts.WantFunction(fn.Name) {
			continue
		}
		sc, err := s.ScanFunction(fn)
		if err != nil {
			if diag.IsInternal(err) {
				return out, err
			}
			s.report(err)
			continue
		}
		if sc != nil {
			out = append(out, sc)
		}
	}
	return out, nil
}

// ScanFunction extracts the scop of fn. A nil scop without error means
// fn has no scop pragmas, or nothing could be extracted in autodetect
// mode.
func (s *Scanner) ScanFunction(fn cabs.FunDef) (*scop.Scop, error) {
	s.enterFunction(fn)
	defer s.leaveFunction()

	t, loc, err := s.extractFunction(fn)
	if err != nil || t == nil {
		return nil, err
	}
	sc, err := tree2scop.Build(t, tree2scop.Options{
		EncapsulateDynamicControl:   s.opts.EncapsulateDynamicControl,
		DetectConditionalAssignment: s.opts.DetectConditionalAssignment,
	})
	if err != nil {
		return nil, err
	}
	sc.Loc = loc
	sc.Function = fn.Name
	s.scanArrays(sc)
	return sc, nil
}

// Tree returns the pet tree of the region of fn that would be turned
// into a scop, or nil if there is none.
func (s *Scanner) Tree(fn cabs.FunDef) (pet.Tree, error) {
	s.enterFunction(fn)
	defer s.leaveFunction()
	t, _, err := s.extractFunction(fn)
	return t, err
}

func (s *Scanner) extractFunction(fn cabs.FunDef) (pet.Tree, pet.Loc, error) {
	if s.opts.Autodetect {
		s.region = region{autodetect: true, independent: s.pragmas(fn.Span, "pencil independent")}
		res, err := s.extractBlock(fn.Body, true)
		if err != nil || res.Tree == nil {
			return nil, pet.Loc{}, err
		}
		return res.Tree, pet.LocOf(res.Tree), nil
	}
	r, ok, err := s.findRegion(fn)
	if err != nil || !ok {
		return nil, pet.Loc{}, err
	}
	s.region = region{independent: r.independent, liveOut: r.liveOut}
	t, err := s.extractRegion(r)
	if err != nil {
		return nil, pet.Loc{}, err
	}
	return t, r.loc, nil
}

// enterFunction opens the scopes of fn: its parameters and the names in
// use throughout its body.
func (s *Scanner) enterFunction(fn cabs.FunDef) {
	s.scopes = []map[string]*pet.ID{s.globals, {}}
	s.used = mapset.NewThreadUnsafeSet()
	s.declared = mapset.NewThreadUnsafeSet()
	s.renames = nil
	s.topLevel = true
	s.fnBody = fn.Body
	s.returnRoot = nil
	s.retID = nil
	s.call2id = map[cabs.Span]*pet.ID{}
	for name := range s.globals {
		s.used.Add(name)
	}
	for _, p := range fn.Params {
		s.declareParam(p)
	}
	for _, item := range fn.Body.Items {
		if ds, ok := item.(cabs.DeclStmt); ok {
			for _, d := range ds.Decls {
				s.used.Add(d.Name)
			}
		}
	}
}

func (s *Scanner) leaveFunction() {
	s.scopes = nil
	s.region = region{}
}

func (s *Scanner) declareParam(p cabs.Param) *pet.ID {
	t, sizes, err := s.declType(p.TypeSpec, p.ArrayDims)
	if err != nil {
		t = ctypes.Int()
	}
	id := pet.NewID(p.Name, t)
	s.scopes[len(s.scopes)-1][p.Name] = id
	s.used.Add(p.Name)
	s.recordDecl(id, p.TypeSpec, sizes)
	return id
}

// lookup resolves a variable name in the current scopes.
func (s *Scanner) lookup(name string) (*pet.ID, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if id, ok := s.scopes[i][name]; ok {
			return id, true
		}
	}
	return nil, false
}

func (s *Scanner) pushScope() { s.scopes = append(s.scopes, map[string]*pet.ID{}) }
func (s *Scanner) popScope()  { s.scopes = s.scopes[:len(s.scopes)-1] }

// loc converts a source range.
func (s *Scanner) loc(span cabs.Span) pet.Loc {
	return pet.Loc{Start: span.Start, End: span.End, Line: span.Line, Indent: s.indent(span.Start)}
}

// indent returns the leading whitespace of the line containing offset.
func (s *Scanner) indent(offset int) string {
	if offset > len(s.src) {
		return ""
	}
	start := strings.LastIndexByte(s.src[:offset], '\n') + 1
	end := start
	for end < len(s.src) && (s.src[end] == ' ' || s.src[end] == '\t') {
		end++
	}
	return s.src[start:end]
}
