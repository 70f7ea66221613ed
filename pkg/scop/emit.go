package scop

import (
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/raymyers/ralph-pet/pkg/affine"
	"github.com/raymyers/ralph-pet/pkg/pet"
	"gopkg.in/yaml.v3"
)

type yScop struct {
	Start         int             `yaml:"start"`
	End           int             `yaml:"end"`
	Indent        string          `yaml:"indent"`
	Context       string          `yaml:"context"`
	Schedule      *ySchedule      `yaml:"schedule,omitempty"`
	Types         []yType         `yaml:"types,omitempty"`
	Arrays        []yArray        `yaml:"arrays"`
	Statements    []yStmt         `yaml:"statements"`
	Implications  []yImplication  `yaml:"implications,omitempty"`
	Independences []yIndependence `yaml:"independences,omitempty"`
}

type ySchedule struct {
	Domain   string       `yaml:"domain,omitempty"`
	Filter   string       `yaml:"filter,omitempty"`
	Schedule string       `yaml:"schedule,omitempty"`
	Sequence []*ySchedule `yaml:"sequence,omitempty"`
	Set      []*ySchedule `yaml:"set,omitempty"`
	Child    *ySchedule   `yaml:"child,omitempty"`
}

type yType struct {
	Name       string `yaml:"name"`
	Definition string `yaml:"definition"`
}

type yArray struct {
	Context         string `yaml:"context"`
	Extent          string `yaml:"extent"`
	ValueBounds     string `yaml:"value_bounds,omitempty"`
	ElementType     string `yaml:"element_type"`
	ElementSize     int64  `yaml:"element_size"`
	ElementIsRecord int    `yaml:"element_is_record,omitempty"`
	Declared        int    `yaml:"declared,omitempty"`
	Exposed         int    `yaml:"exposed,omitempty"`
	Outer           int    `yaml:"outer,omitempty"`
	LiveOut         int    `yaml:"live_out,omitempty"`
	UniquelyDefined int    `yaml:"uniquely_defined,omitempty"`
}

type yStmt struct {
	Line      int      `yaml:"line"`
	Domain    string   `yaml:"domain"`
	Body      yBody    `yaml:"body"`
	Arguments []*yExpr `yaml:"arguments,omitempty"`
}

type yBody struct {
	Type string `yaml:"type"`
	Expr *yExpr `yaml:"expr,omitempty"`
	Text string `yaml:"text,omitempty"`
}

type yExpr struct {
	Type      string   `yaml:"type"`
	Operation string   `yaml:"operation,omitempty"`
	Name      string   `yaml:"name,omitempty"`
	Value     string   `yaml:"value,omitempty"`
	Index     string   `yaml:"index,omitempty"`
	Reference string   `yaml:"reference,omitempty"`
	Read      *int     `yaml:"read,omitempty"`
	Write     *int     `yaml:"write,omitempty"`
	Kill      *int     `yaml:"kill,omitempty"`
	TypeName  string   `yaml:"type_name,omitempty"`
	Arguments []*yExpr `yaml:"arguments,omitempty"`
}

type yImplication struct {
	Satisfied int64  `yaml:"satisfied"`
	Extension string `yaml:"extension"`
}

type yIndependence struct {
	Filter string `yaml:"filter"`
	Local  string `yaml:"local"`
}

// Emit writes s as YAML.
func Emit(w io.Writer, s *Scop) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(toYAML(s)); err != nil {
		return err
	}
	return enc.Close()
}

// EmitAll writes each scop as a separate YAML document.
func EmitAll(w io.Writer, scops []*Scop) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, s := range scops {
		if err := enc.Encode(toYAML(s)); err != nil {
			return err
		}
	}
	return enc.Close()
}

func toYAML(s *Scop) yScop {
	out := yScop{
		Start:   s.Loc.Start,
		End:     s.Loc.End,
		Indent:  s.Loc.Indent,
		Context: s.Context.String(),
	}
	if s.Schedule != nil {
		out.Schedule = &ySchedule{Domain: unionString(domains(s.Stmts)), Child: scheduleYAML(s, s.Schedule)}
	}
	for _, t := range s.Types {
		out.Types = append(out.Types, yType{Name: t.Name, Definition: t.Definition})
	}
	out.Arrays = []yArray{}
	for _, a := range s.Arrays {
		ya := yArray{
			Context:         a.Context.String(),
			Extent:          a.Extent.String(),
			ElementType:     a.ElementType,
			ElementSize:     a.ElementSize,
			ElementIsRecord: flag(a.ElementIsRecord),
			Declared:        flag(a.Declared),
			Exposed:         flag(a.Exposed),
			Outer:           flag(a.Outer),
			LiveOut:         flag(a.LiveOut),
			UniquelyDefined: flag(a.UniquelyDefined),
		}
		if !a.ValueBounds.IsUniverse() {
			ya.ValueBounds = a.ValueBounds.String()
		}
		out.Arrays = append(out.Arrays, ya)
	}
	out.Statements = []yStmt{}
	for _, st := range s.Stmts {
		ys := yStmt{Line: st.Loc.Line, Domain: st.Domain.String(), Body: bodyYAML(st)}
		for _, arg := range st.Args {
			ys.Arguments = append(ys.Arguments, exprYAML(st, arg))
		}
		out.Statements = append(out.Statements, ys)
	}
	for _, im := range s.Implications {
		out.Implications = append(out.Implications, yImplication{Satisfied: im.Satisfied, Extension: im.Extension.String()})
	}
	for _, ind := range s.Independences {
		out.Independences = append(out.Independences, yIndependence{
			Filter: independenceFilter(s, ind),
			Local:  "{ " + strings.Join(wrapTuples(ind.Local), "; ") + " }",
		})
	}
	return out
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

func domains(stmts []*Stmt) []affine.Set {
	out := make([]affine.Set, len(stmts))
	for i, st := range stmts {
		out[i] = st.Domain
	}
	return out
}

// unionString renders a union of sets over different tuples.
func unionString(sets []affine.Set) string {
	params := map[string]bool{}
	var parts []string
	for _, s := range sets {
		for _, p := range s.ParamNames() {
			params[strings.TrimPrefix(p, "$")] = true
		}
		text := s.String()
		if i := strings.Index(text, "{ "); i >= 0 {
			text = text[i+2:]
		}
		parts = append(parts, strings.TrimSuffix(text, " }"))
	}
	var names []string
	for p := range params {
		names = append(names, p)
	}
	sort.Strings(names)
	prefix := ""
	if len(names) > 0 {
		prefix = "[" + strings.Join(names, ", ") + "] -> "
	}
	return prefix + "{ " + strings.Join(parts, "; ") + " }"
}

func tuple(st *Stmt) string {
	var dims []string
	for _, d := range st.Domain.Dims() {
		dims = append(dims, strings.TrimPrefix(d, "$"))
	}
	return st.Name + "[" + strings.Join(dims, ", ") + "]"
}

func wrapTuples(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n + "[]"
	}
	return out
}

func scheduleYAML(s *Scop, sc *Schedule) *ySchedule {
	switch sc.Kind {
	case Leaf:
		return nil
	case Band:
		var parts []string
		for _, name := range sc.Statements() {
			if st := s.Stmt(name); st != nil {
				parts = append(parts, tuple(st)+" -> [("+strings.TrimPrefix(sc.Iter, "$")+")]")
			}
		}
		return &ySchedule{Schedule: "[{ " + strings.Join(parts, "; ") + " }]", Child: scheduleYAML(s, sc.Children[0])}
	}
	var items []*ySchedule
	for _, c := range sc.Children {
		var tuples []string
		for _, name := range c.Statements() {
			if st := s.Stmt(name); st != nil {
				tuples = append(tuples, tuple(st))
			}
		}
		items = append(items, &ySchedule{Filter: "{ " + strings.Join(tuples, "; ") + " }", Child: scheduleYAML(s, c)})
	}
	if sc.Kind == Set {
		return &ySchedule{Set: items}
	}
	return &ySchedule{Sequence: items}
}

func independenceFilter(s *Scop, ind Independence) string {
	var parts []string
	for _, a := range ind.Stmts {
		for _, b := range ind.Stmts {
			sa, sb := s.Stmt(a), s.Stmt(b)
			if sa == nil || sb == nil {
				continue
			}
			var primed []string
			for _, d := range sb.Domain.Dims() {
				primed = append(primed, strings.TrimPrefix(d, "$")+"'")
			}
			it := strings.TrimPrefix(ind.Iter, "$")
			parts = append(parts, tuple(sa)+" -> "+sb.Name+"["+strings.Join(primed, ", ")+"] : "+it+"' != "+it)
		}
	}
	return "{ " + strings.Join(parts, "; ") + " }"
}

func bodyYAML(st *Stmt) yBody {
	if e, ok := st.Expr(); ok {
		return yBody{Type: "expression", Expr: exprYAML(st, e)}
	}
	return yBody{Type: treeKind(st.Body), Text: pet.DumpString(st.Body)}
}

func treeKind(t pet.Tree) string {
	switch t.(type) {
	case *pet.Block:
		return "block"
	case *pet.For:
		return "for"
	case *pet.While:
		return "while"
	case *pet.InfiniteLoop:
		return "infinite-loop"
	case *pet.If:
		return "if"
	case *pet.Decl:
		return "declaration"
	}
	return "tree"
}

func one(b bool) *int {
	v := flag(b)
	return &v
}

func exprYAML(st *Stmt, e pet.Expr) *yExpr {
	switch x := e.(type) {
	case *pet.IntLit:
		return &yExpr{Type: "int", Value: strconv.FormatInt(x.Value, 10)}
	case *pet.DoubleLit:
		text := x.Text
		if text == "" {
			text = strconv.FormatFloat(x.Value, 'g', -1, 64)
		}
		return &yExpr{Type: "double", Value: text}
	case *pet.Access:
		acc := st.access(x.RefID)
		if acc == nil {
			return &yExpr{Type: "access", Name: pet.FormatExpr(x)}
		}
		if acc.Affine {
			return &yExpr{Type: "access", Index: affineIndex(st, acc.Value)}
		}
		out := &yExpr{Type: "access", Index: acc.Index.String(), Reference: acc.RefName()}
		if acc.Kill {
			out.Kill = one(true)
		} else {
			out.Read = one(acc.Read)
			out.Write = one(acc.Write || acc.MayWrite)
		}
		for _, arg := range x.Args {
			if len(pet.Accesses(arg)) > 0 && !acc.Exact {
				out.Arguments = append(out.Arguments, exprYAML(st, arg))
			}
		}
		return out
	case *pet.Op:
		out := &yExpr{Type: "op", Operation: x.Kind.String()}
		for _, arg := range x.Args {
			out.Arguments = append(out.Arguments, exprYAML(st, arg))
		}
		return out
	case *pet.Call:
		out := &yExpr{Type: "call", Name: x.Name}
		for _, arg := range x.Args {
			out.Arguments = append(out.Arguments, exprYAML(st, arg))
		}
		return out
	case *pet.Cast:
		return &yExpr{Type: "cast", TypeName: x.To.String(), Arguments: []*yExpr{exprYAML(st, x.Arg)}}
	}
	return &yExpr{Type: "unknown"}
}

func (s *Stmt) access(ref int) *Access {
	for _, a := range s.Accesses {
		if a.Ref == ref {
			return a
		}
	}
	return nil
}

// Access returns the access with the given reference id.
func (s *Stmt) Access(ref int) *Access { return s.access(ref) }

// affineIndex renders the known value of an affine access as a function
// of the statement instance.
func affineIndex(st *Stmt, v affine.PwAff) string {
	var parts []string
	for _, pc := range v.Pieces() {
		text := tuple(st) + " -> [(" + pc.Val.String() + ")]"
		if cond := pc.Dom.Condition(); cond != "true" {
			text += " : " + cond
		}
		parts = append(parts, text)
	}
	return "{ " + strings.Join(parts, "; ") + " }"
}
