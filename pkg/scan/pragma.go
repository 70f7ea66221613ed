package scan

import (
	"strings"

	"github.com/raymyers/ralph-pet/pkg/cabs"
	"github.com/raymyers/ralph-pet/pkg/diag"
	"github.com/raymyers/ralph-pet/pkg/pet"
)

// scopRegion is the part of a function delimited by a
// "#pragma scop"/"#pragma endscop" pair.
type scopRegion struct {
	scop, endscop cabs.Pragma
	block         *cabs.Block
	lo, hi        int // items of block inside the region
	outer         []cabs.Decl
	independent   []cabs.Pragma
	liveOut       []string
	loc           pet.Loc
}

func pragmaText(p cabs.Pragma) string {
	return strings.Join(strings.Fields(p.Text), " ")
}

// pragmas returns the pragmas inside span whose text starts with prefix.
func (s *Scanner) pragmas(span cabs.Span, prefix string) []cabs.Pragma {
	var out []cabs.Pragma
	for _, p := range s.prog.Pragmas {
		if p.Start >= span.Start && p.End <= span.End && strings.HasPrefix(pragmaText(p), prefix) {
			out = append(out, p)
		}
	}
	return out
}

// findRegion locates the first scop pragma pair of fn. It reports false
// if fn contains no scop pragma.
func (s *Scanner) findRegion(fn cabs.FunDef) (scopRegion, bool, error) {
	var (
		r     scopRegion
		state int
	)
	for _, p := range s.pragmas(fn.Span, "") {
		switch text := pragmaText(p); {
		case text == "scop" && state == 0:
			r.scop, state = p, 1
		case text == "scop" && state == 1:
			return r, false, diag.Errorf(diag.UnbalancedPragmas, p.Span, "nested scop pragma")
		case text == "endscop" && state == 0:
			return r, false, diag.Errorf(diag.UnbalancedPragmas, p.Span, "endscop pragma without scop pragma")
		case text == "endscop" && state == 1:
			r.endscop, state = p, 2
		case state == 1 && strings.HasPrefix(text, "live-out"):
			for _, name := range strings.Split(strings.TrimPrefix(text, "live-out"), ",") {
				if name = strings.TrimSpace(name); name != "" {
					r.liveOut = append(r.liveOut, name)
				}
			}
		case state == 1 && text == "pencil independent":
			r.independent = append(r.independent, p)
		}
	}
	switch state {
	case 0:
		return r, false, nil
	case 1:
		return r, false, diag.Errorf(diag.UnbalancedPragmas, r.scop.Span, "scop pragma without endscop pragma")
	}
	if err := s.locateRange(&r, fn.Body); err != nil {
		return r, false, err
	}
	r.loc = pet.Loc{
		Start:  r.scop.Start,
		End:    r.endscop.End,
		Line:   r.scop.Line,
		Indent: s.indent(r.scop.Start),
	}
	return r, true, nil
}

// locateRange finds the innermost block of b containing both pragmas of
// r and the statements in between. Declarations that precede the region
// on the way down are collected as outer declarations.
func (s *Scanner) locateRange(r *scopRegion, b *cabs.Block) error {
	start, end := r.scop.End, r.endscop.Start
	for {
		var next *cabs.Block
		lo, hi := -1, -1
		for i, item := range b.Items {
			sp := item.Range()
			switch {
			case sp.End <= start:
				if ds, ok := item.(cabs.DeclStmt); ok {
					r.outer = append(r.outer, ds.Decls...)
				}
			case sp.Start >= end:
			case sp.Start >= start && sp.End <= end:
				if lo < 0 {
					lo = i
				}
				hi = i + 1
			case sp.Start < start && sp.End > end:
				inner, decls := enclosedBlock(item, start, end)
				if inner == nil {
					return diag.Errorf(diag.UnbalancedPragmas, sp, "scop pragmas split a statement")
				}
				r.outer = append(r.outer, decls...)
				next = inner
			default:
				return diag.Errorf(diag.UnbalancedPragmas, sp, "statement crosses a scop pragma")
			}
		}
		if next == nil {
			if lo < 0 {
				lo, hi = 0, 0
			}
			r.block, r.lo, r.hi = b, lo, hi
			return nil
		}
		b = next
	}
}

// enclosedBlock returns the block nested in st that contains the range
// [start, end), together with the loop iterators declared on the way.
func enclosedBlock(st cabs.Stmt, start, end int) (*cabs.Block, []cabs.Decl) {
	within := func(x cabs.Stmt) bool {
		return x != nil && x.Range().Start < start && x.Range().End > end
	}
	switch x := st.(type) {
	case *cabs.Block:
		return x, nil
	case cabs.For:
		if within(x.Body) {
			b, decls := enclosedBlock(x.Body, start, end)
			return b, append(append([]cabs.Decl(nil), x.InitDecl...), decls...)
		}
	case cabs.While:
		if within(x.Body) {
			return enclosedBlock(x.Body, start, end)
		}
	case cabs.If:
		if within(x.Then) {
			return enclosedBlock(x.Then, start, end)
		}
		if within(x.Else) {
			return enclosedBlock(x.Else, start, end)
		}
	case cabs.Label:
		return enclosedBlock(x.Stmt, start, end)
	}
	return nil, nil
}

// extractRegion converts the statements between the pragmas of r.
// Variables declared before the region are visible inside it.
func (s *Scanner) extractRegion(r scopRegion) (pet.Tree, error) {
	s.pushScope()
	defer s.popScope()
	for _, d := range r.outer {
		if _, err := s.declare(d, true); err != nil {
			return nil, err
		}
	}
	s.topLevel = r.block == s.fnBody
	res, err := s.extractRange(r.block, r.block.Items[r.lo:r.hi], r.lo == 0 && r.hi == len(r.block.Items))
	if err != nil {
		return nil, err
	}
	t := res.Tree
	if t == nil {
		t = &pet.Block{}
	}
	return pet.WithLoc(t, r.loc), nil
}
