package scan

import (
	"github.com/raymyers/ralph-pet/pkg/cabs"
	"github.com/raymyers/ralph-pet/pkg/ctypes"
	"github.com/raymyers/ralph-pet/pkg/diag"
	"github.com/raymyers/ralph-pet/pkg/pet"
)

// inlinable reports whether calls to name are replaced by the body of
// the callee.
func (s *Scanner) inlinable(name string) bool {
	fn, ok := s.funcs[name]
	if !ok || fn.Body == nil || fn.Variadic {
		return false
	}
	if _, summarized := fn.Attr("pencil_access"); summarized && s.opts.Pencil {
		return false
	}
	return fn.Inline || s.opts.InlineAll
}

// inlineCalls inlines the calls to inline functions in e, innermost
// first. The value of each call is stored in a fresh variable that
// replaces the call when e itself is extracted. Calls in the branches of
// a conditional or on the right of a logical operator are not inlined
// since they may not be evaluated.
func (s *Scanner) inlineCalls(e cabs.Expr, span cabs.Span) ([]pet.Tree, error) {
	var (
		out []pet.Tree
		err error
	)
	var walk func(e cabs.Expr)
	walk = func(e cabs.Expr) {
		if e == nil || err != nil {
			return
		}
		switch x := e.(type) {
		case cabs.Paren:
			walk(x.Expr)
		case cabs.Unary:
			walk(x.Expr)
		case cabs.Binary:
			walk(x.Left)
			if x.Op != cabs.OpAnd && x.Op != cabs.OpOr {
				walk(x.Right)
			}
		case cabs.Conditional:
			walk(x.Cond)
		case cabs.Cast:
			walk(x.Expr)
		case cabs.Index:
			walk(x.Array)
			walk(x.Index)
		case cabs.Member:
			walk(x.Expr)
		case cabs.Call:
			for _, a := range x.Args {
				walk(a)
			}
			if err != nil {
				return
			}
			name, ok := calleeName(x)
			if !ok || !s.inlinable(name) {
				return
			}
			var trees []pet.Tree
			trees, err = s.inlineCall(x, name)
			out = append(out, trees...)
		}
	}
	walk(e)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// inlineCall returns the declaration of the variable holding the return
// value of c, if any, followed by the inlined body.
func (s *Scanner) inlineCall(c cabs.Call, name string) ([]pet.Tree, error) {
	callee := s.funcs[name]
	rt, err := ctypes.Parse(callee.ReturnType, s)
	if err != nil {
		return nil, diag.Unsupportedf(c.Span, "return type of '%s': %v", name, err)
	}
	var (
		out []pet.Tree
		ret *pet.ID
	)
	if !isVoid(rt) {
		ret = pet.NewID(s.fresh(name+"_ret"), rt)
		out = append(out, &pet.Decl{Node: pet.Node{Loc: s.loc(c.Span)}, Var: pet.NewAccess(ret)})
	}
	body, err := s.extractInlinedCall(c, callee, ret)
	if err != nil {
		return nil, err
	}
	s.call2id[c.Span] = ret
	return append(out, body), nil
}

func isVoid(t ctypes.Type) bool {
	return ctypes.Equal(t, ctypes.Void())
}

// fresh returns name if it is not in use yet and a renamed version of it
// otherwise. The result is marked used.
func (s *Scanner) fresh(name string) string {
	if s.used.Contains(name) {
		return s.freshName(name)
	}
	s.used.Add(name)
	return name
}

// extractInlinedCall extracts the body of callee with its formal
// parameters bound to the arguments of c. Scalar arguments are copied
// into fresh variables; array arguments are accessed in place. A final
// return statement assigns its value to ret.
func (s *Scanner) extractInlinedCall(c cabs.Call, callee cabs.FunDef, ret *pet.ID) (pet.Tree, error) {
	for _, active := range s.inlining {
		if active == callee.Name {
			return nil, diag.Unsupportedf(c.Span, "recursive call to inline function '%s'", callee.Name)
		}
	}
	if len(c.Args) != len(callee.Params) {
		return nil, diag.Unsupportedf(c.Span, "call to '%s' with %d arguments, expected %d", callee.Name, len(c.Args), len(callee.Params))
	}
	loc := s.loc(c.Span)
	sub := pet.NewSubstituter()
	formals := map[string]*pet.ID{}
	var temps []pet.Tree
	for k, p := range callee.Params {
		t, _, err := s.declType(p.TypeSpec, p.ArrayDims)
		if err != nil {
			return nil, diag.Unsupportedf(c.Span, "parameter '%s' of '%s': %v", p.Name, callee.Name, err)
		}
		formal := pet.NewID(p.Name, t)
		formals[p.Name] = formal
		actual, err := s.extractExpr(c.Args[k])
		if err != nil {
			return nil, err
		}
		if ctypes.IsArray(t) || ctypes.IsPointer(t) {
			repl := stripCasts(actual)
			switch x := repl.(type) {
			case *pet.Access:
			case *pet.Op:
				if _, ok := x.Args[0].(*pet.Access); x.Kind != pet.OpAddrOf || !ok {
					return nil, diag.Unsupportedf(c.Args[k].Range(), "array argument is not an access")
				}
			default:
				return nil, diag.Unsupportedf(c.Args[k].Range(), "array argument is not an access")
			}
			sub.Add(formal, repl)
			continue
		}
		temp := pet.NewID(s.fresh(p.Name), t)
		sub.Rename(formal, temp)
		temps = append(temps, &pet.Decl{Node: pet.Node{Loc: loc}, Var: pet.NewAccess(temp), Init: actual})
	}

	inner := *s
	inner.scopes = []map[string]*pet.ID{s.globals, formals}
	inner.renames = nil
	inner.topLevel = false
	inner.returnRoot = callee.Body
	inner.retID = ret
	inner.region = region{independent: s.pragmas(callee.Span, "pencil independent")}
	inner.inlining = append(append([]string(nil), s.inlining...), callee.Name)
	res, err := inner.extractBlock(callee.Body, false)
	if err != nil {
		return nil, err
	}
	body := res.Tree
	if body == nil {
		body = &pet.Block{}
	}
	body = sub.Tree(body)
	for _, id := range pet.Declarations(body) {
		if sizes, ok := s.sizes[id]; ok {
			s.sizes[id] = substSizes(sub, sizes)
		}
	}
	body = pet.WithLoc(body, loc)
	return &pet.Block{Node: pet.Node{Loc: loc}, Children: append(temps, body), Scope: true}, nil
}
