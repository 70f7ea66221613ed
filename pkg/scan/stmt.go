package scan

import (
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set"
	"github.com/raymyers/ralph-pet/pkg/cabs"
	"github.com/raymyers/ralph-pet/pkg/ctypes"
	"github.com/raymyers/ralph-pet/pkg/diag"
	"github.com/raymyers/ralph-pet/pkg/pet"
)

// Result is an extracted tree. Partial is set in autodetect mode when
// only part of the statement could be extracted; the enclosing
// statements then stop extending the tree.
type Result struct {
	Tree    pet.Tree
	Partial bool
}

// extractStmt converts a statement. A nil tree without error means the
// statement has no effect.
func (s *Scanner) extractStmt(st cabs.Stmt) (Result, error) {
	switch x := st.(type) {
	case *cabs.Block:
		return s.extractBlock(x, false)
	case cabs.Computation:
		return s.extractExprStmt(x)
	case cabs.Empty:
		return Result{}, nil
	case cabs.DeclStmt:
		trees, err := s.extractDecls(x)
		if err != nil {
			return Result{}, err
		}
		return Result{Tree: &pet.Block{Node: pet.Node{Loc: s.loc(x.Span)}, Children: trees}}, nil
	case cabs.For:
		return s.extractFor(x)
	case cabs.While:
		return s.extractWhile(x)
	case cabs.If:
		return s.extractIf(x)
	case cabs.Break:
		return Result{Tree: &pet.Break{Node: pet.Node{Loc: s.loc(x.Span)}}}, nil
	case cabs.Continue:
		return Result{Tree: &pet.Continue{Node: pet.Node{Loc: s.loc(x.Span)}}}, nil
	case cabs.Label:
		res, err := s.extractStmt(x.Stmt)
		if err != nil || res.Tree == nil {
			return res, err
		}
		res.Tree = pet.WithLabel(res.Tree, x.Name)
		return res, nil
	case cabs.Return:
		return Result{}, diag.Unsupportedf(x.Span, "return statement in unsupported context")
	case cabs.DoWhile:
		return Result{}, diag.Unsupportedf(x.Span, "do-while loops are not supported")
	case cabs.Switch:
		return Result{}, diag.Unsupportedf(x.Span, "switch statements are not supported")
	case cabs.Goto:
		return Result{}, diag.Unsupportedf(x.Span, "goto statements are not supported")
	}
	return Result{}, diag.Unsupportedf(st.Range(), "unsupported statement")
}

// extractBlock converts a compound statement. Variables declared in the
// block whose names are already in use are renamed once the block has
// been extracted.
func (s *Scanner) extractBlock(b *cabs.Block, function bool) (Result, error) {
	savedDeclared, savedRenames, savedTop := s.declared, s.renames, s.topLevel
	s.declared = mapset.NewThreadUnsafeSet()
	s.renames = nil
	s.topLevel = function
	s.pushScope()
	res, err := s.extractRange(b, b.Items, true)
	renames := s.renames
	s.popScope()
	s.declared, s.renames, s.topLevel = savedDeclared, savedRenames, savedTop
	if err != nil || res.Tree == nil {
		return res, err
	}
	res.Tree = s.rename(res.Tree, renames)
	return res, nil
}

// extractRange converts a sequence of statements of block b into a block
// tree.
//
// In autodetect mode, statements that cannot be extracted before any
// statement was extracted are skipped and a failure after that ends the
// range, making the result partial. Leading declarations are set aside
// and only put back if the rest of the range is extracted completely.
func (s *Scanner) extractRange(b *cabs.Block, items []cabs.Stmt, scope bool) (Result, error) {
	auto := s.region.autodetect
	blk := &pet.Block{Scope: scope}
	var (
		loc      pet.Loc
		aside    []cabs.DeclStmt
		skipped  bool
		partial  bool
		declared bool
	)
	leading := auto
	for i, item := range items {
		if ds, ok := item.(cabs.DeclStmt); ok && leading {
			if err := s.declareAll(ds); err != nil {
				return Result{}, err
			}
			aside = append(aside, ds)
			continue
		}
		leading = false

		var (
			res Result
			err error
		)
		if r, ok := item.(cabs.Return); ok && b != nil && b == s.returnRoot && i == len(items)-1 {
			res, err = s.extractReturn(r)
		} else {
			res, err = s.extractStmt(item)
		}
		if err != nil {
			if !auto || diag.IsInternal(err) {
				return Result{}, err
			}
			if len(blk.Children) == 0 {
				skipped = true
				continue
			}
			partial = true
			break
		}
		if res.Tree == nil {
			continue
		}
		if _, ok := item.(cabs.DeclStmt); ok {
			declared = true
			blk.Children = append(blk.Children, res.Tree.(*pet.Block).Children...)
		} else {
			blk.Children = append(blk.Children, res.Tree)
		}
		loc = loc.Union(pet.LocOf(res.Tree))
		if res.Partial {
			partial = true
			break
		}
	}
	if len(aside) > 0 && !skipped && !partial {
		var front []pet.Tree
		ok := true
		for _, ds := range aside {
			trees, err := s.initDecls(ds)
			if err != nil {
				ok = false
				break
			}
			front = append(front, trees...)
			loc = loc.Union(s.loc(ds.Span))
		}
		if ok {
			blk.Children = append(front, blk.Children...)
			declared = declared || len(front) > 0
		}
	}
	if len(blk.Children) == 0 {
		return Result{}, nil
	}
	if partial && declared {
		blk.Scope = false
	}
	if b != nil && !partial && !skipped && len(aside) == 0 && len(items) == len(b.Items) {
		loc = s.loc(b.Span)
	}
	blk.Loc = loc
	return Result{Tree: blk, Partial: partial}, nil
}

// extractDecls declares the variables of ds and converts their
// initializations.
func (s *Scanner) extractDecls(ds cabs.DeclStmt) ([]pet.Tree, error) {
	if err := s.declareAll(ds); err != nil {
		return nil, err
	}
	return s.initDecls(ds)
}

func (s *Scanner) declareAll(ds cabs.DeclStmt) error {
	for _, d := range ds.Decls {
		if _, err := s.declare(d, s.topLevel); err != nil {
			return err
		}
	}
	return nil
}

// initDecls returns the trees of the declarations of ds, whose variables
// have already been declared.
func (s *Scanner) initDecls(ds cabs.DeclStmt) ([]pet.Tree, error) {
	var out []pet.Tree
	for _, d := range ds.Decls {
		id, ok := s.scopes[len(s.scopes)-1][d.Name]
		if !ok {
			return nil, diag.Internalf("declaration of %s not in scope", d.Name)
		}
		if d.Storage == "extern" {
			continue
		}
		decl := &pet.Decl{Node: pet.Node{Loc: s.loc(d.Span)}, Var: pet.NewAccess(id)}
		if d.Initializer != nil {
			if _, isList := d.Initializer.(cabs.InitList); isList {
				return nil, diag.Unsupportedf(d.Span, "initializer lists are not supported")
			}
			if id.Rank() > 0 {
				return nil, diag.Unsupportedf(d.Span, "initialization of an array")
			}
			pre, err := s.inlineCalls(d.Initializer, d.Span)
			if err != nil {
				return nil, err
			}
			init, err := s.extractExpr(d.Initializer)
			if err != nil {
				return nil, err
			}
			decl.Init = init
			if len(pre) > 0 {
				out = append(out, pre...)
			}
		}
		out = append(out, decl)
	}
	return out, nil
}

// declare adds the variable d to the innermost scope. Unless keep is
// set, a variable whose name is already in use is renamed at the end of
// its block.
func (s *Scanner) declare(d cabs.Decl, keep bool) (*pet.ID, error) {
	t, sizes, err := s.declType(d.TypeSpec, d.ArrayDims)
	if err != nil {
		return nil, diag.Unsupportedf(d.Span, "%v", err)
	}
	id := pet.NewID(d.Name, t)
	s.scopes[len(s.scopes)-1][d.Name] = id
	if !keep && s.used.Contains(d.Name) {
		s.renames = append(s.renames, id)
	} else {
		s.used.Add(d.Name)
	}
	s.declared.Add(d.Name)
	s.recordDecl(id, d.TypeSpec, sizes)
	return id, nil
}

// declType returns the type of a declarator with the given specifier
// and array dimensions, along with the size expression of each array or
// pointer level; unknown sizes are nil.
func (s *Scanner) declType(spec string, dims []cabs.Expr) (ctypes.Type, []pet.Expr, error) {
	base, err := ctypes.Parse(spec, s)
	if err != nil {
		return nil, nil, err
	}
	t := base
	sizes := make([]pet.Expr, len(dims))
	for k := len(dims) - 1; k >= 0; k-- {
		size := int64(-1)
		if dims[k] != nil {
			if e, err := s.extractExpr(dims[k]); err == nil {
				sizes[k] = e
				if v, ok := constValue(e); ok {
					size = v
				}
			}
		}
		t = ctypes.Array(t, size)
	}
	if !strings.Contains(spec, "*") {
		words := strings.Fields(spec)
		if ts, ok := s.typeSizes[words[len(words)-1]]; ok {
			sizes = append(sizes, ts...)
		}
	}
	for len(sizes) < ctypes.ArrayDepth(t) {
		sizes = append(sizes, nil)
	}
	return t, sizes, nil
}

func (s *Scanner) recordDecl(id *pet.ID, spec string, sizes []pet.Expr) {
	if len(sizes) > 0 {
		s.sizes[id] = sizes
	}
	for _, w := range strings.Fields(spec) {
		if w == "const" {
			s.consts[id] = true
		}
	}
}

// rename gives the variables in ids fresh names in t.
func (s *Scanner) rename(t pet.Tree, ids []*pet.ID) pet.Tree {
	if len(ids) == 0 {
		return t
	}
	sub := pet.NewSubstituter()
	fresh := make([]*pet.ID, len(ids))
	for k, id := range ids {
		fresh[k] = pet.NewID(s.freshName(id.Name), id.Type)
		sub.Rename(id, fresh[k])
	}
	for _, id := range pet.Declarations(t) {
		if sizes, ok := s.sizes[id]; ok {
			s.sizes[id] = substSizes(sub, sizes)
		}
	}
	for k, id := range ids {
		if sizes, ok := s.sizes[id]; ok {
			s.sizes[fresh[k]] = sizes
		}
		if s.consts[id] {
			s.consts[fresh[k]] = true
		}
	}
	return sub.Tree(t)
}

// freshName returns name with the smallest numeric suffix that is not in
// use yet, and marks it used.
func (s *Scanner) freshName(name string) string {
	for k := 0; ; k++ {
		cand := fmt.Sprintf("%s_%d", name, k)
		if !s.used.Contains(cand) {
			s.used.Add(cand)
			return cand
		}
	}
}

func substSizes(sub *pet.Substituter, sizes []pet.Expr) []pet.Expr {
	out := make([]pet.Expr, len(sizes))
	for k, e := range sizes {
		if e != nil {
			out[k] = sub.Expr(e)
		}
	}
	return out
}

func (s *Scanner) extractExprStmt(c cabs.Computation) (Result, error) {
	loc := s.loc(c.Span)
	pre, err := s.inlineCalls(c.Expr, c.Span)
	if err != nil {
		return Result{}, err
	}
	if call, ok := unparen(c.Expr).(cabs.Call); ok && len(pre) > 0 {
		if _, inlined := s.call2id[call.Span]; inlined {
			return Result{Tree: &pet.Block{Node: pet.Node{Loc: loc}, Children: pre, Scope: true}}, nil
		}
	}
	e, err := s.extractExpr(c.Expr)
	if err != nil {
		return Result{}, err
	}
	var t pet.Tree = &pet.ExprStmt{Node: pet.Node{Loc: loc}, Expr: e}
	if len(pre) > 0 {
		t = &pet.Block{Node: pet.Node{Loc: loc}, Children: append(pre, t), Scope: true}
	}
	return Result{Tree: t}, nil
}

func unparen(e cabs.Expr) cabs.Expr {
	for {
		p, ok := e.(cabs.Paren)
		if !ok {
			return e
		}
		e = p.Expr
	}
}

// extractFor converts a for loop of the form
//
//	for (i = init; cond; i += step)
//
// where i is an integer scalar and the increment is one of i++, i--,
// i += c, i -= c or i = i ± c. for (;;) is an infinite loop.
func (s *Scanner) extractFor(f cabs.For) (Result, error) {
	loc := s.loc(f.Span)
	if f.Init == nil && len(f.InitDecl) == 0 && f.Cond == nil && f.Step == nil {
		res, err := s.extractStmt(f.Body)
		if err != nil || res.Partial || res.Tree == nil {
			return res, err
		}
		return Result{Tree: &pet.InfiniteLoop{Node: pet.Node{Loc: loc}, Body: res.Tree}}, nil
	}

	s.pushScope()
	defer s.popScope()
	var (
		iv       *pet.ID
		init     pet.Expr
		declared bool
		err      error
	)
	switch {
	case len(f.InitDecl) == 1 && f.InitDecl[0].Initializer != nil:
		d := f.InitDecl[0]
		iv, err = s.declare(d, false)
		if err != nil {
			return Result{}, err
		}
		init, err = s.extractExpr(d.Initializer)
		declared = true
	case len(f.InitDecl) > 1:
		return Result{}, diag.Unsupportedf(f.Span, "more than one variable declared in loop header")
	case f.Init != nil:
		b, ok := unparen(f.Init).(cabs.Binary)
		if !ok || b.Op != cabs.OpAssign {
			return Result{}, diag.Unsupportedf(f.Init.Range(), "loop initialization is not an assignment")
		}
		v, ok := unparen(b.Left).(cabs.Variable)
		if !ok {
			return Result{}, diag.Unsupportedf(b.Left.Range(), "loop iterator is not a variable")
		}
		var found bool
		if iv, found = s.lookup(v.Name); !found {
			return Result{}, diag.Unsupportedf(v.Span, "use of undeclared identifier '%s'", v.Name)
		}
		init, err = s.extractExpr(b.Right)
	default:
		return Result{}, diag.Missingf(f.Span, "missing loop initialization")
	}
	if err != nil {
		return Result{}, err
	}
	if !ctypes.IsInteger(iv.Type) {
		return Result{}, diag.Unsupportedf(f.Span, "loop iterator '%s' is not an integer", iv.Name)
	}
	if f.Step == nil {
		return Result{}, diag.Missingf(f.Span, "missing increment")
	}
	inc, err := s.extractIncrement(f.Step, iv)
	if err != nil {
		return Result{}, err
	}
	var cond pet.Expr = pet.NewInt(1)
	if f.Cond != nil {
		if cond, err = s.extractExpr(f.Cond); err != nil {
			return Result{}, err
		}
	}
	body, err := s.extractStmt(f.Body)
	if err != nil || body.Partial {
		return body, err
	}
	if body.Tree == nil {
		body.Tree = &pet.Block{Node: pet.Node{Loc: s.loc(f.Body.Range())}}
	}
	var t pet.Tree = &pet.For{
		Node:        pet.Node{Loc: loc},
		Iv:          pet.NewAccess(iv),
		Init:        init,
		Cond:        cond,
		Inc:         inc,
		Body:        body.Tree,
		Declared:    declared,
		Independent: s.independentAt(f.Span.Start),
	}
	if declared {
		t = s.rename(t, s.takeRename(iv))
	}
	return Result{Tree: t}, nil
}

// takeRename removes id from the pending renames of the current block
// and returns it if it was there.
func (s *Scanner) takeRename(id *pet.ID) []*pet.ID {
	for i, r := range s.renames {
		if r == id {
			s.renames = append(s.renames[:i:i], s.renames[i+1:]...)
			return []*pet.ID{id}
		}
	}
	return nil
}

// extractIncrement returns the signed step of the loop increment e of
// the iterator iv.
func (s *Scanner) extractIncrement(e cabs.Expr, iv *pet.ID) (pet.Expr, error) {
	isIv := func(x cabs.Expr) bool {
		v, ok := unparen(x).(cabs.Variable)
		if !ok {
			return false
		}
		id, ok := s.lookup(v.Name)
		return ok && id == iv
	}
	neg := func(x pet.Expr) pet.Expr {
		if lit, ok := x.(*pet.IntLit); ok {
			return &pet.IntLit{Value: -lit.Value, Type: lit.Type}
		}
		return &pet.Op{Kind: pet.OpMinus, Args: []pet.Expr{x}, Type: x.CType()}
	}
	switch x := unparen(e).(type) {
	case cabs.Unary:
		if !isIv(x.Expr) {
			break
		}
		switch x.Op {
		case cabs.OpPreInc, cabs.OpPostInc:
			return pet.NewInt(1), nil
		case cabs.OpPreDec, cabs.OpPostDec:
			return pet.NewInt(-1), nil
		}
	case cabs.Binary:
		if !isIv(x.Left) {
			break
		}
		switch x.Op {
		case cabs.OpAddAssign, cabs.OpSubAssign:
			step, err := s.extractExpr(x.Right)
			if err != nil {
				return nil, err
			}
			if x.Op == cabs.OpSubAssign {
				step = neg(step)
			}
			return step, nil
		case cabs.OpAssign:
			rhs, ok := unparen(x.Right).(cabs.Binary)
			if !ok || (rhs.Op != cabs.OpAdd && rhs.Op != cabs.OpSub) {
				break
			}
			var other cabs.Expr
			switch {
			case isIv(rhs.Left):
				other = rhs.Right
			case rhs.Op == cabs.OpAdd && isIv(rhs.Right):
				other = rhs.Left
			default:
				return nil, diag.Unsupportedf(x.Span, "unsupported loop increment")
			}
			step, err := s.extractExpr(other)
			if err != nil {
				return nil, err
			}
			if rhs.Op == cabs.OpSub {
				step = neg(step)
			}
			return step, nil
		}
	}
	return nil, diag.Unsupportedf(e.Range(), "unsupported loop increment")
}

func (s *Scanner) independentAt(start int) bool {
	for _, p := range s.region.independent {
		if p.End <= start && strings.TrimSpace(s.src[p.End:start]) == "" {
			return true
		}
	}
	return false
}

// extractWhile converts a while loop. A partial body is returned as is.
func (s *Scanner) extractWhile(w cabs.While) (Result, error) {
	cond, err := s.extractExpr(w.Cond)
	if err != nil {
		return Result{}, err
	}
	body, err := s.extractStmt(w.Body)
	if err != nil || body.Partial {
		return body, err
	}
	if body.Tree == nil {
		body.Tree = &pet.Block{Node: pet.Node{Loc: s.loc(w.Body.Range())}}
	}
	loc := pet.Node{Loc: s.loc(w.Span)}
	if v, ok := constValue(cond); ok && v != 0 {
		return Result{Tree: &pet.InfiniteLoop{Node: loc, Body: body.Tree}}, nil
	}
	return Result{Tree: &pet.While{Node: loc, Cond: cond, Body: body.Tree}}, nil
}

// extractIf converts an if statement. In autodetect mode, if only one
// branch can be extracted, that branch alone is returned as a partial
// result.
func (s *Scanner) extractIf(f cabs.If) (Result, error) {
	cond, err := s.extractExpr(f.Cond)
	if err != nil {
		return Result{}, err
	}
	then, err := s.extractStmt(f.Then)
	if err != nil && !s.fallback(err) {
		return Result{}, err
	}
	var (
		els     Result
		elseErr error
	)
	if f.Else != nil {
		els, elseErr = s.extractStmt(f.Else)
		if elseErr != nil && !s.fallback(elseErr) {
			return Result{}, elseErr
		}
	}
	switch {
	case err != nil && (f.Else == nil || elseErr != nil):
		return Result{}, err
	case err != nil:
		els.Partial = true
		return els, nil
	case elseErr != nil:
		then.Partial = true
		return then, nil
	case then.Partial:
		return then, nil
	case els.Partial:
		return els, nil
	}
	if then.Tree == nil {
		then.Tree = &pet.Block{Node: pet.Node{Loc: s.loc(f.Then.Range())}}
	}
	return Result{Tree: &pet.If{
		Node: pet.Node{Loc: s.loc(f.Span)},
		Cond: cond,
		Then: then.Tree,
		Else: els.Tree,
	}}, nil
}

// fallback reports whether a failure may be recovered from by shrinking
// the extracted region.
func (s *Scanner) fallback(err error) bool {
	return s.region.autodetect && !diag.IsInternal(err)
}

// extractReturn converts the final return statement of an inlined
// function body into an assignment to the variable holding its value.
func (s *Scanner) extractReturn(r cabs.Return) (Result, error) {
	if r.Expr == nil {
		return Result{}, nil
	}
	pre, err := s.inlineCalls(r.Expr, r.Span)
	if err != nil {
		return Result{}, err
	}
	e, err := s.extractExpr(r.Expr)
	if err != nil {
		return Result{}, err
	}
	loc := s.loc(r.Span)
	var t pet.Tree = &pet.Return{Node: pet.Node{Loc: loc}, Expr: e}
	if s.retID != nil {
		assign := &pet.Op{Kind: pet.OpAssign, Args: []pet.Expr{pet.NewAccess(s.retID).MarkWrite(), e}, Type: s.retID.Type}
		t = &pet.ExprStmt{Node: pet.Node{Loc: loc}, Expr: assign}
	}
	if len(pre) > 0 {
		t = &pet.Block{Node: pet.Node{Loc: loc}, Children: append(pre, t), Scope: true}
	}
	return Result{Tree: t}, nil
}
