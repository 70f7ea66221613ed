package scan

import (
	"strconv"
	"strings"

	"github.com/raymyers/ralph-pet/pkg/cabs"
	"github.com/raymyers/ralph-pet/pkg/ctypes"
	"github.com/raymyers/ralph-pet/pkg/diag"
	"github.com/raymyers/ralph-pet/pkg/pet"
)

var binaryKinds = map[cabs.BinaryOp]pet.OpKind{
	cabs.OpAdd:    pet.OpAdd,
	cabs.OpSub:    pet.OpSub,
	cabs.OpMul:    pet.OpMul,
	cabs.OpDiv:    pet.OpDiv,
	cabs.OpMod:    pet.OpMod,
	cabs.OpLt:     pet.OpLt,
	cabs.OpLe:     pet.OpLe,
	cabs.OpGt:     pet.OpGt,
	cabs.OpGe:     pet.OpGe,
	cabs.OpEq:     pet.OpEq,
	cabs.OpNe:     pet.OpNe,
	cabs.OpAnd:    pet.OpLand,
	cabs.OpOr:     pet.OpLor,
	cabs.OpBitAnd: pet.OpAnd,
	cabs.OpBitOr:  pet.OpOr,
	cabs.OpBitXor: pet.OpXor,
	cabs.OpShl:    pet.OpShl,
	cabs.OpShr:    pet.OpShr,

	cabs.OpAssign:    pet.OpAssign,
	cabs.OpAddAssign: pet.OpAddAssign,
	cabs.OpSubAssign: pet.OpSubAssign,
	cabs.OpMulAssign: pet.OpMulAssign,
	cabs.OpDivAssign: pet.OpDivAssign,
	cabs.OpModAssign: pet.OpModAssign,
	cabs.OpAndAssign: pet.OpAndAssign,
	cabs.OpOrAssign:  pet.OpOrAssign,
	cabs.OpXorAssign: pet.OpXorAssign,
	cabs.OpShlAssign: pet.OpShlAssign,
	cabs.OpShrAssign: pet.OpShrAssign,
}

var incDecKinds = map[cabs.UnaryOp]pet.OpKind{
	cabs.OpPreInc:  pet.OpPreInc,
	cabs.OpPreDec:  pet.OpPreDec,
	cabs.OpPostInc: pet.OpPostInc,
	cabs.OpPostDec: pet.OpPostDec,
}

// extractExpr converts a C expression.
func (s *Scanner) extractExpr(e cabs.Expr) (pet.Expr, error) {
	switch x := e.(type) {
	case cabs.Constant:
		return intLiteral(x)
	case cabs.FloatConst:
		return floatLiteral(x)
	case cabs.CharLiteral:
		v, err := x.Code()
		if err != nil {
			return nil, diag.Unsupportedf(x.Span, "%v", err)
		}
		return pet.NewInt(v), nil
	case cabs.Variable:
		if v, ok := s.enums[x.Name]; ok {
			if _, shadowed := s.lookup(x.Name); !shadowed {
				return pet.NewInt(v), nil
			}
		}
		return s.extractAccess(x)
	case cabs.Index, cabs.Member:
		return s.extractAccess(x)
	case cabs.Paren:
		return s.extractExpr(x.Expr)
	case cabs.Unary:
		return s.extractUnary(x)
	case cabs.Binary:
		return s.extractBinary(x)
	case cabs.Conditional:
		return s.extractConditional(x)
	case cabs.Cast:
		t, err := ctypes.Parse(x.TypeName, s)
		if err != nil {
			return nil, diag.Unsupportedf(x.Span, "%v", err)
		}
		arg, err := s.extractExpr(x.Expr)
		if err != nil {
			return nil, err
		}
		return &pet.Cast{To: t, Arg: arg}, nil
	case cabs.Call:
		return s.extractCall(x)
	case cabs.SizeofType:
		t, err := ctypes.Parse(x.TypeName, s)
		if err != nil {
			return nil, diag.Unsupportedf(x.Span, "%v", err)
		}
		return sizeOf(x.Span, t)
	case cabs.SizeofExpr:
		arg, err := s.extractExpr(x.Expr)
		if err != nil {
			return nil, err
		}
		return sizeOf(x.Span, arg.CType())
	}
	return nil, diag.Unsupportedf(e.Range(), "unsupported expression")
}

// intLiteral decodes an integer constant. The bit pattern is truncated
// to the width of the type of the constant and reinterpreted as signed
// if that type is signed.
func intLiteral(c cabs.Constant) (pet.Expr, error) {
	bits, suffix, decimal, err := c.Value()
	if err != nil {
		return nil, diag.Unsupportedf(c.Span, "%v", err)
	}
	t := ctypes.IntLiteral(suffix, bits, decimal)
	return &pet.IntLit{Value: truncate(bits, t), Type: t}, nil
}

func truncate(bits uint64, t ctypes.Type) int64 {
	w := ctypes.Width(t)
	if w <= 0 || w >= 64 {
		return int64(bits)
	}
	bits &= 1<<uint(w) - 1
	if ctypes.IsSigned(t) && bits >= 1<<uint(w-1) {
		return int64(bits) - 1<<uint(w)
	}
	return int64(bits)
}

func floatLiteral(c cabs.FloatConst) (pet.Expr, error) {
	text := strings.TrimRight(c.Text, "fFlL")
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, diag.Unsupportedf(c.Span, "invalid floating constant %q", c.Text)
	}
	t := ctypes.Double()
	if strings.HasSuffix(strings.ToLower(c.Text), "f") && !strings.HasPrefix(strings.ToLower(text), "0x") {
		t = ctypes.Float()
	}
	return &pet.DoubleLit{Value: v, Text: c.Text, Type: t}, nil
}

func sizeOf(span cabs.Span, t ctypes.Type) (pet.Expr, error) {
	n := ctypes.SizeOf(t)
	if n <= 0 {
		return nil, diag.Unsupportedf(span, "sizeof of a type without known size")
	}
	return &pet.IntLit{Value: n, Type: ctypes.ULong()}, nil
}

// extractAccess converts an index expression: a variable followed by
// subscripts and member selections. p->f is treated as p[0].f.
func (s *Scanner) extractAccess(e cabs.Expr) (*pet.Access, error) {
	switch x := e.(type) {
	case cabs.Variable:
		id, ok := s.lookup(x.Name)
		if !ok {
			return nil, diag.Unsupportedf(x.Span, "use of undeclared identifier '%s'", x.Name)
		}
		return pet.NewAccess(id), nil
	case cabs.Paren:
		return s.extractAccess(x.Expr)
	case cabs.Index:
		base, err := s.extractAccess(x.Array)
		if err != nil {
			return nil, err
		}
		if _, ok := ctypes.Elem(base.Type); !ok {
			return nil, diag.Unsupportedf(x.Span, "subscript of a non-array value")
		}
		idx, err := s.extractExpr(x.Index)
		if err != nil {
			return nil, err
		}
		return base.Subscript(idx), nil
	case cabs.Member:
		base, err := s.extractAccess(x.Expr)
		if err != nil {
			return nil, err
		}
		if x.IsArrow {
			if !ctypes.IsPointer(base.Type) && !ctypes.IsArray(base.Type) {
				return nil, diag.Unsupportedf(x.Span, "'->' on a non-pointer value")
			}
			base = base.Subscript(pet.NewInt(0))
		}
		ft, ok := ctypes.FieldType(base.Type, x.Name)
		if !ok {
			return nil, diag.Unsupportedf(x.Span, "no member named '%s'", x.Name)
		}
		acc := base.Copy()
		acc.ID = base.ID.Member(x.Name, ft)
		acc.Type = ft
		return acc, nil
	case cabs.Unary:
		if x.Op == cabs.OpDeref {
			base, err := s.extractAccess(x.Expr)
			if err != nil {
				return nil, err
			}
			if !ctypes.IsPointer(base.Type) && !ctypes.IsArray(base.Type) {
				return nil, diag.Unsupportedf(x.Span, "dereference of a non-pointer value")
			}
			return base.Subscript(pet.NewInt(0)), nil
		}
	}
	return nil, diag.Unsupportedf(e.Range(), "expression is not an access")
}

func (s *Scanner) extractUnary(u cabs.Unary) (pet.Expr, error) {
	if kind, ok := incDecKinds[u.Op]; ok {
		acc, err := s.extractAccess(u.Expr)
		if err != nil {
			return nil, err
		}
		return &pet.Op{Kind: kind, Args: []pet.Expr{acc.MarkReadWrite()}, Type: acc.Type}, nil
	}
	switch u.Op {
	case cabs.OpDeref:
		return s.extractAccess(u)
	case cabs.OpAddrOf:
		acc, err := s.extractAccess(u.Expr)
		if err != nil {
			return nil, err
		}
		return &pet.Op{Kind: pet.OpAddrOf, Args: []pet.Expr{acc}, Type: ctypes.Pointer(acc.Type)}, nil
	case cabs.OpPlus:
		return s.extractExpr(u.Expr)
	}
	arg, err := s.extractExpr(u.Expr)
	if err != nil {
		return nil, err
	}
	switch u.Op {
	case cabs.OpNeg:
		return &pet.Op{Kind: pet.OpMinus, Args: []pet.Expr{arg}, Type: ctypes.Promote(arg.CType())}, nil
	case cabs.OpNot:
		return &pet.Op{Kind: pet.OpLnot, Args: []pet.Expr{arg}, Type: ctypes.Int()}, nil
	case cabs.OpBitNot:
		return &pet.Op{Kind: pet.OpNot, Args: []pet.Expr{arg}, Type: ctypes.Promote(arg.CType())}, nil
	}
	return nil, diag.Unsupportedf(u.Span, "unsupported unary operator '%s'", u.Op)
}

func (s *Scanner) extractBinary(b cabs.Binary) (pet.Expr, error) {
	kind, ok := binaryKinds[b.Op]
	if !ok {
		return nil, diag.Unsupportedf(b.Span, "unsupported binary operator '%s'", b.Op)
	}
	if b.Op.IsAssign() {
		lhs, err := s.extractAccess(b.Left)
		if err != nil {
			return nil, err
		}
		rhs, err := s.extractExpr(b.Right)
		if err != nil {
			return nil, err
		}
		if b.Op == cabs.OpAssign {
			lhs = lhs.MarkWrite()
		} else {
			lhs = lhs.MarkReadWrite()
		}
		return &pet.Op{Kind: kind, Args: []pet.Expr{lhs, rhs}, Type: lhs.Type}, nil
	}
	lhs, err := s.extractExpr(b.Left)
	if err != nil {
		return nil, err
	}
	rhs, err := s.extractExpr(b.Right)
	if err != nil {
		return nil, err
	}
	var t ctypes.Type = ctypes.Int()
	switch {
	case kind.IsComparison():
	case kind == pet.OpShl || kind == pet.OpShr:
		t = ctypes.Promote(lhs.CType())
	case lhs.CType() != nil && rhs.CType() != nil:
		t = ctypes.Arith(lhs.CType(), rhs.CType())
	}
	return &pet.Op{Kind: kind, Args: []pet.Expr{lhs, rhs}, Type: t}, nil
}

func (s *Scanner) extractConditional(c cabs.Conditional) (pet.Expr, error) {
	var args []pet.Expr
	for _, e := range []cabs.Expr{c.Cond, c.Then, c.Else} {
		arg, err := s.extractExpr(e)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	t := args[1].CType()
	if t != nil && args[2].CType() != nil && !ctypes.IsPointer(t) {
		t = ctypes.Arith(t, args[2].CType())
	}
	return &pet.Op{Kind: pet.OpCond, Args: args, Type: t}, nil
}

// extractCall converts a call. Calls already inlined are replaced by the
// variable holding their return value.
func (s *Scanner) extractCall(c cabs.Call) (pet.Expr, error) {
	if id, ok := s.call2id[c.Span]; ok && id != nil {
		return pet.NewAccess(id), nil
	}
	name, ok := calleeName(c)
	if !ok {
		return nil, diag.Unsupportedf(c.Span, "call through a function pointer")
	}
	var args []pet.Expr
	for _, a := range c.Args {
		arg, err := s.extractExpr(a)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	switch name {
	case "__builtin_assume", "__pencil_assume":
		if len(args) != 1 {
			return nil, diag.Unsupportedf(c.Span, "%s takes one argument", name)
		}
		return &pet.Op{Kind: pet.OpAssume, Args: args, Type: ctypes.Void()}, nil
	case "__pencil_kill":
		return &pet.Call{Name: name, Args: args, Type: ctypes.Void()}, nil
	}
	if s.inlinable(name) {
		return nil, diag.Unsupportedf(c.Span, "call to inline function '%s' cannot be inlined here", name)
	}
	for k, arg := range args {
		args[k] = passByReference(arg)
	}
	call := &pet.Call{Name: name, Args: args, Type: ctypes.Int()}
	if fn, ok := s.funcs[name]; ok {
		if t, err := ctypes.Parse(fn.ReturnType, s); err == nil {
			call.Type = t
		}
		call.Summary = s.summary(name)
	}
	return call, nil
}

func calleeName(c cabs.Call) (string, bool) {
	f := c.Func
	for {
		p, ok := f.(cabs.Paren)
		if !ok {
			break
		}
		f = p.Expr
	}
	v, ok := f.(cabs.Variable)
	return v.Name, ok
}

// passByReference marks the arrays passed to a function as possibly
// written by it.
func passByReference(arg pet.Expr) pet.Expr {
	switch x := arg.(type) {
	case *pet.Access:
		if x.ID.Rank() > len(x.Args) {
			c := x.Copy()
			c.Read, c.MayWrite = true, true
			return c
		}
	case *pet.Op:
		if x.Kind != pet.OpAddrOf {
			break
		}
		if acc, ok := x.Args[0].(*pet.Access); ok {
			c := acc.Copy()
			c.Read, c.MayWrite = true, true
			return &pet.Op{Kind: pet.OpAddrOf, Args: []pet.Expr{c}, Type: x.Type}
		}
	}
	return arg
}

// stripCasts removes the casts around e.
func stripCasts(e pet.Expr) pet.Expr {
	for {
		c, ok := e.(*pet.Cast)
		if !ok {
			return e
		}
		e = c.Arg
	}
}

// constValue folds an integer constant expression.
func constValue(e pet.Expr) (int64, bool) {
	switch x := e.(type) {
	case *pet.IntLit:
		return x.Value, true
	case *pet.Cast:
		v, ok := constValue(x.Arg)
		if !ok || !ctypes.IsInteger(x.To) {
			return 0, false
		}
		return truncate(uint64(v), x.To), true
	case *pet.Op:
		if x.Kind == pet.OpMinus {
			v, ok := constValue(x.Args[0])
			return -v, ok
		}
		if len(x.Args) != 2 {
			return 0, false
		}
		a, ok := constValue(x.Args[0])
		if !ok {
			return 0, false
		}
		b, ok := constValue(x.Args[1])
		if !ok {
			return 0, false
		}
		switch x.Kind {
		case pet.OpAdd:
			return a + b, true
		case pet.OpSub:
			return a - b, true
		case pet.OpMul:
			return a * b, true
		case pet.OpDiv:
			if b != 0 {
				return a / b, true
			}
		case pet.OpMod:
			if b != 0 {
				return a % b, true
			}
		case pet.OpShl:
			return a << uint(b), true
		case pet.OpShr:
			return a >> uint(b), true
		}
	}
	return 0, false
}
