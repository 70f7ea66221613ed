package pet

// OpKind enumerates the operators of an Op expression.
type OpKind int

const (
	OpAssign OpKind = iota
	OpAddAssign
	OpSubAssign
	OpMulAssign
	OpDivAssign
	OpModAssign
	OpShlAssign
	OpShrAssign
	OpAndAssign
	OpXorAssign
	OpOrAssign
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpShl
	OpShr
	OpEq
	OpNe
	OpLe
	OpGe
	OpLt
	OpGt
	OpMinus
	OpPostInc
	OpPostDec
	OpPreInc
	OpPreDec
	OpAddrOf
	OpAnd
	OpXor
	OpOr
	OpNot
	OpLand
	OpLor
	OpLnot
	OpCond
	OpAssume
	OpKill
)

var opNames = [...]string{
	OpAssign:    "=",
	OpAddAssign: "+=",
	OpSubAssign: "-=",
	OpMulAssign: "*=",
	OpDivAssign: "/=",
	OpModAssign: "%=",
	OpShlAssign: "<<=",
	OpShrAssign: ">>=",
	OpAndAssign: "&=",
	OpXorAssign: "^=",
	OpOrAssign:  "|=",
	OpAdd:       "+",
	OpSub:       "-",
	OpMul:       "*",
	OpDiv:       "/",
	OpMod:       "%",
	OpShl:       "<<",
	OpShr:       ">>",
	OpEq:        "==",
	OpNe:        "!=",
	OpLe:        "<=",
	OpGe:        ">=",
	OpLt:        "<",
	OpGt:        ">",
	OpMinus:     "-",
	OpPostInc:   "++",
	OpPostDec:   "--",
	OpPreInc:    "++",
	OpPreDec:    "--",
	OpAddrOf:    "&",
	OpAnd:       "&",
	OpXor:       "^",
	OpOr:        "|",
	OpNot:       "~",
	OpLand:      "&&",
	OpLor:       "||",
	OpLnot:      "!",
	OpCond:      "?:",
	OpAssume:    "assume",
	OpKill:      "kill",
}

func (k OpKind) String() string {
	if int(k) < len(opNames) {
		return opNames[k]
	}
	return "?"
}

// IsAssign reports whether k is = or a compound assignment.
func (k OpKind) IsAssign() bool { return k >= OpAssign && k <= OpOrAssign }

// IsIncDec reports whether k is one of the increment or decrement operators.
func (k OpKind) IsIncDec() bool { return k >= OpPostInc && k <= OpPreDec }

// IsComparison reports whether k yields a truth value.
func (k OpKind) IsComparison() bool {
	switch k {
	case OpEq, OpNe, OpLe, OpGe, OpLt, OpGt, OpLand, OpLor, OpLnot:
		return true
	}
	return false
}

// Arith returns the arithmetic operator applied by a compound assignment.
func (k OpKind) Arith() (OpKind, bool) {
	switch k {
	case OpAddAssign:
		return OpAdd, true
	case OpSubAssign:
		return OpSub, true
	case OpMulAssign:
		return OpMul, true
	case OpDivAssign:
		return OpDiv, true
	case OpModAssign:
		return OpMod, true
	case OpShlAssign:
		return OpShl, true
	case OpShrAssign:
		return OpShr, true
	case OpAndAssign:
		return OpAnd, true
	case OpXorAssign:
		return OpXor, true
	case OpOrAssign:
		return OpOr, true
	}
	return k, false
}
