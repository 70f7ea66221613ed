package pet

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes an indented description of t to w.
func Dump(w io.Writer, t Tree) {
	dump(w, t, 0)
}

// DumpString returns the description written by Dump.
func DumpString(t Tree) string {
	var sb strings.Builder
	Dump(&sb, t)
	return sb.String()
}

func dump(w io.Writer, t Tree, depth int) {
	ind := strings.Repeat("  ", depth)
	line := func(format string, args ...interface{}) {
		fmt.Fprintf(w, ind+format+"\n", args...)
	}
	if t == nil {
		line("<nil>")
		return
	}
	if label := LabelOf(t); label != "" {
		line("label: %s", label)
	}
	switch x := t.(type) {
	case *Block:
		line("block: scope=%v", x.Scope)
		for _, child := range x.Children {
			dump(w, child, depth+1)
		}
	case *Decl:
		if x.Init != nil {
			line("decl: %s = %s", x.Var.ID.Name, FormatExpr(x.Init))
		} else {
			line("decl: %s", x.Var.ID.Name)
		}
	case *ExprStmt:
		line("expr: %s", FormatExpr(x.Expr))
	case *Return:
		line("return: %s", FormatExpr(x.Expr))
	case *For:
		flags := ""
		if x.Declared {
			flags += " declared"
		}
		if x.Independent {
			flags += " independent"
		}
		line("for: %s = %s; %s; += %s%s", x.Iv.ID.Name, FormatExpr(x.Init),
			FormatExpr(x.Cond), FormatExpr(x.Inc), flags)
		dump(w, x.Body, depth+1)
	case *While:
		line("while: %s", FormatExpr(x.Cond))
		dump(w, x.Body, depth+1)
	case *InfiniteLoop:
		line("infinite loop:")
		dump(w, x.Body, depth+1)
	case *If:
		line("if: %s", FormatExpr(x.Cond))
		dump(w, x.Then, depth+1)
		if x.Else != nil {
			line("else:")
			dump(w, x.Else, depth+1)
		}
	case *Break:
		line("break")
	case *Continue:
		line("continue")
	default:
		line("<%T>", t)
	}
}
