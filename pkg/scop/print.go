package scop

import (
	"fmt"
	"io"
	"strings"

	"github.com/raymyers/ralph-pet/pkg/pet"
)

// Print writes a compact human-readable summary of s.
func Print(w io.Writer, s *Scop) {
	fmt.Fprintf(w, "scop %s [%d, %d)\n", s.Function, s.Loc.Start, s.Loc.End)
	fmt.Fprintf(w, "  context: %s\n", s.Context)
	for _, a := range s.Arrays {
		var flags []string
		for _, f := range []struct {
			on   bool
			name string
		}{{a.Declared, "declared"}, {a.Exposed, "exposed"}, {a.Outer, "outer"}, {a.LiveOut, "live-out"}} {
			if f.on {
				flags = append(flags, f.name)
			}
		}
		fmt.Fprintf(w, "  array %s %s %s", a.ElementType, a.Name, a.Extent)
		if len(flags) > 0 {
			fmt.Fprintf(w, " (%s)", strings.Join(flags, ", "))
		}
		fmt.Fprintln(w)
	}
	for _, st := range s.Stmts {
		fmt.Fprintf(w, "  %s: %s\n", st.Name, st.Domain)
		if e, ok := st.Expr(); ok {
			fmt.Fprintf(w, "    %s\n", pet.FormatExpr(e))
		} else {
			for _, line := range strings.Split(strings.TrimRight(pet.DumpString(st.Body), "\n"), "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
		for _, a := range st.Accesses {
			if a.Affine {
				continue
			}
			fmt.Fprintf(w, "    %s %s\n", accessKind(a), a.Index)
		}
	}
	for _, im := range s.Implications {
		fmt.Fprintf(w, "  implication %d: %s\n", im.Satisfied, im.Extension)
	}
}

func accessKind(a *Access) string {
	switch {
	case a.Kill:
		return "kill"
	case a.Read && a.Write:
		return "read/write"
	case a.Read && a.MayWrite:
		return "read/may-write"
	case a.Write:
		return "write"
	case a.MayWrite:
		return "may-write"
	}
	return "read"
}

// String returns the summary written by Print.
func (s *Scop) String() string {
	var sb strings.Builder
	Print(&sb, s)
	return sb.String()
}
