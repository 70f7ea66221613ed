package pet

import (
	"fmt"
	"strings"

	"github.com/raymyers/ralph-pet/pkg/affine"
)

// ArgKind classifies the arguments of a function summary.
type ArgKind int

const (
	ArgOther ArgKind = iota
	ArgInt           // an integer value the footprints may depend on
	ArgArray         // an array whose footprint is known
)

// SummaryArg describes the effect of a function on one argument.
//
// Footprints are sets of elements of the array argument, with dims named
// affine.OutDim(k), parametrized by the integer arguments, which are
// named by ParamName.
type SummaryArg struct {
	Kind      ArgKind
	MayRead   affine.Set
	MayWrite  affine.Set
	MustWrite affine.Set
}

// FunctionSummary describes the accesses a function performs through its
// arguments.
type FunctionSummary struct {
	Name string
	Args []SummaryArg
}

// ParamName returns the name under which the value of integer argument k
// appears in footprints.
func ParamName(k int) string { return fmt.Sprintf("$p%d", k) }

// Arg returns the summary of argument k, or an ArgOther entry if k is out
// of range.
func (s *FunctionSummary) Arg(k int) SummaryArg {
	if s == nil || k >= len(s.Args) {
		return SummaryArg{}
	}
	return s.Args[k]
}

func (s *FunctionSummary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s(", s.Name)
	for k, a := range s.Args {
		if k > 0 {
			sb.WriteString(", ")
		}
		switch a.Kind {
		case ArgInt:
			sb.WriteString(ParamName(k)[1:])
		case ArgArray:
			fmt.Fprintf(&sb, "read: %s, write: %s, must: %s",
				a.MayRead.Condition(), a.MayWrite.Condition(), a.MustWrite.Condition())
		default:
			sb.WriteString("_")
		}
	}
	sb.WriteString(")")
	return sb.String()
}
