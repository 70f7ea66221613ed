// Package scop holds the polyhedral model of a static control part: its
// statements with their iteration domains and access relations, the
// arrays they access and the schedule that orders them.
package scop

import (
	"fmt"
	"strings"

	"github.com/raymyers/ralph-pet/pkg/affine"
	"github.com/raymyers/ralph-pet/pkg/pet"
)

// Scop is a static control part.
type Scop struct {
	Loc           pet.Loc
	Function      string
	Context       affine.Set // constraints on the parameters
	Schedule      *Schedule
	Types         []Type
	Arrays        []*Array
	Stmts         []*Stmt
	Implications  []Implication
	Independences []Independence
}

// Stmt is a statement together with the set of its executions.
//
// The dims of Domain are the enclosing loop iterators followed by one dim
// per argument; ArgDim(k) holds the value of Args[k] for the execution.
type Stmt struct {
	Name     string
	Loc      pet.Loc
	Domain   affine.Set
	Body     pet.Tree
	Args     []pet.Expr
	Accesses []*Access
}

// ArgDim returns the name of the domain dim holding argument k.
func ArgDim(k int) string { return fmt.Sprintf("$a%d", k) }

// Iterators returns the loop iterator dims of the domain.
func (s *Stmt) Iterators() []string {
	var out []string
	for _, d := range s.Domain.Dims() {
		if !strings.HasPrefix(d, "$a") {
			out = append(out, d)
		}
	}
	return out
}

// Expr returns the expression of an expression statement.
func (s *Stmt) Expr() (pet.Expr, bool) {
	es, ok := s.Body.(*pet.ExprStmt)
	if !ok {
		return nil, false
	}
	return es.Expr, true
}

// IsKill reports whether the statement only kills its accesses.
func (s *Stmt) IsKill() bool {
	e, ok := s.Expr()
	if !ok {
		return false
	}
	op, ok := e.(*pet.Op)
	return ok && op.Kind == pet.OpKill
}

// Access is one access of a statement. Affine accesses read integer
// scalars whose value is known; they carry that value instead of a
// relation.
type Access struct {
	Ref        int
	ID         *pet.ID
	Index      affine.Map     // from the statement tuple to the array element
	Subscripts []affine.PwAff // one per array dim; NaN leaves the dim free
	Restrict   *affine.Set    // extra constraints on the elements, over OutDim(k)
	Read       bool
	Write      bool
	MayWrite   bool
	Kill       bool
	Exact      bool // every index is affine
	Affine     bool
	Value      affine.PwAff
}

// RefName returns the reference identifier used in output.
func (a *Access) RefName() string { return fmt.Sprintf("__pet_ref_%d", a.Ref) }

// Array returns the name of the accessed array.
func (a *Access) Array() string {
	if a.ID == nil {
		return ""
	}
	return a.ID.Name
}

// SetDomain recomputes the access relation for the statement domain dom.
func (a *Access) SetDomain(dom affine.Set) {
	if a.Affine {
		return
	}
	a.Index = affine.AccessMap(dom, a.Array(), a.Subscripts)
	if a.Restrict != nil {
		a.Index = a.Index.IntersectRange(*a.Restrict)
	}
}

// Footprint returns the access relation restricted to the executions in
// dom.
func (a *Access) Footprint(dom affine.Set) affine.Map {
	return a.Index.IntersectDomain(dom)
}

// Array describes an array or scalar accessed by the scop.
type Array struct {
	ID              *pet.ID
	Name            string
	ElementType     string
	ElementSize     int64
	ElementIsRecord bool
	Rank            int
	Extent          affine.Set // dims OutDim(k)
	Context         affine.Set // parameter values for which the sizes are valid
	ValueBounds     affine.Set // dim "$v"; universe when unknown
	Declared        bool
	Exposed         bool
	Outer           bool
	LiveOut         bool
	UniquelyDefined bool
}

// Type is a named type used by an array element, with its definition.
type Type struct {
	Name       string
	Definition string
}

// Implication states that if an element of Array has value Satisfied,
// then so do all elements related to it by Extension.
type Implication struct {
	Satisfied int64
	Array     string
	Extension affine.Map
}

// Independence records that the iterations of the loop over Iter do not
// depend on each other for the given statements. Local lists variables
// that are private to each iteration.
type Independence struct {
	Iter  string
	Stmts []string
	Local []string
}

// Stmt returns the statement with the given name.
func (s *Scop) Stmt(name string) *Stmt {
	for _, st := range s.Stmts {
		if st.Name == name {
			return st
		}
	}
	return nil
}

// Array returns the array with the given name.
func (s *Scop) Array(name string) *Array {
	for _, a := range s.Arrays {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// ArrayByID returns the array of the variable id.
func (s *Scop) ArrayByID(id *pet.ID) *Array {
	for _, a := range s.Arrays {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// ParamNames returns the parameters of all statement domains and the
// context.
func (s *Scop) ParamNames() []string {
	seen := map[string]bool{}
	var out []string
	add := func(names []string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	add(s.Context.ParamNames())
	for _, st := range s.Stmts {
		add(st.Domain.ParamNames())
	}
	return out
}
