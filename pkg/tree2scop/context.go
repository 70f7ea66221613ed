package tree2scop

import (
	"github.com/raymyers/ralph-pet/pkg/affine"
	"github.com/raymyers/ralph-pet/pkg/pet"
)

// Context is the state threaded through scop construction: the domain of
// the enclosing loops and the known values of integer scalars. A Context
// is never modified; every update returns a new one.
type Context struct {
	dom    affine.Set
	vals   map[*pet.ID]affine.PwAff
	nested bool
}

// NewContext returns the context of the outermost statement.
func NewContext() *Context {
	return &Context{dom: affine.Universe(""), nested: true}
}

// Domain returns the constraints on the enclosing loop iterators.
func (c *Context) Domain() affine.Set { return c.dom }

// Iterators returns the names of the enclosing loop iterators, outermost
// first.
func (c *Context) Iterators() []string { return c.dom.Dims() }

// Value returns the value bound to id.
func (c *Context) Value(id *pet.ID) (affine.PwAff, bool) {
	v, ok := c.vals[id]
	return v, ok
}

func (c *Context) copy() *Context {
	out := *c
	out.vals = make(map[*pet.ID]affine.PwAff, len(c.vals))
	for k, v := range c.vals {
		out.vals[k] = v
	}
	return &out
}

// Restrict returns the context with the domain intersected with s.
func (c *Context) Restrict(s affine.Set) *Context {
	out := *c
	out.dom = c.dom.Intersect(s).WithDims(c.dom.Dims()...)
	return &out
}

// AddDim returns the context of a loop body with iterator dim, whose value
// is given by the variable id.
func (c *Context) AddDim(dim string, id *pet.ID, v affine.PwAff) *Context {
	out := c.copy()
	out.dom = c.dom.AddDims(dim)
	if id != nil {
		out.vals[id] = v
	}
	return out
}

// WithDomain returns the context with domain dom.
func (c *Context) WithDomain(dom affine.Set) *Context {
	out := *c
	out.dom = dom
	return &out
}

// Bind returns the context with id bound to v. A NaN value clears the
// binding.
func (c *Context) Bind(id *pet.ID, v affine.PwAff) *Context {
	out := c.copy()
	if v.IsNaN() {
		out.vals[id] = affine.NaN()
	} else {
		out.vals[id] = v
	}
	return out
}

// Clear returns the context with the values of ids marked unknown.
func (c *Context) Clear(ids []*pet.ID) *Context {
	if len(ids) == 0 {
		return c
	}
	out := c.copy()
	for _, id := range ids {
		out.vals[id] = affine.NaN()
	}
	return out
}

// AllowNested returns the context with nested accesses in conditions
// allowed or not.
func (c *Context) AllowNested(allow bool) *Context {
	out := *c
	out.nested = allow
	return &out
}
