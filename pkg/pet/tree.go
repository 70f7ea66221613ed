package pet

// Loc is a source range: byte offsets [Start, End), the line of Start and
// the indentation of that line.
type Loc struct {
	Start, End int
	Line       int
	Indent     string
}

// Union returns the smallest range covering l and o.
func (l Loc) Union(o Loc) Loc {
	if o.End == 0 && o.Start == 0 {
		return l
	}
	if l.End == 0 && l.Start == 0 {
		return o
	}
	out := l
	if o.Start < out.Start {
		out.Start, out.Line, out.Indent = o.Start, o.Line, o.Indent
	}
	if o.End > out.End {
		out.End = o.End
	}
	return out
}

// Node holds the data common to all trees.
type Node struct {
	Loc   Loc
	Label string
}

func (n *Node) base() *Node { return n }

// Tree is a control-structure tree.
type Tree interface {
	implPetTree()
	base() *Node
}

// Block is a sequence of trees. Scope is set when the block is a lexical
// scope, so that variables declared inside die at its end.
type Block struct {
	Node
	Children []Tree
	Scope    bool
}

// Decl declares Var, optionally with an initial value.
type Decl struct {
	Node
	Var  *Access
	Init Expr
}

// ExprStmt evaluates an expression.
type ExprStmt struct {
	Node
	Expr Expr
}

// Return returns from the function being inlined.
type Return struct {
	Node
	Expr Expr
}

// For is a loop in canonical form: Iv starts at Init and is incremented
// by Inc for as long as Cond holds. Declared is set when Iv is declared
// by the loop header.
type For struct {
	Node
	Iv          *Access
	Init        Expr
	Cond        Expr
	Inc         Expr
	Body        Tree
	Declared    bool
	Independent bool
}

// While is a loop that runs as long as Cond holds.
type While struct {
	Node
	Cond Expr
	Body Tree
}

// InfiniteLoop is a loop without condition.
type InfiniteLoop struct {
	Node
	Body Tree
}

// If runs Then when Cond holds and Else, if any, otherwise.
type If struct {
	Node
	Cond Expr
	Then Tree
	Else Tree
}

// Break leaves the innermost loop.
type Break struct{ Node }

// Continue skips to the next iteration of the innermost loop.
type Continue struct{ Node }

func (*Block) implPetTree()        {}
func (*Decl) implPetTree()         {}
func (*ExprStmt) implPetTree()     {}
func (*Return) implPetTree()       {}
func (*For) implPetTree()          {}
func (*While) implPetTree()        {}
func (*InfiniteLoop) implPetTree() {}
func (*If) implPetTree()           {}
func (*Break) implPetTree()        {}
func (*Continue) implPetTree()     {}

// LocOf returns the source range of t.
func LocOf(t Tree) Loc { return t.base().Loc }

// LabelOf returns the label attached to t, if any.
func LabelOf(t Tree) string { return t.base().Label }

// WithLoc returns a copy of t with the given source range.
func WithLoc(t Tree, loc Loc) Tree {
	c := shallowCopy(t)
	c.base().Loc = loc
	return c
}

// WithLabel returns a copy of t carrying label.
func WithLabel(t Tree, label string) Tree {
	c := shallowCopy(t)
	c.base().Label = label
	return c
}

func shallowCopy(t Tree) Tree {
	switch x := t.(type) {
	case *Block:
		c := *x
		c.Children = append([]Tree(nil), x.Children...)
		return &c
	case *Decl:
		c := *x
		return &c
	case *ExprStmt:
		c := *x
		return &c
	case *Return:
		c := *x
		return &c
	case *For:
		c := *x
		return &c
	case *While:
		c := *x
		return &c
	case *InfiniteLoop:
		c := *x
		return &c
	case *If:
		c := *x
		return &c
	case *Break:
		c := *x
		return &c
	case *Continue:
		c := *x
		return &c
	}
	return t
}

// MapTree rebuilds t with every expression e replaced by f(e). The
// induction variable of a for loop is mapped too and must remain an
// access.
func MapTree(t Tree, f func(Expr) Expr) Tree {
	if t == nil {
		return nil
	}
	switch x := t.(type) {
	case *Block:
		c := *x
		c.Children = make([]Tree, len(x.Children))
		for i, child := range x.Children {
			c.Children[i] = MapTree(child, f)
		}
		return &c
	case *Decl:
		c := *x
		if v, ok := f(x.Var).(*Access); ok {
			c.Var = v
		}
		if x.Init != nil {
			c.Init = f(x.Init)
		}
		return &c
	case *ExprStmt:
		c := *x
		c.Expr = f(x.Expr)
		return &c
	case *Return:
		c := *x
		if x.Expr != nil {
			c.Expr = f(x.Expr)
		}
		return &c
	case *For:
		c := *x
		if iv, ok := f(x.Iv).(*Access); ok {
			c.Iv = iv
		}
		c.Init, c.Cond, c.Inc = f(x.Init), f(x.Cond), f(x.Inc)
		c.Body = MapTree(x.Body, f)
		return &c
	case *While:
		c := *x
		c.Cond = f(x.Cond)
		c.Body = MapTree(x.Body, f)
		return &c
	case *InfiniteLoop:
		c := *x
		c.Body = MapTree(x.Body, f)
		return &c
	case *If:
		c := *x
		c.Cond = f(x.Cond)
		c.Then = MapTree(x.Then, f)
		c.Else = MapTree(x.Else, f)
		return &c
	}
	return shallowCopy(t)
}

// WalkTree calls fn on t and its descendants in pre-order. Returning false
// skips the children of that node.
func WalkTree(t Tree, fn func(Tree) bool) {
	if t == nil || !fn(t) {
		return
	}
	switch x := t.(type) {
	case *Block:
		for _, child := range x.Children {
			WalkTree(child, fn)
		}
	case *For:
		WalkTree(x.Body, fn)
	case *While:
		WalkTree(x.Body, fn)
	case *InfiniteLoop:
		WalkTree(x.Body, fn)
	case *If:
		WalkTree(x.Then, fn)
		WalkTree(x.Else, fn)
	}
}

// Exprs returns the expressions held directly by t, not those of its
// subtrees.
func Exprs(t Tree) []Expr {
	var out []Expr
	add := func(es ...Expr) {
		for _, e := range es {
			if e != nil {
				out = append(out, e)
			}
		}
	}
	switch x := t.(type) {
	case *Decl:
		add(x.Var, x.Init)
	case *ExprStmt:
		add(x.Expr)
	case *Return:
		add(x.Expr)
	case *For:
		add(x.Iv, x.Init, x.Cond, x.Inc)
	case *While:
		add(x.Cond)
	case *If:
		add(x.Cond)
	}
	return out
}

// TreeAccesses returns every access in t.
func TreeAccesses(t Tree) []*Access {
	var out []*Access
	WalkTree(t, func(n Tree) bool {
		for _, e := range Exprs(n) {
			out = append(out, Accesses(e)...)
		}
		return true
	})
	return out
}

// Writes returns the variables that t may modify, in order of first
// write. The induction variables of for loops count as written.
func Writes(t Tree) []*ID {
	seen := map[*ID]bool{}
	var out []*ID
	add := func(id *ID) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	WalkTree(t, func(n Tree) bool {
		if f, ok := n.(*For); ok {
			add(f.Iv.ID)
		}
		if d, ok := n.(*Decl); ok && d.Init != nil {
			add(d.Var.ID)
		}
		for _, e := range Exprs(n) {
			for _, a := range Accesses(e) {
				if a.Writes() {
					add(a.ID)
				}
			}
		}
		return true
	})
	return out
}

// Declarations returns the variables declared in t.
func Declarations(t Tree) []*ID {
	var out []*ID
	WalkTree(t, func(n Tree) bool {
		if d, ok := n.(*Decl); ok {
			out = append(out, d.Var.ID)
		}
		if f, ok := n.(*For); ok && f.Declared {
			out = append(out, f.Iv.ID)
		}
		return true
	})
	return out
}

// HasJump reports whether t contains a break or continue that leaves t,
// that is one that is not nested inside a loop of t.
func HasJump(t Tree) bool {
	found := false
	WalkTree(t, func(n Tree) bool {
		switch n.(type) {
		case *Break, *Continue:
			found = true
		case *For, *While, *InfiniteLoop:
			return false
		}
		return !found
	})
	return found
}

// IsKill reports whether e is a call to __pencil_kill.
func IsKill(e Expr) bool { return IsCall(e, "__pencil_kill") }
