package scop

// ScheduleKind enumerates the nodes of a schedule tree.
type ScheduleKind int

const (
	Leaf ScheduleKind = iota
	Sequence
	Set
	Band
)

func (k ScheduleKind) String() string {
	switch k {
	case Leaf:
		return "leaf"
	case Sequence:
		return "sequence"
	case Set:
		return "set"
	case Band:
		return "band"
	}
	return "?"
}

// Schedule is a schedule tree. Children of a sequence run in order, those
// of a set in any order; a band runs its only child for each value of the
// iterator Iter, in increasing order of the domain dim of that name.
type Schedule struct {
	Kind     ScheduleKind
	Stmt     string // Leaf
	Iter     string // Band
	Children []*Schedule
}

// LeafOf returns the schedule of a single statement.
func LeafOf(stmt string) *Schedule { return &Schedule{Kind: Leaf, Stmt: stmt} }

// Seq returns the schedule running a before b. Either may be nil.
func Seq(a, b *Schedule) *Schedule { return compose(Sequence, a, b) }

// Par returns the schedule running a and b in any order.
func Par(a, b *Schedule) *Schedule { return compose(Set, a, b) }

func compose(kind ScheduleKind, a, b *Schedule) *Schedule {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	out := &Schedule{Kind: kind}
	for _, s := range []*Schedule{a, b} {
		if s.Kind == kind {
			out.Children = append(out.Children, s.Children...)
		} else {
			out.Children = append(out.Children, s)
		}
	}
	return out
}

// BandOf returns the schedule running child for each value of iter.
func BandOf(iter string, child *Schedule) *Schedule {
	if child == nil {
		return nil
	}
	return &Schedule{Kind: Band, Iter: iter, Children: []*Schedule{child}}
}

// Statements returns the statements in the schedule, in schedule order.
func (s *Schedule) Statements() []string {
	if s == nil {
		return nil
	}
	if s.Kind == Leaf {
		return []string{s.Stmt}
	}
	var out []string
	for _, c := range s.Children {
		out = append(out, c.Statements()...)
	}
	return out
}

// Rename returns the schedule with statement names mapped through f.
func (s *Schedule) Rename(f func(string) string) *Schedule {
	if s == nil {
		return nil
	}
	out := &Schedule{Kind: s.Kind, Iter: s.Iter, Stmt: s.Stmt}
	if s.Kind == Leaf {
		out.Stmt = f(s.Stmt)
	}
	for _, c := range s.Children {
		out.Children = append(out.Children, c.Rename(f))
	}
	return out
}

// Filter returns the schedule restricted to the statements for which keep
// returns true.
func (s *Schedule) Filter(keep func(string) bool) *Schedule {
	if s == nil {
		return nil
	}
	if s.Kind == Leaf {
		if keep(s.Stmt) {
			return s
		}
		return nil
	}
	var out *Schedule
	for _, c := range s.Children {
		fc := c.Filter(keep)
		switch s.Kind {
		case Band:
			out = BandOf(s.Iter, fc)
		case Set:
			out = Par(out, fc)
		default:
			out = Seq(out, fc)
		}
	}
	return out
}
