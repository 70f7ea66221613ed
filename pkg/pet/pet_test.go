package pet

import (
	"testing"

	"github.com/raymyers/ralph-pet/pkg/ctypes"
	"github.com/stretchr/testify/require"
)

func scalar(name string) *ID { return NewID(name, ctypes.Int()) }

func array(name string, dims ...int64) *ID {
	var t ctypes.Type = ctypes.Int()
	for i := len(dims) - 1; i >= 0; i-- {
		t = ctypes.Array(t, dims[i])
	}
	return NewID(name, t)
}

func read(id *ID, args ...Expr) *Access {
	a := NewAccess(id)
	for _, arg := range args {
		a = a.Subscript(arg)
	}
	return a
}

func TestSubstituter(t *testing.T) {
	i, j := scalar("i"), scalar("j")
	A := array("A", 10, 10)
	p := NewID("p", ctypes.Pointer(ctypes.Int()))
	row := NewID("row", ctypes.Array(ctypes.Int(), -1))
	tmp, fresh := scalar("t"), scalar("t_0")

	tests := []struct {
		name string
		id   *ID
		repl Expr
		in   Expr
		want string
	}{
		{"rename", tmp, NewAccess(fresh),
			NewOp(OpAssign, read(tmp).MarkWrite(), NewOp(OpAdd, read(tmp), NewInt(1))),
			"t_0 = t_0 + 1"},
		{"row of array", row, read(A, read(i)),
			read(row, read(j)),
			"A[i][j]"},
		{"address of element", p, &Op{Kind: OpAddrOf, Args: []Expr{read(A, read(i), read(j))}},
			read(p, NewInt(0)),
			"A[i][j]"},
		{"address plus offset", p, &Op{Kind: OpAddrOf, Args: []Expr{read(A, read(i), read(j))}},
			read(p, NewInt(2)),
			"A[i][j + 2]"},
		{"address passed on", p, &Op{Kind: OpAddrOf, Args: []Expr{read(A, read(i), NewInt(0))}},
			&Call{Name: "f", Args: []Expr{read(p)}},
			"f(&A[i][0])"},
		{"other variables untouched", tmp, NewAccess(fresh),
			read(A, read(i), read(j)),
			"A[i][j]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSubstituter()
			s.Add(tt.id, tt.repl)
			before := FormatExpr(tt.in)
			got := s.Expr(tt.in)
			if FormatExpr(got) != tt.want {
				t.Errorf("got %q, want %q", FormatExpr(got), tt.want)
			}
			if FormatExpr(tt.in) != before {
				t.Errorf("input modified: %q", FormatExpr(tt.in))
			}
		})
	}
}

func TestSubstituterKeepsAccessKind(t *testing.T) {
	A := array("A", 10)
	p := NewID("p", ctypes.Pointer(ctypes.Int()))
	s := NewSubstituter()
	s.Add(p, &Op{Kind: OpAddrOf, Args: []Expr{read(A, NewInt(3))}})

	w := read(p, NewInt(0)).MarkReadWrite()
	w.RefID = 7
	got, ok := s.Expr(w).(*Access)
	require.True(t, ok)
	require.Equal(t, A, got.ID)
	require.True(t, got.Read && got.Write)
	require.Equal(t, 7, got.RefID)
}

func TestSubstituterMembers(t *testing.T) {
	pt := ctypes.Tstruct{Name: "pt", Fields: []ctypes.Field{{Name: "x", Type: ctypes.Int()}}}
	s1 := NewID("s", pt)
	arr := NewID("arr", ctypes.Array(pt, 4))
	sub := NewSubstituter()
	sub.Add(s1, read(arr, NewInt(1)))

	in := NewAccess(s1.Member("x", ctypes.Int()))
	got := sub.Expr(in).(*Access)
	if got.ID != arr.Member("x", ctypes.Int()) {
		t.Fatalf("member not redirected: %s", got.ID.Name)
	}
	if FormatExpr(got) != "arr[1].x" {
		t.Errorf("got %q", FormatExpr(got))
	}
}

func TestAccessMarks(t *testing.T) {
	a := read(scalar("x"))
	w := a.MarkWrite()
	if !a.Read || a.Write {
		t.Errorf("MarkWrite modified its receiver")
	}
	if w.Read || !w.Write {
		t.Errorf("MarkWrite: read=%v write=%v", w.Read, w.Write)
	}
	m := w.MarkMayWrite()
	if m.Write || !m.MayWrite || !m.Writes() {
		t.Errorf("MarkMayWrite: write=%v may=%v", m.Write, m.MayWrite)
	}
	k := a.MarkKill()
	if k.Read || !k.Kill {
		t.Errorf("MarkKill: read=%v kill=%v", k.Read, k.Kill)
	}
}

func TestTreeQueries(t *testing.T) {
	i, n, s := scalar("i"), scalar("n"), scalar("s")
	A := array("A", 100)
	body := &Block{Children: []Tree{
		&ExprStmt{Expr: NewOp(OpAddAssign, read(s).MarkReadWrite(), read(A, read(i)))},
		&If{Cond: NewOp(OpGt, read(s), read(n)), Then: &Break{}},
	}}
	loop := &For{Iv: read(i).MarkWrite(), Init: NewInt(0), Cond: NewOp(OpLt, read(i), read(n)),
		Inc: NewInt(1), Body: body, Declared: true}
	top := &Block{Scope: true, Children: []Tree{
		&Decl{Var: read(s).MarkKill(), Init: NewInt(0)},
		loop,
	}}

	var names []string
	for _, id := range Writes(top) {
		names = append(names, id.Name)
	}
	require.Equal(t, []string{"s", "i"}, names)

	decls := Declarations(top)
	require.Len(t, decls, 2)
	require.Equal(t, s, decls[0])
	require.Equal(t, i, decls[1])

	require.True(t, HasJump(body))
	require.False(t, HasJump(loop))
	require.False(t, HasJump(top))
	require.Len(t, TreeAccesses(top), 9)
}

func TestMapTreeCopies(t *testing.T) {
	x, y := scalar("x"), scalar("y")
	orig := &Block{Children: []Tree{&ExprStmt{Expr: NewOp(OpAssign, read(x).MarkWrite(), NewInt(1))}}}
	s := NewSubstituter()
	s.Rename(x, y)
	got := s.Tree(orig)

	if FormatExpr(orig.Children[0].(*ExprStmt).Expr) != "x = 1" {
		t.Errorf("original changed")
	}
	if FormatExpr(got.(*Block).Children[0].(*ExprStmt).Expr) != "y = 1" {
		t.Errorf("substituted: %s", DumpString(got))
	}
	a := got.(*Block).Children[0].(*ExprStmt).Expr.(*Op).Args[0].(*Access)
	if !a.Write || a.Read {
		t.Errorf("write flag lost in rename")
	}
}

func TestDump(t *testing.T) {
	i := scalar("i")
	A := array("A", 10)
	loop := &For{Iv: read(i).MarkWrite(), Init: NewInt(0), Cond: NewOp(OpLt, read(i), NewInt(10)),
		Inc: NewInt(1), Declared: true,
		Body: &ExprStmt{Expr: NewOp(OpAssign, read(A, read(i)).MarkWrite(), NewInt(0))}}
	want := "for: i = 0; i < 10; += 1 declared\n  expr: A[i] = 0\n"
	if got := DumpString(loop); got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}
