package scop

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeFlattens(t *testing.T) {
	s := Seq(Seq(LeafOf("S_0"), LeafOf("S_1")), LeafOf("S_2"))
	require.Equal(t, Sequence, s.Kind)
	assert.Len(t, s.Children, 3)
	assert.Equal(t, []string{"S_0", "S_1", "S_2"}, s.Statements())

	p := Par(LeafOf("S_0"), Seq(LeafOf("S_1"), LeafOf("S_2")))
	require.Equal(t, Set, p.Kind)
	assert.Len(t, p.Children, 2)

	assert.Same(t, s, Seq(nil, s))
	assert.Same(t, s, Par(s, nil))
	assert.Nil(t, BandOf("i", nil))
}

func TestScheduleFilter(t *testing.T) {
	s := Seq(LeafOf("S_0"), BandOf("i", Seq(LeafOf("S_1"), LeafOf("S_2"))))

	f := s.Filter(func(name string) bool { return name != "S_1" })
	assert.Equal(t, []string{"S_0", "S_2"}, f.Statements())

	f = s.Filter(func(name string) bool { return name == "S_2" })
	require.Equal(t, Band, f.Kind)
	assert.Equal(t, "i", f.Iter)
	assert.Equal(t, Leaf, f.Children[0].Kind)

	assert.Nil(t, s.Filter(func(string) bool { return false }))
}

func TestScheduleRename(t *testing.T) {
	s := BandOf("i", Par(LeafOf("S_0"), LeafOf("S_1")))
	r := s.Rename(func(name string) string { return strings.Replace(name, "S_", "T_", 1) })
	assert.Equal(t, []string{"T_0", "T_1"}, r.Statements())
	assert.Equal(t, []string{"S_0", "S_1"}, s.Statements())
	assert.Equal(t, "band", r.Kind.String())
}
