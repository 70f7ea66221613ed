package prog

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// WriteArrays prints one row per array of p.
func (p *Prog) WriteArrays(w io.Writer) {
	t := newTable(w, "ARRAY", "TYPE", "RANK", "EXTENT", "LOCAL", "READ-ONLY", "LIVE-OUT", "REFS", "GROUPS")
	for _, a := range p.Arrays {
		t.Append([]string{
			a.Name,
			a.Type,
			strconv.Itoa(a.Rank),
			a.Extent.String(),
			yesNo(a.Local),
			yesNo(a.ReadOnly),
			yesNo(a.LiveOut),
			strconv.Itoa(len(a.Refs)),
			strconv.Itoa(len(a.Groups)),
		})
	}
	t.Render()
}

// WriteGroups prints the reference groups of every array.
func (p *Prog) WriteGroups(w io.Writer) {
	t := newTable(w, "ARRAY", "GROUP", "REFS", "WRITE", "EXACT", "FOOTPRINT")
	for _, a := range p.Arrays {
		for _, g := range a.Groups {
			var tags string
			for k, r := range g.Refs {
				if k > 0 {
					tags += " "
				}
				tags += r.Tag
			}
			t.Append([]string{a.Name, strconv.Itoa(g.ID), tags, yesNo(g.Writes()), yesNo(g.Exact()), g.Footprint.String()})
		}
	}
	t.Render()
}

// Stats are the size figures of one scop.
type Stats struct {
	Function   string
	Statements int
	Kills      int
	Arrays     int
	Refs       int
	Groups     int
	Depth      int // deepest loop nest
	Params     int
}

// Stats returns the size figures of p.
func (p *Prog) Stats() Stats {
	s := Stats{Function: p.Scop.Function, Arrays: len(p.Arrays), Params: len(p.Scop.ParamNames())}
	for _, st := range p.Scop.Stmts {
		if st.IsKill() {
			s.Kills++
		} else {
			s.Statements++
		}
		if d := len(st.Iterators()); d > s.Depth {
			s.Depth = d
		}
	}
	for _, a := range p.Arrays {
		s.Refs += len(a.Refs)
		s.Groups += len(a.Groups)
	}
	return s
}

// WriteStats prints the figures of several scops, one row each, followed
// by their totals.
func WriteStats(w io.Writer, stats []Stats) {
	t := newTable(w, "FUNCTION", "STMTS", "KILLS", "ARRAYS", "REFS", "GROUPS", "DEPTH", "PARAMS")
	var total Stats
	for _, s := range stats {
		t.Append(statsRow(s.Function, s))
		total.Statements += s.Statements
		total.Kills += s.Kills
		total.Arrays += s.Arrays
		total.Refs += s.Refs
		total.Groups += s.Groups
		if s.Depth > total.Depth {
			total.Depth = s.Depth
		}
		total.Params += s.Params
	}
	if len(stats) > 1 {
		t.SetFooter(statsRow(fmt.Sprintf("%d scops", len(stats)), total))
	}
	t.Render()
}

func statsRow(name string, s Stats) []string {
	return []string{
		name,
		strconv.Itoa(s.Statements),
		strconv.Itoa(s.Kills),
		strconv.Itoa(s.Arrays),
		strconv.Itoa(s.Refs),
		strconv.Itoa(s.Groups),
		strconv.Itoa(s.Depth),
		strconv.Itoa(s.Params),
	}
}
