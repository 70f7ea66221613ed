package diag

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// Reporter prints located diagnostics with an excerpt of the source line.
// In autodetect mode only internal errors are printed, since other
// failures just shrink the extracted region.
type Reporter struct {
	w          io.Writer
	file       string
	src        string
	Autodetect bool
	Verbose    bool

	bold, red, green *color.Color
	count            int
}

// NewReporter returns an uncoloured reporter for diagnostics on file,
// whose contents are src.
func NewReporter(w io.Writer, file, src string) *Reporter {
	r := &Reporter{
		w:     w,
		file:  file,
		src:   src,
		bold:  color.New(color.Bold),
		red:   color.New(color.FgRed, color.Bold),
		green: color.New(color.FgGreen, color.Bold),
	}
	r.SetColor(false)
	return r
}

// Terminal returns w prepared for coloured output, and whether w is a
// terminal. Writers other than files are returned unchanged.
func Terminal(w io.Writer) (io.Writer, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return w, false
	}
	return colorable.NewColorable(f), isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColor turns colouring on or off.
func (r *Reporter) SetColor(on bool) {
	for _, c := range []*color.Color{r.bold, r.red, r.green} {
		if on {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

// Count returns the number of diagnostics printed.
func (r *Reporter) Count() int { return r.count }

// Report prints err unless it is suppressed by autodetect mode.
func (r *Reporter) Report(err error) {
	if err == nil {
		return
	}
	var e *Error
	if !errors.As(err, &e) {
		r.count++
		fmt.Fprintf(r.w, "%s %s\n", r.red.Sprint("error:"), err)
		return
	}
	if r.Autodetect && e.Kind != Internal {
		return
	}
	r.count++
	if e.Kind == Internal {
		fmt.Fprintf(r.w, "%s: %s %s\n", r.bold.Sprint(r.file), r.red.Sprint("internal error:"), e.Msg)
		if r.Verbose && e.cause != nil {
			fmt.Fprintf(r.w, "%+v\n", e.cause)
		}
		return
	}
	loc := fmt.Sprintf("%s:%d:%d:", r.file, e.Span.Line, e.Span.Column)
	fmt.Fprintf(r.w, "%s %s %s\n", r.bold.Sprint(loc), r.red.Sprint("error:"), e.Msg)
	if line, ok := r.sourceLine(e.Span.Line); ok {
		fmt.Fprintf(r.w, "%s\n", line)
		fmt.Fprintf(r.w, "%s\n", r.green.Sprint(r.marker(line, e)))
	}
}

func (r *Reporter) sourceLine(n int) (string, bool) {
	if n <= 0 {
		return "", false
	}
	lines := strings.Split(r.src, "\n")
	if n > len(lines) {
		return "", false
	}
	return strings.TrimRight(lines[n-1], "\r"), true
}

// marker underlines the part of line covered by the error, up to the end
// of the line.
func (r *Reporter) marker(line string, e *Error) string {
	col := e.Span.Column
	if col < 1 {
		col = 1
	}
	if col > len(line)+1 {
		col = len(line) + 1
	}
	width := e.Span.End - e.Span.Start
	if e.Span.EndLine != e.Span.Line || width <= 0 || col-1+width > len(line) {
		width = len(line) - (col - 1)
	}
	if width < 1 {
		width = 1
	}
	var sb strings.Builder
	for _, ch := range line[:col-1] {
		if ch == '\t' {
			sb.WriteByte('\t')
		} else {
			sb.WriteByte(' ')
		}
	}
	sb.WriteByte('^')
	sb.WriteString(strings.Repeat("~", width-1))
	return sb.String()
}
