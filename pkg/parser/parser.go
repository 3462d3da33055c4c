// Package parser converts m43 program text into grids and back.
//
// A program is one grid row per line. Cells are separated by whitespace and
// every row must have the same number of cells. Text after '#' is a comment
// and lines holding only comments or whitespace are skipped.
//
//	.           empty cell
//	S> S< S^ Sv start, heading in the arrow's direction
//	> < ^ v     redirect
//	@           end
//	=N          set the accumulator to the decimal literal N
//	=?          set the accumulator from input
//	s           store
//	+           add
//	p           print
//	d           display
package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/chazu/m43/vm"
)

// ParseError reports malformed program text. Line and Column are 1-based.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

// token is one cell's text with its source position.
type token struct {
	text string
	col  int // 1-based, in runes
}

// Parse builds a grid from program text.
func Parse(text string) (*vm.DynGrid, error) {
	var cells []vm.Block
	width, height := -1, 0
	firstLine := 0

	for n, line := range strings.Split(text, "\n") {
		lineNo := n + 1
		toks := tokenize(stripComment(strings.TrimSuffix(line, "\r")))
		if len(toks) == 0 {
			continue
		}
		if width < 0 {
			width = len(toks)
			firstLine = lineNo
		} else if len(toks) != width {
			return nil, &ParseError{
				Line:   lineNo,
				Column: 1,
				Msg:    fmt.Sprintf("row has %d cells, line %d has %d", len(toks), firstLine, width),
			}
		}
		for _, tok := range toks {
			b, err := parseCell(tok.text)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Column: tok.col, Msg: err.Error()}
			}
			cells = append(cells, b)
		}
		height++
	}

	if width < 0 {
		width = 0
	}
	return vm.NewDynGrid(width, height, cells)
}

// Unparse renders a grid in canonical form, columns aligned. For any grid g
// that Parse can produce, Parse(Unparse(g)) equals g.
func Unparse(g vm.Grid) string {
	w, h := g.Width(), g.Height()
	labels := make([]string, w*h)
	colWidth := make([]int, w)
	for i := range labels {
		labels[i] = vm.CellLabel(g.At(i))
		if n := utf8.RuneCountInString(labels[i]); n > colWidth[i%w] {
			colWidth[i%w] = n
		}
	}

	var b strings.Builder
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			label := labels[y*w+x]
			b.WriteString(label)
			if x < w-1 {
				b.WriteString(strings.Repeat(" ", colWidth[x]-utf8.RuneCountInString(label)+1))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Format rewrites program text in canonical form while keeping its comments.
// Rows are rendered as by Unparse; comment-only lines and blank lines stay
// where they are, and a trailing comment follows its row after one space.
// Trailing blank lines are dropped.
func Format(text string) (string, error) {
	g, err := Parse(text)
	if err != nil {
		return "", err
	}
	rows := strings.Split(strings.TrimSuffix(Unparse(g), "\n"), "\n")

	var out []string
	y := 0
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		code := stripComment(line)
		comment := strings.TrimRightFunc(line[len(code):], unicode.IsSpace)
		if len(tokenize(code)) == 0 {
			out = append(out, comment)
			continue
		}
		row := rows[y]
		y++
		if comment != "" {
			row += " " + comment
		}
		out = append(out, row)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	if len(out) == 0 {
		return "", nil
	}
	return strings.Join(out, "\n") + "\n", nil
}

// CellAt maps a 0-based line and character offset in program text to the
// grid coordinate of the cell token under it.
func CellAt(text string, line, char int) (vm.Coord, bool) {
	lines := strings.Split(text, "\n")
	if line < 0 || line >= len(lines) {
		return vm.Coord{}, false
	}
	y := 0
	for n := 0; n < line; n++ {
		if len(tokenize(stripComment(strings.TrimSuffix(lines[n], "\r")))) > 0 {
			y++
		}
	}
	toks := tokenize(stripComment(strings.TrimSuffix(lines[line], "\r")))
	for x, tok := range toks {
		start := tok.col - 1
		end := start + utf8.RuneCountInString(tok.text)
		if char >= start && char < end {
			return vm.Coord{X: x, Y: y}, true
		}
	}
	return vm.Coord{}, false
}

// TokenRange is the inverse of CellAt: it returns the 0-based line and the
// [start, end) character span of the token for grid coordinate c.
func TokenRange(text string, c vm.Coord) (line, start, end int, ok bool) {
	y := 0
	for n, raw := range strings.Split(text, "\n") {
		toks := tokenize(stripComment(strings.TrimSuffix(raw, "\r")))
		if len(toks) == 0 {
			continue
		}
		if y == c.Y {
			if c.X < 0 || c.X >= len(toks) {
				return 0, 0, 0, false
			}
			tok := toks[c.X]
			start = tok.col - 1
			return n, start, start + utf8.RuneCountInString(tok.text), true
		}
		y++
	}
	return 0, 0, 0, false
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

func tokenize(line string) []token {
	var toks []token
	col := 0
	start := -1
	var cur strings.Builder
	for _, r := range line {
		col++
		if unicode.IsSpace(r) {
			if start >= 0 {
				toks = append(toks, token{text: cur.String(), col: start})
				cur.Reset()
				start = -1
			}
			continue
		}
		if start < 0 {
			start = col
		}
		cur.WriteRune(r)
	}
	if start >= 0 {
		toks = append(toks, token{text: cur.String(), col: start})
	}
	return toks
}

func parseCell(tok string) (vm.Block, error) {
	switch tok {
	case ".":
		return nil, nil
	case "@":
		return vm.End{}, nil
	case "s":
		return vm.Store{}, nil
	case "+":
		return vm.OpAdd{}, nil
	case "p":
		return vm.Print{}, nil
	case "d":
		return vm.Display{}, nil
	case "=?":
		return vm.Set{FromInput: true}, nil
	}

	r, size := utf8.DecodeRuneInString(tok)
	if size == len(tok) {
		if dir, ok := vm.DirectionFromArrow(r); ok {
			return vm.Redirect{Dir: dir}, nil
		}
	}
	if r == 'S' && len(tok) == 2 {
		if dir, ok := vm.DirectionFromArrow(rune(tok[1])); ok {
			return vm.Start{Dir: dir}, nil
		}
		return nil, fmt.Errorf("start cell %q needs a direction: one of S> S< S^ Sv", tok)
	}
	if r == '=' {
		n, err := strconv.ParseInt(tok[1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad literal in %q", tok)
		}
		return vm.Set{Value: vm.Value(n)}, nil
	}
	return nil, fmt.Errorf("unknown cell %q", tok)
}
