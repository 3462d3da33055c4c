package vm

import "fmt"

// ---------------------------------------------------------------------------
// Grid: the read-only program table
// ---------------------------------------------------------------------------

// Grid is a rectangular, row-major table of optional blocks.
// Implementations are immutable once built.
type Grid interface {
	Width() int
	Height() int
	// At returns the block at a linear index, or nil when the cell is empty
	// or the index is off the grid.
	At(index int) Block
}

// Coord is a 2D cell address. x grows rightwards, y downwards.
type Coord struct {
	X, Y int
}

// Index returns the row-major linear index of c in a grid of the given width.
func (c Coord) Index(width int) int {
	return c.Y*width + c.X
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// CoordOf decomposes a linear index.
func CoordOf(index, width int) Coord {
	if width <= 0 {
		return Coord{}
	}
	return Coord{X: index % width, Y: index / width}
}

// InBounds reports whether c addresses a cell of g.
func InBounds(g Grid, c Coord) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.Width() && c.Y < g.Height()
}

// Lookup returns the block at c, or nil when c is off the grid.
func Lookup(g Grid, c Coord) Block {
	if !InBounds(g, c) {
		return nil
	}
	return g.At(c.Index(g.Width()))
}

// FindStart returns the index of the first Start cell in row-major order.
func FindStart(g Grid) (int, Start, bool) {
	n := g.Width() * g.Height()
	for i := 0; i < n; i++ {
		if s, ok := g.At(i).(Start); ok {
			return i, s, true
		}
	}
	return 0, Start{}, false
}

// Cells copies the cells of any grid into a fresh slice.
func Cells(g Grid) []Block {
	n := g.Width() * g.Height()
	cells := make([]Block, n)
	for i := range cells {
		cells[i] = g.At(i)
	}
	return cells
}

// ---------------------------------------------------------------------------
// FixedGrid: dimensions baked in at definition time
// ---------------------------------------------------------------------------

// FixedGrid is a grid defined in Go source, such as the built-in programs.
type FixedGrid struct {
	width, height int
	cells         []Block
}

// MustFixedGrid builds a FixedGrid and panics if len(cells) != w*h.
// It is meant for package-level program definitions.
func MustFixedGrid(w, h int, cells ...Block) FixedGrid {
	if w < 0 || h < 0 || len(cells) != w*h {
		panic(fmt.Sprintf("vm: fixed grid %dx%d needs %d cells, got %d", w, h, w*h, len(cells)))
	}
	return FixedGrid{width: w, height: h, cells: cells}
}

func (g FixedGrid) Width() int  { return g.width }
func (g FixedGrid) Height() int { return g.height }

func (g FixedGrid) At(index int) Block {
	if index < 0 || index >= len(g.cells) {
		return nil
	}
	return g.cells[index]
}

// Interpret runs the program to completion.
func (g FixedGrid) Interpret(in InputFunc, out OutputFunc) error {
	return Interpret(g, in, out)
}

// ---------------------------------------------------------------------------
// DynGrid: built at runtime, usually from program text
// ---------------------------------------------------------------------------

// DynGrid is a grid whose dimensions are decided at runtime.
type DynGrid struct {
	width, height int
	cells         []Block
}

// NewDynGrid builds a DynGrid. The cells slice is copied.
func NewDynGrid(w, h int, cells []Block) (*DynGrid, error) {
	if w < 0 || h < 0 {
		return nil, fmt.Errorf("vm: negative grid dimensions %dx%d", w, h)
	}
	if len(cells) != w*h {
		return nil, fmt.Errorf("vm: grid %dx%d needs %d cells, got %d", w, h, w*h, len(cells))
	}
	return &DynGrid{width: w, height: h, cells: append([]Block(nil), cells...)}, nil
}

func (g *DynGrid) Width() int  { return g.width }
func (g *DynGrid) Height() int { return g.height }

func (g *DynGrid) At(index int) Block {
	if index < 0 || index >= len(g.cells) {
		return nil
	}
	return g.cells[index]
}

// Interpret runs the program to completion.
func (g *DynGrid) Interpret(in InputFunc, out OutputFunc) error {
	return Interpret(g, in, out)
}

// Equal reports whether two grids have the same shape and cells.
func Equal(a, b Grid) bool {
	if a.Width() != b.Width() || a.Height() != b.Height() {
		return false
	}
	n := a.Width() * a.Height()
	for i := 0; i < n; i++ {
		if a.At(i) != b.At(i) {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Built-in programs
// ---------------------------------------------------------------------------

// DemoProgram is the built-in sample program:
//
//	Sv  .   >   v   @
//	=43 .   s   +   p
//	>   d   ^   >   ^
//
// With the LIFO storage discipline it displays "+" (the character 43), stores
// the value once and then faults at the OpAdd cell (3,1) because only one
// operand is on the stack.
var DemoProgram = MustFixedGrid(5, 3,
	Start{Down}, nil, Redirect{Right}, Redirect{Down}, End{},
	Set{Value: 43}, nil, Store{}, OpAdd{}, Print{},
	Redirect{Right}, Display{}, Redirect{Up}, Redirect{Right}, Redirect{Up},
)

// DoubleProgram stores 43 twice and prints their sum, 86.
//
//	S>  =43 s   s   +   p   @
var DoubleProgram = MustFixedGrid(7, 1,
	Start{Right}, Set{Value: 43}, Store{}, Store{}, OpAdd{}, Print{}, End{},
)
