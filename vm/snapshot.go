package vm

import (
	"fmt"
	"strings"
)

// Snapshot is a copy of the execution state that a presentation layer can
// keep without gaining access to the running program.
type Snapshot struct {
	Dir     string  `json:"dir" cbor:"1,keyasint"` // "U", "D", "L" or "R"
	Pos     int     `json:"pos" cbor:"2,keyasint"`
	Val     Value   `json:"val" cbor:"3,keyasint"`
	Storage []Value `json:"storage" cbor:"4,keyasint"`
	Top     int     `json:"top" cbor:"5,keyasint"`
	X       int     `json:"x" cbor:"6,keyasint"`
	Y       int     `json:"y" cbor:"7,keyasint"`
	Status  string  `json:"status" cbor:"8,keyasint"`
	Steps   int     `json:"steps" cbor:"9,keyasint"`
}

// Direction decodes the Dir symbol.
func (s Snapshot) Direction() (Direction, bool) {
	r := []rune(s.Dir)
	if len(r) != 1 {
		return 0, false
	}
	return DirectionFromSymbol(r[0])
}

func (i *Interpreter) snapshot() Snapshot {
	st := i.state
	storage := make([]Value, StorageSize)
	copy(storage, st.Storage[:])
	return Snapshot{
		Dir:     string(st.Dir.Symbol()),
		Pos:     st.Pos,
		Val:     st.Val,
		Storage: storage,
		Top:     st.Top,
		X:       st.Coords.X,
		Y:       st.Coords.Y,
		Status:  i.status.String(),
		Steps:   i.steps,
	}
}

// restore loads a snapshot into a fresh interpreter. The snapshot must
// describe a live execution on this grid.
func (i *Interpreter) restore(s Snapshot) error {
	dir, ok := s.Direction()
	if !ok {
		return fmt.Errorf("snapshot: bad direction %q", s.Dir)
	}
	w := i.grid.Width()
	c := CoordOf(s.Pos, w)
	if !InBounds(i.grid, c) {
		return fmt.Errorf("snapshot: position %d is off the %dx%d grid", s.Pos, w, i.grid.Height())
	}
	if len(s.Storage) != StorageSize {
		return fmt.Errorf("snapshot: storage has %d slots, want %d", len(s.Storage), StorageSize)
	}
	if s.Top < 0 || s.Top > StorageSize {
		return fmt.Errorf("snapshot: storage top %d out of range", s.Top)
	}

	var st State
	st.Dir = dir
	st.moveTo(s.Pos, w)
	st.Val = s.Val
	copy(st.Storage[:], s.Storage)
	st.Top = s.Top

	i.state = st
	i.steps = s.Steps
	switch s.Status {
	case "", Running.String():
		i.status = Running
	case Halted.String():
		i.status = Halted
	default:
		return fmt.Errorf("snapshot: cannot resume a %s execution", s.Status)
	}
	return nil
}

// RenderGrid draws the grid one row per line using short cell labels and
// brackets the cell under the cursor.
func RenderGrid(g Grid, cursor int) string {
	var b strings.Builder
	w, h := g.Width(), g.Height()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := Coord{X: x, Y: y}.Index(w)
			label := CellLabel(g.At(idx))
			if idx == cursor {
				label = "[" + label + "]"
			} else {
				label = " " + label + " "
			}
			fmt.Fprintf(&b, "%-7s", label)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// CellLabel is the short label of a block, the same token the program text
// syntax uses for it.
func CellLabel(b Block) string {
	switch b := b.(type) {
	case nil:
		return "."
	case Start:
		return "S" + string(b.Dir.Arrow())
	case Redirect:
		return string(b.Dir.Arrow())
	case End:
		return "@"
	case Set:
		if b.FromInput {
			return "=?"
		}
		return fmt.Sprintf("=%d", b.Value)
	case Store:
		return "s"
	case OpAdd:
		return "+"
	case Print:
		return "p"
	case Display:
		return "d"
	}
	return "?"
}
